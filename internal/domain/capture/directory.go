// Package capture provides frame sources: replay of an image directory and
// polling of a camera's still-image endpoint.
package capture

import (
	"context"
	"fmt"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"proscan-server-go/internal/domain/frame"
	"proscan-server-go/internal/domain/scan"
	"proscan-server-go/internal/platform/errors"
)

// ErrReleased is returned by reads after Release.
var ErrReleased = errors.New(errors.KindCapture, "capture.read", "source released")

var imageExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".webp": true, ".bmp": true, ".tif": true, ".tiff": true,
}

// DirectorySource replays the images in a directory in name order, one per
// read. With Loop set it starts over after the last file; otherwise it
// reports "no frame" from then on.
type DirectorySource struct {
	dir      string
	files    []string
	loop     bool
	now      func() time.Time
	mu       sync.Mutex
	next     int
	seq      uint64
	released atomic.Bool
}

var _ scan.FrameSource = (*DirectorySource)(nil)

// OpenDirectory lists dir. A missing or empty directory is an acquisition
// failure.
func OpenDirectory(dir string, loop bool) (*DirectorySource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(errors.KindCapture, "capture.open", "read frame directory", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	if len(files) == 0 {
		return nil, errors.New(errors.KindCapture, "capture.open", fmt.Sprintf("no images in %s", dir))
	}
	sort.Strings(files)
	return &DirectorySource{dir: dir, files: files, loop: loop, now: time.Now}, nil
}

// Len is the number of images found.
func (s *DirectorySource) Len() int {
	return len(s.files)
}

func (s *DirectorySource) TryRead(ctx context.Context) (*frame.Frame, bool, error) {
	if s.released.Load() {
		return nil, false, ErrReleased
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	if s.next >= len(s.files) {
		if !s.loop {
			s.mu.Unlock()
			return nil, false, nil
		}
		s.next = 0
	}
	path := s.files[s.next]
	s.next++
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	f, err := decodeFile(path)
	if err != nil {
		return nil, false, errors.Wrap(errors.KindCapture, "capture.read", filepath.Base(path), err)
	}
	f.Seq = seq
	f.Timestamp = s.now()
	return f, true, nil
}

func (s *DirectorySource) Release() error {
	s.released.Store(true)
	return nil
}

func decodeFile(path string) (*frame.Frame, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	img, err := decodeImage(raw)
	if err != nil {
		return nil, err
	}
	return frame.FromImage(img), nil
}
