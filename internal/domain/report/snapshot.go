package report

import (
	"image/jpeg"
	"os"
	"path/filepath"

	"proscan-server-go/internal/domain/scan"
	"proscan-server-go/internal/platform/errors"
)

// DefaultJPEGQuality matches the capture quality used for snapshots.
const DefaultJPEGQuality = 90

// SnapshotWriter stores the frame of a scan event as a JPEG under
// <root>/<order>/<payload>_<timestamp>.jpg.
type SnapshotWriter struct {
	Root    string
	Quality int
}

func NewSnapshotWriter(root string) *SnapshotWriter {
	return &SnapshotWriter{Root: root, Quality: DefaultJPEGQuality}
}

// Path is where the snapshot for ev under orderID goes.
func (w *SnapshotWriter) Path(orderID string, ev scan.ScanEvent) string {
	order := NoOrder
	if orderID != "" {
		order = SanitizeName(orderID)
	}
	name := SanitizeName(ev.Code.Payload) + "_" + stamp(ev.Timestamp) + ".jpg"
	return filepath.Join(w.Root, order, name)
}

// Write encodes the event frame. Events without a frame are an error so the
// caller's retry policy can decide.
func (w *SnapshotWriter) Write(orderID string, ev scan.ScanEvent) (string, error) {
	if ev.Frame == nil {
		return "", errors.New(errors.KindReport, "report.snapshot", "event has no frame")
	}
	q := w.Quality
	if q <= 0 || q > 100 {
		q = DefaultJPEGQuality
	}

	path := w.Path(orderID, ev)
	img := ev.Frame.ToImage()
	err := writeAtomic(path, func(f *os.File) error {
		return jpeg.Encode(f, img, &jpeg.Options{Quality: q})
	})
	if err != nil {
		return "", errors.Wrap(errors.KindReport, "report.snapshot", "write "+path, err)
	}
	return path, nil
}
