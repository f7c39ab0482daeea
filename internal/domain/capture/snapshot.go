package capture

import (
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"proscan-server-go/internal/domain/frame"
	"proscan-server-go/internal/domain/scan"
	"proscan-server-go/internal/platform/errors"
)

// maxSnapshotBytes caps a single still image.
const maxSnapshotBytes = 32 << 20

// HTTPConfig describes a camera still-image endpoint.
type HTTPConfig struct {
	URL      string
	Username string
	Password string
	Timeout  time.Duration
	Client   *http.Client
}

// HTTPSource fetches one still image per read. Release cancels any request
// in flight.
type HTTPSource struct {
	cfg    HTTPConfig
	client *http.Client
	ctx    context.Context
	cancel context.CancelFunc
	seq    atomic.Uint64
	now    func() time.Time
}

var _ scan.FrameSource = (*HTTPSource)(nil)

// OpenHTTP probes the endpoint once so an unreachable camera fails Start.
func OpenHTTP(ctx context.Context, cfg HTTPConfig) (*HTTPSource, error) {
	if cfg.URL == "" {
		return nil, errors.New(errors.KindCapture, "capture.open", "snapshot url is empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	srcCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &HTTPSource{cfg: cfg, client: client, ctx: srcCtx, cancel: cancel, now: time.Now}

	probeCtx, probeCancel := context.WithTimeout(ctx, cfg.Timeout)
	defer probeCancel()
	if _, err := s.fetch(probeCtx); err != nil {
		cancel()
		return nil, errors.Wrap(errors.KindCapture, "capture.open", "probe "+cfg.URL, err)
	}
	return s, nil
}

func (s *HTTPSource) TryRead(ctx context.Context) (*frame.Frame, bool, error) {
	if s.ctx.Err() != nil {
		return nil, false, ErrReleased
	}

	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	img, err := s.fetch(reqCtx)
	if err != nil {
		if s.ctx.Err() != nil {
			return nil, false, ErrReleased
		}
		return nil, false, errors.Wrap(errors.KindCapture, "capture.read", "fetch snapshot", err)
	}
	f := frame.FromImage(img)
	f.Seq = s.seq.Add(1)
	f.Timestamp = s.now()
	return f, true, nil
}

func (s *HTTPSource) Release() error {
	s.cancel()
	return nil
}

func (s *HTTPSource) fetch(ctx context.Context) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.URL, nil)
	if err != nil {
		return nil, err
	}
	if s.cfg.Username != "" {
		req.SetBasicAuth(s.cfg.Username, s.cfg.Password)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotBytes))
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	img, err := decodeImage(raw)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return img, nil
}
