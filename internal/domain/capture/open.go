package capture

import (
	"context"
	"fmt"
	"strings"

	"proscan-server-go/internal/domain/scan"
	"proscan-server-go/internal/platform/config"
	"proscan-server-go/internal/platform/errors"
)

// Opener builds the scan.OpenFunc for a capture configuration. The config is
// read at Start time, so a reloaded capture section applies to the next run.
func Opener(cfg func() config.CaptureConfig) scan.OpenFunc {
	return func(ctx context.Context) (scan.FrameSource, error) {
		return Open(ctx, cfg())
	}
}

// Open acquires the source described by cfg.
func Open(ctx context.Context, cfg config.CaptureConfig) (scan.FrameSource, error) {
	switch strings.ToLower(cfg.Type) {
	case "directory", "":
		return OpenDirectory(cfg.Path, cfg.Loop)
	case "http":
		return OpenHTTP(ctx, HTTPConfig{
			URL:      cfg.URL,
			Username: cfg.Username,
			Password: cfg.Password,
			Timeout:  cfg.Timeout,
		})
	default:
		return nil, errors.New(errors.KindCapture, "capture.open", fmt.Sprintf("unsupported source type %q", cfg.Type))
	}
}
