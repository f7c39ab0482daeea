package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Config captures observability toggles.
type Config struct {
	Enabled bool
}

// ShutdownFunc allows callers to tear down any observability exporters.
type ShutdownFunc func(context.Context) error

type state struct {
	logger  *slog.Logger
	cfg     Config
	started time.Time
	metrics *registry
}

var (
	mu      sync.RWMutex
	current = state{metrics: newRegistry(), started: time.Now()}
)

func snapshotState() state {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Setup installs the logger used for spans and resets the metric registry.
func Setup(ctx context.Context, cfg Config, logger *slog.Logger) (ShutdownFunc, error) {
	mu.Lock()
	current = state{logger: logger, cfg: cfg, started: time.Now(), metrics: newRegistry()}
	mu.Unlock()

	if logger != nil {
		if cfg.Enabled {
			logger.InfoContext(ctx, "[OBS] span logging enabled")
		} else {
			logger.InfoContext(ctx, "[OBS] span logging disabled, metrics still collected")
		}
	}
	return func(context.Context) error {
		mu.Lock()
		current.logger = nil
		mu.Unlock()
		return nil
	}, nil
}

// Enabled reports whether span logging has been toggled on.
func Enabled() bool {
	return snapshotState().cfg.Enabled
}

// Uptime since the last Setup.
func Uptime() time.Duration {
	return time.Since(snapshotState().started)
}
