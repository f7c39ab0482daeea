package config

import (
	"fmt"
	"strings"

	"proscan-server-go/internal/platform/errors"
)

// Bounds shared with the processor.
const (
	MinTargetFPS                = 5
	MaxTargetFPS                = 60
	MinSuppressionWindowSeconds = 1
	MaxSuppressionWindowSeconds = 30
)

// Validate checks ranges and cross-field constraints.
func (c *Config) Validate() error {
	var problems []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}

	p := c.Processing
	if p.TargetFPS < MinTargetFPS || p.TargetFPS > MaxTargetFPS {
		problems = append(problems, fmt.Sprintf("processing.target_fps %d not in [%d,%d]",
			p.TargetFPS, MinTargetFPS, MaxTargetFPS))
	}
	if p.SuppressionWindowSeconds < MinSuppressionWindowSeconds || p.SuppressionWindowSeconds > MaxSuppressionWindowSeconds {
		problems = append(problems, fmt.Sprintf("processing.suppression_window_seconds %d not in [%d,%d]",
			p.SuppressionWindowSeconds, MinSuppressionWindowSeconds, MaxSuppressionWindowSeconds))
	}
	if p.StopTimeout <= 0 {
		problems = append(problems, "processing.stop_timeout must be positive")
	}

	q := c.Quality
	if !(q.GradeA > q.GradeB && q.GradeB > q.GradeC && q.GradeC > q.GradeD) {
		problems = append(problems, "quality grade thresholds must be strictly descending (a > b > c > d)")
	}
	if q.BlurBelow < 0 || q.ContrastBelow < 0 || q.BrokenBelow < 0 {
		problems = append(problems, "quality defect thresholds must be non-negative")
	}

	switch strings.ToLower(c.Capture.Type) {
	case "directory":
		if c.Capture.Path == "" {
			problems = append(problems, "capture.path required for directory source")
		}
	case "http":
		if c.Capture.URL == "" {
			problems = append(problems, "capture.url required for http source")
		}
	default:
		problems = append(problems, fmt.Sprintf("capture.type %q unsupported", c.Capture.Type))
	}

	if len(c.Decoder.Formats) == 0 {
		problems = append(problems, "decoder.formats must not be empty")
	}
	if c.Output.Workers <= 0 {
		problems = append(problems, "output.workers must be positive")
	}
	if c.Storage.Enabled && c.Storage.Path == "" {
		problems = append(problems, "storage.path required when storage is enabled")
	}
	if c.Redis.Enabled && (c.Redis.Addr == "" || c.Redis.Stream == "") {
		problems = append(problems, "redis.addr and redis.stream required when redis is enabled")
	}

	if len(problems) > 0 {
		return errors.New(errors.KindConfig, "validate", strings.Join(problems, "; "))
	}
	return nil
}
