package scan

import (
	"fmt"
	"time"

	"proscan-server-go/internal/platform/errors"
)

const (
	MinTargetFPS         = 5
	MaxTargetFPS         = 60
	MinSuppressionWindow = time.Second
	MaxSuppressionWindow = 30 * time.Second

	DefaultTargetFPS         = 15
	DefaultSuppressionWindow = 3 * time.Second
)

// ProcessingConfig is the runtime-tunable part of the loop. Values are
// validated on construction and on every update.
type ProcessingConfig struct {
	TargetFPS         int           `json:"target_fps"`
	SuppressionWindow time.Duration `json:"suppression_window"`
}

func DefaultProcessingConfig() ProcessingConfig {
	return ProcessingConfig{TargetFPS: DefaultTargetFPS, SuppressionWindow: DefaultSuppressionWindow}
}

// NewProcessingConfig validates both values.
func NewProcessingConfig(targetFPS int, window time.Duration) (ProcessingConfig, error) {
	c := ProcessingConfig{TargetFPS: targetFPS, SuppressionWindow: window}
	return c, c.Validate()
}

func (c ProcessingConfig) Validate() error {
	if err := validateFPS(c.TargetFPS); err != nil {
		return err
	}
	return validateWindow(c.SuppressionWindow)
}

// FrameInterval is the per-iteration time budget at the target rate.
func (c ProcessingConfig) FrameInterval() time.Duration {
	return time.Second / time.Duration(c.TargetFPS)
}

// ErrInvalidConfig is matched with errors.Is by callers that need to map
// validation failures (for example to HTTP 400).
var ErrInvalidConfig = errors.New(errors.KindDomain, "processing.config", "invalid processing config")

func validateFPS(fps int) error {
	if fps < MinTargetFPS || fps > MaxTargetFPS {
		return fmt.Errorf("%w: target fps %d not in [%d,%d]", ErrInvalidConfig, fps, MinTargetFPS, MaxTargetFPS)
	}
	return nil
}

func validateWindow(d time.Duration) error {
	if d < MinSuppressionWindow || d > MaxSuppressionWindow {
		return fmt.Errorf("%w: suppression window %s not in [%s,%s]", ErrInvalidConfig, d, MinSuppressionWindow, MaxSuppressionWindow)
	}
	return nil
}
