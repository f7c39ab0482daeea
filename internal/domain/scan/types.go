package scan

import (
	"time"

	"proscan-server-go/internal/domain/frame"
	"proscan-server-go/internal/domain/quality"
)

// Detection is what a decoder reports for one symbol in a frame.
type Detection struct {
	Payload   string
	Symbology string
	Box       frame.BoundingBox
}

// DetectedCode is a detection with its quality assessment attached.
type DetectedCode struct {
	Payload   string               `json:"payload"`
	Symbology string               `json:"symbology"`
	Box       frame.BoundingBox    `json:"box"`
	Grade     quality.Grade        `json:"grade"`
	Defect    quality.DefectStatus `json:"defect"`
	Metrics   quality.Metrics      `json:"metrics"`
	Score     float64              `json:"score"`
}

// Passed reports whether the code meets the minimum acceptable grade.
func (c DetectedCode) Passed() bool {
	return c.Grade.Passing()
}

// ScanEvent is emitted once per visit of a payload.
type ScanEvent struct {
	ID        string       `json:"id"`
	Timestamp time.Time    `json:"timestamp"`
	Code      DetectedCode `json:"code"`
	// Frame is the copy delivered with the iteration that produced the
	// event. Shared by all events of that iteration; treat as read-only.
	Frame *frame.Frame `json:"-"`
}

// FrameResult is the per-iteration notification.
type FrameResult struct {
	Seq        uint64         `json:"seq"`
	Timestamp  time.Time      `json:"timestamp"`
	Frame      *frame.Frame   `json:"-"`
	Detections []DetectedCode `json:"detections"`
	Events     []ScanEvent    `json:"events"`
}
