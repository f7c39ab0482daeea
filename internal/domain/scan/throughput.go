package scan

import "time"

// DefaultThroughputSamples is the rolling window length.
const DefaultThroughputSamples = 30

// ThroughputWindow keeps the last N iteration durations.
type ThroughputWindow struct {
	samples []time.Duration
	next    int
	count   int
	sum     time.Duration
}

func NewThroughputWindow(size int) *ThroughputWindow {
	if size <= 0 {
		size = DefaultThroughputSamples
	}
	return &ThroughputWindow{samples: make([]time.Duration, size)}
}

func (w *ThroughputWindow) Add(d time.Duration) {
	if d < 0 {
		d = 0
	}
	if w.count == len(w.samples) {
		w.sum -= w.samples[w.next]
	} else {
		w.count++
	}
	w.samples[w.next] = d
	w.sum += d
	w.next = (w.next + 1) % len(w.samples)
}

func (w *ThroughputWindow) Len() int {
	return w.count
}

func (w *ThroughputWindow) Average() time.Duration {
	if w.count == 0 {
		return 0
	}
	return w.sum / time.Duration(w.count)
}

// Rate is iterations per second from the average duration, 0 when there
// are no samples or the average is zero.
func (w *ThroughputWindow) Rate() float64 {
	if w.count == 0 || w.sum <= 0 {
		return 0
	}
	return float64(w.count) / w.sum.Seconds()
}

func (w *ThroughputWindow) Reset() {
	clear(w.samples)
	w.next, w.count, w.sum = 0, 0, 0
}
