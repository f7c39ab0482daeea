// Package dedup suppresses repeated reports of the same payload while it
// stays in view. A payload is reported once per visit; the visit ends when
// the payload has not been reported for a full window.
package dedup

import (
	"time"
)

// Outcome of observing a payload.
type Outcome int

const (
	// New means the payload should produce a scan event.
	New Outcome = iota
	// Suppressed means the payload was reported within the window.
	Suppressed
)

func (o Outcome) String() string {
	if o == New {
		return "new"
	}
	return "suppressed"
}

// Cache maps payloads to the time they were last reported. Re-sightings
// inside the window do not refresh the timestamp, so a code held in view
// continuously is re-reported once per window.
//
// Cache is not safe for concurrent use; the processing loop is its only
// writer.
type Cache struct {
	window  time.Duration
	entries map[string]time.Time
}

func NewCache(window time.Duration) *Cache {
	return &Cache{window: window, entries: make(map[string]time.Time)}
}

// Window returns the current suppression window.
func (c *Cache) Window() time.Duration {
	return c.window
}

// SetWindow changes the window for subsequent Observe and Sweep calls.
// Existing timestamps are kept.
func (c *Cache) SetWindow(window time.Duration) {
	c.window = window
}

// Observe records a sighting at now.
func (c *Cache) Observe(payload string, now time.Time) Outcome {
	if ts, ok := c.entries[payload]; ok && now.Sub(ts) < c.window {
		return Suppressed
	}
	c.entries[payload] = now
	return New
}

// Sweep drops entries whose age has reached the window and returns how many
// were removed.
func (c *Cache) Sweep(now time.Time) int {
	removed := 0
	for payload, ts := range c.entries {
		if now.Sub(ts) >= c.window {
			delete(c.entries, payload)
			removed++
		}
	}
	return removed
}

// Len is the number of tracked payloads.
func (c *Cache) Len() int {
	return len(c.entries)
}

// Reset forgets every payload.
func (c *Cache) Reset() {
	clear(c.entries)
}
