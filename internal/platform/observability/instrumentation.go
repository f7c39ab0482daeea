package observability

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// StartSpan times an operation. The returned func records the duration as
// "<component>.<operation>.seconds" and, when enabled, logs the span.
func StartSpan(ctx context.Context, component, operation string) (context.Context, func(error)) {
	st := snapshotState()
	start := time.Now()

	return ctx, func(err error) {
		elapsed := time.Since(start)
		st.metrics.observe(component+"."+operation+".seconds", elapsed.Seconds(), nil)
		if err != nil {
			st.metrics.add(component+"."+operation+".errors", 1, nil)
		}

		if st.logger == nil || !st.cfg.Enabled {
			return
		}
		level := slog.LevelDebug
		attrs := []slog.Attr{
			slog.String("component", component),
			slog.String("operation", operation),
			slog.Duration("duration", elapsed),
		}
		if err != nil {
			level = slog.LevelWarn
			attrs = append(attrs, slog.Any("error", err))
		}
		st.logger.LogAttrs(ctx, level, "[OBS] span", attrs...)
	}
}

// RecordMetric sets a gauge value.
func RecordMetric(ctx context.Context, name string, value float64, labels map[string]string) {
	st := snapshotState()
	st.metrics.set(name, value, labels)
	if st.logger != nil && st.cfg.Enabled {
		attrs := []slog.Attr{slog.String("metric", name), slog.Float64("value", value)}
		for k, v := range labels {
			attrs = append(attrs, slog.String(k, v))
		}
		st.logger.LogAttrs(ctx, slog.LevelDebug, "[OBS] metric", attrs...)
	}
}

// IncCounter adds delta to a counter.
func IncCounter(name string, delta float64, labels map[string]string) {
	snapshotState().metrics.add(name, delta, labels)
}

// Sample is one exported series.
type Sample struct {
	Name   string            `json:"name"`
	Labels map[string]string `json:"labels,omitempty"`
	Value  float64           `json:"value"`
	Count  uint64            `json:"count,omitempty"`
}

// Snapshot returns all series sorted by key.
func Snapshot() []Sample {
	return snapshotState().metrics.snapshot()
}

type series struct {
	name   string
	labels map[string]string
	value  float64
	count  uint64
}

type registry struct {
	mu     sync.Mutex
	series map[string]*series
}

func newRegistry() *registry {
	return &registry{series: make(map[string]*series)}
}

func seriesKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(name)
	for _, k := range keys {
		b.WriteString("|" + k + "=" + labels[k])
	}
	return b.String()
}

func (r *registry) get(name string, labels map[string]string) *series {
	key := seriesKey(name, labels)
	s, ok := r.series[key]
	if !ok {
		copied := make(map[string]string, len(labels))
		for k, v := range labels {
			copied[k] = v
		}
		s = &series{name: name, labels: copied}
		r.series[key] = s
	}
	return s
}

func (r *registry) set(name string, value float64, labels map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.get(name, labels)
	s.value = value
	s.count++
}

func (r *registry) add(name string, delta float64, labels map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.get(name, labels)
	s.value += delta
	s.count++
}

// observe keeps a running mean.
func (r *registry) observe(name string, value float64, labels map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.get(name, labels)
	s.count++
	s.value += (value - s.value) / float64(s.count)
}

func (r *registry) snapshot() []Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.series))
	for k := range r.series {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Sample, 0, len(keys))
	for _, k := range keys {
		s := r.series[k]
		var labels map[string]string
		if len(s.labels) > 0 {
			labels = make(map[string]string, len(s.labels))
			for lk, lv := range s.labels {
				labels[lk] = lv
			}
		}
		out = append(out, Sample{Name: s.name, Labels: labels, Value: s.value, Count: s.count})
	}
	return out
}
