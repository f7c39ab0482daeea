package observability

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartSpan_RecordsDurationAndErrors(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	shutdown, err := Setup(context.Background(), Config{Enabled: true}, logger)
	require.NoError(t, err)
	defer shutdown(context.Background())

	_, end := StartSpan(context.Background(), "scan", "iteration")
	end(nil)
	_, end = StartSpan(context.Background(), "scan", "iteration")
	end(errors.New("decode failed"))

	byName := map[string]Sample{}
	for _, s := range Snapshot() {
		byName[s.Name] = s
	}
	assert.Equal(t, uint64(2), byName["scan.iteration.seconds"].Count)
	assert.Equal(t, 1.0, byName["scan.iteration.errors"].Value)
	assert.Contains(t, buf.String(), "decode failed")
}

func TestRecordMetric_LabelsSeparateSeries(t *testing.T) {
	_, err := Setup(context.Background(), Config{}, nil)
	require.NoError(t, err)

	RecordMetric(context.Background(), "scan.fps", 14.5, map[string]string{"source": "a"})
	RecordMetric(context.Background(), "scan.fps", 9, map[string]string{"source": "b"})
	IncCounter("scan.events", 1, nil)
	IncCounter("scan.events", 2, nil)

	samples := Snapshot()
	require.Len(t, samples, 3)
	assert.Equal(t, "scan.events", samples[0].Name)
	assert.Equal(t, 3.0, samples[0].Value)
	assert.Equal(t, "a", samples[1].Labels["source"])
	assert.Equal(t, 9.0, samples[2].Value)
}

func TestCollectHostStats(t *testing.T) {
	stats := CollectHostStats(context.Background())
	assert.Greater(t, stats.NumCPU, 0)
	assert.Greater(t, stats.Goroutines, 0)
	assert.GreaterOrEqual(t, stats.CPUPercent, 0.0)
}
