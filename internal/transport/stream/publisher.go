// Package stream mirrors scan events onto a Redis stream for downstream
// consumers (MES, line PLC bridges).
package stream

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"proscan-server-go/internal/domain/scan"
	"proscan-server-go/internal/platform/errors"
)

// Config for the publisher.
type Config struct {
	Addr     string
	Username string
	Password string
	DB       int
	Stream   string
	MaxLen   int64
}

// Message is the stream entry body.
type Message struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Payload   string    `json:"payload"`
	Symbology string    `json:"symbology"`
	Grade     string    `json:"grade"`
	Defect    string    `json:"defect"`
	Score     float64   `json:"score"`
	Passed    bool      `json:"passed"`
}

func MessageFromEvent(ev scan.ScanEvent) Message {
	return Message{
		ID:        ev.ID,
		Timestamp: ev.Timestamp,
		Payload:   ev.Code.Payload,
		Symbology: ev.Code.Symbology,
		Grade:     string(ev.Code.Grade),
		Defect:    string(ev.Code.Defect),
		Score:     ev.Code.Score,
		Passed:    ev.Code.Passed(),
	}
}

// Publisher appends scan events to a capped stream.
type Publisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewPublisher connects and pings the server.
func NewPublisher(ctx context.Context, cfg Config) (*Publisher, error) {
	if cfg.Addr == "" {
		return nil, errors.New(errors.KindTransport, "stream.connect", "redis address required")
	}
	if cfg.Stream == "" {
		cfg.Stream = "proscan:scans"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrap(errors.KindTransport, "stream.connect", "redis ping failed", err)
	}
	return &Publisher{client: client, stream: cfg.Stream, maxLen: cfg.MaxLen}, nil
}

func (p *Publisher) Stream() string {
	return p.stream
}

// Publish appends ev and returns the stream entry id.
func (p *Publisher) Publish(ctx context.Context, ev scan.ScanEvent) (string, error) {
	body, err := sonic.Marshal(MessageFromEvent(ev))
	if err != nil {
		return "", errors.Wrap(errors.KindTransport, "stream.publish", "encode event", err)
	}
	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"payload": ev.Code.Payload,
			"grade":   string(ev.Code.Grade),
			"event":   body,
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	id, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", errors.Wrap(errors.KindTransport, "stream.publish", "xadd", err)
	}
	return id, nil
}

// Recent reads up to n entries, newest first.
func (p *Publisher) Recent(ctx context.Context, n int64) ([]Message, error) {
	entries, err := p.client.XRevRangeN(ctx, p.stream, "+", "-", n).Result()
	if err != nil {
		return nil, errors.Wrap(errors.KindTransport, "stream.recent", "xrevrange", err)
	}
	out := make([]Message, 0, len(entries))
	for _, e := range entries {
		raw, ok := e.Values["event"].(string)
		if !ok {
			continue
		}
		var m Message
		if err := sonic.UnmarshalString(raw, &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (p *Publisher) Close() error {
	return p.client.Close()
}
