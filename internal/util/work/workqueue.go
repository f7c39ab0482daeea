// Package work runs prioritised jobs on a fixed worker pool with retries.
package work

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"proscan-server-go/internal/util"
)

var (
	ErrWorkQueueClosed = errors.New("work queue closed")
	ErrMaxRetries      = errors.New("max retries exceeded")
)

// WorkItem carries the job data and its retry state.
type WorkItem[T any] struct {
	Data       T
	Priority   int
	Retries    int
	MaxRetries int
	LastError  error
	CreatedAt  time.Time
}

// WorkHandler processes one item. A non-nil error schedules a retry until
// MaxRetries is exhausted.
type WorkHandler[T any] func(ctx context.Context, item T) error

// FailureHandler is told about items that exhausted their retries or were
// abandoned by Stop.
type FailureHandler[T any] func(item *WorkItem[T], err error)

// Options tunes a WorkQueue. Zero values get defaults.
type Options[T any] struct {
	Workers     int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	OnFailure   FailureHandler[T]
}

// Stats are cumulative counters.
type Stats struct {
	Submitted int64 `json:"submitted"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
	Retried   int64 `json:"retried"`
	Pending   int   `json:"pending"`
}

// WorkQueue is a priority-based work queue with retry support.
type WorkQueue[T any] struct {
	queue   *util.PriorityQueue[*WorkItem[T]]
	handler WorkHandler[T]
	opts    Options[T]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	stopped bool

	submitted atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	retried   atomic.Int64
}

// NewWorkQueue starts the workers immediately.
func NewWorkQueue[T any](handler WorkHandler[T], opts Options[T]) *WorkQueue[T] {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = time.Second
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	wq := &WorkQueue[T]{
		queue:   util.NewPriorityQueue[*WorkItem[T]](),
		handler: handler,
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
	}
	for i := 0; i < opts.Workers; i++ {
		wq.wg.Add(1)
		go wq.run()
	}
	return wq
}

func (wq *WorkQueue[T]) Submit(data T, priority int) error {
	return wq.SubmitWithRetries(data, priority, 0)
}

func (wq *WorkQueue[T]) SubmitWithRetries(data T, priority int, maxRetries int) error {
	wq.mu.RLock()
	defer wq.mu.RUnlock()
	if wq.stopped {
		return ErrWorkQueueClosed
	}

	item := &WorkItem[T]{
		Data:       data,
		Priority:   priority,
		MaxRetries: maxRetries,
		CreatedAt:  time.Now(),
	}
	if err := wq.queue.PushItem(item, priority); err != nil {
		return ErrWorkQueueClosed
	}
	wq.submitted.Add(1)
	return nil
}

// Stop refuses new work and lets the workers drain what is queued. When ctx
// ends first, running handlers see their context cancelled and whatever is
// still queued is reported to OnFailure.
func (wq *WorkQueue[T]) Stop(ctx context.Context) error {
	wq.mu.Lock()
	if wq.stopped {
		wq.mu.Unlock()
		return nil
	}
	wq.stopped = true
	wq.queue.Close()
	wq.mu.Unlock()

	done := make(chan struct{})
	go func() {
		wq.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		wq.cancel()
		return nil
	case <-ctx.Done():
		wq.cancel()
		<-done
		for {
			item, err := wq.queue.TryPop()
			if err != nil {
				break
			}
			wq.fail(item, ErrWorkQueueClosed)
		}
		return ctx.Err()
	}
}

func (wq *WorkQueue[T]) IsStopped() bool {
	wq.mu.RLock()
	defer wq.mu.RUnlock()
	return wq.stopped
}

func (wq *WorkQueue[T]) Stats() Stats {
	return Stats{
		Submitted: wq.submitted.Load(),
		Succeeded: wq.succeeded.Load(),
		Failed:    wq.failed.Load(),
		Retried:   wq.retried.Load(),
		Pending:   wq.queue.Size(),
	}
}

func (wq *WorkQueue[T]) run() {
	defer wq.wg.Done()
	for wq.ctx.Err() == nil {
		item, err := wq.queue.PopItem(wq.ctx, 0)
		if err != nil {
			// closed and drained, or cancelled
			return
		}
		wq.processItem(item)
	}
}

func (wq *WorkQueue[T]) processItem(item *WorkItem[T]) {
	for {
		err := wq.handle(item)
		if err == nil {
			wq.succeeded.Add(1)
			return
		}

		item.LastError = err
		item.Retries++
		if item.Retries > item.MaxRetries {
			wq.fail(item, errors.Join(ErrMaxRetries, err))
			return
		}
		wq.retried.Add(1)

		backoff := time.Duration(item.Retries) * wq.opts.BaseBackoff
		if backoff > wq.opts.MaxBackoff {
			backoff = wq.opts.MaxBackoff
		}
		t := time.NewTimer(backoff)
		select {
		case <-t.C:
		case <-wq.ctx.Done():
			t.Stop()
			wq.fail(item, ErrWorkQueueClosed)
			return
		}
	}
}

func (wq *WorkQueue[T]) handle(item *WorkItem[T]) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError{r}
		}
	}()
	return wq.handler(wq.ctx, item.Data)
}

func (wq *WorkQueue[T]) fail(item *WorkItem[T], err error) {
	wq.failed.Add(1)
	if wq.opts.OnFailure != nil {
		wq.opts.OnFailure(item, err)
	}
}

type panicError struct{ v any }

func (p panicError) Error() string {
	return "work handler panic: " + toString(p.v)
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case error:
		return x.Error()
	default:
		return "unknown"
	}
}
