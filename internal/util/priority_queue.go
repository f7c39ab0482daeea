package util

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrPriorityQueueClosed  = errors.New("priority queue closed")
	ErrPriorityQueueEmpty   = errors.New("priority queue empty")
	ErrPriorityQueueTimeout = errors.New("priority queue pop timeout")
)

// PriorityItem is a queued value. Higher Priority pops first; equal
// priorities pop in insertion order.
type PriorityItem[T any] struct {
	Value    T
	Priority int
	Index    int
	seq      uint64
}

// PriorityQueue is a heap-backed, goroutine-safe priority queue. PopItem can
// block until an item arrives.
type PriorityQueue[T any] struct {
	items  []*PriorityItem[T]
	mu     sync.Mutex
	seq    uint64
	notify chan struct{}
	done   chan struct{}
	closed bool
}

func NewPriorityQueue[T any]() *PriorityQueue[T] {
	pq := &PriorityQueue[T]{
		items:  make([]*PriorityItem[T], 0),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	heap.Init(pq)
	return pq
}

// Len implements heap.Interface; callers outside the package use Size.
func (pq *PriorityQueue[T]) Len() int { return len(pq.items) }

func (pq *PriorityQueue[T]) Less(i, j int) bool {
	if pq.items[i].Priority != pq.items[j].Priority {
		return pq.items[i].Priority > pq.items[j].Priority
	}
	return pq.items[i].seq < pq.items[j].seq
}

func (pq *PriorityQueue[T]) Swap(i, j int) {
	pq.items[i], pq.items[j] = pq.items[j], pq.items[i]
	pq.items[i].Index = i
	pq.items[j].Index = j
}

func (pq *PriorityQueue[T]) Push(x any) {
	item := x.(*PriorityItem[T])
	item.Index = len(pq.items)
	pq.items = append(pq.items, item)
}

func (pq *PriorityQueue[T]) Pop() any {
	old := pq.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.Index = -1
	pq.items = old[0 : n-1]
	return item
}

// PushItem queues value.
func (pq *PriorityQueue[T]) PushItem(value T, priority int) error {
	pq.mu.Lock()
	if pq.closed {
		pq.mu.Unlock()
		return ErrPriorityQueueClosed
	}
	pq.seq++
	heap.Push(pq, &PriorityItem[T]{Value: value, Priority: priority, seq: pq.seq})
	pq.mu.Unlock()

	select {
	case pq.notify <- struct{}{}:
	default:
	}
	return nil
}

// TryPop returns the head without waiting.
func (pq *PriorityQueue[T]) TryPop() (T, error) {
	var zero T
	pq.mu.Lock()
	defer pq.mu.Unlock()
	if len(pq.items) == 0 {
		if pq.closed {
			return zero, ErrPriorityQueueClosed
		}
		return zero, ErrPriorityQueueEmpty
	}
	item := heap.Pop(pq).(*PriorityItem[T])
	if len(pq.items) > 0 {
		select {
		case pq.notify <- struct{}{}:
		default:
		}
	}
	return item.Value, nil
}

// PopItem removes the head. A negative timeout never waits, zero waits until
// an item, close or ctx, and a positive timeout bounds the wait. Items queued
// before Close are still handed out.
func (pq *PriorityQueue[T]) PopItem(ctx context.Context, timeout time.Duration) (T, error) {
	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	for {
		v, err := pq.TryPop()
		if err != ErrPriorityQueueEmpty || timeout < 0 {
			return v, err
		}
		select {
		case <-pq.notify:
		case <-pq.done:
		case <-timer:
			return v, ErrPriorityQueueTimeout
		case <-ctx.Done():
			return v, ctx.Err()
		}
	}
}

// Close rejects further pushes and wakes blocked poppers.
func (pq *PriorityQueue[T]) Close() {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	if !pq.closed {
		pq.closed = true
		close(pq.done)
	}
}

func (pq *PriorityQueue[T]) Size() int {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	return len(pq.items)
}

func (pq *PriorityQueue[T]) IsEmpty() bool {
	return pq.Size() == 0
}
