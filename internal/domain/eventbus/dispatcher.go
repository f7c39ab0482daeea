// Package eventbus delivers processing loop notifications to subscribers on
// a dedicated goroutine, preserving publish order.
package eventbus

import (
	"fmt"
	"sync"
	"sync/atomic"

	evbus "github.com/asaskevich/EventBus"

	"proscan-server-go/internal/domain/scan"
	"proscan-server-go/internal/platform/logging"
)

// DefaultQueueSize is the number of pending notifications before frame and
// throughput messages start being dropped.
const DefaultQueueSize = 1024

type message struct {
	topic string
	arg   interface{}
}

// Dispatcher is an asynchronous scan.Sink. A single worker publishes to the
// underlying bus so subscribers observe the loop's emission order. Frame
// and throughput notifications are dropped when the queue is full; scan
// events and errors wait for room.
type Dispatcher struct {
	bus    evbus.Bus
	queue  chan message
	stopCh chan struct{}
	done   chan struct{}
	logger *logging.Logger

	startOnce sync.Once
	stopOnce  sync.Once

	published atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
	panics    atomic.Uint64
}

var _ scan.Sink = (*Dispatcher)(nil)

// Stats counts dispatcher activity.
type Stats struct {
	Published uint64 `json:"published"`
	Delivered uint64 `json:"delivered"`
	Dropped   uint64 `json:"dropped"`
	Panics    uint64 `json:"panics"`
	Pending   int    `json:"pending"`
}

func NewDispatcher(queueSize int, logger *logging.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Dispatcher{
		bus:    evbus.New(),
		queue:  make(chan message, queueSize),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Start launches the delivery goroutine.
func (d *Dispatcher) Start() {
	d.startOnce.Do(func() { go d.run() })
}

// Stop delivers everything already queued, then stops. Publishing after
// Stop is a no-op.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopCh)
		d.Start()
	})
	<-d.done
}

// Subscribe registers fn for topic. fn's single parameter must match the
// topic's payload type.
func (d *Dispatcher) Subscribe(topic string, fn interface{}) error {
	return d.bus.Subscribe(topic, fn)
}

func (d *Dispatcher) Unsubscribe(topic string, fn interface{}) error {
	return d.bus.Unsubscribe(topic, fn)
}

func (d *Dispatcher) Stats() Stats {
	return Stats{
		Published: d.published.Load(),
		Delivered: d.delivered.Load(),
		Dropped:   d.dropped.Load(),
		Panics:    d.panics.Load(),
		Pending:   len(d.queue),
	}
}

func (d *Dispatcher) OnFrame(r scan.FrameResult)   { d.publish(TopicFrame, r) }
func (d *Dispatcher) OnScanEvent(e scan.ScanEvent) { d.publish(TopicScanEvent, e) }
func (d *Dispatcher) OnThroughput(fps float64)     { d.publish(TopicThroughput, fps) }
func (d *Dispatcher) OnError(msg string)           { d.publish(TopicError, msg) }

func (d *Dispatcher) publish(topic string, arg interface{}) {
	select {
	case <-d.stopCh:
		return
	default:
	}

	m := message{topic: topic, arg: arg}
	if droppable(topic) {
		select {
		case d.queue <- m:
			d.published.Add(1)
		default:
			// 队列已满，丢弃可替代的消息
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.queue <- m:
		d.published.Add(1)
	case <-d.stopCh:
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		select {
		case m := <-d.queue:
			d.deliver(m)
		case <-d.stopCh:
			for {
				select {
				case m := <-d.queue:
					d.deliver(m)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(m message) {
	defer func() {
		if r := recover(); r != nil {
			d.panics.Add(1)
			d.logger.ErrorTag(logging.TagScan, "subscriber panic on %s: %s", m.topic, fmt.Sprint(r))
		}
	}()
	d.bus.Publish(m.topic, m.arg)
	d.delivered.Add(1)
}
