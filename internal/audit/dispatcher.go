package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config controls how a Dispatcher queues events.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull discards events when the queue is full. Otherwise Emit waits
	// for room until its context ends, and an abandoned event counts as dropped.
	DropIfFull bool
	// OnDrop is called synchronously with every dropped event.
	OnDrop func(Event)
}

// Dispatcher relays events to a Sink from one goroutine so that membership
// operations never wait on sink I/O.
type Dispatcher struct {
	sink   Sink
	queue  chan Event
	drop   bool
	onDrop func(Event)

	// mu guards closed. Emit holds the read side while it sends, so Close
	// never closes the queue under a sender.
	mu     sync.RWMutex
	closed bool
	idle   chan struct{}

	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// NewDispatcher starts the relay goroutine. It returns nil when cfg is
// disabled; every method is safe on a nil Dispatcher.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = Discard
	}

	d := &Dispatcher{
		sink:   sink,
		queue:  make(chan Event, max(cfg.BufferSize, 1)),
		drop:   cfg.DropIfFull,
		onDrop: cfg.OnDrop,
		idle:   make(chan struct{}),
	}
	go d.relay()
	return d
}

// relay runs until the queue is closed and drained.
func (d *Dispatcher) relay() {
	defer close(d.idle)
	for event := range d.queue {
		d.sink.Emit(context.Background(), event)
		d.delivered.Add(1)
	}
}

func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil {
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	if d.drop {
		select {
		case d.queue <- event:
		default:
			d.discard(event)
		}
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.queue <- event:
	case <-ctx.Done():
		d.discard(event)
	}
}

func (d *Dispatcher) discard(event Event) {
	d.dropped.Add(1)
	if d.onDrop != nil {
		d.onDrop(event)
	}
}

// Close stops accepting events and returns once every queued event reached
// the sink. It is safe to call more than once.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}

	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	<-d.idle
}

// Dropped counts events discarded because the queue was full or the caller
// gave up waiting.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Delivered counts events handed to the sink.
func (d *Dispatcher) Delivered() uint64 {
	if d == nil {
		return 0
	}
	return d.delivered.Load()
}
