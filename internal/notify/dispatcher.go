package notify

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultQueueSize is used when a dispatcher is created with a size < 1.
const DefaultQueueSize = 256

// deliveryTimeout bounds a single delivery to the wrapped notifier.
const deliveryTimeout = 5 * time.Second

// Dispatcher makes a Notifier fire-and-forget. Events are queued on a
// bounded channel and delivered by one background goroutine. When the queue
// is full the event is dropped and a warning is logged.
type Dispatcher struct {
	next   Notifier
	logger *slog.Logger
	queue  chan Event

	mu      sync.RWMutex
	closed  bool
	done    chan struct{}
	dropped atomic.Uint64
}

// NewDispatcher starts a dispatcher delivering to next.
func NewDispatcher(next Notifier, size int, logger *slog.Logger) *Dispatcher {
	if size < 1 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		next:   next,
		logger: logger,
		queue:  make(chan Event, size),
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

// Notify enqueues the event without blocking. It always returns nil.
func (d *Dispatcher) Notify(_ context.Context, e Event) error {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.drop(e, "dispatcher closed")
		return nil
	}

	select {
	case d.queue <- e:
	default:
		d.drop(e, "queue full")
	}
	return nil
}

// Dropped returns how many events were discarded.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// Close stops accepting events, delivers what is queued and waits for the
// worker to exit.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	<-d.done
}

func (d *Dispatcher) drop(e Event, reason string) {
	d.dropped.Add(1)
	d.logger.Warn("dropping notification",
		"kind", e.Kind,
		"entity_id", e.EntityID,
		"reason", reason,
	)
}

func (d *Dispatcher) run() {
	defer close(d.done)

	for e := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
		if err := d.next.Notify(ctx, e); err != nil {
			d.logger.Warn("notification delivery failed", "kind", e.Kind, "error", err)
		}
		cancel()
	}
}
