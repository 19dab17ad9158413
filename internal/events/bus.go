// internal/events/bus.go
package events

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrBusClosed is returned by Publish after Shutdown.
	ErrBusClosed = errors.New("event bus is shutting down")

	// ErrBufferFull is returned by Publish when the queue is full; the event
	// is dropped.
	ErrBufferFull = errors.New("event queue full")
)

type registration struct {
	id      string
	handler Handler
}

// Bus fans launchpad events out to handlers. Queued events are delivered
// by one worker in publication order, and the handlers of a type run in
// the order they subscribed.
type Bus struct {
	logger *zap.Logger

	mu       sync.RWMutex
	handlers map[EventType][]registration
	closed   bool

	queue    chan Event
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	delivered atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// NewBus starts a bus holding up to capacity undelivered events.
func NewBus(logger *zap.Logger, capacity int) *Bus {
	b := &Bus{
		logger:   logger.Named("event_bus"),
		handlers: make(map[EventType][]registration),
		queue:    make(chan Event, max(capacity, 1)),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go b.run()
	return b
}

// Subscribe registers handler for eventType.
func (b *Bus) Subscribe(eventType EventType, handler Handler) Subscription {
	reg := registration{id: uuid.NewString(), handler: handler}

	b.mu.Lock()
	b.handlers[eventType] = append(b.handlers[eventType], reg)
	b.mu.Unlock()

	b.logger.Debug("Handler subscribed",
		zap.String("event_type", string(eventType)),
		zap.String("subscription_id", reg.id))
	return &subscription{id: reg.id, bus: b, typ: eventType}
}

// SubscribeFunc is Subscribe for a plain function.
func (b *Bus) SubscribeFunc(eventType EventType, fn func(context.Context, Event) error) Subscription {
	return b.Subscribe(eventType, HandlerFunc(fn))
}

// Publish queues event without blocking.
func (b *Bus) Publish(event Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrBusClosed
	}
	select {
	case b.queue <- event:
		return nil
	default:
		b.dropped.Add(1)
		b.logger.Warn("Event queue full, dropping event",
			zap.String("event_type", string(event.Type())))
		return ErrBufferFull
	}
}

// PublishSync runs every handler of event before returning and joins
// their errors.
func (b *Bus) PublishSync(ctx context.Context, event Event) error {
	return b.deliver(ctx, event)
}

func (b *Bus) deliver(ctx context.Context, event Event) error {
	b.mu.RLock()
	regs := slices.Clone(b.handlers[event.Type()])
	b.mu.RUnlock()

	var errs []error
	for _, reg := range regs {
		if err := reg.handler.Handle(ctx, event); err != nil {
			b.failed.Add(1)
			b.logger.Error("Handler error",
				zap.String("event_type", string(event.Type())),
				zap.String("subscription_id", reg.id),
				zap.Error(err))
			errs = append(errs, err)
			continue
		}
		b.delivered.Add(1)
	}
	return errors.Join(errs...)
}

func (b *Bus) run() {
	defer close(b.done)

	ctx := context.Background()
	for {
		select {
		case event := <-b.queue:
			_ = b.deliver(ctx, event)
		case <-b.stop:
			for {
				select {
				case event := <-b.queue:
					_ = b.deliver(ctx, event)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) unsubscribe(id string, eventType EventType) {
	b.mu.Lock()
	defer b.mu.Unlock()

	regs := slices.DeleteFunc(b.handlers[eventType], func(r registration) bool { return r.id == id })
	if len(regs) == 0 {
		delete(b.handlers, eventType)
	} else {
		b.handlers[eventType] = regs
	}
}

// Shutdown rejects new events, delivers the queued ones and waits for the
// worker until ctx is done. It may be called more than once.
func (b *Bus) Shutdown(ctx context.Context) error {
	b.stopOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		b.mu.Unlock()
		close(b.stop)
		b.logger.Info("Draining event bus", zap.Int("pending", len(b.queue)))
	})

	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		b.logger.Warn("Event bus shutdown timeout", zap.Int("pending", len(b.queue)))
		return ctx.Err()
	}
}

// Stats describes the bus load.
type Stats struct {
	Capacity  int
	Pending   int
	Delivered uint64
	Failed    uint64
	Dropped   uint64
	Handlers  map[EventType]int
}

// Stats returns a snapshot of the bus counters.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	handlers := make(map[EventType]int, len(b.handlers))
	for t, regs := range b.handlers {
		handlers[t] = len(regs)
	}
	b.mu.RUnlock()

	return Stats{
		Capacity:  cap(b.queue),
		Pending:   len(b.queue),
		Delivered: b.delivered.Load(),
		Failed:    b.failed.Load(),
		Dropped:   b.dropped.Load(),
		Handlers:  handlers,
	}
}
