// internal/events/handler.go
package events

import "context"

// Handler reacts to one event. Handlers run on the bus worker and must not
// call PublishSync on the same bus.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc lets a plain function serve as a Handler.
type HandlerFunc func(ctx context.Context, event Event) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, event Event) error { return f(ctx, event) }

// Subscription cancels a registration made with Subscribe.
type Subscription interface {
	Unsubscribe()
}

type subscription struct {
	id  string
	bus *Bus
	typ EventType
}

func (s *subscription) Unsubscribe() { s.bus.unsubscribe(s.id, s.typ) }

type subscriptions []Subscription

func (s subscriptions) Unsubscribe() {
	for _, sub := range s {
		sub.Unsubscribe()
	}
}

// SubscribeAll registers h for each of types behind one Subscription.
func SubscribeAll(b *Bus, types []EventType, h Handler) Subscription {
	subs := make(subscriptions, 0, len(types))
	for _, t := range types {
		subs = append(subs, b.Subscribe(t, h))
	}
	return subs
}
