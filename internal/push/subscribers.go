// Package push maintains the long-lived server-push connection that
// delivers order events to the client: privileged counter deltas and
// per-order change notifications. The channel reconnects on stream
// errors and forces a full session resync before reading again, so
// events missed during an outage are subsumed by fresh authoritative
// state instead of being replayed.
package push

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/storefront-dev/go-shop-client/internal/domain"
)

// SubscriberRegistry fans order-update events out to interested views.
// Delivery is synchronous, in registration order, at most once per
// subscriber per event, and isolated: a panicking subscriber cannot
// prevent delivery to the others.
type SubscriberRegistry struct {
	mu     sync.Mutex
	nextID uint64
	subs   []orderSubscriber
	log    zerolog.Logger
}

type orderSubscriber struct {
	id uint64
	fn func(domain.OrderUpdateEvent)
}

// NewSubscriberRegistry returns an empty registry.
func NewSubscriberRegistry(log zerolog.Logger) *SubscriberRegistry {
	return &SubscriberRegistry{log: log}
}

// Subscribe registers fn and returns its unsubscribe function.
func (r *SubscriberRegistry) Subscribe(fn func(domain.OrderUpdateEvent)) func() {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.subs = append(r.subs, orderSubscriber{id: id, fn: fn})
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for i := range r.subs {
			if r.subs[i].id == id {
				r.subs = append(r.subs[:i], r.subs[i+1:]...)
				return
			}
		}
	}
}

// Notify delivers the event to every currently registered subscriber.
// Events are transient: delivered and discarded, no log is kept.
func (r *SubscriberRegistry) Notify(ev domain.OrderUpdateEvent) {
	r.mu.Lock()
	subs := append([]orderSubscriber(nil), r.subs...)
	r.mu.Unlock()

	for _, s := range subs {
		r.deliver(s, ev)
	}
}

func (r *SubscriberRegistry) deliver(s orderSubscriber, ev domain.OrderUpdateEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().Interface("panic", rec).Str("order_id", ev.OrderID).
				Msg("order-update subscriber panicked")
		}
	}()
	s.fn(ev)
}
