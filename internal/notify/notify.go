// Package notify implements the client's notice center: a small
// publish/subscribe registry for user-facing, non-blocking notices (the
// one-time cart-merge message, the delayed degraded-session warning).
// It is constructed explicitly and injected — no ambient global state.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Notice levels.
const (
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Notice is one user-facing message. Sticky notices stay until dismissed;
// the rest are fire-and-forget toasts.
type Notice struct {
	Level   string
	Message string
	Sticky  bool
}

// Center fans notices out to subscribers. Delivery is synchronous, in
// registration order, and isolated: a panicking subscriber cannot prevent
// delivery to the others.
type Center struct {
	mu     sync.Mutex
	nextID uint64
	subs   []subscriber
	log    zerolog.Logger
}

type subscriber struct {
	id uint64
	fn func(Notice)
}

// NewCenter returns an empty notice center.
func NewCenter(log zerolog.Logger) *Center {
	return &Center{log: log}
}

// Subscribe registers fn and returns its unsubscribe function.
func (c *Center) Subscribe(fn func(Notice)) func() {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.subs = append(c.subs, subscriber{id: id, fn: fn})
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i := range c.subs {
			if c.subs[i].id == id {
				c.subs = append(c.subs[:i], c.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers the notice to every currently registered subscriber.
func (c *Center) Publish(n Notice) {
	c.mu.Lock()
	subs := append([]subscriber(nil), c.subs...)
	c.mu.Unlock()

	for _, s := range subs {
		c.deliver(s, n)
	}
}

// PublishAfter delivers the notice once delay has elapsed, unless ctx is
// done first. Used for the degraded-session warning, whose delay avoids
// flashing a notice the user would never read if the UI moves on
// immediately.
func (c *Center) PublishAfter(ctx context.Context, n Notice, delay time.Duration) {
	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
			c.Publish(n)
		}
	}()
}

func (c *Center) deliver(s subscriber, n Notice) {
	defer func() {
		if rec := recover(); rec != nil {
			c.log.Error().Interface("panic", rec).Msg("notice subscriber panicked")
		}
	}()
	s.fn(n)
}
