// Package api implements the HTTP client for the shop server and the
// registry of in-flight request cancellation handles.
//
// Cancellation is cooperative: every outgoing request runs under a
// context derived through the registry, and a route change aborts them
// all atomically before the new route issues its own requests. Because a
// cancelled request's response may already be in flight, callers capture
// the registry epoch before issuing a request and re-check it before
// committing results; a commit against a stale epoch is a no-op.
package api

import (
	"context"
	"sync"
)

// CancelRegistry tracks cancellation handles for in-flight network
// operations. The zero value is not usable; construct with
// NewCancelRegistry.
type CancelRegistry struct {
	mu      sync.Mutex
	nextID  uint64
	epoch   uint64
	cancels map[uint64]context.CancelFunc
}

// NewCancelRegistry returns an empty registry at epoch zero.
func NewCancelRegistry() *CancelRegistry {
	return &CancelRegistry{cancels: map[uint64]context.CancelFunc{}}
}

// Track derives a cancellable context registered with the registry. The
// returned release function must be called when the operation finishes
// (normally via defer); it both deregisters and cancels the derived
// context.
func (r *CancelRegistry) Track(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)

	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.cancels[id] = cancel
	r.mu.Unlock()

	release := func() {
		r.mu.Lock()
		delete(r.cancels, id)
		r.mu.Unlock()
		cancel()
	}
	return ctx, release
}

// CancelAll aborts every tracked operation and advances the epoch. Abort
// signals are sent before CancelAll returns, so a caller issuing new
// requests immediately afterwards cannot race a stale response into
// shared state (the stale request observes its cancelled context, and
// its epoch check fails regardless).
func (r *CancelRegistry) CancelAll() {
	r.mu.Lock()
	cancels := r.cancels
	r.cancels = map[uint64]context.CancelFunc{}
	r.epoch++
	r.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

// Epoch returns the current cancellation epoch. Capture before a request,
// compare via StillCurrent before committing its result.
func (r *CancelRegistry) Epoch() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.epoch
}

// StillCurrent reports whether no CancelAll has happened since the given
// epoch was captured.
func (r *CancelRegistry) StillCurrent(epoch uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.epoch == epoch
}

// Pending returns the number of tracked operations.
func (r *CancelRegistry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cancels)
}
