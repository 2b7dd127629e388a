// Package nav implements the navigation guard that sits in front of
// every route transition: it cancels the previous route's in-flight
// requests, re-validates the session, and arbitrates the global locked
// route used by multi-step flows like checkout.
package nav

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/storefront-dev/go-shop-client/internal/api"
	"github.com/storefront-dev/go-shop-client/internal/services"
	"github.com/storefront-dev/go-shop-client/internal/state"
)

// SessionChecker is the session validation the guard runs on every
// authenticated transition.
type SessionChecker interface {
	VerifyAndRefresh(ctx context.Context) error
}

// Decision is the guard's verdict on a route transition. A disallowed
// decision with an empty RedirectTo means "stay where you are".
type Decision struct {
	Allowed    bool
	RedirectTo string
}

// Guard arbitrates route transitions.
type Guard struct {
	Store   *state.Store
	Cancels *api.CancelRegistry
	Session SessionChecker
	Log     zerolog.Logger

	// OrdersRoute resets its page-local counter on entry; LoginRoute is
	// the destination for forced redirects.
	OrdersRoute string
	LoginRoute  string

	// Now is a clock seam for tests; defaults to time.Now.
	Now func() time.Time

	// seq identifies the transition of record. A check that resolves
	// after a newer transition has started must not touch the UI-blocked
	// flag the newer transition now owns.
	seq atomic.Uint64
}

func (g *Guard) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

// BeforeRouteChange runs the full pre-navigation protocol for a
// transition to the given route.
//
// Order matters: the locked-route check rejects departures before any
// side effect; cancellation of the previous route's requests completes
// before the new route can issue its own; and only then does the
// session check run. While the check is in flight the UI is blocked but
// the previous page stays rendered, and the unblock is guaranteed on
// every exit path.
func (g *Guard) BeforeRouteChange(ctx context.Context, to string) Decision {
	if lock, ok := g.Store.LockedRoute(g.now()); ok && to != lock.Path {
		g.Store.RememberResumeTarget(to)
		g.Log.Info().Str("to", to).Str("locked", lock.Path).Msg("navigation rejected by route lock")
		return Decision{Allowed: false}
	}

	g.Cancels.CancelAll()
	g.Store.SetRoute(to)
	if to == g.OrdersRoute {
		g.Store.ResetPageCounter()
	}

	sess := g.Store.Session()
	if !sess.IsAuthenticated || sess.IsLocalFallback {
		return g.redirectIfForced(Decision{Allowed: true})
	}

	mySeq := g.seq.Add(1)
	g.Store.SetUIBlocked(true)
	defer func() {
		if g.seq.Load() == mySeq {
			g.Store.SetUIBlocked(false)
		}
	}()

	err := g.check(ctx)
	if g.seq.Load() != mySeq {
		// A newer transition is the one of record; this one is moot.
		return Decision{Allowed: false}
	}
	if errors.Is(err, services.ErrSessionExpired) {
		return g.redirectIfForced(Decision{Allowed: true})
	}
	if err != nil {
		g.Log.Warn().Err(err).Str("to", to).Msg("session check failed, allowing navigation")
	}
	return Decision{Allowed: true}
}

// check isolates a panicking session check so the deferred unblock in
// BeforeRouteChange always runs and the verdict degrades to an error.
func (g *Guard) check(ctx context.Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			g.Log.Error().Interface("panic", rec).Msg("session check panicked")
			err = errors.New("session check panicked")
		}
	}()
	return g.Session.VerifyAndRefresh(ctx)
}

// redirectIfForced rewrites an allowed decision into a login redirect
// when the sticky forced-redirect flag is set and not suppressed.
func (g *Guard) redirectIfForced(d Decision) Decision {
	sess := g.Store.Session()
	if sess.ForceRedirectToLogin && !sess.SuppressRedirect {
		return Decision{Allowed: false, RedirectTo: g.LoginRoute}
	}
	return d
}

// LockRoute pins navigation to path for ttl (a mid-checkout invariant).
func (g *Guard) LockRoute(path string, ttl time.Duration) {
	g.Store.LockRoute(path, g.now().Add(ttl))
}

// Unlock releases the route lock and returns the first destination that
// was rejected while it held, or "" when none was.
func (g *Guard) Unlock() string {
	return g.Store.Unlock()
}
