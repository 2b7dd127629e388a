// Package services – SessionService
//
// SessionService owns the session lifecycle: bootstrap at startup, the
// verify-and-refresh check that guards every route transition, logout
// (local and cross-instance), and the full resync the push channel runs
// after a reconnect. Every code path marks the session ready exactly
// once, and no failure leaves the client without a usable session — the
// worst case is a degraded local-fallback session with mutation disabled.
package services

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/storefront-dev/go-shop-client/internal/api"
	"github.com/storefront-dev/go-shop-client/internal/domain"
	"github.com/storefront-dev/go-shop-client/internal/notify"
	"github.com/storefront-dev/go-shop-client/internal/state"
)

// SessionAPI is the slice of the shop-server client the session service
// needs; tests provide fakes.
type SessionAPI interface {
	VerifySession(ctx context.Context, guestCart []domain.CartLine) (*api.VerifyResult, error)
	Refresh(ctx context.Context) (*api.RefreshResult, error)
	Logout(ctx context.Context) domain.Status
	SyncGuestCart(ctx context.Context, lines []domain.CartLine) (*api.GuestSyncResult, error)
}

// UserCache is the durable mirror of the authenticated user snapshot.
type UserCache interface {
	Save(ctx context.Context, u *domain.UserSnapshot) error
	Load(ctx context.Context) *domain.UserSnapshot
	Clear(ctx context.Context) error
}

// LogoutBroadcaster writes the cross-instance logout signal.
type LogoutBroadcaster interface {
	WriteLogoutSignal(ctx context.Context, at time.Time) error
}

// NoticePublisher surfaces non-blocking user notices.
type NoticePublisher interface {
	Publish(n notify.Notice)
	PublishAfter(ctx context.Context, n notify.Notice, delay time.Duration)
}

var sessionRefreshes = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "session_refresh_total",
		Help: "Token refresh attempts by outcome.",
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(sessionRefreshes)
}

// SessionService drives the session state machine. All fields are
// required unless noted.
type SessionService struct {
	Store     *state.Store
	API       SessionAPI
	Cart      *CartService
	Users     UserCache
	Broadcast LogoutBroadcaster
	Notices   NoticePublisher
	Cancels   *api.CancelRegistry
	Log       zerolog.Logger

	// RefreshSkew refreshes this long before the nominal access expiry.
	RefreshSkew time.Duration

	// FallbackNoticeDelay postpones the degraded-session notice so it is
	// not flashed at a user who navigates away immediately.
	FallbackNoticeDelay time.Duration

	// Now is a clock seam for tests; defaults to time.Now.
	Now func() time.Time

	// refreshMu serializes VerifyAndRefresh: the check runs on every
	// route transition and concurrent transitions must not race duplicate
	// refresh calls.
	refreshMu sync.Mutex

	// signalMu guards lastSignal, the timestamp of this instance's own
	// most recent logout broadcast. The watcher sees every signal in the
	// shared store, including ours; reacting to our own would re-run the
	// local logout and stomp the sticky redirect flag.
	signalMu   sync.Mutex
	lastSignal time.Time
}

func (s *SessionService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Bootstrap establishes the session at application start.
//
// Without a cached user it syncs the guest cart with the server and
// resolves to ready(unauthenticated). With a cached user it verifies the
// session, passing the guest cart for a potential server-side merge:
// success installs the returned session and (for customers) the merged
// cart; unauthenticated/gone resolve to logged-out; degraded outcomes
// (network, server, parse) fall back to the cached snapshot; any other
// rejection resolves to logged-out without touching the cache. The
// session is marked ready exactly once on every path, including failure.
func (s *SessionService) Bootstrap(ctx context.Context) {
	defer func() {
		if !s.Store.Session().Ready {
			s.Store.MarkReadyUnauthenticated()
		}
	}()

	s.Cart.RestoreGuestCart(ctx)
	cached := s.Users.Load(ctx)
	payload := s.Cart.GuestPayload(ctx)
	epoch := s.Cancels.Epoch()

	if cached == nil {
		res, err := s.API.SyncGuestCart(ctx, payload)
		if err != nil {
			return
		}
		if !s.Cancels.StillCurrent(epoch) {
			return
		}
		if res.Status == domain.StatusSuccess || res.Status == domain.StatusPartial {
			s.Cart.InstallGuestProducts(res.Products)
		} else {
			s.Log.Warn().Str("status", string(res.Status)).Msg("guest cart sync failed, keeping local prices")
		}
		s.Store.MarkReadyUnauthenticated()
		return
	}

	res, err := s.API.VerifySession(ctx, payload)
	if err != nil {
		// Cancelled mid-bootstrap; the deferred ready-guard still runs.
		return
	}
	if !s.Cancels.StillCurrent(epoch) {
		return
	}

	switch {
	case res.Status == domain.StatusSuccess:
		s.installVerified(ctx, res, true)
	case res.Status.Terminal():
		s.Log.Info().Str("status", string(res.Status)).Msg("cached session no longer valid")
		if err := s.Users.Clear(ctx); err != nil {
			s.Log.Warn().Err(err).Msg("clearing cached user failed")
		}
		s.Store.MarkReadyUnauthenticated()
	case res.Status.Degraded():
		s.Log.Warn().Str("status", string(res.Status)).Msg("session verification unreachable, degrading to local fallback")
		s.Store.InstallFallback(cached)
		s.Notices.PublishAfter(ctx, notify.Notice{
			Level:   notify.LevelWarn,
			Message: "Could not reach the shop. Your data may be out of date and cart changes are paused.",
			Sticky:  true,
		}, s.FallbackNoticeDelay)
	default:
		// The server answered but rejected the verification outright.
		// That is no outage, so no fallback; the cached snapshot stays
		// for the next attempt.
		s.Log.Warn().Str("status", string(res.Status)).Msg("session verification rejected, resolving to logged out")
		s.Store.MarkReadyUnauthenticated()
	}
}

// installVerified commits a successful verification response: session,
// user mirror, and — for customers — the server-authoritative cart.
// clearMirror distinguishes bootstrap/login (guest cart was merged
// server-side, drop the mirror) from a push resync (no merge happened).
func (s *SessionService) installVerified(ctx context.Context, res *api.VerifyResult, clearMirror bool) {
	if err := s.Users.Save(ctx, res.User); err != nil {
		s.Log.Warn().Err(err).Msg("caching user snapshot failed")
	}
	s.Store.InstallAuthenticated(res.User, res.AccessTokenExp, res.RefreshTokenExp, res.OrderDraftID)

	if res.User != nil && res.User.Role == domain.RoleCustomer {
		s.Cart.InstallServerCart(res.Products, res.CartItems, res.User.Discount)
		if clearMirror {
			s.Cart.ClearMirror(ctx)
		}
	}
	if res.CartWasMerged {
		s.Notices.Publish(notify.Notice{
			Level:   notify.LevelInfo,
			Message: "Items from your guest cart were added to your account cart.",
		})
	}
}

// VerifyAndRefresh ensures the access token outlives the next page load.
// Safe to call on every route transition: a mutex serializes concurrent
// checks so refresh calls never race, and callers block until the check
// of record resolves.
//
// No-op for local-fallback sessions and for tokens still comfortably
// valid. Both tokens spent, or a rejected refresh, force a logout with a
// redirect to login.
func (s *SessionService) VerifyAndRefresh(ctx context.Context) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	sess := s.Store.Session()
	if !sess.Ready {
		return ErrSessionNotReady
	}
	if !sess.IsAuthenticated || sess.IsLocalFallback {
		return nil
	}

	now := s.now()
	if now.Before(sess.AccessTokenExpiresAt.Add(-s.RefreshSkew)) {
		return nil
	}
	if !now.Before(sess.RefreshTokenExpiresAt) {
		s.Log.Info().Msg("both tokens expired, logging out")
		sessionRefreshes.WithLabelValues("expired").Inc()
		s.Logout(ctx, true)
		return ErrSessionExpired
	}

	res, err := s.API.Refresh(ctx)
	if err != nil {
		// Cancelled: no verdict on the session, do not log out.
		return err
	}
	if res.Status == domain.StatusSuccess {
		sessionRefreshes.WithLabelValues("refreshed").Inc()
		s.Store.SetAccessExpiry(res.AccessTokenExp)
		return nil
	}

	s.Log.Info().Str("status", string(res.Status)).Msg("token refresh rejected, logging out")
	sessionRefreshes.WithLabelValues("rejected").Inc()
	s.Logout(ctx, true)
	return ErrSessionExpired
}

// Logout ends the session. Server-side revocation is best effort — the
// client-side logout proceeds regardless of its outcome. The cached user
// is cleared, privileged product-cache fields are purged when the
// outgoing user was privileged, the cart falls back to the guest mirror,
// the route lock is released, and a cross-instance signal is written.
func (s *SessionService) Logout(ctx context.Context, forceRedirectToLogin bool) {
	outgoing := s.Store.Session().User

	if status := s.API.Logout(ctx); status != domain.StatusSuccess {
		s.Log.Warn().Str("status", string(status)).Msg("server-side revocation failed, proceeding with local logout")
	}

	s.localLogout(ctx, outgoing, forceRedirectToLogin)

	at := s.now()
	s.signalMu.Lock()
	s.lastSignal = at
	s.signalMu.Unlock()
	if err := s.Broadcast.WriteLogoutSignal(ctx, at); err != nil {
		s.Log.Warn().Err(err).Msg("writing logout broadcast failed")
	}
}

// HandleLogoutSignal reacts to a logout signal observed in the shared
// store. Signals at or before this instance's own last broadcast are
// dropped: the instance that logged out already ran its local logout,
// possibly with the redirect flag set, and must not redo it.
func (s *SessionService) HandleLogoutSignal(ctx context.Context, at time.Time) {
	s.signalMu.Lock()
	own := !at.After(s.lastSignal)
	s.signalMu.Unlock()
	if own {
		s.Log.Debug().Time("signal", at).Msg("ignoring own logout signal")
		return
	}
	s.HandleRemoteLogout(ctx)
}

// HandleRemoteLogout performs the local half of a logout initiated by
// another instance of the client: no revocation call and no new
// broadcast, everything else identical.
func (s *SessionService) HandleRemoteLogout(ctx context.Context) {
	s.localLogout(ctx, s.Store.Session().User, false)
}

func (s *SessionService) localLogout(ctx context.Context, outgoing *domain.UserSnapshot, force bool) {
	if err := s.Users.Clear(ctx); err != nil {
		s.Log.Warn().Err(err).Msg("clearing cached user failed")
	}
	s.Store.ResetToLoggedOut(force)
	if outgoing.Privileged() {
		s.Store.PurgePrivilegedFields()
	}
	s.Cart.RestoreGuestCart(ctx)
	s.Log.Info().Bool("force_redirect", force).Msg("logged out")
}

// Resync re-runs session verification with the current guest payload so
// authoritative state subsumes any events missed during a push outage.
// On success the managed-orders counter is installed absolutely, which
// advances the resync generation and invalidates deltas captured before
// the outage.
func (s *SessionService) Resync(ctx context.Context) error {
	if !s.Store.Session().Ready {
		return ErrSessionNotReady
	}

	res, err := s.API.VerifySession(ctx, s.Cart.GuestPayload(ctx))
	if err != nil {
		return err
	}
	switch {
	case res.Status == domain.StatusSuccess:
		s.installVerified(ctx, res, false)
		if res.User != nil {
			s.Store.SetManagedOrders(res.User.ManagedActiveOrders)
		}
	case res.Status.Terminal():
		if s.Store.Session().IsAuthenticated {
			s.Log.Info().Str("status", string(res.Status)).Msg("resync found the session revoked")
			s.localLogout(ctx, s.Store.Session().User, true)
		}
	default:
		s.Log.Warn().Str("status", string(res.Status)).Msg("resync failed, keeping current state")
	}
	return nil
}
