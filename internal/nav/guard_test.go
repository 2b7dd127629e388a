package nav

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/storefront-dev/go-shop-client/internal/api"
	"github.com/storefront-dev/go-shop-client/internal/domain"
	"github.com/storefront-dev/go-shop-client/internal/services"
	"github.com/storefront-dev/go-shop-client/internal/state"
)

type fakeChecker struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context) error
}

func (f *fakeChecker) VerifyAndRefresh(ctx context.Context) error {
	f.mu.Lock()
	f.calls++
	fn := f.fn
	f.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

func newGuard(store *state.Store, checker *fakeChecker) *Guard {
	return &Guard{
		Store:       store,
		Cancels:     api.NewCancelRegistry(),
		Session:     checker,
		Log:         zerolog.Nop(),
		OrdersRoute: "/account/orders",
		LoginRoute:  "/login",
	}
}

func authStore() *state.Store {
	store := state.NewStore()
	store.InstallAuthenticated(&domain.UserSnapshot{ID: "u1", Role: domain.RoleCustomer},
		time.Now().Add(time.Hour), time.Now().Add(time.Hour), "")
	return store
}

func TestBeforeRouteChange_CancelsPreviousRequests(t *testing.T) {
	store := state.NewStore()
	store.MarkReadyUnauthenticated()
	checker := &fakeChecker{}
	g := newGuard(store, checker)

	ctx, release := g.Cancels.Track(context.Background())
	defer release()

	d := g.BeforeRouteChange(context.Background(), "/catalog")
	if !d.Allowed {
		t.Fatalf("decision = %+v; want allowed", d)
	}
	select {
	case <-ctx.Done():
	default:
		t.Fatal("the previous route's tracked context must be cancelled")
	}
	if checker.calls != 0 {
		t.Fatal("unauthenticated transitions must not run the session check")
	}
	if store.UIBlocked() {
		t.Fatal("unauthenticated transitions must not block the UI")
	}
	if store.Route() != "/catalog" {
		t.Fatalf("route = %q", store.Route())
	}
}

func TestBeforeRouteChange_BlocksDuringCheckAndUnblocks(t *testing.T) {
	store := authStore()
	var blockedDuringCheck bool
	checker := &fakeChecker{}
	checker.fn = func(context.Context) error {
		blockedDuringCheck = store.UIBlocked()
		return nil
	}
	g := newGuard(store, checker)

	d := g.BeforeRouteChange(context.Background(), "/catalog")
	if !d.Allowed {
		t.Fatalf("decision = %+v; want allowed", d)
	}
	if !blockedDuringCheck {
		t.Fatal("UI must be blocked while the session check runs")
	}
	if store.UIBlocked() {
		t.Fatal("UI must be unblocked after the check")
	}
}

func TestBeforeRouteChange_UnblocksWhenCheckPanics(t *testing.T) {
	store := authStore()
	checker := &fakeChecker{fn: func(context.Context) error { panic("check bug") }}
	g := newGuard(store, checker)

	d := g.BeforeRouteChange(context.Background(), "/catalog")
	if !d.Allowed {
		t.Fatalf("decision = %+v; a broken check must fail open", d)
	}
	if store.UIBlocked() {
		t.Fatal("UI must never stay blocked after a panicking check")
	}
}

func TestBeforeRouteChange_ExpiredSessionRedirectsToLogin(t *testing.T) {
	store := authStore()
	checker := &fakeChecker{fn: func(context.Context) error {
		store.ResetToLoggedOut(true) // what SessionService.Logout does
		return services.ErrSessionExpired
	}}
	g := newGuard(store, checker)

	d := g.BeforeRouteChange(context.Background(), "/catalog")
	if d.Allowed || d.RedirectTo != "/login" {
		t.Fatalf("decision = %+v; want a login redirect", d)
	}
	if store.UIBlocked() {
		t.Fatal("UI must be unblocked")
	}
}

func TestBeforeRouteChange_SuppressedRedirectFailsOpen(t *testing.T) {
	store := authStore()
	checker := &fakeChecker{fn: func(context.Context) error {
		store.ResetToLoggedOut(true)
		store.SetSuppressRedirect(true)
		return services.ErrSessionExpired
	}}
	g := newGuard(store, checker)

	d := g.BeforeRouteChange(context.Background(), "/catalog")
	if !d.Allowed || d.RedirectTo != "" {
		t.Fatalf("decision = %+v; suppressed redirects handle auth inline", d)
	}
}

func TestBeforeRouteChange_OrdersRouteResetsPageCounter(t *testing.T) {
	store := authStore()
	store.BumpPageCounter(4)
	g := newGuard(store, &fakeChecker{})

	g.BeforeRouteChange(context.Background(), "/account/orders")
	if store.PageCounter() != 0 {
		t.Fatalf("page counter = %d; entering the orders route must reset it", store.PageCounter())
	}
}

func TestRouteLock_RejectsDeparturesAndResumesFirstTarget(t *testing.T) {
	store := authStore()
	g := newGuard(store, &fakeChecker{})
	now := time.Now()
	g.Now = func() time.Time { return now }

	g.LockRoute("/checkout", time.Minute)

	if d := g.BeforeRouteChange(context.Background(), "/cart"); d.Allowed {
		t.Fatal("departure from a locked route must be rejected")
	}
	if d := g.BeforeRouteChange(context.Background(), "/home"); d.Allowed {
		t.Fatal("second departure must also be rejected")
	}
	if d := g.BeforeRouteChange(context.Background(), "/checkout"); !d.Allowed {
		t.Fatal("navigating to the locked path itself stays allowed")
	}

	if resume := g.Unlock(); resume != "/cart" {
		t.Fatalf("resume = %q; only the first rejected destination is remembered", resume)
	}
}

func TestRouteLock_ExpiresOnItsOwn(t *testing.T) {
	store := authStore()
	g := newGuard(store, &fakeChecker{})
	now := time.Now()
	g.Now = func() time.Time { return now }

	g.LockRoute("/checkout", time.Minute)
	now = now.Add(2 * time.Minute)

	if d := g.BeforeRouteChange(context.Background(), "/cart"); !d.Allowed {
		t.Fatal("an expired lock must not reject departures")
	}
}

func TestBeforeRouteChange_NewerTransitionOwnsTheBlockFlag(t *testing.T) {
	store := authStore()

	var mu sync.Mutex
	var gates []chan struct{}
	started := make(chan struct{}, 2)
	checker := &fakeChecker{}
	checker.fn = func(context.Context) error {
		gate := make(chan struct{})
		mu.Lock()
		gates = append(gates, gate)
		mu.Unlock()
		started <- struct{}{}
		<-gate
		return nil
	}
	g := newGuard(store, checker)

	decisions := make(chan Decision, 2)
	go func() { decisions <- g.BeforeRouteChange(context.Background(), "/a") }()
	<-started
	go func() { decisions <- g.BeforeRouteChange(context.Background(), "/b") }()
	<-started

	mu.Lock()
	first, second := gates[0], gates[1]
	mu.Unlock()

	close(first)
	d := <-decisions
	if d.Allowed {
		t.Fatalf("decision = %+v; a superseded transition must not proceed", d)
	}
	if !store.UIBlocked() {
		t.Fatal("the superseded transition must not unblock the newer one's UI")
	}

	close(second)
	d = <-decisions
	if !d.Allowed {
		t.Fatalf("decision = %+v; the transition of record proceeds", d)
	}
	if store.UIBlocked() {
		t.Fatal("UI must be unblocked once the transition of record resolves")
	}
}
