package state

import (
	"sync"
	"time"

	"github.com/storefront-dev/go-shop-client/internal/domain"
)

// RouteLock pins navigation to a single path until a deadline, holding at
// most one "resume here after unlock" target (first rejected destination
// wins).
type RouteLock struct {
	Path   string
	Until  time.Time
	Resume string
}

// Store is the single state container. Construct with NewStore; the zero
// value is not usable.
type Store struct {
	mu sync.RWMutex

	session domain.Session

	items    []domain.CartItem
	products map[string]domain.ProductSnapshot
	discount float64
	totals   domain.CartTotals

	mutationDisabled bool

	route       string
	uiBlocked   bool
	pageCounter int

	lock    *RouteLock
	syncGen uint64
}

// NewStore returns an idle store: session not ready, empty cart.
func NewStore() *Store {
	return &Store{products: map[string]domain.ProductSnapshot{}}
}

// ---- session ----

// Session returns a copy of the current session snapshot. The embedded
// user pointer is cloned so readers can never observe a partial write.
func (s *Store) Session() domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess := s.session
	if sess.User != nil {
		u := *sess.User
		sess.User = &u
	}
	return sess
}

// InstallAuthenticated installs a server-confirmed session. Successful
// re-authentication clears the sticky ForceRedirectToLogin flag and
// re-enables mutation.
func (s *Store) InstallAuthenticated(u *domain.UserSnapshot, accessExp, refreshExp time.Time, orderDraftID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = domain.Session{
		Ready:                 true,
		IsAuthenticated:       true,
		User:                  u,
		AccessTokenExpiresAt:  accessExp,
		RefreshTokenExpiresAt: refreshExp,
		OrderDraftID:          orderDraftID,
	}
	s.mutationDisabled = false
}

// InstallFallback installs a degraded session reconstructed from cached
// user data. Mutation of account-tracked state is disabled until a real
// session replaces it.
func (s *Store) InstallFallback(u *domain.UserSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	force := s.session.ForceRedirectToLogin
	s.session = domain.Session{
		Ready:                true,
		IsAuthenticated:      true,
		IsLocalFallback:      true,
		User:                 u,
		ForceRedirectToLogin: force,
	}
	s.mutationDisabled = true
}

// MarkReadyUnauthenticated resolves the session to logged-out and ready.
// Idempotent: marking an already-ready session again is a no-op on the
// Ready flag, so every bootstrap code path can call it safely.
func (s *Store) MarkReadyUnauthenticated() {
	s.mu.Lock()
	defer s.mu.Unlock()
	force := s.session.ForceRedirectToLogin
	s.session = domain.Session{Ready: true, ForceRedirectToLogin: force}
	s.mutationDisabled = false
}

// ResetToLoggedOut clears the session after logout. forceRedirect sets
// the sticky redirect flag; the route lock is released as part of the
// same transition.
func (s *Store) ResetToLoggedOut(forceRedirect bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = domain.Session{Ready: true, ForceRedirectToLogin: forceRedirect}
	s.mutationDisabled = false
	s.lock = nil
}

// SetAccessExpiry installs a refreshed access-token expiry.
func (s *Store) SetAccessExpiry(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.AccessTokenExpiresAt = t
}

// SetSuppressRedirect toggles redirect suppression for flows that handle
// authentication failures inline.
func (s *Store) SetSuppressRedirect(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.SuppressRedirect = v
}

// ---- privileged counters ----

// SyncGeneration returns the current resync generation. A counter delta
// captured under one generation is rejected once a resync has installed
// an absolute value under the next.
func (s *Store) SyncGeneration() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.syncGen
}

// AdjustManagedOrders applies an additive delta to the privileged
// active-order counter. The delta is dropped (returning false) when the
// session has no user or when gen no longer matches the store's resync
// generation, so a stale delta can never move the counter backwards
// across a resync boundary.
func (s *Store) AdjustManagedOrders(delta int, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session.User == nil || gen != s.syncGen {
		return false
	}
	u := *s.session.User
	u.ManagedActiveOrders += delta
	s.session.User = &u
	return true
}

// SetManagedOrders installs a server-confirmed absolute counter value and
// advances the resync generation.
func (s *Store) SetManagedOrders(abs int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncGen++
	if s.session.User == nil {
		return
	}
	u := *s.session.User
	u.ManagedActiveOrders = abs
	s.session.User = &u
}

// ---- cart / products ----

// ApplyCartState atomically replaces product snapshots, the cart item
// list, and the discount rate, then recomputes totals. The ordering is
// mandatory: cache and cart are installed before totals are derived, all
// under one critical section.
func (s *Store) ApplyCartState(products []domain.ProductSnapshot, items []domain.CartItem, discount float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = make(map[string]domain.ProductSnapshot, len(products))
	for _, p := range products {
		s.products[p.ID] = p
	}
	s.items = append([]domain.CartItem(nil), items...)
	s.discount = discount
	s.totals = ComputeTotals(s.items, s.products, s.discount)
}

// Items returns a copy of the cart lines.
func (s *Store) Items() []domain.CartItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.CartItem(nil), s.items...)
}

// Products returns a copy of the product cache.
func (s *Store) Products() map[string]domain.ProductSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]domain.ProductSnapshot, len(s.products))
	for k, v := range s.products {
		out[k] = v
	}
	return out
}

// Product looks up a single cached snapshot.
func (s *Store) Product(id string) (domain.ProductSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	return p, ok
}

// Discount returns the current account discount rate.
func (s *Store) Discount() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.discount
}

// Totals returns the current derived totals.
func (s *Store) Totals() domain.CartTotals {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totals
}

// SetItem inserts or updates the line for productID (quantity > 0) or
// removes it (quantity <= 0), then recomputes totals. Returns the
// resulting cart lines for write-through persistence.
func (s *Store) SetItem(productID string, quantity int) []domain.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	if quantity <= 0 {
		s.removeLocked(productID)
	} else {
		found := false
		for i := range s.items {
			if s.items[i].ProductID == productID {
				s.items[i].Quantity = quantity
				found = true
				break
			}
		}
		if !found {
			s.items = append(s.items, domain.CartItem{ProductID: productID, Quantity: quantity})
		}
	}
	s.totals = ComputeTotals(s.items, s.products, s.discount)
	return append([]domain.CartItem(nil), s.items...)
}

// RemoveItem drops the line for productID and recomputes totals.
func (s *Store) RemoveItem(productID string) []domain.CartItem {
	return s.SetItem(productID, 0)
}

func (s *Store) removeLocked(productID string) {
	for i := range s.items {
		if s.items[i].ProductID == productID {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return
		}
	}
}

// MutateItems runs fn over the cart lines under the lock, installs the
// result, upserts any product snapshots fn returned alongside, and
// recomputes totals when recompute is true. Used by reconciliation so the
// whole drift pass is one atomic write.
func (s *Store) MutateItems(fn func(items []domain.CartItem, products map[string]domain.ProductSnapshot) []domain.CartItem, recompute bool) []domain.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = fn(append([]domain.CartItem(nil), s.items...), s.products)
	if recompute {
		s.totals = ComputeTotals(s.items, s.products, s.discount)
	}
	return append([]domain.CartItem(nil), s.items...)
}

// ReplaceCart installs a new cart line list, keeping the product cache,
// and recomputes totals.
func (s *Store) ReplaceCart(items []domain.CartItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append([]domain.CartItem(nil), items...)
	s.totals = ComputeTotals(s.items, s.products, s.discount)
}

// UpsertProducts merges fresher product snapshots into the cache without
// touching totals; callers recompute explicitly when a totals input
// actually changed.
func (s *Store) UpsertProducts(products []domain.ProductSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range products {
		s.products[p.ID] = p
	}
}

// RecomputeTotals re-derives totals from current state.
func (s *Store) RecomputeTotals() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totals = ComputeTotals(s.items, s.products, s.discount)
}

// PurgePrivilegedFields strips privileged-only product data from the
// cache, called when a privileged user logs out.
func (s *Store) PurgePrivilegedFields() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.products {
		p.WholesalePrice = 0
		s.products[id] = p
	}
}

// MutationDisabled reports whether account-tracked writes are disabled
// (local-fallback mode).
func (s *Store) MutationDisabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mutationDisabled
}

// ---- route / UI coordination ----

// SetRoute records the current route.
func (s *Store) SetRoute(r string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.route = r
}

// Route returns the current route.
func (s *Store) Route() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.route
}

// SetUIBlocked toggles the interaction-blocked flag. The previous page's
// content stays rendered while blocked; this flag gates input only.
func (s *Store) SetUIBlocked(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uiBlocked = v
}

// UIBlocked reports whether interaction is currently blocked.
func (s *Store) UIBlocked() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.uiBlocked
}

// BumpPageCounter adds to the page-local "new since reset" counter.
func (s *Store) BumpPageCounter(delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pageCounter += delta
}

// ResetPageCounter zeroes the page-local counter (entering the page that
// displays it).
func (s *Store) ResetPageCounter() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pageCounter = 0
}

// PageCounter returns the page-local counter.
func (s *Store) PageCounter() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pageCounter
}

// ---- route lock ----

// LockRoute pins navigation to path until the deadline, replacing any
// existing lock.
func (s *Store) LockRoute(path string, until time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lock = &RouteLock{Path: path, Until: until}
}

// LockedRoute returns the active lock. An expired lock is released on
// observation.
func (s *Store) LockedRoute(now time.Time) (RouteLock, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lock == nil {
		return RouteLock{}, false
	}
	if now.After(s.lock.Until) {
		s.lock = nil
		return RouteLock{}, false
	}
	return *s.lock, true
}

// RememberResumeTarget records the first rejected destination while
// locked; later rejections do not overwrite it.
func (s *Store) RememberResumeTarget(to string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lock != nil && s.lock.Resume == "" {
		s.lock.Resume = to
	}
}

// Unlock releases the lock and returns the remembered resume target, if
// any.
func (s *Store) Unlock() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lock == nil {
		return ""
	}
	resume := s.lock.Resume
	s.lock = nil
	return resume
}
