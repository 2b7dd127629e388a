// Package services – CartService
//
// CartService owns every cart write: single-line upserts, installation of
// server-confirmed cart state at login, and reconciliation of the cart
// against fresher product data. The two reconciliation modes differ on
// purpose: a guest cart silently self-heals (drop or clamp the line),
// while an authenticated cart only flags drift and leaves quantities for
// the customer to resolve explicitly.
package services

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/storefront-dev/go-shop-client/internal/domain"
	"github.com/storefront-dev/go-shop-client/internal/state"
)

// GuestCartMirror is the durable write-through mirror used for the
// unauthenticated cart (see repo.GuestCartStore).
type GuestCartMirror interface {
	// Save writes through the full cart item list.
	Save(ctx context.Context, items []domain.CartItem) error

	// Load returns the persisted guest cart; tolerant of corruption.
	Load(ctx context.Context) []domain.CartItem

	// Clear removes the persisted guest cart after a server-side merge.
	Clear(ctx context.Context) error

	// PreparePayload projects the stored items down to wire lines.
	PreparePayload(ctx context.Context) []domain.CartLine
}

// cartDrift counts reconciliation outcomes by kind and mode.
var cartDrift = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cart_reconcile_drift_total",
		Help: "Cart lines dropped, clamped, or flagged during reconciliation.",
	},
	[]string{"mode", "kind"},
)

func init() {
	prometheus.MustRegister(cartDrift)
}

// CartService coordinates cart state between the in-memory store and the
// guest mirror.
type CartService struct {
	Store  *state.Store
	Mirror GuestCartMirror
	Log    zerolog.Logger
}

// NewCartService constructs a CartService.
func NewCartService(store *state.Store, mirror GuestCartMirror, log zerolog.Logger) *CartService {
	return &CartService{Store: store, Mirror: mirror, Log: log}
}

// SetItem inserts or updates a cart line (quantity > 0) or removes it
// (quantity <= 0). Totals are always recomputed; in guest mode the mirror
// is written through afterwards.
func (s *CartService) SetItem(ctx context.Context, productID string, quantity int) error {
	if s.Store.MutationDisabled() {
		return ErrMutationDisabled
	}
	items := s.Store.SetItem(productID, quantity)
	s.persistGuest(ctx, items)
	return nil
}

// UnsetItem removes the line for productID.
func (s *CartService) UnsetItem(ctx context.Context, productID string) error {
	return s.SetItem(ctx, productID, 0)
}

// InstallServerCart atomically replaces the cart with the
// server-authoritative state returned at login: product snapshots and
// cart lines are installed before totals are derived.
func (s *CartService) InstallServerCart(products []domain.ProductSnapshot, items []domain.CartItem, discount float64) {
	s.Store.ApplyCartState(products, items, discount)
}

// InstallGuestProducts merges fresh product snapshots for the guest cart
// and recomputes totals.
func (s *CartService) InstallGuestProducts(products []domain.ProductSnapshot) {
	s.Store.UpsertProducts(products)
	s.Store.RecomputeTotals()
}

// RestoreGuestCart re-establishes the cart from the durable mirror (or
// empties it), called at startup and after logout.
func (s *CartService) RestoreGuestCart(ctx context.Context) {
	s.Store.ReplaceCart(s.Mirror.Load(ctx))
}

// GuestPayload returns the wire projection of the mirrored guest cart.
func (s *CartService) GuestPayload(ctx context.Context) []domain.CartLine {
	return s.Mirror.PreparePayload(ctx)
}

// ClearMirror drops the mirrored guest cart once it has been merged into
// an authenticated cart.
func (s *CartService) ClearMirror(ctx context.Context) {
	if err := s.Mirror.Clear(ctx); err != nil {
		s.Log.Warn().Err(err).Msg("clearing merged guest cart mirror failed")
	}
}

// Reconcile applies a fresher product list to the cart.
//
// Guest mode: a line whose product went inactive or out of stock is
// dropped; a line exceeding reduced-but-nonzero stock is clamped. Any
// drop or clamp forces a totals recompute and a mirror persist.
//
// Authenticated mode: lines are never resized or dropped. Stock drift
// toggles QuantityReduced/OutOfStock, activity drift toggles Inactive,
// and a previously deleted product that is purchasable again clears
// Deleted. Totals are recomputed only when a price or discount actually
// changed; flag churn alone leaves them untouched.
//
// Products absent from latest are untouched: the list may be partial and
// absence proves nothing.
func (s *CartService) Reconcile(ctx context.Context, latest []domain.ProductSnapshot) {
	byID := make(map[string]domain.ProductSnapshot, len(latest))
	priceChanged := false
	cached := s.Store.Products()
	for _, p := range latest {
		byID[p.ID] = p
		if old, ok := cached[p.ID]; !ok || old.PriceChanged(p) {
			priceChanged = true
		}
	}
	s.Store.UpsertProducts(latest)

	if s.Store.Session().IsAuthenticated {
		s.reconcileAuthenticated(byID, priceChanged)
		return
	}
	s.reconcileGuest(ctx, byID, priceChanged)
}

func (s *CartService) reconcileGuest(ctx context.Context, byID map[string]domain.ProductSnapshot, priceChanged bool) {
	drifted := false
	items := s.Store.MutateItems(func(items []domain.CartItem, _ map[string]domain.ProductSnapshot) []domain.CartItem {
		out := items[:0]
		for _, it := range items {
			p, ok := byID[it.ProductID]
			if !ok {
				out = append(out, it)
				continue
			}
			if !p.IsActive || p.Available == 0 {
				drifted = true
				cartDrift.WithLabelValues("guest", "dropped").Inc()
				s.Log.Info().Str("product_id", it.ProductID).Msg("guest cart line dropped by reconcile")
				continue
			}
			if p.Available < it.Quantity {
				drifted = true
				cartDrift.WithLabelValues("guest", "clamped").Inc()
				s.Log.Info().Str("product_id", it.ProductID).
					Int("from", it.Quantity).Int("to", p.Available).
					Msg("guest cart line clamped by reconcile")
				it.Quantity = p.Available
			}
			out = append(out, it)
		}
		return out
	}, priceChanged)

	// A drop or clamp found during the pass owes its own recompute.
	if drifted && !priceChanged {
		s.Store.RecomputeTotals()
	}
	if drifted {
		s.persistGuest(ctx, items)
	}
}

func (s *CartService) reconcileAuthenticated(byID map[string]domain.ProductSnapshot, priceChanged bool) {
	flagged := 0
	s.Store.MutateItems(func(items []domain.CartItem, _ map[string]domain.ProductSnapshot) []domain.CartItem {
		for i := range items {
			p, ok := byID[items[i].ProductID]
			if !ok {
				continue
			}
			f := items[i].Flags
			if p.Available < items[i].Quantity {
				f.QuantityReduced = true
				f.OutOfStock = p.Available == 0
			} else {
				f.QuantityReduced = false
				f.OutOfStock = false
			}
			f.Inactive = !p.IsActive
			if f.Deleted && p.IsActive && p.Available > 0 {
				f.Deleted = false
			}
			if f != items[i].Flags {
				flagged++
			}
			items[i].Flags = f
		}
		return items
	}, priceChanged)
	if flagged > 0 {
		cartDrift.WithLabelValues("authenticated", "flagged").Add(float64(flagged))
	}
}

// persistGuest writes the cart through to the mirror when the session is
// unauthenticated. Mirror failures are logged, never fatal: the in-memory
// cart is the origin and keeps working.
func (s *CartService) persistGuest(ctx context.Context, items []domain.CartItem) {
	if s.Store.Session().IsAuthenticated {
		return
	}
	if err := s.Mirror.Save(ctx, items); err != nil {
		s.Log.Warn().Err(err).Msg("guest cart write-through failed")
	}
}
