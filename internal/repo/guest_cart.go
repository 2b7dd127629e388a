// Package repo – guest cart mirror.
//
// GuestCartStore persists the unauthenticated cart as a serialized snapshot
// of the full item list. The in-memory cart is the origin on every
// mutation; this store is written through afterwards and read back only at
// startup or after logout.
package repo

import (
	"context"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/storefront-dev/go-shop-client/internal/domain"
)

// GuestCartStore mirrors the guest cart into durable storage.
type GuestCartStore struct {
	DB  *gorm.DB
	Log zerolog.Logger
}

// Save writes through the full cart item list.
func (s *GuestCartStore) Save(ctx context.Context, items []domain.CartItem) error {
	if items == nil {
		items = []domain.CartItem{}
	}
	return putJSON(ctx, s.DB, KeyGuestCart, items)
}

// Load returns the persisted guest cart. A missing or corrupt record
// resolves to an empty list — never an error — so a damaged mirror can
// never block startup.
func (s *GuestCartStore) Load(ctx context.Context) []domain.CartItem {
	var items []domain.CartItem
	ok, err := getJSON(ctx, s.DB, KeyGuestCart, &items)
	if err != nil {
		s.Log.Warn().Err(err).Msg("guest cart mirror unreadable, starting empty")
		return []domain.CartItem{}
	}
	if !ok || items == nil {
		return []domain.CartItem{}
	}
	return items
}

// Clear removes the persisted guest cart, called once its contents have
// been merged into an authenticated cart.
func (s *GuestCartStore) Clear(ctx context.Context) error {
	return deleteKey(ctx, s.DB, KeyGuestCart)
}

// PreparePayload projects the stored items down to wire lines, discarding
// local-only flags.
func (s *GuestCartStore) PreparePayload(ctx context.Context) []domain.CartLine {
	items := s.Load(ctx)
	lines := make([]domain.CartLine, 0, len(items))
	for _, it := range items {
		lines = append(lines, domain.CartLine{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return lines
}
