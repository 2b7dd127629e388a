package repo

import (
	"context"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/storefront-dev/go-shop-client/internal/domain"
)

// UserCacheStore mirrors the last authenticated user snapshot. Bootstrap
// reads it to decide between the guest path and the verify path, and the
// local-fallback session is reconstructed from it when the server is
// unreachable.
type UserCacheStore struct {
	DB  *gorm.DB
	Log zerolog.Logger
}

// Save writes through the user snapshot.
func (s *UserCacheStore) Save(ctx context.Context, u *domain.UserSnapshot) error {
	return putJSON(ctx, s.DB, KeyUser, u)
}

// Load returns the cached user, or nil when no usable snapshot exists.
// A corrupt record is logged and treated as logged-out.
func (s *UserCacheStore) Load(ctx context.Context) *domain.UserSnapshot {
	var u domain.UserSnapshot
	ok, err := getJSON(ctx, s.DB, KeyUser, &u)
	if err != nil {
		s.Log.Warn().Err(err).Msg("cached user unreadable, treating as logged out")
		return nil
	}
	if !ok || u.ID == "" {
		return nil
	}
	return &u
}

// Clear removes the cached user snapshot.
func (s *UserCacheStore) Clear(ctx context.Context) error {
	return deleteKey(ctx, s.DB, KeyUser)
}
