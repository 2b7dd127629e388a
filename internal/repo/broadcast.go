// Package repo – cross-instance logout broadcast.
//
// A logout writes a timestamp under a well-known key; every other open
// instance of the client shares the mirror database and polls the key,
// performing its own local logout when a newer timestamp appears. SQLite
// offers no change notification, so the watcher is a polling goroutine.
package repo

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// BroadcastStore reads and writes the logout signal key.
type BroadcastStore struct {
	DB  *gorm.DB
	Log zerolog.Logger
}

// WriteLogoutSignal records the moment of a local logout for other
// instances to observe.
func (s *BroadcastStore) WriteLogoutSignal(ctx context.Context, at time.Time) error {
	return putJSON(ctx, s.DB, KeyLogoutSignal, at.UTC())
}

// LastLogoutSignal returns the most recent signal, or the zero time when
// none (or an unreadable one) exists.
func (s *BroadcastStore) LastLogoutSignal(ctx context.Context) time.Time {
	var at time.Time
	ok, err := getJSON(ctx, s.DB, KeyLogoutSignal, &at)
	if err != nil {
		s.Log.Warn().Err(err).Msg("logout signal unreadable")
		return time.Time{}
	}
	if !ok {
		return time.Time{}
	}
	return at
}

// Watch polls the signal key every interval and invokes fn once per newer
// timestamp observed, passing the signal's timestamp so the handler can
// tell its own write from another instance's. It blocks until ctx is
// done. Signals written before Watch started are ignored: only a logout
// that happens while this instance is running should log it out.
func (s *BroadcastStore) Watch(ctx context.Context, interval time.Duration, fn func(at time.Time)) {
	last := s.LastLogoutSignal(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			at := s.LastLogoutSignal(ctx)
			if at.After(last) {
				last = at
				s.Log.Info().Time("signal", at).Msg("logout signal observed")
				fn(at)
			}
		}
	}
}
