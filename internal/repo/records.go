// Package repo – key→JSON record helpers.
//
// All functions are context-aware and accept a *gorm.DB handle, following
// the thin-repository approach: no business logic, only serialization and
// single-row persistence. Higher-level stores (GuestCartStore,
// UserCacheStore, BroadcastStore) wrap these with their read-tolerance
// policies.
package repo

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// putJSON serializes v and upserts it under key.
func putJSON(ctx context.Context, db *gorm.DB, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	rec := Record{Key: key, Value: string(raw), UpdatedAt: time.Now().UTC()}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&rec).Error
}

// getJSON loads the record under key into v. Returns (false, nil) when the
// key is absent and a decode error when the stored value is corrupt; the
// caller decides how tolerant to be.
func getJSON(ctx context.Context, db *gorm.DB, key string, v any) (bool, error) {
	var rec Record
	err := db.WithContext(ctx).First(&rec, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(rec.Value), v); err != nil {
		return false, err
	}
	return true, nil
}

// deleteKey removes the record under key. Missing keys are not an error.
func deleteKey(ctx context.Context, db *gorm.DB, key string) error {
	return db.WithContext(ctx).Delete(&Record{}, "key = ?", key).Error
}
