// Package repo implements the durable client-side storage layer, backed
// by GORM over SQLite (pure Go driver). The store is a key→JSON mirror of
// state the client must survive a restart with: the guest cart, the cached
// user snapshot, and the cross-instance logout signal. It is a write-through
// mirror, never a second source of truth — the in-memory state store is
// always the origin of every write.
package repo

import (
	"os"
	"path/filepath"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// Record is one durable key→JSON entry. Value holds the serialized
// snapshot; corrupt values are tolerated at read time (logged, treated as
// absent), never fatal.
type Record struct {
	Key       string `gorm:"type:varchar(64);primaryKey"`
	Value     string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

// TableName returns the database table name for Record.
func (Record) TableName() string { return "client_records" }

// Well-known record keys.
const (
	// KeyGuestCart mirrors the unauthenticated cart item list.
	KeyGuestCart = "guestCart"
	// KeyUser mirrors the last authenticated user snapshot.
	KeyUser = "user"
	// KeyLogoutSignal holds a timestamp written at logout so other open
	// instances of the client observe it and log out as well.
	KeyLogoutSignal = "logoutBroadcast"
)

// OpenSQLite opens (or creates) the local mirror database and applies
// PRAGMAs suited to a single client process.
func OpenSQLite(path string) (*gorm.DB, error) {
	// Fail early if parent directory does not exist (instead of sqlite "out of memory (14)" on Windows).
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	// PRAGMAs
	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")
	db.Exec("PRAGMA busy_timeout=5000;")

	// Pool: the mirror sees a handful of single-row operations, but the
	// broadcast watcher polls from its own goroutine.
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(4)
		sqlDB.SetMaxIdleConns(4)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	}

	return db, nil
}

// AutoMigrate creates or updates the mirror schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Record{})
}
