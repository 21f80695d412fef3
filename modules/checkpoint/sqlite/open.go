// Package sqlite implements a persistent checkpoint.Store on SQLite using
// modernc.org/sqlite (pure Go, no CGO).
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/flemzord/dbpurge/internal/checkpoint"
	_ "modernc.org/sqlite" // SQLite driver registration
)

// Open opens (creating if needed) the checkpoint database described by cfg.
// dataDir is used when cfg.Path is empty. The caller must Close the store.
//
// The database uses a single connection (SQLite serialises writes), so a
// read-compare-write inside Set is atomic across goroutines.
func Open(ctx context.Context, cfg Config, dataDir string) (*Store, error) {
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	path := cfg.Path
	if path == "" {
		path = filepath.Join(dataDir, defaultDBFile)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("sqlite: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if cfg.walEnabled() {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: enable WAL: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", cfg.BusyTimeout)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: set busy_timeout: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = checkpoint.DefaultTTL
	}
	return newStore(db, ttl), nil
}
