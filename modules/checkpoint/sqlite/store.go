package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/flemzord/dbpurge/internal/checkpoint"
)

// Store is a checkpoint.Store persisted in SQLite.
type Store struct {
	db  *sql.DB
	ttl time.Duration

	// now is injectable for testing. Defaults to time.Now.
	now func() time.Time
}

var _ checkpoint.Store = (*Store)(nil)

func newStore(db *sql.DB, ttl time.Duration) *Store {
	return &Store{db: db, ttl: ttl, now: time.Now}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get implements checkpoint.Store.
func (s *Store) Get(ctx context.Context, kind checkpoint.Kind) (*checkpoint.State, error) {
	var blob string
	err := s.db.QueryRowContext(ctx,
		"SELECT state FROM checkpoints WHERE kind = ? AND expires_at > ?",
		string(kind), s.now().UnixNano(),
	).Scan(&blob)
	return s.decode(blob, err)
}

// Current implements checkpoint.Store.
func (s *Store) Current(ctx context.Context) (*checkpoint.State, error) {
	var blob string
	err := s.db.QueryRowContext(ctx, `
		SELECT state FROM checkpoints
		WHERE expires_at > ?
		ORDER BY updated_at DESC
		LIMIT 1`,
		s.now().UnixNano(),
	).Scan(&blob)
	return s.decode(blob, err)
}

func (s *Store) decode(blob string, err error) (*checkpoint.State, error) {
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, checkpoint.ErrNotFound
		}
		return nil, fmt.Errorf("sqlite: read checkpoint: %w", err)
	}
	return checkpoint.Decode([]byte(blob))
}

// Set implements checkpoint.Store.
func (s *Store) Set(ctx context.Context, st *checkpoint.State) error {
	now := s.now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin set tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		stored    uint64
		token     string
		expiresAt int64
	)
	err = tx.QueryRowContext(ctx,
		"SELECT version, token, expires_at FROM checkpoints WHERE kind = ?", string(st.Kind),
	).Scan(&stored, &token, &expiresAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		stored = 0
	case err != nil:
		return fmt.Errorf("sqlite: read version: %w", err)
	case expiresAt <= now.UnixNano():
		stored = 0
	case token != st.Token:
		return checkpoint.ErrVersionConflict
	}
	if stored != st.Version {
		return checkpoint.ErrVersionConflict
	}

	next := st.Clone()
	next.Version = st.Version + 1
	next.UpdatedAt = now
	blob, err := next.Encode()
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO checkpoints (kind, token, state, version, updated_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		string(st.Kind), st.Token, string(blob), next.Version, now.UnixNano(), now.Add(s.ttl).UnixNano(),
	); err != nil {
		return fmt.Errorf("sqlite: write checkpoint: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit checkpoint: %w", err)
	}

	st.Version = next.Version
	st.UpdatedAt = now
	return nil
}

// DeleteAll implements checkpoint.Store.
func (s *Store) DeleteAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM checkpoints"); err != nil {
		return fmt.Errorf("sqlite: delete checkpoints: %w", err)
	}
	return nil
}

// Sweep implements checkpoint.Store.
func (s *Store) Sweep(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM checkpoints WHERE expires_at <= ?", s.now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("sqlite: sweep checkpoints: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: sweep rows affected: %w", err)
	}
	return int(n), nil
}
