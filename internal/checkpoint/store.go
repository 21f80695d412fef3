package checkpoint

import (
	"context"
	"errors"
	"time"
)

const (
	// DefaultTTL bounds the lifetime of a checkpoint since its last write.
	DefaultTTL = time.Hour

	// ServiceName is the AppContext service under which the configured
	// checkpoint module publishes its Store.
	ServiceName = "checkpoint.store"
)

// Sentinel errors for checkpoint operations.
var (
	// ErrNotFound indicates no live checkpoint exists.
	ErrNotFound = errors.New("checkpoint: not found")

	// ErrVersionConflict indicates the stored checkpoint changed since the
	// caller read it (or was deleted).
	ErrVersionConflict = errors.New("checkpoint: version conflict")

	// ErrCorrupt indicates a stored blob could not be decoded.
	ErrCorrupt = errors.New("checkpoint: corrupt state")
)

// Store persists job states keyed by kind. Every write replaces the whole
// blob and refreshes its TTL. Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the live state stored for kind.
	Get(ctx context.Context, kind Kind) (*State, error)

	// Current returns the most recently written live state of any kind.
	Current(ctx context.Context) (*State, error)

	// Set replaces the state for st.Kind if the stored entry carries the
	// same token and its version equals st.Version (an absent entry counts
	// as version 0). On success
	// st.Version and st.UpdatedAt are updated in place.
	Set(ctx context.Context, st *State) error

	// DeleteAll removes every stored state.
	DeleteAll(ctx context.Context) error

	// Sweep removes expired states and returns how many were dropped.
	Sweep(ctx context.Context) (int, error)
}
