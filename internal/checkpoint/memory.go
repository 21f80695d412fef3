package checkpoint

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	data      []byte
	token     string
	version   uint64
	updatedAt time.Time
}

// MemoryStore is an in-process Store. Blobs are kept serialized so callers
// never share memory with the stored copy.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[Kind]memEntry
	ttl     time.Duration

	// now is injectable for testing. Defaults to time.Now.
	now func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a store whose entries expire ttl after their last
// write. A non-positive ttl uses DefaultTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		entries: make(map[Kind]memEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// SetClock replaces the time source. Only for testing.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) live(e memEntry) bool {
	return s.now().Sub(e.updatedAt) < s.ttl
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, kind Kind) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[kind]
	if !ok || !s.live(e) {
		return nil, ErrNotFound
	}
	return Decode(e.data)
}

// Current implements Store.
func (s *MemoryStore) Current(_ context.Context) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *memEntry
	for _, e := range s.entries {
		if !s.live(e) {
			continue
		}
		if latest == nil || e.updatedAt.After(latest.updatedAt) {
			latest = &e
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return Decode(latest.data)
}

// Set implements Store.
func (s *MemoryStore) Set(_ context.Context, st *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stored uint64
	if e, ok := s.entries[st.Kind]; ok && s.live(e) {
		if e.token != st.Token {
			return ErrVersionConflict
		}
		stored = e.version
	}
	if stored != st.Version {
		return ErrVersionConflict
	}

	next := st.Clone()
	next.Version = st.Version + 1
	next.UpdatedAt = s.now()
	data, err := next.Encode()
	if err != nil {
		return err
	}

	s.entries[st.Kind] = memEntry{data: data, token: st.Token, version: next.Version, updatedAt: next.UpdatedAt}
	st.Version = next.Version
	st.UpdatedAt = next.UpdatedAt
	return nil
}

// DeleteAll implements Store.
func (s *MemoryStore) DeleteAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[Kind]memEntry)
	return nil
}

// Sweep implements Store.
func (s *MemoryStore) Sweep(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	for k, e := range s.entries {
		if !s.live(e) {
			delete(s.entries, k)
			n++
		}
	}
	return n, nil
}
