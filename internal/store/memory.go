package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"dashcal/internal/model"
)

var (
	// ErrDuplicateID is returned when a replacement batch reuses an id.
	ErrDuplicateID = errors.New("duplicate event id")
	// ErrMissingID is returned when a replacement batch has an empty id.
	ErrMissingID = errors.New("event id is empty")
)

// SeedFunc produces the startup schedule.
type SeedFunc func() []model.Event

// MemoryStore is the concurrency-safe, in-memory event store. The whole set
// is only ever swapped at once.
type MemoryStore struct {
	mu sync.RWMutex

	events    map[string]model.Event
	version   uint64
	updatedAt time.Time
	seeded    bool

	seed SeedFunc
}

// NewMemoryStore creates an empty store. seed is used by Seed; nil means an
// empty seed list.
func NewMemoryStore(seed SeedFunc) *MemoryStore {
	if seed == nil {
		seed = func() []model.Event { return nil }
	}
	return &MemoryStore{
		events: make(map[string]model.Event),
		seed:   seed,
	}
}

// Seed installs the startup schedule, replacing whatever is stored.
func (s *MemoryStore) Seed() error {
	if err := s.replace(s.seed(), true); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	return nil
}

// ReplaceAll atomically swaps the stored set for events. On error nothing
// changes.
func (s *MemoryStore) ReplaceAll(events []model.Event) error {
	return s.replace(events, false)
}

func (s *MemoryStore) replace(events []model.Event, seeded bool) error {
	next := make(map[string]model.Event, len(events))
	for _, ev := range events {
		if ev.ID == "" {
			return ErrMissingID
		}
		if _, dup := next[ev.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateID, ev.ID)
		}
		next[ev.ID] = ev
	}

	s.mu.Lock()
	s.events = next
	s.seeded = seeded
	s.version++
	s.updatedAt = time.Now()
	s.mu.Unlock()
	return nil
}

// All returns a copy of the stored events ordered by start time, then id.
func (s *MemoryStore) All() []model.Event {
	s.mu.RLock()
	out := make([]model.Event, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Start.Equal(out[j].Start) {
			return out[i].ID < out[j].ID
		}
		return out[i].Start.Before(out[j].Start)
	})
	return out
}

// Len returns the number of stored events.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Version increases with every successful mutation.
func (s *MemoryStore) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// UpdatedAt is the time of the last successful mutation.
func (s *MemoryStore) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}

// Seeded reports whether the current content came from Seed.
func (s *MemoryStore) Seeded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seeded
}
