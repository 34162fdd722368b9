// Package memstore provides an in-memory observation store with the same
// interface and semantics as the PostgreSQL repository. Used for local
// development and handler tests.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/jonboulle/clockwork"

	"observatory/internal/observations"
	"observatory/internal/types"
)

// Store is a mutex-guarded map of observations keyed by ID. IDs are assigned
// from a monotonically increasing counter, matching the serial column of the
// Postgres backend.
type Store struct {
	mu      sync.RWMutex
	records map[int64]*types.Observation
	nextID  int64
	clock   clockwork.Clock
}

// New creates an empty store. A nil clock selects the real clock.
func New(clock clockwork.Clock) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{
		records: make(map[int64]*types.Observation),
		nextID:  1,
		clock:   clock,
	}
}

// Create assigns an ID and timestamps and stores a copy of the observation.
func (s *Store) Create(ctx context.Context, o *types.Observation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.create(o)
	return nil
}

// create inserts under an already-held lock.
func (s *Store) create(o *types.Observation) {
	now := s.clock.Now().UTC()
	o.ID = s.nextID
	s.nextID++
	o.CreatedAt = now
	o.UpdatedAt = now
	s.records[o.ID] = o.Clone()
}

// CreateBatch stores every observation in the batch under a single lock.
func (s *Store) CreateBatch(ctx context.Context, batch []*types.Observation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range batch {
		s.create(o)
	}
	return nil
}

// GetByID returns a copy of the observation, or ErrCodeNotFoundObservation.
func (s *Store) GetByID(ctx context.Context, id int64) (*types.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.records[id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundObservation, "observation not found", nil)
	}
	return o.Clone(), nil
}

// List returns copies of all observations matching the query, ordered by ID.
func (s *Store) List(ctx context.Context, q types.ObservationQuery) ([]*types.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*types.Observation, 0, len(s.records))
	for _, o := range s.records {
		all = append(all, o)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	matched := observations.Filter(all, q)
	out := make([]*types.Observation, len(matched))
	for i, o := range matched {
		out[i] = o.Clone()
	}
	return out, nil
}

// Update replaces the stored record's mutable fields and refreshes
// updated_at. Returns ErrCodeNotFoundObservation when the ID is unknown.
func (s *Store) Update(ctx context.Context, o *types.Observation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[o.ID]
	if !ok {
		return types.NewAppError(types.ErrCodeNotFoundObservation, "observation not found", nil)
	}

	o.CreatedAt = existing.CreatedAt
	o.UpdatedAt = s.clock.Now().UTC()
	s.records[o.ID] = o.Clone()
	return nil
}

// ReplaceBatch applies every replacement under a single lock. Target IDs are
// checked up front so the whole batch is rejected before any record changes,
// matching the transaction boundary of the Postgres backend.
func (s *Store) ReplaceBatch(ctx context.Context, batch []*types.Observation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range batch {
		if _, ok := s.records[o.ID]; !ok {
			return types.NewAppError(types.ErrCodeNotFoundObservation, "observation not found", nil)
		}
	}

	now := s.clock.Now().UTC()
	for _, o := range batch {
		o.CreatedAt = s.records[o.ID].CreatedAt
		o.UpdatedAt = now
		s.records[o.ID] = o.Clone()
	}
	return nil
}

// Delete removes a record. Returns ErrCodeNotFoundObservation when the ID is
// unknown.
func (s *Store) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return types.NewAppError(types.ErrCodeNotFoundObservation, "observation not found", nil)
	}
	delete(s.records, id)
	return nil
}

// Seed inserts a record verbatim, keeping its ID and timestamps. Test helper
// for constructing fixtures in closed quarters.
func (s *Store) Seed(o *types.Observation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.ID >= s.nextID {
		s.nextID = o.ID + 1
	}
	s.records[o.ID] = o.Clone()
}
