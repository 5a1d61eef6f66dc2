// Package memory provides in-process adapters: a state store, a checkpoint
// store and a machine loader. They back tests and single-process hosts.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/switchyard-dev/switchyard/pkg/domain"
)

// Store is a thread-safe in-memory StateStore and CheckpointStore. Saved
// snapshots are deep-copied both ways so callers never alias stored state.
type Store struct {
	mu          sync.RWMutex
	sessions    map[string]*domain.ExecutionState
	checkpoints map[string][]*domain.Checkpoint
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		sessions:    make(map[string]*domain.ExecutionState),
		checkpoints: make(map[string][]*domain.Checkpoint),
	}
}

// Save stores a deep copy of the state.
func (s *Store) Save(ctx context.Context, sessionID string, state *domain.ExecutionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = state.Clone()
	return nil
}

// Load returns a deep copy of the stored state.
func (s *Store) Load(ctx context.Context, sessionID string) (*domain.ExecutionState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return state.Clone(), nil
}

// Delete removes a session and its checkpoints.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	delete(s.checkpoints, sessionID)
	return nil
}

// List returns session ids in sorted order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// SaveCheckpoint stores a deep copy of the checkpoint under the session.
func (s *Store) SaveCheckpoint(ctx context.Context, sessionID string, cp *domain.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *cp
	copied.State = cp.State.Clone()
	s.checkpoints[sessionID] = append(s.checkpoints[sessionID], &copied)
	return nil
}

// LoadCheckpoint returns a deep copy of one checkpoint.
func (s *Store) LoadCheckpoint(ctx context.Context, sessionID, checkpointID string) (*domain.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, cp := range s.checkpoints[sessionID] {
		if cp.ID == checkpointID {
			copied := *cp
			copied.State = cp.State.Clone()
			return &copied, nil
		}
	}
	return nil, domain.ErrCheckpointNotFound
}

// ListCheckpoints returns the session's checkpoints in creation order.
func (s *Store) ListCheckpoints(ctx context.Context, sessionID string) ([]*domain.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Checkpoint, 0, len(s.checkpoints[sessionID]))
	for _, cp := range s.checkpoints[sessionID] {
		copied := *cp
		copied.State = cp.State.Clone()
		out = append(out, &copied)
	}
	return out, nil
}
