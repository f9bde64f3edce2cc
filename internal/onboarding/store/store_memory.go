// Package store persists workflow states. Every update goes through a
// compare-and-swap on the state version so concurrent transitions for one
// client resolve to exactly one winner.
package store

import (
	"context"
	"fmt"
	"sync"

	"veriflow/internal/onboarding/models"
	id "veriflow/pkg/domain"
	"veriflow/pkg/platform/sentinel"
)

// Error Contract:
// - Create returns ErrConflict when a workflow already exists for the client
// - Get returns ErrNotFound for unknown clients
// - UpdateCAS returns ErrConflict when the stored version moved on, and
//   ErrNotFound for unknown clients

// InMemoryStore keeps workflow states in memory for tests and dev.
type InMemoryStore struct {
	mu        sync.RWMutex
	workflows map[id.ClientID]*models.WorkflowState
}

// NewInMemory constructs an empty in-memory workflow store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{workflows: make(map[id.ClientID]*models.WorkflowState)}
}

// Create stores a fresh workflow. The stored state starts at version 1.
func (s *InMemoryStore) Create(_ context.Context, state *models.WorkflowState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.workflows[state.ClientID]; exists {
		return fmt.Errorf("workflow for client %s already exists: %w", state.ClientID, sentinel.ErrConflict)
	}
	stored := state.Clone()
	stored.Version = 1
	s.workflows[state.ClientID] = stored
	state.Version = 1
	return nil
}

// Get returns a copy of the workflow state. Safe to call concurrently with
// updates; callers never observe a half-applied transition.
func (s *InMemoryStore) Get(_ context.Context, clientID id.ClientID) (*models.WorkflowState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.workflows[clientID]
	if !ok {
		return nil, fmt.Errorf("workflow for client %s: %w", clientID, sentinel.ErrNotFound)
	}
	return state.Clone(), nil
}

// UpdateCAS commits the state only if the stored version still equals
// expectedVersion, then bumps the version. A lost race returns ErrConflict;
// the caller re-reads and decides whether to retry or report.
func (s *InMemoryStore) UpdateCAS(_ context.Context, state *models.WorkflowState, expectedVersion uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.workflows[state.ClientID]
	if !ok {
		return fmt.Errorf("workflow for client %s: %w", state.ClientID, sentinel.ErrNotFound)
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("workflow for client %s moved from version %d to %d: %w",
			state.ClientID, expectedVersion, current.Version, sentinel.ErrConflict)
	}
	stored := state.Clone()
	stored.Version = expectedVersion + 1
	s.workflows[state.ClientID] = stored
	state.Version = stored.Version
	return nil
}
