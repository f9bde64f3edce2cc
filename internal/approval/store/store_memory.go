// Package store persists approval records.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"veriflow/internal/approval/models"
	id "veriflow/pkg/domain"
	"veriflow/pkg/platform/sentinel"
)

// Error Contract:
// - CreatePending returns ErrConflict when a pending record already exists
//   for the client
// - FindPendingByClient / FindByClient return ErrNotFound appropriately
// - Review returns ErrInvalidState when the record already left
//   PENDING_APPROVAL

// InMemoryStore keeps approval records in memory for tests and dev.
type InMemoryStore struct {
	mu      sync.Mutex
	records map[id.ApprovalID]*models.ApprovalRecord
	// byClient tracks the latest record per client; a client has at most
	// one pending record at a time.
	byClient map[id.ClientID]id.ApprovalID
}

// NewInMemory constructs an empty in-memory approval store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		records:  make(map[id.ApprovalID]*models.ApprovalRecord),
		byClient: make(map[id.ClientID]id.ApprovalID),
	}
}

// CreatePending stores a fresh pending record for the client.
func (s *InMemoryStore) CreatePending(_ context.Context, record *models.ApprovalRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existingID, ok := s.byClient[record.ClientID]; ok {
		if existing := s.records[existingID]; existing != nil && existing.Status == models.StatusPendingApproval {
			return fmt.Errorf("pending approval for client %s already exists: %w", record.ClientID, sentinel.ErrConflict)
		}
	}
	copied := *record
	s.records[record.ID] = &copied
	s.byClient[record.ClientID] = record.ID
	return nil
}

// FindPendingByClient returns the client's pending record.
func (s *InMemoryStore) FindPendingByClient(_ context.Context, clientID id.ClientID) (*models.ApprovalRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recordID, ok := s.byClient[clientID]
	if !ok {
		return nil, fmt.Errorf("approval record for client %s: %w", clientID, sentinel.ErrNotFound)
	}
	record := s.records[recordID]
	if record == nil || record.Status != models.StatusPendingApproval {
		return nil, fmt.Errorf("no pending approval for client %s: %w", clientID, sentinel.ErrNotFound)
	}
	copied := *record
	return &copied, nil
}

// Review applies the decision if the record is still pending. Validation and
// mutation run under the store lock, so two concurrent reviews of the same
// record resolve to exactly one success.
func (s *InMemoryStore) Review(_ context.Context, clientID id.ClientID, outcome models.Outcome, reviewer id.ReviewerID, notes, rejectionReason string, now time.Time) (*models.ApprovalRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recordID, ok := s.byClient[clientID]
	if !ok {
		return nil, fmt.Errorf("approval record for client %s: %w", clientID, sentinel.ErrNotFound)
	}
	record := s.records[recordID]
	if record == nil {
		return nil, fmt.Errorf("approval record for client %s: %w", clientID, sentinel.ErrNotFound)
	}
	if err := record.CanReview(); err != nil {
		if errors.Is(err, models.ErrAlreadyReviewed) {
			return nil, fmt.Errorf("%s: %w", err, sentinel.ErrInvalidState)
		}
		return nil, err
	}
	record.ApplyReview(outcome, reviewer, notes, rejectionReason, now)
	copied := *record
	return &copied, nil
}

// ListByStatus returns a page of records in requested-at order plus the
// total count for that status.
func (s *InMemoryStore) ListByStatus(_ context.Context, status models.Status, offset, limit int) ([]*models.ApprovalRecord, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matching := make([]*models.ApprovalRecord, 0)
	for _, record := range s.records {
		if record.Status == status {
			copied := *record
			matching = append(matching, &copied)
		}
	}
	sort.Slice(matching, func(i, j int) bool {
		return matching[i].RequestedAt.Before(matching[j].RequestedAt)
	})

	total := len(matching)
	if offset >= total {
		return []*models.ApprovalRecord{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matching[offset:end], total, nil
}
