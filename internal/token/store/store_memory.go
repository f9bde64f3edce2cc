// Package store persists confirmation tokens.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"veriflow/internal/token/models"
	id "veriflow/pkg/domain"
	"veriflow/pkg/platform/sentinel"
)

// translateRedeemError converts domain errors from ValidateForRedeem to
// sentinel errors per the store boundary contract.
func translateRedeemError(err error) error {
	switch {
	case errors.Is(err, models.ErrTokenExpired):
		return fmt.Errorf("%s: %w", err, sentinel.ErrExpired)
	case errors.Is(err, models.ErrTokenAlreadyUsed):
		return fmt.Errorf("%s: %w", err, sentinel.ErrAlreadyUsed)
	case errors.Is(err, models.ErrTokenSuperseded):
		return fmt.Errorf("%s: %w", err, sentinel.ErrNotFound)
	default:
		return fmt.Errorf("%s: %w", err, sentinel.ErrInvalidState)
	}
}

// Error Contract:
// All store methods follow this error pattern:
// - Return ErrNotFound when the requested token does not exist
// - Return ErrExpired / ErrAlreadyUsed from Consume per redemption rules
// - Return wrapped errors with context for infrastructure failures

// InMemoryStore keeps confirmation tokens in memory for tests and dev.
type InMemoryStore struct {
	mu     sync.Mutex
	tokens map[string]*models.ConfirmationToken
	// live indexes the one unredeemed token per client+purpose so issuance
	// can supersede it.
	live map[string]string
}

// NewInMemory constructs an empty in-memory token store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		tokens: make(map[string]*models.ConfirmationToken),
		live:   make(map[string]string),
	}
}

func liveKey(clientID id.ClientID, purpose models.Purpose) string {
	return clientID.String() + ":" + string(purpose)
}

// Create stores a fresh token and supersedes any live predecessor for the
// same client and purpose.
func (s *InMemoryStore) Create(_ context.Context, token *models.ConfirmationToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := liveKey(token.ClientID, token.Purpose)
	if prior, ok := s.live[key]; ok {
		if record, ok := s.tokens[prior]; ok && record.RedeemedAt == nil {
			record.Superseded = true
		}
	}
	copied := *token
	s.tokens[token.Token] = &copied
	s.live[key] = token.Token
	return nil
}

// Find returns the token record without mutating it.
func (s *InMemoryStore) Find(_ context.Context, token string) (*models.ConfirmationToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.tokens[token]
	if !ok {
		return nil, fmt.Errorf("confirmation token not found: %w", sentinel.ErrNotFound)
	}
	copied := *record
	return &copied, nil
}

// Consume marks the token redeemed if every redemption rule passes. The
// validate-then-mark sequence runs under the store lock, so two concurrent
// redemptions of the same token resolve to exactly one success.
func (s *InMemoryStore) Consume(_ context.Context, token string, now time.Time, sourceAddr string) (*models.ConfirmationToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.tokens[token]
	if !ok {
		return nil, fmt.Errorf("confirmation token not found: %w", sentinel.ErrNotFound)
	}
	if err := record.ValidateForRedeem(now); err != nil {
		copied := *record
		return &copied, translateRedeemError(err)
	}
	record.MarkRedeemed(now, sourceAddr)
	delete(s.live, liveKey(record.ClientID, record.Purpose))
	copied := *record
	return &copied, nil
}

// DeleteExpired removes tokens past their expiry as of the given time.
// The time parameter is injected for testability.
func (s *InMemoryStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for value, record := range s.tokens {
		if record.ExpiresAt.Before(now) {
			delete(s.tokens, value)
			if s.live[liveKey(record.ClientID, record.Purpose)] == value {
				delete(s.live, liveKey(record.ClientID, record.Purpose))
			}
			deleted++
		}
	}
	return deleted, nil
}
