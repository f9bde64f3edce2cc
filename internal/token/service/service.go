// Package service implements issuance and redemption of single-use
// confirmation tokens.
package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"veriflow/internal/token/models"
	id "veriflow/pkg/domain"
	dErrors "veriflow/pkg/domain-errors"
	"veriflow/pkg/platform/sentinel"
	"veriflow/pkg/requestcontext"
)

// Store abstracts confirmation-token persistence.
type Store interface {
	Create(ctx context.Context, token *models.ConfirmationToken) error
	Find(ctx context.Context, token string) (*models.ConfirmationToken, error)
	Consume(ctx context.Context, token string, now time.Time, sourceAddr string) (*models.ConfirmationToken, error)
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

const (
	// DefaultTTL is the fixed expiry window for confirmation tokens.
	DefaultTTL = 24 * time.Hour

	tokenByteLength = 32
)

// Service issues and redeems confirmation tokens. Issuing supersedes any
// unredeemed prior token of the same purpose, so at most one token per
// client and purpose is ever live.
type Service struct {
	store  Store
	ttl    time.Duration
	logger *slog.Logger
}

// New constructs the token service. A non-positive ttl falls back to
// DefaultTTL.
func New(store Store, ttl time.Duration, logger *slog.Logger) (*Service, error) {
	if store == nil {
		return nil, errors.New("token store is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{store: store, ttl: ttl, logger: logger}, nil
}

// Issue generates a fresh opaque token for the client and purpose.
func (s *Service) Issue(ctx context.Context, clientID id.ClientID, purpose models.Purpose) (*models.ConfirmationToken, error) {
	if clientID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "client id is required")
	}
	opaque, err := generateOpaque()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate token")
	}

	now := requestcontext.Now(ctx)
	token := &models.ConfirmationToken{
		Token:     opaque,
		ClientID:  clientID,
		Purpose:   purpose,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.store.Create(ctx, token); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store token")
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "confirmation token issued",
			"client_id", clientID.String(),
			"purpose", purpose,
			"expires_at", token.ExpiresAt,
		)
	}
	return token, nil
}

// Redeem marks the token used and returns the owning client ID. A second
// redemption of the same token fails with AlreadyUsed; it never silently
// succeeds.
func (s *Service) Redeem(ctx context.Context, token, sourceAddr string) (id.ClientID, error) {
	if token == "" {
		return id.ClientID{}, dErrors.New(dErrors.CodeBadRequest, "token is required")
	}
	record, err := s.store.Consume(ctx, token, requestcontext.Now(ctx), sourceAddr)
	if err != nil {
		return id.ClientID{}, translateConsumeError(err)
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "confirmation token redeemed",
			"client_id", record.ClientID.String(),
			"purpose", record.Purpose,
			"source_addr", sourceAddr,
		)
	}
	return record.ClientID, nil
}

// RunSweeper deletes expired tokens on the given interval until the context
// is canceled.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if _, err := s.store.DeleteExpired(ctx, now); err != nil && s.logger != nil {
				s.logger.WarnContext(ctx, "token sweep failed", "error", err)
			}
		}
	}
}

func translateConsumeError(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrExpired):
		return dErrors.New(dErrors.CodeExpired, "confirmation token has expired")
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return dErrors.New(dErrors.CodeAlreadyUsed, "confirmation token was already redeemed")
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "confirmation token is unknown or no longer valid")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to redeem token")
	}
}

// generateOpaque returns a URL-safe random string with 256 bits of entropy.
func generateOpaque() (string, error) {
	buf := make([]byte, tokenByteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("reading randomness: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
