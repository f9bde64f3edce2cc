// Package models defines the confirmation-token record and its redemption
// rules.
package models

import (
	"errors"
	"time"

	id "veriflow/pkg/domain"
)

// Purpose scopes a confirmation token to one workflow side effect. At most
// one live token exists per client and purpose.
type Purpose string

const (
	// PurposeEmailConfirmation proves control of the submitted email address
	// and drives the AWAITING_CONFIRMATION -> PENDING_APPROVAL transition.
	PurposeEmailConfirmation Purpose = "email_confirmation"
)

// Redemption validation errors, translated to sentinel errors at the store
// boundary.
var (
	ErrTokenExpired     = errors.New("token expired")
	ErrTokenAlreadyUsed = errors.New("token already used")
	ErrTokenSuperseded  = errors.New("token superseded by a newer issuance")
)

// ConfirmationToken is a single-use, time-limited credential. The Token
// value is an opaque cryptographically random string.
type ConfirmationToken struct {
	Token        string      `json:"token"`
	ClientID     id.ClientID `json:"client_id"`
	Purpose      Purpose     `json:"purpose"`
	IssuedAt     time.Time   `json:"issued_at"`
	ExpiresAt    time.Time   `json:"expires_at"`
	RedeemedAt   *time.Time  `json:"redeemed_at,omitempty"`
	RedeemedFrom string      `json:"redeemed_from,omitempty"`
	// Superseded is set when a newer token for the same client and purpose
	// was issued before this one was redeemed.
	Superseded bool `json:"superseded"`
}

// ValidateForRedeem checks every redemption precondition against the given
// time. The expiry check runs before anything can mark the token redeemed,
// so RedeemedAt <= ExpiresAt holds for every redeemed token.
func (t *ConfirmationToken) ValidateForRedeem(now time.Time) error {
	if t.RedeemedAt != nil {
		return ErrTokenAlreadyUsed
	}
	if t.Superseded {
		return ErrTokenSuperseded
	}
	if now.After(t.ExpiresAt) {
		return ErrTokenExpired
	}
	return nil
}

// MarkRedeemed records the successful redemption. Call ValidateForRedeem
// first.
func (t *ConfirmationToken) MarkRedeemed(now time.Time, sourceAddr string) {
	redeemedAt := now
	t.RedeemedAt = &redeemedAt
	t.RedeemedFrom = sourceAddr
}
