// Package domain holds the typed identifiers shared across the pipeline.
//
// Entity IDs are distinct uuid-backed types so a ClientID can never be passed
// where a ReviewerID is expected. Business registry identifiers (company
// number, tax number) are validated value objects: once constructed through
// their Parse functions they are normalized and structurally valid.
package domain

import (
	"github.com/google/uuid"

	dErrors "veriflow/pkg/domain-errors"
)

// ClientID identifies a prospective or onboarded client.
type ClientID uuid.UUID

// ReviewerID identifies the human reviewer acting on an approval.
type ReviewerID uuid.UUID

// ApprovalID identifies a durable approval record.
type ApprovalID uuid.UUID

func (id ClientID) String() string   { return uuid.UUID(id).String() }
func (id ReviewerID) String() string { return uuid.UUID(id).String() }
func (id ApprovalID) String() string { return uuid.UUID(id).String() }

func (id ClientID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id ReviewerID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ApprovalID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// NewClientID returns a fresh random client ID.
func NewClientID() ClientID { return ClientID(uuid.New()) }

// NewReviewerID returns a fresh random reviewer ID.
func NewReviewerID() ReviewerID { return ReviewerID(uuid.New()) }

// NewApprovalID returns a fresh random approval record ID.
func NewApprovalID() ApprovalID { return ApprovalID(uuid.New()) }

// The IDs serialize as their canonical UUID string, both in JSON bodies and
// as map keys.

func (id ClientID) MarshalText() ([]byte, error)   { return []byte(id.String()), nil }
func (id ReviewerID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id ApprovalID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *ClientID) UnmarshalText(text []byte) error {
	parsed, err := uuid.ParseBytes(text)
	if err != nil {
		return err
	}
	*id = ClientID(parsed)
	return nil
}

func (id *ReviewerID) UnmarshalText(text []byte) error {
	parsed, err := uuid.ParseBytes(text)
	if err != nil {
		return err
	}
	*id = ReviewerID(parsed)
	return nil
}

func (id *ApprovalID) UnmarshalText(text []byte) error {
	parsed, err := uuid.ParseBytes(text)
	if err != nil {
		return err
	}
	*id = ApprovalID(parsed)
	return nil
}

// parseUUID enforces the shared invariant: IDs must be valid, non-nil UUIDs.
// Rejecting the nil UUID here keeps "zero value" distinguishable from
// "attacker supplied all-zeros" at trust boundaries.
func parseUUID(raw, kind string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, dErrors.Newf(dErrors.CodeBadRequest, "%s is required", kind)
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeBadRequest, "%s is not a valid UUID", kind)
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeBadRequest, "%s must not be the nil UUID", kind)
	}
	return parsed, nil
}

// ParseClientID parses and validates a client ID from untrusted input.
func ParseClientID(raw string) (ClientID, error) {
	parsed, err := parseUUID(raw, "client id")
	if err != nil {
		return ClientID{}, err
	}
	return ClientID(parsed), nil
}

// ParseReviewerID parses and validates a reviewer ID from untrusted input.
func ParseReviewerID(raw string) (ReviewerID, error) {
	parsed, err := parseUUID(raw, "reviewer id")
	if err != nil {
		return ReviewerID{}, err
	}
	return ReviewerID(parsed), nil
}

// ParseApprovalID parses and validates an approval record ID.
func ParseApprovalID(raw string) (ApprovalID, error) {
	parsed, err := parseUUID(raw, "approval id")
	if err != nil {
		return ApprovalID{}, err
	}
	return ApprovalID(parsed), nil
}
