// Package audit records who did what to which entity across the onboarding
// pipeline. Events are emitted fire-and-forget from domain services; a failed
// audit write never fails the operation that produced it.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Action names an auditable domain action.
type Action string

const (
	ActionClientSubmitted      Action = "client_submitted"
	ActionVerificationPassed   Action = "verification_passed"
	ActionVerificationFailed   Action = "verification_failed"
	ActionConfirmationIssued   Action = "confirmation_issued"
	ActionConfirmationResent   Action = "confirmation_resent"
	ActionConfirmationRedeemed Action = "confirmation_redeemed"
	ActionApprovalGranted      Action = "approval_granted"
	ActionApprovalRejected     Action = "approval_rejected"
	ActionClientActivated      Action = "client_activated"
)

// EntityType classifies the entity an event refers to.
type EntityType string

const (
	EntityClient   EntityType = "client"
	EntityApproval EntityType = "approval"
	EntityToken    EntityType = "token"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID         uuid.UUID         `json:"id"`
	Timestamp  time.Time         `json:"timestamp"`
	Action     Action            `json:"action"`
	EntityType EntityType        `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	ActorID    string            `json:"actor_id,omitempty"`
	RequestID  string            `json:"request_id,omitempty"`
	Detail     map[string]string `json:"detail,omitempty"`
}

// Store is the append-only persistence behind the publisher.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByEntity(ctx context.Context, entityType EntityType, entityID string) ([]Event, error)
}
