// Package models defines the approval-record aggregate and the bulk decision
// types.
package models

import (
	"errors"
	"time"

	id "veriflow/pkg/domain"
)

// Status is the review status of an approval record.
type Status string

const (
	StatusPendingApproval Status = "PENDING_APPROVAL"
	StatusApproved        Status = "APPROVED"
	StatusRejected        Status = "REJECTED"
)

// Outcome is a reviewer's decision.
type Outcome string

const (
	OutcomeApprove Outcome = "APPROVE"
	OutcomeReject  Outcome = "REJECT"
)

// ParseOutcome validates an outcome taken from a request body.
func ParseOutcome(raw string) (Outcome, error) {
	switch Outcome(raw) {
	case OutcomeApprove, OutcomeReject:
		return Outcome(raw), nil
	default:
		return "", errors.New("outcome must be APPROVE or REJECT")
	}
}

// ErrAlreadyReviewed marks a record that left PENDING_APPROVAL before this
// review, translated to a sentinel error at the store boundary.
var ErrAlreadyReviewed = errors.New("approval record already reviewed")

// ApprovalRecord is the durable decision artifact. Created when the workflow
// enters PENDING_APPROVAL, mutated exactly once by the review, never deleted.
type ApprovalRecord struct {
	ID              id.ApprovalID  `json:"id"`
	ClientID        id.ClientID    `json:"client_id"`
	Status          Status         `json:"status"`
	RequestedAt     time.Time      `json:"requested_at"`
	ReviewedAt      *time.Time     `json:"reviewed_at,omitempty"`
	ReviewerID      *id.ReviewerID `json:"reviewer_id,omitempty"`
	Notes           string         `json:"notes,omitempty"`
	RejectionReason string         `json:"rejection_reason,omitempty"`
}

// NewPending creates the record the moment a workflow reaches
// PENDING_APPROVAL.
func NewPending(clientID id.ClientID, now time.Time) *ApprovalRecord {
	return &ApprovalRecord{
		ID:          id.NewApprovalID(),
		ClientID:    clientID,
		Status:      StatusPendingApproval,
		RequestedAt: now,
	}
}

// CanReview checks the single-mutation invariant.
func (r *ApprovalRecord) CanReview() error {
	if r.Status != StatusPendingApproval {
		return ErrAlreadyReviewed
	}
	return nil
}

// ApplyReview records the decision. Call CanReview first.
func (r *ApprovalRecord) ApplyReview(outcome Outcome, reviewer id.ReviewerID, notes, rejectionReason string, now time.Time) {
	if outcome == OutcomeApprove {
		r.Status = StatusApproved
	} else {
		r.Status = StatusRejected
	}
	reviewedAt := now
	r.ReviewedAt = &reviewedAt
	r.ReviewerID = &reviewer
	r.Notes = notes
	r.RejectionReason = rejectionReason
}

// Decision is one item of a bulk review request. Items are processed
// independently and in order.
type Decision struct {
	ClientID        id.ClientID `json:"client_id"`
	Outcome         Outcome     `json:"outcome"`
	Notes           string      `json:"notes,omitempty"`
	RejectionReason string      `json:"rejection_reason,omitempty"`
}

// DecisionResult reports one bulk item's fate. Exactly one of Record and
// Error is set.
type DecisionResult struct {
	ClientID id.ClientID     `json:"client_id"`
	Record   *ApprovalRecord `json:"record,omitempty"`
	Error    *DecisionError  `json:"error,omitempty"`
}

// DecisionError carries the per-item failure detail for bulk responses.
type DecisionError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
