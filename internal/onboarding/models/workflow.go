// Package models defines the onboarding workflow aggregate: steps, events,
// the transition table and the per-client workflow state.
package models

import (
	"fmt"
	"time"

	valmodels "veriflow/internal/validation/models"
	id "veriflow/pkg/domain"
)

// Step is a named stage in a client's lifecycle from submission to active
// status.
type Step string

const (
	StepSubmitted            Step = "SUBMITTED"
	StepVerification         Step = "VERIFICATION"
	StepAwaitingConfirmation Step = "AWAITING_CONFIRMATION"
	StepPendingApproval      Step = "PENDING_APPROVAL"
	StepApproved             Step = "APPROVED"
	StepRejected             Step = "REJECTED"
	StepActive               Step = "ACTIVE"
)

// Event names a workflow transition trigger.
type Event string

const (
	EventBeginVerification    Event = "begin_verification"
	EventVerificationPassed   Event = "verification_passed"
	EventVerificationFailed   Event = "verification_failed"
	EventConfirmationRedeemed Event = "confirmation_redeemed"
	EventApprove              Event = "approve"
	EventReject               Event = "reject"
	EventActivate             Event = "activate"
)

// transitions is the authoritative table. An event absent for the current
// step is an invalid transition; it never silently no-ops, since bulk
// endpoints depend on observing the failure.
var transitions = map[Step]map[Event]Step{
	StepSubmitted: {
		EventBeginVerification: StepVerification,
	},
	StepVerification: {
		EventVerificationPassed: StepAwaitingConfirmation,
		EventVerificationFailed: StepSubmitted,
	},
	StepAwaitingConfirmation: {
		EventConfirmationRedeemed: StepPendingApproval,
	},
	StepPendingApproval: {
		EventApprove: StepApproved,
		EventReject:  StepRejected,
	},
	StepApproved: {
		EventActivate: StepActive,
	},
	// StepRejected and StepActive are terminal.
}

// IsTerminal reports whether no event can leave the step.
func (s Step) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// InvalidTransitionError names the step and the rejected event so callers
// (bulk endpoints in particular) can report exactly what was refused.
type InvalidTransitionError struct {
	From  Step
	Event Event
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("event %q is not valid in step %q", e.Event, e.From)
}

// HistoryEntry records when a step was entered and by whom, when a human
// actor drove the transition.
type HistoryEntry struct {
	Step      Step           `json:"step"`
	EnteredAt time.Time      `json:"entered_at"`
	ActorID   *id.ReviewerID `json:"actor_id,omitempty"`
}

// LastValidation attaches the most recent registry answers to the workflow
// so reviewers see what verification saw.
type LastValidation struct {
	Company *valmodels.ValidationResult `json:"company,omitempty"`
	Tax     *valmodels.ValidationResult `json:"tax,omitempty"`
}

// WorkflowState is the per-client onboarding aggregate. Created on
// submission, mutated only through Apply, never deleted (retained for
// audit). Version backs the compare-and-swap guard in the stores.
//
// Invariant: StepHistory is append-only and monotonically ordered by
// EnteredAt; once CurrentStep is terminal no event applies.
type WorkflowState struct {
	ClientID       id.ClientID    `json:"client_id"`
	CurrentStep    Step           `json:"current_step"`
	StepHistory    []HistoryEntry `json:"step_history"`
	LastValidation LastValidation `json:"last_validation"`
	Version        uint64         `json:"version"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// NewWorkflowState creates the aggregate in SUBMITTED.
func NewWorkflowState(clientID id.ClientID, now time.Time) *WorkflowState {
	return &WorkflowState{
		ClientID:    clientID,
		CurrentStep: StepSubmitted,
		StepHistory: []HistoryEntry{{Step: StepSubmitted, EnteredAt: now}},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// CanApply returns the target step for the event, or an
// InvalidTransitionError when the current step has no such transition.
func (w *WorkflowState) CanApply(event Event) (Step, error) {
	next, ok := transitions[w.CurrentStep][event]
	if !ok {
		return "", &InvalidTransitionError{From: w.CurrentStep, Event: event}
	}
	return next, nil
}

// Apply validates and performs the transition, appending a history entry.
// actor may be nil for system-driven transitions.
func (w *WorkflowState) Apply(event Event, now time.Time, actor *id.ReviewerID) error {
	next, err := w.CanApply(event)
	if err != nil {
		return err
	}
	w.CurrentStep = next
	w.StepHistory = append(w.StepHistory, HistoryEntry{Step: next, EnteredAt: now, ActorID: actor})
	w.UpdatedAt = now
	return nil
}

// AttachValidation stores the registry answers gathered during verification.
func (w *WorkflowState) AttachValidation(company, tax *valmodels.ValidationResult) {
	w.LastValidation = LastValidation{Company: company, Tax: tax}
}

// Clone returns a deep copy so stores can hand out states without aliasing
// their internal maps.
func (w *WorkflowState) Clone() *WorkflowState {
	copied := *w
	copied.StepHistory = make([]HistoryEntry, len(w.StepHistory))
	copy(copied.StepHistory, w.StepHistory)
	if w.LastValidation.Company != nil {
		c := *w.LastValidation.Company
		copied.LastValidation.Company = &c
	}
	if w.LastValidation.Tax != nil {
		t := *w.LastValidation.Tax
		copied.LastValidation.Tax = &t
	}
	return &copied
}
