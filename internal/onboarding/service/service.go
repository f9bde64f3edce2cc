// Package service drives the onboarding workflow: submission, verification
// against the registries, confirmation and activation. All transitions go
// through the workflow transition table and are committed with a
// compare-and-swap, so concurrent operations on one client resolve to exactly
// one winner.
package service

import (
	"context"
	"errors"
	"log/slog"

	"veriflow/internal/audit"
	"veriflow/internal/onboarding/models"
	tokenmodels "veriflow/internal/token/models"
	valmodels "veriflow/internal/validation/models"
	id "veriflow/pkg/domain"
	dErrors "veriflow/pkg/domain-errors"
	"veriflow/pkg/platform/sentinel"
	"veriflow/pkg/requestcontext"
)

// Store abstracts workflow-state persistence.
type Store interface {
	Create(ctx context.Context, state *models.WorkflowState) error
	Get(ctx context.Context, clientID id.ClientID) (*models.WorkflowState, error)
	UpdateCAS(ctx context.Context, state *models.WorkflowState, expectedVersion uint64) error
}

// Validator answers identifier lookups. Registry failures surface as fallback
// results, never as errors.
type Validator interface {
	Lookup(ctx context.Context, kind valmodels.IdentifierKind, raw string) (valmodels.ValidationResult, error)
}

// Tokens issues and redeems confirmation tokens.
type Tokens interface {
	Issue(ctx context.Context, clientID id.ClientID, purpose tokenmodels.Purpose) (*tokenmodels.ConfirmationToken, error)
	Redeem(ctx context.Context, token, sourceAddr string) (id.ClientID, error)
}

// Approvals opens a pending approval when a client reaches PENDING_APPROVAL.
type Approvals interface {
	OpenPending(ctx context.Context, clientID id.ClientID) error
}

// Notifier delivers the confirmation link out of band.
type Notifier interface {
	SendConfirmationLink(ctx context.Context, clientID id.ClientID, token string) error
}

// Service orchestrates the onboarding lifecycle for one client at a time.
type Service struct {
	store     Store
	validator Validator
	tokens    Tokens
	approvals Approvals
	notifier  Notifier
	auditor   *audit.Publisher
	logger    *slog.Logger
}

type serviceConfig struct {
	auditor *audit.Publisher
	logger  *slog.Logger
}

// Option configures optional service collaborators.
type Option func(*serviceConfig)

func WithAuditor(publisher *audit.Publisher) Option {
	return func(c *serviceConfig) { c.auditor = publisher }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *serviceConfig) { c.logger = logger }
}

// New constructs the onboarding service.
func New(store Store, validator Validator, tokens Tokens, approvals Approvals, notifier Notifier, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("workflow store is required")
	}
	if validator == nil {
		return nil, errors.New("validator is required")
	}
	if tokens == nil {
		return nil, errors.New("token service is required")
	}
	sc := &serviceConfig{}
	for _, opt := range opts {
		opt(sc)
	}
	return &Service{
		store:     store,
		validator: validator,
		tokens:    tokens,
		approvals: approvals,
		notifier:  notifier,
		auditor:   sc.auditor,
		logger:    sc.logger,
	}, nil
}

// SetApprovals wires the approval engine after construction. The two services
// reference each other, so main builds onboarding first, then approvals, then
// closes the loop here before serving traffic.
func (s *Service) SetApprovals(approvals Approvals) {
	s.approvals = approvals
}

// Submission is the client intake payload.
type Submission struct {
	ClientID      id.ClientID
	CompanyNumber string
	TaxNumber     string
}

// Submit intakes a client and runs verification immediately. A fresh client
// starts in SUBMITTED; a client bounced back to SUBMITTED by a failed
// verification may resubmit with corrected identifiers. Verification that
// cannot reach a registry proceeds in degraded mode: the client advances with
// fallback results attached so a reviewer can weigh them.
func (s *Service) Submit(ctx context.Context, sub Submission) (*models.WorkflowState, error) {
	if sub.ClientID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "client id is required")
	}
	now := requestcontext.Now(ctx)

	state := models.NewWorkflowState(sub.ClientID, now)
	if err := s.store.Create(ctx, state); err != nil {
		if !errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create workflow")
		}
		existing, getErr := s.store.Get(ctx, sub.ClientID)
		if getErr != nil {
			return nil, dErrors.Wrap(getErr, dErrors.CodeInternal, "failed to load workflow")
		}
		if existing.CurrentStep != models.StepSubmitted {
			return nil, dErrors.Newf(dErrors.CodeConflict,
				"client is already onboarding in step %s", existing.CurrentStep)
		}
		state = existing
	}

	if err := s.transition(ctx, state, models.EventBeginVerification, nil); err != nil {
		return nil, err
	}
	s.emit(ctx, audit.ActionClientSubmitted, sub.ClientID, nil)

	company, err := s.validator.Lookup(ctx, valmodels.KindCompany, sub.CompanyNumber)
	if err != nil {
		return nil, s.failVerification(ctx, state, "company number: "+err.Error())
	}
	tax, err := s.validator.Lookup(ctx, valmodels.KindTax, sub.TaxNumber)
	if err != nil {
		return nil, s.failVerification(ctx, state, "tax number: "+err.Error())
	}

	state.AttachValidation(&company, &tax)

	if reason, rejected := verificationRejection(company, tax); rejected {
		if err := s.transition(ctx, state, models.EventVerificationFailed, nil); err != nil {
			return nil, err
		}
		s.emit(ctx, audit.ActionVerificationFailed, sub.ClientID, map[string]string{"reason": reason})
		return nil, dErrors.Newf(dErrors.CodeValidation, "verification failed: %s", reason)
	}

	if err := s.transition(ctx, state, models.EventVerificationPassed, nil); err != nil {
		return nil, err
	}
	s.emit(ctx, audit.ActionVerificationPassed, sub.ClientID, verificationDetail(company, tax))

	if err := s.issueConfirmation(ctx, sub.ClientID, audit.ActionConfirmationIssued); err != nil {
		return nil, err
	}
	return state, nil
}

// RedeemConfirmation consumes the confirmation token and moves the client to
// PENDING_APPROVAL, opening the approval record reviewers will act on.
func (s *Service) RedeemConfirmation(ctx context.Context, token string) (*models.WorkflowState, error) {
	clientID, err := s.tokens.Redeem(ctx, token, requestcontext.SourceAddr(ctx))
	if err != nil {
		return nil, err
	}
	state, err := s.load(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, state, models.EventConfirmationRedeemed, nil); err != nil {
		return nil, err
	}
	if s.approvals != nil {
		if err := s.approvals.OpenPending(ctx, clientID); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to open approval")
		}
	}
	s.emit(ctx, audit.ActionConfirmationRedeemed, clientID, nil)
	return state, nil
}

// ResendConfirmation issues a fresh token for a client still awaiting
// confirmation. The previous token is superseded; only the newest link works.
func (s *Service) ResendConfirmation(ctx context.Context, clientID id.ClientID) error {
	state, err := s.load(ctx, clientID)
	if err != nil {
		return err
	}
	if state.CurrentStep != models.StepAwaitingConfirmation {
		return dErrors.Newf(dErrors.CodeInvalidTransition,
			"client in step %s is not awaiting confirmation", state.CurrentStep)
	}
	return s.issueConfirmation(ctx, clientID, audit.ActionConfirmationResent)
}

// Activate moves an approved client to ACTIVE.
func (s *Service) Activate(ctx context.Context, clientID id.ClientID) (*models.WorkflowState, error) {
	state, err := s.load(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, state, models.EventActivate, nil); err != nil {
		return nil, err
	}
	s.emit(ctx, audit.ActionClientActivated, clientID, nil)
	return state, nil
}

// GetState returns the client's workflow state.
func (s *Service) GetState(ctx context.Context, clientID id.ClientID) (*models.WorkflowState, error) {
	return s.load(ctx, clientID)
}

// ApplyDecision performs the approve or reject transition on behalf of the
// approval engine. It runs inside the engine's transaction so the workflow
// step and the approval record move together.
func (s *Service) ApplyDecision(ctx context.Context, clientID id.ClientID, event models.Event, actor id.ReviewerID) error {
	if event != models.EventApprove && event != models.EventReject {
		return dErrors.Newf(dErrors.CodeBadRequest, "event %q is not a review decision", event)
	}
	state, err := s.load(ctx, clientID)
	if err != nil {
		return err
	}
	return s.transition(ctx, state, event, &actor)
}

func (s *Service) load(ctx context.Context, clientID id.ClientID) (*models.WorkflowState, error) {
	state, err := s.store.Get(ctx, clientID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "no onboarding workflow for client %s", clientID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load workflow")
	}
	return state, nil
}

// transition applies the event and commits with compare-and-swap. A lost race
// surfaces as Conflict so the caller re-reads instead of overwriting a
// concurrent transition.
func (s *Service) transition(ctx context.Context, state *models.WorkflowState, event models.Event, actor *id.ReviewerID) error {
	expected := state.Version
	if err := state.Apply(event, requestcontext.Now(ctx), actor); err != nil {
		var invalid *models.InvalidTransitionError
		if errors.As(err, &invalid) {
			return dErrors.Wrap(err, dErrors.CodeInvalidTransition, invalid.Error())
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "transition failed")
	}
	if err := s.store.UpdateCAS(ctx, state, expected); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrConflict):
			return dErrors.Wrap(err, dErrors.CodeConflict, "workflow changed concurrently, retry")
		case errors.Is(err, sentinel.ErrNotFound):
			return dErrors.Newf(dErrors.CodeNotFound, "no onboarding workflow for client %s", state.ClientID)
		default:
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save workflow")
		}
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "workflow transitioned",
			"client_id", state.ClientID.String(),
			"event", event,
			"step", state.CurrentStep,
			"version", state.Version,
		)
	}
	return nil
}

func (s *Service) failVerification(ctx context.Context, state *models.WorkflowState, reason string) error {
	if err := s.transition(ctx, state, models.EventVerificationFailed, nil); err != nil {
		return err
	}
	s.emit(ctx, audit.ActionVerificationFailed, state.ClientID, map[string]string{"reason": reason})
	return dErrors.Newf(dErrors.CodeValidation, "verification failed: %s", reason)
}

func (s *Service) issueConfirmation(ctx context.Context, clientID id.ClientID, action audit.Action) error {
	token, err := s.tokens.Issue(ctx, clientID, tokenmodels.PurposeEmailConfirmation)
	if err != nil {
		return err
	}
	if s.notifier != nil {
		if err := s.notifier.SendConfirmationLink(ctx, clientID, token.Token); err != nil {
			// Delivery failures are recoverable through resend.
			if s.logger != nil {
				s.logger.WarnContext(ctx, "confirmation link delivery failed",
					"client_id", clientID.String(), "error", err)
			}
		}
	}
	s.emit(ctx, action, clientID, map[string]string{"expires_at": token.ExpiresAt.Format("2006-01-02T15:04:05Z07:00")})
	return nil
}

func (s *Service) emit(ctx context.Context, action audit.Action, clientID id.ClientID, detail map[string]string) {
	s.auditor.Emit(ctx, audit.Event{
		Action:     action,
		EntityType: audit.EntityClient,
		EntityID:   clientID.String(),
		Detail:     detail,
	})
}

// verificationRejection decides whether the registry answers block the
// client. Only an authoritative negative blocks; fallback answers let the
// client through for manual review.
func verificationRejection(company, tax valmodels.ValidationResult) (string, bool) {
	if company.Authoritative() && !company.IsValid {
		return "company number is not an active registration", true
	}
	if tax.Authoritative() && !tax.IsValid {
		return "tax number is not an active registration", true
	}
	return "", false
}

func verificationDetail(company, tax valmodels.ValidationResult) map[string]string {
	return map[string]string{
		"company_source": string(company.Source),
		"company_status": string(company.Status),
		"tax_source":     string(tax.Source),
		"tax_status":     string(tax.Status),
	}
}
