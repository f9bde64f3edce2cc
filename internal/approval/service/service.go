// Package service implements the approval engine: reviewers resolve pending
// clients one at a time or in bulk. Each decision commits the approval record
// and the workflow transition as one unit.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	apprmetrics "veriflow/internal/approval/metrics"
	"veriflow/internal/approval/models"
	"veriflow/internal/audit"
	wfmodels "veriflow/internal/onboarding/models"
	id "veriflow/pkg/domain"
	dErrors "veriflow/pkg/domain-errors"
	"veriflow/pkg/platform/sentinel"
	"veriflow/pkg/platform/tx"
	"veriflow/pkg/requestcontext"
)

// Store abstracts approval-record persistence.
type Store interface {
	CreatePending(ctx context.Context, record *models.ApprovalRecord) error
	FindPendingByClient(ctx context.Context, clientID id.ClientID) (*models.ApprovalRecord, error)
	Review(ctx context.Context, clientID id.ClientID, outcome models.Outcome, reviewer id.ReviewerID, notes, rejectionReason string, now time.Time) (*models.ApprovalRecord, error)
	ListByStatus(ctx context.Context, status models.Status, offset, limit int) ([]*models.ApprovalRecord, int, error)
}

// Workflows applies the approve or reject transition on the onboarding
// workflow. Called inside the decision transaction.
type Workflows interface {
	ApplyDecision(ctx context.Context, clientID id.ClientID, event wfmodels.Event, actor id.ReviewerID) error
}

// AuditTrail reads the audit history for an entity.
type AuditTrail interface {
	ListByEntity(ctx context.Context, entityType audit.EntityType, entityID string) ([]audit.Event, error)
}

// MaxBulkDecisions caps one bulk request.
const MaxBulkDecisions = 50

// Service is the approval engine.
type Service struct {
	store     Store
	workflows Workflows
	runner    tx.Runner
	trail     AuditTrail
	auditor   *audit.Publisher
	logger    *slog.Logger
	metrics   *apprmetrics.Metrics
}

type serviceConfig struct {
	trail   AuditTrail
	auditor *audit.Publisher
	logger  *slog.Logger
	metrics *apprmetrics.Metrics
}

// Option configures optional service collaborators.
type Option func(*serviceConfig)

func WithAuditTrail(trail AuditTrail) Option {
	return func(c *serviceConfig) { c.trail = trail }
}

func WithAuditor(publisher *audit.Publisher) Option {
	return func(c *serviceConfig) { c.auditor = publisher }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *serviceConfig) { c.logger = logger }
}

func WithMetrics(m *apprmetrics.Metrics) Option {
	return func(c *serviceConfig) { c.metrics = m }
}

// New constructs the approval engine. runner must match the store: a SQL
// runner for the postgres store, the passthrough runner for the memory store.
func New(store Store, workflows Workflows, runner tx.Runner, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("approval store is required")
	}
	if workflows == nil {
		return nil, errors.New("workflow service is required")
	}
	if runner == nil {
		runner = tx.PassthroughRunner{}
	}
	sc := &serviceConfig{}
	for _, opt := range opts {
		opt(sc)
	}
	return &Service{
		store:     store,
		workflows: workflows,
		runner:    runner,
		trail:     sc.trail,
		auditor:   sc.auditor,
		logger:    sc.logger,
		metrics:   sc.metrics,
	}, nil
}

// OpenPending creates the approval record when a client reaches
// PENDING_APPROVAL.
func (s *Service) OpenPending(ctx context.Context, clientID id.ClientID) error {
	record := models.NewPending(clientID, requestcontext.Now(ctx))
	if err := s.store.CreatePending(ctx, record); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return dErrors.Newf(dErrors.CodeConflict, "client %s already has a pending approval", clientID)
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to open approval")
	}
	s.metrics.RecordPendingOpened()
	return nil
}

// Decide applies one reviewer decision. The workflow transition and the
// record update commit together; if either fails nothing is persisted.
func (s *Service) Decide(ctx context.Context, decision models.Decision) (*models.ApprovalRecord, error) {
	reviewer := requestcontext.ActorID(ctx)
	if reviewer.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "a reviewer identity is required")
	}
	if decision.ClientID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "client id is required")
	}
	if decision.Outcome == models.OutcomeReject && decision.RejectionReason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "a rejection requires a reason")
	}

	event := wfmodels.EventApprove
	if decision.Outcome == models.OutcomeReject {
		event = wfmodels.EventReject
	}

	var record *models.ApprovalRecord
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		// Transition first: the record must never flip without the workflow
		// leaving PENDING_APPROVAL.
		if err := s.workflows.ApplyDecision(ctx, decision.ClientID, event, reviewer); err != nil {
			return err
		}
		reviewed, err := s.store.Review(ctx, decision.ClientID, decision.Outcome, reviewer,
			decision.Notes, decision.RejectionReason, requestcontext.Now(ctx))
		if err != nil {
			return translateReviewError(err, decision.ClientID)
		}
		record = reviewed
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordDecision(string(decision.Outcome))
	s.emitDecision(ctx, record, decision)
	if s.logger != nil {
		s.logger.InfoContext(ctx, "approval decided",
			"client_id", decision.ClientID.String(),
			"outcome", decision.Outcome,
			"reviewer_id", reviewer.String(),
		)
	}
	return record, nil
}

// DecideBulk processes decisions independently and in input order. One failed
// item never aborts the rest; each result carries either the reviewed record
// or the item's error.
func (s *Service) DecideBulk(ctx context.Context, decisions []models.Decision) ([]models.DecisionResult, error) {
	if len(decisions) == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "decisions array must not be empty")
	}
	if len(decisions) > MaxBulkDecisions {
		return nil, dErrors.Newf(dErrors.CodeBadRequest,
			"bulk of %d exceeds the cap of %d", len(decisions), MaxBulkDecisions)
	}

	results := make([]models.DecisionResult, 0, len(decisions))
	for _, decision := range decisions {
		result := models.DecisionResult{ClientID: decision.ClientID}
		record, err := s.Decide(ctx, decision)
		if err != nil {
			result.Error = &models.DecisionError{
				Code:    string(dErrors.CodeOf(err)),
				Message: err.Error(),
			}
			s.metrics.RecordBulkItem("failed")
		} else {
			result.Record = record
			s.metrics.RecordBulkItem("applied")
		}
		results = append(results, result)
	}
	return results, nil
}

// ListPending returns a page of pending approvals in requested-at order.
func (s *Service) ListPending(ctx context.Context, offset, limit int) ([]*models.ApprovalRecord, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	records, total, err := s.store.ListByStatus(ctx, models.StatusPendingApproval, offset, limit)
	if err != nil {
		return nil, 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list pending approvals")
	}
	return records, total, nil
}

// History returns the audit trail for a client.
func (s *Service) History(ctx context.Context, clientID id.ClientID) ([]audit.Event, error) {
	if s.trail == nil {
		return nil, dErrors.New(dErrors.CodeUnavailable, "audit trail is not configured")
	}
	events, err := s.trail.ListByEntity(ctx, audit.EntityClient, clientID.String())
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read audit trail")
	}
	return events, nil
}

func (s *Service) emitDecision(ctx context.Context, record *models.ApprovalRecord, decision models.Decision) {
	action := audit.ActionApprovalGranted
	detail := map[string]string{"notes": decision.Notes}
	if decision.Outcome == models.OutcomeReject {
		action = audit.ActionApprovalRejected
		detail["reason"] = decision.RejectionReason
	}
	s.auditor.Emit(ctx, audit.Event{
		Action:     action,
		EntityType: audit.EntityClient,
		EntityID:   record.ClientID.String(),
		Detail:     detail,
	})
}

func translateReviewError(err error, clientID id.ClientID) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Newf(dErrors.CodeNotFound, "no pending approval for client %s", clientID)
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.Newf(dErrors.CodeConflict, "approval for client %s was already reviewed", clientID)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to apply review")
	}
}
