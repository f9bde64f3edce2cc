package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"veriflow/internal/approval/models"
	"veriflow/internal/approval/store"
	"veriflow/internal/audit"
	wfmodels "veriflow/internal/onboarding/models"
	id "veriflow/pkg/domain"
	dErrors "veriflow/pkg/domain-errors"
	"veriflow/pkg/platform/tx"
	"veriflow/pkg/requestcontext"
)

// stubWorkflows records applied decisions and can be forced to fail, standing
// in for the onboarding service inside the decision transaction.
type stubWorkflows struct {
	applied []wfmodels.Event
	err     error
}

func (w *stubWorkflows) ApplyDecision(_ context.Context, _ id.ClientID, event wfmodels.Event, _ id.ReviewerID) error {
	if w.err != nil {
		return w.err
	}
	w.applied = append(w.applied, event)
	return nil
}

type ApprovalServiceSuite struct {
	suite.Suite

	now       time.Time
	ctx       context.Context
	reviewer  id.ReviewerID
	store     *store.InMemoryStore
	workflows *stubWorkflows
	service   *Service
}

func TestApprovalServiceSuite(t *testing.T) {
	suite.Run(t, new(ApprovalServiceSuite))
}

func (s *ApprovalServiceSuite) SetupTest() {
	s.now = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	s.reviewer = id.NewReviewerID()
	s.ctx = requestcontext.WithActorID(requestcontext.WithTime(context.Background(), s.now), s.reviewer)
	s.store = store.NewInMemory()
	s.workflows = &stubWorkflows{}

	service, err := New(s.store, s.workflows, tx.PassthroughRunner{},
		WithAuditTrail(audit.NewInMemoryStore()))
	s.Require().NoError(err)
	s.service = service
}

func (s *ApprovalServiceSuite) openPending() id.ClientID {
	clientID := id.NewClientID()
	s.Require().NoError(s.service.OpenPending(s.ctx, clientID))
	return clientID
}

func (s *ApprovalServiceSuite) TestOpenPending_SecondOpenConflicts() {
	clientID := s.openPending()

	err := s.service.OpenPending(s.ctx, clientID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *ApprovalServiceSuite) TestDecide_Approve() {
	clientID := s.openPending()

	record, err := s.service.Decide(s.ctx, models.Decision{
		ClientID: clientID,
		Outcome:  models.OutcomeApprove,
		Notes:    "all registry answers authoritative",
	})
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, record.Status)
	s.Equal("all registry answers authoritative", record.Notes)
	s.Require().NotNil(record.ReviewedAt)
	s.Equal(s.now, *record.ReviewedAt)
	s.Require().NotNil(record.ReviewerID)
	s.Equal(s.reviewer, *record.ReviewerID)
	s.Equal([]wfmodels.Event{wfmodels.EventApprove}, s.workflows.applied)
}

func (s *ApprovalServiceSuite) TestDecide_RejectRequiresReason() {
	clientID := s.openPending()

	_, err := s.service.Decide(s.ctx, models.Decision{
		ClientID: clientID,
		Outcome:  models.OutcomeReject,
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Empty(s.workflows.applied)

	record, err := s.service.Decide(s.ctx, models.Decision{
		ClientID:        clientID,
		Outcome:         models.OutcomeReject,
		RejectionReason: "company data mismatch",
	})
	s.Require().NoError(err)
	s.Equal(models.StatusRejected, record.Status)
	s.Equal("company data mismatch", record.RejectionReason)
	s.Equal([]wfmodels.Event{wfmodels.EventReject}, s.workflows.applied)
}

func (s *ApprovalServiceSuite) TestDecide_RequiresReviewerIdentity() {
	clientID := s.openPending()

	anonymous := requestcontext.WithTime(context.Background(), s.now)
	_, err := s.service.Decide(anonymous, models.Decision{
		ClientID: clientID,
		Outcome:  models.OutcomeApprove,
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *ApprovalServiceSuite) TestDecide_UnknownClientNotFound() {
	_, err := s.service.Decide(s.ctx, models.Decision{
		ClientID: id.NewClientID(),
		Outcome:  models.OutcomeApprove,
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ApprovalServiceSuite) TestDecide_SecondReviewConflicts() {
	clientID := s.openPending()

	_, err := s.service.Decide(s.ctx, models.Decision{ClientID: clientID, Outcome: models.OutcomeApprove})
	s.Require().NoError(err)

	_, err = s.service.Decide(s.ctx, models.Decision{ClientID: clientID, Outcome: models.OutcomeApprove})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	// The workflow transition was attempted once per call; the record flipped
	// exactly once.
	s.Len(s.workflows.applied, 2)
}

func (s *ApprovalServiceSuite) TestDecide_WorkflowFailureLeavesRecordPending() {
	clientID := s.openPending()
	s.workflows.err = dErrors.New(dErrors.CodeInvalidTransition, "client left the approval step")

	_, err := s.service.Decide(s.ctx, models.Decision{ClientID: clientID, Outcome: models.OutcomeApprove})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))

	record, err := s.store.FindPendingByClient(s.ctx, clientID)
	s.Require().NoError(err)
	s.Equal(models.StatusPendingApproval, record.Status)
}

func (s *ApprovalServiceSuite) TestDecideBulk_Validation() {
	s.Run("empty bulk", func() {
		_, err := s.service.DecideBulk(s.ctx, nil)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("over the cap", func() {
		decisions := make([]models.Decision, MaxBulkDecisions+1)
		for i := range decisions {
			decisions[i] = models.Decision{ClientID: id.NewClientID(), Outcome: models.OutcomeApprove}
		}
		_, err := s.service.DecideBulk(s.ctx, decisions)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func (s *ApprovalServiceSuite) TestDecideBulk_MixedResultsPreserveOrder() {
	first := s.openPending()
	second := s.openPending()
	unknown := id.NewClientID()

	results, err := s.service.DecideBulk(s.ctx, []models.Decision{
		{ClientID: first, Outcome: models.OutcomeApprove},
		{ClientID: unknown, Outcome: models.OutcomeApprove},
		{ClientID: second, Outcome: models.OutcomeReject, RejectionReason: "mismatch"},
	})
	s.Require().NoError(err)
	s.Require().Len(results, 3)

	s.Equal(first, results[0].ClientID)
	s.Require().NotNil(results[0].Record)
	s.Nil(results[0].Error)
	s.Equal(models.StatusApproved, results[0].Record.Status)

	s.Equal(unknown, results[1].ClientID)
	s.Nil(results[1].Record)
	s.Require().NotNil(results[1].Error)
	s.Equal(string(dErrors.CodeNotFound), results[1].Error.Code)

	s.Equal(second, results[2].ClientID)
	s.Require().NotNil(results[2].Record)
	s.Equal(models.StatusRejected, results[2].Record.Status)
}

func (s *ApprovalServiceSuite) TestListPending_Pagination() {
	ids := make([]id.ClientID, 0, 5)
	for i := 0; i < 5; i++ {
		// Staggered request times give the list a deterministic order.
		ctx := requestcontext.WithTime(context.Background(), s.now.Add(time.Duration(i)*time.Minute))
		clientID := id.NewClientID()
		s.Require().NoError(s.service.OpenPending(ctx, clientID))
		ids = append(ids, clientID)
	}

	page, total, err := s.service.ListPending(s.ctx, 1, 2)
	s.Require().NoError(err)
	s.Equal(5, total)
	s.Require().Len(page, 2)
	s.Equal(ids[1], page[0].ClientID)
	s.Equal(ids[2], page[1].ClientID)

	s.Run("limit is clamped to the default", func() {
		page, _, err := s.service.ListPending(s.ctx, 0, -3)
		s.Require().NoError(err)
		s.Len(page, 5)
	})

	s.Run("decided records drop out", func() {
		_, err := s.service.Decide(s.ctx, models.Decision{ClientID: ids[0], Outcome: models.OutcomeApprove})
		s.Require().NoError(err)

		_, total, err := s.service.ListPending(s.ctx, 0, 20)
		s.Require().NoError(err)
		s.Equal(4, total)
	})
}

func (s *ApprovalServiceSuite) TestHistory_RequiresConfiguredTrail() {
	bare, err := New(s.store, s.workflows, tx.PassthroughRunner{})
	s.Require().NoError(err)

	_, err = bare.History(s.ctx, id.NewClientID())
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
}

func (s *ApprovalServiceSuite) TestHistory_ReturnsClientEvents() {
	trail := audit.NewInMemoryStore()
	service, err := New(s.store, s.workflows, tx.PassthroughRunner{}, WithAuditTrail(trail))
	s.Require().NoError(err)

	clientID := id.NewClientID()
	s.Require().NoError(trail.Append(s.ctx, audit.Event{
		Action:     audit.ActionClientSubmitted,
		EntityType: audit.EntityClient,
		EntityID:   clientID.String(),
		Timestamp:  s.now,
	}))
	s.Require().NoError(trail.Append(s.ctx, audit.Event{
		Action:     audit.ActionApprovalGranted,
		EntityType: audit.EntityClient,
		EntityID:   clientID.String(),
		Timestamp:  s.now.Add(time.Hour),
	}))

	events, err := service.History(s.ctx, clientID)
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.Equal(audit.ActionClientSubmitted, events[0].Action)
	s.Equal(audit.ActionApprovalGranted, events[1].Action)
}
