package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	apprmodels "veriflow/internal/approval/models"
	apprservice "veriflow/internal/approval/service"
	apprstore "veriflow/internal/approval/store"
	"veriflow/internal/onboarding/models"
	observice "veriflow/internal/onboarding/service"
	obstore "veriflow/internal/onboarding/store"
	"veriflow/internal/platform/logger"
	"veriflow/internal/registry"
	tokenservice "veriflow/internal/token/service"
	tokenstore "veriflow/internal/token/store"
	valcache "veriflow/internal/validation/cache"
	valservice "veriflow/internal/validation/service"
	id "veriflow/pkg/domain"
	"veriflow/pkg/platform/tx"
	"veriflow/pkg/requestcontext"
	"veriflow/pkg/testutil"
)

// captureNotifier records issued confirmation links for the test to redeem.
type captureNotifier struct {
	tokens []string
}

func (n *captureNotifier) SendConfirmationLink(_ context.Context, _ id.ClientID, token string) error {
	n.tokens = append(n.tokens, token)
	return nil
}

// OnboardingHandlerSuite drives the HTTP surface against the real service
// stack on in-memory stores; only the registries are canned.
type OnboardingHandlerSuite struct {
	suite.Suite

	router    chi.Router
	notifier  *captureNotifier
	approvals *apprservice.Service
}

func TestOnboardingHandlerSuite(t *testing.T) {
	suite.Run(t, new(OnboardingHandlerSuite))
}

func (s *OnboardingHandlerSuite) SetupTest() {
	validator := valservice.New(
		&registry.MockClient{
			RegistryName: "kvk",
			Records: map[string]registry.Record{
				"12345678": {Name: "Jansen Webdesign", Status: registry.RecordStatusActive},
			},
		},
		&registry.MockClient{
			RegistryName: "vies",
			Records: map[string]registry.Record{
				"NL123456789B01": {Name: "Jansen Webdesign", Status: registry.RecordStatusActive},
			},
		},
		valcache.NewInMemory(),
		valservice.DefaultConfig(),
	)

	tokens, err := tokenservice.New(tokenstore.NewInMemory(), time.Hour, nil)
	s.Require().NoError(err)

	s.notifier = &captureNotifier{}
	onboarding, err := observice.New(obstore.NewInMemory(), validator, tokens, nil, s.notifier)
	s.Require().NoError(err)

	approvals, err := apprservice.New(apprstore.NewInMemory(), onboarding, tx.PassthroughRunner{})
	s.Require().NoError(err)
	onboarding.SetApprovals(approvals)
	s.approvals = approvals

	s.router = chi.NewRouter()
	New(onboarding, logger.New()).Register(s.router)
}

func (s *OnboardingHandlerSuite) submitClient() string {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/clients", map[string]string{
		"company_number": "12345678",
		"tax_number":     "NL123456789B01",
	})
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusCreated)

	state := testutil.UnmarshalResponse[models.WorkflowState](s.T(), rr)
	s.Equal(models.StepAwaitingConfirmation, state.CurrentStep)
	return state.ClientID.String()
}

func (s *OnboardingHandlerSuite) TestSubmitRedeemActivateOverHTTP() {
	clientID := s.submitClient()
	s.Require().Len(s.notifier.tokens, 1)

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/confirmations/redeem", map[string]string{
		"token": s.notifier.tokens[0],
	})
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusOK(s.T(), rr)
	state := testutil.UnmarshalResponse[models.WorkflowState](s.T(), rr)
	s.Equal(models.StepPendingApproval, state.CurrentStep)

	parsed, err := id.ParseClientID(clientID)
	s.Require().NoError(err)
	reviewerCtx := requestcontext.WithActorID(context.Background(), id.NewReviewerID())
	_, err = s.approvals.Decide(reviewerCtx, apprmodels.Decision{
		ClientID: parsed,
		Outcome:  apprmodels.OutcomeApprove,
	})
	s.Require().NoError(err)

	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodPost, "/clients/"+clientID+"/activate"))
	testutil.AssertStatusOK(s.T(), rr)
	state = testutil.UnmarshalResponse[models.WorkflowState](s.T(), rr)
	s.Equal(models.StepActive, state.CurrentStep)

	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/clients/"+clientID))
	testutil.AssertStatusOK(s.T(), rr)
	final := testutil.UnmarshalResponse[models.WorkflowState](s.T(), rr)
	s.Equal(models.StepActive, final.CurrentStep)
	s.Len(final.StepHistory, 6)
}

func (s *OnboardingHandlerSuite) TestSubmitRejectsMalformedBody() {
	req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/clients", `{"company_number":`)
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
}

func (s *OnboardingHandlerSuite) TestSubmitRejectsInvalidIdentifier() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/clients", map[string]string{
		"company_number": "not-a-number",
		"tax_number":     "NL123456789B01",
	})
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_failed")
}

func (s *OnboardingHandlerSuite) TestRedeemUnknownTokenNotFound() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/confirmations/redeem", map[string]string{
		"token": "nonexistent",
	})
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
}

func (s *OnboardingHandlerSuite) TestRedeemTwiceConflicts() {
	s.submitClient()
	body := map[string]string{"token": s.notifier.tokens[0]}

	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/confirmations/redeem", body))
	testutil.AssertStatusOK(s.T(), rr)

	rr = testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/confirmations/redeem", body))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "already_used")
}

func (s *OnboardingHandlerSuite) TestResendReturnsNoContent() {
	clientID := s.submitClient()

	rr := testutil.DoRequest(s.router,
		testutil.NewRequest(s.T(), http.MethodPost, "/clients/"+clientID+"/confirmation/resend"))
	testutil.AssertStatus(s.T(), rr, http.StatusNoContent)
	s.Len(s.notifier.tokens, 2)
}

func (s *OnboardingHandlerSuite) TestActivateBeforeApprovalConflicts() {
	clientID := s.submitClient()

	rr := testutil.DoRequest(s.router,
		testutil.NewRequest(s.T(), http.MethodPost, "/clients/"+clientID+"/activate"))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "invalid_transition")
}

func (s *OnboardingHandlerSuite) TestGetStateUnknownClient() {
	rr := testutil.DoRequest(s.router,
		testutil.NewRequest(s.T(), http.MethodGet, "/clients/"+id.NewClientID().String()))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
}
