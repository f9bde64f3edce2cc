package handler

import (
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"veriflow/internal/platform/logger"
	"veriflow/internal/registry"
	valcache "veriflow/internal/validation/cache"
	valmodels "veriflow/internal/validation/models"
	valservice "veriflow/internal/validation/service"
	"veriflow/pkg/testutil"
)

type ValidationHandlerSuite struct {
	suite.Suite

	router chi.Router
}

func TestValidationHandlerSuite(t *testing.T) {
	suite.Run(t, new(ValidationHandlerSuite))
}

func (s *ValidationHandlerSuite) SetupTest() {
	validation := valservice.New(
		&registry.MockClient{
			RegistryName: "kvk",
			Records: map[string]registry.Record{
				"12345678": {Name: "Jansen Webdesign", Address: "Keizersgracht 1", Status: registry.RecordStatusActive},
			},
		},
		&registry.MockClient{
			RegistryName: "vies",
			Records: map[string]registry.Record{
				"NL123456789B01": {Name: "Jansen Webdesign", Status: registry.RecordStatusActive},
			},
		},
		valcache.NewInMemory(),
		valservice.Config{
			CompanyTTL:        15 * time.Minute,
			TaxTTL:            time.Hour,
			MaxBatchSize:      3,
			LookupConcurrency: 2,
		},
	)

	s.router = chi.NewRouter()
	New(validation, logger.New()).Register(s.router)
}

func (s *ValidationHandlerSuite) TestLookupCompany() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/validate/company", map[string]string{
		"identifier": "12345678",
	})
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusOK(s.T(), rr)

	result := testutil.UnmarshalResponse[valmodels.ValidationResult](s.T(), rr)
	s.True(result.IsValid)
	s.Equal(valmodels.SourceRegistry, result.Source)
	s.Equal("Jansen Webdesign", result.Name)

	s.Run("second lookup serves from cache", func() {
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/validate/company", map[string]string{
			"identifier": "12345678",
		}))
		testutil.AssertStatusOK(s.T(), rr)
		result := testutil.UnmarshalResponse[valmodels.ValidationResult](s.T(), rr)
		s.Equal(valmodels.SourceCache, result.Source)
	})
}

func (s *ValidationHandlerSuite) TestLookupRejectsUnknownKind() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/validate/iban", map[string]string{
		"identifier": "12345678",
	})
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
}

func (s *ValidationHandlerSuite) TestLookupRejectsMalformedIdentifier() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/validate/tax", map[string]string{
		"identifier": "BE123456789B01",
	})
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_failed")
}

func (s *ValidationHandlerSuite) TestBulkLookupMixedResults() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/validate/company/bulk", map[string][]string{
		"identifiers": {"12345678", "bogus", "99999999"},
	})
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusOK(s.T(), rr)

	response := testutil.UnmarshalResponse[bulkLookupResponse](s.T(), rr)
	s.Require().Len(response.Results, 3)
	s.True(response.Results["12345678"].IsValid)
	s.Equal(valmodels.SourceLocal, response.Results["bogus"].Source)
	s.False(response.Results["99999999"].IsValid)
}

func (s *ValidationHandlerSuite) TestBulkLookupOverCap() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/validate/company/bulk", map[string][]string{
		"identifiers": {"00000001", "00000002", "00000003", "00000004"},
	})
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
}

func (s *ValidationHandlerSuite) TestStats() {
	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/validate/company", map[string]string{
		"identifier": "12345678",
	}))
	testutil.AssertStatusOK(s.T(), rr)

	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/validate/stats"))
	testutil.AssertStatusOK(s.T(), rr)

	stats := testutil.UnmarshalResponse[valservice.Stats](s.T(), rr)
	s.Equal(uint64(1), stats.Total)
	s.Equal(uint64(1), stats.RegistryCalls)
}
