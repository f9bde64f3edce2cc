// Package handler exposes the validation cache over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	valmodels "veriflow/internal/validation/models"
	valservice "veriflow/internal/validation/service"
	dErrors "veriflow/pkg/domain-errors"
	"veriflow/pkg/platform/httputil"
)

// Service defines the interface for validation operations.
type Service interface {
	Lookup(ctx context.Context, kind valmodels.IdentifierKind, raw string) (valmodels.ValidationResult, error)
	LookupMany(ctx context.Context, kind valmodels.IdentifierKind, raws []string) (map[string]valmodels.ValidationResult, error)
	Stats() valservice.Stats
}

// Handler handles validation endpoints.
type Handler struct {
	validation Service
	logger     *slog.Logger
}

// New creates a new validation Handler.
func New(validation Service, logger *slog.Logger) *Handler {
	return &Handler{validation: validation, logger: logger}
}

// Register registers the validation routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/validate/{kind}", h.handleLookup)
	r.Post("/validate/{kind}/bulk", h.handleLookupBulk)
	r.Get("/validate/stats", h.handleStats)
}

type lookupRequest struct {
	Identifier string `json:"identifier"`
}

type bulkLookupRequest struct {
	Identifiers []string `json:"identifiers"`
}

type bulkLookupResponse struct {
	Results map[string]valmodels.ValidationResult `json:"results"`
}

func (h *Handler) handleLookup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	kind, err := valmodels.ParseIdentifierKind(chi.URLParam(r, "kind"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, err.Error()))
		return
	}

	var req lookupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	result, err := h.validation.Lookup(ctx, kind, req.Identifier)
	if err != nil {
		h.logger.WarnContext(ctx, "lookup rejected",
			"kind", kind, "error", err.Error())
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleLookupBulk(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	kind, err := valmodels.ParseIdentifierKind(chi.URLParam(r, "kind"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, err.Error()))
		return
	}

	var req bulkLookupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	results, err := h.validation.LookupMany(ctx, kind, req.Identifiers)
	if err != nil {
		h.logger.WarnContext(ctx, "bulk lookup rejected",
			"kind", kind, "count", len(req.Identifiers), "error", err.Error())
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, bulkLookupResponse{Results: results})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.validation.Stats())
}
