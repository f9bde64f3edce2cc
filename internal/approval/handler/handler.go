// Package handler exposes the approval engine over HTTP. All routes require a
// reviewer bearer token.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"veriflow/internal/approval/models"
	"veriflow/internal/audit"
	"veriflow/internal/platform/middleware"
	id "veriflow/pkg/domain"
	dErrors "veriflow/pkg/domain-errors"
	"veriflow/pkg/platform/httputil"
)

// Service defines the interface for approval operations.
type Service interface {
	Decide(ctx context.Context, decision models.Decision) (*models.ApprovalRecord, error)
	DecideBulk(ctx context.Context, decisions []models.Decision) ([]models.DecisionResult, error)
	ListPending(ctx context.Context, offset, limit int) ([]*models.ApprovalRecord, int, error)
	History(ctx context.Context, clientID id.ClientID) ([]audit.Event, error)
}

// Handler handles approval endpoints.
type Handler struct {
	approvals Service
	logger    *slog.Logger
	validator middleware.JWTValidator
}

// New creates a new approval Handler.
func New(approvals Service, logger *slog.Logger, validator middleware.JWTValidator) *Handler {
	return &Handler{approvals: approvals, logger: logger, validator: validator}
}

// Register registers the approval routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	approvalRouter := chi.NewRouter()
	if h.validator != nil {
		approvalRouter.Use(middleware.RequireReviewer(h.validator, h.logger))
	}
	approvalRouter.Get("/approvals/pending", h.handleListPending)
	approvalRouter.Post("/approvals/decide", h.handleDecide)
	approvalRouter.Post("/approvals/decide/bulk", h.handleDecideBulk)
	approvalRouter.Get("/approvals/{clientID}/audit", h.handleHistory)

	r.Mount("/", approvalRouter)
}

type decideRequest struct {
	ClientID        string `json:"client_id"`
	Outcome         string `json:"outcome"`
	Notes           string `json:"notes,omitempty"`
	RejectionReason string `json:"rejection_reason,omitempty"`
}

type bulkDecideRequest struct {
	Decisions []decideRequest `json:"decisions"`
}

type bulkDecideResponse struct {
	Results []models.DecisionResult `json:"results"`
}

type listPendingResponse struct {
	Approvals []*models.ApprovalRecord `json:"approvals"`
	Total     int                      `json:"total"`
	Offset    int                      `json:"offset"`
	Limit     int                      `json:"limit"`
}

type historyResponse struct {
	Events []audit.Event `json:"events"`
}

func (h *Handler) handleDecide(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req decideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	decision, err := parseDecision(req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	record, err := h.approvals.Decide(ctx, decision)
	if err != nil {
		h.logger.WarnContext(ctx, "decision rejected",
			"client_id", req.ClientID, "outcome", req.Outcome, "error", err.Error())
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
}

func (h *Handler) handleDecideBulk(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req bulkDecideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	decisions := make([]models.Decision, 0, len(req.Decisions))
	for i, item := range req.Decisions {
		decision, err := parseDecision(item)
		if err != nil {
			httputil.WriteError(w, dErrors.Newf(dErrors.CodeBadRequest,
				"decision %d: %s", i, err.Error()))
			return
		}
		decisions = append(decisions, decision)
	}

	results, err := h.approvals.DecideBulk(ctx, decisions)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	// 200 even when individual items failed; callers read per-item errors.
	httputil.WriteJSON(w, http.StatusOK, bulkDecideResponse{Results: results})
}

func (h *Handler) handleListPending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 20)

	records, total, err := h.approvals.ListPending(ctx, offset, limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listPendingResponse{
		Approvals: records,
		Total:     total,
		Offset:    offset,
		Limit:     limit,
	})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clientID, err := id.ParseClientID(chi.URLParam(r, "clientID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	events, err := h.approvals.History(ctx, clientID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, historyResponse{Events: events})
}

func parseDecision(req decideRequest) (models.Decision, error) {
	clientID, err := id.ParseClientID(req.ClientID)
	if err != nil {
		return models.Decision{}, err
	}
	outcome, err := models.ParseOutcome(req.Outcome)
	if err != nil {
		return models.Decision{}, dErrors.New(dErrors.CodeBadRequest, err.Error())
	}
	return models.Decision{
		ClientID:        clientID,
		Outcome:         outcome,
		Notes:           req.Notes,
		RejectionReason: req.RejectionReason,
	}, nil
}

func queryInt(r *http.Request, key string, fallback int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
