// Package handler exposes the onboarding workflow over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"veriflow/internal/onboarding/models"
	"veriflow/internal/onboarding/service"
	id "veriflow/pkg/domain"
	dErrors "veriflow/pkg/domain-errors"
	"veriflow/pkg/platform/httputil"
)

// Service defines the interface for onboarding operations.
type Service interface {
	Submit(ctx context.Context, sub service.Submission) (*models.WorkflowState, error)
	RedeemConfirmation(ctx context.Context, token string) (*models.WorkflowState, error)
	ResendConfirmation(ctx context.Context, clientID id.ClientID) error
	Activate(ctx context.Context, clientID id.ClientID) (*models.WorkflowState, error)
	GetState(ctx context.Context, clientID id.ClientID) (*models.WorkflowState, error)
}

// Handler handles onboarding endpoints.
type Handler struct {
	onboarding Service
	logger     *slog.Logger
}

// New creates a new onboarding Handler.
func New(onboarding Service, logger *slog.Logger) *Handler {
	return &Handler{onboarding: onboarding, logger: logger}
}

// Register registers the onboarding routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/clients", h.handleSubmit)
	r.Get("/clients/{clientID}", h.handleGetState)
	r.Post("/clients/{clientID}/confirmation/resend", h.handleResendConfirmation)
	r.Post("/clients/{clientID}/activate", h.handleActivate)
	r.Post("/confirmations/redeem", h.handleRedeemConfirmation)
}

type submitRequest struct {
	ClientID      string `json:"client_id,omitempty"`
	CompanyNumber string `json:"company_number"`
	TaxNumber     string `json:"tax_number"`
}

type redeemRequest struct {
	Token string `json:"token"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	clientID := id.NewClientID()
	if req.ClientID != "" {
		parsed, err := id.ParseClientID(req.ClientID)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		clientID = parsed
	}

	state, err := h.onboarding.Submit(ctx, service.Submission{
		ClientID:      clientID,
		CompanyNumber: req.CompanyNumber,
		TaxNumber:     req.TaxNumber,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "submission rejected",
			"client_id", clientID.String(), "error", err.Error())
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, state)
}

func (h *Handler) handleGetState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clientID, err := id.ParseClientID(chi.URLParam(r, "clientID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	state, err := h.onboarding.GetState(ctx, clientID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, state)
}

func (h *Handler) handleRedeemConfirmation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req redeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	state, err := h.onboarding.RedeemConfirmation(ctx, req.Token)
	if err != nil {
		h.logger.WarnContext(ctx, "confirmation redemption failed", "error", err.Error())
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, state)
}

func (h *Handler) handleResendConfirmation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clientID, err := id.ParseClientID(chi.URLParam(r, "clientID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.onboarding.ResendConfirmation(ctx, clientID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleActivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clientID, err := id.ParseClientID(chi.URLParam(r, "clientID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	state, err := h.onboarding.Activate(ctx, clientID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, state)
}
