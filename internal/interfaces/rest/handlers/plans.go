package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/sweenu/pretix-postfinance-sub000/internal/application"
	"github.com/sweenu/pretix-postfinance-sub000/internal/domain"
	"github.com/sweenu/pretix-postfinance-sub000/internal/interfaces/rest"
)

type PlanRequest struct {
	EventSlug               string `json:"event_slug"`
	Name                    string `json:"name"`
	NumInstallments         int    `json:"num_installments"`
	MinAmount               string `json:"min_amount"`
	MaxInstallmentsOverride int    `json:"max_installments_override"`
	Enabled                 bool   `json:"enabled"`
}

func (req *PlanRequest) toPlan() (*domain.InstallmentPlan, error) {
	minAmount := decimal.Zero
	if req.MinAmount != "" {
		parsed, err := decimal.NewFromString(req.MinAmount)
		if err != nil {
			return nil, err
		}
		minAmount = parsed
	}
	return &domain.InstallmentPlan{
		EventSlug:               req.EventSlug,
		Name:                    req.Name,
		NumInstallments:         req.NumInstallments,
		MinAmount:               minAmount,
		MaxInstallmentsOverride: req.MaxInstallmentsOverride,
		Enabled:                 req.Enabled,
	}, nil
}

// CreatePlan stores a new installment plan for an event.
func (h *Handlers) CreatePlan(w http.ResponseWriter, r *http.Request) {
	var req PlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rest.WriteError(w, application.NewInvalidInputError(err), h.logger)
		return
	}

	plan, err := req.toPlan()
	if err != nil {
		rest.WriteError(w, application.NewInvalidInputError(err), h.logger)
		return
	}

	if err := h.plans.CreatePlan(r.Context(), plan); err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}
	rest.WriteJSON(w, http.StatusCreated, toPlanView(plan))
}

// GetPlan retrieves a plan by id.
func (h *Handlers) GetPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := h.plans.GetPlan(r.Context(), chi.URLParam(r, "planID"))
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}
	rest.WriteJSON(w, http.StatusOK, toPlanView(plan))
}

// UpdatePlan stores changes to an existing plan.
func (h *Handlers) UpdatePlan(w http.ResponseWriter, r *http.Request) {
	var req PlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rest.WriteError(w, application.NewInvalidInputError(err), h.logger)
		return
	}

	plan, err := req.toPlan()
	if err != nil {
		rest.WriteError(w, application.NewInvalidInputError(err), h.logger)
		return
	}
	plan.ID = chi.URLParam(r, "planID")

	if err := h.plans.UpdatePlan(r.Context(), plan); err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}
	rest.WriteJSON(w, http.StatusOK, toPlanView(plan))
}

// GetEventPlan retrieves the plan configured for an event.
func (h *Handlers) GetEventPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := h.plans.PlanForEvent(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}
	rest.WriteJSON(w, http.StatusOK, toPlanView(plan))
}
