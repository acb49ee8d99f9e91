package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/sweenu/pretix-postfinance-sub000/internal/application"
	"github.com/sweenu/pretix-postfinance-sub000/internal/interfaces/rest"
)

// ExecutePayment re-queries the gateway and settles the payment record.
func (h *Handlers) ExecutePayment(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentID")

	if err := h.checkout.ExecutePayment(r.Context(), paymentID); err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}
	rest.WriteJSON(w, http.StatusOK, map[string]string{"payment_id": paymentID})
}

// CapturePayment completes a deferred transaction.
func (h *Handlers) CapturePayment(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentID")

	if err := h.checkout.Capture(r.Context(), paymentID); err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}
	rest.WriteJSON(w, http.StatusOK, map[string]string{"payment_id": paymentID})
}

// VoidPayment cancels an uncaptured transaction.
func (h *Handlers) VoidPayment(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentID")

	if err := h.checkout.Void(r.Context(), paymentID); err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}
	rest.WriteJSON(w, http.StatusOK, map[string]string{"payment_id": paymentID})
}

type RefundRequest struct {
	Amount string `json:"amount"`
}

// RefundPayment refunds part or all of a confirmed payment.
func (h *Handlers) RefundPayment(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentID")

	var req RefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rest.WriteError(w, application.NewInvalidInputError(err), h.logger)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		rest.WriteError(w, application.NewInvalidInputError(err), h.logger)
		return
	}

	refund, err := h.checkout.RefundPayment(r.Context(), paymentID, amount)
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}
	rest.WriteJSON(w, http.StatusCreated, toRefundView(refund))
}
