package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sweenu/pretix-postfinance-sub000/internal/application"
	"github.com/sweenu/pretix-postfinance-sub000/internal/application/services"
	"github.com/sweenu/pretix-postfinance-sub000/internal/interfaces/rest"
)

type CheckoutRequest struct {
	NumInstallments int `json:"num_installments"`
}

// CreateCheckout starts a payment for an order and returns the payment page
// the customer is redirected to.
func (h *Handlers) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	var req CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rest.WriteError(w, application.NewInvalidInputError(err), h.logger)
		return
	}

	result, err := h.checkout.CreateCheckout(r.Context(), services.CheckoutCommand{
		OrderCode:       code,
		NumInstallments: req.NumInstallments,
	})
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	rest.WriteJSON(w, http.StatusCreated, CheckoutView{
		PaymentID:      result.PaymentID,
		TransactionID:  result.TransactionID,
		PaymentPageURL: result.PaymentPageURL,
	})
}

// GetOffer returns the installment counts available for an order. An empty
// list means only full payment is possible.
func (h *Handlers) GetOffer(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	counts, err := h.plans.OfferForOrder(r.Context(), code)
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}
	if counts == nil {
		counts = []int{}
	}

	rest.WriteJSON(w, http.StatusOK, OfferView{OrderCode: code, Installments: counts})
}

// ListInstallments returns the full schedule of an order.
func (h *Handlers) ListInstallments(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	installments, err := h.installments.ListInstallments(r.Context(), code)
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	views := make([]InstallmentView, 0, len(installments))
	for _, inst := range installments {
		views = append(views, toInstallmentView(inst))
	}
	rest.WriteJSON(w, http.StatusOK, views)
}

// HandleReturn settles a payment after the customer returned from the
// gateway. The outcome parameter is advisory only, the gateway is always
// re-queried for the real transaction state.
func (h *Handlers) HandleReturn(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentID")

	if err := h.checkout.ExecutePayment(r.Context(), paymentID); err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	rest.WriteJSON(w, http.StatusOK, map[string]string{
		"payment_id": paymentID,
		"outcome":    r.URL.Query().Get("outcome"),
	})
}
