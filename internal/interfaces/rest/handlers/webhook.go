package handlers

import (
	"io"
	"net/http"

	"github.com/sweenu/pretix-postfinance-sub000/internal/infrastructure/postfinance"
	"github.com/sweenu/pretix-postfinance-sub000/internal/interfaces/rest"
)

const maxWebhookBody = 1 << 20

// Webhook receives transaction state notifications from the gateway. The
// response is always 200 for accepted notifications so the gateway stops
// redelivering them.
func (h *Handlers) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return
	}

	if h.verifier != nil {
		if !h.verifier.Verify(body, r.Header.Get("X-Signature")) {
			h.logger.Warn("webhook signature rejected")
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
	}

	payload, err := postfinance.ParseWebhookPayload(body)
	if err != nil {
		h.logger.Warn("webhook payload rejected", "error", err)
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	if payload.SpaceID != h.spaceID {
		h.logger.Warn("webhook for foreign space", "space_id", payload.SpaceID)
		http.Error(w, "unknown space", http.StatusBadRequest)
		return
	}

	if err := h.checkout.HandleTransactionUpdate(r.Context(), payload.EntityID); err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusOK)
}
