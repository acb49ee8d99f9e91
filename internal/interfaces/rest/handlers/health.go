package handlers

import (
	"net/http"

	"github.com/sweenu/pretix-postfinance-sub000/internal/interfaces/rest"
)

// Health reports process liveness.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	rest.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// TestConnection verifies the configured space against the gateway.
func (h *Handlers) TestConnection(w http.ResponseWriter, r *http.Request) {
	if err := h.checkout.TestConnection(r.Context()); err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}
	rest.WriteJSON(w, http.StatusOK, map[string]string{"gateway": "reachable"})
}
