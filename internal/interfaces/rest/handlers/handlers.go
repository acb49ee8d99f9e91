package handlers

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/sweenu/pretix-postfinance-sub000/internal/application/services"
	"github.com/sweenu/pretix-postfinance-sub000/internal/infrastructure/postfinance"
)

// Handlers wires the HTTP surface to the application services.
type Handlers struct {
	checkout     *services.CheckoutService
	plans        *services.PlanService
	installments *services.InstallmentService
	verifier     *postfinance.WebhookVerifier
	spaceID      int64
	logger       *slog.Logger
}

func NewHandlers(
	checkout *services.CheckoutService,
	plans *services.PlanService,
	installments *services.InstallmentService,
	verifier *postfinance.WebhookVerifier,
	spaceID int64,
	logger *slog.Logger,
) *Handlers {
	return &Handlers{
		checkout:     checkout,
		plans:        plans,
		installments: installments,
		verifier:     verifier,
		spaceID:      spaceID,
		logger:       logger,
	}
}

// Routes builds the router for the whole API surface.
func (h *Handlers) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/connection", h.TestConnection)

		r.Route("/orders/{code}", func(r chi.Router) {
			r.Get("/offer", h.GetOffer)
			r.Get("/installments", h.ListInstallments)
			r.Post("/checkout", h.CreateCheckout)
			r.Get("/payments/{paymentID}/return", h.HandleReturn)
		})

		r.Route("/payments/{paymentID}", func(r chi.Router) {
			r.Post("/execute", h.ExecutePayment)
			r.Post("/capture", h.CapturePayment)
			r.Post("/void", h.VoidPayment)
			r.Post("/refund", h.RefundPayment)
		})

		r.Route("/plans", func(r chi.Router) {
			r.Post("/", h.CreatePlan)
			r.Get("/{planID}", h.GetPlan)
			r.Put("/{planID}", h.UpdatePlan)
		})
		r.Get("/events/{slug}/plan", h.GetEventPlan)

		r.Post("/webhook", h.Webhook)
	})

	return r
}
