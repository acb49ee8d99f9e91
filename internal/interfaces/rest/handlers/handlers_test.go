package handlers_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sweenu/pretix-postfinance-sub000/internal/application/services"
	"github.com/sweenu/pretix-postfinance-sub000/internal/domain"
	"github.com/sweenu/pretix-postfinance-sub000/internal/infrastructure/postfinance"
	"github.com/sweenu/pretix-postfinance-sub000/internal/interfaces/rest/handlers"
)

const webhookSpaceID = int64(405)

var webhookSecret = []byte("webhook-secret")

type handlerFixture struct {
	orders       *services.MockOrderStore
	installments *services.MockInstallmentRepository
	plans        *services.MockPlanRepository
	gateway      *services.MockGatewayClient
	server       *httptest.Server
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	f := &handlerFixture{
		orders:       services.NewMockOrderStore(),
		installments: services.NewMockInstallmentRepository(),
		plans:        services.NewMockPlanRepository(),
		gateway:      &services.MockGatewayClient{},
	}

	checkout := services.NewCheckoutService(f.orders, f.installments, f.plans, f.gateway, services.CheckoutConfig{
		BaseReturnURL: "https://tickets.example.com",
		CaptureMode:   "immediate",
	}, logger)
	planSvc := services.NewPlanService(f.plans, f.orders, logger)
	installmentSvc := services.NewInstallmentService(f.installments, f.orders, f.gateway, &services.MockMailer{}, services.SweepConfig{
		GracePeriod: 72 * time.Hour,
		BatchSize:   100,
	}, logger)

	verifier, err := postfinance.NewWebhookVerifier(base64.StdEncoding.EncodeToString(webhookSecret))
	require.NoError(t, err)

	h := handlers.NewHandlers(checkout, planSvc, installmentSvc, verifier, webhookSpaceID, logger)
	f.server = httptest.NewServer(h.Routes())
	t.Cleanup(f.server.Close)
	return f
}

func (f *handlerFixture) seedOrder() {
	f.orders.SeedOrder(&domain.Order{
		Code:            "ABC12",
		EventSlug:       "democon",
		EventName:       "DemoCon",
		EventDate:       time.Now().AddDate(1, 0, 0),
		Currency:        "CHF",
		Total:           decimal.RequireFromString("100.00"),
		Status:          domain.OrderPending,
		CustomerEmail:   "customer@example.org",
		OrganizerEmails: []string{"orga@example.org"},
	})
}

func (f *handlerFixture) seedPlan() {
	f.plans.Create(context.Background(), &domain.InstallmentPlan{
		ID:              "plan-1",
		EventSlug:       "democon",
		Name:            "Pay in parts",
		NumInstallments: 4,
		MinAmount:       decimal.RequireFromString("50.00"),
		Enabled:         true,
	})
}

func signWebhookBody(body []byte) string {
	mac := hmac.New(sha256.New, webhookSecret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestCreateCheckout(t *testing.T) {
	f := newHandlerFixture(t)
	f.seedOrder()
	f.seedPlan()

	resp, err := http.Post(
		f.server.URL+"/api/v1/orders/ABC12/checkout",
		"application/json",
		strings.NewReader(`{"num_installments": 4}`),
	)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var envelope struct {
		Success bool                  `json:"success"`
		Data    handlers.CheckoutView `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	assert.True(t, envelope.Success)
	assert.NotEmpty(t, envelope.Data.PaymentID)
	assert.Equal(t, int64(1001), envelope.Data.TransactionID)
	assert.NotEmpty(t, envelope.Data.PaymentPageURL)
}

func TestCreateCheckout_UnknownOrder(t *testing.T) {
	f := newHandlerFixture(t)

	resp, err := http.Post(
		f.server.URL+"/api/v1/orders/NOPE1/checkout",
		"application/json",
		strings.NewReader(`{"num_installments": 0}`),
	)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetOffer(t *testing.T) {
	f := newHandlerFixture(t)
	f.seedOrder()
	f.seedPlan()

	resp, err := http.Get(f.server.URL + "/api/v1/orders/ABC12/offer")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var envelope struct {
		Data handlers.OfferView `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	assert.Equal(t, "ABC12", envelope.Data.OrderCode)
	assert.Contains(t, envelope.Data.Installments, 2)
}

func TestGetOffer_NoPlanMeansEmptyOffer(t *testing.T) {
	f := newHandlerFixture(t)
	f.seedOrder()

	resp, err := http.Get(f.server.URL + "/api/v1/orders/ABC12/offer")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var envelope struct {
		Data handlers.OfferView `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	assert.Empty(t, envelope.Data.Installments)
}

func TestCreatePlan_RejectsInvalidCount(t *testing.T) {
	f := newHandlerFixture(t)

	resp, err := http.Post(
		f.server.URL+"/api/v1/plans/",
		"application/json",
		strings.NewReader(`{"event_slug":"democon","name":"Pay in parts","num_installments":1,"enabled":true}`),
	)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebhook(t *testing.T) {
	newBody := func() []byte {
		return []byte(`{"eventId":9,"entityId":1001,"spaceId":405,"state":"COMPLETED","listenerEntityTechnicalName":"Transaction"}`)
	}

	t.Run("confirms the payment behind the transaction", func(t *testing.T) {
		f := newHandlerFixture(t)
		f.seedOrder()
		f.orders.CreatePayment(context.Background(), &domain.OrderPayment{
			ID:        "pay-1",
			OrderCode: "ABC12",
			Amount:    decimal.RequireFromString("100.00"),
			State:     domain.PaymentPending,
			Info:      map[string]any{"transaction_id": int64(1001), "type": "full"},
			CreatedAt: time.Now(),
		})

		body := newBody()
		req, err := http.NewRequest(http.MethodPost, f.server.URL+"/api/v1/webhook", strings.NewReader(string(body)))
		require.NoError(t, err)
		req.Header.Set("X-Signature", signWebhookBody(body))

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		payments := f.orders.Payments()
		require.Len(t, payments, 1)
		assert.Equal(t, domain.PaymentConfirmed, payments[0].State)
	})

	t.Run("rejects a bad signature", func(t *testing.T) {
		f := newHandlerFixture(t)

		body := newBody()
		req, err := http.NewRequest(http.MethodPost, f.server.URL+"/api/v1/webhook", strings.NewReader(string(body)))
		require.NoError(t, err)
		req.Header.Set("X-Signature", "deadbeef")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("rejects a foreign space", func(t *testing.T) {
		f := newHandlerFixture(t)

		body := []byte(`{"eventId":9,"entityId":1001,"spaceId":999,"state":"COMPLETED"}`)
		req, err := http.NewRequest(http.MethodPost, f.server.URL+"/api/v1/webhook", strings.NewReader(string(body)))
		require.NoError(t, err)
		req.Header.Set("X-Signature", signWebhookBody(body))

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("ignores unknown transactions", func(t *testing.T) {
		f := newHandlerFixture(t)

		body := newBody()
		req, err := http.NewRequest(http.MethodPost, f.server.URL+"/api/v1/webhook", strings.NewReader(string(body)))
		require.NoError(t, err)
		req.Header.Set("X-Signature", signWebhookBody(body))

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}
