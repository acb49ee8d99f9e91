package services

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sweenu/pretix-postfinance-sub000/internal/application"
	"github.com/sweenu/pretix-postfinance-sub000/internal/domain"
)

// MockInstallmentRepository
type MockInstallmentRepository struct {
	mu           sync.RWMutex
	installments map[string]*domain.Installment

	CreateBatchFn      func(ctx context.Context, installments []*domain.Installment) error
	FindByOrderFn      func(ctx context.Context, orderCode string) ([]*domain.Installment, error)
	FindDueFn          func(ctx context.Context, asOf time.Time, limit int) ([]*domain.Installment, error)
	FindRetryableFn    func(ctx context.Context, now time.Time, limit int) ([]*domain.Installment, error)
	FindGraceExpiredFn func(ctx context.Context, now time.Time, limit int) ([]*domain.Installment, error)
	UpdateFn           func(ctx context.Context, installment *domain.Installment) error
	SumPaidByOrderFn   func(ctx context.Context, orderCode string) (decimal.Decimal, error)
}

func NewMockInstallmentRepository() *MockInstallmentRepository {
	return &MockInstallmentRepository{
		installments: make(map[string]*domain.Installment),
	}
}

// Seed stores installments directly, assigning ids when missing.
func (m *MockInstallmentRepository) Seed(installments ...*domain.Installment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inst := range installments {
		if inst.ID == "" {
			inst.ID = uuid.New().String()
		}
		m.installments[inst.ID] = inst
	}
}

func (m *MockInstallmentRepository) Get(id string) *domain.Installment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.installments[id]
}

func (m *MockInstallmentRepository) CreateBatch(ctx context.Context, installments []*domain.Installment) error {
	if m.CreateBatchFn != nil {
		return m.CreateBatchFn(ctx, installments)
	}
	m.Seed(installments...)
	return nil
}

func (m *MockInstallmentRepository) FindByOrder(ctx context.Context, orderCode string) ([]*domain.Installment, error) {
	if m.FindByOrderFn != nil {
		return m.FindByOrderFn(ctx, orderCode)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.Installment
	for _, inst := range m.installments {
		if inst.OrderCode == orderCode {
			result = append(result, inst)
		}
	}
	slices.SortFunc(result, func(a, b *domain.Installment) int {
		return a.Number - b.Number
	})
	return result, nil
}

func (m *MockInstallmentRepository) FindDue(ctx context.Context, asOf time.Time, limit int) ([]*domain.Installment, error) {
	if m.FindDueFn != nil {
		return m.FindDueFn(ctx, asOf, limit)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.Installment
	for _, inst := range m.installments {
		if inst.Status == domain.StatusScheduled && !inst.DueDate.After(asOf) {
			result = append(result, inst)
		}
	}
	return result, nil
}

func (m *MockInstallmentRepository) FindRetryable(ctx context.Context, now time.Time, limit int) ([]*domain.Installment, error) {
	if m.FindRetryableFn != nil {
		return m.FindRetryableFn(ctx, now, limit)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.Installment
	for _, inst := range m.installments {
		if inst.FailureState(now) == domain.FailureInGrace {
			result = append(result, inst)
		}
	}
	return result, nil
}

func (m *MockInstallmentRepository) FindGraceExpired(ctx context.Context, now time.Time, limit int) ([]*domain.Installment, error) {
	if m.FindGraceExpiredFn != nil {
		return m.FindGraceExpiredFn(ctx, now, limit)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.Installment
	for _, inst := range m.installments {
		if inst.FailureState(now) == domain.FailureExpired {
			result = append(result, inst)
		}
	}
	return result, nil
}

func (m *MockInstallmentRepository) Update(ctx context.Context, installment *domain.Installment) error {
	if m.UpdateFn != nil {
		return m.UpdateFn(ctx, installment)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.installments[installment.ID] = installment
	return nil
}

func (m *MockInstallmentRepository) SumPaidByOrder(ctx context.Context, orderCode string) (decimal.Decimal, error) {
	if m.SumPaidByOrderFn != nil {
		return m.SumPaidByOrderFn(ctx, orderCode)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := decimal.Zero
	for _, inst := range m.installments {
		if inst.OrderCode == orderCode && inst.Status == domain.StatusPaid {
			total = total.Add(inst.Amount)
		}
	}
	return total, nil
}

// MockOrderStore
type MockOrderStore struct {
	mu       sync.RWMutex
	orders   map[string]*domain.Order
	payments map[string]*domain.OrderPayment
	refunds  []*domain.OrderRefund
	actions  []LoggedAction

	FindByCodeFn   func(ctx context.Context, code string) (*domain.Order, error)
	MarkPaidFn     func(ctx context.Context, code string) error
	MarkCanceledFn func(ctx context.Context, code string) error
	CreateRefundFn func(ctx context.Context, refund *domain.OrderRefund) error
}

type LoggedAction struct {
	OrderCode string
	Action    string
	Data      map[string]any
}

func NewMockOrderStore() *MockOrderStore {
	return &MockOrderStore{
		orders:   make(map[string]*domain.Order),
		payments: make(map[string]*domain.OrderPayment),
	}
}

func (m *MockOrderStore) SeedOrder(order *domain.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[order.Code] = order
}

func (m *MockOrderStore) Payments() []*domain.OrderPayment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*domain.OrderPayment, 0, len(m.payments))
	for _, p := range m.payments {
		result = append(result, p)
	}
	return result
}

func (m *MockOrderStore) Refunds() []*domain.OrderRefund {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*domain.OrderRefund(nil), m.refunds...)
}

func (m *MockOrderStore) Actions() []LoggedAction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]LoggedAction(nil), m.actions...)
}

func (m *MockOrderStore) FindByCode(ctx context.Context, code string) (*domain.Order, error) {
	if m.FindByCodeFn != nil {
		return m.FindByCodeFn(ctx, code)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if order, ok := m.orders[code]; ok {
		return order, nil
	}
	return nil, application.ErrOrderNotFound
}

func (m *MockOrderStore) CreatePayment(ctx context.Context, payment *domain.OrderPayment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments[payment.ID] = payment
	return nil
}

func (m *MockOrderStore) UpdatePayment(ctx context.Context, payment *domain.OrderPayment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments[payment.ID] = payment
	return nil
}

func (m *MockOrderStore) FindPayment(ctx context.Context, id string) (*domain.OrderPayment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if payment, ok := m.payments[id]; ok {
		return payment, nil
	}
	return nil, application.ErrPaymentNotFound
}

func (m *MockOrderStore) FindPaymentByTransaction(ctx context.Context, transactionID int64) (*domain.OrderPayment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, payment := range m.payments {
		if id, ok := transactionIDFromInfo(payment.Info); ok && id == transactionID {
			return payment, nil
		}
	}
	return nil, application.ErrPaymentNotFound
}

func (m *MockOrderStore) CreateRefund(ctx context.Context, refund *domain.OrderRefund) error {
	if m.CreateRefundFn != nil {
		return m.CreateRefundFn(ctx, refund)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refunds = append(m.refunds, refund)
	return nil
}

func (m *MockOrderStore) MarkPaid(ctx context.Context, code string) error {
	if m.MarkPaidFn != nil {
		return m.MarkPaidFn(ctx, code)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if order, ok := m.orders[code]; ok {
		order.Status = domain.OrderPaid
	}
	return nil
}

func (m *MockOrderStore) MarkCanceled(ctx context.Context, code string) error {
	if m.MarkCanceledFn != nil {
		return m.MarkCanceledFn(ctx, code)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[code]
	if !ok {
		return application.ErrOrderNotFound
	}
	if !order.CanCancel() {
		return domain.NewOrderNotCancellableError(code, order.Status)
	}
	order.Status = domain.OrderCanceled
	return nil
}

func (m *MockOrderStore) LogAction(ctx context.Context, code, action string, data map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = append(m.actions, LoggedAction{OrderCode: code, Action: action, Data: data})
	return nil
}

// MockGatewayClient
type MockGatewayClient struct {
	mu    sync.Mutex
	calls map[string]int

	CreateTransactionFn   func(ctx context.Context, req application.CreateTransactionRequest) (*application.Transaction, error)
	GetTransactionFn      func(ctx context.Context, transactionID int64) (*application.Transaction, error)
	ChargeTokenFn         func(ctx context.Context, req application.ChargeTokenRequest) (*application.Transaction, error)
	CompleteTransactionFn func(ctx context.Context, transactionID int64) (*application.Transaction, error)
	VoidTransactionFn     func(ctx context.Context, transactionID int64) (*application.Transaction, error)
	RefundTransactionFn   func(ctx context.Context, req application.RefundRequest) (*application.RefundResult, error)
	PaymentPageURLFn      func(ctx context.Context, transactionID int64) (string, error)
	GetSpaceFn            func(ctx context.Context) error
}

func (m *MockGatewayClient) inc(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[method]++
}

func (m *MockGatewayClient) GetCalls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

func (m *MockGatewayClient) CreateTransaction(ctx context.Context, req application.CreateTransactionRequest) (*application.Transaction, error) {
	m.inc("CreateTransaction")
	if m.CreateTransactionFn != nil {
		return m.CreateTransactionFn(ctx, req)
	}
	return &application.Transaction{ID: 1001, State: "PENDING", Currency: req.Currency, MerchantReference: req.MerchantReference}, nil
}

func (m *MockGatewayClient) GetTransaction(ctx context.Context, transactionID int64) (*application.Transaction, error) {
	m.inc("GetTransaction")
	if m.GetTransactionFn != nil {
		return m.GetTransactionFn(ctx, transactionID)
	}
	return &application.Transaction{ID: transactionID, State: "COMPLETED"}, nil
}

func (m *MockGatewayClient) ChargeToken(ctx context.Context, req application.ChargeTokenRequest) (*application.Transaction, error) {
	m.inc("ChargeToken")
	if m.ChargeTokenFn != nil {
		return m.ChargeTokenFn(ctx, req)
	}
	return &application.Transaction{ID: 2001, State: "COMPLETED", Currency: req.Currency, AuthorizedAmount: req.Amount}, nil
}

func (m *MockGatewayClient) CompleteTransaction(ctx context.Context, transactionID int64) (*application.Transaction, error) {
	m.inc("CompleteTransaction")
	if m.CompleteTransactionFn != nil {
		return m.CompleteTransactionFn(ctx, transactionID)
	}
	return &application.Transaction{ID: transactionID, State: "COMPLETED"}, nil
}

func (m *MockGatewayClient) VoidTransaction(ctx context.Context, transactionID int64) (*application.Transaction, error) {
	m.inc("VoidTransaction")
	if m.VoidTransactionFn != nil {
		return m.VoidTransactionFn(ctx, transactionID)
	}
	return &application.Transaction{ID: transactionID, State: "VOIDED"}, nil
}

func (m *MockGatewayClient) RefundTransaction(ctx context.Context, req application.RefundRequest) (*application.RefundResult, error) {
	m.inc("RefundTransaction")
	if m.RefundTransactionFn != nil {
		return m.RefundTransactionFn(ctx, req)
	}
	return &application.RefundResult{ID: 3001, State: "SUCCESSFUL", Amount: req.Amount, ExternalID: req.ExternalID}, nil
}

func (m *MockGatewayClient) PaymentPageURL(ctx context.Context, transactionID int64) (string, error) {
	m.inc("PaymentPageURL")
	if m.PaymentPageURLFn != nil {
		return m.PaymentPageURLFn(ctx, transactionID)
	}
	return fmt.Sprintf("https://checkout.postfinance.example/pay/%d", transactionID), nil
}

func (m *MockGatewayClient) GetSpace(ctx context.Context) error {
	m.inc("GetSpace")
	if m.GetSpaceFn != nil {
		return m.GetSpaceFn(ctx)
	}
	return nil
}

// MockPlanRepository
type MockPlanRepository struct {
	mu    sync.RWMutex
	plans map[string]*domain.InstallmentPlan

	FindByEventFn func(ctx context.Context, eventSlug string) (*domain.InstallmentPlan, error)
}

func NewMockPlanRepository() *MockPlanRepository {
	return &MockPlanRepository{plans: make(map[string]*domain.InstallmentPlan)}
}

func (m *MockPlanRepository) Create(ctx context.Context, plan *domain.InstallmentPlan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plans[plan.ID] = plan
	return nil
}

func (m *MockPlanRepository) Update(ctx context.Context, plan *domain.InstallmentPlan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.plans[plan.ID]; !ok {
		return application.ErrPlanNotFound
	}
	m.plans[plan.ID] = plan
	return nil
}

func (m *MockPlanRepository) FindByID(ctx context.Context, id string) (*domain.InstallmentPlan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if plan, ok := m.plans[id]; ok {
		return plan, nil
	}
	return nil, application.ErrPlanNotFound
}

func (m *MockPlanRepository) FindByEvent(ctx context.Context, eventSlug string) (*domain.InstallmentPlan, error) {
	if m.FindByEventFn != nil {
		return m.FindByEventFn(ctx, eventSlug)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, plan := range m.plans {
		if plan.EventSlug == eventSlug {
			return plan, nil
		}
	}
	return nil, application.ErrPlanNotFound
}

// MockMailer records every message instead of sending it.
type MockMailer struct {
	mu   sync.Mutex
	sent []SentMail

	FailWith error
}

type SentMail struct {
	Kind      string
	OrderCode string
	To        []string
	Unpaid    []application.UnpaidInstallment
}

func (m *MockMailer) Sent() []SentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMail(nil), m.sent...)
}

func (m *MockMailer) record(kind, orderCode string, to ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	m.sent = append(m.sent, SentMail{Kind: kind, OrderCode: orderCode, To: to})
	return nil
}

func (m *MockMailer) SendInstallmentPaid(ctx context.Context, order *domain.Order, installment *domain.Installment) error {
	return m.record("installment_paid", order.Code, order.CustomerEmail)
}

func (m *MockMailer) SendInstallmentFailed(ctx context.Context, order *domain.Order, installment *domain.Installment) error {
	return m.record("installment_failed", order.Code, order.CustomerEmail)
}

func (m *MockMailer) SendOrganizerFailureAlert(ctx context.Context, order *domain.Order, installment *domain.Installment) error {
	return m.record("organizer_alert", order.Code, order.OrganizerEmails...)
}

func (m *MockMailer) SendOrderCanceled(ctx context.Context, order *domain.Order, refunded decimal.Decimal, unpaid []application.UnpaidInstallment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	m.sent = append(m.sent, SentMail{
		Kind:      "order_canceled",
		OrderCode: order.Code,
		To:        []string{order.CustomerEmail},
		Unpaid:    unpaid,
	})
	return nil
}
