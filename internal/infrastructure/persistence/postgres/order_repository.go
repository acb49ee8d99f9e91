package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sweenu/pretix-postfinance-sub000/internal/application"
	"github.com/sweenu/pretix-postfinance-sub000/internal/domain"
)

// OrderRepository persists orders, their payments and refunds, and the
// audit trail of actions taken against them.
type OrderRepository struct {
	db *pgxpool.Pool
}

func NewOrderRepository(db *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) FindByCode(ctx context.Context, code string) (*domain.Order, error) {
	query := `
		SELECT code, event_slug, event_name, event_date, currency, total::text,
			status, customer_email, organizer_emails, created_at
		FROM orders
		WHERE code = $1
	`

	var m OrderModel
	err := r.db.QueryRow(ctx, query, code).Scan(
		&m.Code, &m.EventSlug, &m.EventName, &m.EventDate, &m.Currency, &m.Total,
		&m.Status, &m.CustomerEmail, &m.OrganizerEmails, &m.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, application.ErrOrderNotFound
		}
		return nil, fmt.Errorf("query order %s: %w", code, err)
	}
	return toOrder(m)
}

func (r *OrderRepository) CreatePayment(ctx context.Context, payment *domain.OrderPayment) error {
	query := `
		INSERT INTO order_payments (id, order_code, amount, state, info, created_at, confirmed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	if payment.ID == "" {
		payment.ID = uuid.New().String()
	}
	info, err := paymentInfoJSON(payment)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, query,
		payment.ID,
		payment.OrderCode,
		payment.Amount.String(),
		string(payment.State),
		info,
		payment.CreatedAt,
		payment.ConfirmedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment for %s: %w", payment.OrderCode, err)
	}
	return nil
}

func (r *OrderRepository) UpdatePayment(ctx context.Context, payment *domain.OrderPayment) error {
	query := `
		UPDATE order_payments
		SET state = $1, info = $2, confirmed_at = $3
		WHERE id = $4
	`

	info, err := paymentInfoJSON(payment)
	if err != nil {
		return err
	}

	result, err := r.db.Exec(ctx, query,
		string(payment.State),
		info,
		payment.ConfirmedAt,
		payment.ID,
	)
	if err != nil {
		return fmt.Errorf("update payment %s: %w", payment.ID, err)
	}
	if result.RowsAffected() == 0 {
		return application.ErrPaymentNotFound
	}
	return nil
}

func (r *OrderRepository) FindPayment(ctx context.Context, id string) (*domain.OrderPayment, error) {
	query := `
		SELECT id, order_code, amount::text, state, info, created_at, confirmed_at
		FROM order_payments
		WHERE id = $1
	`

	var m PaymentModel
	err := r.db.QueryRow(ctx, query, id).Scan(
		&m.ID, &m.OrderCode, &m.Amount, &m.State, &m.Info, &m.CreatedAt, &m.ConfirmedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, application.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("query payment %s: %w", id, err)
	}
	return toPayment(m)
}

// FindPaymentByTransaction looks a payment up by the gateway transaction id
// stored in its info payload. Webhook dispatch relies on this.
func (r *OrderRepository) FindPaymentByTransaction(ctx context.Context, transactionID int64) (*domain.OrderPayment, error) {
	query := `
		SELECT id, order_code, amount::text, state, info, created_at, confirmed_at
		FROM order_payments
		WHERE info->>'transaction_id' = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	var m PaymentModel
	err := r.db.QueryRow(ctx, query, strconv.FormatInt(transactionID, 10)).Scan(
		&m.ID, &m.OrderCode, &m.Amount, &m.State, &m.Info, &m.CreatedAt, &m.ConfirmedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, application.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("query payment by transaction %d: %w", transactionID, err)
	}
	return toPayment(m)
}

func (r *OrderRepository) CreateRefund(ctx context.Context, refund *domain.OrderRefund) error {
	query := `
		INSERT INTO order_refunds (id, order_code, amount, external_id, state, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	if refund.ID == "" {
		refund.ID = uuid.New().String()
	}

	_, err := r.db.Exec(ctx, query,
		refund.ID,
		refund.OrderCode,
		refund.Amount.String(),
		refund.ExternalID,
		string(refund.State),
		refund.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert refund for %s: %w", refund.OrderCode, err)
	}
	return nil
}

// MarkPaid transitions a pending order to paid. Already-paid orders are
// left alone so the transition stays idempotent.
func (r *OrderRepository) MarkPaid(ctx context.Context, code string) error {
	query := `
		UPDATE orders
		SET status = 'paid'
		WHERE code = $1 AND status IN ('pending', 'paid')
	`

	result, err := r.db.Exec(ctx, query, code)
	if err != nil {
		return fmt.Errorf("mark order %s paid: %w", code, err)
	}
	if result.RowsAffected() == 0 {
		return application.ErrOrderNotFound
	}
	return nil
}

// MarkCanceled transitions a pending or paid order to canceled.
func (r *OrderRepository) MarkCanceled(ctx context.Context, code string) error {
	query := `
		UPDATE orders
		SET status = 'canceled'
		WHERE code = $1 AND status IN ('pending', 'paid', 'canceled')
	`

	result, err := r.db.Exec(ctx, query, code)
	if err != nil {
		return fmt.Errorf("mark order %s canceled: %w", code, err)
	}
	if result.RowsAffected() == 0 {
		return application.ErrOrderNotFound
	}
	return nil
}

// LogAction appends an entry to the order's audit trail.
func (r *OrderRepository) LogAction(ctx context.Context, code, action string, data map[string]any) error {
	query := `
		INSERT INTO order_audit_log (id, order_code, action, data, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	payload := []byte("{}")
	if data != nil {
		encoded, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("encode audit data: %w", err)
		}
		payload = encoded
	}

	_, err := r.db.Exec(ctx, query, uuid.New().String(), code, action, payload, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("log action %s for %s: %w", action, code, err)
	}
	return nil
}
