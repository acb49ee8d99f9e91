package email

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sweenu/pretix-postfinance-sub000/internal/application"
	"github.com/sweenu/pretix-postfinance-sub000/internal/config"
	"github.com/sweenu/pretix-postfinance-sub000/internal/domain"
)

// SMTPMailer sends plain-text order notifications over SMTP.
type SMTPMailer struct {
	addr string
	from string
	auth smtp.Auth
}

var _ application.Mailer = (*SMTPMailer)(nil)

func NewSMTPMailer(cfg config.MailerConfig) *SMTPMailer {
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &SMTPMailer{
		addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		from: cfg.From,
		auth: auth,
	}
}

func (m *SMTPMailer) SendInstallmentPaid(ctx context.Context, order *domain.Order, installment *domain.Installment) error {
	subject := fmt.Sprintf("Payment received for order %s", order.Code)
	body := fmt.Sprintf(`Hello,

we have received installment %d of %d for your order %s (%s).

Amount charged: %s %s

Thank you.`,
		installment.Number, installment.NumInstallments,
		order.Code, order.EventName,
		installment.Amount.StringFixed(2), installment.Currency,
	)
	return m.send([]string{order.CustomerEmail}, subject, body)
}

func (m *SMTPMailer) SendInstallmentFailed(ctx context.Context, order *domain.Order, installment *domain.Installment) error {
	subject := fmt.Sprintf("Payment failed for order %s", order.Code)
	deadline := "soon"
	if installment.GracePeriodEnds != nil {
		deadline = installment.GracePeriodEnds.Format("2006-01-02")
	}
	body := fmt.Sprintf(`Hello,

we could not charge installment %d of %d for your order %s (%s).

Amount due: %s %s

We will retry the charge automatically. Please make sure your card is
valid before %s, otherwise the order will be canceled and the amount
already paid refunded.`,
		installment.Number, installment.NumInstallments,
		order.Code, order.EventName,
		installment.Amount.StringFixed(2), installment.Currency,
		deadline,
	)
	return m.send([]string{order.CustomerEmail}, subject, body)
}

func (m *SMTPMailer) SendOrganizerFailureAlert(ctx context.Context, order *domain.Order, installment *domain.Installment) error {
	if len(order.OrganizerEmails) == 0 {
		return nil
	}
	subject := fmt.Sprintf("Installment charge failed for order %s", order.Code)
	reason := "unknown"
	if installment.FailureReason != nil {
		reason = *installment.FailureReason
	}
	body := fmt.Sprintf(`Installment %d of %d for order %s (%s) could not be charged.

Amount: %s %s
Reason: %s

The customer has been notified and the charge will be retried during
the grace period.`,
		installment.Number, installment.NumInstallments,
		order.Code, order.EventName,
		installment.Amount.StringFixed(2), installment.Currency,
		reason,
	)
	return m.send(order.OrganizerEmails, subject, body)
}

func (m *SMTPMailer) SendOrderCanceled(ctx context.Context, order *domain.Order, refunded decimal.Decimal, unpaid []application.UnpaidInstallment) error {
	subject := fmt.Sprintf("Order %s canceled", order.Code)

	var lines strings.Builder
	for _, row := range unpaid {
		fmt.Fprintf(&lines, "  Installment %d: %s %s", row.Number, row.Amount.StringFixed(2), order.Currency)
		if row.Reason != "" {
			fmt.Fprintf(&lines, " (%s)", row.Reason)
		}
		lines.WriteString("\n")
	}

	body := fmt.Sprintf(`Hello,

your order %s (%s) has been canceled because an installment payment
remained unpaid after the grace period.

The following installments were still open:

%s
Refunded amount: %s %s

If you believe this is a mistake, please contact the event organizer.`,
		order.Code, order.EventName,
		lines.String(),
		refunded.StringFixed(2), order.Currency,
	)
	return m.send([]string{order.CustomerEmail}, subject, body)
}

func (m *SMTPMailer) send(to []string, subject, body string) error {
	msg := []byte(fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		m.from, strings.Join(to, ", "), subject, body,
	))
	if err := smtp.SendMail(m.addr, m.auth, m.from, to, msg); err != nil {
		return fmt.Errorf("send mail to %s: %w", strings.Join(to, ", "), err)
	}
	return nil
}
