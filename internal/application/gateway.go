package application

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Completion behaviors for transaction creation.
const (
	CompletionImmediate = "COMPLETE_IMMEDIATELY"
	CompletionDeferred  = "COMPLETE_DEFERRED"
)

// TokenizationForced asks the gateway to store the payment method so later
// installments can be charged against the resulting token.
const TokenizationForced = "FORCE_CREATION"

// LineItem is one position on a gateway transaction.
type LineItem struct {
	UniqueID string
	Name     string
	Type     string
	Quantity int
	Amount   decimal.Decimal
}

type CreateTransactionRequest struct {
	Currency          string
	LineItems         []LineItem
	CustomerEmail     string
	MerchantReference string
	SuccessURL        string
	FailedURL         string

	CompletionBehavior    string
	TokenizationMode      string
	AllowedPaymentMethods []int64
}

type ChargeTokenRequest struct {
	TokenID           string
	Currency          string
	Amount            decimal.Decimal
	MerchantReference string
	CustomerEmail     string
}

type RefundRequest struct {
	TransactionID int64
	Amount        decimal.Decimal
	Currency      string

	// ExternalID deduplicates the refund on the gateway side.
	ExternalID string
}

// Transaction is the gateway's view of a payment attempt.
type Transaction struct {
	ID                int64
	State             string
	Currency          string
	AuthorizedAmount  decimal.Decimal
	CompletedAmount   decimal.Decimal
	TokenID           *string
	MerchantReference string
	FailureReason     string
}

type RefundResult struct {
	ID         int64
	State      string
	Amount     decimal.Decimal
	ExternalID string
}

// TransactionOutcome classifies a gateway transaction state.
type TransactionOutcome int

const (
	OutcomePending TransactionOutcome = iota
	OutcomeSuccess
	OutcomeFailure
)

var successStates = map[string]struct{}{
	"AUTHORIZED": {},
	"COMPLETED":  {},
	"FULFILL":    {},
	"CONFIRMED":  {},
	"PROCESSING": {},
}

var failureStates = map[string]struct{}{
	"FAILED":  {},
	"DECLINE": {},
	"VOIDED":  {},
}

// ClassifyTransactionState maps a raw gateway state onto an outcome. States
// the gateway has not settled yet stay pending.
func ClassifyTransactionState(state string) TransactionOutcome {
	if _, ok := successStates[state]; ok {
		return OutcomeSuccess
	}
	if _, ok := failureStates[state]; ok {
		return OutcomeFailure
	}
	return OutcomePending
}

// GatewayError is a failed call to the PostFinance API.
type GatewayError struct {
	Code       string
	Message    string
	StatusCode int
	Category   ErrorCategory
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway error [%s]: %s (status: %d)", e.Code, e.Message, e.StatusCode)
}

func IsGatewayError(err error) (*GatewayError, bool) {
	var gwErr *GatewayError
	ok := errors.As(err, &gwErr)
	return gwErr, ok
}
