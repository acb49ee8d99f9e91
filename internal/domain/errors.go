package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// DomainError represents a business logic error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Domain validation errors
const (
	ErrCodeInvalidTransition       = "INVALID_TRANSITION"
	ErrCodeInvalidInstallmentCount = "INVALID_INSTALLMENT_COUNT"
	ErrCodeInvalidAmount           = "INVALID_AMOUNT"
	ErrCodeInvalidSchedule         = "INVALID_SCHEDULE"
	ErrCodeUnsupportedCurrency     = "UNSUPPORTED_CURRENCY"
	ErrCodeInvalidPlan             = "INVALID_PLAN"
	ErrCodeOrderNotCancellable     = "ORDER_NOT_CANCELLABLE"
	ErrCodeMissingRequiredField    = "MISSING_REQUIRED_FIELD"
)

func NewInvalidTransitionError(from, to InstallmentStatus) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidTransition,
		Message: fmt.Sprintf("cannot transition from %s to %s", from, to),
	}
}

func NewInvalidInstallmentCountError(count int) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidInstallmentCount,
		Message: fmt.Sprintf("installment count %d is outside the allowed range [%d, %d]", count, MinInstallmentCount, MaxInstallmentCount),
	}
}

func NewInvalidAmountError(amount decimal.Decimal) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidAmount,
		Message: fmt.Sprintf("invalid amount %s", amount.String()),
	}
}

func NewInvalidScheduleError(reason string) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidSchedule,
		Message: fmt.Sprintf("invalid schedule: %s", reason),
	}
}

func NewUnsupportedCurrencyError(currency string) *DomainError {
	return &DomainError{
		Code:    ErrCodeUnsupportedCurrency,
		Message: fmt.Sprintf("currency %s is not supported", currency),
	}
}

func NewInvalidPlanError(err error) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidPlan,
		Message: "installment plan validation failed",
		Err:     err,
	}
}

func NewOrderNotCancellableError(code string, status OrderStatus) *DomainError {
	return &DomainError{
		Code:    ErrCodeOrderNotCancellable,
		Message: fmt.Sprintf("order %s cannot be canceled from status %s", code, status),
	}
}

func NewMissingRequiredFieldError(field string) *DomainError {
	return &DomainError{
		Code:    ErrCodeMissingRequiredField,
		Message: fmt.Sprintf("%s is required", field),
	}
}

// IsErrorCode checks if an error is a DomainError with a specific code
func IsErrorCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}
