package application

import (
	"errors"
	"fmt"
	"net/http"
)

// APPLICATION-LEVEL ERRORS (Orchestration)

type ServiceError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

const (
	ErrCodeInternal        = "INTERNAL_ERROR"
	ErrCodeInvalidInput    = "INVALID_INPUT"
	ErrCodeInvalidState    = "INVALID_STATE"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeGatewayRejected = "GATEWAY_REJECTED"
	ErrCodeNotOffered      = "INSTALLMENTS_NOT_OFFERED"
)

func NewInternalError(err error) *ServiceError {
	return &ServiceError{
		Code:       ErrCodeInternal,
		Message:    "An internal error occurred",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func NewInvalidInputError(err error) *ServiceError {
	return &ServiceError{
		Code:       ErrCodeInvalidInput,
		Message:    "Invalid input",
		HTTPStatus: http.StatusBadRequest,
		Err:        err,
	}
}

func NewInvalidStateError(err error) *ServiceError {
	return &ServiceError{
		Code:       ErrCodeInvalidState,
		Message:    "Invalid state",
		HTTPStatus: http.StatusConflict,
		Err:        err,
	}
}

func NewNotFoundError(resource string) *ServiceError {
	return &ServiceError{
		Code:       ErrCodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
	}
}

func NewGatewayRejectedError(err error) *ServiceError {
	return &ServiceError{
		Code:       ErrCodeGatewayRejected,
		Message:    "The payment gateway rejected the request",
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

func NewNotOfferedError() *ServiceError {
	return &ServiceError{
		Code:       ErrCodeNotOffered,
		Message:    "Installment payment is not offered for this order",
		HTTPStatus: http.StatusConflict,
	}
}

func IsServiceError(err error) (*ServiceError, bool) {
	var svcErr *ServiceError
	ok := errors.As(err, &svcErr)
	return svcErr, ok
}

// Sentinel persistence errors shared by the repository implementations.
var (
	ErrOrderNotFound       = errors.New("order not found")
	ErrPaymentNotFound     = errors.New("payment not found")
	ErrPlanNotFound        = errors.New("installment plan not found")
	ErrInstallmentNotFound = errors.New("installment not found")

	// ErrStaleInstallment signals a lost optimistic-locking race; the row
	// changed underneath the caller and must be re-read.
	ErrStaleInstallment = errors.New("installment was modified concurrently")
)

// IsErrorNotFound reports whether err is one of the not-found sentinels.
func IsErrorNotFound(err error) bool {
	return errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrPaymentNotFound) ||
		errors.Is(err, ErrPlanNotFound) ||
		errors.Is(err, ErrInstallmentNotFound)
}
