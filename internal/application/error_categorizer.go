package application

import (
	"context"
	"errors"
)

// ErrorCategory tells a sweep whether a failed charge is worth retrying
// inside the grace window or will never succeed.
type ErrorCategory string

const (
	CategoryRecoverable ErrorCategory = "RECOVERABLE"
	CategoryFatal       ErrorCategory = "FATAL"
)

// CategorizeError determines error category for retry and logging purposes
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}

	// Context errors are network/timeout conditions worth another attempt
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return CategoryRecoverable
	}

	if gwErr, ok := IsGatewayError(err); ok {
		if gwErr.Category != "" {
			return gwErr.Category
		}
		if gwErr.StatusCode >= 500 {
			return CategoryRecoverable
		}

		switch gwErr.Code {
		// FATAL: the customer or configuration must change first
		case "invalid_token":
			return CategoryFatal
		case "token_expired":
			return CategoryFatal
		case "card_expired":
			return CategoryFatal
		case "transaction_declined":
			return CategoryFatal
		case "invalid_space":
			return CategoryFatal
		case "authentication_failed":
			return CategoryFatal

		// RECOVERABLE: infrastructure hiccups on the gateway side
		case "internal_error":
			return CategoryRecoverable
		case "rate_limited":
			return CategoryRecoverable

		default:
			return CategoryFatal
		}
	}

	// Default: recoverable (safe fallback, the grace deadline still caps it)
	return CategoryRecoverable
}
