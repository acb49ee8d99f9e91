package rest

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sweenu/pretix-postfinance-sub000/internal/application"
	"github.com/sweenu/pretix-postfinance-sub000/internal/domain"
)

type SuccessResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

type ErrorResponse struct {
	Success bool        `json:"success"`
	Error   ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func WriteJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(SuccessResponse{Success: true, Data: data})
}

// WriteError maps application and domain errors to HTTP responses.
func WriteError(w http.ResponseWriter, err error, logger *slog.Logger) {
	statusCode, errorCode := classify(err)

	if statusCode >= http.StatusInternalServerError {
		logger.Error("request failed", "code", errorCode, "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{
		Success: false,
		Error: ErrorDetail{
			Code:    errorCode,
			Message: err.Error(),
		},
	})
}

func classify(err error) (int, string) {
	if svcErr, ok := application.IsServiceError(err); ok {
		return svcErr.HTTPStatus, svcErr.Code
	}
	if application.IsErrorNotFound(err) {
		return http.StatusNotFound, application.ErrCodeNotFound
	}
	if gwErr, ok := application.IsGatewayError(err); ok {
		return http.StatusBadGateway, gwErr.Code
	}
	var domErr *domain.DomainError
	if errors.As(err, &domErr) {
		return http.StatusBadRequest, domErr.Code
	}
	return http.StatusInternalServerError, application.ErrCodeInternal
}
