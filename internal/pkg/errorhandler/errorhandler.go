// Package errorhandler turns domain errors into API responses.
package errorhandler

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/dispatchly/ledger-api/internal/middleware"
	"github.com/dispatchly/ledger-api/internal/pkg/paystack"
	"github.com/dispatchly/ledger-api/internal/pkg/response"
)

// Mapping binds a sentinel error to a stable API code.
type Mapping struct {
	Err     error
	Status  int
	Code    string
	Message string
}

// Write sends the first mapping matching err. Gateway errors surface the
// provider message with 502. Anything else is logged and answered with a
// generic 500 so internals never leak to clients.
func Write(ctx context.Context, w http.ResponseWriter, err error, mappings []Mapping) {
	for _, m := range mappings {
		if errors.Is(err, m.Err) {
			log.Warn().
				Str("request_id", middleware.GetRequestID(ctx)).
				Str("error_code", m.Code).
				Err(err).
				Msg("Request rejected")
			response.Error(w, m.Status, m.Code, m.Message)
			return
		}
	}

	var gwErr *paystack.Error
	if errors.As(err, &gwErr) {
		LogExternalServiceError(ctx, "paystack", gwErr.Op, gwErr.StatusCode, err)
		response.Error(w, http.StatusBadGateway, "GATEWAY_ERROR", gwErr.Message)
		return
	}

	HandleError(ctx, w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", err)
}

// HandleError logs the error with the request id and sends a response that
// carries only the code and message.
func HandleError(ctx context.Context, w http.ResponseWriter, status int, code, message string, err error) {
	event := log.Error().
		Str("request_id", middleware.GetRequestID(ctx)).
		Str("error_code", code).
		Int("status_code", status)

	if err != nil {
		event.Err(err)
	}

	event.Msg("Request error")

	response.Error(w, status, code, message)
}

// LogValidationError logs validation errors with details
func LogValidationError(ctx context.Context, fieldErrors map[string]string) {
	log.Warn().
		Str("request_id", middleware.GetRequestID(ctx)).
		Interface("validation_errors", fieldErrors).
		Msg("Validation error")
}

// LogExternalServiceError logs errors from external service calls
func LogExternalServiceError(ctx context.Context, service, operation string, statusCode int, err error) {
	log.Error().
		Str("request_id", middleware.GetRequestID(ctx)).
		Str("external_service", service).
		Str("operation", operation).
		Int("status_code", statusCode).
		Err(err).
		Msg("External service error")
}
