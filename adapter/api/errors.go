package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	shared "github.com/felixgeelhaar/taskbrain/internal/shared/domain"
	"github.com/felixgeelhaar/taskbrain/pkg/observability"
)

// writeError maps domain errors onto HTTP status codes. Validation gives
// 422 with field messages, not-found 404, webhook verification 401, rate
// limits 429 with Retry-After, integration failures a generic 503 (the
// upstream cause is logged, never leaked), and anything unexpected a 500
// carrying only the correlation ID.
func writeError(ctx context.Context, w http.ResponseWriter, logger *slog.Logger, err error) {
	var (
		validationErr   *shared.ValidationError
		notFoundErr     *shared.NotFoundError
		verificationErr *shared.WebhookVerificationError
		authnErr        *shared.AuthenticationError
		authzErr        *shared.AuthorizationError
		rateErr         *shared.RateLimitError
		integrationErr  *shared.IntegrationError
	)

	switch {
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  "validation failed",
			"errors": validationErr.Errors,
		})
	case errors.As(err, &notFoundErr):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": notFoundErr.Error()})
	case errors.As(err, &verificationErr):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "webhook signature verification failed"})
	case errors.As(err, &authnErr):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": authnErr.Error()})
	case errors.As(err, &authzErr):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": authzErr.Error()})
	case errors.As(err, &rateErr):
		if rateErr.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(rateErr.RetryAfter.Seconds())))
		}
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
	case errors.As(err, &integrationErr):
		logger.ErrorContext(ctx, "integration failure",
			"provider", integrationErr.Provider, observability.ErrorKey, integrationErr.Cause)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "an upstream service is unavailable",
		})
	default:
		logger.ErrorContext(ctx, "unhandled error", observability.ErrorKey, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":          "internal server error",
			"correlation_id": observability.CorrelationIDFromContext(ctx),
		})
	}
}
