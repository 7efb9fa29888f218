package ai

import (
	"context"
	stderrors "errors"
	"net"
	"net/http"

	"github.com/openai/openai-go"
	"google.golang.org/api/googleapi"
	"google.golang.org/genai"

	"resumelens/internal/errors"
)

// upstreamStatus returns the HTTP status of a provider API error, or 0
func upstreamStatus(err error) int {
	var oaErr *openai.Error
	if stderrors.As(err, &oaErr) {
		return oaErr.StatusCode
	}
	var genaiErr genai.APIError
	if stderrors.As(err, &genaiErr) {
		return genaiErr.Code
	}
	var apiErr *googleapi.Error
	if stderrors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}

// isRetryableError determines if an error should trigger a retry
func isRetryableError(err error) bool {
	if err == nil || stderrors.Is(err, context.Canceled) {
		return false
	}

	switch upstreamStatus(err) {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	case 0:
	default:
		return false
	}

	// Network errors (timeouts, connection refused) are transient
	var netErr net.Error
	return stderrors.As(err, &netErr)
}

// countsAgainstBreaker reports whether err indicates an unhealthy upstream.
// Caller mistakes and cancellations do not.
func countsAgainstBreaker(err error) bool {
	if stderrors.Is(err, context.Canceled) {
		return false
	}
	switch upstreamStatus(err) {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusPaymentRequired,
		http.StatusForbidden, http.StatusNotFound, http.StatusUnprocessableEntity:
		return false
	}
	return true
}

// classifyError turns a provider error into an AppError with a code the
// transport can map to a status. AppErrors pass through unchanged.
func classifyError(err error, message string) error {
	if err == nil {
		return nil
	}
	if _, ok := errors.AsAppError(err); ok {
		return err
	}
	if stderrors.Is(err, context.Canceled) {
		return err
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.NewAIError(errors.ErrCodeAITimeout, "AI request timed out", err)
	}

	switch status := upstreamStatus(err); status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return errors.NewAIError(errors.ErrCodeInvalidAPIKey, "provider rejected the API key", err).
			WithContext("status", status)
	case 0:
		var netErr net.Error
		if stderrors.As(err, &netErr) && netErr.Timeout() {
			return errors.NewNetworkError(errors.ErrCodeNetworkTimeout, "AI request timed out", err)
		}
		return errors.NewAIError(errors.ErrCodeAIServiceFailed, message, err)
	default:
		return errors.NewAIError(errors.ErrCodeAIServiceFailed, message, err).
			WithContext("status", status)
	}
}
