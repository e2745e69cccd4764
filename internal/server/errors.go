package server

import (
	"errors"
	"net/http"

	briefdomain "github.com/briefworks/briefworks/internal/brief/domain"
	fundingdomain "github.com/briefworks/briefworks/internal/funding/domain"
	accountdomain "github.com/briefworks/briefworks/internal/paymentaccount/domain"
	paymentdomain "github.com/briefworks/briefworks/internal/payment/domain"
	payoutdomain "github.com/briefworks/briefworks/internal/payout/domain"
	"github.com/briefworks/briefworks/internal/processor"
	tierdomain "github.com/briefworks/briefworks/internal/rewardtier/domain"
	walletdomain "github.com/briefworks/briefworks/internal/wallet/domain"
	winnerdomain "github.com/briefworks/briefworks/internal/winner/domain"
	"github.com/gin-gonic/gin"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
	ErrRateLimited    = errors.New("rate_limited")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

// mapError translates domain sentinels into the stable HTTP taxonomy.
// Business-rule violations never surface as generic 500s.
func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	switch {
	// Validation: rejected synchronously, no state change.
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, fundingdomain.ErrInvalidAmount),
		errors.Is(err, walletdomain.ErrInvalidAmount),
		errors.Is(err, tierdomain.ErrInvalidWinnerCount),
		errors.Is(err, accountdomain.ErrInvalidCountry),
		errors.Is(err, winnerdomain.ErrTierMismatch):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}

	case errors.Is(err, tierdomain.ErrTierValidationFailed):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}

	// Precondition: no state change, retryable once the precondition is
	// met.
	case errors.Is(err, accountdomain.ErrAccountNotReady),
		errors.Is(err, briefdomain.ErrNotFunded),
		errors.Is(err, payoutdomain.ErrNotPending),
		errors.Is(err, payoutdomain.ErrNotFailed),
		errors.Is(err, payoutdomain.ErrEmptyBatch),
		errors.Is(err, payoutdomain.ErrBatchTooLarge),
		errors.Is(err, fundingdomain.ErrNothingToRefund):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "precondition_failed",
			Message: err.Error(),
		}

	// Conflicts: another actor holds the slot.
	case errors.Is(err, winnerdomain.ErrTierAlreadyAssigned),
		errors.Is(err, winnerdomain.ErrSubmissionAlreadyAssigned),
		errors.Is(err, winnerdomain.ErrAssignmentLocked),
		errors.Is(err, payoutdomain.ErrAlreadyProcessing),
		errors.Is(err, accountdomain.ErrAccountExists),
		errors.Is(err, fundingdomain.ErrFundingInProgress),
		errors.Is(err, fundingdomain.ErrAlreadyFunded),
		errors.Is(err, tierdomain.ErrTiersLocked):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}

	case errors.Is(err, payoutdomain.ErrInsufficientBalance),
		errors.Is(err, walletdomain.ErrInsufficientCredit):
		return http.StatusPaymentRequired, errorPayload{
			Type:    "insufficient_funds",
			Message: err.Error(),
		}

	// Consistency: fraud-suspect, parked for manual review.
	case errors.Is(err, fundingdomain.ErrAmountMismatch):
		return http.StatusConflict, errorPayload{
			Type:    "amount_mismatch",
			Message: err.Error(),
		}

	case errors.Is(err, paymentdomain.ErrInvalidSignature),
		errors.Is(err, paymentdomain.ErrInvalidPayload),
		errors.Is(err, paymentdomain.ErrInvalidEvent),
		errors.Is(err, paymentdomain.ErrUnknownProvider):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_webhook",
			Message: err.Error(),
		}

	case errors.Is(err, ErrNotFound),
		errors.Is(err, briefdomain.ErrNotFound),
		errors.Is(err, tierdomain.ErrTierNotFound),
		errors.Is(err, winnerdomain.ErrAssignmentNotFound),
		errors.Is(err, accountdomain.ErrAccountNotFound),
		errors.Is(err, fundingdomain.ErrSessionNotFound),
		errors.Is(err, walletdomain.ErrPayoutNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: err.Error(),
		}

	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: err.Error(),
		}

	// External-system: last-known-good state kept, recoverable via
	// webhook or refresh.
	case errors.Is(err, processor.ErrUnknownOutcome):
		return http.StatusBadGateway, errorPayload{
			Type:    "processor_unavailable",
			Message: "payment processor outcome unknown, state preserved",
		}
	case errors.Is(err, processor.ErrNotConfigured):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "processor_unavailable",
			Message: err.Error(),
		}
	}

	return http.StatusInternalServerError, errorPayload{
		Type:    "internal_error",
		Message: "internal server error",
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) {
		return vErr
	}
	return nil
}

// classifyErrorForLog feeds the request logger's error_type/error_code
// fields without leaking internals.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	switch {
	case status >= http.StatusInternalServerError:
		return "server", payload.Type
	case status >= http.StatusBadRequest:
		return "client", payload.Type
	default:
		return "none", payload.Type
	}
}
