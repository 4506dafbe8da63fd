package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	gatewaydomain "github.com/smallbiznis/gymledger/internal/gateway/domain"
	memberdomain "github.com/smallbiznis/gymledger/internal/member/domain"
	paymentdomain "github.com/smallbiznis/gymledger/internal/payment/domain"
	receiptdomain "github.com/smallbiznis/gymledger/internal/receipt/domain"
	reconciliationdomain "github.com/smallbiznis/gymledger/internal/reconciliation/domain"
	registrationdomain "github.com/smallbiznis/gymledger/internal/registration/domain"
	routingdomain "github.com/smallbiznis/gymledger/internal/routing/domain"
	subscriptiondomain "github.com/smallbiznis/gymledger/internal/subscription/domain"
	"github.com/smallbiznis/gymledger/pkg/db/pagination"
	"gorm.io/gorm"
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
	Code    string            `json:"code,omitempty"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
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

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
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

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	var decline *gatewaydomain.DeclineError
	if errors.As(err, &decline) {
		return http.StatusPaymentRequired, errorPayload{
			Type:    "payment_declined",
			Message: decline.Reason,
			Code:    decline.Code,
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case conflictSentinel(err) != nil:
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
			Code:    conflictSentinel(err).Error(),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, registrationdomain.ErrSetupIncomplete):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "setup_incomplete",
			Message: "payment method setup has not succeeded",
		}
	case errors.Is(err, routingdomain.ErrNoViableEntity):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "routing_infeasible",
			Message: "no business entity can accept this payment",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, gatewaydomain.ErrNotConfigured):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog returns the type and code written to request logs.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	_, payload := mapError(err)
	code := payload.Code
	if code == "" && len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	if code == "" && errors.Is(err, reconciliationdomain.ErrMappingFailed) {
		code = reconciliationdomain.ErrMappingFailed.Error()
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

// validationSentinels are reported as 400 with the sentinel as the code.
// Wrapped errors still match.
var validationSentinels = []error{
	ErrInvalidRequest,
	registrationdomain.ErrInvalidEmail,
	registrationdomain.ErrInvalidFirstName,
	registrationdomain.ErrInvalidPlanKey,
	registrationdomain.ErrInvalidSetupID,
	routingdomain.ErrInvalidAmount,
	routingdomain.ErrInvalidEntity,
	reconciliationdomain.ErrInvalidBackfill,
	reconciliationdomain.ErrInvalidEvent,
	gatewaydomain.ErrInvalidSignature,
	gatewaydomain.ErrInvalidPayload,
	pagination.ErrInvalidPageToken,
}

func validationSentinel(err error) error {
	for _, sentinel := range validationSentinels {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	return nil
}

func isValidationError(err error) bool {
	return validationSentinel(err) != nil
}

var conflictSentinels = []error{
	ErrConflict,
	memberdomain.ErrEmailTaken,
	registrationdomain.ErrAlreadyConfirmed,
	subscriptiondomain.ErrIllegalTransition,
	receiptdomain.ErrNotSettled,
}

func conflictSentinel(err error) error {
	for _, sentinel := range conflictSentinels {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	return nil
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, registrationdomain.ErrPlanNotFound),
		errors.Is(err, registrationdomain.ErrParentNotFound),
		errors.Is(err, registrationdomain.ErrSetupIntentNotFound),
		errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound),
		errors.Is(err, paymentdomain.ErrPaymentNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	sentinel := validationSentinel(err)
	switch {
	case sentinel == nil:
		return err.Error()
	case errors.Is(sentinel, reconciliationdomain.ErrInvalidBackfill):
		return "invalid_window"
	default:
		return sentinel.Error()
	}
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "invalid_signature":
		return "webhook signature verification failed"
	case "invalid_payload", "invalid_event":
		return "malformed webhook payload"
	case "invalid_window":
		return "since must be before until"
	default:
		return "invalid value"
	}
}
