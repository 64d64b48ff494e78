package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/boxoffice/internal/audit/domain"
	"github.com/smallbiznis/boxoffice/internal/authorization"
	catalogdomain "github.com/smallbiznis/boxoffice/internal/catalog/domain"
	"github.com/smallbiznis/boxoffice/internal/gateway"
	invitationdomain "github.com/smallbiznis/boxoffice/internal/invitation/domain"
	orderdomain "github.com/smallbiznis/boxoffice/internal/order/domain"
	promodomain "github.com/smallbiznis/boxoffice/internal/promocode/domain"
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
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrConfirmRequired    = errors.New("confirmation_required")
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
		return http.StatusInternalServerError, internalPayload()
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	var promoErr *orderdomain.PromoRejectedError
	if errors.As(err, &promoErr) {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "promo code rejected",
			Errors: []ValidationError{{
				Field:   "promo_code",
				Code:    string(promoErr.Reason),
				Message: "promo code rejected: " + string(promoErr.Reason),
			}},
		}
	}

	var usedErr *orderdomain.TicketUsedError
	if errors.As(err, &usedErr) {
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "ticket already used",
			Errors: []ValidationError{{
				Field:   "ticket_code",
				Code:    usedErr.Error(),
				Message: "first scanned at " + usedErr.ScannedAt.UTC().Format(time.RFC3339),
			}},
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

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authorization.ErrInvalidActor),
		errors.Is(err, gateway.ErrInvalidSignature):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, gateway.ErrCallbacksDisabled):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "payment callbacks are not accepted",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden),
		errors.Is(err, authorization.ErrInvalidRole):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: notFoundMessage(err),
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, orderdomain.ErrGatewayUnavailable),
		errors.Is(err, gateway.ErrUnavailable):
		return http.StatusBadGateway, errorPayload{
			Type:    "external_error",
			Message: "payment gateway unavailable",
		}
	case errors.Is(err, orderdomain.ErrEmailDelivery):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "external_error",
			Message: "email delivery failed",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	case errors.Is(err, orderdomain.ErrTicketIssuanceFailed):
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "ticket issuance failed",
		}
	default:
		return http.StatusInternalServerError, internalPayload()
	}
}

func internalPayload() errorPayload {
	return errorPayload{
		Type:    "internal_error",
		Message: "internal server error",
	}
}

// classifyErrorForLog feeds the request log with the same classes the client sees.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	} else if err != nil {
		code = err.Error()
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

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrConfirmRequired),
		errors.Is(err, gateway.ErrInvalidPayload):
		return true
	case isOrderValidationError(err),
		isCatalogValidationError(err),
		isPromoValidationError(err),
		errors.Is(err, invitationdomain.ErrInvalidNote),
		errors.Is(err, invitationdomain.ErrInvalidOperator),
		errors.Is(err, auditdomain.ErrInvalidAction),
		errors.Is(err, auditdomain.ErrInvalidTimeRange),
		errors.Is(err, authorization.ErrInvalidObject),
		errors.Is(err, authorization.ErrInvalidAction):
		return true
	default:
		return false
	}
}

func isOrderValidationError(err error) bool {
	switch {
	case errors.Is(err, orderdomain.ErrInvalidName),
		errors.Is(err, orderdomain.ErrInvalidEmail),
		errors.Is(err, orderdomain.ErrInvalidLanguage),
		errors.Is(err, orderdomain.ErrPromoNotApplicable),
		errors.Is(err, orderdomain.ErrBelowTierMinimum),
		errors.Is(err, orderdomain.ErrInvalidChannel),
		errors.Is(err, orderdomain.ErrInvalidID),
		errors.Is(err, orderdomain.ErrInvalidReason),
		errors.Is(err, orderdomain.ErrInvalidOperator),
		errors.Is(err, orderdomain.ErrInvalidCallback),
		errors.Is(err, orderdomain.ErrAmountMismatch):
		return true
	default:
		return false
	}
}

func isCatalogValidationError(err error) bool {
	switch {
	case errors.Is(err, catalogdomain.ErrInvalidName),
		errors.Is(err, catalogdomain.ErrInvalidPrice),
		errors.Is(err, catalogdomain.ErrInvalidSalesWindow),
		errors.Is(err, catalogdomain.ErrInvalidID),
		errors.Is(err, catalogdomain.ErrEmptyCart),
		errors.Is(err, catalogdomain.ErrInvalidQuantity),
		errors.Is(err, catalogdomain.ErrUnknownTicketType),
		errors.Is(err, catalogdomain.ErrUnknownTicketOption),
		errors.Is(err, catalogdomain.ErrTicketTypeInactive),
		errors.Is(err, catalogdomain.ErrTicketTypeNotOnSale),
		errors.Is(err, catalogdomain.ErrOptionMismatch):
		return true
	default:
		return false
	}
}

func isPromoValidationError(err error) bool {
	switch {
	case errors.Is(err, promodomain.ErrInvalidCode),
		errors.Is(err, promodomain.ErrInvalidDiscount),
		errors.Is(err, promodomain.ErrInvalidUsageLimit),
		errors.Is(err, promodomain.ErrInvalidWindow),
		errors.Is(err, promodomain.ErrInvalidMinimum),
		errors.Is(err, promodomain.ErrInvalidID):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, orderdomain.ErrNotFound),
		errors.Is(err, orderdomain.ErrTicketsUnavailable),
		errors.Is(err, orderdomain.ErrTicketNotFound),
		errors.Is(err, promodomain.ErrNotFound),
		errors.Is(err, catalogdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func notFoundMessage(err error) string {
	switch {
	case errors.Is(err, orderdomain.ErrNotFound),
		errors.Is(err, orderdomain.ErrTicketsUnavailable),
		errors.Is(err, orderdomain.ErrTicketNotFound),
		errors.Is(err, promodomain.ErrNotFound),
		errors.Is(err, catalogdomain.ErrNotFound):
		return err.Error()
	default:
		return "not found"
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, orderdomain.ErrInvalidTransition),
		errors.Is(err, orderdomain.ErrConcurrentTransition),
		errors.Is(err, orderdomain.ErrUsageExhausted),
		errors.Is(err, orderdomain.ErrTicketRefunded),
		errors.Is(err, promodomain.ErrDuplicateCode):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrConfirmRequired):
		return "confirmation_required"
	default:
		return err.Error()
	}
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "confirmation_required":
		return "confirm"
	case "invalid_refund_reason":
		return "reason"
	case "invalid_promo_code":
		return "promo_code"
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
	case "confirmation_required":
		return "confirm must be true"
	case "empty_cart":
		return "cart has no items"
	default:
		return "invalid value"
	}
}
