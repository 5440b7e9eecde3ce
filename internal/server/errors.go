package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/fieldops/internal/audit/domain"
	"github.com/smallbiznis/fieldops/internal/installment"
	invoicedomain "github.com/smallbiznis/fieldops/internal/invoice/domain"
	progressdomain "github.com/smallbiznis/fieldops/internal/progress/domain"
	salesorderdomain "github.com/smallbiznis/fieldops/internal/salesorder/domain"
	"github.com/smallbiznis/fieldops/internal/validation"
	workorderdomain "github.com/smallbiznis/fieldops/internal/workorder/domain"
	"github.com/smallbiznis/fieldops/pkg/db/pagination"
)

type errorPayload struct {
	Type    string                  `json:"type"`
	Message string                  `json:"message"`
	Errors  []validation.FieldError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
	ErrOrgRequired    = errors.New("organization_required")
	ErrRateLimited    = errors.New("rate_limited")
	ErrBodyTooLarge   = errors.New("request_body_too_large")
	ErrInternal       = errors.New("internal_error")

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
	return validation.New(field, code, message)
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if errs, ok := validation.As(err); ok {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  errs,
		}
	}

	if isValidationError(err) {
		code := err.Error()
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []validation.FieldError{{
				Field:   validationErrorField(code),
				Code:    code,
				Message: "invalid value",
			}},
		}
	}

	switch {
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: err.Error(),
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case errors.Is(err, ErrBodyTooLarge) || isMaxBytesError(err):
		return http.StatusRequestEntityTooLarge, errorPayload{
			Type:    "request_too_large",
			Message: ErrBodyTooLarge.Error(),
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrServiceUnavailable):
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

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrOrgRequired),
		errors.Is(err, pagination.ErrInvalidPageToken),
		errors.Is(err, auditdomain.ErrInvalidOrganization),
		errors.Is(err, auditdomain.ErrInvalidAction),
		errors.Is(err, invoicedomain.ErrInvalidOrganization),
		errors.Is(err, invoicedomain.ErrInvalidID),
		errors.Is(err, invoicedomain.ErrInvalidPaymentType),
		errors.Is(err, invoicedomain.ErrInvalidCustomer),
		errors.Is(err, salesorderdomain.ErrInvalidOrganization),
		errors.Is(err, salesorderdomain.ErrInvalidID),
		errors.Is(err, salesorderdomain.ErrInvalidCustomer),
		errors.Is(err, workorderdomain.ErrInvalidOrganization),
		errors.Is(err, workorderdomain.ErrInvalidNumber),
		errors.Is(err, workorderdomain.ErrInvalidTitle),
		errors.Is(err, progressdomain.ErrInvalidOrganization),
		errors.Is(err, progressdomain.ErrInvalidID):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, invoicedomain.ErrNotFound),
		errors.Is(err, installment.ErrNotFound),
		errors.Is(err, salesorderdomain.ErrNotFound),
		errors.Is(err, workorderdomain.ErrNotFound),
		errors.Is(err, workorderdomain.ErrItemNotFound),
		errors.Is(err, progressdomain.ErrNotFound):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, invoicedomain.ErrNotDraft),
		errors.Is(err, invoicedomain.ErrNotInstallment),
		errors.Is(err, salesorderdomain.ErrAlreadyInvoiced),
		errors.Is(err, workorderdomain.ErrAlreadyExists),
		errors.Is(err, progressdomain.ErrNotPending):
		return true
	default:
		return false
	}
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "organization_required", "invalid_organization":
		return "org_id"
	case "invalid_page_token":
		return "page_token"
	}
	return strings.TrimPrefix(code, "invalid_")
}

// classifyErrorForLog feeds error_type and error_code into the request log.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	} else if status != http.StatusInternalServerError {
		code = err.Error()
	}
	return payload.Type, code
}

func isMaxBytesError(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
