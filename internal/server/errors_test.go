package server

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/smallbiznis/fieldops/internal/installment"
	invoicedomain "github.com/smallbiznis/fieldops/internal/invoice/domain"
	progressdomain "github.com/smallbiznis/fieldops/internal/progress/domain"
	"github.com/smallbiznis/fieldops/internal/validation"
	workorderdomain "github.com/smallbiznis/fieldops/internal/workorder/domain"
	"github.com/smallbiznis/fieldops/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapError(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		status   int
		typ      string
		field    string
		errorMsg string
	}{
		{name: "field errors", err: validation.New("items[0].quantity", "invalid_quantity", "bad"), status: http.StatusBadRequest, typ: "validation_error", field: "items[0].quantity"},
		{name: "page token", err: pagination.ErrInvalidPageToken, status: http.StatusBadRequest, typ: "validation_error", field: "page_token"},
		{name: "invalid id", err: invoicedomain.ErrInvalidID, status: http.StatusBadRequest, typ: "validation_error", field: "id"},
		{name: "org required", err: ErrOrgRequired, status: http.StatusBadRequest, typ: "validation_error", field: "org_id"},
		{name: "invoice not found", err: invoicedomain.ErrNotFound, status: http.StatusNotFound, typ: "not_found", errorMsg: "invoice_not_found"},
		{name: "installment not found", err: installment.ErrNotFound, status: http.StatusNotFound, typ: "not_found", errorMsg: "installment_not_found"},
		{name: "wrapped line item", err: fmt.Errorf("mark line item done: %w", workorderdomain.ErrItemNotFound), status: http.StatusNotFound, typ: "not_found"},
		{name: "not draft", err: invoicedomain.ErrNotDraft, status: http.StatusConflict, typ: "conflict", errorMsg: "invoice_not_draft"},
		{name: "not pending", err: progressdomain.ErrNotPending, status: http.StatusConflict, typ: "conflict", errorMsg: "report_not_pending"},
		{name: "body too large", err: fmt.Errorf("bind: %w", &http.MaxBytesError{Limit: 8}), status: http.StatusRequestEntityTooLarge, typ: "request_too_large"},
		{name: "rate limited", err: ErrRateLimited, status: http.StatusTooManyRequests, typ: "rate_limited"},
		{name: "unavailable", err: ErrServiceUnavailable, status: http.StatusServiceUnavailable, typ: "service_unavailable"},
		{name: "unknown", err: errors.New("boom"), status: http.StatusInternalServerError, typ: "internal_error", errorMsg: "internal server error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, payload := mapError(tc.err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.typ, payload.Type)
			if tc.field != "" {
				require.NotEmpty(t, payload.Errors)
				assert.Equal(t, tc.field, payload.Errors[0].Field)
			}
			if tc.errorMsg != "" {
				assert.Equal(t, tc.errorMsg, payload.Message)
			}
		})
	}
}

func TestClassifyErrorForLog(t *testing.T) {
	typ, code := classifyErrorForLog(validation.New("progress_percent", "invalid_progress", "out of range"))
	assert.Equal(t, "validation_error", typ)
	assert.Equal(t, "invalid_progress", code)

	typ, code = classifyErrorForLog(workorderdomain.ErrNotFound)
	assert.Equal(t, "not_found", typ)
	assert.Equal(t, workorderdomain.ErrNotFound.Error(), code)

	typ, code = classifyErrorForLog(errors.New("db down"))
	assert.Equal(t, "internal_error", typ)
	assert.Equal(t, "internal_error", code)
}
