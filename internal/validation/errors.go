// Package validation carries user-correctable, field-level failures from the
// domain packages to the HTTP layer.
package validation

import (
	"errors"
	"strings"
)

type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Errors collects every problem found in one input so they can be reported together.
type Errors []FieldError

func (e Errors) Error() string {
	if len(e) == 0 {
		return "validation error"
	}
	codes := make([]string, 0, len(e))
	for _, fe := range e {
		codes = append(codes, fe.Field+": "+fe.Code)
	}
	return "validation error: " + strings.Join(codes, ", ")
}

func (e *Errors) Add(field, code, message string) {
	*e = append(*e, FieldError{Field: field, Code: code, Message: message})
}

// Has reports whether any entry carries code.
func (e Errors) Has(code string) bool {
	for _, fe := range e {
		if fe.Code == code {
			return true
		}
	}
	return false
}

func (e Errors) ErrOrNil() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

func New(field, code, message string) error {
	return Errors{{Field: field, Code: code, Message: message}}
}

// As extracts collected field errors from err.
func As(err error) (Errors, bool) {
	var errs Errors
	if errors.As(err, &errs) && len(errs) > 0 {
		return errs, true
	}
	return nil, false
}
