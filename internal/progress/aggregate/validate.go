package aggregate

import (
	"fmt"
	"strings"

	"github.com/smallbiznis/fieldops/internal/validation"
)

const (
	CodeInvalidType       = "invalid_type"
	CodeInvalidProgress   = "invalid_progress"
	CodeProgressUnchanged = "progress_unchanged"
	CodeInvalidItem       = "invalid_item"
	CodeTooManyPhotos     = "too_many_photos"
)

// Submission is a report the crew wants to file.
type Submission struct {
	WorkOrderNumber string
	LineItemID      string
	Type            ReportType
	ProgressPercent int
	PhotoCount      int
}

type Rules struct {
	MaxPhotos int
}

// ValidateSubmission checks a submission against the work order details and
// the reports already filed, returning the submission as it should be stored.
// FINAL reports are forced to 100 percent. All failures are collected into one
// validation.Errors.
func ValidateSubmission(sub Submission, details []Detail, reports []Report, rules Rules) (Submission, error) {
	var errs validation.Errors

	sub.Type = ReportType(strings.ToUpper(strings.TrimSpace(string(sub.Type))))
	if sub.Type == "" {
		sub.Type = ReportTypeProgress
	}

	switch sub.Type {
	case ReportTypeFinal:
		sub.ProgressPercent = 100
	case ReportTypeProgress:
		if sub.ProgressPercent <= 0 {
			errs.Add("progress_percent", CodeInvalidProgress, "progress must be greater than 0")
		}
	default:
		errs.Add("type", CodeInvalidType, "type must be PROGRESS or FINAL")
	}
	if sub.ProgressPercent > 100 {
		errs.Add("progress_percent", CodeInvalidProgress, "progress must not exceed 100")
	}

	if !hasItem(details, sub.LineItemID) {
		errs.Add("line_item_id", CodeInvalidItem, fmt.Sprintf("item %q is not part of work order %s", sub.LineItemID, sub.WorkOrderNumber))
	} else if !errs.Has(CodeInvalidProgress) {
		current := Effective(reports, sub.WorkOrderNumber, sub.LineItemID)
		if sub.ProgressPercent == current {
			errs.Add("progress_percent", CodeProgressUnchanged, fmt.Sprintf("progress is already %d%%", current))
		}
	}

	if rules.MaxPhotos >= 0 && sub.PhotoCount > rules.MaxPhotos {
		errs.Add("photos", CodeTooManyPhotos, fmt.Sprintf("at most %d photos per report", rules.MaxPhotos))
	}

	if err := errs.ErrOrNil(); err != nil {
		return sub, err
	}
	return sub, nil
}

func hasItem(details []Detail, lineItemID string) bool {
	for _, d := range details {
		if d.LineItemID == lineItemID {
			return true
		}
	}
	return false
}
