// Package aggregate derives work order progress from field reports.
//
// Two independent metrics exist. Effective progress is the high-water mark of
// reported percentages per (work order, line item) pair. Overall progress is
// the share of work order details flagged done and drives the work order
// status.
package aggregate

import (
	"math"
	"time"

	"github.com/bwmarrin/snowflake"
)

type ReportStatus string

const (
	ReportStatusPending  ReportStatus = "PENDING"
	ReportStatusApproved ReportStatus = "APPROVED"
	ReportStatusRejected ReportStatus = "REJECTED"
)

type ReportType string

const (
	ReportTypeProgress ReportType = "PROGRESS"
	ReportTypeFinal    ReportType = "FINAL"
)

type WorkOrderStatus string

const (
	WorkOrderStatusPending   WorkOrderStatus = "PENDING"
	WorkOrderStatusProgress  WorkOrderStatus = "PROGRESS"
	WorkOrderStatusCompleted WorkOrderStatus = "COMPLETED"
)

// Report is the part of a progress report the aggregation needs.
type Report struct {
	ID              snowflake.ID
	WorkOrderNumber string
	LineItemID      string
	ProgressPercent int
	ReportedAt      time.Time
	Status          ReportStatus
	Type            ReportType
}

// Detail is one line of a work order.
type Detail struct {
	LineItemID string
	Done       bool
}

// ProgressMap is work order number -> line item id -> effective progress.
type ProgressMap map[string]map[string]int

// Get returns the effective progress of a pair, 0 when nothing was reported.
func (m ProgressMap) Get(workOrderNumber, lineItemID string) int {
	return m[workOrderNumber][lineItemID]
}

// EffectiveProgress groups reports by work order then line item and keeps
// the maximum percent of each group. Report status and arrival order do not
// matter.
func EffectiveProgress(reports []Report) ProgressMap {
	out := ProgressMap{}
	for _, r := range reports {
		items, ok := out[r.WorkOrderNumber]
		if !ok {
			items = map[string]int{}
			out[r.WorkOrderNumber] = items
		}
		if current, seen := items[r.LineItemID]; !seen || r.ProgressPercent > current {
			items[r.LineItemID] = r.ProgressPercent
		}
	}
	return out
}

// Effective returns the effective progress for one pair from an unfiltered list.
func Effective(reports []Report, workOrderNumber, lineItemID string) int {
	progress := 0
	for _, r := range reports {
		if r.WorkOrderNumber != workOrderNumber || r.LineItemID != lineItemID {
			continue
		}
		if r.ProgressPercent > progress {
			progress = r.ProgressPercent
		}
	}
	return progress
}

// Latest picks the report whose note and photos represent the pair: the most
// recent one among those carrying the maximum percent. Equal timestamps fall
// back to the higher ID.
func Latest(reports []Report, workOrderNumber, lineItemID string) (Report, bool) {
	var (
		best  Report
		found bool
	)
	for _, r := range reports {
		if r.WorkOrderNumber != workOrderNumber || r.LineItemID != lineItemID {
			continue
		}
		if !found || newer(r, best) {
			best = r
			found = true
		}
	}
	return best, found
}

func newer(candidate, current Report) bool {
	if candidate.ProgressPercent != current.ProgressPercent {
		return candidate.ProgressPercent > current.ProgressPercent
	}
	if !candidate.ReportedAt.Equal(current.ReportedAt) {
		return candidate.ReportedAt.After(current.ReportedAt)
	}
	return candidate.ID > current.ID
}

// OverallProgress is round(100 * done / total), or 0 for a work order without details.
func OverallProgress(details []Detail) int {
	if len(details) == 0 {
		return 0
	}
	done := 0
	for _, d := range details {
		if d.Done {
			done++
		}
	}
	return int(math.Round(100 * float64(done) / float64(len(details))))
}

func StatusFor(overallProgress int) WorkOrderStatus {
	switch {
	case overallProgress >= 100:
		return WorkOrderStatusCompleted
	case overallProgress > 0:
		return WorkOrderStatusProgress
	default:
		return WorkOrderStatusPending
	}
}

type ItemSummary struct {
	LineItemID        string
	EffectiveProgress int
	Done              bool
	Latest            *Report
}

type Summary struct {
	WorkOrderNumber string
	Items           []ItemSummary
	OverallProgress int
	Status          WorkOrderStatus
}

// Summarize combines both metrics for one work order, keeping detail order.
func Summarize(workOrderNumber string, details []Detail, reports []Report) Summary {
	progress := EffectiveProgress(reports)
	items := make([]ItemSummary, 0, len(details))
	for _, d := range details {
		item := ItemSummary{
			LineItemID:        d.LineItemID,
			EffectiveProgress: progress.Get(workOrderNumber, d.LineItemID),
			Done:              d.Done,
		}
		if latest, ok := Latest(reports, workOrderNumber, d.LineItemID); ok {
			item.Latest = &latest
		}
		items = append(items, item)
	}

	overall := OverallProgress(details)
	return Summary{
		WorkOrderNumber: workOrderNumber,
		Items:           items,
		OverallProgress: overall,
		Status:          StatusFor(overall),
	}
}
