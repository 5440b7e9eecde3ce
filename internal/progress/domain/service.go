package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fieldops/internal/progress/aggregate"
	"github.com/smallbiznis/fieldops/pkg/db/pagination"
	"gorm.io/gorm"
)

type SubmitRequest struct {
	WorkOrderNumber string               `json:"-"`
	LineItemID      string               `json:"line_item_id"`
	Type            aggregate.ReportType `json:"type"`
	ProgressPercent int                  `json:"progress_percent"`
	Note            string               `json:"note"`
	// Photos are raw image bytes, base64 encoded on the wire.
	Photos [][]byte `json:"photos"`
}

type ReviewRequest struct {
	ReportID string `json:"-"`
	Note     string `json:"note"`
}

type ListRequest struct {
	pagination.Pagination
	WorkOrderNumber string `json:"-" form:"-"`
	Status          string `form:"status"`
	LineItemID      string `form:"line_item_id"`
}

type ReportResponse struct {
	ID              string                 `json:"id"`
	WorkOrderNumber string                 `json:"work_order_number"`
	LineItemID      string                 `json:"line_item_id"`
	Type            aggregate.ReportType   `json:"type"`
	ProgressPercent int                    `json:"progress_percent"`
	Status          aggregate.ReportStatus `json:"status"`
	Note            string                 `json:"note,omitempty"`
	ReportedBy      string                 `json:"reported_by"`
	ReportedAt      time.Time              `json:"reported_at"`
	ReviewedBy      *string                `json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time             `json:"reviewed_at,omitempty"`
	ReviewNote      *string                `json:"review_note,omitempty"`
	PhotoCount      int                    `json:"photo_count"`
}

type ListResponse struct {
	pagination.PageInfo
	Reports []ReportResponse `json:"reports"`
}

type ItemSummaryResponse struct {
	LineItemID        string          `json:"line_item_id"`
	Description       string          `json:"description"`
	EffectiveProgress int             `json:"effective_progress"`
	Done              bool            `json:"done"`
	LatestReport      *ReportResponse `json:"latest_report,omitempty"`
}

type SummaryResponse struct {
	WorkOrderNumber string                    `json:"work_order_number"`
	Title           string                    `json:"title"`
	CustomerName    string                    `json:"customer_name"`
	Status          aggregate.WorkOrderStatus `json:"status"`
	OverallProgress int                       `json:"overall_progress"`
	Items           []ItemSummaryResponse     `json:"items"`
	GeneratedAt     time.Time                 `json:"generated_at"`
}

type Document struct {
	Filename    string
	ContentType string
	Content     []byte
}

type Service interface {
	Submit(ctx context.Context, req SubmitRequest) (*ReportResponse, error)
	List(ctx context.Context, req ListRequest) (*ListResponse, error)
	Summary(ctx context.Context, workOrderNumber string) (*SummaryResponse, error)
	Approve(ctx context.Context, req ReviewRequest) (*ReportResponse, error)
	Reject(ctx context.Context, req ReviewRequest) (*ReportResponse, error)
	RenderPDF(ctx context.Context, workOrderNumber string) (*Document, error)
}

type ReportCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	OrgID       snowflake.ID
	WorkOrderID snowflake.ID
	Status      aggregate.ReportStatus
	LineItemID  string
	Cursor      *ReportCursor
	Limit       int
}

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, report *ProgressReport, photos []ReportPhoto) error
	ListByWorkOrder(ctx context.Context, db *gorm.DB, orgID, workOrderID snowflake.ID) ([]ProgressReport, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*ProgressReport, error)
	FindForUpdate(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*ProgressReport, error)
	UpdateReview(ctx context.Context, db *gorm.DB, report *ProgressReport) error
	CountPhotos(ctx context.Context, db *gorm.DB, orgID snowflake.ID, reportIDs []snowflake.ID) (map[snowflake.ID]int, error)
	ListPhotos(ctx context.Context, db *gorm.DB, orgID snowflake.ID, reportIDs []snowflake.ID) ([]ReportPhoto, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidID           = errors.New("invalid_id")
	ErrNotFound            = errors.New("report_not_found")
	ErrNotPending          = errors.New("report_not_pending")
)
