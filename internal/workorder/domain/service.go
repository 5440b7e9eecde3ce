package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/fieldops/internal/progress/aggregate"
	"gorm.io/gorm"
)

type CreateRequest struct {
	WorkOrderNumber string          `json:"work_order_number"`
	Title           string          `json:"title"`
	CustomerName    string          `json:"customer_name"`
	Location        string          `json:"location"`
	Details         []DetailRequest `json:"details"`
}

type DetailRequest struct {
	LineItemID  string  `json:"line_item_id"`
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UOM         string  `json:"uom"`
}

type SetItemDoneRequest struct {
	WorkOrderNumber string `json:"-"`
	LineItemID      string `json:"-"`
	Done            bool   `json:"done"`
}

type DetailResponse struct {
	LineItemID  string          `json:"line_item_id"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UOM         string          `json:"uom"`
	Done        bool            `json:"done"`
	DoneAt      *time.Time      `json:"done_at,omitempty"`
}

type Response struct {
	ID              string                    `json:"id"`
	OrganizationID  string                    `json:"organization_id"`
	WorkOrderNumber string                    `json:"work_order_number"`
	Title           string                    `json:"title"`
	CustomerName    string                    `json:"customer_name"`
	Location        string                    `json:"location"`
	Status          aggregate.WorkOrderStatus `json:"status"`
	OverallProgress int                       `json:"overall_progress"`
	Details         []DetailResponse          `json:"details"`
	CreatedAt       time.Time                 `json:"created_at"`
	UpdatedAt       time.Time                 `json:"updated_at"`
}

// Aggregate is a work order with its details, loaded for progress computations.
type Aggregate struct {
	WorkOrder WorkOrder
	Details   []WorkOrderDetail
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Response, error)
	GetByNumber(ctx context.Context, number string) (*Response, error)
	SetItemDone(ctx context.Context, req SetItemDoneRequest) (*Response, error)

	// Load returns the work order and its details using db, which may be a transaction.
	Load(ctx context.Context, db *gorm.DB, number string) (*Aggregate, error)
	// LoadForUpdate is Load with the work order row locked for the rest of tx.
	LoadForUpdate(ctx context.Context, tx *gorm.DB, number string) (*Aggregate, error)
	// MarkDone flags a detail done inside the caller's transaction and re-derives the status.
	MarkDone(ctx context.Context, tx *gorm.DB, number, lineItemID string, done bool) (*Aggregate, error)
}

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, wo *WorkOrder, details []WorkOrderDetail) error
	FindByNumber(ctx context.Context, db *gorm.DB, orgID snowflake.ID, number string) (*WorkOrder, error)
	FindByNumberForUpdate(ctx context.Context, db *gorm.DB, orgID snowflake.ID, number string) (*WorkOrder, error)
	ListDetails(ctx context.Context, db *gorm.DB, orgID, workOrderID snowflake.ID) ([]WorkOrderDetail, error)
	UpdateDetailDone(ctx context.Context, db *gorm.DB, detail *WorkOrderDetail) error
	UpdateStatus(ctx context.Context, db *gorm.DB, wo *WorkOrder) error
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidNumber       = errors.New("invalid_work_order_number")
	ErrInvalidTitle        = errors.New("invalid_title")
	ErrAlreadyExists       = errors.New("work_order_exists")
	ErrNotFound            = errors.New("work_order_not_found")
	ErrItemNotFound        = errors.New("line_item_not_found")
)
