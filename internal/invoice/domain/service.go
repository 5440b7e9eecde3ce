package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/fieldops/internal/installment"
	"github.com/smallbiznis/fieldops/internal/invoice/totals"
	"gorm.io/gorm"
)

type PreviewRequest struct {
	Items []totals.RawLineItem `json:"items"`
}

type PreviewResponse struct {
	Items  []totals.LineTotals `json:"items"`
	Totals totals.Totals       `json:"totals"`
}

type UpdateRequest struct {
	ID               string               `json:"-"`
	CustomerName     *string              `json:"customer_name,omitempty"`
	Items            []totals.RawLineItem `json:"items"`
	PaymentType      PaymentType          `json:"payment_type"`
	InstallmentCount int                  `json:"installment_count"`
	DueAt            *time.Time           `json:"due_at,omitempty"`
}

// DraftRequest creates a DRAFT invoice from already normalized lines.
type DraftRequest struct {
	CustomerName       string
	Currency           string
	Items              []totals.LineItem
	PaymentType        PaymentType
	InstallmentCount   int
	SourceSalesOrderID *snowflake.ID
}

type Response struct {
	ID                 string                    `json:"id"`
	OrganizationID     string                    `json:"organization_id"`
	InvoiceNumber      string                    `json:"invoice_number"`
	CustomerName       string                    `json:"customer_name"`
	Status             InvoiceStatus             `json:"status"`
	PaymentType        PaymentType               `json:"payment_type"`
	Currency           string                    `json:"currency"`
	Items              []totals.LineItem         `json:"items"`
	Lines              []totals.LineTotals       `json:"lines"`
	Totals             totals.Totals             `json:"totals"`
	Installments       []installment.Installment `json:"installments"`
	InstallmentSum     *decimal.Decimal          `json:"installment_sum,omitempty"`
	SourceSalesOrderID *string                   `json:"source_sales_order_id,omitempty"`
	IssuedAt           time.Time                 `json:"issued_at"`
	DueAt              *time.Time                `json:"due_at,omitempty"`
	CreatedAt          time.Time                 `json:"created_at"`
	UpdatedAt          time.Time                 `json:"updated_at"`
}

type Service interface {
	PreviewTotals(ctx context.Context, req PreviewRequest) (*PreviewResponse, error)
	Get(ctx context.Context, id string) (*Response, error)
	Update(ctx context.Context, req UpdateRequest) (*Response, error)
	AddInstallment(ctx context.Context, id string) (*Response, error)
	RemoveInstallment(ctx context.Context, id, key string) (*Response, error)
	// CreateDraft runs on tx so callers can create the invoice atomically with their own writes.
	CreateDraft(ctx context.Context, tx *gorm.DB, req DraftRequest) (*Invoice, error)
	RenderPDF(ctx context.Context, id string) (*Document, error)
}

type Document struct {
	Filename    string
	ContentType string
	Content     []byte
}

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, inv *Invoice) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Invoice, error)
	FindForUpdate(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Invoice, error)
	UpdateHeader(ctx context.Context, db *gorm.DB, inv *Invoice) error
	CountByOrg(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (int64, error)

	ListItems(ctx context.Context, db *gorm.DB, orgID, invoiceID snowflake.ID) ([]InvoiceItem, error)
	ReplaceItems(ctx context.Context, db *gorm.DB, orgID, invoiceID snowflake.ID, items []InvoiceItem) error

	ListInstallments(ctx context.Context, db *gorm.DB, orgID, invoiceID snowflake.ID) ([]InvoiceInstallment, error)
	ReplaceInstallments(ctx context.Context, db *gorm.DB, orgID, invoiceID snowflake.ID, rows []InvoiceInstallment) error
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidID           = errors.New("invalid_id")
	ErrNotFound            = errors.New("invoice_not_found")
	ErrNotDraft            = errors.New("invoice_not_draft")
	ErrInvalidPaymentType  = errors.New("invalid_payment_type")
	ErrNotInstallment      = errors.New("invoice_not_installment")
	ErrInvalidCustomer     = errors.New("invalid_customer")
)
