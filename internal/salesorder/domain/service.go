package domain

import (
	"context"
	"errors"
	"time"

	invoicedomain "github.com/smallbiznis/fieldops/internal/invoice/domain"
	"github.com/smallbiznis/fieldops/internal/invoice/totals"
)

type CreateRequest struct {
	CustomerName string               `json:"customer_name"`
	Currency     string               `json:"currency"`
	Items        []totals.RawLineItem `json:"items"`
}

type ConvertRequest struct {
	ID               string                    `json:"-"`
	PaymentType      invoicedomain.PaymentType `json:"payment_type"`
	InstallmentCount int                       `json:"installment_count"`
}

type Response struct {
	ID             string              `json:"id"`
	OrganizationID string              `json:"organization_id"`
	OrderNumber    string              `json:"order_number"`
	CustomerName   string              `json:"customer_name"`
	Status         SalesOrderStatus    `json:"status"`
	Currency       string              `json:"currency"`
	Items          []totals.LineItem   `json:"items"`
	Lines          []totals.LineTotals `json:"lines"`
	Totals         totals.Totals       `json:"totals"`
	InvoiceID      *string             `json:"invoice_id,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Response, error)
	Get(ctx context.Context, id string) (*Response, error)
	ConvertToInvoice(ctx context.Context, req ConvertRequest) (*invoicedomain.Response, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidID           = errors.New("invalid_id")
	ErrInvalidCustomer     = errors.New("invalid_customer")
	ErrNotFound            = errors.New("sales_order_not_found")
	ErrAlreadyInvoiced     = errors.New("already_invoiced")
)
