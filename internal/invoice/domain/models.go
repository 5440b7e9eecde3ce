// Package domain contains persistence models for invoicing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/fieldops/internal/installment"
	"github.com/smallbiznis/fieldops/internal/invoice/totals"
	"gorm.io/datatypes"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusDraft InvoiceStatus = "DRAFT"
	InvoiceStatusOpen  InvoiceStatus = "OPEN"
	InvoiceStatusPaid  InvoiceStatus = "PAID"
	InvoiceStatusVoid  InvoiceStatus = "VOID"
)

type PaymentType string

const (
	PaymentTypeCash        PaymentType = "CASH"
	PaymentTypeInstallment PaymentType = "INSTALLMENT"
)

// Invoice stores the header and the totals snapshot of the last recomputation.
type Invoice struct {
	ID                 snowflake.ID      `gorm:"primaryKey"`
	OrgID              snowflake.ID      `gorm:"not null;index;uniqueIndex:ux_invoice_org_number"`
	InvoiceNumber      string            `gorm:"type:text;not null;uniqueIndex:ux_invoice_org_number"`
	CustomerName       string            `gorm:"type:text;not null"`
	Status             InvoiceStatus     `gorm:"type:text;not null;default:'DRAFT'"`
	PaymentType        PaymentType       `gorm:"type:text;not null;default:'CASH'"`
	Currency           string            `gorm:"type:text;not null"`
	Subtotal           decimal.Decimal   `gorm:"type:numeric(20,6);not null;default:0"`
	DiscountTotal      decimal.Decimal   `gorm:"type:numeric(20,6);not null;default:0"`
	TaxTotal           decimal.Decimal   `gorm:"type:numeric(20,6);not null;default:0"`
	GrandTotal         decimal.Decimal   `gorm:"type:numeric(20,6);not null;default:0"`
	SourceSalesOrderID *snowflake.ID     `gorm:"index"`
	IssuedAt           time.Time         `gorm:"not null"`
	DueAt              *time.Time        `gorm:""`
	Metadata           datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'"`
	CreatedAt          time.Time         `gorm:"not null"`
	UpdatedAt          time.Time         `gorm:"not null"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// ApplyTotals copies a calculator result onto the snapshot columns.
func (i *Invoice) ApplyTotals(t totals.Totals) {
	i.Subtotal = t.Subtotal
	i.DiscountTotal = t.DiscountTotal
	i.TaxTotal = t.TaxTotal
	i.GrandTotal = t.GrandTotal
}

func (i Invoice) Totals() totals.Totals {
	return totals.Totals{
		Subtotal:      i.Subtotal,
		DiscountTotal: i.DiscountTotal,
		TaxTotal:      i.TaxTotal,
		GrandTotal:    i.GrandTotal,
	}
}

// InvoiceItem represents a line on an invoice.
type InvoiceItem struct {
	ID              snowflake.ID    `gorm:"primaryKey"`
	OrgID           snowflake.ID    `gorm:"not null;index"`
	InvoiceID       snowflake.ID    `gorm:"not null;index"`
	Position        int             `gorm:"not null"`
	RowKey          string          `gorm:"type:text;not null"`
	Description     string          `gorm:"type:text"`
	Quantity        decimal.Decimal `gorm:"type:numeric(20,6);not null"`
	UnitPrice       decimal.Decimal `gorm:"type:numeric(20,6);not null"`
	DiscountAmount  decimal.Decimal `gorm:"type:numeric(20,6);not null;default:0"`
	DiscountPercent decimal.Decimal `gorm:"type:numeric(9,6);not null;default:0"`
	TaxRate         decimal.Decimal `gorm:"type:numeric(9,6);not null;default:0"`
	Taxable         bool            `gorm:"not null;default:true"`
	UOM             string          `gorm:"column:uom;type:text;not null"`
	TaxCode         *string         `gorm:"type:text"`
	CreatedAt       time.Time       `gorm:"not null"`
}

// TableName sets the database table name.
func (InvoiceItem) TableName() string { return "invoice_items" }

func (it InvoiceItem) LineItem() totals.LineItem {
	return totals.LineItem{
		Key:             it.RowKey,
		Description:     it.Description,
		Quantity:        it.Quantity,
		UnitPrice:       it.UnitPrice,
		DiscountAmount:  it.DiscountAmount,
		DiscountPercent: it.DiscountPercent,
		TaxRate:         it.TaxRate,
		Taxable:         it.Taxable,
		UOM:             it.UOM,
		TaxCode:         it.TaxCode,
	}
}

// InvoiceInstallment is one scheduled payment of an INSTALLMENT invoice.
type InvoiceInstallment struct {
	ID         snowflake.ID    `gorm:"primaryKey"`
	OrgID      snowflake.ID    `gorm:"not null;index"`
	InvoiceID  snowflake.ID    `gorm:"not null;index"`
	RowKey     string          `gorm:"type:text;not null"`
	Sequence   int             `gorm:"not null"`
	Amount     decimal.Decimal `gorm:"type:numeric(20,6);not null"`
	Percentage decimal.Decimal `gorm:"type:numeric(9,6);not null"`
	DueDate    time.Time       `gorm:"not null"`
	CreatedAt  time.Time       `gorm:"not null"`
}

// TableName sets the database table name.
func (InvoiceInstallment) TableName() string { return "invoice_installments" }

func (in InvoiceInstallment) Installment() installment.Installment {
	return installment.Installment{
		Key:        in.RowKey,
		Sequence:   in.Sequence,
		Amount:     in.Amount,
		Percentage: in.Percentage,
		DueDate:    in.DueDate,
	}
}
