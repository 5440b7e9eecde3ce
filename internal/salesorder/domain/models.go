package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/fieldops/internal/invoice/totals"
)

type SalesOrderStatus string

const (
	SalesOrderStatusOpen     SalesOrderStatus = "OPEN"
	SalesOrderStatusInvoiced SalesOrderStatus = "INVOICED"
)

type SalesOrder struct {
	ID            snowflake.ID     `gorm:"primaryKey"`
	OrgID         snowflake.ID     `gorm:"not null;index;uniqueIndex:ux_sales_order_org_number"`
	OrderNumber   string           `gorm:"type:text;not null;uniqueIndex:ux_sales_order_org_number"`
	CustomerName  string           `gorm:"type:text;not null"`
	Status        SalesOrderStatus `gorm:"type:text;not null;default:'OPEN'"`
	Currency      string           `gorm:"type:text;not null"`
	Subtotal      decimal.Decimal  `gorm:"type:numeric(20,6);not null;default:0"`
	DiscountTotal decimal.Decimal  `gorm:"type:numeric(20,6);not null;default:0"`
	TaxTotal      decimal.Decimal  `gorm:"type:numeric(20,6);not null;default:0"`
	GrandTotal    decimal.Decimal  `gorm:"type:numeric(20,6);not null;default:0"`
	InvoiceID     *snowflake.ID    `gorm:"index"`
	CreatedAt     time.Time        `gorm:"not null"`
	UpdatedAt     time.Time        `gorm:"not null"`
}

func (SalesOrder) TableName() string { return "sales_orders" }

type SalesOrderItem struct {
	ID              snowflake.ID    `gorm:"primaryKey"`
	OrgID           snowflake.ID    `gorm:"not null;index"`
	SalesOrderID    snowflake.ID    `gorm:"not null;index"`
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

func (SalesOrderItem) TableName() string { return "sales_order_items" }

func (it SalesOrderItem) LineItem() totals.LineItem {
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
