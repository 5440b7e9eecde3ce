package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/fieldops/internal/progress/aggregate"
)

// WorkOrder is an SPK: a field assignment made of line items.
type WorkOrder struct {
	ID              snowflake.ID              `gorm:"primaryKey"`
	OrgID           snowflake.ID              `gorm:"not null;index;uniqueIndex:ux_work_order_org_number"`
	WorkOrderNumber string                    `gorm:"type:text;not null;uniqueIndex:ux_work_order_org_number"`
	Title           string                    `gorm:"type:text;not null"`
	CustomerName    string                    `gorm:"type:text"`
	Location        string                    `gorm:"type:text"`
	Status          aggregate.WorkOrderStatus `gorm:"type:text;not null;default:'PENDING'"`
	CreatedAt       time.Time                 `gorm:"not null"`
	UpdatedAt       time.Time                 `gorm:"not null"`
}

func (WorkOrder) TableName() string { return "work_orders" }

type WorkOrderDetail struct {
	ID          snowflake.ID    `gorm:"primaryKey"`
	OrgID       snowflake.ID    `gorm:"not null;index"`
	WorkOrderID snowflake.ID    `gorm:"not null;index;uniqueIndex:ux_work_order_detail_item"`
	LineItemID  string          `gorm:"type:text;not null;uniqueIndex:ux_work_order_detail_item"`
	Position    int             `gorm:"not null"`
	Description string          `gorm:"type:text"`
	Quantity    decimal.Decimal `gorm:"type:numeric(20,6);not null;default:0"`
	UOM         string          `gorm:"column:uom;type:text;not null"`
	Done        bool            `gorm:"not null;default:false"`
	DoneAt      *time.Time      `gorm:""`
	CreatedAt   time.Time       `gorm:"not null"`
	UpdatedAt   time.Time       `gorm:"not null"`
}

func (WorkOrderDetail) TableName() string { return "work_order_details" }

// Details converts rows into the aggregation input.
func Details(rows []WorkOrderDetail) []aggregate.Detail {
	out := make([]aggregate.Detail, 0, len(rows))
	for _, row := range rows {
		out = append(out, aggregate.Detail{LineItemID: row.LineItemID, Done: row.Done})
	}
	return out
}
