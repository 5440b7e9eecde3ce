package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fieldops/internal/progress/aggregate"
	"gorm.io/datatypes"
)

// ProgressReport is one crew update for a work order line item.
type ProgressReport struct {
	ID              snowflake.ID           `gorm:"primaryKey"`
	OrgID           snowflake.ID           `gorm:"not null;index"`
	WorkOrderID     snowflake.ID           `gorm:"not null;index"`
	WorkOrderNumber string                 `gorm:"type:text;not null;index"`
	LineItemID      string                 `gorm:"type:text;not null"`
	Type            aggregate.ReportType   `gorm:"type:text;not null"`
	ProgressPercent int                    `gorm:"not null"`
	Status          aggregate.ReportStatus `gorm:"type:text;not null;default:'PENDING'"`
	Note            string                 `gorm:"type:text"`
	ReportedBy      string                 `gorm:"type:text;not null"`
	ReportedAt      time.Time              `gorm:"not null"`
	ReviewedBy      *string                `gorm:"type:text"`
	ReviewedAt      *time.Time             `gorm:""`
	ReviewNote      *string                `gorm:"type:text"`
	Metadata        datatypes.JSONMap      `gorm:"type:jsonb;not null;default:'{}'"`
	CreatedAt       time.Time              `gorm:"not null"`
	UpdatedAt       time.Time              `gorm:"not null"`
}

func (ProgressReport) TableName() string { return "progress_reports" }

func (r ProgressReport) Aggregate() aggregate.Report {
	return aggregate.Report{
		ID:              r.ID,
		WorkOrderNumber: r.WorkOrderNumber,
		LineItemID:      r.LineItemID,
		ProgressPercent: r.ProgressPercent,
		ReportedAt:      r.ReportedAt,
		Status:          r.Status,
		Type:            r.Type,
	}
}

// ReportPhoto stores the resized image bytes of a report attachment.
type ReportPhoto struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	OrgID     snowflake.ID `gorm:"not null;index"`
	ReportID  snowflake.ID `gorm:"not null;index"`
	Position  int          `gorm:"not null"`
	MimeType  string       `gorm:"type:text;not null"`
	Width     int          `gorm:"not null;default:0"`
	Height    int          `gorm:"not null;default:0"`
	Content   []byte       `gorm:"not null"`
	CreatedAt time.Time    `gorm:"not null"`
}

func (ReportPhoto) TableName() string { return "report_photos" }
