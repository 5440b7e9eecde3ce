package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	progressdomain "github.com/smallbiznis/fieldops/internal/progress/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() progressdomain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, report *progressdomain.ProgressReport, photos []progressdomain.ReportPhoto) error {
	if err := db.WithContext(ctx).Create(report).Error; err != nil {
		return err
	}
	if len(photos) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&photos).Error
}

func (r *repo) ListByWorkOrder(ctx context.Context, db *gorm.DB, orgID, workOrderID snowflake.ID) ([]progressdomain.ProgressReport, error) {
	var reports []progressdomain.ProgressReport
	err := db.WithContext(ctx).
		Where("org_id = ? AND work_order_id = ?", orgID, workOrderID).
		Order("reported_at asc, id asc").
		Find(&reports).Error
	return reports, err
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter progressdomain.ListFilter) ([]*progressdomain.ProgressReport, error) {
	var reports []*progressdomain.ProgressReport
	stmt := db.WithContext(ctx).Model(&progressdomain.ProgressReport{}).
		Where("org_id = ? AND work_order_id = ?", filter.OrgID, filter.WorkOrderID)

	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if lineItemID := strings.TrimSpace(filter.LineItemID); lineItemID != "" {
		stmt = stmt.Where("line_item_id = ?", lineItemID)
	}
	if filter.Cursor != nil {
		stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			filter.Cursor.CreatedAt,
			filter.Cursor.CreatedAt,
			filter.Cursor.ID,
		)
	}

	stmt = stmt.Order("created_at desc, id desc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}

	if err := stmt.Find(&reports).Error; err != nil {
		return nil, err
	}
	return reports, nil
}

// FindForUpdate locks the report row where the dialect supports row locks.
func (r *repo) FindForUpdate(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*progressdomain.ProgressReport, error) {
	stmt := db.WithContext(ctx)
	if !strings.EqualFold(db.Dialector.Name(), "sqlite") {
		stmt = stmt.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var report progressdomain.ProgressReport
	err := stmt.Where("org_id = ? AND id = ?", orgID, id).First(&report).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &report, nil
}

func (r *repo) UpdateReview(ctx context.Context, db *gorm.DB, report *progressdomain.ProgressReport) error {
	return db.WithContext(ctx).Exec(
		`UPDATE progress_reports
		 SET status = ?, reviewed_by = ?, reviewed_at = ?, review_note = ?, updated_at = ?
		 WHERE org_id = ? AND id = ?`,
		report.Status,
		report.ReviewedBy,
		report.ReviewedAt,
		report.ReviewNote,
		report.UpdatedAt,
		report.OrgID,
		report.ID,
	).Error
}

type photoCount struct {
	ReportID snowflake.ID
	Total    int
}

func (r *repo) CountPhotos(ctx context.Context, db *gorm.DB, orgID snowflake.ID, reportIDs []snowflake.ID) (map[snowflake.ID]int, error) {
	counts := make(map[snowflake.ID]int, len(reportIDs))
	if len(reportIDs) == 0 {
		return counts, nil
	}
	var rows []photoCount
	err := db.WithContext(ctx).Raw(
		`SELECT report_id, COUNT(*) AS total
		 FROM report_photos
		 WHERE org_id = ? AND report_id IN ?
		 GROUP BY report_id`,
		orgID,
		reportIDs,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.ReportID] = row.Total
	}
	return counts, nil
}

func (r *repo) ListPhotos(ctx context.Context, db *gorm.DB, orgID snowflake.ID, reportIDs []snowflake.ID) ([]progressdomain.ReportPhoto, error) {
	if len(reportIDs) == 0 {
		return nil, nil
	}
	var photos []progressdomain.ReportPhoto
	err := db.WithContext(ctx).
		Where("org_id = ? AND report_id IN ?", orgID, reportIDs).
		Order("report_id asc, position asc").
		Find(&photos).Error
	return photos, err
}
