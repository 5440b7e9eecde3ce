package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	workorderdomain "github.com/smallbiznis/fieldops/internal/workorder/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() workorderdomain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, wo *workorderdomain.WorkOrder, details []workorderdomain.WorkOrderDetail) error {
	if err := db.WithContext(ctx).Create(wo).Error; err != nil {
		return err
	}
	if len(details) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&details).Error
}

func (r *repo) FindByNumber(ctx context.Context, db *gorm.DB, orgID snowflake.ID, number string) (*workorderdomain.WorkOrder, error) {
	return r.find(db.WithContext(ctx), orgID, number)
}

// FindByNumberForUpdate locks the work order row where the dialect supports row locks.
func (r *repo) FindByNumberForUpdate(ctx context.Context, db *gorm.DB, orgID snowflake.ID, number string) (*workorderdomain.WorkOrder, error) {
	stmt := db.WithContext(ctx)
	if !strings.EqualFold(db.Dialector.Name(), "sqlite") {
		stmt = stmt.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return r.find(stmt, orgID, number)
}

func (r *repo) find(stmt *gorm.DB, orgID snowflake.ID, number string) (*workorderdomain.WorkOrder, error) {
	var wo workorderdomain.WorkOrder
	err := stmt.Where("org_id = ? AND work_order_number = ?", orgID, number).First(&wo).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &wo, nil
}

func (r *repo) ListDetails(ctx context.Context, db *gorm.DB, orgID, workOrderID snowflake.ID) ([]workorderdomain.WorkOrderDetail, error) {
	var details []workorderdomain.WorkOrderDetail
	err := db.WithContext(ctx).
		Where("org_id = ? AND work_order_id = ?", orgID, workOrderID).
		Order("position asc").
		Find(&details).Error
	return details, err
}

func (r *repo) UpdateDetailDone(ctx context.Context, db *gorm.DB, detail *workorderdomain.WorkOrderDetail) error {
	return db.WithContext(ctx).Exec(
		`UPDATE work_order_details
		 SET done = ?, done_at = ?, updated_at = ?
		 WHERE org_id = ? AND id = ?`,
		detail.Done,
		detail.DoneAt,
		detail.UpdatedAt,
		detail.OrgID,
		detail.ID,
	).Error
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, wo *workorderdomain.WorkOrder) error {
	return db.WithContext(ctx).Exec(
		`UPDATE work_orders
		 SET status = ?, updated_at = ?
		 WHERE org_id = ? AND id = ?`,
		wo.Status,
		wo.UpdatedAt,
		wo.OrgID,
		wo.ID,
	).Error
}
