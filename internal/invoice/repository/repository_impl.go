package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/fieldops/internal/invoice/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() invoicedomain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, inv *invoicedomain.Invoice) error {
	return db.WithContext(ctx).Create(inv).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*invoicedomain.Invoice, error) {
	return r.find(db.WithContext(ctx), orgID, id)
}

// FindForUpdate locks the invoice row where the dialect supports row locks.
func (r *repo) FindForUpdate(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*invoicedomain.Invoice, error) {
	stmt := db.WithContext(ctx)
	if !strings.EqualFold(db.Dialector.Name(), "sqlite") {
		stmt = stmt.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return r.find(stmt, orgID, id)
}

func (r *repo) find(stmt *gorm.DB, orgID, id snowflake.ID) (*invoicedomain.Invoice, error) {
	var inv invoicedomain.Invoice
	err := stmt.Where("org_id = ? AND id = ?", orgID, id).First(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *repo) UpdateHeader(ctx context.Context, db *gorm.DB, inv *invoicedomain.Invoice) error {
	return db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET customer_name = ?, payment_type = ?, subtotal = ?, discount_total = ?, tax_total = ?,
		     grand_total = ?, due_at = ?, updated_at = ?
		 WHERE org_id = ? AND id = ?`,
		inv.CustomerName,
		inv.PaymentType,
		inv.Subtotal,
		inv.DiscountTotal,
		inv.TaxTotal,
		inv.GrandTotal,
		inv.DueAt,
		inv.UpdatedAt,
		inv.OrgID,
		inv.ID,
	).Error
}

func (r *repo) CountByOrg(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Model(&invoicedomain.Invoice{}).Where("org_id = ?", orgID).Count(&count).Error
	return count, err
}

func (r *repo) ListItems(ctx context.Context, db *gorm.DB, orgID, invoiceID snowflake.ID) ([]invoicedomain.InvoiceItem, error) {
	var items []invoicedomain.InvoiceItem
	err := db.WithContext(ctx).
		Where("org_id = ? AND invoice_id = ?", orgID, invoiceID).
		Order("position asc").
		Find(&items).Error
	return items, err
}

func (r *repo) ReplaceItems(ctx context.Context, db *gorm.DB, orgID, invoiceID snowflake.ID, items []invoicedomain.InvoiceItem) error {
	if err := db.WithContext(ctx).Exec(
		`DELETE FROM invoice_items WHERE org_id = ? AND invoice_id = ?`,
		orgID,
		invoiceID,
	).Error; err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&items).Error
}

func (r *repo) ListInstallments(ctx context.Context, db *gorm.DB, orgID, invoiceID snowflake.ID) ([]invoicedomain.InvoiceInstallment, error) {
	var rows []invoicedomain.InvoiceInstallment
	err := db.WithContext(ctx).
		Where("org_id = ? AND invoice_id = ?", orgID, invoiceID).
		Order("sequence asc").
		Find(&rows).Error
	return rows, err
}

func (r *repo) ReplaceInstallments(ctx context.Context, db *gorm.DB, orgID, invoiceID snowflake.ID, rows []invoicedomain.InvoiceInstallment) error {
	if err := db.WithContext(ctx).Exec(
		`DELETE FROM invoice_installments WHERE org_id = ? AND invoice_id = ?`,
		orgID,
		invoiceID,
	).Error; err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&rows).Error
}
