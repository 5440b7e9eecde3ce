package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/fieldops/internal/audit/domain"
	"github.com/smallbiznis/fieldops/internal/clock"
	"github.com/smallbiznis/fieldops/internal/config"
	invoicedomain "github.com/smallbiznis/fieldops/internal/invoice/domain"
	"github.com/smallbiznis/fieldops/internal/invoice/format"
	"github.com/smallbiznis/fieldops/internal/invoice/totals"
	"github.com/smallbiznis/fieldops/internal/orgcontext"
	salesorderdomain "github.com/smallbiznis/fieldops/internal/salesorder/domain"
	"github.com/smallbiznis/fieldops/internal/salesorder/repository"
	"github.com/smallbiznis/fieldops/internal/validation"
	"github.com/smallbiznis/fieldops/pkg/db"
	"github.com/smallbiznis/fieldops/pkg/db/option"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxNumberAttempts = 3

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Config     config.Config
	Stores     repository.Stores
	InvoiceSvc invoicedomain.Service
	AuditSvc   auditdomain.Service
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID      *snowflake.Node
	clock      clock.Clock
	cfg        config.Config
	stores     repository.Stores
	invoiceSvc invoicedomain.Service
	auditSvc   auditdomain.Service
}

func NewService(p ServiceParam) salesorderdomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("salesorder.service"),

		genID:      p.GenID,
		clock:      p.Clock,
		cfg:        p.Config,
		stores:     p.Stores,
		invoiceSvc: p.InvoiceSvc,
		auditSvc:   p.AuditSvc,
	}
}

func (s *Service) Create(ctx context.Context, req salesorderdomain.CreateRequest) (*salesorderdomain.Response, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, salesorderdomain.ErrInvalidOrganization
	}
	customerName := strings.TrimSpace(req.CustomerName)
	if customerName == "" {
		return nil, salesorderdomain.ErrInvalidCustomer
	}
	if len(req.Items) == 0 {
		return nil, validation.New("items", "required", "at least one line item is required")
	}
	items, err := totals.Normalize(req.Items)
	if err != nil {
		return nil, err
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = s.cfg.DefaultCurrency
	}

	now := s.clock.Now()
	sum := totals.Calculate(items)
	order := &salesorderdomain.SalesOrder{
		ID:            s.genID.Generate(),
		OrgID:         orgID,
		CustomerName:  customerName,
		Status:        salesorderdomain.SalesOrderStatusOpen,
		Currency:      currency,
		Subtotal:      sum.Subtotal,
		DiscountTotal: sum.DiscountTotal,
		TaxTotal:      sum.TaxTotal,
		GrandTotal:    sum.GrandTotal,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	rows := make([]*salesorderdomain.SalesOrderItem, 0, len(items))
	for i, item := range items {
		rows = append(rows, &salesorderdomain.SalesOrderItem{
			ID:              s.genID.Generate(),
			OrgID:           orgID,
			SalesOrderID:    order.ID,
			Position:        i,
			RowKey:          item.Key,
			Description:     item.Description,
			Quantity:        item.Quantity,
			UnitPrice:       item.UnitPrice,
			DiscountAmount:  item.DiscountAmount,
			DiscountPercent: item.DiscountPercent,
			TaxRate:         item.TaxRate,
			Taxable:         item.Taxable,
			UOM:             item.UOM,
			TaxCode:         item.TaxCode,
			CreatedAt:       now,
		})
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stores := s.stores.WithTrx(tx)
		if err := s.insertNumbered(ctx, tx, stores, order); err != nil {
			return err
		}
		if err := stores.Items.BatchCreate(ctx, rows); err != nil {
			return err
		}
		return s.audit(ctx, tx, "sales_order.created", order, map[string]any{
			"item_count":  len(rows),
			"grand_total": order.GrandTotal.String(),
		})
	})
	if err != nil {
		return nil, err
	}

	return s.Get(ctx, order.ID.String())
}

func (s *Service) insertNumbered(ctx context.Context, tx *gorm.DB, stores repository.Stores, order *salesorderdomain.SalesOrder) error {
	var lastErr error
	for attempt := 0; attempt < maxNumberAttempts; attempt++ {
		count, err := stores.Orders.Count(ctx, &salesorderdomain.SalesOrder{OrgID: order.OrgID})
		if err != nil {
			return err
		}
		number, err := format.FormatDocumentNumber(format.DefaultSalesOrderNumberTemplate, order.CreatedAt, count+1+int64(attempt))
		if err != nil {
			return err
		}
		order.OrderNumber = number

		lastErr = tx.Transaction(func(sp *gorm.DB) error {
			return s.stores.Orders.WithTrx(sp).Create(ctx, order)
		})
		if lastErr == nil {
			return nil
		}
		if !db.IsDuplicateKeyErr(lastErr) {
			return lastErr
		}
		s.log.Warn("sales order number taken, retrying", zap.String("order_number", number), zap.Int("attempt", attempt+1))
	}
	return fmt.Errorf("assign sales order number: %w", lastErr)
}

func (s *Service) Get(ctx context.Context, id string) (*salesorderdomain.Response, error) {
	orgID, orderID, err := s.scope(ctx, id)
	if err != nil {
		return nil, err
	}

	order, items, err := s.load(ctx, s.stores, orgID, orderID)
	if err != nil {
		return nil, err
	}
	return toResponse(order, items), nil
}

// ConvertToInvoice creates a DRAFT invoice from the order's lines and marks the
// order INVOICED in the same transaction.
func (s *Service) ConvertToInvoice(ctx context.Context, req salesorderdomain.ConvertRequest) (*invoicedomain.Response, error) {
	orgID, orderID, err := s.scope(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	var invoiceID snowflake.ID
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, items, err := s.load(ctx, s.stores.WithTrx(tx), orgID, orderID)
		if err != nil {
			return err
		}
		if order.Status == salesorderdomain.SalesOrderStatusInvoiced {
			return salesorderdomain.ErrAlreadyInvoiced
		}

		lineItems := make([]totals.LineItem, 0, len(items))
		for _, item := range items {
			lineItems = append(lineItems, item.LineItem())
		}

		inv, err := s.invoiceSvc.CreateDraft(ctx, tx, invoicedomain.DraftRequest{
			CustomerName:       order.CustomerName,
			Currency:           order.Currency,
			Items:              lineItems,
			PaymentType:        req.PaymentType,
			InstallmentCount:   req.InstallmentCount,
			SourceSalesOrderID: &order.ID,
		})
		if err != nil {
			return err
		}

		result := tx.WithContext(ctx).Exec(
			`UPDATE sales_orders
			 SET status = ?, invoice_id = ?, updated_at = ?
			 WHERE org_id = ? AND id = ? AND status = ?`,
			salesorderdomain.SalesOrderStatusInvoiced,
			inv.ID,
			s.clock.Now(),
			orgID,
			orderID,
			salesorderdomain.SalesOrderStatusOpen,
		)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return salesorderdomain.ErrAlreadyInvoiced
		}
		invoiceID = inv.ID

		return s.audit(ctx, tx, "sales_order.converted", order, map[string]any{
			"invoice_id":     inv.ID.String(),
			"invoice_number": inv.InvoiceNumber,
			"payment_type":   string(inv.PaymentType),
		})
	})
	if err != nil {
		return nil, err
	}

	return s.invoiceSvc.Get(ctx, invoiceID.String())
}

func (s *Service) load(ctx context.Context, stores repository.Stores, orgID, orderID snowflake.ID) (*salesorderdomain.SalesOrder, []*salesorderdomain.SalesOrderItem, error) {
	order, err := stores.Orders.FindOne(ctx, &salesorderdomain.SalesOrder{OrgID: orgID, ID: orderID})
	if err != nil {
		return nil, nil, err
	}
	if order == nil {
		return nil, nil, salesorderdomain.ErrNotFound
	}
	items, err := stores.Items.Find(ctx,
		&salesorderdomain.SalesOrderItem{OrgID: orgID, SalesOrderID: orderID},
		option.WithOrder("position asc"),
	)
	if err != nil {
		return nil, nil, err
	}
	return order, items, nil
}

func toResponse(order *salesorderdomain.SalesOrder, items []*salesorderdomain.SalesOrderItem) *salesorderdomain.Response {
	lineItems := make([]totals.LineItem, 0, len(items))
	for _, item := range items {
		lineItems = append(lineItems, item.LineItem())
	}
	lines, sum := totals.Breakdown(lineItems)

	resp := &salesorderdomain.Response{
		ID:             order.ID.String(),
		OrganizationID: order.OrgID.String(),
		OrderNumber:    order.OrderNumber,
		CustomerName:   order.CustomerName,
		Status:         order.Status,
		Currency:       order.Currency,
		Items:          lineItems,
		Lines:          lines,
		Totals:         sum,
		CreatedAt:      order.CreatedAt,
		UpdatedAt:      order.UpdatedAt,
	}
	if order.InvoiceID != nil {
		id := order.InvoiceID.String()
		resp.InvoiceID = &id
	}
	return resp
}

func (s *Service) audit(ctx context.Context, tx *gorm.DB, action string, order *salesorderdomain.SalesOrder, metadata map[string]any) error {
	if s.auditSvc == nil {
		return nil
	}
	metadata["order_number"] = order.OrderNumber
	return s.auditSvc.Record(ctx, tx, action, "sales_order", order.ID.String(), metadata)
}

func (s *Service) scope(ctx context.Context, id string) (snowflake.ID, snowflake.ID, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return 0, 0, salesorderdomain.ErrInvalidOrganization
	}
	orderID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || orderID == 0 {
		return 0, 0, salesorderdomain.ErrInvalidID
	}
	return orgID, orderID, nil
}
