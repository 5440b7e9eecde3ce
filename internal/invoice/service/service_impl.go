package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/fieldops/internal/audit/domain"
	"github.com/smallbiznis/fieldops/internal/clock"
	"github.com/smallbiznis/fieldops/internal/config"
	"github.com/smallbiznis/fieldops/internal/installment"
	invoicedomain "github.com/smallbiznis/fieldops/internal/invoice/domain"
	"github.com/smallbiznis/fieldops/internal/invoice/format"
	"github.com/smallbiznis/fieldops/internal/invoice/totals"
	"github.com/smallbiznis/fieldops/internal/observability/metrics"
	"github.com/smallbiznis/fieldops/internal/orgcontext"
	"github.com/smallbiznis/fieldops/internal/providers/pdf"
	"github.com/smallbiznis/fieldops/internal/validation"
	"github.com/smallbiznis/fieldops/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const maxNumberAttempts = 3

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Config   config.Config
	Policy   *config.PolicyConfigHolder
	Repo     invoicedomain.Repository
	AuditSvc auditdomain.Service
	PDF      pdf.Provider
	Metrics  *metrics.Metrics `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID    *snowflake.Node
	clock    clock.Clock
	cfg      config.Config
	policy   *config.PolicyConfigHolder
	repo     invoicedomain.Repository
	auditSvc auditdomain.Service
	pdf      pdf.Provider
	metrics  *metrics.Metrics
}

func NewService(p ServiceParam) invoicedomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("invoice.service"),

		genID:    p.GenID,
		clock:    p.Clock,
		cfg:      p.Config,
		policy:   p.Policy,
		repo:     p.Repo,
		auditSvc: p.AuditSvc,
		pdf:      p.PDF,
		metrics:  p.Metrics,
	}
}

func (s *Service) PreviewTotals(ctx context.Context, req invoicedomain.PreviewRequest) (*invoicedomain.PreviewResponse, error) {
	items, err := totals.Normalize(req.Items)
	if err != nil {
		return nil, err
	}
	lines, sum := totals.Breakdown(items)
	s.metrics.RecordTotalsPreview(ctx, len(items))
	return &invoicedomain.PreviewResponse{Items: lines, Totals: sum}, nil
}

func (s *Service) Get(ctx context.Context, id string) (*invoicedomain.Response, error) {
	orgID, invoiceID, err := s.scope(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.load(ctx, s.db, orgID, invoiceID)
}

func (s *Service) Update(ctx context.Context, req invoicedomain.UpdateRequest) (*invoicedomain.Response, error) {
	orgID, invoiceID, err := s.scope(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	var errs validation.Errors
	items, err := totals.Normalize(req.Items)
	if err != nil {
		fieldErrs, ok := validation.As(err)
		if !ok {
			return nil, err
		}
		errs = append(errs, fieldErrs...)
	}
	if req.InstallmentCount < 0 {
		errs.Add("installment_count", "out_of_range", "installment_count cannot be negative")
	}
	if err := errs.ErrOrNil(); err != nil {
		return nil, err
	}

	paymentType, err := parsePaymentType(req.PaymentType)
	if err != nil {
		return nil, err
	}

	var customerName *string
	if req.CustomerName != nil {
		name := strings.TrimSpace(*req.CustomerName)
		if name == "" {
			return nil, invoicedomain.ErrInvalidCustomer
		}
		customerName = &name
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := s.lockDraft(ctx, tx, orgID, invoiceID)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		if paymentType == "" {
			paymentType = inv.PaymentType
		}
		if customerName != nil {
			inv.CustomerName = *customerName
		}
		if req.DueAt != nil {
			due := req.DueAt.UTC()
			inv.DueAt = &due
		}
		inv.PaymentType = paymentType
		inv.ApplyTotals(totals.Calculate(items))
		inv.UpdatedAt = now

		if err := s.repo.ReplaceItems(ctx, tx, orgID, invoiceID, s.itemRows(inv, items, now)); err != nil {
			return err
		}

		var plan installment.Plan
		switch paymentType {
		case invoicedomain.PaymentTypeInstallment:
			plan, err = s.replan(ctx, tx, inv, req.InstallmentCount, now)
			if err != nil {
				return err
			}
		case invoicedomain.PaymentTypeCash:
			plan = installment.Plan{GrandTotal: inv.GrandTotal}
		}
		if err := s.repo.ReplaceInstallments(ctx, tx, orgID, invoiceID, s.installmentRows(inv, plan, now)); err != nil {
			return err
		}
		if err := s.repo.UpdateHeader(ctx, tx, inv); err != nil {
			return err
		}

		return s.audit(ctx, tx, "invoice.updated", inv, map[string]any{
			"payment_type":      string(inv.PaymentType),
			"item_count":        len(items),
			"installment_count": len(plan.Installments),
			"grand_total":       inv.GrandTotal.String(),
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordInvoiceUpdated(ctx, string(paymentType))
	return s.load(ctx, s.db, orgID, invoiceID)
}

func (s *Service) AddInstallment(ctx context.Context, id string) (*invoicedomain.Response, error) {
	return s.mutatePlan(ctx, id, "invoice.installment_added", func(plan *installment.Plan, now time.Time) (map[string]any, error) {
		added := plan.Append(now, s.policy.Get().InstallmentInterval())
		return map[string]any{"installment_key": added.Key}, nil
	})
}

func (s *Service) RemoveInstallment(ctx context.Context, id, key string) (*invoicedomain.Response, error) {
	key = strings.TrimSpace(key)
	return s.mutatePlan(ctx, id, "invoice.installment_removed", func(plan *installment.Plan, _ time.Time) (map[string]any, error) {
		if err := plan.Remove(key); err != nil {
			return nil, err
		}
		return map[string]any{"installment_key": key}, nil
	})
}

func (s *Service) mutatePlan(ctx context.Context, id, action string, apply func(*installment.Plan, time.Time) (map[string]any, error)) (*invoicedomain.Response, error) {
	orgID, invoiceID, err := s.scope(ctx, id)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := s.lockDraft(ctx, tx, orgID, invoiceID)
		if err != nil {
			return err
		}
		if inv.PaymentType != invoicedomain.PaymentTypeInstallment {
			return invoicedomain.ErrNotInstallment
		}

		plan, err := s.currentPlan(ctx, tx, inv)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		metadata, err := apply(&plan, now)
		if err != nil {
			return err
		}
		if err := s.repo.ReplaceInstallments(ctx, tx, orgID, invoiceID, s.installmentRows(inv, plan, now)); err != nil {
			return err
		}

		metadata["installment_count"] = len(plan.Installments)
		return s.audit(ctx, tx, action, inv, metadata)
	})
	if err != nil {
		return nil, err
	}
	return s.load(ctx, s.db, orgID, invoiceID)
}

// CreateDraft persists a new DRAFT invoice on tx, numbering it per org.
func (s *Service) CreateDraft(ctx context.Context, tx *gorm.DB, req invoicedomain.DraftRequest) (*invoicedomain.Invoice, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, invoicedomain.ErrInvalidOrganization
	}
	if tx == nil {
		tx = s.db
	}

	customerName := strings.TrimSpace(req.CustomerName)
	if customerName == "" {
		return nil, invoicedomain.ErrInvalidCustomer
	}
	paymentType, err := parsePaymentType(req.PaymentType)
	if err != nil {
		return nil, err
	}
	if paymentType == "" {
		paymentType = invoicedomain.PaymentTypeCash
	}
	if req.InstallmentCount < 0 {
		return nil, validation.New("installment_count", "out_of_range", "installment_count cannot be negative")
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = s.cfg.DefaultCurrency
	}

	now := s.clock.Now()
	inv := &invoicedomain.Invoice{
		ID:                 s.genID.Generate(),
		OrgID:              orgID,
		CustomerName:       customerName,
		Status:             invoicedomain.InvoiceStatusDraft,
		PaymentType:        paymentType,
		Currency:           currency,
		SourceSalesOrderID: req.SourceSalesOrderID,
		IssuedAt:           now,
		Metadata:           datatypes.JSONMap{},
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	inv.ApplyTotals(totals.Calculate(req.Items))

	if err := s.insertNumbered(ctx, tx, inv); err != nil {
		return nil, err
	}
	if err := s.repo.ReplaceItems(ctx, tx, orgID, inv.ID, s.itemRows(inv, req.Items, now)); err != nil {
		return nil, err
	}

	if paymentType == invoicedomain.PaymentTypeInstallment {
		count := req.InstallmentCount
		if count == 0 {
			count = 1
		}
		plan := installment.NewPlan(inv.GrandTotal, count, now, s.policy.Get().InstallmentInterval())
		if err := s.repo.ReplaceInstallments(ctx, tx, orgID, inv.ID, s.installmentRows(inv, plan, now)); err != nil {
			return nil, err
		}
	}

	metadata := map[string]any{
		"invoice_number": inv.InvoiceNumber,
		"payment_type":   string(inv.PaymentType),
		"grand_total":    inv.GrandTotal.String(),
	}
	if inv.SourceSalesOrderID != nil {
		metadata["source_sales_order_id"] = inv.SourceSalesOrderID.String()
	}
	if err := s.audit(ctx, tx, "invoice.created", inv, metadata); err != nil {
		return nil, err
	}
	return inv, nil
}

// insertNumbered assigns the next invoice number and inserts the header. A
// concurrent writer taking the same number is retried inside a savepoint.
func (s *Service) insertNumbered(ctx context.Context, tx *gorm.DB, inv *invoicedomain.Invoice) error {
	var lastErr error
	for attempt := 0; attempt < maxNumberAttempts; attempt++ {
		count, err := s.repo.CountByOrg(ctx, tx, inv.OrgID)
		if err != nil {
			return err
		}
		number, err := format.FormatDocumentNumber(format.DefaultInvoiceNumberTemplate, inv.IssuedAt, count+1+int64(attempt))
		if err != nil {
			return err
		}
		inv.InvoiceNumber = number

		lastErr = tx.Transaction(func(sp *gorm.DB) error {
			return s.repo.Create(ctx, sp, inv)
		})
		if lastErr == nil {
			return nil
		}
		if !db.IsDuplicateKeyErr(lastErr) {
			return lastErr
		}
		s.log.Warn("invoice number taken, retrying", zap.String("invoice_number", number), zap.Int("attempt", attempt+1))
	}
	return fmt.Errorf("assign invoice number: %w", lastErr)
}

func (s *Service) RenderPDF(ctx context.Context, id string) (*invoicedomain.Document, error) {
	resp, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	locale := s.cfg.DefaultLocale
	money := func(v decimal.Decimal) string { return format.FormatMoney(v, resp.Currency, locale) }

	data := pdf.InvoiceData{
		InvoiceNumber: resp.InvoiceNumber,
		Status:        string(resp.Status),
		PaymentType:   string(resp.PaymentType),
		IssueDate:     resp.IssuedAt.Format("02 Jan 2006"),
		CustomerName:  resp.CustomerName,
		Subtotal:      money(resp.Totals.Subtotal),
		DiscountTotal: money(resp.Totals.DiscountTotal),
		TaxTotal:      money(resp.Totals.TaxTotal),
		GrandTotal:    money(resp.Totals.GrandTotal),
	}
	if resp.DueAt != nil {
		data.DueDate = resp.DueAt.Format("02 Jan 2006")
	}
	for i, item := range resp.Items {
		line := resp.Lines[i]
		data.Items = append(data.Items, pdf.InvoiceLine{
			Description: item.Description,
			Quantity:    format.FormatFloat(item.Quantity.InexactFloat64(), locale) + " " + item.UOM,
			UnitPrice:   money(item.UnitPrice),
			Discount:    money(line.Discount),
			Tax:         money(line.Tax),
			Amount:      money(line.Net),
		})
	}
	for _, inst := range resp.Installments {
		data.Installments = append(data.Installments, pdf.InstallmentLine{
			Sequence:   strconv.Itoa(inst.Sequence),
			DueDate:    inst.DueDate.Format("02 Jan 2006"),
			Amount:     money(inst.Amount),
			Percentage: format.FormatPercent(inst.Percentage, locale),
		})
	}

	content, err := s.pdf.RenderInvoice(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("render invoice pdf: %w", err)
	}
	return &invoicedomain.Document{
		Filename:    pdf.Filename("invoice", resp.InvoiceNumber),
		ContentType: pdf.ContentType,
		Content:     content,
	}, nil
}

func (s *Service) lockDraft(ctx context.Context, tx *gorm.DB, orgID, invoiceID snowflake.ID) (*invoicedomain.Invoice, error) {
	inv, err := s.repo.FindForUpdate(ctx, tx, orgID, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, invoicedomain.ErrNotFound
	}
	if inv.Status != invoicedomain.InvoiceStatusDraft {
		return nil, invoicedomain.ErrNotDraft
	}
	return inv, nil
}

func (s *Service) currentPlan(ctx context.Context, tx *gorm.DB, inv *invoicedomain.Invoice) (installment.Plan, error) {
	rows, err := s.repo.ListInstallments(ctx, tx, inv.OrgID, inv.ID)
	if err != nil {
		return installment.Plan{}, err
	}
	plan := installment.Plan{GrandTotal: inv.GrandTotal, Installments: make([]installment.Installment, 0, len(rows))}
	for _, row := range rows {
		plan.Installments = append(plan.Installments, row.Installment())
	}
	return plan, nil
}

// replan builds a fresh plan when count is given and otherwise rebalances the
// stored rows, starting with a single installment when none exist.
func (s *Service) replan(ctx context.Context, tx *gorm.DB, inv *invoicedomain.Invoice, count int, now time.Time) (installment.Plan, error) {
	interval := s.policy.Get().InstallmentInterval()
	if count > 0 {
		return installment.NewPlan(inv.GrandTotal, count, now, interval), nil
	}
	plan, err := s.currentPlan(ctx, tx, inv)
	if err != nil {
		return installment.Plan{}, err
	}
	if len(plan.Installments) == 0 {
		return installment.NewPlan(inv.GrandTotal, 1, now, interval), nil
	}
	plan.Rebalance(inv.GrandTotal)
	return plan, nil
}

func (s *Service) itemRows(inv *invoicedomain.Invoice, items []totals.LineItem, now time.Time) []invoicedomain.InvoiceItem {
	rows := make([]invoicedomain.InvoiceItem, 0, len(items))
	for i, item := range items {
		key := item.Key
		if key == "" {
			key = totals.NewKey()
		}
		rows = append(rows, invoicedomain.InvoiceItem{
			ID:              s.genID.Generate(),
			OrgID:           inv.OrgID,
			InvoiceID:       inv.ID,
			Position:        i,
			RowKey:          key,
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
	return rows
}

func (s *Service) installmentRows(inv *invoicedomain.Invoice, plan installment.Plan, now time.Time) []invoicedomain.InvoiceInstallment {
	rows := make([]invoicedomain.InvoiceInstallment, 0, len(plan.Installments))
	for _, inst := range plan.Installments {
		rows = append(rows, invoicedomain.InvoiceInstallment{
			ID:         s.genID.Generate(),
			OrgID:      inv.OrgID,
			InvoiceID:  inv.ID,
			RowKey:     inst.Key,
			Sequence:   inst.Sequence,
			Amount:     inst.Amount,
			Percentage: inst.Percentage,
			DueDate:    inst.DueDate,
			CreatedAt:  now,
		})
	}
	return rows
}

func (s *Service) load(ctx context.Context, conn *gorm.DB, orgID, invoiceID snowflake.ID) (*invoicedomain.Response, error) {
	inv, err := s.repo.FindByID(ctx, conn, orgID, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, invoicedomain.ErrNotFound
	}
	items, err := s.repo.ListItems(ctx, conn, orgID, invoiceID)
	if err != nil {
		return nil, err
	}
	installments, err := s.repo.ListInstallments(ctx, conn, orgID, invoiceID)
	if err != nil {
		return nil, err
	}
	return toResponse(inv, items, installments), nil
}

func toResponse(inv *invoicedomain.Invoice, items []invoicedomain.InvoiceItem, installments []invoicedomain.InvoiceInstallment) *invoicedomain.Response {
	lineItems := make([]totals.LineItem, 0, len(items))
	for _, item := range items {
		lineItems = append(lineItems, item.LineItem())
	}
	lines, sum := totals.Breakdown(lineItems)

	resp := &invoicedomain.Response{
		ID:             inv.ID.String(),
		OrganizationID: inv.OrgID.String(),
		InvoiceNumber:  inv.InvoiceNumber,
		CustomerName:   inv.CustomerName,
		Status:         inv.Status,
		PaymentType:    inv.PaymentType,
		Currency:       inv.Currency,
		Items:          lineItems,
		Lines:          lines,
		Totals:         sum,
		Installments:   make([]installment.Installment, 0, len(installments)),
		IssuedAt:       inv.IssuedAt,
		DueAt:          inv.DueAt,
		CreatedAt:      inv.CreatedAt,
		UpdatedAt:      inv.UpdatedAt,
	}
	if inv.SourceSalesOrderID != nil {
		id := inv.SourceSalesOrderID.String()
		resp.SourceSalesOrderID = &id
	}
	if inv.PaymentType == invoicedomain.PaymentTypeInstallment {
		plan := installment.Plan{GrandTotal: sum.GrandTotal}
		for _, row := range installments {
			plan.Installments = append(plan.Installments, row.Installment())
		}
		resp.Installments = plan.Installments
		if resp.Installments == nil {
			resp.Installments = []installment.Installment{}
		}
		total := plan.Sum()
		resp.InstallmentSum = &total
	}
	return resp
}

func (s *Service) audit(ctx context.Context, tx *gorm.DB, action string, inv *invoicedomain.Invoice, metadata map[string]any) error {
	if s.auditSvc == nil {
		return nil
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["invoice_number"] = inv.InvoiceNumber
	return s.auditSvc.Record(ctx, tx, action, "invoice", inv.ID.String(), metadata)
}

func (s *Service) scope(ctx context.Context, id string) (snowflake.ID, snowflake.ID, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return 0, 0, invoicedomain.ErrInvalidOrganization
	}
	invoiceID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || invoiceID == 0 {
		return 0, 0, invoicedomain.ErrInvalidID
	}
	return orgID, invoiceID, nil
}

func parsePaymentType(raw invoicedomain.PaymentType) (invoicedomain.PaymentType, error) {
	value := invoicedomain.PaymentType(strings.ToUpper(strings.TrimSpace(string(raw))))
	switch value {
	case "", invoicedomain.PaymentTypeCash, invoicedomain.PaymentTypeInstallment:
		return value, nil
	default:
		return "", invoicedomain.ErrInvalidPaymentType
	}
}
