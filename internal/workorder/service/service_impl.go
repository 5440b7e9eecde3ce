package service

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/fieldops/internal/audit/domain"
	"github.com/smallbiznis/fieldops/internal/cache"
	"github.com/smallbiznis/fieldops/internal/clock"
	"github.com/smallbiznis/fieldops/internal/invoice/totals"
	"github.com/smallbiznis/fieldops/internal/orgcontext"
	"github.com/smallbiznis/fieldops/internal/progress/aggregate"
	"github.com/smallbiznis/fieldops/internal/validation"
	workorderdomain "github.com/smallbiznis/fieldops/internal/workorder/domain"
	"github.com/smallbiznis/fieldops/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     workorderdomain.Repository
	AuditSvc auditdomain.Service
	Cache    cache.Store `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID    *snowflake.Node
	clock    clock.Clock
	repo     workorderdomain.Repository
	auditSvc auditdomain.Service
	cache    cache.Store
}

func NewService(p ServiceParam) workorderdomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("workorder.service"),

		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		auditSvc: p.AuditSvc,
		cache:    p.Cache,
	}
}

func (s *Service) Create(ctx context.Context, req workorderdomain.CreateRequest) (*workorderdomain.Response, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, workorderdomain.ErrInvalidOrganization
	}
	number := strings.TrimSpace(req.WorkOrderNumber)
	if number == "" {
		return nil, workorderdomain.ErrInvalidNumber
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, workorderdomain.ErrInvalidTitle
	}
	if err := validateDetails(req.Details); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	wo := &workorderdomain.WorkOrder{
		ID:              s.genID.Generate(),
		OrgID:           orgID,
		WorkOrderNumber: number,
		Title:           title,
		CustomerName:    strings.TrimSpace(req.CustomerName),
		Location:        strings.TrimSpace(req.Location),
		Status:          aggregate.WorkOrderStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	details := make([]workorderdomain.WorkOrderDetail, 0, len(req.Details))
	for i, d := range req.Details {
		uom := strings.TrimSpace(d.UOM)
		if uom == "" {
			uom = totals.DefaultUOM
		}
		details = append(details, workorderdomain.WorkOrderDetail{
			ID:          s.genID.Generate(),
			OrgID:       orgID,
			WorkOrderID: wo.ID,
			LineItemID:  strings.TrimSpace(d.LineItemID),
			Position:    i,
			Description: strings.TrimSpace(d.Description),
			Quantity:    decimal.NewFromFloat(d.Quantity),
			UOM:         uom,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Create(ctx, tx, wo, details); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return workorderdomain.ErrAlreadyExists
			}
			return err
		}
		return s.audit(ctx, tx, "work_order.created", wo, map[string]any{
			"detail_count": len(details),
		})
	})
	if err != nil {
		return nil, err
	}

	return toResponse(&workorderdomain.Aggregate{WorkOrder: *wo, Details: details}), nil
}

func validateDetails(details []workorderdomain.DetailRequest) error {
	var errs validation.Errors
	if len(details) == 0 {
		errs.Add("details", "required", "at least one line item is required")
		return errs
	}
	seen := make(map[string]int, len(details))
	for i, d := range details {
		field := fmt.Sprintf("details[%d]", i)
		id := strings.TrimSpace(d.LineItemID)
		switch {
		case id == "":
			errs.Add(field+".line_item_id", "required", "line item id is required")
		default:
			if first, dup := seen[id]; dup {
				errs.Add(field+".line_item_id", "duplicate_line_item", fmt.Sprintf("line item %q already used by details[%d]", id, first))
			} else {
				seen[id] = i
			}
		}
		if math.IsNaN(d.Quantity) || math.IsInf(d.Quantity, 0) {
			errs.Add(field+".quantity", "not_a_number", "quantity must be a finite number")
		} else if d.Quantity < 0 {
			errs.Add(field+".quantity", "negative_value", "quantity cannot be negative")
		}
	}
	return errs.ErrOrNil()
}

func (s *Service) GetByNumber(ctx context.Context, number string) (*workorderdomain.Response, error) {
	agg, err := s.Load(ctx, s.db, number)
	if err != nil {
		return nil, err
	}
	return toResponse(agg), nil
}

func (s *Service) SetItemDone(ctx context.Context, req workorderdomain.SetItemDoneRequest) (*workorderdomain.Response, error) {
	var agg *workorderdomain.Aggregate
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		agg, err = s.MarkDone(ctx, tx, req.WorkOrderNumber, req.LineItemID, req.Done)
		if err != nil {
			return err
		}
		return s.audit(ctx, tx, "work_order.item_done", &agg.WorkOrder, map[string]any{
			"line_item_id": strings.TrimSpace(req.LineItemID),
			"done":         req.Done,
			"status":       string(agg.WorkOrder.Status),
		})
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, agg.WorkOrder.OrgID, agg.WorkOrder.WorkOrderNumber)
	return toResponse(agg), nil
}

func (s *Service) Load(ctx context.Context, conn *gorm.DB, number string) (*workorderdomain.Aggregate, error) {
	return s.load(ctx, conn, number, false)
}

func (s *Service) LoadForUpdate(ctx context.Context, tx *gorm.DB, number string) (*workorderdomain.Aggregate, error) {
	return s.load(ctx, tx, number, true)
}

func (s *Service) load(ctx context.Context, conn *gorm.DB, number string, lock bool) (*workorderdomain.Aggregate, error) {
	orgID, number, err := s.scope(ctx, number)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		conn = s.db
	}
	find := s.repo.FindByNumber
	if lock {
		find = s.repo.FindByNumberForUpdate
	}
	wo, err := find(ctx, conn, orgID, number)
	if err != nil {
		return nil, err
	}
	if wo == nil {
		return nil, workorderdomain.ErrNotFound
	}
	details, err := s.repo.ListDetails(ctx, conn, orgID, wo.ID)
	if err != nil {
		return nil, err
	}
	return &workorderdomain.Aggregate{WorkOrder: *wo, Details: details}, nil
}

// MarkDone flips one detail and re-derives the work order status from overall progress.
func (s *Service) MarkDone(ctx context.Context, tx *gorm.DB, number, lineItemID string, done bool) (*workorderdomain.Aggregate, error) {
	orgID, number, err := s.scope(ctx, number)
	if err != nil {
		return nil, err
	}
	wo, err := s.repo.FindByNumberForUpdate(ctx, tx, orgID, number)
	if err != nil {
		return nil, err
	}
	if wo == nil {
		return nil, workorderdomain.ErrNotFound
	}
	details, err := s.repo.ListDetails(ctx, tx, orgID, wo.ID)
	if err != nil {
		return nil, err
	}

	lineItemID = strings.TrimSpace(lineItemID)
	idx := -1
	for i := range details {
		if details[i].LineItemID == lineItemID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, workorderdomain.ErrItemNotFound
	}

	now := s.clock.Now()
	detail := &details[idx]
	if detail.Done != done {
		detail.Done = done
		detail.DoneAt = nil
		if done {
			detail.DoneAt = &now
		}
		detail.UpdatedAt = now
		if err := s.repo.UpdateDetailDone(ctx, tx, detail); err != nil {
			return nil, err
		}
	}

	status := aggregate.StatusFor(aggregate.OverallProgress(workorderdomain.Details(details)))
	if status != wo.Status {
		s.log.Info("work order status changed",
			zap.String("work_order_number", wo.WorkOrderNumber),
			zap.String("from", string(wo.Status)),
			zap.String("to", string(status)),
		)
		wo.Status = status
		wo.UpdatedAt = now
		if err := s.repo.UpdateStatus(ctx, tx, wo); err != nil {
			return nil, err
		}
	}

	return &workorderdomain.Aggregate{WorkOrder: *wo, Details: details}, nil
}

func (s *Service) invalidate(ctx context.Context, orgID snowflake.ID, number string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, cache.ProgressSummaryKey(orgID, number)); err != nil {
		s.log.Warn("failed to invalidate progress summary", zap.String("work_order_number", number), zap.Error(err))
	}
}

func toResponse(agg *workorderdomain.Aggregate) *workorderdomain.Response {
	wo := agg.WorkOrder
	resp := &workorderdomain.Response{
		ID:              wo.ID.String(),
		OrganizationID:  wo.OrgID.String(),
		WorkOrderNumber: wo.WorkOrderNumber,
		Title:           wo.Title,
		CustomerName:    wo.CustomerName,
		Location:        wo.Location,
		Status:          wo.Status,
		OverallProgress: aggregate.OverallProgress(workorderdomain.Details(agg.Details)),
		Details:         make([]workorderdomain.DetailResponse, 0, len(agg.Details)),
		CreatedAt:       wo.CreatedAt,
		UpdatedAt:       wo.UpdatedAt,
	}
	for _, d := range agg.Details {
		resp.Details = append(resp.Details, workorderdomain.DetailResponse{
			LineItemID:  d.LineItemID,
			Description: d.Description,
			Quantity:    d.Quantity,
			UOM:         d.UOM,
			Done:        d.Done,
			DoneAt:      d.DoneAt,
		})
	}
	return resp
}

func (s *Service) audit(ctx context.Context, tx *gorm.DB, action string, wo *workorderdomain.WorkOrder, metadata map[string]any) error {
	if s.auditSvc == nil {
		return nil
	}
	metadata["work_order_number"] = wo.WorkOrderNumber
	return s.auditSvc.Record(ctx, tx, action, "work_order", wo.ID.String(), metadata)
}

func (s *Service) scope(ctx context.Context, number string) (snowflake.ID, string, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return 0, "", workorderdomain.ErrInvalidOrganization
	}
	number = strings.TrimSpace(number)
	if number == "" {
		return 0, "", workorderdomain.ErrInvalidNumber
	}
	return orgID, number, nil
}
