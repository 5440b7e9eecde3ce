package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/fieldops/internal/audit/domain"
	"github.com/smallbiznis/fieldops/internal/cache"
	"github.com/smallbiznis/fieldops/internal/clock"
	"github.com/smallbiznis/fieldops/internal/config"
	"github.com/smallbiznis/fieldops/internal/invoice/format"
	"github.com/smallbiznis/fieldops/internal/observability/metrics"
	"github.com/smallbiznis/fieldops/internal/orgcontext"
	"github.com/smallbiznis/fieldops/internal/photo"
	"github.com/smallbiznis/fieldops/internal/progress/aggregate"
	progressdomain "github.com/smallbiznis/fieldops/internal/progress/domain"
	"github.com/smallbiznis/fieldops/internal/providers/pdf"
	"github.com/smallbiznis/fieldops/internal/validation"
	workorderdomain "github.com/smallbiznis/fieldops/internal/workorder/domain"
	"github.com/smallbiznis/fieldops/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Config       config.Config
	Policy       *config.PolicyConfigHolder
	Repo         progressdomain.Repository
	WorkOrderSvc workorderdomain.Service
	AuditSvc     auditdomain.Service
	Resizer      *photo.Resizer
	Cache        cache.Store `optional:"true"`
	PDF          pdf.Provider
	Metrics      *metrics.Metrics `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID        *snowflake.Node
	clock        clock.Clock
	cfg          config.Config
	policy       *config.PolicyConfigHolder
	repo         progressdomain.Repository
	workOrderSvc workorderdomain.Service
	auditSvc     auditdomain.Service
	resizer      *photo.Resizer
	cache        cache.Store
	pdf          pdf.Provider
	metrics      *metrics.Metrics
}

func NewService(p ServiceParam) progressdomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("progress.service"),

		genID:        p.GenID,
		clock:        p.Clock,
		cfg:          p.Config,
		policy:       p.Policy,
		repo:         p.Repo,
		workOrderSvc: p.WorkOrderSvc,
		auditSvc:     p.AuditSvc,
		resizer:      p.Resizer,
		cache:        p.Cache,
		pdf:          p.PDF,
		metrics:      p.Metrics,
	}
}

// Submit validates a crew report against the work order and the reports
// already filed. The work order row stays locked from the read of existing
// reports until the insert, so concurrent submissions for one work order are
// checked one at a time. Rejected submissions leave no record.
func (s *Service) Submit(ctx context.Context, req progressdomain.SubmitRequest) (*progressdomain.ReportResponse, error) {
	policy := s.policy.Get()

	var sizeErrs validation.Errors
	for i, raw := range req.Photos {
		if len(raw) == 0 {
			continue
		}
		if err := s.resizer.CheckSize(raw); errors.Is(err, photo.ErrTooLarge) {
			sizeErrs.Add(fmt.Sprintf("photos[%d]", i), photo.ErrTooLarge.Error(),
				fmt.Sprintf("photo exceeds %d pixels", policy.PhotoMaxPixels))
		}
	}
	if err := sizeErrs.ErrOrNil(); err != nil {
		s.recordRejected(ctx, err)
		return nil, err
	}

	now := s.clock.Now()
	reportID := s.genID.Generate()

	// Resizing is the slow part; keep it out of the locked section.
	photos := make([]progressdomain.ReportPhoto, 0, len(req.Photos))
	resized := 0
	if len(req.Photos) <= policy.MaxPhotosPerReport {
		for i, raw := range req.Photos {
			if len(raw) == 0 {
				continue
			}
			out := s.resizer.Resize(raw)
			if out.Resized {
				resized++
			}
			photos = append(photos, progressdomain.ReportPhoto{
				ID:        s.genID.Generate(),
				ReportID:  reportID,
				Position:  i,
				MimeType:  out.MimeType,
				Width:     out.Width,
				Height:    out.Height,
				Content:   out.Content,
				CreatedAt: now,
			})
		}
	}

	var report *progressdomain.ProgressReport
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		agg, err := s.workOrderSvc.LoadForUpdate(ctx, tx, req.WorkOrderNumber)
		if err != nil {
			return err
		}
		wo := agg.WorkOrder

		existing, err := s.repo.ListByWorkOrder(ctx, tx, wo.OrgID, wo.ID)
		if err != nil {
			return err
		}

		sub, err := aggregate.ValidateSubmission(aggregate.Submission{
			WorkOrderNumber: wo.WorkOrderNumber,
			LineItemID:      strings.TrimSpace(req.LineItemID),
			Type:            req.Type,
			ProgressPercent: req.ProgressPercent,
			PhotoCount:      len(req.Photos),
		}, workorderdomain.Details(agg.Details), toAggregate(existing), aggregate.Rules{
			MaxPhotos: policy.MaxPhotosPerReport,
		})
		if err != nil {
			return err
		}

		report = &progressdomain.ProgressReport{
			ID:              reportID,
			OrgID:           wo.OrgID,
			WorkOrderID:     wo.ID,
			WorkOrderNumber: wo.WorkOrderNumber,
			LineItemID:      sub.LineItemID,
			Type:            sub.Type,
			ProgressPercent: sub.ProgressPercent,
			Status:          aggregate.ReportStatusPending,
			Note:            strings.TrimSpace(req.Note),
			ReportedBy:      orgcontext.ActorFromContext(ctx),
			ReportedAt:      now,
			Metadata: datatypes.JSONMap{
				"photo_count":    len(photos),
				"photos_resized": resized,
			},
			CreatedAt: now,
			UpdatedAt: now,
		}
		for i := range photos {
			photos[i].OrgID = wo.OrgID
		}

		if err := s.repo.Create(ctx, tx, report, photos); err != nil {
			return err
		}
		return s.audit(ctx, tx, "progress_report.submitted", report, map[string]any{
			"type":             string(report.Type),
			"progress_percent": report.ProgressPercent,
			"photo_count":      len(photos),
		})
	})
	if err != nil {
		s.recordRejected(ctx, err)
		return nil, err
	}

	s.invalidate(ctx, report.OrgID, report.WorkOrderNumber)
	s.metrics.RecordReportSubmitted(ctx, string(report.Type))
	resp := toReportResponse(report, len(photos))
	return &resp, nil
}

func (s *Service) recordRejected(ctx context.Context, err error) {
	errs, ok := validation.As(err)
	if !ok {
		return
	}
	for _, fe := range errs {
		s.metrics.RecordReportRejected(ctx, fe.Code)
	}
}

func (s *Service) List(ctx context.Context, req progressdomain.ListRequest) (*progressdomain.ListResponse, error) {
	status := aggregate.ReportStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	switch status {
	case "", aggregate.ReportStatusPending, aggregate.ReportStatusApproved, aggregate.ReportStatusRejected:
	default:
		return nil, validation.New("status", "invalid_status", "status must be PENDING, APPROVED or REJECTED")
	}

	var cursor *progressdomain.ReportCursor
	if strings.TrimSpace(req.PageToken) != "" {
		decoded, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return nil, err
		}
		createdAt, err := time.Parse(time.RFC3339Nano, decoded.CreatedAt)
		if err != nil {
			return nil, pagination.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(strings.TrimSpace(decoded.ID))
		if err != nil || id == 0 {
			return nil, pagination.ErrInvalidPageToken
		}
		cursor = &progressdomain.ReportCursor{ID: id, CreatedAt: createdAt}
	}

	agg, err := s.workOrderSvc.Load(ctx, s.db, req.WorkOrderNumber)
	if err != nil {
		return nil, err
	}

	limit := req.Limit()
	items, err := s.repo.List(ctx, s.db, progressdomain.ListFilter{
		OrgID:       agg.WorkOrder.OrgID,
		WorkOrderID: agg.WorkOrder.ID,
		Status:      status,
		LineItemID:  req.LineItemID,
		Cursor:      cursor,
		Limit:       limit,
	})
	if err != nil {
		return nil, err
	}

	items, pageInfo := pagination.BuildCursorPageInfo(items, limit, func(item *progressdomain.ProgressReport) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        item.ID.String(),
			CreatedAt: item.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})

	ids := make([]snowflake.ID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	counts, err := s.repo.CountPhotos(ctx, s.db, agg.WorkOrder.OrgID, ids)
	if err != nil {
		return nil, err
	}

	reports := make([]progressdomain.ReportResponse, 0, len(items))
	for _, item := range items {
		reports = append(reports, toReportResponse(item, counts[item.ID]))
	}
	return &progressdomain.ListResponse{PageInfo: *pageInfo, Reports: reports}, nil
}

// Summary serves the per-item progress view, cached per work order.
func (s *Service) Summary(ctx context.Context, workOrderNumber string) (*progressdomain.SummaryResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, progressdomain.ErrInvalidOrganization
	}
	number := strings.TrimSpace(workOrderNumber)
	key := cache.ProgressSummaryKey(orgID, number)

	if cached, hit := s.cachedSummary(ctx, key); hit {
		return cached, nil
	}

	summary, _, err := s.summarize(ctx, number)
	if err != nil {
		return nil, err
	}

	if ttl := s.policy.Get().SummaryCacheTTL; ttl > 0 && s.cache != nil {
		if payload, err := json.Marshal(summary); err == nil {
			if err := s.cache.Set(ctx, key, payload, ttl); err != nil {
				s.log.Warn("failed to cache progress summary", zap.String("work_order_number", number), zap.Error(err))
			}
		}
	}
	return summary, nil
}

func (s *Service) cachedSummary(ctx context.Context, key string) (*progressdomain.SummaryResponse, bool) {
	if s.cache == nil {
		return nil, false
	}
	payload, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.log.Warn("progress summary cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var summary progressdomain.SummaryResponse
	if err := json.Unmarshal(payload, &summary); err != nil {
		s.log.Warn("dropping undecodable progress summary", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return &summary, true
}

// summarize computes the summary from storage and returns the latest report per item.
func (s *Service) summarize(ctx context.Context, number string) (*progressdomain.SummaryResponse, map[string]*progressdomain.ProgressReport, error) {
	agg, err := s.workOrderSvc.Load(ctx, s.db, number)
	if err != nil {
		return nil, nil, err
	}
	wo := agg.WorkOrder

	reports, err := s.repo.ListByWorkOrder(ctx, s.db, wo.OrgID, wo.ID)
	if err != nil {
		return nil, nil, err
	}
	byID := make(map[snowflake.ID]*progressdomain.ProgressReport, len(reports))
	for i := range reports {
		byID[reports[i].ID] = &reports[i]
	}

	computed := aggregate.Summarize(wo.WorkOrderNumber, workorderdomain.Details(agg.Details), toAggregate(reports))

	latestIDs := make([]snowflake.ID, 0, len(computed.Items))
	for _, item := range computed.Items {
		if item.Latest != nil {
			latestIDs = append(latestIDs, item.Latest.ID)
		}
	}
	counts, err := s.repo.CountPhotos(ctx, s.db, wo.OrgID, latestIDs)
	if err != nil {
		return nil, nil, err
	}

	latest := make(map[string]*progressdomain.ProgressReport, len(computed.Items))
	summary := &progressdomain.SummaryResponse{
		WorkOrderNumber: wo.WorkOrderNumber,
		Title:           wo.Title,
		CustomerName:    wo.CustomerName,
		Status:          computed.Status,
		OverallProgress: computed.OverallProgress,
		Items:           make([]progressdomain.ItemSummaryResponse, 0, len(computed.Items)),
		GeneratedAt:     s.clock.Now(),
	}
	for i, item := range computed.Items {
		out := progressdomain.ItemSummaryResponse{
			LineItemID:        item.LineItemID,
			Description:       agg.Details[i].Description,
			EffectiveProgress: item.EffectiveProgress,
			Done:              item.Done,
		}
		if item.Latest != nil {
			if row, ok := byID[item.Latest.ID]; ok {
				resp := toReportResponse(row, counts[row.ID])
				out.LatestReport = &resp
				latest[item.LineItemID] = row
			}
		}
		summary.Items = append(summary.Items, out)
	}
	return summary, latest, nil
}

func (s *Service) Approve(ctx context.Context, req progressdomain.ReviewRequest) (*progressdomain.ReportResponse, error) {
	return s.review(ctx, req, aggregate.ReportStatusApproved)
}

func (s *Service) Reject(ctx context.Context, req progressdomain.ReviewRequest) (*progressdomain.ReportResponse, error) {
	return s.review(ctx, req, aggregate.ReportStatusRejected)
}

// review settles a PENDING report. Approving a FINAL report marks its line item done.
func (s *Service) review(ctx context.Context, req progressdomain.ReviewRequest, decision aggregate.ReportStatus) (*progressdomain.ReportResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, progressdomain.ErrInvalidOrganization
	}
	reportID, err := snowflake.ParseString(strings.TrimSpace(req.ReportID))
	if err != nil || reportID == 0 {
		return nil, progressdomain.ErrInvalidID
	}

	var report *progressdomain.ProgressReport
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		report, err = s.repo.FindForUpdate(ctx, tx, orgID, reportID)
		if err != nil {
			return err
		}
		if report == nil {
			return progressdomain.ErrNotFound
		}
		if report.Status != aggregate.ReportStatusPending {
			return progressdomain.ErrNotPending
		}

		now := s.clock.Now()
		reviewer := orgcontext.ActorFromContext(ctx)
		report.Status = decision
		report.ReviewedBy = &reviewer
		report.ReviewedAt = &now
		report.ReviewNote = nil
		if note := strings.TrimSpace(req.Note); note != "" {
			report.ReviewNote = &note
		}
		report.UpdatedAt = now
		if err := s.repo.UpdateReview(ctx, tx, report); err != nil {
			return err
		}

		metadata := map[string]any{"type": string(report.Type)}
		if decision == aggregate.ReportStatusApproved && report.Type == aggregate.ReportTypeFinal {
			agg, err := s.workOrderSvc.MarkDone(ctx, tx, report.WorkOrderNumber, report.LineItemID, true)
			if err != nil {
				return fmt.Errorf("mark line item done: %w", err)
			}
			metadata["work_order_status"] = string(agg.WorkOrder.Status)
		}

		action := "progress_report.rejected"
		if decision == aggregate.ReportStatusApproved {
			action = "progress_report.approved"
		}
		return s.audit(ctx, tx, action, report, metadata)
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, orgID, report.WorkOrderNumber)
	s.metrics.RecordReportReview(ctx, strings.ToLower(string(decision)))

	counts, err := s.repo.CountPhotos(ctx, s.db, orgID, []snowflake.ID{report.ID})
	if err != nil {
		return nil, err
	}
	resp := toReportResponse(report, counts[report.ID])
	return &resp, nil
}

func (s *Service) RenderPDF(ctx context.Context, workOrderNumber string) (*progressdomain.Document, error) {
	summary, latest, err := s.summarize(ctx, strings.TrimSpace(workOrderNumber))
	if err != nil {
		return nil, err
	}
	orgID, _ := orgcontext.OrgIDFromContext(ctx)

	reportIDs := make([]snowflake.ID, 0, len(latest))
	for _, row := range latest {
		reportIDs = append(reportIDs, row.ID)
	}
	photos, err := s.repo.ListPhotos(ctx, s.db, orgID, reportIDs)
	if err != nil {
		return nil, err
	}
	photosByReport := make(map[snowflake.ID][]pdf.Photo, len(reportIDs))
	for _, p := range photos {
		photosByReport[p.ReportID] = append(photosByReport[p.ReportID], pdf.Photo{MimeType: p.MimeType, Content: p.Content})
	}

	locale := s.cfg.DefaultLocale
	data := pdf.ProgressData{
		WorkOrderNumber: summary.WorkOrderNumber,
		Title:           summary.Title,
		CustomerName:    summary.CustomerName,
		Status:          string(summary.Status),
		OverallProgress: format.FormatPercent(decimal.NewFromInt(int64(summary.OverallProgress)), locale),
		GeneratedAt:     summary.GeneratedAt.Format("02 Jan 2006 15:04"),
	}
	for _, item := range summary.Items {
		line := pdf.ProgressLine{
			LineItemID:  item.LineItemID,
			Description: item.Description,
			Progress:    format.FormatPercent(decimal.NewFromInt(int64(item.EffectiveProgress)), locale),
			Done:        item.Done,
		}
		if row, ok := latest[item.LineItemID]; ok {
			line.LastNote = row.Note
			line.ReportedBy = row.ReportedBy
			line.ReportedAt = row.ReportedAt.Format("02 Jan 2006 15:04")
			line.Photos = photosByReport[row.ID]
		}
		data.Items = append(data.Items, line)
	}

	content, err := s.pdf.RenderWorkOrderProgress(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("render progress pdf: %w", err)
	}
	return &progressdomain.Document{
		Filename:    pdf.Filename("spk", summary.WorkOrderNumber),
		ContentType: pdf.ContentType,
		Content:     content,
	}, nil
}

func (s *Service) invalidate(ctx context.Context, orgID snowflake.ID, number string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, cache.ProgressSummaryKey(orgID, number)); err != nil {
		s.log.Warn("failed to invalidate progress summary", zap.String("work_order_number", number), zap.Error(err))
	}
}

func (s *Service) audit(ctx context.Context, tx *gorm.DB, action string, report *progressdomain.ProgressReport, metadata map[string]any) error {
	if s.auditSvc == nil {
		return nil
	}
	metadata["work_order_number"] = report.WorkOrderNumber
	metadata["line_item_id"] = report.LineItemID
	return s.auditSvc.Record(ctx, tx, action, "progress_report", report.ID.String(), metadata)
}

func toAggregate(reports []progressdomain.ProgressReport) []aggregate.Report {
	out := make([]aggregate.Report, 0, len(reports))
	for _, r := range reports {
		out = append(out, r.Aggregate())
	}
	return out
}

func toReportResponse(r *progressdomain.ProgressReport, photoCount int) progressdomain.ReportResponse {
	return progressdomain.ReportResponse{
		ID:              r.ID.String(),
		WorkOrderNumber: r.WorkOrderNumber,
		LineItemID:      r.LineItemID,
		Type:            r.Type,
		ProgressPercent: r.ProgressPercent,
		Status:          r.Status,
		Note:            r.Note,
		ReportedBy:      r.ReportedBy,
		ReportedAt:      r.ReportedAt,
		ReviewedBy:      r.ReviewedBy,
		ReviewedAt:      r.ReviewedAt,
		ReviewNote:      r.ReviewNote,
		PhotoCount:      photoCount,
	}
}
