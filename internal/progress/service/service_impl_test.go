package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditrepo "github.com/smallbiznis/fieldops/internal/audit/repository"
	auditservice "github.com/smallbiznis/fieldops/internal/audit/service"
	"github.com/smallbiznis/fieldops/internal/cache"
	"github.com/smallbiznis/fieldops/internal/clock"
	"github.com/smallbiznis/fieldops/internal/config"
	"github.com/smallbiznis/fieldops/internal/photo"
	"github.com/smallbiznis/fieldops/internal/progress/aggregate"
	progressdomain "github.com/smallbiznis/fieldops/internal/progress/domain"
	"github.com/smallbiznis/fieldops/internal/progress/repository"
	"github.com/smallbiznis/fieldops/internal/providers/pdf"
	"github.com/smallbiznis/fieldops/internal/testutil"
	"github.com/smallbiznis/fieldops/internal/validation"
	workorderdomain "github.com/smallbiznis/fieldops/internal/workorder/domain"
	workorderrepo "github.com/smallbiznis/fieldops/internal/workorder/repository"
	workorderservice "github.com/smallbiznis/fieldops/internal/workorder/service"
	"github.com/smallbiznis/fieldops/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testOrgID = snowflake.ID(4004)

type fixture struct {
	svc       progressdomain.Service
	workOrder workorderdomain.Service
	store     cache.Store
	clock     *clock.FakeClock
	db        *gorm.DB
	ctx       context.Context
}

func setup(t *testing.T) *fixture {
	t.Helper()
	return setupWithStore(t, cache.NewMemoryStore())
}

func setupWithStore(t *testing.T, store cache.Store) *fixture {
	t.Helper()
	return setupWith(t, store, nil)
}

func setupWith(t *testing.T, store cache.Store, tune func(*config.PolicyConfig)) *fixture {
	t.Helper()

	db := testutil.OpenDB(t)
	node := testutil.Node(t)
	clk := clock.NewFakeClock(time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC))

	policyCfg := config.DefaultPolicyConfig()
	policyCfg.PhotoMaxDimension = 64
	if tune != nil {
		tune(&policyCfg)
	}
	policy := config.NewStaticPolicyHolder(policyCfg)

	audit := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  auditrepo.Provide(),
	})
	workOrder := workorderservice.NewService(workorderservice.ServiceParam{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clk,
		Repo:     workorderrepo.Provide(),
		AuditSvc: audit,
		Cache:    store,
	})

	svc := NewService(ServiceParam{
		DB:           db,
		Log:          zap.NewNop(),
		GenID:        node,
		Clock:        clk,
		Config:       config.Config{DefaultLocale: "id-ID", DefaultCurrency: "IDR"},
		Policy:       policy,
		Repo:         repository.Provide(),
		WorkOrderSvc: workOrder,
		AuditSvc:     audit,
		Resizer:      photo.NewResizer(policy, zap.NewNop()),
		Cache:        store,
		PDF:          pdf.New(),
	})

	ctx := testutil.OrgContext(testOrgID, "budi")
	_, err := workOrder.Create(ctx, workorderdomain.CreateRequest{
		WorkOrderNumber: "SPK-001",
		Title:           "Instalasi listrik gudang",
		CustomerName:    "CV Sinar",
		Details: []workorderdomain.DetailRequest{
			{LineItemID: "item-A", Description: "Tarik kabel", Quantity: 120, UOM: "m"},
			{LineItemID: "item-B", Description: "Pasang panel", Quantity: 1},
		},
	})
	require.NoError(t, err)

	return &fixture{svc: svc, workOrder: workOrder, store: store, clock: clk, db: db, ctx: ctx}
}

func (f *fixture) submit(t *testing.T, lineItemID string, reportType aggregate.ReportType, percent int) *progressdomain.ReportResponse {
	t.Helper()
	resp, err := f.svc.Submit(f.ctx, progressdomain.SubmitRequest{
		WorkOrderNumber: "SPK-001",
		LineItemID:      lineItemID,
		Type:            reportType,
		ProgressPercent: percent,
	})
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	return resp
}

func (f *fixture) countReports(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&progressdomain.ProgressReport{}).Count(&n).Error)
	return n
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, x%h, color.NRGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestSubmitUnchangedProgressIsRejected(t *testing.T) {
	f := setup(t)
	f.submit(t, "item-A", aggregate.ReportTypeProgress, 40)

	_, err := f.svc.Submit(f.ctx, progressdomain.SubmitRequest{
		WorkOrderNumber: "SPK-001",
		LineItemID:      "item-A",
		ProgressPercent: 40,
	})
	errs, ok := validation.As(err)
	require.True(t, ok)
	assert.True(t, errs.Has(aggregate.CodeProgressUnchanged))
	assert.Equal(t, int64(1), f.countReports(t))
}

func TestSubmitValidationFailures(t *testing.T) {
	f := setup(t)

	cases := []struct {
		name string
		req  progressdomain.SubmitRequest
		code string
	}{
		{"unknown item", progressdomain.SubmitRequest{LineItemID: "item-Z", ProgressPercent: 10}, aggregate.CodeInvalidItem},
		{"zero progress", progressdomain.SubmitRequest{LineItemID: "item-A", ProgressPercent: 0}, aggregate.CodeInvalidProgress},
		{"over one hundred", progressdomain.SubmitRequest{LineItemID: "item-A", ProgressPercent: 120}, aggregate.CodeInvalidProgress},
		{"unknown type", progressdomain.SubmitRequest{LineItemID: "item-A", Type: "DONE", ProgressPercent: 10}, aggregate.CodeInvalidType},
		{"too many photos", progressdomain.SubmitRequest{LineItemID: "item-A", ProgressPercent: 10, Photos: make([][]byte, 6)}, aggregate.CodeTooManyPhotos},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.req.WorkOrderNumber = "SPK-001"
			_, err := f.svc.Submit(f.ctx, tc.req)
			errs, ok := validation.As(err)
			require.True(t, ok, "expected validation error, got %v", err)
			assert.True(t, errs.Has(tc.code), errs.Error())
		})
	}
	assert.Equal(t, int64(0), f.countReports(t))

	_, err := f.svc.Submit(f.ctx, progressdomain.SubmitRequest{WorkOrderNumber: "SPK-404", LineItemID: "item-A", ProgressPercent: 10})
	assert.ErrorIs(t, err, workorderdomain.ErrNotFound)
}

func TestSubmitStoresResizedPhotos(t *testing.T) {
	f := setup(t)

	resp, err := f.svc.Submit(f.ctx, progressdomain.SubmitRequest{
		WorkOrderNumber: "SPK-001",
		LineItemID:      " item-A ",
		ProgressPercent: 25,
		Note:            "kabel sisi timur",
		Photos:          [][]byte{pngBytes(t, 256, 128), pngBytes(t, 32, 32)},
	})
	require.NoError(t, err)
	assert.Equal(t, "item-A", resp.LineItemID)
	assert.Equal(t, aggregate.ReportTypeProgress, resp.Type)
	assert.Equal(t, aggregate.ReportStatusPending, resp.Status)
	assert.Equal(t, "budi", resp.ReportedBy)
	assert.Equal(t, 2, resp.PhotoCount)

	var photos []progressdomain.ReportPhoto
	require.NoError(t, f.db.Order("position asc").Find(&photos).Error)
	require.Len(t, photos, 2)
	assert.Equal(t, photo.MimeJPEG, photos[0].MimeType)
	assert.Equal(t, 64, photos[0].Width)
	assert.Equal(t, 32, photos[0].Height)
	assert.Equal(t, 32, photos[1].Width)
}

func TestSubmitFinalForcesFullProgress(t *testing.T) {
	f := setup(t)

	resp := f.submit(t, "item-B", aggregate.ReportTypeFinal, 30)
	assert.Equal(t, 100, resp.ProgressPercent)
	assert.Equal(t, aggregate.ReportTypeFinal, resp.Type)
}

func TestSummaryUsesMaxProgressAndLatestReport(t *testing.T) {
	f := setup(t)
	f.submit(t, "item-A", aggregate.ReportTypeProgress, 40)
	latest := f.submit(t, "item-A", aggregate.ReportTypeProgress, 30)

	summary, err := f.svc.Summary(f.ctx, "SPK-001")
	require.NoError(t, err)
	assert.Equal(t, "Instalasi listrik gudang", summary.Title)
	assert.Equal(t, aggregate.WorkOrderStatusPending, summary.Status)
	assert.Equal(t, 0, summary.OverallProgress)
	require.Len(t, summary.Items, 2)

	a := summary.Items[0]
	assert.Equal(t, "item-A", a.LineItemID)
	assert.Equal(t, "Tarik kabel", a.Description)
	assert.Equal(t, 40, a.EffectiveProgress)
	require.NotNil(t, a.LatestReport)
	assert.Equal(t, latest.ID, a.LatestReport.ID)

	b := summary.Items[1]
	assert.Equal(t, 0, b.EffectiveProgress)
	assert.Nil(t, b.LatestReport)
}

func TestSummaryIsCachedUntilNextSubmit(t *testing.T) {
	f := setup(t)
	f.submit(t, "item-A", aggregate.ReportTypeProgress, 40)

	first, err := f.svc.Summary(f.ctx, "SPK-001")
	require.NoError(t, err)

	key := cache.ProgressSummaryKey(testOrgID, "SPK-001")
	_, ok, err := f.store.Get(f.ctx, key)
	require.NoError(t, err)
	require.True(t, ok)

	f.clock.Advance(time.Second)
	cached, err := f.svc.Summary(f.ctx, "SPK-001")
	require.NoError(t, err)
	assert.True(t, first.GeneratedAt.Equal(cached.GeneratedAt))

	f.submit(t, "item-A", aggregate.ReportTypeProgress, 60)
	_, ok, err = f.store.Get(f.ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	fresh, err := f.svc.Summary(f.ctx, "SPK-001")
	require.NoError(t, err)
	assert.Equal(t, 60, fresh.Items[0].EffectiveProgress)
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	args := m.Called(ctx, key)
	payload, _ := args.Get(0).([]byte)
	return payload, args.Bool(1), args.Error(2)
}

func (m *mockStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return m.Called(ctx, key, value, ttl).Error(0)
}

func (m *mockStore) Delete(ctx context.Context, keys ...string) error {
	return m.Called(ctx, keys).Error(0)
}

func TestSummaryIgnoresCacheFailures(t *testing.T) {
	store := &mockStore{}
	store.On("Delete", mock.Anything, mock.Anything).Return(errors.New("redis down"))
	store.On("Get", mock.Anything, mock.Anything).Return(nil, false, errors.New("redis down"))
	store.On("Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("redis down"))

	f := setupWithStore(t, store)
	f.submit(t, "item-A", aggregate.ReportTypeProgress, 25)

	summary, err := f.svc.Summary(f.ctx, "SPK-001")
	require.NoError(t, err)
	assert.Equal(t, 25, summary.Items[0].EffectiveProgress)

	store.AssertCalled(t, "Get", mock.Anything, cache.ProgressSummaryKey(testOrgID, "SPK-001"))
	store.AssertCalled(t, "Set", mock.Anything, cache.ProgressSummaryKey(testOrgID, "SPK-001"), mock.Anything, mock.Anything)
}

func TestApproveFinalMarksItemDone(t *testing.T) {
	f := setup(t)
	report := f.submit(t, "item-A", aggregate.ReportTypeFinal, 100)

	approved, err := f.svc.Approve(testutil.OrgContext(testOrgID, "pak-rt"), progressdomain.ReviewRequest{ReportID: report.ID, Note: "ok"})
	require.NoError(t, err)
	assert.Equal(t, aggregate.ReportStatusApproved, approved.Status)
	require.NotNil(t, approved.ReviewedBy)
	assert.Equal(t, "pak-rt", *approved.ReviewedBy)
	require.NotNil(t, approved.ReviewNote)
	assert.Equal(t, "ok", *approved.ReviewNote)

	wo, err := f.workOrder.GetByNumber(f.ctx, "SPK-001")
	require.NoError(t, err)
	assert.True(t, wo.Details[0].Done)
	assert.Equal(t, 50, wo.OverallProgress)
	assert.Equal(t, aggregate.WorkOrderStatusProgress, wo.Status)

	second := f.submit(t, "item-B", aggregate.ReportTypeFinal, 100)
	_, err = f.svc.Approve(f.ctx, progressdomain.ReviewRequest{ReportID: second.ID})
	require.NoError(t, err)

	summary, err := f.svc.Summary(f.ctx, "SPK-001")
	require.NoError(t, err)
	assert.Equal(t, 100, summary.OverallProgress)
	assert.Equal(t, aggregate.WorkOrderStatusCompleted, summary.Status)
}

func TestApproveProgressLeavesItemOpen(t *testing.T) {
	f := setup(t)
	report := f.submit(t, "item-A", aggregate.ReportTypeProgress, 80)

	_, err := f.svc.Approve(f.ctx, progressdomain.ReviewRequest{ReportID: report.ID})
	require.NoError(t, err)

	wo, err := f.workOrder.GetByNumber(f.ctx, "SPK-001")
	require.NoError(t, err)
	assert.False(t, wo.Details[0].Done)
	assert.Equal(t, aggregate.WorkOrderStatusPending, wo.Status)
}

func TestRejectAndReviewConflicts(t *testing.T) {
	f := setup(t)
	report := f.submit(t, "item-A", aggregate.ReportTypeFinal, 100)

	rejected, err := f.svc.Reject(f.ctx, progressdomain.ReviewRequest{ReportID: report.ID, Note: "foto buram"})
	require.NoError(t, err)
	assert.Equal(t, aggregate.ReportStatusRejected, rejected.Status)

	wo, err := f.workOrder.GetByNumber(f.ctx, "SPK-001")
	require.NoError(t, err)
	assert.False(t, wo.Details[0].Done)

	_, err = f.svc.Approve(f.ctx, progressdomain.ReviewRequest{ReportID: report.ID})
	assert.ErrorIs(t, err, progressdomain.ErrNotPending)

	_, err = f.svc.Approve(f.ctx, progressdomain.ReviewRequest{ReportID: "123456789"})
	assert.ErrorIs(t, err, progressdomain.ErrNotFound)

	_, err = f.svc.Reject(f.ctx, progressdomain.ReviewRequest{ReportID: "abc"})
	assert.ErrorIs(t, err, progressdomain.ErrInvalidID)

	other := testutil.OrgContext(testOrgID+1, "budi")
	_, err = f.svc.Reject(other, progressdomain.ReviewRequest{ReportID: report.ID})
	assert.ErrorIs(t, err, progressdomain.ErrNotFound)
}

func TestReviewIsAudited(t *testing.T) {
	f := setup(t)
	report := f.submit(t, "item-A", aggregate.ReportTypeProgress, 10)
	_, err := f.svc.Reject(f.ctx, progressdomain.ReviewRequest{ReportID: report.ID})
	require.NoError(t, err)

	var actions []string
	require.NoError(t, f.db.Table("audit_logs").Where("target_id = ?", report.ID).Order("created_at asc, id asc").Pluck("action", &actions).Error)
	assert.Equal(t, []string{"progress_report.submitted", "progress_report.rejected"}, actions)
}

func TestListPaginatesNewestFirst(t *testing.T) {
	f := setup(t)
	first := f.submit(t, "item-A", aggregate.ReportTypeProgress, 10)
	second := f.submit(t, "item-A", aggregate.ReportTypeProgress, 20)
	third := f.submit(t, "item-B", aggregate.ReportTypeProgress, 50)

	page, err := f.svc.List(f.ctx, progressdomain.ListRequest{
		Pagination:      pagination.Pagination{PageSize: 2},
		WorkOrderNumber: "SPK-001",
	})
	require.NoError(t, err)
	require.Len(t, page.Reports, 2)
	assert.Equal(t, third.ID, page.Reports[0].ID)
	assert.Equal(t, second.ID, page.Reports[1].ID)
	assert.True(t, page.HasMore)
	require.NotEmpty(t, page.NextPageToken)

	next, err := f.svc.List(f.ctx, progressdomain.ListRequest{
		Pagination:      pagination.Pagination{PageSize: 2, PageToken: page.NextPageToken},
		WorkOrderNumber: "SPK-001",
	})
	require.NoError(t, err)
	require.Len(t, next.Reports, 1)
	assert.Equal(t, first.ID, next.Reports[0].ID)
	assert.False(t, next.HasMore)

	filtered, err := f.svc.List(f.ctx, progressdomain.ListRequest{WorkOrderNumber: "SPK-001", LineItemID: "item-B", Status: "pending"})
	require.NoError(t, err)
	require.Len(t, filtered.Reports, 1)
	assert.Equal(t, third.ID, filtered.Reports[0].ID)

	_, err = f.svc.List(f.ctx, progressdomain.ListRequest{WorkOrderNumber: "SPK-001", Status: "LOST"})
	_, ok := validation.As(err)
	assert.True(t, ok)

	_, err = f.svc.List(f.ctx, progressdomain.ListRequest{
		Pagination:      pagination.Pagination{PageToken: "%%%"},
		WorkOrderNumber: "SPK-001",
	})
	assert.ErrorIs(t, err, pagination.ErrInvalidPageToken)
}

func TestRenderPDF(t *testing.T) {
	f := setup(t)
	_, err := f.svc.Submit(f.ctx, progressdomain.SubmitRequest{
		WorkOrderNumber: "SPK-001",
		LineItemID:      "item-A",
		ProgressPercent: 50,
		Photos:          [][]byte{pngBytes(t, 120, 80)},
	})
	require.NoError(t, err)

	doc, err := f.svc.RenderPDF(f.ctx, "SPK-001")
	require.NoError(t, err)
	assert.Equal(t, "spk-spk-001.pdf", doc.Filename)
	assert.Equal(t, pdf.ContentType, doc.ContentType)
	assert.True(t, bytes.HasPrefix(doc.Content, []byte("%PDF")))
}

func TestSubmitConcurrentDuplicatesStoreOnce(t *testing.T) {
	f := setup(t)

	const workers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		codes    []string
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Submit(f.ctx, progressdomain.SubmitRequest{
				WorkOrderNumber: "SPK-001",
				LineItemID:      "item-A",
				Type:            aggregate.ReportTypeProgress,
				ProgressPercent: 40,
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				accepted++
				return
			}
			if errs, ok := validation.As(err); ok {
				for _, fe := range errs {
					codes = append(codes, fe.Code)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, accepted)
	assert.Len(t, codes, workers-1)
	for _, code := range codes {
		assert.Equal(t, aggregate.CodeProgressUnchanged, code)
	}
	assert.Equal(t, int64(1), f.countReports(t))
}

func TestSubmitRejectsOversizedPhoto(t *testing.T) {
	f := setupWith(t, cache.NewMemoryStore(), func(cfg *config.PolicyConfig) {
		cfg.PhotoMaxPixels = 32 * 32
	})

	_, err := f.svc.Submit(f.ctx, progressdomain.SubmitRequest{
		WorkOrderNumber: "SPK-001",
		LineItemID:      "item-A",
		Type:            aggregate.ReportTypeProgress,
		ProgressPercent: 30,
		Photos:          [][]byte{pngBytes(t, 16, 16), pngBytes(t, 200, 200)},
	})
	require.Error(t, err)
	errs, ok := validation.As(err)
	require.True(t, ok)
	require.Len(t, errs, 1)
	assert.Equal(t, "photos[1]", errs[0].Field)
	assert.Equal(t, photo.ErrTooLarge.Error(), errs[0].Code)
	assert.Equal(t, int64(0), f.countReports(t))

	resp, err := f.svc.Submit(f.ctx, progressdomain.SubmitRequest{
		WorkOrderNumber: "SPK-001",
		LineItemID:      "item-A",
		Type:            aggregate.ReportTypeProgress,
		ProgressPercent: 30,
		Photos:          [][]byte{pngBytes(t, 16, 16)},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.PhotoCount)
}
