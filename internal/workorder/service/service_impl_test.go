package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditrepo "github.com/smallbiznis/fieldops/internal/audit/repository"
	auditservice "github.com/smallbiznis/fieldops/internal/audit/service"
	"github.com/smallbiznis/fieldops/internal/cache"
	"github.com/smallbiznis/fieldops/internal/clock"
	"github.com/smallbiznis/fieldops/internal/progress/aggregate"
	"github.com/smallbiznis/fieldops/internal/testutil"
	"github.com/smallbiznis/fieldops/internal/validation"
	workorderdomain "github.com/smallbiznis/fieldops/internal/workorder/domain"
	"github.com/smallbiznis/fieldops/internal/workorder/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testOrgID = snowflake.ID(3003)

func setupWorkOrderService(t *testing.T) (workorderdomain.Service, cache.Store, context.Context) {
	t.Helper()

	db := testutil.OpenDB(t)
	node := testutil.Node(t)
	clk := clock.NewFakeClock(time.Date(2025, 5, 2, 7, 30, 0, 0, time.UTC))
	store := cache.NewMemoryStore()

	svc := NewService(ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  repository.Provide(),
		AuditSvc: auditservice.NewService(auditservice.Params{
			DB:    db,
			Log:   zap.NewNop(),
			GenID: node,
			Clock: clk,
			Repo:  auditrepo.Provide(),
		}),
		Cache: store,
	})
	return svc, store, testutil.OrgContext(testOrgID, "mandor")
}

func spk001() workorderdomain.CreateRequest {
	return workorderdomain.CreateRequest{
		WorkOrderNumber: "SPK-001",
		Title:           "Instalasi listrik gudang",
		CustomerName:    "CV Sinar",
		Details: []workorderdomain.DetailRequest{
			{LineItemID: "A", Description: "Tarik kabel", Quantity: 120, UOM: "m"},
			{LineItemID: "B", Description: "Pasang panel", Quantity: 1},
		},
	}
}

func TestCreateWorkOrder(t *testing.T) {
	svc, _, ctx := setupWorkOrderService(t)

	resp, err := svc.Create(ctx, spk001())
	require.NoError(t, err)
	assert.Equal(t, "SPK-001", resp.WorkOrderNumber)
	assert.Equal(t, aggregate.WorkOrderStatusPending, resp.Status)
	assert.Equal(t, 0, resp.OverallProgress)
	require.Len(t, resp.Details, 2)
	assert.Equal(t, "m", resp.Details[0].UOM)
	assert.Equal(t, "pcs", resp.Details[1].UOM)

	got, err := svc.GetByNumber(ctx, "SPK-001")
	require.NoError(t, err)
	assert.Equal(t, resp.ID, got.ID)
	assert.Equal(t, "A", got.Details[0].LineItemID)

	_, err = svc.Create(ctx, spk001())
	assert.ErrorIs(t, err, workorderdomain.ErrAlreadyExists)
}

func TestCreateWorkOrderValidation(t *testing.T) {
	svc, _, ctx := setupWorkOrderService(t)

	_, err := svc.Create(ctx, workorderdomain.CreateRequest{Title: "x"})
	assert.ErrorIs(t, err, workorderdomain.ErrInvalidNumber)

	_, err = svc.Create(ctx, workorderdomain.CreateRequest{WorkOrderNumber: "SPK-9"})
	assert.ErrorIs(t, err, workorderdomain.ErrInvalidTitle)

	_, err = svc.Create(ctx, workorderdomain.CreateRequest{
		WorkOrderNumber: "SPK-9",
		Title:           "x",
		Details: []workorderdomain.DetailRequest{
			{LineItemID: "A", Quantity: 1},
			{LineItemID: "A", Quantity: -2},
			{LineItemID: " "},
		},
	})
	errs, ok := validation.As(err)
	require.True(t, ok)
	assert.True(t, errs.Has("duplicate_line_item"))
	assert.True(t, errs.Has("negative_value"))
	assert.True(t, errs.Has("required"))
}

func TestSetItemDoneDerivesStatus(t *testing.T) {
	svc, _, ctx := setupWorkOrderService(t)
	_, err := svc.Create(ctx, spk001())
	require.NoError(t, err)

	resp, err := svc.SetItemDone(ctx, workorderdomain.SetItemDoneRequest{WorkOrderNumber: "SPK-001", LineItemID: "A", Done: true})
	require.NoError(t, err)
	assert.Equal(t, 50, resp.OverallProgress)
	assert.Equal(t, aggregate.WorkOrderStatusProgress, resp.Status)
	require.NotNil(t, resp.Details[0].DoneAt)

	resp, err = svc.SetItemDone(ctx, workorderdomain.SetItemDoneRequest{WorkOrderNumber: "SPK-001", LineItemID: "B", Done: true})
	require.NoError(t, err)
	assert.Equal(t, 100, resp.OverallProgress)
	assert.Equal(t, aggregate.WorkOrderStatusCompleted, resp.Status)

	resp, err = svc.SetItemDone(ctx, workorderdomain.SetItemDoneRequest{WorkOrderNumber: "SPK-001", LineItemID: "A", Done: false})
	require.NoError(t, err)
	assert.Equal(t, aggregate.WorkOrderStatusProgress, resp.Status)
	assert.Nil(t, resp.Details[0].DoneAt)

	stored, err := svc.GetByNumber(ctx, "SPK-001")
	require.NoError(t, err)
	assert.Equal(t, aggregate.WorkOrderStatusProgress, stored.Status)
	assert.False(t, stored.Details[0].Done)
	assert.True(t, stored.Details[1].Done)
}

func TestSetItemDoneInvalidatesSummaryCache(t *testing.T) {
	svc, store, ctx := setupWorkOrderService(t)
	_, err := svc.Create(ctx, spk001())
	require.NoError(t, err)

	key := cache.ProgressSummaryKey(testOrgID, "SPK-001")
	require.NoError(t, store.Set(ctx, key, []byte(`{}`), time.Minute))

	_, err = svc.SetItemDone(ctx, workorderdomain.SetItemDoneRequest{WorkOrderNumber: "SPK-001", LineItemID: "A", Done: true})
	require.NoError(t, err)

	_, ok, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetItemDoneErrors(t *testing.T) {
	svc, _, ctx := setupWorkOrderService(t)
	_, err := svc.Create(ctx, spk001())
	require.NoError(t, err)

	_, err = svc.SetItemDone(ctx, workorderdomain.SetItemDoneRequest{WorkOrderNumber: "SPK-404", LineItemID: "A", Done: true})
	assert.ErrorIs(t, err, workorderdomain.ErrNotFound)

	_, err = svc.SetItemDone(ctx, workorderdomain.SetItemDoneRequest{WorkOrderNumber: "SPK-001", LineItemID: "Z", Done: true})
	assert.ErrorIs(t, err, workorderdomain.ErrItemNotFound)
}

func TestWorkOrdersAreScopedToOrg(t *testing.T) {
	svc, _, ctx := setupWorkOrderService(t)
	_, err := svc.Create(ctx, spk001())
	require.NoError(t, err)

	other := testutil.OrgContext(testOrgID+1, "mandor")
	_, err = svc.GetByNumber(other, "SPK-001")
	assert.ErrorIs(t, err, workorderdomain.ErrNotFound)

	_, err = svc.Create(other, spk001())
	assert.NoError(t, err)

	_, err = svc.GetByNumber(context.Background(), "SPK-001")
	assert.ErrorIs(t, err, workorderdomain.ErrInvalidOrganization)
}
