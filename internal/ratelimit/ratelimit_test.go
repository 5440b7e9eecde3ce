package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/fieldops/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDisabledLimiterAllowsEverything(t *testing.T) {
	limiter, err := NewReportLimiter(Params{Config: config.Config{}, Log: zap.NewNop()})
	require.NoError(t, err)
	assert.Nil(t, limiter)
	assert.False(t, limiter.Enabled())

	ctx := context.Background()
	res, err := limiter.AllowOrg(ctx, "1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	token, ok, err := limiter.LockItem(ctx, "1", "SPK-001", "A")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, limiter.ReleaseItem(ctx, "1", "SPK-001", "A", token))
}

func TestEnabledLimiterNeedsRedis(t *testing.T) {
	cfg := config.Config{RateLimit: config.RateLimitConfig{Enabled: true, ReportSubmitRate: 1, ReportSubmitBurst: 1, ReportLockTTLSeconds: 5}}
	_, err := NewReportLimiter(Params{Config: cfg, Log: zap.NewNop()})
	assert.Error(t, err)

	cfg.RedisAddr = "localhost:6379"
	cfg.RateLimit.ReportSubmitBurst = 0
	_, err = NewReportLimiter(Params{Config: cfg, Log: zap.NewNop()})
	assert.Error(t, err)
}

func TestItemLockKey(t *testing.T) {
	assert.Equal(t, "fieldops:lock:report_submit:7:SPK-001:A", itemLockKey(" 7", "SPK-001 ", "A"))
}

func TestItemLockWithoutRedis(t *testing.T) {
	var lock *itemLock
	_, ok, err := lock.claim(context.Background(), "7", "SPK-001", "A")
	assert.ErrorIs(t, err, errItemLockUnavailable)
	assert.False(t, ok)
	assert.NoError(t, lock.release(context.Background(), "7", "SPK-001", "A", "token"))
	assert.Nil(t, newItemLock(nil, time.Second))
}

func TestRetryAfter(t *testing.T) {
	assert.Equal(t, 500*time.Millisecond, retryAfter(0, 2))
	assert.Equal(t, time.Duration(0), retryAfter(1.5, 2))
}

func TestBucketTTL(t *testing.T) {
	assert.Equal(t, 10*time.Second, bucketTTL(2, 10))
	assert.Equal(t, 2*time.Second, bucketTTL(100, 1))
}

func TestScriptValueParsing(t *testing.T) {
	assert.Equal(t, int64(1), toInt(int64(1)))
	assert.Equal(t, int64(0), toInt(nil))
	assert.InDelta(t, 2.5, toFloat("2.5"), 0.0001)
	assert.InDelta(t, 3.0, toFloat(int64(3)), 0.0001)
}
