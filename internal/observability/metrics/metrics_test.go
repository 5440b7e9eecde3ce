package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("org_id", "123"),
		attribute.String("work_order_number", "SPK-001"),
		attribute.String("reason", "progress_unchanged"),
	)
	require.Len(t, attrs, 2)
	assert.Equal(t, attribute.Key("org_id"), attrs[0].Key)
	assert.Equal(t, attribute.Key("reason"), attrs[1].Key)
}

func TestSizeBucket(t *testing.T) {
	assert.Equal(t, "empty", sizeBucket(0))
	assert.Equal(t, "small", sizeBucket(3))
	assert.Equal(t, "medium", sizeBucket(11))
	assert.Equal(t, "large", sizeBucket(51))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordTotalsPreview(context.Background(), 2)
		m.RecordReportRejected(context.Background(), "invalid_item")
	})
}

func TestHTTPMetricsMiddlewarePassesThrough(t *testing.T) {
	gin.SetMode(gin.TestMode)
	provider := noop.NewMeterProvider()
	m, err := New(Config{}, provider)
	require.NoError(t, err)
	m.RecordReportSubmitted(context.Background(), "PROGRESS")

	httpMetrics, err := NewHTTPMetrics(Config{}, provider)
	require.NoError(t, err)

	router := gin.New()
	router.Use(httpMetrics.GinMiddleware())
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
