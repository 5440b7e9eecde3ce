package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes domain instruments.
type Metrics struct {
	totalsPreviews   metric.Int64Counter
	reportsSubmitted metric.Int64Counter
	reportsRejected  metric.Int64Counter
	reportReviews    metric.Int64Counter
	invoicesUpdated  metric.Int64Counter
	rateLimited      metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(15*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "fieldops"
	}
	meter := provider.Meter(name)

	totalsPreviews, err := meter.Int64Counter("fieldops_totals_previews_total")
	if err != nil {
		return nil, err
	}
	reportsSubmitted, err := meter.Int64Counter("fieldops_progress_reports_submitted_total")
	if err != nil {
		return nil, err
	}
	reportsRejected, err := meter.Int64Counter("fieldops_progress_reports_rejected_total")
	if err != nil {
		return nil, err
	}
	reportReviews, err := meter.Int64Counter("fieldops_progress_report_reviews_total")
	if err != nil {
		return nil, err
	}
	invoicesUpdated, err := meter.Int64Counter("fieldops_invoices_updated_total")
	if err != nil {
		return nil, err
	}
	rateLimited, err := meter.Int64Counter("fieldops_rate_limited_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		totalsPreviews:   totalsPreviews,
		reportsSubmitted: reportsSubmitted,
		reportsRejected:  reportsRejected,
		reportReviews:    reportReviews,
		invoicesUpdated:  invoicesUpdated,
		rateLimited:      rateLimited,
	}, nil
}

// RecordTotalsPreview counts a totals preview by number of lines bucket.
func (m *Metrics) RecordTotalsPreview(ctx context.Context, lineCount int) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("size", sizeBucket(lineCount)))
	m.totalsPreviews.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordReportSubmitted counts an accepted progress report.
func (m *Metrics) RecordReportSubmitted(ctx context.Context, reportType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("report_type", strings.TrimSpace(reportType)))
	m.reportsSubmitted.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordReportRejected counts a submission refused by validation.
func (m *Metrics) RecordReportRejected(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("reason", strings.TrimSpace(reason)))
	m.reportsRejected.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordReportReview counts a supervisor decision.
func (m *Metrics) RecordReportReview(ctx context.Context, decision string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("decision", strings.TrimSpace(decision)))
	m.reportReviews.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordInvoiceUpdated counts persisted invoice recomputations.
func (m *Metrics) RecordInvoiceUpdated(ctx context.Context, paymentType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("payment_type", strings.TrimSpace(paymentType)))
	m.invoicesUpdated.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimitDenied counts a request refused by a limiter.
func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("endpoint", strings.TrimSpace(endpoint)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.rateLimited.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func sizeBucket(n int) string {
	switch {
	case n == 0:
		return "empty"
	case n <= 10:
		return "small"
	case n <= 50:
		return "medium"
	default:
		return "large"
	}
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"org_id":       {},
	"endpoint":     {},
	"method":       {},
	"status_code":  {},
	"size":         {},
	"report_type":  {},
	"reason":       {},
	"decision":     {},
	"payment_type": {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
