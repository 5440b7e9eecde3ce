package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/fieldops/internal/audit"
	auditdomain "github.com/smallbiznis/fieldops/internal/audit/domain"
	"github.com/smallbiznis/fieldops/internal/config"
	"github.com/smallbiznis/fieldops/internal/invoice"
	invoicedomain "github.com/smallbiznis/fieldops/internal/invoice/domain"
	"github.com/smallbiznis/fieldops/internal/observability"
	obslogger "github.com/smallbiznis/fieldops/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/fieldops/internal/observability/metrics"
	obstracing "github.com/smallbiznis/fieldops/internal/observability/tracing"
	"github.com/smallbiznis/fieldops/internal/progress"
	progressdomain "github.com/smallbiznis/fieldops/internal/progress/domain"
	"github.com/smallbiznis/fieldops/internal/providers"
	"github.com/smallbiznis/fieldops/internal/ratelimit"
	"github.com/smallbiznis/fieldops/internal/salesorder"
	salesorderdomain "github.com/smallbiznis/fieldops/internal/salesorder/domain"
	"github.com/smallbiznis/fieldops/internal/workorder"
	workorderdomain "github.com/smallbiznis/fieldops/internal/workorder/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	audit.Module,
	providers.Module,
	invoice.Module,
	salesorder.Module,
	workorder.Module,
	progress.Module,
	ratelimit.Module,
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server) { s.RegisterRoutes() }),
	fx.Invoke(RunHTTP),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

func RunHTTP(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine *gin.Engine
	cfg    config.Config

	auditSvc      auditdomain.Service
	invoiceSvc    invoicedomain.Service
	salesOrderSvc salesorderdomain.Service
	workOrderSvc  workorderdomain.Service
	progressSvc   progressdomain.Service

	reportLimiter *ratelimit.ReportLimiter
	obsMetrics    *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	AuditSvc      auditdomain.Service
	InvoiceSvc    invoicedomain.Service
	SalesOrderSvc salesorderdomain.Service
	WorkOrderSvc  workorderdomain.Service
	ProgressSvc   progressdomain.Service
	ReportLimiter *ratelimit.ReportLimiter `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics      `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		auditSvc:      p.AuditSvc,
		invoiceSvc:    p.InvoiceSvc,
		salesOrderSvc: p.SalesOrderSvc,
		workOrderSvc:  p.WorkOrderSvc,
		progressSvc:   p.ProgressSvc,
		reportLimiter: p.ReportLimiter,
		obsMetrics:    p.ObsMetrics,
	}
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) RegisterRoutes() {
	api := s.engine.Group("/api")
	api.Use(s.OrgContext())

	// -------- Invoices --------
	api.POST("/invoices/preview", s.PreviewInvoiceTotals)
	api.GET("/invoices/:id", s.GetInvoiceByID)
	api.PUT("/invoices/:id", s.UpdateInvoice)
	api.POST("/invoices/:id/installments", s.AddInstallment)
	api.DELETE("/invoices/:id/installments/:key", s.RemoveInstallment)
	api.GET("/invoices/:id/pdf", s.RenderInvoicePDF)

	// -------- Sales Orders --------
	api.POST("/sales_orders", s.CreateSalesOrder)
	api.GET("/sales_orders/:id", s.GetSalesOrderByID)
	api.POST("/sales_orders/:id/convert", s.ConvertSalesOrder)

	// -------- Work Orders --------
	api.POST("/work_orders", s.CreateWorkOrder)
	api.GET("/work_orders/:number", s.GetWorkOrder)
	api.PUT("/work_orders/:number/items/:lineItemId/done", s.SetWorkOrderItemDone)
	api.GET("/work_orders/:number/progress", s.GetProgressSummary)
	api.GET("/work_orders/:number/pdf", s.RenderProgressPDF)

	// -------- Progress Reports --------
	api.GET("/work_orders/:number/reports", s.ListProgressReports)
	api.POST("/work_orders/:number/reports", s.LimitReportBody(), s.ReportSubmitRateLimit(), s.SubmitProgressReport)
	api.POST("/reports/:id/approve", s.ApproveProgressReport)
	api.POST("/reports/:id/reject", s.RejectProgressReport)

	api.GET("/audit_logs", s.ListAuditLogs)
}

func sendDocument(c *gin.Context, filename, contentType string, content []byte) {
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, contentType, content)
}
