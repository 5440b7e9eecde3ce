package server

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/fieldops/internal/config"
	"github.com/smallbiznis/fieldops/internal/observability/logger"
	"github.com/smallbiznis/fieldops/internal/orgcontext"
	"go.uber.org/zap"
)

const (
	rateLimitReasonOrgRate      = "org-rate"
	rateLimitReasonItemInFlight = "item-in-flight"
)

type reportSubmitRateLimitKey struct {
	LineItemID string `json:"line_item_id"`
}

// LimitReportBody caps the submission body before anything reads it.
func (s *Server) LimitReportBody() gin.HandlerFunc {
	limit := s.cfg.ReportBodyMaxBytes
	if limit <= 0 {
		limit = config.DefaultReportBodyMaxBytes
	}
	return func(c *gin.Context) {
		if c.Request.ContentLength > limit {
			AbortWithError(c, ErrBodyTooLarge)
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}

// ReportSubmitRateLimit throttles report submission per organization and
// allows one in-flight submission per work order line item.
func (s *Server) ReportSubmitRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.reportLimiter.Enabled() {
			c.Next()
			return
		}

		orgID, ok := orgcontext.OrgIDFromContext(c.Request.Context())
		if !ok || orgID == 0 {
			AbortWithError(c, ErrOrgRequired)
			return
		}

		endpoint := normalizeRateLimitEndpoint(c)
		ctx := c.Request.Context()

		result, err := s.reportLimiter.AllowOrg(ctx, orgID.String())
		if err != nil {
			logger.FromContext(ctx).Warn("report submit rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		if !result.Allowed {
			s.denyReportSubmit(c, endpoint, rateLimitReasonOrgRate, result.RetryAfter)
			return
		}

		lineItemID, err := readReportSubmitKey(c)
		if isMaxBytesError(err) {
			AbortWithError(c, ErrBodyTooLarge)
			return
		}
		if err != nil {
			logger.FromContext(ctx).Warn("report submit rate limit read body failed", zap.Error(err))
			AbortWithError(c, invalidRequestError())
			return
		}
		if lineItemID == "" {
			// Let the handler reject the body.
			c.Next()
			return
		}

		number := strings.TrimSpace(c.Param("number"))
		token, locked, err := s.reportLimiter.LockItem(ctx, orgID.String(), number, lineItemID)
		if err != nil {
			logger.FromContext(ctx).Warn("report submit item lock failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !locked {
			s.denyReportSubmit(c, endpoint, rateLimitReasonItemInFlight, time.Second)
			return
		}
		defer func() {
			if err := s.reportLimiter.ReleaseItem(ctx, orgID.String(), number, lineItemID, token); err != nil {
				logger.FromContext(ctx).Warn("report submit item unlock failed", zap.Error(err))
			}
		}()

		c.Next()
	}
}

func (s *Server) denyReportSubmit(c *gin.Context, endpoint, reason string, retryAfter time.Duration) {
	ctx := c.Request.Context()
	logger.FromContext(ctx).Warn("report submit rate limit exceeded",
		zap.String("reason", reason),
		zap.String("endpoint", endpoint),
	)
	s.obsMetrics.RecordRateLimitDenied(ctx, endpoint, reason)

	seconds := int(math.Ceil(retryAfter.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	c.Header("Retry-After", strconv.Itoa(seconds))
	c.Header("X-Rate-Limited-Reason", reason)
	AbortWithError(c, ErrRateLimited)
}

func readReportSubmitKey(c *gin.Context) (string, error) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return "", err
	}
	c.Request.Body = io.NopCloser(bytes.NewBuffer(body))
	if len(body) == 0 {
		return "", nil
	}

	var payload reportSubmitRateLimitKey
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", nil
	}
	return strings.TrimSpace(payload.LineItemID), nil
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	if c == nil {
		return "unknown"
	}
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
