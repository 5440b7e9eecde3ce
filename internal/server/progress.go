package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	progressdomain "github.com/smallbiznis/fieldops/internal/progress/domain"
)

func (s *Server) SubmitProgressReport(c *gin.Context) {
	var req progressdomain.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if isMaxBytesError(err) {
			AbortWithError(c, ErrBodyTooLarge)
			return
		}
		AbortWithError(c, invalidRequestError())
		return
	}
	req.WorkOrderNumber = strings.TrimSpace(c.Param("number"))

	resp, err := s.progressSvc.Submit(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListProgressReports(c *gin.Context) {
	var req progressdomain.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.WorkOrderNumber = strings.TrimSpace(c.Param("number"))

	resp, err := s.progressSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Reports, "page_info": resp.PageInfo})
}

func (s *Server) GetProgressSummary(c *gin.Context) {
	resp, err := s.progressSvc.Summary(c.Request.Context(), strings.TrimSpace(c.Param("number")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ApproveProgressReport(c *gin.Context) {
	s.reviewProgressReport(c, s.progressSvc.Approve)
}

func (s *Server) RejectProgressReport(c *gin.Context) {
	s.reviewProgressReport(c, s.progressSvc.Reject)
}

// An empty body reviews without a note.
func (s *Server) reviewProgressReport(
	c *gin.Context,
	review func(context.Context, progressdomain.ReviewRequest) (*progressdomain.ReportResponse, error),
) {
	var req progressdomain.ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.ReportID = strings.TrimSpace(c.Param("id"))

	resp, err := review(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RenderProgressPDF(c *gin.Context) {
	doc, err := s.progressSvc.RenderPDF(c.Request.Context(), strings.TrimSpace(c.Param("number")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	sendDocument(c, doc.Filename, doc.ContentType, doc.Content)
}
