package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	workorderdomain "github.com/smallbiznis/fieldops/internal/workorder/domain"
)

func (s *Server) CreateWorkOrder(c *gin.Context) {
	var req workorderdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.workOrderSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) GetWorkOrder(c *gin.Context) {
	resp, err := s.workOrderSvc.GetByNumber(c.Request.Context(), strings.TrimSpace(c.Param("number")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) SetWorkOrderItemDone(c *gin.Context) {
	var req workorderdomain.SetItemDoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.WorkOrderNumber = strings.TrimSpace(c.Param("number"))
	req.LineItemID = strings.TrimSpace(c.Param("lineItemId"))

	resp, err := s.workOrderSvc.SetItemDone(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
