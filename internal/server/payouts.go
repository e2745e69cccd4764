package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

type bulkPaymentRequest struct {
	AssignmentIDs []string `json:"assignment_ids"`
}

func (s *Server) BulkPayment(c *gin.Context) {
	var req bulkPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("assignment_ids", "invalid_body", "request body is not valid"))
		return
	}

	ids := make([]snowflake.ID, 0, len(req.AssignmentIDs))
	for _, raw := range req.AssignmentIDs {
		id, err := snowflake.ParseString(raw)
		if err != nil || id == 0 {
			AbortWithError(c, newValidationError("assignment_ids", "invalid_id", "identifier is not valid"))
			return
		}
		ids = append(ids, id)
	}

	result, err := s.payoutSvc.ProcessBulk(c.Request.Context(), ids)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) RetryPayout(c *gin.Context) {
	assignmentID, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := s.payoutSvc.Retry(c.Request.Context(), assignmentID); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "pending"})
}

func (s *Server) RefreshPayout(c *gin.Context) {
	assignmentID, ok := parseID(c, "id")
	if !ok {
		return
	}
	assignment, err := s.payoutSvc.Refresh(c.Request.Context(), assignmentID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, assignment)
}
