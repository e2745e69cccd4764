package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	auditdomain "github.com/briefworks/briefworks/internal/audit/domain"
)

func (s *Server) ListAuditLogs(c *gin.Context) {
	filter := auditdomain.ListFilter{
		Action:     c.Query("action"),
		TargetType: c.Query("target_type"),
		TargetID:   c.Query("target_id"),
	}

	if raw := c.Query("start_at"); raw != "" {
		at, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			AbortWithError(c, newValidationError("start_at", "invalid_time", "timestamp must be RFC 3339"))
			return
		}
		filter.StartAt = &at
	}
	if raw := c.Query("end_at"); raw != "" {
		at, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			AbortWithError(c, newValidationError("end_at", "invalid_time", "timestamp must be RFC 3339"))
			return
		}
		filter.EndAt = &at
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			AbortWithError(c, newValidationError("limit", "invalid_limit", "limit must be a positive integer"))
			return
		}
		filter.Limit = limit
	}

	logs, err := s.auditSvc.List(c.Request.Context(), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"audit_logs": logs})
}
