package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	tierdomain "github.com/briefworks/briefworks/internal/rewardtier/domain"
)

type fundBriefRequest struct {
	AmountCents int64 `json:"amount_cents"`
}

func (s *Server) FundBrief(c *gin.Context) {
	briefID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req fundBriefRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("amount_cents", "invalid_body", "request body is not valid"))
		return
	}

	session, err := s.fundingSvc.StartFunding(c.Request.Context(), briefID, req.AmountCents)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id":   session.ID.String(),
		"checkout_url": session.CheckoutURL,
	})
}

func (s *Server) EstimateFee(c *gin.Context) {
	if _, ok := parseID(c, "id"); !ok {
		return
	}
	var req fundBriefRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("amount_cents", "invalid_body", "request body is not valid"))
		return
	}

	estimate, err := s.fundingSvc.Estimate(c.Request.Context(), req.AmountCents)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, estimate)
}

func (s *Server) GetFunding(c *gin.Context) {
	briefID, ok := parseID(c, "id")
	if !ok {
		return
	}
	view, err := s.fundingSvc.GetFunding(c.Request.Context(), briefID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) CloseBrief(c *gin.Context) {
	briefID, ok := parseID(c, "id")
	if !ok {
		return
	}
	refunded, err := s.fundingSvc.CloseAndRefund(c.Request.Context(), briefID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"refunded_cents": refunded})
}

type tierInput struct {
	Position    int    `json:"position"`
	AmountCents int64  `json:"amount_cents"`
	Description string `json:"description"`
}

type setTiersRequest struct {
	Tiers []tierInput `json:"tiers"`
}

func (s *Server) SetRewardTiers(c *gin.Context) {
	briefID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req setTiersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("tiers", "invalid_body", "request body is not valid"))
		return
	}

	inputs := make([]tierdomain.TierInput, 0, len(req.Tiers))
	for _, tier := range req.Tiers {
		inputs = append(inputs, tierdomain.TierInput{
			Position:    tier.Position,
			AmountCents: tier.AmountCents,
			Description: tier.Description,
		})
	}

	tiers, err := s.tierSvc.SetTiers(c.Request.Context(), briefID, inputs)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tiers": tiers})
}

func (s *Server) ListRewardTiers(c *gin.Context) {
	briefID, ok := parseID(c, "id")
	if !ok {
		return
	}
	tiers, err := s.tierSvc.List(c.Request.Context(), briefID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tiers": tiers})
}

type equalSplitRequest struct {
	WinnerCount int `json:"winner_count"`
}

func (s *Server) EqualSplitTiers(c *gin.Context) {
	briefID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req equalSplitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("winner_count", "invalid_body", "request body is not valid"))
		return
	}

	tiers, err := s.tierSvc.EqualSplit(c.Request.Context(), briefID, req.WinnerCount)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tiers": tiers})
}

type assignRewardRequest struct {
	TierID       string `json:"tier_id"`
	SubmissionID string `json:"submission_id"`
	CreatorID    string `json:"creator_id"`
}

func (s *Server) AssignReward(c *gin.Context) {
	briefID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req assignRewardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("body", "invalid_body", "request body is not valid"))
		return
	}
	tierID, err := snowflake.ParseString(req.TierID)
	if err != nil || tierID == 0 {
		AbortWithError(c, newValidationError("tier_id", "invalid_id", "identifier is not valid"))
		return
	}
	submissionID, err := snowflake.ParseString(req.SubmissionID)
	if err != nil || submissionID == 0 {
		AbortWithError(c, newValidationError("submission_id", "invalid_id", "identifier is not valid"))
		return
	}
	creatorID, err := snowflake.ParseString(req.CreatorID)
	if err != nil || creatorID == 0 {
		AbortWithError(c, newValidationError("creator_id", "invalid_id", "identifier is not valid"))
		return
	}

	assignment, err := s.winnerSvc.Assign(c.Request.Context(), briefID, tierID, submissionID, creatorID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, assignment)
}

func (s *Server) ListAssignments(c *gin.Context) {
	briefID, ok := parseID(c, "id")
	if !ok {
		return
	}
	assignments, err := s.winnerSvc.ListByBrief(c.Request.Context(), briefID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assignments": assignments})
}

func (s *Server) UnassignReward(c *gin.Context) {
	if _, ok := parseID(c, "id"); !ok {
		return
	}
	assignmentID, ok := parseID(c, "assignmentId")
	if !ok {
		return
	}
	if err := s.winnerSvc.Unassign(c.Request.Context(), assignmentID); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}

func (s *Server) ProcessBriefPayouts(c *gin.Context) {
	briefID, ok := parseID(c, "id")
	if !ok {
		return
	}
	result, err := s.payoutSvc.ProcessBrief(c.Request.Context(), briefID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
