package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) WalletStatement(c *gin.Context) {
	creatorID, ok := parseID(c, "creatorId")
	if !ok {
		return
	}
	statement, err := s.walletSvc.Statement(c.Request.Context(), creatorID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, statement)
}

type creditWalletRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Description string `json:"description"`
}

func (s *Server) CreditWallet(c *gin.Context) {
	creatorID, ok := parseID(c, "creatorId")
	if !ok {
		return
	}
	var req creditWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("amount_cents", "invalid_body", "request body is not valid"))
		return
	}

	if err := s.walletSvc.CreditReward(c.Request.Context(), creatorID, req.AmountCents, req.Description); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "credited"})
}

type redeemWalletRequest struct {
	AmountCents int64 `json:"amount_cents"`
}

func (s *Server) RedeemWallet(c *gin.Context) {
	creatorID, ok := parseID(c, "creatorId")
	if !ok {
		return
	}
	var req redeemWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("amount_cents", "invalid_body", "request body is not valid"))
		return
	}

	payout, err := s.walletSvc.Redeem(c.Request.Context(), creatorID, req.AmountCents)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, payout)
}
