package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type onboardRequest struct {
	Country string `json:"country"`
}

func (s *Server) OnboardCreator(c *gin.Context) {
	creatorID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req onboardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("country", "invalid_body", "request body is not valid"))
		return
	}

	account, err := s.accountSvc.RequestOnboarding(c.Request.Context(), creatorID, req.Country)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}

type onboardLinkRequest struct {
	ReturnURL  string `json:"return_url"`
	RefreshURL string `json:"refresh_url"`
}

func (s *Server) CreateOnboardingLink(c *gin.Context) {
	creatorID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req onboardLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("body", "invalid_body", "request body is not valid"))
		return
	}
	if req.ReturnURL == "" || req.RefreshURL == "" {
		AbortWithError(c, newValidationError("return_url", "required", "return_url and refresh_url are required"))
		return
	}

	url, err := s.accountSvc.CreateOnboardingLink(c.Request.Context(), creatorID, req.ReturnURL, req.RefreshURL)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"onboarding_url": url})
}

func (s *Server) GetPaymentAccount(c *gin.Context) {
	creatorID, ok := parseID(c, "id")
	if !ok {
		return
	}
	account, err := s.accountSvc.Get(c.Request.Context(), creatorID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}

func (s *Server) RefreshPaymentAccount(c *gin.Context) {
	creatorID, ok := parseID(c, "id")
	if !ok {
		return
	}
	account, err := s.accountSvc.RefreshStatus(c.Request.Context(), creatorID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}
