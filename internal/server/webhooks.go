package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	paymentdomain "github.com/briefworks/briefworks/internal/payment/domain"
)

// webhookRateLimit throttles per provider so one noisy integration cannot
// starve the rest. With no Redis configured the limiter is nil and every
// delivery passes.
func (s *Server) webhookRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil {
			c.Next()
			return
		}
		key := "webhook:" + c.Param("provider")
		result, err := s.limiter.Allow(c.Request.Context(), key, s.cfg.WebhookRatePerSec, s.cfg.WebhookRateBurst)
		if err != nil {
			// Redis trouble must not drop provider deliveries.
			c.Next()
			return
		}
		if !result.Allowed {
			if s.obsMetrics != nil {
				s.obsMetrics.RecordRateLimitDenied(c.Request.Context(), c.FullPath(), "webhook")
			}
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}

func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	provider := c.Param("provider")

	payload, err := c.GetRawData()
	if err != nil {
		AbortWithError(c, paymentdomain.ErrInvalidPayload)
		return
	}

	err = s.webhookSvc.IngestWebhook(c.Request.Context(), provider, payload, c.Request.Header)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"received": true})
	case errors.Is(err, paymentdomain.ErrEventAlreadyProcessed),
		errors.Is(err, paymentdomain.ErrEventIgnored):
		// Acked so the provider stops redelivering.
		c.JSON(http.StatusOK, gin.H{"received": true})
	default:
		AbortWithError(c, err)
	}
}
