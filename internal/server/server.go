package server

import (
	"context"
	"net/http"
	"time"

	auditdomain "github.com/briefworks/briefworks/internal/audit/domain"
	"github.com/briefworks/briefworks/internal/config"
	fundingdomain "github.com/briefworks/briefworks/internal/funding/domain"
	"github.com/briefworks/briefworks/internal/observability"
	obsmiddleware "github.com/briefworks/briefworks/internal/observability/logger"
	obsmetrics "github.com/briefworks/briefworks/internal/observability/metrics"
	obstracing "github.com/briefworks/briefworks/internal/observability/tracing"
	accountdomain "github.com/briefworks/briefworks/internal/paymentaccount/domain"
	paymentdomain "github.com/briefworks/briefworks/internal/payment/domain"
	payoutdomain "github.com/briefworks/briefworks/internal/payout/domain"
	"github.com/briefworks/briefworks/internal/ratelimit"
	tierdomain "github.com/briefworks/briefworks/internal/rewardtier/domain"
	walletdomain "github.com/briefworks/briefworks/internal/wallet/domain"
	winnerdomain "github.com/briefworks/briefworks/internal/winner/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
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
	engine     *gin.Engine
	cfg        config.Config
	db         *gorm.DB
	genID      *snowflake.Node
	fundingSvc fundingdomain.Service
	tierSvc    tierdomain.Service
	winnerSvc  winnerdomain.Service
	payoutSvc  payoutdomain.Service
	accountSvc accountdomain.Service
	walletSvc  walletdomain.Service
	webhookSvc paymentdomain.Service
	auditSvc   auditdomain.Service
	limiter    *ratelimit.TokenBucket
	obsMetrics *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	DB         *gorm.DB
	GenID      *snowflake.Node
	FundingSvc fundingdomain.Service
	TierSvc    tierdomain.Service
	WinnerSvc  winnerdomain.Service
	PayoutSvc  payoutdomain.Service
	AccountSvc accountdomain.Service
	WalletSvc  walletdomain.Service
	WebhookSvc paymentdomain.Service
	AuditSvc   auditdomain.Service
	Limiter    *ratelimit.TokenBucket `optional:"true"`
	ObsMetrics *obsmetrics.Metrics    `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		db:         p.DB,
		genID:      p.GenID,
		fundingSvc: p.FundingSvc,
		tierSvc:    p.TierSvc,
		winnerSvc:  p.WinnerSvc,
		payoutSvc:  p.PayoutSvc,
		accountSvc: p.AccountSvc,
		walletSvc:  p.WalletSvc,
		webhookSvc: p.WebhookSvc,
		auditSvc:   p.AuditSvc,
		limiter:    p.Limiter,
		obsMetrics: p.ObsMetrics,
	}

	svc.registerAPIRoutes()
	svc.registerWebhookRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1")

	briefs := v1.Group("/briefs")
	briefs.POST("/:id/fund", s.FundBrief)
	briefs.POST("/:id/fund/estimate", s.EstimateFee)
	briefs.GET("/:id/funding", s.GetFunding)
	briefs.POST("/:id/close", s.CloseBrief)
	briefs.POST("/:id/reward-tiers", s.SetRewardTiers)
	briefs.GET("/:id/reward-tiers", s.ListRewardTiers)
	briefs.POST("/:id/reward-tiers/equal-split", s.EqualSplitTiers)
	briefs.POST("/:id/assign-reward", s.AssignReward)
	briefs.GET("/:id/assignments", s.ListAssignments)
	briefs.DELETE("/:id/assignments/:assignmentId", s.UnassignReward)
	briefs.POST("/:id/process-payouts", s.ProcessBriefPayouts)

	creators := v1.Group("/creators")
	creators.POST("/:id/onboard", s.OnboardCreator)
	creators.POST("/:id/onboard/link", s.CreateOnboardingLink)
	creators.GET("/:id/payment-account", s.GetPaymentAccount)
	creators.POST("/:id/payment-account/refresh", s.RefreshPaymentAccount)

	v1.POST("/brands/bulk-payment", s.BulkPayment)

	payouts := v1.Group("/payouts")
	payouts.POST("/:id/retry", s.RetryPayout)
	payouts.POST("/:id/refresh", s.RefreshPayout)

	wallet := v1.Group("/wallet")
	wallet.GET("/:creatorId", s.WalletStatement)
	wallet.POST("/:creatorId/credit", s.CreditWallet)
	wallet.POST("/:creatorId/redeem", s.RedeemWallet)

	v1.GET("/audit-logs", s.ListAuditLogs)
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/v1/webhooks/payments/:provider", s.webhookRateLimit(), s.HandlePaymentWebhook)
}

func parseID(c *gin.Context, param string) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(c.Param(param))
	if err != nil || id == 0 {
		AbortWithError(c, newValidationError(param, "invalid_id", "identifier is not valid"))
		return 0, false
	}
	return id, true
}
