package api

import (
	v1 "github.com/acctportal/billingcore/internal/api/v1"
	"github.com/acctportal/billingcore/internal/config"
	"github.com/acctportal/billingcore/internal/logger"
	"github.com/acctportal/billingcore/internal/rest/middleware"
	"github.com/acctportal/billingcore/internal/types"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Handlers struct {
	Health       *v1.HealthHandler
	Subscription *v1.SubscriptionHandler
	Card         *v1.CardHandler
	History      *v1.HistoryHandler
}

func NewRouter(handlers Handlers, cfg *config.Configuration, logger *logger.Logger) *gin.Engine {
	if cfg.Deployment.Mode != types.ModeLocal {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestIDMiddleware,
		middleware.CORSMiddleware,
		middleware.SentryMiddleware(cfg),
		middleware.ErrorHandler(logger),
	)

	router.GET("/health", handlers.Health.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1Group := router.Group("/v1")
	v1Group.Use(middleware.RequesterMiddleware, middleware.SentryScopeMiddleware)
	registerV1Routes(v1Group, handlers)

	return router
}

func registerV1Routes(router *gin.RouterGroup, handlers Handlers) {
	tenants := router.Group("/tenants/:tenant_id")
	{
		subscription := tenants.Group("/subscription")
		{
			subscription.GET("", handlers.Subscription.GetSubscription)
			subscription.POST("/trial", handlers.Subscription.CreateTrial)
			subscription.POST("/checkout", handlers.Subscription.Checkout)
			subscription.POST("/convert", handlers.Subscription.ConvertTrial)
			subscription.POST("/change", handlers.Subscription.ChangePlan)
			subscription.GET("/change/preview", handlers.Subscription.PreviewPlanChange)
			subscription.DELETE("/change", handlers.Subscription.CancelScheduledChange)
			subscription.POST("/cancel", handlers.Subscription.Cancel)
			subscription.POST("/reactivate", handlers.Subscription.Reactivate)
			subscription.POST("/resubscribe", handlers.Subscription.Resubscribe)
		}

		cards := tenants.Group("/cards")
		{
			cards.GET("", handlers.Card.ListCards)
			cards.POST("", handlers.Card.AddCard)
			cards.POST("/register", handlers.Card.RegisterCard)
			cards.PUT("/:id", handlers.Card.UpdateAlias)
			cards.DELETE("/:id", handlers.Card.RemoveCard)
			cards.POST("/:id/primary", handlers.Card.SetPrimary)
		}

		tenants.GET("/history", handlers.History.ListByTenant)
	}

	router.GET("/users/:user_id/history", handlers.History.ListByOwner)

	admin := router.Group("/admin/tenants/:tenant_id/subscription")
	{
		admin.PATCH("", handlers.Subscription.AdminEdit)
		admin.POST("/period-end", handlers.Subscription.ProcessPeriodEnd)
	}
}
