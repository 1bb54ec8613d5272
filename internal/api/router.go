package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aurumly/payment-reconciler/internal/handlers"
	"github.com/aurumly/payment-reconciler/internal/interfaces"
	"github.com/aurumly/payment-reconciler/internal/service"
	"github.com/aurumly/payment-reconciler/internal/signature"
	"github.com/aurumly/payment-reconciler/internal/telemetry"
)

func NewRouter(
	repo interfaces.TransactionRepository,
	gw interfaces.GatewayAPI,
	reconciler *service.Reconciler,
	verifier *signature.Verifier,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(telemetry.TracingMiddleware())

	// Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "payment-reconciler"})
	})

	orderHandler := handlers.NewOrderHandler(repo, gw, reconciler)
	webhookHandler := handlers.NewWebhookHandler(verifier, reconciler)

	r.POST("/orders", orderHandler.CreateOrder)
	r.GET("/orders/:id", orderHandler.GetTransaction)
	r.GET("/orders/:id/status", orderHandler.GetOrderStatus)
	r.GET("/orders/:id/payments", orderHandler.GetOrderPayments)
	r.POST("/orders/:id/reconcile", orderHandler.Recheck)
	r.POST("/orders/:id/poll", orderHandler.StartPoll)
	r.DELETE("/orders/:id/poll", orderHandler.CancelPoll)
	r.GET("/users/:id/holdings/:asset", orderHandler.GetHolding)

	r.POST("/webhooks/payment", webhookHandler.HandleNotification)

	return r
}
