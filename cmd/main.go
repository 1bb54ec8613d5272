package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/aurumly/payment-reconciler/internal/api"
	"github.com/aurumly/payment-reconciler/internal/config"
	"github.com/aurumly/payment-reconciler/internal/gateway"
	"github.com/aurumly/payment-reconciler/internal/pricing"
	"github.com/aurumly/payment-reconciler/internal/repository"
	"github.com/aurumly/payment-reconciler/internal/service"
	"github.com/aurumly/payment-reconciler/internal/signature"
	"github.com/aurumly/payment-reconciler/internal/telemetry"
	"github.com/aurumly/payment-reconciler/internal/upi"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize telemetry
	if err := telemetry.InitTelemetry("payment-reconciler"); err != nil {
		panic(fmt.Sprintf("Failed to initialize telemetry: %v", err))
	}
	defer telemetry.Shutdown(context.Background())

	telemetry.Logger.Info("Starting Payment Reconciler")

	// Connect to PostgreSQL
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		telemetry.Logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Initialize repository
	repo := repository.NewTransactionRepository(db)
	if err := repo.InitDB(); err != nil {
		telemetry.Logger.Fatal("Failed to initialize database", zap.Error(err))
	}

	// Connect to Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisURL,
	})

	// Connect to NATS
	nc, err := nats.Connect(cfg.NatsURL)
	if err != nil {
		telemetry.Logger.Fatal("Failed to connect to NATS", zap.Error(err))
	}
	defer nc.Close()

	// Connect to Kafka
	kafkaWriter := &kafka.Writer{
		Addr:     kafka.TCP(cfg.KafkaBrokers),
		Topic:    "transaction.status.changed",
		Balancer: &kafka.LeastBytes{},
	}
	defer kafkaWriter.Close()

	// Gateway client and webhook verifier
	gwClient := gateway.NewClient(cfg.Gateway)
	verifier := signature.NewVerifier(cfg.Gateway.WebhookSecret)

	// Reference unit price: price service, then cache, then static config
	priceCache := pricing.NewCacheProvider(redisClient, cfg.Pricing)
	priceChain := pricing.NewChain(priceCache,
		pricing.NewNATSProvider(nc, cfg.Pricing),
		priceCache,
		pricing.NewStaticProvider(cfg.Pricing),
	)

	// Reconciliation engine and credit applier
	credit := service.NewHoldingsCredit(repo, priceChain)
	reconciler := service.NewReconciler(
		repo,
		gwClient,
		credit,
		service.NewKafkaPublisher(kafkaWriter),
		service.NewRedisDeduper(redisClient),
		upi.NewBuilder(cfg.UPI),
		cfg.Reconciler,
	)

	// Setup router
	r := api.NewRouter(repo, gwClient, reconciler, verifier)

	// Setup HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	// Start server in goroutine
	go func() {
		telemetry.Logger.Info("Payment Reconciler starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			telemetry.Logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	telemetry.Logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		telemetry.Logger.Error("Server forced to shutdown", zap.Error(err))
	}

	telemetry.Logger.Info("Server exited")
}
