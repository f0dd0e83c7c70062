// Package main runs the registration platform HTTP server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/enrollio/backend/config"
	"github.com/enrollio/backend/internal/auth"
	"github.com/enrollio/backend/internal/catalog"
	"github.com/enrollio/backend/internal/clock"
	"github.com/enrollio/backend/internal/fulfillment"
	"github.com/enrollio/backend/internal/middleware"
	"github.com/enrollio/backend/internal/notifications"
	"github.com/enrollio/backend/internal/orders"
	"github.com/enrollio/backend/internal/tickets"
	"github.com/enrollio/backend/internal/waitlist"
	"github.com/enrollio/backend/internal/webhooks"
	"github.com/enrollio/backend/pkg/database"
	"github.com/enrollio/backend/pkg/queue"
	"github.com/enrollio/backend/pkg/redis"
	"github.com/enrollio/backend/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	jwtService := auth.NewJWTService(cfg.JWT.Secret)
	clk := clock.NewSystem()

	jobQueue := queue.NewQueue(rdb.Client, logger)
	sender := notifications.NewQueueSender(jobQueue, logger)

	// Repositories
	orderRepo := orders.NewRepository(pool)
	catalogRepo := catalog.NewRepository(pool)
	ticketRepo := tickets.NewRepository(pool)
	waitlistRepo := waitlist.NewRepository(pool)
	webhookRepo := webhooks.NewRepository(pool)

	// Core engine
	issuer := tickets.NewIssuer(ticketRepo, logger)
	orchestrator := fulfillment.NewOrchestrator(orderRepo, issuer, sender, clk, logger)
	orderFactory := orders.NewFactory(orderRepo, catalogRepo, clk, logger)
	waitlistManager := waitlist.NewManager(waitlistRepo, orderFactory, sender, clk, cfg.Waitlist.OfferTTL, logger)
	orderService := orders.NewService(orderRepo, waitlistManager, sender, clk, logger)

	// Webhooks
	guard := webhooks.NewGuard(webhookRepo, clk, logger)
	providerClient := webhooks.NewProviderClient(cfg.Payment.APIKey, cfg.Payment.BaseURL)
	webhookHandler := webhooks.NewHandler(guard, providerClient, orderRepo, orchestrator, jobQueue, logger)

	// HTTP handlers
	orderHandler := orders.NewHandler(orderRepo, orderService, logger)
	ticketHandler := tickets.NewHandler(ticketRepo, logger)
	waitlistHandler := waitlist.NewHandler(waitlistManager, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Webhooks (no JWT; transport signature is verified upstream)
	router.POST("/webhooks/payments", webhookHandler.HandlePaymentEvent)

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		// Orders
		api.POST("/orders", orderHandler.Create)
		api.GET("/orders/:id", orderHandler.Get)
		api.POST("/orders/:id/submit", orderHandler.Submit)
		api.POST("/orders/:id/cancel", orderHandler.Cancel)
		api.POST("/orders/:id/refund", middleware.RequireRole("admin", "operator"), orderHandler.Refund)

		// Waitlist
		api.POST("/waitlist", waitlistHandler.Join)
		api.POST("/waitlist/:id/accept", waitlistHandler.Accept)
		api.POST("/waitlist/:id/decline", waitlistHandler.Decline)

		// Tickets
		api.GET("/tickets/scan/:token", middleware.RequireRole("admin", "operator", "staff"), ticketHandler.Scan)
		api.POST("/tickets/:id/void", middleware.RequireRole("admin", "operator"), ticketHandler.Void)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
