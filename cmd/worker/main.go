// Package main runs the background job worker (notifications, receipt
// rendering, webhook payload archival) and the waitlist offer sweeper.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/enrollio/backend/config"
	"github.com/enrollio/backend/internal/catalog"
	"github.com/enrollio/backend/internal/clock"
	"github.com/enrollio/backend/internal/notifications"
	"github.com/enrollio/backend/internal/orders"
	"github.com/enrollio/backend/internal/waitlist"
	"github.com/enrollio/backend/internal/webhooks"
	"github.com/enrollio/backend/internal/worker"
	"github.com/enrollio/backend/pkg/database"
	"github.com/enrollio/backend/pkg/queue"
	"github.com/enrollio/backend/pkg/redis"
	"github.com/enrollio/backend/pkg/storage"
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

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	s3Cfg := storage.S3Config{
		Region:          cfg.AWS.Region,
		AccessKeyID:     cfg.AWS.AccessKeyID,
		SecretAccessKey: cfg.AWS.SecretAccessKey,
		ArchiveBucket:   cfg.AWS.ArchiveBucket,
	}
	s3Client, err := storage.NewS3(ctx, s3Cfg, logger)
	if err != nil {
		logger.Fatal("s3", zap.Error(err))
	}

	jobQueue := queue.NewQueue(rdb.Client, logger)
	webhookRepo := webhooks.NewRepository(pool)
	mailer := worker.LogMailer{Logger: logger}
	processor := worker.NewProcessor(jobQueue, mailer, s3Client, webhookRepo, logger)

	// Waitlist sweeper: expires overdue offers and advances the queue.
	clk := clock.NewSystem()
	sender := notifications.NewQueueSender(jobQueue, logger)
	orderRepo := orders.NewRepository(pool)
	catalogRepo := catalog.NewRepository(pool)
	orderFactory := orders.NewFactory(orderRepo, catalogRepo, clk, logger)
	waitlistRepo := waitlist.NewRepository(pool)
	waitlistManager := waitlist.NewManager(waitlistRepo, orderFactory, sender, clk, cfg.Waitlist.OfferTTL, logger)
	sweeper := waitlist.NewSweeper(waitlistManager, cfg.Waitlist.SweepInterval, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go processor.Run(workerCtx)
	go sweeper.Run(workerCtx)
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	time.Sleep(2 * time.Second)
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
