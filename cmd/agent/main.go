package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fieldsync/internal/api"
	"fieldsync/internal/config"
	"fieldsync/internal/metrics"
	"fieldsync/internal/netmon"
	"fieldsync/internal/queue"
	"fieldsync/internal/remote"
	"fieldsync/internal/stats"
	"fieldsync/internal/store"
	"fieldsync/internal/upload"
	"fieldsync/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	logger.InitLogger(cfg.Server.Environment)
	defer logger.Sync()

	if err := run(cfg); err != nil {
		logger.Error("agent startup failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Infrastructure
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}

	uploader, err := upload.NewS3Uploader(ctx, upload.Config{
		Region:        cfg.S3.Region,
		Endpoint:      cfg.S3.Endpoint,
		Bucket:        cfg.S3.Bucket,
		AccessKey:     cfg.S3.AccessKey,
		SecretKey:     cfg.S3.SecretKey,
		PublicBaseURL: cfg.S3.PublicBaseURL,
	})
	if err != nil {
		return err
	}

	submitter := remote.NewClient(cfg.Remote.BaseURL, remote.StaticToken(cfg.Remote.DeviceToken))
	monitor := netmon.New(cfg.Net.ProbeURL, cfg.Net.ProbeInterval)
	statsCache := stats.New(initRedis(cfg.Redis), 0)

	// The agent serves one signed-in rep; a delivered mutation lands in the
	// current month, so that is the stats bucket to drop.
	ownerID := os.Getenv("FIELDSYNC_OWNER_ID")
	onSynced := func() {
		statsCache.Invalidate(context.Background(), ownerID, time.Now())
	}

	engine := queue.New(st, uploader, submitter, monitor, queue.Options{
		RetryCeiling:   cfg.Queue.RetryCeiling,
		RetryDelay:     cfg.Queue.RetryDelay,
		SafetyInterval: cfg.Queue.SafetyInterval,
		AttemptTimeout: cfg.Queue.AttemptTimeout,
		UploadFolder:   cfg.Queue.UploadFolder,
		OnSynced:       onSynced,
		Observer:       metrics.NewPrometheusObserver(),
	})

	// Background routines
	go func() {
		logger.Info("starting connectivity monitor")
		monitor.Start(ctx)
	}()
	go func() {
		logger.Info("starting queue engine")
		engine.Run(ctx)
	}()

	// HTTP server for the mobile UI and web dashboard
	r := api.RegisterRoutes(api.NewQueueHandler(engine), []byte(cfg.Auth.JWTSecret))
	srv := &http.Server{
		Addr:    cfg.Server.Port,
		Handler: r,
	}

	go func() {
		logger.Info("agent api listening",
			zap.String("addr", cfg.Server.Port),
			zap.String("env", cfg.Server.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down agent...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("agent exited properly")
	return nil
}

func initRedis(cfg config.RedisConfig) *redis.Client {
	if cfg.Addr == "" {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		logger.Warn("redis unreachable, stats cache disabled", zap.Error(err))
		return nil
	}
	return rdb
}
