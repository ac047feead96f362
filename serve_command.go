package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"videoconverter/api"
	"videoconverter/config"
	"videoconverter/logging"
	"videoconverter/services"
	"videoconverter/worker"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the conversion API and background converter",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, config.Load())
		},
	}
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the job table and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			db, err := openDatabase(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			logger.Info("database schema is up to date", "driver", cfg.DBDriver)
			return nil
		},
	}
}

func newLogger(cfg *config.Config) (*slog.Logger, error) {
	return logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
}

func openDatabase(ctx context.Context, cfg *config.Config) (*services.DatabaseService, error) {
	db, err := services.NewDatabaseService(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return db, nil
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	logger.Info("starting video conversion service")

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("connected to database", "driver", cfg.DBDriver)

	poolOpts := worker.Options{
		OutputDir:    cfg.OutputDir,
		PublicPrefix: cfg.PublicPrefix,
		Logger:       logger,
	}
	apiOpts := api.Options{
		UploadDir:      cfg.UploadDir,
		OutputDir:      cfg.OutputDir,
		PublicPrefix:   cfg.PublicPrefix,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Health:         db,
		Logger:         logger,
	}

	if cfg.RedisEnabled() {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		cache := services.NewStatusCache(redisClient, cfg.RedisPrefix, cfg.StatusTTL)
		poolOpts.Publisher = cache
		apiOpts.Cache = cache
		logger.Info("mirroring job status to redis", "addr", cfg.RedisAddr)
	}

	if cfg.S3Enabled() {
		s3Svc, err := services.NewS3Service(cfg, nil)
		if err != nil {
			return err
		}
		poolOpts.Archive = s3Svc
		logger.Info("archiving converted files to s3", "bucket", cfg.S3Bucket, "prefix", cfg.S3Prefix)
	}

	transcoder := services.NewFFmpegTranscoder(cfg.FFmpegPath, cfg.FFprobePath, logger)
	pool := worker.NewPool(db, transcoder, poolOpts)

	if _, err := pool.RecoverInterrupted(ctx); err != nil {
		return fmt.Errorf("failed to recover interrupted jobs: %w", err)
	}

	server := api.NewServer(db, pool, apiOpts)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping http server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", "error", err)
	}
	if err := pool.Wait(shutdownCtx); err != nil {
		logger.Warn("shutdown timeout, abandoning running conversions", "error", err)
	} else {
		logger.Info("all conversions finished")
	}

	logger.Info("video conversion service stopped")
	return nil
}
