// Package main is the entry point for the account service.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	_ "github.com/userprod/account-service/docs"
	"github.com/userprod/account-service/internal/config"
	"github.com/userprod/account-service/internal/database"
	"github.com/userprod/account-service/internal/handlers"
	"github.com/userprod/account-service/internal/logger"
	"github.com/userprod/account-service/internal/mailer"
	"github.com/userprod/account-service/internal/metrics"
	"github.com/userprod/account-service/internal/middleware"
	"github.com/userprod/account-service/internal/repository"
	"github.com/userprod/account-service/internal/routes"
	"github.com/userprod/account-service/internal/service"
	"github.com/userprod/account-service/internal/storage"
	"github.com/userprod/account-service/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

// @title Account Service API
// @version 1.0
// @description User accounts, sessions, profile pictures, images and CSV transfer.
// @host localhost:8000
// @BasePath /api/v1
// @securityDefinitions.apikey CookieAuth
// @in cookie
// @name accessToken
func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New(config.EnvDevelopment, "info")
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}
	log := logger.New(cfg.Environment, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("account service stopped")
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	// Initialize database
	db, err := database.Open(cfg.DB)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	if err := database.Migrate(ctx, db, cfg.DB.Driver); err != nil {
		return err
	}

	checks := map[string]handlers.Pinger{
		"database": handlers.PingFunc(func(ctx context.Context) error { return database.Ping(ctx, db) }),
	}

	// Mail goes through the Redis outbox when Redis is configured
	var dispatcher mailer.Dispatcher = mailer.NewLogDispatcher(log)
	if cfg.Redis.Enabled() {
		redisClient, err := redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		dispatcher = mailer.NewRedisOutbox(redisClient)
		checks["redis"] = handlers.PingFunc(func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })
	} else {
		log.Warn().Msg("REDIS_HOST not set, reset mails are only logged")
	}

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.New(registry)

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	imageRepo := repository.NewImageRepository(db)

	// Initialize services
	tokens, err := service.NewTokenIssuer(cfg.JWT)
	if err != nil {
		return err
	}
	accounts := service.NewAccountService(userRepo, imageRepo, tokens, store, dispatcher, appMetrics, service.AccountConfig{
		AppBaseURL:     cfg.AppBaseURL,
		MailFrom:       cfg.MailFrom,
		MaxUploadBytes: cfg.Storage.MaxUploadBytes,
		ResetTokenTTL:  cfg.JWT.ResetTokenTTL,
	}, log)
	images := service.NewImageService(imageRepo, store, cfg.Storage.MaxUploadBytes, log)
	transfers := service.NewTransferService(userRepo, log)

	// Initialize handlers
	h := routes.Handlers{
		Auth: handlers.NewAuthHandler(accounts, handlers.NewCookieHelper(cfg.Cookie), handlers.AuthHandlerConfig{
			AccessExpiry:   tokens.AccessExpiry(),
			RefreshExpiry:  tokens.RefreshExpiry(),
			PublicBaseURL:  cfg.PublicBaseURL,
			MaxUploadBytes: cfg.Storage.MaxUploadBytes,
		}),
		Image:    handlers.NewImageHandler(images, cfg.PublicBaseURL, cfg.Storage.MaxUploadBytes, log),
		Transfer: handlers.NewTransferHandler(transfers, log),
		Health:   handlers.NewHealthHandler(checks),
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	routes.Setup(router, h, routes.Deps{
		Session:  middleware.Session(tokens, userRepo),
		Metrics:  appMetrics,
		Gatherer: registry,
		Log:      log,
	}, cfg)

	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("environment", cfg.Environment).Msg("starting account service")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
