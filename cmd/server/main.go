package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"propdesk/internal/adapters/http/middleware"
	"propdesk/internal/adapters/http/routes"
	"propdesk/internal/adapters/persistence/models"
	"propdesk/internal/adapters/realtime"
	"propdesk/internal/config"
	"propdesk/internal/pkg/logger"
	"propdesk/internal/pkg/metrics"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	_ "propdesk/docs" // Swagger docs
)

// @title PropDesk API
// @version 1.0
// @description Property back office with multi-step approval workflows

// @contact.name API Support

// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger.Setup(cfg.AppMode, cfg.LogLevel)

	// Connect to database
	db, err := config.ConnectDatabase(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer config.CloseDatabase()

	if err := models.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("failed to auto migrate")
	}
	log.Info().Msg("database migration completed")

	if err := config.NewSeeder(db, cfg.Seed).Run(); err != nil {
		log.Warn().Err(err).Msg("seeding failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Engine observers: websocket revalidation and prometheus counters
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	hub := realtime.NewHub()
	go hub.Run(ctx)

	svc := routes.NewServices(db, cfg, hub, metrics.New(reg))

	// Stale approval reminders and refresh token cleanup
	if err := svc.Jobs.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start jobs")
	}
	defer svc.Jobs.Stop()

	app := fiber.New(fiber.Config{
		AppName:      "PropDesk API v1.0",
		ErrorHandler: middleware.CustomErrorHandler,
		ReadTimeout:  30 * time.Second,
	})

	middleware.Setup(app, cfg)
	routes.Setup(app, cfg, svc, hub, reg)

	go gracefulShutdown(ctx, app)

	log.Info().Str("port", cfg.Port).Str("mode", cfg.AppMode).Msg("server starting")
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Error().Err(err).Msg("server stopped")
		os.Exit(1)
	}
}

// gracefulShutdown stops the server once ctx is cancelled by a signal
func gracefulShutdown(ctx context.Context, app *fiber.App) {
	<-ctx.Done()

	log.Info().Msg("shutting down server")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Error().Err(err).Msg("error during shutdown")
	}
	log.Info().Msg("server stopped gracefully")
}
