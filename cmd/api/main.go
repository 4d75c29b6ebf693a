package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/homework-tracker-api/internal/config"
	"github.com/noah-isme/homework-tracker-api/internal/database"
	"github.com/noah-isme/homework-tracker-api/internal/handler"
	"github.com/noah-isme/homework-tracker-api/internal/middleware"
	"github.com/noah-isme/homework-tracker-api/internal/models"
	"github.com/noah-isme/homework-tracker-api/internal/repository"
	"github.com/noah-isme/homework-tracker-api/internal/router"
	"github.com/noah-isme/homework-tracker-api/internal/service"
	cloud "github.com/noah-isme/homework-tracker-api/pkg/cloudinary"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	if cfg.AppEnv == "development" {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	if err := db.AutoMigrate(&models.Homework{}); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	bootCtx, cancelBoot := context.WithTimeout(context.Background(), 5*time.Second)
	redisClient, err := database.ConnectRedis(bootCtx, cfg.RedisURL)
	cancelBoot()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	if redisClient != nil {
		defer redisClient.Close()
	} else {
		logger.Warn().Msg("redis url not configured; stats caching disabled")
	}

	var storage service.FileStorage
	if cfg.CloudinaryEnabled() {
		uploader, err := cloud.New(cloud.Config{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.CloudinaryUploadFolder,
		}, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create cloudinary client")
		}
		storage = uploader
	} else {
		logger.Warn().Msg("cloudinary credentials missing; attachments disabled")
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	homeworkRepo := repository.NewHomeworkRepository(db)
	homeworkService := service.NewHomeworkService(homeworkRepo, validate, redisClient, storage, service.HomeworkServiceConfig{
		StatsCacheTTL:   cfg.StatsCacheTTL,
		MaxAttachmentMB: cfg.UploadMaxSizeMB,
	}, logger)
	homeworkHandler := handler.NewHomeworkHandler(homeworkService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    (cfg.UploadMaxSizeMB + 1) * 1024 * 1024,
	})

	middleware.Register(app, middleware.Config{
		Logger:       &logger,
		AllowOrigins: cfg.AllowOrigins,
		AccessLog:    cfg.AppEnv == "development",
	})
	router.Register(app, cfg, router.Dependencies{
		HomeworkHandler: homeworkHandler,
		JWTMiddleware:   middleware.JWTProtected(cfg.JWTSecret),
		WriteLimiter:    middleware.RateLimit("homework_write", cfg.RateLimitMax, cfg.RateLimitWindow),
	})

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddress()).Msg("homework api listening")
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	waitForShutdown(app, logger)
}

func waitForShutdown(app *fiber.App, logger zerolog.Logger) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
