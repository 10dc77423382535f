// Package main runs the live-session platform HTTP server with the
// Zoom integration and graceful shutdown.
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

	"github.com/brightclass/backend/config"
	"github.com/brightclass/backend/internal/auth"
	"github.com/brightclass/backend/internal/middleware"
	"github.com/brightclass/backend/internal/recordings"
	"github.com/brightclass/backend/internal/sessions"
	"github.com/brightclass/backend/internal/webhooks"
	"github.com/brightclass/backend/internal/worker"
	"github.com/brightclass/backend/internal/zoom"
	"github.com/brightclass/backend/pkg/database"
	"github.com/brightclass/backend/pkg/queue"
	"github.com/brightclass/backend/pkg/redis"
	"github.com/brightclass/backend/pkg/response"
	"github.com/brightclass/backend/pkg/storage"
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

	var s3Client *storage.S3
	if cfg.AWS.Region != "" {
		s3Client, err = storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			RecordingsBucket:     cfg.AWS.RecordingsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)

	// Zoom integration
	tokens := zoom.NewTokenManager(cfg.Zoom, logger)
	zoomClient := zoom.NewClient(cfg.Zoom, tokens, logger)
	creationQueue := zoom.NewCreationQueue(zoomClient, logger)
	defer creationQueue.Stop()
	if zoomClient.Offline() {
		logger.Warn("zoom credentials absent, running in offline mode with synthetic meetings")
	}

	// Recordings
	artifactRepo := recordings.NewRepository(pool)
	sessionRepo := sessions.NewRepository(pool)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	var archiver recordings.Archiver
	if s3Client != nil {
		archiver = jobQueue
	}
	discovery := recordings.NewDiscovery(zoomClient, artifactRepo, sessionRepo, archiver, logger)
	recordingHandler := recordings.NewHandler(artifactRepo, sessionRepo, s3Client, logger)

	// Sessions
	sessionService := sessions.NewService(sessionRepo, creationQueue, zoomClient, discovery, logger)
	scheduler := recordings.NewScheduler(sessionService.DiscoverByID, logger)
	sessionService.SetScheduler(scheduler)
	sessionHandler := sessions.NewHandler(sessionService, sessionRepo, logger)

	// Webhooks
	dispatcher := webhooks.NewDispatcher(sessionRepo, discovery, scheduler, logger)
	webhookHandler := webhooks.NewHandler(dispatcher, cfg.Zoom.WebhookSecret, rdb.Client, logger)

	archiveProcessor := worker.NewArchiveProcessor(artifactRepo, tokens, s3Client, jobQueue, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Webhooks (no JWT; signature validated in handler when configured)
	router.POST("/webhooks/zoom", webhookHandler.Receive)

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.POST("/courses/:id/sessions", middleware.RequireRole("admin", "instructor"), sessionHandler.Create)
		api.GET("/courses/:id/sessions", sessionHandler.ListByCourse)
		api.GET("/sessions/:id", sessionHandler.GetByID)
		api.PATCH("/sessions/:id", middleware.RequireRole("admin", "instructor"), sessionHandler.Update)
		api.POST("/sessions/:id/start", middleware.RequireRole("admin", "instructor"), sessionHandler.Start)
		api.POST("/sessions/:id/end", middleware.RequireRole("admin", "instructor"), sessionHandler.End)
		api.POST("/sessions/:id/cancel", middleware.RequireRole("admin", "instructor"), sessionHandler.Cancel)

		api.GET("/sessions/:id/recordings", recordingHandler.ListBySession)
		api.GET("/recordings/:id/playback-url", recordingHandler.PlaybackURL)
		api.DELETE("/recordings/:id", middleware.RequireRole("admin"), recordingHandler.Delete)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background archive worker (provider recording -> S3)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if s3Client != nil {
		go archiveProcessor.Run(workerCtx)
		logger.Info("archive worker started")
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

	workerCancel()
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
