package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/jansampark/event-desk-api/api/swagger"
	"github.com/jansampark/event-desk-api/internal/handler"
	internalmiddleware "github.com/jansampark/event-desk-api/internal/middleware"
	"github.com/jansampark/event-desk-api/internal/models"
	"github.com/jansampark/event-desk-api/internal/repository"
	"github.com/jansampark/event-desk-api/internal/service"
	"github.com/jansampark/event-desk-api/pkg/cache"
	"github.com/jansampark/event-desk-api/pkg/config"
	"github.com/jansampark/event-desk-api/pkg/database"
	"github.com/jansampark/event-desk-api/pkg/logger"
	corsmiddleware "github.com/jansampark/event-desk-api/pkg/middleware/cors"
	reqidmiddleware "github.com/jansampark/event-desk-api/pkg/middleware/requestid"
	"github.com/jansampark/event-desk-api/pkg/storage"
)

// @title Event Desk API
// @version 1.0.0
// @description Internal event management and attendance reporting
// @BasePath /api
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, event list caching disabled", "error", err)
		redisClient = nil
	}

	uploadStore, err := storage.NewUploadStore(cfg.Uploads.Dir, cfg.Uploads.PublicPath)
	if err != nil {
		logr.Sugar().Fatalw("failed to init upload store", "error", err)
	}

	eventRepo := repository.NewEventRepository(db)
	viewRepo := repository.NewEventViewRepository(db)
	userRepo := repository.NewUserRepository(db)

	metrics := service.NewMetricsService()

	var cacheSvc *service.CacheService
	if redisClient != nil {
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		defer cacheRepo.Close() //nolint:errcheck
		cacheSvc = service.NewCacheService(cacheRepo, metrics, cfg.Events.ListCacheTTL, logr)
	}

	authSvc := service.NewAuthService(userRepo, nil, logr, service.AuthConfig{
		TokenSecret: cfg.JWT.Secret,
		TokenExpiry: cfg.JWT.Expiration,
	})
	viewSvc := service.NewViewService(viewRepo, logr)
	eventSvc := service.NewEventService(eventRepo, uploadStore, viewSvc, cacheSvc, nil, logr, service.EventPolicy{
		VideoMinBytes:      cfg.Uploads.VideoMinBytes,
		MaxPhotos:          cfg.Uploads.MaxPhotos,
		MaxMediaPhotos:     cfg.Uploads.MaxMediaPhotos,
		SelfServiceUpdates: cfg.Events.SelfServiceUpdates,
		ListCacheTTL:       cfg.Events.ListCacheTTL,
	}, cfg.PublicBaseURL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var exportSvc *service.ExportService
	if cfg.Exports.Enabled {
		exportStore, err := storage.NewExportStore(cfg.Exports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init export store", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
		exportRepo := repository.NewExportJobRepository(db)
		exportSvc = service.NewExportService(exportRepo, viewSvc, eventRepo, exportStore, signer, logr, service.ExportConfig{
			WorkerConcurrency: cfg.Exports.WorkerConcurrency,
			WorkerRetries:     cfg.Exports.WorkerRetries,
			DownloadPath:      cfg.APIPrefix + "/exports/download",
		})
		exportSvc.Start(ctx)
		defer exportSvc.Stop()
		if err := exportSvc.RecoverPendingJobs(ctx); err != nil {
			logr.Sugar().Warnw("failed to recover pending export jobs", "error", err)
		}
	}

	authHandler := handler.NewAuthHandler(authSvc)
	eventHandler := handler.NewEventHandler(eventSvc, viewSvc)
	reportHandler := handler.NewReportHandler(viewSvc)
	exportHandler := handler.NewExportHandler(exportSvc)
	metricsHandler := handler.NewMetricsHandler(metrics)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics))
	r.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, cfg.Uploads.MaxRequestBytes)
		c.Next()
	})

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	r.Static(uploadStore.PublicPath(), uploadStore.Dir())

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.GET("/users", internalmiddleware.JWT(authSvc), authHandler.Users)

	events := api.Group("/events", internalmiddleware.JWT(authSvc))
	events.GET("", eventHandler.List)
	events.GET("/:id", eventHandler.Get)
	events.POST("", internalmiddleware.RequireRoles(models.RoleAdmin), eventHandler.Create)
	events.POST("/:id/update", eventHandler.Update)
	events.DELETE("/:id", internalmiddleware.RequireRoles(models.RoleAdmin), eventHandler.Delete)
	events.POST("/:id/view", eventHandler.MarkViewed)
	events.GET("/:id/report", reportHandler.Report)
	events.POST("/:id/report/accept", internalmiddleware.RequireRoles(models.RoleAdmin), reportHandler.Accept)
	events.POST("/:id/report/export", internalmiddleware.RequireRoles(models.RoleAdmin), exportHandler.Create)

	exports := api.Group("/exports")
	exports.GET("/download", exportHandler.Download)
	exports.GET("/:jobId", internalmiddleware.JWT(authSvc), internalmiddleware.RequireRoles(models.RoleAdmin), exportHandler.Status)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
