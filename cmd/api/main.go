package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/aulago/classroom-api/api/swagger"
	"github.com/aulago/classroom-api/internal/handler"
	"github.com/aulago/classroom-api/internal/middleware"
	"github.com/aulago/classroom-api/internal/models"
	"github.com/aulago/classroom-api/internal/repository"
	"github.com/aulago/classroom-api/internal/service"
	"github.com/aulago/classroom-api/pkg/cache"
	"github.com/aulago/classroom-api/pkg/config"
	"github.com/aulago/classroom-api/pkg/database"
	"github.com/aulago/classroom-api/pkg/jobs"
	"github.com/aulago/classroom-api/pkg/logger"
	corsmiddleware "github.com/aulago/classroom-api/pkg/middleware/cors"
	reqidmiddleware "github.com/aulago/classroom-api/pkg/middleware/requestid"
	"github.com/aulago/classroom-api/pkg/storage"
)

// @title Classroom API
// @version 1.0.0
// @description Classroom management service: assignments, submissions and teacher performance
// @BasePath /api/v1
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	uploads, err := storage.NewLocalStorage(cfg.Uploads.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare upload storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Uploads.SignedURLSecret, cfg.Uploads.SignedURLTTL)

	metricsSvc := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	if cfg.Redis.Enabled {
		client, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		} else {
			redisRepo := repository.NewCacheRepository(client)
			defer redisRepo.Close() //nolint:errcheck
			cacheRepo = redisRepo
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Performance.CacheTTL, logr, cacheRepo != nil)

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	snapshotRepo := repository.NewPerformanceRepository(db)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		TokenSecret: cfg.JWT.Secret,
		TokenExpiry: cfg.JWT.Expiration,
		Issuer:      cfg.JWT.Issuer,
	})
	assignmentSvc := service.NewAssignmentService(assignmentRepo, submissionRepo, validate, logr)
	submissionSvc := service.NewSubmissionService(submissionRepo, assignmentRepo, uploads, signer, cacheSvc, validate, logr)
	performanceSvc := service.NewPerformanceService(userRepo, assignmentRepo, submissionRepo, snapshotRepo, cacheSvc, metricsSvc, cfg.Performance.CacheTTL, logr)

	janitor := service.NewUploadJanitor(submissionRepo, uploads, cfg.Uploads.CleanupTTL, logr)
	cleanup := jobs.NewScheduler("upload-cleanup", janitor.Run, jobs.SchedulerConfig{
		Interval: cfg.Uploads.CleanupInterval,
		Logger:   logr,
	})

	authHandler := handler.NewAuthHandler(authSvc)
	assignmentHandler := handler.NewAssignmentHandler(assignmentSvc)
	submissionHandler := handler.NewSubmissionHandler(submissionSvc, uploads, cfg.Uploads.MaxFileSize, cfg.Uploads.MaxFilesPerSub)
	performanceHandler := handler.NewPerformanceHandler(performanceSvc)
	fileHandler := handler.NewFileHandler(signer, uploads)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.MaxMultipartMemory = cfg.Uploads.MaxFileSize
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", authHandler.Login)
	api.GET("/files/download", fileHandler.Download)

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))

	authed.GET("/auth/me", authHandler.Me)

	authed.GET("/assignments", assignmentHandler.List)
	authed.GET("/assignments/:id", assignmentHandler.Get)
	authed.POST("/assignments", middleware.RequireRoles(models.RoleTeacher), assignmentHandler.Create)
	authed.PUT("/assignments/:id", middleware.RequireRoles(models.RoleTeacher), assignmentHandler.Update)
	authed.DELETE("/assignments/:id", middleware.RequireRoles(models.RoleTeacher), assignmentHandler.Delete)

	authed.POST("/assignments/:id/submissions", middleware.RequireRoles(models.RoleStudent), submissionHandler.Submit)
	authed.GET("/assignments/:id/submissions", middleware.RequireRoles(models.RoleTeacher), submissionHandler.ListForAssignment)
	authed.GET("/teacher/assignments", middleware.RequireRoles(models.RoleTeacher), assignmentHandler.ListMine)
	authed.GET("/student/submissions", middleware.RequireRoles(models.RoleStudent), submissionHandler.ListMine)

	authed.GET("/submissions/:id", submissionHandler.Get)
	authed.PUT("/submissions/:id/grade", middleware.RequireRoles(models.RoleTeacher), submissionHandler.Grade)
	authed.GET("/submissions/:id/files/:index/url", submissionHandler.FileURL)

	authed.GET("/performance/teachers", middleware.RequireRoles(models.RoleDirector), performanceHandler.Overview)
	authed.GET("/performance/teachers/:id", middleware.RequireRoles(models.RoleTeacher, models.RoleDirector), performanceHandler.GetTeacher)
	authed.GET("/performance/teachers/:id/export", middleware.RequireRoles(models.RoleTeacher, models.RoleDirector), performanceHandler.Export)
	authed.POST("/performance/recompute", middleware.RequireRoles(models.RoleDirector), performanceHandler.Recompute)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cleanup.Start(ctx)
	defer cleanup.Stop()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
