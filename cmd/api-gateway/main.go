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
	"go.uber.org/zap"

	_ "github.com/noah-isme/rating-flow-api/api/swagger"
	"github.com/noah-isme/rating-flow-api/internal/handler"
	"github.com/noah-isme/rating-flow-api/internal/middleware"
	"github.com/noah-isme/rating-flow-api/internal/models"
	"github.com/noah-isme/rating-flow-api/internal/repository"
	"github.com/noah-isme/rating-flow-api/internal/service"
	"github.com/noah-isme/rating-flow-api/pkg/cache"
	"github.com/noah-isme/rating-flow-api/pkg/config"
	"github.com/noah-isme/rating-flow-api/pkg/database"
	"github.com/noah-isme/rating-flow-api/pkg/export"
	"github.com/noah-isme/rating-flow-api/pkg/jobs"
	"github.com/noah-isme/rating-flow-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/rating-flow-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/rating-flow-api/pkg/middleware/requestid"
	"github.com/noah-isme/rating-flow-api/pkg/storage"
)

// @title Rating Flow API
// @version 1.0.0
// @description Rating lifecycle and approval chain service
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	validate := validator.New()

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	ratingRepo := repository.NewRatingRepository(db)
	participantRepo := repository.NewParticipantRepository(db)
	approvalRepo := repository.NewApprovalRepository(db)
	directoryRepo := repository.NewDirectoryRepository(db)
	reportRepo := repository.NewReportRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// Core services.
	metricsSvc := service.NewMetricsService()

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "rating-flow-api",
	})
	userSvc := service.NewUserService(userRepo, directoryRepo, validate, logr)
	directorySvc := service.NewDirectoryService(directoryRepo, validate, logr)

	ratingSvc := service.NewRatingService(ratingRepo, participantRepo, userRepo, userRepo, logr)
	approvalSvc := service.NewApprovalService(participantRepo, approvalRepo, ratingRepo, cacheRepo, userRepo, logr, cfg.Actions.CacheTTL)
	approvalSvc.UseMetrics(metricsSvc)
	participantSvc := service.NewParticipantService(participantRepo, ratingRepo, approvalRepo, approvalSvc, userRepo, logr)
	participantSvc.UseMetrics(metricsSvc)

	// Supporting documents.
	uploadStorage, err := storage.NewLocalStorage(cfg.Uploads.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init uploads storage", "error", err)
	}
	uploadSigner := storage.NewSignedURLSigner(cfg.Uploads.SignedURLSecret, cfg.Uploads.SignedURLTTL)
	documentSvc := service.NewDocumentService(uploadStorage, uploadSigner, logr, service.DocumentServiceConfig{
		MaxFileSize:  cfg.Uploads.MaxFileSizeBytes,
		AllowedMIMEs: cfg.Uploads.AllowedMIMEs,
		APIPrefix:    cfg.APIPrefix,
	})

	// Asynchronous report generation.
	var reportSvc *service.ReportService
	var reportQueue *jobs.Queue
	if cfg.Reports.Enabled {
		reportStorage, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init reports storage", "error", err)
		}
		reportSigner := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)

		exportSvc := service.NewExportService(
			ratingRepo, participantRepo, approvalRepo, userRepo,
			reportStorage, reportSigner,
			service.ExportConfig{APIPrefix: cfg.APIPrefix, ResultTTL: cfg.Reports.SignedURLTTL},
			logr,
			export.NewCSVExporter(), export.NewPDFExporter(),
		)

		worker := service.NewReportWorker(reportRepo, exportSvc, cfg.Reports.WorkerRetries, logr)
		reportQueue = jobs.NewQueue("rating-reports", worker.Handle, jobs.QueueConfig{
			Workers:    cfg.Reports.WorkerConcurrency,
			BufferSize: 64,
			MaxRetries: cfg.Reports.WorkerRetries,
			RetryDelay: 5 * time.Second,
			Logger:     logr,
		})
		reportQueue.Start(ctx)

		reportSvc = service.NewReportService(reportRepo, ratingRepo, reportQueue, exportSvc, logr, service.ReportServiceConfig{
			ResultTTL:       cfg.Reports.SignedURLTTL,
			CleanupInterval: cfg.Reports.CleanupInterval,
			MaxRetries:      cfg.Reports.WorkerRetries,
		})
		reportSvc.RecoverPendingJobs(ctx)
		reportSvc.StartCleanup(ctx)
	}

	router := setupRouter(cfg, logr, routerDeps{
		auth:         handler.NewAuthHandler(authSvc),
		users:        handler.NewUserHandler(userSvc),
		directory:    handler.NewDirectoryHandler(directorySvc),
		ratings:      handler.NewRatingHandler(ratingSvc, participantSvc),
		participants: handler.NewParticipantHandler(participantSvc, approvalSvc),
		documents:    handler.NewDocumentHandler(documentSvc),
		metrics:      handler.NewMetricsHandler(metricsSvc),
		authSvc:      authSvc,
		metricsSvc:   metricsSvc,
		auditRepo:    userRepo,
		reports:      reportHandlerOrNil(reportSvc),
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}
	if reportQueue != nil {
		reportQueue.Stop()
	}
	logr.Sugar().Infow("server stopped")
}

func reportHandlerOrNil(svc *service.ReportService) *handler.ReportHandler {
	if svc == nil {
		return nil
	}
	return handler.NewReportHandler(svc)
}

type routerDeps struct {
	auth         *handler.AuthHandler
	users        *handler.UserHandler
	directory    *handler.DirectoryHandler
	ratings      *handler.RatingHandler
	participants *handler.ParticipantHandler
	documents    *handler.DocumentHandler
	reports      *handler.ReportHandler
	metrics      *handler.MetricsHandler

	authSvc    *service.AuthService
	metricsSvc *service.MetricsService
	auditRepo  *repository.UserRepository
}

func setupRouter(cfg *config.Config, logr *zap.Logger, deps routerDeps) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.metricsSvc))

	r.GET("/health", deps.metrics.Health)
	r.GET("/ready", deps.metrics.Health)
	r.GET("/metrics", deps.metrics.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	api.POST("/auth/login", deps.auth.Login)
	api.POST("/auth/refresh", deps.auth.Refresh)

	// Report downloads are gated by the signed token embedded in the URL.
	if deps.reports != nil {
		api.GET("/reports/download/:token", deps.reports.Download)
	}

	authed := api.Group("")
	authed.Use(middleware.JWT(deps.authSvc))
	{
		authed.POST("/auth/logout", deps.auth.Logout)
		authed.POST("/auth/change-password", deps.auth.ChangePassword)

		users := authed.Group("/users")
		{
			users.GET("", middleware.RequireRoles(models.RoleAdmin), deps.users.List)
			users.GET("/:id", middleware.RBAC("ADMIN", "SELF"), deps.users.Get)
			users.POST("", middleware.RequireRoles(models.RoleAdmin), deps.users.Create)
			users.PUT("/:id", middleware.RequireRoles(models.RoleAdmin), deps.users.Update)
			users.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), deps.users.Delete)
		}

		authed.GET("/units", deps.directory.ListUnits)
		authed.GET("/departments", deps.directory.ListDepartments)
		authed.POST("/units", middleware.RequireRoles(models.RoleAdmin), middleware.Audit(deps.auditRepo, "CREATE", "unit"), deps.directory.CreateUnit)
		authed.POST("/departments", middleware.RequireRoles(models.RoleAdmin), middleware.Audit(deps.auditRepo, "CREATE", "department"), deps.directory.CreateDepartment)

		ratings := authed.Group("/ratings")
		{
			ratings.POST("", middleware.RequireRoles(models.RoleAdmin, models.RoleAuthor), deps.ratings.Create)
			ratings.GET("", deps.ratings.List)
			ratings.GET("/:id", deps.ratings.Get)
			ratings.PUT("/:id", deps.ratings.Update)
			ratings.POST("/:id/complete", deps.ratings.Complete)
			ratings.POST("/:id/finalize", deps.ratings.Finalize)
			ratings.DELETE("/:id", deps.ratings.Delete)
			ratings.GET("/:id/participants", deps.ratings.Participants)
			if deps.reports != nil {
				ratings.POST("/:id/reports", deps.reports.CreateJob)
			}
		}

		participants := authed.Group("/participants")
		{
			participants.GET("/:id", deps.participants.Get)
			participants.POST("/:id/fill", deps.participants.Fill)
			participants.POST("/:id/decide", deps.participants.Decide)
			participants.GET("/:id/feedback", deps.participants.Feedback)
			participants.GET("/:id/history", deps.participants.History)
		}

		authed.GET("/pending-actions", deps.participants.PendingActions)

		authed.POST("/documents", middleware.Audit(deps.auditRepo, "UPLOAD", "document"), deps.documents.Upload)
		authed.GET("/documents/:id/download", deps.documents.Download)

		if deps.reports != nil {
			authed.GET("/reports/status/:id", deps.reports.GetStatus)
		}
	}

	return r
}
