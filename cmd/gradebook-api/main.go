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

	_ "github.com/noah-isme/sma-gradebook-api/api/swagger"
	"github.com/noah-isme/sma-gradebook-api/internal/handler"
	"github.com/noah-isme/sma-gradebook-api/internal/middleware"
	"github.com/noah-isme/sma-gradebook-api/internal/repository"
	"github.com/noah-isme/sma-gradebook-api/internal/service"
	"github.com/noah-isme/sma-gradebook-api/pkg/cache"
	"github.com/noah-isme/sma-gradebook-api/pkg/config"
	"github.com/noah-isme/sma-gradebook-api/pkg/database"
	"github.com/noah-isme/sma-gradebook-api/pkg/events"
	"github.com/noah-isme/sma-gradebook-api/pkg/jobs"
	"github.com/noah-isme/sma-gradebook-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-gradebook-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-gradebook-api/pkg/middleware/requestid"
	"github.com/noah-isme/sma-gradebook-api/pkg/middleware/tenant"
	"github.com/noah-isme/sma-gradebook-api/pkg/storage"
)

// @title SMA Gradebook API
// @version 1.0.0
// @description Grade aggregation, report cards and gradebook exports
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	if cfg.Database.AutoMigrate {
		if err := database.RunMigrations(db.DB, logr); err != nil {
			logr.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	metrics := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, serving uncached", zap.Error(err))
	} else {
		defer redisClient.Close() //nolint:errcheck
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Gradebook.CacheTTL, logr, cacheRepo != nil)

	validate := validator.New()

	resultRepo := repository.NewAssessmentResultRepository(db)
	schemaRepo := repository.NewGradingSchemaRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	termRepo := repository.NewTermRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	policyRepo := repository.NewPolicyRepository(db)
	reportRepo := repository.NewReportRepository(db)

	policySvc := service.NewPolicyService(policyRepo, cacheSvc, service.PolicyFromConfig(cfg.Grading), cfg.Gradebook.PolicyTTL, logr)
	gradebookSvc := service.NewGradebookService(resultRepo, schemaRepo, attendanceRepo, termRepo, enrollmentRepo, policySvc, cacheSvc, metrics, validate, logr, service.GradebookConfig{
		Workers:  cfg.Gradebook.Workers,
		CacheTTL: cfg.Gradebook.CacheTTL,
	})
	reportCardSvc := service.NewReportCardService(resultRepo, schemaRepo, termRepo, subjectRepo, policySvc, cacheSvc, metrics, logr, cfg.Gradebook.CacheTTL)
	schemaSvc := service.NewSchemaService(schemaRepo, cacheSvc, validate, logr)

	bus, err := events.NewBus(cfg.Events, logr)
	if err != nil {
		logr.Fatal("failed to init event bus", zap.Error(err))
	}
	defer bus.Close() //nolint:errcheck
	if bus.Subscriber != nil {
		consumer := service.NewAssessmentEventConsumer(bus.Subscriber, cfg.Events.AssessmentTopic, cacheSvc, metrics, logr)
		go func() {
			if err := consumer.Run(ctx); err != nil {
				logr.Error("assessment consumer stopped", zap.Error(err))
			}
		}()
	}

	reportHandler := handler.NewReportHandler(nil)
	if cfg.Reports.Enabled {
		files, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
		if err != nil {
			logr.Fatal("failed to init report storage", zap.Error(err))
		}
		signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
		exportSvc := service.NewExportService(reportCardSvc, gradebookSvc, files, signer, service.ExportConfig{
			APIPrefix: cfg.APIPrefix,
			ResultTTL: cfg.Reports.SignedURLTTL,
		}, logr, nil)
		worker := service.NewReportWorker(reportRepo, exportSvc, bus.Publisher, cfg.Events.ReportReadyTopic, metrics, cfg.Reports.WorkerRetries, logr)
		queue := jobs.NewQueue("reports", worker.Handle, jobs.QueueConfig{
			Workers:    cfg.Reports.WorkerConcurrency,
			MaxRetries: cfg.Reports.WorkerRetries,
			Logger:     logr,
		})
		queue.Start(ctx)
		defer queue.Stop()

		reportSvc := service.NewReportService(reportRepo, queue, exportSvc, validate, logr, service.ReportServiceConfig{
			ResultTTL:       cfg.Reports.SignedURLTTL,
			CleanupInterval: cfg.Reports.CleanupInterval,
		})
		reportSvc.RecoverPendingJobs(ctx)
		reportSvc.StartCleanup(ctx)
		reportHandler = handler.NewReportHandler(reportSvc)
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins, cfg.Gradebook.TenantHeader))
	r.Use(middleware.Metrics(metrics, "/metrics"))
	r.Use(middleware.WithResponseMeta())

	metricsHandler := handler.NewMetricsHandler(metrics, map[string]handler.ReadinessCheck{
		"postgres": db.PingContext,
		"redis": func(ctx context.Context) error {
			if redisClient == nil {
				return nil
			}
			return redisClient.Ping(ctx).Err()
		},
	})
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.GET("/export/:token", reportHandler.Download)

	scoped := api.Group("", tenant.Middleware(cfg.Gradebook.TenantHeader))
	gradebookHandler := handler.NewGradebookHandler(gradebookSvc, reportCardSvc)
	scoped.GET("/students/:id/performance", gradebookHandler.Performance)
	scoped.GET("/students/:id/overview", gradebookHandler.Overview)
	scoped.GET("/students/:id/report-card", gradebookHandler.ReportCard)
	scoped.GET("/classes/:id/gradebook", gradebookHandler.ClassGradebook)
	scoped.POST("/grades/compute", gradebookHandler.Compute)

	schemaHandler := handler.NewSchemaHandler(schemaSvc)
	scoped.GET("/grading-schemas", schemaHandler.List)
	scoped.POST("/grading-schemas", schemaHandler.Create)
	scoped.GET("/grading-schemas/:id", schemaHandler.Get)
	scoped.PUT("/grading-schemas/:id", schemaHandler.Update)

	scoped.POST("/reports/generate", reportHandler.Generate)
	scoped.GET("/reports/status/:id", reportHandler.Status)
	api.GET("/system/metrics", metricsHandler.System)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
}
