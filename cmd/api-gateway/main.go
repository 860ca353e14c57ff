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
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/campus-complaints-api/api/swagger"
	"github.com/noah-isme/campus-complaints-api/internal/handler"
	"github.com/noah-isme/campus-complaints-api/internal/middleware"
	"github.com/noah-isme/campus-complaints-api/internal/repository"
	"github.com/noah-isme/campus-complaints-api/internal/service"
	"github.com/noah-isme/campus-complaints-api/pkg/cache"
	"github.com/noah-isme/campus-complaints-api/pkg/classifier"
	"github.com/noah-isme/campus-complaints-api/pkg/config"
	"github.com/noah-isme/campus-complaints-api/pkg/database"
	"github.com/noah-isme/campus-complaints-api/pkg/jobs"
	"github.com/noah-isme/campus-complaints-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/campus-complaints-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/campus-complaints-api/pkg/middleware/requestid"
	"github.com/noah-isme/campus-complaints-api/pkg/sequence"
	"github.com/noah-isme/campus-complaints-api/pkg/storage"
)

// @title Campus Complaints API
// @version 1.0.0
// @description Complaint intake, ML triage, routing, SLA escalation and resolution workflow
// @BasePath /api/v1
// @schemes http https
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	var redisClient *redis.Client
	if cfg.Cache.Enabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, caching disabled", zap.Error(err))
		} else {
			defer redisClient.Close() //nolint:errcheck
		}
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	app, err := buildApp(cfg, db, redisClient, logr)
	if err != nil {
		logr.Fatal("failed to wire application", zap.Error(err))
	}

	app.queue.Start(ctx)
	defer app.queue.Stop()
	app.escalations.Start(ctx)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(app.metrics))

	checks := map[string]handler.Pinger{"database": db.PingContext}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	ops := handler.NewMetricsHandler(app.metrics.Handler(), checks)
	r.GET("/health", ops.Health)
	r.GET("/ready", ops.Ready)
	r.GET("/metrics", ops.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.RegisterRoutes(r.Group(cfg.APIPrefix), app.handlers, app.auth, logr)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

type app struct {
	handlers    handler.Handlers
	auth        *service.AuthService
	metrics     *service.MetricsService
	queue       *jobs.Queue
	escalations *service.EscalationService
}

func buildApp(cfg *config.Config, db *sqlx.DB, redisClient *redis.Client, logr *zap.Logger) (*app, error) {
	users := repository.NewUserRepository(db)
	complaints := repository.NewComplaintRepository(db)
	routingRules := repository.NewRoutingRuleRepository(db)
	slaRules := repository.NewSLARuleRepository(db)
	settingsRepo := repository.NewSettingRepository(db)
	attachmentsRepo := repository.NewAttachmentRepository(db)

	metrics := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.TTL, logr, cfg.Cache.Enabled && cacheRepo != nil)

	files, err := storage.NewLocalStorage(cfg.Attachments.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("attachment storage: %w", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Attachments.SignedURLSecret, cfg.Attachments.SignedURLTTL)
	attachments := service.NewAttachmentService(attachmentsRepo, files, signer, service.AttachmentConfig{
		PublicBaseURL:    cfg.Attachments.PublicBaseURL,
		MaxFileSizeBytes: cfg.Attachments.MaxFileSizeBytes,
		AllowedMIMEs:     cfg.Attachments.AllowedMIMEs,
	}, logr)

	sla := service.NewSLAService(slaRules, nil)
	timeline := service.NewTimelineService(repository.NewTimelineRepository(db))
	routing := service.NewRoutingService(routingRules, users, logr)
	settings := service.NewSettingsService(settingsRepo, routingRules, slaRules, users, cacheSvc, cfg.Prediction.Threshold, logr)

	classifierClient := classifier.NewClient(classifier.Config{
		Endpoint:        cfg.Prediction.Endpoint,
		ConnectTimeout:  cfg.Prediction.ConnectTimeout,
		ReadTimeout:     cfg.Prediction.ReadTimeout,
		BreakerFailures: cfg.Prediction.BreakerFailures,
		BreakerOpenFor:  cfg.Prediction.BreakerOpenFor,
		BreakerHalfOpen: cfg.Prediction.BreakerHalfOpenN,
	}, classifier.WithObserver(metrics), classifier.WithLogger(logr.Named("classifier")))

	prediction := service.NewPredictionService(service.PredictionDeps{
		Store:       complaints,
		Classifier:  classifierClient,
		Attachments: attachments,
		Files:       attachments,
		URLs:        attachments,
		SLA:         sla,
		Routing:     routing,
		Timeline:    timeline,
		Metrics:     metrics,
		Logger:      logr,
	}, service.PredictionOptions{
		ImageMode:      cfg.Prediction.ImageMode,
		MaxInlineBytes: cfg.Prediction.MaxInlineBytes,
	})

	complaintSvc := service.NewComplaintService(service.ComplaintDeps{
		Store:       complaints,
		Codes:       sequence.NewGenerator(cfg.Complaints.CodePrefix, repository.NewSequenceRepository(db)),
		Users:       users,
		Timeline:    timeline,
		SLA:         sla,
		Prediction:  prediction,
		Thresholds:  settings,
		Attachments: attachments,
		Messages:    repository.NewMessageRepository(db),
		Escalations: repository.NewEscalationRepository(db),
		Predictions: repository.NewPredictionRepository(db),
		Cache:       cacheSvc,
		Logger:      logr,
	}, service.ComplaintOptions{RerunOnUpdate: cfg.Prediction.RerunOnUpdate})

	queue := jobs.NewQueue("prediction-rerun", prediction.RerunJobHandler(settings), jobs.QueueConfig{
		Workers:       cfg.Prediction.Workers,
		BufferSize:    64,
		MaxRetries:    2,
		RetryDelay:    5 * time.Second,
		MaxRetryDelay: time.Minute,
		Coalesce:      true,
		Logger:        logr.Named("jobs"),
	})
	complaintSvc.SetQueue(queue)

	admin := service.NewAdminComplaintService(complaintSvc, users, sla, timeline, metrics, logr)
	escalations := service.NewEscalationService(complaints, sla, timeline, metrics, service.EscalationConfig{
		Interval:    cfg.SLA.CheckInterval,
		Concurrency: cfg.SLA.SweepConcurrency,
		BatchSize:   cfg.SLA.SweepBatchSize,
	}, logr)

	auth := service.NewAuthService(users, repository.NewSessionRepository(db), logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	reports := service.NewReportService(complaints, logr)

	return &app{
		handlers: handler.Handlers{
			Auth:       handler.NewAuthHandler(auth),
			Complaints: handler.NewComplaintHandler(complaintSvc),
			Admin:      handler.NewAdminComplaintHandler(admin, escalations),
			Settings:   handler.NewSettingsHandler(settings),
			Reports:    handler.NewReportHandler(reports),
			Files:      handler.NewFileHandler(attachments),
		},
		auth:        auth,
		metrics:     metrics,
		queue:       queue,
		escalations: escalations,
	}, nil
}
