package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	appadmin "github.com/nest-haus/backend/internal/application/admin"
	appanalytics "github.com/nest-haus/backend/internal/application/analytics"
	appimages "github.com/nest-haus/backend/internal/application/images"
	appimagesync "github.com/nest-haus/backend/internal/application/imagesync"
	appinquiry "github.com/nest-haus/backend/internal/application/inquiry"
	apppayment "github.com/nest-haus/backend/internal/application/payment"
	apppricing "github.com/nest-haus/backend/internal/application/pricing"
	appproject "github.com/nest-haus/backend/internal/application/project"
	appsession "github.com/nest-haus/backend/internal/application/session"
	"github.com/nest-haus/backend/internal/bootstrap"
	"github.com/nest-haus/backend/internal/domain/imagesync"
	"github.com/nest-haus/backend/internal/domain/payment"
	"github.com/nest-haus/backend/internal/domain/session"
	"github.com/nest-haus/backend/internal/infrastructure/auth"
	"github.com/nest-haus/backend/internal/infrastructure/billing"
	"github.com/nest-haus/backend/internal/infrastructure/cache"
	"github.com/nest-haus/backend/internal/infrastructure/config"
	"github.com/nest-haus/backend/internal/infrastructure/email"
	"github.com/nest-haus/backend/internal/infrastructure/geo"
	"github.com/nest-haus/backend/internal/infrastructure/persistence"
	"github.com/nest-haus/backend/internal/infrastructure/scheduler"
	"github.com/nest-haus/backend/internal/infrastructure/storage"
	"github.com/nest-haus/backend/internal/infrastructure/telemetry"
	"github.com/nest-haus/backend/internal/interfaces/http/handler"
	"github.com/nest-haus/backend/internal/interfaces/http/middleware"
	"github.com/nest-haus/backend/internal/interfaces/http/router"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := bootstrap.NewLogger(cfg.Log)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting NEST-Haus backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.NewTracerProvider(ctx, telemetry.NewConfig(cfg.Telemetry, version), log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()
	metrics := telemetry.NewMetrics()

	db, err := bootstrap.OpenDatabase(cfg, log)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Live sessions, locks and the token blacklist have no fallback.
	redisClient, err := cache.NewRedisClient(cfg.Redis)
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			log.Error("Error closing Redis", zap.Error(err))
		}
	}()
	log.Info("Redis connected successfully", zap.String("addr", cfg.Redis.Addr()))

	memory := cache.NewMemoryStore(time.Minute)
	defer func() { _ = memory.Close() }()
	redisStore := cache.NewRedisStore(redisClient)
	kv := cache.NewFallbackStore(redisStore, memory, log)

	// Repositories
	sessionRepo := persistence.NewGormSessionRepository(db.DB)
	inquiryRepo := persistence.NewGormInquiryRepository(db.DB)
	pricingRepo := persistence.NewGormPricingRepository(db.DB)
	projectRepo := persistence.NewGormProjectRepository(db.DB)
	analyticsRepo := persistence.NewGormAnalyticsRepository(db.DB)

	mailer, err := newMailer(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize mailer", zap.Error(err))
	}

	// Application services
	var locator session.Locator
	if cfg.Geo.Enabled {
		locator = geo.NewClient(cfg.Geo, kv, log.Named("geo"))
	}
	tracker := appsession.NewTracker(appsession.TrackerConfig{
		Live:     cache.NewLiveSessionStore(redisClient),
		Repo:     sessionRepo,
		Locator:  locator,
		Recorder: metrics,
		Logger:   log,
	})

	inquiryService := appinquiry.NewService(appinquiry.ServiceConfig{
		Repo:     inquiryRepo,
		Notifier: mailer,
		Tracker:  tracker,
		Recorder: metrics,
		Logger:   log,
	})

	pricingSource, err := bootstrap.PricingSource(ctx, cfg.Google)
	if err != nil {
		log.Fatal("Failed to initialize pricing sheet", zap.Error(err))
	}
	pricingService := apppricing.NewService(apppricing.ServiceConfig{
		Source:            pricingSource,
		Repo:              pricingRepo,
		Cache:             kv,
		CacheTTL:          cfg.Pricing.CacheTTL,
		Grundstueckscheck: decimal.NewFromInt(cfg.Pricing.GrundstueckPrice),
		Logger:            log,
	})

	gateway, err := newGateway(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize Stripe", zap.Error(err))
	}
	paymentService := apppayment.NewService(apppayment.ServiceConfig{
		Gateway:     gateway,
		Inquiries:   inquiryRepo,
		Idempotency: cache.NewIdempotencyStore(redisStore, "stripe:event:"),
		Notifier:    mailer,
		Recorder:    metrics,
		Logger:      log,
	})

	syncService, catalog, err := bootstrap.NewImageSync(ctx, cfg, bootstrap.ImageSyncDeps{
		DB:       db,
		Redis:    redisClient,
		Recorder: metrics,
		Logger:   log,
	})
	if err != nil {
		log.Fatal("Failed to initialize image sync", zap.Error(err))
	}

	mirror, err := newMirror(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize blob storage", zap.Error(err))
	}
	imageService := appimages.NewService(mirror, kv, catalog, log)

	analyticsService := appanalytics.NewService(analyticsRepo, inquiryRepo, log)
	projectService := appproject.NewService(projectRepo, log)

	jwtService := auth.NewJWTService(cfg.JWT)
	blacklist := auth.NewTokenBlacklist(redisStore)
	adminService := appadmin.NewAuthService(auth.NewPasswordVerifier(cfg.Admin), jwtService, blacklist, log)

	// Background jobs
	sched, trigger, err := startScheduler(ctx, cfg, jobs{
		sync:      syncService,
		pricing:   pricingService,
		analytics: analyticsService,
		inquiries: inquiryService,
	}, metrics, log)
	if err != nil {
		log.Fatal("Failed to start scheduler", zap.Error(err))
	}

	// HTTP
	cookies := handler.NewCookies(cfg.Cookie)
	handlers := router.Handlers{
		Auth: adminService,
		System: handler.NewSystemHandler(cfg.App.Name, version, map[string]handler.HealthCheck{
			"database": db.Ping,
			"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		}),
		Session:   handler.NewSessionHandler(tracker, cookies),
		Pricing:   handler.NewPricingHandler(pricingService),
		Inquiry:   handler.NewInquiryHandler(inquiryService),
		Payment:   handler.NewPaymentHandler(paymentService),
		Project:   handler.NewProjectHandler(projectService),
		Analytics: handler.NewAnalyticsHandler(analyticsService),
		Admin:     handler.NewAdminHandler(adminService, cookies),
		Images:    handler.NewImageHandler(imageService),
		Sync:      handler.NewSyncHandler(syncService),
	}

	routerCfg := router.Config{
		Production:     cfg.App.IsProduction(),
		TrustedProxies: cfg.HTTP.TrustedProxies,
		MaxBodySize:    cfg.HTTP.MaxBodySize,
		CORS: middleware.CORSConfig{
			AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
			AllowMethods:     cfg.HTTP.CORSAllowMethods,
			AllowHeaders:     cfg.HTTP.CORSAllowHeaders,
			ExposeHeaders:    middleware.DefaultCORSConfig().ExposeHeaders,
			AllowCredentials: true,
			MaxAge:           middleware.DefaultCORSConfig().MaxAge,
		},
		Tracing: middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     cfg.Telemetry.Enabled,
		},
		CronSecret:        cfg.Admin.CronSecret,
		TrustPlatformCron: cfg.Admin.TrustPlatformCron,
		LoginLimiter:      middleware.NewRateLimiter(5, time.Minute, 5),
	}
	if cfg.HTTP.MetricsEnabled {
		routerCfg.Metrics = metrics
		routerCfg.MetricsHandler = metrics.Handler()
	}
	if cfg.HTTP.RateLimitEnabled {
		routerCfg.RateLimiter = middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow, cfg.HTTP.RateLimitBurst)
		go routerCfg.RateLimiter.RunSweeper(time.Minute, ctx.Done())
	}
	go routerCfg.LoginLimiter.RunSweeper(time.Minute, ctx.Done())

	engine, err := router.NewEngine(routerCfg, log)
	if err != nil {
		log.Fatal("Failed to configure HTTP engine", zap.Error(err))
	}
	router.Register(engine, routerCfg, handlers, log)

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if trigger != nil {
		if err := trigger.Stop(shutdownCtx); err != nil {
			log.Error("Error stopping cron trigger", zap.Error(err))
		}
	}
	if sched != nil {
		if err := sched.Stop(shutdownCtx); err != nil {
			log.Error("Error stopping scheduler", zap.Error(err))
		}
	}

	log.Info("Server exited gracefully")
}

// newMailer returns a mailer that sends through Resend when mail is enabled
// and only logs otherwise.
func newMailer(cfg *config.Config, log *zap.Logger) (*email.Mailer, error) {
	var sender email.Sender
	if cfg.Email.Enabled && cfg.Email.APIKey != "" {
		sender = email.NewResendSender(cfg.Email.APIKey)
	}
	return email.NewMailer(cfg.Email, cfg.App.BaseURL, sender, log.Named("mail"))
}

// newGateway returns nil when no Stripe key is configured, which disables
// the payment endpoints.
func newGateway(cfg *config.Config, log *zap.Logger) (payment.Gateway, error) {
	if cfg.Stripe.SecretKey == "" {
		log.Warn("Stripe is not configured, payments are disabled")
		return nil, nil
	}
	gw, err := billing.NewStripeGateway(billing.NewStripeConfig(cfg.Stripe), nil, log.Named("stripe"))
	if err != nil {
		return nil, err
	}
	return gw, nil
}

// newMirror resolves images against blob storage, or against an empty
// in-memory store in local runs without storage credentials.
func newMirror(cfg *config.Config, log *zap.Logger) (appimages.Mirror, error) {
	store, ok, err := bootstrap.BlobStore(cfg, log)
	if err != nil {
		return nil, err
	}
	if !ok {
		log.Warn("Blob storage is not configured, image lookups resolve to placeholders")
		return storage.NewMemoryBlobStore(), nil
	}
	return store, nil
}

type jobs struct {
	sync      *appimagesync.Service
	pricing   *apppricing.Service
	analytics *appanalytics.Service
	inquiries *appinquiry.Service
}

func (j jobs) registry() *scheduler.Registry {
	r := scheduler.NewRegistry()
	r.RegisterFunc(scheduler.JobImageSync, func(ctx context.Context, _ *scheduler.Job) error {
		_, err := j.sync.Run(ctx, imagesync.Options{Trigger: imagesync.TriggerScheduler})
		if errors.Is(err, imagesync.ErrSyncInProgress) || errors.Is(err, appimagesync.ErrNotConfigured) {
			return nil
		}
		return err
	})
	r.RegisterFunc(scheduler.JobPricingSync, func(ctx context.Context, _ *scheduler.Job) error {
		_, err := j.pricing.Sync(ctx, "scheduler")
		if errors.Is(err, apppricing.ErrNotConfigured) {
			return nil
		}
		return err
	})
	r.RegisterFunc(scheduler.JobDailyAnalytics, func(ctx context.Context, job *scheduler.Job) error {
		_, err := j.analytics.AggregateDaily(ctx, job.ScheduledFor.AddDate(0, 0, -1))
		return err
	})
	r.RegisterFunc(scheduler.JobAppointmentExpiry, func(ctx context.Context, _ *scheduler.Job) error {
		_, err := j.inquiries.ExpireAppointments(ctx)
		return err
	})
	return r
}

// startScheduler starts the worker pool and the cron trigger feeding it.
// Both are nil when the scheduler is disabled.
func startScheduler(ctx context.Context, cfg *config.Config, j jobs, metrics *telemetry.Metrics, log *zap.Logger) (*scheduler.Scheduler, *scheduler.CronTrigger, error) {
	if !cfg.Scheduler.Enabled {
		log.Info("Scheduler disabled")
		return nil, nil, nil
	}
	sched := scheduler.NewScheduler(scheduler.SchedulerConfig{
		Enabled:           true,
		MaxConcurrentJobs: cfg.Scheduler.MaxConcurrentJobs,
		JobTimeout:        cfg.Scheduler.JobTimeout,
		RetryAttempts:     cfg.Scheduler.RetryAttempts,
		RetryDelay:        cfg.Scheduler.RetryDelay,
	}, j.registry(), log.Named("scheduler"))
	sched.SetObserver(func(job *scheduler.Job, d time.Duration) {
		metrics.ObserveJob(string(job.Name), string(job.Status), d)
	})

	schedules := []scheduler.Schedule{
		scheduler.Daily(scheduler.JobDailyAnalytics, cfg.Scheduler.AnalyticsHour, 0),
		scheduler.Daily(scheduler.JobPricingSync, cfg.Scheduler.AnalyticsHour, 30),
		scheduler.Every(scheduler.JobAppointmentExpiry, time.Hour),
	}
	if cfg.Sync.Enabled {
		schedules = append(schedules, scheduler.Daily(scheduler.JobImageSync, cfg.Sync.DailyHour, cfg.Sync.DailyMinute))
	}

	if err := sched.Start(ctx); err != nil {
		return nil, nil, err
	}
	trigger, err := scheduler.NewCronTrigger(scheduler.CronTriggerConfig{
		CheckInterval: cfg.Scheduler.CheckInterval,
		Location:      time.Local,
		MaxRetries:    sched.RetryAttempts(),
		Schedules:     schedules,
	}, sched, log.Named("cron"))
	if err != nil {
		_ = sched.Stop(context.Background())
		return nil, nil, err
	}
	if err := trigger.Start(ctx); err != nil {
		_ = sched.Stop(context.Background())
		return nil, nil, err
	}
	log.Info("Scheduler started",
		zap.Int("schedules", len(schedules)),
		zap.Int("workers", cfg.Scheduler.MaxConcurrentJobs),
	)
	return sched, trigger, nil
}
