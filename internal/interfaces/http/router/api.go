package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nest-haus/backend/internal/infrastructure/logger"
	"github.com/nest-haus/backend/internal/interfaces/http/handler"
	"github.com/nest-haus/backend/internal/interfaces/http/middleware"
)

// Paths served outside /api/v1.
const (
	HealthPath  = "/health"
	MetricsPath = "/metrics"
)

// Config controls the engine middleware.
type Config struct {
	Production     bool
	TrustedProxies []string
	MaxBodySize    int64
	CORS           middleware.CORSConfig
	Tracing        middleware.TracingConfig
	// Metrics receives one observation per request; MetricsHandler serves
	// them on /metrics. Both may be nil.
	Metrics        middleware.HTTPObserver
	MetricsHandler http.Handler
	// RateLimiter applies per client IP to the public API; LoginLimiter to
	// admin login only. Either may be nil.
	RateLimiter       *middleware.RateLimiter
	LoginLimiter      *middleware.RateLimiter
	CronSecret        string
	TrustPlatformCron bool
}

// Handlers are the API handlers. Auth validates admin tokens for the admin
// routes and the cron endpoint.
type Handlers struct {
	Auth      middleware.Authenticator
	System    *handler.SystemHandler
	Session   *handler.SessionHandler
	Pricing   *handler.PricingHandler
	Inquiry   *handler.InquiryHandler
	Payment   *handler.PaymentHandler
	Project   *handler.ProjectHandler
	Analytics *handler.AnalyticsHandler
	Admin     *handler.AdminHandler
	Images    *handler.ImageHandler
	Sync      *handler.SyncHandler
}

// NewEngine builds the gin engine with the global middleware chain.
func NewEngine(cfg Config, log *zap.Logger) (*gin.Engine, error) {
	if cfg.Production {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, err
	}
	quiet := []string{HealthPath, MetricsPath}
	if cfg.Tracing.Skip == nil {
		cfg.Tracing.Skip = quiet
	}
	engine.Use(
		middleware.RequestID(),
		logger.Recovery(log),
		logger.GinMiddleware(log, quiet...),
		middleware.Tracing(cfg.Tracing),
		middleware.SpanEnricher(),
		middleware.HTTPMetrics(cfg.Metrics, MetricsPath),
		middleware.Secure(middleware.DefaultSecurityConfig(cfg.Production)),
		middleware.CORS(cfg.CORS),
		middleware.BodyLimit(cfg.MaxBodySize),
	)
	engine.NoRoute(func(c *gin.Context) {
		(&handler.BaseHandler{}).NotFound(c, "Route not found")
	})
	return engine, nil
}

// Register mounts every route on engine.
func Register(engine *gin.Engine, cfg Config, h Handlers, log *zap.Logger) {
	engine.GET(HealthPath, h.System.Health)
	if cfg.MetricsHandler != nil {
		engine.GET(MetricsPath, gin.WrapH(cfg.MetricsHandler))
	}

	var limit []gin.HandlerFunc
	if cfg.RateLimiter != nil {
		limit = append(limit, middleware.RateLimit(cfg.RateLimiter))
	}
	adminAuth := middleware.AdminAuth(h.Auth, log)

	system := NewDomainGroup("system", "/system").Use(limit...)
	system.GET("/ping", h.System.Ping)
	system.GET("/info", h.System.GetSystemInfo)

	sessions := NewDomainGroup("sessions", "/sessions").Use(limit...)
	sessions.POST("/track", h.Session.Track)
	sessions.POST("/sync", h.Session.Sync)
	sessions.POST("/interaction", h.Session.TrackInteraction)
	sessions.POST("/finalize", h.Session.Finalize)

	pricing := NewDomainGroup("pricing", "/pricing").Use(limit...)
	pricing.GET("/table", h.Pricing.Table)
	pricing.POST("/calculate", h.Pricing.Calculate)
	pricing.POST("/relative", h.Pricing.Relative)

	shop := NewDomainGroup("shop", "").Use(limit...)
	shop.POST("/contact", h.Inquiry.Contact)
	shop.POST("/checkout", h.Inquiry.Checkout)
	shop.POST("/analytics/performance", h.Analytics.Performance)

	payments := NewDomainGroup("payments", "/payments").Use(limit...)
	payments.GET("/config", h.Payment.Config)
	payments.POST("/create-intent", h.Payment.CreateIntent)
	payments.POST("/confirm", h.Payment.Confirm)

	// Stripe retries from a small set of addresses; it is not rate limited.
	webhooks := NewDomainGroup("webhooks", "/webhooks")
	webhooks.POST("/stripe", h.Payment.Webhook)

	images := NewDomainGroup("images", "/images").Use(limit...)
	images.GET("", h.Images.Resolve)
	images.POST("/batch", h.Images.ResolveBatch)
	images.GET("/catalog", h.Images.Catalog)

	sync := NewDomainGroup("sync", "/sync").Use(middleware.CronAuth(cfg.CronSecret, cfg.TrustPlatformCron, h.Auth))
	sync.GET("/google-drive", h.Sync.Status)
	sync.POST("/google-drive", h.Sync.Run)

	admin := NewDomainGroup("admin", "/admin")
	login := append([]gin.HandlerFunc{}, limit...)
	if cfg.LoginLimiter != nil {
		login = append(login, middleware.RateLimit(cfg.LoginLimiter))
	}
	admin.POST("/login", append(login, h.Admin.Login)...)
	admin.POST("/logout", h.Admin.Logout)

	board := admin.Group("admin-board", "").Use(adminAuth)
	board.GET("/me", h.Admin.Me)
	board.GET("/sessions/live", h.Session.LiveStats)
	board.POST("/pricing/sync", h.Pricing.Sync)
	board.GET("/pricing/sync", h.Pricing.LastSync)
	board.GET("/inquiries", h.Inquiry.List)
	board.GET("/inquiries/:id", h.Inquiry.Get)
	board.PATCH("/inquiries/:id", h.Inquiry.Update)
	board.GET("/analytics/overview", h.Analytics.Overview)
	board.GET("/analytics/popular", h.Analytics.Popular)
	board.GET("/analytics/daily", h.Analytics.Daily)
	board.GET("/sync/google-drive", h.Sync.Status)

	tasks := board.Group("projects", "/projects")
	tasks.GET("/tasks", h.Project.List)
	tasks.POST("/tasks", h.Project.Create)
	tasks.GET("/tasks/:taskId", h.Project.Get)
	tasks.PUT("/tasks/:taskId", h.Project.Update)
	tasks.DELETE("/tasks/:taskId", h.Project.Delete)
	tasks.POST("/reorganize", h.Project.Reorganize)

	NewRouter(engine).
		Register(system, sessions, pricing, shop, payments, webhooks, images, sync, admin).
		Setup()
}
