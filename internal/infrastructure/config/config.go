package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Admin     AdminConfig
	Cookie    CookieConfig
	Log       LogConfig
	HTTP      HTTPConfig
	Storage   StorageConfig
	Google    GoogleConfig
	Sync      SyncConfig
	Pricing   PricingConfig
	Stripe    StripeConfig
	Email     EmailConfig
	Geo       GeoConfig
	Scheduler SchedulerConfig
	Telemetry TelemetryConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name    string
	Env     string
	Port    string
	BaseURL string
}

// IsProduction reports whether the app runs in production mode
func (a AppConfig) IsProduction() bool {
	return a.Env == "production"
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
	// SlowQueryThreshold is the duration above which queries are logged as slow
	SlowQueryThreshold time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	TLS      bool
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// JWTConfig holds settings for admin session tokens
type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

// AdminConfig holds back-office credentials.
// PasswordHash (bcrypt) wins over Password when both are set.
type AdminConfig struct {
	Password     string
	PasswordHash string
	CronSecret   string
	// TrustPlatformCron accepts the x-vercel-cron header and user agent
	// as cron authentication. Only safe behind Vercel's edge.
	TrustPlatformCron bool
}

// CookieConfig holds cookie settings for session and admin cookies
type CookieConfig struct {
	Domain   string
	Path     string
	Secure   bool
	SameSite string // strict, lax, none
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	MaxBodySize       int64
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
	RateLimitBurst    int
	CORSAllowOrigins  []string
	CORSAllowMethods  []string
	CORSAllowHeaders  []string
	TrustedProxies    []string
	MetricsEnabled    bool
}

// StorageConfig holds blob storage (S3-compatible) settings
type StorageConfig struct {
	Endpoint          string
	Region            string
	Bucket            string
	AccessKeyID       string
	SecretAccessKey   string
	UsePathStyle      bool
	PublicBaseURL     string
	PresignExpiration time.Duration
}

// Configured reports whether enough settings exist to talk to blob storage
func (s StorageConfig) Configured() bool {
	return s.Bucket != "" && s.AccessKeyID != "" && s.SecretAccessKey != ""
}

// GoogleConfig holds service account and resource ids for Drive and Sheets
type GoogleConfig struct {
	ServiceAccountKeyFile string
	ServiceAccountEmail   string
	ServiceAccountKey     string
	DriveMainFolderID     string
	DriveMobileFolderID   string
	PricingSpreadsheetID  string
	PricingRange          string
}

// ServiceAccountConfigured reports whether any form of service account credentials is present
func (g GoogleConfig) ServiceAccountConfigured() bool {
	return g.ServiceAccountKeyFile != "" || (g.ServiceAccountEmail != "" && g.ServiceAccountKey != "")
}

// DriveConfigured reports whether both Drive folders are set
func (g GoogleConfig) DriveConfigured() bool {
	return g.DriveMainFolderID != "" && g.DriveMobileFolderID != ""
}

// SyncConfig holds Drive to blob synchronization settings
type SyncConfig struct {
	MaxDeleteFraction float64
	ProtectedPatterns []string
	CatalogPath       string
	Lookback          time.Duration
	LockTTL           time.Duration
	DailyHour         int
	DailyMinute       int
	Enabled           bool
}

// PricingConfig holds price table loading settings
type PricingConfig struct {
	CacheTTL         time.Duration
	GrundstueckPrice int64
}

// StripeConfig holds Stripe API credentials
type StripeConfig struct {
	SecretKey       string
	PublishableKey  string
	WebhookSecret   string
	DefaultCurrency string
}

// EmailConfig holds transactional mail settings
type EmailConfig struct {
	Enabled    bool
	APIKey     string
	From       string
	AdminEmail string
	ReplyTo    string
}

// GeoConfig holds IP geolocation settings
type GeoConfig struct {
	Enabled  bool
	Endpoint string
	Timeout  time.Duration
	CacheTTL time.Duration
}

// SchedulerConfig holds background job configuration
type SchedulerConfig struct {
	Enabled           bool
	MaxConcurrentJobs int
	JobTimeout        time.Duration
	RetryAttempts     int
	RetryDelay        time.Duration
	AnalyticsHour     int
	CheckInterval     time.Duration
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string
	SamplingRatio     float64
	ServiceName       string
	Insecure          bool
	DBTraceEnabled    bool
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with NEST_ prefix (e.g., NEST_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/nest-haus")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("NEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name:    v.GetString("app.name"),
			Env:     v.GetString("app.env"),
			Port:    v.GetString("app.port"),
			BaseURL: v.GetString("app.base_url"),
		},
		Database: DatabaseConfig{
			Host:               v.GetString("database.host"),
			Port:               v.GetInt("database.port"),
			User:               v.GetString("database.user"),
			Password:           v.GetString("database.password"),
			DBName:             v.GetString("database.dbname"),
			SSLMode:            v.GetString("database.sslmode"),
			MaxOpenConns:       v.GetInt("database.max_open_conns"),
			MaxIdleConns:       v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime:    v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime:    v.GetInt("database.conn_max_idle_time"),
			SlowQueryThreshold: v.GetDuration("database.slow_query_threshold"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			TLS:      v.GetBool("redis.tls"),
		},
		JWT: JWTConfig{
			Secret:     v.GetString("jwt.secret"),
			Expiration: v.GetDuration("jwt.expiration"),
			Issuer:     v.GetString("jwt.issuer"),
		},
		Admin: AdminConfig{
			Password:          v.GetString("admin.password"),
			PasswordHash:      v.GetString("admin.password_hash"),
			CronSecret:        v.GetString("admin.cron_secret"),
			TrustPlatformCron: v.GetBool("admin.trust_platform_cron"),
		},
		Cookie: CookieConfig{
			Domain:   v.GetString("cookie.domain"),
			Path:     v.GetString("cookie.path"),
			Secure:   v.GetBool("cookie.secure"),
			SameSite: v.GetString("cookie.same_site"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:       v.GetDuration("http.read_timeout"),
			WriteTimeout:      v.GetDuration("http.write_timeout"),
			IdleTimeout:       v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:    v.GetInt("http.max_header_bytes"),
			MaxBodySize:       v.GetInt64("http.max_body_size"),
			RateLimitEnabled:  v.GetBool("http.rate_limit_enabled"),
			RateLimitRequests: v.GetInt("http.rate_limit_requests"),
			RateLimitWindow:   v.GetDuration("http.rate_limit_window"),
			RateLimitBurst:    v.GetInt("http.rate_limit_burst"),
			CORSAllowOrigins:  v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods:  v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders:  v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:    v.GetStringSlice("http.trusted_proxies"),
			MetricsEnabled:    v.GetBool("http.metrics_enabled"),
		},
		Storage: StorageConfig{
			Endpoint:          v.GetString("storage.endpoint"),
			Region:            v.GetString("storage.region"),
			Bucket:            v.GetString("storage.bucket"),
			AccessKeyID:       v.GetString("storage.access_key_id"),
			SecretAccessKey:   v.GetString("storage.secret_access_key"),
			UsePathStyle:      v.GetBool("storage.use_path_style"),
			PublicBaseURL:     v.GetString("storage.public_base_url"),
			PresignExpiration: v.GetDuration("storage.presign_expiration"),
		},
		Google: GoogleConfig{
			ServiceAccountKeyFile: v.GetString("google.service_account_key_file"),
			ServiceAccountEmail:   v.GetString("google.service_account_email"),
			ServiceAccountKey:     v.GetString("google.service_account_key"),
			DriveMainFolderID:     v.GetString("google.drive_main_folder_id"),
			DriveMobileFolderID:   v.GetString("google.drive_mobile_folder_id"),
			PricingSpreadsheetID:  v.GetString("google.pricing_spreadsheet_id"),
			PricingRange:          v.GetString("google.pricing_range"),
		},
		Sync: SyncConfig{
			MaxDeleteFraction: v.GetFloat64("sync.max_delete_fraction"),
			ProtectedPatterns: v.GetStringSlice("sync.protected_patterns"),
			CatalogPath:       v.GetString("sync.catalog_path"),
			Lookback:          v.GetDuration("sync.lookback"),
			LockTTL:           v.GetDuration("sync.lock_ttl"),
			DailyHour:         v.GetInt("sync.daily_hour"),
			DailyMinute:       v.GetInt("sync.daily_minute"),
			Enabled:           v.GetBool("sync.enabled"),
		},
		Pricing: PricingConfig{
			CacheTTL:         v.GetDuration("pricing.cache_ttl"),
			GrundstueckPrice: v.GetInt64("pricing.grundstueckscheck_price"),
		},
		Stripe: StripeConfig{
			SecretKey:       v.GetString("stripe.secret_key"),
			PublishableKey:  v.GetString("stripe.publishable_key"),
			WebhookSecret:   v.GetString("stripe.webhook_secret"),
			DefaultCurrency: v.GetString("stripe.default_currency"),
		},
		Email: EmailConfig{
			Enabled:    v.GetBool("email.enabled"),
			APIKey:     v.GetString("email.api_key"),
			From:       v.GetString("email.from"),
			AdminEmail: v.GetString("email.admin_email"),
			ReplyTo:    v.GetString("email.reply_to"),
		},
		Geo: GeoConfig{
			Enabled:  v.GetBool("geo.enabled"),
			Endpoint: v.GetString("geo.endpoint"),
			Timeout:  v.GetDuration("geo.timeout"),
			CacheTTL: v.GetDuration("geo.cache_ttl"),
		},
		Scheduler: SchedulerConfig{
			Enabled:           v.GetBool("scheduler.enabled"),
			MaxConcurrentJobs: v.GetInt("scheduler.max_concurrent_jobs"),
			JobTimeout:        v.GetDuration("scheduler.job_timeout"),
			RetryAttempts:     v.GetInt("scheduler.retry_attempts"),
			RetryDelay:        v.GetDuration("scheduler.retry_delay"),
			AnalyticsHour:     v.GetInt("scheduler.analytics_hour"),
			CheckInterval:     v.GetDuration("scheduler.check_interval"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
		},
	}

	if !v.IsSet("admin.trust_platform_cron") {
		cfg.Admin.TrustPlatformCron = true
	}
	if !v.IsSet("sync.daily_hour") {
		cfg.Sync.DailyHour = 3
	}
	if !v.IsSet("scheduler.analytics_hour") {
		cfg.Scheduler.AnalyticsHour = 1
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "nest-haus-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "nest_haus"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Database.SlowQueryThreshold == 0 {
		cfg.Database.SlowQueryThreshold = 200 * time.Millisecond
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.JWT.Expiration == 0 {
		cfg.JWT.Expiration = 8 * time.Hour
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "nest-haus-backend"
	}
	if cfg.Cookie.Path == "" {
		cfg.Cookie.Path = "/"
	}
	if cfg.Cookie.SameSite == "" {
		cfg.Cookie.SameSite = "lax"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 60 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 2 << 20 // 2MB
	}
	if cfg.HTTP.RateLimitRequests == 0 {
		cfg.HTTP.RateLimitRequests = 120
	}
	if cfg.HTTP.RateLimitWindow == 0 {
		cfg.HTTP.RateLimitWindow = time.Minute
	}
	if cfg.HTTP.RateLimitBurst == 0 {
		cfg.HTTP.RateLimitBurst = 20
	}
	// Empty CORS origins reject cross-origin requests until configured.
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "Authorization", "X-Request-ID", "X-Session-ID"}
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}
	if cfg.Storage.PresignExpiration == 0 {
		cfg.Storage.PresignExpiration = 15 * time.Minute
	}
	if cfg.Google.PricingRange == "" {
		cfg.Google.PricingRange = "Preistabelle_Verkauf!A1:N100"
	}
	if cfg.Sync.MaxDeleteFraction == 0 {
		cfg.Sync.MaxDeleteFraction = 0.10
	}
	if len(cfg.Sync.ProtectedPatterns) == 0 {
		cfg.Sync.ProtectedPatterns = []string{"0-*", "*logo*", "*favicon*", "*placeholder*"}
	}
	if cfg.Sync.CatalogPath == "" {
		cfg.Sync.CatalogPath = "data/images.json"
	}
	if cfg.Sync.Lookback == 0 {
		cfg.Sync.Lookback = 24 * time.Hour
	}
	if cfg.Sync.LockTTL == 0 {
		cfg.Sync.LockTTL = 15 * time.Minute
	}
	if cfg.Pricing.CacheTTL == 0 {
		cfg.Pricing.CacheTTL = 5 * time.Minute
	}
	if cfg.Pricing.GrundstueckPrice == 0 {
		cfg.Pricing.GrundstueckPrice = 1500
	}
	if cfg.Stripe.DefaultCurrency == "" {
		cfg.Stripe.DefaultCurrency = "eur"
	}
	if cfg.Email.From == "" {
		cfg.Email.From = "NEST-Haus <noreply@nest-haus.at>"
	}
	if cfg.Geo.Endpoint == "" {
		cfg.Geo.Endpoint = "https://ipapi.co"
	}
	if cfg.Geo.Timeout == 0 {
		cfg.Geo.Timeout = 2 * time.Second
	}
	if cfg.Geo.CacheTTL == 0 {
		cfg.Geo.CacheTTL = 30 * 24 * time.Hour
	}
	if cfg.Scheduler.MaxConcurrentJobs == 0 {
		cfg.Scheduler.MaxConcurrentJobs = 2
	}
	if cfg.Scheduler.JobTimeout == 0 {
		cfg.Scheduler.JobTimeout = 30 * time.Minute
	}
	if cfg.Scheduler.RetryAttempts == 0 {
		cfg.Scheduler.RetryAttempts = 2
	}
	if cfg.Scheduler.RetryDelay == 0 {
		cfg.Scheduler.RetryDelay = 5 * time.Minute
	}
	if cfg.Scheduler.CheckInterval == 0 {
		cfg.Scheduler.CheckInterval = time.Minute
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "nest-haus-backend"
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.Sync.MaxDeleteFraction < 0 || c.Sync.MaxDeleteFraction > 1 {
		return fmt.Errorf("sync.max_delete_fraction must be between 0.0 and 1.0, got %f", c.Sync.MaxDeleteFraction)
	}
	if c.Sync.DailyHour < 0 || c.Sync.DailyHour > 23 {
		return fmt.Errorf("sync.daily_hour must be between 0 and 23, got %d", c.Sync.DailyHour)
	}
	if c.Scheduler.AnalyticsHour < 0 || c.Scheduler.AnalyticsHour > 23 {
		return fmt.Errorf("scheduler.analytics_hour must be between 0 and 23, got %d", c.Scheduler.AnalyticsHour)
	}

	if c.App.IsProduction() {
		if c.JWT.Secret == "" {
			return fmt.Errorf("jwt.secret is required in production")
		}
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("jwt.secret must be at least 32 characters in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Admin.Password == "" && c.Admin.PasswordHash == "" {
			return fmt.Errorf("admin.password or admin.password_hash is required in production")
		}
		if c.Stripe.SecretKey == "" || c.Stripe.WebhookSecret == "" {
			return fmt.Errorf("stripe.secret_key and stripe.webhook_secret are required in production")
		}
		if !c.Cookie.Secure {
			return fmt.Errorf("cookie.secure must be true in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
	}

	if c.Cookie.SameSite == "none" && !c.Cookie.Secure {
		return fmt.Errorf("cookie.same_site=none requires cookie.secure=true")
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
