// Package bootstrap builds the infrastructure shared by the server and the
// imagesync command from the loaded configuration.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/sheets/v4"

	appimagesync "github.com/nest-haus/backend/internal/application/imagesync"
	"github.com/nest-haus/backend/internal/domain/imagesync"
	"github.com/nest-haus/backend/internal/domain/pricing"
	"github.com/nest-haus/backend/internal/infrastructure/cache"
	"github.com/nest-haus/backend/internal/infrastructure/config"
	"github.com/nest-haus/backend/internal/infrastructure/google"
	"github.com/nest-haus/backend/internal/infrastructure/logger"
	"github.com/nest-haus/backend/internal/infrastructure/persistence"
	"github.com/nest-haus/backend/internal/infrastructure/storage"
	"github.com/nest-haus/backend/internal/infrastructure/telemetry"
)

// TimeFormat is used by every zap encoder the commands create.
const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

// NewLogger builds the process logger from the log section.
func NewLogger(cfg config.LogConfig) (*zap.Logger, error) {
	return logger.New(&logger.Config{
		Level:      cfg.Level,
		Format:     cfg.Format,
		Output:     cfg.Output,
		TimeFormat: TimeFormat,
	})
}

// OpenDatabase connects to postgres with the zap gorm logger and, when
// enabled, the tracing plugin.
func OpenDatabase(cfg *config.Config, log *zap.Logger) (*persistence.Database, error) {
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Database.SlowQueryThreshold))
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		return nil, err
	}
	if cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled {
		tracing := telemetry.DefaultDBTracingConfig()
		tracing.Enabled = true
		tracing.DBName = cfg.Database.DBName
		if err := telemetry.NewDBTracingPlugin(tracing, log).Register(db.DB); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to register db tracing: %w", err)
		}
	}
	return db, nil
}

// BlobStore returns the S3 store when storage is configured. ok is false
// otherwise.
func BlobStore(cfg *config.Config, log *zap.Logger) (*storage.S3BlobStore, bool, error) {
	if !cfg.Storage.Configured() {
		return nil, false, nil
	}
	store, err := storage.NewS3BlobStore(&cfg.Storage,
		storage.WithLogger(log),
		storage.WithPresignExpiration(cfg.Storage.PresignExpiration),
	)
	if err != nil {
		return nil, false, err
	}
	return store, true, nil
}

// DriveSource returns the Drive lister, or nil when the folders or the
// service account are missing.
func DriveSource(ctx context.Context, cfg config.GoogleConfig, log *zap.Logger) (imagesync.Source, error) {
	if !cfg.DriveConfigured() || !cfg.ServiceAccountConfigured() {
		return nil, nil
	}
	opts, err := google.ClientOptions(cfg, drive.DriveReadonlyScope)
	if err != nil {
		return nil, err
	}
	src, err := google.NewDriveSource(ctx, cfg.DriveMainFolderID, cfg.DriveMobileFolderID, log, opts...)
	if err != nil {
		return nil, err
	}
	return src, nil
}

// PricingSource returns the sheet reader, or nil when no spreadsheet is set.
func PricingSource(ctx context.Context, cfg config.GoogleConfig) (pricing.Source, error) {
	if cfg.PricingSpreadsheetID == "" || !cfg.ServiceAccountConfigured() {
		return nil, nil
	}
	opts, err := google.ClientOptions(cfg, sheets.SpreadsheetsReadonlyScope)
	if err != nil {
		return nil, err
	}
	src, err := google.NewSheetsSource(ctx, cfg.PricingSpreadsheetID, cfg.PricingRange, opts...)
	if err != nil {
		return nil, err
	}
	return src, nil
}

// ImageSyncDeps are the collaborators of the sync service that callers own.
type ImageSyncDeps struct {
	DB       *persistence.Database
	Redis    *redis.Client
	Recorder appimagesync.Recorder
	Logger   *zap.Logger
}

// NewImageSync wires the Drive to blob sync. Missing Drive or storage
// settings leave the service in place but unconfigured.
func NewImageSync(ctx context.Context, cfg *config.Config, deps ImageSyncDeps) (*appimagesync.Service, *storage.CatalogFileStore, error) {
	source, err := DriveSource(ctx, cfg.Google, deps.Logger)
	if err != nil {
		return nil, nil, err
	}
	blobs, ok, err := BlobStore(cfg, deps.Logger)
	if err != nil {
		return nil, nil, err
	}
	catalog := storage.NewCatalogFileStore(cfg.Sync.CatalogPath, deps.Logger)

	scfg := appimagesync.ServiceConfig{
		Source:            source,
		Catalog:           catalog,
		Runs:              persistence.NewGormSyncRunRepository(deps.DB.DB),
		Logger:            deps.Logger,
		Protected:         cfg.Sync.ProtectedPatterns,
		MaxDeleteFraction: cfg.Sync.MaxDeleteFraction,
		Lookback:          cfg.Sync.Lookback,
		LockTTL:           cfg.Sync.LockTTL,
		Configured: appimagesync.Configured{
			GoogleDrive:    cfg.Google.DriveConfigured(),
			Blob:           ok,
			ServiceAccount: cfg.Google.ServiceAccountConfigured(),
		},
	}
	if ok {
		scfg.Blobs = blobs
	}
	if deps.Redis != nil {
		scfg.Locker = cache.NewLocker(deps.Redis, deps.Logger)
	}
	if deps.Recorder != nil {
		scfg.Recorder = deps.Recorder
	}
	svc, err := appimagesync.NewService(scfg)
	if err != nil {
		return nil, nil, err
	}
	return svc, catalog, nil
}
