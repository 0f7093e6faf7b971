// Package imagesync orchestrates Drive to blob storage image sync runs.
package imagesync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nest-haus/backend/internal/domain/imagesync"
	"github.com/nest-haus/backend/internal/infrastructure/logger"
	"github.com/nest-haus/backend/internal/infrastructure/telemetry"
)

// LockKey is the redis key guarding against concurrent runs.
const LockKey = "imagesync:lock"

// MirrorPrefix is the blob prefix holding synced images.
const MirrorPrefix = "images/"

// Recorder receives a summary of every finished run.
type Recorder interface {
	ObserveSyncRun(o telemetry.SyncRunObservation)
}

// Configured describes which integrations have credentials.
type Configured struct {
	GoogleDrive    bool `json:"googleDriveConfigured"`
	Blob           bool `json:"blobConfigured"`
	ServiceAccount bool `json:"serviceAccountConfigured"`
}

// ServiceConfig contains configuration for Service
type ServiceConfig struct {
	Source    imagesync.Source
	Blobs     imagesync.BlobStore
	Catalog   imagesync.CatalogStore
	Runs      imagesync.RunRepository
	Locker    imagesync.Locker
	Recorder  Recorder
	Logger    *zap.Logger
	Protected []string

	MaxDeleteFraction float64
	Lookback          time.Duration
	LockTTL           time.Duration
	Configured        Configured
}

// Service runs image syncs.
type Service struct {
	source     imagesync.Source
	blobs      imagesync.BlobStore
	catalog    imagesync.CatalogStore
	runs       imagesync.RunRepository
	locker     imagesync.Locker
	recorder   Recorder
	logger     *zap.Logger
	protected  *imagesync.ProtectionList
	fraction   float64
	lookback   time.Duration
	lockTTL    time.Duration
	configured Configured
	executor   *imagesync.Executor
	now        func() time.Time
}

// NewService validates cfg and builds a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	protected, err := imagesync.NewProtectionList(cfg.Protected)
	if err != nil {
		return nil, err
	}
	if cfg.MaxDeleteFraction < 0 || cfg.MaxDeleteFraction > 1 {
		return nil, fmt.Errorf("max delete fraction must be within [0, 1], got %v", cfg.MaxDeleteFraction)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	lockTTL := cfg.LockTTL
	if lockTTL <= 0 {
		lockTTL = 15 * time.Minute
	}
	s := &Service{
		source:     cfg.Source,
		blobs:      cfg.Blobs,
		catalog:    cfg.Catalog,
		runs:       cfg.Runs,
		locker:     cfg.Locker,
		recorder:   cfg.Recorder,
		logger:     logger.Named("imagesync"),
		protected:  protected,
		fraction:   cfg.MaxDeleteFraction,
		lookback:   cfg.Lookback,
		lockTTL:    lockTTL,
		configured: cfg.Configured,
		now:        time.Now,
	}
	if cfg.Source != nil && cfg.Blobs != nil {
		s.executor = imagesync.NewExecutor(cfg.Source, cfg.Blobs,
			imagesync.WithClock(func() time.Time { return s.now() }))
	}
	return s, nil
}

// ErrNotConfigured is returned when Drive or blob storage is missing.
var ErrNotConfigured = errors.New("imagesync: drive or blob storage not configured")

// Run performs one sync. A result is returned for every run that got past
// the lock, including aborted and skipped ones; err is set when the run
// aborted or could not list its inputs.
func (s *Service) Run(ctx context.Context, opts imagesync.Options) (*imagesync.Result, error) {
	if s.executor == nil {
		return nil, ErrNotConfigured
	}
	if opts.Trigger == "" {
		opts.Trigger = imagesync.TriggerAdmin
	}

	if s.locker != nil {
		release, ok, err := s.locker.Acquire(ctx, LockKey, s.lockTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire sync lock: %w", err)
		}
		if !ok {
			return nil, imagesync.ErrSyncInProgress
		}
		defer release()
	} else {
		s.logger.Warn("No sync lock configured, concurrent runs are not prevented")
	}

	var res *imagesync.Result
	err := telemetry.Trace(ctx, "imagesync", "run", func(ctx context.Context) error {
		var runErr error
		res, runErr = s.run(ctx, opts)
		return runErr
	}, telemetry.WithAttribute(telemetry.SpanAttrTrigger, string(opts.Trigger)),
		telemetry.WithAttribute(telemetry.SpanAttrDryRun, opts.DryRun))
	return res, err
}

func (s *Service) run(ctx context.Context, opts imagesync.Options) (*imagesync.Result, error) {
	started := s.now()
	res := &imagesync.Result{RunID: uuid.New(), DryRun: opts.DryRun}
	ctx = logger.WithSyncRunID(ctx, res.RunID.String())
	log := s.logger.With(
		zap.String("run_id", res.RunID.String()),
		zap.String("trigger", string(opts.Trigger)),
		zap.Bool("dry_run", opts.DryRun),
		zap.Bool("full_sync", opts.FullSync),
	)
	log.Info("Image sync started", zap.Int("days", opts.Days))

	var since time.Time
	if !opts.FullSync {
		since = started.Add(-opts.Lookback(s.lookback))
	}

	source, objects, err := s.list(ctx, since)
	if err != nil {
		res.Errors = append(res.Errors, imagesync.OpError{Op: "list", Error: err.Error()})
		res.Status = imagesync.RunFailed
		s.finish(ctx, log, res, opts, started)
		return res, err
	}

	res.Processed = len(source)
	res.RecentChangesFound = imagesync.CountRecent(source)
	if len(source) == 0 {
		s.abort(res, imagesync.ErrEmptySource)
		s.finish(ctx, log, res, opts, started)
		return res, imagesync.ErrEmptySource
	}
	if !opts.FullSync && res.RecentChangesFound == 0 {
		res.Status = imagesync.RunSkipped
		log.Info("No recent Drive changes, skipping sync")
		s.finish(ctx, log, res, opts, started)
		return res, nil
	}

	mirror := imagesync.NewMirrorListing(objects)
	plan, err := imagesync.BuildPlan(source, mirror, imagesync.Policy{
		MaxDeleteFraction: s.fraction,
		Protected:         s.protected,
	})
	if err != nil {
		s.abort(res, err)
		s.finish(ctx, log, res, opts, started)
		return res, err
	}
	res.Plan = plan
	res.Protected = len(plan.Protected)
	res.Unchanged = plan.Unchanged
	telemetry.Event(ctx, "plan_built",
		"uploads", len(plan.Uploads),
		"updates", len(plan.Updates),
		"deletes", len(plan.Deletes),
		"protected", len(plan.Protected),
	)

	LogPreview(log, plan)

	if err := plan.Validate(); err != nil {
		s.abort(res, err)
		s.finish(ctx, log, res, opts, started)
		return res, err
	}

	if opts.DryRun {
		res.Uploaded = len(plan.Uploads)
		res.Updated = len(plan.Updates)
		res.Deleted = len(plan.Deletes) + len(plan.Updates)
		res.Status = imagesync.RunSuccess
		s.finish(ctx, log, res, opts, started)
		return res, nil
	}

	applied, err := s.executor.Execute(ctx, plan)
	if applied != nil {
		res.Uploaded = len(applied.Uploaded)
		res.Updated = len(applied.Updated)
		res.Deleted = applied.Removed()
		res.Errors = append(res.Errors, applied.Errors...)
	}
	if err != nil {
		res.Errors = append(res.Errors, imagesync.OpError{Op: "execute", Error: err.Error()})
	}

	if applied != nil && res.Uploaded+res.Updated > 0 {
		merged, catErr := s.updateCatalog(ctx, afterExecution(mirror.Objects, applied))
		if catErr != nil {
			res.Errors = append(res.Errors, imagesync.OpError{Op: "catalog", Error: catErr.Error()})
		} else {
			res.ImagesUpdated = merged.Changed()
			res.CatalogAdded = len(merged.Added)
			res.CatalogUpdated = len(merged.Updated)
		}
	}

	res.Status = res.Classify()
	s.finish(ctx, log, res, opts, started)
	return res, err
}

// list fetches Drive and blob listings concurrently.
func (s *Service) list(ctx context.Context, since time.Time) ([]imagesync.SourceImage, []imagesync.MirrorObject, error) {
	var (
		source  []imagesync.SourceImage
		objects []imagesync.MirrorObject
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		source, err = s.source.ListImages(gctx, since)
		if err != nil {
			return fmt.Errorf("failed to list drive images: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		objects, err = s.blobs.List(gctx, MirrorPrefix)
		if err != nil {
			return fmt.Errorf("failed to list blob images: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return source, objects, nil
}

func (s *Service) abort(res *imagesync.Result, err error) {
	res.Aborted = true
	res.AbortReason = err.Error()
	res.Status = imagesync.RunAborted
}

// finish stamps the duration, records the run and reports metrics.
func (s *Service) finish(ctx context.Context, log *zap.Logger, res *imagesync.Result, opts imagesync.Options, started time.Time) {
	finished := s.now()
	res.Duration = finished.Sub(started)

	if s.runs != nil {
		// recorded even when the run context was cancelled
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.runs.Save(saveCtx, imagesync.RunFromResult(res, opts, started, finished)); err != nil {
			log.Warn("Failed to record sync run", zap.Error(err))
		}
	}
	if s.recorder != nil {
		s.recorder.ObserveSyncRun(telemetry.SyncRunObservation{
			Status:    string(res.Status),
			Duration:  res.Duration,
			Uploaded:  res.Uploaded,
			Updated:   res.Updated,
			Deleted:   res.Deleted,
			Protected: res.Protected,
			Errors:    len(res.Errors),
		})
	}

	fields := []zap.Field{
		zap.String("status", string(res.Status)),
		zap.Int("processed", res.Processed),
		zap.Int("uploaded", res.Uploaded),
		zap.Int("updated", res.Updated),
		zap.Int("deleted", res.Deleted),
		zap.Int("protected", res.Protected),
		zap.Int("errors", len(res.Errors)),
		zap.Bool("images_updated", res.ImagesUpdated),
		zap.Duration("duration", res.Duration),
	}
	switch res.Status {
	case imagesync.RunAborted:
		log.Error("Image sync aborted", append(fields, zap.String("reason", res.AbortReason))...)
	case imagesync.RunFailed, imagesync.RunPartial:
		log.Warn("Image sync finished with errors", fields...)
	default:
		log.Info("Image sync finished", fields...)
	}
}

// afterExecution returns the mirror as it looks once applied has run.
func afterExecution(before []imagesync.MirrorObject, applied *imagesync.Applied) []imagesync.MirrorObject {
	gone := make(map[string]bool, applied.Removed())
	for _, k := range applied.Deleted {
		gone[k] = true
	}
	for _, k := range applied.Replaced {
		gone[k] = true
	}
	out := make([]imagesync.MirrorObject, 0, len(before)+len(applied.Uploaded)+len(applied.Updated))
	for _, obj := range before {
		if !gone[obj.Key] {
			out = append(out, obj)
		}
	}
	out = append(out, applied.Uploaded...)
	out = append(out, applied.Updated...)
	return out
}

// UpdateCatalog merges the current blob listing into the catalog without syncing.
func (s *Service) UpdateCatalog(ctx context.Context) (imagesync.MergeResult, error) {
	if s.blobs == nil {
		return imagesync.MergeResult{}, ErrNotConfigured
	}
	objects, err := s.blobs.List(ctx, MirrorPrefix)
	if err != nil {
		return imagesync.MergeResult{}, fmt.Errorf("failed to list blob images: %w", err)
	}
	return s.updateCatalog(ctx, imagesync.NewMirrorListing(objects).Objects)
}

func (s *Service) updateCatalog(ctx context.Context, mirror []imagesync.MirrorObject) (imagesync.MergeResult, error) {
	if s.catalog == nil {
		return imagesync.MergeResult{}, errors.New("no catalog store configured")
	}
	current, err := s.catalog.Load(ctx)
	if err != nil {
		return imagesync.MergeResult{}, fmt.Errorf("failed to load catalog: %w", err)
	}
	merged, err := imagesync.MergeCatalog(current, mirror)
	if err != nil {
		return merged, err
	}
	if !merged.Changed() {
		s.logger.Info("Image catalog already up to date", zap.Int("keys", merged.KeysAfter))
		return merged, nil
	}
	if err := s.catalog.Replace(ctx, merged.Catalog); err != nil {
		return merged, fmt.Errorf("failed to write catalog: %w", err)
	}
	s.logger.Info("Image catalog updated",
		zap.Int("added", len(merged.Added)),
		zap.Int("updated", len(merged.Updated)),
		zap.Int("keys_before", merged.KeysBefore),
		zap.Int("keys_after", merged.KeysAfter),
	)
	return merged, nil
}

// Status reports configuration and the last recorded run.
type Status struct {
	Configured
	MaxDeleteFraction float64         `json:"maxDeleteFraction"`
	ProtectedPatterns []string        `json:"protectedPatterns"`
	LastRun           *imagesync.Run  `json:"lastRun,omitempty"`
	Recent            []imagesync.Run `json:"recentRuns,omitempty"`
}

// Status returns the sync configuration and recent run history.
func (s *Service) Status(ctx context.Context, limit int) (*Status, error) {
	st := &Status{
		Configured:        s.configured,
		MaxDeleteFraction: s.fraction,
		ProtectedPatterns: s.protected.Patterns(),
	}
	if s.runs == nil {
		return st, nil
	}
	if limit <= 0 {
		limit = 10
	}
	runs, err := s.runs.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync runs: %w", err)
	}
	st.Recent = runs
	if len(runs) > 0 {
		last := runs[0]
		st.LastRun = &last
	}
	return st, nil
}
