package imagesync

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// RunStatus is the outcome recorded for a sync run.
type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunPartial RunStatus = "partial"
	RunFailed  RunStatus = "failed"
	RunAborted RunStatus = "aborted"
	RunSkipped RunStatus = "skipped"
)

// Trigger names what started a run.
type Trigger string

const (
	TriggerCron      Trigger = "cron"
	TriggerAdmin     Trigger = "admin"
	TriggerScheduler Trigger = "scheduler"
	TriggerCLI       Trigger = "cli"
)

// DefaultLookback is the window in which a Drive change counts as recent.
const DefaultLookback = 24 * time.Hour

// Options control a single run.
type Options struct {
	// Days widens the recent-change window; 0 keeps the default.
	Days int
	// FullSync ignores the recent-change window entirely.
	FullSync bool
	// DryRun builds and previews the plan without touching storage.
	DryRun  bool
	Trigger Trigger
}

// Lookback returns the recent-change window for o.
func (o Options) Lookback(def time.Duration) time.Duration {
	if o.Days > 0 {
		return time.Duration(o.Days) * 24 * time.Hour
	}
	if def <= 0 {
		return DefaultLookback
	}
	return def
}

// OpError is a failed item of an executed plan.
type OpError struct {
	Op    string `json:"op"`
	Key   string `json:"key"`
	Error string `json:"error"`
}

// Result summarizes a run.
type Result struct {
	RunID              uuid.UUID     `json:"runId"`
	Status             RunStatus     `json:"status"`
	Processed          int           `json:"processed"`
	Uploaded           int           `json:"uploaded"`
	Updated            int           `json:"updated"`
	Deleted            int           `json:"deleted"`
	Protected          int           `json:"protected"`
	Unchanged          int           `json:"unchanged"`
	Errors             []OpError     `json:"errors"`
	Duration           time.Duration `json:"duration"`
	ImagesUpdated      bool          `json:"imagesUpdated"`
	CatalogAdded       int           `json:"catalogAdded"`
	CatalogUpdated     int           `json:"catalogUpdated"`
	RecentChangesFound int           `json:"recentChangesFound"`
	DryRun             bool          `json:"dryRun"`
	Aborted            bool          `json:"aborted"`
	AbortReason        string        `json:"abortReason,omitempty"`
	Plan               *Plan         `json:"-"`
}

// Classify derives the run status from the counters.
func (r *Result) Classify() RunStatus {
	switch {
	case r.Aborted:
		return RunAborted
	case len(r.Errors) == 0:
		return RunSuccess
	case r.Uploaded+r.Updated+r.Deleted > 0:
		return RunPartial
	default:
		return RunFailed
	}
}

// Run is the persisted record of a sync run.
type Run struct {
	ID            uuid.UUID
	Trigger       Trigger
	Status        RunStatus
	DryRun        bool
	FullSync      bool
	Days          int
	StartedAt     time.Time
	FinishedAt    time.Time
	Processed     int
	Uploaded      int
	Updated       int
	Deleted       int
	Protected     int
	ErrorCount    int
	Errors        []OpError
	AbortReason   string
	ImagesUpdated bool
}

// RunFromResult builds the run record for res.
func RunFromResult(res *Result, opts Options, started, finished time.Time) *Run {
	return &Run{
		ID:            res.RunID,
		Trigger:       opts.Trigger,
		Status:        res.Status,
		DryRun:        opts.DryRun,
		FullSync:      opts.FullSync,
		Days:          opts.Days,
		StartedAt:     started,
		FinishedAt:    finished,
		Processed:     res.Processed,
		Uploaded:      res.Uploaded,
		Updated:       res.Updated,
		Deleted:       res.Deleted,
		Protected:     res.Protected,
		ErrorCount:    len(res.Errors),
		Errors:        res.Errors,
		AbortReason:   res.AbortReason,
		ImagesUpdated: res.ImagesUpdated,
	}
}

// Source lists and downloads images from the Drive folders.
type Source interface {
	ListImages(ctx context.Context, since time.Time) ([]SourceImage, error)
	Download(ctx context.Context, fileID string) (io.ReadCloser, error)
}

// BlobStore is the mirror side: an object store holding images/ keys.
type BlobStore interface {
	List(ctx context.Context, prefix string) ([]MirrorObject, error)
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
}

// CatalogStore reads and atomically replaces the image catalog.
type CatalogStore interface {
	Load(ctx context.Context) (Catalog, error)
	// Replace writes next after backing up the current catalog and restores
	// the backup when writing fails.
	Replace(ctx context.Context, next Catalog) error
}

// RunRepository records runs.
type RunRepository interface {
	Save(ctx context.Context, run *Run) error
	Latest(ctx context.Context) (*Run, error)
	List(ctx context.Context, limit int) ([]Run, error)
}

// Locker guards against concurrent runs. Acquire returns false when the lock is held.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}
