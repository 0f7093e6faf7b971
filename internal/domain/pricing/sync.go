package pricing

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StoredItem is the persisted version of an Item.
type StoredItem struct {
	UniqueKey string
	Category  string
	ItemKey   string
	Name      string
	NestSize  NestSize
	Price     decimal.Decimal
	Version   int
	Active    bool
	UpdatedAt time.Time
}

// ItemUpdate is a stored item whose sheet price or name changed.
type ItemUpdate struct {
	Item     Item
	Previous StoredItem
}

// SyncDiff is the outcome of comparing the sheet with stored items.
type SyncDiff struct {
	Added     []Item
	Updated   []ItemUpdate
	Removed   []StoredItem
	Unchanged int
}

// Changed reports whether applying d would write anything.
func (d SyncDiff) Changed() bool {
	return len(d.Added)+len(d.Updated)+len(d.Removed) > 0
}

// DiffItems compares sheet items with the active stored items by unique key.
// Items missing from the sheet are reported as removed; inactive stored
// items reappearing in the sheet count as updates.
func DiffItems(sheet []Item, stored []StoredItem) SyncDiff {
	byKey := make(map[string]StoredItem, len(stored))
	for _, s := range stored {
		byKey[s.UniqueKey] = s
	}
	seen := make(map[string]bool, len(sheet))
	var d SyncDiff
	for _, item := range sheet {
		key := item.UniqueKey()
		if seen[key] {
			continue
		}
		seen[key] = true
		prev, ok := byKey[key]
		switch {
		case !ok:
			d.Added = append(d.Added, item)
		case !prev.Active || !prev.Price.Equal(item.Price) || prev.Name != item.Name:
			d.Updated = append(d.Updated, ItemUpdate{Item: item, Previous: prev})
		default:
			d.Unchanged++
		}
	}
	for _, s := range stored {
		if s.Active && !seen[s.UniqueKey] {
			d.Removed = append(d.Removed, s)
		}
	}
	sort.Slice(d.Removed, func(i, j int) bool { return d.Removed[i].UniqueKey < d.Removed[j].UniqueKey })
	return d
}

// SyncStatus of a pricing sync
type SyncStatus string

const (
	SyncSuccess SyncStatus = "success"
	SyncPartial SyncStatus = "partial"
	SyncFailed  SyncStatus = "failed"
)

// SyncLog records one pricing sync.
type SyncLog struct {
	ID         uuid.UUID  `json:"id"`
	Trigger    string     `json:"trigger"`
	Status     SyncStatus `json:"status"`
	Added      int        `json:"added"`
	Updated    int        `json:"updated"`
	Removed    int        `json:"removed"`
	Unchanged  int        `json:"unchanged"`
	Errors     []string   `json:"errors,omitempty"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt time.Time  `json:"finishedAt"`
}

// NewSyncLog summarizes d and the errors met while applying it.
func NewSyncLog(trigger string, d SyncDiff, errs []string, started, finished time.Time) *SyncLog {
	status := SyncSuccess
	if len(errs) > 0 {
		status = SyncPartial
		if !d.Changed() {
			status = SyncFailed
		}
	}
	return &SyncLog{
		ID:         uuid.New(),
		Trigger:    trigger,
		Status:     status,
		Added:      len(d.Added),
		Updated:    len(d.Updated),
		Removed:    len(d.Removed),
		Unchanged:  d.Unchanged,
		Errors:     errs,
		StartedAt:  started,
		FinishedAt: finished,
	}
}

// Source loads the raw price sheet.
type Source interface {
	Fetch(ctx context.Context) (*PriceTable, error)
}

// Repository persists priced items, sync logs and table snapshots.
type Repository interface {
	ListItems(ctx context.Context) ([]StoredItem, error)
	// ApplyDiff writes d in one transaction.
	ApplyDiff(ctx context.Context, d SyncDiff, at time.Time) error
	SaveLog(ctx context.Context, log *SyncLog) error
	LatestLog(ctx context.Context) (*SyncLog, error)
	SaveSnapshot(ctx context.Context, table *PriceTable, at time.Time) error
}
