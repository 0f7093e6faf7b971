package imagesync

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptySource aborts a run when Drive returns no images at all.
	ErrEmptySource = errors.New("imagesync: source listing returned no images")
	// ErrDeletionCapExceeded aborts a run whose delete set is larger than the configured cap.
	ErrDeletionCapExceeded = errors.New("imagesync: deletion cap exceeded")
	// ErrSyncInProgress is returned when another run holds the sync lock.
	ErrSyncInProgress = errors.New("imagesync: sync already in progress")
	// ErrCatalogShrunk is returned when a catalog merge would lose keys.
	ErrCatalogShrunk = errors.New("imagesync: catalog merge would remove keys")
)

// CapExceededError carries the numbers behind ErrDeletionCapExceeded.
type CapExceededError struct {
	Deletes    int
	Cap        int
	MirrorSize int
	Fraction   float64
}

func (e *CapExceededError) Error() string {
	return fmt.Sprintf("imagesync: %d deletions exceed cap of %d (%.0f%% of %d mirror objects)",
		e.Deletes, e.Cap, e.Fraction*100, e.MirrorSize)
}

// Is reports ErrDeletionCapExceeded as a match.
func (e *CapExceededError) Is(target error) bool {
	return target == ErrDeletionCapExceeded
}
