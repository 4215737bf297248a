package extraction

import (
	"errors"

	"sceneminer/internal/storage"
)

var (
	// ErrLockConflict: another extraction holds the unit lock. Retryable by
	// the caller; never retried server-side.
	ErrLockConflict = errors.New("extraction already in progress")

	// ErrExtractionTimeout: the pass exceeded its budget. Nothing was
	// persisted and the lock was released, so the unit is safely retryable.
	ErrExtractionTimeout = errors.New("extraction timed out")

	ErrUnitNotFound = storage.ErrUnitNotFound
)
