package storage

import (
	"context"
	"errors"
	"time"

	"github.com/sig-0/ratefeed/storage/types"
)

var (
	// ErrNotFound indicates no snapshot exists for the requested day.
	// It is a valid empty result, not an outage
	ErrNotFound = errors.New("snapshot not found")

	// ErrUnavailable indicates the store could not be reached.
	// Callers may retry
	ErrUnavailable = errors.New("storage unavailable")

	// ErrRejected indicates the store refused a well-formed write
	// (constraint or schema violation). Retrying will not help
	ErrRejected = errors.New("write rejected by storage")
)

// Storage is an abstraction over persisted exchange rate snapshots
type Storage interface {
	// SaveSnapshot persists the given snapshot atomically, replacing any
	// previously stored row set for the same (base, as-of date) key
	SaveSnapshot(context.Context, *types.Snapshot) error

	// SnapshotAsOf fetches the full snapshot stored for the given base
	// currency and calendar date, or ErrNotFound
	SnapshotAsOf(context.Context, types.Currency, time.Time) (*types.Snapshot, error)

	// ListDates lists the calendar dates with stored rates for the base,
	// in ascending order
	ListDates(context.Context, types.Currency) ([]time.Time, error)
}
