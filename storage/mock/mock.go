package mock

import (
	"context"
	"time"

	"github.com/sig-0/ratefeed/storage/types"
)

type (
	SaveSnapshotDelegate func(context.Context, *types.Snapshot) error
	SnapshotAsOfDelegate func(context.Context, types.Currency, time.Time) (*types.Snapshot, error)
	ListDatesDelegate    func(context.Context, types.Currency) ([]time.Time, error)
)

type Storage struct {
	SaveSnapshotFn SaveSnapshotDelegate
	SnapshotAsOfFn SnapshotAsOfDelegate
	ListDatesFn    ListDatesDelegate
}

func (m *Storage) SaveSnapshot(ctx context.Context, snapshot *types.Snapshot) error {
	if m.SaveSnapshotFn != nil {
		return m.SaveSnapshotFn(ctx, snapshot)
	}

	return nil
}

func (m *Storage) SnapshotAsOf(
	ctx context.Context,
	base types.Currency,
	asOf time.Time,
) (*types.Snapshot, error) {
	if m.SnapshotAsOfFn != nil {
		return m.SnapshotAsOfFn(ctx, base, asOf)
	}

	return nil, nil
}

func (m *Storage) ListDates(
	ctx context.Context,
	base types.Currency,
) ([]time.Time, error) {
	if m.ListDatesFn != nil {
		return m.ListDatesFn(ctx, base)
	}

	return nil, nil
}
