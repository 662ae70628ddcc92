package memory

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/sig-0/ratefeed/storage"
	"github.com/sig-0/ratefeed/storage/types"
)

type key struct {
	base string
	asOf int64 // unix seconds of the UTC calendar date
}

type Storage struct {
	data map[key]types.Snapshot

	mu sync.RWMutex
}

func NewStorage() *Storage {
	return &Storage{
		data: make(map[key]types.Snapshot),
	}
}

func (s *Storage) SaveSnapshot(_ context.Context, snapshot *types.Snapshot) error {
	k := key{
		base: snapshot.Base.String(),
		asOf: types.Day(snapshot.AsOf).Unix(),
	}

	elem := *snapshot
	elem.AsOf = types.Day(snapshot.AsOf)
	elem.FetchedAt = snapshot.FetchedAt.UTC()
	elem.Rates = maps.Clone(snapshot.Rates)

	s.mu.Lock()
	s.data[k] = elem // key is unique, save replaces
	s.mu.Unlock()

	return nil
}

func (s *Storage) SnapshotAsOf(
	_ context.Context,
	base types.Currency,
	asOf time.Time,
) (*types.Snapshot, error) {
	k := key{
		base: base.String(),
		asOf: types.Day(asOf).Unix(),
	}

	s.mu.RLock()
	elem, ok := s.data[k]
	s.mu.RUnlock()

	if !ok {
		return nil, storage.ErrNotFound
	}

	cp := elem
	cp.Rates = maps.Clone(elem.Rates)

	return &cp, nil
}

func (s *Storage) ListDates(
	_ context.Context,
	base types.Currency,
) ([]time.Time, error) {
	s.mu.RLock()

	dates := make([]time.Time, 0, len(s.data))

	for k := range s.data {
		if k.base != base.String() {
			continue
		}

		dates = append(dates, time.Unix(k.asOf, 0).UTC())
	}

	s.mu.RUnlock()

	sort.Slice(dates, func(i, j int) bool {
		return dates[i].Before(dates[j])
	})

	return dates, nil
}
