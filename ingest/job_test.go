package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sig-0/ratefeed/provider"
	"github.com/sig-0/ratefeed/storage"
	"github.com/sig-0/ratefeed/storage/mock"
	"github.com/sig-0/ratefeed/storage/types"
)

// testSnapshot returns a valid USD snapshot for the given day
func testSnapshot(asOf time.Time) *types.Snapshot {
	return &types.Snapshot{
		AsOf:      asOf,
		FetchedAt: time.Now().UTC(),
		Base:      types.CurrencyUSD,
		Rates: map[types.Currency]float64{
			types.CurrencyEUR: 0.92,
			types.CurrencyGBP: 0.79,
		},
	}
}

// fastRetry keeps test retries in the millisecond range
func fastRetry() []JobOption {
	return []JobOption{
		WithBackoffInitial(time.Millisecond),
		WithFetchTimeout(time.Second),
		WithStoreTimeout(time.Second),
	}
}

func TestJob_New(t *testing.T) {
	t.Parallel()

	t.Run("default job", func(t *testing.T) {
		t.Parallel()

		j := NewJob(&mockSource{}, &mock.Storage{})

		require.NotNil(t, j)

		assert.NotNil(t, j.logger)
		assert.EqualValues(t, defaultAttempts, j.attempts)
		assert.Equal(t, defaultBackoffInitial, j.backoffInitial)
	})

	t.Run("custom attempt budget", func(t *testing.T) {
		t.Parallel()

		j := NewJob(&mockSource{}, &mock.Storage{}, WithAttempts(5))

		require.NotNil(t, j)
		assert.EqualValues(t, 5, j.attempts)
	})
}

func TestJob_Run_Success(t *testing.T) {
	t.Parallel()

	var (
		asOf  = time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)
		saved *types.Snapshot

		source = &mockSource{
			fetchFn: func(_ context.Context) (*types.Snapshot, error) {
				return testSnapshot(asOf), nil
			},
		}

		store = &mock.Storage{
			SaveSnapshotFn: func(_ context.Context, s *types.Snapshot) error {
				saved = s

				return nil
			},
		}
	)

	j := NewJob(source, store, fastRetry()...)

	require.NoError(t, j.Run(context.Background()))

	require.NotNil(t, saved)
	assert.Equal(t, types.CurrencyUSD, saved.Base)
	assert.Equal(t, asOf, saved.AsOf)
	assert.InDelta(t, 0.92, saved.Rates[types.CurrencyEUR], 0.0001)
	assert.InDelta(t, 0.79, saved.Rates[types.CurrencyGBP], 0.0001)
	assert.Len(t, saved.Rates, 2)
}

func TestJob_Run_DropsSelfRate(t *testing.T) {
	t.Parallel()

	var (
		saved *types.Snapshot

		source = &mockSource{
			fetchFn: func(_ context.Context) (*types.Snapshot, error) {
				snapshot := testSnapshot(time.Now())
				snapshot.Rates[types.CurrencyUSD] = 1.0 // provider echoes the base

				return snapshot, nil
			},
		}

		store = &mock.Storage{
			SaveSnapshotFn: func(_ context.Context, s *types.Snapshot) error {
				saved = s

				return nil
			},
		}
	)

	j := NewJob(source, store, fastRetry()...)

	require.NoError(t, j.Run(context.Background()))

	require.NotNil(t, saved)
	assert.NotContains(t, saved.Rates, types.CurrencyUSD)
	assert.Len(t, saved.Rates, 2)
}

func TestJob_Run_AsOfOverride(t *testing.T) {
	t.Parallel()

	var (
		providerDate = time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC)
		manualDate   = time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)

		saved *types.Snapshot

		source = &mockSource{
			fetchFn: func(_ context.Context) (*types.Snapshot, error) {
				return testSnapshot(providerDate), nil
			},
		}

		store = &mock.Storage{
			SaveSnapshotFn: func(_ context.Context, s *types.Snapshot) error {
				saved = s

				return nil
			},
		}
	)

	opts := append(fastRetry(), WithAsOf(manualDate))
	j := NewJob(source, store, opts...)

	require.NoError(t, j.Run(context.Background()))

	require.NotNil(t, saved)
	assert.Equal(t, manualDate, saved.AsOf)
}

func TestJob_Run_TransientRetries(t *testing.T) {
	t.Parallel()

	t.Run("retry budget exhausted", func(t *testing.T) {
		t.Parallel()

		var (
			fetchCount atomic.Int32
			saveCount  atomic.Int32

			source = &mockSource{
				fetchFn: func(_ context.Context) (*types.Snapshot, error) {
					fetchCount.Add(1)

					return nil, provider.Transient(errors.New("connection reset"))
				},
			}

			store = &mock.Storage{
				SaveSnapshotFn: func(_ context.Context, _ *types.Snapshot) error {
					saveCount.Add(1)

					return nil
				},
			}
		)

		opts := append(fastRetry(), WithAttempts(3))
		j := NewJob(source, store, opts...)

		err := j.Run(context.Background())

		require.Error(t, err)
		assert.Equal(t, provider.KindTransient, provider.KindOf(err))

		// Exactly the configured number of attempts, nothing persisted
		assert.EqualValues(t, 3, fetchCount.Load())
		assert.EqualValues(t, 0, saveCount.Load())
	})

	t.Run("success on the third attempt", func(t *testing.T) {
		t.Parallel()

		var (
			fetchCount atomic.Int32
			saveCount  atomic.Int32

			source = &mockSource{
				fetchFn: func(_ context.Context) (*types.Snapshot, error) {
					if fetchCount.Add(1) < 3 {
						return nil, provider.Transient(errors.New("timeout"))
					}

					return testSnapshot(time.Now()), nil
				},
			}

			store = &mock.Storage{
				SaveSnapshotFn: func(_ context.Context, _ *types.Snapshot) error {
					saveCount.Add(1)

					return nil
				},
			}
		)

		opts := append(fastRetry(), WithAttempts(3))
		j := NewJob(source, store, opts...)

		require.NoError(t, j.Run(context.Background()))

		assert.EqualValues(t, 3, fetchCount.Load())
		assert.EqualValues(t, 1, saveCount.Load(), "exactly one successful write")
	})
}

func TestJob_Run_NoRetry(t *testing.T) {
	t.Parallel()

	testTable := []struct {
		name     string
		fetchErr error
		kind     provider.FailureKind
	}{
		{
			name:     "permanent failure",
			fetchErr: provider.Permanent(errors.New("invalid API key")),
			kind:     provider.KindPermanent,
		},
		{
			name:     "validation failure",
			fetchErr: provider.Validation(types.ErrEmptyRates),
			kind:     provider.KindValidation,
		},
	}

	for _, testCase := range testTable {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			var (
				fetchCount atomic.Int32
				saveCount  atomic.Int32

				source = &mockSource{
					fetchFn: func(_ context.Context) (*types.Snapshot, error) {
						fetchCount.Add(1)

						return nil, testCase.fetchErr
					},
				}

				store = &mock.Storage{
					SaveSnapshotFn: func(_ context.Context, _ *types.Snapshot) error {
						saveCount.Add(1)

						return nil
					},
				}
			)

			opts := append(fastRetry(), WithAttempts(3))
			j := NewJob(source, store, opts...)

			err := j.Run(context.Background())

			require.Error(t, err)
			assert.Equal(t, testCase.kind, provider.KindOf(err))

			// Zero retries, no write
			assert.EqualValues(t, 1, fetchCount.Load())
			assert.EqualValues(t, 0, saveCount.Load())
		})
	}
}

func TestJob_Run_PersistRetries(t *testing.T) {
	t.Parallel()

	t.Run("store unavailable, then recovered", func(t *testing.T) {
		t.Parallel()

		var (
			saveCount atomic.Int32

			source = &mockSource{
				fetchFn: func(_ context.Context) (*types.Snapshot, error) {
					return testSnapshot(time.Now()), nil
				},
			}

			store = &mock.Storage{
				SaveSnapshotFn: func(_ context.Context, _ *types.Snapshot) error {
					if saveCount.Add(1) < 2 {
						return fmt.Errorf("%w: connection refused", storage.ErrUnavailable)
					}

					return nil
				},
			}
		)

		opts := append(fastRetry(), WithAttempts(3))
		j := NewJob(source, store, opts...)

		require.NoError(t, j.Run(context.Background()))
		assert.EqualValues(t, 2, saveCount.Load())
	})

	t.Run("rejected write fails immediately", func(t *testing.T) {
		t.Parallel()

		var (
			saveCount atomic.Int32

			source = &mockSource{
				fetchFn: func(_ context.Context) (*types.Snapshot, error) {
					return testSnapshot(time.Now()), nil
				},
			}

			store = &mock.Storage{
				SaveSnapshotFn: func(_ context.Context, _ *types.Snapshot) error {
					saveCount.Add(1)

					return fmt.Errorf("%w: constraint violation", storage.ErrRejected)
				},
			}
		)

		opts := append(fastRetry(), WithAttempts(3))
		j := NewJob(source, store, opts...)

		err := j.Run(context.Background())

		require.ErrorIs(t, err, storage.ErrRejected)
		assert.EqualValues(t, 1, saveCount.Load())
	})
}

func TestJob_Run_CanceledBetweenRetries(t *testing.T) {
	t.Parallel()

	var fetchCount atomic.Int32

	source := &mockSource{
		fetchFn: func(_ context.Context) (*types.Snapshot, error) {
			fetchCount.Add(1)

			return nil, provider.Transient(errors.New("unreachable"))
		},
	}

	j := NewJob(
		source,
		&mock.Storage{},
		WithAttempts(10),
		WithBackoffInitial(time.Second*10),
		WithFetchTimeout(time.Second),
		WithStoreTimeout(time.Second),
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := j.Run(ctx)

	require.ErrorIs(t, err, context.Canceled)
	assert.EqualValues(t, 1, fetchCount.Load(), "no further attempts after shutdown")
}
