package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"maps"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/xid"

	"github.com/sig-0/ratefeed/metrics"
	"github.com/sig-0/ratefeed/provider"
	"github.com/sig-0/ratefeed/storage"
	"github.com/sig-0/ratefeed/storage/types"
)

// State is the observable phase of a single ingestion run
type State string

const (
	StateStarted    State = "started"
	StateFetching   State = "fetching"
	StateValidating State = "validating"
	StatePersisting State = "persisting"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
)

const (
	defaultAttempts       = 3
	defaultBackoffInitial = time.Second * 2
	defaultCallTimeout    = time.Second * 30
)

// Runner executes a single ingestion cycle
type Runner interface {
	Run(context.Context) error
}

// Job is a single-run ingestion pipeline: fetch the latest rates from the
// source, validate them, and persist the snapshot. Transient failures are
// retried with bounded exponential backoff, independently per phase
type Job struct {
	source  provider.Source
	storage storage.Storage
	logger  *slog.Logger
	metrics *metrics.IngestMetrics

	attempts       uint
	backoffInitial time.Duration
	fetchTimeout   time.Duration
	storeTimeout   time.Duration

	asOfOverride *time.Time
}

// NewJob creates a new ingestion job
func NewJob(
	source provider.Source,
	storage storage.Storage,
	opts ...JobOption,
) *Job {
	j := &Job{
		source:         source,
		storage:        storage,
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		attempts:       defaultAttempts,
		backoffInitial: defaultBackoffInitial,
		fetchTimeout:   defaultCallTimeout,
		storeTimeout:   defaultCallTimeout,
	}

	// Apply the options
	for _, opt := range opts {
		opt(j)
	}

	return j
}

// Run executes one ingestion cycle. It returns nil once the snapshot is
// durably stored, and the terminal failure otherwise. A failed run leaves
// the store exactly as it was
func (j *Job) Run(ctx context.Context) error {
	var (
		runID = xid.New()
		start = time.Now()

		logger = j.logger.With(
			"run_id", runID.String(),
			"provider", j.source.Name(),
		)
	)

	logger.Info("ingestion run started", "state", StateStarted)

	snapshot, err := j.fetch(ctx, logger)
	if err != nil {
		return j.fail(logger, start, err)
	}

	logger.Info(
		"snapshot validated",
		"state", StateValidating,
		"base", snapshot.Base,
		"as_of", snapshot.AsOf.Format(time.DateOnly),
		"rates", len(snapshot.Rates),
	)

	if err = j.persist(ctx, logger, snapshot); err != nil {
		return j.fail(logger, start, err)
	}

	logger.Info(
		"ingestion run succeeded",
		"state", StateSucceeded,
		"base", snapshot.Base,
		"as_of", snapshot.AsOf.Format(time.DateOnly),
		"rates", len(snapshot.Rates),
	)

	if j.metrics != nil {
		j.metrics.RecordRun(j.source.Name(), "succeeded", time.Since(start).Seconds())
		j.metrics.RecordRatesStored(len(snapshot.Rates))
	}

	return nil
}

// fetch retrieves and validates the snapshot, retrying transient failures
func (j *Job) fetch(ctx context.Context, logger *slog.Logger) (*types.Snapshot, error) {
	var snapshot *types.Snapshot

	err := j.withRetry(
		ctx,
		logger,
		StateFetching,
		provider.IsTransient,
		func(attemptCtx context.Context) error {
			fetchCtx, cancelFn := context.WithTimeout(attemptCtx, j.fetchTimeout)
			defer cancelFn()

			fetched, fetchErr := j.source.Fetch(fetchCtx)
			if fetchErr != nil {
				return fetchErr
			}

			snapshot = fetched

			return nil
		},
	)
	if err != nil {
		return nil, err
	}

	return j.transform(snapshot), nil
}

// transform finalizes the snapshot before persistence: the self-rate is
// dropped, and a manual re-run date override replaces the provider-stated one
func (j *Job) transform(snapshot *types.Snapshot) *types.Snapshot {
	out := *snapshot
	out.AsOf = types.Day(snapshot.AsOf)
	out.Rates = maps.Clone(snapshot.Rates)

	delete(out.Rates, out.Base)

	if j.asOfOverride != nil {
		out.AsOf = types.Day(*j.asOfOverride)
	}

	return &out
}

// persist stores the snapshot, retrying while the store is unavailable
func (j *Job) persist(
	ctx context.Context,
	logger *slog.Logger,
	snapshot *types.Snapshot,
) error {
	return j.withRetry(
		ctx,
		logger,
		StatePersisting,
		func(err error) bool {
			return errors.Is(err, storage.ErrUnavailable)
		},
		func(attemptCtx context.Context) error {
			// A started write attempt is allowed to finish on shutdown,
			// the bounded timeout is its only cancellation source
			saveCtx, cancelFn := context.WithTimeout(
				context.WithoutCancel(attemptCtx),
				j.storeTimeout,
			)
			defer cancelFn()

			return j.storage.SaveSnapshot(saveCtx, snapshot)
		},
	)
}

// withRetry runs fn up to the configured attempt budget, backing off
// exponentially between attempts, as long as retryable reports the
// encountered error as worth retrying
func (j *Job) withRetry(
	ctx context.Context,
	logger *slog.Logger,
	phase State,
	retryable func(error) bool,
	fn func(context.Context) error,
) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = j.backoffInitial

	for attempt := uint(1); ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		if !retryable(err) || attempt >= j.attempts {
			return err
		}

		wait := bo.NextBackOff()

		logger.Warn(
			"retrying after failure",
			"state", phase,
			"attempt", attempt,
			"budget", j.attempts,
			"wait", wait.String(),
			"err", err,
		)

		if j.metrics != nil {
			j.metrics.RecordRetry(string(phase))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// fail emits the terminal failure event and returns the run error
func (j *Job) fail(logger *slog.Logger, start time.Time, err error) error {
	logger.Error(
		"ingestion run failed",
		"state", StateFailed,
		"kind", failureKind(err),
		"err", err,
	)

	if j.metrics != nil {
		j.metrics.RecordRun(j.source.Name(), "failed", time.Since(start).Seconds())
	}

	return err
}

// failureKind names the failure class for observability events
func failureKind(err error) string {
	switch {
	case errors.Is(err, storage.ErrUnavailable):
		return "store_unavailable"
	case errors.Is(err, storage.ErrRejected):
		return "persistence"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return string(provider.KindOf(err))
	}
}
