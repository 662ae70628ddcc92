package sql

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sig-0/ratefeed/storage"
	"github.com/sig-0/ratefeed/storage/types"
)

type Storage struct {
	pool *pgxpool.Pool
}

func NewStorage(pool *pgxpool.Pool) *Storage {
	return &Storage{
		pool: pool,
	}
}

// SaveSnapshot writes all rows of the snapshot in a single transaction.
// The existing row set for the (base, as-of) key is replaced, so a re-run
// for the same day overwrites instead of duplicating, and readers never
// observe a half-written day
func (s *Storage) SaveSnapshot(ctx context.Context, snapshot *types.Snapshot) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return classify(fmt.Errorf("unable to begin transaction: %w", err))
	}

	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	asOf := dateToPg(snapshot.AsOf)

	_, err = tx.Exec(
		ctx,
		`DELETE FROM exchange_rates WHERE base = $1 AND as_of = $2`,
		snapshot.Base.String(),
		asOf,
	)
	if err != nil {
		return classify(fmt.Errorf("unable to clear existing rows: %w", err))
	}

	batch := &pgx.Batch{}

	for target, rate := range snapshot.Rates {
		batch.Queue(
			`INSERT INTO exchange_rates (base, target, rate, as_of, fetched_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (base, target, as_of)
			DO UPDATE SET rate = EXCLUDED.rate, fetched_at = EXCLUDED.fetched_at`,
			snapshot.Base.String(),
			target.String(),
			floatToNumeric(rate),
			asOf,
			timeToTimestampz(snapshot.FetchedAt),
		)
	}

	if err = tx.SendBatch(ctx, batch).Close(); err != nil {
		return classify(fmt.Errorf("unable to insert rows: %w", err))
	}

	if err = tx.Commit(ctx); err != nil {
		return classify(fmt.Errorf("unable to commit snapshot: %w", err))
	}

	return nil
}

func (s *Storage) SnapshotAsOf(
	ctx context.Context,
	base types.Currency,
	asOf time.Time,
) (*types.Snapshot, error) {
	rows, err := s.pool.Query(
		ctx,
		`SELECT target, rate, fetched_at FROM exchange_rates
		WHERE base = $1 AND as_of = $2
		ORDER BY target`,
		base.String(),
		dateToPg(asOf),
	)
	if err != nil {
		return nil, classify(fmt.Errorf("unable to fetch snapshot: %w", err))
	}

	defer rows.Close()

	snapshot := &types.Snapshot{
		AsOf:  types.Day(asOf),
		Base:  base,
		Rates: make(map[types.Currency]float64),
	}

	for rows.Next() {
		var (
			target    string
			rate      pgtype.Numeric
			fetchedAt pgtype.Timestamptz
		)

		if err = rows.Scan(&target, &rate, &fetchedAt); err != nil {
			return nil, classify(fmt.Errorf("unable to scan row: %w", err))
		}

		snapshot.Rates[types.Currency(target)] = numericToFloat(rate)
		snapshot.FetchedAt = timestampzToTime(fetchedAt)
	}

	if err = rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("unable to read rows: %w", err))
	}

	if len(snapshot.Rates) == 0 {
		return nil, storage.ErrNotFound
	}

	return snapshot, nil
}

func (s *Storage) ListDates(
	ctx context.Context,
	base types.Currency,
) ([]time.Time, error) {
	rows, err := s.pool.Query(
		ctx,
		`SELECT DISTINCT as_of FROM exchange_rates
		WHERE base = $1
		ORDER BY as_of`,
		base.String(),
	)
	if err != nil {
		return nil, classify(fmt.Errorf("unable to fetch dates: %w", err))
	}

	defer rows.Close()

	var dates []time.Time

	for rows.Next() {
		var asOf pgtype.Date

		if err = rows.Scan(&asOf); err != nil {
			return nil, classify(fmt.Errorf("unable to scan date: %w", err))
		}

		dates = append(dates, types.Day(asOf.Time))
	}

	if err = rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("unable to read dates: %w", err))
	}

	return dates, nil
}

// classify maps a postgres error to the storage failure taxonomy.
// Integrity and syntax violations are caller bugs and not retryable,
// everything else (connectivity, timeouts) is
func classify(err error) error {
	var pgErr *pgconn.PgError

	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 {
		switch pgErr.Code[:2] {
		case "22", "23", "42":
			// data exception, integrity constraint, syntax/access
			return fmt.Errorf("%w: %w", storage.ErrRejected, err)
		}
	}

	return fmt.Errorf("%w: %w", storage.ErrUnavailable, err)
}

// floatToNumeric converts the float value to postgres numeric
func floatToNumeric(value float64) pgtype.Numeric {
	// round to 4dp and store as integer with exponent -4
	i := int64(math.Round(value * 1e4))

	return pgtype.Numeric{
		Int:   big.NewInt(i),
		Exp:   -4,
		Valid: true,
	}
}

// numericToFloat converts the postgres value to float
func numericToFloat(value pgtype.Numeric) float64 {
	if !value.Valid || value.Int == nil {
		return 0
	}

	f, _ := new(big.Rat).SetInt(value.Int).Float64()

	if value.Exp > 0 {
		f *= math.Pow10(int(value.Exp))
	} else if value.Exp < 0 {
		f /= math.Pow10(int(-value.Exp))
	}

	return f
}

// dateToPg converts the time value to a postgres date (UTC calendar day)
func dateToPg(t time.Time) pgtype.Date {
	return pgtype.Date{
		Time:  types.Day(t),
		Valid: true,
	}
}

// timeToTimestampz converts the time value to postgres timestamp
func timeToTimestampz(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{
		Time:  t.UTC(),
		Valid: true,
	}
}

// timestampzToTime converts the postgres timestamp value to time
func timestampzToTime(ts pgtype.Timestamptz) time.Time {
	if !ts.Valid {
		return time.Time{}
	}

	return ts.Time
}
