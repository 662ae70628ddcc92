package ingest

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/sig-0/ratefeed/cmd/env"
	"github.com/sig-0/ratefeed/ingest"
	sqlstore "github.com/sig-0/ratefeed/storage/sql"
)

type onceCfg struct {
	rootCfg *ingestCfg

	date string
}

// newOnceCmd creates the run-once ingest command
func newOnceCmd(rootCfg *ingestCfg) *ffcli.Command {
	cfg := &onceCfg{
		rootCfg: rootCfg,
	}

	fs := flag.NewFlagSet("once", flag.ExitOnError)
	cfg.rootCfg.registerFlags(fs)

	fs.StringVar(
		&cfg.date,
		"date",
		"",
		"store the snapshot under this date (YYYY-MM-DD) instead of the provider-stated one",
	)

	return &ffcli.Command{
		Name:       "once",
		ShortUsage: "ingest once [flags]",
		LongHelp:   "Runs exactly one ingestion cycle and exits, non-zero on failure",
		FlagSet:    fs,
		Exec:       cfg.exec,
		Options: []ff.Option{
			// Allow using ENV variables
			ff.WithEnvVars(),
			ff.WithEnvVarPrefix(env.Prefix),
		},
	}
}

// exec executes a single ingestion run
func (c *onceCfg) exec(ctx context.Context, _ []string) error {
	if err := c.rootCfg.load(); err != nil {
		return fmt.Errorf("unable to load ingest config, %w", err)
	}

	cfg := c.rootCfg.config

	// Create a new logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	// Load .env
	if err := godotenv.Load(); err != nil {
		logger.Warn("unable to load .env file")
	}

	// Open the store
	pool, closeFn, err := openPool(ctx, logger)
	if err != nil {
		return err
	}

	defer closeFn()

	store := sqlstore.NewStorage(pool)

	// Create the rate provider
	source, err := buildProvider(cfg)
	if err != nil {
		return fmt.Errorf("unable to create provider: %w", err)
	}

	jobOpts := []ingest.JobOption{
		ingest.WithJobLogger(logger),
		ingest.WithAttempts(cfg.Attempts),
		ingest.WithBackoffInitial(cfg.BackoffInitial()),
		ingest.WithFetchTimeout(cfg.CallTimeout()),
		ingest.WithStoreTimeout(cfg.CallTimeout()),
	}

	// Apply the manual re-run date, if any
	if c.date != "" {
		asOf, err := time.Parse(time.DateOnly, c.date)
		if err != nil {
			return fmt.Errorf("invalid date %q: %w", c.date, err)
		}

		jobOpts = append(jobOpts, ingest.WithAsOf(asOf))
	}

	// The run outcome is the process exit status
	return ingest.NewJob(source, store, jobOpts...).Run(ctx)
}

// openPool opens and verifies the postgres connection pool
func openPool(ctx context.Context, logger *slog.Logger) (*pgxpool.Pool, func(), error) {
	dsn := os.Getenv(env.Prefix + env.DBURLSuffix)
	if dsn == "" {
		return nil, nil, fmt.Errorf("missing %s", env.Prefix+env.DBURLSuffix)
	}

	// Open DB connection
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to open DB connection: %w", err)
	}

	// Check DB reachability
	pingCtx, cancelPing := context.WithTimeout(ctx, time.Second*5)
	defer cancelPing()

	if err = pool.Ping(pingCtx); err != nil {
		pool.Close()

		return nil, nil, fmt.Errorf("unable to reach DB (ping): %w", err)
	}

	logger.Info("DB ping success")

	return pool, pool.Close, nil
}
