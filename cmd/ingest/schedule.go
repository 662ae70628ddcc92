package ingest

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"
	"golang.org/x/sync/errgroup"

	"github.com/sig-0/ratefeed/cmd/env"
	"github.com/sig-0/ratefeed/ingest"
	"github.com/sig-0/ratefeed/metrics"
	"github.com/sig-0/ratefeed/server"
	serverCfg "github.com/sig-0/ratefeed/server/config"
	sqlstore "github.com/sig-0/ratefeed/storage/sql"
)

type scheduleCfg struct {
	rootCfg *ingestCfg

	serverConfig *serverCfg.Config

	serverConfigPath string
	immediate        bool
}

// newScheduleCmd creates the schedule-mode ingest command
func newScheduleCmd(rootCfg *ingestCfg) *ffcli.Command {
	cfg := &scheduleCfg{
		rootCfg:      rootCfg,
		serverConfig: serverCfg.DefaultConfig(),
	}

	fs := flag.NewFlagSet("schedule", flag.ExitOnError)
	cfg.rootCfg.registerFlags(fs)

	fs.StringVar(
		&cfg.serverConfig.ListenAddress,
		"listen",
		serverCfg.DefaultListenAddress,
		"the IP:PORT URL for the ops server",
	)

	fs.StringVar(
		&cfg.serverConfigPath,
		"server-config",
		"",
		"the path to the ops server TOML configuration, if any",
	)

	fs.BoolVar(
		&cfg.immediate,
		"immediate",
		false,
		"fire the first run on start instead of waiting for the next trigger",
	)

	return &ffcli.Command{
		Name:       "schedule",
		ShortUsage: "ingest schedule [flags]",
		LongHelp:   "Runs the ingestion indefinitely on the daily UTC trigger",
		FlagSet:    fs,
		Exec:       cfg.exec,
		Options: []ff.Option{
			// Allow using ENV variables
			ff.WithEnvVars(),
			ff.WithEnvVarPrefix(env.Prefix),
		},
	}
}

// exec executes the scheduled ingestion loop alongside the ops server
func (c *scheduleCfg) exec(ctx context.Context, _ []string) error {
	if err := c.rootCfg.load(); err != nil {
		return fmt.Errorf("unable to load ingest config, %w", err)
	}

	cfg := c.rootCfg.config

	// Read the ops server configuration, if any
	if c.serverConfigPath != "" {
		opsCfg, err := serverCfg.Read(c.serverConfigPath)
		if err != nil {
			return fmt.Errorf("unable to read server config, %w", err)
		}

		c.serverConfig = opsCfg
	}

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

	// Create the ingestion job
	job := ingest.NewJob(
		source,
		store,
		ingest.WithJobLogger(logger),
		ingest.WithMetrics(metrics.NewIngestMetrics()),
		ingest.WithAttempts(cfg.Attempts),
		ingest.WithBackoffInitial(cfg.BackoffInitial()),
		ingest.WithFetchTimeout(cfg.CallTimeout()),
		ingest.WithStoreTimeout(cfg.CallTimeout()),
	)

	// Create the scheduler
	hour, minute := cfg.Trigger()

	schedOpts := []ingest.SchedulerOption{
		ingest.WithLogger(logger),
		ingest.WithTrigger(hour, minute),
	}

	if c.immediate || cfg.RunImmediately {
		schedOpts = append(schedOpts, ingest.WithRunImmediately())
	}

	scheduler, err := ingest.NewScheduler(job, schedOpts...)
	if err != nil {
		return fmt.Errorf("unable to create scheduler, %w", err)
	}

	// Create the ops server instance
	s, err := server.New(
		store,
		cfg.Base(),
		server.WithLogger(logger),
		server.WithConfig(c.serverConfig),
	)
	if err != nil {
		return fmt.Errorf("unable to create server, %w", err)
	}

	runCtx, cancelFn := signal.NotifyContext(
		ctx,
		os.Interrupt,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)

	defer cancelFn()

	group, gCtx := errgroup.WithContext(runCtx)

	// Start the ops server
	group.Go(func() error {
		return s.Serve(gCtx)
	})

	// Start the scheduling loop
	group.Go(func() error {
		return scheduler.Start(gCtx)
	})

	return group.Wait()
}
