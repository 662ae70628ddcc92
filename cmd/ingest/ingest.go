package ingest

import (
	"context"
	"flag"

	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/sig-0/ratefeed/cmd/env"
	"github.com/sig-0/ratefeed/ingest/config"
)

// ingestCfg wraps the ingest configuration
type ingestCfg struct {
	config *config.Config

	configPath string
}

// NewIngestCmd creates the ingest subcommand
func NewIngestCmd() *ffcli.Command {
	cfg := &ingestCfg{
		config: config.DefaultConfig(),
	}

	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	cfg.registerFlags(fs)

	cmd := &ffcli.Command{
		Name:       "ingest",
		ShortUsage: "ingest <subcommand> [flags]",
		LongHelp:   "Runs the daily exchange rate ingestion",
		FlagSet:    fs,
		Exec: func(_ context.Context, _ []string) error {
			return flag.ErrHelp
		},
		Options: []ff.Option{
			// Allow using ENV variables
			ff.WithEnvVars(),
			ff.WithEnvVarPrefix(env.Prefix),
		},
	}

	cmd.Subcommands = []*ffcli.Command{
		newOnceCmd(cfg),
		newScheduleCmd(cfg),
	}

	return cmd
}

func (c *ingestCfg) registerFlags(fs *flag.FlagSet) {
	fs.StringVar(
		&c.config.BaseCurrency,
		"base",
		config.DefaultBaseCurrency,
		"the base currency all rates are expressed against",
	)

	fs.StringVar(
		&c.config.Provider,
		"provider",
		config.DefaultProvider,
		"the rate provider to ingest from (currencyapi | xrates)",
	)

	fs.StringVar(
		&c.config.TriggerTime,
		"trigger",
		config.DefaultTriggerTime,
		"the daily UTC trigger time, HH:MM",
	)

	fs.StringVar(
		&c.configPath,
		"config",
		"",
		"the path to the ingestion TOML configuration, if any",
	)
}

// load finalizes the configuration: the TOML file, when given,
// takes precedence over individual flags
func (c *ingestCfg) load() error {
	if c.configPath != "" {
		fileCfg, err := config.Read(c.configPath)
		if err != nil {
			return err
		}

		c.config = fileCfg
	}

	return config.ValidateConfig(c.config)
}
