package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml"

	"github.com/sig-0/ratefeed/storage/types"
)

const (
	DefaultBaseCurrency = "USD"
	DefaultProvider     = "currencyapi"
	DefaultTriggerTime  = "06:00"
	DefaultAttempts     = 3
)

var (
	ErrInvalidBaseCurrency = errors.New("invalid base currency")
	ErrInvalidProvider     = errors.New("invalid provider")
	ErrInvalidTriggerTime  = errors.New("invalid trigger time")
	ErrInvalidAttempts     = errors.New("invalid attempt budget")
)

var triggerTimeRegex = regexp.MustCompile(`^([01]\d|2[0-3]):([0-5]\d)$`)

// Config defines the ingestion pipeline configuration
type Config struct {
	// The base currency all rates are expressed against
	BaseCurrency string `toml:"base_currency"`

	// The rate provider to ingest from: "currencyapi" or "xrates"
	Provider string `toml:"provider"`

	// The daily UTC trigger time, in HH:MM format
	TriggerTime string `toml:"trigger_time"`

	// Whether schedule mode fires a run on start instead of
	// waiting for the next trigger
	RunImmediately bool `toml:"run_immediately"`

	// The per-phase retry attempt budget
	Attempts uint `toml:"attempts"`

	// The first retry wait interval, in seconds
	BackoffInitialSeconds int64 `toml:"backoff_initial_seconds"`

	// The per-call timeout for provider and storage calls, in seconds
	CallTimeoutSeconds int64 `toml:"call_timeout_seconds"`
}

// DefaultConfig returns the default ingestion configuration
func DefaultConfig() *Config {
	return &Config{
		BaseCurrency:          DefaultBaseCurrency,
		Provider:              DefaultProvider,
		TriggerTime:           DefaultTriggerTime,
		Attempts:              DefaultAttempts,
		BackoffInitialSeconds: 2,
		CallTimeoutSeconds:    30,
	}
}

// ValidateConfig validates the ingestion configuration
func ValidateConfig(config *Config) error {
	if !types.Currency(config.BaseCurrency).Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidBaseCurrency, config.BaseCurrency)
	}

	switch config.Provider {
	case "currencyapi", "xrates":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidProvider, config.Provider)
	}

	if !triggerTimeRegex.MatchString(config.TriggerTime) {
		return fmt.Errorf("%w: %q", ErrInvalidTriggerTime, config.TriggerTime)
	}

	if config.Attempts == 0 {
		return ErrInvalidAttempts
	}

	return nil
}

// Trigger parses the configured trigger time into its hour and minute
func (c *Config) Trigger() (int, int) {
	parts := strings.SplitN(c.TriggerTime, ":", 2)
	if len(parts) != 2 {
		return 6, 0
	}

	hour, _ := strconv.Atoi(parts[0])
	minute, _ := strconv.Atoi(parts[1])

	return hour, minute
}

// Base returns the configured base currency
func (c *Config) Base() types.Currency {
	return types.Currency(c.BaseCurrency)
}

// BackoffInitial returns the first retry wait interval
func (c *Config) BackoffInitial() time.Duration {
	return time.Duration(c.BackoffInitialSeconds) * time.Second
}

// CallTimeout returns the per-call timeout
func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.CallTimeoutSeconds) * time.Second
}

// Read reads the configuration from the given path
func Read(path string) (*Config, error) {
	// Read the config file
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Parse it
	cfg := DefaultConfig()

	if err := toml.Unmarshal(content, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
