package ingest

import (
	"fmt"
	"os"

	"github.com/sig-0/ratefeed/cmd/env"
	"github.com/sig-0/ratefeed/ingest/config"
	"github.com/sig-0/ratefeed/provider"
	"github.com/sig-0/ratefeed/provider/currencyapi"
	"github.com/sig-0/ratefeed/provider/xrates"
)

// buildProvider constructs the configured rate provider
func buildProvider(cfg *config.Config) (provider.Source, error) {
	switch cfg.Provider {
	case "currencyapi":
		apiKey := os.Getenv(env.Prefix + env.APIKeySuffix)
		if apiKey == "" {
			return nil, fmt.Errorf("missing %s", env.Prefix+env.APIKeySuffix)
		}

		return currencyapi.NewProvider(
			apiKey,
			cfg.Base(),
			cfg.CallTimeout(),
		), nil
	case "xrates":
		return xrates.NewProvider(
			cfg.Base(),
			cfg.CallTimeout(),
		), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}
