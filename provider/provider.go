package provider

import (
	"context"

	"github.com/sig-0/ratefeed/storage/types"
)

// Source is a single exchange rate provider for a fixed base currency
type Source interface {
	// Name returns the human-readable name of the provider
	Name() string

	// Fetch retrieves and validates the latest rate snapshot for the
	// provider's base currency. Errors are classified as *Failure values
	Fetch(context.Context) (*types.Snapshot, error)
}
