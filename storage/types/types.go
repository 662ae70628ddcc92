package types

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"time"
)

type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
	CurrencyJPY Currency = "JPY"
	CurrencyCHF Currency = "CHF"
	CurrencyCNY Currency = "CNY"
)

func (c Currency) String() string {
	return string(c)
}

var currencyCodeRegex = regexp.MustCompile(`^[A-Z]{3}$`)

// Valid checks that the currency is a 3-letter uppercase ISO code
func (c Currency) Valid() bool {
	return currencyCodeRegex.MatchString(string(c))
}

var (
	ErrInvalidBase   = errors.New("invalid base currency")
	ErrEmptyRates    = errors.New("snapshot has no rates")
	ErrInvalidTarget = errors.New("invalid target currency")
	ErrInvalidRate   = errors.New("rate is not finite and positive")
)

// Snapshot is the full set of target-currency rates captured for one
// base currency on one calendar date (UTC).
// It is constructed once per ingestion run, and never mutated afterwards
type Snapshot struct {
	AsOf      time.Time            `json:"as_of"`
	FetchedAt time.Time            `json:"fetched_at"`
	Base      Currency             `json:"base"`
	Rates     map[Currency]float64 `json:"rates"`
}

// Validate checks the snapshot invariants: a valid base code, at least one
// rate, valid target codes, and finite, strictly positive rate values
func (s *Snapshot) Validate() error {
	if !s.Base.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidBase, s.Base)
	}

	if len(s.Rates) == 0 {
		return ErrEmptyRates
	}

	for target, rate := range s.Rates {
		if !target.Valid() {
			return fmt.Errorf("%w: %q", ErrInvalidTarget, target)
		}

		if rate <= 0 || math.IsInf(rate, 0) || math.IsNaN(rate) {
			return fmt.Errorf("%w: %s=%v", ErrInvalidRate, target, rate)
		}
	}

	return nil
}

// Day normalizes the given time to its UTC calendar date (midnight)
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()

	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
