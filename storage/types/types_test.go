package types

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validSnapshot() *Snapshot {
	return &Snapshot{
		AsOf:      time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC),
		FetchedAt: time.Now().UTC(),
		Base:      CurrencyUSD,
		Rates: map[Currency]float64{
			CurrencyEUR: 0.92,
			CurrencyGBP: 0.79,
		},
	}
}

func TestSnapshot_Validate(t *testing.T) {
	t.Parallel()

	testTable := []struct {
		name        string
		mutate      func(s *Snapshot)
		expectedErr error
	}{
		{
			name:        "valid snapshot",
			mutate:      func(_ *Snapshot) {},
			expectedErr: nil,
		},
		{
			name: "invalid base",
			mutate: func(s *Snapshot) {
				s.Base = "usd"
			},
			expectedErr: ErrInvalidBase,
		},
		{
			name: "empty rates",
			mutate: func(s *Snapshot) {
				s.Rates = nil
			},
			expectedErr: ErrEmptyRates,
		},
		{
			name: "invalid target code",
			mutate: func(s *Snapshot) {
				s.Rates["EURO"] = 0.92
			},
			expectedErr: ErrInvalidTarget,
		},
		{
			name: "zero rate",
			mutate: func(s *Snapshot) {
				s.Rates[CurrencyEUR] = 0
			},
			expectedErr: ErrInvalidRate,
		},
		{
			name: "negative rate",
			mutate: func(s *Snapshot) {
				s.Rates[CurrencyEUR] = -0.5
			},
			expectedErr: ErrInvalidRate,
		},
		{
			name: "NaN rate",
			mutate: func(s *Snapshot) {
				s.Rates[CurrencyEUR] = math.NaN()
			},
			expectedErr: ErrInvalidRate,
		},
		{
			name: "infinite rate",
			mutate: func(s *Snapshot) {
				s.Rates[CurrencyEUR] = math.Inf(1)
			},
			expectedErr: ErrInvalidRate,
		},
	}

	for _, testCase := range testTable {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			s := validSnapshot()
			testCase.mutate(s)

			if testCase.expectedErr == nil {
				assert.NoError(t, s.Validate())

				return
			}

			assert.ErrorIs(t, s.Validate(), testCase.expectedErr)
		})
	}
}

func TestDay(t *testing.T) {
	t.Parallel()

	var (
		input    = time.Date(2024, time.January, 15, 23, 59, 59, 999, time.FixedZone("VET", -4*60*60))
		expected = time.Date(2024, time.January, 16, 0, 0, 0, 0, time.UTC)
	)

	// 23:59 VET is already the 16th in UTC
	assert.Equal(t, expected, Day(input))
}
