//nolint:tagliatelle // API payload uses lowercase keys
package currencyapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sig-0/ratefeed/provider"
	"github.com/sig-0/ratefeed/storage/types"
)

const defaultAPIURL = "https://currencyapi.net/api/v1/rates"

var (
	errMissingAPIKey = errors.New("missing API key")
	errRejectedByAPI = errors.New("request rejected by rates API")
)

// ratesResponse is the rates API response payload
type ratesResponse struct {
	Valid   bool               `json:"valid"`
	Updated int64              `json:"updated"`
	Base    string             `json:"base"`
	Rates   map[string]float64 `json:"rates"`
}

// Provider fetches daily exchange rates from the currencyapi.net JSON API
type Provider struct {
	client *http.Client
	url    string
	apiKey string
	base   types.Currency
}

// NewProvider creates a new rates API provider for the given base currency
func NewProvider(apiKey string, base types.Currency, timeout time.Duration) *Provider {
	return &Provider{
		client: &http.Client{
			Timeout: timeout,
		},
		url:    defaultAPIURL,
		apiKey: apiKey,
		base:   base,
	}
}

// WithURL overrides the API endpoint. Used in tests
func (p *Provider) WithURL(url string) *Provider {
	p.url = url

	return p
}

func (p *Provider) Name() string {
	return "currencyapi.net"
}

func (p *Provider) Fetch(ctx context.Context) (*types.Snapshot, error) {
	// Fail fast before touching the network
	if !p.base.Valid() {
		return nil, provider.Permanent(
			fmt.Errorf("%w: %q", types.ErrInvalidBase, p.base),
		)
	}

	if p.apiKey == "" {
		return nil, provider.Permanent(errMissingAPIKey)
	}

	// Prepare the request
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, http.NoBody)
	if err != nil {
		return nil, provider.Permanent(
			fmt.Errorf("unable to create GET request: %w", err),
		)
	}

	query := url.Values{}
	query.Set("key", p.apiKey)
	query.Set("base", p.base.String())

	req.URL.RawQuery = query.Encode()

	// Execute the request
	resp, err := p.client.Do(req)
	if err != nil {
		// Timeouts and connection errors are worth retrying
		return nil, provider.Transient(
			fmt.Errorf("unable to execute GET request: %w", err),
		)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return nil, provider.Transient(
			fmt.Errorf("invalid status code received: %d", resp.StatusCode),
		)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, provider.Permanent(
			fmt.Errorf("%w: status code %d", errRejectedByAPI, resp.StatusCode),
		)
	}

	var apiResp ratesResponse
	if err = json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		// A 200 with an undecodable body will not improve on retry
		return nil, provider.Permanent(
			fmt.Errorf("unable to decode response: %w", err),
		)
	}

	if !apiResp.Valid {
		return nil, provider.Permanent(
			fmt.Errorf("%w: response marked invalid", errRejectedByAPI),
		)
	}

	fetchTime := time.Now().UTC()

	// The provider-stated date comes from the "updated" timestamp,
	// falling back to the fetch time when absent
	effectiveDate := types.Day(fetchTime)
	if apiResp.Updated > 0 {
		effectiveDate = types.Day(time.Unix(apiResp.Updated, 0))
	}

	rates := make(map[types.Currency]float64, len(apiResp.Rates))

	for code, rate := range apiResp.Rates {
		target := types.Currency(code)

		// The API echoes the base back as a 1.0 self-rate, drop it
		if target == p.base {
			continue
		}

		rates[target] = rate
	}

	snapshot := &types.Snapshot{
		AsOf:      effectiveDate,
		FetchedAt: fetchTime,
		Base:      p.base,
		Rates:     rates,
	}

	if err = snapshot.Validate(); err != nil {
		return nil, provider.Validation(err)
	}

	return snapshot, nil
}
