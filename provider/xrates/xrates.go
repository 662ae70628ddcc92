package xrates

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/sig-0/ratefeed/provider"
	"github.com/sig-0/ratefeed/storage/types"
)

const defaultTableURL = "https://www.x-rates.com/table/"

var errNoTableRows = errors.New("no rate table rows found")

// Provider scrapes the x-rates.com daily rate table.
// It serves as a keyless fallback when the JSON API is not configured
type Provider struct {
	client *http.Client
	url    string
	base   types.Currency
}

// NewProvider creates a new x-rates.com table provider for the given base
func NewProvider(base types.Currency, timeout time.Duration) *Provider {
	return &Provider{
		client: &http.Client{
			Timeout: timeout,
		},
		url:  defaultTableURL,
		base: base,
	}
}

// WithURL overrides the table endpoint. Used in tests
func (p *Provider) WithURL(url string) *Provider {
	p.url = url

	return p
}

func (p *Provider) Name() string {
	return "x-rates.com"
}

func (p *Provider) Fetch(ctx context.Context) (*types.Snapshot, error) {
	if !p.base.Valid() {
		return nil, provider.Permanent(
			fmt.Errorf("%w: %q", types.ErrInvalidBase, p.base),
		)
	}

	// Prepare the request
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, http.NoBody)
	if err != nil {
		return nil, provider.Permanent(
			fmt.Errorf("unable to create GET request: %w", err),
		)
	}

	query := url.Values{}
	query.Set("from", p.base.String())
	query.Set("amount", "1")

	req.URL.RawQuery = query.Encode()

	// Execute the request
	resp, err := p.client.Do(req)
	if err != nil {
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
			fmt.Errorf("invalid status code received: %d", resp.StatusCode),
		)
	}

	// Construct document for parsing
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, provider.Permanent(
			fmt.Errorf("unable to construct query doc: %w", err),
		)
	}

	var (
		fetchTime = time.Now().UTC()
		rates     = make(map[types.Currency]float64)
	)

	doc.Find("table.ratesTable tbody tr").Each(func(_ int, tr *goquery.Selection) {
		// The first rate cell links to the pair page, the target code
		// is carried in the link's "to" query parameter
		link := tr.Find("td.rtRates a").First()

		href, ok := link.Attr("href")
		if !ok {
			return
		}

		target := targetFromHref(href)
		if target == "" || target == p.base {
			return
		}

		rate, err := strconv.ParseFloat(strings.TrimSpace(link.Text()), 64)
		if err != nil {
			return
		}

		rates[target] = math.Round(rate*1e4) / 1e4
	})

	if len(rates) == 0 {
		return nil, provider.Validation(errNoTableRows)
	}

	snapshot := &types.Snapshot{
		AsOf:      types.Day(fetchTime),
		FetchedAt: fetchTime,
		Base:      p.base,
		Rates:     rates,
	}

	if err = snapshot.Validate(); err != nil {
		return nil, provider.Validation(err)
	}

	return snapshot, nil
}

// targetFromHref extracts the target currency code from a pair link,
// e.g. "/graph/?from=USD&to=EUR"
func targetFromHref(href string) types.Currency {
	parsed, err := url.Parse(href)
	if err != nil {
		return ""
	}

	target := types.Currency(
		strings.ToUpper(parsed.Query().Get("to")),
	)

	if !target.Valid() {
		return ""
	}

	return target
}
