package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/worldsnap/country-snapshot-server/internal/httpclient"
)

// ratesEnvelope covers the response shapes of the supported exchange-rate
// providers. Some return the table under "rates", others under
// "conversion_rates".
type ratesEnvelope struct {
	Rates           map[string]float64 `json:"rates"`
	ConversionRates map[string]float64 `json:"conversion_rates"`
}

// RatesClient fetches the currency exchange-rate table from its configured
// endpoint and normalizes the provider shape into one flat mapping from
// currency code to USD rate.
type RatesClient struct {
	client httpclient.Client
	url    string
}

// NewRatesClient creates a new exchange-rate client
func NewRatesClient(client httpclient.Client, url string) *RatesClient {
	return &RatesClient{
		client: client,
		url:    url,
	}
}

// Fetch retrieves the exchange-rate table. An unrecognized-but-valid JSON
// shape yields an empty mapping rather than a failure; transport errors,
// non-2xx responses, and invalid JSON are tagged with the Exchange Rates API
// source name.
func (c *RatesClient) Fetch(ctx context.Context) (map[string]float64, error) {
	body, err := c.client.Get(ctx, c.url)
	if err != nil {
		return nil, &SourceError{Source: SourceExchangeRates, Err: err}
	}

	var envelope ratesEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &SourceError{
			Source: SourceExchangeRates,
			Err:    fmt.Errorf("unexpected response shape: %w", err),
		}
	}

	switch {
	case envelope.Rates != nil:
		return envelope.Rates, nil
	case envelope.ConversionRates != nil:
		return envelope.ConversionRates, nil
	default:
		slog.WarnContext(ctx, "Exchange-rate response carried no recognized rate table, proceeding with no rates",
			"url", c.url)
		return map[string]float64{}, nil
	}
}
