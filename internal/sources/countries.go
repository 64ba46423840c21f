package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/worldsnap/country-snapshot-server/internal/httpclient"
)

// CountriesClient fetches the countries catalog from its configured endpoint
type CountriesClient struct {
	client httpclient.Client
	url    string
}

// NewCountriesClient creates a new countries catalog client
func NewCountriesClient(client httpclient.Client, url string) *CountriesClient {
	return &CountriesClient{
		client: client,
		url:    url,
	}
}

// Fetch retrieves and decodes the full countries catalog. Every failure,
// including an unexpected response shape, is tagged with the Countries API
// source name.
func (c *CountriesClient) Fetch(ctx context.Context) ([]CatalogEntry, error) {
	body, err := c.client.Get(ctx, c.url)
	if err != nil {
		return nil, &SourceError{Source: SourceCountries, Err: err}
	}

	var entries []CatalogEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, &SourceError{
			Source: SourceCountries,
			Err:    fmt.Errorf("unexpected response shape: %w", err),
		}
	}

	slog.DebugContext(ctx, "Fetched countries catalog", "entries", len(entries))
	return entries, nil
}
