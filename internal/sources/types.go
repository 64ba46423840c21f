// Package sources implements the external data clients for the refresh
// pipeline: the countries catalog and the currency exchange-rate table.
package sources

import "fmt"

// Logical source names carried in error reporting. The refresh response must
// name the failing source, so these are part of the external contract.
const (
	// SourceCountries identifies the countries catalog API
	SourceCountries = "Countries API"

	// SourceExchangeRates identifies the exchange-rate API
	SourceExchangeRates = "Exchange Rates API"
)

// SourceError tags a fetch failure with the logical source that produced it
//
//nolint:revive // The name reads fine at call sites
type SourceError struct {
	// Source is one of SourceCountries or SourceExchangeRates
	Source string
	Err    error
}

// Error returns the error message
func (e *SourceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Source, e.Err)
}

// Unwrap returns the underlying error
func (e *SourceError) Unwrap() error {
	return e.Err
}

// CatalogEntry is one raw country entry as returned by the catalog API.
// Population is a pointer because its absence excludes the country from the
// refresh cycle, which is different from a zero population.
type CatalogEntry struct {
	Name       string     `json:"name"`
	Capital    string     `json:"capital"`
	Region     string     `json:"region"`
	Population *int64     `json:"population"`
	Flag       string     `json:"flag"`
	Currencies []Currency `json:"currencies"`
}

// Currency is one entry of a catalog country's currency list
type Currency struct {
	Code string `json:"code"`
}
