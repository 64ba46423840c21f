// Package service defines the read-side domain API over the stored country
// snapshot
package service

import (
	"context"
	"errors"
	"time"
)

// ErrCountryNotFound is returned when a country lookup matches no stored row
var ErrCountryNotFound = errors.New("country not found")

// Sort orders accepted by ListCountries
const (
	// SortGDPDesc orders by estimated GDP, highest first
	SortGDPDesc = "gdp_desc"

	// SortGDPAsc orders by estimated GDP, lowest first
	SortGDPAsc = "gdp_asc"
)

// Pagination bounds for ListCountries
const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// Country is one stored country row as served to clients. Nullable columns
// are pointers and serialize to JSON null.
type Country struct {
	Name            string    `json:"name"`
	Capital         *string   `json:"capital"`
	Region          *string   `json:"region"`
	Population      int64     `json:"population"`
	CurrencyCode    *string   `json:"currency_code"`
	ExchangeRate    *float64  `json:"exchange_rate"`
	EstimatedGDP    *float64  `json:"estimated_gdp"`
	FlagURL         *string   `json:"flag_url"`
	LastRefreshedAt time.Time `json:"last_refreshed_at"`
}

// Status is the snapshot-level state served by the status endpoint.
// LastRefreshedAt is nil until the first successful refresh.
type Status struct {
	TotalCountries  int64      `json:"total_countries"`
	LastRefreshedAt *time.Time `json:"last_refreshed_at"`
}

// ListCountriesOptions narrows and orders a country listing
type ListCountriesOptions struct {
	// Region filters to countries whose region matches exactly
	Region string

	// CurrencyCode filters to countries using the given currency code
	CurrencyCode string

	// Sort is one of the Sort constants, or empty for name order
	Sort string

	// Limit caps the page size; 0 means DefaultPageSize
	Limit int

	// Offset skips the first N rows of the result
	Offset int
}

// ListOption mutates ListCountriesOptions
type ListOption func(*ListCountriesOptions)

// WithRegion filters the listing by region
func WithRegion(region string) ListOption {
	return func(o *ListCountriesOptions) {
		o.Region = region
	}
}

// WithCurrencyCode filters the listing by currency code
func WithCurrencyCode(code string) ListOption {
	return func(o *ListCountriesOptions) {
		o.CurrencyCode = code
	}
}

// WithSort orders the listing
func WithSort(sort string) ListOption {
	return func(o *ListCountriesOptions) {
		o.Sort = sort
	}
}

// WithPage sets the listing page bounds
func WithPage(limit, offset int) ListOption {
	return func(o *ListCountriesOptions) {
		o.Limit = limit
		o.Offset = offset
	}
}

// CountryService provides read and delete access to the stored snapshot
//
//go:generate mockgen -destination=mocks/mock_service.go -package=mocks -source=service.go CountryService
type CountryService interface {
	// ListCountries returns stored countries narrowed by the given options
	ListCountries(ctx context.Context, opts ...ListOption) ([]Country, error)

	// GetCountry returns one country matched case-insensitively by name.
	// Returns ErrCountryNotFound when no row matches.
	GetCountry(ctx context.Context, name string) (*Country, error)

	// DeleteCountry removes one country matched case-insensitively by name.
	// Returns ErrCountryNotFound when no row matches.
	DeleteCountry(ctx context.Context, name string) error

	// Status returns the stored total and last refresh time
	Status(ctx context.Context) (*Status, error)

	// CheckReadiness verifies the backing store is reachable
	CheckReadiness(ctx context.Context) error
}
