// Package refresh implements the snapshot refresh pipeline: concurrent
// source fetches, the merge and derivation engine, and the single-flight
// orchestrator that applies the result atomically.
package refresh

import (
	"math/rand"
	"strings"
	"time"

	"github.com/worldsnap/country-snapshot-server/internal/sources"
)

// Multiplier bounds for the estimated-GDP derivation. A fresh multiplier is
// drawn per country per cycle.
const (
	multiplierMin = 1000
	multiplierMax = 2000
)

// MultiplierSource yields the random multipliers used in GDP derivation.
// Injectable so derivation is deterministic under test.
type MultiplierSource interface {
	// Multiplier returns a value in [1000, 2000] inclusive
	Multiplier() int64
}

// randMultiplierSource draws from the shared math/rand/v2 generator
type randMultiplierSource struct{}

func (randMultiplierSource) Multiplier() int64 {
	return rand.Int63n(multiplierMax-multiplierMin+1) + multiplierMin
}

// NewRandomMultiplierSource returns the default pseudo-random multiplier
// source
func NewRandomMultiplierSource() MultiplierSource {
	return randMultiplierSource{}
}

// Record is one fully derived country row ready for storage. Nullable columns
// are pointers; EstimatedGDP distinguishes exactly-zero (no currency) from
// null (unmapped currency).
type Record struct {
	Name            string
	NormalizedName  string
	Capital         *string
	Region          *string
	Population      int64
	CurrencyCode    *string
	ExchangeRate    *float64
	EstimatedGDP    *float64
	FlagURL         *string
	LastRefreshedAt time.Time
}

// NormalizeName produces the identity key for a country name. Lookups,
// deletes, and upsert conflict detection all go through this.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Engine merges the countries catalog with the exchange-rate table and
// derives estimated GDP per country
type Engine struct {
	multipliers MultiplierSource
}

// NewEngine creates a derivation engine using the given multiplier source
func NewEngine(multipliers MultiplierSource) *Engine {
	return &Engine{multipliers: multipliers}
}

// Derive merges catalog entries with the rate table into storage-ready
// records stamped with cycleStart. Entries missing a usable name or a
// population are skipped entirely. Per entry:
//   - no currencies: currency code and rate are null, estimated GDP is
//     exactly 0
//   - currency code absent from the rate table: rate and estimated GDP are
//     both null
//   - rate present and non-zero: estimatedGDP = population * multiplier / rate
//     with a fresh multiplier per country
//   - rate present but zero: estimated GDP is null (division is undefined)
func (e *Engine) Derive(entries []sources.CatalogEntry, rates map[string]float64, cycleStart time.Time) []Record {
	records := make([]Record, 0, len(entries))

	for _, entry := range entries {
		normalized := NormalizeName(entry.Name)
		if normalized == "" || entry.Population == nil {
			continue
		}

		record := Record{
			Name:            strings.TrimSpace(entry.Name),
			NormalizedName:  normalized,
			Capital:         optionalString(entry.Capital),
			Region:          optionalString(entry.Region),
			Population:      *entry.Population,
			FlagURL:         optionalString(entry.Flag),
			LastRefreshedAt: cycleStart,
		}

		code := firstCurrencyCode(entry.Currencies)
		if code == "" {
			zero := 0.0
			record.EstimatedGDP = &zero
			records = append(records, record)
			continue
		}

		record.CurrencyCode = &code
		rate, ok := rates[code]
		if !ok {
			records = append(records, record)
			continue
		}

		record.ExchangeRate = &rate
		if rate != 0 {
			gdp := float64(record.Population) * float64(e.multipliers.Multiplier()) / rate
			record.EstimatedGDP = &gdp
		}
		records = append(records, record)
	}

	return records
}

// firstCurrencyCode returns the first non-empty currency code, trimmed and
// uppercased, or ""
func firstCurrencyCode(currencies []sources.Currency) string {
	for _, c := range currencies {
		if code := strings.ToUpper(strings.TrimSpace(c.Code)); code != "" {
			return code
		}
	}
	return ""
}

// optionalString maps a trimmed-empty string to nil
func optionalString(s string) *string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
