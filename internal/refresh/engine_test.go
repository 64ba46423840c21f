package refresh_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worldsnap/country-snapshot-server/internal/refresh"
	"github.com/worldsnap/country-snapshot-server/internal/sources"
)

// fixedMultiplier always yields the same multiplier, making derivation
// deterministic
type fixedMultiplier struct {
	value int64
}

func (f fixedMultiplier) Multiplier() int64 {
	return f.value
}

// sequenceMultiplier yields preset multipliers in order
type sequenceMultiplier struct {
	values []int64
	next   int
}

func (s *sequenceMultiplier) Multiplier() int64 {
	v := s.values[s.next]
	s.next++
	return v
}

func int64Ptr(v int64) *int64 {
	return &v
}

func TestNormalizeName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercases", "Nigeria", "nigeria"},
		{"trims whitespace", "  Nigeria  ", "nigeria"},
		{"mixed case and padding", " CÔTE D'IVOIRE ", "côte d'ivoire"},
		{"whitespace only becomes empty", "   ", ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, refresh.NormalizeName(tt.input))
		})
	}
}

func TestEngine_Derive(t *testing.T) {
	t.Parallel()

	cycleStart := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("derives GDP from population, multiplier and rate", func(t *testing.T) {
		t.Parallel()

		engine := refresh.NewEngine(fixedMultiplier{value: 1500})
		entries := []sources.CatalogEntry{
			{
				Name:       "Nigeria",
				Capital:    "Abuja",
				Region:     "Africa",
				Population: int64Ptr(206139589),
				Flag:       "https://flags.example/ng.svg",
				Currencies: []sources.Currency{{Code: "NGN"}},
			},
		}
		rates := map[string]float64{"NGN": 410.5}

		records := engine.Derive(entries, rates, cycleStart)

		require.Len(t, records, 1)
		r := records[0]
		assert.Equal(t, "Nigeria", r.Name)
		assert.Equal(t, "nigeria", r.NormalizedName)
		require.NotNil(t, r.Capital)
		assert.Equal(t, "Abuja", *r.Capital)
		require.NotNil(t, r.CurrencyCode)
		assert.Equal(t, "NGN", *r.CurrencyCode)
		require.NotNil(t, r.ExchangeRate)
		assert.Equal(t, 410.5, *r.ExchangeRate)
		require.NotNil(t, r.EstimatedGDP)
		assert.InDelta(t, 206139589*1500/410.5, *r.EstimatedGDP, 0.001)
		assert.Equal(t, cycleStart, r.LastRefreshedAt)
	})

	t.Run("skips entries missing name or population", func(t *testing.T) {
		t.Parallel()

		engine := refresh.NewEngine(fixedMultiplier{value: 1000})
		entries := []sources.CatalogEntry{
			{Name: "", Population: int64Ptr(100)},
			{Name: "   ", Population: int64Ptr(100)},
			{Name: "No Population"},
			{Name: "Kept", Population: int64Ptr(100)},
		}

		records := engine.Derive(entries, map[string]float64{}, cycleStart)

		require.Len(t, records, 1)
		assert.Equal(t, "Kept", records[0].Name)
	})

	t.Run("no currency yields GDP of exactly zero", func(t *testing.T) {
		t.Parallel()

		engine := refresh.NewEngine(fixedMultiplier{value: 1000})
		entries := []sources.CatalogEntry{
			{Name: "Antarctica", Population: int64Ptr(1000), Currencies: nil},
			{Name: "Blank Codes", Population: int64Ptr(1000), Currencies: []sources.Currency{{Code: "  "}}},
		}

		records := engine.Derive(entries, map[string]float64{"USD": 1}, cycleStart)

		require.Len(t, records, 2)
		for _, r := range records {
			assert.Nil(t, r.CurrencyCode)
			assert.Nil(t, r.ExchangeRate)
			require.NotNil(t, r.EstimatedGDP)
			assert.Equal(t, 0.0, *r.EstimatedGDP, "no currency means GDP is exactly zero, not null")
		}
	})

	t.Run("unmapped currency yields null rate and null GDP", func(t *testing.T) {
		t.Parallel()

		engine := refresh.NewEngine(fixedMultiplier{value: 1000})
		entries := []sources.CatalogEntry{
			{Name: "Ruritania", Population: int64Ptr(5000), Currencies: []sources.Currency{{Code: "RRT"}}},
		}

		records := engine.Derive(entries, map[string]float64{"USD": 1}, cycleStart)

		require.Len(t, records, 1)
		r := records[0]
		require.NotNil(t, r.CurrencyCode)
		assert.Equal(t, "RRT", *r.CurrencyCode)
		assert.Nil(t, r.ExchangeRate, "unmapped currency keeps the rate null")
		assert.Nil(t, r.EstimatedGDP, "unmapped currency keeps the GDP null")
	})

	t.Run("zero rate yields null GDP", func(t *testing.T) {
		t.Parallel()

		engine := refresh.NewEngine(fixedMultiplier{value: 1000})
		entries := []sources.CatalogEntry{
			{Name: "Zeroland", Population: int64Ptr(5000), Currencies: []sources.Currency{{Code: "ZRO"}}},
		}

		records := engine.Derive(entries, map[string]float64{"ZRO": 0}, cycleStart)

		require.Len(t, records, 1)
		r := records[0]
		require.NotNil(t, r.ExchangeRate)
		assert.Equal(t, 0.0, *r.ExchangeRate)
		assert.Nil(t, r.EstimatedGDP)
	})

	t.Run("lowercase currency code is uppercased before the rate lookup", func(t *testing.T) {
		t.Parallel()

		engine := refresh.NewEngine(fixedMultiplier{value: 1000})
		entries := []sources.CatalogEntry{
			{Name: "Nigeria", Population: int64Ptr(206000000), Currencies: []sources.Currency{{Code: "ngn"}}},
		}

		records := engine.Derive(entries, map[string]float64{"NGN": 410.5}, cycleStart)

		require.Len(t, records, 1)
		r := records[0]
		require.NotNil(t, r.CurrencyCode)
		assert.Equal(t, "NGN", *r.CurrencyCode)
		require.NotNil(t, r.ExchangeRate)
		assert.Equal(t, 410.5, *r.ExchangeRate)
		require.NotNil(t, r.EstimatedGDP)
	})

	t.Run("first non-empty currency code wins", func(t *testing.T) {
		t.Parallel()

		engine := refresh.NewEngine(fixedMultiplier{value: 1000})
		entries := []sources.CatalogEntry{
			{
				Name:       "Multi",
				Population: int64Ptr(100),
				Currencies: []sources.Currency{{Code: ""}, {Code: "EUR"}, {Code: "USD"}},
			},
		}

		records := engine.Derive(entries, map[string]float64{"EUR": 0.9, "USD": 1}, cycleStart)

		require.Len(t, records, 1)
		require.NotNil(t, records[0].CurrencyCode)
		assert.Equal(t, "EUR", *records[0].CurrencyCode)
	})

	t.Run("each country draws its own multiplier", func(t *testing.T) {
		t.Parallel()

		engine := refresh.NewEngine(&sequenceMultiplier{values: []int64{1000, 2000}})
		entries := []sources.CatalogEntry{
			{Name: "A", Population: int64Ptr(10), Currencies: []sources.Currency{{Code: "USD"}}},
			{Name: "B", Population: int64Ptr(10), Currencies: []sources.Currency{{Code: "USD"}}},
		}

		records := engine.Derive(entries, map[string]float64{"USD": 1}, cycleStart)

		require.Len(t, records, 2)
		require.NotNil(t, records[0].EstimatedGDP)
		require.NotNil(t, records[1].EstimatedGDP)
		assert.Equal(t, 10000.0, *records[0].EstimatedGDP)
		assert.Equal(t, 20000.0, *records[1].EstimatedGDP)
	})

	t.Run("empty optional fields become null", func(t *testing.T) {
		t.Parallel()

		engine := refresh.NewEngine(fixedMultiplier{value: 1000})
		entries := []sources.CatalogEntry{
			{Name: "Bare", Capital: "  ", Region: "", Flag: "", Population: int64Ptr(1)},
		}

		records := engine.Derive(entries, map[string]float64{}, cycleStart)

		require.Len(t, records, 1)
		assert.Nil(t, records[0].Capital)
		assert.Nil(t, records[0].Region)
		assert.Nil(t, records[0].FlagURL)
	})
}

func TestRandomMultiplierSource_Bounds(t *testing.T) {
	t.Parallel()

	source := refresh.NewRandomMultiplierSource()
	for i := 0; i < 1000; i++ {
		m := source.Multiplier()
		assert.GreaterOrEqual(t, m, int64(1000))
		assert.LessOrEqual(t, m, int64(2000))
	}
}
