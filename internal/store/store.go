// Package store implements the PostgreSQL persistence layer for the country
// snapshot
package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/worldsnap/country-snapshot-server/internal/artifact"
	"github.com/worldsnap/country-snapshot-server/internal/refresh"
	"github.com/worldsnap/country-snapshot-server/internal/service"
)

// metadataKeyLastRefreshed is the refresh_metadata key holding the snapshot
// refresh timestamp
const metadataKeyLastRefreshed = "last_refreshed_at"

// Store provides country snapshot persistence backed by a pgx pool. It
// implements both the read-side service API and the refresh snapshot sink.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a store using the provided connection pool
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// countryColumns is the select list shared by every country read
const countryColumns = `name, capital, region, population, currency_code, exchange_rate, estimated_gdp, flag_url, last_refreshed_at`

// ApplySnapshot upserts every record and the refresh timestamp in one
// serializable transaction. A failure rolls the whole snapshot back.
func (s *Store) ApplySnapshot(ctx context.Context, records []refresh.Record, refreshedAt time.Time) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			err = errors.Join(err, fmt.Errorf("failed to rollback transaction: %w", rbErr))
		}
	}()

	const upsertCountry = `
		INSERT INTO countries (
			name, normalized_name, capital, region, population,
			currency_code, exchange_rate, estimated_gdp, flag_url, last_refreshed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (normalized_name) DO UPDATE SET
			name = EXCLUDED.name,
			capital = EXCLUDED.capital,
			region = EXCLUDED.region,
			population = EXCLUDED.population,
			currency_code = EXCLUDED.currency_code,
			exchange_rate = EXCLUDED.exchange_rate,
			estimated_gdp = EXCLUDED.estimated_gdp,
			flag_url = EXCLUDED.flag_url,
			last_refreshed_at = EXCLUDED.last_refreshed_at`

	for _, r := range records {
		if _, err = tx.Exec(ctx, upsertCountry,
			r.Name, r.NormalizedName, r.Capital, r.Region, r.Population,
			r.CurrencyCode, r.ExchangeRate, r.EstimatedGDP, r.FlagURL, r.LastRefreshedAt,
		); err != nil {
			return fmt.Errorf("failed to upsert country %q: %w", r.Name, err)
		}
	}

	const upsertMetadata = `
		INSERT INTO refresh_metadata (key, value)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`

	if _, err = tx.Exec(ctx, upsertMetadata,
		metadataKeyLastRefreshed, refreshedAt.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("failed to record refresh timestamp: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Aggregates returns the stored country total and the top-N countries by
// estimated GDP. Rows with a null estimated GDP never rank.
func (s *Store) Aggregates(ctx context.Context, topN int) (*refresh.AggregateState, error) {
	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM countries`).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count countries: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT name, estimated_gdp
		FROM countries
		WHERE estimated_gdp IS NOT NULL
		ORDER BY estimated_gdp DESC
		LIMIT $1`, topN)
	if err != nil {
		return nil, fmt.Errorf("failed to query top countries: %w", err)
	}
	defer rows.Close()

	var top []artifact.RankedCountry
	for rows.Next() {
		var ranked artifact.RankedCountry
		if err := rows.Scan(&ranked.Name, &ranked.EstimatedGDP); err != nil {
			return nil, fmt.Errorf("failed to scan top country: %w", err)
		}
		top = append(top, ranked)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read top countries: %w", err)
	}

	return &refresh.AggregateState{Total: total, Top: top}, nil
}

// ListCountries returns stored countries narrowed by the given options
func (s *Store) ListCountries(ctx context.Context, opts ...service.ListOption) ([]service.Country, error) {
	options := service.ListCountriesOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	query, args := buildListSQL(options)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query countries: %w", err)
	}
	defer rows.Close()

	countries := []service.Country{}
	for rows.Next() {
		country, err := scanCountry(rows)
		if err != nil {
			return nil, err
		}
		countries = append(countries, *country)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read countries: %w", err)
	}

	return countries, nil
}

// buildListSQL assembles the listing query for the given options
func buildListSQL(options service.ListCountriesOptions) (string, []any) {
	var b strings.Builder
	b.WriteString(`SELECT ` + countryColumns + ` FROM countries`)

	var (
		conditions []string
		args       []any
	)
	if options.Region != "" {
		args = append(args, options.Region)
		conditions = append(conditions, "region = $"+strconv.Itoa(len(args)))
	}
	if options.CurrencyCode != "" {
		args = append(args, options.CurrencyCode)
		conditions = append(conditions, "currency_code = $"+strconv.Itoa(len(args)))
	}
	if len(conditions) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conditions, " AND "))
	}

	switch options.Sort {
	case service.SortGDPDesc:
		b.WriteString(" ORDER BY estimated_gdp DESC NULLS LAST, name ASC")
	case service.SortGDPAsc:
		b.WriteString(" ORDER BY estimated_gdp ASC NULLS LAST, name ASC")
	default:
		b.WriteString(" ORDER BY name ASC")
	}

	limit := options.Limit
	if limit <= 0 {
		limit = service.DefaultPageSize
	}
	if limit > service.MaxPageSize {
		limit = service.MaxPageSize
	}
	args = append(args, limit)
	b.WriteString(" LIMIT $" + strconv.Itoa(len(args)))

	if options.Offset > 0 {
		args = append(args, options.Offset)
		b.WriteString(" OFFSET $" + strconv.Itoa(len(args)))
	}

	return b.String(), args
}

// GetCountry returns one country matched by normalized name
func (s *Store) GetCountry(ctx context.Context, name string) (*service.Country, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+countryColumns+` FROM countries WHERE normalized_name = $1`,
		refresh.NormalizeName(name))

	country, err := scanCountry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, service.ErrCountryNotFound
		}
		return nil, err
	}
	return country, nil
}

// DeleteCountry removes one country matched by normalized name
func (s *Store) DeleteCountry(ctx context.Context, name string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM countries WHERE normalized_name = $1`,
		refresh.NormalizeName(name))
	if err != nil {
		return fmt.Errorf("failed to delete country: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return service.ErrCountryNotFound
	}
	return nil
}

// Status returns the stored total and the recorded last refresh time.
// LastRefreshedAt is nil before the first successful refresh.
func (s *Store) Status(ctx context.Context) (*service.Status, error) {
	status := &service.Status{}
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM countries`).Scan(&status.TotalCountries); err != nil {
		return nil, fmt.Errorf("failed to count countries: %w", err)
	}

	var value string
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM refresh_metadata WHERE key = $1`,
		metadataKeyLastRefreshed).Scan(&value)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return status, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read refresh metadata: %w", err)
	}

	refreshedAt, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return nil, fmt.Errorf("failed to parse refresh timestamp %q: %w", value, err)
	}
	status.LastRefreshedAt = &refreshedAt
	return status, nil
}

// CheckReadiness verifies the connection pool can reach the database
func (s *Store) CheckReadiness(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("database not reachable: %w", err)
	}
	return nil
}

// scanCountry scans one country row in countryColumns order
func scanCountry(row pgx.Row) (*service.Country, error) {
	var c service.Country
	if err := row.Scan(
		&c.Name, &c.Capital, &c.Region, &c.Population, &c.CurrencyCode,
		&c.ExchangeRate, &c.EstimatedGDP, &c.FlagURL, &c.LastRefreshedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan country: %w", err)
	}
	return &c, nil
}
