package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/worldsnap/country-snapshot-server/internal/artifact"
	"github.com/worldsnap/country-snapshot-server/internal/sources"
)

// ErrRefreshInProgress is returned when a refresh cycle is already running
var ErrRefreshInProgress = errors.New("refresh already in progress")

// topRankSize is how many countries the summary artifact ranks
const topRankSize = 5

// CatalogFetcher fetches the raw countries catalog
type CatalogFetcher interface {
	Fetch(ctx context.Context) ([]sources.CatalogEntry, error)
}

// RateFetcher fetches the exchange-rate table
type RateFetcher interface {
	Fetch(ctx context.Context) (map[string]float64, error)
}

// AggregateState is the post-apply aggregate view used for the artifact
type AggregateState struct {
	Total int64
	Top   []artifact.RankedCountry
}

// SnapshotStore persists a derived snapshot and reports aggregate state
//
//go:generate mockgen -destination=mocks/mock_store.go -package=mocks -source=orchestrator.go SnapshotStore
type SnapshotStore interface {
	// ApplySnapshot atomically upserts all records and stamps the snapshot
	// refresh time. Either every record lands or none do.
	ApplySnapshot(ctx context.Context, records []Record, refreshedAt time.Time) error

	// Aggregates returns the stored total and the top-N countries by
	// estimated GDP
	Aggregates(ctx context.Context, topN int) (*AggregateState, error)
}

// Result is the outcome of a completed refresh cycle
type Result struct {
	TotalCountries  int64
	LastRefreshedAt time.Time
}

// Orchestrator drives one refresh cycle end to end: fetch both sources
// concurrently, derive records, apply them atomically, then regenerate the
// summary artifact. At most one cycle runs at a time.
type Orchestrator struct {
	catalog  CatalogFetcher
	rates    RateFetcher
	engine   *Engine
	store    SnapshotStore
	renderer artifact.Renderer

	running atomic.Bool
}

// NewOrchestrator creates a refresh orchestrator
func NewOrchestrator(
	catalog CatalogFetcher,
	rates RateFetcher,
	engine *Engine,
	store SnapshotStore,
	renderer artifact.Renderer,
) *Orchestrator {
	return &Orchestrator{
		catalog:  catalog,
		rates:    rates,
		engine:   engine,
		store:    store,
		renderer: renderer,
	}
}

// Refresh runs one refresh cycle. Returns ErrRefreshInProgress when another
// cycle holds the guard; the guard is released on every exit path.
func (o *Orchestrator) Refresh(ctx context.Context) (*Result, error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, ErrRefreshInProgress
	}
	defer o.running.Store(false)

	cycleID := uuid.New().String()
	cycleStart := time.Now().UTC()
	logger := slog.With("cycle_id", cycleID)
	logger.InfoContext(ctx, "Starting refresh cycle")

	var (
		entries []sources.CatalogEntry
		rates   map[string]float64
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		entries, err = o.catalog.Fetch(groupCtx)
		return err
	})
	group.Go(func() error {
		var err error
		rates, err = o.rates.Fetch(groupCtx)
		return err
	})
	if err := group.Wait(); err != nil {
		logger.ErrorContext(ctx, "Refresh cycle failed during fetch", "error", err)
		return nil, err
	}

	records := o.engine.Derive(entries, rates, cycleStart)
	logger.InfoContext(ctx, "Derived snapshot records",
		"catalog_entries", len(entries),
		"records", len(records),
		"rates", len(rates))

	if err := o.store.ApplySnapshot(ctx, records, cycleStart); err != nil {
		logger.ErrorContext(ctx, "Refresh cycle failed during apply", "error", err)
		return nil, fmt.Errorf("failed to apply snapshot: %w", err)
	}

	aggregates, err := o.store.Aggregates(ctx, topRankSize)
	if err != nil {
		// The snapshot is committed; fall back to cycle-local counts and
		// skip the artifact.
		logger.WarnContext(ctx, "Failed to read aggregates after apply", "error", err)
		return &Result{
			TotalCountries:  int64(len(records)),
			LastRefreshedAt: cycleStart,
		}, nil
	}

	// Artifact generation is best-effort: a failure never fails the cycle
	summary := artifact.Summary{
		TotalCountries: aggregates.Total,
		RefreshedAt:    cycleStart,
		Top:            aggregates.Top,
	}
	if err := o.renderer.Render(ctx, summary); err != nil {
		logger.WarnContext(ctx, "Failed to render summary artifact", "error", err)
	}

	logger.InfoContext(ctx, "Refresh cycle complete",
		"total_countries", aggregates.Total,
		"duration", time.Since(cycleStart))

	return &Result{
		TotalCountries:  aggregates.Total,
		LastRefreshedAt: cycleStart,
	}, nil
}
