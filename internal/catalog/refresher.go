package catalog

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bbernstein/fuelwatch/backend-go/internal/cache"
	"github.com/bbernstein/fuelwatch/backend-go/internal/cluster"
	"github.com/bbernstein/fuelwatch/backend-go/internal/models"
)

const defaultRefreshInterval = time.Hour

var ErrNoSnapshot = errors.New("no catalog snapshot available")

// IndexSwapper receives each rebuilt index.
type IndexSwapper interface {
	Swap(idx *cluster.Index) uint64
}

// RefreshResult describes one completed refresh. Rejected counts loaded
// stations that failed validation and were dropped from the snapshot.
type RefreshResult struct {
	Source       string
	Stations     int
	Rejected     int
	Version      uint64
	IndexVersion uint64
	FromBackup   bool
	Stats        cluster.BuildStats
}

// Refresher reloads the catalog, rebuilds the cluster index from scratch and
// swaps it in. Refreshes are serialized.
type Refresher struct {
	source   Source
	store    *cache.StationCache
	swapper  IndexSwapper
	backup   cache.StationListCacheProvider
	opts     cluster.Options
	interval time.Duration
	observer func(RefreshResult, error)

	mu sync.Mutex
}

type RefresherOption func(*Refresher)

// WithBackup keeps a copy of every good snapshot and falls back to it when the
// source fails.
func WithBackup(b cache.StationListCacheProvider) RefresherOption {
	return func(r *Refresher) {
		r.backup = b
	}
}

func WithClusterOptions(opts cluster.Options) RefresherOption {
	return func(r *Refresher) {
		r.opts = opts
	}
}

func WithInterval(d time.Duration) RefresherOption {
	return func(r *Refresher) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithObserver is called after every refresh attempt, successful or not.
func WithObserver(fn func(RefreshResult, error)) RefresherOption {
	return func(r *Refresher) {
		r.observer = fn
	}
}

func NewRefresher(source Source, store *cache.StationCache, swapper IndexSwapper, opts ...RefresherOption) *Refresher {
	r := &Refresher{
		source:   source,
		store:    store,
		swapper:  swapper,
		opts:     cluster.DefaultOptions(),
		interval: defaultRefreshInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Refresh loads a new snapshot and publishes it. When the source fails the
// backup is tried; if neither yields stations the current snapshot stays.
func (r *Refresher) Refresh(ctx context.Context) (RefreshResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refreshLocked(ctx)
}

func (r *Refresher) refreshLocked(ctx context.Context) (RefreshResult, error) {
	result, err := r.load(ctx)
	if r.observer != nil {
		r.observer(result, err)
	}
	return result, err
}

func (r *Refresher) load(ctx context.Context) (RefreshResult, error) {
	result := RefreshResult{Source: r.source.Name()}

	stations, err := r.source.Load(ctx)
	if err != nil {
		log.Warn().Err(err).Str("source", r.source.Name()).Msg("Catalog load failed")
		stations, err = r.loadBackup(ctx, err)
		if err != nil {
			return result, err
		}
		result.FromBackup = true
	}

	stations, result.Rejected = validStations(stations)
	result.Stations = len(stations)

	// The snapshot and its index are published back to back, after the build.
	idx, stats := cluster.Build(stations, r.opts)
	result.Stats = stats
	result.Version = r.store.SetStations(stations)
	result.IndexVersion = r.swapper.Swap(idx)

	if !result.FromBackup && r.backup != nil {
		if err := r.backup.SaveStations(ctx, stations); err != nil {
			log.Error().Err(err).Msg("Failed to save catalog backup")
		}
	}

	log.Info().
		Str("source", result.Source).
		Bool("from_backup", result.FromBackup).
		Int("stations", result.Stations).
		Int("rejected", result.Rejected).
		Int("excluded", stats.Excluded).
		Int("duplicates", stats.Duplicates).
		Uint64("version", result.Version).
		Uint64("index_version", result.IndexVersion).
		Dur("build", stats.Duration).
		Msg("Catalog refreshed")

	return result, nil
}

func validStations(stations []models.Station) ([]models.Station, int) {
	valid := make([]models.Station, 0, len(stations))
	for _, s := range stations {
		if err := s.Validate(); err != nil {
			log.Debug().Err(err).Str("station", s.ID).Msg("Rejecting catalog station")
			continue
		}
		valid = append(valid, s)
	}
	return valid, len(stations) - len(valid)
}

func (r *Refresher) loadBackup(ctx context.Context, sourceErr error) ([]models.Station, error) {
	if r.backup == nil {
		return nil, sourceErr
	}
	stations, err := r.backup.GetStations(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Catalog backup unavailable")
		return nil, errors.Join(sourceErr, err)
	}
	if stations == nil {
		return nil, errors.Join(sourceErr, ErrNoSnapshot)
	}
	return stations, nil
}

// EnsureFresh refreshes only when the store has no snapshot or it is past its
// TTL. It suits request-driven runtimes where a ticker cannot run.
func (r *Refresher) EnsureFresh(ctx context.Context) error {
	if r.store.GetStations() != nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.store.GetStations() != nil {
		return nil
	}
	_, err := r.refreshLocked(ctx)
	return err
}

// Run refreshes immediately and then on every interval until ctx is done.
// Failed refreshes are logged and retried on the next tick.
func (r *Refresher) Run(ctx context.Context) {
	if _, err := r.Refresh(ctx); err != nil {
		log.Error().Err(err).Msg("Initial catalog refresh failed")
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Refresh(ctx); err != nil {
				log.Error().Err(err).Msg("Catalog refresh failed")
			}
		}
	}
}
