// Package app wires the catalog, the snapshot store, the cluster index and
// the request handler into one service. The Lambda and the local server share
// it.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/bbernstein/fuelwatch/backend-go/internal/cache"
	"github.com/bbernstein/fuelwatch/backend-go/internal/catalog"
	"github.com/bbernstein/fuelwatch/backend-go/internal/cluster"
	"github.com/bbernstein/fuelwatch/backend-go/internal/config"
	"github.com/bbernstein/fuelwatch/backend-go/internal/handler"
	"github.com/bbernstein/fuelwatch/backend-go/internal/metrics"
	"github.com/bbernstein/fuelwatch/backend-go/internal/search"
	"github.com/bbernstein/fuelwatch/backend-go/internal/station"
	"github.com/bbernstein/fuelwatch/backend-go/internal/viewport"
	"github.com/bbernstein/fuelwatch/backend-go/pkg/http/client"
)

type App struct {
	Handler   *handler.StationsHandler
	Refresher *catalog.Refresher
	Resolver  *viewport.Resolver
	Store     *cache.StationCache
	// Metrics is nil unless a registerer was given.
	Metrics *metrics.Metrics
}

// New builds the service. AWS clients are only created when the catalog
// source or the snapshot backup needs them. reg may be nil.
func New(ctx context.Context, cfg *config.Config, engineCfg *config.EngineConfig, reg prometheus.Registerer) (*App, error) {
	var clients *catalog.AWSClients
	if engineCfg.CatalogSource != config.SourceHTTP || engineCfg.SnapshotBucket != "" {
		var err error
		clients, err = catalog.NewAWSClients(ctx, engineCfg.AWSRegion, engineCfg.AWSEndpoint)
		if err != nil {
			return nil, fmt.Errorf("creating AWS clients: %w", err)
		}
	}

	source := NewSource(cfg, engineCfg, clients)

	store := cache.NewStationCache(engineCfg.GetCatalogTTL())
	resolver, err := viewport.NewResolver(engineCfg.ViewportCacheSize)
	if err != nil {
		return nil, err
	}

	opts := []catalog.RefresherOption{
		catalog.WithInterval(engineCfg.GetCatalogRefreshInterval()),
		catalog.WithClusterOptions(cluster.Options{
			MinZoom: engineCfg.ClusterMinZoom,
			MaxZoom: engineCfg.ClusterMaxZoom,
			Radius:  engineCfg.ClusterRadius,
			Extent:  engineCfg.ClusterExtent,
		}),
	}
	if engineCfg.SnapshotBucket != "" {
		backup := cache.NewS3StationCache(clients.S3, engineCfg.SnapshotBucket, engineCfg.SnapshotKey, engineCfg.GetSnapshotTTL())
		opts = append(opts, catalog.WithBackup(backup))
	}

	a := &App{Resolver: resolver, Store: store}
	if reg != nil {
		a.Metrics = metrics.NewMetrics(reg)
		metrics.RegisterCacheStats(reg, "viewport", resolver.CacheStats)
		opts = append(opts, catalog.WithObserver(a.Metrics.ObserveRefresh))
	}

	a.Refresher = catalog.NewRefresher(source, store, resolver, opts...)
	a.Handler = handler.NewStationsHandler(station.NewFinder(store), resolver, search.NewEngine(store), engineCfg.PageSize,
		handler.WithSnapPrecision(engineCfg.ViewportSnapPrecision))

	log.Info().
		Str("source", source.Name()).
		Bool("backup", engineCfg.SnapshotBucket != "").
		Bool("metrics", reg != nil).
		Str("environment", cfg.Environment).
		Msg("Stations service configured")

	return a, nil
}

// NewSource picks the catalog source named by engineCfg.CatalogSource.
// clients must be non-nil for the s3 and dynamo sources.
func NewSource(cfg *config.Config, engineCfg *config.EngineConfig, clients *catalog.AWSClients) catalog.Source {
	switch engineCfg.CatalogSource {
	case config.SourceS3:
		return catalog.NewS3Source(clients.S3, engineCfg.CatalogBucket, engineCfg.CatalogKey)
	case config.SourceDynamo:
		return catalog.NewDynamoSource(clients.DynamoDB, engineCfg.CatalogTable)
	default:
		httpClient := client.New(client.Options{
			Timeout:    cfg.HTTPTimeout,
			MaxRetries: cfg.MaxRetries,
			BaseURL:    cfg.CatalogURL,
		})
		return catalog.NewHTTPSource(httpClient, engineCfg.CatalogPath)
	}
}

// Healthy reports whether a catalog snapshot is loaded and within its TTL.
func (a *App) Healthy() bool {
	return a.Store.GetStations() != nil
}
