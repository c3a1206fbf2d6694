// Package metrics defines the Prometheus collectors of the stations service.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bbernstein/fuelwatch/backend-go/internal/catalog"
)

type Metrics struct {
	CatalogRefreshes  *prometheus.CounterVec
	CatalogStations   prometheus.Gauge
	CatalogExcluded   prometheus.Gauge
	IndexVersion      prometheus.Gauge
	IndexBuildSeconds prometheus.Histogram
	Requests          *prometheus.CounterVec
	RequestSeconds    *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		CatalogRefreshes: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "fuelwatch_catalog_refreshes_total",
			Help: "Catalog refresh attempts by outcome (source, backup, error).",
		}, []string{"result"}),
		CatalogStations: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "fuelwatch_catalog_stations",
			Help: "Stations in the current catalog snapshot.",
		}),
		CatalogExcluded: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "fuelwatch_catalog_excluded_stations",
			Help: "Stations left out of the last index build for bad coordinates or duplicate IDs.",
		}),
		IndexVersion: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "fuelwatch_cluster_index_version",
			Help: "Version of the installed cluster index.",
		}),
		IndexBuildSeconds: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "fuelwatch_cluster_index_build_seconds",
			Help:    "Duration of cluster index builds.",
			Buckets: prometheus.DefBuckets,
		}),
		Requests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "fuelwatch_requests_total",
			Help: "API requests by route and status code.",
		}, []string{"route", "status"}),
		RequestSeconds: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fuelwatch_request_duration_seconds",
			Help:    "Duration of API requests.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// ObserveRefresh records one refresh attempt. It matches catalog.WithObserver.
func (m *Metrics) ObserveRefresh(result catalog.RefreshResult, err error) {
	switch {
	case err != nil:
		m.CatalogRefreshes.WithLabelValues("error").Inc()
		return
	case result.FromBackup:
		m.CatalogRefreshes.WithLabelValues("backup").Inc()
	default:
		m.CatalogRefreshes.WithLabelValues("source").Inc()
	}
	m.CatalogStations.Set(float64(result.Stations))
	m.CatalogExcluded.Set(float64(result.Rejected + result.Stats.Excluded + result.Stats.Duplicates))
	m.IndexVersion.Set(float64(result.IndexVersion))
	m.IndexBuildSeconds.Observe(result.Stats.Duration.Seconds())
}

func (m *Metrics) ObserveRequest(route string, status int, elapsed time.Duration) {
	m.Requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.RequestSeconds.WithLabelValues(route).Observe(elapsed.Seconds())
}

// RegisterCacheStats exports the hit and miss counters of a cache.
func RegisterCacheStats(reg prometheus.Registerer, name string, stats func() map[string]uint64) {
	for _, key := range []string{"hits", "misses"} {
		key := key
		promauto.With(reg).NewCounterFunc(prometheus.CounterOpts{
			Name:        "fuelwatch_cache_" + key + "_total",
			Help:        "Cache " + key + ".",
			ConstLabels: prometheus.Labels{"cache": name},
		}, func() float64 {
			return float64(stats()[key])
		})
	}
}
