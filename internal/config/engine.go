package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Catalog source kinds accepted in CATALOG_SOURCE.
const (
	SourceHTTP   = "http"
	SourceS3     = "s3"
	SourceDynamo = "dynamo"
)

// EngineConfig holds the clustering, paging and catalog settings.
type EngineConfig struct {
	// Cluster index settings
	ClusterMinZoom int
	ClusterMaxZoom int
	ClusterRadius  float64
	ClusterExtent  float64

	// Query settings
	PageSize              int
	ViewportCacheSize     int
	// ViewportSnapPrecision snaps cluster query boxes to a 2^-n degree grid; 0 disables
	ViewportSnapPrecision int

	// Catalog settings
	CatalogSource         string
	CatalogRefreshMinutes int
	CatalogTTLMinutes     int
	CatalogPath           string
	CatalogBucket         string
	CatalogKey            string
	CatalogTable          string

	// Last good snapshot kept in S3; empty bucket disables it, zero TTL keeps it forever
	SnapshotBucket   string
	SnapshotKey      string
	SnapshotTTLHours int

	// AWSEndpoint points the SDK clients at a local emulator
	AWSEndpoint string
	AWSRegion   string
}

const (
	// Default values
	defaultClusterMinZoom        = 0
	defaultClusterMaxZoom        = 16
	defaultClusterRadius         = 40
	defaultClusterExtent         = 512
	defaultPageSize              = 24
	defaultViewportCacheSize     = 512
	defaultCatalogRefreshMinutes = 60
	defaultCatalogTTLMinutes     = 180
	defaultCatalogPath           = "/v1/stations"
	defaultCatalogKey            = "catalog/stations.json"
	defaultSnapshotKey           = "catalog/last-good.json"
	defaultCatalogTable          = "fuel-stations"
	defaultAWSRegion             = "ap-southeast-2"
)

// GetEngineConfig returns the engine configuration from environment variables or defaults
func GetEngineConfig() *EngineConfig {
	config := &EngineConfig{
		ClusterMinZoom:        getEnvInt("CLUSTER_MIN_ZOOM", defaultClusterMinZoom),
		ClusterMaxZoom:        getEnvInt("CLUSTER_MAX_ZOOM", defaultClusterMaxZoom),
		ClusterRadius:         getEnvFloat("CLUSTER_RADIUS", defaultClusterRadius),
		ClusterExtent:         getEnvFloat("CLUSTER_EXTENT", defaultClusterExtent),
		PageSize:              getEnvInt("PAGE_SIZE", defaultPageSize),
		ViewportCacheSize:     getEnvInt("VIEWPORT_CACHE_SIZE", defaultViewportCacheSize),
		ViewportSnapPrecision: getEnvInt("VIEWPORT_SNAP_PRECISION", 0),
		CatalogSource:         strings.ToLower(getEnvOrDefault("CATALOG_SOURCE", SourceHTTP)),
		CatalogRefreshMinutes: getEnvInt("CATALOG_REFRESH_MINUTES", defaultCatalogRefreshMinutes),
		CatalogTTLMinutes:     getEnvInt("CATALOG_TTL_MINUTES", defaultCatalogTTLMinutes),
		CatalogPath:           getEnvOrDefault("CATALOG_PATH", defaultCatalogPath),
		CatalogBucket:         os.Getenv("CATALOG_BUCKET"),
		CatalogKey:            getEnvOrDefault("CATALOG_KEY", defaultCatalogKey),
		CatalogTable:          getEnvOrDefault("CATALOG_TABLE", defaultCatalogTable),
		SnapshotBucket:        os.Getenv("SNAPSHOT_BUCKET"),
		SnapshotKey:           getEnvOrDefault("SNAPSHOT_KEY", defaultSnapshotKey),
		SnapshotTTLHours:      getEnvInt("SNAPSHOT_TTL_HOURS", 0),
		AWSEndpoint:           os.Getenv("AWS_ENDPOINT"),
		AWSRegion:             getEnvOrDefault("AWS_REGION", defaultAWSRegion),
	}

	switch config.CatalogSource {
	case SourceHTTP, SourceS3, SourceDynamo:
	default:
		log.Warn().Str("source", config.CatalogSource).Msg("Unknown catalog source, using http")
		config.CatalogSource = SourceHTTP
	}

	log.Debug().
		Int("ClusterMinZoom", config.ClusterMinZoom).
		Int("ClusterMaxZoom", config.ClusterMaxZoom).
		Float64("ClusterRadius", config.ClusterRadius).
		Float64("ClusterExtent", config.ClusterExtent).
		Int("PageSize", config.PageSize).
		Int("ViewportCacheSize", config.ViewportCacheSize).
		Int("ViewportSnapPrecision", config.ViewportSnapPrecision).
		Str("CatalogSource", config.CatalogSource).
		Int("CatalogRefreshMinutes", config.CatalogRefreshMinutes).
		Int("CatalogTTLMinutes", config.CatalogTTLMinutes).
		Bool("SnapshotEnabled", config.SnapshotBucket != "").
		Msg("Engine configuration loaded")

	return config
}

// Helper methods for the EngineConfig struct
func (c *EngineConfig) GetCatalogRefreshInterval() time.Duration {
	return time.Duration(c.CatalogRefreshMinutes) * time.Minute
}

func (c *EngineConfig) GetCatalogTTL() time.Duration {
	return time.Duration(c.CatalogTTLMinutes) * time.Minute
}

func (c *EngineConfig) GetSnapshotTTL() time.Duration {
	return time.Duration(c.SnapshotTTLHours) * time.Hour
}

// Helper functions to get environment variables with defaults
func getEnvInt(key string, defaultVal int) int {
	if val, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
		log.Warn().Str("key", key).Msg("Invalid integer value in environment variable, using default")
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
		log.Warn().Str("key", key).Msg("Invalid number in environment variable, using default")
	}
	return defaultVal
}
