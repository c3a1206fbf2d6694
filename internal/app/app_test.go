package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbernstein/fuelwatch/backend-go/internal/catalog"
	"github.com/bbernstein/fuelwatch/backend-go/internal/config"
)

const testFeed = `{
	"generatedAt": "2026-10-14T06:00:00Z",
	"stations": [
		{"id": "VIC-0001", "name": "CBD Express", "brand": "BP", "latitude": -37.8136, "longitude": 144.9631},
		{"id": "VIC-0002", "name": "Southbank", "brand": "Shell", "latitude": -37.8200, "longitude": 144.9700},
		{"id": "VIC-0003", "name": "Nowhere", "latitude": 123, "longitude": 144.9700}
	]
}`

func newFeedServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(testFeed))
	}))
	t.Cleanup(server.Close)
	return server
}

func engineConfig() *config.EngineConfig {
	return &config.EngineConfig{
		ClusterMaxZoom:    16,
		PageSize:          24,
		ViewportCacheSize: 8,
		CatalogSource:     config.SourceHTTP,
		CatalogTTLMinutes: 60,
		CatalogPath:       "/v1/stations",
	}
}

func TestNewWithMetrics(t *testing.T) {
	t.Parallel()
	server := newFeedServer(t)

	reg := prometheus.NewRegistry()
	cfg := config.New(config.WithCatalogURL(server.URL), config.WithMaxRetries(-1))
	a, err := New(context.Background(), cfg, engineConfig(), reg)
	require.NoError(t, err)
	require.NotNil(t, a.Metrics)
	assert.False(t, a.Healthy())

	result, err := a.Refresher.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Stations)
	assert.Equal(t, 1, result.Rejected)
	assert.True(t, a.Healthy())

	assert.Equal(t, 1.0, testutil.ToFloat64(a.Metrics.CatalogRefreshes.WithLabelValues("source")))
	assert.Equal(t, 2.0, testutil.ToFloat64(a.Metrics.CatalogStations))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.Metrics.CatalogExcluded))

	response, err := a.Handler.HandleRequest(context.Background(), events.APIGatewayProxyRequest{
		Path:                  "/clusters",
		QueryStringParameters: map[string]string{"bbox": "144.9,-37.9,145.0,-37.7", "zoom": "16"},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, response.StatusCode)
}

func TestNewWithoutMetrics(t *testing.T) {
	t.Parallel()

	a, err := New(context.Background(), config.New(), engineConfig(), nil)
	require.NoError(t, err)
	assert.Nil(t, a.Metrics)
	assert.NotNil(t, a.Handler)
}

func TestNewSource(t *testing.T) {
	t.Parallel()

	clients := &catalog.AWSClients{}
	tests := []struct {
		source string
		want   string
	}{
		{config.SourceHTTP, "http"},
		{config.SourceS3, "s3"},
		{config.SourceDynamo, "dynamo"},
	}
	for _, tt := range tests {
		engineCfg := engineConfig()
		engineCfg.CatalogSource = tt.source
		assert.Equal(t, tt.want, NewSource(config.New(), engineCfg, clients).Name())
	}
}
