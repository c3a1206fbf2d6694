package search

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbernstein/fuelwatch/backend-go/internal/cache"
	"github.com/bbernstein/fuelwatch/backend-go/internal/geo"
	"github.com/bbernstein/fuelwatch/backend-go/internal/models"
	"github.com/bbernstein/fuelwatch/backend-go/internal/pagination"
)

var (
	origin = &geo.Point{Lat: -37.8136, Lon: 144.9631}
	t0     = time.Date(2026, 10, 14, 6, 0, 0, 0, time.UTC)
)

func fixture() []models.Station {
	return []models.Station{
		{
			ID: "s1", Name: "CBD Express", Brand: "BP", Latitude: -37.8136, Longitude: 144.9631,
			Address:     models.Address{Street: "1 Swanston St", Suburb: "Melbourne", State: "VIC", Postcode: "3000"},
			FuelPrices:  map[models.FuelType]float64{models.FuelU91: 1.90, models.FuelDiesel: 2.05},
			LastUpdated: t0,
		},
		{
			ID: "s2", Name: "Southbank", Brand: "Shell", Latitude: -37.8200, Longitude: 144.9700,
			Address:     models.Address{Suburb: "Southbank", State: "VIC", Postcode: "3006"},
			FuelPrices:  map[models.FuelType]float64{models.FuelU91: 1.85},
			LastUpdated: t0.Add(time.Hour),
		},
		{
			ID: "s3", Name: "Carlton North", Brand: "BP", Latitude: -37.7840, Longitude: 144.9740,
			Address:     models.Address{Suburb: "Carlton North", State: "VIC", Postcode: "3054"},
			FuelPrices:  map[models.FuelType]float64{models.FuelU91: 1.80, models.FuelE10: 1.75},
			LastUpdated: t0.Add(2 * time.Hour),
		},
		{
			ID: "s4", Name: "Fitzroy", Brand: "United", Latitude: -37.7990, Longitude: 144.9780,
			Address:     models.Address{Suburb: "Fitzroy", State: "VIC", Postcode: "3065"},
			FuelPrices:  map[models.FuelType]float64{models.FuelDiesel: 1.95, models.FuelLPG: 0.99},
			LastUpdated: t0.Add(-time.Hour),
		},
		{
			ID: "s5", Name: "Richmond", Brand: "Shell", Latitude: -37.8500, Longitude: 145.0000,
			Address:     models.Address{Suburb: "Richmond", State: "VIC", Postcode: "3121"},
			FuelPrices:  map[models.FuelType]float64{models.FuelU98: 2.20},
			LastUpdated: t0.Add(-2 * time.Hour),
		},
		{
			ID: "s6", Name: "Sydney CBD", Brand: "Ampol", Latitude: -33.8688, Longitude: 151.2093,
			Address:     models.Address{Suburb: "Sydney", State: "NSW", Postcode: "2000"},
			FuelPrices:  map[models.FuelType]float64{models.FuelU91: 1.70},
			LastUpdated: t0.Add(-3 * time.Hour),
		},
		{ID: "bad", Name: "Nowhere", Latitude: 200, Longitude: 144.9},
	}
}

func newEngine(stations []models.Station) *Engine {
	c := cache.NewStationCache(time.Hour)
	c.SetStations(stations)
	return NewEngine(c)
}

func ids(stations []models.Station) []string {
	out := make([]string, len(stations))
	for i, s := range stations {
		out[i] = s.ID
	}
	return out
}

func TestSearch(t *testing.T) {
	t.Parallel()
	engine := newEngine(fixture())

	tests := []struct {
		name  string
		query models.SearchQuery
		want  []string
	}{
		{
			name:  "nearest first with radius",
			query: models.SearchQuery{Origin: origin, RadiusKm: 4},
			want:  []string{"s1", "s2", "s4", "s3"},
		},
		{
			name:  "brand is case insensitive",
			query: models.SearchQuery{Origin: origin, Filter: models.FilterState{Brand: "bp"}},
			want:  []string{"s1", "s3"},
		},
		{
			name:  "fuel type requires a price",
			query: models.SearchQuery{Origin: origin, Filter: models.FilterState{FuelType: models.FuelU91}},
			want:  []string{"s1", "s2", "s3", "s6"},
		},
		{
			name:  "suburb",
			query: models.SearchQuery{Filter: models.FilterState{Suburb: " fitzroy "}},
			want:  []string{"s4"},
		},
		{
			name:  "free text matches name",
			query: models.SearchQuery{Filter: models.FilterState{Query: "north"}},
			want:  []string{"s3"},
		},
		{
			name:  "free text matches brand, sorted by name",
			query: models.SearchQuery{Filter: models.FilterState{Query: "SHELL"}},
			want:  []string{"s5", "s2"},
		},
		{
			name: "price ceiling uses the selected fuel",
			query: models.SearchQuery{Origin: origin, Filter: models.FilterState{
				FuelType: models.FuelU91, PriceMax: 1.86,
			}},
			want: []string{"s2", "s3", "s6"},
		},
		{
			name:  "price ceiling without fuel uses the cheapest fuel",
			query: models.SearchQuery{Filter: models.FilterState{PriceMax: 1.0}},
			want:  []string{"s4"},
		},
		{
			name:  "radius applies before price ceiling",
			query: models.SearchQuery{Origin: origin, RadiusKm: 1, Filter: models.FilterState{PriceMax: 1.86}},
			want:  []string{"s2"},
		},
		{
			name: "price sort by the selected fuel",
			query: models.SearchQuery{Origin: origin, Filter: models.FilterState{
				FuelType: models.FuelU91, SortBy: models.SortPrice,
			}},
			want: []string{"s6", "s3", "s2", "s1"},
		},
		{
			name:  "price sort without fuel uses cheapest",
			query: models.SearchQuery{Origin: origin, Filter: models.FilterState{SortBy: models.SortPrice}},
			want:  []string{"s4", "s6", "s3", "s2", "s1", "s5"},
		},
		{
			name:  "updated sort is newest first",
			query: models.SearchQuery{Filter: models.FilterState{SortBy: models.SortUpdated}},
			want:  []string{"s3", "s2", "s1", "s4", "s5", "s6"},
		},
		{
			name:  "name sort is the default without origin",
			query: models.SearchQuery{},
			want:  []string{"s3", "s1", "s4", "s5", "s2", "s6"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := engine.Search(context.Background(), tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestSearchDoesNotModifySnapshot(t *testing.T) {
	t.Parallel()
	c := cache.NewStationCache(time.Hour)
	c.SetStations(fixture())
	engine := NewEngine(c)

	_, err := engine.Search(context.Background(), models.SearchQuery{
		Origin: origin,
		Filter: models.FilterState{SortBy: models.SortPrice},
	})
	require.NoError(t, err)

	stations, _ := c.Snapshot()
	assert.Equal(t, ids(fixture()), ids(stations))
	for _, s := range stations {
		assert.Zero(t, s.Distance)
	}
}

func TestSearchErrors(t *testing.T) {
	t.Parallel()

	t.Run("distance sort needs an origin", func(t *testing.T) {
		t.Parallel()
		_, err := newEngine(fixture()).Search(context.Background(), models.SearchQuery{
			Filter: models.FilterState{SortBy: models.SortDistance},
		})
		var verr *models.ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, "sortBy", verr.Field)
	})

	t.Run("empty catalog is transient", func(t *testing.T) {
		t.Parallel()
		engine := NewEngine(cache.NewStationCache(time.Hour))
		_, err := engine.Search(context.Background(), models.SearchQuery{})
		require.Error(t, err)
		assert.Equal(t, pagination.Transient, pagination.Classify(err).Kind)
	})

	t.Run("cancelled context", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := newEngine(fixture()).Search(ctx, models.SearchQuery{})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func gridStations(n int) []models.Station {
	stations := make([]models.Station, n)
	for i := range stations {
		stations[i] = models.Station{
			ID:        fmt.Sprintf("g-%03d", i),
			Name:      fmt.Sprintf("Grid %03d", i),
			Latitude:  -37.9 + float64(i/10)*0.01,
			Longitude: 144.8 + float64(i%10)*0.01,
		}
	}
	return stations
}

func TestFetchPage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		total       int
		wantSizes   []int
		wantCursors []string
	}{
		{"partial last page", 60, []int{24, 24, 12}, []string{"24", "48", ""}},
		{"exact multiple ends with an empty page", 48, []int{24, 24, 0}, []string{"24", "48", ""}},
		{"empty result", 0, []int{0}, []string{""}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			engine := newEngine(gridStations(tt.total))

			cursor := ""
			var seen []string
			for i, size := range tt.wantSizes {
				page, err := engine.FetchPage(context.Background(), models.SearchQuery{}, cursor, 24)
				require.NoError(t, err)
				assert.Len(t, page.Stations, size)
				assert.Equal(t, size == 24, page.HasMore)
				assert.Equal(t, tt.wantCursors[i], page.Cursor)
				seen = append(seen, ids(page.Stations)...)
				cursor = page.Cursor
			}
			assert.Equal(t, ids(gridStations(tt.total))[:len(seen)], seen)
			assert.Len(t, seen, tt.total)
		})
	}
}

func TestFetchPageInvalidCursor(t *testing.T) {
	t.Parallel()
	engine := newEngine(fixture())

	for _, cursor := range []string{"abc", "-1", "1.5"} {
		_, err := engine.FetchPage(context.Background(), models.SearchQuery{}, cursor, 24)
		require.Error(t, err, cursor)
		assert.ErrorIs(t, err, ErrInvalidCursor)
		assert.Equal(t, pagination.Terminal, pagination.Classify(err).Kind)
	}
}

func TestCursorRoundTrip(t *testing.T) {
	t.Parallel()

	offset, err := DecodeCursor(EncodeCursor(96))
	require.NoError(t, err)
	assert.Equal(t, 96, offset)

	offset, err = DecodeCursor("")
	require.NoError(t, err)
	assert.Zero(t, offset)
}

func TestSliceBeyondEnd(t *testing.T) {
	t.Parallel()

	page := Slice(gridStations(5), 10, 24)
	assert.Empty(t, page.Stations)
	assert.False(t, page.HasMore)
	assert.Empty(t, page.Cursor)
}
