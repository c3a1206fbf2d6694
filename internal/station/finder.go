package station

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/bbernstein/fuelwatch/backend-go/internal/geo"
	"github.com/bbernstein/fuelwatch/backend-go/internal/models"
)

const defaultNearestLimit = 5

var (
	ErrStationNotFound = errors.New("station not found")
	ErrNoSnapshot      = errors.New("catalog snapshot not loaded")
)

// Finder answers station lookups against the current catalog snapshot.
type Finder struct {
	snapshots SnapshotProvider
}

var _ models.StationFinder = (*Finder)(nil)

func NewFinder(snapshots SnapshotProvider) *Finder {
	return &Finder{snapshots: snapshots}
}

func (f *Finder) stations() ([]models.Station, error) {
	stations, version := f.snapshots.Snapshot()
	if version == 0 {
		return nil, ErrNoSnapshot
	}
	return stations, nil
}

func (f *Finder) FindStation(_ context.Context, stationID string) (*models.Station, error) {
	stations, err := f.stations()
	if err != nil {
		return nil, fmt.Errorf("getting station list: %w", err)
	}

	for _, s := range stations {
		if s.ID == stationID {
			found := s
			return &found, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrStationNotFound, stationID)
}

// FindNearestStations returns up to limit stations ordered by distance from
// (lat, lon). A limit of zero or less uses the default of 5.
func (f *Finder) FindNearestStations(_ context.Context, lat, lon float64, limit int) ([]models.Station, error) {
	origin := geo.Point{Lat: lat, Lon: lon}
	if lat < -90 || lat > 90 {
		return nil, fmt.Errorf("invalid latitude: %f", lat)
	}
	if lon < -180 || lon > 180 {
		return nil, fmt.Errorf("invalid longitude: %f", lon)
	}
	if !origin.Valid() {
		return nil, fmt.Errorf("invalid coordinates: %f,%f", lat, lon)
	}

	stations, err := f.stations()
	if err != nil {
		return nil, fmt.Errorf("getting station list: %w", err)
	}

	valid := make([]models.Station, 0, len(stations))
	for _, s := range stations {
		if s.Point().Valid() {
			valid = append(valid, s)
		}
	}
	ranked := Ranked(origin, valid)

	if limit <= 0 {
		limit = defaultNearestLimit
	}
	if limit > len(ranked) {
		limit = len(ranked)
	}

	log.Trace().Float64("lat", lat).Float64("lon", lon).Int("limit", limit).Msg("FindNearestStations")
	return ranked[:limit], nil
}
