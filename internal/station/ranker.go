package station

import (
	"sort"

	"github.com/bbernstein/fuelwatch/backend-go/internal/geo"
	"github.com/bbernstein/fuelwatch/backend-go/internal/models"
)

// Ranked returns copies of stations with Distance set from origin, nearest
// first. Ties are broken by ID so the order is stable across calls.
func Ranked(origin geo.Point, stations []models.Station) []models.Station {
	out := make([]models.Station, len(stations))
	for i, s := range stations {
		s.Distance = geo.Distance(origin, s.Point())
		out[i] = s
	}
	sortByDistance(out)
	return out
}

// FilterByRadius keeps the stations within radiusKm of origin, nearest first.
// Stations with unusable coordinates are skipped.
func FilterByRadius(origin geo.Point, radiusKm float64, stations []models.Station) []models.Station {
	out := make([]models.Station, 0)
	if !origin.Valid() || radiusKm < 0 {
		return out
	}
	for _, s := range stations {
		if !s.Point().Valid() {
			continue
		}
		d := geo.Distance(origin, s.Point())
		if d <= radiusKm {
			s.Distance = d
			out = append(out, s)
		}
	}
	sortByDistance(out)
	return out
}

func sortByDistance(stations []models.Station) {
	sort.Slice(stations, func(i, j int) bool {
		if stations[i].Distance != stations[j].Distance {
			return stations[i].Distance < stations[j].Distance
		}
		return stations[i].ID < stations[j].ID
	})
}
