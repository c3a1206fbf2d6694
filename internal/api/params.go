package api

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bbernstein/fuelwatch/backend-go/internal/geo"
	"github.com/bbernstein/fuelwatch/backend-go/internal/models"
	"github.com/bbernstein/fuelwatch/backend-go/internal/search"
)

const MaxPageSize = 100

type InvalidCoordinatesError struct{}

func (e InvalidCoordinatesError) Error() string {
	return "Invalid coordinates"
}

// ParameterError reports a query parameter that could not be parsed.
type ParameterError struct {
	Name string
	Err  error
}

func (e *ParameterError) Error() string {
	return fmt.Sprintf("invalid parameter %s: %v", e.Name, e.Err)
}

func (e *ParameterError) Unwrap() error {
	return e.Err
}

// Parameter parsing helpers
func ParseCoordinates(params map[string]string) (float64, float64, error) {
	latStr, hasLat := params[search.ParamLat]
	lonStr, hasLon := params[search.ParamLon]

	if !hasLat || !hasLon {
		return 0, 0, &ParameterError{Name: "lat/lon", Err: fmt.Errorf("both are required")}
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return 0, 0, &ParameterError{Name: search.ParamLat, Err: err}
	}

	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return 0, 0, &ParameterError{Name: search.ParamLon, Err: err}
	}

	if !(geo.Point{Lat: lat, Lon: lon}).Valid() {
		return 0, 0, InvalidCoordinatesError{}
	}

	return lat, lon, nil
}

// ParseBBox reads "minLon,minLat,maxLon,maxLat". An inverted box parses; the
// viewport query answers it with no markers.
func ParseBBox(raw string) (geo.BBox, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return geo.BBox{}, &ParameterError{Name: "bbox", Err: fmt.Errorf("want minLon,minLat,maxLon,maxLat")}
	}

	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return geo.BBox{}, &ParameterError{Name: "bbox", Err: err}
		}
		v[i] = f
	}

	return geo.BBox{MinLon: v[0], MinLat: v[1], MaxLon: v[2], MaxLat: v[3]}, nil
}

func ParseZoom(raw string) (int, error) {
	zoom, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &ParameterError{Name: "zoom", Err: err}
	}
	if zoom < 0 {
		return 0, &ParameterError{Name: "zoom", Err: fmt.Errorf("must not be negative")}
	}
	return zoom, nil
}

// ParseLimit reads an optional limit, capped at MaxPageSize.
func ParseLimit(params map[string]string, defaultLimit int) (int, error) {
	raw, ok := params[search.ParamLimit]
	if !ok || raw == "" {
		return defaultLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, &ParameterError{Name: search.ParamLimit, Err: fmt.Errorf("must be a positive integer")}
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return limit, nil
}

// ParseFilter builds a validated FilterState from query parameters. Unknown
// parameters are ignored.
func ParseFilter(params map[string]string) (models.FilterState, error) {
	f := models.FilterState{
		Query:  params[search.ParamQuery],
		Brand:  params[search.ParamBrand],
		Suburb: params[search.ParamSuburb],
		SortBy: models.SortBy(strings.ToLower(strings.TrimSpace(params[search.ParamSortBy]))),
	}

	if raw := params[search.ParamFuelType]; raw != "" {
		ft, err := models.ParseFuelType(raw)
		if err != nil {
			return models.FilterState{}, &models.ValidationError{Field: "fuelType", Message: err.Error()}
		}
		f.FuelType = ft
	}

	if raw := params[search.ParamPriceMax]; raw != "" {
		p, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return models.FilterState{}, &models.ValidationError{Field: "priceMax", Message: "must be a number"}
		}
		f.PriceMax = p
	}

	f = f.Normalized()
	if err := f.Validate(); err != nil {
		return models.FilterState{}, err
	}
	return f, nil
}

// ParseSearch reads a full search query. The origin is optional but lat and
// lon must be given together.
func ParseSearch(params map[string]string) (models.SearchQuery, error) {
	f, err := ParseFilter(params)
	if err != nil {
		return models.SearchQuery{}, err
	}
	q := models.SearchQuery{Filter: f}

	_, hasLat := params[search.ParamLat]
	_, hasLon := params[search.ParamLon]
	if hasLat || hasLon {
		lat, lon, err := ParseCoordinates(params)
		if err != nil {
			return models.SearchQuery{}, err
		}
		q.Origin = &geo.Point{Lat: lat, Lon: lon}
	}

	if raw := params[search.ParamRadius]; raw != "" {
		r, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return models.SearchQuery{}, &ParameterError{Name: search.ParamRadius, Err: err}
		}
		q.RadiusKm = r
	}

	if err := q.Validate(); err != nil {
		return models.SearchQuery{}, err
	}
	return q, nil
}
