package models

import (
	"math"

	"github.com/bbernstein/fuelwatch/backend-go/internal/geo"
)

// SearchQuery is a FilterState plus the optional proximity origin it is
// evaluated against. RadiusKm of zero ranks by distance without cutting off.
type SearchQuery struct {
	Filter   FilterState `json:"filter"`
	Origin   *geo.Point  `json:"origin,omitempty"`
	RadiusKm float64     `json:"radiusKm,omitempty"`
}

func (q SearchQuery) Validate() error {
	if err := q.Filter.Validate(); err != nil {
		return err
	}
	if q.Origin != nil && !q.Origin.Valid() {
		return &ValidationError{Field: "origin", Message: "coordinates out of range"}
	}
	if math.IsNaN(q.RadiusKm) || math.IsInf(q.RadiusKm, 0) || q.RadiusKm < 0 {
		return &ValidationError{Field: "radiusKm", Message: "must be a non-negative number"}
	}
	if q.RadiusKm > 0 && q.Origin == nil {
		return &ValidationError{Field: "radiusKm", Message: "requires an origin"}
	}
	if q.Filter.SortBy == SortDistance && q.Origin == nil {
		return &ValidationError{Field: "sortBy", Message: "distance sort requires an origin"}
	}
	return nil
}
