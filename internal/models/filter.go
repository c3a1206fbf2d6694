package models

import (
	"fmt"
	"math"
	"strings"
)

type SortBy string

const (
	SortDistance SortBy = "distance"
	SortPrice    SortBy = "price"
	SortName     SortBy = "name"
	SortUpdated  SortBy = "updated"
)

// ValidationError reports a rejected filter field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// FilterState is the complete set of list criteria at a point in time. It is a
// value: replace it rather than mutate it.
type FilterState struct {
	Query    string   `json:"query,omitempty"`
	FuelType FuelType `json:"fuelType,omitempty"`
	Brand    string   `json:"brand,omitempty"`
	Suburb   string   `json:"suburb,omitempty"`
	SortBy   SortBy   `json:"sortBy,omitempty"`
	// PriceMax of zero means no ceiling.
	PriceMax float64 `json:"priceMax,omitempty"`
}

// Validate rejects values the search pipeline cannot interpret.
func (f FilterState) Validate() error {
	if f.FuelType != "" && !knownFuelTypes[f.FuelType] {
		return &ValidationError{Field: "fuelType", Message: fmt.Sprintf("unknown fuel type %q", f.FuelType)}
	}
	switch f.SortBy {
	case "", SortDistance, SortPrice, SortName, SortUpdated:
	default:
		return &ValidationError{Field: "sortBy", Message: fmt.Sprintf("unknown sort %q", f.SortBy)}
	}
	if math.IsNaN(f.PriceMax) || math.IsInf(f.PriceMax, 0) || f.PriceMax < 0 {
		return &ValidationError{Field: "priceMax", Message: "must be a non-negative number"}
	}
	return nil
}

// Normalized trims free text fields so equal filters compare equal.
func (f FilterState) Normalized() FilterState {
	f.Query = strings.TrimSpace(f.Query)
	f.Brand = strings.TrimSpace(f.Brand)
	f.Suburb = strings.TrimSpace(f.Suburb)
	return f
}
