package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/bbernstein/fuelwatch/backend-go/internal/geo"
)

type FuelType string

const (
	FuelU91    FuelType = "U91"
	FuelE10    FuelType = "E10"
	FuelU95    FuelType = "U95"
	FuelU98    FuelType = "U98"
	FuelDiesel FuelType = "DSL"
	FuelLPG    FuelType = "LPG"
)

var knownFuelTypes = map[FuelType]bool{
	FuelU91:    true,
	FuelE10:    true,
	FuelU95:    true,
	FuelU98:    true,
	FuelDiesel: true,
	FuelLPG:    true,
}

// ParseFuelType normalises user input ("u91", " dsl ") to a known fuel type.
func ParseFuelType(s string) (FuelType, error) {
	ft := FuelType(strings.ToUpper(strings.TrimSpace(s)))
	if !knownFuelTypes[ft] {
		return "", fmt.Errorf("unknown fuel type: %q", s)
	}
	return ft, nil
}

type Address struct {
	Street   string `json:"street" dynamodbav:"street"`
	Suburb   string `json:"suburb" dynamodbav:"suburb"`
	State    string `json:"state" dynamodbav:"state"`
	Postcode string `json:"postcode" dynamodbav:"postcode"`
}

func (a Address) String() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{a.Street, a.Suburb, strings.TrimSpace(a.State + " " + a.Postcode)} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

type Station struct {
	ID          string               `json:"id" dynamodbav:"id"`
	Name        string               `json:"name" dynamodbav:"name"`
	Brand       string               `json:"brand" dynamodbav:"brand"`
	Latitude    float64              `json:"latitude" dynamodbav:"latitude"`
	Longitude   float64              `json:"longitude" dynamodbav:"longitude"`
	Address     Address              `json:"address" dynamodbav:"address"`
	FuelPrices  map[FuelType]float64 `json:"fuelPrices" dynamodbav:"fuelPrices"`
	LastUpdated time.Time            `json:"lastUpdated" dynamodbav:"lastUpdated"`
	Verified    bool                 `json:"verified" dynamodbav:"verified"`
	// Distance is only set on copies returned by proximity searches.
	Distance float64 `json:"distance,omitempty" dynamodbav:"-"`
}

// Point returns the station coordinates.
func (s Station) Point() geo.Point {
	return geo.Point{Lat: s.Latitude, Lon: s.Longitude}
}

// Price returns the price for a fuel type and whether the station sells it.
func (s Station) Price(ft FuelType) (float64, bool) {
	p, ok := s.FuelPrices[ft]
	return p, ok
}

// CheapestPrice returns the lowest price across all fuels.
func (s Station) CheapestPrice() (float64, bool) {
	found := false
	var lowest float64
	for _, p := range s.FuelPrices {
		if !found || p < lowest {
			lowest = p
			found = true
		}
	}
	return lowest, found
}

// Validate checks the fields the index and ranking code depend on.
func (s *Station) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("station ID is required")
	}
	if !s.Point().Valid() {
		if s.Latitude < -90 || s.Latitude > 90 {
			return fmt.Errorf("invalid latitude: %f", s.Latitude)
		}
		if s.Longitude < -180 || s.Longitude > 180 {
			return fmt.Errorf("invalid longitude: %f", s.Longitude)
		}
		return fmt.Errorf("invalid coordinates: %f,%f", s.Latitude, s.Longitude)
	}
	for ft, p := range s.FuelPrices {
		if p < 0 {
			return fmt.Errorf("invalid price for %s: %f", ft, p)
		}
	}
	return nil
}
