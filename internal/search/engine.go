// Package search evaluates a SearchQuery against the catalog snapshot in a
// fixed order: proximity, then attribute filters, then the price ceiling,
// then sorting and slicing.
package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/bbernstein/fuelwatch/backend-go/internal/models"
	"github.com/bbernstein/fuelwatch/backend-go/internal/pagination"
	"github.com/bbernstein/fuelwatch/backend-go/internal/station"
)

var ErrInvalidCursor = errors.New("invalid cursor")

// unavailableError marks an empty catalog. The snapshot usually appears on
// the next refresh, so callers may retry.
type unavailableError struct{}

func (unavailableError) Error() string   { return "catalog snapshot not loaded" }
func (unavailableError) Temporary() bool { return true }

// Engine is the in-process page source for the station list.
type Engine struct {
	snapshots station.SnapshotProvider
}

var _ pagination.Fetcher = (*Engine)(nil)

func NewEngine(snapshots station.SnapshotProvider) *Engine {
	return &Engine{snapshots: snapshots}
}

// Search returns every station matching q in result order.
func (e *Engine) Search(ctx context.Context, q models.SearchQuery) ([]models.Station, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q.Filter = q.Filter.Normalized()
	if err := q.Validate(); err != nil {
		return nil, err
	}

	stations, version := e.snapshots.Snapshot()
	if version == 0 {
		return nil, unavailableError{}
	}

	result := proximity(q, stations)
	result = filterAttributes(q.Filter, result)
	result = filterPrice(q.Filter, result)
	sortStations(q, result)

	log.Trace().
		Int("catalog", len(stations)).
		Int("matches", len(result)).
		Uint64("version", version).
		Msg("Search evaluated")
	return result, nil
}

// FetchPage slices the search result at the offset encoded in cursor.
func (e *Engine) FetchPage(ctx context.Context, q models.SearchQuery, cursor string, limit int) (models.Page, error) {
	offset, err := DecodeCursor(cursor)
	if err != nil {
		return models.Page{}, err
	}
	if limit <= 0 {
		limit = pagination.DefaultPageSize
	}

	all, err := e.Search(ctx, q)
	if err != nil {
		return models.Page{}, err
	}
	return Slice(all, offset, limit), nil
}

// Slice cuts one page out of a full result. HasMore is set when the page is
// full, so the page after an exact multiple of limit comes back empty.
func Slice(all []models.Station, offset, limit int) models.Page {
	if offset > len(all) {
		offset = len(all)
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}

	page := models.Page{
		Stations: make([]models.Station, end-offset),
		HasMore:  end-offset == limit,
	}
	copy(page.Stations, all[offset:end])
	if page.HasMore {
		page.Cursor = EncodeCursor(end)
	}
	return page
}

func EncodeCursor(offset int) string {
	return strconv.Itoa(offset)
}

// DecodeCursor parses a cursor produced by EncodeCursor. The empty cursor is
// offset zero.
func DecodeCursor(cursor string) (int, error) {
	if cursor == "" {
		return 0, nil
	}
	offset, err := strconv.Atoi(cursor)
	if err != nil || offset < 0 {
		return 0, pagination.MarkTerminal(fmt.Errorf("%w: %q", ErrInvalidCursor, cursor))
	}
	return offset, nil
}

func proximity(q models.SearchQuery, stations []models.Station) []models.Station {
	if q.Origin != nil && q.RadiusKm > 0 {
		return station.FilterByRadius(*q.Origin, q.RadiusKm, stations)
	}

	valid := make([]models.Station, 0, len(stations))
	for _, s := range stations {
		if s.Point().Valid() {
			valid = append(valid, s)
		}
	}
	if q.Origin == nil {
		return valid
	}
	return station.Ranked(*q.Origin, valid)
}

func filterAttributes(f models.FilterState, stations []models.Station) []models.Station {
	text := strings.ToLower(f.Query)
	out := stations[:0:0]
	for _, s := range stations {
		if f.Brand != "" && !strings.EqualFold(s.Brand, f.Brand) {
			continue
		}
		if f.FuelType != "" {
			if _, ok := s.Price(f.FuelType); !ok {
				continue
			}
		}
		if f.Suburb != "" && !strings.EqualFold(s.Address.Suburb, f.Suburb) {
			continue
		}
		if text != "" && !matchesText(s, text) {
			continue
		}
		out = append(out, s)
	}
	return out
}

func matchesText(s models.Station, text string) bool {
	for _, field := range []string{s.Name, s.Brand, s.Address.String()} {
		if strings.Contains(strings.ToLower(field), text) {
			return true
		}
	}
	return false
}

// filterPrice drops stations above PriceMax. With a fuel type the ceiling
// applies to that fuel, otherwise to the cheapest fuel on offer.
func filterPrice(f models.FilterState, stations []models.Station) []models.Station {
	if f.PriceMax <= 0 {
		return stations
	}
	out := stations[:0:0]
	for _, s := range stations {
		if p, ok := price(f, s); ok && p <= f.PriceMax {
			out = append(out, s)
		}
	}
	return out
}

func price(f models.FilterState, s models.Station) (float64, bool) {
	if f.FuelType != "" {
		return s.Price(f.FuelType)
	}
	return s.CheapestPrice()
}

// sortStations orders the result in place. Distance results arrive ranked, so
// the default with an origin is a no-op; the other sorts are stable and keep
// distance order among equal keys.
func sortStations(q models.SearchQuery, stations []models.Station) {
	by := q.Filter.SortBy
	if by == "" {
		if q.Origin != nil {
			by = models.SortDistance
		} else {
			by = models.SortName
		}
	}

	switch by {
	case models.SortDistance:
		return
	case models.SortPrice:
		sort.SliceStable(stations, func(i, j int) bool {
			pi, oki := price(q.Filter, stations[i])
			pj, okj := price(q.Filter, stations[j])
			if oki != okj {
				return oki
			}
			return pi < pj
		})
	case models.SortName:
		sort.SliceStable(stations, func(i, j int) bool {
			ni, nj := strings.ToLower(stations[i].Name), strings.ToLower(stations[j].Name)
			if ni != nj {
				return ni < nj
			}
			return stations[i].ID < stations[j].ID
		})
	case models.SortUpdated:
		sort.SliceStable(stations, func(i, j int) bool {
			return stations[i].LastUpdated.After(stations[j].LastUpdated)
		})
	}
}
