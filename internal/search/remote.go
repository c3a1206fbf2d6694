package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/bbernstein/fuelwatch/backend-go/internal/models"
	"github.com/bbernstein/fuelwatch/backend-go/internal/pagination"
	"github.com/bbernstein/fuelwatch/backend-go/pkg/http/client"
)

// Query parameter names shared with the API handler.
const (
	ParamQuery    = "q"
	ParamFuelType = "fuelType"
	ParamBrand    = "brand"
	ParamSuburb   = "suburb"
	ParamSortBy   = "sortBy"
	ParamPriceMax = "priceMax"
	ParamLat      = "lat"
	ParamLon      = "lon"
	ParamRadius   = "radiusKm"
	ParamCursor   = "cursor"
	ParamLimit    = "limit"
)

// RemoteFetcher pages through the /stations endpoint of a deployed API.
type RemoteFetcher struct {
	client client.Interface
	path   string
}

var _ pagination.Fetcher = (*RemoteFetcher)(nil)

func NewRemoteFetcher(c client.Interface) *RemoteFetcher {
	return &RemoteFetcher{client: c, path: "/stations"}
}

func (r *RemoteFetcher) FetchPage(ctx context.Context, q models.SearchQuery, cursor string, limit int) (models.Page, error) {
	values := EncodeQuery(q)
	if cursor != "" {
		values.Set(ParamCursor, cursor)
	}
	if limit > 0 {
		values.Set(ParamLimit, strconv.Itoa(limit))
	}

	resp, err := r.client.Get(ctx, r.path+"?"+values.Encode())
	if err != nil {
		return models.Page{}, fmt.Errorf("fetching stations page: %w", err)
	}

	var page models.Page
	if err := json.Unmarshal(resp.Body, &page); err != nil {
		return models.Page{}, pagination.MarkTerminal(fmt.Errorf("decoding stations page: %w", err))
	}
	return page, nil
}

// EncodeQuery renders q as URL parameters, omitting unset fields.
func EncodeQuery(q models.SearchQuery) url.Values {
	v := url.Values{}
	set := func(key, value string) {
		if value != "" {
			v.Set(key, value)
		}
	}
	f := q.Filter
	set(ParamQuery, f.Query)
	set(ParamFuelType, string(f.FuelType))
	set(ParamBrand, f.Brand)
	set(ParamSuburb, f.Suburb)
	set(ParamSortBy, string(f.SortBy))
	if f.PriceMax > 0 {
		v.Set(ParamPriceMax, strconv.FormatFloat(f.PriceMax, 'f', -1, 64))
	}
	if q.Origin != nil {
		v.Set(ParamLat, strconv.FormatFloat(q.Origin.Lat, 'f', -1, 64))
		v.Set(ParamLon, strconv.FormatFloat(q.Origin.Lon, 'f', -1, 64))
	}
	if q.RadiusKm > 0 {
		v.Set(ParamRadius, strconv.FormatFloat(q.RadiusKm, 'f', -1, 64))
	}
	return v
}
