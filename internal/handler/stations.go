package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog/log"

	"github.com/bbernstein/fuelwatch/backend-go/internal/api"
	"github.com/bbernstein/fuelwatch/backend-go/internal/cluster"
	"github.com/bbernstein/fuelwatch/backend-go/internal/models"
	"github.com/bbernstein/fuelwatch/backend-go/internal/pagination"
	"github.com/bbernstein/fuelwatch/backend-go/internal/search"
	"github.com/bbernstein/fuelwatch/backend-go/internal/station"
	"github.com/bbernstein/fuelwatch/backend-go/internal/viewport"
)

// ViewportResolver answers map viewport queries.
type ViewportResolver interface {
	Resolve(view viewport.View) viewport.Result
	ExpansionZoom(id uint64) (int, error)
	Children(id uint64) ([]cluster.Node, error)
	Leaves(id uint64, limit, offset int) ([]models.Station, error)
}

type StationsHandler struct {
	stationFinder models.StationFinder
	viewports     ViewportResolver
	pages         pagination.Fetcher
	pageSize      int
	snapPrecision int
}

type Option func(*StationsHandler)

// WithSnapPrecision rounds cluster query boxes outwards to a 2^-p degree grid
// so nearby pans share cached results. Zero disables snapping.
func WithSnapPrecision(p int) Option {
	return func(h *StationsHandler) {
		if p > 0 {
			h.snapPrecision = p
		}
	}
}

func NewStationsHandler(finder models.StationFinder, viewports ViewportResolver, pages pagination.Fetcher, pageSize int, opts ...Option) *StationsHandler {
	if pageSize <= 0 {
		pageSize = pagination.DefaultPageSize
	}
	h := &StationsHandler{
		stationFinder: finder,
		viewports:     viewports,
		pages:         pages,
		pageSize:      pageSize,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleRequest routes:
//
//	GET /clusters?bbox=minLon,minLat,maxLon,maxLat&zoom=z
//	GET /clusters/{id}/expansion
//	GET /clusters/{id}/leaves?limit=&offset=
//	GET /stations?q=&fuelType=&brand=&suburb=&sortBy=&priceMax=&lat=&lon=&radiusKm=&cursor=&limit=
//	GET /stations/nearest?lat=&lon=&limit=
//	GET /stations/{id}
func (h *StationsHandler) HandleRequest(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if request.HTTPMethod != "" && request.HTTPMethod != http.MethodGet {
		return api.Error("Method not allowed", http.StatusMethodNotAllowed)
	}

	params := request.QueryStringParameters
	if params == nil {
		params = map[string]string{}
	}

	name, arg := route(request.Path)
	switch name {
	case RouteClusters:
		return h.handleClusters(params)
	case RouteExpansion:
		return h.handleExpansion(arg)
	case RouteLeaves:
		return h.handleLeaves(arg, params)
	case RouteSearch:
		return h.handleSearch(ctx, params)
	case RouteNearest:
		return h.handleNearest(ctx, params)
	case RouteStation:
		return h.handleStation(ctx, arg)
	}
	return api.Error("Not found", http.StatusNotFound)
}

// Route names, also used as metric labels.
const (
	RouteClusters  = "/clusters"
	RouteExpansion = "/clusters/{id}/expansion"
	RouteLeaves    = "/clusters/{id}/leaves"
	RouteSearch    = "/stations"
	RouteNearest   = "/stations/nearest"
	RouteStation   = "/stations/{id}"
	RouteUnknown   = "unknown"
)

// Route names the route a path maps to.
func Route(path string) string {
	name, _ := route(path)
	return name
}

func route(path string) (string, string) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case len(parts) == 1 && parts[0] == "clusters":
		return RouteClusters, ""
	case len(parts) == 3 && parts[0] == "clusters" && parts[2] == "expansion":
		return RouteExpansion, parts[1]
	case len(parts) == 3 && parts[0] == "clusters" && parts[2] == "leaves":
		return RouteLeaves, parts[1]
	case len(parts) == 1 && parts[0] == "stations":
		return RouteSearch, ""
	case len(parts) == 2 && parts[0] == "stations" && parts[1] == "nearest":
		return RouteNearest, ""
	case len(parts) == 2 && parts[0] == "stations":
		return RouteStation, parts[1]
	}
	return RouteUnknown, ""
}

func (h *StationsHandler) handleClusters(params map[string]string) (events.APIGatewayProxyResponse, error) {
	bbox, err := api.ParseBBox(params["bbox"])
	if err != nil {
		return api.Error(err.Error(), http.StatusBadRequest)
	}
	zoom, err := api.ParseZoom(params["zoom"])
	if err != nil {
		return api.Error(err.Error(), http.StatusBadRequest)
	}

	view := viewport.View{BBox: bbox, Zoom: zoom}
	if h.snapPrecision > 0 && bbox.Valid() {
		view = viewport.Snap(view, h.snapPrecision)
	}
	result := h.viewports.Resolve(view)
	return api.Success(api.NewClustersResponse(zoom, result.IndexVersion, result.Nodes))
}

func (h *StationsHandler) handleExpansion(rawID string) (events.APIGatewayProxyResponse, error) {
	id, err := strconv.ParseUint(rawID, 10, 64)
	if err != nil {
		return api.Error("Invalid cluster id", http.StatusBadRequest)
	}

	zoom, err := h.viewports.ExpansionZoom(id)
	if err != nil {
		return clusterError(err)
	}
	children, err := h.viewports.Children(id)
	if err != nil {
		return clusterError(err)
	}
	return api.Success(api.NewExpansionResponse(id, zoom, children))
}

func (h *StationsHandler) handleLeaves(rawID string, params map[string]string) (events.APIGatewayProxyResponse, error) {
	id, err := strconv.ParseUint(rawID, 10, 64)
	if err != nil {
		return api.Error("Invalid cluster id", http.StatusBadRequest)
	}
	limit, err := api.ParseLimit(params, h.pageSize)
	if err != nil {
		return badRequest(err)
	}
	offset := 0
	if raw := params["offset"]; raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return api.Error("Invalid offset", http.StatusBadRequest)
		}
	}

	stations, err := h.viewports.Leaves(id, limit, offset)
	if err != nil {
		return clusterError(err)
	}
	return api.Success(api.NewStationsResponse(stations))
}

func clusterError(err error) (events.APIGatewayProxyResponse, error) {
	if errors.Is(err, cluster.ErrClusterNotFound) {
		return api.Error("Cluster not found", http.StatusNotFound)
	}
	log.Error().Err(err).Msg("Cluster lookup failed")
	return api.Error("Error expanding cluster", http.StatusInternalServerError)
}

func (h *StationsHandler) handleSearch(ctx context.Context, params map[string]string) (events.APIGatewayProxyResponse, error) {
	q, err := api.ParseSearch(params)
	if err != nil {
		return badRequest(err)
	}
	limit, err := api.ParseLimit(params, h.pageSize)
	if err != nil {
		return badRequest(err)
	}

	page, err := h.pages.FetchPage(ctx, q, params[search.ParamCursor], limit)
	if err != nil {
		if errors.Is(err, search.ErrInvalidCursor) {
			return api.Error(err.Error(), http.StatusBadRequest)
		}
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			return api.Error(err.Error(), http.StatusBadRequest)
		}
		if pagination.Classify(err).Kind == pagination.Transient {
			log.Warn().Err(err).Msg("Station search unavailable")
			return api.Error("Station search unavailable", http.StatusServiceUnavailable)
		}
		log.Error().Err(err).Msg("Station search failed")
		return api.Error("Error searching stations", http.StatusInternalServerError)
	}
	return api.Success(api.NewPageResponse(page))
}

func badRequest(err error) (events.APIGatewayProxyResponse, error) {
	var coordErr api.InvalidCoordinatesError
	if errors.As(err, &coordErr) {
		return api.Error(err.Error(), http.StatusBadRequest)
	}
	var verr *models.ValidationError
	var perr *api.ParameterError
	if errors.As(err, &verr) || errors.As(err, &perr) {
		return api.Error(err.Error(), http.StatusBadRequest)
	}
	return api.Error("Invalid parameters", http.StatusBadRequest)
}

const defaultNearestLimit = 5

func (h *StationsHandler) handleNearest(ctx context.Context, params map[string]string) (events.APIGatewayProxyResponse, error) {
	lat, lon, err := api.ParseCoordinates(params)
	if err != nil {
		var invalidCoordErr api.InvalidCoordinatesError
		if errors.As(err, &invalidCoordErr) {
			return api.Error(err.Error(), http.StatusBadRequest)
		}
		return api.Error("Invalid parameters", http.StatusBadRequest)
	}

	limit, err := api.ParseLimit(params, defaultNearestLimit)
	if err != nil {
		return badRequest(err)
	}

	stations, err := h.stationFinder.FindNearestStations(ctx, lat, lon, limit)
	if err != nil {
		if errors.Is(err, station.ErrNoSnapshot) {
			return api.Error("Station catalog not loaded", http.StatusServiceUnavailable)
		}
		return api.Error("Error finding stations", http.StatusInternalServerError)
	}

	return api.Success(api.NewStationsResponse(stations))
}

func (h *StationsHandler) handleStation(ctx context.Context, stationID string) (events.APIGatewayProxyResponse, error) {
	stationLocal, err := h.stationFinder.FindStation(ctx, stationID)
	if err != nil {
		if errors.Is(err, station.ErrStationNotFound) {
			return api.Error("Station not found", http.StatusNotFound)
		}
		if errors.Is(err, station.ErrNoSnapshot) {
			return api.Error("Station catalog not loaded", http.StatusServiceUnavailable)
		}
		return api.Error("Error finding station", http.StatusInternalServerError)
	}
	if stationLocal == nil {
		return api.Error("Station not found", http.StatusNotFound)
	}
	return api.Success(api.NewStationResponse(*stationLocal))
}
