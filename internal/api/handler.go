package api

import (
	"encoding/json"
	"net/http"

	"github.com/aws/aws-lambda-go/events"

	"github.com/bbernstein/fuelwatch/backend-go/internal/cluster"
	"github.com/bbernstein/fuelwatch/backend-go/internal/models"
)

type APIResponse struct {
	ResponseType string `json:"responseType"`
}

func (r APIResponse) GetResponseType() string {
	return r.ResponseType
}

type StationsResponse struct {
	APIResponse
	Stations []models.Station `json:"stations"`
}

type StationResponse struct {
	APIResponse
	Station models.Station `json:"station"`
}

type PageResponse struct {
	APIResponse
	models.Page
}

// Marker is one map marker: a single station or a cluster of them.
type Marker struct {
	Type      string          `json:"type"`
	ClusterID uint64          `json:"clusterId,omitempty"`
	Count     int             `json:"count"`
	Latitude  float64         `json:"latitude"`
	Longitude float64         `json:"longitude"`
	Station   *models.Station `json:"station,omitempty"`
}

type ClustersResponse struct {
	APIResponse
	Zoom         int      `json:"zoom"`
	IndexVersion uint64   `json:"indexVersion"`
	Markers      []Marker `json:"markers"`
}

type ExpansionResponse struct {
	APIResponse
	ClusterID     uint64   `json:"clusterId"`
	ExpansionZoom int      `json:"expansionZoom"`
	Children      []Marker `json:"children"`
}

type ErrorResponse struct {
	APIResponse
	Error string `json:"error"`
}

func NewStationsResponse(stations []models.Station) *StationsResponse {
	if stations == nil {
		stations = []models.Station{}
	}
	return &StationsResponse{
		APIResponse: APIResponse{ResponseType: "stations"},
		Stations:    stations,
	}
}

func NewStationResponse(station models.Station) *StationResponse {
	return &StationResponse{
		APIResponse: APIResponse{ResponseType: "station"},
		Station:     station,
	}
}

func NewPageResponse(page models.Page) *PageResponse {
	if page.Stations == nil {
		page.Stations = []models.Station{}
	}
	return &PageResponse{
		APIResponse: APIResponse{ResponseType: "page"},
		Page:        page,
	}
}

func NewClustersResponse(zoom int, indexVersion uint64, nodes []cluster.Node) *ClustersResponse {
	return &ClustersResponse{
		APIResponse:  APIResponse{ResponseType: "clusters"},
		Zoom:         zoom,
		IndexVersion: indexVersion,
		Markers:      NewMarkers(nodes),
	}
}

func NewExpansionResponse(id uint64, zoom int, children []cluster.Node) *ExpansionResponse {
	return &ExpansionResponse{
		APIResponse:   APIResponse{ResponseType: "expansion"},
		ClusterID:     id,
		ExpansionZoom: zoom,
		Children:      NewMarkers(children),
	}
}

// NewMarkers converts index nodes to their wire form.
func NewMarkers(nodes []cluster.Node) []Marker {
	markers := make([]Marker, 0, len(nodes))
	for _, n := range nodes {
		p := n.Coordinates()
		m := Marker{Count: n.Size(), Latitude: p.Lat, Longitude: p.Lon}
		switch v := n.(type) {
		case cluster.Leaf:
			s := v.Station
			m.Type = "station"
			m.Station = &s
		case cluster.Cluster:
			m.Type = "cluster"
			m.ClusterID = v.ID
		}
		markers = append(markers, m)
	}
	return markers
}

func NewErrorResponse(message string) *ErrorResponse {
	return &ErrorResponse{
		APIResponse: APIResponse{ResponseType: "error"},
		Error:       message,
	}
}

// Response helpers
func Success(body interface{}) (events.APIGatewayProxyResponse, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return Error("Internal Server Error", http.StatusInternalServerError)
	}

	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusOK,
		Headers: map[string]string{
			"Content-Type":                "application/json",
			"Access-Control-Allow-Origin": "*",
		},
		Body: string(jsonBody),
	}, nil
}

func Error(message string, statusCode int) (events.APIGatewayProxyResponse, error) {
	body, _ := json.Marshal(NewErrorResponse(message))

	return events.APIGatewayProxyResponse{
		StatusCode: statusCode,
		Headers: map[string]string{
			"Content-Type":                "application/json",
			"Access-Control-Allow-Origin": "*",
		},
		Body: string(body),
	}, nil
}
