package catalog

import (
	"context"

	"github.com/bbernstein/fuelwatch/backend-go/internal/models"
	"github.com/bbernstein/fuelwatch/backend-go/pkg/http/client"
)

// HTTPSource reads the feed from the price API.
type HTTPSource struct {
	client client.Interface
	path   string
}

var _ Source = (*HTTPSource)(nil)

func NewHTTPSource(c client.Interface, path string) *HTTPSource {
	return &HTTPSource{client: c, path: path}
}

func (s *HTTPSource) Name() string { return "http" }

func (s *HTTPSource) Load(ctx context.Context) ([]models.Station, error) {
	resp, err := s.client.Get(ctx, s.path)
	if err != nil {
		return nil, &SourceError{Source: s.Name(), Err: err}
	}

	stations, err := decodeFeed(resp.Body)
	if err != nil {
		return nil, &SourceError{Source: s.Name(), Err: err}
	}
	return stations, nil
}
