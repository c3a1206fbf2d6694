// Package catalog loads station snapshots from the price feed and keeps the
// cluster index in step with them.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bbernstein/fuelwatch/backend-go/internal/models"
)

// Source loads a complete catalog snapshot.
type Source interface {
	Name() string
	Load(ctx context.Context) ([]models.Station, error)
}

// SourceError wraps a failure from a named source.
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("catalog source %s: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// Feed is the JSON document served by the price feed and stored in S3.
type Feed struct {
	GeneratedAt time.Time        `json:"generatedAt"`
	Stations    []models.Station `json:"stations"`
}

func decodeFeed(body []byte) ([]models.Station, error) {
	var feed Feed
	if err := json.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("decoding feed: %w", err)
	}
	if feed.Stations == nil {
		return nil, fmt.Errorf("feed has no stations field")
	}
	return feed.Stations, nil
}
