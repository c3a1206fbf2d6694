package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"

	"github.com/bbernstein/fuelwatch/backend-go/internal/models"
)

// S3Client defines the interface for S3 operations we need
type S3Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

const defaultSnapshotKey = "catalog/stations.json"

// S3StationCache keeps the last good catalog snapshot in S3 so a cold start
// can serve the map while the catalog feed is unavailable.
type S3StationCache struct {
	client     S3Client
	bucketName string
	key        string
	ttl        time.Duration
	clock      clock
}

// StationListCacheRecord is the stored object. A zero TTL never expires.
type StationListCacheRecord struct {
	Stations    []models.Station `json:"stations"`
	LastUpdated int64            `json:"lastUpdated"`
	TTL         int64            `json:"ttl"`
}

// StationListCacheProvider defines interface for station list caching
type StationListCacheProvider interface {
	GetStations(ctx context.Context) ([]models.Station, error)
	SaveStations(ctx context.Context, stations []models.Station) error
}

var _ StationListCacheProvider = (*S3StationCache)(nil)

// NewS3StationCache stores snapshots under key. A ttl of zero or less keeps
// the snapshot until it is overwritten.
func NewS3StationCache(client S3Client, bucketName, key string, ttl time.Duration) *S3StationCache {
	if key == "" {
		key = defaultSnapshotKey
	}
	return &S3StationCache{
		client:     client,
		bucketName: bucketName,
		key:        key,
		ttl:        ttl,
		clock:      systemClock{},
	}
}

// GetStations returns the cached snapshot. A missing or expired object is a
// miss (nil, nil), not an error.
func (c *S3StationCache) GetStations(ctx context.Context) ([]models.Station, error) {
	if c.bucketName == "" {
		return nil, fmt.Errorf("empty bucket name")
	}

	result, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucketName),
		Key:    aws.String(c.key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading snapshot from S3: %w", err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing S3 object body")
		}
	}(result.Body)

	var record StationListCacheRecord
	if err := json.NewDecoder(result.Body).Decode(&record); err != nil {
		return nil, fmt.Errorf("decoding cache record: %w", err)
	}

	if record.TTL > 0 && c.clock.Now().Unix() > record.TTL {
		log.Debug().Str("key", c.key).Msg("Station snapshot in S3 expired")
		return nil, nil
	}

	return record.Stations, nil
}

// SaveStations overwrites the cached snapshot.
func (c *S3StationCache) SaveStations(ctx context.Context, stations []models.Station) error {
	if c.bucketName == "" {
		return fmt.Errorf("empty bucket name")
	}

	now := c.clock.Now().Unix()
	record := StationListCacheRecord{
		Stations:    stations,
		LastUpdated: now,
	}
	if c.ttl > 0 {
		record.TTL = now + int64(c.ttl.Seconds())
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(record); err != nil {
		return fmt.Errorf("encoding cache record: %w", err)
	}

	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucketName),
		Key:         aws.String(c.key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("saving to S3: %w", err)
	}

	log.Debug().Int("station_count", len(stations)).Str("key", c.key).Msg("Saved station snapshot to S3")
	return nil
}
