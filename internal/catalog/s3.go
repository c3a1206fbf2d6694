package catalog

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/bbernstein/fuelwatch/backend-go/internal/cache"
	"github.com/bbernstein/fuelwatch/backend-go/internal/models"
)

// S3Source reads a feed document that an upstream job drops into a bucket.
type S3Source struct {
	client cache.S3Client
	bucket string
	key    string
}

var _ Source = (*S3Source)(nil)

func NewS3Source(client cache.S3Client, bucket, key string) *S3Source {
	return &S3Source{client: client, bucket: bucket, key: key}
}

func (s *S3Source) Name() string { return "s3" }

func (s *S3Source) Load(ctx context.Context) ([]models.Station, error) {
	if s.bucket == "" {
		return nil, &SourceError{Source: s.Name(), Err: fmt.Errorf("empty bucket name")}
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return nil, &SourceError{Source: s.Name(), Err: fmt.Errorf("getting s3://%s/%s: %w", s.bucket, s.key, err)}
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(out.Body)

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, &SourceError{Source: s.Name(), Err: fmt.Errorf("reading object body: %w", err)}
	}

	stations, err := decodeFeed(body)
	if err != nil {
		return nil, &SourceError{Source: s.Name(), Err: err}
	}
	return stations, nil
}
