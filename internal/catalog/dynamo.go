package catalog

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"

	"github.com/bbernstein/fuelwatch/backend-go/internal/models"
)

// DynamoDBClient defines the interface for DynamoDB operations we need
type DynamoDBClient interface {
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoSource scans a table holding one item per station.
type DynamoSource struct {
	client    DynamoDBClient
	tableName string
}

var _ Source = (*DynamoSource)(nil)

func NewDynamoSource(client DynamoDBClient, tableName string) *DynamoSource {
	return &DynamoSource{client: client, tableName: tableName}
}

func (s *DynamoSource) Name() string { return "dynamo" }

func (s *DynamoSource) Load(ctx context.Context) ([]models.Station, error) {
	var stations []models.Station
	var startKey map[string]types.AttributeValue
	pages := 0

	for {
		out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(s.tableName),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, &SourceError{Source: s.Name(), Err: fmt.Errorf("scanning %s: %w", s.tableName, err)}
		}
		pages++

		var batch []models.Station
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &batch); err != nil {
			return nil, &SourceError{Source: s.Name(), Err: fmt.Errorf("unmarshaling stations: %w", err)}
		}
		stations = append(stations, batch...)

		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}

	log.Debug().
		Str("table", s.tableName).
		Int("pages", pages).
		Int("stations", len(stations)).
		Msg("Scanned station table")

	if stations == nil {
		stations = make([]models.Station, 0)
	}
	return stations, nil
}
