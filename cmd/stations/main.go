package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog/log"

	"github.com/bbernstein/fuelwatch/backend-go/internal/api"
	"github.com/bbernstein/fuelwatch/backend-go/internal/app"
	"github.com/bbernstein/fuelwatch/backend-go/internal/catalog"
	"github.com/bbernstein/fuelwatch/backend-go/internal/config"
	"github.com/bbernstein/fuelwatch/backend-go/internal/handler"
)

type freshener interface {
	EnsureFresh(ctx context.Context) error
}

var (
	lambdaStart      = lambda.Start // Allow mocking of lambda.Start in tests
	stationsHandler  *handler.StationsHandler
	catalogRefresher freshener
	setupOnce        sync.Once
)

func init() {
	setupOnce.Do(func() {
		cfg := config.LoadFromEnv()
		cfg.InitializeLogging()

		h, r, err := setup(context.Background(), cfg, config.GetEngineConfig())
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize stations handler")
		}
		stationsHandler, catalogRefresher = h, r
	})
}

// setup builds the service without metrics; a Lambda has nothing to scrape.
func setup(ctx context.Context, cfg *config.Config, engineCfg *config.EngineConfig) (*handler.StationsHandler, *catalog.Refresher, error) {
	a, err := app.New(ctx, cfg, engineCfg, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing service: %w", err)
	}
	return a.Handler, a.Refresher, nil
}

// handleRequest loads the catalog on a cold or expired container before
// dispatching. A failed load still dispatches; the handler reports the missing
// snapshot.
func handleRequest(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if stationsHandler == nil {
		return api.Error("Handler not initialized", http.StatusInternalServerError)
	}
	if catalogRefresher != nil {
		if err := catalogRefresher.EnsureFresh(ctx); err != nil {
			log.Error().Err(err).Msg("Catalog refresh failed")
		}
	}
	return stationsHandler.HandleRequest(ctx, request)
}

func main() {
	lambdaStart(handleRequest)
}
