// Command browse pages through the station list of a running API the way the
// map's list panel does, and prints each page as it arrives.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bbernstein/fuelwatch/backend-go/internal/api"
	"github.com/bbernstein/fuelwatch/backend-go/internal/config"
	"github.com/bbernstein/fuelwatch/backend-go/internal/models"
	"github.com/bbernstein/fuelwatch/backend-go/internal/pagination"
	"github.com/bbernstein/fuelwatch/backend-go/internal/search"
	"github.com/bbernstein/fuelwatch/backend-go/pkg/http/client"
)

type Options struct {
	API      string        `short:"a" long:"api" env:"FUELWATCH_API" description:"Base URL of the stations API" default:"http://localhost:3000"`
	Query    string        `short:"q" long:"query" description:"Free text matched against name, brand and address"`
	Fuel     string        `short:"f" long:"fuel" description:"Only stations selling this fuel (U91, E10, U95, U98, DSL, LPG)"`
	Brand    string        `short:"b" long:"brand" description:"Only stations of this brand"`
	Suburb   string        `short:"s" long:"suburb" description:"Only stations in this suburb"`
	Sort     string        `long:"sort" description:"Result order" choice:"distance" choice:"price" choice:"name" choice:"updated"`
	PriceMax float64       `long:"price-max" description:"Price ceiling in dollars per litre"`
	Near     string        `short:"n" long:"near" description:"Origin as lat,lon"`
	Radius   float64       `short:"r" long:"radius" description:"Radius in km around --near"`
	PageSize int           `short:"l" long:"page-size" description:"Stations per page, at most 100" default:"24"`
	Pages    int           `short:"p" long:"pages" description:"Pages to fetch; 0 fetches all" default:"1"`
	Attempts int           `long:"attempts" description:"Attempts per page on transient errors" default:"3"`
	Timeout  time.Duration `long:"timeout" description:"HTTP timeout" default:"10s"`
	Format   string        `long:"format" description:"Output format" choice:"table" choice:"json" default:"table"`
	LogLevel string        `long:"log-level" env:"LOG_LEVEL" description:"Log level" default:"warn"`
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	config.New(config.WithLogLevel(opts.LogLevel)).InitializeLogging()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// searchQuery validates the flags through the same parser the API uses.
func (o Options) searchQuery() (models.SearchQuery, error) {
	params := map[string]string{}
	set := func(key, value string) {
		if value != "" {
			params[key] = value
		}
	}
	set(search.ParamQuery, o.Query)
	set(search.ParamFuelType, o.Fuel)
	set(search.ParamBrand, o.Brand)
	set(search.ParamSuburb, o.Suburb)
	set(search.ParamSortBy, o.Sort)
	if o.PriceMax != 0 {
		params[search.ParamPriceMax] = strconv.FormatFloat(o.PriceMax, 'f', -1, 64)
	}
	if o.Radius != 0 {
		params[search.ParamRadius] = strconv.FormatFloat(o.Radius, 'f', -1, 64)
	}
	if o.Near != "" {
		lat, lon, ok := strings.Cut(o.Near, ",")
		if !ok {
			return models.SearchQuery{}, fmt.Errorf("--near must be lat,lon")
		}
		params[search.ParamLat] = strings.TrimSpace(lat)
		params[search.ParamLon] = strings.TrimSpace(lon)
	}
	return api.ParseSearch(params)
}

func run(ctx context.Context, opts Options, out io.Writer) (err error) {
	if opts.PageSize < 1 || opts.PageSize > api.MaxPageSize {
		return fmt.Errorf("--page-size must be between 1 and %d", api.MaxPageSize)
	}
	q, err := opts.searchQuery()
	if err != nil {
		return err
	}

	httpClient := client.New(client.Options{
		BaseURL:    strings.TrimRight(opts.API, "/"),
		Timeout:    opts.Timeout,
		MaxRetries: -1,
	})
	ctrl := pagination.New(search.NewRemoteFetcher(httpClient), pagination.WithPageSize(opts.PageSize))
	defer ctrl.Close()

	printer := newPrinter(opts.Format, out)
	defer func() {
		if flushErr := printer.flush(); err == nil {
			err = flushErr
		}
	}()

	fetch, err := ctrl.SetQuery(ctx, q)
	if err != nil {
		return err
	}

	printed := 0
	for {
		if err := await(ctx, ctrl, fetch, opts.Attempts); err != nil {
			return err
		}

		snap := ctrl.Snapshot()
		if err := printer.print(snap.Stations[printed:], printed); err != nil {
			return err
		}
		printed = len(snap.Stations)

		if !snap.HasMore || (opts.Pages > 0 && snap.Pages >= opts.Pages) {
			log.Info().Int("stations", printed).Int("pages", snap.Pages).Bool("has_more", snap.HasMore).Msg("Done")
			return nil
		}

		fetch, err = ctrl.FetchNextPage(ctx)
		if err != nil {
			return err
		}
	}
}

// await waits for fetch and retries transient failures until attempts run out.
func await(ctx context.Context, ctrl *pagination.Controller, fetch *pagination.Fetch, attempts int) error {
	for attempt := 1; ; attempt++ {
		err := fetch.Wait(ctx)
		if err == nil {
			return nil
		}

		var fetchErr *pagination.FetchError
		if !errors.As(err, &fetchErr) || !fetchErr.Retryable() || attempt >= attempts {
			return err
		}

		log.Warn().Err(err).Int("attempt", attempt).Msg("Page fetch failed, retrying")
		if fetch, err = ctrl.Retry(ctx); err != nil {
			return err
		}
	}
}

type printer struct {
	format string
	table  *tabwriter.Writer
	enc    *json.Encoder
	header bool
}

func newPrinter(format string, out io.Writer) *printer {
	p := &printer{format: format}
	if format == "json" {
		p.enc = json.NewEncoder(out)
	} else {
		p.table = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	}
	return p
}

func (p *printer) print(stations []models.Station, offset int) error {
	if p.enc != nil {
		for _, s := range stations {
			if err := p.enc.Encode(s); err != nil {
				return err
			}
		}
		return nil
	}

	if !p.header {
		fmt.Fprintln(p.table, "#\tID\tNAME\tBRAND\tSUBURB\tCHEAPEST\tDISTANCE")
		p.header = true
	}
	for i, s := range stations {
		cheapest := "-"
		if price, ok := s.CheapestPrice(); ok {
			cheapest = strconv.FormatFloat(price, 'f', 3, 64)
		}
		distance := "-"
		if s.Distance > 0 {
			distance = strconv.FormatFloat(s.Distance, 'f', 2, 64) + " km"
		}
		fmt.Fprintf(p.table, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n", offset+i+1, s.ID, s.Name, s.Brand, s.Address.Suburb, cheapest, distance)
	}
	return nil
}

// flush writes buffered table rows so columns align across every page.
func (p *printer) flush() error {
	if p.table != nil {
		return p.table.Flush()
	}
	return nil
}
