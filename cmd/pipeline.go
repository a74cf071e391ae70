// Copyright 2025 The MediQuery Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jcodagnone/mediquery/geocode"
	"github.com/jcodagnone/mediquery/metrics"
	"github.com/jcodagnone/mediquery/overpass"
	"github.com/jcodagnone/mediquery/search"
	"github.com/jcodagnone/mediquery/utils/httputils"
)

const (
	geocoderNominatim = "nominatim"
	geocoderGoogle    = "google"
)

// pipelineOptions are the settings shared by every command that runs searches.
type pipelineOptions struct {
	Environment       string
	LogLevel          string
	Geocoder          string
	NominatimURL      string
	GoogleMapsAPIKey  string
	GoogleKeyName     string
	GoogleProject     string
	OverpassEndpoints []string
	DefaultRadiusKm   float64
	MaxRadiusKm       float64
	EnableHTTPTrace   bool
	HTTPBodyTrace     bool
}

var pipeline = &pipelineOptions{}

func userAgent() string {
	return fmt.Sprintf("MediQuery/%s (Medical Store Finder)", Version)
}

func (o *pipelineOptions) searchOptions() search.Options {
	return search.Options{
		DefaultRadiusKm: o.DefaultRadiusKm,
		MaxRadiusKm:     o.MaxRadiusKm,
	}
}

// finder is a wired search pipeline.
type finder struct {
	service  *search.Service
	geocoder geocode.Geocoder
	overpass *overpass.Client
	logger   *slog.Logger
}

// newFinder wires the geocoder, the Overpass client and the search service.
// m may be nil.
func (o *pipelineOptions) newFinder(ctx context.Context, m *metrics.Metrics) (*finder, error) {
	logger, err := newLogger(o.Environment, o.LogLevel)
	if err != nil {
		return nil, err
	}

	clientOptions := httputils.ClientOptions{UserAgent: userAgent()}
	if o.EnableHTTPTrace || o.HTTPBodyTrace {
		clientOptions.TraceWriter = os.Stderr
		clientOptions.TraceBody = o.HTTPBodyTrace
	}

	client := httputils.NewClient(clientOptions)

	var geocoder geocode.Geocoder

	switch o.Geocoder {
	case geocoderNominatim, "":
		geocoder = geocode.NewNominatimGeocoder(geocode.NominatimOptions{
			BaseURL:    o.NominatimURL,
			UserAgent:  userAgent(),
			HTTPClient: client,
			Logger:     logger,
			Metrics:    m,
		})
	case geocoderGoogle:
		key, err := geocode.ResolveGoogleAPIKey(ctx, o.GoogleMapsAPIKey, geocode.KeyLookup{
			DisplayName: o.GoogleKeyName,
			Project:     o.GoogleProject,
		})
		if err != nil {
			return nil, err
		}

		geocoder = geocode.NewGoogleMapsGeocoder(geocode.GoogleMapsOptions{
			APIKey:     key,
			HTTPClient: client,
			Logger:     logger,
			Metrics:    m,
		})
	default:
		return nil, fmt.Errorf("unknown geocoder %q (valid: %s, %s)", o.Geocoder, geocoderNominatim, geocoderGoogle)
	}

	mirrors := overpass.NewClient(overpass.Options{
		Endpoints:  o.OverpassEndpoints,
		HTTPClient: client,
		UserAgent:  userAgent(),
		Logger:     logger,
		Metrics:    m,
	})

	return &finder{
		service:  search.NewService(geocoder, mirrors, o.searchOptions(), logger, m),
		geocoder: geocoder,
		overpass: mirrors,
		logger:   logger,
	}, nil
}

func init() {
	flags := rootCmd.PersistentFlags()

	flags.StringVar(&pipeline.Environment, "environment", "development",
		"Runtime environment: development or production")
	flags.StringVar(&pipeline.LogLevel, "log-level", "info",
		"Structured log level: debug, info, warn or error")
	flags.StringVar(&pipeline.Geocoder, "geocoder", geocoderNominatim,
		"Geocoding provider: nominatim or google")
	flags.StringVar(&pipeline.NominatimURL, "nominatim-url", geocode.DefaultNominatimURL,
		"Base URL of the Nominatim service")
	flags.StringVar(&pipeline.GoogleMapsAPIKey, "google-maps-api-key", "",
		"Google Maps API key. When empty it is looked up through Application Default Credentials")
	flags.StringVar(&pipeline.GoogleKeyName, "google-key-name", geocode.DefaultKeyName,
		"Display name of the Maps key looked up through Application Default Credentials")
	flags.StringVar(&pipeline.GoogleProject, "google-project", "",
		"Project holding the Maps key; defaults to the credentials project")
	flags.StringSliceVar(&pipeline.OverpassEndpoints, "overpass-endpoints", overpass.DefaultEndpoints,
		"Overpass mirrors, queried in order")
	flags.Float64Var(&pipeline.DefaultRadiusKm, "default-radius", search.DefaultRadiusKm,
		"Search radius in km when none is requested")
	flags.Float64Var(&pipeline.MaxRadiusKm, "max-radius", search.MaxRadiusKm,
		"Largest search radius in km")
	flags.BoolVar(&pipeline.EnableHTTPTrace, "trace-http", false,
		"Display outbound HTTP requests-responses")
	flags.BoolVar(&pipeline.HTTPBodyTrace, "trace-http-body", false,
		"Display outbound HTTP requests-responses bodies")
}
