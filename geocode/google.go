// Copyright 2025 The MediQuery Authors
// SPDX-License-Identifier: Apache-2.0

package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jcodagnone/mediquery/apperr"
	"github.com/jcodagnone/mediquery/metrics"
	"github.com/jcodagnone/mediquery/spatial"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// DefaultGoogleMapsURL is the Geocoding API endpoint.
const DefaultGoogleMapsURL = "https://maps.googleapis.com/maps/api/geocode/json"

// GoogleMapsGeocoder uses Google Maps Geocoding API.
type GoogleMapsGeocoder struct {
	apiKey     string
	endpoint   string
	region     string
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// GoogleMapsOptions configures a GoogleMapsGeocoder.
type GoogleMapsOptions struct {
	APIKey     string
	Endpoint   string
	Region     string // ccTLD bias, e.g. "in"
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
}

// NewGoogleMapsGeocoder creates a new Google Maps geocoder.
func NewGoogleMapsGeocoder(options GoogleMapsOptions) *GoogleMapsGeocoder {
	g := &GoogleMapsGeocoder{
		apiKey:     options.APIKey,
		endpoint:   options.Endpoint,
		region:     options.Region,
		httpClient: options.HTTPClient,
		timeout:    options.Timeout,
		logger:     options.Logger,
		metrics:    options.Metrics,
	}

	if g.endpoint == "" {
		g.endpoint = DefaultGoogleMapsURL
	}

	if g.httpClient == nil {
		g.httpClient = http.DefaultClient
	}

	if g.timeout <= 0 {
		g.timeout = DefaultTimeout
	}

	if g.logger == nil {
		g.logger = slog.Default()
	}

	return g
}

type googleMapsResponse struct {
	Results []struct {
		Geometry struct {
			Location struct {
				Lat *float64 `json:"lat"`
				Lng *float64 `json:"lng"`
			} `json:"location"`
			LocationType string `json:"location_type"` // ROOFTOP, RANGE_INTERPOLATED, GEOMETRIC_CENTER, APPROXIMATE
		} `json:"geometry"`
		FormattedAddress string `json:"formatted_address"`
	} `json:"results"`
	Status       string `json:"status"` // OK, ZERO_RESULTS, etc.
	ErrorMessage string `json:"error_message"`
}

// Name implements Geocoder.
func (g *GoogleMapsGeocoder) Name() string {
	return "google_maps"
}

// Geocode implements Geocoder.
func (g *GoogleMapsGeocoder) Geocode(ctx context.Context, location string) (*Result, error) {
	ctx, span := tracer.Start(ctx, "geocode.google_maps")
	defer span.End()

	result, err := g.geocode(ctx, location)
	if err != nil {
		kind := apperr.KindOf(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, kind.String())
		g.metrics.ObserveGeocode(g.Name(), kind.String())

		return nil, err
	}

	span.SetAttributes(attribute.String("geocode.display_name", result.DisplayName))
	g.metrics.ObserveGeocode(g.Name(), metrics.OutcomeOK)

	return result, nil
}

func (g *GoogleMapsGeocoder) geocode(ctx context.Context, location string) (*Result, error) {
	clean, err := CleanLocation(location)
	if err != nil {
		return nil, err
	}

	if g.apiKey == "" {
		return nil, apperr.New(apperr.KindServiceUnavailable, "Location service is not configured")
	}

	params := url.Values{}
	params.Set("address", clean)
	params.Set("key", g.apiKey)

	if g.region != "" {
		params.Set("region", g.region)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "Failed to process location. Please try again.", err)
	}

	g.logger.InfoContext(ctx, "geocoding location", "location", clean, "provider", g.Name())

	resp, err := g.httpClient.Do(req)
	if err != nil {
		g.logger.WarnContext(ctx, "geocoding request failed", "location", clean, "error", err)

		return nil, transportError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, apperr.New(apperr.KindRateLimited,
			"Too many location requests. Please wait a moment and try again.")
	case resp.StatusCode != http.StatusOK:
		return nil, apperr.Wrap(apperr.KindServiceUnavailable,
			"Unable to verify location. Please try again.",
			fmt.Errorf("google maps returned status %d", resp.StatusCode))
	}

	var gmResp googleMapsResponse
	if err := json.NewDecoder(resp.Body).Decode(&gmResp); err != nil {
		if apperr.IsTimeout(err) {
			return nil, transportError(err)
		}

		return nil, apperr.Wrap(apperr.KindInternal, "Invalid response from location service", err)
	}

	if err := statusError(gmResp.Status, gmResp.ErrorMessage, clean); err != nil {
		g.logger.WarnContext(ctx, "geocoding provider returned an error", "location", clean,
			"status", gmResp.Status, "error", gmResp.ErrorMessage)

		return nil, err
	}

	if len(gmResp.Results) == 0 {
		return nil, notFound(clean)
	}

	result := gmResp.Results[0]
	loc := result.Geometry.Location

	if loc.Lat == nil || loc.Lng == nil {
		return nil, apperr.New(apperr.KindInternal, "Invalid location coordinates received")
	}

	point := spatial.Point{Lat: *loc.Lat, Lon: *loc.Lng}
	if !point.Valid() {
		return nil, apperr.Wrap(apperr.KindInternal, "Invalid location coordinates received",
			fmt.Errorf("coordinates out of range: %v", point))
	}

	g.logger.InfoContext(ctx, "geocoded location", "location", clean, "display_name", result.FormattedAddress,
		"location_type", result.Geometry.LocationType, "lat", point.Lat, "lon", point.Lon)

	return &Result{
		Point:       point,
		DisplayName: result.FormattedAddress,
		Provider:    g.Name(),
	}, nil
}

// statusError maps the API status field. OK returns nil.
func statusError(status, message, location string) error {
	var cause error
	if message != "" {
		cause = fmt.Errorf("google maps status %s: %s", status, message)
	} else {
		cause = fmt.Errorf("google maps status %s", status)
	}

	switch strings.ToUpper(status) {
	case "OK":
		return nil
	case "ZERO_RESULTS":
		return notFound(location)
	case "OVER_QUERY_LIMIT", "OVER_DAILY_LIMIT":
		return apperr.Wrap(apperr.KindRateLimited,
			"Too many location requests. Please wait a moment and try again.", cause)
	case "INVALID_REQUEST":
		return apperr.Wrap(apperr.KindInvalidInput, "Location name is required and must be a valid string", cause)
	default:
		return apperr.Wrap(apperr.KindServiceUnavailable, "Unable to verify location. Please try again.", cause)
	}
}
