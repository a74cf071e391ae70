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
	"strconv"
	"strings"
	"time"

	"github.com/jcodagnone/mediquery/apperr"
	"github.com/jcodagnone/mediquery/metrics"
	"github.com/jcodagnone/mediquery/spatial"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// DefaultNominatimURL is the public OpenStreetMap Nominatim instance.
const DefaultNominatimURL = "https://nominatim.openstreetmap.org"

// NominatimGeocoder uses the OpenStreetMap Nominatim search API.
type NominatimGeocoder struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NominatimOptions configures a NominatimGeocoder. Zero values pick the defaults.
type NominatimOptions struct {
	BaseURL    string
	UserAgent  string // required by the Nominatim usage policy
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
}

// NewNominatimGeocoder creates a new Nominatim geocoder.
func NewNominatimGeocoder(options NominatimOptions) *NominatimGeocoder {
	g := &NominatimGeocoder{
		baseURL:    options.BaseURL,
		userAgent:  options.UserAgent,
		httpClient: options.HTTPClient,
		timeout:    options.Timeout,
		logger:     options.Logger,
		metrics:    options.Metrics,
	}

	if g.baseURL == "" {
		g.baseURL = DefaultNominatimURL
	}

	g.baseURL = strings.TrimSuffix(g.baseURL, "/")

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

// nominatimPlace is one entry of the search response. Coordinates come as strings.
type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Name implements Geocoder.
func (g *NominatimGeocoder) Name() string {
	return "nominatim"
}

// Geocode implements Geocoder.
func (g *NominatimGeocoder) Geocode(ctx context.Context, location string) (*Result, error) {
	ctx, span := tracer.Start(ctx, "geocode.nominatim")
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

func (g *NominatimGeocoder) geocode(ctx context.Context, location string) (*Result, error) {
	clean, err := CleanLocation(location)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("format", "json")
	params.Set("q", clean)
	params.Set("limit", "1")
	params.Set("addressdetails", "1")

	reqURL := g.baseURL + "/search?" + params.Encode()

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "Failed to process location. Please try again.", err)
	}

	req.Header.Set("Accept", "application/json")

	if g.userAgent != "" {
		req.Header.Set("User-Agent", g.userAgent)
	}

	g.logger.InfoContext(ctx, "geocoding location", "location", clean, "provider", g.Name())

	resp, err := g.httpClient.Do(req)
	if err != nil {
		g.logger.WarnContext(ctx, "geocoding request failed", "location", clean, "error", err)

		return nil, transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		g.logger.WarnContext(ctx, "geocoding provider returned an error", "location", clean, "status", resp.StatusCode)

		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, apperr.New(apperr.KindRateLimited,
				"Too many location requests. Please wait a moment and try again.")
		}

		return nil, apperr.Wrap(apperr.KindServiceUnavailable,
			"Unable to verify location. Please try again.",
			fmt.Errorf("nominatim returned status %d", resp.StatusCode))
	}

	var places []nominatimPlace
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		if apperr.IsTimeout(err) {
			return nil, transportError(err)
		}

		return nil, apperr.Wrap(apperr.KindInternal, "Invalid response from location service", err)
	}

	if len(places) == 0 {
		return nil, notFound(clean)
	}

	place := places[0]

	point, err := parsePoint(place.Lat, place.Lon)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "Invalid location coordinates received", err)
	}

	g.logger.InfoContext(ctx, "geocoded location", "location", clean, "display_name", place.DisplayName,
		"lat", point.Lat, "lon", point.Lon)

	return &Result{
		Point:       point,
		DisplayName: place.DisplayName,
		Provider:    g.Name(),
	}, nil
}

func parsePoint(rawLat, rawLon string) (spatial.Point, error) {
	if rawLat == "" || rawLon == "" {
		return spatial.Point{}, fmt.Errorf("missing coordinates (lat=%q lon=%q)", rawLat, rawLon)
	}

	lat, err := strconv.ParseFloat(rawLat, 64)
	if err != nil {
		return spatial.Point{}, fmt.Errorf("parsing latitude: %w", err)
	}

	lon, err := strconv.ParseFloat(rawLon, 64)
	if err != nil {
		return spatial.Point{}, fmt.Errorf("parsing longitude: %w", err)
	}

	point := spatial.Point{Lat: lat, Lon: lon}
	if !point.Valid() {
		return spatial.Point{}, fmt.Errorf("coordinates out of range: %v", point)
	}

	return point, nil
}
