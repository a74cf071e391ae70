// Copyright 2025 The MediQuery Authors
// SPDX-License-Identifier: Apache-2.0

// Package search runs the store search pipeline: geocode the location, fetch
// candidates around it, then normalize, deduplicate and rank them.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"time"

	"github.com/jcodagnone/mediquery/apperr"
	"github.com/jcodagnone/mediquery/geocode"
	"github.com/jcodagnone/mediquery/metrics"
	"github.com/jcodagnone/mediquery/overpass"
	"github.com/jcodagnone/mediquery/spatial"
	"github.com/jcodagnone/mediquery/stores"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Radius bounds, in kilometers.
const (
	DefaultRadiusKm = 5
	MinRadiusKm     = 1
	MaxRadiusKm     = 25
)

var tracer = otel.Tracer("github.com/jcodagnone/mediquery/search")

// CandidateFetcher returns the raw elements around a point.
type CandidateFetcher interface {
	FetchCandidates(ctx context.Context, origin spatial.Point, radiusKm float64) ([]overpass.Element, error)
}

// Options holds the radius policy.
type Options struct {
	DefaultRadiusKm float64
	MaxRadiusKm     float64
}

// DefaultOptions returns the standard radius policy.
func DefaultOptions() Options {
	return Options{DefaultRadiusKm: DefaultRadiusKm, MaxRadiusKm: MaxRadiusKm}
}

// ClampRadius returns the radius to search with. A missing or non finite
// radius takes the default; anything else is clamped to [MinRadiusKm, MaxRadiusKm].
func (o Options) ClampRadius(radiusKm *float64) float64 {
	def := o.DefaultRadiusKm
	if def <= 0 || math.IsNaN(def) || math.IsInf(def, 0) {
		def = DefaultRadiusKm
	}

	maxKm := o.MaxRadiusKm
	if maxKm < MinRadiusKm || math.IsNaN(maxKm) || math.IsInf(maxKm, 0) {
		maxKm = MaxRadiusKm
	}

	r := def
	if radiusKm != nil && !math.IsNaN(*radiusKm) && !math.IsInf(*radiusKm, 0) {
		r = *radiusKm
	}

	return min(max(r, MinRadiusKm), maxKm)
}

// Service runs searches. It keeps no state between calls.
type Service struct {
	geocoder geocode.Geocoder
	fetcher  CandidateFetcher
	options  Options
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewService creates a Service. logger and m may be nil.
func NewService(geocoder geocode.Geocoder, fetcher CandidateFetcher, options Options,
	logger *slog.Logger, m *metrics.Metrics,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		geocoder: geocoder,
		fetcher:  fetcher,
		options:  options,
		logger:   logger,
		metrics:  m,
	}
}

// ClampRadius applies the service's radius policy.
func (s *Service) ClampRadius(radiusKm *float64) float64 {
	return s.options.ClampRadius(radiusKm)
}

// Search finds the medical stores around location. Every error it returns
// wraps an *apperr.Error; failures after the location was resolved are a
// *LocatedError as well.
func (s *Service) Search(ctx context.Context, location string, radiusKm *float64) (*Result, error) {
	start := time.Now()
	radius := s.options.ClampRadius(radiusKm)

	ctx, span := tracer.Start(ctx, "search")
	defer span.End()

	span.SetAttributes(
		attribute.String("search.location", location),
		attribute.Float64("search.radius_km", radius),
	)

	result, err := s.search(ctx, location, radius)
	if err != nil {
		appErr := asAppError(err)

		s.logger.ErrorContext(ctx, "search failed", "location", location, "radius", radius,
			"kind", appErr.Kind.String(), "error", appErr, "duration", time.Since(start))
		s.metrics.ObserveSearch(appErr.Kind.String(), 0, time.Since(start))
		span.RecordError(appErr)
		span.SetStatus(codes.Error, appErr.Kind.String())

		if origin, ok := OriginOf(err); ok {
			return nil, &LocatedError{Origin: origin, Err: appErr}
		}

		return nil, appErr
	}

	outcome := metrics.OutcomeOK
	if len(result.Stores) == 0 {
		outcome = metrics.OutcomeEmpty
	}

	s.metrics.ObserveSearch(outcome, len(result.Stores), time.Since(start))
	span.SetAttributes(attribute.Int("search.stores", len(result.Stores)))

	return result, nil
}

func (s *Service) search(ctx context.Context, location string, radius float64) (*Result, error) {
	clean, err := geocode.CleanLocation(location)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "searching stores", "location", clean, "radius", radius)

	place, err := s.geocoder.Geocode(ctx, clean)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "location resolved", "location", clean, "display_name", place.DisplayName,
		"lat", place.Point.Lat, "lon", place.Point.Lon, "provider", place.Provider)

	elements, err := s.fetcher.FetchCandidates(ctx, place.Point, radius)
	if err != nil {
		return nil, &LocatedError{Origin: place.Point, Err: err}
	}

	normalized := make([]stores.Store, 0, len(elements))

	for _, el := range elements {
		if store, ok := stores.Normalize(el, place.Point, radius); ok {
			normalized = append(normalized, store)
		}
	}

	ranked := stores.Rank(stores.Dedupe(normalized))

	s.logger.InfoContext(ctx, "search complete", "location", clean, "elements", len(elements),
		"stores", len(ranked))

	for i, st := range ranked {
		s.logger.DebugContext(ctx, "store", "rank", i+1, "name", st.Name, "distance", st.Distance,
			"category", st.Category, "address", st.Address)
	}

	result := &Result{
		Stores: ranked,
		Location: Location{
			Name:        place.DisplayName,
			Coordinates: place.Point,
		},
		SearchParams: Params{
			Radius: radius,
			Total:  len(ranked),
		},
	}

	if len(ranked) == 0 {
		s.logger.WarnContext(ctx, "no medical stores found", "location", clean, "radius", radius)

		result.Stores = []stores.Store{}
		result.Message = noResults(clean, radius)
	}

	return result, nil
}

func noResults(location string, radius float64) *Message {
	return &Message{
		Type: MessageNoResults,
		Text: fmt.Sprintf("No medical stores found in our database for %skm around %s. "+
			"This area might not be fully mapped yet.", strconv.FormatFloat(radius, 'f', -1, 64), location),
		Suggestions: slices.Clone(noResultsSuggestions),
	}
}

func asAppError(err error) *apperr.Error {
	if appErr, ok := apperr.As(err); ok {
		return appErr
	}

	return apperr.Wrap(apperr.KindInternal, "Failed to process store search request", err)
}

// LocatedError is a search failure that happened after geocoding, so the
// search origin is known.
type LocatedError struct {
	Origin spatial.Point
	Err    error
}

func (e *LocatedError) Error() string {
	return e.Err.Error()
}

func (e *LocatedError) Unwrap() error {
	return e.Err
}

// OriginOf returns the resolved origin of a failed search, if geocoding
// succeeded before the failure.
func OriginOf(err error) (spatial.Point, bool) {
	var located *LocatedError
	if errors.As(err, &located) {
		return located.Origin, true
	}

	return spatial.Point{}, false
}
