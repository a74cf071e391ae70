// Copyright 2025 The MediQuery Authors
// SPDX-License-Identifier: Apache-2.0

// Package overpass queries Overpass API mirrors for medical facilities.
package overpass

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jcodagnone/mediquery/apperr"
	"github.com/jcodagnone/mediquery/metrics"
	"github.com/jcodagnone/mediquery/spatial"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultEndpoints are the public mirrors, in priority order.
var DefaultEndpoints = []string{
	"https://overpass.kumi.systems/api/interpreter",
	"https://overpass-api.de/api/interpreter",
	"https://overpass.openstreetmap.fr/api/interpreter",
	"https://overpass.openstreetmap.ru/api/interpreter",
	"https://maps.mail.ru/osm/tools/overpass/api/interpreter",
}

// DefaultTimeout bounds the call to a single mirror.
const DefaultTimeout = 35 * time.Second

const maxResponseBytes = 64 << 20

const noStoresMessage = "No medical stores found in OpenStreetMap data for this area. This might be because:\n" +
	"• Local pharmacies are not yet mapped in detail\n" +
	"• Try searching for a nearby major landmark or area\n" +
	"• Consider increasing the search radius"

var tracer = otel.Tracer("github.com/jcodagnone/mediquery/overpass")

var errEmptyResponse = errors.New("empty response from server")

// Client runs a query against the mirrors, one at a time, until one of them
// returns elements.
type Client struct {
	endpoints  []string
	httpClient *http.Client
	timeout    time.Duration
	userAgent  string
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// Options configures a Client. Zero values pick the defaults.
type Options struct {
	Endpoints  []string
	HTTPClient *http.Client
	Timeout    time.Duration
	UserAgent  string
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
}

// NewClient creates a Client.
func NewClient(options Options) *Client {
	c := &Client{
		endpoints:  options.Endpoints,
		httpClient: options.HTTPClient,
		timeout:    options.Timeout,
		userAgent:  options.UserAgent,
		logger:     options.Logger,
		metrics:    options.Metrics,
	}

	if len(c.endpoints) == 0 {
		c.endpoints = DefaultEndpoints
	}

	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}

	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}

	if c.logger == nil {
		c.logger = slog.Default()
	}

	return c
}

// Endpoints returns the mirrors in the order they are tried.
func (c *Client) Endpoints() []string {
	return c.endpoints
}

// FetchCandidates returns the raw elements around origin.
//
// Mirrors are tried in order. A failing or empty mirror moves on to the next
// one; the first mirror that answers with elements ends the search. When every
// mirror answered empty the result is empty and the error nil. When no
// elements were collected and some mirror failed, the last failure decides
// the returned *apperr.Error.
func (c *Client) FetchCandidates(ctx context.Context, origin spatial.Point, radiusKm float64) ([]Element, error) {
	ctx, span := tracer.Start(ctx, "overpass.fetch_candidates")
	defer span.End()

	query := BuildQuery(origin, radiusKm)

	var (
		collected []Element
		lastErr   error
	)

	for i, endpoint := range c.endpoints {
		if err := ctx.Err(); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "Search was canceled", err)
		}

		mirror := mirrorName(endpoint)
		c.logger.InfoContext(ctx, "querying mirror", "mirror", mirror, "attempt", i+1)

		start := time.Now()

		elements, err := c.fetch(ctx, endpoint, query)
		if err != nil {
			c.logger.WarnContext(ctx, "mirror failed", "mirror", mirror, "error", err,
				"duration", time.Since(start))
			c.metrics.ObserveMirror(mirror, apperr.Classify(err).String())

			lastErr = err

			continue
		}

		if len(elements) == 0 {
			c.logger.WarnContext(ctx, "mirror returned no elements", "mirror", mirror,
				"duration", time.Since(start))
			c.metrics.ObserveMirror(mirror, metrics.OutcomeEmpty)

			continue
		}

		c.logger.InfoContext(ctx, "mirror returned elements", "mirror", mirror, "elements", len(elements),
			"duration", time.Since(start))
		c.metrics.ObserveMirror(mirror, metrics.OutcomeOK)

		collected = append(collected, elements...)

		break
	}

	span.SetAttributes(attribute.Int("overpass.elements", len(collected)))

	if len(collected) > 0 || lastErr == nil {
		return collected, nil
	}

	err := terminalError(lastErr)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Kind.String())

	return nil, err
}

// fetch posts the query to one mirror under its own timeout.
func (c *Client) fetch(ctx context.Context, endpoint, query string) ([]Element, error) {
	ctx, span := tracer.Start(ctx, "overpass.mirror", trace.WithAttributes(
		attribute.String("overpass.mirror", mirrorName(endpoint)),
		attribute.String("overpass.endpoint", endpoint),
	))
	defer span.End()

	elements, err := c.doFetch(ctx, endpoint, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, apperr.Classify(err).String())
	}

	return elements, err
}

func (c *Client) doFetch(ctx context.Context, endpoint, query string) ([]Element, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(query))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("Accept", "application/json")

	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("posting query: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errEmptyResponse
	}

	var r response
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if r.Elements == nil {
		return nil, errors.New("response has no elements array")
	}

	if r.Remark != "" {
		c.logger.WarnContext(ctx, "mirror remark", "mirror", mirrorName(endpoint), "remark", r.Remark)
	}

	return *r.Elements, nil
}

// terminalError maps the last mirror failure once every mirror was tried.
func terminalError(lastErr error) *apperr.Error {
	switch apperr.Classify(lastErr) {
	case apperr.KindRequestTimeout:
		return apperr.Wrap(apperr.KindRequestTimeout,
			"All map servers are responding slowly. Please try again in a moment.", lastErr)
	case apperr.KindServiceUnavailable:
		return apperr.Wrap(apperr.KindServiceUnavailable,
			"Unable to connect to map servers. Please check your internet connection.", lastErr)
	default:
		return apperr.Wrap(apperr.KindNotFound, noStoresMessage, lastErr)
	}
}

func mirrorName(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return endpoint
	}

	return u.Host
}
