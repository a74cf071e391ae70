// Copyright 2025 The MediQuery Authors
// SPDX-License-Identifier: Apache-2.0

// Package server exposes the store search over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jcodagnone/mediquery/audit"
	"github.com/jcodagnone/mediquery/metrics"
	"github.com/jcodagnone/mediquery/search"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/cors"
)

// ShutdownTimeout bounds the wait for in-flight requests on shutdown.
const ShutdownTimeout = 30 * time.Second

// EnvironmentProduction is the Options.Environment of a public deployment.
const EnvironmentProduction = "production"

// DefaultCORSOrigins are the web clients allowed in production.
var DefaultCORSOrigins = []string{
	"http://localhost:9002",
	"https://mediquery.vercel.app",
}

// Options configures the HTTP server.
type Options struct {
	Host            string
	Port            int
	Environment     string // "development" or "production"
	Version         string
	CORSOrigins     []string // production only; development accepts any origin
	TrustedProxies  []string
	RateLimitWindow time.Duration
	RateLimitMax    int
	OverpassURL     string // shown by the debug endpoint
}

// Production reports whether the server runs in production mode.
func (o Options) Production() bool {
	return o.Environment == EnvironmentProduction
}

// Searcher runs store searches.
type Searcher interface {
	Search(ctx context.Context, location string, radiusKm *float64) (*search.Result, error)
	ClampRadius(radiusKm *float64) float64
}

// SearchRecorder keeps the search log.
type SearchRecorder interface {
	Record(ctx context.Context, s audit.Search) error
}

// Dependencies are the collaborators of the server. Only Searcher is required.
type Dependencies struct {
	Searcher  Searcher
	SearchLog SearchRecorder
	Logger    *slog.Logger
	Gatherer  prometheus.Gatherer
	Metrics   *metrics.Metrics
}

// Server is the HTTP front end.
type Server struct {
	options   Options
	searcher  Searcher
	searchLog SearchRecorder
	limiter   *RateLimiter
	logger    *slog.Logger
	gatherer  prometheus.Gatherer
	metrics   *metrics.Metrics
	started   time.Time
	engine    *gin.Engine
}

// NewServer creates a Server and registers its routes.
func NewServer(options Options, deps Dependencies) (*Server, error) {
	if deps.Searcher == nil {
		return nil, errors.New("server needs a searcher")
	}

	if options.RateLimitWindow <= 0 {
		options.RateLimitWindow = DefaultRateLimitWindow
	}

	if len(options.CORSOrigins) == 0 {
		options.CORSOrigins = DefaultCORSOrigins
	}

	s := &Server{
		options:   options,
		searcher:  deps.Searcher,
		searchLog: deps.SearchLog,
		limiter:   NewRateLimiter(options.RateLimitMax, options.RateLimitWindow),
		logger:    deps.Logger,
		gatherer:  deps.Gatherer,
		metrics:   deps.Metrics,
		started:   time.Now(),
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}

	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}

	engine := gin.New()
	if err := engine.SetTrustedProxies(options.TrustedProxies); err != nil {
		return nil, fmt.Errorf("setting trusted proxies: %w", err)
	}

	engine.Use(gin.Logger(), gin.Recovery(), requestID(), securityHeaders(options.Production()))
	s.engine = engine
	s.routes()

	return s, nil
}

func (s *Server) routes() {
	s.engine.GET("/", s.banner)
	s.engine.GET("/health", s.health)
	s.engine.GET("/metrics", s.metricsHandler())

	api := s.engine.Group("/api", s.admission())
	api.POST("/medical-stores", s.findStores)
	api.GET("/debug/overpass/:lat/:lon", s.debugOverpass)
	api.GET("/debug/overpass/:lat/:lon/:radius", s.debugOverpass)

	s.engine.NoRoute(s.notFound)
}

// Handler returns the routes wrapped with the CORS policy.
func (s *Server) Handler() http.Handler {
	options := cors.Options{
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", requestIDHeader},
		ExposedHeaders:   []string{requestIDHeader, "Retry-After", "RateLimit-Limit", "RateLimit-Remaining", "RateLimit-Reset"},
		AllowCredentials: true,
	}

	if s.options.Production() {
		options.AllowedOrigins = s.options.CORSOrigins
	} else {
		// reflect any origin
		options.AllowOriginFunc = func(string) bool { return true }
	}

	return cors.New(options).Handler(s.engine)
}

// Run serves until ctx is canceled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.options.Host, strconv.Itoa(s.options.Port))

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log.Printf("🏥 MediQuery API listening on %s (%s)", addr, s.options.Environment)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return fmt.Errorf("listening on %s: %w", addr, err)
	case <-ctx.Done():
	}

	log.Println("🛑 Shutting down, waiting for in-flight searches...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}

	log.Println("✅ Server stopped")

	return nil
}
