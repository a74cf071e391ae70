// Copyright 2025 The MediQuery Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"math"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jcodagnone/mediquery/apperr"
	"github.com/jcodagnone/mediquery/audit"
	"github.com/jcodagnone/mediquery/overpass"
	"github.com/jcodagnone/mediquery/search"
	"github.com/jcodagnone/mediquery/spatial"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxBodyBytes = 10 << 20

// timestampLayout matches JavaScript's Date.toISOString.
const timestampLayout = "2006-01-02T15:04:05.000Z"

func timestamp() string {
	return time.Now().UTC().Format(timestampLayout)
}

var availableEndpoints = []string{"/api/medical-stores", "/health"}

func (s *Server) findStores(ctx *gin.Context) {
	start := time.Now()

	q, errs := parseStoreRequest(http.MaxBytesReader(ctx.Writer, ctx.Request.Body, maxBodyBytes))
	if errs != nil {
		s.renderValidation(ctx, errs)

		return
	}

	// searches outlive a client that hangs up
	searchCtx := context.WithoutCancel(ctx.Request.Context())

	result, err := s.searcher.Search(searchCtx, q.Location, q.Radius)
	s.record(searchCtx, q, result, err, time.Since(start))

	if err != nil {
		s.renderError(ctx, err)

		return
	}

	s.logger.InfoContext(searchCtx, "stores found", "location", q.Location, "stores", len(result.Stores),
		"request_id", requestIDFrom(ctx), "duration", time.Since(start))

	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    result,
		"meta": gin.H{
			"timestamp": timestamp(),
			"requestId": requestIDFrom(ctx),
		},
	})
}

// record appends the search to the search log. Failures are only logged.
func (s *Server) record(ctx context.Context, q *storeQuery, result *search.Result, err error, elapsed time.Duration) {
	if s.searchLog == nil {
		return
	}

	entry := audit.Search{
		ID:         uuid.NewString(),
		SearchedAt: time.Now(),
		Location:   q.Location,
		Duration:   elapsed,
	}

	if err != nil {
		entry.RadiusKm = s.searcher.ClampRadius(q.Radius)
		entry.ErrorKind = apperr.KindOf(err).String()

		if origin, ok := search.OriginOf(err); ok {
			entry.Origin = &origin
		}
	} else {
		origin := result.Location.Coordinates
		entry.RadiusKm = result.SearchParams.Radius
		entry.Origin = &origin
		entry.StoreCount = len(result.Stores)
	}

	if err := s.searchLog.Record(ctx, entry); err != nil {
		s.logger.WarnContext(ctx, "recording search failed", "error", err)
	}
}

func (s *Server) banner(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"message":   "🏥 MediQuery API - Medical Store Finder",
		"status":    "healthy",
		"version":   s.options.Version,
		"timestamp": timestamp(),
		"endpoints": gin.H{
			"stores":  "/api/medical-stores",
			"health":  "/health",
			"metrics": "/metrics",
		},
	})
}

func (s *Server) health(ctx *gin.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	ctx.JSON(http.StatusOK, gin.H{
		"status": "OK",
		"uptime": time.Since(s.started).Seconds(),
		"memory": gin.H{
			"alloc":       m.Alloc,
			"total_alloc": m.TotalAlloc,
			"sys":         m.Sys,
			"heap_alloc":  m.HeapAlloc,
			"heap_inuse":  m.HeapInuse,
			"num_gc":      m.NumGC,
			"goroutines":  runtime.NumGoroutine(),
		},
		"timestamp": timestamp(),
	})
}

func (s *Server) metricsHandler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
}

func (s *Server) debugOverpass(ctx *gin.Context) {
	if s.options.Production() {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "Not found"})

		return
	}

	lat, errLat := strconv.ParseFloat(ctx.Param("lat"), 64)
	lon, errLon := strconv.ParseFloat(ctx.Param("lon"), 64)
	point := spatial.Point{Lat: lat, Lon: lon}

	if errLat != nil || errLon != nil || !point.Valid() {
		ctx.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid coordinates"})

		return
	}

	radius := float64(search.DefaultRadiusKm)

	if raw := ctx.Param("radius"); raw != "" {
		r, err := strconv.ParseFloat(raw, 64)
		if err != nil || r <= 0 || math.IsInf(r, 0) || math.IsNaN(r) {
			ctx.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid radius"})

			return
		}

		radius = r
	}

	ctx.JSON(http.StatusOK, gin.H{
		"query":         overpass.BuildQuery(point, radius),
		"coordinates":   point,
		"radius_km":     radius,
		"radius_meters": overpass.RadiusMeters(radius),
		"overpass_url":  s.options.OverpassURL,
	})
}

func (s *Server) notFound(ctx *gin.Context) {
	ctx.JSON(http.StatusNotFound, gin.H{
		"success":            false,
		"error":              "Route not found",
		"message":            "The requested endpoint " + ctx.Request.URL.RequestURI() + " does not exist",
		"availableEndpoints": availableEndpoints,
	})
}
