// Copyright 2025 The MediQuery Authors
// SPDX-License-Identifier: Apache-2.0

// Package audit keeps a log of the searches served, without their results,
// to report usage and the areas where the map has no medical stores.
package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jcodagnone/mediquery/spatial"
)

// CellResolution is the H3 resolution used to bucket search origins.
const CellResolution = 7

// Search is one served search.
type Search struct {
	ID         string
	SearchedAt time.Time
	Location   string
	RadiusKm   float64
	Origin     *spatial.Point // nil when geocoding failed
	StoreCount int
	ErrorKind  string // empty on success
	Duration   time.Duration
}

// Summary aggregates the searches since a point in time.
type Summary struct {
	Searches      int64
	Failures      int64
	EmptySearches int64
	AvgStores     float64
	AvgDuration   time.Duration
	ByErrorKind   map[string]int64
}

// Gap is an H3 cell where searches came back without stores.
type Gap struct {
	Cell          int64
	Center        spatial.Point
	EmptySearches int64
	LastLocation  string
	LastSearched  time.Time
}

// Repository handles persistence of the search log.
type Repository interface {
	// CreateSchema creates the searches table
	CreateSchema() error

	// Record stores a served search
	Record(ctx context.Context, s Search) error

	// Summary aggregates searches at or after since
	Summary(ctx context.Context, since time.Time) (*Summary, error)

	// CoverageGaps returns the cells with the most empty searches
	CoverageGaps(ctx context.Context, limit int) ([]Gap, error)
}

type sqlRepository struct {
	db *sql.DB
}

// NewRepository creates a new search log repository.
func NewRepository(db *sql.DB) Repository {
	return &sqlRepository{db: db}
}

func (r *sqlRepository) CreateSchema() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS searches (
			id VARCHAR PRIMARY KEY,
			searched_at TIMESTAMP NOT NULL,
			location VARCHAR NOT NULL,
			radius_km DOUBLE NOT NULL,
			lat DOUBLE,
			lon DOUBLE,
			h3_res7 BIGINT,
			store_count INTEGER NOT NULL,
			error_kind VARCHAR,
			duration_ms BIGINT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("creating searches table: %w", err)
	}

	return nil
}

func (r *sqlRepository) Record(ctx context.Context, s Search) error {
	if s.ID == "" {
		return errors.New("search id can't be empty")
	}

	// nil binds SQL NULL
	var lat, lon, cell, errorKind any

	if s.Origin != nil {
		c, err := s.Origin.Cell(CellResolution)
		if err != nil {
			return fmt.Errorf("computing h3 cell: %w", err)
		}

		lat, lon, cell = s.Origin.Lat, s.Origin.Lon, c
	}

	if s.ErrorKind != "" {
		errorKind = s.ErrorKind
	}

	searchedAt := s.SearchedAt
	if searchedAt.IsZero() {
		searchedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO searches (id, searched_at, location, radius_km, lat, lon, h3_res7, store_count, error_kind, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		s.ID,
		searchedAt.UTC(),
		s.Location,
		s.RadiusKm,
		lat,
		lon,
		cell,
		s.StoreCount,
		errorKind,
		s.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("inserting search %s: %w", s.ID, err)
	}

	return nil
}

func (r *sqlRepository) Summary(ctx context.Context, since time.Time) (*Summary, error) {
	summary := &Summary{ByErrorKind: map[string]int64{}}

	var avgStores, avgDuration sql.NullFloat64

	err := r.db.QueryRowContext(ctx, `
		SELECT
			count(*),
			count(*) FILTER (WHERE error_kind IS NOT NULL),
			count(*) FILTER (WHERE error_kind IS NULL AND store_count = 0),
			avg(store_count) FILTER (WHERE error_kind IS NULL),
			avg(duration_ms)
		FROM searches
		WHERE searched_at >= ?
	`, since.UTC()).Scan(
		&summary.Searches,
		&summary.Failures,
		&summary.EmptySearches,
		&avgStores,
		&avgDuration,
	)
	if err != nil {
		return nil, fmt.Errorf("summarizing searches: %w", err)
	}

	summary.AvgStores = avgStores.Float64
	summary.AvgDuration = time.Duration(avgDuration.Float64 * float64(time.Millisecond))

	rows, err := r.db.QueryContext(ctx, `
		SELECT error_kind, count(*)
		FROM searches
		WHERE searched_at >= ? AND error_kind IS NOT NULL
		GROUP BY error_kind
	`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("counting errors: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			kind  string
			count int64
		)

		if err := rows.Scan(&kind, &count); err != nil {
			return nil, fmt.Errorf("scanning error count: %w", err)
		}

		summary.ByErrorKind[kind] = count
	}

	return summary, rows.Err()
}

// CoverageGaps counts, per cell, the searches with a resolved origin that
// found no stores, whether the mirrors answered empty or failed. Searches
// that failed before geocoding have no cell and are not counted.
func (r *sqlRepository) CoverageGaps(ctx context.Context, limit int) ([]Gap, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT
			h3_res7,
			count(*) AS empty_searches,
			arg_max(location, searched_at),
			max(searched_at)
		FROM searches
		WHERE h3_res7 IS NOT NULL AND store_count = 0
		GROUP BY h3_res7
		ORDER BY empty_searches DESC, max(searched_at) DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying coverage gaps: %w", err)
	}
	defer rows.Close()

	var gaps []Gap

	for rows.Next() {
		var g Gap
		if err := rows.Scan(&g.Cell, &g.EmptySearches, &g.LastLocation, &g.LastSearched); err != nil {
			return nil, fmt.Errorf("scanning coverage gap: %w", err)
		}

		center, err := spatial.CellCenter(g.Cell)
		if err != nil {
			return nil, fmt.Errorf("cell %d center: %w", g.Cell, err)
		}

		g.Center = center
		gaps = append(gaps, g)
	}

	return gaps, rows.Err()
}
