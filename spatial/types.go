// Copyright 2025 The MediQuery Authors
//
// SPDX-License-Identifier: Apache-2.0
package spatial

import (
	"fmt"
	"math"

	"github.com/uber/h3-go/v4"
)

const earthRadiusKm = 6371.0

// Point represents a geographical point with latitude and longitude.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// String returns a string representation of the Point.
func (p Point) String() string {
	return fmt.Sprintf("POINT(%f %f)", p.Lon, p.Lat)
}

// Valid reports whether both coordinates are finite and inside the WGS84 ranges.
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lon, 0) {
		return false
	}

	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// DistanceKm calculates the great-circle distance between two points in kilometers
// using the haversine formula.
func (p Point) DistanceKm(other Point) float64 {
	lat1 := p.Lat * math.Pi / 180
	lat2 := other.Lat * math.Pi / 180
	dLat := (other.Lat - p.Lat) * math.Pi / 180
	dLon := (other.Lon - p.Lon) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

// Cell returns the H3 cell containing the point at the given resolution.
func (p Point) Cell(resolution int) (int64, error) {
	cell, err := h3.LatLngToCell(h3.NewLatLng(p.Lat, p.Lon), resolution)
	if err != nil {
		return 0, fmt.Errorf("converting to h3 cell at res %d: %w", resolution, err)
	}

	return int64(cell), nil
}

// CellCenter returns the center of an H3 cell previously obtained with Cell.
func CellCenter(cell int64) (Point, error) {
	latLng, err := h3.Cell(cell).LatLng()
	if err != nil {
		return Point{}, fmt.Errorf("h3 cell %x center: %w", cell, err)
	}

	return Point{Lat: latLng.Lat, Lon: latLng.Lng}, nil
}
