// Copyright 2025 The MediQuery Authors
// SPDX-License-Identifier: Apache-2.0

package overpass

import "github.com/jcodagnone/mediquery/spatial"

// Element represents an element returned from the Overpass API.
// Nodes carry their own coordinates, ways and relations a center.
type Element struct {
	ID     int64             `json:"id"`
	Type   string            `json:"type"`
	Lat    *float64          `json:"lat,omitempty"`
	Lon    *float64          `json:"lon,omitempty"`
	Center *Center           `json:"center,omitempty"`
	Tags   map[string]string `json:"tags,omitempty"`
}

// Center is the computed centroid of a way or relation.
type Center struct {
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
}

// Coordinate returns the element's own position, falling back to its center.
func (e Element) Coordinate() (spatial.Point, bool) {
	if e.Lat != nil && e.Lon != nil {
		return spatial.Point{Lat: *e.Lat, Lon: *e.Lon}, true
	}

	if e.Center != nil && e.Center.Lat != nil && e.Center.Lon != nil {
		return spatial.Point{Lat: *e.Center.Lat, Lon: *e.Center.Lon}, true
	}

	return spatial.Point{}, false
}

// Tag returns the value for key, or "" when absent.
func (e Element) Tag(key string) string {
	return e.Tags[key]
}

// response is the envelope of an interpreter answer. A nil Elements means the
// field was missing.
type response struct {
	Elements *[]Element `json:"elements"`
	Remark   string     `json:"remark,omitempty"`
}
