// Copyright 2025 The MediQuery Authors
// SPDX-License-Identifier: Apache-2.0

// Package stores turns raw map elements into ranked store records.
package stores

import "github.com/jcodagnone/mediquery/spatial"

// Store is a normalized medical facility. The JSON layout is the one the
// web client consumes.
type Store struct {
	ID           int64         `json:"id"`
	Name         string        `json:"name"`
	Phone        string        `json:"phone"`
	Address      string        `json:"address"`
	OpeningHours string        `json:"opening_hours"`
	Website      *string       `json:"website"`
	Type         string        `json:"type"`
	Lat          float64       `json:"lat"`
	Lon          float64       `json:"lon"`
	Coordinates  spatial.Point `json:"coordinates"`
	Distance     float64       `json:"distance"` // km, two decimals
	Category     string        `json:"category"`
}
