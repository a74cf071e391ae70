// Copyright 2025 The MediQuery Authors
// SPDX-License-Identifier: Apache-2.0

// Package geocode resolves free-text place names into coordinates.
package geocode

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jcodagnone/mediquery/apperr"
	"github.com/jcodagnone/mediquery/spatial"
	"go.opentelemetry.io/otel"
)

const (
	// MinLocationLength is the shortest accepted location, in characters.
	MinLocationLength = 2
	// MaxLocationLength is the longest accepted location, in characters.
	MaxLocationLength = 100
	// DefaultTimeout bounds a single call to the provider.
	DefaultTimeout = 10 * time.Second
)

var tracer = otel.Tracer("github.com/jcodagnone/mediquery/geocode")

// Result represents a geocoding result from any provider.
type Result struct {
	Point       spatial.Point `json:"point"`
	DisplayName string        `json:"display_name"`
	Provider    string        `json:"provider"`
}

// Geocoder interface for different geocoding providers.
//
// Implementations make exactly one upstream call and return *apperr.Error
// for every failure.
type Geocoder interface {
	Name() string
	Geocode(ctx context.Context, location string) (*Result, error)
}

// CleanLocation trims the location and checks its length.
func CleanLocation(location string) (string, error) {
	clean := strings.TrimSpace(location)
	if clean == "" {
		return "", apperr.New(apperr.KindInvalidInput, "Location name is required and must be a valid string")
	}

	n := utf8.RuneCountInString(clean)
	if n < MinLocationLength {
		return "", apperr.New(apperr.KindInvalidInput, "Location must be at least 2 characters long")
	}

	if n > MaxLocationLength {
		return "", apperr.New(apperr.KindInvalidInput, "Location cannot exceed 100 characters")
	}

	return clean, nil
}

func notFound(location string) *apperr.Error {
	return apperr.New(apperr.KindNotFound,
		`Location "`+location+`" not found. Please check spelling or try a nearby city name or landmark.`)
}

// transportError classifies a failed call to the provider.
func transportError(err error) *apperr.Error {
	switch apperr.Classify(err) {
	case apperr.KindRequestTimeout:
		return apperr.Wrap(apperr.KindRequestTimeout,
			"Location search timed out. Please check your internet connection.", err)
	case apperr.KindServiceUnavailable:
		return apperr.Wrap(apperr.KindServiceUnavailable,
			"Unable to connect to location services. Please check your internet connection.", err)
	default:
		return apperr.Wrap(apperr.KindInternal, "Failed to process location. Please try again.", err)
	}
}
