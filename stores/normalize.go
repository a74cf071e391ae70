// Copyright 2025 The MediQuery Authors
// SPDX-License-Identifier: Apache-2.0

package stores

import (
	"math"
	"strings"

	"github.com/jcodagnone/mediquery/overpass"
	"github.com/jcodagnone/mediquery/spatial"
	"github.com/jcodagnone/mediquery/utils/textutils"
)

// Normalize builds a Store from a raw element. It reports false when the
// element has no usable coordinate or lies farther than radiusKm from origin.
func Normalize(el overpass.Element, origin spatial.Point, radiusKm float64) (Store, bool) {
	point, ok := el.Coordinate()
	if !ok || !point.Valid() {
		return Store{}, false
	}

	distance := origin.DistanceKm(point)
	if distance > radiusKm {
		return Store{}, false
	}

	return Store{
		ID:           el.ID,
		Name:         storeName(el.Tags),
		Phone:        firstTag(el.Tags, phoneTags, DefaultPhone),
		Address:      address(el.Tags),
		OpeningHours: firstTag(el.Tags, []string{"opening_hours"}, DefaultOpeningHours),
		Website:      website(el.Tags),
		Type:         firstTag(el.Tags, typeTags, DefaultType),
		Lat:          point.Lat,
		Lon:          point.Lon,
		Coordinates:  point,
		Distance:     roundDistance(distance),
		Category:     category(el.Tags),
	}, true
}

func firstTag(tags map[string]string, keys []string, fallback string) string {
	for _, k := range keys {
		if v := tags[k]; v != "" {
			return v
		}
	}

	return fallback
}

func storeName(tags map[string]string) string {
	if name := firstTag(tags, nameTags, ""); name != "" {
		return name
	}

	for _, rule := range nameKeywords {
		for _, v := range tags {
			if textutils.ContainsFolded(v, rule.Keyword) {
				return rule.Name
			}
		}
	}

	return DefaultName
}

func address(tags map[string]string) string {
	if full := tags["addr:full"]; full != "" {
		return full
	}

	parts := make([]string, 0, len(addressTags))

	for _, k := range addressTags {
		if v := tags[k]; v != "" {
			parts = append(parts, v)
		}
	}

	if len(parts) == 0 {
		return DefaultAddress
	}

	return strings.Join(parts, ", ")
}

func website(tags map[string]string) *string {
	if w := firstTag(tags, websiteTags, ""); w != "" {
		return &w
	}

	return nil
}

func category(tags map[string]string) string {
	for _, rule := range categoryRules {
		if tags[rule.Key] == rule.Value {
			return rule.Category
		}
	}

	return DefaultCategory
}

func roundDistance(km float64) float64 {
	return math.Round(km*100) / 100
}
