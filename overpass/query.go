// Copyright 2025 The MediQuery Authors
// SPDX-License-Identifier: Apache-2.0

package overpass

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jcodagnone/mediquery/spatial"
)

// Predicate is one tag filter of the union query.
type Predicate struct {
	ElementType string // node, way or relation
	Key         string
	Op          string // "=" exact match, "~" regular expression
	Value       string
}

func (p Predicate) String() string {
	return fmt.Sprintf(`%s["%s"%s"%s"]`, p.ElementType, p.Key, p.Op, p.Value)
}

// Predicates is the ordered list of filters that select medical facilities.
var Predicates = []Predicate{
	{"node", "amenity", "=", "pharmacy"},
	{"node", "healthcare", "=", "pharmacy"},
	{"node", "shop", "=", "pharmacy"},
	{"node", "shop", "=", "medical"},
	{"node", "shop", "=", "chemist"},
	{"node", "amenity", "=", "clinic"},
	{"node", "healthcare", "=", "clinic"},
	{"node", "name", "~", "medical"},
	{"node", "name", "~", "pharmacy"},
	{"node", "name", "~", "chemist"},
	{"node", "name", "~", "medicine"},
	{"node", "name", "~", "drug"},
	{"way", "amenity", "=", "pharmacy"},
	{"way", "healthcare", "=", "pharmacy"},
	{"way", "shop", "=", "pharmacy"},
	{"way", "shop", "=", "medical"},
	{"way", "amenity", "=", "clinic"},
	{"relation", "amenity", "=", "pharmacy"},
	{"relation", "healthcare", "=", "pharmacy"},
}

// ServerTimeoutSeconds is the [timeout:N] setting sent to the mirrors.
const ServerTimeoutSeconds = 30

// RadiusMeters converts the search radius to the unit used by around filters.
func RadiusMeters(radiusKm float64) float64 {
	return radiusKm * 1000
}

// BuildQuery renders the union query for every predicate around origin.
func BuildQuery(origin spatial.Point, radiusKm float64) string {
	around := fmt.Sprintf("(around:%s,%s,%s)",
		formatFloat(RadiusMeters(radiusKm)), formatFloat(origin.Lat), formatFloat(origin.Lon))

	var sb strings.Builder

	fmt.Fprintf(&sb, "[out:json][timeout:%d];\n(\n", ServerTimeoutSeconds)

	for _, p := range Predicates {
		sb.WriteString("  ")
		sb.WriteString(p.String())
		sb.WriteString(around)
		sb.WriteString(";\n")
	}

	sb.WriteString(");\nout center tags;\n")

	return sb.String()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
