// Copyright 2025 The MediQuery Authors
// SPDX-License-Identifier: Apache-2.0

package stores

// Fallback values for missing tags.
const (
	DefaultName         = "Medical Store"
	DefaultPhone        = "Not available"
	DefaultAddress      = "Address not available"
	DefaultOpeningHours = "Not available"
	DefaultType         = "medical"
	DefaultCategory     = "Medical Store"
)

// nameTags are tried in order; the first non-empty value is the name.
var nameTags = []string{"name", "brand", "name:en", "name:hi"}

// keywordRule names an unnamed element when any of its tag values contains
// Keyword.
type keywordRule struct {
	Keyword string
	Name    string
}

var nameKeywords = []keywordRule{
	{"pharmacy", "Pharmacy"},
	{"medical", "Medical Store"},
	{"chemist", "Chemist"},
	{"clinic", "Clinic"},
	{"hospital", "Hospital"},
	{"drug", "Drug Store"},
}

var phoneTags = []string{"phone", "contact:phone", "phone:mobile", "mobile"}

var addressTags = []string{"addr:housenumber", "addr:street", "addr:city", "addr:state"}

var websiteTags = []string{"website", "contact:website"}

var typeTags = []string{"amenity", "healthcare", "shop"}

// categoryRule assigns Category when tag Key equals Value.
type categoryRule struct {
	Key      string
	Value    string
	Category string
}

var categoryRules = []categoryRule{
	{"amenity", "pharmacy", "Pharmacy"},
	{"healthcare", "pharmacy", "Pharmacy"},
	{"shop", "medical", "Medical Store"},
	{"amenity", "clinic", "Clinic"},
}
