// Copyright 2025 The MediQuery Authors
// SPDX-License-Identifier: Apache-2.0

package search

import (
	"github.com/jcodagnone/mediquery/spatial"
	"github.com/jcodagnone/mediquery/stores"
)

// Result is the outcome of a successful search.
type Result struct {
	Stores       []stores.Store `json:"stores"`
	Location     Location       `json:"location"`
	SearchParams Params         `json:"searchParams"`
	Message      *Message       `json:"message,omitempty"`
}

// Location is the resolved search origin.
type Location struct {
	Name        string        `json:"name"`
	Coordinates spatial.Point `json:"coordinates"`
}

// Params echoes the effective search parameters.
type Params struct {
	Radius float64 `json:"radius"`
	Total  int     `json:"total"`
}

// Message explains an empty result.
type Message struct {
	Type        string   `json:"type"`
	Text        string   `json:"text"`
	Suggestions []string `json:"suggestions"`
}

// MessageNoResults is the Message.Type of an empty search.
const MessageNoResults = "no_results"

var noResultsSuggestions = []string{
	"Try searching for a nearby main market or landmark",
	"Increase search radius if possible",
	"Search for nearby towns or city centers",
}
