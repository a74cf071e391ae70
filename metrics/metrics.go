// Copyright 2025 The MediQuery Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics exposes the Prometheus collectors of the store finder.
//
// A nil *Metrics is valid and records nothing, so components can be built
// without a registry in tests and in the CLI.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "mediquery"

// Outcome labels shared by the collectors. Failures are labeled with the
// apperr kind instead.
const (
	// OutcomeOK a call that produced data.
	OutcomeOK = "ok"
	// OutcomeEmpty a call that succeeded without data.
	OutcomeEmpty = "empty"
)

// Metrics groups the collectors updated along a search pipeline.
type Metrics struct {
	searches       *prometheus.CounterVec
	searchDuration prometheus.Histogram
	geocodes       *prometheus.CounterVec
	mirrorAttempts *prometheus.CounterVec
	storesReturned prometheus.Histogram
	admissions     *prometheus.CounterVec
}

// New creates the collectors and registers them in reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Store searches by outcome.",
		}, []string{"outcome"}),
		searchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Wall time of a complete store search.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80, 160},
		}),
		geocodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Geocoding calls by provider and outcome.",
		}, []string{"provider", "outcome"}),
		mirrorAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mirror_attempts_total",
			Help:      "Overpass mirror attempts by mirror and outcome.",
		}, []string{"mirror", "outcome"}),
		storesReturned: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stores_returned",
			Help:      "Number of stores returned per successful search.",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250, 1000},
		}),
		admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admission_decisions_total",
			Help:      "Rate limiter decisions.",
		}, []string{"decision"}),
	}

	reg.MustRegister(
		m.searches,
		m.searchDuration,
		m.geocodes,
		m.mirrorAttempts,
		m.storesReturned,
		m.admissions,
	)

	return m
}

// ObserveSearch records the outcome of a search: OutcomeOK, OutcomeEmpty or an
// error kind. Successful searches, empty ones included, feed the stores histogram.
func (m *Metrics) ObserveSearch(outcome string, stores int, elapsed time.Duration) {
	if m == nil {
		return
	}

	m.searches.WithLabelValues(outcome).Inc()
	m.searchDuration.Observe(elapsed.Seconds())

	if outcome == OutcomeOK || outcome == OutcomeEmpty {
		m.storesReturned.Observe(float64(stores))
	}
}

// ObserveGeocode records one geocoding call: OutcomeOK or an error kind.
func (m *Metrics) ObserveGeocode(provider, outcome string) {
	if m == nil {
		return
	}

	m.geocodes.WithLabelValues(provider, outcome).Inc()
}

// ObserveMirror records one mirror attempt: OutcomeOK, OutcomeEmpty or an error kind.
func (m *Metrics) ObserveMirror(mirror, outcome string) {
	if m == nil {
		return
	}

	m.mirrorAttempts.WithLabelValues(mirror, outcome).Inc()
}

// ObserveAdmission records a decision of the admission gate.
func (m *Metrics) ObserveAdmission(allowed bool) {
	if m == nil {
		return
	}

	decision := "rejected"
	if allowed {
		decision = "allowed"
	}

	m.admissions.WithLabelValues(decision).Inc()
}
