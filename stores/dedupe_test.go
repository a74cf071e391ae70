// Copyright 2025 The MediQuery Authors
// SPDX-License-Identifier: Apache-2.0

package stores

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jcodagnone/mediquery/spatial"
	"github.com/stretchr/testify/assert"
)

func store(id int64, name string, lat, lon, distance float64) Store {
	p := spatial.Point{Lat: lat, Lon: lon}

	return Store{ID: id, Name: name, Lat: lat, Lon: lon, Coordinates: p, Distance: distance}
}

func TestDedupe(t *testing.T) {
	in := []Store{
		store(1, "Apollo", 28.6320001, 77.2170001, 0.5),
		store(2, "Apollo", 28.6320004, 77.2170004, 0.5), // same at six decimals
		store(3, "MedPlus", 28.6320001, 77.2170001, 0.5), // same place, other name
		store(4, "Apollo", 28.6330000, 77.2170000, 0.6),
		store(5, "apollo", 28.6320001, 77.2170001, 0.5), // names compare exactly
	}

	got := Dedupe(in)

	ids := make([]int64, 0, len(got))
	for _, s := range got {
		ids = append(ids, s.ID)
	}

	if diff := cmp.Diff([]int64{1, 3, 4, 5}, ids); diff != "" {
		t.Errorf("Dedupe() ids mismatch (-want +got):\n%s", diff)
	}
}

func TestDedupeIdempotent(t *testing.T) {
	in := []Store{
		store(1, "A", 1, 1, 0),
		store(2, "A", 1, 1, 0),
		store(3, "B", 2, 2, 0),
	}

	once := Dedupe(in)
	assert.Equal(t, once, Dedupe(once))
}

func TestDedupeEmpty(t *testing.T) {
	assert.Empty(t, Dedupe(nil))
}
