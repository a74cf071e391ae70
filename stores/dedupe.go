// Copyright 2025 The MediQuery Authors
// SPDX-License-Identifier: Apache-2.0

package stores

import "fmt"

// Dedupe drops stores that share name and position (to six decimals) with an
// earlier one. Order is preserved.
func Dedupe(stores []Store) []Store {
	seen := make(map[string]struct{}, len(stores))
	out := make([]Store, 0, len(stores))

	for _, s := range stores {
		key := dedupeKey(s)
		if _, ok := seen[key]; ok {
			continue
		}

		seen[key] = struct{}{}
		out = append(out, s)
	}

	return out
}

func dedupeKey(s Store) string {
	return fmt.Sprintf("%.6f-%.6f-%s", s.Coordinates.Lat, s.Coordinates.Lon, s.Name)
}
