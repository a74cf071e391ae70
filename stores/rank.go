// Copyright 2025 The MediQuery Authors
// SPDX-License-Identifier: Apache-2.0

package stores

import (
	"cmp"
	"slices"
)

// MaxResults caps the number of stores in one response.
const MaxResults = 1000

// Rank sorts stores by ascending distance, keeping the input order for ties,
// and truncates to MaxResults. The input slice is not modified.
func Rank(stores []Store) []Store {
	ranked := slices.Clone(stores)
	slices.SortStableFunc(ranked, func(a, b Store) int {
		return cmp.Compare(a.Distance, b.Distance)
	})

	if len(ranked) > MaxResults {
		ranked = ranked[:MaxResults]
	}

	return ranked
}
