// Copyright 2025 probebench project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package schedule randomizes execution order so that slow drifts in machine
// state (thermal, frequency, background load) do not correlate with benchmark order.
package schedule

import (
	"math/rand/v2"
	"slices"

	"github.com/energybench/probebench/pkg/stats"
)

// Shuffle returns a uniformly random permutation of items.
// The generator is seeded from a non-reproducible source on every call.
func Shuffle[T any](items []T) []T {
	return ShuffleWith(stats.NewRand(), items)
}

// ShuffleWith is Shuffle with a caller supplied generator. items is not modified.
func ShuffleWith[T any](r *rand.Rand, items []T) []T {
	res := slices.Clone(items)
	for i := len(res) - 1; i > 0; i-- {
		j := r.IntN(i + 1)
		res[i], res[j] = res[j], res[i]
	}
	return res
}
