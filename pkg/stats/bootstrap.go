// Copyright 2025 probebench project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package stats

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
)

// Bootstrap draws n values from data uniformly with replacement.
func Bootstrap(r *rand.Rand, data []float64, n int) []float64 {
	res := make([]float64, n)
	for i := range res {
		res[i] = data[r.IntN(len(data))]
	}
	return res
}

// NewRand returns a generator seeded from a non-reproducible source.
func NewRand() *rand.Rand {
	var seed [32]byte
	if _, err := crand.Read(seed[:]); err != nil {
		// crypto/rand does not fail on supported platforms.
		panic(err)
	}
	return rand.New(rand.NewChaCha8(seed))
}

// NewSeededRand returns a deterministic generator, for tests.
func NewSeededRand(seed uint64) *rand.Rand {
	var s [32]byte
	binary.LittleEndian.PutUint64(s[:], seed)
	return rand.New(rand.NewChaCha8(s))
}
