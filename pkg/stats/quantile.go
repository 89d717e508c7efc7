// Copyright 2025 probebench project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package stats

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/stat/distuv"
)

// Sorted returns a sorted copy of data.
// Floats are only partially ordered, cmp.Compare provides the total order (NaN first).
func Sorted(data []float64) []float64 {
	res := slices.Clone(data)
	slices.SortFunc(res, cmp.Compare[float64])
	return res
}

// Percentile returns the pct percentile (0..100) of sorted samples using linear
// interpolation between the order statistics around rank pct/100*(n-1).
func Percentile(sorted []float64, pct float64) float64 {
	if len(sorted) == 0 {
		panic("percentile of an empty sample")
	}
	if !(pct >= 0 && pct <= 100) {
		panic(fmt.Sprintf("percentile %v is out of [0, 100]", pct))
	}
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	if pct == 100 {
		return sorted[n-1]
	}
	rank := pct / 100 * float64(n-1)
	lrank := math.Floor(rank)
	d := rank - lrank
	i := int(lrank)
	lo, hi := sorted[i], sorted[i+1]
	return lo + (hi-lo)*d
}

func Median(sorted []float64) float64 {
	return Percentile(sorted, 50)
}

// Quartiles returns the 25th, 50th and 75th percentiles.
func Quartiles(sorted []float64) (q1, median, q3 float64) {
	return Percentile(sorted, 25), Percentile(sorted, 50), Percentile(sorted, 75)
}

// MAD is the median absolute deviation around median.
func MAD(data []float64, median float64) float64 {
	dev := make([]float64, len(data))
	for i, x := range data {
		dev[i] = math.Abs(x - median)
	}
	return Median(Sorted(dev))
}

// HarrellDavis estimates quantile q (0 < q < 1) of sorted samples as the
// Beta(q(n+1), (1-q)(n+1)) weighted sum of all order statistics.
func HarrellDavis(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		panic("quantile of an empty sample")
	}
	if !(q > 0 && q < 1) {
		panic(fmt.Sprintf("quantile %v is out of (0, 1)", q))
	}
	if sorted[0] == sorted[len(sorted)-1] {
		return sorted[0]
	}
	n := float64(len(sorted))
	beta := distuv.Beta{
		Alpha: (n + 1) * q,
		Beta:  (n + 1) * (1 - q),
	}
	res := 0.0
	prev := 0.0
	for i, x := range sorted {
		cur := beta.CDF(float64(i+1) / n)
		res += (cur - prev) * x
		prev = cur
	}
	return res
}
