// Copyright 2025 probebench project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package stats summarizes counter samples with order statistics, dispersion
// measures and two relative confidence interval widths (RCIW):
// bootstrap (normalized by the mean) and Harrell-Davis (normalized by the
// Harrell-Davis median). The two RCIWs are not comparable to each other.
package stats

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"

	"gonum.org/v1/gonum/stat"
)

const (
	ConfidenceLevel  = 0.99
	BootstrapSamples = 10000
)

var ErrEmpty = errors.New("no samples")

type Summary struct {
	Samples       int
	Min           float64
	Max           float64
	Mean          float64
	Median        float64
	Q1            float64
	Q3            float64
	MAD           float64
	RMAD          float64
	StdDev        float64
	Variance      float64
	BootstrapRCIW float64
	HDRCIW        float64
}

// Compute summarizes samples using a non-reproducible bootstrap.
func Compute(samples []float64) (Summary, error) {
	return ComputeWith(NewRand(), samples)
}

func ComputeWith(r *rand.Rand, samples []float64) (Summary, error) {
	if len(samples) == 0 {
		return Summary{}, ErrEmpty
	}
	for i, x := range samples {
		if math.IsNaN(x) {
			return Summary{}, fmt.Errorf("sample %v is NaN", i)
		}
	}
	sorted := Sorted(samples)
	s := Summary{
		Samples: len(sorted),
		Min:     sorted[0],
		Max:     sorted[len(sorted)-1],
	}
	s.Q1, s.Median, s.Q3 = Quartiles(sorted)
	s.Mean = stat.Mean(sorted, nil)
	if len(sorted) > 1 {
		s.StdDev = stat.StdDev(sorted, nil)
	}
	s.Variance = s.StdDev * s.StdDev
	s.MAD = MAD(sorted, s.Median)
	s.RMAD = ratio(s.MAD, s.Median)

	alpha := (1 - ConfidenceLevel) / 2
	boot := Sorted(Bootstrap(r, sorted, BootstrapSamples))
	s.BootstrapRCIW = ratio(Percentile(boot, (1-alpha)*100)-Percentile(boot, alpha*100), s.Mean)
	s.HDRCIW = ratio(HarrellDavis(sorted, 1-alpha)-HarrellDavis(sorted, alpha), HarrellDavis(sorted, 0.5))
	return s, nil
}

// ratio normalizes an interval width; a zero width is exactly zero
// even when the central estimate is zero.
func ratio(width, centre float64) float64 {
	if width == 0 {
		return 0
	}
	return width / centre
}

// Statistic is the persisted summary of one event of one benchmark.
type Statistic struct {
	Project string
	Group   string
	ID      string
	Event   string
	Summary
}

// Record returns the CSV columns in declaration order.
func (st *Statistic) Record() []string {
	f := func(v float64) string {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	s := &st.Summary
	return []string{
		st.Project, st.Group, st.ID, st.Event,
		strconv.Itoa(s.Samples),
		f(s.Min), f(s.Max), f(s.Mean), f(s.Median), f(s.Q1), f(s.Q3),
		f(s.MAD), f(s.RMAD), f(s.StdDev), f(s.Variance),
		f(s.BootstrapRCIW), f(s.HDRCIW),
	}
}

// ParseRecord is the inverse of Record.
func ParseRecord(rec []string) (*Statistic, error) {
	if len(rec) != 17 {
		return nil, fmt.Errorf("statistic record has %v fields, want 17", len(rec))
	}
	st := &Statistic{Project: rec[0], Group: rec[1], ID: rec[2], Event: rec[3]}
	n, err := strconv.Atoi(rec[4])
	if err != nil {
		return nil, fmt.Errorf("bad sample count %q: %w", rec[4], err)
	}
	st.Samples = n
	fields := []*float64{
		&st.Min, &st.Max, &st.Mean, &st.Median, &st.Q1, &st.Q3,
		&st.MAD, &st.RMAD, &st.StdDev, &st.Variance,
		&st.BootstrapRCIW, &st.HDRCIW,
	}
	for i, p := range fields {
		v, err := strconv.ParseFloat(rec[5+i], 64)
		if err != nil {
			return nil, fmt.Errorf("bad value %q in column %v: %w", rec[5+i], 5+i, err)
		}
		*p = v
	}
	return st, nil
}
