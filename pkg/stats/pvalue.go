// Copyright 2021 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package stats

import "golang.org/x/perf/benchstat" // nolint:all

// UTest runs the Mann-Whitney U test on samples of the same event taken in two
// experiments and returns the p-value of the hypothesis that they come from
// the same distribution.
func UTest(old, new []float64) (pval float64, err error) {
	// MannWhitneyUTest lives in x/perf/benchstat/internal/stats,
	// so the data is wrapped in Metrics first.
	mOld := benchstat.Metrics{
		RValues: old,
	}
	mNew := benchstat.Metrics{
		RValues: new,
	}
	return benchstat.UTest(&mOld, &mNew)
}
