// Copyright 2025 probebench project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// pb-stat reduces counter files collected by pb-run into statistics.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/energybench/probebench/pkg/log"
	"github.com/energybench/probebench/pkg/perfstat"
	"github.com/energybench/probebench/pkg/results"
	"github.com/energybench/probebench/pkg/stat"
	"github.com/energybench/probebench/pkg/stats"
	"github.com/energybench/probebench/pkg/tool"
)

var (
	flagVerbose = flag.Int("vv", 0, "verbosity")
	flagOut     = flag.String("out", "results", "output directory for statistics (reduce, merge)")
	flagAlpha   = flag.Float64("alpha", 0.05, "significance level for compare")
	flagEvent   = flag.String("event", "", "only compare this event")
)

func main() {
	defer tool.Init(flag.CommandLine, os.Args[1:])()
	args := flag.Args()
	if len(args) < 2 {
		usage()
	}
	logger := log.Stderr(*flagVerbose)
	metrics := stat.NewMetrics()
	var err error
	switch args[0] {
	case "reduce":
		if len(args) != 2 {
			usage()
		}
		err = reduce(args[1], *flagOut, logger, metrics)
	case "merge":
		err = merge(*flagOut, args[1:])
	case "compare":
		if len(args) != 3 {
			usage()
		}
		err = compare(os.Stdout, args[1], args[2], *flagEvent, *flagAlpha, logger)
	default:
		usage()
	}
	if err != nil {
		tool.Fail(err)
	}
	for _, ui := range metrics.Collect(stat.Simple) {
		logger.Logf(1, "%-16v %v", ui.Name+":", ui.Value)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage:\n")
	fmt.Fprintf(os.Stderr, "  pb-stat [-out dir] reduce data\n")
	fmt.Fprintf(os.Stderr, "  pb-stat [-out dir] merge results1 results2...\n")
	fmt.Fprintf(os.Stderr, "  pb-stat [-event name] [-alpha a] compare data1 data2\n")
	os.Exit(1)
}

func reduce(dataDir, outDir string, logger *log.Logger, metrics *stat.Metrics) error {
	w := results.NewWriter(outDir)
	reducer := &perfstat.Reducer{Logger: logger, Metrics: metrics}
	rep, err := reducer.ReduceDir(dataDir, w.Write)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	fmt.Printf("%v\n", rep)
	for _, f := range rep.Failures {
		fmt.Printf("  %v: %v\n", f.Path, f.Err)
	}
	return nil
}

func merge(outDir string, dirs []string) error {
	w := results.NewWriter(outDir)
	n, err := results.Merge(w, dirs...)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	fmt.Printf("merged %v statistics from %v directories into %v\n", n, len(dirs), outDir)
	return nil
}

type comparison struct {
	key      string
	event    string
	old, new stats.Summary
	pval     float64
}

// compare runs the U test on every event that both data directories recorded
// for the same benchmark.
func compare(w io.Writer, oldDir, newDir, event string, alpha float64, logger *log.Logger) error {
	cmps, err := collectComparisons(oldDir, newDir, event, logger)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "benchmark\tevent\told median\tnew median\tdelta\tp\t\n")
	for _, c := range cmps {
		delta := "~"
		if c.pval < alpha && c.old.Median != 0 {
			delta = fmt.Sprintf("%+.2f%%", (c.new.Median-c.old.Median)/c.old.Median*100)
		}
		fmt.Fprintf(tw, "%v\t%v\t%.6g\t%.6g\t%v\t%.3f\t\n",
			c.key, c.event, c.old.Median, c.new.Median, delta, c.pval)
	}
	return tw.Flush()
}

func collectComparisons(oldDir, newDir, event string, logger *log.Logger) ([]comparison, error) {
	reducer := &perfstat.Reducer{Logger: logger}
	oldSamples, _, err := reducer.Collect(oldDir)
	if err != nil {
		return nil, err
	}
	newSamples, _, err := reducer.Collect(newDir)
	if err != nil {
		return nil, err
	}
	key := func(s *perfstat.Samples) string {
		return s.Project + "/" + s.Group + "/" + s.ID
	}
	byKey := make(map[string]*perfstat.Samples)
	for _, s := range oldSamples {
		byKey[key(s)] = s
	}
	var res []comparison
	for _, s := range newSamples {
		prev := byKey[key(s)]
		if prev == nil {
			logger.Logf(1, "%v: missing in %v", key(s), oldDir)
			continue
		}
		for _, name := range s.EventNames() {
			if event != "" && name != event {
				continue
			}
			oldVals, newVals := prev.Events[name], s.Events[name]
			if len(oldVals) == 0 || len(newVals) == 0 {
				continue
			}
			oldSum, err := stats.Compute(oldVals)
			if err != nil {
				continue
			}
			newSum, err := stats.Compute(newVals)
			if err != nil {
				continue
			}
			pval, err := stats.UTest(oldVals, newVals)
			if err != nil {
				logger.Logf(1, "%v %v: %v", key(s), name, err)
				pval = 1
			}
			res = append(res, comparison{
				key:   key(s),
				event: name,
				old:   oldSum,
				new:   newSum,
				pval:  pval,
			})
		}
	}
	return res, nil
}
