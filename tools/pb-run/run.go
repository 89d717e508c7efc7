// Copyright 2025 probebench project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// pb-run builds the benchmarks of the configured projects, instruments them
// with probes and runs them under perf stat.
// Needs perf_event_paranoid <= 0, a writable tracefs and permission to lower nice.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/energybench/probebench/pkg/benchconfig"
	"github.com/energybench/probebench/pkg/experiment"
	"github.com/energybench/probebench/pkg/log"
	"github.com/energybench/probebench/pkg/osutil"
	"github.com/energybench/probebench/pkg/stat"
	"github.com/energybench/probebench/pkg/tool"
)

var (
	flagConfig     = flag.String("config", "", "experiment config file (.cfg/.json or .yaml)")
	flagVerbose    = flag.Int("vv", 0, "verbosity")
	flagIterations = flag.Int("iterations", 0, "number of passes (overrides config)")
	flagNoRMIT     = flag.Bool("no_rmit", false, "run benchmarks in a fixed order instead of a random one")
	flagPreflight  = flag.Bool("preflight", false, "only check that the host is ready and exit")
	flagTargets    tool.ListFlag
)

func main() {
	flag.Var(&flagTargets, "targets", "comma-separated projects to run (overrides config)")
	defer tool.Init(flag.CommandLine, os.Args[1:])()
	cfg, err := benchconfig.LoadFile(*flagConfig)
	if err != nil {
		tool.Fail(err)
	}
	if *flagIterations > 0 {
		cfg.Iterations = *flagIterations
	}
	if *flagNoRMIT {
		cfg.Shuffle = false
	}
	if len(flagTargets) != 0 {
		cfg.Targets = flagTargets
	}
	logger := log.Stderr(*flagVerbose)
	logger.EnableCaching(1000, 1<<20)
	exp := experiment.New(cfg, experiment.DefaultDeps(cfg, logger), logger, nil)
	if *flagPreflight {
		if err := exp.Preflight(); err != nil {
			tool.Fail(err)
		}
		fmt.Println("host is ready")
		return
	}
	projects, err := cfg.ProjectNames()
	if err != nil {
		if len(projects) == 0 {
			tool.Fail(err)
		}
		logger.Warnf("%v", err)
	}
	shutdown := make(chan struct{})
	osutil.HandleInterrupts(shutdown)
	exp.SetShutdown(shutdown)

	rep, err := exp.Run(projects)
	for _, ui := range exp.Metrics().Collect(stat.Console) {
		logger.Logf(0, "%-16v %v", ui.Name+":", ui.Value)
	}
	if rep != nil {
		fmt.Print(rep.Summary())
	}
	if err != nil {
		tool.Fail(err)
	}
}
