// Copyright 2025 probebench project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package experiment runs measurement passes: it builds all benchmark groups,
// instruments them, and runs every benchmark once per pass in random order.
package experiment

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"time"

	"github.com/energybench/probebench/pkg/bench"
	"github.com/energybench/probebench/pkg/benchconfig"
	"github.com/energybench/probebench/pkg/build"
	"github.com/energybench/probebench/pkg/disasm"
	"github.com/energybench/probebench/pkg/host"
	"github.com/energybench/probebench/pkg/log"
	"github.com/energybench/probebench/pkg/osutil"
	"github.com/energybench/probebench/pkg/probe"
	"github.com/energybench/probebench/pkg/runner"
	"github.com/energybench/probebench/pkg/stat"
	"github.com/energybench/probebench/pkg/symbolizer"
	"github.com/google/uuid"
)

// Deps are the external tools of an experiment.
type Deps struct {
	Builder      build.Builder
	Lister       symbolizer.Lister
	Disassembler disasm.Disassembler
	Tool         probe.Tool
	Executor     runner.Executor
}

type Experiment struct {
	cfg     *benchconfig.Config
	logger  *log.Logger
	metrics *stat.Metrics
	deps    Deps
	scanner *disasm.Scanner
	probes  *probe.Manager
	runner  *runner.Runner
	// Rand fixes the run order for tests, nil means a fresh random order every pass.
	Rand *rand.Rand
	// verify checks branch addresses found in address mode.
	verify func(bin string, addrs []string) ([]string, error)
}

// DefaultDeps returns the real tools configured in cfg.
func DefaultDeps(cfg *benchconfig.Config, logger *log.Logger) Deps {
	toolTimeout := benchconfig.Seconds(cfg.Timeouts.Tool)
	var lister symbolizer.Lister = &symbolizer.ELF{Pattern: cfg.Pattern}
	if cfg.Lister == benchconfig.ListerNM {
		lister = &symbolizer.NM{Bin: cfg.Tools.NM, Pattern: cfg.Pattern, Timeout: toolTimeout}
	}
	return Deps{
		Builder: &build.Cargo{
			Bin:     cfg.Tools.Cargo,
			Timeout: benchconfig.Seconds(cfg.Timeouts.Build),
		},
		Lister: &symbolizer.Cache{Lister: lister},
		Disassembler: &disasm.Objdump{
			Bin:     cfg.Tools.Objdump,
			Timeout: toolTimeout,
		},
		Tool: &probe.Perf{
			Bin:     cfg.Tools.Perf,
			Timeout: benchconfig.Seconds(cfg.Timeouts.Probe),
		},
		Executor: &runner.Exec{
			Timeout: benchconfig.Seconds(cfg.Timeouts.Run),
			Logger:  logger,
		},
	}
}

func New(cfg *benchconfig.Config, deps Deps, logger *log.Logger, metrics *stat.Metrics) *Experiment {
	if logger == nil {
		logger = log.Discard
	}
	if metrics == nil {
		metrics = stat.NewMetrics()
	}
	pipeline := &runner.Pipeline{
		Core:            cfg.Core,
		Nice:            cfg.Nice,
		Taskset:         cfg.Tools.Taskset,
		NiceBin:         cfg.Tools.Nice,
		Perf:            cfg.Tools.Perf,
		Events:          cfg.Events,
		Interval:        time.Duration(cfg.IntervalMs) * time.Millisecond,
		MeasurementTime: benchconfig.Seconds(cfg.MeasurementTime),
		WarmUpTime:      benchconfig.Seconds(cfg.WarmUpTime),
		SampleSize:      cfg.SampleSize,
		DataDir:         cfg.Data,
	}
	r := runner.New(pipeline, deps.Executor, logger, metrics)
	r.TempDir = cfg.Tmp
	return &Experiment{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		deps:    deps,
		scanner: new(disasm.Scanner),
		probes:  probe.NewManager(deps.Tool, logger, metrics),
		runner:  r,
		verify:  disasm.VerifyBranches,
	}
}

// SetShutdown makes the experiment stop before the next run once shutdown is closed.
func (e *Experiment) SetShutdown(shutdown <-chan struct{}) {
	e.runner.Shutdown = shutdown
}

func (e *Experiment) Metrics() *stat.Metrics {
	return e.metrics
}

// Preflight checks that the host can install probes and count events.
func (e *Experiment) Preflight() error {
	tools := e.cfg.Tools
	params := &host.Params{
		Core:  e.cfg.Core,
		Nice:  e.cfg.Nice,
		Tools: []string{tools.Cargo, tools.Perf, tools.Taskset, tools.Nice},
	}
	switch {
	case e.cfg.Mode == benchconfig.ModeAddress:
		params.Tools = append(params.Tools, tools.Objdump)
	case e.cfg.Lister == benchconfig.ListerNM:
		params.Tools = append(params.Tools, tools.NM)
	}
	features := host.Check(params)
	e.logger.Logf(1, "host features:\n%v", features)
	return features.Err()
}

// Run makes the configured number of passes over the projects.
// Failures of individual benchmarks are collected in the report,
// an error is returned only if the experiment could not be carried out.
func (e *Experiment) Run(projects []string) (*runner.Report, error) {
	if e.cfg.Preflight {
		if err := e.Preflight(); err != nil {
			return nil, err
		}
	}
	if err := e.saveMachineInfo(); err != nil {
		e.logger.Warnf("failed to save machine info: %v", err)
	}
	rep := new(runner.Report)
	for i := 0; i < e.cfg.Iterations && !stopped(e.runner.Shutdown); i++ {
		e.logger.Logf(0, "pass %v/%v", i+1, e.cfg.Iterations)
		pass, err := e.Iteration(projects)
		if pass != nil {
			rep.Merge(pass)
		}
		if err != nil {
			return rep, err
		}
	}
	if e.cfg.MetricsFile != "" {
		if err := e.metrics.WriteTextfile(e.cfg.MetricsFile); err != nil {
			return rep, fmt.Errorf("failed to write metrics: %w", err)
		}
	}
	return rep, nil
}

func stopped(shutdown <-chan struct{}) bool {
	select {
	case <-shutdown:
		return true
	default:
		return false
	}
}

// Iteration makes one pass: every benchmark of every project runs once
// (cfg.Repeat times in a row) in a random order. No probe outlives the pass.
func (e *Experiment) Iteration(projects []string) (*runner.Report, error) {
	id := uuid.NewString()
	e.logger.Logf(0, "pass %v over %v projects", id, len(projects))
	if e.cfg.Clean {
		e.clean(projects)
	}
	leases := probe.NewLeases(e.probes)
	defer leases.ReleaseAll()

	rep := new(runner.Report)
	var reqs []*runner.Request
	for _, name := range projects {
		p, err := bench.LoadProject(e.cfg.Meta, name)
		if err != nil {
			rep.Add(runner.Failure{
				Stage:  runner.StageBuild,
				Target: bench.Target{Project: name},
				Reason: err.Error(),
			})
			continue
		}
		reqs = append(reqs, e.prepareProject(p, leases, rep)...)
	}
	var queue *runner.Queue
	switch {
	case !e.cfg.Shuffle:
		queue = runner.NewOrderedQueue(reqs)
	case e.Rand != nil:
		queue = runner.NewQueueWith(e.Rand, reqs)
	default:
		queue = runner.NewQueue(reqs)
	}
	e.logger.Logf(0, "running %v benchmarks", queue.Len())
	rep.Merge(e.runner.Drain(queue, leases))
	if e.cfg.Archive {
		if err := e.archive(id, projects); err != nil {
			return rep, err
		}
	}
	return rep, nil
}

func (e *Experiment) clean(projects []string) {
	for _, name := range projects {
		e.logger.Logf(1, "cleaning %v", name)
		if err := e.deps.Builder.Clean(e.cfg.ProjectDir(name)); err != nil {
			e.logger.Warnf("failed to clean %v: %v", name, err)
		}
	}
}

// prepareProject builds all groups of the project and instruments them.
// A group that fails to build or has no probe locations is skipped.
// If any probe of the project fails to install, the whole project is skipped in this pass.
func (e *Experiment) prepareProject(p *bench.Project, leases *probe.Leases, rep *runner.Report) []*runner.Request {
	root := e.cfg.ProjectDir(p.Name)
	var reqs []*runner.Request
	var probes []*probe.Probe
	for _, bf := range p.BenchFiles {
		targets := bf.Targets()
		if len(targets) == 0 {
			continue
		}
		group := bench.Target{Project: p.Name, Group: bf.Name}
		e.logger.Logf(1, "building %v", group.String())
		exe, err := e.deps.Builder.Compile(filepath.Join(root, bf.Workdir()), bf.Name, bf.Features)
		if err != nil {
			e.metrics.BuildsFailed.Add(1)
			e.logger.Logf(0, "failed to build %v: %v", group.String(), err)
			f := runner.Failure{Stage: runner.StageBuild, Target: group, Reason: err.Error()}
			var berr *build.Error
			if errors.As(err, &berr) {
				f.Command = berr.Command
			}
			rep.Add(f)
			continue
		}
		e.metrics.BuildsOK.Add(1)
		pr, err := e.instrument(exe, p.Name, probe.Label(p.Name, bf.Name))
		if errors.Is(err, probe.ErrNoLocations) {
			// Nothing was installed for the group, the other groups are unaffected.
			e.logger.Logf(0, "%v: %v", group.String(), err)
			rep.Add(runner.Failure{Stage: runner.StageProbe, Target: group, Reason: err.Error()})
			continue
		}
		if err != nil {
			e.logger.Logf(0, "failed to instrument %v: %v", group.String(), err)
			rep.Add(runner.Failure{Stage: runner.StageProbe, Target: group, Reason: err.Error()})
			for _, installed := range probes {
				e.probes.Delete(installed.Pattern())
			}
			return nil
		}
		probes = append(probes, pr)
		for _, t := range targets {
			reqs = append(reqs, &runner.Request{
				Target: *t,
				Exe:    exe,
				Dir:    root,
				Repeat: e.cfg.Repeat,
				Probe:  pr.Name,
				Events: pr.Events,
			})
		}
	}
	for _, pr := range probes {
		refs := 0
		for _, req := range reqs {
			if req.Probe == pr.Name {
				refs++
			}
		}
		leases.Retain(pr, refs)
	}
	return reqs
}

// instrument finds the probe locations in exe and installs the probe.
func (e *Experiment) instrument(exe, project, label string) (*probe.Probe, error) {
	if e.cfg.Mode == benchconfig.ModeSymbol {
		funcs, err := e.deps.Lister.IterSymbols(exe)
		if err != nil {
			return nil, err
		}
		return e.probes.InstallSymbols(exe, project, label, funcs)
	}
	text, err := e.deps.Disassembler.Disassemble(exe)
	if err != nil {
		return nil, err
	}
	res := e.scanner.Scan(text)
	if res.Outcome == disasm.Malformed {
		return nil, fmt.Errorf("disassembly of %v contains no instructions", exe)
	}
	addrs := res.Addresses()
	if e.cfg.Verify && len(addrs) != 0 {
		verified, err := e.verify(exe, addrs)
		if err != nil {
			return nil, fmt.Errorf("failed to verify branches: %w", err)
		}
		if dropped := len(addrs) - len(verified); dropped != 0 {
			e.logger.Logf(0, "%v: dropped %v addresses that are not branches", exe, dropped)
		}
		addrs = verified
	}
	return e.probes.InstallAddresses(exe, project, label, addrs)
}

func (e *Experiment) saveMachineInfo() error {
	info, err := host.CollectMachineInfo()
	if err != nil {
		return err
	}
	return osutil.WriteFile(filepath.Join(e.cfg.Results, "machine_info.txt"), info)
}
