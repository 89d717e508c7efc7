// Copyright 2025 probebench project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package runner executes benchmark runs under perf stat, one at a time.
package runner

import (
	"fmt"
	"maps"
	"path/filepath"
	"strings"
	"time"

	"github.com/energybench/probebench/pkg/bench"
	"github.com/energybench/probebench/pkg/log"
	"github.com/energybench/probebench/pkg/osutil"
	"github.com/energybench/probebench/pkg/probe"
	"github.com/energybench/probebench/pkg/stat"
)

type Runner struct {
	pipeline *Pipeline
	executor Executor
	logger   *log.Logger
	metrics  *stat.Metrics
	// TempDir holds control fifos, "" means the system temp dir.
	TempDir string
	// Now is replaced in tests to get stable output names.
	Now func() time.Time
	// Shutdown stops draining before the next request once closed.
	Shutdown <-chan struct{}
	avgTime stat.AverageValue[time.Duration]
}

func New(pipeline *Pipeline, executor Executor, logger *log.Logger, metrics *stat.Metrics) *Runner {
	if logger == nil {
		logger = log.Discard
	}
	if metrics == nil {
		metrics = stat.NewMetrics()
	}
	return &Runner{
		pipeline: pipeline,
		executor: executor,
		logger:   logger,
		metrics:  metrics,
		Now:      time.Now,
	}
}

// Drain executes every request of the queue. A failed run is recorded and
// the queue continues; the probe lease of a request is released after its
// last repetition whatever the outcome. leases may be nil.
func (r *Runner) Drain(q *Queue, leases *probe.Leases) *Report {
	rep := new(Report)
	total := q.Len()
	for i := 1; ; i++ {
		if r.stopped() {
			r.logger.Logf(0, "shutting down, %v requests are not run", q.Len())
			break
		}
		req := q.Pop()
		if req == nil {
			break
		}
		r.logger.Logf(0, "[%v/%v] %v", i, total, req.Target.String())
		r.runRequest(req, rep)
		if leases != nil && req.Probe != "" {
			leases.Release(req.Probe)
		}
	}
	if r.avgTime.Count() != 0 {
		r.logger.Logf(0, "%v runs, average run time %v", r.avgTime.Count(),
			r.avgTime.Value().Round(time.Millisecond))
	}
	return rep
}

func (r *Runner) stopped() bool {
	select {
	case <-r.Shutdown:
		return true
	default:
		return false
	}
}

func (r *Runner) runRequest(req *Request, rep *Report) {
	repeat := max(req.Repeat, 1)
	for i := 0; i < repeat; i++ {
		rep.Runs++
		cmd, ctl, err := r.assemble(req)
		if err != nil {
			rep.Add(Failure{
				Stage:  StageRun,
				Target: req.Target,
				Reason: err.Error(),
			})
			r.metrics.RunsFailed.Add(1)
			continue
		}
		outcome := r.executor.Execute(cmd)
		if ctl != nil {
			if err := ctl.Close(); err != nil {
				r.logger.Warnf("failed to remove %v: %v", ctl.Dir, err)
			}
		}
		r.metrics.RunTime.Add(int(outcome.Duration.Milliseconds()))
		r.avgTime.Save(outcome.Duration)
		switch outcome.Status {
		case Succeeded:
			rep.Succeeded++
			r.metrics.RunsOK.Add(1)
			continue
		case TimedOut:
			r.metrics.RunsTimedout.Add(1)
		default:
			r.metrics.RunsFailed.Add(1)
		}
		r.logger.Logf(0, "%v %v", req.Target.String(), outcome.Reason())
		rep.Add(Failure{
			Stage:   StageRun,
			Target:  req.Target,
			Command: cmd.String(),
			Reason:  outcome.Reason(),
		})
	}
}

func (r *Runner) assemble(req *Request) (*Command, *Control, error) {
	output := r.pipeline.Output(req.Target, r.Now())
	if err := osutil.MkdirAll(filepath.Dir(output)); err != nil {
		return nil, nil, err
	}
	ctl, err := NewControl(r.TempDir)
	if err != nil {
		return nil, nil, err
	}
	env := maps.Clone(req.Env)
	if env == nil {
		env = make(map[string]string)
	}
	maps.Copy(env, ctl.Env())
	cmd := &Command{
		Args:   r.pipeline.Args(req.Exe, req.Target, output, ctl, req.Events...),
		Dir:    req.Dir,
		Env:    env,
		Output: output,
	}
	return cmd, ctl, nil
}

type Stage string

const (
	StageBuild Stage = "build"
	StageProbe Stage = "probe"
	StageRun   Stage = "run"
)

type Failure struct {
	Stage  Stage
	Target bench.Target
	// Command is the failed command as a shell line, if there was one.
	Command string
	Reason  string
}

// Report aggregates failures of an experiment. It is advisory: failures of
// individual benchmarks never abort the remaining work.
type Report struct {
	Runs      int
	Succeeded int
	Failures  []Failure
}

func (rep *Report) Add(f Failure) {
	rep.Failures = append(rep.Failures, f)
}

func (rep *Report) Merge(other *Report) {
	rep.Runs += other.Runs
	rep.Succeeded += other.Succeeded
	rep.Failures = append(rep.Failures, other.Failures...)
}

// Summary lists every failure once, with the command that reproduces it.
func (rep *Report) Summary() string {
	if len(rep.Failures) == 0 {
		return fmt.Sprintf("all %v runs succeeded\n", rep.Runs)
	}
	buf := new(strings.Builder)
	fmt.Fprintf(buf, "%v of %v runs succeeded, %v failures:\n", rep.Succeeded, rep.Runs, len(rep.Failures))
	seen := make(map[string]bool)
	for _, f := range rep.Failures {
		line := fmt.Sprintf("%v %v: %v", f.Stage, f.Target.String(), f.Reason)
		key := line + "\x00" + f.Command
		if seen[key] {
			continue
		}
		seen[key] = true
		buf.WriteString(line + "\n")
		if f.Command != "" {
			fmt.Fprintf(buf, "\t%v\n", f.Command)
		}
	}
	return buf.String()
}
