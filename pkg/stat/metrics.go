// Copyright 2025 probebench project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package stat counts what happened during an experiment: builds, probe
// operations, runs and parsed files.
package stat

// Metrics is the fixed set of experiment counters.
type Metrics struct {
	*Set
	BuildsOK        *Val
	BuildsFailed    *Val
	ProbesInstalled *Val
	ProbesFailed    *Val
	ProbesDeleted   *Val
	DeletesFailed   *Val
	RunsOK          *Val
	RunsFailed      *Val
	RunsTimedout    *Val
	RunTime         *Val
	FilesParsed     *Val
	ParseFailures   *Val
	Uninstrumented  *Val
	Statistics      *Val
}

func NewMetrics() *Metrics {
	s := NewSet()
	return &Metrics{
		Set: s,
		BuildsOK: s.New("builds", "Benchmark groups compiled",
			Prometheus("probebench_builds_ok_total")),
		BuildsFailed: s.New("build failures", "Benchmark groups that failed to compile",
			Console, Prometheus("probebench_builds_failed_total")),
		ProbesInstalled: s.New("probes", "Tracepoints installed",
			Prometheus("probebench_probes_installed_total")),
		ProbesFailed: s.New("probe failures", "Tracepoint batches that failed to install",
			Console, Prometheus("probebench_probes_failed_total")),
		ProbesDeleted: s.New("probe deletes", "Tracepoints removed",
			Prometheus("probebench_probes_deleted_total")),
		DeletesFailed: s.New("delete failures", "Tracepoint removals that failed",
			Prometheus("probebench_probe_deletes_failed_total")),
		RunsOK: s.New("runs", "Benchmark runs that exited successfully",
			Console, Rate{}, Prometheus("probebench_runs_ok_total")),
		RunsFailed: s.New("run failures", "Benchmark runs that exited with an error",
			Console, Prometheus("probebench_runs_failed_total")),
		RunsTimedout: s.New("run timeouts", "Benchmark runs killed on timeout",
			Console, Prometheus("probebench_runs_timedout_total")),
		RunTime: s.New("run time", "Wall time of a benchmark run (ms)",
			Simple, Distribution{}, Prometheus("probebench_run_time_ms")),
		FilesParsed: s.New("parsed files", "Counter output files reduced",
			Prometheus("probebench_files_parsed_total")),
		ParseFailures: s.New("parse failures", "Counter output files that failed to parse",
			Console, Prometheus("probebench_parse_failures_total")),
		Uninstrumented: s.New("uninstrumented", "Counter output files without probe hits",
			Simple, Prometheus("probebench_uninstrumented_total")),
		Statistics: s.New("statistics", "Statistic records written",
			Prometheus("probebench_statistics_total")),
	}
}
