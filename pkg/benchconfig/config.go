// Copyright 2015 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package benchconfig defines the experiment configuration.
package benchconfig

type Config struct {
	// Experiment name, used in logs.
	Name string `json:"name" yaml:"name"`
	// Directory with project checkouts, <projects>/<name> is the root of project name.
	Projects string `json:"projects" yaml:"projects"`
	// Directory with project metadata written by benchmark discovery: <meta>/<name>.json.
	Meta string `json:"meta" yaml:"meta"`
	// Target manifest with headerless name,repo_url,repo_tag rows.
	// Either manifest or targets must be set.
	Manifest string `json:"manifest,omitempty" yaml:"manifest,omitempty"`
	// Project names to measure, overrides the manifest.
	Targets []string `json:"targets,omitempty" yaml:"targets,omitempty"`
	// Counter output files are written to <data>/<project>/<group>/<id>_<micros>.txt.
	Data string `json:"data" yaml:"data"`
	// Statistics are written to <results>/<project>/<group>.csv.
	Results string `json:"results" yaml:"results"`
	// Directory for control channel fifos (system temp dir by default).
	Tmp string `json:"tmp,omitempty" yaml:"tmp,omitempty"`

	// CPU core that runs the benchmark and that perf counts on.
	Core int `json:"core" yaml:"core"`
	// Nice level of the benchmark process, -20..-1 (-19 by default).
	Nice int `json:"nice" yaml:"nice"`
	// Hardware and software events to count in addition to the probe events.
	Events []string `json:"events" yaml:"events"`
	// Counter print interval in milliseconds.
	IntervalMs int `json:"interval_ms" yaml:"interval_ms"`

	// Harness settings: seconds of measurement and warm up and number of samples.
	MeasurementTime int `json:"measurement_time" yaml:"measurement_time"`
	WarmUpTime      int `json:"warm_up_time" yaml:"warm_up_time"`
	SampleSize      int `json:"sample_size" yaml:"sample_size"`

	// Number of passes over all benchmarks (each pass is in a fresh random order).
	Iterations int `json:"iterations" yaml:"iterations"`
	// Number of consecutive runs of a benchmark within a pass.
	Repeat int `json:"repeat" yaml:"repeat"`
	// Run benchmarks of a pass in random order (true by default).
	// Turning it off gives a fixed order and biases the comparison of benchmarks.
	Shuffle bool `json:"shuffle" yaml:"shuffle"`

	// How probe locations are found:
	//  - "symbol": harness iteration functions found in the symbol table,
	//  - "address": loop branches found in the disassembly of the timed region.
	Mode string `json:"mode" yaml:"mode"`
	// Regexp for harness iteration functions in symbol mode.
	Pattern string `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	// Symbol table reader in symbol mode: "elf" (built in) or "nm".
	Lister string `json:"lister" yaml:"lister"`
	// In address mode, decode instructions at found addresses and drop non-branches.
	Verify bool `json:"verify" yaml:"verify"`

	// Run cargo clean on all projects before every pass (true by default).
	Clean bool `json:"clean" yaml:"clean"`
	// Archive harness reports (target/criterion) of every pass into
	// <results>/reports/<pass id>/<project>.tar.xz.
	Archive bool `json:"archive" yaml:"archive"`
	// Check perf permissions, tracefs and tools before starting (true by default).
	Preflight bool `json:"preflight" yaml:"preflight"`

	Timeouts Timeouts `json:"timeouts" yaml:"timeouts"`
	Tools    Tools    `json:"tools" yaml:"tools"`

	// Prometheus textfile the counters are written to at the end (optional).
	MetricsFile string `json:"metrics_file,omitempty" yaml:"metrics_file,omitempty"`
}

// Timeouts in seconds, 0 means no timeout.
type Timeouts struct {
	Build int `json:"build" yaml:"build"`
	Probe int `json:"probe" yaml:"probe"`
	Run   int `json:"run" yaml:"run"`
	// Symbol listing and disassembly.
	Tool int `json:"tool" yaml:"tool"`
}

// Tools are binary names or paths of the external tools.
type Tools struct {
	Cargo   string `json:"cargo" yaml:"cargo"`
	Perf    string `json:"perf" yaml:"perf"`
	Objdump string `json:"objdump" yaml:"objdump"`
	NM      string `json:"nm" yaml:"nm"`
	Taskset string `json:"taskset" yaml:"taskset"`
	Nice    string `json:"nice" yaml:"nice"`
}

const (
	ModeSymbol  = "symbol"
	ModeAddress = "address"

	ListerELF = "elf"
	ListerNM  = "nm"
)
