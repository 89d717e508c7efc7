// Copyright 2015 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package benchconfig

import (
	"fmt"
	"path/filepath"
	"regexp"
	"time"

	"github.com/energybench/probebench/pkg/bench"
	"github.com/energybench/probebench/pkg/config"
	"github.com/energybench/probebench/pkg/osutil"
	"github.com/energybench/probebench/pkg/symbolizer"
)

func LoadData(data []byte) (*Config, error) {
	cfg := Defaults()
	if err := config.LoadData(data, cfg); err != nil {
		return nil, err
	}
	if err := Complete(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadFile(filename string) (*Config, error) {
	cfg := Defaults()
	if err := config.LoadFile(filename, cfg); err != nil {
		return nil, err
	}
	if err := Complete(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Defaults() *Config {
	return &Config{
		Events:          []string{"instructions", "cycles", "branches", "branch-misses", "cache-misses"},
		IntervalMs:      100,
		MeasurementTime: 30,
		WarmUpTime:      5,
		SampleSize:      300,
		Iterations:      30,
		Repeat:          1,
		Nice:            -19,
		Shuffle:         true,
		Mode:            ModeSymbol,
		Lister:          ListerELF,
		Clean:           true,
		Preflight:       true,
		Timeouts: Timeouts{
			Build: 30 * 60,
			Probe: 60,
			Tool:  10 * 60,
		},
		Tools: Tools{
			Cargo:   "cargo",
			Perf:    "perf",
			Objdump: "objdump",
			NM:      "nm",
			Taskset: "taskset",
			Nice:    "nice",
		},
	}
}

func Complete(cfg *Config) error {
	for _, dir := range []struct {
		name string
		val  *string
	}{
		{"projects", &cfg.Projects},
		{"meta", &cfg.Meta},
		{"data", &cfg.Data},
		{"results", &cfg.Results},
	} {
		if *dir.val == "" {
			return fmt.Errorf("config param %v is empty", dir.name)
		}
		*dir.val = osutil.Abs(*dir.val)
	}
	cfg.Tmp = osutil.Abs(cfg.Tmp)
	cfg.Manifest = osutil.Abs(cfg.Manifest)
	cfg.MetricsFile = osutil.Abs(cfg.MetricsFile)
	if cfg.Manifest == "" && len(cfg.Targets) == 0 {
		return fmt.Errorf("neither manifest nor targets is specified")
	}
	if cfg.Core < 0 {
		return fmt.Errorf("bad config param core: %v", cfg.Core)
	}
	// Only raised priorities are accepted.
	if cfg.Nice < -20 || cfg.Nice >= 0 {
		return fmt.Errorf("bad config param nice: %v, want [-20, -1]", cfg.Nice)
	}
	if cfg.IntervalMs < 10 {
		// perf stat -I does not accept less than 10ms.
		return fmt.Errorf("bad config param interval_ms: %v, want >= 10", cfg.IntervalMs)
	}
	if cfg.MeasurementTime < 1 || cfg.WarmUpTime < 1 {
		return fmt.Errorf("measurement_time and warm_up_time must be positive")
	}
	if cfg.SampleSize < 10 {
		return fmt.Errorf("bad config param sample_size: %v, want >= 10", cfg.SampleSize)
	}
	if cfg.Iterations < 1 || cfg.Repeat < 1 {
		return fmt.Errorf("iterations and repeat must be positive")
	}
	switch cfg.Mode {
	case ModeSymbol:
		if cfg.Verify {
			return fmt.Errorf("verify is only supported in %v mode", ModeAddress)
		}
	case ModeAddress:
	default:
		return fmt.Errorf("config param mode must be one of %v/%v", ModeSymbol, ModeAddress)
	}
	switch cfg.Lister {
	case ListerELF, ListerNM:
	default:
		return fmt.Errorf("config param lister must be one of %v/%v", ListerELF, ListerNM)
	}
	if cfg.Pattern == "" {
		cfg.Pattern = symbolizer.DefaultPattern
	}
	if _, err := regexp.Compile(cfg.Pattern); err != nil {
		return fmt.Errorf("bad config param pattern: %w", err)
	}
	for _, timeout := range []int{cfg.Timeouts.Build, cfg.Timeouts.Probe, cfg.Timeouts.Run, cfg.Timeouts.Tool} {
		if timeout < 0 {
			return fmt.Errorf("timeouts must not be negative")
		}
	}
	return nil
}

// ProjectNames returns the projects to measure: targets, or all manifest rows.
// Malformed manifest rows are returned as error together with the good rows.
func (cfg *Config) ProjectNames() ([]string, error) {
	if len(cfg.Targets) != 0 {
		return cfg.Targets, nil
	}
	rows, err := bench.ReadManifest(cfg.Manifest)
	var names []string
	for _, row := range rows {
		names = append(names, row.Name)
	}
	if err != nil {
		return names, fmt.Errorf("bad manifest %v: %w", cfg.Manifest, err)
	}
	return names, nil
}

// ProjectDir is the root of the checkout of project name.
func (cfg *Config) ProjectDir(name string) string {
	return filepath.Join(cfg.Projects, name)
}

func Seconds(sec int) time.Duration {
	return time.Duration(sec) * time.Second
}
