// Copyright 2025 probebench project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package probe

import (
	"errors"
	"fmt"
	"strings"

	"github.com/energybench/probebench/pkg/log"
	"github.com/energybench/probebench/pkg/stat"
)

var (
	ErrInstall     = errors.New("probe installation failed")
	ErrNoLocations = errors.New("no probe locations")
)

// Manager installs probes in batches: either every location of a probe is
// installed, or none is and the caller must not measure the binary.
type Manager struct {
	tool    Tool
	logger  *log.Logger
	metrics *stat.Metrics
}

func NewManager(tool Tool, logger *log.Logger, metrics *stat.Metrics) *Manager {
	if logger == nil {
		logger = log.Discard
	}
	if metrics == nil {
		metrics = stat.NewMetrics()
	}
	return &Manager{
		tool:    tool,
		logger:  logger,
		metrics: metrics,
	}
}

// Field accessors for the harness iteration counter; older harness
// versions only accept the second form.
var iterArgs = []string{"self->iters", "self.iters"}

// InstallSymbols attaches a probe named label to every function,
// exposing the iteration counter as the probe argument.
func (m *Manager) InstallSymbols(bin, project, label string, funcs []string) (*Probe, error) {
	return m.install(bin, project, label, funcs, func(fn string) []string {
		var specs []string
		for _, arg := range iterArgs {
			specs = append(specs, fmt.Sprintf("%v=%v %v", label, fn, arg))
		}
		return specs
	})
}

// InstallAddresses attaches a probe named label to every address (hex, without 0x).
func (m *Manager) InstallAddresses(bin, project, label string, addrs []string) (*Probe, error) {
	return m.install(bin, project, label, addrs, func(addr string) []string {
		return []string{fmt.Sprintf("%v=0x%v", label, strings.TrimPrefix(addr, "0x"))}
	})
}

func (m *Manager) install(bin, project, label string, locations []string,
	specs func(string) []string) (*Probe, error) {
	if len(locations) == 0 {
		return nil, fmt.Errorf("%w for %v in %v", ErrNoLocations, label, bin)
	}
	p := &Probe{
		Name:      label,
		Binary:    bin,
		Project:   project,
		Locations: locations,
	}
	installed := 0
	for _, loc := range locations {
		events, err := m.installOne(bin, specs(loc))
		if err != nil {
			m.metrics.ProbesFailed.Add(1)
			if len(p.Events) != 0 {
				m.Delete(p.Pattern())
			}
			return nil, fmt.Errorf("%w: %v at %v: %w", ErrInstall, label, loc, err)
		}
		installed++
		p.Events = append(p.Events, events...)
	}
	m.metrics.ProbesInstalled.Add(installed)
	m.logger.Logf(1, "installed probe %v in %v: %v", label, bin, strings.Join(p.Events, " "))
	return p, nil
}

// installOne tries the alternative specs in order. Only the error of the last one is returned.
// An add that succeeds without reporting event names fails the location:
// the events could not be deleted by name afterwards.
func (m *Manager) installOne(bin string, specs []string) ([]string, error) {
	var err error
	for _, spec := range specs {
		var out []byte
		out, err = m.tool.Add(bin, spec)
		if err != nil {
			m.logger.Logf(2, "perf probe --add %q failed: %v", spec, err)
			continue
		}
		events, outcome := ParseAdded(out)
		if outcome != Matched {
			m.logger.Warnf("perf probe --add %q succeeded, but its events are unknown and stay installed", spec)
			return nil, fmt.Errorf("added event names %v in output: %q", outcome, out)
		}
		return events, nil
	}
	return nil, err
}

// Delete removes all events matching pattern. Failure is logged, not returned:
// teardown continues with the remaining probes.
func (m *Manager) Delete(pattern string) bool {
	if _, err := m.tool.Delete(pattern); err != nil {
		m.metrics.DeletesFailed.Add(1)
		m.logger.Warnf("failed to delete probe %v: %v", pattern, err)
		return false
	}
	m.metrics.ProbesDeleted.Add(1)
	m.logger.Logf(1, "deleted probe %v", pattern)
	return true
}
