// Copyright 2025 probebench project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package probe installs and removes dynamic tracepoints (uprobes) with perf probe.
package probe

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/energybench/probebench/pkg/osutil"
)

// Probe is a set of tracepoints sharing one label in one binary.
type Probe struct {
	Name      string
	Binary    string
	Project   string
	Locations []string
	// Events are the installed event names, e.g. probe_bench:label, probe_bench:label_1.
	Events []string
}

// Pattern returns the deletion filter that names exactly the installed events,
// e.g. "probe_bench:label|probe_bench:label_1". perf probe -d ORs the terms.
// Wildcards are never used: a label may be a prefix of another probe's label.
func (p *Probe) Pattern() string {
	return strings.Join(p.Events, "|")
}

var nonIdent = regexp.MustCompile(`[^A-Za-z0-9_]`)

// Label makes a valid event name out of arbitrary parts.
func Label(parts ...string) string {
	label := nonIdent.ReplaceAllString(strings.Join(parts, "_"), "_")
	if label == "" || label[0] >= '0' && label[0] <= '9' {
		label = "_" + label
	}
	return label
}

// Tool is the external tracepoint tool. Both methods return the tool output.
type Tool interface {
	Add(bin, spec string) ([]byte, error)
	Delete(pattern string) ([]byte, error)
}

// Perf drives "perf probe". Installing requires root or relaxed perf_event_paranoid.
type Perf struct {
	Bin     string
	Dir     string
	Timeout time.Duration
}

func (p *Perf) perf() string {
	if p.Bin == "" {
		return "perf"
	}
	return p.Bin
}

// Add force-installs spec so that retries overwrite an existing event of the same name.
func (p *Perf) Add(bin, spec string) ([]byte, error) {
	out, err := osutil.RunCmd(p.Timeout, p.Dir, p.perf(), "probe", "-f", "-x", bin, "--add", spec)
	if err != nil {
		return out, osutil.PrependContext("perf probe --add", err)
	}
	return out, nil
}

func (p *Perf) Delete(pattern string) ([]byte, error) {
	out, err := osutil.RunCmd(p.Timeout, p.Dir, p.perf(), "probe", "-d", pattern)
	if err != nil {
		return out, osutil.PrependContext("perf probe -d", err)
	}
	return out, nil
}

type Outcome int

const (
	Matched Outcome = iota
	// NotMatched means the output has no "Added new event" block.
	NotMatched
	// Malformed means the block is present but lists no events.
	Malformed
)

func (o Outcome) String() string {
	switch o {
	case Matched:
		return "matched"
	case NotMatched:
		return "not matched"
	case Malformed:
		return "malformed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// ParseAdded extracts event names from perf probe --add output:
//
//	Added new events:
//	  probe_bench:label    (on criterion::bencher::Bencher<M>::iter in /bench)
//	  probe_bench:label_1  (on criterion::bencher::Bencher<M>::iter in /bench)
func ParseAdded(output []byte) ([]string, Outcome) {
	lines := strings.Split(string(output), "\n")
	start := -1
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "Added new event:" || line == "Added new events:" {
			start = i + 1
			break
		}
	}
	if start == -1 {
		return nil, NotMatched
	}
	var events []string
	for _, line := range lines[start:] {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			break
		}
		if !strings.Contains(fields[0], ":") {
			break
		}
		events = append(events, fields[0])
	}
	if len(events) == 0 {
		return nil, Malformed
	}
	return events, Matched
}
