// Copyright 2025 probebench project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package perfstat

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/energybench/probebench/pkg/bench"
	"github.com/energybench/probebench/pkg/log"
	"github.com/energybench/probebench/pkg/osutil"
	"github.com/energybench/probebench/pkg/stat"
	"github.com/energybench/probebench/pkg/stats"
	"golang.org/x/exp/maps"
)

// Reducer turns a data directory laid out as <data>/<project>/<group>/<id>_<ts>.txt
// into per-event statistics.
type Reducer struct {
	Logger  *log.Logger
	Metrics *stat.Metrics
}

// Samples are the pooled counter values of all repetitions of one benchmark.
type Samples struct {
	Project string
	Group   string
	ID      string
	Events  map[string][]float64
	Files   int
}

type FileError struct {
	Path string
	Err  error
}

type Report struct {
	Files          int
	Failures       []FileError
	Uninstrumented []string
	Statistics     int
}

func (rep *Report) String() string {
	return fmt.Sprintf("%v files, %v failed to parse, %v without probe hits, %v statistics",
		rep.Files, len(rep.Failures), len(rep.Uninstrumented), rep.Statistics)
}

func (r *Reducer) logger() *log.Logger {
	if r.Logger == nil {
		return log.Discard
	}
	return r.Logger
}

func (r *Reducer) metrics() *stat.Metrics {
	if r.Metrics == nil {
		r.Metrics = stat.NewMetrics()
	}
	return r.Metrics
}

// Collect parses every counter file under dataDir. A file that fails to parse is
// reported and skipped; only a failure to read the directory tree is an error.
func (r *Reducer) Collect(dataDir string) ([]*Samples, *Report, error) {
	logger := r.logger()
	rep := new(Report)
	projects, err := osutil.ListDir(dataDir)
	if err != nil {
		return nil, nil, err
	}
	var res []*Samples
	for _, project := range projects {
		projectDir := filepath.Join(dataDir, project)
		if !isDir(projectDir) {
			continue
		}
		groups, err := osutil.ListDir(projectDir)
		if err != nil {
			return nil, nil, err
		}
		for _, group := range groups {
			groupDir := filepath.Join(projectDir, group)
			if !isDir(groupDir) {
				continue
			}
			samples, err := r.collectGroup(groupDir, project, group, rep)
			if err != nil {
				return nil, nil, err
			}
			res = append(res, samples...)
		}
	}
	logger.Logf(0, "reduced %v", rep)
	return res, rep, nil
}

func (r *Reducer) collectGroup(dir, project, group string, rep *Report) ([]*Samples, error) {
	logger := r.logger()
	files, err := osutil.ListDir(dir)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*Samples)
	for _, file := range files {
		id, _, ok := bench.ParsePowerFile(file)
		if !ok {
			logger.Logf(1, "skipping %v: not a counter file", filepath.Join(dir, file))
			continue
		}
		path := filepath.Join(dir, file)
		rep.Files++
		groups, err := parseFile(path)
		if err != nil {
			logger.Warnf("failed to parse %v: %v", path, err)
			rep.Failures = append(rep.Failures, FileError{path, err})
			r.metrics().ParseFailures.Add(1)
			continue
		}
		r.metrics().FilesParsed.Add(1)
		if !Instrumented(groups) {
			logger.Logf(0, "%v: no probe event fired", path)
			rep.Uninstrumented = append(rep.Uninstrumented, path)
			r.metrics().Uninstrumented.Add(1)
		}
		s := byID[id]
		if s == nil {
			s = &Samples{
				Project: project,
				Group:   group,
				ID:      id,
				Events:  make(map[string][]float64),
			}
			byID[id] = s
		}
		s.Files++
		for event, vals := range groups {
			s.Events[event] = append(s.Events[event], vals...)
		}
	}
	var res []*Samples
	for _, s := range byID {
		res = append(res, s)
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].ID < res[j].ID
	})
	return res, nil
}

func parseFile(path string) (map[string][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	rows, err := Parse(f)
	if err != nil {
		return nil, err
	}
	return Group(rows), nil
}

// ReduceDir computes one statistic per benchmark and event and passes it to sink.
// An error from sink stops the reduction.
func (r *Reducer) ReduceDir(dataDir string, sink func(*stats.Statistic) error) (*Report, error) {
	all, rep, err := r.Collect(dataDir)
	if err != nil {
		return nil, err
	}
	for _, s := range all {
		for _, event := range s.EventNames() {
			summary, err := stats.Compute(s.Events[event])
			if err != nil {
				// All readings of the event were uncounted.
				r.logger().Logf(1, "%v/%v/%v: %v: %v", s.Project, s.Group, s.ID, event, err)
				continue
			}
			st := &stats.Statistic{
				Project: s.Project,
				Group:   s.Group,
				ID:      s.ID,
				Event:   event,
				Summary: summary,
			}
			if err := sink(st); err != nil {
				return rep, err
			}
			rep.Statistics++
			r.metrics().Statistics.Add(1)
		}
	}
	return rep, nil
}

// EventNames returns event names in sorted order.
func (s *Samples) EventNames() []string {
	names := maps.Keys(s.Events)
	sort.Strings(names)
	return names
}

func isDir(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.IsDir()
}
