// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package stat

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VividCortex/gohistogram"
	"github.com/prometheus/client_golang/prometheus"
)

// This file provides counters and distributions for instrumenting experiment runs.
// Every Set owns a private prometheus registry, so that several experiments
// (or tests) in one process do not collide on metric names.
//
//	set := stat.NewSet()
//	statFoo := set.New("metric name", "metric description", stat.Prometheus("pb_foo_total"))
//	statFoo.Add(1)

type UI struct {
	Name  string
	Desc  string
	Level Level
	Value string
	V     int
}

type Set struct {
	mu      sync.Mutex
	vals    map[string]*Val
	order   atomic.Uint64
	started time.Time
	reg     *prometheus.Registry
}

func NewSet() *Set {
	return &Set{
		vals:    make(map[string]*Val),
		started: time.Now(),
		reg:     prometheus.NewRegistry(),
	}
}

// Level controls if the metric is printed in periodic console summaries
// or only shows up in the full dump.
type Level int

const (
	All Level = iota
	Simple
	Console
)

// Prometheus exports the metric under the given name.
type Prometheus string

// Rate says to format the metric as a rate per unit of time rather than total value.
type Rate struct{}

// Distribution says to collect a histogram of individual samples. Val returns their mean.
type Distribution struct{}

const histogramBuckets = 255

// Additionally a custom 'func() int' can be passed to read the metric value from the function,
// and 'func(int, time.Duration) string' can be passed for custom formatting of the metric value.

func (s *Set) New(name, desc string, opts ...any) *Val {
	v := &Val{
		name:  name,
		desc:  desc,
		order: s.order.Add(1),
		fmt:   func(v int, period time.Duration) string { return strconv.Itoa(v) },
	}
	var promName string
	for _, o := range opts {
		switch opt := o.(type) {
		case Level:
			v.level = opt
		case Rate:
			v.fmt = formatRate
		case Distribution:
			v.hist = true
		case func() int:
			v.ext = opt
		case func(int, time.Duration) string:
			v.fmt = opt
		case Prometheus:
			promName = string(opt)
		default:
			panic(fmt.Sprintf("unknown stats option %#v", o))
		}
	}
	if promName != "" {
		s.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: promName,
			Help: desc,
		},
			func() float64 { return float64(v.Val()) },
		))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.vals[name] != nil {
		panic(fmt.Sprintf("duplicate stat %v", name))
	}
	s.vals[name] = v
	return v
}

func (s *Set) Collect(level Level) []UI {
	s.mu.Lock()
	defer s.mu.Unlock()
	period := time.Since(s.started).Truncate(time.Second)
	if period < time.Second {
		period = time.Second
	}
	var vals []*Val
	for _, v := range s.vals {
		if v.level >= level {
			vals = append(vals, v)
		}
	}
	sort.Slice(vals, func(i, j int) bool {
		if vals[i].level != vals[j].level {
			return vals[i].level > vals[j].level
		}
		return vals[i].order < vals[j].order
	})
	var res []UI
	for _, v := range vals {
		val := v.Val()
		res = append(res, UI{
			Name:  v.name,
			Desc:  v.desc,
			Level: v.level,
			Value: v.fmt(val, period),
			V:     val,
		})
	}
	return res
}

// WriteTextfile dumps all exported metrics in the prometheus text format,
// suitable for the node exporter textfile collector.
func (s *Set) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, s.reg)
}

func (s *Set) Registry() *prometheus.Registry {
	return s.reg
}

type Val struct {
	name    string
	desc    string
	level   Level
	order   uint64
	val     atomic.Uint64
	ext     func() int
	fmt     func(int, time.Duration) string
	hist    bool
	histMu  sync.Mutex
	histVal *gohistogram.NumericHistogram
}

func (v *Val) Add(val int) {
	if v.ext != nil {
		panic(fmt.Sprintf("stat %v is in external mode", v.name))
	}
	if v.hist {
		v.histMu.Lock()
		if v.histVal == nil {
			v.histVal = gohistogram.NewHistogram(histogramBuckets)
		}
		v.histVal.Add(float64(val))
		v.histMu.Unlock()
		return
	}
	v.val.Add(uint64(val))
}

func (v *Val) Val() int {
	if v.ext != nil {
		return v.ext()
	}
	if v.hist {
		v.histMu.Lock()
		defer v.histMu.Unlock()
		if v.histVal == nil {
			return 0
		}
		return int(v.histVal.Mean())
	}
	return int(v.val.Load())
}

// Quantile returns the approximate q quantile of a distribution metric.
func (v *Val) Quantile(q float64) float64 {
	if !v.hist {
		panic(fmt.Sprintf("stat %v is not a distribution", v.name))
	}
	v.histMu.Lock()
	defer v.histMu.Unlock()
	if v.histVal == nil {
		return 0
	}
	return v.histVal.Quantile(q)
}

func formatRate(v int, period time.Duration) string {
	secs := int(period.Seconds())
	if x := v / secs; x >= 10 {
		return fmt.Sprintf("%v (%v/sec)", v, x)
	}
	if x := v * 60 / secs; x >= 10 {
		return fmt.Sprintf("%v (%v/min)", v, x)
	}
	x := v * 60 * 60 / secs
	return fmt.Sprintf("%v (%v/hour)", v, x)
}
