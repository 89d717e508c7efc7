// Copyright 2025 probebench project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package probe

import (
	"fmt"
	"sort"
	"sync"
)

// Leases tracks how many pending runs still need each probe.
// A probe is deleted when its last run releases it, so that no
// tracepoint outlives its last consumer.
type Leases struct {
	mgr    *Manager
	mu     sync.Mutex
	probes map[string]*lease
}

type lease struct {
	probe *Probe
	refs  int
}

func NewLeases(mgr *Manager) *Leases {
	return &Leases{
		mgr:    mgr,
		probes: make(map[string]*lease),
	}
}

// Retain adds n references to p.
func (l *Leases) Retain(p *Probe, n int) {
	if n <= 0 {
		panic(fmt.Sprintf("retaining probe %v %v times", p.Name, n))
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	ls := l.probes[p.Name]
	if ls == nil {
		ls = &lease{probe: p}
		l.probes[p.Name] = ls
	}
	ls.refs += n
}

// Release drops one reference and deletes the probe when none are left.
// Releasing an unknown or already deleted probe does nothing.
func (l *Leases) Release(name string) {
	l.mu.Lock()
	ls := l.probes[name]
	if ls == nil {
		l.mu.Unlock()
		return
	}
	ls.refs--
	if ls.refs > 0 {
		l.mu.Unlock()
		return
	}
	delete(l.probes, name)
	l.mu.Unlock()
	l.mgr.Delete(ls.probe.Pattern())
}

// ReleaseAll deletes all probes regardless of references.
func (l *Leases) ReleaseAll() {
	l.mu.Lock()
	probes := l.probes
	l.probes = make(map[string]*lease)
	l.mu.Unlock()
	for _, name := range sortedKeys(probes) {
		l.mgr.Delete(probes[name].probe.Pattern())
	}
}

// Active returns names of probes that are still installed.
func (l *Leases) Active() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return sortedKeys(l.probes)
}

func sortedKeys(m map[string]*lease) []string {
	var keys []string
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
