// Copyright 2025 probebench project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package stat

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSet(t *testing.T) {
	a := assert.New(t)
	set := NewSet()
	a.Empty(set.Collect(All))

	v0 := set.New("v0", "desc0")
	a.Equal(v0.Val(), 0)
	v0.Add(1)
	a.Equal(v0.Val(), 1)
	v0.Add(1)
	a.Equal(v0.Val(), 2)

	vv1 := 0
	v1 := set.New("v1", "desc1", Simple, func() int { return vv1 })
	a.Equal(v1.Val(), 0)
	vv1 = 11
	a.Equal(v1.Val(), 11)
	a.Panics(func() { v1.Add(1) })

	v2 := set.New("v2", "desc2", Console, func(v int, period time.Duration) string {
		return fmt.Sprintf("v2 %v", v)
	})
	v2.Add(100)

	v3 := set.New("v3", "desc3", Distribution{})
	a.Equal(v3.Val(), 0)
	v3.Add(10)
	a.Equal(v3.Val(), 10)
	v3.Add(20)
	a.Equal(v3.Val(), 15)
	v3.Add(30)
	a.Equal(v3.Val(), 20)
	a.InDelta(20, v3.Quantile(0.5), 10)
	a.Panics(func() { v0.Quantile(0.5) })

	a.Panics(func() { set.New("v4", "desc4", float64(1)) })
	a.Panics(func() { set.New("v0", "desc0") })

	ui := set.Collect(All)
	a.Equal(len(ui), 4)
	a.Equal(ui[0], UI{"v2", "desc2", Console, "v2 100", 100})
	a.Equal(ui[1], UI{"v1", "desc1", Simple, "11", 11})
	a.Equal(ui[2], UI{"v0", "desc0", All, "2", 2})
	a.Equal(ui[3], UI{"v3", "desc3", All, "20", 20})

	ui1 := set.Collect(Simple)
	a.Equal(len(ui1), 2)
	a.Equal(ui1[0].Name, "v2")
	a.Equal(ui1[1].Name, "v1")

	ui2 := set.Collect(Console)
	a.Equal(len(ui2), 1)
	a.Equal(ui2[0].Name, "v2")
}

func TestSetRateFormat(t *testing.T) {
	a := assert.New(t)
	a.Equal("0 (0/hour)", formatRate(0, time.Second))
	a.Equal("1 (60/min)", formatRate(1, time.Second))
	a.Equal("100 (100/sec)", formatRate(100, time.Second))
}

func TestSetPrometheus(t *testing.T) {
	set := NewSet()
	v := set.New("runs", "Runs", Prometheus("test_runs_total"))
	v.Add(3)
	families, err := set.Registry().Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	assert.Equal(t, "test_runs_total", families[0].GetName())
	assert.Equal(t, 3.0, families[0].GetMetric()[0].GetGauge().GetValue())

	file := filepath.Join(t.TempDir(), "metrics.prom")
	require.NoError(t, set.WriteTextfile(file))
	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "test_runs_total 3"), "%s", data)
}

func TestMetricsIndependent(t *testing.T) {
	// Two experiments in one process must not share or collide on registrations.
	m1 := NewMetrics()
	m2 := NewMetrics()
	m1.RunsOK.Add(1)
	assert.Equal(t, 1, m1.RunsOK.Val())
	assert.Equal(t, 0, m2.RunsOK.Val())
}

func TestSetStress(t *testing.T) {
	set := NewSet()
	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v := set.New(fmt.Sprintf("v%v", p), "desc", Distribution{})
			for i := 0; i < 1000; i++ {
				v.Add(i)
				set.Collect(All)
			}
		}()
	}
	wg.Wait()
	assert.Len(t, set.Collect(All), 4)
}

func TestAverageValue(t *testing.T) {
	var av AverageValue[time.Duration]
	av.Save(time.Second)
	av.Save(3 * time.Second)
	assert.Equal(t, int64(2), av.Count())
	assert.Equal(t, 2*time.Second, av.Value())
}
