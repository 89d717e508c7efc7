// Copyright 2025 probebench project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package results

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/energybench/probebench/pkg/stats"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func statistic(project, group, id, event string, mean float64) *stats.Statistic {
	return &stats.Statistic{
		Project: project,
		Group:   group,
		ID:      id,
		Event:   event,
		Summary: stats.Summary{Samples: 10, Min: 1, Max: 2 * mean, Mean: mean, Median: mean},
	}
}

func TestWriter(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	in := []*stats.Statistic{
		statistic("prost", "varint", "encode_1", "probe_prost:iter", 10),
		statistic("prost", "varint", "encode_1", "cycles", 1e9),
		statistic("prost", "message", "decode", "probe_prost:iter", 0.5),
		statistic("chrono", "fmt", "iso_8601", "probe_chrono:iter", 3),
	}
	for _, st := range in {
		require.NoError(t, w.Write(st))
	}
	require.NoError(t, w.Close())

	got, err := ReadAll(filepath.Join(dir, "prost", "varint.csv"))
	require.NoError(t, err)
	if diff := cmp.Diff(in[:2], got); diff != "" {
		t.Fatal(diff)
	}
	got, err = ReadAll(w.Path("chrono", "fmt"))
	require.NoError(t, err)
	assert.Equal(t, in[3:], got)

	data, err := os.ReadFile(w.Path("prost", "message"))
	require.NoError(t, err)
	assert.Equal(t, "prost,message,decode,probe_prost:iter,10,1,1,0.5,0.5,0,0,0,0,0,0,0,0\n", string(data))
}

func TestWriterAppends(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 2; i++ {
		w := NewWriter(dir)
		require.NoError(t, w.Write(statistic("p", "g", "id", "e", float64(i))))
		require.NoError(t, w.Close())
	}
	got, err := ReadAll(filepath.Join(dir, "p", "g.csv"))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 0.0, got[0].Mean)
	assert.Equal(t, 1.0, got[1].Mean)
}

func TestReadErrors(t *testing.T) {
	_, err := Read(strings.NewReader("p,g,id,e,1,2\n"))
	assert.ErrorContains(t, err, "line 1")
	_, err = Read(strings.NewReader("p,g,id,e,x,1,1,1,1,1,1,1,1,1,1,1,1\n"))
	assert.ErrorContains(t, err, "bad sample count")
}

func TestMerge(t *testing.T) {
	var dirs []string
	for i, project := range []string{"prost", "chrono"} {
		dir := t.TempDir()
		w := NewWriter(dir)
		require.NoError(t, w.Write(statistic(project, "g", "id", "cycles", float64(i+1))))
		require.NoError(t, w.Write(statistic(project, "g", "id", "instructions", float64(i+2))))
		require.NoError(t, w.Close())
		dirs = append(dirs, dir)
	}
	out := t.TempDir()
	w := NewWriter(out)
	n, err := Merge(w, dirs...)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.Equal(t, 4, n)

	got, err := ReadDir(out)
	require.NoError(t, err)
	require.Len(t, got, 4)
	// Project order, not merge order.
	assert.Equal(t, "chrono", got[0].Project)
	assert.Equal(t, "prost", got[2].Project)

	_, err = Merge(NewWriter(t.TempDir()), filepath.Join(out, "missing"))
	require.NoError(t, err)
}
