// Copyright 2025 probebench project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package main

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/energybench/probebench/pkg/log"
	"github.com/energybench/probebench/pkg/osutil"
	"github.com/energybench/probebench/pkg/results"
	"github.com/energybench/probebench/pkg/stat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCounters(t *testing.T, dir, file string, base int) {
	var buf strings.Builder
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&buf, "%v.0;%v;;probe_serde:json;1;100.00;;\n", i+1, base+i)
		fmt.Fprintf(&buf, "%v.0;%v;;cycles;1;100.00;;\n", i+1, 1000+i)
	}
	require.NoError(t, osutil.WriteFile(filepath.Join(dir, "serde", "json", file), []byte(buf.String())))
}

func TestCompare(t *testing.T) {
	oldDir, newDir := t.TempDir(), t.TempDir()
	writeCounters(t, oldDir, "twitter_1681874840353873.txt", 100)
	writeCounters(t, newDir, "twitter_1681874840359999.txt", 200)
	writeCounters(t, newDir, "canada_1681874840359999.txt", 200)

	cmps, err := collectComparisons(oldDir, newDir, "", log.Discard)
	require.NoError(t, err)
	require.Len(t, cmps, 2)
	assert.Equal(t, "serde/json/twitter", cmps[0].key)
	assert.Equal(t, "cycles", cmps[0].event)
	assert.Greater(t, cmps[0].pval, 0.05)
	assert.Equal(t, "probe_serde:json", cmps[1].event)
	assert.Less(t, cmps[1].pval, 0.05)
	assert.Equal(t, 104.5, cmps[1].old.Median)
	assert.Equal(t, 204.5, cmps[1].new.Median)

	buf := new(bytes.Buffer)
	require.NoError(t, compare(buf, oldDir, newDir, "probe_serde:json", 0.05, log.Discard))
	out := buf.String()
	assert.Contains(t, out, "+95.69%")
	assert.NotContains(t, out, "cycles")
}

func TestReduceAndMerge(t *testing.T) {
	dataDir, outDir := t.TempDir(), t.TempDir()
	writeCounters(t, dataDir, "twitter_1681874840353873.txt", 100)
	metrics := stat.NewMetrics()
	require.NoError(t, reduce(dataDir, outDir, log.Discard, metrics))
	assert.Equal(t, 1, metrics.FilesParsed.Val())
	assert.Equal(t, 2, metrics.Statistics.Val())

	merged := t.TempDir()
	require.NoError(t, merge(merged, []string{outDir, outDir}))
	all, err := results.ReadAll(filepath.Join(merged, "serde", "json.csv"))
	require.NoError(t, err)
	assert.Len(t, all, 4)
}
