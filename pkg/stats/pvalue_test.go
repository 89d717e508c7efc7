// Copyright 2025 probebench project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUTest(t *testing.T) {
	old := []float64{10, 11, 12, 13, 14, 15, 16, 17}
	shifted := []float64{110, 111, 112, 113, 114, 115, 116, 117}
	pval, err := UTest(old, shifted)
	require.NoError(t, err)
	assert.Less(t, pval, 0.01)

	same := []float64{10.5, 11.5, 12.5, 13.5, 14.5, 15.5, 16.5, 17.5}
	pval, err = UTest(old, same)
	require.NoError(t, err)
	assert.Greater(t, pval, 0.5)
}
