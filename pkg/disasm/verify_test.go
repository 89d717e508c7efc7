// Copyright 2025 probebench project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package disasm

import (
	"path/filepath"
	"testing"

	"github.com/energybench/probebench/pkg/osutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsBranch(t *testing.T) {
	tests := []struct {
		code []byte
		want bool
	}{
		{[]byte{0xeb, 0xfe}, true},             // jmp .
		{[]byte{0x75, 0xf0}, true},             // jne
		{[]byte{0x0f, 0x85, 0, 0, 0, 0}, true}, // jne rel32
		{[]byte{0xe2, 0xfe}, true},             // loop
		{[]byte{0x90}, false},                  // nop
		{[]byte{0x48, 0x39, 0xc8}, false},      // cmp
		{[]byte{0xe8, 0, 0, 0, 0}, false},      // call
		{[]byte{0x0f}, false},                  // truncated
	}
	for _, test := range tests {
		assert.Equal(t, test.want, isBranch(test.code), "code % x", test.code)
	}
}

func TestVerifyBranchesNotELF(t *testing.T) {
	bin := filepath.Join(t.TempDir(), "bench")
	require.NoError(t, osutil.WriteFile(bin, []byte("#!/bin/sh\nexit 0\n")))
	addrs, err := VerifyBranches(bin, []string{"4d2fe"})
	require.NoError(t, err)
	assert.Equal(t, []string{"4d2fe"}, addrs)

	_, err = VerifyBranches(filepath.Join(t.TempDir(), "missing"), []string{"1"})
	assert.Error(t, err)
}
