// Copyright 2025 probebench project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package main

import (
	"fmt"
	"testing"

	"github.com/energybench/probebench/pkg/benchconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLister map[string][]string

func (l fakeLister) IterSymbols(bin string) ([]string, error) {
	funcs, ok := l[bin]
	if !ok {
		return nil, fmt.Errorf("no such file")
	}
	return funcs, nil
}

type fakeDisassembler string

func (d fakeDisassembler) Disassemble(bin string) ([]byte, error) {
	return []byte(d), nil
}

const disassembly = `
0000000000001000 <criterion::bencher::Bencher<M>::iter>:
            self.measurement.start();
    1010:	48 ff c2             	inc    %rdx
    1013:	48 39 d6             	cmp    %rdx,%rsi
    1016:	75 f8                	jne    1010 <criterion::bencher::Bencher<M>::iter+0x10>
            self.measurement.end(start);
`

func TestScanSymbols(t *testing.T) {
	s := &scanner{
		mode: benchconfig.ModeSymbol,
		lister: fakeLister{
			"a": {"criterion::bencher::Bencher<M>::iter"},
			"b": nil,
		},
	}
	out, err := s.scanAll([]string{"a", "b"}, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"a:\n\tcriterion::bencher::Bencher<M>::iter\n\t1 functions\n",
		"b:\n\t0 functions\n",
	}, out)

	_, err = s.scanAll([]string{"a", "missing"}, 1)
	assert.ErrorContains(t, err, "missing: no such file")
}

func TestScanAddresses(t *testing.T) {
	s := &scanner{
		mode:         benchconfig.ModeAddress,
		disassembler: fakeDisassembler(disassembly),
		verify: func(bin string, addrs []string) ([]string, error) {
			return nil, nil
		},
	}
	out, err := s.scan("bench")
	require.NoError(t, err)
	assert.Contains(t, out, "region 0: batched-exit 0x1016")
	assert.Contains(t, out, "0 of 1 addresses are branches")
	assert.Contains(t, out, "matched: 1 regions, 0 addresses")

	s.mode = "coverage"
	_, err = s.scan("bench")
	assert.Error(t, err)
}
