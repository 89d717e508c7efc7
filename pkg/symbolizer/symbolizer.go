// Copyright 2016 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package symbolizer finds the functions of a benchmark harness that probes are attached to.
package symbolizer

// DefaultPattern matches the iteration driver of the criterion harness
// in both mangled (Bencher$LT$M$GT$4iter) and demangled (Bencher<M>::iter) form.
const DefaultPattern = `Bencher.+iter`

// Lister returns names of harness iteration entry points in a binary.
// Names are returned in the form the probe tool accepts (mangled).
// An empty result is not an error.
type Lister interface {
	IterSymbols(bin string) ([]string, error)
}
