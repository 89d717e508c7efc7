// Copyright 2025 probebench project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package disasm recovers addresses of harness loop edges from source-interleaved disassembly.
package disasm

import (
	"bytes"
	"time"

	"github.com/energybench/probebench/pkg/osutil"
)

type Disassembler interface {
	Disassemble(bin string) ([]byte, error)
}

// Objdump disassembles with "objdump -S -C -l": source interleaving provides
// the region markers, demangling provides readable branch targets.
type Objdump struct {
	Bin     string
	Timeout time.Duration
}

func (o *Objdump) Disassemble(bin string) ([]byte, error) {
	tool := o.Bin
	if tool == "" {
		tool = "objdump"
	}
	cmd := osutil.Command(tool, "-S", "-C", "-l", bin)
	stdout := new(bytes.Buffer)
	cmd.Stdout = stdout
	if _, err := osutil.Run(o.Timeout, cmd); err != nil {
		return nil, osutil.PrependContext("objdump", err)
	}
	return stdout.Bytes(), nil
}
