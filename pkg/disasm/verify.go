// Copyright 2025 probebench project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package disasm

import (
	"debug/elf"
	"errors"
	"fmt"
	"strconv"

	"golang.org/x/arch/x86/x86asm"
)

// maxInsnLen is the longest x86 instruction.
const maxInsnLen = 15

// VerifyBranches decodes the instruction at every address and keeps only jumps.
// Textual matching may be fooled by unusual objdump formatting, decoding is not.
// Binaries that are not amd64 ELF files are returned unverified.
func VerifyBranches(bin string, addrs []string) ([]string, error) {
	file, err := elf.Open(bin)
	if err != nil {
		var formatErr *elf.FormatError
		if errors.As(err, &formatErr) {
			return addrs, nil
		}
		return nil, err
	}
	defer file.Close()
	if file.Machine != elf.EM_X86_64 {
		return addrs, nil
	}
	var res []string
	for _, addr := range addrs {
		pc, err := strconv.ParseUint(addr, 16, 64)
		if err != nil {
			return nil, fmt.Errorf("bad address %q: %w", addr, err)
		}
		code, err := readCode(file, pc)
		if err != nil {
			return nil, err
		}
		if code != nil && isBranch(code) {
			res = append(res, addr)
		}
	}
	return res, nil
}

// readCode returns the bytes at virtual address pc, or nil if pc is not in an executable section.
func readCode(file *elf.File, pc uint64) ([]byte, error) {
	for _, sect := range file.Sections {
		if sect.Type != elf.SHT_PROGBITS || sect.Flags&elf.SHF_EXECINSTR == 0 ||
			pc < sect.Addr || pc >= sect.Addr+sect.Size {
			continue
		}
		n := min(uint64(maxInsnLen), sect.Addr+sect.Size-pc)
		code := make([]byte, n)
		if _, err := sect.ReadAt(code, int64(pc-sect.Addr)); err != nil {
			return nil, fmt.Errorf("failed to read %v at 0x%x: %w", sect.Name, pc, err)
		}
		return code, nil
	}
	return nil, nil
}

func isBranch(code []byte) bool {
	inst, err := x86asm.Decode(code, 64)
	if err != nil {
		return false
	}
	switch inst.Op {
	case x86asm.JA, x86asm.JAE, x86asm.JB, x86asm.JBE, x86asm.JCXZ, x86asm.JE, x86asm.JECXZ,
		x86asm.JG, x86asm.JGE, x86asm.JL, x86asm.JLE, x86asm.JMP, x86asm.JNE, x86asm.JNO,
		x86asm.JNP, x86asm.JNS, x86asm.JO, x86asm.JP, x86asm.JRCXZ, x86asm.JS,
		x86asm.LOOP, x86asm.LOOPE, x86asm.LOOPNE:
		return true
	}
	return false
}
