// Copyright 2025 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package symbolizer

import (
	"debug/elf"
	"fmt"
	"regexp"
	"sort"

	"github.com/ianlancetaylor/demangle"
)

type Symbol struct {
	Name      string
	Demangled string
	Addr      uint64
	Size      int
}

// ELF reads the symbol table of the binary directly, without external tools.
// Pattern is matched against both mangled and demangled names.
type ELF struct {
	Pattern string
}

func (e *ELF) IterSymbols(bin string) ([]string, error) {
	pattern := e.Pattern
	if pattern == "" {
		pattern = DefaultPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("bad symbol pattern: %w", err)
	}
	symbols, err := ReadTextSymbols(bin)
	if err != nil {
		return nil, err
	}
	var res []string
	dedup := make(map[string]bool)
	for _, s := range symbols {
		if dedup[s.Name] || !re.MatchString(s.Name) && !re.MatchString(s.Demangled) {
			continue
		}
		dedup[s.Name] = true
		res = append(res, s.Name)
	}
	return res, nil
}

// ReadTextSymbols returns text symbols of bin sorted by address.
func ReadTextSymbols(bin string) ([]Symbol, error) {
	file, err := elf.Open(bin)
	if err != nil {
		return nil, fmt.Errorf("failed to open ELF file %v: %w", bin, err)
	}
	defer file.Close()
	allSymbols, err := file.Symbols()
	if err != nil {
		return nil, fmt.Errorf("failed to read ELF symbols: %w", err)
	}
	var symbols []Symbol
	for _, symb := range allSymbols {
		if elf.ST_TYPE(symb.Info) != elf.STT_FUNC ||
			symb.Section < 0 || int(symb.Section) >= len(file.Sections) {
			continue
		}
		sect := file.Sections[symb.Section]
		isText := sect.Type == elf.SHT_PROGBITS &&
			sect.Flags&elf.SHF_ALLOC != 0 &&
			sect.Flags&elf.SHF_EXECINSTR != 0
		if !isText {
			continue
		}
		symbols = append(symbols, Symbol{
			Name:      symb.Name,
			Demangled: demangle.Filter(symb.Name),
			Addr:      symb.Value,
			Size:      int(symb.Size),
		})
	}
	sort.SliceStable(symbols, func(i, j int) bool {
		return symbols[i].Addr < symbols[j].Addr
	})
	return symbols, nil
}
