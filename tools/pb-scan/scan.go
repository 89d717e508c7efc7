// Copyright 2025 probebench project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// pb-scan prints the probe locations that pb-run would use for the given
// benchmark binaries without installing anything.
//
//	pb-scan -mode address -verify target/release/deps/varint-0f1e2d
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/energybench/probebench/pkg/benchconfig"
	"github.com/energybench/probebench/pkg/disasm"
	"github.com/energybench/probebench/pkg/symbolizer"
	"github.com/energybench/probebench/pkg/tool"
	"golang.org/x/sync/errgroup"
)

var (
	flagMode     = flag.String("mode", benchconfig.ModeSymbol, "symbol or address")
	flagLister   = flag.String("lister", benchconfig.ListerELF, "symbol lister: elf or nm")
	flagPattern  = flag.String("pattern", symbolizer.DefaultPattern, "regexp for instrumented functions")
	flagVerify   = flag.Bool("verify", false, "decode found addresses and drop non-branches")
	flagObjdump  = flag.String("objdump", "objdump", "objdump binary")
	flagNM       = flag.String("nm", "nm", "nm binary")
	flagParallel = flag.Int("j", 4, "number of binaries scanned in parallel")
)

type scanner struct {
	mode         string
	lister       symbolizer.Lister
	disassembler disasm.Disassembler
	verify       func(bin string, addrs []string) ([]string, error)
}

func main() {
	defer tool.Init(flag.CommandLine, os.Args[1:])()
	bins := flag.Args()
	if len(bins) == 0 {
		fmt.Fprintf(os.Stderr, "usage: pb-scan [flags] binary...\n")
		flag.PrintDefaults()
		os.Exit(1)
	}
	s := &scanner{
		mode:         *flagMode,
		disassembler: &disasm.Objdump{Bin: *flagObjdump, Timeout: 10 * time.Minute},
	}
	switch *flagLister {
	case benchconfig.ListerELF:
		s.lister = &symbolizer.ELF{Pattern: *flagPattern}
	case benchconfig.ListerNM:
		s.lister = &symbolizer.NM{Bin: *flagNM, Pattern: *flagPattern, Timeout: 10 * time.Minute}
	default:
		tool.Failf("unknown lister %q", *flagLister)
	}
	if *flagVerify {
		s.verify = disasm.VerifyBranches
	}
	out, err := s.scanAll(bins, *flagParallel)
	if err != nil {
		tool.Fail(err)
	}
	for _, res := range out {
		fmt.Print(res)
	}
}

// scanAll scans binaries concurrently and returns reports in the order of bins.
func (s *scanner) scanAll(bins []string, parallel int) ([]string, error) {
	out := make([]string, len(bins))
	var g errgroup.Group
	g.SetLimit(max(parallel, 1))
	for i, bin := range bins {
		g.Go(func() error {
			res, err := s.scan(bin)
			if err != nil {
				return fmt.Errorf("%v: %w", bin, err)
			}
			out[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *scanner) scan(bin string) (string, error) {
	buf := new(strings.Builder)
	fmt.Fprintf(buf, "%v:\n", bin)
	switch s.mode {
	case benchconfig.ModeSymbol:
		funcs, err := s.lister.IterSymbols(bin)
		if err != nil {
			return "", err
		}
		for _, fn := range funcs {
			fmt.Fprintf(buf, "\t%v\n", fn)
		}
		fmt.Fprintf(buf, "\t%v functions\n", len(funcs))
	case benchconfig.ModeAddress:
		text, err := s.disassembler.Disassemble(bin)
		if err != nil {
			return "", err
		}
		res := new(disasm.Scanner).Scan(text)
		for i, region := range res.Regions {
			for _, m := range region.Matches {
				fmt.Fprintf(buf, "\tregion %v: %v 0x%v\n", i, m.Kind, m.Addr)
			}
		}
		addrs := res.Addresses()
		if s.verify != nil && len(addrs) != 0 {
			verified, err := s.verify(bin, addrs)
			if err != nil {
				return "", err
			}
			fmt.Fprintf(buf, "\t%v of %v addresses are branches\n", len(verified), len(addrs))
			addrs = verified
		}
		fmt.Fprintf(buf, "\t%v: %v regions, %v addresses\n", res.Outcome, len(res.Regions), len(addrs))
	default:
		return "", fmt.Errorf("unknown mode %q", s.mode)
	}
	return buf.String(), nil
}
