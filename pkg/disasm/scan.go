// Copyright 2025 probebench project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package disasm

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	DefaultStart = "self.measurement.start();"
	DefaultEnd   = "self.measurement.end(start);"
	DefaultEntry = "criterion::bencher::Bencher<M>::iter"
)

type Kind int

const (
	// IterBranch is the last jump back into the harness iteration entry point.
	IterBranch Kind = iota
	// BatchedExit is the conditional jump of the last insn; cmp a,b; jcc sequence.
	BatchedExit
)

func (k Kind) String() string {
	switch k {
	case IterBranch:
		return "iter-branch"
	case BatchedExit:
		return "batched-exit"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

type Outcome int

const (
	Matched Outcome = iota
	// NotMatched means the disassembly is fine but contains no loop edge.
	NotMatched
	// Malformed means the disassembly contains no instructions at all.
	Malformed
)

func (o Outcome) String() string {
	switch o {
	case Matched:
		return "matched"
	case NotMatched:
		return "not matched"
	case Malformed:
		return "malformed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

type Match struct {
	Kind Kind
	// Addr is the hex address of the branch without 0x prefix.
	Addr string
}

type Region struct {
	Matches []Match
}

type Result struct {
	Outcome Outcome
	Regions []Region
}

// Addresses returns addresses of all matches in region order without duplicates.
func (res *Result) Addresses() []string {
	var addrs []string
	dedup := make(map[string]bool)
	for _, region := range res.Regions {
		for _, m := range region.Matches {
			if dedup[m.Addr] {
				continue
			}
			dedup[m.Addr] = true
			addrs = append(addrs, m.Addr)
		}
	}
	return addrs
}

// Scanner locates loop edges inside timed regions, that is between the
// Start and End source markers. Zero value uses the criterion harness markers.
type Scanner struct {
	Start string
	End   string
	Entry string
}

func (s *Scanner) regionRe() *regexp.Regexp {
	start, end := s.Start, s.End
	if start == "" {
		start = DefaultStart
	}
	if end == "" {
		end = DefaultEnd
	}
	return regexp.MustCompile(`(?s)` + regexp.QuoteMeta(start) + `(.*?)` + regexp.QuoteMeta(end))
}

func (s *Scanner) targetRe() *regexp.Regexp {
	entry := s.Entry
	if entry == "" {
		entry = DefaultEntry
	}
	return regexp.MustCompile(`^[[:xdigit:]]+\s+<` + regexp.QuoteMeta(entry) + `(?:\+0x[[:xdigit:]]+)?>$`)
}

// Regions returns the text of all non-overlapping timed regions.
func (s *Scanner) Regions(text []byte) []string {
	var regions []string
	for _, m := range s.regionRe().FindAllSubmatch(text, -1) {
		regions = append(regions, string(m[1]))
	}
	return regions
}

// Scan searches every timed region independently. Within a region the last
// match of each kind wins: earlier ones belong to unrolled prologues.
func (s *Scanner) Scan(text []byte) *Result {
	res := &Result{Outcome: NotMatched}
	if len(parseInsns(string(text))) == 0 {
		res.Outcome = Malformed
		return res
	}
	target := s.targetRe()
	for _, region := range s.Regions(text) {
		insns := parseInsns(region)
		var r Region
		if m, ok := lastIterBranch(insns, target); ok {
			r.Matches = append(r.Matches, m)
		}
		if m, ok := lastBatchedExit(insns); ok {
			r.Matches = append(r.Matches, m)
		}
		if len(r.Matches) != 0 {
			res.Outcome = Matched
		}
		res.Regions = append(res.Regions, r)
	}
	return res
}

type insn struct {
	addr     string
	mnemonic string
	operands string
	// line is the index of the text line, for adjacency checks.
	line int
}

// insnRe matches objdump instruction lines:
//
//	4d310:	75 de                	jne    4d2f0 <criterion::bencher::Bencher<M>::iter+0x40>
var insnRe = regexp.MustCompile(`^\s*([[:xdigit:]]+):\s+(?:[[:xdigit:]]{2} )+\s*([a-z][a-z0-9.]*)(?:\s+(.*?))?\s*$`)

func parseInsns(text string) []insn {
	var insns []insn
	for i, line := range strings.Split(text, "\n") {
		m := insnRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		insns = append(insns, insn{
			addr:     m[1],
			mnemonic: m[2],
			operands: m[3],
			line:     i,
		})
	}
	return insns
}

func isJump(mnemonic string) bool {
	return strings.HasPrefix(mnemonic, "j") && len(mnemonic) >= 2 && len(mnemonic) <= 4
}

func isConditionalJump(mnemonic string) bool {
	return isJump(mnemonic) && mnemonic != "jmp" && mnemonic != "jmpq"
}

func lastIterBranch(insns []insn, target *regexp.Regexp) (Match, bool) {
	for i := len(insns) - 1; i >= 0; i-- {
		in := insns[i]
		if isJump(in.mnemonic) && target.MatchString(in.operands) {
			return Match{Kind: IterBranch, Addr: in.addr}, true
		}
	}
	return Match{}, false
}

// lastBatchedExit finds the last three adjacent instruction lines where the
// middle one is a two-operand cmp and the last one is a conditional jump.
func lastBatchedExit(insns []insn) (Match, bool) {
	for i := len(insns) - 1; i >= 2; i-- {
		first, cmp, jcc := insns[i-2], insns[i-1], insns[i]
		if jcc.line != cmp.line+1 || cmp.line != first.line+1 {
			continue
		}
		if !strings.HasPrefix(cmp.mnemonic, "cmp") || !strings.Contains(cmp.operands, ",") {
			continue
		}
		if !isConditionalJump(jcc.mnemonic) {
			continue
		}
		return Match{Kind: BatchedExit, Addr: jcc.addr}, true
	}
	return Match{}, false
}
