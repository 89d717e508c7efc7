// Copyright 2016 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package symbolizer

import (
	"fmt"
	"regexp"
	"time"

	"github.com/energybench/probebench/pkg/osutil"
)

// NM lists symbols with "nm -a".
type NM struct {
	Bin     string
	Pattern string
	Timeout time.Duration
}

var nmTextRe = regexp.MustCompile(`(?m)^[[:xdigit:]]*\s[tT]\s(.*)$`)

func (nm *NM) IterSymbols(bin string) ([]string, error) {
	tool := nm.Bin
	if tool == "" {
		tool = "nm"
	}
	out, err := osutil.RunCmd(nm.Timeout, "", tool, "-a", bin)
	if err != nil {
		return nil, osutil.PrependContext("nm", err)
	}
	return ParseNM(out, nm.Pattern)
}

// ParseNM returns text symbols from nm output whose names match pattern,
// in output order without duplicates.
func ParseNM(output []byte, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("bad symbol pattern: %w", err)
	}
	var res []string
	dedup := make(map[string]bool)
	for _, m := range nmTextRe.FindAllSubmatch(output, -1) {
		name := string(m[1])
		if !re.MatchString(name) || dedup[name] {
			continue
		}
		dedup[name] = true
		res = append(res, name)
	}
	return res, nil
}
