// Copyright 2025 probebench project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package bench

import (
	"fmt"
	"regexp"
	"strconv"
)

var (
	powerFileRe     = regexp.MustCompile(`^(.*?)_([0-9]{16})\.txt$`)
	perfTraceFileRe = regexp.MustCompile(`^(.*?)\.profraw\.([0-9]{16})$`)
)

// ParsePowerFile splits a measurement file name of the form {name}_{ts}.txt
// where ts is a 16-digit timestamp (microseconds since the epoch).
func ParsePowerFile(file string) (string, int64, bool) {
	return parseStamped(powerFileRe, file)
}

// ParsePerfTraceFile splits a trace file name of the form {name}.profraw.{ts}.
func ParsePerfTraceFile(file string) (string, int64, bool) {
	return parseStamped(perfTraceFileRe, file)
}

func PowerFileName(name string, ts int64) string {
	return fmt.Sprintf("%v_%016d.txt", name, ts)
}

func parseStamped(re *regexp.Regexp, file string) (string, int64, bool) {
	m := re.FindStringSubmatch(file)
	if m == nil {
		return "", 0, false
	}
	ts, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return m[1], ts, true
}
