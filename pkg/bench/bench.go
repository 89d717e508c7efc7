// Copyright 2025 probebench project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package bench describes benchmarked functions of target projects and the
// file naming conventions used for their measurement data.
package bench

import (
	"path/filepath"
	"strings"
	"unicode"
)

// Target identifies one benchmarked function.
// It is the join key between probe installation, runs and statistics.
type Target struct {
	Project  string
	Group    string
	Path     string
	ID       string
	Features []string
}

// Normalize replaces whitespace, path separators and hyphens with underscores
// so that the result is usable as a file name and as a probe name.
func Normalize(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '/' || r == '\\' || r == '-' {
			return '_'
		}
		return r
	}, s)
}

func (t *Target) CleanProject() string { return Normalize(t.Project) }
func (t *Target) CleanGroup() string   { return Normalize(t.Group) }
func (t *Target) CleanID() string      { return Normalize(t.ID) }

// Dir is the relative directory holding data of the target.
func (t *Target) Dir() string {
	return filepath.Join(t.CleanProject(), t.CleanGroup(), t.CleanID())
}

// Filter is the benchmark selection regexp passed to the harness.
// Harnesses select benchmarks by substring match, so the id is anchored
// to avoid running siblings that share a prefix.
func (t *Target) Filter() string {
	return "^" + t.ID + "$"
}

func (t *Target) String() string {
	return t.Project + "/" + t.Group + "/" + t.ID
}
