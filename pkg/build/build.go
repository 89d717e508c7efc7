// Copyright 2018 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package build compiles benchmark groups of target projects and locates
// the resulting benchmark executables.
package build

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/energybench/probebench/pkg/osutil"
)

// Builder compiles one benchmark group and returns path to its executable.
type Builder interface {
	Compile(workdir, group string, features []string) (string, error)
	Clean(workdir string) error
}

// Cargo drives the cargo build tool.
type Cargo struct {
	Bin     string
	Timeout time.Duration
}

var ErrNoExecutable = errors.New("build produced no benchmark executable")

// Error is a build failure with the root cause extracted from compiler diagnostics.
type Error struct {
	Report  []byte
	Output  []byte
	Command string
	// File is the first source file mentioned in the diagnostics, if any.
	File string
}

func (err *Error) Error() string {
	return string(err.Report)
}

// Profile overrides make symbols and line info available to the disassembler
// and keep benchmark functions out of cross-crate inlining.
var profileEnv = []string{
	"CARGO_PROFILE_BENCH_DEBUG=true",
	"CARGO_PROFILE_BENCH_LTO=false",
}

func (c *Cargo) bin() string {
	if c.Bin == "" {
		return "cargo"
	}
	return c.Bin
}

func (c *Cargo) Args(group string, features []string) []string {
	args := []string{"bench", "--bench", group, "--no-run", "--message-format=json"}
	if len(features) != 0 {
		args = append(args, "--features", strings.Join(features, ","))
	}
	return args
}

func (c *Cargo) Compile(workdir, group string, features []string) (string, error) {
	cmd := osutil.Command(c.bin(), c.Args(group, features)...)
	cmd.Dir = workdir
	cmd.Env = append(os.Environ(), profileEnv...)
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	command := osutil.CommandString(cmd)
	if _, err := osutil.Run(c.Timeout, cmd); err != nil {
		return "", extractRootCause(err, command, stdout.Bytes(), stderr.Bytes(), workdir)
	}
	exe, err := ParseArtifacts(stdout.Bytes(), group)
	if err != nil {
		return "", fmt.Errorf("%v: %w", command, err)
	}
	if !filepath.IsAbs(exe) {
		exe = filepath.Join(workdir, exe)
	}
	return exe, nil
}

func (c *Cargo) Clean(workdir string) error {
	if _, err := osutil.RunCmd(c.Timeout, workdir, c.bin(), "clean"); err != nil {
		return osutil.PrependContext("cargo clean", err)
	}
	return nil
}

type message struct {
	Reason     string  `json:"reason"`
	Executable *string `json:"executable"`
	Target     struct {
		Name string   `json:"name"`
		Kind []string `json:"kind"`
	} `json:"target"`
	Message struct {
		Level    string `json:"level"`
		Rendered string `json:"rendered"`
	} `json:"message"`
}

// parseMessages calls fn for every JSON message in data. Plain text lines are skipped,
// a line that looks like JSON but does not parse fails the whole output.
func parseMessages(data []byte, fn func(*message)) error {
	s := bufio.NewScanner(bytes.NewReader(data))
	s.Buffer(nil, 64<<20)
	for n := 1; s.Scan(); n++ {
		line := bytes.TrimSpace(s.Bytes())
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		msg := new(message)
		if err := json.Unmarshal(line, msg); err != nil {
			return fmt.Errorf("cargo message on line %v: %w", n, err)
		}
		fn(msg)
	}
	return s.Err()
}

// ParseArtifacts returns the executable of the bench artifact named group
// from the line-delimited JSON messages cargo prints on stdout.
// Empty group accepts any bench artifact. The last matching artifact wins.
func ParseArtifacts(data []byte, group string) (string, error) {
	exe := ""
	err := parseMessages(data, func(msg *message) {
		if msg.Reason != "compiler-artifact" || msg.Executable == nil || *msg.Executable == "" {
			return
		}
		if !slices.Contains(msg.Target.Kind, "bench") {
			return
		}
		if group != "" && msg.Target.Name != group {
			return
		}
		exe = *msg.Executable
	})
	if err != nil {
		return "", err
	}
	if exe == "" {
		return "", ErrNoExecutable
	}
	return exe, nil
}

func extractRootCause(err error, command string, stdout, stderr []byte, workdir string) error {
	if err == nil {
		return nil
	}
	var verr *osutil.VerboseError
	if !errors.As(err, &verr) || !verr.Started || verr.Timedout {
		return err
	}
	diag, perr := compilerErrors(stdout)
	if perr != nil {
		verr.Output = append(append([]byte{}, stdout...), stderr...)
		return fmt.Errorf("malformed cargo output: %w: %w", perr, verr)
	}
	output := append(diag, stderr...)
	reason, file := extractCauseInner(output, workdir)
	if len(reason) == 0 {
		verr.Output = output
		return verr
	}
	return &Error{
		Report:  reason,
		Output:  output,
		Command: command,
		File:    file,
	}
}

// compilerErrors extracts rendered error diagnostics from cargo JSON messages.
func compilerErrors(stdout []byte) ([]byte, error) {
	buf := new(bytes.Buffer)
	err := parseMessages(stdout, func(msg *message) {
		if msg.Reason != "compiler-message" || msg.Message.Level != "error" {
			return
		}
		buf.WriteString(msg.Message.Rendered)
		if !strings.HasSuffix(msg.Message.Rendered, "\n") {
			buf.WriteByte('\n')
		}
	})
	return buf.Bytes(), err
}

func extractCauseInner(s []byte, workdir string) ([]byte, string) {
	lines := extractCauseRaw(s)
	const maxLines = 20
	if len(lines) > maxLines {
		lines = lines[:maxLines]
	}
	var stripPrefix []byte
	if workdir != "" {
		stripPrefix = []byte(workdir)
		if stripPrefix[len(stripPrefix)-1] != filepath.Separator {
			stripPrefix = append(stripPrefix, filepath.Separator)
		}
	}
	file := ""
	for i := range lines {
		if stripPrefix != nil {
			lines[i] = bytes.ReplaceAll(lines[i], stripPrefix, nil)
		}
		if file != "" {
			continue
		}
		for _, fileRe := range fileRes {
			if match := fileRe.FindSubmatch(lines[i]); match != nil {
				file = string(match[1])
				break
			}
		}
	}
	file = strings.TrimPrefix(file, "./")
	res := bytes.Join(lines, []byte{'\n'})
	return bytes.TrimSpace(res), file
}

func extractCauseRaw(s []byte) [][]byte {
	weak := true
	var cause [][]byte
	dedup := make(map[string]bool)
	for _, line := range bytes.Split(s, []byte{'\n'}) {
		for _, pattern := range buildFailureCauses {
			if !pattern.match(line) {
				continue
			}
			if weak && !pattern.weak {
				cause = nil
				dedup = make(map[string]bool)
			}
			if dedup[string(line)] {
				continue
			}
			dedup[string(line)] = true
			if cause == nil {
				weak = pattern.weak
			}
			cause = append(cause, line)
			break
		}
	}
	return cause
}

type buildFailureCause struct {
	pattern []byte
	prefix  bool
	weak    bool
}

func (cause *buildFailureCause) match(line []byte) bool {
	if cause.prefix {
		return bytes.HasPrefix(bytes.TrimSpace(line), cause.pattern)
	}
	return bytes.Contains(line, cause.pattern)
}

var buildFailureCauses = [...]buildFailureCause{
	{prefix: true, pattern: []byte("error[E")},
	{prefix: true, pattern: []byte("--> ")},
	{pattern: []byte(": undefined reference to")},
	{pattern: []byte(": error: ")},
	{weak: true, prefix: true, pattern: []byte("error: could not compile")},
	{weak: true, prefix: true, pattern: []byte("error: ")},
}

var fileRes = []*regexp.Regexp{
	regexp.MustCompile(`^\s*--> ([a-zA-Z0-9_\-/.]+):[0-9]+:[0-9]+`),
	regexp.MustCompile(`^([a-zA-Z0-9_\-/.]+):[0-9]+:([0-9]+:)? `),
}
