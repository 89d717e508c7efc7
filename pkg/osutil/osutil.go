// Copyright 2017 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package osutil runs external tools and manipulates files.
package osutil

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	DefaultDirPerm  = 0755
	DefaultFilePerm = 0644
	DefaultExecPerm = 0755
)

// RunCmd runs "bin args..." in dir with timeout and returns its output.
func RunCmd(timeout time.Duration, dir, bin string, args ...string) ([]byte, error) {
	cmd := Command(bin, args...)
	cmd.Dir = dir
	return Run(timeout, cmd)
}

// Run runs cmd with the specified timeout. Zero timeout means no timeout.
// Returns combined output unless cmd.Stdout/Stderr are already set.
// If the command fails, the error is *VerboseError and includes output.
func Run(timeout time.Duration, cmd *exec.Cmd) ([]byte, error) {
	output := new(bytes.Buffer)
	if cmd.Stdout == nil {
		cmd.Stdout = output
	}
	if cmd.Stderr == nil {
		cmd.Stderr = output
	}
	setPdeathsig(cmd)
	if err := cmd.Start(); err != nil {
		return nil, &VerboseError{
			Title:    fmt.Sprintf("failed to start %v: %v", CommandString(cmd), err),
			ExitCode: -1,
			Started:  false,
		}
	}
	done := make(chan bool)
	timedout := make(chan bool, 1)
	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}
	go func() {
		select {
		case <-timer:
			timedout <- true
			killPgroup(cmd)
			cmd.Process.Kill()
		case <-done:
			timedout <- false
		}
	}()
	err := cmd.Wait()
	close(done)
	if err != nil {
		text := fmt.Sprintf("failed to run %v: %v", CommandString(cmd), err)
		isTimeout := <-timedout
		if isTimeout {
			text = fmt.Sprintf("timedout after %v: %v", timeout, CommandString(cmd))
		}
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return output.Bytes(), &VerboseError{
			Title:    text,
			Output:   output.Bytes(),
			ExitCode: exitCode,
			Started:  true,
			Timedout: isTimeout,
		}
	}
	<-timedout
	return output.Bytes(), nil
}

// Command is similar to os/exec.Command, but also sets PDEATHSIG on linux.
func Command(bin string, args ...string) *exec.Cmd {
	cmd := exec.Command(bin, args...)
	setPdeathsig(cmd)
	return cmd
}

type VerboseError struct {
	Title    string
	Output   []byte
	ExitCode int
	// Started is false if the binary could not be executed at all.
	Started  bool
	Timedout bool
}

func (err *VerboseError) Error() string {
	if len(err.Output) == 0 {
		return err.Title
	}
	return fmt.Sprintf("%v\n%s", err.Title, err.Output)
}

func PrependContext(ctx string, err error) error {
	var verr *VerboseError
	if errors.As(err, &verr) {
		verr.Title = fmt.Sprintf("%v: %v", ctx, verr.Title)
		return verr
	}
	return fmt.Errorf("%v: %w", ctx, err)
}

// CommandString renders cmd as a shell command that reproduces the invocation:
// environment overrides, working directory and quoted arguments.
func CommandString(cmd *exec.Cmd) string {
	return ShellCommand(cmd.Dir, envOverrides(cmd.Env), cmd.Args)
}

// ShellCommand renders args as a shell command run in dir with env assignments.
func ShellCommand(dir string, env map[string]string, args []string) string {
	buf := new(strings.Builder)
	if dir != "" {
		fmt.Fprintf(buf, "cd %v && ", Quote(dir))
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(buf, "%v=%v ", k, Quote(env[k]))
	}
	for i, arg := range args {
		if i != 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(Quote(arg))
	}
	return buf.String()
}

// Quote quotes s for POSIX shells if it contains anything but safe characters.
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, c := range s {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' ||
			strings.ContainsRune("-_./,:=+@%", c)) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// envOverrides returns entries of env that differ from the current process environment.
func envOverrides(env []string) map[string]string {
	res := make(map[string]string)
	for _, kv := range env {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if cur, ok := os.LookupEnv(k); ok && cur == v {
			continue
		}
		res[k] = v
	}
	return res
}

// IsExist returns true if the file name exists.
func IsExist(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}

func MkdirAll(dir string) error {
	return os.MkdirAll(dir, DefaultDirPerm)
}

func WriteFile(filename string, data []byte) error {
	if err := MkdirAll(filepath.Dir(filename)); err != nil {
		return err
	}
	return os.WriteFile(filename, data, DefaultFilePerm)
}

// WriteExecFile writes an executable file, for scripts and fake tools.
func WriteExecFile(filename string, data []byte) error {
	if err := WriteFile(filename, data); err != nil {
		return err
	}
	return os.Chmod(filename, DefaultExecPerm)
}

// ListDir returns names of all entries in dir in sorted order.
func ListDir(dir string) ([]string, error) {
	f, err := os.Open(dir)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	names, err := f.Readdirnames(-1)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// Abs returns absolute path for path relative to the current working directory.
func Abs(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
