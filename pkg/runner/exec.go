// Copyright 2025 probebench project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package runner

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/energybench/probebench/pkg/log"
	"github.com/energybench/probebench/pkg/osutil"
)

type Status int

const (
	Succeeded Status = iota
	// Failed means the process exited with a nonzero status.
	Failed
	// NotStarted means the process could not be executed at all.
	NotStarted
	TimedOut
)

func (s Status) String() string {
	switch s {
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case NotStarted:
		return "not started"
	case TimedOut:
		return "timed out"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

type Outcome struct {
	Status   Status
	ExitCode int
	Output   []byte
	Duration time.Duration
	Err      error
}

// Reason is a one-line description of a failed outcome.
func (o *Outcome) Reason() string {
	switch o.Status {
	case Failed:
		return fmt.Sprintf("exit status %v", o.ExitCode)
	case TimedOut:
		return fmt.Sprintf("timed out after %v", o.Duration.Round(time.Second))
	case NotStarted:
		return fmt.Sprintf("not started: %v", o.Err)
	default:
		return o.Status.String()
	}
}

type Executor interface {
	Execute(cmd *Command) *Outcome
}

// Exec runs commands as local processes. Zero Timeout means no timeout.
type Exec struct {
	Timeout time.Duration
	Logger  *log.Logger
}

func (e *Exec) Execute(c *Command) *Outcome {
	logger := e.Logger
	if logger == nil {
		logger = log.Discard
	}
	cmd := osutil.Command(c.Args[0], c.Args[1:]...)
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), envList(c.Env)...)
	logger.Logf(1, "running: %v", c)
	start := time.Now()
	out, err := osutil.Run(e.Timeout, cmd)
	res := &Outcome{
		Output:   out,
		Duration: time.Since(start),
		Err:      err,
	}
	var verr *osutil.VerboseError
	switch {
	case err == nil:
		res.Status = Succeeded
	case errors.As(err, &verr) && !verr.Started:
		res.Status = NotStarted
		res.ExitCode = -1
	case errors.As(err, &verr) && verr.Timedout:
		res.Status = TimedOut
		res.ExitCode = verr.ExitCode
	case errors.As(err, &verr):
		res.Status = Failed
		res.ExitCode = verr.ExitCode
	default:
		res.Status = Failed
		res.ExitCode = -1
	}
	if logger.V(2) && len(out) != 0 {
		logger.Logf(2, "output of %v:\n%s", c.Args[0], out)
	}
	return res
}

func envList(env map[string]string) []string {
	var res []string
	for k, v := range env {
		res = append(res, k+"="+v)
	}
	sort.Strings(res)
	return res
}
