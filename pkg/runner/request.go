// Copyright 2025 probebench project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package runner

import (
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/energybench/probebench/pkg/bench"
	"github.com/energybench/probebench/pkg/osutil"
	"github.com/energybench/probebench/pkg/schedule"
)

// Request is one benchmark to run Repeat times in a row.
// It is consumed exactly once and never retried.
type Request struct {
	Target bench.Target
	Exe    string
	Dir    string
	Env    map[string]string
	Repeat int
	// Probe is the name of the probe lease released after the request ran.
	Probe string
	// Events are the probe events counted in addition to the pipeline events.
	Events []string
}

func (req *Request) String() string {
	return fmt.Sprintf("%v (%v)", req.Target.String(), req.Exe)
}

// Command is a fully assembled process invocation.
type Command struct {
	Args []string
	Dir  string
	Env  map[string]string
	// Output is the counter file the command writes.
	Output string
}

// String renders the command so that it can be pasted into a shell.
func (cmd *Command) String() string {
	return osutil.ShellCommand(cmd.Dir, cmd.Env, cmd.Args)
}

// Pipeline assembles the measurement command:
//
//	taskset -c CORE nice -n NICE perf stat -x ; -I MS --cpu CORE -D -1
//	  --control fifo:CTL,ACK -e EVENTS -o OUT -- exe --bench
//	  --measurement-time T --warm-up-time W --sample-size S ^ID$
type Pipeline struct {
	Core            int
	Nice            int
	Taskset         string
	NiceBin         string
	Perf            string
	Events          []string
	Interval        time.Duration
	MeasurementTime time.Duration
	WarmUpTime      time.Duration
	SampleSize      int
	DataDir         string
}

const (
	EnvControl    = "PERF_CTL_FIFO"
	EnvControlAck = "PERF_CTL_ACK_FIFO"
)

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// Args returns argv for one execution of exe writing counters to output.
// The probe events of the target must already be included in Events
// or passed in extra.
func (p *Pipeline) Args(exe string, t bench.Target, output string, ctl *Control, extra ...string) []string {
	core := strconv.Itoa(p.Core)
	args := []string{
		orDefault(p.Taskset, "taskset"), "-c", core,
		orDefault(p.NiceBin, "nice"), "-n", strconv.Itoa(p.Nice),
		orDefault(p.Perf, "perf"), "stat",
		"-x", ";",
		"-I", strconv.FormatInt(p.Interval.Milliseconds(), 10),
		"--cpu", core,
		"-D", "-1",
	}
	if ctl != nil {
		args = append(args, "--control", "fifo:"+ctl.Ctl+","+ctl.Ack)
	}
	if events := append(append([]string{}, p.Events...), extra...); len(events) != 0 {
		args = append(args, "-e", strings.Join(events, ","))
	}
	args = append(args,
		"-o", output,
		"--",
		exe,
		"--bench",
		"--measurement-time", seconds(p.MeasurementTime),
		"--warm-up-time", seconds(p.WarmUpTime),
		"--sample-size", strconv.Itoa(p.SampleSize),
		t.Filter(),
	)
	return args
}

func seconds(d time.Duration) string {
	return strconv.FormatInt(int64(d/time.Second), 10)
}

// Output returns a fresh counter file path for the target:
// <data>/<project>/<group>/<id>_<unix micros>.txt.
func (p *Pipeline) Output(t bench.Target, now time.Time) string {
	return filepath.Join(p.DataDir, t.CleanProject(), t.CleanGroup(),
		bench.PowerFileName(t.CleanID(), now.UnixMicro()))
}

// Control is the perf stat control channel: a pair of fifos the measured
// process writes "enable"/"disable" to around the timed region.
type Control struct {
	Dir string
	Ctl string
	Ack string
}

func NewControl(tmpDir string) (*Control, error) {
	dir, err := os.MkdirTemp(tmpDir, "perf-ctl-")
	if err != nil {
		return nil, err
	}
	ctl := &Control{
		Dir: dir,
		Ctl: filepath.Join(dir, "ctl"),
		Ack: filepath.Join(dir, "ack"),
	}
	for _, fifo := range []string{ctl.Ctl, ctl.Ack} {
		if err := osutil.Mkfifo(fifo); err != nil {
			os.RemoveAll(dir)
			return nil, fmt.Errorf("failed to create control fifo: %w", err)
		}
	}
	return ctl, nil
}

// Env tells the measured process where the control channel is.
func (ctl *Control) Env() map[string]string {
	return map[string]string{
		EnvControl:    ctl.Ctl,
		EnvControlAck: ctl.Ack,
	}
}

func (ctl *Control) Close() error {
	return os.RemoveAll(ctl.Dir)
}

// Queue is a fixed random permutation of requests drained from the tail.
type Queue struct {
	items []*Request
}

// NewQueue shuffles reqs once.
func NewQueue(reqs []*Request) *Queue {
	return &Queue{items: schedule.Shuffle(reqs)}
}

func NewQueueWith(r *rand.Rand, reqs []*Request) *Queue {
	return &Queue{items: schedule.ShuffleWith(r, reqs)}
}

// NewOrderedQueue keeps enumeration order: requests run first to last.
func NewOrderedQueue(reqs []*Request) *Queue {
	items := make([]*Request, len(reqs))
	for i, req := range reqs {
		items[len(reqs)-1-i] = req
	}
	return &Queue{items: items}
}

// Pop removes and returns the last request, or nil if the queue is empty.
func (q *Queue) Pop() *Request {
	if len(q.items) == 0 {
		return nil
	}
	req := q.items[len(q.items)-1]
	q.items = q.items[:len(q.items)-1]
	return req
}

func (q *Queue) Len() int {
	return len(q.items)
}
