// Copyright 2015 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package host

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/energybench/probebench/pkg/osutil"
	"golang.org/x/sys/unix"
)

func init() {
	checkFeature[FeaturePerfEvents] = checkPerfEvents
	checkFeature[FeatureUprobes] = checkUprobes
	checkFeature[FeatureNice] = checkNice
	checkFeature[FeatureCore] = checkCore
}

// Overridden in tests.
var (
	paranoidFile = "/proc/sys/kernel/perf_event_paranoid"
	tracingDirs  = []string{"/sys/kernel/tracing", "/sys/kernel/debug/tracing"}
	geteuid      = os.Geteuid
)

func checkPerfEvents(params *Params) string {
	if geteuid() == 0 {
		return ""
	}
	data, err := os.ReadFile(paranoidFile)
	if err != nil {
		return err.Error()
	}
	level, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return fmt.Sprintf("bad %v contents: %v", paranoidFile, err)
	}
	// Counting on a cpu (perf stat --cpu) needs level 0 or lower.
	if level > 0 {
		return fmt.Sprintf("kernel.perf_event_paranoid is %v, need 0 or lower"+
			" (sysctl -w kernel.perf_event_paranoid=-1)", level)
	}
	return ""
}

func checkUprobes(params *Params) string {
	for _, dir := range tracingDirs {
		events := filepath.Join(dir, "uprobe_events")
		if !osutil.IsExist(events) {
			continue
		}
		if err := unix.Access(events, unix.W_OK); err != nil {
			return fmt.Sprintf("%v is not writable: %v", events, err)
		}
		return ""
	}
	return "uprobe_events is not found, tracefs is not mounted or CONFIG_UPROBE_EVENTS is not enabled"
}

func checkNice(params *Params) string {
	if params.Nice >= 0 || geteuid() == 0 {
		return ""
	}
	var rl unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NICE, &rl); err != nil {
		return fmt.Sprintf("getrlimit(RLIMIT_NICE) failed: %v", err)
	}
	return niceReason(params.Nice, rl.Cur)
}

// niceReason checks nice against RLIMIT_NICE, which is 20 - lowest allowed nice value.
func niceReason(nice int, limit uint64) string {
	if limit > 40 {
		limit = 40
	}
	lowest := 20 - int(limit)
	if nice < lowest {
		return fmt.Sprintf("nice %v is not allowed, lowest is %v (raise the nice limit in limits.conf)",
			nice, lowest)
	}
	return ""
}

func checkCore(params *Params) string {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return fmt.Sprintf("sched_getaffinity failed: %v", err)
	}
	if params.Core < 0 || !set.IsSet(params.Core) {
		return fmt.Sprintf("core %v is not in the affinity mask (%v cores)", params.Core, set.Count())
	}
	return ""
}
