// Copyright 2020 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package host

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

func init() {
	machineInfoFuncs = []machineInfoFunc{
		{"CPU Info", readCPUInfo},
		{"Frequency Scaling", readGovernors},
		{"MemInfo", readMemInfo},
		{"Kernel", readKernel},
	}
}

func readCPUInfo(buffer *bytes.Buffer) error {
	file, err := os.Open("/proc/cpuinfo")
	if err != nil {
		return err
	}
	defer file.Close()
	scanCPUInfo(buffer, bufio.NewScanner(file))
	return nil
}

// scanCPUInfo folds per-processor blocks: a key with the same value on all
// processors is printed once.
func scanCPUInfo(buffer *bytes.Buffer, scanner *bufio.Scanner) {
	type keyValues struct {
		key    string
		values []string
	}
	var info []keyValues
	keyIndices := make(map[string]int)
	for scanner.Scan() {
		key, val, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)
		if idx, ok := keyIndices[key]; ok {
			info[idx].values = append(info[idx].values, val)
			continue
		}
		keyIndices[key] = len(info)
		info = append(info, keyValues{key, []string{val}})
	}
	for _, kv := range info {
		vals := kv.values
		if allEqual(vals) {
			vals = vals[:1]
		}
		fmt.Fprintf(buffer, "%-20s: %s\n", kv.key, strings.Join(vals, ", "))
	}
}

func allEqual(slice []string) bool {
	for i := 1; i < len(slice); i++ {
		if slice[i] != slice[0] {
			return false
		}
	}
	return true
}

func readGovernors(buffer *bytes.Buffer) error {
	files, err := filepath.Glob("/sys/devices/system/cpu/cpu[0-9]*/cpufreq/scaling_governor")
	if err != nil {
		return err
	}
	if len(files) == 0 {
		buffer.WriteString("no cpufreq\n")
		return nil
	}
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return err
		}
		cpu := filepath.Base(filepath.Dir(filepath.Dir(file)))
		fmt.Fprintf(buffer, "%-20s: %s\n", cpu, bytes.TrimSpace(data))
	}
	return nil
}

func readMemInfo(buffer *bytes.Buffer) error {
	file, err := os.Open("/proc/meminfo")
	if err != nil {
		return err
	}
	defer file.Close()
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		buffer.WriteString(scanner.Text())
		buffer.WriteByte('\n')
	}
	return scanner.Err()
}

func readKernel(buffer *bytes.Buffer) error {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return err
	}
	fmt.Fprintf(buffer, "%-20s: %s\n", "release", unix.ByteSliceToString(uts.Release[:]))
	fmt.Fprintf(buffer, "%-20s: %s\n", "version", unix.ByteSliceToString(uts.Version[:]))
	fmt.Fprintf(buffer, "%-20s: %s\n", "machine", unix.ByteSliceToString(uts.Machine[:]))
	return nil
}
