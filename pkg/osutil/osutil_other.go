// Copyright 2017 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

//go:build !linux

package osutil

import (
	"fmt"
	"os/exec"
	"runtime"
)

func setPdeathsig(cmd *exec.Cmd) {
}

func killPgroup(cmd *exec.Cmd) {
}

func Mkfifo(path string) error {
	return fmt.Errorf("named pipes are not supported on %v", runtime.GOOS)
}
