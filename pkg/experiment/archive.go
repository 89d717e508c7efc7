// Copyright 2025 probebench project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package experiment

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/energybench/probebench/pkg/osutil"
	"github.com/ulikunitz/xz"
)

// reportsDir is where the harness keeps its own reports, relative to the project root.
const reportsDir = "target/criterion"

// archive moves harness reports of the pass out of the project checkouts
// into <results>/reports/<id>/<project>.tar.xz, so that the next pass
// starts without a harness baseline.
func (e *Experiment) archive(id string, projects []string) error {
	for _, name := range projects {
		dir := filepath.Join(e.cfg.ProjectDir(name), filepath.FromSlash(reportsDir))
		if !osutil.IsExist(dir) {
			continue
		}
		file := filepath.Join(e.cfg.Results, "reports", id, name+".tar.xz")
		if err := archiveDir(dir, file); err != nil {
			return fmt.Errorf("failed to archive reports of %v: %w", name, err)
		}
		if err := os.RemoveAll(dir); err != nil {
			return err
		}
		e.logger.Logf(1, "archived %v", file)
	}
	return nil
}

func archiveDir(dir, file string) error {
	if err := osutil.MkdirAll(filepath.Dir(file)); err != nil {
		return err
	}
	f, err := os.Create(file)
	if err != nil {
		return err
	}
	defer f.Close()
	xzw, err := xz.NewWriter(f)
	if err != nil {
		return err
	}
	if err := osutil.TarDirectory(dir, xzw); err != nil {
		return err
	}
	if err := xzw.Close(); err != nil {
		return err
	}
	return f.Close()
}
