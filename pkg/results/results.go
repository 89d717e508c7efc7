// Copyright 2025 probebench project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package results persists statistics as headerless CSV, one file per benchmark group:
// <dir>/<project>/<group>.csv.
package results

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/energybench/probebench/pkg/osutil"
	"github.com/energybench/probebench/pkg/stats"
)

type Writer struct {
	dir   string
	mu    sync.Mutex
	files map[string]*output
}

type output struct {
	f *os.File
	w *csv.Writer
}

func NewWriter(dir string) *Writer {
	return &Writer{
		dir:   dir,
		files: make(map[string]*output),
	}
}

// Path returns the file that holds statistics of the project/group.
func (w *Writer) Path(project, group string) string {
	return filepath.Join(w.dir, project, group+".csv")
}

// Write appends st to its group file. Existing rows are preserved.
func (w *Writer) Write(st *stats.Statistic) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	path := w.Path(st.Project, st.Group)
	out := w.files[path]
	if out == nil {
		if err := osutil.MkdirAll(filepath.Dir(path)); err != nil {
			return err
		}
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, osutil.DefaultFilePerm)
		if err != nil {
			return err
		}
		out = &output{f, csv.NewWriter(f)}
		w.files[path] = out
	}
	return out.w.Write(st.Record())
}

// Close flushes and closes all files.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var errs []error
	for path, out := range w.files {
		out.w.Flush()
		if err := out.w.Error(); err != nil {
			errs = append(errs, fmt.Errorf("%v: %w", path, err))
		}
		if err := out.f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%v: %w", path, err))
		}
		delete(w.files, path)
	}
	return errors.Join(errs...)
}

// ReadAll reads all statistics from a group file.
func ReadAll(path string) ([]*stats.Statistic, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

func Read(r io.Reader) ([]*stats.Statistic, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	var res []*stats.Statistic
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return res, nil
		}
		if err != nil {
			return nil, err
		}
		st, err := stats.ParseRecord(rec)
		if err != nil {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("line %v: %w", line, err)
		}
		res = append(res, st)
	}
}

// ReadDir reads all group files of a results directory in project/group order.
func ReadDir(dir string) ([]*stats.Statistic, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*", "*.csv"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	var res []*stats.Statistic
	for _, file := range files {
		sts, err := ReadAll(file)
		if err != nil {
			return nil, fmt.Errorf("%v: %w", file, err)
		}
		res = append(res, sts...)
	}
	return res, nil
}

// Merge copies statistics of several results directories (e.g. of experiments
// on different machines) into w. Returns the number of copied statistics.
func Merge(w *Writer, dirs ...string) (int, error) {
	n := 0
	for _, dir := range dirs {
		sts, err := ReadDir(dir)
		if err != nil {
			return n, err
		}
		for _, st := range sts {
			if err := w.Write(st); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}
