// Copyright 2025 probebench project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package bench

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Project is the benchmark metadata of one target project,
// as produced by benchmark discovery.
type Project struct {
	Name       string       `json:"name"`
	BenchFiles []*BenchFile `json:"bench_files"`
}

// BenchFile is one benchmark group (a bench target of the build tool).
type BenchFile struct {
	Project  string   `json:"project"`
	Name     string   `json:"name"`
	Source   string   `json:"source"`
	Features []string `json:"features"`
	Benches  []string `json:"benches"`
}

// Workdir returns the directory of the group source relative to the project root.
func (bf *BenchFile) Workdir() string {
	return filepath.Dir(bf.Source)
}

func (bf *BenchFile) Targets() []*Target {
	var res []*Target
	for _, id := range bf.Benches {
		res = append(res, &Target{
			Project:  bf.Project,
			Group:    bf.Name,
			Path:     bf.Workdir(),
			ID:       id,
			Features: bf.Features,
		})
	}
	return res
}

// LoadProject reads <dir>/<name>.json.
func LoadProject(dir, name string) (*Project, error) {
	data, err := os.ReadFile(filepath.Join(dir, name+".json"))
	if err != nil {
		return nil, fmt.Errorf("failed to read project %v: %w", name, err)
	}
	p := new(Project)
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to parse project %v: %w", name, err)
	}
	if p.Name == "" {
		p.Name = name
	}
	for _, bf := range p.BenchFiles {
		if bf.Project == "" {
			bf.Project = p.Name
		}
	}
	return p, nil
}

// TargetProject is one row of the target manifest.
type TargetProject struct {
	Name    string
	RepoURL string
	RepoTag string
}

// ReadManifest reads the headerless name,repo_url,repo_tag manifest.
func ReadManifest(filename string) ([]TargetProject, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseManifest(f)
}

func ParseManifest(r io.Reader) ([]TargetProject, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 3
	reader.TrimLeadingSpace = true
	reader.Comment = '#'
	var res []TargetProject
	var errs []error
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			errs = append(errs, err)
			if errors.Is(err, csv.ErrFieldCount) {
				continue
			}
			break
		}
		res = append(res, TargetProject{Name: rec[0], RepoURL: rec[1], RepoTag: rec[2]})
	}
	return res, errors.Join(errs...)
}
