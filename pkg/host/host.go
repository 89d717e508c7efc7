// Copyright 2018 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package host checks that the machine is set up for counter measurements
// and describes it for the record.
package host

import (
	"fmt"
	"os/exec"
	"strings"
)

const (
	FeaturePerfEvents = iota
	FeatureUprobes
	FeatureNice
	FeatureCore
	FeatureTools
	numFeatures
)

type Feature struct {
	Name    string
	Enabled bool
	Reason  string
}

type Features [numFeatures]Feature

// Params describe what an experiment is going to need.
type Params struct {
	Core int
	Nice int
	// Tools are binaries that must be found in PATH (or be absolute paths).
	Tools []string
}

var checkFeature [numFeatures]func(params *Params) string

// Check detects which of the required features are available.
// Empty reason returned by a check means the feature is available.
func Check(params *Params) *Features {
	const unsupported = "support is not implemented on this OS"
	res := &Features{
		FeaturePerfEvents: {Name: "cpu-wide perf events", Reason: unsupported},
		FeatureUprobes:    {Name: "uprobe events", Reason: unsupported},
		FeatureNice:       {Name: "nice level", Reason: unsupported},
		FeatureCore:       {Name: "cpu core", Reason: unsupported},
		FeatureTools:      {Name: "tools", Reason: unsupported},
	}
	for n, check := range checkFeature {
		if check == nil {
			continue
		}
		if reason := check(params); reason == "" {
			res[n].Enabled = true
			res[n].Reason = "enabled"
		} else {
			res[n].Reason = reason
		}
	}
	return res
}

// Err returns an error listing all missing features, or nil.
func (features *Features) Err() error {
	var missing []string
	for _, feat := range features {
		if !feat.Enabled {
			missing = append(missing, fmt.Sprintf("%v: %v", feat.Name, feat.Reason))
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("host is not ready for measurements:\n\t%v", strings.Join(missing, "\n\t"))
}

func (features *Features) String() string {
	buf := new(strings.Builder)
	for _, feat := range features {
		fmt.Fprintf(buf, "%-22v: %v\n", feat.Name, feat.Reason)
	}
	return buf.String()
}

func init() {
	checkFeature[FeatureTools] = checkTools
}

func checkTools(params *Params) string {
	var missing []string
	for _, tool := range params.Tools {
		if _, err := exec.LookPath(tool); err != nil {
			missing = append(missing, tool)
		}
	}
	if len(missing) != 0 {
		return fmt.Sprintf("not found: %v", strings.Join(missing, " "))
	}
	return ""
}
