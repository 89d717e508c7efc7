// Copyright 2025 probebench project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package perfstat parses interval output of "perf stat -x ; -I ms".
package perfstat

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Uncounted replaces the sentinels perf prints instead of a value.
const Uncounted = "-1"

// Normalize rewrites a locale decimal comma or an uncounted sentinel
// in one numeric field. Event names are never normalized: PMU events
// such as cpu/event=0x3c,umask=0x0/ contain commas.
func Normalize(field string) string {
	field = strings.TrimSpace(field)
	switch field {
	case "<not counted>", "<not supported>":
		return Uncounted
	}
	return strings.Replace(field, ",", ".", 1)
}

// SampleRow is one interval reading of one event.
type SampleRow struct {
	Event string
	Value float64
	Unit  string
	// Duration is the interval timestamp since the start of counting.
	Duration time.Duration
	// Active is the fraction of the interval the counter was scheduled (0..1).
	Active float64
}

// Counted returns false for readings perf could not take.
func (row *SampleRow) Counted() bool {
	return row.Value >= 0
}

// Parse parses raw perf stat output.
// Rows are time;value;unit;event;runtime;pct;metric;metric_unit, trailing columns may be missing.
func Parse(r io.Reader) ([]SampleRow, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	cr := csv.NewReader(strings.NewReader(string(data)))
	cr.Comma = ';'
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true
	var rows []SampleRow
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line, _ := cr.FieldPos(0)
		row, err := parseRow(rec)
		if err != nil {
			return nil, fmt.Errorf("line %v: %w", line, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseRow(rec []string) (SampleRow, error) {
	for i := range rec {
		rec[i] = strings.TrimSpace(rec[i])
	}
	if len(rec) < 4 {
		return SampleRow{}, fmt.Errorf("want at least 4 fields, got %v", len(rec))
	}
	ts, err := strconv.ParseFloat(Normalize(rec[0]), 64)
	if err != nil {
		return SampleRow{}, fmt.Errorf("bad timestamp %q", rec[0])
	}
	val, err := strconv.ParseFloat(Normalize(rec[1]), 64)
	if err != nil {
		return SampleRow{}, fmt.Errorf("bad value %q", rec[1])
	}
	if rec[3] == "" {
		return SampleRow{}, fmt.Errorf("empty event name")
	}
	row := SampleRow{
		Event:    rec[3],
		Value:    val,
		Unit:     rec[2],
		Duration: time.Duration(ts * float64(time.Second)),
		Active:   1,
	}
	if len(rec) > 5 && rec[5] != "" {
		pct, err := strconv.ParseFloat(Normalize(rec[5]), 64)
		if err != nil {
			return SampleRow{}, fmt.Errorf("bad active percentage %q", rec[5])
		}
		row.Active = pct / 100
	}
	return row, nil
}

// Group collects counted values per event name in input order.
func Group(rows []SampleRow) map[string][]float64 {
	res := make(map[string][]float64)
	for i := range rows {
		row := &rows[i]
		if !row.Counted() {
			continue
		}
		res[row.Event] = append(res[row.Event], row.Value)
	}
	return res
}

// ProbePrefix is the prefix of tracepoint events created by perf probe.
const ProbePrefix = "probe_"

// Instrumented reports whether at least one probe event fired.
func Instrumented(groups map[string][]float64) bool {
	for event, vals := range groups {
		if !strings.HasPrefix(event, ProbePrefix) {
			continue
		}
		for _, v := range vals {
			if v != 0 {
				return true
			}
		}
	}
	return false
}
