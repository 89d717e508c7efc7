// Copyright 2016 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package log provides leveled logging similar to the standard log package:
//   - verbosity levels
//   - ability to disable all output
//   - ability to cache recent output in memory
//
// Loggers are plain values passed to the components that use them,
// there is no process-wide verbosity setting.
package log

import (
	"bytes"
	"fmt"
	"io"
	golog "log"
	"os"
	"sync"
	"time"
)

type Logger struct {
	verbosity   int
	out         *golog.Logger
	mu          sync.Mutex
	cacheMem    int
	cacheMaxMem int
	cachePos    int
	cache       []string
	prependTime bool
}

// New returns a logger that prints messages with level <= verbosity to w.
func New(verbosity int, w io.Writer) *Logger {
	return &Logger{
		verbosity:   verbosity,
		out:         golog.New(w, "", golog.LstdFlags),
		prependTime: true,
	}
}

// Stderr returns a logger that writes to os.Stderr.
func Stderr(verbosity int) *Logger {
	return New(verbosity, os.Stderr)
}

// Discard is a logger that drops everything. Handy for tests.
var Discard = New(-1, io.Discard)

// V reports whether messages of level v are printed.
func (l *Logger) V(v int) bool {
	return v <= l.verbosity
}

// EnableCaching enables in memory caching of log output.
// Caches up to maxLines, but no more than maxMem bytes.
// Cached output can later be queried with CachedOutput.
func (l *Logger) EnableCaching(maxLines, maxMem int) {
	if maxLines < 1 || maxMem < 1 {
		panic("invalid maxLines/maxMem")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cache != nil {
		panic("log caching is already enabled")
	}
	l.cacheMaxMem = maxMem
	l.cache = make([]string, maxLines)
}

// CachedOutput retrieves cached log output.
func (l *Logger) CachedOutput() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	buf := new(bytes.Buffer)
	for i := range l.cache {
		pos := (l.cachePos + i) % len(l.cache)
		if l.cache[pos] == "" {
			continue
		}
		buf.WriteString(l.cache[pos])
		buf.WriteByte('\n')
	}
	return buf.String()
}

func (l *Logger) Logf(v int, msg string, args ...any) {
	l.mu.Lock()
	if l.cache != nil && v <= 1 {
		l.cacheMem -= len(l.cache[l.cachePos])
		timeStr := ""
		if l.prependTime {
			timeStr = time.Now().Format("2006/01/02 15:04:05 ")
		}
		l.cache[l.cachePos] = timeStr + fmt.Sprintf(msg, args...)
		l.cacheMem += len(l.cache[l.cachePos])
		l.cachePos++
		if l.cachePos == len(l.cache) {
			l.cachePos = 0
		}
		for i := 0; i < len(l.cache)-1 && l.cacheMem > l.cacheMaxMem; i++ {
			pos := (l.cachePos + i) % len(l.cache)
			l.cacheMem -= len(l.cache[pos])
			l.cache[pos] = ""
		}
		if l.cacheMem < 0 {
			panic("log cache size underflow")
		}
	}
	l.mu.Unlock()

	if l.V(v) {
		l.out.Printf(msg, args...)
	}
}

// Warnf logs at level 0 with a WARNING prefix.
func (l *Logger) Warnf(msg string, args ...any) {
	l.Logf(0, "WARNING: "+msg, args...)
}

// Writer returns an io.Writer that logs everything written to it at level v.
func (l *Logger) Writer(v int) io.Writer {
	return verboseWriter{l, v}
}

type verboseWriter struct {
	l *Logger
	v int
}

func (w verboseWriter) Write(data []byte) (int, error) {
	w.l.Logf(w.v, "%s", data)
	return len(data), nil
}
