// Copyright 2016 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package log

import (
	"bytes"
	"fmt"
	"testing"
)

func TestCaching(t *testing.T) {
	l := New(0, new(bytes.Buffer))
	l.EnableCaching(4, 20)
	l.prependTime = false
	tests := []struct{ str, want string }{
		{"", ""},
		{"a", "a\n"},
		{"bb", "a\nbb\n"},
		{"ccc", "a\nbb\nccc\n"},
		{"dddd", "a\nbb\nccc\ndddd\n"},
		{"eeeee", "bb\nccc\ndddd\neeeee\n"},
		{"ffffff", "ccc\ndddd\neeeee\nffffff\n"},
		{"ggggggg", "eeeee\nffffff\nggggggg\n"},
		{"hhhhhhhh", "ggggggg\nhhhhhhhh\n"},
		{"jjjjjjjjjjjjjjjjjjjjjjjjj", "jjjjjjjjjjjjjjjjjjjjjjjjj\n"},
	}
	for _, test := range tests {
		l.Logf(1, "%s", test.str)
		out := l.CachedOutput()
		if out != test.want {
			t.Fatalf("wrote: %v\nwant: %v\ngot: %v", test.str, test.want, out)
		}
	}
}

func TestVerbosity(t *testing.T) {
	buf := new(bytes.Buffer)
	l := New(1, buf)
	l.Logf(0, "zero")
	l.Logf(1, "one")
	l.Logf(2, "two")
	fmt.Fprintf(l.Writer(3), "three")
	out := buf.String()
	for _, s := range []string{"zero", "one"} {
		if !bytes.Contains([]byte(out), []byte(s)) {
			t.Errorf("output misses %q:\n%v", s, out)
		}
	}
	for _, s := range []string{"two", "three"} {
		if bytes.Contains([]byte(out), []byte(s)) {
			t.Errorf("output contains %q:\n%v", s, out)
		}
	}
}

func TestDiscard(t *testing.T) {
	if Discard.V(0) {
		t.Fatalf("discard logger is verbose")
	}
	Discard.Logf(0, "nothing")
}
