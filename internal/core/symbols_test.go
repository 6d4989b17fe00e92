// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package core

import "testing"

func TestNoteBase(t *testing.T) {
	var o objFile
	o.noteBase(0x7000, 0x1000) // not offset 0
	if o.base != 0 {
		t.Errorf("base = %s after a non-zero offset, want 0", o.base)
	}
	o.noteBase(0x5000, 0)
	o.noteBase(0x9000, 0)
	if o.base != 0x5000 {
		t.Errorf("base = %s, want 0x5000", o.base)
	}
	o.noteBase(0x4000, 0)
	if o.base != 0x4000 {
		t.Errorf("base = %s, want 0x4000", o.base)
	}
}

func TestReadSymbolsNoFiles(t *testing.T) {
	syms, err := readSymbols(map[string]*objFile{})
	if err != nil {
		t.Fatalf("readSymbols: %v", err)
	}
	if len(syms) != 0 {
		t.Errorf("got %d symbols from no files", len(syms))
	}
}
