// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package core

import (
	"os"
	"testing"

	"github.com/prometheus/procfs"
)

func TestMappingsFromProcMaps(t *testing.T) {
	rx := &procfs.ProcMapPermissions{Read: true, Execute: true, Private: true}
	rw := &procfs.ProcMapPermissions{Read: true, Write: true, Private: true}
	ms, err := mappingsFromProcMaps([]*procfs.ProcMap{
		{StartAddr: 0x7f2c1a000000, EndAddr: 0x7f2c1a021000, Perms: rx, Pathname: "/usr/lib/jvm/lib/server/libjvm.so"},
		{StartAddr: 0x7f2c1a221000, EndAddr: 0x7f2c1a223000, Perms: rw, Offset: 0x221000, Pathname: "/usr/lib/jvm/lib/server/libjvm.so"},
		{StartAddr: 0x7f2c1b000000, EndAddr: 0x7f2c1b400000, Perms: rw},
		{StartAddr: 0x7ffd5e3c0000, EndAddr: 0x7ffd5e3e1000, Perms: rw, Pathname: "[stack]"},
	})
	if err != nil {
		t.Fatalf("mappingsFromProcMaps: %v", err)
	}
	want := []struct {
		min, max Address
		perm     string
		off      int64
		path     string
	}{
		{0x7f2c1a000000, 0x7f2c1a021000, "r-x", 0, "/usr/lib/jvm/lib/server/libjvm.so"},
		{0x7f2c1a221000, 0x7f2c1a223000, "rw-", 0x221000, "/usr/lib/jvm/lib/server/libjvm.so"},
		{0x7f2c1b000000, 0x7f2c1b400000, "rw-", 0, ""},
		{0x7ffd5e3c0000, 0x7ffd5e3e1000, "rw-", 0, "[stack]"},
	}
	if len(ms) != len(want) {
		t.Fatalf("got %d mappings, want %d", len(ms), len(want))
	}
	for i, w := range want {
		m := ms[i]
		if m.Min() != w.min || m.Max() != w.max {
			t.Errorf("mapping %d = [%s,%s), want [%s,%s)", i, m.Min(), m.Max(), w.min, w.max)
		}
		if got := m.Perm().Short(); got != w.perm {
			t.Errorf("mapping %d perm = %q, want %q", i, got, w.perm)
		}
		if got, off := m.Source(); got != w.path || off != w.off {
			t.Errorf("mapping %d source = %q+%#x, want %q+%#x", i, got, off, w.path, w.off)
		}
	}

	if _, err := mappingsFromProcMaps([]*procfs.ProcMap{{StartAddr: 0x2000, EndAddr: 0x1000}}); err == nil {
		t.Errorf("mappingsFromProcMaps accepted an inverted mapping")
	}
}

func TestProcMappingsSelf(t *testing.T) {
	ms, err := procMappings(os.Getpid())
	if err != nil {
		t.Skipf("can't read own maps: %v", err)
	}
	if len(ms) == 0 {
		t.Fatalf("no mappings for own process")
	}
	readable := 0
	for _, m := range ms {
		if m.Perm()&Read != 0 {
			readable++
		}
	}
	if readable == 0 {
		t.Errorf("no readable mappings for own process")
	}
}
