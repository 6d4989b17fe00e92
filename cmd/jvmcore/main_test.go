// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-kit/log"
	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang.org/x/jvmcore/internal/config"
	"golang.org/x/jvmcore/internal/core"
	"golang.org/x/jvmcore/internal/coretest"
	"golang.org/x/jvmcore/internal/hotspot"
	"golang.org/x/jvmcore/internal/vmstructs"
)

// A fakeTarget is an in-memory VM with a parallel scavenge heap.
type fakeTarget struct {
	*coretest.Memory
	syms        map[string]core.Address
	stops, cont int
}

func (f *fakeTarget) Arch() string                              { return "amd64" }
func (f *fakeTarget) Mappings() []*core.Mapping                 { return nil }
func (f *fakeTarget) Symbols() (map[string]core.Address, error) { return f.syms, nil }
func (f *fakeTarget) Stop() error                               { f.stops++; return nil }
func (f *fakeTarget) Cont() error                               { f.cont++; return nil }

func (f *fakeTarget) Close() error {
	f.Memory.Close()
	return nil
}

const (
	heapAddr     core.Address = 0x1000
	youngAddr    core.Address = 0x2000
	oldAddr      core.Address = 0x3000
	edenAddr     core.Address = 0x4000
	fromAddr     core.Address = 0x4100
	toAddr       core.Address = 0x4200
	objectsAddr  core.Address = 0x4300
	universeHeap core.Address = 0x5000
)

func testSchema() ([]vmstructs.Type, []vmstructs.Field) {
	types := []vmstructs.Type{
		{Name: "CollectedHeap", Size: 0x10},
		{Name: hotspot.TypeHeap, Superclass: "CollectedHeap", Size: 0x20},
		{Name: hotspot.TypeYoungGen, Size: 0x28},
		{Name: hotspot.TypeOldGen, Size: 0x18},
		{Name: hotspot.TypeSpace, Size: 0x28},
		{Name: hotspot.TypeUniverse},
	}
	fields := []vmstructs.Field{
		{Type: hotspot.TypeHeap, Name: hotspot.FieldYoungGen, TypeString: "PSYoungGen*", Offset: 0x10},
		{Type: hotspot.TypeHeap, Name: hotspot.FieldOldGen, TypeString: "PSOldGen*", Offset: 0x18},
		{Type: hotspot.TypeYoungGen, Name: hotspot.FieldEdenSpace, TypeString: "MutableSpace*", Offset: 0x10},
		{Type: hotspot.TypeYoungGen, Name: hotspot.FieldFromSpace, TypeString: "MutableSpace*", Offset: 0x18},
		{Type: hotspot.TypeYoungGen, Name: hotspot.FieldToSpace, TypeString: "MutableSpace*", Offset: 0x20},
		{Type: hotspot.TypeOldGen, Name: hotspot.FieldObjectSpace, TypeString: "MutableSpace*", Offset: 0x10},
		{Type: hotspot.TypeSpace, Name: hotspot.FieldBottom, TypeString: "HeapWord*", Offset: 0x10},
		{Type: hotspot.TypeSpace, Name: hotspot.FieldEnd, TypeString: "HeapWord*", Offset: 0x18},
		{Type: hotspot.TypeSpace, Name: hotspot.FieldTop, TypeString: "HeapWord*", Offset: 0x20},
		{Type: hotspot.TypeUniverse, Name: hotspot.FieldCollectedHeap, TypeString: "CollectedHeap*", Static: true, Address: universeHeap},
	}
	return types, fields
}

// writeSchema writes the test layouts to a schema file.
func writeSchema(t *testing.T) string {
	t.Helper()
	types, fields := testSchema()
	db, err := vmstructs.New(types, fields, nil)
	require.NoError(t, err)
	data, err := db.Marshal()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "schema.yaml")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func newFakeTarget() *fakeTarget {
	mem := coretest.NewMemory(8)
	for _, a := range []core.Address{heapAddr, youngAddr, oldAddr, edenAddr, fromAddr, toAddr, objectsAddr} {
		mem.Write(a, make([]byte, 0x40))
	}
	mem.WritePtr(universeHeap, heapAddr)
	mem.WritePtr(heapAddr+0x10, youngAddr)
	mem.WritePtr(heapAddr+0x18, oldAddr)
	mem.WritePtr(youngAddr+0x10, edenAddr)
	mem.WritePtr(youngAddr+0x18, fromAddr)
	mem.WritePtr(youngAddr+0x20, toAddr)
	mem.WritePtr(oldAddr+0x10, objectsAddr)
	space := func(a, bottom, top, end core.Address) {
		mem.WritePtr(a+0x10, bottom)
		mem.WritePtr(a+0x18, end)
		mem.WritePtr(a+0x20, top)
	}
	space(edenAddr, 0x100000, 0x180000, 0x200000)
	space(fromAddr, 0x200000, 0x200000, 0x280000)
	space(toAddr, 0x280000, 0x280000, 0x300000)
	space(objectsAddr, 0x1000000, 0x1400000, 0x2000000)
	return &fakeTarget{Memory: mem}
}

func newTestSession(t *testing.T, cfg *config.Config, logger log.Logger) (*session, *fakeTarget) {
	t.Helper()
	if cfg.Schema.File == "" {
		cfg.Schema.File = writeSchema(t)
	}
	ft := newFakeTarget()
	s := newSession(cfg, logger)
	s.setTarget(ft)
	return s, ft
}

func runCommand(t *testing.T, s *session, fn func(*session, *bytes.Buffer) error) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, fn(s, &buf))
	return buf.String()
}

func TestUniverse(t *testing.T) {
	s, _ := newTestSession(t, &config.Config{}, log.NewNopLogger())
	out := runCommand(t, s, func(s *session, w *bytes.Buffer) error { return runUniverse(s, w, nil) })
	assert.Equal(t, "Heap Parameters:\n"+
		"ParallelScavengeHeap [ "+
		"PSYoungGen [ eden = [0x100000,0x200000) space capacity = 1048576, 50.0% used, "+
		"from = [0x200000,0x280000) space capacity = 524288, 0.0% used, "+
		"to = [0x280000,0x300000) space capacity = 524288, 0.0% used ] "+
		"PSOldGen [ [0x1000000,0x2000000) space capacity = 16777216, 25.0% used ] ]\n", out)
}

func TestOverview(t *testing.T) {
	s, _ := newTestSession(t, &config.Config{}, log.NewNopLogger())
	out := runCommand(t, s, func(s *session, w *bytes.Buffer) error { return runOverview(s, w, nil) })
	assert.Contains(t, out, "amd64")
	assert.Contains(t, out, "ParallelScavengeHeap 0x1000")
	// eden 512K + old 4M; capacity eden 1M + from 512K + old 16M.
	assert.Contains(t, out, "4.5 MiB")
	assert.Contains(t, out, "18 MiB")
}

func TestSpaces(t *testing.T) {
	s, _ := newTestSession(t, &config.Config{}, log.NewNopLogger())
	out := runCommand(t, s, func(s *session, w *bytes.Buffer) error { return runSpaces(s, w, nil) })
	for _, want := range []string{"eden", "from", "to", "objects", "0x180000", "512 KiB", "16 MiB", "false"} {
		assert.Contains(t, out, want)
	}
}

func TestRegions(t *testing.T) {
	s, _ := newTestSession(t, &config.Config{}, log.NewNopLogger())
	out := runCommand(t, s, func(s *session, w *bytes.Buffer) error { return runRegions(s, w, nil) })
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, []string{"space", "region", "size"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"eden", "[0x100000,0x180000)", "524288"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"from", "[0x200000,0x200000)", "0"}, strings.Fields(lines[2]))
	assert.Equal(t, []string{"old", "[0x1000000,0x1400000)", "4194304"}, strings.Fields(lines[3]))
}

func TestRegionsTornBounds(t *testing.T) {
	s, ft := newTestSession(t, &config.Config{}, log.NewNopLogger())
	// eden's top below its bottom, as seen mid-update.
	ft.WritePtr(edenAddr+0x20, 0x80000)
	err := runRegions(s, &bytes.Buffer{}, nil)
	assert.True(t, errors.Is(err, hotspot.ErrBadRegion), "got %v", err)
	assert.Equal(t, exitTarget, exitCode(err))
}

func TestContains(t *testing.T) {
	s, _ := newTestSession(t, &config.Config{}, log.NewNopLogger())
	out := runCommand(t, s, func(s *session, w *bytes.Buffer) error {
		return runContains(s, w, []string{"0x100010", "290000", "0x1100000", "0x10"})
	})
	assert.Equal(t, "0x100010: heap (young eden)\n"+
		"0x290000: reserved (young to, not live)\n"+
		"0x1100000: heap (old objects)\n"+
		"0x10: not in heap\n", out)

	err := runContains(s, &bytes.Buffer{}, []string{"zz"})
	assert.Equal(t, exitUsage, exitCode(err))
}

func TestRead(t *testing.T) {
	s, _ := newTestSession(t, &config.Config{}, log.NewNopLogger())
	out := runCommand(t, s, func(s *session, w *bytes.Buffer) error {
		return runRead(s, w, []string{"0x4010", "8"})
	})
	assert.Equal(t, "4010: 00 00 10 00 00 00 00 00\n", out)

	err := runRead(s, &bytes.Buffer{}, []string{"0x9000000", "8"})
	assert.True(t, errors.Is(err, core.ErrInvalidAddress), "got %v", err)
	assert.Equal(t, exitTarget, exitCode(err))

	err = runRead(s, &bytes.Buffer{}, []string{"0x4010", "-1"})
	assert.Equal(t, exitUsage, exitCode(err))

	err = runRead(s, &bytes.Buffer{}, []string{"0x1000", "99999999999"})
	assert.Equal(t, exitUsage, exitCode(err))
}

func TestHexDump(t *testing.T) {
	var buf bytes.Buffer
	b := make([]byte, 18)
	for i := range b {
		b[i] = byte(i)
	}
	hexDump(&buf, 0x100, b)
	assert.Equal(t,
		"100: 00 01 02 03 04 05 06 07 08 09 0a 0b 0c 0d 0e 0f\n"+
			"110: 10 11\n", buf.String())
}

func TestTypesAndSchemaDump(t *testing.T) {
	s, _ := newTestSession(t, &config.Config{}, log.NewNopLogger())
	out := runCommand(t, s, func(s *session, w *bytes.Buffer) error { return runTypes(s, w, nil) })
	assert.Contains(t, out, hotspot.TypeSpace)
	assert.Contains(t, out, "CollectedHeap")

	out = runCommand(t, s, func(s *session, w *bytes.Buffer) error {
		return runTypes(s, w, []string{hotspot.TypeUniverse})
	})
	assert.Contains(t, out, hotspot.FieldCollectedHeap)
	assert.Contains(t, out, "static 0x5000")

	err := runTypes(s, &bytes.Buffer{}, []string{"G1CollectedHeap"})
	assert.Equal(t, exitVersionSkew, exitCode(err))

	path := filepath.Join(t.TempDir(), "dump.yaml")
	out = runCommand(t, s, func(s *session, w *bytes.Buffer) error {
		return runSchemaDump(s, w, []string{path})
	})
	assert.Contains(t, out, "wrote 6 types")
	db, err := vmstructs.Load(path)
	require.NoError(t, err)
	off, err := db.FieldOffset(hotspot.TypeSpace, hotspot.FieldTop)
	require.NoError(t, err)
	assert.Equal(t, int64(0x20), off)
}

func TestHeapAddressOverride(t *testing.T) {
	s, ft := newTestSession(t, &config.Config{Target: config.TargetConfig{Heap: "0x1000"}}, log.NewNopLogger())
	// Universe is not consulted.
	ft.WritePtr(universeHeap, 0)
	h, err := s.Heap()
	require.NoError(t, err)
	assert.Equal(t, heapAddr, h.Addr())

	s, ft = newTestSession(t, &config.Config{}, log.NewNopLogger())
	ft.WritePtr(universeHeap, 0)
	_, err = s.Heap()
	assert.True(t, errors.Is(err, hotspot.ErrNoHeap), "got %v", err)
	assert.Equal(t, exitTarget, exitCode(err))
}

func TestHeapWrongDynamicType(t *testing.T) {
	s, ft := newTestSession(t, &config.Config{}, log.NewNopLogger())
	ft.syms = map[string]core.Address{hotspot.VtableSymbol(hotspot.TypeHeap): 0x9000}
	_, err := s.Heap()
	assert.True(t, errors.Is(err, hotspot.ErrWrongType), "got %v", err)
	assert.Equal(t, exitVersionSkew, exitCode(err))

	s, ft = newTestSession(t, &config.Config{}, log.NewNopLogger())
	ft.syms = map[string]core.Address{hotspot.VtableSymbol(hotspot.TypeHeap): 0x9000}
	ft.WritePtr(heapAddr, 0x9010)
	_, err = s.Heap()
	assert.NoError(t, err)
}

func TestPause(t *testing.T) {
	s, ft := newTestSession(t, &config.Config{Target: config.TargetConfig{Pause: true}}, log.NewNopLogger())
	resume, err := s.pause()
	require.NoError(t, err)
	assert.Equal(t, 1, ft.stops)
	assert.Equal(t, 0, ft.cont)
	resume()
	assert.Equal(t, 1, ft.cont)

	s, ft = newTestSession(t, &config.Config{}, log.NewNopLogger())
	resume, err = s.pause()
	require.NoError(t, err)
	resume()
	assert.Zero(t, ft.stops)
	assert.Zero(t, ft.cont)
}

func TestStats(t *testing.T) {
	var logs bytes.Buffer
	s, _ := newTestSession(t, &config.Config{Stats: true}, log.NewLogfmtLogger(&logs))
	runCommand(t, s, func(s *session, w *bytes.Buffer) error { return runUniverse(s, w, nil) })
	s.logStats()
	assert.Contains(t, logs.String(), "metric=jvmcore_target_reads_total")
	assert.Contains(t, logs.String(), `labels="op=bytes,result=ok"`)
	assert.Contains(t, logs.String(), "metric=jvmcore_target_read_bytes_total")
}

func TestTargetGone(t *testing.T) {
	s, ft := newTestSession(t, &config.Config{}, log.NewNopLogger())
	require.NoError(t, ft.Close())
	err := runUniverse(s, &bytes.Buffer{}, nil)
	assert.True(t, errors.Is(err, core.ErrTargetUnavailable), "got %v", err)
	assert.Equal(t, exitTarget, exitCode(err))
}

func TestNoTarget(t *testing.T) {
	s := newSession(&config.Config{}, log.NewNopLogger())
	err := runUniverse(s, &bytes.Buffer{}, nil)
	assert.Equal(t, exitUsage, exitCode(err))
}

func TestExitCode(t *testing.T) {
	for _, tc := range []struct {
		err  error
		want int
	}{
		{nil, 0},
		{errors.New("boom"), exitGeneric},
		{usageErrorf("bad"), exitUsage},
		{&vmstructs.LookupError{Type: "T", Err: vmstructs.ErrUnknownType}, exitVersionSkew},
		{pkgerrors.Wrap(&vmstructs.LookupError{Type: "T", Field: "f", Err: vmstructs.ErrUnknownField}, "reading"), exitVersionSkew},
		{vmstructs.ErrNoIntrospection, exitVersionSkew},
		{&core.ReadError{Addr: 0x10, Len: 8, Err: core.ErrInvalidAddress}, exitTarget},
		{fmt.Errorf("read: %w", core.ErrTargetUnavailable), exitTarget},
		{pkgerrors.Wrap(pkgerrors.Wrapf(hotspot.ErrBadRegion, "[0x30,0x10)"), "eden space"), exitTarget},
	} {
		assert.Equal(t, tc.want, exitCode(tc.err), "exitCode(%v)", tc.err)
	}
}

func TestRunUsage(t *testing.T) {
	chdir(t, t.TempDir())
	for _, args := range [][]string{
		{"frobnicate"},
		{"--no-such-flag", "universe"},
		{"read"},
		{"contains"},
		{"universe"}, // no target
		{"read", "0x1000", "99999999999"},
	} {
		var stdout, stderr bytes.Buffer
		code := run(args, &stdout, &stderr)
		assert.Equal(t, exitUsage, code, "run(%q): %s", args, stderr.String())
		assert.Contains(t, stderr.String(), "jvmcore: ")
	}
}

func TestRunTypesFromSchema(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("JVMCORE_SCHEMA_FILE", writeSchema(t))

	var stdout, stderr bytes.Buffer
	code := run([]string{"types", hotspot.TypeSpace}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	for _, f := range []string{hotspot.FieldBottom, hotspot.FieldTop, hotspot.FieldEnd} {
		assert.Contains(t, stdout.String(), f)
	}
}

// chdir changes the working directory for the duration of the test.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(old) })
}
