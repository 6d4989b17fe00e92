// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hotspot

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"golang.org/x/jvmcore/internal/core"
	"golang.org/x/jvmcore/internal/coretest"
	"golang.org/x/jvmcore/internal/vmstructs"
)

// Where the test objects live in the fake target.
const (
	heapAddr     core.Address = 0x7000_1000
	youngAddr    core.Address = 0x7000_2000
	oldAddr      core.Address = 0x7000_3000
	edenAddr     core.Address = 0x7000_4000
	fromAddr     core.Address = 0x7000_4100
	toAddr       core.Address = 0x7000_4200
	objectsAddr  core.Address = 0x7000_4300
	universeHeap core.Address = 0x7000_9000
)

var testTypes = []vmstructs.Type{
	{Name: "CollectedHeap", Size: 0x1f0},
	{Name: TypeHeap, Superclass: "CollectedHeap", Size: 0x240},
	{Name: TypeYoungGen, Size: 0x80},
	{Name: TypeOldGen, Size: 0x60},
	{Name: TypeSpace, Size: 0x40},
	{Name: TypeUniverse},
}

var testFields = []vmstructs.Field{
	{Type: TypeHeap, Name: FieldYoungGen, TypeString: "PSYoungGen*", Offset: 0x1f0},
	{Type: TypeHeap, Name: FieldOldGen, TypeString: "PSOldGen*", Offset: 0x1f8},
	{Type: TypeYoungGen, Name: FieldEdenSpace, TypeString: "MutableSpace*", Offset: 0x28},
	{Type: TypeYoungGen, Name: FieldFromSpace, TypeString: "MutableSpace*", Offset: 0x30},
	{Type: TypeYoungGen, Name: FieldToSpace, TypeString: "MutableSpace*", Offset: 0x38},
	{Type: TypeOldGen, Name: FieldObjectSpace, TypeString: "MutableSpace*", Offset: 0x30},
	{Type: TypeSpace, Name: FieldBottom, TypeString: "HeapWord*", Offset: 0x20},
	{Type: TypeSpace, Name: FieldEnd, TypeString: "HeapWord*", Offset: 0x28},
	{Type: TypeSpace, Name: FieldTop, TypeString: "HeapWord*", Offset: 0x30},
	{Type: TypeUniverse, Name: FieldCollectedHeap, TypeString: "CollectedHeap*", Static: true, Address: universeHeap},
}

// newTestDB returns the test schema less the types and fields named
// in drop, written as "Type" or "Type::_field".
func newTestDB(t *testing.T, drop ...string) *vmstructs.DB {
	t.Helper()
	dropped := map[string]bool{}
	for _, d := range drop {
		dropped[d] = true
	}
	var types []vmstructs.Type
	for _, ty := range testTypes {
		if !dropped[ty.Name] {
			types = append(types, ty)
		}
	}
	var fields []vmstructs.Field
	for _, f := range testFields {
		if !dropped[f.Type] && !dropped[f.String()] {
			fields = append(fields, f)
		}
	}
	db, err := vmstructs.New(types, fields, nil)
	require.NoError(t, err)
	return db
}

// bounds is bottom, top and end of a space.
type bounds [3]core.Address

// A testHeap is a ParallelScavengeHeap laid out in fake memory.
type testHeap struct {
	mem *coretest.Memory
	db  *vmstructs.DB
}

func (th *testHeap) field(typeName, field string) core.Address {
	for _, f := range testFields {
		if f.Type == typeName && f.Name == field {
			return core.Address(f.Offset)
		}
	}
	panic("no field " + typeName + "::" + field)
}

func (th *testHeap) setSpace(addr core.Address, b bounds) {
	th.mem.WritePtr(addr+th.field(TypeSpace, FieldBottom), b[0])
	th.mem.WritePtr(addr+th.field(TypeSpace, FieldTop), b[1])
	th.mem.WritePtr(addr+th.field(TypeSpace, FieldEnd), b[2])
}

// newTestHeap lays out a heap with the given spaces. The schema omits
// the names in drop, as for newTestDB.
func newTestHeap(t *testing.T, eden, from, to, old bounds, drop ...string) *testHeap {
	t.Helper()
	th := &testHeap{mem: coretest.NewMemory(8), db: newTestDB(t, drop...)}
	m := th.mem
	m.WritePtr(universeHeap, heapAddr)
	m.WritePtr(heapAddr+th.field(TypeHeap, FieldYoungGen), youngAddr)
	m.WritePtr(heapAddr+th.field(TypeHeap, FieldOldGen), oldAddr)
	m.WritePtr(youngAddr+th.field(TypeYoungGen, FieldEdenSpace), edenAddr)
	m.WritePtr(youngAddr+th.field(TypeYoungGen, FieldFromSpace), fromAddr)
	m.WritePtr(youngAddr+th.field(TypeYoungGen, FieldToSpace), toAddr)
	m.WritePtr(oldAddr+th.field(TypeOldGen, FieldObjectSpace), objectsAddr)
	th.setSpace(edenAddr, eden)
	th.setSpace(fromAddr, from)
	th.setSpace(toAddr, to)
	th.setSpace(objectsAddr, old)
	return th
}

// defaultTestHeap is the heap of the live-region example:
// eden [0,50) with top 30, from [50,100) with top 80,
// to [100,150) with top 120, old [1000,2000) with top 1500.
func defaultTestHeap(t *testing.T, drop ...string) *testHeap {
	return newTestHeap(t,
		bounds{0, 30, 50},
		bounds{50, 80, 100},
		bounds{100, 120, 150},
		bounds{1000, 1500, 2000},
		drop...)
}

func (th *testHeap) heap(t *testing.T) Heap {
	t.Helper()
	h, err := NewHeap(th.mem, th.db, heapAddr)
	require.NoError(t, err)
	return h
}

func (th *testHeap) young(t *testing.T) Generation {
	t.Helper()
	g, err := NewGeneration(th.mem, th.db, Young, youngAddr)
	require.NoError(t, err)
	return g
}

func (th *testHeap) space(t *testing.T, addr core.Address) Space {
	t.Helper()
	s, err := NewSpace(th.mem, th.db, addr)
	require.NoError(t, err)
	return s
}

func printed(t *testing.T, p interface{ Print(w io.Writer) error }) string {
	t.Helper()
	var b strings.Builder
	require.NoError(t, p.Print(&b))
	return b.String()
}
