// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hotspot

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"golang.org/x/jvmcore/internal/core"
	"golang.org/x/jvmcore/internal/coretest"
	"golang.org/x/jvmcore/internal/vmstructs"
)

func TestViewFieldAddress(t *testing.T) {
	db, err := vmstructs.New(
		[]vmstructs.Type{
			{Name: "CollectedHeap"},
			{Name: TypeHeap, Superclass: "CollectedHeap"},
		},
		[]vmstructs.Field{
			{Type: "CollectedHeap", Name: "_total_collections", Offset: 0x60},
			// JDK 8 keeps the generations in static fields.
			{Type: TypeHeap, Name: FieldYoungGen, Static: true, Address: 0x9000},
		},
		nil)
	require.NoError(t, err)
	mem := coretest.NewMemory(8)
	mem.WritePtr(0x9000, 0x2000)

	v, err := NewView(mem, db, 0x1000, TypeHeap)
	require.NoError(t, err)

	a, err := v.FieldAddress("_total_collections")
	require.NoError(t, err)
	require.Equal(t, core.Address(0x1060), a)

	a, err = v.FieldAddress(FieldYoungGen)
	require.NoError(t, err)
	require.Equal(t, core.Address(0x9000), a)
	p, err := v.ReadPointerField(FieldYoungGen)
	require.NoError(t, err)
	require.Equal(t, core.Address(0x2000), p)

	_, err = v.FieldAddress(FieldOldGen)
	require.True(t, errors.Is(err, vmstructs.ErrUnknownField), "got %v", err)
	_, err = v.ReadPointerField("_total_collections")
	require.True(t, errors.Is(err, core.ErrInvalidAddress), "got %v", err)
	require.Contains(t, err.Error(), "ParallelScavengeHeap::_total_collections")
}

func TestViewPointerWidth(t *testing.T) {
	db := newTestDB(t)
	mem := coretest.NewMemory(4)
	mem.Write(0x1000, make([]byte, 0x40))
	mem.WritePtr(0x1000+0x20, 0x100)
	mem.WritePtr(0x1000+0x28, 0x300)
	mem.WritePtr(0x1000+0x30, 0x200)

	s, err := NewSpace(mem, db, 0x1000)
	require.NoError(t, err)
	snap, err := s.Snapshot()
	require.NoError(t, err)
	require.Equal(t, SpaceSnapshot{Bottom: 0x100, Top: 0x200, End: 0x300}, snap)
	used, err := s.Used()
	require.NoError(t, err)
	require.Equal(t, int64(0x100), used)
}
