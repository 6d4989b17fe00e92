// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hotspot

import (
	"fmt"
	"io"

	"github.com/pkg/errors"

	"golang.org/x/jvmcore/internal/core"
	"golang.org/x/jvmcore/internal/vmstructs"
)

// A Space is a MutableSpace: a contiguous allocation arena.
// Objects are allocated upward from bottom; top is the next free
// byte and end the limit.
//
// A healthy space has bottom <= top <= end, but reads from a running
// VM can observe it mid-update. Nothing here relies on the ordering.
type Space struct {
	View
}

// NewSpace returns the MutableSpace at addr.
func NewSpace(as core.AddressSpace, db *vmstructs.DB, addr core.Address) (Space, error) {
	v, err := NewView(as, db, addr, TypeSpace)
	if err != nil {
		return Space{}, err
	}
	return Space{v}, nil
}

func (s Space) Bottom() (core.Address, error) { return s.ReadPointerField(FieldBottom) }
func (s Space) Top() (core.Address, error)    { return s.ReadPointerField(FieldTop) }
func (s Space) End() (core.Address, error)    { return s.ReadPointerField(FieldEnd) }

// Used returns top-bottom, the bytes allocated in the space.
func (s Space) Used() (int64, error) {
	bottom, err := s.Bottom()
	if err != nil {
		return 0, err
	}
	top, err := s.Top()
	if err != nil {
		return 0, err
	}
	return top.Sub(bottom), nil
}

// Capacity returns end-bottom, the size of the space.
func (s Space) Capacity() (int64, error) {
	bottom, err := s.Bottom()
	if err != nil {
		return 0, err
	}
	end, err := s.End()
	if err != nil {
		return 0, err
	}
	return end.Sub(bottom), nil
}

// Free returns end-top, the bytes left for allocation.
func (s Space) Free() (int64, error) {
	top, err := s.Top()
	if err != nil {
		return 0, err
	}
	end, err := s.End()
	if err != nil {
		return 0, err
	}
	return end.Sub(top), nil
}

// Contains reports whether a lies in [bottom, end).
func (s Space) Contains(a core.Address) (bool, error) {
	bottom, err := s.Bottom()
	if err != nil {
		return false, err
	}
	end, err := s.End()
	if err != nil {
		return false, err
	}
	return bottom <= a && end > a, nil
}

// UsedRegion returns [bottom, end).
//
// Despite the name this is the whole space, not just its allocated
// part; LiveRegions returns the latter.
func (s Space) UsedRegion() (MemRegion, error) {
	bottom, err := s.Bottom()
	if err != nil {
		return MemRegion{}, err
	}
	end, err := s.End()
	if err != nil {
		return MemRegion{}, err
	}
	return NewMemRegion(bottom, end)
}

// LiveRegions returns the regions of the space that may hold objects:
// the single region [bottom, top).
func (s Space) LiveRegions() ([]MemRegion, error) {
	bottom, err := s.Bottom()
	if err != nil {
		return nil, err
	}
	top, err := s.Top()
	if err != nil {
		return nil, err
	}
	r, err := NewMemRegion(bottom, top)
	if err != nil {
		return nil, err
	}
	return []MemRegion{r}, nil
}

// A SpaceSnapshot is the bounds of a space read together.
type SpaceSnapshot struct {
	Bottom, Top, End core.Address
}

// Snapshot reads bottom, top and end together. When the three
// fields are close together in the object, as they are in every VM
// release, they are fetched with a single read of the target.
func (s Space) Snapshot() (SpaceSnapshot, error) {
	var addrs [3]core.Address
	for i, f := range [3]string{FieldBottom, FieldTop, FieldEnd} {
		a, err := s.FieldAddress(f)
		if err != nil {
			return SpaceSnapshot{}, errors.Wrapf(err, "resolving %s at %s", s.typ, s.addr)
		}
		addrs[i] = a
	}
	ptrSize := s.as.PtrSize()
	lo := addrs[0].Min(addrs[1]).Min(addrs[2])
	hi := addrs[0].Max(addrs[1]).Max(addrs[2]).Add(ptrSize)
	if hi.Sub(lo) > 8*ptrSize {
		var snap SpaceSnapshot
		var err error
		if snap.Bottom, err = s.Bottom(); err != nil {
			return SpaceSnapshot{}, err
		}
		if snap.Top, err = s.Top(); err != nil {
			return SpaceSnapshot{}, err
		}
		if snap.End, err = s.End(); err != nil {
			return SpaceSnapshot{}, err
		}
		return snap, nil
	}

	buf := make([]byte, hi.Sub(lo))
	if err := s.as.ReadAt(buf, lo); err != nil {
		return SpaceSnapshot{}, errors.Wrapf(err, "reading bounds of %s at %s", s.typ, s.addr)
	}
	order := s.as.ByteOrder()
	var vals [3]core.Address
	for i, a := range addrs {
		b := buf[a.Sub(lo) : a.Sub(lo)+ptrSize]
		if ptrSize == 4 {
			vals[i] = core.Address(order.Uint32(b))
		} else {
			vals[i] = core.Address(order.Uint64(b))
		}
	}
	return SpaceSnapshot{Bottom: vals[0], Top: vals[1], End: vals[2]}, nil
}

func (s SpaceSnapshot) Used() int64     { return s.Top.Sub(s.Bottom) }
func (s SpaceSnapshot) Capacity() int64 { return s.End.Sub(s.Bottom) }
func (s SpaceSnapshot) Free() int64     { return s.End.Sub(s.Top) }

func (s SpaceSnapshot) Contains(a core.Address) bool {
	return s.Bottom <= a && s.End > a
}

// LiveRegion returns [bottom, top).
func (s SpaceSnapshot) LiveRegion() (MemRegion, error) {
	return NewMemRegion(s.Bottom, s.Top)
}

// UsedPercent returns used as a percentage of capacity.
func (s SpaceSnapshot) UsedPercent() float64 {
	c := s.Capacity()
	if c <= 0 {
		return 0
	}
	return float64(s.Used()) * 100 / float64(c)
}

// Print writes the space as
//
//	[bottom,end) space capacity = N, P% used
func (s Space) Print(w io.Writer) error {
	snap, err := s.Snapshot()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "[%s,%s) space capacity = %d, %.1f%% used",
		snap.Bottom, snap.End, snap.Capacity(), snap.UsedPercent())
	return err
}
