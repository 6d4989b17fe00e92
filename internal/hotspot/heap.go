// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hotspot

import (
	"io"

	"github.com/pkg/errors"

	"golang.org/x/jvmcore/internal/core"
	"golang.org/x/jvmcore/internal/vmstructs"
)

// A Heap is a ParallelScavengeHeap: a young and an old generation.
type Heap struct {
	View
}

// NewHeap returns the ParallelScavengeHeap at addr.
func NewHeap(as core.AddressSpace, db *vmstructs.DB, addr core.Address) (Heap, error) {
	v, err := NewView(as, db, addr, TypeHeap)
	if err != nil {
		return Heap{}, err
	}
	return Heap{v}, nil
}

func (h Heap) generation(kind GenKind, field string) (Generation, error) {
	v, err := h.view(field, kind.TypeName())
	if err != nil {
		return Generation{}, err
	}
	return Generation{View: v, kind: kind}, nil
}

// Young returns the young generation.
func (h Heap) Young() (Generation, error) {
	return h.generation(Young, FieldYoungGen)
}

// Old returns the old generation.
func (h Heap) Old() (Generation, error) {
	return h.generation(Old, FieldOldGen)
}

func (h Heap) generations() ([2]Generation, error) {
	young, err := h.Young()
	if err != nil {
		return [2]Generation{}, err
	}
	old, err := h.Old()
	if err != nil {
		return [2]Generation{}, err
	}
	return [2]Generation{young, old}, nil
}

// Capacity returns the capacity of the young and old generations.
func (h Heap) Capacity() (int64, error) {
	gens, err := h.generations()
	if err != nil {
		return 0, err
	}
	var n int64
	for _, g := range gens {
		c, err := g.Capacity()
		if err != nil {
			return 0, err
		}
		n += c
	}
	return n, nil
}

// Used returns the bytes used in the young and old generations.
func (h Heap) Used() (int64, error) {
	gens, err := h.generations()
	if err != nil {
		return 0, err
	}
	var n int64
	for _, g := range gens {
		u, err := g.Used()
		if err != nil {
			return 0, err
		}
		n += u
	}
	return n, nil
}

// Contains reports whether a lies in a live space of either generation.
func (h Heap) Contains(a core.Address) (bool, error) {
	young, err := h.Young()
	if err != nil {
		return false, err
	}
	if ok, err := young.Contains(a); err != nil || ok {
		return ok, err
	}
	old, err := h.Old()
	if err != nil {
		return false, err
	}
	return old.Contains(a)
}

// ForEachLiveRegion calls fn for each region of the heap that may
// hold live objects, labeled "eden", "from" and "old", in that order.
// The young generation's to-space is never visited.
// Iteration stops early if fn returns false.
func (h Heap) ForEachLiveRegion(fn func(label string, r MemRegion) bool) error {
	gens, err := h.generations()
	if err != nil {
		return err
	}
	stopped := false
	for _, g := range gens {
		err := g.forEach(false, func(label string, s Space) (bool, error) {
			rs, err := s.LiveRegions()
			if err != nil {
				return false, err
			}
			if g.kind == Old {
				label = "old"
			}
			for _, r := range rs {
				if !fn(label, r) {
					stopped = true
					return false, nil
				}
			}
			return true, nil
		})
		if err != nil {
			return errors.Wrapf(err, "%s generation", g.kind)
		}
		if stopped {
			return nil
		}
	}
	return nil
}

// A LabeledRegion is a region reported by ForEachLiveRegion.
type LabeledRegion struct {
	Label string
	MemRegion
}

// LiveRegions returns the regions ForEachLiveRegion visits.
func (h Heap) LiveRegions() ([]LabeledRegion, error) {
	var r []LabeledRegion
	err := h.ForEachLiveRegion(func(label string, mr MemRegion) bool {
		r = append(r, LabeledRegion{label, mr})
		return true
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// A HeapSnapshot holds the bounds of every space of the heap.
type HeapSnapshot struct {
	Addr       core.Address
	Young, Old GenerationSnapshot
}

// Snapshot reads the bounds of every space of h.
func (h Heap) Snapshot() (HeapSnapshot, error) {
	gens, err := h.generations()
	if err != nil {
		return HeapSnapshot{}, err
	}
	snap := HeapSnapshot{Addr: h.addr}
	if snap.Young, err = gens[0].Snapshot(); err != nil {
		return HeapSnapshot{}, err
	}
	if snap.Old, err = gens[1].Snapshot(); err != nil {
		return HeapSnapshot{}, err
	}
	return snap, nil
}

func (s HeapSnapshot) Capacity() int64 { return s.Young.Capacity() + s.Old.Capacity() }
func (s HeapSnapshot) Used() int64     { return s.Young.Used() + s.Old.Used() }

// Print writes h in the form
//
//	ParallelScavengeHeap [ PSYoungGen [ ... ] PSOldGen [ ... ] ]
func (h Heap) Print(w io.Writer) error {
	gens, err := h.generations()
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, h.typ+" [ "); err != nil {
		return err
	}
	for _, g := range gens {
		if err := g.Print(w); err != nil {
			return err
		}
		if _, err := io.WriteString(w, " "); err != nil {
			return err
		}
	}
	_, err = io.WriteString(w, "]")
	return err
}
