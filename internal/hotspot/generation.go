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

// ErrUnknownSpace reports a space label the generation does not have.
var ErrUnknownSpace = errors.New("no such space")

// A GenKind is the kind of a generation of the parallel heap.
type GenKind uint8

const (
	// Young is a PSYoungGen with spaces eden, from and to.
	Young GenKind = iota
	// Old is a PSOldGen with the single space objects.
	Old
)

func (k GenKind) String() string {
	switch k {
	case Young:
		return "young"
	case Old:
		return "old"
	}
	return fmt.Sprintf("GenKind(%d)", uint8(k))
}

// TypeName returns the VM type of generations of kind k.
func (k GenKind) TypeName() string {
	switch k {
	case Young:
		return TypeYoungGen
	case Old:
		return TypeOldGen
	}
	return ""
}

type genSpace struct {
	label string
	field string
	// live spaces may hold objects between collections.
	// The young generation's to-space is empty except during a scavenge.
	live bool
}

var genSpaces = [...][]genSpace{
	Young: {
		{"eden", FieldEdenSpace, true},
		{"from", FieldFromSpace, true},
		{"to", FieldToSpace, false},
	},
	Old: {
		{"objects", FieldObjectSpace, true},
	},
}

// A Generation is one generation of a ParallelScavengeHeap.
//
// Capacity, Used and Contains cover the live spaces only.
// For the young generation these are eden and from.
type Generation struct {
	View
	kind GenKind
}

// NewGeneration returns the generation of the given kind at addr.
func NewGeneration(as core.AddressSpace, db *vmstructs.DB, kind GenKind, addr core.Address) (Generation, error) {
	if int(kind) >= len(genSpaces) {
		return Generation{}, fmt.Errorf("bad generation kind %v", kind)
	}
	v, err := NewView(as, db, addr, kind.TypeName())
	if err != nil {
		return Generation{}, err
	}
	return Generation{View: v, kind: kind}, nil
}

func (g Generation) Kind() GenKind { return g.kind }

// Labels returns the labels of every space of g, in address order
// of a freshly started VM.
func (g Generation) Labels() []string {
	var r []string
	for _, s := range genSpaces[g.kind] {
		r = append(r, s.label)
	}
	return r
}

// IsLive reports whether the space labeled label can hold live objects
// outside of a collection.
func (g Generation) IsLive(label string) bool {
	for _, s := range genSpaces[g.kind] {
		if s.label == label {
			return s.live
		}
	}
	return false
}

// Space returns the space labeled label.
func (g Generation) Space(label string) (Space, error) {
	for _, s := range genSpaces[g.kind] {
		if s.label == label {
			return g.space(s)
		}
	}
	return Space{}, errors.Wrapf(ErrUnknownSpace, "%s generation has no space %q", g.kind, label)
}

func (g Generation) space(s genSpace) (Space, error) {
	v, err := g.view(s.field, TypeSpace)
	if err != nil {
		return Space{}, err
	}
	return Space{v}, nil
}

// forEach calls fn for each space of g, live ones only unless all is
// set, until fn returns false or an error.
func (g Generation) forEach(all bool, fn func(label string, s Space) (bool, error)) error {
	for _, gs := range genSpaces[g.kind] {
		if !gs.live && !all {
			continue
		}
		s, err := g.space(gs)
		if err != nil {
			return err
		}
		more, err := fn(gs.label, s)
		if err != nil {
			return errors.Wrapf(err, "%s space", gs.label)
		}
		if !more {
			return nil
		}
	}
	return nil
}

// Capacity returns the sum of the capacities of the live spaces.
func (g Generation) Capacity() (int64, error) {
	var n int64
	err := g.forEach(false, func(_ string, s Space) (bool, error) {
		c, err := s.Capacity()
		if err != nil {
			return false, err
		}
		n += c
		return true, nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Used returns the sum of the bytes used in the live spaces.
func (g Generation) Used() (int64, error) {
	var n int64
	err := g.forEach(false, func(_ string, s Space) (bool, error) {
		u, err := s.Used()
		if err != nil {
			return false, err
		}
		n += u
		return true, nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Contains reports whether a lies in a live space of g.
func (g Generation) Contains(a core.Address) (bool, error) {
	return g.contains(false, a)
}

// ContainsReserved reports whether a lies in any space of g,
// including the young generation's to-space.
func (g Generation) ContainsReserved(a core.Address) (bool, error) {
	return g.contains(true, a)
}

func (g Generation) contains(all bool, a core.Address) (bool, error) {
	found := false
	err := g.forEach(all, func(_ string, s Space) (bool, error) {
		ok, err := s.Contains(a)
		found = ok
		return !ok, err
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

// SpaceOf returns the label of the space of g containing a, live or
// not, or "" if there is none.
func (g Generation) SpaceOf(a core.Address) (string, error) {
	var label string
	err := g.forEach(true, func(l string, s Space) (bool, error) {
		ok, err := s.Contains(a)
		if ok {
			label = l
		}
		return !ok, err
	})
	if err != nil {
		return "", err
	}
	return label, nil
}

// A NamedSpace is the snapshot of one space of a generation.
type NamedSpace struct {
	Label string
	Live  bool
	Addr  core.Address
	SpaceSnapshot
}

// A GenerationSnapshot holds the bounds of every space of a generation.
type GenerationSnapshot struct {
	Kind   GenKind
	Addr   core.Address
	Spaces []NamedSpace
}

// Snapshot reads the bounds of every space of g, live or not.
func (g Generation) Snapshot() (GenerationSnapshot, error) {
	gs := GenerationSnapshot{Kind: g.kind, Addr: g.addr}
	err := g.forEach(true, func(label string, s Space) (bool, error) {
		snap, err := s.Snapshot()
		if err != nil {
			return false, err
		}
		gs.Spaces = append(gs.Spaces, NamedSpace{Label: label, Live: g.IsLive(label), Addr: s.Addr(), SpaceSnapshot: snap})
		return true, nil
	})
	if err != nil {
		return GenerationSnapshot{}, err
	}
	return gs, nil
}

// Capacity returns the total capacity of the live spaces.
func (gs GenerationSnapshot) Capacity() int64 {
	var n int64
	for _, s := range gs.Spaces {
		if s.Live {
			n += s.Capacity()
		}
	}
	return n
}

// Used returns the total used bytes of the live spaces.
func (gs GenerationSnapshot) Used() int64 {
	var n int64
	for _, s := range gs.Spaces {
		if s.Live {
			n += s.Used()
		}
	}
	return n
}

// Print writes g in the form
//
//	PSYoungGen [ eden = [...) space ..., from = ..., to = ... ]
//	PSOldGen [ [...) space ... ]
func (g Generation) Print(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "%s [ ", g.typ); err != nil {
		return err
	}
	first := true
	err := g.forEach(true, func(label string, s Space) (bool, error) {
		if !first {
			if _, err := io.WriteString(w, ", "); err != nil {
				return false, err
			}
		}
		first = false
		if g.kind == Young {
			if _, err := fmt.Fprintf(w, "%s = ", label); err != nil {
				return false, err
			}
		}
		return true, s.Print(w)
	})
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, " ]")
	return err
}
