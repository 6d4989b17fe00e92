// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hotspot

import (
	"fmt"

	"github.com/pkg/errors"

	"golang.org/x/jvmcore/internal/core"
	"golang.org/x/jvmcore/internal/vmstructs"
)

var (
	// ErrNoHeap reports that the VM has not created its heap yet.
	ErrNoHeap = errors.New("VM heap not initialized")

	// ErrWrongType reports an object whose C++ vtable is not that of
	// the type it is being read as; for the heap, a VM running a
	// collector other than parallel scavenge.
	ErrWrongType = errors.New("object has a different dynamic type")
)

// FindHeap returns the heap that Universe::_collectedHeap points to.
func FindHeap(as core.AddressSpace, db *vmstructs.DB) (Heap, error) {
	a, err := db.StaticAddress(TypeUniverse, FieldCollectedHeap)
	if err != nil {
		return Heap{}, err
	}
	if _, err := db.Type(TypeHeap); err != nil {
		return Heap{}, err
	}
	p, err := as.ReadPtr(a)
	if err != nil {
		return Heap{}, errors.Wrapf(err, "reading %s::%s", TypeUniverse, FieldCollectedHeap)
	}
	if p == 0 {
		return Heap{}, ErrNoHeap
	}
	return NewHeap(as, db, p)
}

// VtableSymbol returns the mangled name of the vtable of C++ class typeName.
func VtableSymbol(typeName string) string {
	return fmt.Sprintf("_ZTV%d%s", len(typeName), typeName)
}

// CheckDynamicType verifies that the object's vtable pointer points
// into the vtable of its type, using the target's symbol table.
// It returns nil when the type has no vtable symbol to compare with.
func (v View) CheckDynamicType(syms map[string]core.Address) error {
	vtbl, ok := syms[VtableSymbol(v.typ)]
	if !ok {
		return nil
	}
	p, err := v.as.ReadPtr(v.addr)
	if err != nil {
		return errors.Wrapf(err, "reading vtable pointer of %s at %s", v.typ, v.addr)
	}
	// The Itanium C++ ABI places the offset-to-top and typeinfo words
	// before the virtual functions the object points at.
	if p != vtbl.Add(2*v.as.PtrSize()) {
		return errors.Wrapf(ErrWrongType, "%s at %s has vtable %s, want %s", v.typ, v.addr, p, vtbl.Add(2*v.as.PtrSize()))
	}
	return nil
}
