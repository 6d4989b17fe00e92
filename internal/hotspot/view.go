// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package hotspot reconstructs the layout of a HotSpot VM's
// parallel-scavenge heap from outside the VM, by reading the VM's own
// data structures out of a core file or a stopped process.
//
// Every value here is a typed pointer into the target and holds no
// other state. Each query reads the target afresh, so two queries
// against a running process may disagree; stop the process around a
// walk that needs a consistent picture, or use the Snapshot methods.
//
// Errors from the target (core.ErrTargetUnavailable,
// core.ErrInvalidAddress) and from the type database
// (vmstructs.ErrUnknownType, vmstructs.ErrUnknownField) are returned
// annotated with the field being read, and still match errors.Is.
package hotspot

import (
	"github.com/pkg/errors"

	"golang.org/x/jvmcore/internal/core"
	"golang.org/x/jvmcore/internal/vmstructs"
)

// A View is an object of a VM type at an address in the target.
type View struct {
	as   core.AddressSpace
	db   *vmstructs.DB
	addr core.Address
	typ  string
}

// NewView returns a View of the object of type typeName at addr.
// It fails if db does not know typeName. It does not read the target.
func NewView(as core.AddressSpace, db *vmstructs.DB, addr core.Address, typeName string) (View, error) {
	if _, err := db.Type(typeName); err != nil {
		return View{}, errors.Wrapf(err, "%s at %s", typeName, addr)
	}
	return View{as: as, db: db, addr: addr, typ: typeName}, nil
}

// Addr returns the address of the object.
func (v View) Addr() core.Address { return v.addr }

// Type returns the VM type name of the object.
func (v View) Type() string { return v.typ }

// FieldAddress returns the address of the named field of the object.
// Static fields have the same address in every object.
func (v View) FieldAddress(field string) (core.Address, error) {
	f, err := v.db.Field(v.typ, field)
	if err != nil {
		return 0, err
	}
	if f.Static {
		return f.Address, nil
	}
	return v.addr.Add(f.Offset), nil
}

// ReadPointerField reads the pointer-valued field of the object.
func (v View) ReadPointerField(field string) (core.Address, error) {
	a, err := v.FieldAddress(field)
	if err != nil {
		return 0, errors.Wrapf(err, "resolving %s at %s", v.typ, v.addr)
	}
	p, err := v.as.ReadPtr(a)
	if err != nil {
		return 0, errors.Wrapf(err, "reading %s::%s of object at %s", v.typ, field, v.addr)
	}
	return p, nil
}

// view returns a View of the object of type typeName that the
// pointer field of v points to.
func (v View) view(field, typeName string) (View, error) {
	if _, err := v.db.Type(typeName); err != nil {
		return View{}, errors.Wrapf(err, "%s::%s", v.typ, field)
	}
	p, err := v.ReadPointerField(field)
	if err != nil {
		return View{}, err
	}
	return View{as: v.as, db: v.db, addr: p, typ: typeName}, nil
}
