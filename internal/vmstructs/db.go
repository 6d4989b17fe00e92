// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package vmstructs holds the layout of HotSpot's internal C++ types as
// exported by libjvm's vmStructs tables: type sizes and superclasses,
// field offsets, addresses of static fields, and integer constants.
//
// A DB is immutable once built and may be shared by any number of readers.
package vmstructs

import (
	"fmt"
	"sort"

	"golang.org/x/jvmcore/internal/core"
)

// A Type is a C++ type known to the VM.
type Type struct {
	Name string `yaml:"name" json:"name"`
	// Superclass is the name of the base class, or "" if none.
	Superclass string `yaml:"superclass,omitempty" json:"superclass,omitempty"`
	// Size is sizeof the type in the target, in bytes.
	Size     int64 `yaml:"size" json:"size"`
	Oop      bool  `yaml:"oop,omitempty" json:"oop,omitempty"`
	Integer  bool  `yaml:"integer,omitempty" json:"integer,omitempty"`
	Unsigned bool  `yaml:"unsigned,omitempty" json:"unsigned,omitempty"`
}

// A Field is a member of a Type.
type Field struct {
	Type string `yaml:"type" json:"type"`
	Name string `yaml:"name" json:"name"`
	// TypeString is the C++ type of the field, like "HeapWord*".
	TypeString string `yaml:"typeString,omitempty" json:"typeString,omitempty"`
	Static     bool   `yaml:"static,omitempty" json:"static,omitempty"`
	// Offset from the start of the containing object. Non-static fields only.
	Offset int64 `yaml:"offset,omitempty" json:"offset,omitempty"`
	// Address of the field in the target. Static fields only.
	Address core.Address `yaml:"address,omitempty" json:"address,omitempty"`
}

func (f Field) String() string {
	return f.Type + "::" + f.Name
}

// A DB maps type and field names to their layout in one target VM.
type DB struct {
	types     map[string]*Type
	fields    map[string]map[string]*Field
	constants map[string]int64
}

// New returns a DB holding the given types, fields and constants.
// Types referenced by a field but missing from types are added with
// an unknown (zero) size.
func New(types []Type, fields []Field, constants map[string]int64) (*DB, error) {
	db := &DB{
		types:     make(map[string]*Type, len(types)),
		fields:    map[string]map[string]*Field{},
		constants: make(map[string]int64, len(constants)),
	}
	for i := range types {
		t := types[i]
		if t.Name == "" {
			return nil, fmt.Errorf("type %d has no name", i)
		}
		if _, ok := db.types[t.Name]; ok {
			return nil, fmt.Errorf("duplicate type %s", t.Name)
		}
		db.types[t.Name] = &t
	}
	for i := range fields {
		f := fields[i]
		if f.Type == "" || f.Name == "" {
			return nil, fmt.Errorf("field %d has no name or containing type", i)
		}
		if f.Static && f.Address == 0 {
			return nil, fmt.Errorf("static field %s has no address", f)
		}
		if _, ok := db.types[f.Type]; !ok {
			db.types[f.Type] = &Type{Name: f.Type}
		}
		m := db.fields[f.Type]
		if m == nil {
			m = map[string]*Field{}
			db.fields[f.Type] = m
		}
		if _, ok := m[f.Name]; ok {
			return nil, fmt.Errorf("duplicate field %s", f)
		}
		m[f.Name] = &f
	}
	for name, v := range constants {
		db.constants[name] = v
	}
	// Superclass chains must end.
	for _, t := range db.types {
		seen := map[string]bool{}
		for s := t; s != nil; s = db.types[s.Superclass] {
			if seen[s.Name] {
				return nil, fmt.Errorf("superclass cycle through %s", s.Name)
			}
			seen[s.Name] = true
		}
	}
	return db, nil
}

// HasType reports whether the DB knows the type name.
func (db *DB) HasType(name string) bool {
	_, ok := db.types[name]
	return ok
}

// Type returns the type called name.
func (db *DB) Type(name string) (Type, error) {
	t, ok := db.types[name]
	if !ok {
		return Type{}, &LookupError{Type: name, Err: ErrUnknownType}
	}
	return *t, nil
}

// Types returns every known type, sorted by name.
func (db *DB) Types() []Type {
	r := make([]Type, 0, len(db.types))
	for _, t := range db.types {
		r = append(r, *t)
	}
	sort.Slice(r, func(i, j int) bool { return r[i].Name < r[j].Name })
	return r
}

// Fields returns the fields declared by type name itself, not by its
// superclasses. Instance fields come first, by offset, then static fields.
func (db *DB) Fields(name string) ([]Field, error) {
	if !db.HasType(name) {
		return nil, &LookupError{Type: name, Err: ErrUnknownType}
	}
	var r []Field
	for _, f := range db.fields[name] {
		r = append(r, *f)
	}
	sort.Slice(r, func(i, j int) bool {
		a, b := r[i], r[j]
		if a.Static != b.Static {
			return !a.Static
		}
		if a.Offset != b.Offset {
			return a.Offset < b.Offset
		}
		return a.Name < b.Name
	})
	return r, nil
}

// IsSubclass reports whether type name is super or derives from it.
func (db *DB) IsSubclass(name, super string) bool {
	for t := db.types[name]; t != nil; t = db.types[t.Superclass] {
		if t.Name == super {
			return true
		}
	}
	return false
}

// Field looks up field fieldName of type typeName, searching the
// superclasses of typeName if the type itself does not declare it.
func (db *DB) Field(typeName, fieldName string) (Field, error) {
	t, ok := db.types[typeName]
	if !ok {
		return Field{}, &LookupError{Type: typeName, Field: fieldName, Err: ErrUnknownType}
	}
	for ; t != nil; t = db.types[t.Superclass] {
		if f, ok := db.fields[t.Name][fieldName]; ok {
			return *f, nil
		}
	}
	return Field{}, &LookupError{Type: typeName, Field: fieldName, Err: ErrUnknownField}
}

// FieldOffset returns the byte offset of instance field fieldName
// within an object of type typeName.
func (db *DB) FieldOffset(typeName, fieldName string) (int64, error) {
	f, err := db.Field(typeName, fieldName)
	if err != nil {
		return 0, err
	}
	if f.Static {
		return 0, &LookupError{Type: typeName, Field: fieldName, Err: ErrFieldKind}
	}
	return f.Offset, nil
}

// StaticAddress returns the address in the target of static field
// fieldName of type typeName.
func (db *DB) StaticAddress(typeName, fieldName string) (core.Address, error) {
	f, err := db.Field(typeName, fieldName)
	if err != nil {
		return 0, err
	}
	if !f.Static {
		return 0, &LookupError{Type: typeName, Field: fieldName, Err: ErrFieldKind}
	}
	return f.Address, nil
}

// Size returns the size in bytes of type name.
func (db *DB) Size(name string) (int64, error) {
	t, err := db.Type(name)
	if err != nil {
		return 0, err
	}
	return t.Size, nil
}

// Constant returns the value of the integer or long constant name.
func (db *DB) Constant(name string) (int64, error) {
	v, ok := db.constants[name]
	if !ok {
		return 0, &LookupError{Field: name, Err: ErrUnknownConstant}
	}
	return v, nil
}

// Constants returns the names of all constants, sorted.
func (db *DB) Constants() []string {
	r := make([]string, 0, len(db.constants))
	for name := range db.constants {
		r = append(r, name)
	}
	sort.Strings(r)
	return r
}

// NumFields returns the total number of fields in the DB.
func (db *DB) NumFields() int {
	n := 0
	for _, m := range db.fields {
		n += len(m)
	}
	return n
}
