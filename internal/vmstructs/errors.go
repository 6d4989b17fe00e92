// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vmstructs

import "errors"

var (
	// ErrUnknownType reports a type name the DB has never heard of.
	// Against a real VM this means the reader and the VM disagree on
	// the VM's version.
	ErrUnknownType = errors.New("unknown type")

	// ErrUnknownField reports a field missing from a known type and
	// all of its superclasses.
	ErrUnknownField = errors.New("unknown field")

	// ErrFieldKind reports a static field used as an instance field,
	// or the other way around.
	ErrFieldKind = errors.New("wrong kind of field")

	ErrUnknownConstant = errors.New("unknown constant")
)

// A LookupError records a failed DB lookup.
type LookupError struct {
	Type  string // empty for constants
	Field string // empty for type lookups
	Err   error
}

func (e *LookupError) Error() string {
	switch {
	case e.Type == "":
		return "vmstructs: " + e.Field + ": " + e.Err.Error()
	case e.Field == "":
		return "vmstructs: " + e.Type + ": " + e.Err.Error()
	}
	return "vmstructs: " + e.Type + "::" + e.Field + ": " + e.Err.Error()
}

func (e *LookupError) Unwrap() error {
	return e.Err
}
