// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vmstructs

import (
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"golang.org/x/jvmcore/internal/core"
)

// ErrNoIntrospection reports that the target does not export the
// vmStructs tables, usually because libjvm is not mapped or its
// symbols could not be read.
var ErrNoIntrospection = errors.New("no vmStructs tables in target")

const (
	// Upper bound on the entries of one table. Current VMs export a few thousand.
	maxEntries = 1 << 16
	// Upper bound on the length of a type or field name.
	maxName = 512
)

// A table describes one of the arrays libjvm exports for the
// serviceability agent. The array is terminated by an entry whose
// first name pointer is NULL. Offsets of the members of an entry are
// themselves exported as uint64 globals, so no layout is assumed here.
type table struct {
	base   string   // pointer to the first entry
	stride string   // size of an entry
	offs   []string // offsets of the entry members, by column
}

const (
	structTypeName = iota
	structFieldName
	structTypeString
	structIsStatic
	structOffset
	structAddress
)

var structTable = table{
	base:   "gHotSpotVMStructs",
	stride: "gHotSpotVMStructEntryArrayStride",
	offs: []string{
		structTypeName:   "gHotSpotVMStructEntryTypeNameOffset",
		structFieldName:  "gHotSpotVMStructEntryFieldNameOffset",
		structTypeString: "gHotSpotVMStructEntryTypeStringOffset",
		structIsStatic:   "gHotSpotVMStructEntryIsStaticOffset",
		structOffset:     "gHotSpotVMStructEntryOffsetOffset",
		structAddress:    "gHotSpotVMStructEntryAddressOffset",
	},
}

const (
	typeTypeName = iota
	typeSuperclassName
	typeIsOop
	typeIsInteger
	typeIsUnsigned
	typeSize
)

var typeTable = table{
	base:   "gHotSpotVMTypes",
	stride: "gHotSpotVMTypeEntryArrayStride",
	offs: []string{
		typeTypeName:       "gHotSpotVMTypeEntryTypeNameOffset",
		typeSuperclassName: "gHotSpotVMTypeEntrySuperclassNameOffset",
		typeIsOop:          "gHotSpotVMTypeEntryIsOopTypeOffset",
		typeIsInteger:      "gHotSpotVMTypeEntryIsIntegerTypeOffset",
		typeIsUnsigned:     "gHotSpotVMTypeEntryIsUnsignedOffset",
		typeSize:           "gHotSpotVMTypeEntrySizeOffset",
	},
}

const (
	constName = iota
	constValue
)

var intConstTable = table{
	base:   "gHotSpotVMIntConstants",
	stride: "gHotSpotVMIntConstantEntryArrayStride",
	offs: []string{
		constName:  "gHotSpotVMIntConstantEntryNameOffset",
		constValue: "gHotSpotVMIntConstantEntryValueOffset",
	},
}

var longConstTable = table{
	base:   "gHotSpotVMLongConstants",
	stride: "gHotSpotVMLongConstantEntryArrayStride",
	offs: []string{
		constName:  "gHotSpotVMLongConstantEntryNameOffset",
		constValue: "gHotSpotVMLongConstantEntryValueOffset",
	},
}

// TableSymbols returns the names of every symbol ReadIntrospection needs.
func TableSymbols() []string {
	var r []string
	for _, t := range []table{structTable, typeTable, intConstTable, longConstTable} {
		r = append(r, t.base, t.stride)
		r = append(r, t.offs...)
	}
	return r
}

// ReadIntrospection builds a DB from the vmStructs tables in the
// target's memory. syms maps symbol names to their relocated
// addresses in the target, as returned by core.Process.Symbols.
//
// The struct and type tables are required. The constant tables are
// read when present.
func ReadIntrospection(logger log.Logger, as core.AddressSpace, syms map[string]core.Address) (*DB, error) {
	r := &tableReader{as: as, syms: syms}

	var types []Type
	err := r.walk(typeTable, func(e []core.Address) error {
		t := Type{Size: int64(e[typeSize])}
		var err error
		if t.Name, err = r.str(e[typeTypeName]); err != nil {
			return err
		}
		if t.Superclass, err = r.str(e[typeSuperclassName]); err != nil {
			return err
		}
		t.Oop = e[typeIsOop] != 0
		t.Integer = e[typeIsInteger] != 0
		t.Unsigned = e[typeIsUnsigned] != 0
		level.Debug(logger).Log("msg", "vm type", "name", t.Name, "super", t.Superclass, "size", t.Size)
		types = append(types, t)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "reading gHotSpotVMTypes")
	}

	var fields []Field
	err = r.walk(structTable, func(e []core.Address) error {
		var f Field
		var err error
		if f.Type, err = r.str(e[structTypeName]); err != nil {
			return err
		}
		if f.Name, err = r.str(e[structFieldName]); err != nil {
			return err
		}
		if f.TypeString, err = r.str(e[structTypeString]); err != nil {
			return err
		}
		f.Static = e[structIsStatic] != 0
		if f.Static {
			f.Address = e[structAddress]
			level.Debug(logger).Log("msg", "vm static field", "field", f, "addr", f.Address)
		} else {
			f.Offset = int64(e[structOffset])
			level.Debug(logger).Log("msg", "vm field", "field", f, "offset", f.Offset)
		}
		fields = append(fields, f)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "reading gHotSpotVMStructs")
	}

	constants := map[string]int64{}
	for _, t := range []table{intConstTable, longConstTable} {
		if _, ok := syms[t.base]; !ok {
			level.Debug(logger).Log("msg", "constant table not exported", "table", t.base)
			continue
		}
		isInt := t.base == intConstTable.base
		err := r.walk(t, func(e []core.Address) error {
			name, err := r.str(e[constName])
			if err != nil {
				return err
			}
			v := int64(e[constValue])
			if isInt {
				v = int64(int32(e[constValue]))
			}
			constants[name] = v
			return nil
		})
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s", t.base)
		}
	}

	db, err := New(types, fields, constants)
	if err != nil {
		return nil, err
	}
	level.Debug(logger).Log("msg", "read vmStructs", "types", len(types), "fields", len(fields), "constants", len(constants))
	return db, nil
}

type tableReader struct {
	as   core.AddressSpace
	syms map[string]core.Address
}

func (r *tableReader) sym(name string) (core.Address, error) {
	a, ok := r.syms[name]
	if !ok {
		return 0, errors.Wrapf(ErrNoIntrospection, "symbol %s not found", name)
	}
	return a, nil
}

// u64 reads the uint64 global called name.
func (r *tableReader) u64(name string) (uint64, error) {
	a, err := r.sym(name)
	if err != nil {
		return 0, err
	}
	return core.ReadUint64(r.as, a)
}

// walk calls fn with the decoded columns of every entry of t.
// Name columns are pointers, the static flag is an int32, and value
// columns are uint64 except the int constant value, an int32.
func (r *tableReader) walk(t table, fn func(e []core.Address) error) error {
	baseSym, err := r.sym(t.base)
	if err != nil {
		return err
	}
	base, err := r.as.ReadPtr(baseSym)
	if err != nil {
		return err
	}
	stride, err := r.u64(t.stride)
	if err != nil {
		return err
	}
	offs := make([]uint64, len(t.offs))
	for i, name := range t.offs {
		if offs[i], err = r.u64(name); err != nil {
			return err
		}
	}
	if base == 0 || stride == 0 || stride > 1024 {
		return fmt.Errorf("bad table %s at %s with stride %d", t.base, base, stride)
	}

	ptrSize := r.as.PtrSize()
	order := r.as.ByteOrder()
	buf := make([]byte, stride)
	e := make([]core.Address, len(offs))
	for n, a := 0, base; ; n, a = n+1, a.Add(int64(stride)) {
		if n == maxEntries {
			return fmt.Errorf("table %s has no terminator after %d entries", t.base, n)
		}
		if err := r.as.ReadAt(buf, a); err != nil {
			return err
		}
		for i, off := range offs {
			w := columnWidth(t, i, ptrSize)
			if off+uint64(w) > stride {
				return fmt.Errorf("column %s at %d overruns stride %d", t.offs[i], off, stride)
			}
			b := buf[off : off+uint64(w)]
			switch w {
			case 4:
				e[i] = core.Address(order.Uint32(b))
			case 8:
				e[i] = core.Address(order.Uint64(b))
			}
		}
		if e[0] == 0 {
			return nil
		}
		if err := fn(e); err != nil {
			return err
		}
	}
}

// columnWidth returns the size in bytes of column i of table t.
func columnWidth(t table, i int, ptrSize int64) int64 {
	switch t.base {
	case structTable.base:
		switch i {
		case structIsStatic:
			return 4
		case structOffset:
			return 8
		}
	case typeTable.base:
		switch i {
		case typeIsOop, typeIsInteger, typeIsUnsigned:
			return 4
		case typeSize:
			return 8
		}
	case intConstTable.base:
		if i == constValue {
			return 4
		}
	case longConstTable.base:
		if i == constValue {
			return 8
		}
	}
	return ptrSize
}

// str reads the NUL-terminated string at a. A NULL pointer is "".
func (r *tableReader) str(a core.Address) (string, error) {
	if a == 0 {
		return "", nil
	}
	return core.ReadCString(r.as, a, maxName)
}
