// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package arch contains architecture-specific definitions for the
// machines a HotSpot VM may have been running on.
package arch

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
)

// Architecture defines the architecture-specific details for a given machine.
type Architecture struct {
	// Name is the GOARCH-style name of the machine.
	Name string
	// PointerSize is the size of a pointer, in bytes.
	PointerSize int
	// ByteOrder is the byte order for ints and pointers.
	ByteOrder binary.ByteOrder
}

var AMD64 = Architecture{
	Name:        "amd64",
	PointerSize: 8,
	ByteOrder:   binary.LittleEndian,
}

var X86 = Architecture{
	Name:        "386",
	PointerSize: 4,
	ByteOrder:   binary.LittleEndian,
}

var ARM = Architecture{
	Name:        "arm",
	PointerSize: 4,
	ByteOrder:   binary.LittleEndian,
}

var ARM64 = Architecture{
	Name:        "arm64",
	PointerSize: 8,
	ByteOrder:   binary.LittleEndian,
}

var PPC64LE = Architecture{
	Name:        "ppc64le",
	PointerSize: 8,
	ByteOrder:   binary.LittleEndian,
}

var PPC64 = Architecture{
	Name:        "ppc64",
	PointerSize: 8,
	ByteOrder:   binary.BigEndian,
}

var S390X = Architecture{
	Name:        "s390x",
	PointerSize: 8,
	ByteOrder:   binary.BigEndian,
}

// ForELF returns the architecture described by an ELF header.
func ForELF(e *elf.FileHeader) (*Architecture, error) {
	var a *Architecture
	switch e.Machine {
	case elf.EM_386:
		a = &X86
	case elf.EM_X86_64:
		a = &AMD64
	case elf.EM_ARM:
		a = &ARM
	case elf.EM_AARCH64:
		a = &ARM64
	case elf.EM_PPC64:
		if e.ByteOrder == binary.LittleEndian {
			a = &PPC64LE
		} else {
			a = &PPC64
		}
	case elf.EM_S390:
		a = &S390X
	default:
		return nil, fmt.Errorf("unknown arch %s", e.Machine)
	}
	want := 8
	if e.Class == elf.ELFCLASS32 {
		want = 4
	}
	if a.PointerSize != want {
		return nil, fmt.Errorf("arch %s with elf class %s not supported", a.Name, e.Class)
	}
	return a, nil
}
