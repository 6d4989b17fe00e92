// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package core

import (
	"debug/elf"
	"fmt"
	"os"
)

// An objFile is an ELF object mapped into the inferior.
type objFile struct {
	f   *os.File
	err error

	// base is the lowest address at which offset 0 of the file is mapped,
	// or 0 if no such mapping was seen.
	base Address
}

// noteBase records that offset off of o is mapped at address a.
func (o *objFile) noteBase(a Address, off int64) {
	if off != 0 {
		return
	}
	if o.base == 0 || a < o.base {
		o.base = a
	}
}

// readSymbols reads the static and dynamic symbol tables of every
// available object and relocates them by the object's load bias.
// Errors for individual objects are not fatal; the first one is
// returned alongside whatever symbols could be read.
//
// libjvm.so is position independent, so its symbols (gHotSpotVMStructs
// and friends) are only usable after relocation.
func readSymbols(files map[string]*objFile) (map[string]Address, error) {
	syms := map[string]Address{}
	var symErr error
	for name, o := range files {
		if o.f == nil {
			continue
		}
		e, err := elf.NewFile(o.f)
		if err != nil {
			if symErr == nil {
				symErr = fmt.Errorf("can't read ELF header of %s: %v", name, err)
			}
			continue
		}
		bias := loadBias(e, o.base)
		n := 0
		for _, read := range []func() ([]elf.Symbol, error){e.Symbols, e.DynamicSymbols} {
			s, err := read()
			if err != nil {
				continue
			}
			for _, s := range s {
				if s.Value == 0 || elf.ST_TYPE(s.Info) == elf.STT_FILE {
					continue
				}
				syms[s.Name] = Address(s.Value).Add(bias)
				n++
			}
		}
		if n == 0 && symErr == nil {
			symErr = fmt.Errorf("can't read symbols from %s", name)
		}
	}
	return syms, symErr
}

// loadBias returns the difference between the run time addresses of
// e and its link time addresses, given that file offset 0 is mapped at base.
func loadBias(e *elf.File, base Address) int64 {
	if e.Type != elf.ET_DYN || base == 0 {
		return 0
	}
	for _, prog := range e.Progs {
		if prog.Type == elf.PT_LOAD && prog.Off == 0 {
			return base.Sub(Address(prog.Vaddr))
		}
	}
	return int64(base)
}
