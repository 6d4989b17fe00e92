// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The core library is used to read the memory of a HotSpot VM that is
// not cooperating: an ELF core dump, or a running process read from
// the outside. Either one is called the "inferior".
//
// There's nothing Java-specific about this library. See ../hotspot
// for the next layer up, which interprets the memory as a HotSpot heap.
//
// Unlike the Go core reader it descends from, every read returns an
// error instead of panicking: the inferior may be a live process
// that exits while it is being read.
package core

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/jvmcore/arch"
)

// A Process represents the state of the process that core dumped.
type Process struct {
	base string   // base directory from which files in the core can be found
	core *os.File // the core file itself
	exe  *os.File // user-supplied main executable path

	files        map[string]*objFile // files found from the note section
	mainExecName string              // open main executable name

	entryPoint Address
	mappings   []*Mapping // virtual memory mappings, sorted by address
	pageTable  pageTable4 // for fast address->mapping lookups

	arch   *arch.Architecture
	syms   map[string]Address // symbols (could be empty if binaries are stripped)
	symErr error              // an error encountered while reading symbols
	args   string             // first part of args retrieved from NT_PRPSINFO

	mu     sync.RWMutex // held for reading during reads, for writing by Close
	closed bool

	warnings []string // warnings generated during loading
}

var _ AddressSpace = (*Process)(nil)

// Mappings returns a list of virtual memory mappings for p.
func (p *Process) Mappings() []*Mapping {
	return p.mappings
}

// Readable reports whether the address a is readable.
func (p *Process) Readable(a Address) bool {
	return p.pageTable.find(a) != nil
}

// ReadableN reports whether the n bytes starting at address a are readable.
func (p *Process) ReadableN(a Address, n int64) bool {
	for {
		m := p.pageTable.find(a)
		if m == nil || m.perm&Read == 0 {
			return false
		}
		c := m.max.Sub(a)
		if n <= c {
			return true
		}
		n -= c
		a = a.Add(c)
	}
}

// Writeable reports whether the address a was writeable (by the inferior at the time of the core dump).
func (p *Process) Writeable(a Address) bool {
	m := p.pageTable.find(a)
	if m == nil {
		return false
	}
	return m.perm&Write != 0
}

// Arch returns the name of the inferior's architecture, like "amd64".
func (p *Process) Arch() string {
	return p.arch.Name
}

// PtrSize returns the size in bytes of a pointer in the inferior.
func (p *Process) PtrSize() int64 {
	return int64(p.arch.PointerSize)
}

func (p *Process) ByteOrder() binary.ByteOrder {
	return p.arch.ByteOrder
}

// Symbols returns a mapping from name to inferior address, along with
// any error encountered during reading the symbol information.
// (There may be both an error and some returned symbols.)
// Symbols of shared objects are relocated to where they were loaded.
func (p *Process) Symbols() (map[string]Address, error) {
	return p.syms, p.symErr
}

// ReadAt reads len(b) bytes at address a in the inferior
// and stores them in b.
func (p *Process) ReadAt(b []byte, a Address) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return &ReadError{Addr: a, Len: int64(len(b)), Err: ErrTargetUnavailable}
	}
	start, n := a, int64(len(b))
	for len(b) > 0 {
		m := p.pageTable.find(a)
		if m == nil {
			return &ReadError{Addr: start, Len: n, Err: ErrInvalidAddress}
		}
		k := copy(b, m.contents[a.Sub(m.min):])
		b = b[k:]
		a = a.Add(int64(k))
	}
	return nil
}

// ReadPtr returns a pointer loaded from address a of the inferior.
func (p *Process) ReadPtr(a Address) (Address, error) {
	var buf [8]byte
	b := buf[:p.arch.PointerSize]
	if err := p.ReadAt(b, a); err != nil {
		return 0, err
	}
	return decodePtr(p.arch.ByteOrder, b), nil
}

// Close releases the core file and the files it references.
// Reads after Close fail with ErrTargetUnavailable.
func (p *Process) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	var firstErr error
	for _, m := range p.mappings {
		if m.mapped {
			if err := unmapFile(m.contents); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		m.contents = nil
	}
	for _, o := range p.files {
		if o.f != nil && o.f != p.exe {
			o.f.Close()
		}
	}
	if p.exe != nil {
		p.exe.Close()
	}
	if err := p.core.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

var mapFile = func(f *os.File, offset int64, length int) (data []byte, mapped bool, err error) {
	data = make([]byte, length)
	_, err = f.ReadAt(data, offset)
	return data, false, err
}

var unmapFile = func(data []byte) error {
	return nil
}

// Core takes the name of a core file and returns a Process that
// represents the state of the inferior that generated the core file.
// base is the directory in which to look for files the core refers to.
// exePath, if not empty, overrides the main executable found in the core.
func Core(coreFile, base, exePath string) (*Process, error) {
	core, err := os.Open(coreFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open core file: %v", err)
	}

	p := &Process{base: base, core: core, files: make(map[string]*objFile)}
	if exePath != "" {
		bin, err := os.Open(exePath)
		if err != nil {
			core.Close()
			return nil, fmt.Errorf("failed to open executable file: %v", err)
		}
		p.exe = bin
	}
	if err := p.load(); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

func (p *Process) load() error {
	if err := p.readCore(p.core); err != nil {
		return err
	}

	// Sort then merge mappings, just to clean up a bit.
	mappings := p.mappings
	if len(mappings) == 0 {
		return fmt.Errorf("%s has no loadable segments", p.core.Name())
	}
	sort.Slice(mappings, func(i, j int) bool {
		return mappings[i].min < mappings[j].min
	})
	ms := mappings[1:]
	mappings = mappings[:1]
	for _, m := range ms {
		k := mappings[len(mappings)-1]
		if m.min == k.max &&
			m.perm == k.perm &&
			m.f == k.f &&
			m.off == k.off+k.Size() {
			k.max = m.max
		} else {
			mappings = append(mappings, m)
		}
	}
	p.mappings = mappings

	// Memory map all the mappings.
	hostPageSize := int64(os.Getpagesize())
	for _, m := range p.mappings {
		size := m.max.Sub(m.min)
		if m.f == nil {
			// We don't have any source for this data.
			// Could be a mapped file that we couldn't find.
			// Could be a mapping madvised as MADV_DONTDUMP.
			// Pretend this is read-as-zero.
			// The other option is to just throw away
			// the mapping (and thus make Read*s of this
			// mapping fail).
			p.warnings = append(p.warnings,
				fmt.Sprintf("Missing data at addresses [%x %x]. Assuming all zero.", uint64(m.min), uint64(m.max)))
			m.contents = make([]byte, size)
			continue
		}
		if m.perm&Write != 0 && m.f != p.core {
			p.warnings = append(p.warnings,
				fmt.Sprintf("Writeable data at [%x %x] missing from core. Using possibly stale backup source %s.", uint64(m.min), uint64(m.max), m.f.Name()))
		}
		// Data in core file might not be aligned enough for the host.
		// Expand memory range so we can map full pages.
		minOff := m.off
		maxOff := m.off + size
		minOff -= minOff % hostPageSize
		if maxOff%hostPageSize != 0 {
			maxOff += hostPageSize - maxOff%hostPageSize
		}

		// Read data from file.
		data, mapped, err := mapFile(m.f, minOff, int(maxOff-minOff))
		if err != nil {
			return fmt.Errorf("can't memory map %s at %x: %s", m.f.Name(), uint64(minOff), err)
		}
		m.mapped = mapped

		// Trim any data we mapped but don't need.
		data = data[m.off-minOff:]
		data = data[:size]

		m.contents = data
	}

	// Build page table for mapping lookup.
	for _, m := range p.mappings {
		if err := p.pageTable.add(m); err != nil {
			return err
		}
	}

	p.syms, p.symErr = readSymbols(p.files)
	return nil
}

func (p *Process) readCore(core *os.File) error {
	e, err := elf.NewFile(core)
	if err != nil {
		return err
	}
	if e.Type != elf.ET_CORE {
		return fmt.Errorf("%s is not a core file", core.Name())
	}
	p.arch, err = arch.ForELF(&e.FileHeader)
	if err != nil {
		return err
	}

	// Load virtual memory mappings.
	for _, prog := range e.Progs {
		if prog.Type == elf.PT_LOAD {
			p.readLoad(core, prog)
		}
	}
	// Load notes (includes file mapping information).
	for _, prog := range e.Progs {
		if prog.Type == elf.PT_NOTE {
			if err := p.readNote(core, e, prog.Off, prog.Filesz); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Process) addMapping(min, max Address, perm Perm, f *os.File, off int64) {
	p.mappings = append(p.mappings, &Mapping{min: min, max: max, perm: perm, f: f, off: off})
}

func (p *Process) readLoad(f *os.File, prog *elf.Prog) {
	min := Address(prog.Vaddr)
	max := min.Add(int64(prog.Memsz))
	var perm Perm
	if prog.Flags&elf.PF_R != 0 {
		perm |= Read
	}
	if prog.Flags&elf.PF_W != 0 {
		perm |= Write
	}
	if prog.Flags&elf.PF_X != 0 {
		perm |= Exec
	}
	if perm == 0 {
		// TODO: keep these nothing-mapped mappings?
		return
	}
	if prog.Filesz == 0 {
		p.addMapping(min, max, perm, nil, 0)
		return
	}
	// Data backing this mapping is in the core file.
	if prog.Filesz < prog.Memsz {
		// We only have partial data for this mapping in the core file.
		// Trim the mapping and allocate an anonymous mapping for the remainder.
		mid := min.Add(int64(prog.Filesz))
		p.addMapping(min, mid, perm, f, int64(prog.Off))
		p.addMapping(mid, max, perm, nil, 0)
		return
	}
	p.addMapping(min, max, perm, f, int64(prog.Off))
}

func (p *Process) readNote(f *os.File, e *elf.File, off, size uint64) error {
	const NT_FILE elf.NType = 0x46494c45
	const NT_AUXV elf.NType = 0x6

	b := make([]byte, size)
	_, err := f.ReadAt(b, int64(off))
	if err != nil {
		return err
	}
	for len(b) >= 12 {
		namesz := e.ByteOrder.Uint32(b)
		b = b[4:]
		descsz := e.ByteOrder.Uint32(b)
		b = b[4:]
		typ := elf.NType(e.ByteOrder.Uint32(b))
		b = b[4:]
		if uint64(len(b)) < uint64(namesz+3)/4*4+uint64(descsz) {
			return fmt.Errorf("truncated note")
		}
		var name string
		if namesz > 0 {
			name = string(b[:namesz-1])
		}
		b = b[(namesz+3)/4*4:]
		desc := b[:descsz]
		b = b[min(uint64(len(b)), uint64(descsz+3)/4*4):]

		if name != "CORE" {
			continue
		}
		switch typ {
		case NT_FILE:
			if err := p.readNTFile(e, desc); err != nil {
				return fmt.Errorf("reading NT_FILE: %v", err)
			}
		case elf.NT_PRPSINFO:
			if err := p.readPRPSInfo(desc); err != nil {
				return fmt.Errorf("reading NT_PRPSINFO: %v", err)
			}
		case NT_AUXV:
			if entry, ok := findEntryPoint(desc, e.ByteOrder, p.arch.PointerSize); ok {
				p.entryPoint = entry
			}
		}
	}
	return nil
}

func findEntryPoint(auxvDesc []byte, order binary.ByteOrder, ptrSize int) (Address, bool) {
	const _AT_ENTRY = 9

	for len(auxvDesc) >= 2*ptrSize {
		tag := decodePtr(order, auxvDesc[:ptrSize])
		val := decodePtr(order, auxvDesc[ptrSize:2*ptrSize])
		auxvDesc = auxvDesc[2*ptrSize:]
		if tag == _AT_ENTRY {
			return val, true
		}
	}
	return 0, false
}

func (p *Process) readNTFile(e *elf.File, desc []byte) error {
	word := p.arch.PointerSize
	get := func() uint64 {
		v := uint64(decodePtr(e.ByteOrder, desc[:word]))
		desc = desc[word:]
		return v
	}
	if len(desc) < 2*word {
		return fmt.Errorf("short descriptor")
	}
	count := get()
	pagesize := get()
	if uint64(len(desc)) < 3*uint64(word)*count {
		return fmt.Errorf("short descriptor for %d files", count)
	}
	filenames := string(desc[3*uint64(word)*count:])
	desc = desc[:3*uint64(word)*count]

	for i := uint64(0); i < count; i++ {
		min := Address(get())
		max := Address(get())
		off := int64(get() * pagesize)

		var name string
		j := strings.IndexByte(filenames, 0)
		if j >= 0 {
			name = filenames[:j]
			filenames = filenames[j+1:]
		} else {
			name = filenames
			filenames = ""
		}

		// TODO: this is O(n^2). Shouldn't be a big problem in practice.
		p.splitMappingsAt(min)
		p.splitMappingsAt(max)
		for _, m := range p.mappings {
			if m.max <= min || m.min >= max {
				continue
			}
			// m should now be entirely in [min,max]
			if !(m.min >= min && m.max <= max) {
				return fmt.Errorf("mapping [%x %x] overlaps end of file region [%x %x]", uint64(m.min), uint64(m.max), uint64(min), uint64(max))
			}

			fileOff := off + m.min.Sub(min)
			f, err := p.openMappedFile(name, m, fileOff)
			if err != nil {
				// Can't find mapped file.
				// We don't want to make this a hard error because there are
				// lots of possible missing files that probably aren't critical,
				// like a random shared library.
				p.warnings = append(p.warnings, fmt.Sprintf("Missing data for addresses [%x %x] because of failure to %s. Assuming all zero.", uint64(m.min), uint64(m.max), err))
			}

			if m.f == nil {
				m.f = f
				m.off = fileOff
				if f == nil {
					m.path = name
				}
			} else {
				// Data is both in the core file and in a mapped file.
				// The mapped file may be stale (even if it is readonly now,
				// it may have been writeable at some point).
				// Keep the file+offset just for printing.
				m.origF = f
				m.origOff = fileOff
			}
		}
	}
	return nil
}

func (p *Process) openMappedFile(fname string, m *Mapping, off int64) (*os.File, error) {
	if fname == "" {
		return nil, nil
	}

	if backing := p.files[fname]; backing != nil {
		backing.noteBase(m.min, off)
		return backing.f, backing.err
	}

	backing := &objFile{}
	backing.noteBase(m.min, off)

	isMainExe := m.perm&Exec != 0 && p.mainExecName == "" // first executable region
	if p.entryPoint != 0 && m.Min() <= p.entryPoint && p.entryPoint < m.Max() {
		// Or if we have the entry point info and it falls into this mapping, this is the region
		// the main executable is mapped.
		isMainExe = true
	}

	if isMainExe && p.exe != nil {
		p.mainExecName = fname
		backing.f = p.exe
	} else {
		if isMainExe {
			p.mainExecName = fname
		}
		backing.f, backing.err = os.Open(filepath.Join(p.base, fname))
	}

	p.files[fname] = backing

	return backing.f, backing.err
}

// splitMappingsAt ensures that a is not in the middle of any mapping.
// Splits mappings as necessary.
func (p *Process) splitMappingsAt(a Address) {
	for _, m := range p.mappings {
		if a < m.min || a > m.max {
			continue
		}
		if a == m.min || a == m.max {
			return
		}
		// Split this mapping at a.
		m2 := new(Mapping)
		*m2 = *m
		m.max = a
		m2.min = a
		if m2.f != nil {
			m2.off += m.Size()
		}
		if m2.origF != nil {
			m2.origOff += m.Size()
		}
		p.mappings = append(p.mappings, m2)
		return
	}
}

func (p *Process) readPRPSInfo(desc []byte) error {
	r := bytes.NewReader(desc)
	switch p.arch.Name {
	default:
		// TODO: layouts for other architectures.
	case "amd64", "arm64":
		prpsinfo := &linuxPrPsInfo{}
		if err := binary.Read(r, p.arch.ByteOrder, prpsinfo); err != nil {
			return err
		}
		p.args = strings.Trim(string(prpsinfo.Args[:]), "\x00 ")
	}
	return nil
}

func (p *Process) Warnings() []string {
	return p.warnings
}

// Args returns the initial part of the program arguments.
func (p *Process) Args() string {
	return p.args
}

// ELF/Linux types

// linuxPrPsInfo is the info embedded in NT_PRPSINFO.
type linuxPrPsInfo struct {
	State                uint8
	Sname                int8
	Zomb                 uint8
	Nice                 int8
	_                    [4]uint8
	Flag                 uint64
	Uid, Gid             uint32
	Pid, Ppid, Pgrp, Sid int32
	Fname                [16]uint8 // filename of executables
	Args                 [80]uint8 // first part of program args
}
