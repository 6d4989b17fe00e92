// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package coretest provides an in-memory inferior for tests.
package coretest

import (
	"encoding/binary"
	"sync"

	"golang.org/x/jvmcore/internal/core"
)

// A Memory is a sparse, writable core.AddressSpace.
// Only bytes that have been written are readable.
type Memory struct {
	ptrSize int64
	order   binary.ByteOrder

	mu     sync.Mutex
	bytes  map[core.Address]byte
	reads  int
	closed bool
}

var _ core.AddressSpace = (*Memory)(nil)

// NewMemory returns an empty little-endian Memory with pointers of ptrSize bytes.
func NewMemory(ptrSize int64) *Memory {
	if ptrSize != 4 && ptrSize != 8 {
		panic("bad pointer size")
	}
	return &Memory{ptrSize: ptrSize, order: binary.LittleEndian, bytes: map[core.Address]byte{}}
}

func (m *Memory) PtrSize() int64              { return m.ptrSize }
func (m *Memory) ByteOrder() binary.ByteOrder { return m.order }

// Reads returns the number of ReadAt and ReadPtr calls made so far.
func (m *Memory) Reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

// Close makes every later read fail with core.ErrTargetUnavailable.
func (m *Memory) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

func (m *Memory) ReadAt(b []byte, a core.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	return m.readLocked(b, a)
}

func (m *Memory) readLocked(b []byte, a core.Address) error {
	if m.closed {
		return &core.ReadError{Addr: a, Len: int64(len(b)), Err: core.ErrTargetUnavailable}
	}
	for i := range b {
		c, ok := m.bytes[a.Add(int64(i))]
		if !ok {
			return &core.ReadError{Addr: a, Len: int64(len(b)), Err: core.ErrInvalidAddress}
		}
		b[i] = c
	}
	return nil
}

func (m *Memory) ReadPtr(a core.Address) (core.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	b := make([]byte, m.ptrSize)
	if err := m.readLocked(b, a); err != nil {
		return 0, err
	}
	if m.ptrSize == 4 {
		return core.Address(m.order.Uint32(b)), nil
	}
	return core.Address(m.order.Uint64(b)), nil
}

// Write stores b at address a.
func (m *Memory) Write(a core.Address, b []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, c := range b {
		m.bytes[a.Add(int64(i))] = c
	}
}

// WritePtr stores the pointer v at address a.
func (m *Memory) WritePtr(a, v core.Address) {
	b := make([]byte, m.ptrSize)
	if m.ptrSize == 4 {
		m.order.PutUint32(b, uint32(v))
	} else {
		m.order.PutUint64(b, uint64(v))
	}
	m.Write(a, b)
}

// WriteUint32 stores v at address a.
func (m *Memory) WriteUint32(a core.Address, v uint32) {
	b := make([]byte, 4)
	m.order.PutUint32(b, v)
	m.Write(a, b)
}

// WriteUint64 stores v at address a.
func (m *Memory) WriteUint64(a core.Address, v uint64) {
	b := make([]byte, 8)
	m.order.PutUint64(b, v)
	m.Write(a, b)
}

// WriteCString stores s followed by a NUL byte at address a.
func (m *Memory) WriteCString(a core.Address, s string) {
	m.Write(a, append([]byte(s), 0))
}
