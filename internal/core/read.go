// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package core

import (
	"bytes"
	"encoding/binary"
)

// An AddressSpace is a readable view of an inferior's memory.
// Implementations must be safe for concurrent use.
type AddressSpace interface {
	// PtrSize returns the size in bytes of a pointer in the inferior.
	PtrSize() int64
	// ByteOrder returns the byte order of the inferior.
	ByteOrder() binary.ByteOrder
	// ReadAt fills b with the bytes starting at address a.
	// The read is all or nothing.
	ReadAt(b []byte, a Address) error
	// ReadPtr reads a pointer-sized value at address a.
	ReadPtr(a Address) (Address, error)
}

// decodePtr decodes a pointer of len(b) bytes.
func decodePtr(order binary.ByteOrder, b []byte) Address {
	switch len(b) {
	case 4:
		return Address(order.Uint32(b))
	case 8:
		return Address(order.Uint64(b))
	}
	panic("bad pointer size")
}

// ReadUint8 returns a uint8 read from address a of the inferior.
func ReadUint8(as AddressSpace, a Address) (uint8, error) {
	var buf [1]byte
	if err := as.ReadAt(buf[:], a); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// ReadUint32 returns a uint32 read from address a of the inferior.
func ReadUint32(as AddressSpace, a Address) (uint32, error) {
	var buf [4]byte
	if err := as.ReadAt(buf[:], a); err != nil {
		return 0, err
	}
	return as.ByteOrder().Uint32(buf[:]), nil
}

// ReadInt32 returns an int32 read from address a of the inferior.
func ReadInt32(as AddressSpace, a Address) (int32, error) {
	x, err := ReadUint32(as, a)
	return int32(x), err
}

// ReadUint64 returns a uint64 read from address a of the inferior.
func ReadUint64(as AddressSpace, a Address) (uint64, error) {
	var buf [8]byte
	if err := as.ReadAt(buf[:], a); err != nil {
		return 0, err
	}
	return as.ByteOrder().Uint64(buf[:]), nil
}

// ReadInt64 returns an int64 read from address a of the inferior.
func ReadInt64(as AddressSpace, a Address) (int64, error) {
	x, err := ReadUint64(as, a)
	return int64(x), err
}

// ReadCString reads a NUL-terminated string starting at address a.
// At most max bytes are examined.
func ReadCString(as AddressSpace, a Address, max int) (string, error) {
	var out []byte
	var chunk [64]byte
	for len(out) < max {
		n := len(chunk)
		if max-len(out) < n {
			n = max - len(out)
		}
		b := chunk[:n]
		if err := as.ReadAt(b, a); err != nil {
			// The string may end just before an unmapped page.
			// Fall back to reading a byte at a time.
			for i := range b {
				c, err2 := ReadUint8(as, a.Add(int64(i)))
				if err2 != nil {
					return "", err2
				}
				if c == 0 {
					return string(out) + string(b[:i]), nil
				}
				b[i] = c
			}
		}
		if i := bytes.IndexByte(b, 0); i >= 0 {
			return string(append(out, b[:i]...)), nil
		}
		out = append(out, b...)
		a = a.Add(int64(n))
	}
	return string(out), nil
}
