// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !linux

package core

import (
	"encoding/binary"
	"errors"
)

var errNoLive = errors.New("reading a running process is only supported on linux")

// A Live is a running process. Only supported on linux.
type Live struct{}

var _ AddressSpace = (*Live)(nil)

func Attach(pid int) (*Live, error) {
	return nil, errNoLive
}

func (l *Live) Pid() int                            { return 0 }
func (l *Live) Arch() string                        { return "" }
func (l *Live) PtrSize() int64                      { return 8 }
func (l *Live) ByteOrder() binary.ByteOrder         { return binary.LittleEndian }
func (l *Live) Mappings() []*Mapping                { return nil }
func (l *Live) Symbols() (map[string]Address, error) { return nil, errNoLive }
func (l *Live) ReadAt(b []byte, a Address) error    { return errNoLive }
func (l *Live) ReadPtr(a Address) (Address, error)  { return 0, errNoLive }
func (l *Live) Stop() error                         { return errNoLive }
func (l *Live) Cont() error                         { return errNoLive }
func (l *Live) Close() error                        { return nil }
