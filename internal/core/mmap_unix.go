// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build darwin || dragonfly || freebsd || linux || netbsd || openbsd || solaris

package core

import (
	"os"

	"golang.org/x/sys/unix"
)

func init() {
	mapFile = func(f *os.File, offset int64, length int) ([]byte, bool, error) {
		if length == 0 {
			return nil, false, nil
		}
		data, err := unix.Mmap(int(f.Fd()), offset, length, unix.PROT_READ, unix.MAP_SHARED)
		if err != nil {
			return nil, false, err
		}
		return data, true, nil
	}
	unmapFile = func(data []byte) error {
		return unix.Munmap(data)
	}
}
