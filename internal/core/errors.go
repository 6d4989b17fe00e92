// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package core

import (
	"errors"
	"fmt"
)

var (
	// ErrTargetUnavailable reports that the inferior can no longer be
	// read: the core file was closed or the process exited.
	ErrTargetUnavailable = errors.New("target unavailable")

	// ErrInvalidAddress reports a read outside every mapping of the inferior.
	ErrInvalidAddress = errors.New("invalid address")
)

// A ReadError records a failed read of the inferior's memory.
// Err is ErrTargetUnavailable, ErrInvalidAddress, or an error from
// the operating system.
type ReadError struct {
	Addr Address
	Len  int64
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read of %d bytes at %x: %v", e.Len, uint64(e.Addr), e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}
