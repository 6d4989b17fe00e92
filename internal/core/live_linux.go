// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package core

import (
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"

	"golang.org/x/jvmcore/arch"
)

// A Live is a running process whose memory is read with process_vm_readv(2).
//
// Reads observe the process as it runs. Callers that need several reads to
// agree with each other should Stop the process first and Cont it afterwards.
type Live struct {
	pid      int
	arch     *arch.Architecture
	mappings []*Mapping
	syms     map[string]Address
	symErr   error
	closed   atomic.Bool
}

var _ AddressSpace = (*Live)(nil)

// Attach returns a Live reading the memory of process pid.
// The caller needs the same permissions as for ptrace(2).
func Attach(pid int) (*Live, error) {
	root := fmt.Sprintf("/proc/%d/root", pid)

	exe, err := elf.Open(fmt.Sprintf("/proc/%d/exe", pid))
	if err != nil {
		return nil, fmt.Errorf("failed to open executable of process %d: %v", pid, err)
	}
	a, err := arch.ForELF(&exe.FileHeader)
	exe.Close()
	if err != nil {
		return nil, err
	}

	mappings, err := procMappings(pid)
	if err != nil {
		return nil, fmt.Errorf("reading proc maps %d: %w", pid, err)
	}

	l := &Live{pid: pid, arch: a, mappings: mappings}

	files := map[string]*objFile{}
	for _, m := range mappings {
		if !strings.HasPrefix(m.path, "/") {
			// [heap], [stack], anonymous mappings, ...
			continue
		}
		o := files[m.path]
		if o == nil {
			o = &objFile{}
			o.f, o.err = os.Open(root + m.path)
			files[m.path] = o
		}
		o.noteBase(m.min, m.off)
	}
	l.syms, l.symErr = readSymbols(files)
	for _, o := range files {
		if o.f != nil {
			o.f.Close()
		}
	}
	return l, nil
}

// Pid returns the process id of the inferior.
func (l *Live) Pid() int {
	return l.pid
}

func (l *Live) Arch() string {
	return l.arch.Name
}

func (l *Live) PtrSize() int64 {
	return int64(l.arch.PointerSize)
}

func (l *Live) ByteOrder() binary.ByteOrder {
	return l.arch.ByteOrder
}

// Mappings returns the memory map of the process at the time of Attach.
func (l *Live) Mappings() []*Mapping {
	return l.mappings
}

// Symbols returns the relocated symbols of the executable and shared
// objects mapped at the time of Attach.
func (l *Live) Symbols() (map[string]Address, error) {
	return l.syms, l.symErr
}

func (l *Live) ReadAt(b []byte, a Address) error {
	if len(b) == 0 {
		return nil
	}
	if l.closed.Load() {
		return &ReadError{Addr: a, Len: int64(len(b)), Err: ErrTargetUnavailable}
	}
	local := []unix.Iovec{{Base: &b[0]}}
	local[0].SetLen(len(b))
	remote := []unix.RemoteIovec{{Base: uintptr(a), Len: len(b)}}
	n, err := unix.ProcessVMReadv(l.pid, local, remote, 0)
	switch {
	case errors.Is(err, unix.ESRCH):
		return &ReadError{Addr: a, Len: int64(len(b)), Err: ErrTargetUnavailable}
	case errors.Is(err, unix.EFAULT), errors.Is(err, unix.EIO):
		return &ReadError{Addr: a, Len: int64(len(b)), Err: ErrInvalidAddress}
	case err != nil:
		return &ReadError{Addr: a, Len: int64(len(b)), Err: err}
	case n < len(b):
		// A partial read stops at the first unmapped page.
		return &ReadError{Addr: a, Len: int64(len(b)), Err: ErrInvalidAddress}
	}
	return nil
}

func (l *Live) ReadPtr(a Address) (Address, error) {
	var buf [8]byte
	b := buf[:l.arch.PointerSize]
	if err := l.ReadAt(b, a); err != nil {
		return 0, err
	}
	return decodePtr(l.arch.ByteOrder, b), nil
}

// stopTimeout bounds how long Stop waits for the process to stop.
const stopTimeout = time.Second

// Stop suspends the process with SIGSTOP. It returns once the kernel
// reports the process stopped, so reads that follow see no mutator.
func (l *Live) Stop() error {
	if err := l.signal(unix.SIGSTOP); err != nil {
		return err
	}
	return l.waitStopped(stopTimeout)
}

// waitStopped polls /proc/pid/stat until the process is in state T.
func (l *Live) waitStopped(timeout time.Duration) error {
	p, err := procfs.NewProc(l.pid)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrTargetUnavailable
		}
		return err
	}
	deadline := time.Now().Add(timeout)
	for {
		st, err := p.Stat()
		switch {
		case errors.Is(err, os.ErrNotExist):
			return ErrTargetUnavailable
		case err != nil:
			return fmt.Errorf("reading state of process %d: %v", l.pid, err)
		}
		switch st.State {
		case "T", "t":
			return nil
		case "Z", "X":
			return ErrTargetUnavailable
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("process %d not stopped %v after SIGSTOP (state %s)", l.pid, timeout, st.State)
		}
		time.Sleep(time.Millisecond)
	}
}

// Cont resumes a process suspended by Stop.
func (l *Live) Cont() error {
	return l.signal(unix.SIGCONT)
}

func (l *Live) signal(sig unix.Signal) error {
	if err := unix.Kill(l.pid, sig); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return ErrTargetUnavailable
		}
		return fmt.Errorf("signal %v to process %d: %v", sig, l.pid, err)
	}
	return nil
}

// Close detaches from the process. Reads after Close fail with
// ErrTargetUnavailable. The process itself is unaffected.
func (l *Live) Close() error {
	l.closed.Store(true)
	return nil
}
