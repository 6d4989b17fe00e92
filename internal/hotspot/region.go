// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hotspot

import (
	"fmt"

	"github.com/pkg/errors"

	"golang.org/x/jvmcore/internal/core"
)

// ErrBadRegion reports a region whose start lies above its end, as read
// from a space that was being mutated or from a corrupt core.
var ErrBadRegion = errors.New("region start above end")

// A MemRegion is the half-open address range [Start, End).
type MemRegion struct {
	Start, End core.Address
}

// NewMemRegion returns [start, end). It fails if start > end.
func NewMemRegion(start, end core.Address) (MemRegion, error) {
	if start > end {
		return MemRegion{}, errors.Wrapf(ErrBadRegion, "[%s,%s)", start, end)
	}
	return MemRegion{Start: start, End: end}, nil
}

// Len returns the size of r in bytes.
func (r MemRegion) Len() int64 {
	return r.End.Sub(r.Start)
}

func (r MemRegion) IsEmpty() bool {
	return r.Start == r.End
}

// Contains reports whether a lies in r.
func (r MemRegion) Contains(a core.Address) bool {
	return r.Start <= a && a < r.End
}

// ContainsRegion reports whether o lies entirely in r.
// The empty region is contained in every region.
func (r MemRegion) ContainsRegion(o MemRegion) bool {
	if o.IsEmpty() {
		return true
	}
	return r.Start <= o.Start && o.End <= r.End
}

// Intersect returns the overlap of r and o, which is empty if they
// are disjoint.
func (r MemRegion) Intersect(o MemRegion) MemRegion {
	s := r.Start.Max(o.Start)
	e := r.End.Min(o.End)
	if e < s {
		e = s
	}
	return MemRegion{Start: s, End: e}
}

// Union returns the smallest region covering both r and o.
func (r MemRegion) Union(o MemRegion) MemRegion {
	if r.IsEmpty() {
		return o
	}
	if o.IsEmpty() {
		return r
	}
	return MemRegion{Start: r.Start.Min(o.Start), End: r.End.Max(o.End)}
}

// WordSize returns the size of r in words of ptrSize bytes.
func (r MemRegion) WordSize(ptrSize int64) int64 {
	return r.Len() / ptrSize
}

func (r MemRegion) String() string {
	return fmt.Sprintf("[%s,%s)", r.Start, r.End)
}
