// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package core_test

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"golang.org/x/jvmcore/internal/core"
	"golang.org/x/jvmcore/internal/coretest"
)

func TestInstrument(t *testing.T) {
	mem := coretest.NewMemory(8)
	mem.WritePtr(0x1000, 0x2000)

	m := core.NewReadMetrics(prometheus.NewPedanticRegistry())
	as := core.Instrument(mem, m)

	if p, err := as.ReadPtr(0x1000); err != nil || p != 0x2000 {
		t.Fatalf("ReadPtr = %s, %v; want 0x2000, nil", p, err)
	}
	if _, err := as.ReadPtr(0x3000); !errors.Is(err, core.ErrInvalidAddress) {
		t.Fatalf("ReadPtr of unmapped address error = %v", err)
	}
	if err := as.ReadAt(make([]byte, 4), 0x1000); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	mem.Close()
	if err := as.ReadAt(make([]byte, 4), 0x1000); !errors.Is(err, core.ErrTargetUnavailable) {
		t.Fatalf("ReadAt after Close error = %v", err)
	}

	for _, tc := range []struct {
		op, result string
		want       float64
	}{
		{"ptr", "ok", 1},
		{"ptr", "invalid_address", 1},
		{"bytes", "ok", 1},
		{"bytes", "target_unavailable", 1},
	} {
		if got := testutil.ToFloat64(m.Reads.WithLabelValues(tc.op, tc.result)); got != tc.want {
			t.Errorf("reads{op=%q,result=%q} = %v, want %v", tc.op, tc.result, got, tc.want)
		}
	}
	if got := testutil.ToFloat64(m.Bytes); got != 12 {
		t.Errorf("read bytes = %v, want 12", got)
	}
	if got := as.PtrSize(); got != 8 {
		t.Errorf("PtrSize through wrapper = %d", got)
	}
}
