// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package core

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ReadMetrics counts the reads made through an instrumented AddressSpace.
type ReadMetrics struct {
	Reads *prometheus.CounterVec
	Bytes prometheus.Counter
}

// NewReadMetrics registers read counters with reg.
func NewReadMetrics(reg prometheus.Registerer) *ReadMetrics {
	f := promauto.With(reg)
	return &ReadMetrics{
		Reads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jvmcore",
			Subsystem: "target",
			Name:      "reads_total",
			Help:      "Reads of inferior memory, by operation and result.",
		}, []string{"op", "result"}),
		Bytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: "jvmcore",
			Subsystem: "target",
			Name:      "read_bytes_total",
			Help:      "Bytes successfully read from inferior memory.",
		}),
	}
}

type instrumented struct {
	AddressSpace
	m *ReadMetrics
}

// Instrument returns an AddressSpace that forwards to as and
// records every read in m.
func Instrument(as AddressSpace, m *ReadMetrics) AddressSpace {
	return &instrumented{AddressSpace: as, m: m}
}

func (s *instrumented) ReadAt(b []byte, a Address) error {
	err := s.AddressSpace.ReadAt(b, a)
	s.observe("bytes", err, len(b))
	return err
}

func (s *instrumented) ReadPtr(a Address) (Address, error) {
	p, err := s.AddressSpace.ReadPtr(a)
	s.observe("ptr", err, int(s.PtrSize()))
	return p, err
}

func (s *instrumented) observe(op string, err error, n int) {
	s.m.Reads.WithLabelValues(op, resultLabel(err)).Inc()
	if err == nil {
		s.m.Bytes.Add(float64(n))
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidAddress):
		return "invalid_address"
	case errors.Is(err, ErrTargetUnavailable):
		return "target_unavailable"
	}
	return "error"
}
