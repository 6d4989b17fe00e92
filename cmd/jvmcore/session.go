// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"golang.org/x/jvmcore/internal/config"
	"golang.org/x/jvmcore/internal/core"
	"golang.org/x/jvmcore/internal/hotspot"
	"golang.org/x/jvmcore/internal/vmstructs"
)

// A target is an opened core file or running process.
type target interface {
	core.AddressSpace
	Arch() string
	Mappings() []*core.Mapping
	Symbols() (map[string]core.Address, error)
	Close() error
}

// A pauser can suspend the target while a command runs.
type pauser interface {
	Stop() error
	Cont() error
}

// A session holds what commands share: the target, its type layouts
// and its heap. Each piece is loaded on first use.
type session struct {
	cfg    *config.Config
	logger log.Logger

	tgt target
	as  core.AddressSpace // tgt, instrumented when stats are on
	reg *prometheus.Registry

	db   *vmstructs.DB
	heap *hotspot.Heap
}

func newSession(cfg *config.Config, logger log.Logger) *session {
	return &session{cfg: cfg, logger: logger}
}

// target opens the configured core file or process.
func (s *session) target() (target, error) {
	if s.tgt != nil {
		return s.tgt, nil
	}
	if !s.cfg.HasTarget() {
		return nil, usageErrorf("no target; use --core or --pid")
	}
	var (
		t   target
		err error
	)
	if s.cfg.Target.Pid != 0 {
		t, err = core.Attach(s.cfg.Target.Pid)
	} else {
		var p *core.Process
		p, err = core.Core(s.cfg.Target.Core, s.cfg.Target.Base, s.cfg.Target.Exe)
		if err == nil {
			if args := p.Args(); args != "" {
				level.Debug(s.logger).Log("msg", "core generated by", "args", args)
			}
			for _, w := range p.Warnings() {
				level.Warn(s.logger).Log("msg", w)
			}
			t = p
		}
	}
	if err != nil {
		if os.IsNotExist(err) && s.cfg.Target.Exe == "" && s.cfg.Target.Core != "" {
			return nil, fmt.Errorf("%v; consider specifying the --exe flag", err)
		}
		return nil, err
	}
	s.setTarget(t)
	level.Debug(s.logger).Log("msg", "opened target", "arch", t.Arch(), "mappings", len(t.Mappings()))
	return t, nil
}

func (s *session) setTarget(t target) {
	s.tgt = t
	s.as = t
	if s.cfg.Stats {
		s.reg = prometheus.NewRegistry()
		s.as = core.Instrument(t, core.NewReadMetrics(s.reg))
	}
}

// addressSpace returns the target's memory.
func (s *session) addressSpace() (core.AddressSpace, error) {
	if _, err := s.target(); err != nil {
		return nil, err
	}
	return s.as, nil
}

// DB returns the type layouts, from the schema file if one is
// configured and from the target's vmStructs tables otherwise.
func (s *session) DB() (*vmstructs.DB, error) {
	if s.db != nil {
		return s.db, nil
	}
	var (
		db  *vmstructs.DB
		err error
	)
	if f := s.cfg.Schema.File; f != "" {
		db, err = vmstructs.Load(f)
	} else {
		db, err = s.introspect()
	}
	if err != nil {
		return nil, err
	}
	level.Debug(s.logger).Log("msg", "loaded type layouts", "types", len(db.Types()), "fields", db.NumFields())
	s.db = db
	return db, nil
}

func (s *session) introspect() (*vmstructs.DB, error) {
	t, err := s.target()
	if err != nil {
		return nil, err
	}
	syms, err := t.Symbols()
	if err != nil {
		return nil, errors.Wrap(err, "reading symbols")
	}
	return vmstructs.ReadIntrospection(s.logger, s.as, syms)
}

// Heap returns the configured heap, or the one Universe points at.
func (s *session) Heap() (hotspot.Heap, error) {
	if s.heap != nil {
		return *s.heap, nil
	}
	as, err := s.addressSpace()
	if err != nil {
		return hotspot.Heap{}, err
	}
	db, err := s.DB()
	if err != nil {
		return hotspot.Heap{}, err
	}
	var h hotspot.Heap
	if a, ok, _ := s.cfg.HeapAddr(); ok {
		h, err = hotspot.NewHeap(as, db, a)
	} else {
		h, err = hotspot.FindHeap(as, db)
	}
	if err != nil {
		return hotspot.Heap{}, err
	}
	if syms, err := s.tgt.Symbols(); err == nil {
		if err := h.CheckDynamicType(syms); err != nil {
			return hotspot.Heap{}, err
		}
	}
	level.Debug(s.logger).Log("msg", "found heap", "addr", h.Addr())
	s.heap = &h
	return h, nil
}

// pause stops a running target if configured to, and returns the
// function that resumes it.
func (s *session) pause() (func(), error) {
	if !s.cfg.Target.Pause {
		return func() {}, nil
	}
	t, err := s.target()
	if err != nil {
		return nil, err
	}
	p, ok := t.(pauser)
	if !ok {
		return func() {}, nil
	}
	if err := p.Stop(); err != nil {
		return nil, err
	}
	return func() {
		if err := p.Cont(); err != nil {
			level.Error(s.logger).Log("msg", "failed to resume target", "err", err)
		}
	}, nil
}

// logStats logs the read counters gathered so far.
func (s *session) logStats() {
	if s.reg == nil {
		return
	}
	mfs, err := s.reg.Gather()
	if err != nil {
		level.Error(s.logger).Log("msg", "failed to gather read stats", "err", err)
		return
	}
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			var labels []string
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			level.Info(s.logger).Log("metric", mf.GetName(), "labels", strings.Join(labels, ","), "value", m.GetCounter().GetValue())
		}
	}
}

func (s *session) Close() error {
	if s.tgt == nil {
		return nil
	}
	return s.tgt.Close()
}
