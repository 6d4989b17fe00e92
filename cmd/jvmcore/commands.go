// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"

	"golang.org/x/jvmcore/internal/config"
	"golang.org/x/jvmcore/internal/core"
	"golang.org/x/jvmcore/internal/hotspot"
)

func runOverview(s *session, w io.Writer, args []string) error {
	t, err := s.target()
	if err != nil {
		return err
	}
	h, err := s.Heap()
	if err != nil {
		return err
	}
	snap, err := h.Snapshot()
	if err != nil {
		return err
	}
	var total int64
	for _, m := range t.Mappings() {
		total += m.Max().Sub(m.Min())
	}

	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)
	fmt.Fprintf(tw, "arch\t%s\n", t.Arch())
	fmt.Fprintf(tw, "pointer size\t%d\n", t.PtrSize())
	fmt.Fprintf(tw, "memory\t%s\n", humanize.IBytes(uint64(total)))
	fmt.Fprintf(tw, "heap\t%s %s\n", h.Type(), h.Addr())
	fmt.Fprintf(tw, "heap used\t%s\n", humanize.IBytes(uint64(snap.Used())))
	fmt.Fprintf(tw, "heap capacity\t%s\n", humanize.IBytes(uint64(snap.Capacity())))
	return tw.Flush()
}

func runUniverse(s *session, w io.Writer, args []string) error {
	h, err := s.Heap()
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "Heap Parameters:")
	if err := h.Print(w); err != nil {
		return err
	}
	fmt.Fprintln(w)
	return nil
}

func runSpaces(s *session, w io.Writer, args []string) error {
	h, err := s.Heap()
	if err != nil {
		return err
	}
	snap, err := h.Snapshot()
	if err != nil {
		return err
	}
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Generation", "Space", "Bottom", "Top", "End", "Used", "Capacity", "Live"})
	for _, g := range []hotspot.GenerationSnapshot{snap.Young, snap.Old} {
		for _, ns := range g.Spaces {
			table.Append([]string{
				g.Kind.String(),
				ns.Label,
				ns.Bottom.String(),
				ns.Top.String(),
				ns.End.String(),
				humanize.IBytes(uint64(ns.Used())),
				humanize.IBytes(uint64(ns.Capacity())),
				strconv.FormatBool(ns.Live),
			})
		}
	}
	table.SetFooter([]string{"", "", "", "", "total",
		humanize.IBytes(uint64(snap.Used())),
		humanize.IBytes(uint64(snap.Capacity())),
		""})
	table.Render()
	return nil
}

func runRegions(s *session, w io.Writer, args []string) error {
	h, err := s.Heap()
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)
	fmt.Fprintf(tw, "space\tregion\tsize\n")
	err = h.ForEachLiveRegion(func(label string, r hotspot.MemRegion) bool {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", label, r, r.Len())
		return true
	})
	if err != nil {
		return err
	}
	return tw.Flush()
}

func runContains(s *session, w io.Writer, args []string) error {
	addrs := make([]core.Address, len(args))
	for i, arg := range args {
		a, err := config.ParseAddress(arg)
		if err != nil {
			return usageErrorf("can't parse %q as an address", arg)
		}
		addrs[i] = a
	}
	h, err := s.Heap()
	if err != nil {
		return err
	}
	young, err := h.Young()
	if err != nil {
		return err
	}
	old, err := h.Old()
	if err != nil {
		return err
	}
	for _, a := range addrs {
		where, err := locate(h, young, old, a)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s: %s\n", a, where)
	}
	return nil
}

// locate says which part of the heap a falls in.
func locate(h hotspot.Heap, young, old hotspot.Generation, a core.Address) (string, error) {
	in, err := h.Contains(a)
	if err != nil {
		return "", err
	}
	for _, g := range []hotspot.Generation{young, old} {
		label, err := g.SpaceOf(a)
		if err != nil {
			return "", err
		}
		if label == "" {
			continue
		}
		if !in {
			return fmt.Sprintf("reserved (%s %s, not live)", g.Kind(), label), nil
		}
		return fmt.Sprintf("heap (%s %s)", g.Kind(), label), nil
	}
	return "not in heap", nil
}

func runMappings(s *session, w io.Writer, args []string) error {
	t, err := s.target()
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "min\tmax\tperm\tsource\toriginal\t\n")
	for _, m := range t.Mappings() {
		file, off := m.Source()
		fmt.Fprintf(tw, "%x\t%x\t%s\t%s@%x\t", uint64(m.Min()), uint64(m.Max()), m.Perm().Short(), file, off)
		if m.CopyOnWrite() {
			file, off = m.OrigSource()
			fmt.Fprintf(tw, "%s@%x", file, off)
		}
		fmt.Fprintf(tw, "\t\n")
	}
	return tw.Flush()
}

// maxRead bounds the size of a single read command.
const maxRead = 1 << 20

func runRead(s *session, w io.Writer, args []string) error {
	a, err := config.ParseAddress(args[0])
	if err != nil {
		return usageErrorf("can't parse %q as an address", args[0])
	}
	n := int64(256)
	if len(args) > 1 {
		n, err = strconv.ParseInt(args[1], 10, 64)
		if err != nil || n < 0 {
			return usageErrorf("can't parse %q as a byte count", args[1])
		}
		if n > maxRead {
			return usageErrorf("byte count %d exceeds the limit of %d", n, maxRead)
		}
	}
	as, err := s.addressSpace()
	if err != nil {
		return err
	}
	b := make([]byte, n)
	if err := as.ReadAt(b, a); err != nil {
		return errors.Wrapf(err, "address range [%x,%x) not readable", uint64(a), uint64(a.Add(n)))
	}
	hexDump(w, a, b)
	return nil
}

// hexDump writes b, which was read from a, 16 bytes to a line.
func hexDump(w io.Writer, a core.Address, b []byte) {
	for i, x := range b {
		if i%16 == 0 {
			if i > 0 {
				fmt.Fprintln(w)
			}
			fmt.Fprintf(w, "%x:", uint64(a.Add(int64(i))))
		}
		fmt.Fprintf(w, " %02x", x)
	}
	fmt.Fprintln(w)
}

func runSchemaDump(s *session, w io.Writer, args []string) error {
	db, err := s.DB()
	if err != nil {
		return err
	}
	data, err := db.Marshal()
	if err != nil {
		return err
	}
	if args[0] == "-" {
		_, err = w.Write(data)
		return err
	}
	if err := os.WriteFile(args[0], data, 0644); err != nil {
		return err
	}
	fmt.Fprintf(w, "wrote %d types and %d fields to %s\n", len(db.Types()), db.NumFields(), args[0])
	return nil
}

func runTypes(s *session, w io.Writer, args []string) error {
	db, err := s.DB()
	if err != nil {
		return err
	}
	table := tablewriter.NewWriter(w)
	if len(args) == 0 {
		table.SetHeader([]string{"Type", "Superclass", "Size"})
		for _, t := range db.Types() {
			table.Append([]string{t.Name, t.Superclass, strconv.FormatInt(t.Size, 10)})
		}
		table.Render()
		return nil
	}

	fields, err := db.Fields(args[0])
	if err != nil {
		return err
	}
	table.SetHeader([]string{"Field", "Type", "Offset"})
	for _, f := range fields {
		where := fmt.Sprintf("%d", f.Offset)
		if f.Static {
			where = "static " + f.Address.String()
		}
		table.Append([]string{f.Name, f.TypeString, where})
	}
	table.Render()
	return nil
}
