// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package core

import (
	"fmt"

	"github.com/prometheus/procfs"
)

// procMappings returns the memory map of process pid.
func procMappings(pid int) ([]*Mapping, error) {
	p, err := procfs.NewProc(pid)
	if err != nil {
		return nil, err
	}
	pms, err := p.ProcMaps()
	if err != nil {
		return nil, err
	}
	return mappingsFromProcMaps(pms)
}

func mappingsFromProcMaps(pms []*procfs.ProcMap) ([]*Mapping, error) {
	mappings := make([]*Mapping, 0, len(pms))
	for _, pm := range pms {
		if pm.EndAddr < pm.StartAddr {
			return nil, fmt.Errorf("bad mapping [%x,%x)", pm.StartAddr, pm.EndAddr)
		}
		var perm Perm
		if pm.Perms != nil {
			if pm.Perms.Read {
				perm |= Read
			}
			if pm.Perms.Write {
				perm |= Write
			}
			if pm.Perms.Execute {
				perm |= Exec
			}
		}
		mappings = append(mappings, &Mapping{
			min:  Address(pm.StartAddr),
			max:  Address(pm.EndAddr),
			perm: perm,
			off:  pm.Offset,
			path: pm.Pathname,
		})
	}
	return mappings, nil
}
