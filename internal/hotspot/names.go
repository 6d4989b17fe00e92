// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hotspot

// Names of the VM types and fields read by this package, as they
// appear in the vmStructs tables.
const (
	TypeHeap     = "ParallelScavengeHeap"
	TypeYoungGen = "PSYoungGen"
	TypeOldGen   = "PSOldGen"
	TypeSpace    = "MutableSpace"
	TypeUniverse = "Universe"

	FieldYoungGen    = "_young_gen"
	FieldOldGen      = "_old_gen"
	FieldEdenSpace   = "_eden_space"
	FieldFromSpace   = "_from_space"
	FieldToSpace     = "_to_space"
	FieldObjectSpace = "_object_space"
	FieldBottom      = "_bottom"
	FieldTop         = "_top"
	FieldEnd         = "_end"

	// Static field of Universe pointing at the CollectedHeap.
	FieldCollectedHeap = "_collectedHeap"
)
