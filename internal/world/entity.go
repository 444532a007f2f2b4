// Copyright 2024 The lcm3 Authors
// This file is part of lcm3.
//
// lcm3 is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// lcm3 is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with lcm3. If not, see <http://www.gnu.org/licenses/>.

// Package world holds the server's shared entity table, the binary sector
// tree used to accelerate area queries and traces, and the trace sweep
// itself (spec.md §4.4).
package world

import "github.com/lcm3/engine/internal/geom"

// MaxEntities is the fixed size of the shared entity table.
const MaxEntities = 1024

// Byte offsets of the entityShared record as mirrored from guest memory,
// verified empirically against the guest compiler's layout (spec.md §9
// "open questions": the offset contradicts the state struct's documented
// 208-byte size, and is kept literal rather than reconciled).
const (
	stateSize     = 208
	sharedOffset  = 416
	offSvFlags    = sharedOffset + 8
	offSingleClnt = sharedOffset + 12
	offBmodel     = sharedOffset + 16
	offMins       = sharedOffset + 20
	offMaxs       = sharedOffset + 32
	offContents   = sharedOffset + 44
	offOrigin     = sharedOffset + 72
	offAngles     = sharedOffset + 84
	offOwnerNum   = sharedOffset + 96

	// These four are written back into the shared struct itself: entity
	// number (read at the record's own +0, outside the shared struct) and
	// "linked" are different fields at different addresses, even though
	// both are nominally "offset 0" of their respective structs.
	offLinked    = sharedOffset + 0
	offLinkCount = sharedOffset + 4
	offAbsmin    = sharedOffset + 48
	offAbsmax    = sharedOffset + 60
)

// Shared is the host's mirror of one entity's entityShared_t, refreshed
// from guest memory on every LinkEntity call.
type Shared struct {
	SvFlags       int32
	SingleClient  int32
	Bmodel        bool
	Mins, Maxs    geom.Vec3
	Contents      int32
	CurrentOrigin geom.Vec3
	CurrentAngles geom.Vec3
	OwnerNum      int32

	Linked    bool
	LinkCount int32
	Absmin    geom.Vec3
	Absmax    geom.Vec3
}

// Bounds returns the entity's absolute world-space bounding box.
func (s *Shared) Bounds() geom.Bounds {
	return geom.Bounds{Mins: s.Absmin, Maxs: s.Absmax}
}

// entity is the host-side record for one of the MaxEntities slots: its
// last-mirrored Shared state plus the sector-tree linkage.
type entity struct {
	num    int32
	shared Shared
	sector int32 // index into World.sectors, or -1 if unlinked
	next   int32 // next entity number in sector.head's chain, or -1
	prev   int32
}
