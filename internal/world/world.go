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

package world

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/holiman/bloomfilter/v2"

	"github.com/lcm3/engine/internal/geom"
	"github.com/lcm3/engine/internal/vlog"
	"github.com/lcm3/engine/internal/vm"
)

// Collider is the world collision model: the non-entity geometry a trace
// sweeps against before entities are considered. Loading and evaluating the
// actual brush/patch geometry is a non-goal of this engine (it belongs to
// the map-decoder collaborator); NullCollider is the zero-geometry default
// used when no real collision model is wired in.
type Collider interface {
	Trace(start, end, mins, maxs geom.Vec3) geom.TraceResult
	PointContents(point geom.Vec3) int32
}

// NullCollider reports no world geometry at all: every trace runs to
// completion (fraction 1) unless an entity is hit.
type NullCollider struct{}

func (NullCollider) Trace(start, _, _, _ geom.Vec3) geom.TraceResult {
	return geom.TraceResult{Fraction: 1, EndPos: start, EntityNum: -1}
}
func (NullCollider) PointContents(geom.Vec3) int32 { return 0 }

// World is the shared entity table: MaxEntities slots, a binary sector
// tree for area queries, and the trace sweep that combines world collision
// with entity collision (spec.md §4.4).
type World struct {
	mu       sync.Mutex
	entities [MaxEntities]entity
	sectors  []sector
	collider Collider
	log      vlog.Logger

	gentityAddr   vm.Addr
	gentityStride int32
	gentityCount  int32

	// areaCache memoizes EntitiesInBox results for repeated query boxes:
	// entitiesInBox is called every tick from multiple syscalls with
	// frequently-repeated boxes (SPEC_FULL.md domain stack).
	areaCache *lru.Cache

	// visitedSize is the bloom filter size EntitiesInBox allocates fresh on
	// each descent to short-circuit duplicate entity visits when a
	// straddling box is tested against more than one sibling subtree.
	visitedSize uint64
}

// New builds a World over bounds, the map's overall playable volume, used
// to seed the sector tree split.
func New(bounds geom.Bounds, collider Collider) *World {
	if collider == nil {
		collider = NullCollider{}
	}
	cache, _ := lru.New(256)
	w := &World{
		sectors:     buildSectors(bounds),
		collider:    collider,
		log:         vlog.New("module", "world"),
		areaCache:   cache,
		visitedSize: 2048,
	}
	for i := range w.entities {
		w.entities[i].num = int32(i)
		w.entities[i].sector = -1
	}
	return w
}

// LocateGameData implements syscall.World: remembers the base/stride/count
// of the guest's gentity array for subsequent mirrors (spec.md §4.3).
func (w *World) LocateGameData(gentities vm.Addr, stride, count int32, _ vm.Addr, _ int32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.gentityAddr = gentities
	w.gentityStride = stride
	w.gentityCount = count
}

// LinkEntity implements spec.md §4.4 "Link entity": refresh the host mirror
// from guest memory, compute absmin/absmax, write them back, and insert the
// entity into the sector tree.
func (w *World) LinkEntity(guest *vm.VM, entAddr vm.Addr) {
	num := guest.Read4(entAddr)
	if num < 0 || num >= MaxEntities {
		w.log.Warn("link entity: number out of range", "num", num)
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.unlink(num)

	e := &w.entities[num]
	s := &e.shared
	s.SvFlags = guest.Read4(entAddr + offSvFlags)
	s.SingleClient = guest.Read4(entAddr + offSingleClnt)
	s.Bmodel = guest.Read4(entAddr+offBmodel) != 0
	s.Mins = readVec3(guest, entAddr+offMins)
	s.Maxs = readVec3(guest, entAddr+offMaxs)
	s.Contents = guest.Read4(entAddr + offContents)
	s.CurrentOrigin = readVec3(guest, entAddr+offOrigin)
	s.CurrentAngles = readVec3(guest, entAddr+offAngles)
	s.OwnerNum = guest.Read4(entAddr + offOwnerNum)

	if s.Bmodel {
		s.Absmin = s.Mins.AddScalar(-1)
		s.Absmax = s.Maxs.AddScalar(1)
	} else {
		s.Absmin = s.CurrentOrigin.Add(s.Mins).AddScalar(-1)
		s.Absmax = s.CurrentOrigin.Add(s.Maxs).AddScalar(1)
	}
	s.Linked = true
	s.LinkCount++

	guest.Write4(entAddr+offLinked, 1)
	guest.Write4(entAddr+offLinkCount, s.LinkCount)
	writeVec3(guest, entAddr+offAbsmin, s.Absmin)
	writeVec3(guest, entAddr+offAbsmax, s.Absmax)

	w.insert(num, s.Bounds())
	w.areaCache.Purge()
}

// UnlinkEntity implements spec.md §4.4 "Unlink entity".
func (w *World) UnlinkEntity(num int32) {
	if num < 0 || num >= MaxEntities {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.unlink(num)
	w.areaCache.Purge()
}

// unlink removes num from its sector chain, if any. Idempotent: unlinking
// an already-unlinked entity is a no-op, matching LinkEntity step 2's
// "unlink first (idempotent)".
func (w *World) unlink(num int32) {
	e := &w.entities[num]
	if e.sector < 0 {
		e.shared.Linked = false
		return
	}
	s := &w.sectors[e.sector]
	if e.prev < 0 {
		s.head = e.next
	} else {
		w.entities[e.prev].next = e.next
	}
	if e.next >= 0 {
		w.entities[e.next].prev = e.prev
	}
	e.sector = -1
	e.shared.Linked = false
}

// insert descends the sector tree, stepping into the child that fully
// contains box, stopping at the first node the box straddles (spec.md
// §4.4 step 6), and prepends num to that node's chain.
func (w *World) insert(num int32, box geom.Bounds) {
	idx := int32(0)
	for {
		n := &w.sectors[idx]
		if n.axis < 0 {
			break
		}
		if straddles(box, n.axis, n.dist) {
			break
		}
		idx = n.children[side(box, n.axis, n.dist)]
	}
	n := &w.sectors[idx]
	e := &w.entities[num]
	e.sector = idx
	e.prev = -1
	e.next = n.head
	if n.head >= 0 {
		w.entities[n.head].prev = num
	}
	n.head = num
}

// EntitiesInBox implements spec.md §4.4 "Area query": recursive descent of
// the sector tree collecting every entity whose AABB intersects box.
func (w *World) EntitiesInBox(mins, maxs geom.Vec3, maxCount int32) []int32 {
	box := geom.Bounds{Mins: mins, Maxs: maxs}

	w.mu.Lock()
	defer w.mu.Unlock()

	if cached, ok := w.areaCache.Get(quantizeBox(box)); ok {
		list := cached.([]int32)
		if int32(len(list)) > maxCount {
			list = list[:maxCount]
		}
		return list
	}

	visited, _ := bloomfilter.New(w.visitedSize, 4)
	var out []int32
	var walk func(idx int32)
	walk = func(idx int32) {
		if idx < 0 || (maxCount > 0 && int32(len(out)) >= maxCount) {
			return
		}
		n := &w.sectors[idx]
		for e := n.head; e >= 0; e = w.entities[e].next {
			h := bloomfilter.Hash(uint64(e) + 1)
			if visited.Contains(h) {
				continue
			}
			if box.Intersects(w.entities[e].shared.Bounds()) {
				out = append(out, e)
				if maxCount > 0 && int32(len(out)) >= maxCount {
					return
				}
			}
			visited.Add(h)
		}
		if n.axis < 0 {
			return
		}
		if straddles(box, n.axis, n.dist) {
			walk(n.children[0])
			walk(n.children[1])
			return
		}
		walk(n.children[side(box, n.axis, n.dist)])
	}
	walk(0)

	w.areaCache.Add(quantizeBox(box), out)
	return out
}

// quantizeBox rounds a query box to integer units so that the area-query
// cache hits across the many near-identical boxes a single tick issues
// (player bbox probes differ by sub-unit floating error, not by shape).
func quantizeBox(b geom.Bounds) string {
	return fmt.Sprintf("%d,%d,%d-%d,%d,%d",
		int32(b.Mins[0]), int32(b.Mins[1]), int32(b.Mins[2]),
		int32(b.Maxs[0]), int32(b.Maxs[1]), int32(b.Maxs[2]))
}

// PointContents implements spec.md §4.4's point-sample form of Trace:
// world contents combined with any entity (other than passEntityNum)
// whose absolute bounds contain point.
func (w *World) PointContents(point geom.Vec3, passEntityNum int32) int32 {
	contents := w.collider.PointContents(point)

	w.mu.Lock()
	box := geom.Bounds{Mins: point, Maxs: point}
	list := w.entitiesInBoxLocked(box, 0)
	w.mu.Unlock()

	for _, num := range list {
		if num == passEntityNum {
			continue
		}
		contents |= w.entities[num].shared.Contents
	}
	return contents
}

// entitiesInBoxLocked is EntitiesInBox without its own locking, for callers
// that already hold w.mu (PointContents).
func (w *World) entitiesInBoxLocked(box geom.Bounds, maxCount int32) []int32 {
	visited, _ := bloomfilter.New(w.visitedSize, 4)
	var out []int32
	var walk func(idx int32)
	walk = func(idx int32) {
		if idx < 0 || (maxCount > 0 && int32(len(out)) >= maxCount) {
			return
		}
		n := &w.sectors[idx]
		for e := n.head; e >= 0; e = w.entities[e].next {
			h := bloomfilter.Hash(uint64(e) + 1)
			if visited.Contains(h) {
				continue
			}
			if box.Intersects(w.entities[e].shared.Bounds()) {
				out = append(out, e)
				if maxCount > 0 && int32(len(out)) >= maxCount {
					return
				}
			}
			visited.Add(h)
		}
		if n.axis < 0 {
			return
		}
		if straddles(box, n.axis, n.dist) {
			walk(n.children[0])
			walk(n.children[1])
			return
		}
		walk(n.children[side(box, n.axis, n.dist)])
	}
	walk(0)
	return out
}

func readVec3(guest *vm.VM, addr vm.Addr) geom.Vec3 {
	return geom.Vec3{
		floatFromBits(guest.Read4(addr)),
		floatFromBits(guest.Read4(addr + 4)),
		floatFromBits(guest.Read4(addr + 8)),
	}
}

func writeVec3(guest *vm.VM, addr vm.Addr, v geom.Vec3) {
	guest.Write4(addr+0, floatBits(v[0]))
	guest.Write4(addr+4, floatBits(v[1]))
	guest.Write4(addr+8, floatBits(v[2]))
}
