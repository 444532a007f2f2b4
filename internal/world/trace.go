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

import "github.com/lcm3/engine/internal/geom"

// Trace implements spec.md §4.4 "Trace": sweep an AABB (mins/maxs around a
// moving point) from start to end through the world collision model, then
// through every overlapping entity not excluded by passEntityNum or
// contentMask, taking the minimum-fraction hit.
func (w *World) Trace(start, end, mins, maxs geom.Vec3, passEntityNum, contentMask int32) geom.TraceResult {
	best := w.collider.Trace(start, end, mins, maxs)

	sweepMins := minVec(start, end).Add(mins).AddScalar(-1)
	sweepMaxs := maxVec(start, end).Add(maxs).AddScalar(1)

	w.mu.Lock()
	candidates := w.entitiesInBoxLocked(geom.Bounds{Mins: sweepMins, Maxs: sweepMaxs}, 0)
	// Snapshot what the trace needs under the lock; the sweep math itself
	// doesn't touch shared state so it can run unlocked.
	type cand struct {
		num              int32
		absmin, absmax   geom.Vec3
		contents         int32
		ownerNum         int32
	}
	snaps := make([]cand, 0, len(candidates))
	for _, num := range candidates {
		s := &w.entities[num].shared
		snaps = append(snaps, cand{num, s.Absmin, s.Absmax, s.Contents, s.OwnerNum})
	}
	w.mu.Unlock()

	for _, c := range snaps {
		if c.num == passEntityNum || (passEntityNum >= 0 && c.ownerNum == passEntityNum) {
			continue
		}
		if c.contents&contentMask == 0 {
			continue
		}
		expandedMins := c.absmin.Sub(maxs)
		expandedMaxs := c.absmax.Sub(mins)
		if frac, normal, hit := sweepRayBox(start, end, expandedMins, expandedMaxs); hit && frac < best.Fraction {
			best = geom.TraceResult{
				Fraction:    frac,
				EndPos:      lerp(start, end, frac),
				PlaneNormal: normal,
				Contents:    c.contents,
				EntityNum:   c.num,
			}
		}
	}
	return best
}

// sweepRayBox is the classic slab-method ray/AABB intersection, returning
// the entry fraction along [start,end] and the normal of the face entered.
func sweepRayBox(start, end, mins, maxs geom.Vec3) (frac float32, normal geom.Vec3, hit bool) {
	dir := end.Sub(start)
	tEnter, tExit := float32(0), float32(1)
	enterAxis := -1
	enterSign := float32(1)

	for axis := 0; axis < 3; axis++ {
		if dir[axis] == 0 {
			if start[axis] < mins[axis] || start[axis] > maxs[axis] {
				return 1, geom.Vec3{}, false
			}
			continue
		}
		inv := 1 / dir[axis]
		t0 := (mins[axis] - start[axis]) * inv
		t1 := (maxs[axis] - start[axis]) * inv
		sign := float32(-1)
		if t0 > t1 {
			t0, t1 = t1, t0
			sign = 1
		}
		if t0 > tEnter {
			tEnter = t0
			enterAxis = axis
			enterSign = sign
		}
		if t1 < tExit {
			tExit = t1
		}
		if tEnter > tExit {
			return 1, geom.Vec3{}, false
		}
	}
	if enterAxis < 0 {
		// start is already inside the box.
		return 0, geom.Vec3{}, true
	}
	normal = geom.Vec3{}
	normal[enterAxis] = enterSign
	return tEnter, normal, true
}

func lerp(a, b geom.Vec3, t float32) geom.Vec3 {
	return geom.Vec3{
		a[0] + (b[0]-a[0])*t,
		a[1] + (b[1]-a[1])*t,
		a[2] + (b[2]-a[2])*t,
	}
}

func minVec(a, b geom.Vec3) geom.Vec3 { return a.Min(b) }
func maxVec(a, b geom.Vec3) geom.Vec3 { return a.Max(b) }
