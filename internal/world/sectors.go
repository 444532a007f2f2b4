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

// maxSectorNodes bounds the binary spatial partition tree (spec.md §4.4).
const maxSectorNodes = 64

// sector is one node of the binary tree used to accelerate area queries
// and traces. Leaf nodes (axis < 0) hold a chain of entity numbers; internal
// nodes split space along one axis at a distance and descend into children.
type sector struct {
	axis     int // 0=x, 1=y, 2=z, -1 = leaf
	dist     float32
	children [2]int32 // node indices, or -1
	head     int32    // first entity number in this node's chain, or -1
}

// buildSectors carves bounds into a balanced binary tree of at most
// maxSectorNodes nodes, splitting the longest axis at its midpoint each
// time, bottoming out once the leaf count would exceed the node budget.
func buildSectors(bounds geom.Bounds) []sector {
	nodes := make([]sector, 0, maxSectorNodes)
	var build func(b geom.Bounds, depth int) int32
	build = func(b geom.Bounds, depth int) int32 {
		idx := int32(len(nodes))
		nodes = append(nodes, sector{axis: -1, head: -1})
		// Stop subdividing once adding a new pair would exceed the budget,
		// or the box is already small enough that per-entity linear scan
		// inside the leaf is cheap.
		if depth >= 5 || len(nodes)+2 > maxSectorNodes {
			return idx
		}
		axis, dist := longestAxisSplit(b)
		lo, hi := splitBounds(b, axis, dist)
		left := build(lo, depth+1)
		right := build(hi, depth+1)
		nodes[idx] = sector{axis: axis, dist: dist, children: [2]int32{left, right}, head: -1}
		return idx
	}
	build(bounds, 0)
	return nodes
}

func longestAxisSplit(b geom.Bounds) (axis int, dist float32) {
	size := b.Maxs.Sub(b.Mins)
	axis = 0
	if size[1] > size[axis] {
		axis = 1
	}
	if size[2] > size[axis] {
		axis = 2
	}
	dist = (b.Mins[axis] + b.Maxs[axis]) / 2
	return axis, dist
}

func splitBounds(b geom.Bounds, axis int, dist float32) (lo, hi geom.Bounds) {
	lo, hi = b, b
	lo.Maxs[axis] = dist
	hi.Mins[axis] = dist
	return lo, hi
}

// straddles reports whether box crosses the split plane of node (neither
// fully below nor fully above dist on axis).
func straddles(box geom.Bounds, axis int, dist float32) bool {
	return box.Mins[axis] < dist && box.Maxs[axis] > dist
}

// side returns 0 (low child) or 1 (high child) for a box that does not
// straddle the split.
func side(box geom.Bounds, axis int, dist float32) int {
	if box.Maxs[axis] <= dist {
		return 0
	}
	return 1
}
