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

// Package geom holds the small value types shared between the syscall
// router, the shared world, and the snapshot engine, so none of those
// packages needs to import another just to speak about a point or a box.
package geom

// Vec3 is a 3-component float vector: a world position, a velocity, or one
// corner of an axis-aligned box.
type Vec3 [3]float32

// Add returns v+o.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v[0] + o[0], v[1] + o[1], v[2] + o[2]}
}

// Sub returns v-o.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v[0] - o[0], v[1] - o[1], v[2] - o[2]}
}

// AddScalar returns v with s added to every component.
func (v Vec3) AddScalar(s float32) Vec3 {
	return Vec3{v[0] + s, v[1] + s, v[2] + s}
}

// Min returns the component-wise minimum of v and o.
func (v Vec3) Min(o Vec3) Vec3 {
	return Vec3{minf(v[0], o[0]), minf(v[1], o[1]), minf(v[2], o[2])}
}

// Max returns the component-wise maximum of v and o.
func (v Vec3) Max(o Vec3) Vec3 {
	return Vec3{maxf(v[0], o[0]), maxf(v[1], o[1]), maxf(v[2], o[2])}
}

func minf(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

// Bounds is an axis-aligned bounding box.
type Bounds struct {
	Mins, Maxs Vec3
}

// Intersects reports whether b and o overlap on every axis.
func (b Bounds) Intersects(o Bounds) bool {
	return b.Mins[0] <= o.Maxs[0] && b.Maxs[0] >= o.Mins[0] &&
		b.Mins[1] <= o.Maxs[1] && b.Maxs[1] >= o.Mins[1] &&
		b.Mins[2] <= o.Maxs[2] && b.Maxs[2] >= o.Mins[2]
}

// Contains reports whether o lies entirely within b.
func (b Bounds) Contains(o Bounds) bool {
	return o.Mins[0] >= b.Mins[0] && o.Maxs[0] <= b.Maxs[0] &&
		o.Mins[1] >= b.Mins[1] && o.Maxs[1] <= b.Maxs[1] &&
		o.Mins[2] >= b.Mins[2] && o.Maxs[2] <= b.Maxs[2]
}

// TraceResult is the outcome of sweeping a box from one point to another
// through the world and its entities (spec.md §4.4).
type TraceResult struct {
	Fraction   float32 // 0..1 along start->end; 1 means no contact
	EndPos     Vec3
	PlaneNormal Vec3
	Contents   int32
	EntityNum  int32 // index of the entity hit, or -1 for the world
}
