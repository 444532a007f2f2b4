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

// Package snapshot is the per-client ring buffer of captured entity and
// player states, and the build/fetch operations that fill and read it
// (spec.md §4.5).
package snapshot

import (
	"sync"

	mapset "github.com/deckarep/golang-set"

	"github.com/lcm3/engine/internal/geom"
)

const (
	// MaxClients is the fixed number of client slots (spec.md §6 "Fixed
	// constants").
	MaxClients = 64

	// Backup is the number of descriptors retained per client.
	Backup = 32

	// MaxEntities mirrors world.MaxEntities; duplicated here instead of
	// imported so this package has no dependency on internal/world (it
	// only ever sees entity numbers and opaque state blobs).
	MaxEntities = 1024

	// entityStateSize is the network-visible entity snapshot payload size
	// (spec.md §4.4's "state struct" occupies guest offsets [0,208)).
	entityStateSize = 208
)

// descriptor is one ring slot: which entities, and the player state, a
// client's snapshot at one server tick held.
type descriptor struct {
	valid        bool
	number       int32
	levelTime    int32
	playerState  []byte
	firstEntity  int32
	numEntities  int32
}

// Visibility decides whether an entity should be included in a client's
// snapshot. The default implementation is the distance-bound approximation
// spec.md §9 calls out as an open question; a real PVS can be substituted
// by implementing this interface (see SPEC_FULL.md §6).
type Visibility interface {
	Visible(viewOrigin, entityOrigin geom.Vec3) bool
}

// DistanceVisibility approximates PVS with a flat distance bound.
type DistanceVisibility struct {
	Bound float32 // spec.md default: 8192 units
}

func (d DistanceVisibility) Visible(viewOrigin, entityOrigin geom.Vec3) bool {
	diff := viewOrigin.Sub(entityOrigin)
	distSq := diff[0]*diff[0] + diff[1]*diff[1] + diff[2]*diff[2]
	return distSq <= d.Bound*d.Bound
}

// EntityView is everything Build needs about one candidate entity: its
// number, its state payload, whether it's linked/noClient, and its origin
// for the visibility check.
type EntityView struct {
	Num      int32
	State    []byte
	Linked   bool
	NoClient bool
	Origin   geom.Vec3
}

// client is one connection's descriptor ring and build counter; the
// entity states its descriptors point at live in Ring's shared ring.
type client struct {
	descriptors [Backup]descriptor
	counter     int32
}

// Ring is the snapshot engine: MaxClients independent descriptor rings
// backed by one shared entity-state ring sized MaxClients*Backup*MaxEntities
// (spec.md §4.1 "large circular buffer").
type Ring struct {
	mu         sync.Mutex
	clients    [MaxClients]client
	sharedRing [][]byte // flat ring of entity-state blobs, index = nextSnapshotEntities % len
	cursor     int64
	visibility Visibility
}

// New builds a Ring with the given visibility policy (nil selects the
// default 8192-unit distance bound).
func New(visibility Visibility) *Ring {
	if visibility == nil {
		visibility = DistanceVisibility{Bound: 8192}
	}
	return &Ring{
		sharedRing: make([][]byte, MaxClients*Backup*MaxEntities),
		visibility: visibility,
	}
}

// Build implements spec.md §4.5 "Build": called once per connected client
// at end-of-tick. entities is every candidate entity's current mirrored
// state; Build filters to linked, non-noClient, visible-from-viewOrigin
// entities and appends each at most once (enforced via a golang-set
// membership check, since a malformed entity list could otherwise repeat a
// number within a single build and double-count it in numEntities).
func (r *Ring) Build(clientNum int32, levelTime int32, playerState []byte, viewOrigin geom.Vec3, entities []EntityView) int32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := &r.clients[clientNum]
	slot := c.counter % Backup
	d := &c.descriptors[slot]

	first := r.cursor
	seen := mapset.NewSet()
	count := int32(0)
	for _, e := range entities {
		if !e.Linked || e.NoClient {
			continue
		}
		if !r.visibility.Visible(viewOrigin, e.Origin) {
			continue
		}
		if seen.Contains(e.Num) {
			continue
		}
		seen.Add(e.Num)

		idx := r.cursor % int64(len(r.sharedRing))
		state := make([]byte, entityStateSize)
		copy(state, e.State)
		r.sharedRing[idx] = state
		r.cursor++
		count++
	}

	*d = descriptor{
		valid:       true,
		number:      c.counter,
		levelTime:   levelTime,
		playerState: append([]byte(nil), playerState...),
		firstEntity: int32(first),
		numEntities: count,
	}
	c.counter++
	return d.number
}

// Fetch implements spec.md §4.5 "Fetch": getSnapshot(number, clientNum).
// Returns ok=false if the descriptor at number%Backup doesn't match number
// (it has been overwritten by a later build, i.e. "stale number").
func (r *Ring) Fetch(clientNum, number int32) (playerState []byte, entityStates [][]byte, levelTime int32, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := &r.clients[clientNum]
	d := &c.descriptors[number%Backup]
	if !d.valid || d.number != number {
		return nil, nil, 0, false
	}

	entityStates = make([][]byte, d.numEntities)
	for i := int32(0); i < d.numEntities; i++ {
		idx := (int64(d.firstEntity) + int64(i)) % int64(len(r.sharedRing))
		entityStates[i] = r.sharedRing[idx]
	}
	return d.playerState, entityStates, d.levelTime, true
}

// CurrentNumber returns the most recently built descriptor number for a
// client, or -1 if none has been built yet.
func (r *Ring) CurrentNumber(clientNum int32) int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := &r.clients[clientNum]
	if c.counter == 0 {
		return -1
	}
	return c.counter - 1
}
