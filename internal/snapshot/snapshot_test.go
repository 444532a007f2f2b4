// Copyright 2024 The lcm3 Authors
// This file is part of lcm3.

package snapshot

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/lcm3/engine/internal/geom"
)

func sampleEntities() []EntityView {
	return []EntityView{
		{Num: 1, State: []byte("e1"), Linked: true, Origin: geom.Vec3{0, 0, 0}},
		{Num: 2, State: []byte("e2"), Linked: true, Origin: geom.Vec3{100, 0, 0}},
		{Num: 3, State: []byte("e3"), Linked: false, Origin: geom.Vec3{0, 0, 0}}, // not linked
		{Num: 4, State: []byte("e4"), Linked: true, NoClient: true, Origin: geom.Vec3{0, 0, 0}},
		{Num: 5, State: []byte("e5"), Linked: true, Origin: geom.Vec3{20000, 0, 0}}, // out of PVS bound
	}
}

func TestBuildFiltersUnlinkedNoClientAndFarEntities(t *testing.T) {
	r := New(nil)
	num := r.Build(0, 1000, []byte("ps"), geom.Vec3{}, sampleEntities())
	require.Equal(t, int32(0), num)

	ps, states, levelTime, ok := r.Fetch(0, num)
	require.True(t, ok)
	require.Equal(t, int32(1000), levelTime)
	require.Equal(t, []byte("ps"), ps)
	require.Len(t, states, 2, "only entities 1 and 2 are linked, client-visible, and in range")
}

func TestBuildDedupesRepeatedEntityNumbers(t *testing.T) {
	r := New(nil)
	entities := []EntityView{
		{Num: 1, State: []byte("a"), Linked: true},
		{Num: 1, State: []byte("a-again"), Linked: true},
	}
	num := r.Build(0, 0, nil, geom.Vec3{}, entities)
	_, states, _, ok := r.Fetch(0, num)
	require.True(t, ok)
	require.Len(t, states, 1, "the same entity number must not be appended twice in one build")
}

func TestFetchRejectsStaleNumber(t *testing.T) {
	r := New(nil)
	for i := 0; i < Backup+1; i++ {
		r.Build(0, int32(i), nil, geom.Vec3{}, nil)
	}
	_, _, _, ok := r.Fetch(0, 0)
	require.False(t, ok, "descriptor 0 has been overwritten by descriptor Backup")

	_, _, _, ok = r.Fetch(0, int32(Backup))
	require.True(t, ok)
}

func TestClientsAreIndependent(t *testing.T) {
	r := New(nil)
	r.Build(0, 5, []byte("a"), geom.Vec3{}, nil)
	r.Build(1, 9, []byte("b"), geom.Vec3{}, nil)

	psA, _, _, _ := r.Fetch(0, 0)
	psB, _, _, _ := r.Fetch(1, 0)
	require.Equal(t, []byte("a"), psA)
	require.Equal(t, []byte("b"), psB)
}

func TestCurrentNumberTracksLastBuild(t *testing.T) {
	r := New(nil)
	require.Equal(t, int32(-1), r.CurrentNumber(0))
	r.Build(0, 0, nil, geom.Vec3{}, nil)
	r.Build(0, 0, nil, geom.Vec3{}, nil)
	require.Equal(t, int32(1), r.CurrentNumber(0))
}

// TestBuildIsDeterministicForIdenticalInput builds the same frame onto
// two independent rings and diffs the fetched entity-state slices with
// cmp, since a slice-of-slices isn't covered well by require.Equal's
// deep-equal message on failure.
func TestBuildIsDeterministicForIdenticalInput(t *testing.T) {
	entities := sampleEntities()

	r1, r2 := New(nil), New(nil)
	r1.Build(0, 1000, []byte("ps"), geom.Vec3{}, entities)
	r2.Build(0, 1000, []byte("ps"), geom.Vec3{}, entities)

	_, states1, _, ok1 := r1.Fetch(0, 0)
	_, states2, _, ok2 := r2.Fetch(0, 0)
	require.True(t, ok1)
	require.True(t, ok2)

	if diff := cmp.Diff(states1, states2); diff != "" {
		t.Fatalf("identical input produced different snapshots (-r1 +r2):\n%s", diff)
	}
}

func TestDistanceVisibilityBound(t *testing.T) {
	v := DistanceVisibility{Bound: 8192}
	require.True(t, v.Visible(geom.Vec3{}, geom.Vec3{8000, 0, 0}))
	require.False(t, v.Visible(geom.Vec3{}, geom.Vec3{9000, 0, 0}))
}
