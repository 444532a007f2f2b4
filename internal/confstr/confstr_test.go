// Copyright 2024 The lcm3 Authors
// This file is part of lcm3.

package confstr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetGetRoundTrip(t *testing.T) {
	tbl := New()
	tbl.Set(5, "dm\\deathmatch")
	require.Equal(t, "dm\\deathmatch", tbl.Get(5))
}

func TestOutOfRangeIndexIsIgnoredNotPanic(t *testing.T) {
	tbl := New()
	require.NotPanics(t, func() { tbl.Set(-1, "x"); tbl.Set(Count, "x") })
	require.Equal(t, "", tbl.Get(-1))
	require.Equal(t, "", tbl.Get(Count))
}

func TestGenerationBumpsOnlyOnChange(t *testing.T) {
	tbl := New()
	tbl.Set(1, "a")
	require.Equal(t, int32(1), tbl.Generation(1))
	tbl.Set(1, "a")
	require.Equal(t, int32(1), tbl.Generation(1), "setting the same value must not bump generation")
	tbl.Set(1, "b")
	require.Equal(t, int32(2), tbl.Generation(1))
}

func TestChangedReportsSlotsPastWatermark(t *testing.T) {
	tbl := New()
	var since [Count]int32
	tbl.Set(3, "x")
	tbl.Set(10, "y")
	changed := tbl.Changed(since)
	require.ElementsMatch(t, []int32{3, 10}, changed)
}
