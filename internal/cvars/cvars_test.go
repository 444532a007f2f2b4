// Copyright 2024 The lcm3 Authors
// This file is part of lcm3.

package cvars

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegisterThenUpdateReturnsStoredValue(t *testing.T) {
	r := New()
	cur, mod := r.Register("sv_gravity", "800", int32(FlagArchive))
	require.Equal(t, "800", cur)
	require.Equal(t, int32(0), mod)

	cur, mod = r.Update("sv_gravity")
	require.Equal(t, "800", cur)
	require.Equal(t, int32(0), mod)
}

func TestRegisterIsIdempotentOnValue(t *testing.T) {
	r := New()
	r.Register("sv_gravity", "800", 0)
	cur, _ := r.Register("sv_gravity", "999", 0)
	require.Equal(t, "800", cur, "a second Register call must not clobber the live value")
}

func TestSetBumpsModificationCount(t *testing.T) {
	r := New()
	r.Register("fraglimit", "20", 0)
	r.Set("fraglimit", "30")
	cur, mod := r.Update("fraglimit")
	require.Equal(t, "30", cur)
	require.Equal(t, int32(1), mod)
}

func TestSetSameValueDoesNotBumpModificationCount(t *testing.T) {
	r := New()
	r.Register("fraglimit", "20", 0)
	r.Set("fraglimit", "20")
	_, mod := r.Update("fraglimit")
	require.Equal(t, int32(0), mod)
}

func TestVariableValueParsesNumericString(t *testing.T) {
	r := New()
	r.Register("sv_gravity", "800", 0)
	require.Equal(t, float32(800), r.VariableValue("sv_gravity"))
	require.Equal(t, float32(0), r.VariableValue("nonexistent"))
}
