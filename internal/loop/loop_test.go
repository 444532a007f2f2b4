// Copyright 2024 The lcm3 Authors
// This file is part of lcm3.

package loop

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lcm3/engine/internal/geom"
	"github.com/lcm3/engine/internal/netchan"
	"github.com/lcm3/engine/internal/snapshot"
	"github.com/lcm3/engine/internal/vm"
)

type nullRouter struct{}

func (nullRouter) Invoke(*vm.VM, [14]int32) int32 { return 0 }

func trivialVM(t *testing.T) *vm.VM {
	t.Helper()
	h := make([]byte, 32)
	binary.LittleEndian.PutUint32(h[0:], 0x12721444)
	binary.LittleEndian.PutUint32(h[4:], 1) // instrCount
	binary.LittleEndian.PutUint32(h[8:], 32)
	binary.LittleEndian.PutUint32(h[12:], 5) // codeLen
	binary.LittleEndian.PutUint32(h[16:], 37)
	raw := append(h, 0x04, 0, 0, 0, 0) // OpLeave(4) with imm 0
	img, err := vm.Load(raw)
	require.NoError(t, err)
	return vm.New(img, nullRouter{}, "test")
}

func TestServerAdvanceRunsOneFramePer50ms(t *testing.T) {
	s := NewServer(trivialVM(t), snapshot.New(nil))
	calls := 0
	err := s.Advance(49*time.Millisecond, func() []snapshot.EntityView { calls++; return nil })
	require.NoError(t, err)
	require.Equal(t, int32(0), s.LevelTime(), "under one frameMsec, no frame should run")

	err = s.Advance(1*time.Millisecond, func() []snapshot.EntityView { calls++; return nil })
	require.NoError(t, err)
	require.Equal(t, int32(FrameMsec), s.LevelTime())
}

func TestServerAdvanceCatchesUpMultipleFrames(t *testing.T) {
	s := NewServer(trivialVM(t), snapshot.New(nil))
	err := s.Advance(175*time.Millisecond, func() []snapshot.EntityView { return nil })
	require.NoError(t, err)
	require.Equal(t, int32(3*FrameMsec), s.LevelTime())
}

func TestServerAdvanceBuildsSnapshotForActiveClients(t *testing.T) {
	snaps := snapshot.New(nil)
	s := NewServer(trivialVM(t), snaps)
	srvChan, _ := netchan.NewPair("test")
	s.Clients[0] = &ServerClient{Num: 0, Channel: srvChan, Active: true}

	err := s.Advance(50*time.Millisecond, func() []snapshot.EntityView {
		return []snapshot.EntityView{{Num: 1, State: []byte("x"), Linked: true}}
	})
	require.NoError(t, err)
	require.Equal(t, int32(0), snaps.CurrentNumber(0))
}

func TestClientFrameAdvancesPrediction(t *testing.T) {
	_, cliChan := netchan.NewPair("test")
	c := NewClient(trivialVM(t), cliChan, netchan.NewConnection())
	c.State = PredictedState{Origin: geom.Vec3{0, 0, 100}}

	err := c.Frame(0.05, UserCmd{Forward: 1})
	require.NoError(t, err)
	require.Less(t, c.State.Origin[2], float32(100), "gravity should pull the predicted origin down")
}

func TestPmoveJumpsFromGround(t *testing.T) {
	state := PredictedState{OnGround: true}
	state = Pmove(state, UserCmd{Up: 1}, 0.05)
	require.Equal(t, netchan.JumpVelocity, state.Velocity[2])
	require.False(t, state.OnGround)
}
