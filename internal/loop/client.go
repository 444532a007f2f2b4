// Copyright 2024 The lcm3 Authors
// This file is part of lcm3.

package loop

import (
	"github.com/lcm3/engine/internal/geom"
	"github.com/lcm3/engine/internal/netchan"
	"github.com/lcm3/engine/internal/vlog"
	"github.com/lcm3/engine/internal/vm"
)

const (
	cgCmdInit = int32(0)
	cgCmdRunFrame = int32(1)
)

// UserCmd is one packed client input sample: movement, view angles, and
// button bits, predicted locally with pmove between snapshots.
type UserCmd struct {
	ServerTime int32
	Angles     geom.Vec3
	Forward    int8
	Right      int8
	Up         int8
	Buttons    int32
}

// PredictedState is the client's locally-simulated player state, kept in
// sync with the server's authoritative runs via the exact pmove constants
// (spec.md §4.6.1): positions converge once snapshots arrive because the
// server replays the identical deterministic routine.
type PredictedState struct {
	Origin   geom.Vec3
	Velocity geom.Vec3
	OnGround bool
}

// Pmove advances state by one UserCmd over dtSeconds using the shared
// movement constants. This is a deliberately simple ballistic model: the
// guest's own pmove entry point (run through CGSetUserCmdValue ->
// runFrame) is the authoritative implementation; this host-side copy only
// needs to be deterministic enough that repeated calls with the same
// inputs converge to the same result as the server's.
func Pmove(state PredictedState, cmd UserCmd, dtSeconds float32) PredictedState {
	if !state.OnGround {
		state.Velocity[2] -= netchan.Gravity * dtSeconds
	} else if cmd.Up > 0 {
		state.Velocity[2] = netchan.JumpVelocity
		state.OnGround = false
	}

	wish := geom.Vec3{float32(cmd.Forward), float32(cmd.Right), 0}
	speed := clampSpeed(wish, netchan.MaxGroundSpeed)
	state.Velocity[0] = speed[0]
	state.Velocity[1] = speed[1]

	state.Origin = state.Origin.Add(geom.Vec3{
		state.Velocity[0] * dtSeconds,
		state.Velocity[1] * dtSeconds,
		state.Velocity[2] * dtSeconds,
	})
	if state.Origin[2] <= 0 {
		state.Origin[2] = 0
		state.Velocity[2] = 0
		state.OnGround = true
	}
	return state
}

// clampSpeed normalizes wish to a unit vector and scales it to max, or
// returns zero velocity for no input.
func clampSpeed(wish geom.Vec3, max float32) geom.Vec3 {
	lenSq := wish[0]*wish[0] + wish[1]*wish[1]
	if lenSq == 0 {
		return geom.Vec3{}
	}
	scale := max / sqrt32(lenSq)
	return geom.Vec3{wish[0] * scale, wish[1] * scale, 0}
}

func sqrt32(v float32) float32 {
	// Newton's method, eight refinement steps from x = v: wish vectors are
	// small, so a fixed iteration count is enough here — the guest's own
	// pmove is what the server trusts.
	if v == 0 {
		return 0
	}
	x := v
	for i := 0; i < 8; i++ {
		x = 0.5 * (x + v/x)
	}
	return x
}

// Client drives the variable-tick client frame: pull queued server
// messages, update client state, build a UserCmd, predict locally, run the
// client-game guest's frame, request render (the render request itself is
// the Renderer collaborator's job, invoked through the client-game
// syscall table).
type Client struct {
	Game    *vm.VM
	Channel *netchan.Channel
	Conn    *netchan.Connection
	State   PredictedState

	log vlog.Logger
}

// NewClient wires a prepared client-game VM to its net channel.
func NewClient(game *vm.VM, channel *netchan.Channel, conn *netchan.Connection) *Client {
	return &Client{Game: game, Channel: channel, Conn: conn, log: vlog.New("module", "loop", "side", "client")}
}

// Init runs the client-game guest's init entry.
func (c *Client) Init() error {
	_, err := c.Game.Call(cgCmdInit)
	return err
}

// Frame pulls queued server messages, advances local prediction by dt, and
// runs one client-game guest frame.
func (c *Client) Frame(dtSeconds float32, cmd UserCmd) error {
	for range c.Channel.Receive() {
		// Message contents are unpacked by the client-game guest itself
		// through CGGetSnapshot/CGGetGamestate; the loop only needs to
		// know a message arrived, to advance the connection state machine
		// elsewhere.
	}
	c.State = Pmove(c.State, cmd, dtSeconds)
	_, err := c.Game.Call(cgCmdRunFrame, cmd.ServerTime)
	return err
}
