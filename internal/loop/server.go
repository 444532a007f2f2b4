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

// Package loop is the fixed-tick server driver and variable-tick client
// driver, and the glue between the VM, the syscall router, the shared
// world, the snapshot engine, and the loopback transport (spec.md §4.6).
package loop

import (
	"time"

	"github.com/lcm3/engine/internal/geom"
	"github.com/lcm3/engine/internal/netchan"
	"github.com/lcm3/engine/internal/snapshot"
	"github.com/lcm3/engine/internal/vlog"
	"github.com/lcm3/engine/internal/vm"
)

// FrameMsec is the fixed server tick period (spec.md §4.6: 20Hz).
const FrameMsec = 50

// Command numbers the server-game guest module exports as entry points.
// These are the guest's own command numbers for VM.Call, not syscall
// router numbers (that table runs the other direction, host->guest
// negative-target dispatch).
const (
	cmdInit     int32 = 0
	cmdRunFrame int32 = 1
)

// ServerClient is one connected client's server-side bookkeeping: its net
// channel, connection state, and the latest usercmd it reported.
type ServerClient struct {
	Num         int32
	Channel     *netchan.Channel
	Conn        *netchan.Connection
	Active      bool
	Origin      geom.Vec3
	usercmd     [8]int32
	usercmdSeq  int32
}

// SetUsercmd records clientNum's latest input sample, read back by the
// server-game guest through the SGGetUsercmd syscall.
func (s *Server) SetUsercmd(clientNum int32, seq int32, cmd [8]int32) {
	c := s.Clients[clientNum]
	if c == nil {
		return
	}
	c.usercmd = cmd
	c.usercmdSeq = seq
}

// Server drives the fixed-tick server frame: accumulate real elapsed time,
// and while the accumulator holds at least one frameMsec, run exactly one
// guest frame.
type Server struct {
	Game      *vm.VM
	Snapshots *snapshot.Ring
	Clients   [snapshot.MaxClients]*ServerClient

	levelTime int32
	acc       time.Duration
	log       vlog.Logger
}

// NewServer wires a prepared server-game VM (its router already bound to
// the world/cvars/confstr/clients collaborators) to a snapshot ring.
func NewServer(game *vm.VM, snapshots *snapshot.Ring) *Server {
	return &Server{Game: game, Snapshots: snapshots, log: vlog.New("module", "loop", "side", "server")}
}

// Init runs the guest's init entry once at map start.
func (s *Server) Init(levelTime int32) error {
	_, err := s.Game.Call(cmdInit, levelTime)
	return err
}

// Advance accumulates elapsed and runs as many 50ms frames as it now
// covers, each one: pull queued client messages, run runFrame, build each
// active client's snapshot, drain reliable commands, subtract frameMsec.
func (s *Server) Advance(elapsed time.Duration, entitiesOf func() []snapshot.EntityView) error {
	s.acc += elapsed
	frame := time.Duration(FrameMsec) * time.Millisecond
	for s.acc >= frame {
		for _, c := range s.Clients {
			if c == nil {
				continue
			}
			c.Channel.Receive() // queued usercmds are consumed by GetUsercmd via the router, not here
		}

		s.levelTime += FrameMsec
		if _, err := s.Game.Call(cmdRunFrame, s.levelTime); err != nil {
			return err
		}

		var entities []snapshot.EntityView
		if entitiesOf != nil {
			entities = entitiesOf()
		}
		for _, c := range s.Clients {
			if c == nil || !c.Active {
				continue
			}
			s.Snapshots.Build(c.Num, s.levelTime, nil, c.Origin, entities)
			for _, cmd := range c.Channel.PendingReliable() {
				c.Channel.Send([]byte(cmd))
			}
		}

		s.acc -= frame
	}
	return nil
}

// LevelTime returns the server's current simulation time.
func (s *Server) LevelTime() int32 { return s.levelTime }

// SendServerCommand implements syscall.Clients: it enqueues text on the
// named client's reliable command ring, to be flushed on the next
// Advance tick.
func (s *Server) SendServerCommand(clientNum int32, text string) {
	c := s.Clients[clientNum]
	if c == nil {
		return
	}
	if err := c.Channel.EnqueueReliable(text); err != nil {
		s.log.Warn("server command dropped", "client", clientNum, "err", err)
	}
}

// GetUsercmd implements syscall.Clients: it returns the latest usercmd
// SetUsercmd recorded for clientNum, or ok=false if seq doesn't match
// (the guest asked for a sample the host hasn't received yet).
func (s *Server) GetUsercmd(clientNum int32, seq int32) (cmd [8]int32, ok bool) {
	c := s.Clients[clientNum]
	if c == nil || c.usercmdSeq != seq {
		return [8]int32{}, false
	}
	return c.usercmd, true
}

// DropClient implements syscall.Clients: it marks clientNum inactive and
// tears down its connection state.
func (s *Server) DropClient(clientNum int32, reason string) {
	c := s.Clients[clientNum]
	if c == nil {
		return
	}
	c.Active = false
	c.Conn.Disconnect()
	s.log.Info("client dropped", "client", clientNum, "reason", reason)
}
