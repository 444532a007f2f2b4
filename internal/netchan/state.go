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

package netchan

import "fmt"

// ConnState is one state of the client-side connection state machine
// (spec.md §4.6 "Connection state machine").
type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Connected
	Loading
	Primed
	Active
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Loading:
		return "loading"
	case Primed:
		return "primed"
	case Active:
		return "active"
	default:
		return "unknown"
	}
}

// Cause names why a state transition happened, for diagnostic logging.
type Cause int

const (
	CauseConnectAck Cause = iota
	CauseGamestate
	CauseSnapshot
	CauseDisconnect
)

func (c Cause) String() string {
	switch c {
	case CauseConnectAck:
		return "connect-ack"
	case CauseGamestate:
		return "gamestate"
	case CauseSnapshot:
		return "snapshot"
	case CauseDisconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

// ErrBadTransition is returned when a cause doesn't correspond to a legal
// forward transition, e.g. a gamestate command arriving before the
// connect acknowledgement.
var ErrBadTransition = fmt.Errorf("netchan: no legal transition for this cause in the current state")

// forward maps (state, cause) to the next state for every *forward*
// transition (spec.md §4.6): connect ack connecting->connected, gamestate
// connected->loading, and a primed client becoming active once its first
// snapshot arrives. Loading->primed is a local transition (map/assets
// ready) driven by the caller, not by a cause here, so it's handled by
// MarkPrimed instead of this table.
var forward = map[ConnState]map[Cause]ConnState{
	Connecting: {CauseConnectAck: Connected},
	Connected:  {CauseGamestate: Loading},
	Primed:     {CauseSnapshot: Active},
}

// Connection tracks one client's connection state machine.
type Connection struct {
	state ConnState
}

// NewConnection returns a Connection starting Disconnected.
func NewConnection() *Connection { return &Connection{state: Disconnected} }

// State returns the current state.
func (c *Connection) State() ConnState { return c.state }

// BeginConnecting moves Disconnected -> Connecting; this is the one
// transition not triggered by a peer message (it's the local act of
// dialing the loopback channel).
func (c *Connection) BeginConnecting() {
	c.state = Connecting
}

// Advance applies cause's forward transition, or returns ErrBadTransition
// if cause isn't legal from the current state.
func (c *Connection) Advance(cause Cause) error {
	next, ok := forward[c.state][cause]
	if !ok {
		return fmt.Errorf("%w: state=%s cause=%s", ErrBadTransition, c.state, cause)
	}
	c.state = next
	return nil
}

// MarkPrimed moves Loading -> Primed once the client has finished
// preloading its local assets for the current map.
func (c *Connection) MarkPrimed() {
	if c.state == Loading {
		c.state = Primed
	}
}

// Disconnect moves to Disconnected from any state: "moving backwards is
// allowed on any disconnect cause" (spec.md §4.6).
func (c *Connection) Disconnect() {
	c.state = Disconnected
}
