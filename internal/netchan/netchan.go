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

// Package netchan is the loopback transport between one client and the
// server: two capacity-bounded FIFOs, a per-side sequence counter, and a
// 128-slot reliable command ring (spec.md §4.6 "Transport").
package netchan

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/lcm3/engine/internal/vlog"
)

const (
	// fifoCapacity bounds each direction's message queue; enqueue beyond
	// this fails silently per spec.md §4.6.
	fifoCapacity = 64

	// reliableRingSize is the number of reliable command slots; a command
	// is safe to overwrite once reliableSequence-reliableAcknowledge < this.
	reliableRingSize = 128
)

// Message is one queued datagram: an opaque payload plus the sequence
// number its net channel assigned it.
type Message struct {
	Sequence int32
	Payload  []byte
}

// ErrChannelStalled is returned by EnqueueReliable when the peer has not
// acknowledged commands quickly enough to free a ring slot (spec.md §4.6:
// "otherwise the channel is stalled ... report as a fatal connection
// state").
var ErrChannelStalled = fmt.Errorf("netchan: reliable command ring stalled")

// fifo is a fixed-capacity message queue; Push silently drops on overflow.
type fifo struct {
	mu   sync.Mutex
	buf  []Message
	cap  int
}

func newFIFO(capacity int) *fifo {
	return &fifo{cap: capacity}
}

func (f *fifo) push(m Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.buf) >= f.cap {
		return
	}
	f.buf = append(f.buf, m)
}

func (f *fifo) drain() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.buf
	f.buf = nil
	return out
}

// Channel is one side's view of a loopback connection: its outgoing and
// incoming FIFOs, sequence counters, and reliable command ring.
type Channel struct {
	mu sync.Mutex

	SessionID uuid.UUID
	name      string

	outgoing *fifo
	incoming *fifo

	sequence int32

	reliableCommands    [reliableRingSize]string
	reliableSequence     int32
	reliableAcknowledge  int32

	log vlog.Logger
}

// NewPair builds the two ends of one loopback connection: a server-side
// and a client-side Channel sharing a pair of FIFOs.
func NewPair(name string) (server, client *Channel) {
	clientToServer := newFIFO(fifoCapacity)
	serverToClient := newFIFO(fifoCapacity)
	sessionID := uuid.New()

	server = &Channel{
		SessionID: sessionID,
		name:      name + "/server",
		outgoing:  serverToClient,
		incoming:  clientToServer,
		log:       vlog.New("module", "netchan", "side", "server", "session", sessionID.String()),
	}
	client = &Channel{
		SessionID: sessionID,
		name:      name + "/client",
		outgoing:  clientToServer,
		incoming:  serverToClient,
		log:       vlog.New("module", "netchan", "side", "client", "session", sessionID.String()),
	}
	server.log.Debug("loopback channel established")
	client.log.Debug("loopback channel established")
	return server, client
}

// Send enqueues payload on this channel's outgoing FIFO with the next
// sequence number, silently dropping it if the peer's queue is full.
func (c *Channel) Send(payload []byte) {
	c.mu.Lock()
	seq := c.sequence
	c.sequence++
	c.mu.Unlock()
	c.outgoing.push(Message{Sequence: seq, Payload: payload})
}

// Receive drains every message queued since the last call.
func (c *Channel) Receive() []Message {
	return c.incoming.drain()
}

// EnqueueReliable appends text to the reliable command ring at
// reliableSequence, advancing it. Returns ErrChannelStalled if doing so
// would overwrite a command the peer hasn't acknowledged yet (spec.md
// §4.6's "< 128" rule).
func (c *Channel) EnqueueReliable(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reliableSequence-c.reliableAcknowledge >= reliableRingSize {
		c.log.Error("reliable command ring stalled", "sequence", c.reliableSequence, "ack", c.reliableAcknowledge)
		return ErrChannelStalled
	}
	c.reliableCommands[c.reliableSequence%reliableRingSize] = text
	c.reliableSequence++
	return nil
}

// AcknowledgeReliable advances reliableAcknowledge to upTo, as the peer
// reports in a message header once it has executed commands through that
// sequence.
func (c *Channel) AcknowledgeReliable(upTo int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if upTo > c.reliableAcknowledge {
		c.reliableAcknowledge = upTo
	}
}

// PendingReliable returns every reliable command not yet acknowledged, in
// order.
func (c *Channel) PendingReliable() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for seq := c.reliableAcknowledge; seq < c.reliableSequence; seq++ {
		out = append(out, c.reliableCommands[seq%reliableRingSize])
	}
	return out
}
