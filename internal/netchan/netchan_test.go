// Copyright 2024 The lcm3 Authors
// This file is part of lcm3.

package netchan

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSendReceiveRoundTrip(t *testing.T) {
	server, client := NewPair("test")
	server.Send([]byte("hello"))

	msgs := client.Receive()
	require.Len(t, msgs, 1)
	require.Equal(t, []byte("hello"), msgs[0].Payload)
	require.Equal(t, int32(0), msgs[0].Sequence)
}

func TestFIFODropsSilentlyPastCapacity(t *testing.T) {
	server, client := NewPair("test")
	for i := 0; i < fifoCapacity+10; i++ {
		server.Send([]byte{byte(i)})
	}
	msgs := client.Receive()
	require.Len(t, msgs, fifoCapacity)
}

func TestReliableRingSurvivesAcrossTicks(t *testing.T) {
	server, _ := NewPair("test")
	require.NoError(t, server.EnqueueReliable("print hi"))
	require.Equal(t, []string{"print hi"}, server.PendingReliable())

	server.AcknowledgeReliable(1)
	require.Empty(t, server.PendingReliable())
}

func TestReliableRingStallsPastCapacity(t *testing.T) {
	server, _ := NewPair("test")
	for i := 0; i < reliableRingSize; i++ {
		require.NoError(t, server.EnqueueReliable("cmd"))
	}
	require.ErrorIs(t, server.EnqueueReliable("overflow"), ErrChannelStalled)
}

func TestConnectionStateMachineForwardPath(t *testing.T) {
	c := NewConnection()
	require.Equal(t, Disconnected, c.State())

	c.BeginConnecting()
	require.Equal(t, Connecting, c.State())

	require.NoError(t, c.Advance(CauseConnectAck))
	require.Equal(t, Connected, c.State())

	require.NoError(t, c.Advance(CauseGamestate))
	require.Equal(t, Loading, c.State())

	c.MarkPrimed()
	require.Equal(t, Primed, c.State())

	require.NoError(t, c.Advance(CauseSnapshot))
	require.Equal(t, Active, c.State())
}

func TestConnectionRejectsOutOfOrderCause(t *testing.T) {
	c := NewConnection()
	require.ErrorIs(t, c.Advance(CauseGamestate), ErrBadTransition)
}

func TestDisconnectAllowedFromAnyState(t *testing.T) {
	c := NewConnection()
	c.BeginConnecting()
	require.NoError(t, c.Advance(CauseConnectAck))
	c.Disconnect()
	require.Equal(t, Disconnected, c.State())
}

func TestBothSidesShareOneSessionID(t *testing.T) {
	server, client := NewPair("test")
	require.Equal(t, server.SessionID, client.SessionID)
}
