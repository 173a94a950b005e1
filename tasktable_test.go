// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co

package mqttgo

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lucidwire/mqttgo/packets"
)

func TestTaskTableResolveDeliversPacket(t *testing.T) {
	tt := newTaskTable()
	c := tt.Set(1)

	ok := tt.Resolve(1, packets.Packet{PacketID: 1, TopicName: "hit"})
	require.True(t, ok)

	res := <-c.ch
	require.Equal(t, "hit", res.packet.TopicName)
}

func TestTaskTableResolveOrphanReturnsFalse(t *testing.T) {
	tt := newTaskTable()
	require.False(t, tt.Resolve(99, packets.Packet{}))
}

func TestTaskTableSetReplacesWithoutResolvingPrevious(t *testing.T) {
	tt := newTaskTable()
	first := tt.Set(1)
	tt.Set(1) // replaces without resolving first

	select {
	case <-first.ch:
		t.Fatal("displaced completer should not resolve")
	default:
	}
}

func TestTaskTableClearAllResolvesEveryPendingCompleter(t *testing.T) {
	tt := newTaskTable()
	c1 := tt.Set(1)
	c2 := tt.Set(2)

	tt.ClearAll(newError(ErrKindClientClose))

	res1 := <-c1.ch
	res2 := <-c2.ch
	require.Equal(t, ErrKindClientClose, res1.err.Kind)
	require.Equal(t, ErrKindClientClose, res2.err.Kind)
}

func TestTaskTableClearAllExceptLeavesKeptEntriesArmed(t *testing.T) {
	tt := newTaskTable()
	kept := tt.Set(1)
	failed := tt.Set(2)

	tt.ClearAllExcept([]uint16{1}, newError(ErrKindNetworkError))

	res := <-failed.ch
	require.Equal(t, ErrKindNetworkError, res.err.Kind)

	select {
	case <-kept.ch:
		t.Fatal("kept completer should not have been resolved")
	default:
	}

	// the kept entry is still reachable in the table, and still resolves
	// normally afterwards.
	ok := tt.Resolve(1, packets.Packet{PacketID: 1, TopicName: "resumed"})
	require.True(t, ok)
	res = <-kept.ch
	require.Equal(t, "resumed", res.packet.TopicName)
}

func TestCompleterResolveIsIdempotent(t *testing.T) {
	c := newCompleter()
	c.resolve(packets.Packet{TopicName: "first"})
	c.fail(newError(ErrKindTimeout)) // no-op, first settle already won

	res := <-c.ch
	require.Equal(t, "first", res.packet.TopicName)
	require.Nil(t, res.err)
}

func TestSlotTaskArmResolveClear(t *testing.T) {
	var slot slotTask

	c := slot.Arm()
	require.True(t, slot.Resolve(packets.Packet{TopicName: "pong"}))
	res := <-c.ch
	require.Equal(t, "pong", res.packet.TopicName)

	require.False(t, slot.Resolve(packets.Packet{})) // already consumed

	c2 := slot.Arm()
	slot.Clear(newError(ErrKindTimeout))
	res2 := <-c2.ch
	require.Equal(t, ErrKindTimeout, res2.err.Kind)
}
