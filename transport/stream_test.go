// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co

package transport

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lucidwire/mqttgo/packets"
)

type recordingDelegate struct {
	mu       sync.Mutex
	packets  []packets.Packet
	states   []State
	connErrs []error
}

func (d *recordingDelegate) OnPacket(pk packets.Packet) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.packets = append(d.packets, pk)
}

func (d *recordingDelegate) OnStateChange(s State, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.states = append(d.states, s)
}

func (d *recordingDelegate) OnConnectionError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connErrs = append(d.connErrs, err)
}

func (d *recordingDelegate) packetCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.packets)
}

func (d *recordingDelegate) lastState() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.states) == 0 {
		return StatePreparing
	}
	return d.states[len(d.states)-1]
}

func encodePingreq(t *testing.T) []byte {
	t.Helper()
	pk := packets.Packet{FixedHeader: packets.FixedHeader{Type: packets.Pingreq}}
	b, err := pk.Encode(packets.Version311)
	require.NoError(t, err)
	return b
}

func TestStreamTransportDeliversPacketFromPeer(t *testing.T) {
	client, peer := net.Pipe()
	defer peer.Close()

	delegate := &recordingDelegate{}
	tr := NewStreamTransport(func() (net.Conn, error) { return client, nil }, packets.Version311, delegate)
	require.NoError(t, tr.Start())

	go peer.Write(encodePingreq(t))

	require.Eventually(t, func() bool { return delegate.packetCount() == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, packets.Pingreq, delegate.packets[0].FixedHeader.Type)

	tr.Cancel()
}

func TestStreamTransportSendWritesBytes(t *testing.T) {
	client, peer := net.Pipe()
	defer peer.Close()

	delegate := &recordingDelegate{}
	tr := NewStreamTransport(func() (net.Conn, error) { return client, nil }, packets.Version311, delegate)
	require.NoError(t, tr.Start())

	readDone := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 2)
		n, _ := peer.Read(buf)
		readDone <- buf[:n]
	}()

	res := <-tr.Send(encodePingreq(t))
	require.NoError(t, res.Err)

	got := <-readDone
	require.Equal(t, encodePingreq(t), got)

	tr.Cancel()
}

func TestStreamTransportCancelStopsReadLoopWithoutError(t *testing.T) {
	client, peer := net.Pipe()
	defer peer.Close()

	delegate := &recordingDelegate{}
	tr := NewStreamTransport(func() (net.Conn, error) { return client, nil }, packets.Version311, delegate)
	require.NoError(t, tr.Start())

	tr.Cancel()
	require.Equal(t, StateCancelled, delegate.lastState())
	require.Empty(t, delegate.connErrs)
}

func TestStreamTransportDialFailureReportsStateFailed(t *testing.T) {
	delegate := &recordingDelegate{}
	boom := net.UnknownNetworkError("boom")
	tr := NewStreamTransport(func() (net.Conn, error) { return nil, boom }, packets.Version311, delegate)

	err := tr.Start()
	require.Error(t, err)
	require.Equal(t, StateFailed, delegate.lastState())
}

// selfCancellingDelegate mimics the session core tearing itself down
// synchronously from inside a delegate callback (a remote DISCONNECT
// packet, or a read failure), the two paths that used to deadlock inside
// Cancel's wg.Wait.
type selfCancellingDelegate struct {
	tr        Transport
	cancelled chan struct{}
}

func (d *selfCancellingDelegate) OnPacket(pk packets.Packet) {
	d.tr.Cancel()
	close(d.cancelled)
}

func (d *selfCancellingDelegate) OnStateChange(s State, err error) {}
func (d *selfCancellingDelegate) OnConnectionError(err error)      {}

func TestStreamTransportCancelFromWithinOnPacketDoesNotDeadlock(t *testing.T) {
	client, peer := net.Pipe()
	defer peer.Close()

	delegate := &selfCancellingDelegate{cancelled: make(chan struct{})}
	tr := NewStreamTransport(func() (net.Conn, error) { return client, nil }, packets.Version311, delegate)
	delegate.tr = tr
	require.NoError(t, tr.Start())

	go peer.Write(encodePingreq(t))

	select {
	case <-delegate.cancelled:
	case <-time.After(time.Second):
		t.Fatal("Cancel called from within OnPacket deadlocked")
	}
}

func TestStreamTransportSendBeforeStartReturnsClosedError(t *testing.T) {
	delegate := &recordingDelegate{}
	tr := NewStreamTransport(func() (net.Conn, error) { return nil, nil }, packets.Version311, delegate)

	res := <-tr.Send(encodePingreq(t))
	require.ErrorIs(t, res.Err, net.ErrClosed)
}
