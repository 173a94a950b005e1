// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co

package transport

import (
	"errors"
	"sync"

	"github.com/lucidwire/mqttgo/packets"
)

// ErrTransportClosed is returned by Send after Cancel or before Start.
var ErrTransportClosed = errors.New("transport: connection closed")

// MessageConn is the minimal surface a message-oriented connection (a
// WebSocket) needs for MessageTransport: one binary frame in, one binary
// frame out, each frame being exactly one complete MQTT packet.
type MessageConn interface {
	ReadMessage() (data []byte, err error)
	WriteMessage(data []byte) error
	Close() error
}

// MessageTransport frames a MessageConn where each frame IS one complete
// packet - no fixed-header remaining-length walk is needed, unlike
// StreamTransport.
type MessageTransport struct {
	dial     func() (MessageConn, error)
	version  byte
	delegate Delegate

	mu     sync.Mutex
	conn   MessageConn
	filter connErrorFilter

	cancelled bool
	// inCallback is true while readLoop is synchronously inside a delegate
	// call - see StreamTransport.inCallback for why Cancel needs this to
	// avoid deadlocking on itself.
	inCallback bool
	wg         sync.WaitGroup
}

func NewMessageTransport(dial func() (MessageConn, error), version byte, delegate Delegate) *MessageTransport {
	return &MessageTransport{dial: dial, version: version, delegate: delegate}
}

func (t *MessageTransport) Start() error {
	t.delegate.OnStateChange(StatePreparing, nil)

	conn, err := t.dial()
	if err != nil {
		t.delegate.OnStateChange(StateFailed, err)
		return err
	}

	t.delegate.OnStateChange(StateSetup, nil)

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()

	t.delegate.OnStateChange(StateReady, nil)

	t.wg.Add(1)
	go t.readLoop()
	return nil
}

func (t *MessageTransport) readLoop() {
	defer t.wg.Done()
	for {
		t.mu.Lock()
		conn := t.conn
		t.mu.Unlock()
		if conn == nil {
			return
		}

		data, err := conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			cancelled := t.cancelled
			t.mu.Unlock()
			if cancelled {
				return
			}
			t.callDelegate(func() {
				if t.filter.shouldReport(err) {
					t.delegate.OnConnectionError(err)
				}
				t.delegate.OnStateChange(StateFailed, err)
			})
			return
		}

		pk, err := decodeWholeMessage(data, t.version)
		if err != nil {
			t.callDelegate(func() { t.delegate.OnStateChange(StateFailed, err) })
			return
		}
		t.callDelegate(func() { t.delegate.OnPacket(pk) })
	}
}

// callDelegate marks the read loop as inside a delegate callback for the
// duration of fn - see StreamTransport.callDelegate.
func (t *MessageTransport) callDelegate(fn func()) {
	t.mu.Lock()
	t.inCallback = true
	t.mu.Unlock()

	fn()

	t.mu.Lock()
	t.inCallback = false
	t.mu.Unlock()
}

func decodeWholeMessage(data []byte, version byte) (packets.Packet, error) {
	if len(data) == 0 {
		return packets.Packet{}, packets.ErrIncompletePacket
	}

	var fh packets.FixedHeader
	if err := fh.Decode(data[0]); err != nil {
		return packets.Packet{}, err
	}

	b := packets.NewDataBuffer(data[1:])
	n, consumed, err := packets.DecodeVarint(b)
	if err != nil {
		return packets.Packet{}, err
	}
	fh.Remaining = n

	body := data[1+consumed:]
	if len(body) != n {
		return packets.Packet{}, packets.ErrUnexpectedDataLength
	}

	pk := packets.Packet{FixedHeader: fh}
	if err := pk.Decode(version, body); err != nil {
		return packets.Packet{}, err
	}
	return pk, nil
}

func (t *MessageTransport) Send(b []byte) <-chan SendResult {
	out := make(chan SendResult, 1)
	go func() {
		t.mu.Lock()
		conn := t.conn
		t.mu.Unlock()

		if conn == nil {
			out <- SendResult{Err: ErrTransportClosed}
			return
		}

		err := conn.WriteMessage(b)
		if err != nil && t.filter.shouldReport(err) {
			t.delegate.OnConnectionError(err)
		}
		out <- SendResult{Err: err}
	}()
	return out
}

func (t *MessageTransport) Cancel() {
	t.mu.Lock()
	t.cancelled = true
	conn := t.conn
	t.conn = nil
	selfCancel := t.inCallback
	t.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if !selfCancel {
		t.wg.Wait()
	}
	t.delegate.OnStateChange(StateCancelled, nil)
}
