// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co

package transport

import (
	"bufio"
	"io"
	"net"
	"sync"

	"github.com/lucidwire/mqttgo/packets"
)

// StreamTransport frames a net.Conn byte stream into whole packets: read
// exactly 1 byte for type+flags, 1-4 bytes of varint remaining-length,
// then exactly that many body bytes.
type StreamTransport struct {
	dial     func() (net.Conn, error)
	version  byte
	delegate Delegate

	mu     sync.Mutex
	conn   net.Conn
	r      *bufio.Reader
	filter connErrorFilter

	cancelled bool
	// inCallback is true while readLoop is synchronously inside a delegate
	// call. A delegate that reacts to a terminal notification by calling
	// Cancel (e.g. the session tearing down on a remote DISCONNECT or a
	// read failure) would otherwise deadlock: Cancel's wg.Wait would block
	// forever on the very goroutine that is calling it.
	inCallback bool
	wg         sync.WaitGroup
}

// NewStreamTransport builds a transport that dials via dial (already bound
// to a specific host/port/TLS config) and decodes packets for the given
// protocol version.
func NewStreamTransport(dial func() (net.Conn, error), version byte, delegate Delegate) *StreamTransport {
	return &StreamTransport{dial: dial, version: version, delegate: delegate}
}

func (t *StreamTransport) Start() error {
	t.delegate.OnStateChange(StatePreparing, nil)

	conn, err := t.dial()
	if err != nil {
		t.delegate.OnStateChange(StateFailed, err)
		return err
	}

	t.delegate.OnStateChange(StateSetup, nil)

	t.mu.Lock()
	t.conn = conn
	t.r = bufio.NewReaderSize(conn, 4096)
	t.mu.Unlock()

	t.delegate.OnStateChange(StateReady, nil)

	t.wg.Add(1)
	go t.readLoop()
	return nil
}

func (t *StreamTransport) readLoop() {
	defer t.wg.Done()
	for {
		pk, err := t.readOnePacket()
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
		t.callDelegate(func() { t.delegate.OnPacket(pk) })
	}
}

// callDelegate marks the read loop as inside a delegate callback for the
// duration of fn, so a Cancel triggered synchronously from within fn (the
// delegate tearing the session down) can recognise it is running on the
// read loop's own goroutine and skip waiting on itself.
func (t *StreamTransport) callDelegate(fn func()) {
	t.mu.Lock()
	t.inCallback = true
	t.mu.Unlock()

	fn()

	t.mu.Lock()
	t.inCallback = false
	t.mu.Unlock()
}

// readOnePacket reads exactly one fixed header + body from the stream.
// It reads the first header byte, decodes the remaining-length varint
// byte by byte from the buffered reader, then reads exactly that many
// body bytes.
func (t *StreamTransport) readOnePacket() (packets.Packet, error) {
	first, err := t.r.ReadByte()
	if err != nil {
		return packets.Packet{}, err
	}

	var fh packets.FixedHeader
	if err := fh.Decode(first); err != nil {
		return packets.Packet{}, err
	}

	n, _, err := packets.DecodeVarint(t.r)
	if err != nil {
		return packets.Packet{}, err
	}
	fh.Remaining = n

	body := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(t.r, body); err != nil {
			return packets.Packet{}, err
		}
	}

	pk := packets.Packet{FixedHeader: fh}
	if err := pk.Decode(t.version, body); err != nil {
		return packets.Packet{}, err
	}
	return pk, nil
}

func (t *StreamTransport) Send(b []byte) <-chan SendResult {
	out := make(chan SendResult, 1)
	go func() {
		t.mu.Lock()
		conn := t.conn
		t.mu.Unlock()

		if conn == nil {
			out <- SendResult{Err: net.ErrClosed}
			return
		}

		_, err := conn.Write(b)
		if err != nil && t.filter.shouldReport(err) {
			t.delegate.OnConnectionError(err)
		}
		out <- SendResult{Err: err}
	}()
	return out
}

func (t *StreamTransport) Cancel() {
	t.mu.Lock()
	t.cancelled = true
	conn := t.conn
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
