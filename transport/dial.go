// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co

package transport

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/quic-go/quic-go"
)

// Dial builds the Transport appropriate for the endpoint's framing mode:
// a StreamTransport over a raw net.Conn for tcp/tls/quic, a MessageTransport
// over a MessageConn adapter for ws/wss.
func Dial(ep any, version byte, delegate Delegate) (Transport, error) {
	switch e := ep.(type) {
	case TCPEndpoint:
		return NewStreamTransport(e.Dial, version, delegate), nil
	case TLSEndpoint:
		return NewStreamTransport(e.Dial, version, delegate), nil
	case WSEndpoint:
		return NewMessageTransport(func() (MessageConn, error) {
			return dialWebsocket(e.url("ws", 8083), e.Headers, nil, e.Options)
		}, version, delegate), nil
	case WSSEndpoint:
		return NewMessageTransport(func() (MessageConn, error) {
			plain := WSEndpoint{Host: e.Host, Port: e.Port, Path: e.Path}
			return dialWebsocket(plain.url("wss", 8084), e.Headers, e.TLS.build(e.Host), e.Options)
		}, version, delegate), nil
	case QUICEndpoint:
		return NewStreamTransport(e.dialStream, version, delegate), nil
	default:
		return nil, errUnknownEndpoint
	}
}

var errUnknownEndpoint = &net.AddrError{Err: "transport: unrecognised endpoint type", Addr: ""}

// dialWebsocket performs the HTTP upgrade with the "mqtt" subprotocol and
// wraps the resulting *websocket.Conn in wsConn so it satisfies MessageConn.
// Grounded on the subprotocol the teacher's listener-side websocket.go
// registers on its Upgrader - the client side mirrors it on the Dialer.
func dialWebsocket(rawURL string, headers http.Header, tlsConfig *tls.Config, opts TCPOptions) (MessageConn, error) {
	dialer := &websocket.Dialer{
		Subprotocols:     []string{"mqtt"},
		TLSClientConfig:  tlsConfig,
		HandshakeTimeout: handshakeTimeout(opts),
	}

	conn, _, err := dialer.Dial(rawURL, headers)
	if err != nil {
		return nil, err
	}
	return &wsConn{conn: conn}, nil
}

func handshakeTimeout(opts TCPOptions) time.Duration {
	if opts.DialTimeout == 0 {
		return 30 * time.Second
	}
	return opts.DialTimeout
}

// wsConn adapts *websocket.Conn to MessageConn, discarding any non-binary
// frame instead of surfacing it as a packet - grounded on the teacher's
// websocket listener rejecting non-binary messages with ErrInvalidMessage.
type wsConn struct {
	conn *websocket.Conn
}

func (w *wsConn) ReadMessage() ([]byte, error) {
	for {
		mt, data, err := w.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		return data, nil
	}
}

func (w *wsConn) WriteMessage(data []byte) error {
	return w.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (w *wsConn) Close() error {
	return w.conn.Close()
}

// dialStream opens a QUIC connection and a single bidirectional stream on
// it, wrapped as a net.Conn so it can be framed by StreamTransport exactly
// like TCP/TLS. MQTT-over-QUIC uses ALPN "mqtt" and one stream per session.
func (e QUICEndpoint) dialStream() (net.Conn, error) {
	tlsConf := e.TLS.build(e.Host)
	tlsConf.NextProtos = []string{"mqtt"}

	quicConf := &quic.Config{}
	if e.IdleTimeout > 0 {
		quicConf.MaxIdleTimeout = e.IdleTimeout
	}

	conn, err := quic.DialAddr(context.Background(), e.addr(), tlsConf, quicConf)
	if err != nil {
		return nil, err
	}

	stream, err := conn.OpenStreamSync(context.Background())
	if err != nil {
		conn.CloseWithError(0, "stream open failed")
		return nil, err
	}

	return &quicStreamConn{conn: conn, stream: stream}, nil
}

// quicStreamConn adapts a quic.Connection + its one quic.Stream to net.Conn.
type quicStreamConn struct {
	conn   quic.Connection
	stream quic.Stream
}

func (c *quicStreamConn) Read(b []byte) (int, error)  { return c.stream.Read(b) }
func (c *quicStreamConn) Write(b []byte) (int, error) { return c.stream.Write(b) }

func (c *quicStreamConn) Close() error {
	c.stream.Close()
	return c.conn.CloseWithError(0, "")
}

func (c *quicStreamConn) LocalAddr() net.Addr  { return c.conn.LocalAddr() }
func (c *quicStreamConn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

func (c *quicStreamConn) SetDeadline(t time.Time) error {
	if err := c.stream.SetReadDeadline(t); err != nil {
		return err
	}
	return c.stream.SetWriteDeadline(t)
}

func (c *quicStreamConn) SetReadDeadline(t time.Time) error  { return c.stream.SetReadDeadline(t) }
func (c *quicStreamConn) SetWriteDeadline(t time.Time) error { return c.stream.SetWriteDeadline(t) }
