// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co

package mqttgo

import (
	"time"

	"github.com/lucidwire/mqttgo/packets"
	"github.com/lucidwire/mqttgo/transport"
)

// Endpoint is one of transport.TCPEndpoint, transport.TLSEndpoint,
// transport.WSEndpoint, transport.WSSEndpoint, or transport.QUICEndpoint,
// per spec §6's endpoint surface.
type Endpoint = any

// Client is the public facade over a Session: construction from an
// Endpoint plus Config, and the operations an application calls day to
// day (Open, Close, Publish, Subscribe, Unsubscribe, observer
// registration). Session carries the mechanism; Client is the documented
// entry point.
type Client struct {
	session *Session
}

// New builds a Client for a given protocol version and endpoint. Passing
// a QUICEndpoint with cfg.PingEnabled set overrides its IdleTimeout to
// 1.5x cfg.KeepAlive, per spec §6.
func New(version byte, endpoint Endpoint, cfg Config, opts ...SessionOption) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if q, ok := endpoint.(transport.QUICEndpoint); ok && cfg.PingEnabled {
		q.IdleTimeout = time.Duration(float64(cfg.KeepAlive) * 1.5)
		endpoint = q
	}

	dial := func(delegate transport.Delegate) (transport.Transport, error) {
		return transport.Dial(endpoint, version, delegate)
	}

	s := NewSession(version, dial, cfg, opts...)
	return &Client{session: s}, nil
}

// Open connects and performs the MQTT handshake, blocking until opened or
// failed.
func (c *Client) Open(p OpenParams) error {
	return c.session.Open(p)
}

// Close disconnects gracefully with the given v5 reason code (ignored on
// v3.1.1) and properties.
func (c *Client) Close(code byte, props packets.Properties) error {
	return c.session.Close(code, props)
}

// Status returns the current lifecycle state.
func (c *Client) Status() Status { return c.session.Status() }

// Stats returns a snapshot of the session's traffic counters.
func (c *Client) Stats() Stats { return c.session.Stats() }

// Publish sends one application message and awaits its acknowledgement
// according to req.Qos (QoS 0 returns immediately with no wire wait).
func (c *Client) Publish(req PublishRequest) error {
	return c.session.Publish(req)
}

// Subscribe sends one SUBSCRIBE covering every filter and awaits the
// SUBACK.
func (c *Client) Subscribe(filters []Subscription, props packets.Properties) (SubscribeResult, error) {
	return c.session.Subscribe(filters, props)
}

// Unsubscribe sends one UNSUBSCRIBE covering every topic and awaits the
// UNSUBACK.
func (c *Client) Unsubscribe(topics []string, props packets.Properties) (UnsubscribeResult, error) {
	return c.session.Unsubscribe(topics, props)
}

// AddObserver registers o for status/message/error notifications and
// returns a handle for RemoveObserver.
func (c *Client) AddObserver(o Observer) observerHandle {
	return c.session.observers.Add(o)
}

// RemoveObserver unregisters a previously added observer.
func (c *Client) RemoveObserver(id observerHandle) {
	c.session.observers.Remove(id)
}
