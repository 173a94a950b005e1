// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co

package mqttgo

import "github.com/lucidwire/mqttgo/packets"

// Identity is the credential set a session presents on every CONNECT. The
// broker may mutate ClientID via the assignedClientIdentifier property, so
// it is stored by value and updated in place rather than being immutable.
type Identity struct {
	ClientID string
	Username string
	Password []byte
}

// Will is a message pre-registered in CONNECT that the broker publishes on
// abnormal disconnect.
type Will struct {
	Topic      string
	Payload    []byte
	Qos        byte
	Retain     bool
	Properties packets.Properties
}

// ConnectParams holds the session parameters negotiated on CONNACK.
type ConnectParams struct {
	MaxQos            byte
	MaxPacketSize     uint32 // 0 means unbounded
	RetainAvailable   bool
	MaxTopicAlias     uint16
	ServerKeepAlive   uint16 // 0 means "not overridden"
}

// DefaultConnectParams is what a session assumes before any CONNACK has
// been received, per spec: maxQoS=exactlyOnce, retainAvailable=true,
// maxTopicAlias=65535.
func DefaultConnectParams() ConnectParams {
	return ConnectParams{
		MaxQos:          packets.ExactlyOnce,
		RetainAvailable: true,
		MaxTopicAlias:   65535,
	}
}

// Status is the session's lifecycle state.
type Status byte

const (
	StatusClosed Status = iota
	StatusOpening
	StatusOpened
	StatusClosing
)

func (s Status) String() string {
	switch s {
	case StatusOpening:
		return "opening"
	case StatusOpened:
		return "opened"
	case StatusClosing:
		return "closing"
	default:
		return "closed"
	}
}

// ErrorKind is the taxonomy of error conditions the session surfaces to
// callers and observers; it is never itself the Go error type returned -
// see Error, which wraps a kind with context.
type ErrorKind byte

const (
	ErrKindTimeout ErrorKind = iota
	ErrKindUnconnected
	ErrKindPacketError
	ErrKindDecodeError
	ErrKindServerClose
	ErrKindClientClose
	ErrKindPublishFailed
	ErrKindConnectFailed
	ErrKindAlreadyOpened
	ErrKindAlreadyClosed
	ErrKindUnexpectPacket
	ErrKindUnexpectMessage
	ErrKindInvalidCertData
	ErrKindIncompletePacket
	ErrKindAuthflowRequired
	ErrKindNetworkUnavailable
	ErrKindNetworkDown
	ErrKindNetworkError
	ErrKindOtherError
)

func (k ErrorKind) String() string {
	names := [...]string{
		"timeout", "unconnected", "packetError", "decodeError", "serverClose",
		"clientClose", "publishFailed", "connectFailed", "alreadyOpened",
		"alreadyClosed", "unexpectPacket", "unexpectMessage", "invalidCertData",
		"incompletePacket", "authflowRequired", "networkUnavailable", "networkDown",
		"networkError", "otherError",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return "unknown"
}

// Error is the concrete error type the library returns. Code carries an
// MQTT reason/return code when ErrorKind is one that correlates to the wire
// (serverClose, clientClose, publishFailed, connectFailed).
type Error struct {
	Kind ErrorKind
	Code *byte
	Err  error // underlying cause, e.g. a transport or decode error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Err.Error()
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind) *Error {
	return &Error{Kind: kind}
}

func newErrorCode(kind ErrorKind, code byte) *Error {
	c := code
	return &Error{Kind: kind, Code: &c}
}

func wrapError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// CloseReason explains why a session transitioned to closed.
type CloseReason struct {
	Kind ErrorKind // one of: timeout(pingTimeout), networkUnavailable, serverClose,
	// clientClose, otherError, or a wrapped protocol/transport error
	Code *byte
	Err  error
}

func (r CloseReason) asError() *Error {
	return &Error{Kind: r.Kind, Code: r.Code, Err: r.Err}
}
