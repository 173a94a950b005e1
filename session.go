// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co

package mqttgo

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/lucidwire/mqttgo/packets"
	"github.com/lucidwire/mqttgo/transport"
)

// AuthFlow is invoked for each AUTH packet received while opening, and must
// return the packet to send back (another AUTH) in response.
type AuthFlow func(received packets.Packet) (packets.Packet, error)

// OpenParams is everything Open needs beyond what was fixed at
// construction: the identity to present, an optional will, whether to
// request a clean start, CONNECT-level v5 properties, and an optional
// enhanced-auth callback.
type OpenParams struct {
	Identity   Identity
	Will       *Will
	CleanStart bool
	Properties packets.Properties
	AuthFlow   AuthFlow
}

// Session is one MQTT connection's worth of state: lifecycle, delivery
// flows, keep-alive, and reconnection. Client wraps a Session with the
// public, documented surface; Session itself carries the mechanism.
type Session struct {
	version byte
	dial    func(delegate transport.Delegate) (transport.Transport, error)

	config Config
	log    LogSink
	stats  *Stats

	observers *observerHub
	pool      *Pool

	retrier      *Retrier
	reachability *reachabilityMonitor
	pinger       *pinger

	statusMu sync.Mutex
	status   Status
	lastOpen OpenParams
	params   ConnectParams

	tr transport.Transport

	ids          identifierPool
	activeTasks  *taskTable // keyed by packet id: outbound PUBACK/PUBREC/PUBCOMP/SUBACK/UNSUBACK
	passiveTasks *taskTable // keyed by packet id: inbound PUBREL for QoS2 inbound flow
	connectSlot  slotTask
	authSlot     slotTask
	pingSlot     slotTask

	inflight *inflight
}

// NewSession builds a Session against dial, which must produce a fresh
// Transport bound to one endpoint each time it is called (so reconnection
// re-dials from scratch).
func NewSession(version byte, dial func(delegate transport.Delegate) (transport.Transport, error), cfg Config, opts ...SessionOption) *Session {
	s := &Session{
		version:      version,
		dial:         dial,
		config:       cfg,
		log:          noopSink{},
		stats:        &Stats{},
		observers:    newObserverHub(),
		pool:         NewPool(4),
		activeTasks:  newTaskTable(),
		passiveTasks: newTaskTable(),
		inflight:     newInflight(),
		params:       DefaultConnectParams(),
	}
	s.pinger = newPinger(s)
	for _, o := range opts {
		o(s)
	}
	if s.reachability == nil {
		s.reachability = newReachabilityMonitor(s, nil)
	}
	return s
}

// SessionOption configures optional Session collaborators at construction.
type SessionOption func(*Session)

func WithLogSink(l LogSink) SessionOption { return func(s *Session) { s.log = l } }
func WithRetrier(r *Retrier) SessionOption { return func(s *Session) { s.retrier = r } }
func WithReachabilitySource(src ReachabilitySource) SessionOption {
	return func(s *Session) { s.reachability = newReachabilityMonitor(s, src) }
}
func WithObserver(o Observer) SessionOption {
	return func(s *Session) { s.observers.Add(o) }
}
func WithWorkerPoolSize(n uint64) SessionOption {
	return func(s *Session) { s.pool = NewPool(n) }
}

// Observers exposes the hub so callers can Add/Remove after construction.
func (s *Session) Observers() *observerHub { return s.observers }

// Stats returns a snapshot of the session's traffic counters.
func (s *Session) Stats() Stats { return s.stats.Clone() }

func (s *Session) setStatus(next Status) {
	old := s.status
	s.status = next
	s.observers.notifyStatus(old, next)
}

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	return s.status
}

// Open begins a connection. It blocks until the session reaches opened or
// fails, per spec §4.7.
func (s *Session) Open(p OpenParams) error {
	if p.Identity.ClientID == "" {
		p.Identity.ClientID = xid.New().String()
	}

	s.statusMu.Lock()
	if s.status == StatusOpening || s.status == StatusOpened {
		s.statusMu.Unlock()
		return newError(ErrKindAlreadyOpened)
	}
	s.lastOpen = p
	s.setStatus(StatusOpening)
	s.statusMu.Unlock()

	return s.dialAndConnect(p, false)
}

// reconnect rebuilds the stored CONNECT with cleanSession=false and the
// will cleared, per spec §4.7's auto-reconnect rebuild rule.
func (s *Session) reconnect() error {
	s.statusMu.Lock()
	if s.status == StatusOpening || s.status == StatusOpened {
		s.statusMu.Unlock()
		return newError(ErrKindAlreadyOpened)
	}
	p := s.lastOpen
	p.CleanStart = false
	p.Will = nil
	s.lastOpen = p
	s.setStatus(StatusOpening)
	s.statusMu.Unlock()

	return s.dialAndConnect(p, true)
}

func (s *Session) dialAndConnect(p OpenParams, isReconnect bool) error {
	tr, err := s.dial(s)
	if err != nil {
		s.failClosed(CloseReason{Kind: ErrKindConnectFailed, Err: err})
		return wrapError(ErrKindConnectFailed, err)
	}

	s.statusMu.Lock()
	s.tr = tr
	s.statusMu.Unlock()

	if err := tr.Start(); err != nil {
		s.failClosed(CloseReason{Kind: ErrKindConnectFailed, Err: err})
		return wrapError(ErrKindConnectFailed, err)
	}

	cpl := s.connectSlot.Arm()

	connectPk := s.buildConnect(p)
	if err := s.sendPacket(connectPk); err != nil {
		s.failClosed(CloseReason{Kind: ErrKindConnectFailed, Err: err})
		return wrapError(ErrKindConnectFailed, err)
	}

	select {
	case res := <-cpl.ch:
		if res.err != nil {
			return res.err
		}
		return s.handleConnectResolution(res.packet, p, isReconnect)
	case <-time.After(s.config.ConnectTimeout):
		s.connectSlot.Clear(newError(ErrKindTimeout))
		s.failClosed(CloseReason{Kind: ErrKindTimeout})
		return newError(ErrKindTimeout)
	}
}

func (s *Session) buildConnect(p OpenParams) packets.Packet {
	pk := packets.Packet{
		FixedHeader:      packets.NewFixedHeader(packets.Connect),
		ProtocolName:     "MQTT",
		ProtocolVersion:  s.version,
		CleanStart:       p.CleanStart,
		Keepalive:        uint16(s.config.KeepAlive / time.Second),
		ClientIdentifier: p.Identity.ClientID,
		Properties:       p.Properties,
	}
	if p.Identity.Username != "" {
		pk.UsernameFlag = true
		pk.Username = p.Identity.Username
	}
	if len(p.Identity.Password) > 0 {
		pk.PasswordFlag = true
		pk.Password = p.Identity.Password
	}
	if p.Will != nil {
		pk.WillFlag = true
		pk.WillQos = p.Will.Qos
		pk.WillRetain = p.Will.Retain
		pk.WillTopic = p.Will.Topic
		pk.WillMessage = p.Will.Payload
		pk.WillProperties = p.Will.Properties
	}
	return pk
}

// handleConnectResolution applies CONNACK semantics per spec §4.7. The
// connect slot is resolved by a CONNACK or, during enhanced
// authentication, by a terminal AUTH(success) (see handleAuth), which is
// handled here like a CONNACK; AUTH(continueAuthentication) runs the
// authflow again without resolving the slot.
func (s *Session) handleConnectResolution(pk packets.Packet, p OpenParams, isReconnect bool) error {
	if s.version == packets.Version311 {
		if pk.ReasonCode != 0 {
			s.failClosed(CloseReason{Kind: ErrKindConnectFailed, Code: &pk.ReasonCode})
			return newErrorCode(ErrKindConnectFailed, pk.ReasonCode)
		}
	} else if pk.ReasonCode > 0x7F {
		code := pk.ReasonCode
		s.failClosed(CloseReason{Kind: ErrKindConnectFailed, Code: &code})
		return newErrorCode(ErrKindConnectFailed, code)
	}

	props := pk.Properties
	if props.ServerKeepAliveFlag {
		s.config.KeepAlive = time.Duration(props.ServerKeepAlive) * time.Second
	}
	if props.AssignedClientID != "" {
		p.Identity.ClientID = props.AssignedClientID
		s.lastOpen.Identity.ClientID = props.AssignedClientID
	}
	if props.MaximumQosFlag {
		s.params.MaxQos = props.MaximumQos
	}
	if props.MaximumPacketSize > 0 {
		s.params.MaxPacketSize = props.MaximumPacketSize
	}
	if props.RetainAvailableFlag {
		s.params.RetainAvailable = props.RetainAvailable != 0
	}
	if props.TopicAliasMaximum > 0 {
		s.params.MaxTopicAlias = props.TopicAliasMaximum
	}

	s.statusMu.Lock()
	s.setStatus(StatusOpened)
	s.statusMu.Unlock()

	if s.retrier != nil {
		s.retrier.ResetOnSuccess()
	}
	if isReconnect {
		s.stats.Reconnects++
	}
	if s.config.PingEnabled {
		s.pinger.Start(s.config.KeepAlive, s.config.PingTimeout)
	}

	if pk.SessionPresent {
		s.resumeInflight()
	} else {
		s.inflight.Clear()
	}

	s.reachability.Start()
	return nil
}

// resumeInflight resends every previously inflight packet, per spec
// §4.8's inflight-resumption rule.
func (s *Session) resumeInflight() {
	for _, pk := range s.inflight.Snapshot() {
		if pk.FixedHeader.Type == packets.Publish {
			pk.FixedHeader.Dup = true
		}
		s.inflight.Set(pk)
		_ = s.sendPacket(pk)
	}
}

// Close begins a graceful shutdown, per spec §4.7.
func (s *Session) Close(code byte, props packets.Properties) error {
	s.statusMu.Lock()
	switch s.status {
	case StatusClosed, StatusClosing:
		s.statusMu.Unlock()
		return newError(ErrKindAlreadyClosed)
	case StatusOpening:
		s.statusMu.Unlock()
		s.failClosed(CloseReason{Kind: ErrKindClientClose, Code: &code})
		return nil
	}
	s.setStatus(StatusClosing)
	s.statusMu.Unlock()

	disconnect := packets.Packet{
		FixedHeader: packets.NewFixedHeader(packets.Disconnect),
		ReasonCode:  code,
		Properties:  props,
	}
	_ = s.sendPacket(disconnect) // best-effort, per spec

	s.failClosed(CloseReason{Kind: ErrKindClientClose, Code: &code})
	return nil
}

// failClosed tears everything down and transitions to closed(reason), then
// consults the retrier per spec §4.7's auto-reconnect rule. When the
// retrier will actually retry, active-task completers backed by a still
// live inflight delivery are left armed instead of failed: resumeInflight
// resends that delivery under the same packet identifier after
// reconnection, and the eventual PUBACK/PUBREC/PUBCOMP resolves the very
// completer a blocked Publish/Subscribe call is still waiting on.
func (s *Session) failClosed(reason CloseReason) {
	s.pinger.Stop()

	s.statusMu.Lock()
	if s.status == StatusClosed {
		s.statusMu.Unlock()
		return
	}
	if s.tr != nil {
		s.tr.Cancel()
		s.tr = nil
	}
	s.setStatus(StatusClosed)
	s.statusMu.Unlock()

	delay, willRetry := s.retryDecision(reason)
	if willRetry {
		s.activeTasks.ClearAllExcept(s.inflight.IDs(), reason.asError())
	} else {
		s.activeTasks.ClearAll(reason.asError())
		s.inflight.Clear()
	}
	s.passiveTasks.ClearAll(reason.asError())
	s.connectSlot.Clear(reason.asError())
	s.authSlot.Clear(reason.asError())
	s.pingSlot.Clear(reason.asError())

	if reason.Err != nil {
		s.observers.notifyError(reason.asError())
	}

	if willRetry {
		s.pool.Enqueue(func() {
			time.Sleep(delay)
			_ = s.reconnect()
		})
	}
}

// retryDecision reports whether failClosed should schedule a reconnect,
// and after how long. It must call Retrier.Delay at most once per close -
// Delay increments the retrier's attempt counter as a side effect.
func (s *Session) retryDecision(reason CloseReason) (time.Duration, bool) {
	if s.retrier == nil {
		return 0, false
	}
	if reason.Kind == ErrKindNetworkUnavailable || reason.Kind == ErrKindNetworkDown {
		return 0, false
	}
	if s.reachability.Unavailable() {
		return 0, false
	}
	return s.retrier.Delay(reason)
}

// onReachabilityTransition is invoked by reachabilityMonitor, per spec
// §4.11.
func (s *Session) onReachabilityTransition(prev, next ReachabilityState) {
	s.statusMu.Lock()
	status := s.status
	s.statusMu.Unlock()

	if prev == ReachabilityUnsatisfied && next != ReachabilityUnsatisfied {
		if status != StatusOpened && status != StatusOpening {
			s.pool.Enqueue(func() { _ = s.reconnect() })
		}
		return
	}
	if next == ReachabilityUnsatisfied {
		s.failClosed(CloseReason{Kind: ErrKindNetworkUnavailable})
	}
}

// sendPing is invoked by pinger on its keepAlive cadence, per spec §4.9.
func (s *Session) sendPing(pingTimeout time.Duration) {
	completer := s.pingSlot.Arm()
	pk := packets.Packet{FixedHeader: packets.NewFixedHeader(packets.Pingreq)}
	if err := s.sendPacket(pk); err != nil {
		return
	}
	s.stats.PingsSent++

	select {
	case res := <-completer.ch:
		if res.err == nil {
			s.stats.PongsReceived++
		}
	case <-time.After(pingTimeout):
		s.pingSlot.Clear(newError(ErrKindTimeout))
		s.failClosed(CloseReason{Kind: ErrKindTimeout})
	}
}

// sendPacket encodes pk and hands it to the transport, touching the
// pinger's activity clock on every outbound byte, per spec §4.9.
func (s *Session) sendPacket(pk packets.Packet) error {
	raw, err := pk.Encode(s.version)
	if err != nil {
		return wrapError(ErrKindPacketError, err)
	}

	s.statusMu.Lock()
	tr := s.tr
	s.statusMu.Unlock()
	if tr == nil {
		return newError(ErrKindUnconnected)
	}

	res := <-tr.Send(raw)
	if res.Err != nil {
		return wrapError(ErrKindOtherError, res.Err)
	}

	s.pinger.touch()
	s.stats.BytesSent += int64(len(raw))
	s.stats.PacketsSent++
	return nil
}

// --- transport.Delegate ---

// OnPacket routes one fully parsed Packet per spec §4.6's routing table.
func (s *Session) OnPacket(pk packets.Packet) {
	s.stats.PacketsReceived++

	switch pk.FixedHeader.Type {
	case packets.Connack:
		s.connectSlot.Resolve(pk)
	case packets.Auth:
		s.handleAuth(pk)
	case packets.Pingresp:
		s.pingSlot.Resolve(pk)
	case packets.Pubrec:
		s.handleInboundPubrec(pk)
	case packets.Puback, packets.Suback, packets.Unsuback, packets.Pubcomp:
		s.activeTasks.Resolve(pk.PacketID, pk)
	case packets.Pubrel:
		s.handleInboundPubrel(pk)
	case packets.Publish:
		s.handleInboundPublish(pk)
	case packets.Disconnect:
		code := pk.ReasonCode
		s.failClosed(CloseReason{Kind: ErrKindServerClose, Code: &code})
	case packets.Pingreq:
		_ = s.sendPacket(packets.Packet{FixedHeader: packets.NewFixedHeader(packets.Pingresp)})
	}
}

func (s *Session) handleAuth(pk packets.Packet) {
	s.statusMu.Lock()
	opening := s.status == StatusOpening
	s.statusMu.Unlock()

	if !opening {
		s.authSlot.Resolve(pk)
		return
	}

	flow := s.lastOpen.AuthFlow
	if flow == nil {
		s.connectSlot.Clear(newError(ErrKindAuthflowRequired))
		return
	}
	if pk.ReasonCode == packets.CodeSuccess.Code {
		s.connectSlot.Resolve(pk)
		return
	}

	reply, err := flow(pk)
	if err != nil {
		s.connectSlot.Clear(wrapError(ErrKindAuthflowRequired, err))
		return
	}
	if err := s.sendPacket(reply); err != nil {
		s.connectSlot.Clear(wrapError(ErrKindConnectFailed, err))
	}
	// The broker answers with either another AUTH(continueAuthentication)
	// - handled by the next OnPacket call - or ends the exchange with an
	// AUTH(success) or a CONNACK, either of which resolves the connect slot.
}

// OnStateChange observes transport lifecycle transitions, per spec §4.5:
// only the terminal ones matter to the session core.
func (s *Session) OnStateChange(st transport.State, err error) {
	switch st {
	case transport.StateFailed:
		s.failClosed(CloseReason{Kind: classifyTransportFailure(err), Err: err})
	case transport.StateCancelled:
		// Cancel() already drove the transition; nothing further to do.
	}
}

// classifyTransportFailure maps a StateFailed cause to the session's error
// taxonomy, per spec §4.7: bytes that arrived but did not decode as MQTT
// are a protocol error; anything else (reset, EOF, i/o timeout) is a
// network error.
func classifyTransportFailure(err error) ErrorKind {
	var code packets.Code
	if errors.As(err, &code) {
		return ErrKindDecodeError
	}
	for _, sentinel := range []error{
		packets.ErrIncompletePacket, packets.ErrVarintOverflow,
		packets.ErrUnexpectedTokens, packets.ErrUnexpectedDataLength,
		packets.ErrUnrecognisedPacketType, packets.ErrInvalidFlags,
		packets.ErrOversizedLengthIndicator,
	} {
		if errors.Is(err, sentinel) {
			return ErrKindDecodeError
		}
	}
	return ErrKindNetworkError
}

// OnConnectionError observes a debounced connection-level error, per spec
// §4.5; it does not itself close the session (the paired read/write
// failure that produced it does that through OnStateChange or a
// completer timeout).
func (s *Session) OnConnectionError(err error) {
	s.observers.notifyError(wrapError(ErrKindOtherError, err))
}
