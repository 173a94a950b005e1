// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co

package mqttgo

import (
	"time"

	"github.com/lucidwire/mqttgo/packets"
)

// PublishRequest is the application-level shape of an outbound PUBLISH.
type PublishRequest struct {
	Topic      string
	Payload    []byte
	Qos        byte
	Retain     bool
	Properties packets.Properties
}

// SubscribeResult carries the per-filter reason codes a SUBACK returned.
type SubscribeResult struct {
	ReasonCodes []byte
	Properties  packets.Properties
}

// UnsubscribeResult carries the per-filter reason codes an UNSUBACK
// returned (v5 only; v3.1.1 UNSUBACK has none).
type UnsubscribeResult struct {
	ReasonCodes []byte
	Properties  packets.Properties
}

// validatePublish checks a request against the negotiated ConnectParams,
// per spec §4.8's QoS 1/2 validation step.
func (s *Session) validatePublish(req PublishRequest) error {
	if req.Qos > s.params.MaxQos {
		return newError(ErrKindPacketError)
	}
	if req.Retain && !s.params.RetainAvailable {
		return newError(ErrKindPacketError)
	}
	if req.Properties.TopicAliasFlag && req.Properties.TopicAlias > s.params.MaxTopicAlias {
		return newError(ErrKindPacketError)
	}
	if len(req.Properties.SubscriptionIdentifier) > 0 {
		return newError(ErrKindPacketError)
	}
	if req.Topic == "" && !req.Properties.TopicAliasFlag {
		return newError(ErrKindPacketError)
	}
	return nil
}

// Publish sends one application message, per spec §4.8's outbound flows.
func (s *Session) Publish(req PublishRequest) error {
	if s.Status() != StatusOpened {
		return newError(ErrKindUnconnected)
	}

	switch req.Qos {
	case packets.AtMostOnce:
		pk := packets.Packet{
			FixedHeader: packets.NewFixedHeader(packets.Publish),
			TopicName:   req.Topic,
			Payload:     req.Payload,
			Properties:  req.Properties,
		}
		pk.FixedHeader.Qos = 0
		pk.FixedHeader.Retain = req.Retain
		if err := s.sendPacket(pk); err != nil {
			return err
		}
		s.stats.MessagesSent++
		return nil

	case packets.AtLeastOnce:
		if err := s.validatePublish(req); err != nil {
			return err
		}
		return s.publishQos1(req)

	case packets.ExactlyOnce:
		if err := s.validatePublish(req); err != nil {
			return err
		}
		return s.publishQos2(req)

	default:
		return newError(ErrKindPacketError)
	}
}

func (s *Session) publishQos1(req PublishRequest) error {
	id := s.ids.next16()
	pk := packets.Packet{
		FixedHeader: packets.NewFixedHeader(packets.Publish),
		TopicName:   req.Topic,
		Payload:     req.Payload,
		Properties:  req.Properties,
		PacketID:    id,
	}
	pk.FixedHeader.Qos = 1
	pk.FixedHeader.Retain = req.Retain

	for {
		s.inflight.Set(pk)
		cpl := s.activeTasks.Set(id)
		if err := s.sendPacket(pk); err != nil {
			s.inflight.Delete(id)
			s.activeTasks.Delete(id)
			return err
		}

		res, ok := s.awaitActive(cpl)
		if !ok {
			// re-send the same step, per spec §4.8 (identifier reuse is
			// the server's duplicate-detection signal, not the dup bit,
			// within a live session).
			continue
		}
		if res.err != nil {
			s.inflight.Delete(id)
			return res.err
		}
		if res.packet.ReasonCode > 0x7F {
			s.inflight.Delete(id)
			code := res.packet.ReasonCode
			return newErrorCode(ErrKindPublishFailed, code)
		}
		s.inflight.Delete(id)
		s.stats.MessagesSent++
		return nil
	}
}

func (s *Session) publishQos2(req PublishRequest) error {
	id := s.ids.next16()
	publishPk := packets.Packet{
		FixedHeader: packets.NewFixedHeader(packets.Publish),
		TopicName:   req.Topic,
		Payload:     req.Payload,
		Properties:  req.Properties,
		PacketID:    id,
	}
	publishPk.FixedHeader.Qos = 2
	publishPk.FixedHeader.Retain = req.Retain

	for {
		s.inflight.Set(publishPk)
		cpl := s.activeTasks.Set(id)
		if err := s.sendPacket(publishPk); err != nil {
			s.inflight.Delete(id)
			s.activeTasks.Delete(id)
			return err
		}

		res, ok := s.awaitActive(cpl)
		if !ok {
			continue // publish step timed out, resend PUBLISH
		}
		if res.err != nil {
			s.inflight.Delete(id)
			return res.err
		}
		break
	}

	pubrelPk := packets.Packet{
		FixedHeader: packets.NewFixedHeader(packets.Pubrel),
		PacketID:    id,
	}

	for {
		s.inflight.Set(pubrelPk) // same id, replaces the PUBLISH entry
		cpl := s.activeTasks.Set(id)
		if err := s.sendPacket(pubrelPk); err != nil {
			s.inflight.Delete(id)
			s.activeTasks.Delete(id)
			return err
		}

		res, ok := s.awaitActive(cpl)
		if !ok {
			continue // PUBREL step timed out, resend PUBREL
		}
		s.inflight.Delete(id)
		if res.err != nil {
			return res.err
		}
		if res.packet.ReasonCode > 0x7F {
			code := res.packet.ReasonCode
			return newErrorCode(ErrKindPublishFailed, code)
		}
		s.stats.MessagesSent++
		return nil
	}
}

// awaitActive waits on cpl for one publish-timeout window. If the window
// elapses while the session is disconnected, cpl may be one a retryable
// close deliberately left armed for resumeInflight's resend to resolve
// later (see Session.failClosed) - resending into a dead transport here
// would be pointless, so the wait is simply extended. ok is false only on
// a real ack-timeout while connected (caller should resend the current
// step), true otherwise.
func (s *Session) awaitActive(cpl *completer) (completerResult, bool) {
	for {
		select {
		case res := <-cpl.ch:
			return res, true
		case <-time.After(s.config.PublishTimeout):
			if s.Status() != StatusOpened {
				continue
			}
			return completerResult{}, false
		}
	}
}

// Subscribe sends one SUBSCRIBE and awaits its SUBACK.
func (s *Session) Subscribe(filters []Subscription, props packets.Properties) (SubscribeResult, error) {
	if s.Status() != StatusOpened {
		return SubscribeResult{}, newError(ErrKindUnconnected)
	}
	if len(filters) == 0 {
		return SubscribeResult{}, newError(ErrKindPacketError)
	}

	id := s.ids.next16()
	wire := make([]packets.Subscription, len(filters))
	for i, f := range filters {
		wire[i] = packets.Subscription{
			Filter: f.Filter, Qos: f.Qos, NoLocal: f.NoLocal,
			RetainAsPublished: f.RetainAsPublished, RetainHandling: f.RetainHandling,
		}
	}
	pk := packets.Packet{
		FixedHeader: packets.NewFixedHeader(packets.Subscribe),
		Filters:     wire,
		PacketID:    id,
		Properties:  props,
	}

	cpl := s.activeTasks.Set(id)
	if err := s.sendPacket(pk); err != nil {
		s.activeTasks.Delete(id)
		return SubscribeResult{}, err
	}

	select {
	case res := <-cpl.ch:
		if res.err != nil {
			return SubscribeResult{}, res.err
		}
		return SubscribeResult{ReasonCodes: res.packet.ReasonCodes, Properties: res.packet.Properties}, nil
	case <-time.After(s.config.PublishTimeout):
		s.activeTasks.Delete(id)
		return SubscribeResult{}, newError(ErrKindTimeout)
	}
}

// Subscription is the application-level shape of one requested topic
// filter - mirrors packets.Subscription without importing that package at
// the call site.
type Subscription struct {
	Filter            string
	Qos               byte
	NoLocal           bool
	RetainAsPublished bool
	RetainHandling    byte
}

// Unsubscribe sends one UNSUBSCRIBE and awaits its UNSUBACK.
func (s *Session) Unsubscribe(topics []string, props packets.Properties) (UnsubscribeResult, error) {
	if s.Status() != StatusOpened {
		return UnsubscribeResult{}, newError(ErrKindUnconnected)
	}
	if len(topics) == 0 {
		return UnsubscribeResult{}, newError(ErrKindPacketError)
	}

	id := s.ids.next16()
	pk := packets.Packet{
		FixedHeader: packets.NewFixedHeader(packets.Unsubscribe),
		Topics:      topics,
		PacketID:    id,
		Properties:  props,
	}

	cpl := s.activeTasks.Set(id)
	if err := s.sendPacket(pk); err != nil {
		s.activeTasks.Delete(id)
		return UnsubscribeResult{}, err
	}

	select {
	case res := <-cpl.ch:
		if res.err != nil {
			return UnsubscribeResult{}, res.err
		}
		return UnsubscribeResult{ReasonCodes: res.packet.ReasonCodes, Properties: res.packet.Properties}, nil
	case <-time.After(s.config.PublishTimeout):
		s.activeTasks.Delete(id)
		return UnsubscribeResult{}, newError(ErrKindTimeout)
	}
}

// handleInboundPublish dispatches an incoming PUBLISH per spec §4.8's
// inbound flows.
func (s *Session) handleInboundPublish(pk packets.Packet) {
	msg := Message{
		Topic: pk.TopicName, Payload: pk.Payload, Qos: pk.FixedHeader.Qos,
		Retain: pk.FixedHeader.Retain, Duplicate: pk.FixedHeader.Dup, Properties: pk.Properties,
	}

	switch pk.FixedHeader.Qos {
	case packets.AtMostOnce:
		s.deliver(msg)

	case packets.AtLeastOnce:
		ack := packets.Packet{FixedHeader: packets.NewFixedHeader(packets.Puback), PacketID: pk.PacketID}
		_ = s.sendPacket(ack) // best-effort, per spec
		s.deliver(msg)

	case packets.ExactlyOnce:
		s.handleInboundQos2Publish(pk, msg)
	}
}

// handleInboundQos2Publish arms (or re-arms) a passive-table wait for the
// matching PUBREL, per spec §4.8 and §4.6's "PUBREL resolves in the
// passive table" routing rule.
func (s *Session) handleInboundQos2Publish(pk packets.Packet, msg Message) {
	id := pk.PacketID
	cpl := s.passiveTasks.Set(id) // replaces a pre-existing wait without resolving it

	pubrec := packets.Packet{FixedHeader: packets.NewFixedHeader(packets.Pubrec), PacketID: id}
	if err := s.sendPacket(pubrec); err != nil {
		s.passiveTasks.Delete(id)
		return
	}

	go s.awaitPubrel(id, cpl, msg)
}

func (s *Session) awaitPubrel(id uint16, cpl *completer, msg Message) {
	select {
	case res := <-cpl.ch:
		if res.err != nil {
			return
		}
		pubcomp := packets.Packet{FixedHeader: packets.NewFixedHeader(packets.Pubcomp), PacketID: id}
		_ = s.sendPacket(pubcomp)
		s.deliver(msg)

	case <-time.After(s.config.PublishTimeout):
		// resend PUBREC; a fresh PUBLISH retransmit would have already
		// replaced this wait via handleInboundQos2Publish, so only resend
		// if we are still the current holder of this slot.
		if current, ok := s.passiveTasks.Peek(id); ok && current == cpl {
			pubrec := packets.Packet{FixedHeader: packets.NewFixedHeader(packets.Pubrec), PacketID: id}
			if s.sendPacket(pubrec) == nil {
				go s.awaitPubrel(id, cpl, msg)
			}
		}
	}
}

// handleInboundPubrel resolves the passive-table wait for id, per spec
// §4.6. On v5, an orphan (no matching wait - the broker resent PUBREL
// after we already completed the flow) is answered with PUBCOMP reason
// packetIdentifierNotFound; on v3 it is silently dropped.
func (s *Session) handleInboundPubrel(pk packets.Packet) {
	if s.passiveTasks.Resolve(pk.PacketID, pk) {
		return
	}

	if s.version == packets.Version5 {
		pubcomp := packets.Packet{
			FixedHeader: packets.NewFixedHeader(packets.Pubcomp),
			PacketID:    pk.PacketID,
			ReasonCode:  packets.ErrPacketIdentifierNotFound.Code,
		}
		_ = s.sendPacket(pubcomp)
	}
}

// handleInboundPubrec resolves the active-table wait for id (the
// outbound QoS 2 flow's PUBREC step), per spec §4.6. An orphan (no
// matching active entry) is answered, on v5 only, with PUBREL reason
// packetIdentifierNotFound; v3 drops it silently.
func (s *Session) handleInboundPubrec(pk packets.Packet) {
	if s.activeTasks.Resolve(pk.PacketID, pk) {
		return
	}

	if s.version == packets.Version5 {
		pubrel := packets.Packet{
			FixedHeader: packets.NewFixedHeader(packets.Pubrel),
			PacketID:    pk.PacketID,
			ReasonCode:  packets.ErrPacketIdentifierNotFound.Code,
		}
		_ = s.sendPacket(pubrel)
	}
}

func (s *Session) deliver(msg Message) {
	s.stats.MessagesReceived++
	s.observers.notifyMessage(msg)
}
