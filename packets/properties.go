// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co

package packets

// v5 property identifiers. Refer to MQTT v5 2.2.2.2 for the full table.
const (
	PropPayloadFormat          byte = 1
	PropMessageExpiryInterval  byte = 2
	PropContentType            byte = 3
	PropResponseTopic          byte = 8
	PropCorrelationData        byte = 9
	PropSubscriptionIdentifier byte = 11
	PropSessionExpiryInterval  byte = 17
	PropAssignedClientID       byte = 18
	PropServerKeepAlive        byte = 19
	PropAuthenticationMethod   byte = 21
	PropAuthenticationData     byte = 22
	PropRequestProblemInfo     byte = 23
	PropWillDelayInterval      byte = 24
	PropRequestResponseInfo    byte = 25
	PropResponseInfo           byte = 26
	PropServerReference        byte = 28
	PropReasonString           byte = 31
	PropReceiveMaximum         byte = 33
	PropTopicAliasMaximum      byte = 34
	PropTopicAlias             byte = 35
	PropMaximumQos             byte = 36
	PropRetainAvailable        byte = 37
	PropUser                   byte = 38
	PropMaximumPacketSize      byte = 39
	PropWildcardSubAvailable   byte = 40
	PropSubIDAvailable         byte = 41
	PropSharedSubAvailable     byte = 42
)

// validPacketProperties indicates which properties are legal on which
// packet kinds (WillProperties is the pseudo-kind for CONNECT's embedded
// will property set).
var validPacketProperties = map[byte]map[byte]byte{
	PropPayloadFormat:          {Publish: 1, WillProperties: 1},
	PropMessageExpiryInterval:  {Publish: 1, WillProperties: 1},
	PropContentType:            {Publish: 1, WillProperties: 1},
	PropResponseTopic:          {Publish: 1, WillProperties: 1},
	PropCorrelationData:        {Publish: 1, WillProperties: 1},
	PropSubscriptionIdentifier: {Publish: 1, Subscribe: 1},
	PropSessionExpiryInterval:  {Connect: 1, Connack: 1, Disconnect: 1},
	PropAssignedClientID:       {Connack: 1},
	PropServerKeepAlive:        {Connack: 1},
	PropAuthenticationMethod:   {Connect: 1, Connack: 1, Auth: 1},
	PropAuthenticationData:     {Connect: 1, Connack: 1, Auth: 1},
	PropRequestProblemInfo:     {Connect: 1},
	PropWillDelayInterval:      {WillProperties: 1},
	PropRequestResponseInfo:    {Connect: 1},
	PropResponseInfo:           {Connack: 1},
	PropServerReference:        {Connack: 1, Disconnect: 1},
	PropReasonString:           {Connack: 1, Puback: 1, Pubrec: 1, Pubrel: 1, Pubcomp: 1, Suback: 1, Unsuback: 1, Disconnect: 1, Auth: 1},
	PropReceiveMaximum:         {Connect: 1, Connack: 1},
	PropTopicAliasMaximum:      {Connect: 1, Connack: 1},
	PropTopicAlias:             {Publish: 1},
	PropMaximumQos:             {Connack: 1},
	PropRetainAvailable:        {Connack: 1},
	PropUser: {
		Connect: 1, Connack: 1, Publish: 1, Puback: 1, Pubrec: 1, Pubrel: 1, Pubcomp: 1,
		Subscribe: 1, Suback: 1, Unsubscribe: 1, Unsuback: 1, Disconnect: 1, Auth: 1, WillProperties: 1,
	},
	PropMaximumPacketSize:    {Connect: 1, Connack: 1},
	PropWildcardSubAvailable: {Connack: 1},
	PropSubIDAvailable:       {Connack: 1},
	PropSharedSubAvailable:   {Connack: 1},
}

// UserProperty is a single arbitrary key/value pair. [MQTT-1.5.7-1]
type UserProperty struct {
	Key string
	Val string
}

// Properties holds every v5 property a packet might carry. Presence of a
// zero-valued property is tracked with a companion *Flag bool, since 0 and
// not-present are semantically distinct for several of these fields.
type Properties struct {
	CorrelationData           []byte
	SubscriptionIdentifier    []int
	AuthenticationData        []byte
	User                      []UserProperty
	ContentType               string
	ResponseTopic             string
	AssignedClientID          string
	AuthenticationMethod      string
	ResponseInfo              string
	ServerReference           string
	ReasonString              string
	MessageExpiryInterval     uint32
	SessionExpiryInterval     uint32
	WillDelayInterval         uint32
	MaximumPacketSize         uint32
	ServerKeepAlive           uint16
	ReceiveMaximum            uint16
	TopicAliasMaximum         uint16
	TopicAlias                uint16
	PayloadFormat             byte
	PayloadFormatFlag         bool
	SessionExpiryIntervalFlag bool
	ServerKeepAliveFlag       bool
	RequestProblemInfo        byte
	RequestProblemInfoFlag    bool
	RequestResponseInfo       byte
	TopicAliasFlag            bool
	MaximumQos                byte
	MaximumQosFlag            bool
	RetainAvailable           byte
	RetainAvailableFlag       bool
	WildcardSubAvailable      byte
	WildcardSubAvailableFlag  bool
	SubIDAvailable            byte
	SubIDAvailableFlag        bool
	SharedSubAvailable        byte
	SharedSubAvailableFlag    bool
}

// Copy returns a deep copy. allowTransfer controls whether TopicAlias is
// carried over - a broker-assigned alias is scoped to one connection and
// must not survive a rebuilt CONNECT on reconnect. [MQTT-3.3.2-7]
func (p Properties) Copy(allowTransfer bool) Properties {
	pr := p
	pr.TopicAlias, pr.TopicAliasFlag = 0, false
	if allowTransfer {
		pr.TopicAlias, pr.TopicAliasFlag = p.TopicAlias, p.TopicAliasFlag
	}

	if len(p.CorrelationData) > 0 {
		pr.CorrelationData = append([]byte{}, p.CorrelationData...)
	}
	if len(p.SubscriptionIdentifier) > 0 {
		pr.SubscriptionIdentifier = append([]int{}, p.SubscriptionIdentifier...)
	}
	if len(p.AuthenticationData) > 0 {
		pr.AuthenticationData = append([]byte{}, p.AuthenticationData...)
	}
	if len(p.User) > 0 {
		pr.User = append([]UserProperty{}, p.User...)
	}

	return pr
}

func canEncode(pkt, propID byte) bool {
	return validPacketProperties[propID][pkt] == 1
}

// Encode serializes the property set as a varint length prefix followed by
// the TLV pairs, appending the result to b. Properties are written in the
// fixed order of the checks below, not in the order the caller set them;
// unset/zero-valued optional fields are simply omitted.
func (p *Properties) Encode(pkt byte, b *DataBuffer) {
	var body DataBuffer

	if canEncode(pkt, PropPayloadFormat) && p.PayloadFormatFlag {
		body.AppendByte(PropPayloadFormat)
		body.AppendByte(p.PayloadFormat)
	}
	if canEncode(pkt, PropMessageExpiryInterval) && p.MessageExpiryInterval > 0 {
		body.AppendByte(PropMessageExpiryInterval)
		body.AppendUint32(p.MessageExpiryInterval)
	}
	if canEncode(pkt, PropContentType) && p.ContentType != "" {
		body.AppendByte(PropContentType)
		body.AppendString(p.ContentType) // [MQTT-3.3.2-19]
	}
	if canEncode(pkt, PropResponseTopic) && p.ResponseTopic != "" {
		body.AppendByte(PropResponseTopic)
		body.AppendString(p.ResponseTopic) // [MQTT-3.3.2-13]
	}
	if canEncode(pkt, PropCorrelationData) && len(p.CorrelationData) > 0 {
		body.AppendByte(PropCorrelationData)
		body.AppendLengthPrefixed(p.CorrelationData)
	}
	if canEncode(pkt, PropSubscriptionIdentifier) {
		for _, v := range p.SubscriptionIdentifier {
			if v > 0 {
				body.AppendByte(PropSubscriptionIdentifier)
				EncodeVarint(&body, v)
			}
		}
	}
	if canEncode(pkt, PropSessionExpiryInterval) && p.SessionExpiryIntervalFlag { // [MQTT-3.14.2-2]
		body.AppendByte(PropSessionExpiryInterval)
		body.AppendUint32(p.SessionExpiryInterval)
	}
	if canEncode(pkt, PropAssignedClientID) && p.AssignedClientID != "" {
		body.AppendByte(PropAssignedClientID)
		body.AppendString(p.AssignedClientID)
	}
	if canEncode(pkt, PropServerKeepAlive) && p.ServerKeepAliveFlag {
		body.AppendByte(PropServerKeepAlive)
		body.AppendUint16(p.ServerKeepAlive)
	}
	if canEncode(pkt, PropAuthenticationMethod) && p.AuthenticationMethod != "" {
		body.AppendByte(PropAuthenticationMethod)
		body.AppendString(p.AuthenticationMethod)
	}
	if canEncode(pkt, PropAuthenticationData) && len(p.AuthenticationData) > 0 {
		body.AppendByte(PropAuthenticationData)
		body.AppendLengthPrefixed(p.AuthenticationData)
	}
	if canEncode(pkt, PropRequestProblemInfo) && p.RequestProblemInfoFlag {
		body.AppendByte(PropRequestProblemInfo)
		body.AppendByte(p.RequestProblemInfo)
	}
	if canEncode(pkt, PropWillDelayInterval) && p.WillDelayInterval > 0 {
		body.AppendByte(PropWillDelayInterval)
		body.AppendUint32(p.WillDelayInterval)
	}
	if canEncode(pkt, PropRequestResponseInfo) && p.RequestResponseInfo > 0 {
		body.AppendByte(PropRequestResponseInfo)
		body.AppendByte(p.RequestResponseInfo)
	}
	if canEncode(pkt, PropResponseInfo) && p.ResponseInfo != "" {
		body.AppendByte(PropResponseInfo)
		body.AppendString(p.ResponseInfo)
	}
	if canEncode(pkt, PropServerReference) && p.ServerReference != "" {
		body.AppendByte(PropServerReference)
		body.AppendString(p.ServerReference)
	}
	if canEncode(pkt, PropReasonString) && p.ReasonString != "" {
		body.AppendByte(PropReasonString)
		body.AppendString(p.ReasonString)
	}
	if canEncode(pkt, PropReceiveMaximum) && p.ReceiveMaximum > 0 {
		body.AppendByte(PropReceiveMaximum)
		body.AppendUint16(p.ReceiveMaximum)
	}
	if canEncode(pkt, PropTopicAliasMaximum) && p.TopicAliasMaximum > 0 {
		body.AppendByte(PropTopicAliasMaximum)
		body.AppendUint16(p.TopicAliasMaximum)
	}
	if canEncode(pkt, PropTopicAlias) && p.TopicAliasFlag && p.TopicAlias > 0 { // [MQTT-3.3.2-8]
		body.AppendByte(PropTopicAlias)
		body.AppendUint16(p.TopicAlias)
	}
	if canEncode(pkt, PropMaximumQos) && p.MaximumQosFlag && p.MaximumQos < 2 {
		body.AppendByte(PropMaximumQos)
		body.AppendByte(p.MaximumQos)
	}
	if canEncode(pkt, PropRetainAvailable) && p.RetainAvailableFlag {
		body.AppendByte(PropRetainAvailable)
		body.AppendByte(p.RetainAvailable)
	}
	if canEncode(pkt, PropUser) {
		for _, v := range p.User {
			body.AppendByte(PropUser)
			body.AppendString(v.Key)
			body.AppendString(v.Val)
		}
	}
	if canEncode(pkt, PropMaximumPacketSize) && p.MaximumPacketSize > 0 {
		body.AppendByte(PropMaximumPacketSize)
		body.AppendUint32(p.MaximumPacketSize)
	}
	if canEncode(pkt, PropWildcardSubAvailable) && p.WildcardSubAvailableFlag {
		body.AppendByte(PropWildcardSubAvailable)
		body.AppendByte(p.WildcardSubAvailable)
	}
	if canEncode(pkt, PropSubIDAvailable) && p.SubIDAvailableFlag {
		body.AppendByte(PropSubIDAvailable)
		body.AppendByte(p.SubIDAvailable)
	}
	if canEncode(pkt, PropSharedSubAvailable) && p.SharedSubAvailableFlag {
		body.AppendByte(PropSharedSubAvailable)
		body.AppendByte(p.SharedSubAvailable)
	}

	EncodeVarint(b, body.Len())
	b.AppendBytes(body.Bytes())
}

// Decode reads a properties-length varint followed by that many bytes of
// TLV pairs from b, populating p. Returns the total number of bytes
// consumed from b, including the length prefix itself.
func (p *Properties) Decode(pkt byte, b *DataBuffer) (int, error) {
	start := b.Cursor()
	n, _, err := DecodeVarint(b)
	if err != nil {
		return b.Cursor() - start, err
	}
	if n == 0 {
		return b.Cursor() - start, nil
	}

	region, err := b.SubBuffer(n)
	if err != nil {
		return b.Cursor() - start, err
	}

	for region.Readable() > 0 {
		id, err := region.ReadByte()
		if err != nil {
			return b.Cursor() - start, err
		}

		if _, ok := validPacketProperties[id][pkt]; !ok {
			return b.Cursor() - start, ErrUnexpectedTokens
		}

		if err := decodeOneProperty(p, id, region); err != nil {
			return b.Cursor() - start, err
		}
	}

	return b.Cursor() - start, nil
}

func decodeOneProperty(p *Properties, id byte, region *DataBuffer) (err error) {
	switch id {
	case PropPayloadFormat:
		p.PayloadFormat, err = region.ReadByte()
		p.PayloadFormatFlag = true
	case PropMessageExpiryInterval:
		p.MessageExpiryInterval, err = region.ReadUint32()
	case PropContentType:
		p.ContentType, err = region.ReadString()
	case PropResponseTopic:
		p.ResponseTopic, err = region.ReadString()
	case PropCorrelationData:
		p.CorrelationData, err = region.ReadLengthPrefixed()
	case PropSubscriptionIdentifier:
		var v int
		v, _, err = DecodeVarint(region)
		if err == nil {
			p.SubscriptionIdentifier = append(p.SubscriptionIdentifier, v)
		}
	case PropSessionExpiryInterval:
		p.SessionExpiryInterval, err = region.ReadUint32()
		p.SessionExpiryIntervalFlag = true
	case PropAssignedClientID:
		p.AssignedClientID, err = region.ReadString()
	case PropServerKeepAlive:
		p.ServerKeepAlive, err = region.ReadUint16()
		p.ServerKeepAliveFlag = true
	case PropAuthenticationMethod:
		p.AuthenticationMethod, err = region.ReadString()
	case PropAuthenticationData:
		p.AuthenticationData, err = region.ReadLengthPrefixed()
	case PropRequestProblemInfo:
		p.RequestProblemInfo, err = region.ReadByte()
		p.RequestProblemInfoFlag = true
	case PropWillDelayInterval:
		p.WillDelayInterval, err = region.ReadUint32()
	case PropRequestResponseInfo:
		p.RequestResponseInfo, err = region.ReadByte()
	case PropResponseInfo:
		p.ResponseInfo, err = region.ReadString()
	case PropServerReference:
		p.ServerReference, err = region.ReadString()
	case PropReasonString:
		p.ReasonString, err = region.ReadString()
	case PropReceiveMaximum:
		p.ReceiveMaximum, err = region.ReadUint16()
	case PropTopicAliasMaximum:
		p.TopicAliasMaximum, err = region.ReadUint16()
	case PropTopicAlias:
		p.TopicAlias, err = region.ReadUint16()
		p.TopicAliasFlag = true
	case PropMaximumQos:
		p.MaximumQos, err = region.ReadByte()
		p.MaximumQosFlag = true
	case PropRetainAvailable:
		p.RetainAvailable, err = region.ReadByte()
		p.RetainAvailableFlag = true
	case PropUser:
		var k, v string
		if k, err = region.ReadString(); err != nil {
			return err
		}
		if v, err = region.ReadString(); err != nil {
			return err
		}
		p.User = append(p.User, UserProperty{Key: k, Val: v})
	case PropMaximumPacketSize:
		p.MaximumPacketSize, err = region.ReadUint32()
	case PropWildcardSubAvailable:
		p.WildcardSubAvailable, err = region.ReadByte()
		p.WildcardSubAvailableFlag = true
	case PropSubIDAvailable:
		p.SubIDAvailable, err = region.ReadByte()
		p.SubIDAvailableFlag = true
	case PropSharedSubAvailable:
		p.SharedSubAvailable, err = region.ReadByte()
		p.SharedSubAvailableFlag = true
	}
	return err
}
