// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co

package packets

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func roundtrip(t *testing.T, version byte, pk *Packet) *Packet {
	t.Helper()

	raw, err := pk.Encode(version)
	require.NoError(t, err)

	out := &Packet{FixedHeader: pk.FixedHeader}
	require.NoError(t, out.FixedHeader.Decode(raw[0]))

	body := NewDataBuffer(raw)
	_, err = body.ReadByte() // consume header byte
	require.NoError(t, err)
	n, _, err := DecodeVarint(body)
	require.NoError(t, err)
	require.Equal(t, pk.FixedHeader.Remaining, n)

	rest, err := body.ReadBytes(n)
	require.NoError(t, err)

	require.NoError(t, out.Decode(version, rest))
	return out
}

func TestConnectRoundtripV311(t *testing.T) {
	pk := &Packet{
		FixedHeader:      NewFixedHeader(Connect),
		ProtocolVersion:  Version311,
		CleanStart:       true,
		Keepalive:        60,
		ClientIdentifier: "device-1",
		UsernameFlag:     true,
		Username:         "alice",
		PasswordFlag:     true,
		Password:         []byte("hunter2"),
	}
	out := roundtrip(t, Version311, pk)
	require.Equal(t, pk.ClientIdentifier, out.ClientIdentifier)
	require.Equal(t, pk.Username, out.Username)
	require.Equal(t, pk.Password, out.Password)
	require.True(t, out.CleanStart)
}

func TestConnectRoundtripV5WithWillAndProperties(t *testing.T) {
	pk := &Packet{
		FixedHeader:      NewFixedHeader(Connect),
		ProtocolVersion:  Version5,
		CleanStart:       true,
		Keepalive:        30,
		ClientIdentifier: "device-2",
		WillFlag:         true,
		WillQos:          1,
		WillTopic:        "clients/device-2/lwt",
		WillMessage:      []byte("offline"),
		WillProperties:   Properties{WillDelayInterval: 5},
		Properties: Properties{
			SessionExpiryInterval:     3600,
			SessionExpiryIntervalFlag: true,
			ReceiveMaximum:            10,
			User:                      []UserProperty{{Key: "build", Val: "42"}},
		},
	}
	out := roundtrip(t, Version5, pk)
	require.True(t, out.WillFlag)
	require.Equal(t, pk.WillTopic, out.WillTopic)
	require.Equal(t, pk.WillMessage, out.WillMessage)
	require.EqualValues(t, 5, out.WillProperties.WillDelayInterval)
	require.EqualValues(t, 3600, out.Properties.SessionExpiryInterval)
	require.Len(t, out.Properties.User, 1)
	require.Equal(t, "build", out.Properties.User[0].Key)
}

func TestPublishRoundtripQos1(t *testing.T) {
	fh := NewFixedHeader(Publish)
	fh.Qos = 1
	pk := &Packet{
		FixedHeader: fh,
		TopicName:   "sensors/temp",
		PacketID:    7,
		Payload:     []byte{0x01, 0x02, 0x03},
	}
	out := roundtrip(t, Version311, pk)
	require.Equal(t, pk.TopicName, out.TopicName)
	require.EqualValues(t, 7, out.PacketID)
	require.Equal(t, pk.Payload, out.Payload)
}

func TestPublishRoundtripQos0V5Properties(t *testing.T) {
	pk := &Packet{
		FixedHeader: NewFixedHeader(Publish),
		TopicName:   "sensors/temp",
		Payload:     []byte("23.5"),
		Properties: Properties{
			ContentType:               "text/plain",
			PayloadFormat:             1,
			PayloadFormatFlag:         true,
			MessageExpiryInterval:     60,
		},
	}
	out := roundtrip(t, Version5, pk)
	require.Equal(t, "text/plain", out.Properties.ContentType)
	require.True(t, out.Properties.PayloadFormatFlag)
	require.EqualValues(t, 60, out.Properties.MessageExpiryInterval)
	require.Equal(t, []byte("23.5"), out.Payload)
}

func TestAckShortenedFormV5(t *testing.T) {
	pk := &Packet{
		FixedHeader: NewFixedHeader(Puback),
		PacketID:    99,
		ReasonCode:  CodeSuccess.Code,
	}
	raw, err := pk.Encode(Version5)
	require.NoError(t, err)
	require.Equal(t, 2, pk.FixedHeader.Remaining) // shortened: packet id only

	out := &Packet{FixedHeader: NewFixedHeader(Puback)}
	require.NoError(t, out.FixedHeader.Decode(raw[0]))
	body := NewDataBuffer(raw)
	_, _ = body.ReadByte()
	n, _, err := DecodeVarint(body)
	require.NoError(t, err)
	rest, err := body.ReadBytes(n)
	require.NoError(t, err)
	require.NoError(t, out.Decode(Version5, rest))
	require.EqualValues(t, 99, out.PacketID)
	require.Equal(t, CodeSuccess.Code, out.ReasonCode)
}

func TestSubscribeRoundtripV5(t *testing.T) {
	pk := &Packet{
		FixedHeader: NewFixedHeader(Subscribe),
		PacketID:    5,
		Filters: []Subscription{
			{Filter: "a/b", Qos: 1, NoLocal: true},
			{Filter: "c/#", Qos: 2, RetainAsPublished: true, RetainHandling: 1},
		},
	}
	out := roundtrip(t, Version5, pk)
	require.Len(t, out.Filters, 2)
	require.Equal(t, "a/b", out.Filters[0].Filter)
	require.True(t, out.Filters[0].NoLocal)
	require.EqualValues(t, 2, out.Filters[1].Qos)
	require.True(t, out.Filters[1].RetainAsPublished)
}

func TestSubscribeRequiresAtLeastOneFilter(t *testing.T) {
	pk := &Packet{FixedHeader: NewFixedHeader(Subscribe), PacketID: 1}
	_, err := pk.Encode(Version311)
	require.ErrorIs(t, err, ErrProtocolViolationNoFilters)
}

func TestSubackRoundtrip(t *testing.T) {
	pk := &Packet{
		FixedHeader: NewFixedHeader(Suback),
		PacketID:    5,
		ReasonCodes: []byte{CodeGrantedQos1.Code, CodeGrantedQos2.Code},
	}
	out := roundtrip(t, Version311, pk)
	require.Equal(t, pk.ReasonCodes, out.ReasonCodes)
}

func TestFixedHeaderRejectsBadReservedFlags(t *testing.T) {
	var fh FixedHeader
	// SUBSCRIBE reserved nibble must be 0b0010; use 0b0000 instead.
	err := fh.Decode(Subscribe << 4)
	require.ErrorIs(t, err, ErrInvalidFlags)
}

func TestVarintRoundtripBoundaries(t *testing.T) {
	for _, n := range []int{0, 127, 128, 16383, 16384, 2097151, 2097152, maxVarint} {
		var b DataBuffer
		EncodeVarint(&b, n)
		require.Equal(t, VarintSize(n), b.Len())

		got, consumed, err := DecodeVarint(NewDataBuffer(b.Bytes()))
		require.NoError(t, err)
		require.Equal(t, n, got)
		require.Equal(t, b.Len(), consumed)
	}
}

func TestVarintOverflow(t *testing.T) {
	overflow := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0x01}
	_, _, err := DecodeVarint(NewDataBuffer(overflow))
	require.ErrorIs(t, err, ErrVarintOverflow)
}

func TestReadStringRejectsEmbeddedNul(t *testing.T) {
	var b DataBuffer
	b.AppendLengthPrefixed([]byte{'a', 0x00, 'b'})
	_, err := NewDataBuffer(b.Bytes()).ReadString()
	require.ErrorIs(t, err, ErrMalformedInvalidUTF8)
}

func TestPropertiesCopyDropsTopicAliasUnlessAllowed(t *testing.T) {
	p := Properties{TopicAlias: 4, TopicAliasFlag: true, ContentType: "text/plain"}

	stripped := p.Copy(false)
	require.False(t, stripped.TopicAliasFlag)
	require.EqualValues(t, 0, stripped.TopicAlias)
	require.Equal(t, "text/plain", stripped.ContentType)

	kept := p.Copy(true)
	require.True(t, kept.TopicAliasFlag)
	require.EqualValues(t, 4, kept.TopicAlias)
}
