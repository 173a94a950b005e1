// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co

package packets

// Encode serializes pk to its complete wire form: fixed header followed by
// variable header and payload. The FixedHeader.Remaining field is computed
// here, not by the caller.
func (pk *Packet) Encode(version byte) ([]byte, error) {
	var body DataBuffer

	var err error
	switch pk.FixedHeader.Type {
	case Connect:
		err = pk.encodeConnect(&body, version)
	case Connack:
		pk.encodeConnack(&body, version)
	case Publish:
		err = pk.encodePublish(&body, version)
	case Puback, Pubrec, Pubrel, Pubcomp:
		pk.encodeAck(&body, version)
	case Subscribe:
		err = pk.encodeSubscribe(&body, version)
	case Suback:
		pk.encodeSuback(&body, version)
	case Unsubscribe:
		err = pk.encodeUnsubscribe(&body, version)
	case Unsuback:
		pk.encodeUnsuback(&body, version)
	case Pingreq, Pingresp:
		// no variable header or payload
	case Disconnect:
		pk.encodeDisconnect(&body, version)
	case Auth:
		pk.encodeAuth(&body, version)
	default:
		err = ErrUnrecognisedPacketType
	}
	if err != nil {
		return nil, err
	}

	var out DataBuffer
	pk.FixedHeader.Remaining = body.Len()
	pk.FixedHeader.Encode(&out)
	out.AppendBytes(body.Bytes())
	return out.Bytes(), nil
}

// Decode parses the variable header and payload of pk from raw, which must
// hold exactly FixedHeader.Remaining bytes (the caller/transport is
// responsible for framing).
func (pk *Packet) Decode(version byte, raw []byte) error {
	b := NewDataBuffer(raw)

	switch pk.FixedHeader.Type {
	case Connect:
		return pk.decodeConnect(b)
	case Connack:
		return pk.decodeConnack(b, version)
	case Publish:
		return pk.decodePublish(b, version)
	case Puback, Pubrec, Pubrel, Pubcomp:
		return pk.decodeAck(b, version)
	case Subscribe:
		return pk.decodeSubscribe(b, version)
	case Suback:
		return pk.decodeSuback(b, version)
	case Unsubscribe:
		return pk.decodeUnsubscribe(b, version)
	case Unsuback:
		return pk.decodeUnsuback(b, version)
	case Pingreq, Pingresp:
		return nil
	case Disconnect:
		return pk.decodeDisconnect(b, version)
	case Auth:
		return pk.decodeAuth(b, version)
	default:
		return ErrUnrecognisedPacketType
	}
}
