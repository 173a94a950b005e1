// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co

package packets

// encodeAck covers PUBACK, PUBREC, PUBREL and PUBCOMP. A v5 ack with
// CodeSuccess and no properties is written in its shortened 2-byte form
// (packet id only, no reason code or properties). [MQTT-3.4.2-1]
func (pk *Packet) encodeAck(b *DataBuffer, version byte) {
	b.AppendUint16(pk.PacketID)

	if version != Version5 {
		return
	}
	if pk.ReasonCode == CodeSuccess.Code && isZeroProperties(pk.Properties) {
		return
	}

	b.AppendByte(pk.ReasonCode)
	pk.Properties.Encode(pk.FixedHeader.Type, b)
}

func (pk *Packet) decodeAck(b *DataBuffer, version byte) error {
	var err error
	if pk.PacketID, err = b.ReadUint16(); err != nil {
		return err
	}
	if pk.PacketID == 0 {
		return ErrProtocolViolationSurplusPacketID
	}

	if version != Version5 || b.Readable() == 0 {
		return nil // shortened form: implicit success, no properties
	}

	if pk.ReasonCode, err = b.ReadByte(); err != nil {
		return err
	}
	if b.Readable() > 0 {
		if _, err = pk.Properties.Decode(pk.FixedHeader.Type, b); err != nil {
			return err
		}
	}
	return nil
}

func isZeroProperties(p Properties) bool {
	return p.ReasonString == "" && len(p.User) == 0
}
