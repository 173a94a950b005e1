// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co

package packets

func (pk *Packet) encodePublish(b *DataBuffer, version byte) error {
	if pk.FixedHeader.Qos > 0 && pk.PacketID == 0 {
		return ErrProtocolViolationNoPacketID
	}

	b.AppendString(pk.TopicName)
	if pk.FixedHeader.Qos > 0 {
		b.AppendUint16(pk.PacketID)
	}
	if version == Version5 {
		pk.Properties.Encode(Publish, b)
	}
	b.AppendBytes(pk.Payload)
	return nil
}

func (pk *Packet) decodePublish(b *DataBuffer, version byte) error {
	var err error
	if pk.TopicName, err = b.ReadString(); err != nil {
		return err
	}
	if version == Version5 && pk.TopicName == "" && pk.FixedHeader.Qos == 0 {
		// v5 allows an empty topic only when a Topic Alias property supplies
		// it; that is validated by the session layer, not here.
	}

	if pk.FixedHeader.Qos > 0 {
		if pk.PacketID, err = b.ReadUint16(); err != nil {
			return err
		}
		if pk.PacketID == 0 {
			return ErrProtocolViolationSurplusPacketID
		}
	}

	if version == Version5 {
		if _, err = pk.Properties.Decode(Publish, b); err != nil {
			return err
		}
	}

	pk.Payload = b.Bytes()[b.Cursor():]
	return nil
}
