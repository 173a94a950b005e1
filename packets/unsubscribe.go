// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co

package packets

func (pk *Packet) encodeUnsubscribe(b *DataBuffer, version byte) error {
	if pk.PacketID == 0 {
		return ErrProtocolViolationNoPacketID
	}
	if len(pk.Topics) == 0 {
		return ErrProtocolViolationNoFilters
	}

	b.AppendUint16(pk.PacketID)
	if version == Version5 {
		pk.Properties.Encode(Unsubscribe, b)
	}
	for _, t := range pk.Topics {
		b.AppendString(t)
	}
	return nil
}

func (pk *Packet) decodeUnsubscribe(b *DataBuffer, version byte) error {
	var err error
	if pk.PacketID, err = b.ReadUint16(); err != nil {
		return err
	}

	if version == Version5 {
		if _, err = pk.Properties.Decode(Unsubscribe, b); err != nil {
			return err
		}
	}

	for b.Readable() > 0 {
		t, err := b.ReadString()
		if err != nil {
			return err
		}
		pk.Topics = append(pk.Topics, t)
	}

	if len(pk.Topics) == 0 {
		return ErrProtocolViolationNoFilters
	}
	return nil
}
