// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co

package packets

func (pk *Packet) encodeSubscribe(b *DataBuffer, version byte) error {
	if pk.PacketID == 0 {
		return ErrProtocolViolationNoPacketID
	}
	if len(pk.Filters) == 0 {
		return ErrProtocolViolationNoFilters // [MQTT-3.8.3-3]
	}

	b.AppendUint16(pk.PacketID)
	if version == Version5 {
		pk.Properties.Encode(Subscribe, b)
	}

	for _, f := range pk.Filters {
		b.AppendString(f.Filter)
		opts := f.Qos
		if version == Version5 {
			opts |= encodeBool(f.NoLocal)<<2 | encodeBool(f.RetainAsPublished)<<3 | f.RetainHandling<<4
		}
		b.AppendByte(opts)
	}
	return nil
}

func (pk *Packet) decodeSubscribe(b *DataBuffer, version byte) error {
	var err error
	if pk.PacketID, err = b.ReadUint16(); err != nil {
		return err
	}
	if pk.PacketID == 0 {
		return ErrProtocolViolationSurplusPacketID
	}

	if version == Version5 {
		if _, err = pk.Properties.Decode(Subscribe, b); err != nil {
			return err
		}
	}

	for b.Readable() > 0 {
		filter, err := b.ReadString()
		if err != nil {
			return err
		}
		opts, err := b.ReadByte()
		if err != nil {
			return err
		}
		sub := Subscription{Filter: filter, Qos: opts & 0x03}
		if opts&0xC0 != 0 {
			return ErrProtocolViolationReservedBit
		}
		if version == Version5 {
			sub.NoLocal = opts&0x04 > 0
			sub.RetainAsPublished = opts&0x08 > 0
			sub.RetainHandling = (opts >> 4) & 0x03
		}
		pk.Filters = append(pk.Filters, sub)
	}

	if len(pk.Filters) == 0 {
		return ErrProtocolViolationNoFilters
	}
	return nil
}
