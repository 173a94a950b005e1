// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co

package packets

func (pk *Packet) encodeSuback(b *DataBuffer, version byte) {
	b.AppendUint16(pk.PacketID)
	if version == Version5 {
		pk.Properties.Encode(Suback, b)
	}
	b.AppendBytes(pk.ReasonCodes)
}

func (pk *Packet) decodeSuback(b *DataBuffer, version byte) error {
	var err error
	if pk.PacketID, err = b.ReadUint16(); err != nil {
		return err
	}

	if version == Version5 {
		if _, err = pk.Properties.Decode(Suback, b); err != nil {
			return err
		}
	}

	pk.ReasonCodes = append([]byte{}, b.Bytes()[b.Cursor():]...)
	return nil
}
