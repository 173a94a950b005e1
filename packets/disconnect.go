// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co

package packets

// encodeDisconnect writes the v5 shortened form (no body at all) when the
// reason is normal disconnection with no properties. v3.1.1 DISCONNECT is
// always the shortened form - it has no variable header or payload.
func (pk *Packet) encodeDisconnect(b *DataBuffer, version byte) {
	if version != Version5 {
		return
	}
	if pk.ReasonCode == CodeDisconnect.Code && isZeroProperties(pk.Properties) &&
		!pk.Properties.SessionExpiryIntervalFlag && pk.Properties.ServerReference == "" {
		return
	}
	b.AppendByte(pk.ReasonCode)
	pk.Properties.Encode(Disconnect, b)
}

func (pk *Packet) decodeDisconnect(b *DataBuffer, version byte) error {
	if version != Version5 || b.Readable() == 0 {
		return nil
	}

	var err error
	if pk.ReasonCode, err = b.ReadByte(); err != nil {
		return err
	}
	if b.Readable() > 0 {
		if _, err = pk.Properties.Decode(Disconnect, b); err != nil {
			return err
		}
	}
	return nil
}
