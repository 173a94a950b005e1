// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co

package packets

// AUTH is v5-only; there is no v3.1.1 encoding to fall back to.
func (pk *Packet) encodeAuth(b *DataBuffer, version byte) {
	b.AppendByte(pk.ReasonCode)
	pk.Properties.Encode(Auth, b)
}

func (pk *Packet) decodeAuth(b *DataBuffer, version byte) error {
	if b.Readable() == 0 {
		pk.ReasonCode = CodeSuccess.Code
		return nil
	}

	var err error
	if pk.ReasonCode, err = b.ReadByte(); err != nil {
		return err
	}
	if b.Readable() > 0 {
		if _, err = pk.Properties.Decode(Auth, b); err != nil {
			return err
		}
	}
	return nil
}
