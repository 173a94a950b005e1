// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co

package packets

func (pk *Packet) encodeConnect(b *DataBuffer, version byte) error {
	b.AppendString("MQTT")
	b.AppendByte(version)
	b.AppendByte(encodeBool(pk.UsernameFlag)<<7 |
		encodeBool(pk.PasswordFlag)<<6 |
		encodeBool(pk.WillRetain)<<5 |
		pk.WillQos<<3 |
		encodeBool(pk.WillFlag)<<2 |
		encodeBool(pk.CleanStart)<<1)
	b.AppendUint16(pk.Keepalive)

	if version == Version5 {
		pk.Properties.Encode(Connect, b)
	}

	b.AppendString(pk.ClientIdentifier) // [MQTT-3.1.3-1]

	if pk.WillFlag {
		if version == Version5 {
			pk.WillProperties.Encode(WillProperties, b)
		}
		b.AppendString(pk.WillTopic)
		b.AppendLengthPrefixed(pk.WillMessage)
	}

	if pk.UsernameFlag {
		b.AppendString(pk.Username)
	}
	if pk.PasswordFlag {
		b.AppendLengthPrefixed(pk.Password)
	}

	return nil
}

func (pk *Packet) decodeConnect(b *DataBuffer) error {
	var err error
	if pk.ProtocolName, err = b.ReadString(); err != nil {
		return err
	}
	if pk.ProtocolName != "MQTT" && pk.ProtocolName != "MQIsdp" {
		return ErrProtocolViolationProtocolName
	}

	if pk.ProtocolVersion, err = b.ReadByte(); err != nil {
		return err
	}
	if pk.ProtocolVersion != Version311 && pk.ProtocolVersion != Version5 {
		return ErrUnsupportedProtocolVersion
	}

	flags, err := b.ReadByte()
	if err != nil {
		return err
	}
	if flags&0x01 != 0 {
		return ErrProtocolViolationReservedBit // [MQTT-3.1.2-3]
	}
	pk.CleanStart = flags&0x02 > 0
	pk.WillFlag = flags&0x04 > 0
	pk.WillQos = (flags >> 3) & 0x03
	pk.WillRetain = flags&0x20 > 0
	pk.PasswordFlag = flags&0x40 > 0
	pk.UsernameFlag = flags&0x80 > 0

	if !pk.WillFlag && (pk.WillQos != 0 || pk.WillRetain) {
		return ErrProtocolViolationWillFlagSurplusRetain
	}
	if pk.WillQos > 2 {
		return ErrProtocolViolationQosOutOfRange
	}

	if pk.Keepalive, err = b.ReadUint16(); err != nil {
		return err
	}

	if pk.ProtocolVersion == Version5 {
		if _, err = pk.Properties.Decode(Connect, b); err != nil {
			return err
		}
	}

	if pk.ClientIdentifier, err = b.ReadString(); err != nil {
		return err
	}

	if pk.WillFlag {
		if pk.ProtocolVersion == Version5 {
			if _, err = pk.WillProperties.Decode(WillProperties, b); err != nil {
				return err
			}
		}
		if pk.WillTopic, err = b.ReadString(); err != nil {
			return err
		}
		if pk.WillMessage, err = b.ReadLengthPrefixed(); err != nil {
			return err
		}
	}

	if pk.UsernameFlag {
		if pk.Username, err = b.ReadString(); err != nil {
			return err
		}
	}
	if pk.PasswordFlag {
		if pk.Password, err = b.ReadLengthPrefixed(); err != nil {
			return err
		}
	}

	return nil
}
