// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co

package packets

import (
	"encoding/binary"
	"unicode/utf8"
)

// DataBuffer is an append/consume byte log with a read cursor. Every Read*
// method fails without advancing the cursor if the buffer does not hold
// enough bytes, returning ErrIncompletePacket; the packet decoders pass
// that error up unchanged.
type DataBuffer struct {
	buf    []byte
	cursor int
}

// NewDataBuffer wraps an existing byte slice for reading.
func NewDataBuffer(b []byte) *DataBuffer {
	return &DataBuffer{buf: b}
}

// Bytes returns the buffer's full backing slice, ignoring the cursor.
func (d *DataBuffer) Bytes() []byte {
	return d.buf
}

// Len returns the total number of bytes appended to the buffer so far.
func (d *DataBuffer) Len() int {
	return len(d.buf)
}

// Readable returns the number of unread bytes remaining after the cursor.
func (d *DataBuffer) Readable() int {
	return len(d.buf) - d.cursor
}

// Cursor returns the current read offset.
func (d *DataBuffer) Cursor() int {
	return d.cursor
}

// AppendByte appends a single byte.
func (d *DataBuffer) AppendByte(b byte) {
	d.buf = append(d.buf, b)
}

// AppendUint16 appends a big-endian uint16.
func (d *DataBuffer) AppendUint16(v uint16) {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	d.buf = append(d.buf, tmp[:]...)
}

// AppendUint32 appends a big-endian uint32.
func (d *DataBuffer) AppendUint32(v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	d.buf = append(d.buf, tmp[:]...)
}

// AppendBytes appends raw bytes with no length prefix.
func (d *DataBuffer) AppendBytes(b []byte) {
	d.buf = append(d.buf, b...)
}

// AppendLengthPrefixed appends a 16-bit big-endian length followed by the
// bytes. Used for both UTF-8 strings and opaque binary data, per spec §4.2.
func (d *DataBuffer) AppendLengthPrefixed(b []byte) {
	d.AppendUint16(uint16(len(b)))
	d.buf = append(d.buf, b...)
}

// AppendString appends a length-prefixed UTF-8 string body.
func (d *DataBuffer) AppendString(s string) {
	d.AppendLengthPrefixed([]byte(s))
}

// AppendSubBuffer appends the full contents of another DataBuffer verbatim.
func (d *DataBuffer) AppendSubBuffer(sub *DataBuffer) {
	d.buf = append(d.buf, sub.buf...)
}

// ReadByte implements io.ByteReader so a DataBuffer can feed DecodeVarint
// directly, whether the varint is a remaining-length prefix or a
// properties-length prefix.
func (d *DataBuffer) ReadByte() (byte, error) {
	if d.Readable() < 1 {
		return 0, ErrIncompletePacket
	}
	b := d.buf[d.cursor]
	d.cursor++
	return b, nil
}

// unreadByte rewinds the cursor by one; used when a varint peek needs undoing.
func (d *DataBuffer) unreadByte() {
	d.cursor--
}

// ReadUint16 reads a big-endian uint16 without advancing on failure.
func (d *DataBuffer) ReadUint16() (uint16, error) {
	if d.Readable() < 2 {
		return 0, ErrIncompletePacket
	}
	v := binary.BigEndian.Uint16(d.buf[d.cursor : d.cursor+2])
	d.cursor += 2
	return v, nil
}

// ReadUint32 reads a big-endian uint32 without advancing on failure.
func (d *DataBuffer) ReadUint32() (uint32, error) {
	if d.Readable() < 4 {
		return 0, ErrIncompletePacket
	}
	v := binary.BigEndian.Uint32(d.buf[d.cursor : d.cursor+4])
	d.cursor += 4
	return v, nil
}

// ReadBytes reads exactly n raw bytes without advancing on failure.
func (d *DataBuffer) ReadBytes(n int) ([]byte, error) {
	if d.Readable() < n {
		return nil, ErrIncompletePacket
	}
	b := d.buf[d.cursor : d.cursor+n]
	d.cursor += n
	return b, nil
}

// ReadLengthPrefixed reads a 16-bit length followed by that many bytes.
// Used for both binary data and string bodies.
func (d *DataBuffer) ReadLengthPrefixed() ([]byte, error) {
	start := d.cursor
	n, err := d.ReadUint16()
	if err != nil {
		return nil, err
	}
	b, err := d.ReadBytes(int(n))
	if err != nil {
		d.cursor = start
		return nil, err
	}
	return b, nil
}

// ReadString reads a length-prefixed UTF-8 string body. [MQTT-1.5.4-1]
func (d *DataBuffer) ReadString() (string, error) {
	start := d.cursor
	b, err := d.ReadLengthPrefixed()
	if err != nil {
		return "", err
	}
	if !validUTF8(b) {
		d.cursor = start
		return "", ErrMalformedInvalidUTF8
	}
	return string(b), nil
}

// SubBuffer reads exactly n bytes and returns them wrapped as a fresh
// DataBuffer with its own read cursor, for decoding a nested TLV region
// (e.g. the v5 properties block) independently of the parent cursor.
func (d *DataBuffer) SubBuffer(n int) (*DataBuffer, error) {
	b, err := d.ReadBytes(n)
	if err != nil {
		return nil, err
	}
	return &DataBuffer{buf: b}, nil
}

func validUTF8(b []byte) bool {
	return utf8.Valid(b) && indexZero(b) == -1
}

func indexZero(b []byte) int {
	for i, c := range b {
		if c == 0x00 { // [MQTT-1.5.4-2]
			return i
		}
	}
	return -1
}
