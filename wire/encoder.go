package wire

import (
	"bytes"
	"encoding/binary"
	"math"
)

// Encoder appends OPC UA binary encoded values to a buffer.
type Encoder struct {
	buf bytes.Buffer
}

// NewEncoder creates a new encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Bytes returns the encoded bytes.
func (e *Encoder) Bytes() []byte {
	return e.buf.Bytes()
}

// Len returns the number of bytes written so far.
func (e *Encoder) Len() int {
	return e.buf.Len()
}

// Reset discards everything written.
func (e *Encoder) Reset() {
	e.buf.Reset()
}

// Write appends raw bytes.
func (e *Encoder) Write(p []byte) {
	e.buf.Write(p)
}

// WriteBoolean writes a boolean as a single byte.
func (e *Encoder) WriteBoolean(v bool) {
	if v {
		e.buf.WriteByte(1)
	} else {
		e.buf.WriteByte(0)
	}
}

// WriteUInt8 writes a byte value.
func (e *Encoder) WriteUInt8(v byte) {
	e.buf.WriteByte(v)
}

// WriteUInt16 writes a uint16 value.
func (e *Encoder) WriteUInt16(v uint16) {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	e.buf.Write(buf[:])
}

// WriteUInt32 writes a uint32 value.
func (e *Encoder) WriteUInt32(v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	e.buf.Write(buf[:])
}

// WriteInt32 writes an int32 value.
func (e *Encoder) WriteInt32(v int32) {
	e.WriteUInt32(uint32(v))
}

// WriteUInt64 writes a uint64 value.
func (e *Encoder) WriteUInt64(v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	e.buf.Write(buf[:])
}

// WriteInt64 writes an int64 value.
func (e *Encoder) WriteInt64(v int64) {
	e.WriteUInt64(uint64(v))
}

// WriteFloat writes a float32 value.
func (e *Encoder) WriteFloat(v float32) {
	e.WriteUInt32(math.Float32bits(v))
}

// WriteDouble writes a float64 value.
func (e *Encoder) WriteDouble(v float64) {
	e.WriteUInt64(math.Float64bits(v))
}

// WriteString writes a length-prefixed string. The empty string is
// written with length 0; use WriteNull for a null string.
func (e *Encoder) WriteString(v string) {
	e.WriteInt32(int32(len(v)))
	e.buf.WriteString(v)
}

// WriteNullableString writes null (-1) when null is set, otherwise v.
func (e *Encoder) WriteNullableString(v string, null bool) {
	if null {
		e.WriteNull()
		return
	}
	e.WriteString(v)
}

// WriteNull writes the null length prefix (-1) shared by strings, byte
// strings and arrays.
func (e *Encoder) WriteNull() {
	e.WriteInt32(-1)
}

// WriteByteString writes a length-prefixed byte string. Nil is encoded
// as null (-1).
func (e *Encoder) WriteByteString(v []byte) {
	if v == nil {
		e.WriteNull()
		return
	}
	e.WriteInt32(int32(len(v)))
	e.buf.Write(v)
}

// WriteGUID writes 16 raw GUID bytes.
func (e *Encoder) WriteGUID(v [16]byte) {
	e.buf.Write(v[:])
}
