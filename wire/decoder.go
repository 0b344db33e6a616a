package wire

import (
	"encoding/binary"
	"math"
)

// MaxArrayLength bounds length prefixes read from untrusted input.
const MaxArrayLength = 16 * 1024 * 1024

// Decoder reads OPC UA binary encoded values from a byte slice.
// All methods return *DecodeError on failure and leave the cursor
// unchanged.
type Decoder struct {
	data []byte
	pos  int
}

// NewDecoder creates a decoder positioned at the start of data.
func NewDecoder(data []byte) *Decoder {
	return &Decoder{data: data}
}

// Pos returns the current cursor offset.
func (d *Decoder) Pos() int {
	return d.pos
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int {
	return len(d.data) - d.pos
}

// Rest returns the unread bytes without advancing the cursor.
func (d *Decoder) Rest() []byte {
	return d.data[d.pos:]
}

func (d *Decoder) take(n int, field string) ([]byte, error) {
	if n < 0 || d.Remaining() < n {
		return nil, Truncated("%s: need %d bytes at offset %d, have %d", field, n, d.pos, d.Remaining())
	}
	b := d.data[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

// ReadBytes reads n raw bytes. The returned slice aliases the input.
func (d *Decoder) ReadBytes(n int) ([]byte, error) {
	return d.take(n, "bytes")
}

// ReadUInt8 reads a single byte.
func (d *Decoder) ReadUInt8() (byte, error) {
	b, err := d.take(1, "byte")
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadBoolean reads a boolean byte; any non-zero value is true.
func (d *Decoder) ReadBoolean() (bool, error) {
	b, err := d.take(1, "boolean")
	if err != nil {
		return false, err
	}
	return b[0] != 0, nil
}

// ReadUInt16 reads a uint16 value.
func (d *Decoder) ReadUInt16() (uint16, error) {
	b, err := d.take(2, "uint16")
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// ReadUInt32 reads a uint32 value.
func (d *Decoder) ReadUInt32() (uint32, error) {
	b, err := d.take(4, "uint32")
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadInt32 reads an int32 value.
func (d *Decoder) ReadInt32() (int32, error) {
	v, err := d.ReadUInt32()
	return int32(v), err
}

// ReadUInt64 reads a uint64 value.
func (d *Decoder) ReadUInt64() (uint64, error) {
	b, err := d.take(8, "uint64")
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadInt64 reads an int64 value.
func (d *Decoder) ReadInt64() (int64, error) {
	v, err := d.ReadUInt64()
	return int64(v), err
}

// ReadFloat reads a float32 value.
func (d *Decoder) ReadFloat() (float32, error) {
	v, err := d.ReadUInt32()
	return math.Float32frombits(v), err
}

// ReadDouble reads a float64 value.
func (d *Decoder) ReadDouble() (float64, error) {
	v, err := d.ReadUInt64()
	return math.Float64frombits(v), err
}

// ReadString reads a length-prefixed string. Null decodes as "".
func (d *Decoder) ReadString() (string, error) {
	s, _, err := d.ReadNullableString()
	return s, err
}

// ReadNullableString reads a length-prefixed string and reports whether
// it was null rather than empty.
func (d *Decoder) ReadNullableString() (string, bool, error) {
	b, err := d.readLengthPrefixed("string")
	if err != nil {
		return "", false, err
	}
	return string(b), b == nil, nil
}

// ReadByteString reads a length-prefixed byte string. Null decodes as nil.
// The returned slice is a copy.
func (d *Decoder) ReadByteString() ([]byte, error) {
	b, err := d.readLengthPrefixed("bytestring")
	if err != nil || b == nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// ReadGUID reads 16 raw GUID bytes.
func (d *Decoder) ReadGUID() ([16]byte, error) {
	var g [16]byte
	b, err := d.take(16, "guid")
	if err != nil {
		return g, err
	}
	copy(g[:], b)
	return g, nil
}

// ReadArrayLength reads an int32 element count, rejecting negative values
// other than null (-1, returned as 0) and counts above MaxArrayLength.
func (d *Decoder) ReadArrayLength() (int, error) {
	n, _, err := d.ReadNullableArrayLength()
	return n, err
}

// ReadNullableArrayLength is ReadArrayLength that also reports a null
// array.
func (d *Decoder) ReadNullableArrayLength() (int, bool, error) {
	start := d.pos
	n, err := d.ReadInt32()
	if err != nil {
		return 0, false, err
	}
	if n == -1 {
		return 0, true, nil
	}
	if n < 0 || n > MaxArrayLength {
		d.pos = start
		return 0, false, Invalid("array length %d out of range", n)
	}
	return int(n), false, nil
}

func (d *Decoder) readLengthPrefixed(field string) ([]byte, error) {
	start := d.pos
	n, err := d.ReadInt32()
	if err != nil {
		return nil, err
	}
	if n == -1 {
		return nil, nil
	}
	if n < -1 || n > MaxArrayLength {
		d.pos = start
		return nil, Invalid("%s length %d out of range", field, n)
	}
	b, err := d.take(int(n), field)
	if err != nil {
		d.pos = start
		return nil, err
	}
	if b == nil {
		b = []byte{}
	}
	return b, nil
}
