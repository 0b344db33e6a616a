package message

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pithecene-io/uadp/wire"
)

// FieldType identifies the value codec of a dataset field. It is carried
// in FieldMetaData and selects how data frames decode the field.
type FieldType byte

const (
	FieldTypeBool FieldType = iota + 1
	FieldTypeDoublePoint
	FieldTypeInt32
	FieldTypeFloat
	FieldTypeComplexFloat
	FieldTypeFloatArray
	FieldTypeCounter
	FieldTypeString
	FieldTypeFile
)

var fieldTypeNames = map[FieldType]string{
	FieldTypeBool:         "Bool",
	FieldTypeDoublePoint:  "DoublePoint",
	FieldTypeInt32:        "Int32",
	FieldTypeFloat:        "Float",
	FieldTypeComplexFloat: "ComplexFloat",
	FieldTypeFloatArray:   "FloatArray",
	FieldTypeCounter:      "Counter",
	FieldTypeString:       "String",
	FieldTypeFile:         "File",
}

func (t FieldType) String() string {
	if name, ok := fieldTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("FieldType(%d)", byte(t))
}

// ParseFieldType resolves a name produced by FieldType.String.
func ParseFieldType(name string) (FieldType, error) {
	for t, n := range fieldTypeNames {
		if strings.EqualFold(n, name) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown field type %q", name)
}

// Value is a decoded field value. The set of implementations is closed and
// matches the FieldType constants.
type Value interface {
	FieldType() FieldType
	String() string
	encode(enc *wire.Encoder)
}

// BoolValue is a single point status.
type BoolValue bool

// DoublePointValue is a two-bit double point status (0..3).
type DoublePointValue byte

// Int32Value is an integer event value.
type Int32Value int32

// FloatValue is a measured value.
type FloatValue float32

// ComplexFloatValue is a measured value with phase angle.
type ComplexFloatValue struct {
	Value float32
	Angle float32
}

// FloatArrayValue is an array of measured values.
type FloatArrayValue []float32

// CounterValue is an integrated totals counter.
type CounterValue int64

// StringValue is a text value.
type StringValue string

// NullStringValue is a String field sent as a null string.
type NullStringValue struct{}

// FileValue carries a file path and its content. A nil Content is a null
// byte string.
type FileValue struct {
	Path    string
	Content []byte

	// NullPath marks a path sent as null rather than empty.
	NullPath bool
}

func (BoolValue) FieldType() FieldType         { return FieldTypeBool }
func (DoublePointValue) FieldType() FieldType  { return FieldTypeDoublePoint }
func (Int32Value) FieldType() FieldType        { return FieldTypeInt32 }
func (FloatValue) FieldType() FieldType        { return FieldTypeFloat }
func (ComplexFloatValue) FieldType() FieldType { return FieldTypeComplexFloat }
func (FloatArrayValue) FieldType() FieldType   { return FieldTypeFloatArray }
func (CounterValue) FieldType() FieldType      { return FieldTypeCounter }
func (StringValue) FieldType() FieldType       { return FieldTypeString }
func (NullStringValue) FieldType() FieldType   { return FieldTypeString }
func (FileValue) FieldType() FieldType         { return FieldTypeFile }

func (v BoolValue) String() string        { return strconv.FormatBool(bool(v)) }
func (v DoublePointValue) String() string { return strconv.Itoa(int(v)) }
func (v Int32Value) String() string       { return strconv.Itoa(int(v)) }
func (v FloatValue) String() string       { return strconv.FormatFloat(float64(v), 'g', -1, 32) }
func (v CounterValue) String() string     { return strconv.FormatInt(int64(v), 10) }
func (v StringValue) String() string      { return string(v) }
func (NullStringValue) String() string    { return "" }

func (v ComplexFloatValue) String() string {
	return fmt.Sprintf("%g ∠ %g", v.Value, v.Angle)
}

func (v FloatArrayValue) String() string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = strconv.FormatFloat(float64(f), 'g', -1, 32)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func (v FileValue) String() string {
	return fmt.Sprintf("%s (%d bytes)", v.Path, len(v.Content))
}

func (v BoolValue) encode(enc *wire.Encoder)        { enc.WriteBoolean(bool(v)) }
func (v DoublePointValue) encode(enc *wire.Encoder) { enc.WriteUInt8(byte(v)) }
func (v Int32Value) encode(enc *wire.Encoder)       { enc.WriteInt32(int32(v)) }
func (v FloatValue) encode(enc *wire.Encoder)       { enc.WriteFloat(float32(v)) }
func (v CounterValue) encode(enc *wire.Encoder)     { enc.WriteInt64(int64(v)) }
func (v StringValue) encode(enc *wire.Encoder)      { enc.WriteString(string(v)) }
func (NullStringValue) encode(enc *wire.Encoder)    { enc.WriteNull() }

func (v ComplexFloatValue) encode(enc *wire.Encoder) {
	enc.WriteFloat(v.Value)
	enc.WriteFloat(v.Angle)
}

// A nil array encodes as null.
func (v FloatArrayValue) encode(enc *wire.Encoder) {
	if v == nil {
		enc.WriteNull()
		return
	}
	enc.WriteInt32(int32(len(v)))
	for _, f := range v {
		enc.WriteFloat(f)
	}
}

func (v FileValue) encode(enc *wire.Encoder) {
	enc.WriteNullableString(v.Path, v.NullPath)
	enc.WriteByteString(v.Content)
}

// DataPoint is one field value of a data frame with its quality trailer.
// Index is the field's position in the schema.
type DataPoint struct {
	Index   uint16
	Value   Value
	Orcat   byte
	Quality uint16
	// Timestamp is a FILETIME: 100ns ticks since 1601-01-01 UTC.
	Timestamp int64
}

// Time converts the FILETIME timestamp.
func (dp DataPoint) Time() time.Time {
	return TicksToTime(dp.Timestamp)
}

const (
	ticksPerSecond  = 10_000_000
	epochDeltaTicks = 116444736000000000
)

// TicksToTime converts 100ns ticks since 1601-01-01 UTC to a time.Time.
func TicksToTime(ticks int64) time.Time {
	unix := ticks - epochDeltaTicks
	return time.Unix(unix/ticksPerSecond, (unix%ticksPerSecond)*100).UTC()
}

// TimeToTicks converts t to 100ns ticks since 1601-01-01 UTC.
func TimeToTicks(t time.Time) int64 {
	return t.UnixNano()/100 + epochDeltaTicks
}

func (dp DataPoint) encode(enc *wire.Encoder) error {
	if dp.Value == nil {
		return fmt.Errorf("data point %d has no value", dp.Index)
	}
	dp.Value.encode(enc)
	enc.WriteUInt8(dp.Orcat)
	enc.WriteUInt16(dp.Quality)
	enc.WriteInt64(dp.Timestamp)
	return nil
}

func decodeDataPoint(dec *wire.Decoder, index uint16, t FieldType) (DataPoint, error) {
	dp := DataPoint{Index: index}
	v, err := decodeValue(dec, t)
	if err != nil {
		return dp, fmt.Errorf("field %d (%s): %w", index, t, err)
	}
	dp.Value = v
	if dp.Orcat, err = dec.ReadUInt8(); err != nil {
		return dp, fmt.Errorf("field %d orcat: %w", index, err)
	}
	if dp.Quality, err = dec.ReadUInt16(); err != nil {
		return dp, fmt.Errorf("field %d quality: %w", index, err)
	}
	if dp.Timestamp, err = dec.ReadInt64(); err != nil {
		return dp, fmt.Errorf("field %d timestamp: %w", index, err)
	}
	return dp, nil
}

func decodeValue(dec *wire.Decoder, t FieldType) (Value, error) {
	switch t {
	case FieldTypeBool:
		v, err := dec.ReadBoolean()
		return BoolValue(v), err
	case FieldTypeDoublePoint:
		v, err := dec.ReadUInt8()
		if err != nil {
			return nil, err
		}
		if v > 3 {
			return nil, wire.Invalid("double point value %d out of range", v)
		}
		return DoublePointValue(v), nil
	case FieldTypeInt32:
		v, err := dec.ReadInt32()
		return Int32Value(v), err
	case FieldTypeFloat:
		v, err := dec.ReadFloat()
		return FloatValue(v), err
	case FieldTypeComplexFloat:
		var c ComplexFloatValue
		var err error
		if c.Value, err = dec.ReadFloat(); err != nil {
			return nil, err
		}
		if c.Angle, err = dec.ReadFloat(); err != nil {
			return nil, err
		}
		return c, nil
	case FieldTypeFloatArray:
		n, null, err := dec.ReadNullableArrayLength()
		if err != nil {
			return nil, err
		}
		if null {
			return FloatArrayValue(nil), nil
		}
		if n*4 > dec.Remaining() {
			return nil, wire.Truncated("float array of %d elements exceeds input", n)
		}
		arr := make(FloatArrayValue, n)
		for i := range arr {
			if arr[i], err = dec.ReadFloat(); err != nil {
				return nil, err
			}
		}
		return arr, nil
	case FieldTypeCounter:
		v, err := dec.ReadInt64()
		return CounterValue(v), err
	case FieldTypeString:
		v, null, err := dec.ReadNullableString()
		if err != nil {
			return nil, err
		}
		if null {
			return NullStringValue{}, nil
		}
		return StringValue(v), nil
	case FieldTypeFile:
		var f FileValue
		var err error
		if f.Path, f.NullPath, err = dec.ReadNullableString(); err != nil {
			return nil, err
		}
		if f.Content, err = dec.ReadByteString(); err != nil {
			return nil, err
		}
		return f, nil
	default:
		return nil, wire.Unsupported("field type %d", byte(t))
	}
}
