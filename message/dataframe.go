package message

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pithecene-io/uadp/wire"
)

var (
	// ErrFieldCountMismatch is returned when a key frame does not carry
	// exactly one value per schema field.
	ErrFieldCountMismatch = errors.New("key frame field count does not match schema")
	// ErrFieldIndexOutOfRange is returned when a delta frame references a
	// field the schema does not define.
	ErrFieldIndexOutOfRange = errors.New("delta frame field index out of range")
)

// DataSetFlags1 is the first DataSetMessage header byte.
type DataSetFlags1 byte

const (
	DataSetValid          DataSetFlags1 = 0x01
	DataSetFieldEncoding  DataSetFlags1 = 0x06
	DataSetSequenceNumber DataSetFlags1 = 0x08
	DataSetStatus         DataSetFlags1 = 0x10
	DataSetMajorVersion   DataSetFlags1 = 0x20
	DataSetMinorVersion   DataSetFlags1 = 0x40
	DataSetFlags2Enabled  DataSetFlags1 = 0x80
)

// DataSetFlags2 carries the DataSetMessage type in its low nibble.
type DataSetFlags2 byte

const (
	DataSetTimestamp   DataSetFlags2 = 0x10
	DataSetPicoSeconds DataSetFlags2 = 0x20

	dataSetTypeMask DataSetFlags2 = 0x0F
)

// DataSetMessageType discriminates data frame bodies.
type DataSetMessageType byte

const (
	DataSetKeyFrame DataSetMessageType = iota
	DataSetDeltaFrame
	DataSetEvent
	DataSetKeepAlive
)

func (t DataSetMessageType) String() string {
	switch t {
	case DataSetKeyFrame:
		return "KeyFrame"
	case DataSetDeltaFrame:
		return "DeltaFrame"
	case DataSetEvent:
		return "Event"
	case DataSetKeepAlive:
		return "KeepAlive"
	default:
		return fmt.Sprintf("DataSetMessageType(%d)", byte(t))
	}
}

// DataFrame is the common part of every DataSetMessage. Returned on its
// own it means the header decoded but no schema was available for the
// body, so Items is empty.
type DataFrame struct {
	Envelope

	// WriterIDs is the payload header. Reassembled chunk bodies carry no
	// payload header; the chunk envelope's writer ID is used instead.
	WriterIDs []uint16

	Flags1               DataSetFlags1
	Flags2               DataSetFlags2
	SequenceNumber       uint16
	Timestamp            int64
	PicoSeconds          uint16
	Status               uint16
	ConfigurationVersion ConfigurationVersion

	Items []DataPoint

	chunked bool
}

// NewDataFrame returns a valid data frame header of the given type with
// sequence number, timestamp and both version parts enabled.
func NewDataFrame(h *NetworkMessageHeader, writerID uint16, t DataSetMessageType, v ConfigurationVersion) *DataFrame {
	return &DataFrame{
		Envelope:             Envelope{NetworkHeader: h},
		WriterIDs:            []uint16{writerID},
		Flags1:               DataSetValid | DataSetSequenceNumber | DataSetMajorVersion | DataSetMinorVersion | DataSetFlags2Enabled,
		Flags2:               DataSetFlags2(t) | DataSetTimestamp,
		ConfigurationVersion: v,
	}
}

// WriterID returns the first writer ID, or 0 when none is present.
func (f *DataFrame) WriterID() uint16 {
	if len(f.WriterIDs) == 0 {
		return 0
	}
	return f.WriterIDs[0]
}

// MessageType returns the DataSetMessage type. Frames without Flags2 are
// key frames.
func (f *DataFrame) MessageType() DataSetMessageType {
	if f.Flags1&DataSetFlags2Enabled == 0 {
		return DataSetKeyFrame
	}
	return DataSetMessageType(f.Flags2 & dataSetTypeMask)
}

// IsChunkBody reports whether the frame was decoded from a reassembled
// chunk payload.
func (f *DataFrame) IsChunkBody() bool {
	return f.chunked
}

// DecodeDataFrameHeader decodes the payload header and DataSetMessage
// header of a non-chunked message. The network header is attached by the
// caller.
func DecodeDataFrameHeader(dec *wire.Decoder, h *NetworkMessageHeader) (*DataFrame, error) {
	f := &DataFrame{Envelope: Envelope{NetworkHeader: h}}
	if h != nil && h.PayloadHeaderEnabled() {
		count, err := dec.ReadUInt8()
		if err != nil {
			return nil, fmt.Errorf("payload header count: %w", err)
		}
		f.WriterIDs = make([]uint16, count)
		for i := range f.WriterIDs {
			if f.WriterIDs[i], err = dec.ReadUInt16(); err != nil {
				return nil, fmt.Errorf("payload header writer id %d: %w", i, err)
			}
		}
	}
	if err := f.decodeDataSetHeader(dec); err != nil {
		return nil, err
	}
	return f, nil
}

// DecodeChunkDataFrameHeader decodes the DataSetMessage header of a
// reassembled chunk payload, which carries no payload header.
func DecodeChunkDataFrameHeader(dec *wire.Decoder, h *NetworkMessageHeader, writerID uint16) (*DataFrame, error) {
	f := &DataFrame{
		Envelope:  Envelope{NetworkHeader: h},
		WriterIDs: []uint16{writerID},
		chunked:   true,
	}
	if err := f.decodeDataSetHeader(dec); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *DataFrame) decodeDataSetHeader(dec *wire.Decoder) error {
	b, err := dec.ReadUInt8()
	if err != nil {
		return fmt.Errorf("dataset flags 1: %w", err)
	}
	f.Flags1 = DataSetFlags1(b)
	if f.Flags1&DataSetFlags2Enabled != 0 {
		if b, err = dec.ReadUInt8(); err != nil {
			return fmt.Errorf("dataset flags 2: %w", err)
		}
		f.Flags2 = DataSetFlags2(b)
	}
	if f.Flags1&DataSetSequenceNumber != 0 {
		if f.SequenceNumber, err = dec.ReadUInt16(); err != nil {
			return fmt.Errorf("dataset sequence number: %w", err)
		}
	}
	if f.Flags2&DataSetTimestamp != 0 {
		if f.Timestamp, err = dec.ReadInt64(); err != nil {
			return fmt.Errorf("dataset timestamp: %w", err)
		}
	}
	if f.Flags2&DataSetPicoSeconds != 0 {
		if f.PicoSeconds, err = dec.ReadUInt16(); err != nil {
			return fmt.Errorf("dataset picoseconds: %w", err)
		}
	}
	if f.Flags1&DataSetStatus != 0 {
		if f.Status, err = dec.ReadUInt16(); err != nil {
			return fmt.Errorf("dataset status: %w", err)
		}
	}
	if f.Flags1&DataSetMajorVersion != 0 {
		if f.ConfigurationVersion.Major, err = dec.ReadUInt32(); err != nil {
			return fmt.Errorf("dataset major version: %w", err)
		}
	}
	if f.Flags1&DataSetMinorVersion != 0 {
		if f.ConfigurationVersion.Minor, err = dec.ReadUInt32(); err != nil {
			return fmt.Errorf("dataset minor version: %w", err)
		}
	}
	return nil
}

// Encode writes the network header and payload header when withHeader is
// set, then the DataSetMessage header. A bare DataFrame has no body.
func (f *DataFrame) Encode(enc *wire.Encoder, withHeader bool) error {
	return f.encodeHeaders(enc, withHeader)
}

func (f *DataFrame) encodeHeaders(enc *wire.Encoder, withHeader bool) error {
	if err := f.encodeHeader(enc, withHeader); err != nil {
		return err
	}
	if withHeader && f.NetworkHeader.PayloadHeaderEnabled() {
		if len(f.WriterIDs) > 0xFF {
			return fmt.Errorf("payload header holds %d writer ids", len(f.WriterIDs))
		}
		enc.WriteUInt8(byte(len(f.WriterIDs)))
		for _, id := range f.WriterIDs {
			enc.WriteUInt16(id)
		}
	}
	enc.WriteUInt8(byte(f.Flags1))
	if f.Flags1&DataSetFlags2Enabled != 0 {
		enc.WriteUInt8(byte(f.Flags2))
	}
	if f.Flags1&DataSetSequenceNumber != 0 {
		enc.WriteUInt16(f.SequenceNumber)
	}
	if f.Flags2&DataSetTimestamp != 0 {
		enc.WriteInt64(f.Timestamp)
	}
	if f.Flags2&DataSetPicoSeconds != 0 {
		enc.WriteUInt16(f.PicoSeconds)
	}
	if f.Flags1&DataSetStatus != 0 {
		enc.WriteUInt16(f.Status)
	}
	if f.Flags1&DataSetMajorVersion != 0 {
		enc.WriteUInt32(f.ConfigurationVersion.Major)
	}
	if f.Flags1&DataSetMinorVersion != 0 {
		enc.WriteUInt32(f.ConfigurationVersion.Minor)
	}
	return nil
}

func (f *DataFrame) String() string {
	var sb strings.Builder
	rule(&sb, '=')
	sb.WriteString("UADP Message - Missing Meta Message\n")
	rule(&sb, '-')
	writeHeader(&sb, f.NetworkHeader)
	f.writeDataSetHeader(&sb)
	rule(&sb, '=')
	return sb.String()
}

func (f *DataFrame) writeDataSetHeader(sb *strings.Builder) {
	fmt.Fprintf(sb, "%-20s %d\n", "WriterID:", f.WriterID())
	fmt.Fprintf(sb, "%-20s %s\n", "DataSet Type:", f.MessageType())
	fmt.Fprintf(sb, "%-20s %d\n", "Sequence Number:", f.SequenceNumber)
	fmt.Fprintf(sb, "%-20s %s\n", "Configuration:", f.ConfigurationVersion)
	if f.Timestamp != 0 {
		fmt.Fprintf(sb, "%-20s %s\n", "Timestamp:", TicksToTime(f.Timestamp).Format("2006-01-02T15:04:05.0000000Z"))
	}
}

// KeyFrame is a full snapshot: one value per schema field, in order.
type KeyFrame struct {
	DataFrame

	// Meta is the schema the frame was decoded against.
	Meta *MetaFrame
}

// DecodeKeyFrame decodes a key frame body against meta.
func DecodeKeyFrame(dec *wire.Decoder, hdr *DataFrame, meta *MetaFrame) (*KeyFrame, error) {
	if meta == nil {
		return nil, errors.New("key frame requires a meta frame")
	}
	count, err := dec.ReadUInt16()
	if err != nil {
		return nil, fmt.Errorf("key frame field count: %w", err)
	}
	if int(count) != len(meta.Fields) {
		return nil, fmt.Errorf("%w: got %d, schema has %d", ErrFieldCountMismatch, count, len(meta.Fields))
	}
	k := &KeyFrame{DataFrame: *hdr, Meta: meta}
	k.Items = make([]DataPoint, 0, count)
	for i := range meta.Fields {
		dp, err := decodeDataPoint(dec, uint16(i), meta.Fields[i].Type)
		if err != nil {
			return nil, err
		}
		k.Items = append(k.Items, dp)
	}
	return k, nil
}

// Encode writes the key frame.
func (k *KeyFrame) Encode(enc *wire.Encoder, withHeader bool) error {
	if err := k.encodeHeaders(enc, withHeader); err != nil {
		return err
	}
	if len(k.Items) > 0xFFFF {
		return fmt.Errorf("key frame holds %d items", len(k.Items))
	}
	enc.WriteUInt16(uint16(len(k.Items)))
	for _, dp := range k.Items {
		if err := dp.encode(enc); err != nil {
			return err
		}
	}
	return nil
}

func (k *KeyFrame) String() string {
	var sb strings.Builder
	rule(&sb, '=')
	sb.WriteString("Key Message\n")
	rule(&sb, '-')
	k.writeDataSetHeader(&sb)
	rule(&sb, '-')
	writeDataPoints(&sb, k.Meta, k.Items)
	rule(&sb, '=')
	return sb.String()
}

// DeltaFrame is a sparse update. FieldIndices pairs one to one with Items.
type DeltaFrame struct {
	DataFrame

	FieldIndices []uint16
	// Meta is the schema the frame was decoded against.
	Meta *MetaFrame
}

// DecodeDeltaFrame decodes a delta frame body against meta. An empty
// delta is valid.
func DecodeDeltaFrame(dec *wire.Decoder, hdr *DataFrame, meta *MetaFrame) (*DeltaFrame, error) {
	if meta == nil {
		return nil, errors.New("delta frame requires a meta frame")
	}
	count, err := dec.ReadUInt16()
	if err != nil {
		return nil, fmt.Errorf("delta frame field count: %w", err)
	}
	d := &DeltaFrame{DataFrame: *hdr, Meta: meta}
	d.Items = make([]DataPoint, 0, min(int(count), len(meta.Fields)))
	d.FieldIndices = make([]uint16, 0, cap(d.Items))
	for i := 0; i < int(count); i++ {
		idx, err := dec.ReadUInt16()
		if err != nil {
			return nil, fmt.Errorf("delta frame field index %d: %w", i, err)
		}
		if int(idx) >= len(meta.Fields) {
			return nil, fmt.Errorf("%w: %d, schema has %d fields", ErrFieldIndexOutOfRange, idx, len(meta.Fields))
		}
		dp, err := decodeDataPoint(dec, idx, meta.Fields[idx].Type)
		if err != nil {
			return nil, err
		}
		d.FieldIndices = append(d.FieldIndices, idx)
		d.Items = append(d.Items, dp)
	}
	return d, nil
}

// Encode writes the delta frame.
func (d *DeltaFrame) Encode(enc *wire.Encoder, withHeader bool) error {
	if len(d.FieldIndices) != len(d.Items) {
		return fmt.Errorf("delta frame has %d items and %d field indices", len(d.Items), len(d.FieldIndices))
	}
	if len(d.Items) > 0xFFFF {
		return fmt.Errorf("delta frame holds %d items", len(d.Items))
	}
	if err := d.encodeHeaders(enc, withHeader); err != nil {
		return err
	}
	enc.WriteUInt16(uint16(len(d.Items)))
	for i, dp := range d.Items {
		enc.WriteUInt16(d.FieldIndices[i])
		if err := dp.encode(enc); err != nil {
			return err
		}
	}
	return nil
}

func (d *DeltaFrame) String() string {
	var sb strings.Builder
	rule(&sb, '=')
	sb.WriteString("Delta Message\n")
	rule(&sb, '-')
	d.writeDataSetHeader(&sb)
	rule(&sb, '-')
	writeDataPoints(&sb, d.Meta, d.Items)
	rule(&sb, '=')
	return sb.String()
}

// KeepAliveFrame is a liveness ping with no values.
type KeepAliveFrame struct {
	DataFrame
}

// DecodeKeepAliveFrame wraps a decoded header. Keep alives have no body.
func DecodeKeepAliveFrame(hdr *DataFrame) *KeepAliveFrame {
	return &KeepAliveFrame{DataFrame: *hdr}
}

func (k *KeepAliveFrame) String() string {
	var sb strings.Builder
	rule(&sb, '=')
	sb.WriteString("Keep Alive Message\n")
	rule(&sb, '-')
	writeHeader(&sb, k.NetworkHeader)
	rule(&sb, '=')
	return sb.String()
}
