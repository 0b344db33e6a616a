// Package message implements the UADP network message model: the common
// network message header, chunk envelopes, meta frames and the data frame
// variants that depend on them.
package message

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/pithecene-io/uadp/wire"
)

// ProtocolVersion is the only UADP version this package decodes.
const ProtocolVersion = 1

// ErrUnsupportedVersion is returned by CheckVersion.
var ErrUnsupportedVersion = errors.New("unsupported UADP protocol version")

// UADPFlags holds the upper nibble of the first header byte.
type UADPFlags byte

const (
	FlagPublisherID    UADPFlags = 0x10
	FlagGroupHeader    UADPFlags = 0x20
	FlagPayloadHeader  UADPFlags = 0x40
	FlagExtendedFlags1 UADPFlags = 0x80
)

// ExtendedFlags1 carries the publisher ID type in its low three bits.
type ExtendedFlags1 byte

const (
	Ext1DataSetClassID ExtendedFlags1 = 0x08
	Ext1Security       ExtendedFlags1 = 0x10
	Ext1Timestamp      ExtendedFlags1 = 0x20
	Ext1PicoSeconds    ExtendedFlags1 = 0x40
	Ext1ExtendedFlags2 ExtendedFlags1 = 0x80

	publisherIDTypeMask ExtendedFlags1 = 0x07
)

// PublisherIDType returns the wire type of the publisher ID.
func (f ExtendedFlags1) PublisherIDType() PublisherIDType {
	return PublisherIDType(f & publisherIDTypeMask)
}

// ExtendedFlags2 carries the network message type in bits 2-4.
type ExtendedFlags2 byte

const (
	Ext2Chunk          ExtendedFlags2 = 0x01
	Ext2PromotedFields ExtendedFlags2 = 0x02

	messageTypeShift = 2
	messageTypeMask  = 0x07
)

// MessageType returns the network message type.
func (f ExtendedFlags2) MessageType() MessageType {
	return MessageType((byte(f) >> messageTypeShift) & messageTypeMask)
}

// PublisherIDType identifies how the publisher ID is encoded on the wire.
type PublisherIDType byte

const (
	PublisherIDByte PublisherIDType = iota
	PublisherIDUInt16
	PublisherIDUInt32
	PublisherIDUInt64
	PublisherIDString
)

func (t PublisherIDType) String() string {
	switch t {
	case PublisherIDByte:
		return "Byte"
	case PublisherIDUInt16:
		return "UInt16"
	case PublisherIDUInt32:
		return "UInt32"
	case PublisherIDUInt64:
		return "UInt64"
	case PublisherIDString:
		return "String"
	default:
		return fmt.Sprintf("PublisherIDType(%d)", byte(t))
	}
}

// MessageType is the network message type from ExtendedFlags2.
type MessageType byte

const (
	MessageTypeDataSet MessageType = iota
	MessageTypeDiscoveryRequest
	MessageTypeDiscoveryResponse
)

func (t MessageType) String() string {
	switch t {
	case MessageTypeDataSet:
		return "DataSetMessage"
	case MessageTypeDiscoveryRequest:
		return "DiscoveryRequest"
	case MessageTypeDiscoveryResponse:
		return "DiscoveryResponse"
	default:
		return fmt.Sprintf("MessageType(%d)", byte(t))
	}
}

// Group header flag bits.
const (
	GroupWriterGroupID        byte = 0x01
	GroupGroupVersion         byte = 0x02
	GroupNetworkMessageNumber byte = 0x04
	GroupSequenceNumber       byte = 0x08
)

// GroupHeader is the optional writer group section of the header.
type GroupHeader struct {
	Flags                byte
	WriterGroupID        uint16
	GroupVersion         uint32
	NetworkMessageNumber uint16
	SequenceNumber       uint16
}

// NetworkMessageHeader is the common header of every UADP network message.
// PublisherID is always held as a string; numeric IDs are normalized to
// their decimal form.
type NetworkMessageHeader struct {
	Version        byte
	Flags          UADPFlags
	ExtendedFlags1 ExtendedFlags1
	ExtendedFlags2 ExtendedFlags2
	PublisherID    string
	GroupHeader    *GroupHeader
	DataSetClassID [16]byte
	Timestamp      int64
	PicoSeconds    uint16

	// RawPayload holds the bytes following the header as received.
	// The decoder clears it before handing a message out.
	RawPayload []byte

	// publisherIDNull marks a string publisher ID sent as null.
	publisherIDNull bool
}

// NewNetworkMessageHeader returns a version 1 header with a string
// publisher ID for the given message type. DataSet messages carry a
// payload header.
func NewNetworkMessageHeader(publisherID string, typ MessageType) *NetworkMessageHeader {
	h := &NetworkMessageHeader{
		Version:        ProtocolVersion,
		Flags:          FlagPublisherID | FlagExtendedFlags1,
		ExtendedFlags1: ExtendedFlags1(PublisherIDString) | Ext1ExtendedFlags2,
		PublisherID:    publisherID,
	}
	if typ == MessageTypeDataSet {
		h.Flags |= FlagPayloadHeader
	}
	h.SetMessageType(typ)
	return h
}

// CheckVersion returns ErrUnsupportedVersion unless the header carries
// ProtocolVersion.
func (h *NetworkMessageHeader) CheckVersion() error {
	if h.Version != ProtocolVersion {
		return fmt.Errorf("version %d: %w", h.Version, ErrUnsupportedVersion)
	}
	return nil
}

// MessageType returns the network message type. Headers without
// ExtendedFlags2 are DataSet messages.
func (h *NetworkMessageHeader) MessageType() MessageType {
	return h.ExtendedFlags2.MessageType()
}

// SetMessageType sets the message type, enabling the extended flag bytes.
func (h *NetworkMessageHeader) SetMessageType(t MessageType) {
	h.enableExtendedFlags2()
	h.ExtendedFlags2 = h.ExtendedFlags2&^(messageTypeMask<<messageTypeShift) | ExtendedFlags2(byte(t)<<messageTypeShift)
}

// IsChunked reports whether the message is a chunk envelope.
func (h *NetworkMessageHeader) IsChunked() bool {
	return h.ExtendedFlags2&Ext2Chunk != 0
}

// SetChunked sets or clears the chunk flag.
func (h *NetworkMessageHeader) SetChunked(chunked bool) {
	h.enableExtendedFlags2()
	if chunked {
		h.ExtendedFlags2 |= Ext2Chunk
	} else {
		h.ExtendedFlags2 &^= Ext2Chunk
	}
}

// PayloadHeaderEnabled reports whether a payload header follows.
func (h *NetworkMessageHeader) PayloadHeaderEnabled() bool {
	return h.Flags&FlagPayloadHeader != 0
}

// Clone returns a deep copy without RawPayload.
func (h *NetworkMessageHeader) Clone() *NetworkMessageHeader {
	c := *h
	c.RawPayload = nil
	if h.GroupHeader != nil {
		g := *h.GroupHeader
		c.GroupHeader = &g
	}
	return &c
}

func (h *NetworkMessageHeader) enableExtendedFlags2() {
	h.Flags |= FlagExtendedFlags1
	h.ExtendedFlags1 |= Ext1ExtendedFlags2
}

// DecodeNetworkMessageHeader parses a header from the front of dec.
// RawPayload is set to the bytes remaining after the header.
func DecodeNetworkMessageHeader(dec *wire.Decoder) (*NetworkMessageHeader, error) {
	b, err := dec.ReadUInt8()
	if err != nil {
		return nil, fmt.Errorf("uadp flags: %w", err)
	}
	h := &NetworkMessageHeader{
		Version: b & 0x0F,
		Flags:   UADPFlags(b & 0xF0),
	}

	if h.Flags&FlagExtendedFlags1 != 0 {
		v, err := dec.ReadUInt8()
		if err != nil {
			return nil, fmt.Errorf("extended flags 1: %w", err)
		}
		h.ExtendedFlags1 = ExtendedFlags1(v)
		if h.ExtendedFlags1&Ext1ExtendedFlags2 != 0 {
			v, err := dec.ReadUInt8()
			if err != nil {
				return nil, fmt.Errorf("extended flags 2: %w", err)
			}
			h.ExtendedFlags2 = ExtendedFlags2(v)
		}
	}
	if h.ExtendedFlags1&Ext1Security != 0 {
		return nil, wire.Unsupported("security header is not supported")
	}
	if h.ExtendedFlags2&Ext2PromotedFields != 0 {
		return nil, wire.Unsupported("promoted fields are not supported")
	}

	if h.Flags&FlagPublisherID != 0 {
		id, null, err := decodePublisherID(dec, h.ExtendedFlags1.PublisherIDType())
		if err != nil {
			return nil, err
		}
		h.PublisherID, h.publisherIDNull = id, null
	}

	if h.Flags&FlagGroupHeader != 0 {
		g, err := decodeGroupHeader(dec)
		if err != nil {
			return nil, err
		}
		h.GroupHeader = g
	}

	if h.ExtendedFlags1&Ext1DataSetClassID != 0 {
		if h.DataSetClassID, err = dec.ReadGUID(); err != nil {
			return nil, fmt.Errorf("dataset class id: %w", err)
		}
	}
	if h.ExtendedFlags1&Ext1Timestamp != 0 {
		if h.Timestamp, err = dec.ReadInt64(); err != nil {
			return nil, fmt.Errorf("timestamp: %w", err)
		}
	}
	if h.ExtendedFlags1&Ext1PicoSeconds != 0 {
		if h.PicoSeconds, err = dec.ReadUInt16(); err != nil {
			return nil, fmt.Errorf("picoseconds: %w", err)
		}
	}

	h.RawPayload = dec.Rest()
	return h, nil
}

func decodePublisherID(dec *wire.Decoder, t PublisherIDType) (string, bool, error) {
	var (
		n   uint64
		err error
	)
	switch t {
	case PublisherIDByte:
		var v byte
		v, err = dec.ReadUInt8()
		n = uint64(v)
	case PublisherIDUInt16:
		var v uint16
		v, err = dec.ReadUInt16()
		n = uint64(v)
	case PublisherIDUInt32:
		var v uint32
		v, err = dec.ReadUInt32()
		n = uint64(v)
	case PublisherIDUInt64:
		n, err = dec.ReadUInt64()
	case PublisherIDString:
		s, null, err := dec.ReadNullableString()
		if err != nil {
			return "", false, fmt.Errorf("publisher id: %w", err)
		}
		return s, null, nil
	default:
		return "", false, wire.Invalid("unknown publisher id type %d", byte(t))
	}
	if err != nil {
		return "", false, fmt.Errorf("publisher id: %w", err)
	}
	return strconv.FormatUint(n, 10), false, nil
}

func decodeGroupHeader(dec *wire.Decoder) (*GroupHeader, error) {
	flags, err := dec.ReadUInt8()
	if err != nil {
		return nil, fmt.Errorf("group flags: %w", err)
	}
	g := &GroupHeader{Flags: flags}
	if flags&GroupWriterGroupID != 0 {
		if g.WriterGroupID, err = dec.ReadUInt16(); err != nil {
			return nil, fmt.Errorf("writer group id: %w", err)
		}
	}
	if flags&GroupGroupVersion != 0 {
		if g.GroupVersion, err = dec.ReadUInt32(); err != nil {
			return nil, fmt.Errorf("group version: %w", err)
		}
	}
	if flags&GroupNetworkMessageNumber != 0 {
		if g.NetworkMessageNumber, err = dec.ReadUInt16(); err != nil {
			return nil, fmt.Errorf("network message number: %w", err)
		}
	}
	if flags&GroupSequenceNumber != 0 {
		if g.SequenceNumber, err = dec.ReadUInt16(); err != nil {
			return nil, fmt.Errorf("group sequence number: %w", err)
		}
	}
	return g, nil
}

// Encode writes the header. It fails only when a numeric publisher ID type
// is paired with a PublisherID that does not parse as that type.
func (h *NetworkMessageHeader) Encode(enc *wire.Encoder) error {
	enc.WriteUInt8(h.Version&0x0F | byte(h.Flags&0xF0))
	if h.Flags&FlagExtendedFlags1 != 0 {
		enc.WriteUInt8(byte(h.ExtendedFlags1))
		if h.ExtendedFlags1&Ext1ExtendedFlags2 != 0 {
			enc.WriteUInt8(byte(h.ExtendedFlags2))
		}
	}
	if h.Flags&FlagPublisherID != 0 {
		if err := encodePublisherID(enc, h.ExtendedFlags1.PublisherIDType(), h.PublisherID, h.publisherIDNull); err != nil {
			return err
		}
	}
	if h.Flags&FlagGroupHeader != 0 {
		g := h.GroupHeader
		if g == nil {
			g = &GroupHeader{}
		}
		enc.WriteUInt8(g.Flags)
		if g.Flags&GroupWriterGroupID != 0 {
			enc.WriteUInt16(g.WriterGroupID)
		}
		if g.Flags&GroupGroupVersion != 0 {
			enc.WriteUInt32(g.GroupVersion)
		}
		if g.Flags&GroupNetworkMessageNumber != 0 {
			enc.WriteUInt16(g.NetworkMessageNumber)
		}
		if g.Flags&GroupSequenceNumber != 0 {
			enc.WriteUInt16(g.SequenceNumber)
		}
	}
	if h.ExtendedFlags1&Ext1DataSetClassID != 0 {
		enc.WriteGUID(h.DataSetClassID)
	}
	if h.ExtendedFlags1&Ext1Timestamp != 0 {
		enc.WriteInt64(h.Timestamp)
	}
	if h.ExtendedFlags1&Ext1PicoSeconds != 0 {
		enc.WriteUInt16(h.PicoSeconds)
	}
	return nil
}

func encodePublisherID(enc *wire.Encoder, t PublisherIDType, id string, null bool) error {
	if t == PublisherIDString {
		enc.WriteNullableString(id, null)
		return nil
	}
	bits := map[PublisherIDType]int{
		PublisherIDByte:   8,
		PublisherIDUInt16: 16,
		PublisherIDUInt32: 32,
		PublisherIDUInt64: 64,
	}[t]
	if bits == 0 {
		return fmt.Errorf("unknown publisher id type %d", byte(t))
	}
	n, err := strconv.ParseUint(id, 10, bits)
	if err != nil {
		return fmt.Errorf("publisher id %q is not a %s: %w", id, t, err)
	}
	switch t {
	case PublisherIDByte:
		enc.WriteUInt8(byte(n))
	case PublisherIDUInt16:
		enc.WriteUInt16(uint16(n))
	case PublisherIDUInt32:
		enc.WriteUInt32(uint32(n))
	default:
		enc.WriteUInt64(n)
	}
	return nil
}
