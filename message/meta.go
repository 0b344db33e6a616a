package message

import (
	"fmt"
	"strings"

	"github.com/pithecene-io/uadp/wire"
)

// DiscoveryResponseMetaData is the discovery response type carrying a
// DataSetMetaData body.
const DiscoveryResponseMetaData byte = 2

// nullMask records which string members arrived as null rather than
// empty, so re-encoding reproduces the original bytes.
type nullMask uint8

const (
	nullName nullMask = 1 << iota
	nullDescription
)

func (n nullMask) has(bit nullMask) bool { return n&bit != 0 }

func readNullable(dec *wire.Decoder, dst *string, nulls *nullMask, bit nullMask) error {
	v, null, err := dec.ReadNullableString()
	if err != nil {
		return err
	}
	*dst = v
	if null {
		*nulls |= bit
	}
	return nil
}

// FieldMetaData describes one field of a dataset.
type FieldMetaData struct {
	Name            string
	Description     string
	Flags           uint16
	Type            FieldType
	ValueRank       int32
	MaxStringLength uint32

	nulls nullMask
}

// MetaFrame is the schema of a writer's dataset at one configuration
// version. It is immutable once decoded.
type MetaFrame struct {
	Envelope

	SequenceNumber       uint16
	WriterID             uint16
	Name                 string
	Description          string
	Fields               []FieldMetaData
	ConfigurationVersion ConfigurationVersion
	StatusCode           uint32

	Options Options

	nulls nullMask
}

// PublisherID returns the header's publisher ID, or "" without a header.
func (m *MetaFrame) PublisherID() string {
	if m.NetworkHeader == nil {
		return ""
	}
	return m.NetworkHeader.PublisherID
}

// DecodeMetaFrame decodes a discovery response body. The header is
// attached by the caller.
func DecodeMetaFrame(dec *wire.Decoder, opts Options) (*MetaFrame, error) {
	respType, err := dec.ReadUInt8()
	if err != nil {
		return nil, fmt.Errorf("discovery response type: %w", err)
	}
	if respType != DiscoveryResponseMetaData {
		return nil, wire.Unsupported("discovery response type %d", respType)
	}

	m := &MetaFrame{Options: opts}
	if m.SequenceNumber, err = dec.ReadUInt16(); err != nil {
		return nil, fmt.Errorf("meta sequence number: %w", err)
	}
	if m.WriterID, err = dec.ReadUInt16(); err != nil {
		return nil, fmt.Errorf("meta writer id: %w", err)
	}
	if err = readNullable(dec, &m.Name, &m.nulls, nullName); err != nil {
		return nil, fmt.Errorf("meta name: %w", err)
	}
	if err = readNullable(dec, &m.Description, &m.nulls, nullDescription); err != nil {
		return nil, fmt.Errorf("meta description: %w", err)
	}

	n, null, err := dec.ReadNullableArrayLength()
	if err != nil {
		return nil, fmt.Errorf("meta field count: %w", err)
	}
	// A null field array stays nil; an empty one is non-nil.
	if !null {
		m.Fields = make([]FieldMetaData, 0, min(n, dec.Remaining()))
	}
	for i := 0; i < n; i++ {
		f, err := decodeFieldMetaData(dec, opts)
		if err != nil {
			return nil, fmt.Errorf("field metadata %d: %w", i, err)
		}
		m.Fields = append(m.Fields, f)
	}

	if m.ConfigurationVersion.Major, err = dec.ReadUInt32(); err != nil {
		return nil, fmt.Errorf("meta major version: %w", err)
	}
	if m.ConfigurationVersion.Minor, err = dec.ReadUInt32(); err != nil {
		return nil, fmt.Errorf("meta minor version: %w", err)
	}
	if m.StatusCode, err = dec.ReadUInt32(); err != nil {
		return nil, fmt.Errorf("meta status code: %w", err)
	}
	return m, nil
}

func decodeFieldMetaData(dec *wire.Decoder, opts Options) (FieldMetaData, error) {
	var (
		f   FieldMetaData
		err error
	)
	if err = readNullable(dec, &f.Name, &f.nulls, nullName); err != nil {
		return f, err
	}
	if err = readNullable(dec, &f.Description, &f.nulls, nullDescription); err != nil {
		return f, err
	}
	if opts.LegacyFieldFlagEncoding {
		var b byte
		if b, err = dec.ReadUInt8(); err != nil {
			return f, err
		}
		f.Flags = uint16(b)
	} else if f.Flags, err = dec.ReadUInt16(); err != nil {
		return f, err
	}
	t, err := dec.ReadUInt8()
	if err != nil {
		return f, err
	}
	f.Type = FieldType(t)
	if f.ValueRank, err = dec.ReadInt32(); err != nil {
		return f, err
	}
	if f.MaxStringLength, err = dec.ReadUInt32(); err != nil {
		return f, err
	}
	return f, nil
}

// Encode writes the meta frame as a discovery response.
func (m *MetaFrame) Encode(enc *wire.Encoder, withHeader bool) error {
	if err := m.encodeHeader(enc, withHeader); err != nil {
		return err
	}
	enc.WriteUInt8(DiscoveryResponseMetaData)
	enc.WriteUInt16(m.SequenceNumber)
	enc.WriteUInt16(m.WriterID)
	enc.WriteNullableString(m.Name, m.nulls.has(nullName))
	enc.WriteNullableString(m.Description, m.nulls.has(nullDescription))
	if m.Fields == nil {
		enc.WriteNull()
	} else {
		enc.WriteInt32(int32(len(m.Fields)))
	}
	for i, f := range m.Fields {
		enc.WriteNullableString(f.Name, f.nulls.has(nullName))
		enc.WriteNullableString(f.Description, f.nulls.has(nullDescription))
		if m.Options.LegacyFieldFlagEncoding {
			if f.Flags > 0xFF {
				return fmt.Errorf("field %d flags %#x do not fit legacy encoding", i, f.Flags)
			}
			enc.WriteUInt8(byte(f.Flags))
		} else {
			enc.WriteUInt16(f.Flags)
		}
		enc.WriteUInt8(byte(f.Type))
		enc.WriteInt32(f.ValueRank)
		enc.WriteUInt32(f.MaxStringLength)
	}
	enc.WriteUInt32(m.ConfigurationVersion.Major)
	enc.WriteUInt32(m.ConfigurationVersion.Minor)
	enc.WriteUInt32(m.StatusCode)
	return nil
}

func (m *MetaFrame) String() string {
	var sb strings.Builder
	rule(&sb, '=')
	fmt.Fprintf(&sb, "Meta Message %q  writer %d  version %s\n", m.Name, m.WriterID, m.ConfigurationVersion)
	rule(&sb, '-')
	writeHeader(&sb, m.NetworkHeader)
	rule(&sb, '-')
	fmt.Fprintf(&sb, "%10s | %-30s | %-12s | %6s | %s\n", "Index", "Name", "Type", "Flags", "Description")
	rule(&sb, '-')
	for i, f := range m.Fields {
		fmt.Fprintf(&sb, "%10d | %-30s | %-12s | %#6x | %s\n", i, f.Name, f.Type, f.Flags, f.Description)
	}
	rule(&sb, '=')
	return sb.String()
}
