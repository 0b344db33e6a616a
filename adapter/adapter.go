// Package adapter defines the notification boundary for decoded messages.
//
// Adapters forward every decoded network message to a downstream system
// as a flattened DecodedEvent. The consume command owns adapter
// lifecycle; users provide configuration only.
package adapter

import (
	"context"
	"time"

	"github.com/pithecene-io/uadp/decode"
	"github.com/pithecene-io/uadp/message"
	"github.com/pithecene-io/uadp/types"
)

// DecodedEvent is the payload published for each decoded message.
type DecodedEvent struct {
	ContractVersion string `json:"contract_version" msgpack:"contract_version"`
	Topic           string `json:"topic" msgpack:"topic"`
	// Kind is one of meta, key, delta, keepalive, dataframe, chunk, envelope.
	Kind        string `json:"kind" msgpack:"kind"`
	PublisherID string `json:"publisher_id" msgpack:"publisher_id"`
	WriterID    uint16 `json:"writer_id" msgpack:"writer_id"`

	SequenceNumber uint16                        `json:"sequence_number" msgpack:"sequence_number"`
	Version        *message.ConfigurationVersion `json:"version,omitempty" msgpack:"version,omitempty"`
	Timestamp      string                        `json:"timestamp,omitempty" msgpack:"timestamp,omitempty"` // ISO 8601

	// DataSet is the dataset name from the meta frame, when known.
	DataSet string       `json:"dataset,omitempty" msgpack:"dataset,omitempty"`
	Fields  []FieldValue `json:"fields,omitempty" msgpack:"fields,omitempty"`
	Schema  []FieldInfo  `json:"schema,omitempty" msgpack:"schema,omitempty"`

	Chunk *ChunkProgress `json:"chunk,omitempty" msgpack:"chunk,omitempty"`

	DecodedAt string `json:"decoded_at" msgpack:"decoded_at"` // ISO 8601
}

// FieldValue is one decoded data point.
type FieldValue struct {
	Index     uint16 `json:"index" msgpack:"index"`
	Name      string `json:"name,omitempty" msgpack:"name,omitempty"`
	Type      string `json:"type" msgpack:"type"`
	Value     any    `json:"value" msgpack:"value"`
	Orcat     byte   `json:"orcat" msgpack:"orcat"`
	Quality   uint16 `json:"quality" msgpack:"quality"`
	Timestamp string `json:"timestamp,omitempty" msgpack:"timestamp,omitempty"`
}

// FieldInfo describes one field of a meta frame.
type FieldInfo struct {
	Name        string `json:"name" msgpack:"name"`
	Description string `json:"description,omitempty" msgpack:"description,omitempty"`
	Type        string `json:"type" msgpack:"type"`
}

// ChunkProgress reports an in-flight chunk fragment.
type ChunkProgress struct {
	Offset uint32 `json:"offset" msgpack:"offset"`
	Size   int    `json:"size" msgpack:"size"`
	Total  uint32 `json:"total" msgpack:"total"`
}

// ComplexValue is the flattened form of a ComplexFloat field.
type ComplexValue struct {
	Value float32 `json:"value" msgpack:"value"`
	Angle float32 `json:"angle" msgpack:"angle"`
}

// FileContent is the flattened form of a File field.
type FileContent struct {
	Path    string `json:"path" msgpack:"path"`
	Content []byte `json:"content" msgpack:"content"`
}

// NewDecodedEvent flattens a decoder event.
func NewDecodedEvent(e decode.Event) *DecodedEvent {
	out := &DecodedEvent{
		ContractVersion: types.ContractVersion,
		Topic:           e.Topic,
		DecodedAt:       time.Now().UTC().Format(time.RFC3339Nano),
	}
	if e.Message == nil {
		return out
	}
	out.Kind = decode.Kind(e.Message)
	if h := e.Message.Header(); h != nil {
		out.PublisherID = h.PublisherID
	}

	switch m := e.Message.(type) {
	case *message.MetaFrame:
		out.WriterID = m.WriterID
		out.SequenceNumber = m.SequenceNumber
		out.Version = &m.ConfigurationVersion
		out.DataSet = m.Name
		out.Schema = make([]FieldInfo, len(m.Fields))
		for i, f := range m.Fields {
			out.Schema[i] = FieldInfo{Name: f.Name, Description: f.Description, Type: f.Type.String()}
		}
	case *message.KeyFrame:
		setDataFrame(out, &m.DataFrame)
		setFields(out, m.Meta, m.Items)
	case *message.DeltaFrame:
		setDataFrame(out, &m.DataFrame)
		setFields(out, m.Meta, m.Items)
	case *message.KeepAliveFrame:
		setDataFrame(out, &m.DataFrame)
	case *message.DataFrame:
		setDataFrame(out, m)
	case *message.ChunkedMessage:
		out.WriterID = m.WriterID
		out.SequenceNumber = m.SequenceNumber
		out.Chunk = &ChunkProgress{Offset: m.ChunkOffset, Size: len(m.Data), Total: m.TotalSize}
	}
	return out
}

func setDataFrame(out *DecodedEvent, f *message.DataFrame) {
	out.WriterID = f.WriterID()
	out.SequenceNumber = f.SequenceNumber
	v := f.ConfigurationVersion
	out.Version = &v
	if f.Flags2&message.DataSetTimestamp != 0 {
		out.Timestamp = message.TicksToTime(f.Timestamp).Format(time.RFC3339Nano)
	}
}

func setFields(out *DecodedEvent, meta *message.MetaFrame, items []message.DataPoint) {
	if meta != nil {
		out.DataSet = meta.Name
	}
	out.Fields = make([]FieldValue, len(items))
	for i, dp := range items {
		fv := FieldValue{
			Index:   dp.Index,
			Orcat:   dp.Orcat,
			Quality: dp.Quality,
			Value:   plainValue(dp.Value),
		}
		if dp.Value != nil {
			fv.Type = dp.Value.FieldType().String()
		}
		if dp.Timestamp != 0 {
			fv.Timestamp = dp.Time().Format(time.RFC3339Nano)
		}
		if meta != nil && int(dp.Index) < len(meta.Fields) {
			fv.Name = meta.Fields[dp.Index].Name
		}
		out.Fields[i] = fv
	}
}

// plainValue converts a field value to builtin types both codecs encode
// without custom hooks.
func plainValue(v message.Value) any {
	switch v := v.(type) {
	case message.BoolValue:
		return bool(v)
	case message.DoublePointValue:
		return uint8(v)
	case message.Int32Value:
		return int32(v)
	case message.FloatValue:
		return float32(v)
	case message.ComplexFloatValue:
		return ComplexValue{Value: v.Value, Angle: v.Angle}
	case message.FloatArrayValue:
		return []float32(v)
	case message.CounterValue:
		return int64(v)
	case message.StringValue:
		return string(v)
	case message.NullStringValue:
		return nil
	case message.FileValue:
		return FileContent{Path: v.Path, Content: v.Content}
	default:
		return nil
	}
}

// Adapter publishes decoded events to a downstream system.
type Adapter interface {
	// Publish sends one event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *DecodedEvent) error

	// Close releases adapter resources.
	Close() error
}
