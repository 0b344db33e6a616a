package adapter

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/pithecene-io/uadp/decode"
	"github.com/pithecene-io/uadp/message"
	"github.com/pithecene-io/uadp/types"
)

func testMeta() *message.MetaFrame {
	return &message.MetaFrame{
		Envelope:             message.Envelope{NetworkHeader: message.NewNetworkMessageHeader("pub-1", message.MessageTypeDiscoveryResponse)},
		WriterID:             7,
		Name:                 "feeder",
		ConfigurationVersion: message.ConfigurationVersion{Major: 1, Minor: 2},
		Fields: []message.FieldMetaData{
			{Name: "breaker", Type: message.FieldTypeBool},
			{Name: "phasor", Type: message.FieldTypeComplexFloat},
		},
	}
}

func TestNewDecodedEvent_Meta(t *testing.T) {
	e := NewDecodedEvent(decode.Event{Message: testMeta(), Topic: "uadp/meta"})

	if e.Kind != "meta" || e.Topic != "uadp/meta" || e.PublisherID != "pub-1" || e.WriterID != 7 {
		t.Errorf("unexpected identity: %+v", e)
	}
	if e.ContractVersion != types.ContractVersion {
		t.Errorf("ContractVersion = %q, want %q", e.ContractVersion, types.ContractVersion)
	}
	if e.Version == nil || *e.Version != (message.ConfigurationVersion{Major: 1, Minor: 2}) {
		t.Errorf("Version = %v, want 1.2", e.Version)
	}
	if len(e.Schema) != 2 || e.Schema[1].Type != "ComplexFloat" {
		t.Errorf("Schema = %+v", e.Schema)
	}
}

func TestNewDecodedEvent_Delta(t *testing.T) {
	meta := testMeta()
	h := message.NewNetworkMessageHeader("pub-1", message.MessageTypeDataSet)
	ts := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	df := message.NewDataFrame(h, 7, message.DataSetDeltaFrame, meta.ConfigurationVersion)
	df.Timestamp = message.TimeToTicks(ts)
	df.Items = []message.DataPoint{{
		Index:     1,
		Value:     message.ComplexFloatValue{Value: 1.5, Angle: 90},
		Quality:   0xC0,
		Timestamp: message.TimeToTicks(ts),
	}}
	delta := &message.DeltaFrame{
		DataFrame:    *df,
		FieldIndices: []uint16{1},
		Meta:         meta,
	}

	e := NewDecodedEvent(decode.Event{Message: delta, Topic: "uadp/data"})
	if e.Kind != "delta" || e.DataSet != "feeder" {
		t.Errorf("Kind/DataSet = %s/%s, want delta/feeder", e.Kind, e.DataSet)
	}
	if e.Timestamp != "2026-10-19T12:00:00Z" {
		t.Errorf("Timestamp = %q", e.Timestamp)
	}
	if len(e.Fields) != 1 {
		t.Fatalf("len(Fields) = %d, want 1", len(e.Fields))
	}
	f := e.Fields[0]
	if f.Name != "phasor" || f.Type != "ComplexFloat" || f.Quality != 0xC0 {
		t.Errorf("field = %+v", f)
	}
	if v, ok := f.Value.(ComplexValue); !ok || v.Value != 1.5 || v.Angle != 90 {
		t.Errorf("Value = %#v, want ComplexValue{1.5, 90}", f.Value)
	}
}

func TestNewDecodedEvent_Chunk(t *testing.T) {
	h := message.NewNetworkMessageHeader("pub-1", message.MessageTypeDataSet)
	h.SetChunked(true)
	c := &message.ChunkedMessage{
		Envelope:       message.Envelope{NetworkHeader: h},
		WriterID:       7,
		SequenceNumber: 3,
		ChunkOffset:    14000,
		TotalSize:      20000,
		Data:           make([]byte, 6000),
	}

	e := NewDecodedEvent(decode.Event{Message: c})
	if e.Kind != "chunk" || e.Chunk == nil {
		t.Fatalf("Kind = %s, Chunk = %v", e.Kind, e.Chunk)
	}
	if *e.Chunk != (ChunkProgress{Offset: 14000, Size: 6000, Total: 20000}) {
		t.Errorf("Chunk = %+v", *e.Chunk)
	}
}

func TestPlainValue(t *testing.T) {
	cases := []struct {
		in   message.Value
		want any
	}{
		{message.BoolValue(true), true},
		{message.DoublePointValue(2), uint8(2)},
		{message.Int32Value(-4), int32(-4)},
		{message.FloatValue(0.5), float32(0.5)},
		{message.CounterValue(1 << 40), int64(1 << 40)},
		{message.StringValue("x"), "x"},
		{message.StringValue(""), ""},
		{message.NullStringValue{}, nil},
		{nil, nil},
	}
	for _, tc := range cases {
		if got := plainValue(tc.in); got != tc.want {
			t.Errorf("plainValue(%v) = %#v, want %#v", tc.in, got, tc.want)
		}
	}
}

func TestCodecs(t *testing.T) {
	event := NewDecodedEvent(decode.Event{Message: testMeta(), Topic: "t"})

	j, err := NewCodec("")
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	b, err := j.Marshal(event)
	if err != nil {
		t.Fatalf("json marshal: %v", err)
	}
	var fromJSON DecodedEvent
	if err := json.Unmarshal(b, &fromJSON); err != nil {
		t.Fatalf("json unmarshal: %v", err)
	}
	if fromJSON.DataSet != "feeder" {
		t.Errorf("json DataSet = %q", fromJSON.DataSet)
	}

	m, err := NewCodec(CodecMsgpack)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	b, err = m.Marshal(event)
	if err != nil {
		t.Fatalf("msgpack marshal: %v", err)
	}
	var fromMsgpack DecodedEvent
	if err := msgpack.Unmarshal(b, &fromMsgpack); err != nil {
		t.Fatalf("msgpack unmarshal: %v", err)
	}
	if fromMsgpack.PublisherID != "pub-1" || len(fromMsgpack.Schema) != 2 {
		t.Errorf("msgpack event = %+v", fromMsgpack)
	}

	if _, err := NewCodec("xml"); err == nil {
		t.Error("expected error for unknown codec")
	}
}
