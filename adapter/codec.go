package adapter

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec names.
const (
	CodecJSON    = "json"
	CodecMsgpack = "msgpack"
)

// Codec serializes events for the wire.
type Codec interface {
	Name() string
	ContentType() string
	Marshal(event *DecodedEvent) ([]byte, error)
}

// NewCodec returns the codec with the given name. The empty name is JSON.
func NewCodec(name string) (Codec, error) {
	switch name {
	case "", CodecJSON:
		return jsonCodec{}, nil
	case CodecMsgpack:
		return msgpackCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q (want %s or %s)", name, CodecJSON, CodecMsgpack)
	}
}

type jsonCodec struct{}

func (jsonCodec) Name() string        { return CodecJSON }
func (jsonCodec) ContentType() string { return "application/json" }

func (jsonCodec) Marshal(event *DecodedEvent) ([]byte, error) {
	return json.Marshal(event)
}

type msgpackCodec struct{}

func (msgpackCodec) Name() string        { return CodecMsgpack }
func (msgpackCodec) ContentType() string { return "application/msgpack" }

func (msgpackCodec) Marshal(event *DecodedEvent) ([]byte, error) {
	return msgpack.Marshal(event)
}
