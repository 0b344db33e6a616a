package message

import (
	"fmt"
	"strings"

	"github.com/pithecene-io/uadp/wire"
)

// NetworkMessage is the closed set of decoded UADP messages:
// *Envelope, *ChunkedMessage, *MetaFrame, *DataFrame, *KeyFrame,
// *DeltaFrame and *KeepAliveFrame. Dispatch with a type switch.
type NetworkMessage interface {
	// Header returns the network message header. It is never nil for
	// messages produced by the decoder.
	Header() *NetworkMessageHeader
	// Encode writes the message. When withHeader is false only the body
	// is written, in the form carried inside chunk envelopes.
	Encode(enc *wire.Encoder, withHeader bool) error
	String() string

	networkMessage()
}

// Envelope is a message whose body could not be decoded. It carries only
// the network message header. Every other message type embeds it.
type Envelope struct {
	NetworkHeader *NetworkMessageHeader
}

// Header returns the network message header.
func (e *Envelope) Header() *NetworkMessageHeader {
	return e.NetworkHeader
}

func (*Envelope) networkMessage() {}

// Encode writes the header alone.
func (e *Envelope) Encode(enc *wire.Encoder, withHeader bool) error {
	return e.encodeHeader(enc, withHeader)
}

func (e *Envelope) encodeHeader(enc *wire.Encoder, withHeader bool) error {
	if !withHeader {
		return nil
	}
	if e.NetworkHeader == nil {
		return fmt.Errorf("message has no network header")
	}
	return e.NetworkHeader.Encode(enc)
}

func (e *Envelope) String() string {
	var sb strings.Builder
	rule(&sb, '=')
	sb.WriteString("UADP Message - Missing Meta Message\n")
	rule(&sb, '-')
	writeHeader(&sb, e.NetworkHeader)
	rule(&sb, '=')
	return sb.String()
}

// EncodeBytes encodes m into a fresh buffer.
func EncodeBytes(m NetworkMessage, withHeader bool) ([]byte, error) {
	enc := wire.NewEncoder()
	if err := m.Encode(enc, withHeader); err != nil {
		return nil, err
	}
	return enc.Bytes(), nil
}
