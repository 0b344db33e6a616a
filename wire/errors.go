// Package wire implements the little-endian OPC UA binary primitives used by
// UADP network messages.
package wire

import (
	"errors"
	"fmt"
)

// DecodeErrorKind classifies field decoding errors.
type DecodeErrorKind int

const (
	// KindTruncated indicates the input ended before a field was complete.
	KindTruncated DecodeErrorKind = iota
	// KindInvalid indicates a field carried a value outside its domain.
	KindInvalid
	// KindUnsupported indicates a valid but unimplemented protocol feature.
	KindUnsupported
)

func (k DecodeErrorKind) String() string {
	switch k {
	case KindTruncated:
		return "truncated"
	case KindInvalid:
		return "invalid"
	case KindUnsupported:
		return "unsupported"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// DecodeError represents a failure to decode a wire field.
type DecodeError struct {
	Kind DecodeErrorKind
	Msg  string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Truncated returns a KindTruncated error.
func Truncated(format string, args ...any) error {
	return &DecodeError{Kind: KindTruncated, Msg: fmt.Sprintf(format, args...)}
}

// Invalid returns a KindInvalid error.
func Invalid(format string, args ...any) error {
	return &DecodeError{Kind: KindInvalid, Msg: fmt.Sprintf(format, args...)}
}

// Unsupported returns a KindUnsupported error.
func Unsupported(format string, args ...any) error {
	return &DecodeError{Kind: KindUnsupported, Msg: fmt.Sprintf(format, args...)}
}

// IsTruncated returns true if err is a truncation error.
func IsTruncated(err error) bool {
	return hasKind(err, KindTruncated)
}

// IsUnsupported returns true if err reports an unsupported feature.
func IsUnsupported(err error) bool {
	return hasKind(err, KindUnsupported)
}

func hasKind(err error, kind DecodeErrorKind) bool {
	var decErr *DecodeError
	if errors.As(err, &decErr) {
		return decErr.Kind == kind
	}
	return false
}
