// Package codec implements the serialization layer of a bridge: message
// codecs turn a single Value into bytes and back, method codecs frame a
// method invocation and its result for the wire.
//
// Two codec families are provided behind the same interfaces, mirroring the
// usual binary/JSON split:
//
//   - StandardMessageCodec / StandardMethodCodec — compact binary format,
//     the bit-exact contract both sides of a channel must share.
//   - JSONMessageCodec / JSONMethodCodec — human-readable, for debugging and
//     interop with peers that only speak JSON.
package codec

import "hostbridge/value"

// MessageCodec is a bijective mapping between one Value and a byte buffer.
// Implementations are pure and stateless; a single instance may be shared by
// any number of channels and goroutines.
type MessageCodec interface {
	EncodeMessage(msg value.Value) ([]byte, error)
	DecodeMessage(data []byte) (value.Value, error)
}

// MethodCall is one method invocation crossing the boundary: a non-empty
// method name plus its arguments (Null means "no arguments").
type MethodCall struct {
	Method    string
	Arguments value.Value
}

// MethodCodec frames method calls and their results.
//
// A reply buffer decodes to exactly one of three outcomes, surfaced through
// DecodeEnvelope's error value:
//
//	(result, nil)                — success
//	(nil, *PlatformError)        — the handler reported an error
//	(nil, ErrNotImplemented)     — zero-length reply, method not implemented
//
// Anything else is a malformed reply and decodes to a *CodecError, which is
// a local failure distinct from a handler-reported error.
type MethodCodec interface {
	EncodeMethodCall(call MethodCall) ([]byte, error)
	DecodeMethodCall(data []byte) (MethodCall, error)
	EncodeSuccessEnvelope(result value.Value) ([]byte, error)
	EncodeErrorEnvelope(code, message string, details value.Value) ([]byte, error)
	DecodeEnvelope(data []byte) (value.Value, error)
}

// NotImplementedEnvelope is the reply for an unimplemented method: the
// zero-length buffer. It is the same for every codec, so a registry can
// answer for unregistered channels without knowing their codec.
func NotImplementedEnvelope() []byte { return []byte{} }
