package codec

import (
	"bytes"

	"hostbridge/value"
)

// Envelope markers. A reply buffer starts with exactly one of these; the
// zero-length buffer (no marker at all) means "not implemented".
const (
	envelopeSuccess byte = 0
	envelopeError   byte = 1
)

// StandardMethodCodec frames method calls over the standard binary codec.
//
// Request:  encoded method name (String) immediately followed by the encoded
// arguments — no outer wrapping tag, the name's own encoding establishes
// where it ends. Reply: see DecodeEnvelope.
//
// Everything is written into one buffer, so the array alignment rule holds
// across the whole envelope, not just the value part.
type StandardMethodCodec struct{}

func (StandardMethodCodec) EncodeMethodCall(call MethodCall) ([]byte, error) {
	if call.Method == "" {
		return nil, codecErrorf("encode: method name must not be empty")
	}
	var buf bytes.Buffer
	if err := writeValue(&buf, value.String(call.Method)); err != nil {
		return nil, err
	}
	if err := writeValue(&buf, call.Arguments); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (StandardMethodCodec) DecodeMethodCall(data []byte) (MethodCall, error) {
	r := &reader{data: data}
	name, err := readValue(r)
	if err != nil {
		return MethodCall{}, err
	}
	method, ok := name.(value.String)
	if !ok {
		return MethodCall{}, codecErrorf("decode: method name has kind %d, want string", name.Kind())
	}
	if method == "" {
		return MethodCall{}, codecErrorf("decode: method name is empty")
	}
	args, err := readValue(r)
	if err != nil {
		return MethodCall{}, err
	}
	if r.remaining() != 0 {
		return MethodCall{}, codecErrorf("decode: %d trailing bytes after method call", r.remaining())
	}
	return MethodCall{Method: string(method), Arguments: args}, nil
}

func (StandardMethodCodec) EncodeSuccessEnvelope(result value.Value) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(envelopeSuccess)
	if err := writeValue(&buf, result); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (StandardMethodCodec) EncodeErrorEnvelope(code, message string, details value.Value) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(envelopeError)
	if err := writeValue(&buf, value.String(code)); err != nil {
		return nil, err
	}
	var msg value.Value = value.Null{}
	if message != "" {
		msg = value.String(message)
	}
	if err := writeValue(&buf, msg); err != nil {
		return nil, err
	}
	if err := writeValue(&buf, details); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeEnvelope maps the three reply shapes onto Go returns:
//
//	empty buffer                         ⇒ (nil, ErrNotImplemented)
//	success marker + value               ⇒ (value, nil)
//	error marker + code + message + rest ⇒ (nil, *PlatformError)
//
// A buffer matching none of these, or one with trailing bytes, decodes to a
// *CodecError so callers can tell a malformed reply from a reported error.
func (StandardMethodCodec) DecodeEnvelope(data []byte) (value.Value, error) {
	if len(data) == 0 {
		return nil, ErrNotImplemented
	}
	r := &reader{data: data}
	marker, _ := r.readByte()
	switch marker {
	case envelopeSuccess:
		result, err := readValue(r)
		if err != nil {
			return nil, err
		}
		if r.remaining() != 0 {
			return nil, codecErrorf("decode: %d trailing bytes after success envelope", r.remaining())
		}
		return result, nil
	case envelopeError:
		codeVal, err := readValue(r)
		if err != nil {
			return nil, err
		}
		code, ok := codeVal.(value.String)
		if !ok {
			return nil, codecErrorf("decode: error code has kind %d, want string", codeVal.Kind())
		}
		msgVal, err := readValue(r)
		if err != nil {
			return nil, err
		}
		var message string
		switch mv := msgVal.(type) {
		case value.Null:
			// absent
		case value.String:
			message = string(mv)
		default:
			return nil, codecErrorf("decode: error message has kind %d, want string or null", msgVal.Kind())
		}
		details, err := readValue(r)
		if err != nil {
			return nil, err
		}
		if r.remaining() != 0 {
			return nil, codecErrorf("decode: %d trailing bytes after error envelope", r.remaining())
		}
		return nil, &PlatformError{Code: string(code), Message: message, Details: details}
	default:
		return nil, codecErrorf("decode: unrecognized envelope marker %d", marker)
	}
}
