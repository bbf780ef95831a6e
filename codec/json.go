package codec

import (
	"bytes"
	"encoding/json"
	"sort"

	"hostbridge/value"
)

// JSONMessageCodec maps Values to UTF-8 JSON text using the standard
// library. It is the debug/interop sibling of StandardMessageCodec.
//
// JSON is lossier than the binary format: byte buffers and typed numeric
// arrays encode as plain JSON arrays and come back as List, map keys must
// be strings, and NaN/Inf floats are not representable. Peers that need
// full fidelity use the standard codec.
type JSONMessageCodec struct{}

func (JSONMessageCodec) EncodeMessage(msg value.Value) ([]byte, error) {
	native, err := toJSON(msg)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(native)
	if err != nil {
		return nil, codecErrorf("encode: %v", err)
	}
	return data, nil
}

func (JSONMessageCodec) DecodeMessage(data []byte) (value.Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var native any
	if err := dec.Decode(&native); err != nil {
		return nil, codecErrorf("decode: %v", err)
	}
	if dec.More() {
		return nil, codecErrorf("decode: trailing data after JSON message")
	}
	return fromJSON(native)
}

func toJSON(v value.Value) (any, error) {
	if v == nil {
		v = value.Null{}
	}
	switch av := v.(type) {
	case value.Null:
		return nil, nil
	case value.Bool:
		return bool(av), nil
	case value.Int32:
		return int32(av), nil
	case value.Int64:
		return int64(av), nil
	case value.BigInt:
		if _, ok := av.Big(); !ok {
			return nil, codecErrorf("encode: %q is not a valid decimal integer", string(av))
		}
		return json.Number(av), nil
	case value.Float64:
		return float64(av), nil
	case value.String:
		return string(av), nil
	case value.ByteBuffer:
		out := make([]any, len(av))
		for i, b := range av {
			out[i] = b
		}
		return out, nil
	case value.Int32Array:
		out := make([]any, len(av))
		for i, n := range av {
			out[i] = n
		}
		return out, nil
	case value.Int64Array:
		out := make([]any, len(av))
		for i, n := range av {
			out[i] = n
		}
		return out, nil
	case value.Float64Array:
		out := make([]any, len(av))
		for i, f := range av {
			out[i] = f
		}
		return out, nil
	case value.List:
		out := make([]any, len(av))
		for i, elem := range av {
			native, err := toJSON(elem)
			if err != nil {
				return nil, err
			}
			out[i] = native
		}
		return out, nil
	case *value.Map:
		out := make(map[string]any, av.Len())
		for _, p := range av.Pairs() {
			key, ok := p.Key.(value.String)
			if !ok {
				return nil, codecErrorf("encode: JSON map keys must be strings, got kind %d", p.Key.Kind())
			}
			native, err := toJSON(p.Val)
			if err != nil {
				return nil, err
			}
			out[string(key)] = native
		}
		return out, nil
	default:
		return nil, codecErrorf("encode: unsupported value kind %d", v.Kind())
	}
}

func fromJSON(native any) (value.Value, error) {
	switch nv := native.(type) {
	case nil:
		return value.Null{}, nil
	case bool:
		return value.Bool(nv), nil
	case json.Number:
		if n, err := nv.Int64(); err == nil {
			return value.PromoteInt(n), nil
		}
		// Integer too large for int64, or a fraction/exponent.
		big := value.BigInt(nv.String())
		if parsed, ok := big.Big(); ok {
			return value.FromBigInt(parsed), nil
		}
		f, err := nv.Float64()
		if err != nil {
			return nil, codecErrorf("decode: bad number %q", nv.String())
		}
		return value.Float64(f), nil
	case string:
		return value.String(nv), nil
	case []any:
		out := make(value.List, len(nv))
		for i, elem := range nv {
			v, err := fromJSON(elem)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case map[string]any:
		// Sort keys so decoding the same document always produces the same
		// pair order (Go map iteration is randomized).
		keys := make([]string, 0, len(nv))
		for k := range nv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		m := value.NewMap()
		for _, k := range keys {
			v, err := fromJSON(nv[k])
			if err != nil {
				return nil, err
			}
			m.Set(value.String(k), v)
		}
		return m, nil
	default:
		return nil, codecErrorf("decode: unsupported JSON shape %T", native)
	}
}

// JSONMethodCodec frames method calls as JSON arrays: a request is
// [method, arguments], a success reply is [result], an error reply is
// [code, message, details], and the zero-length buffer means not
// implemented — the same three-outcome contract as the standard codec.
type JSONMethodCodec struct {
	messages JSONMessageCodec
}

func (c JSONMethodCodec) EncodeMethodCall(call MethodCall) ([]byte, error) {
	if call.Method == "" {
		return nil, codecErrorf("encode: method name must not be empty")
	}
	return c.messages.EncodeMessage(value.List{value.String(call.Method), call.Arguments})
}

func (c JSONMethodCodec) DecodeMethodCall(data []byte) (MethodCall, error) {
	msg, err := c.messages.DecodeMessage(data)
	if err != nil {
		return MethodCall{}, err
	}
	list, ok := msg.(value.List)
	if !ok || len(list) != 2 {
		return MethodCall{}, codecErrorf("decode: method call must be a [method, arguments] pair")
	}
	method, ok := list[0].(value.String)
	if !ok || method == "" {
		return MethodCall{}, codecErrorf("decode: method name must be a non-empty string")
	}
	return MethodCall{Method: string(method), Arguments: list[1]}, nil
}

func (c JSONMethodCodec) EncodeSuccessEnvelope(result value.Value) ([]byte, error) {
	return c.messages.EncodeMessage(value.List{result})
}

func (c JSONMethodCodec) EncodeErrorEnvelope(code, message string, details value.Value) ([]byte, error) {
	var msg value.Value = value.Null{}
	if message != "" {
		msg = value.String(message)
	}
	return c.messages.EncodeMessage(value.List{value.String(code), msg, details})
}

func (c JSONMethodCodec) DecodeEnvelope(data []byte) (value.Value, error) {
	if len(data) == 0 {
		return nil, ErrNotImplemented
	}
	msg, err := c.messages.DecodeMessage(data)
	if err != nil {
		return nil, err
	}
	list, ok := msg.(value.List)
	if !ok {
		return nil, codecErrorf("decode: reply envelope must be a JSON array")
	}
	switch len(list) {
	case 1:
		return list[0], nil
	case 3:
		code, ok := list[0].(value.String)
		if !ok {
			return nil, codecErrorf("decode: error code must be a string")
		}
		var message string
		switch mv := list[1].(type) {
		case value.Null:
		case value.String:
			message = string(mv)
		default:
			return nil, codecErrorf("decode: error message must be a string or null")
		}
		return nil, &PlatformError{Code: string(code), Message: message, Details: list[2]}
	default:
		return nil, codecErrorf("decode: reply envelope has %d elements, want 1 or 3", len(list))
	}
}
