package codec

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"hostbridge/value"
)

func roundTrip(t *testing.T, v value.Value) value.Value {
	t.Helper()
	c := StandardMessageCodec{}
	data, err := c.EncodeMessage(v)
	if err != nil {
		t.Fatalf("EncodeMessage failed: %v", err)
	}
	decoded, err := c.DecodeMessage(data)
	if err != nil {
		t.Fatalf("DecodeMessage failed: %v", err)
	}
	if !value.Equal(v, decoded) {
		t.Fatalf("round trip mismatch: got %#v, want %#v", decoded, v)
	}
	return decoded
}

func TestRoundTripAllKinds(t *testing.T) {
	values := []value.Value{
		value.Null{},
		value.Bool(true),
		value.Bool(false),
		value.Int32(-123),
		value.Int32(math.MaxInt32),
		value.Int64(math.MaxInt32 + 1),
		value.Int64(math.MinInt64),
		value.BigInt("18446744073709551616"),
		value.BigInt("-340282366920938463463374607431768211455"),
		value.Float64(3.14159),
		value.Float64(math.Inf(-1)),
		value.Float64(math.NaN()),
		value.String(""),
		value.String("hello"),
		value.String("héllo wörld — 漢字"),
		value.ByteBuffer{},
		value.ByteBuffer{0, 1, 254, 255},
		value.Int32Array{1, -2, 3},
		value.Int64Array{math.MaxInt64, math.MinInt64},
		value.Float64Array{0.5, -0.5, math.MaxFloat64},
		value.List{},
		value.List{value.Int32(1), value.String("two"), value.Null{}, value.List{value.Bool(true)}},
		value.NewMap(
			value.Pair{Key: value.String("a"), Val: value.Int32(1)},
			value.Pair{Key: value.Int64(1 << 40), Val: value.List{value.Float64(2.5)}},
			value.Pair{Key: value.Null{}, Val: value.Null{}},
		),
	}
	for _, v := range values {
		roundTrip(t, v)
	}
}

func TestEncodeStringExactBytes(t *testing.T) {
	c := StandardMessageCodec{}
	data, err := c.EncodeMessage(value.String("hi"))
	if err != nil {
		t.Fatalf("EncodeMessage failed: %v", err)
	}
	want := []byte{tagString, 2, 'h', 'i'}
	if !bytes.Equal(data, want) {
		t.Errorf("encoded bytes = %v, want %v", data, want)
	}
}

func TestEncodeInt32ArrayExactBytes(t *testing.T) {
	c := StandardMessageCodec{}
	data, err := c.EncodeMessage(value.Int32Array{1, 2})
	if err != nil {
		t.Fatalf("EncodeMessage failed: %v", err)
	}
	// tag + count + 2 padding bytes to reach a 4-byte boundary + payload
	want := []byte{tagInt32Array, 2, 0, 0, 1, 0, 0, 0, 2, 0, 0, 0}
	if !bytes.Equal(data, want) {
		t.Errorf("encoded bytes = %v, want %v", data, want)
	}
}

func TestArrayAlignment(t *testing.T) {
	c := StandardMessageCodec{}
	// Vary the prefix length so the offset before padding takes every
	// residue mod 8. The filler byte 0xEE never occurs in the element
	// encodings below, so scanning for an element finds its true offset.
	for pad := 0; pad < 9; pad++ {
		prefix := bytes.Repeat([]byte{0xEE}, pad)
		v := value.List{
			value.ByteBuffer(prefix),
			value.Int64Array{7},
			value.Float64Array{0.25},
			value.Int32Array{9},
		}
		data, err := c.EncodeMessage(v)
		if err != nil {
			t.Fatalf("pad %d: EncodeMessage failed: %v", pad, err)
		}

		checkAligned(t, data, leBytes(7, 8), 8, pad)
		checkAligned(t, data, leBytes(math.Float64bits(0.25), 8), 8, pad)
		checkAligned(t, data, leBytes(9, 4), 4, pad)

		decoded, err := c.DecodeMessage(data)
		if err != nil {
			t.Fatalf("pad %d: DecodeMessage failed: %v", pad, err)
		}
		if !value.Equal(v, decoded) {
			t.Fatalf("pad %d: round trip mismatch", pad)
		}
	}
}

func leBytes(elem uint64, width int) []byte {
	out := make([]byte, width)
	for i := range out {
		out[i] = byte(elem >> (8 * i))
	}
	return out
}

// checkAligned locates an element's encoding in data and verifies its byte
// offset, measured from the start of the whole buffer, is a multiple of the
// element width.
func checkAligned(t *testing.T, data, needle []byte, width, pad int) {
	t.Helper()
	idx := bytes.Index(data, needle)
	if idx < 0 {
		t.Errorf("pad %d: element % x not found in encoding", pad, needle)
		return
	}
	if idx%width != 0 {
		t.Errorf("pad %d: element at offset %d, not %d-byte aligned", pad, idx, width)
	}
}

func TestLenientOverlongSizeDecode(t *testing.T) {
	c := StandardMessageCodec{}
	// "hi" with its length in the 254+uint16 form — wider than necessary,
	// still a legal input.
	data := []byte{tagString, 254, 2, 0, 'h', 'i'}
	decoded, err := c.DecodeMessage(data)
	if err != nil {
		t.Fatalf("DecodeMessage failed on over-long size: %v", err)
	}
	if !value.Equal(decoded, value.String("hi")) {
		t.Errorf("decoded = %#v, want String(hi)", decoded)
	}

	// And the 255+uint32 form.
	data = []byte{tagString, 255, 2, 0, 0, 0, 'h', 'i'}
	decoded, err = c.DecodeMessage(data)
	if err != nil {
		t.Fatalf("DecodeMessage failed on 4-byte size form: %v", err)
	}
	if !value.Equal(decoded, value.String("hi")) {
		t.Errorf("decoded = %#v, want String(hi)", decoded)
	}
}

func TestEncodeUsesNarrowestSize(t *testing.T) {
	c := StandardMessageCodec{}
	long := value.String(string(bytes.Repeat([]byte{'a'}, 300)))
	data, err := c.EncodeMessage(long)
	if err != nil {
		t.Fatalf("EncodeMessage failed: %v", err)
	}
	if data[1] != 254 {
		t.Errorf("size marker = %d, want 254 for a 300-byte string", data[1])
	}
	if got := int(data[2]) | int(data[3])<<8; got != 300 {
		t.Errorf("size payload = %d, want 300", got)
	}
}

func TestDecodeFailures(t *testing.T) {
	c := StandardMessageCodec{}
	cases := []struct {
		name string
		data []byte
	}{
		{"empty buffer", []byte{}},
		{"unrecognized tag", []byte{99}},
		{"truncated int32", []byte{tagInt32, 1, 2}},
		{"truncated int64", []byte{tagInt64, 1, 2, 3, 4}},
		{"string size overrun", []byte{tagString, 5, 'h', 'i'}},
		{"invalid utf8", []byte{tagString, 2, 0xff, 0xfe}},
		{"trailing bytes", []byte{tagNull, 0}},
		{"truncated list element", []byte{tagList, 2, tagNull}},
		{"truncated size escape", []byte{tagByteBuffer, 254, 1}},
		{"array count overrun", []byte{tagInt32Array, 200, 0, 0, 1, 0, 0, 0}},
		{"int32 array huge count", []byte{tagInt32Array, 255, 0xff, 0xff, 0xff, 0xff, 0, 0}},
		{"int64 array huge count", []byte{tagInt64Array, 255, 0xff, 0xff, 0xff, 0xff, 0, 0}},
		{"float64 array huge count", []byte{tagFloat64Array, 255, 0xff, 0xff, 0xff, 0xff, 0, 0}},
		{"bad bigint text", []byte{tagBigInt, 3, 'x', 'y', 'z'}},
		{"duplicate map key", []byte{tagMap, 2, tagString, 1, 'a', tagNull, tagString, 1, 'a', tagNull}},
	}
	for _, tc := range cases {
		_, err := c.DecodeMessage(tc.data)
		if err == nil {
			t.Errorf("%s: expected decode failure, got none", tc.name)
			continue
		}
		var ce *CodecError
		if !errors.As(err, &ce) {
			t.Errorf("%s: error is %T, want *CodecError", tc.name, err)
		}
	}
}

func TestBigIntNarrowsOnEncode(t *testing.T) {
	c := StandardMessageCodec{}
	data, err := c.EncodeMessage(value.BigInt("5"))
	if err != nil {
		t.Fatalf("EncodeMessage failed: %v", err)
	}
	decoded, err := c.DecodeMessage(data)
	if err != nil {
		t.Fatalf("DecodeMessage failed: %v", err)
	}
	if !value.Equal(decoded, value.Int32(5)) {
		t.Errorf("decoded = %#v, want Int32(5) — small big ints must narrow", decoded)
	}
}

func TestBigIntPromotionOnDecode(t *testing.T) {
	c := StandardMessageCodec{}
	// A peer may encode a small value under the big-int tag; we must
	// promote it down, not reject it.
	data := []byte{tagBigInt, 2, '4', '2'}
	decoded, err := c.DecodeMessage(data)
	if err != nil {
		t.Fatalf("DecodeMessage failed: %v", err)
	}
	if !value.Equal(decoded, value.Int32(42)) {
		t.Errorf("decoded = %#v, want Int32(42)", decoded)
	}
}

func TestMapReEncodeDeterministic(t *testing.T) {
	c := StandardMessageCodec{}
	m := value.NewMap(
		value.Pair{Key: value.String("first"), Val: value.Int32(1)},
		value.Pair{Key: value.String("second"), Val: value.Int32(2)},
		value.Pair{Key: value.String("third"), Val: value.Int32(3)},
	)
	data1, err := c.EncodeMessage(m)
	if err != nil {
		t.Fatalf("EncodeMessage failed: %v", err)
	}
	decoded, err := c.DecodeMessage(data1)
	if err != nil {
		t.Fatalf("DecodeMessage failed: %v", err)
	}
	data2, err := c.EncodeMessage(decoded)
	if err != nil {
		t.Fatalf("re-encode failed: %v", err)
	}
	if !bytes.Equal(data1, data2) {
		t.Error("decode then re-encode changed the bytes")
	}
}

func TestInvalidUTF8StringEncode(t *testing.T) {
	c := StandardMessageCodec{}
	if _, err := c.EncodeMessage(value.String("\xff\xfe")); err == nil {
		t.Error("expected encode failure for invalid UTF-8")
	}
}
