// Standard binary message codec.
//
// Every encoded value starts with a 1-byte type tag, followed by a
// tag-specific payload:
//
//	┌─────┬──────────────────────────────────────────────┐
//	│ tag │ payload                                      │
//	├─────┼──────────────────────────────────────────────┤
//	│  0  │ null — no payload                            │
//	│  1  │ true — no payload                            │
//	│  2  │ false — no payload                           │
//	│  3  │ int32, 4 bytes little-endian                 │
//	│  4  │ int64, 8 bytes little-endian                 │
//	│  5  │ big int: size + ASCII decimal digits         │
//	│  6  │ float64, 8 bytes little-endian (IEEE bits)   │
//	│  7  │ string: size + UTF-8 bytes                   │
//	│  8  │ byte buffer: size + raw bytes                │
//	│  9  │ int32 array: count, pad to 4, elements LE    │
//	│ 10  │ int64 array: count, pad to 8, elements LE    │
//	│ 11  │ float64 array: count, pad to 8, elements LE  │
//	│ 12  │ list: count + each element fully encoded     │
//	│ 13  │ map: pair count + key,value per pair         │
//	└─────┴──────────────────────────────────────────────┘
//
// Sizes use an escaped-width form: one byte for 0–253, marker 254 + uint16
// little-endian up to 65535, marker 255 + uint32 little-endian above that.
// The encoder always emits the narrowest form; the decoder accepts over-long
// forms too (strict encode, lenient decode — required for interoperability).
//
// Numeric arrays are zero-padded so the first element sits at an offset that
// is a multiple of the element width, measured from the start of the whole
// buffer. A receiver may therefore interpret the element region as a typed
// array in place, without copying.
package codec

import (
	"bytes"
	"encoding/binary"
	"math"
	"math/big"
	"unicode/utf8"

	"hostbridge/value"
)

const (
	tagNull         byte = 0
	tagTrue         byte = 1
	tagFalse        byte = 2
	tagInt32        byte = 3
	tagInt64        byte = 4
	tagBigInt       byte = 5
	tagFloat64      byte = 6
	tagString       byte = 7
	tagByteBuffer   byte = 8
	tagInt32Array   byte = 9
	tagInt64Array   byte = 10
	tagFloat64Array byte = 11
	tagList         byte = 12
	tagMap          byte = 13
)

// StandardMessageCodec encodes and decodes single Values in the standard
// binary format. It is stateless; the zero value is ready to use.
type StandardMessageCodec struct{}

func (StandardMessageCodec) EncodeMessage(msg value.Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeValue(&buf, msg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (StandardMessageCodec) DecodeMessage(data []byte) (value.Value, error) {
	r := &reader{data: data}
	v, err := readValue(r)
	if err != nil {
		return nil, err
	}
	if r.pos != len(data) {
		return nil, codecErrorf("decode: %d trailing bytes after message", len(data)-r.pos)
	}
	return v, nil
}

// writeValue appends one fully encoded value to buf. Alignment padding for
// numeric arrays is computed from buf's current length, so the same buffer
// must be used for everything preceding the value (the method codec relies
// on this when it prepends envelope bytes).
func writeValue(buf *bytes.Buffer, v value.Value) error {
	if v == nil {
		v = value.Null{}
	}
	switch av := v.(type) {
	case value.Null:
		buf.WriteByte(tagNull)
	case value.Bool:
		// Booleans fold into the tag itself — no payload byte.
		if av {
			buf.WriteByte(tagTrue)
		} else {
			buf.WriteByte(tagFalse)
		}
	case value.Int32:
		buf.WriteByte(tagInt32)
		writeUint32(buf, uint32(av))
	case value.Int64:
		buf.WriteByte(tagInt64)
		writeUint64(buf, uint64(av))
	case value.BigInt:
		return writeBigInt(buf, av)
	case value.Float64:
		buf.WriteByte(tagFloat64)
		writeUint64(buf, math.Float64bits(float64(av)))
	case value.String:
		if !utf8.ValidString(string(av)) {
			return codecErrorf("encode: string is not valid UTF-8")
		}
		buf.WriteByte(tagString)
		writeSize(buf, len(av))
		buf.WriteString(string(av))
	case value.ByteBuffer:
		buf.WriteByte(tagByteBuffer)
		writeSize(buf, len(av))
		buf.Write(av)
	case value.Int32Array:
		buf.WriteByte(tagInt32Array)
		writeSize(buf, len(av))
		writeAlignment(buf, 4)
		for _, n := range av {
			writeUint32(buf, uint32(n))
		}
	case value.Int64Array:
		buf.WriteByte(tagInt64Array)
		writeSize(buf, len(av))
		writeAlignment(buf, 8)
		for _, n := range av {
			writeUint64(buf, uint64(n))
		}
	case value.Float64Array:
		buf.WriteByte(tagFloat64Array)
		writeSize(buf, len(av))
		writeAlignment(buf, 8)
		for _, f := range av {
			writeUint64(buf, math.Float64bits(f))
		}
	case value.List:
		buf.WriteByte(tagList)
		writeSize(buf, len(av))
		for _, elem := range av {
			if err := writeValue(buf, elem); err != nil {
				return err
			}
		}
	case *value.Map:
		buf.WriteByte(tagMap)
		writeSize(buf, av.Len())
		for _, p := range av.Pairs() {
			if err := writeValue(buf, p.Key); err != nil {
				return err
			}
			if err := writeValue(buf, p.Val); err != nil {
				return err
			}
		}
	default:
		return codecErrorf("encode: unsupported value kind %d", v.Kind())
	}
	return nil
}

// writeBigInt narrows before encoding: a value that fits in 64 bits goes out
// as Int32/Int64, so the wire never carries a big-int tag for a small value.
func writeBigInt(buf *bytes.Buffer, v value.BigInt) error {
	n, ok := v.Big()
	if !ok {
		return codecErrorf("encode: %q is not a valid decimal integer", string(v))
	}
	if n.IsInt64() {
		return writeValue(buf, value.PromoteInt(n.Int64()))
	}
	text := n.String()
	buf.WriteByte(tagBigInt)
	writeSize(buf, len(text))
	buf.WriteString(text)
	return nil
}

// writeSize emits the narrowest escaped-width form for n.
func writeSize(buf *bytes.Buffer, n int) {
	switch {
	case n < 254:
		buf.WriteByte(byte(n))
	case n <= math.MaxUint16:
		buf.WriteByte(254)
		writeUint16(buf, uint16(n))
	default:
		buf.WriteByte(255)
		writeUint32(buf, uint32(n))
	}
}

// writeAlignment pads with zero bytes until the next write lands on a
// multiple of width, counted from the start of the buffer.
func writeAlignment(buf *bytes.Buffer, width int) {
	for buf.Len()%width != 0 {
		buf.WriteByte(0)
	}
}

func writeUint16(buf *bytes.Buffer, n uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], n)
	buf.Write(b[:])
}

func writeUint32(buf *bytes.Buffer, n uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], n)
	buf.Write(b[:])
}

func writeUint64(buf *bytes.Buffer, n uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], n)
	buf.Write(b[:])
}

// reader is a bounds-checked cursor over an encoded buffer. pos is the
// absolute offset, which is what the array alignment rule is defined
// against.
type reader struct {
	data []byte
	pos  int
}

func (r *reader) remaining() int { return len(r.data) - r.pos }

func (r *reader) readByte() (byte, error) {
	if r.remaining() < 1 {
		return 0, codecErrorf("decode: unexpected end of buffer at offset %d", r.pos)
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

// readBytes returns a copy of the next n bytes. Decoded values must never
// alias the transport's buffer — it may be reused the moment decode returns.
func (r *reader) readBytes(n int) ([]byte, error) {
	if n < 0 || r.remaining() < n {
		return nil, codecErrorf("decode: need %d bytes at offset %d, have %d", n, r.pos, r.remaining())
	}
	out := make([]byte, n)
	copy(out, r.data[r.pos:r.pos+n])
	r.pos += n
	return out, nil
}

func (r *reader) readUint16() (uint16, error) {
	if r.remaining() < 2 {
		return 0, codecErrorf("decode: unexpected end of buffer at offset %d", r.pos)
	}
	n := binary.LittleEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return n, nil
}

func (r *reader) readUint32() (uint32, error) {
	if r.remaining() < 4 {
		return 0, codecErrorf("decode: unexpected end of buffer at offset %d", r.pos)
	}
	n := binary.LittleEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return n, nil
}

func (r *reader) readUint64() (uint64, error) {
	if r.remaining() < 8 {
		return 0, codecErrorf("decode: unexpected end of buffer at offset %d", r.pos)
	}
	n := binary.LittleEndian.Uint64(r.data[r.pos:])
	r.pos += 8
	return n, nil
}

// readSize accepts all three width forms, including over-long encodings of
// small values (lenient decode).
func (r *reader) readSize() (int, error) {
	b, err := r.readByte()
	if err != nil {
		return 0, err
	}
	switch b {
	case 254:
		n, err := r.readUint16()
		return int(n), err
	case 255:
		n, err := r.readUint32()
		return int(n), err
	default:
		return int(b), nil
	}
}

// alignTo skips padding so the cursor sits on a multiple of width. The
// skipped bytes are not validated — encoders write zeros, but their content
// carries no meaning.
func (r *reader) alignTo(width int) error {
	rem := r.pos % width
	if rem == 0 {
		return nil
	}
	skip := width - rem
	if r.remaining() < skip {
		return codecErrorf("decode: unexpected end of buffer in alignment padding at offset %d", r.pos)
	}
	r.pos += skip
	return nil
}

func readValue(r *reader) (value.Value, error) {
	tag, err := r.readByte()
	if err != nil {
		return nil, err
	}
	switch tag {
	case tagNull:
		return value.Null{}, nil
	case tagTrue:
		return value.Bool(true), nil
	case tagFalse:
		return value.Bool(false), nil
	case tagInt32:
		n, err := r.readUint32()
		if err != nil {
			return nil, err
		}
		return value.Int32(int32(n)), nil
	case tagInt64:
		n, err := r.readUint64()
		if err != nil {
			return nil, err
		}
		return value.Int64(int64(n)), nil
	case tagBigInt:
		return readBigInt(r)
	case tagFloat64:
		bits, err := r.readUint64()
		if err != nil {
			return nil, err
		}
		return value.Float64(math.Float64frombits(bits)), nil
	case tagString:
		n, err := r.readSize()
		if err != nil {
			return nil, err
		}
		raw, err := r.readBytes(n)
		if err != nil {
			return nil, err
		}
		if !utf8.Valid(raw) {
			return nil, codecErrorf("decode: string payload is not valid UTF-8")
		}
		return value.String(raw), nil
	case tagByteBuffer:
		n, err := r.readSize()
		if err != nil {
			return nil, err
		}
		raw, err := r.readBytes(n)
		if err != nil {
			return nil, err
		}
		return value.ByteBuffer(raw), nil
	case tagInt32Array:
		count, err := r.readSize()
		if err != nil {
			return nil, err
		}
		if err := r.alignTo(4); err != nil {
			return nil, err
		}
		if count > r.remaining()/4 {
			return nil, codecErrorf("decode: int32 array claims %d elements, %d bytes left", count, r.remaining())
		}
		out := make(value.Int32Array, count)
		for i := range out {
			n, err := r.readUint32()
			if err != nil {
				return nil, err
			}
			out[i] = int32(n)
		}
		return out, nil
	case tagInt64Array:
		count, err := r.readSize()
		if err != nil {
			return nil, err
		}
		if err := r.alignTo(8); err != nil {
			return nil, err
		}
		if count > r.remaining()/8 {
			return nil, codecErrorf("decode: int64 array claims %d elements, %d bytes left", count, r.remaining())
		}
		out := make(value.Int64Array, count)
		for i := range out {
			n, err := r.readUint64()
			if err != nil {
				return nil, err
			}
			out[i] = int64(n)
		}
		return out, nil
	case tagFloat64Array:
		count, err := r.readSize()
		if err != nil {
			return nil, err
		}
		if err := r.alignTo(8); err != nil {
			return nil, err
		}
		if count > r.remaining()/8 {
			return nil, codecErrorf("decode: float64 array claims %d elements, %d bytes left", count, r.remaining())
		}
		out := make(value.Float64Array, count)
		for i := range out {
			bits, err := r.readUint64()
			if err != nil {
				return nil, err
			}
			out[i] = math.Float64frombits(bits)
		}
		return out, nil
	case tagList:
		count, err := r.readSize()
		if err != nil {
			return nil, err
		}
		out := make(value.List, 0, minCap(count))
		for i := 0; i < count; i++ {
			elem, err := readValue(r)
			if err != nil {
				return nil, err
			}
			out = append(out, elem)
		}
		return out, nil
	case tagMap:
		count, err := r.readSize()
		if err != nil {
			return nil, err
		}
		m := value.NewMap()
		for i := 0; i < count; i++ {
			k, err := readValue(r)
			if err != nil {
				return nil, err
			}
			v, err := readValue(r)
			if err != nil {
				return nil, err
			}
			if _, dup := m.Get(k); dup {
				return nil, codecErrorf("decode: duplicate map key")
			}
			m.Set(k, v)
		}
		return m, nil
	default:
		return nil, codecErrorf("decode: unrecognized type tag %d at offset %d", tag, r.pos-1)
	}
}

// readBigInt parses the decimal payload and promotes to the narrowest
// integer kind that holds it, so a peer that encodes small values under the
// big-int tag still yields Int32/Int64 here.
func readBigInt(r *reader) (value.Value, error) {
	size, err := r.readSize()
	if err != nil {
		return nil, err
	}
	raw, err := r.readBytes(size)
	if err != nil {
		return nil, err
	}
	parsed, ok := new(big.Int).SetString(string(raw), 10)
	if !ok {
		return nil, codecErrorf("decode: %q is not a valid decimal integer", raw)
	}
	return value.FromBigInt(parsed), nil
}

// minCap bounds the initial allocation for declared element counts. The
// count comes straight off the wire — a hostile 4-byte count must not force
// a huge up-front allocation before the buffer length check catches it.
func minCap(declared int) int {
	const limit = 1024
	if declared > limit {
		return limit
	}
	return declared
}
