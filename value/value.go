// Package value defines the canonical data model exchanged between the UI
// side and the host side of a bridge.
//
// Value is a closed tagged union: exactly the shapes listed below can cross
// the boundary, and the codec layer rejects anything else. This mirrors the
// dynamic containers the two runtimes use natively (lists, dictionaries,
// typed numeric arrays) without opening the model to arbitrary Go types.
package value

import (
	"bytes"
	"math"
	"math/big"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt32
	KindInt64
	KindBigInt
	KindFloat64
	KindString
	KindByteBuffer
	KindInt32Array
	KindInt64Array
	KindFloat64Array
	KindList
	KindMap
)

// Value is the sealed union. The concrete types below are the only
// implementations; a nil Value is treated as Null everywhere.
type Value interface {
	Kind() Kind
}

type Null struct{}

type Bool bool

type Int32 int32

type Int64 int64

// BigInt holds an integer whose magnitude exceeds the signed 64-bit range,
// as its ASCII decimal representation (optional leading '-').
// Integers that fit in 64 bits are represented as Int32/Int64, never BigInt.
type BigInt string

type Float64 float64

// String is UTF-8 text. It round-trips byte-exactly through the codec,
// with no normalization.
type String string

// ByteBuffer is a raw sequence of 8-bit elements.
type ByteBuffer []byte

type Int32Array []int32

type Int64Array []int64

type Float64Array []float64

// List is an ordered, heterogeneous sequence.
type List []Value

func (Null) Kind() Kind         { return KindNull }
func (Bool) Kind() Kind         { return KindBool }
func (Int32) Kind() Kind        { return KindInt32 }
func (Int64) Kind() Kind        { return KindInt64 }
func (BigInt) Kind() Kind       { return KindBigInt }
func (Float64) Kind() Kind      { return KindFloat64 }
func (String) Kind() Kind       { return KindString }
func (ByteBuffer) Kind() Kind   { return KindByteBuffer }
func (Int32Array) Kind() Kind   { return KindInt32Array }
func (Int64Array) Kind() Kind   { return KindInt64Array }
func (Float64Array) Kind() Kind { return KindFloat64Array }
func (List) Kind() Kind         { return KindList }
func (*Map) Kind() Kind         { return KindMap }

// Big parses the decimal text into a *big.Int.
// The second result is false if the text is not a valid integer.
func (b BigInt) Big() (*big.Int, bool) {
	return new(big.Int).SetString(string(b), 10)
}

// FromBigInt converts a *big.Int into the narrowest integer Value that
// holds it: Int32, then Int64, then BigInt.
func FromBigInt(n *big.Int) Value {
	if n.IsInt64() {
		return PromoteInt(n.Int64())
	}
	return BigInt(n.String())
}

// PromoteInt picks Int32 when the value fits, Int64 otherwise.
func PromoteInt(n int64) Value {
	if n >= math.MinInt32 && n <= math.MaxInt32 {
		return Int32(n)
	}
	return Int64(n)
}

// Pair is one key/value entry of a Map.
type Pair struct {
	Key Value
	Val Value
}

// Map is an unordered mapping with keys unique under Equal. Entries are kept
// in insertion order so that re-encoding a decoded map is deterministic;
// the order carries no semantic meaning.
type Map struct {
	pairs []Pair
}

// NewMap builds a Map from pairs. A later duplicate key replaces the earlier
// entry in place.
func NewMap(pairs ...Pair) *Map {
	m := &Map{}
	for _, p := range pairs {
		m.Set(p.Key, p.Val)
	}
	return m
}

// Len returns the number of entries.
func (m *Map) Len() int { return len(m.pairs) }

// Pairs returns the entries in insertion order. The caller must not mutate
// the returned slice.
func (m *Map) Pairs() []Pair { return m.pairs }

// Get returns the value stored under key, or (nil, false).
// Keys compare by structural equality.
func (m *Map) Get(key Value) (Value, bool) {
	for _, p := range m.pairs {
		if Equal(p.Key, key) {
			return p.Val, true
		}
	}
	return nil, false
}

// Set stores val under key, replacing an existing entry with an equal key.
func (m *Map) Set(key, val Value) {
	for i, p := range m.pairs {
		if Equal(p.Key, key) {
			m.pairs[i].Val = val
			return
		}
	}
	m.pairs = append(m.pairs, Pair{Key: key, Val: val})
}

// Equal reports structural equality of two Values.
//
// Maps compare as unordered sets of pairs. Float64 compares by IEEE bit
// pattern, so NaN equals NaN here; this keeps NaN usable as a map key and
// makes round-trip comparisons total.
func Equal(a, b Value) bool {
	if a == nil {
		a = Null{}
	}
	if b == nil {
		b = Null{}
	}
	if a.Kind() != b.Kind() {
		return false
	}
	switch av := a.(type) {
	case Null:
		return true
	case Bool:
		return av == b.(Bool)
	case Int32:
		return av == b.(Int32)
	case Int64:
		return av == b.(Int64)
	case BigInt:
		return av == b.(BigInt)
	case Float64:
		return math.Float64bits(float64(av)) == math.Float64bits(float64(b.(Float64)))
	case String:
		return av == b.(String)
	case ByteBuffer:
		return bytes.Equal(av, b.(ByteBuffer))
	case Int32Array:
		bv := b.(Int32Array)
		if len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i] != bv[i] {
				return false
			}
		}
		return true
	case Int64Array:
		bv := b.(Int64Array)
		if len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i] != bv[i] {
				return false
			}
		}
		return true
	case Float64Array:
		bv := b.(Float64Array)
		if len(av) != len(bv) {
			return false
		}
		for i := range av {
			if math.Float64bits(av[i]) != math.Float64bits(bv[i]) {
				return false
			}
		}
		return true
	case List:
		bv := b.(List)
		if len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case *Map:
		bv := b.(*Map)
		if av.Len() != bv.Len() {
			return false
		}
		for _, p := range av.pairs {
			got, ok := bv.Get(p.Key)
			if !ok || !Equal(p.Val, got) {
				return false
			}
		}
		return true
	}
	return false
}
