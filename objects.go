// objects.go — leaf object types: String, Symbol, Blob, BigInt, Float.
//
// Constructors return (Value, ok); ok is false when the heap is exhausted
// and the alloc-failure handler (if any) declined to make room. Accessors
// panic when handed a value of the wrong type — that is a caller bug, not
// a runtime condition.
package smol

import (
	"encoding/binary"
	"math"
)

func (h *Heap) newStringy(t Type, s string) (Value, bool) {
	b := h.allocBlock(uint32(len(s)), t)
	if b == NullPos {
		return NullValue, false
	}
	copy(h.buf[h.blockPayload(b):], s)
	return objValue(b), true
}

// NewString allocates a String holding s (UTF-8, not zero-terminated).
func (h *Heap) NewString(s string) (Value, bool) {
	return h.newStringy(TString, s)
}

// Str returns the text of a String or Symbol.
func (h *Heap) Str(v Value) string {
	b := v.Pos()
	if t := h.blockType(b); t != TString && t != TSymbol {
		panic("smol: value is not a string or symbol")
	}
	pay := h.blockPayload(b)
	return string(h.buf[pay : uint32(pay)+h.blockSize(b)])
}

// NewBlob allocates a zero-filled Blob of the given size.
func (h *Heap) NewBlob(size uint32) (Value, bool) {
	b := h.allocBlock(size, TBlob)
	if b == NullPos {
		return NullValue, false
	}
	return objValue(b), true
}

// NewBlobFrom allocates a Blob holding a copy of data.
func (h *Heap) NewBlobFrom(data []byte) (Value, bool) {
	v, ok := h.NewBlob(uint32(len(data)))
	if ok {
		copy(h.buf[h.blockPayload(v.Pos()):], data)
	}
	return v, ok
}

// BlobBytes returns a Blob's payload. The slice aliases heap memory: it is
// invalidated by any collection, and writes through it mutate the blob.
func (h *Heap) BlobBytes(v Value) []byte {
	b := v.Pos()
	if h.blockType(b) != TBlob {
		panic("smol: value is not a blob")
	}
	pay := h.blockPayload(b)
	return h.buf[pay : uint32(pay)+h.blockSize(b)]
}

// NewBigInt allocates a BigInt block holding i, regardless of magnitude.
func (h *Heap) NewBigInt(i int64) (Value, bool) {
	b := h.allocBlock(8, TBigInt)
	if b == NullPos {
		return NullValue, false
	}
	binary.LittleEndian.PutUint64(h.buf[h.blockPayload(b):], uint64(i))
	return objValue(b), true
}

// NewInt returns the most compact representation of i: an inline value
// when it fits the 31-bit range, a BigInt block otherwise. Round-trips
// through AsInt either way.
func (h *Heap) NewInt(i int64) (Value, bool) {
	if i >= MinSmallInt && i <= MaxSmallInt {
		return IntValue(int(i)), true
	}
	return h.NewBigInt(i)
}

// AsInt returns the integer held by an inline Int or a BigInt.
func (h *Heap) AsInt(v Value) int64 {
	if v.IsInt() {
		return int64(v.AsInt())
	}
	b := v.Pos()
	if h.blockType(b) != TBigInt {
		panic("smol: value is not an integer")
	}
	return int64(binary.LittleEndian.Uint64(h.buf[h.blockPayload(b):]))
}

// NewFloat allocates a Float block: four bytes when f survives a float32
// round-trip, eight otherwise.
func (h *Heap) NewFloat(f float64) (Value, bool) {
	if f32 := float32(f); float64(f32) == f {
		b := h.allocBlock(4, TFloat)
		if b == NullPos {
			return NullValue, false
		}
		h.setWord(h.blockPayload(b), math.Float32bits(f32))
		return objValue(b), true
	}
	b := h.allocBlock(8, TFloat)
	if b == NullPos {
		return NullValue, false
	}
	binary.LittleEndian.PutUint64(h.buf[h.blockPayload(b):], math.Float64bits(f))
	return objValue(b), true
}

// AsFloat returns the numeric value of a Float, inline Int, or BigInt.
func (h *Heap) AsFloat(v Value) float64 {
	if v.IsInt() {
		return float64(v.AsInt())
	}
	b := v.Pos()
	switch h.blockType(b) {
	case TFloat:
		if h.blockSize(b) == 4 {
			return float64(math.Float32frombits(h.word(h.blockPayload(b))))
		}
		return math.Float64frombits(binary.LittleEndian.Uint64(h.buf[h.blockPayload(b):]))
	case TBigInt:
		return float64(h.AsInt(v))
	}
	panic("smol: value is not numeric")
}
