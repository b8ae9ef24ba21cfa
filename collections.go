// collections.go — Array, Vector, and the identity-sorted Dict.
//
// All three store runs of value words, so every element move goes through
// Val/SetVal: the stored words are self-relative, and shifting them with a
// raw byte copy would leave each one pointing at the wrong target. Slot-by-
// slot re-assignment recomputes the offset at the destination.
//
// Dict storage is a fixed-capacity run of (key, value) entry pairs kept
// sorted by the key's block position, descending, with null-keyed (empty)
// entries as a contiguous suffix. Keys are Symbols compared by identity —
// interning makes identity equality string equality. Because identity
// order changes when the collector relocates blocks, the collector re-sorts
// every Dict it evacuates (sortDict).
package smol

import "sort"

// ---- Array ----

// NewArray allocates an Array of count null elements.
func (h *Heap) NewArray(count int) (Value, bool) {
	b := h.allocBlock(uint32(count)*valSize, TArray)
	if b == NullPos {
		return NullValue, false
	}
	return objValue(b), true
}

// ArrayLen returns the element count of an Array.
func (h *Heap) ArrayLen(a Value) int {
	b := a.Pos()
	if h.blockType(b) != TArray {
		panic("smol: value is not an array")
	}
	return int(h.blockSize(b) / valSize)
}

func (h *Heap) arraySlot(a Value, i int) Pos {
	if i < 0 || i >= h.ArrayLen(a) {
		panic("smol: array index out of range")
	}
	return h.blockPayload(a.Pos()) + Pos(i*valSize)
}

// Elem returns element i of an Array.
func (h *Heap) Elem(a Value, i int) Value { return h.Val(h.arraySlot(a, i)) }

// SetElem stores v as element i of an Array.
func (h *Heap) SetElem(a Value, i int, v Value) { h.SetVal(h.arraySlot(a, i), v) }

// ---- Vector ----

// A Vector is an Array with a fill count: payload slot 0 holds the current
// size as an inline int, elements follow.

// NewVector allocates an empty Vector with the given capacity.
func (h *Heap) NewVector(capacity int) (Value, bool) {
	b := h.allocBlock(uint32(capacity+1)*valSize, TVector)
	if b == NullPos {
		return NullValue, false
	}
	h.SetVal(h.blockPayload(b), IntValue(0))
	return objValue(b), true
}

func (h *Heap) vecCheck(v Value) Pos {
	b := v.Pos()
	if h.blockType(b) != TVector {
		panic("smol: value is not a vector")
	}
	return b
}

// VecLen returns the number of elements appended so far.
func (h *Heap) VecLen(v Value) int {
	return h.Val(h.blockPayload(h.vecCheck(v))).AsInt()
}

// VecCap returns the fixed element capacity.
func (h *Heap) VecCap(v Value) int {
	return int(h.blockSize(h.vecCheck(v))/valSize) - 1
}

func (h *Heap) vecSetLen(v Value, n int) {
	h.SetVal(h.blockPayload(v.Pos()), IntValue(n))
}

func (h *Heap) vecSlot(v Value, i int) Pos {
	return h.blockPayload(v.Pos()) + Pos((i+1)*valSize)
}

// VecElem returns element i of a Vector.
func (h *Heap) VecElem(v Value, i int) Value {
	if i < 0 || i >= h.VecLen(v) {
		panic("smol: vector index out of range")
	}
	return h.Val(h.vecSlot(v, i))
}

// VecAppend adds x at the end. Returns false when the vector is full.
func (h *Heap) VecAppend(v Value, x Value) bool {
	sz := h.VecLen(v)
	if sz >= h.VecCap(v) {
		return false
	}
	h.SetVal(h.vecSlot(v, sz), x)
	h.vecSetLen(v, sz+1)
	return true
}

// VecInsert adds x at index at, shifting later elements up. Returns false
// when the vector is full.
func (h *Heap) VecInsert(v Value, x Value, at int) bool {
	sz := h.VecLen(v)
	if at < 0 || at > sz {
		panic("smol: vector index out of range")
	}
	if sz >= h.VecCap(v) {
		return false
	}
	for j := sz; j > at; j-- {
		h.SetVal(h.vecSlot(v, j), h.Val(h.vecSlot(v, j-1)))
	}
	h.SetVal(h.vecSlot(v, at), x)
	h.vecSetLen(v, sz+1)
	return true
}

// ---- Dict ----

const dictEntrySize = 2 * valSize

// NewDict allocates an empty Dict with room for capacity entries.
func (h *Heap) NewDict(capacity int) (Value, bool) {
	b := h.allocBlock(uint32(capacity)*dictEntrySize, TDict)
	if b == NullPos {
		return NullValue, false
	}
	return objValue(b), true
}

func (h *Heap) dictCheck(d Value) Pos {
	b := d.Pos()
	if h.blockType(b) != TDict {
		panic("smol: value is not a dict")
	}
	return b
}

// DictCapacity returns the fixed entry capacity.
func (h *Heap) DictCapacity(d Value) int {
	return int(h.blockSize(h.dictCheck(d)) / dictEntrySize)
}

func (h *Heap) dictKeySlot(b Pos, i int) Pos {
	return h.blockPayload(b) + Pos(i*dictEntrySize)
}

func (h *Heap) dictValSlot(b Pos, i int) Pos {
	return h.dictKeySlot(b, i) + valSize
}

// keyRank orders dict keys: block position, with null (empty entries)
// ranking below every real key so empties sort to the tail under the
// descending order.
func keyRank(k Value) uint32 {
	if k.IsObject() {
		return uint32(k.Pos())
	}
	return 0
}

func (h *Heap) dictKeyCheck(key Value) {
	if !key.IsObject() || h.blockType(key.Pos()) != TSymbol {
		panic("smol: dict keys must be symbols")
	}
}

// dictSearch returns the index of the entry with the given key rank, or
// the index where such an entry would be inserted (entries are sorted by
// rank, descending). An index of capacity means "after everything".
func (h *Heap) dictSearch(b Pos, rank uint32, capacity int) int {
	return sort.Search(capacity, func(i int) bool {
		return keyRank(h.Val(h.dictKeySlot(b, i))) <= rank
	})
}

// DictCount returns the number of occupied entries.
func (h *Heap) DictCount(d Value) int {
	b := h.dictCheck(d)
	return h.dictSearch(b, 0, h.DictCapacity(d))
}

// DictEntryAt returns entry i in identity order. Entries at and past
// DictCount have a null key.
func (h *Heap) DictEntryAt(d Value, i int) (key, value Value) {
	b := h.dictCheck(d)
	if i < 0 || i >= h.DictCapacity(d) {
		panic("smol: dict index out of range")
	}
	return h.Val(h.dictKeySlot(b, i)), h.Val(h.dictValSlot(b, i))
}

// DictEntry is a decoded (key, value) pair, as returned by DictItems.
type DictEntry struct {
	Key, Value Value
}

// DictItems returns the occupied entries in identity order: everything up
// to, but not including, the first null-keyed entry.
func (h *Heap) DictItems(d Value) []DictEntry {
	b := h.dictCheck(d)
	n := h.DictCount(d)
	items := make([]DictEntry, n)
	for i := range items {
		items[i] = DictEntry{h.Val(h.dictKeySlot(b, i)), h.Val(h.dictValSlot(b, i))}
	}
	return items
}

// DictFind looks up key and returns its value.
func (h *Heap) DictFind(d Value, key Value) (Value, bool) {
	b := h.dictCheck(d)
	h.dictKeyCheck(key)
	cap := h.DictCapacity(d)
	i := h.dictSearch(b, keyRank(key), cap)
	if i < cap && h.Val(h.dictKeySlot(b, i)) == key {
		return h.Val(h.dictValSlot(b, i)), true
	}
	return NullValue, false
}

// DictContains reports whether key is present.
func (h *Heap) DictContains(d Value, key Value) bool {
	_, ok := h.DictFind(d, key)
	return ok
}

func (h *Heap) dictSet(d Value, key, value Value, insertOnly bool) bool {
	b := h.dictCheck(d)
	h.dictKeyCheck(key)
	cap := h.DictCapacity(d)
	i := h.dictSearch(b, keyRank(key), cap)
	switch {
	case i >= cap:
		// Past the last slot: the dict is full and the key would sort
		// after every existing entry.
		return false
	case h.Val(h.dictKeySlot(b, i)) == key:
		if insertOnly {
			return false
		}
		h.SetVal(h.dictValSlot(b, i), value)
		return true
	case h.Val(h.dictKeySlot(b, cap-1)).IsNull():
		// Room at the tail: shift entries down one slot, re-assigning
		// rather than byte-copying so offsets are recomputed.
		for j := cap - 1; j > i; j-- {
			h.SetVal(h.dictKeySlot(b, j), h.Val(h.dictKeySlot(b, j-1)))
			h.SetVal(h.dictValSlot(b, j), h.Val(h.dictValSlot(b, j-1)))
		}
		h.SetVal(h.dictKeySlot(b, i), key)
		h.SetVal(h.dictValSlot(b, i), value)
		return true
	default:
		return false // full
	}
}

// DictSet maps key to value, inserting or overwriting. Returns false when
// the dict is full.
func (h *Heap) DictSet(d Value, key, value Value) bool {
	return h.dictSet(d, key, value, false)
}

// DictInsert maps key to value only if absent.
func (h *Heap) DictInsert(d Value, key, value Value) bool {
	return h.dictSet(d, key, value, true)
}

// DictReplace overwrites key's value only if present.
func (h *Heap) DictReplace(d Value, key, value Value) bool {
	b := h.dictCheck(d)
	h.dictKeyCheck(key)
	cap := h.DictCapacity(d)
	i := h.dictSearch(b, keyRank(key), cap)
	if i < cap && h.Val(h.dictKeySlot(b, i)) == key {
		h.SetVal(h.dictValSlot(b, i), value)
		return true
	}
	return false
}

// DictRemove deletes key, shifting later entries toward the head and
// leaving a null entry at the vacated tail slot. Returns false when key
// is absent, without mutating anything.
func (h *Heap) DictRemove(d Value, key Value) bool {
	b := h.dictCheck(d)
	h.dictKeyCheck(key)
	cap := h.DictCapacity(d)
	i := h.dictSearch(b, keyRank(key), cap)
	if i >= cap || h.Val(h.dictKeySlot(b, i)) != key {
		return false
	}
	for j := i + 1; j < cap; j++ {
		h.SetVal(h.dictKeySlot(b, j-1), h.Val(h.dictKeySlot(b, j)))
		h.SetVal(h.dictValSlot(b, j-1), h.Val(h.dictValSlot(b, j)))
	}
	h.SetVal(h.dictKeySlot(b, cap-1), NullValue)
	h.SetVal(h.dictValSlot(b, cap-1), NullValue)
	return true
}

// sortDict re-sorts every entry of the dict block at b by key identity.
// The collector calls this after evacuating a dict's payload, since
// relocation reorders block positions. Entries are decoded into handles,
// sorted, and re-encoded, so each stored offset is recomputed at its new
// slot.
func (h *Heap) sortDict(b Pos) {
	n := int(h.blockSize(b) / dictEntrySize)
	type entry struct{ key, value Value }
	entries := make([]entry, n)
	for i := range entries {
		entries[i] = entry{h.Val(h.dictKeySlot(b, i)), h.Val(h.dictValSlot(b, i))}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return keyRank(entries[i].key) > keyRank(entries[j].key)
	})
	for i, e := range entries {
		h.SetVal(h.dictKeySlot(b, i), e.key)
		h.SetVal(h.dictValSlot(b, i), e.value)
	}
}
