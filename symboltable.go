// symboltable.go — symbol interning.
//
// A Symbol is a unique string: at most one Symbol block per distinct text
// exists in a heap, so identity equality (what Dict lookups test) is string
// equality. The intern table is an in-heap Array used as an open-
// addressed bucket vector: each slot is a Symbol reference or null, probed
// linearly from a position derived from the string's hash (xxhash, playing
// the role of the hash function the original vendors). The table is an
// auxiliary GC root: the collector evacuates it with everything it holds,
// and since bucket order depends only on string hashes — not block
// positions — relocation never invalidates probing.
//
// The serialized heap header has no slot for the table, so an adopted
// image starts with a stale table; it is rebuilt lazily by walking the
// heap's Symbol blocks (each is unique by construction, so re-inserting
// them restores the invariant).
package smol

import "github.com/cespare/xxhash/v2"

const (
	symTableInitial = 16 // buckets; always a power of two
)

// Intern returns the one Symbol for s, creating it if needed. Returns
// ok=false only when the heap is exhausted.
func (h *Heap) Intern(s string) (Value, bool) {
	if sym, ok := h.lookupSymbol(s); ok {
		return sym, true
	}
	if !h.symEnsureRoom() {
		return NullValue, false
	}
	sym, ok := h.newStringy(TSymbol, s)
	if !ok {
		return NullValue, false
	}
	h.symInsert(sym, s)
	return sym, true
}

// FindSymbol returns the Symbol for s if one was interned.
func (h *Heap) FindSymbol(s string) (Value, bool) {
	return h.lookupSymbol(s)
}

// SymbolCount returns the number of interned symbols.
func (h *Heap) SymbolCount() int {
	h.symRefresh()
	return h.symCount
}

func symHash(s string) uint64 { return xxhash.Sum64String(s) }

func (h *Heap) lookupSymbol(s string) (Value, bool) {
	h.symRefresh()
	if !h.symbols.IsObject() {
		return NullValue, false
	}
	n := h.ArrayLen(h.symbols)
	i := int(symHash(s) & uint64(n-1))
	for {
		bucket := h.Elem(h.symbols, i)
		if bucket.IsNull() {
			return NullValue, false
		}
		if h.Str(bucket) == s {
			return bucket, true
		}
		i = (i + 1) & (n - 1)
	}
}

// symInsert adds an already-allocated Symbol to the table. The table must
// have room (symEnsureRoom).
func (h *Heap) symInsert(sym Value, s string) {
	n := h.ArrayLen(h.symbols)
	i := int(symHash(s) & uint64(n-1))
	for !h.Elem(h.symbols, i).IsNull() {
		i = (i + 1) & (n - 1)
	}
	h.SetElem(h.symbols, i, sym)
	h.symCount++
}

// symEnsureRoom makes sure the table exists and has load factor room for
// one more entry, growing it by rehashing into a doubled Array.
func (h *Heap) symEnsureRoom() bool {
	if !h.symbols.IsObject() {
		table, ok := h.NewArray(symTableInitial)
		if !ok {
			return false
		}
		h.symbols = table
		return true
	}
	n := h.ArrayLen(h.symbols)
	if (h.symCount+1)*4 <= n*3 {
		return true
	}
	// The alloc below may trigger a collection through the failure
	// handler; pin the old table so its position gets fixed up.
	pinned := []Value{h.symbols}
	h.RegisterExternalRoots(pinned)
	bigger, ok := h.NewArray(n * 2)
	h.UnregisterExternalRoots(pinned)
	if !ok {
		return false
	}
	old := pinned[0]
	h.symbols = bigger
	h.symCount = 0
	for i := 0; i < n; i++ {
		if sym := h.Elem(old, i); sym.IsObject() {
			h.symInsert(sym, h.Str(sym))
		}
	}
	return true
}

// symRefresh rebuilds the table of an adopted heap on first use: walk
// every block, re-inserting each Symbol. Postponed until a symbol
// operation actually happens so Adopt itself never allocates.
func (h *Heap) symRefresh() {
	if !h.symStale {
		return
	}
	h.symStale = false
	h.symbols = NullValue
	h.symCount = 0
	var syms []Value
	h.VisitAll(func(b Pos) bool {
		if h.blockType(b) == TSymbol {
			syms = append(syms, objValue(b))
		}
		return true
	})
	if len(syms) == 0 {
		return
	}
	// Table growth below can collect; keep the gathered symbols updated.
	h.RegisterExternalRoots(syms)
	defer h.UnregisterExternalRoots(syms)
	for i := range syms {
		if !h.symEnsureRoom() {
			// No room to rebuild; drop the table rather than corrupt it.
			// Future interning will retry from scratch.
			h.symbols = NullValue
			h.symCount = 0
			h.symStale = true
			return
		}
		// Re-read through the registered slot: the room check above may
		// have collected and relocated everything.
		h.symInsert(syms[i], h.Str(syms[i]))
	}
}
