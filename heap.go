// heap.go — the bump-allocated, position-independent arena.
//
// What this file does
// -------------------
// A Heap is a contiguous byte region addressed by 32-bit positions
// (Pos) instead of raw pointers, so the whole thing can be copied,
// memory-mapped, or written to disk verbatim and reloaded anywhere. The
// first 8 bytes are a fixed header: a magic sentinel and the root value
// slot. Everything after is a stream of blocks laid down by a bump
// allocator.
//
// Layout of the image (all words little-endian):
//
//	offset 0   uint32 magic 0xD217904A
//	offset 4   root value word
//	offset 8…  blocks: {meta, payload, pad} …
//
// Allocation never frees; reclaiming space is the copying collector's job
// (gc.go). When the arena is exhausted, Alloc consults an optional
// alloc-failure handler, which typically collects into a sibling heap and
// lets the allocation retry.
//
// The current-heap binding is a process-wide slot managed by the Using
// guard; heaps are single-mutator, so there is nothing finer to track.
package smol

import "encoding/binary"

// Pos is an unsigned byte offset from a heap's base. Positions below
// the heap header never identify a block; NullPos doubles as "no block".
type Pos uint32

// NullPos is the zero position, used as a null block reference.
const NullPos Pos = 0

const (
	heapMagic      uint32 = 0xD217904A
	heapHeaderSize        = 8
	rootSlot              = Pos(4)

	// MaxHeapSize bounds capacity so signed 32-bit self-relative offsets
	// always suffice.
	MaxHeapSize = 1 << 31
)

// AllocFailureHandler is invoked when the heap cannot satisfy an
// allocation. It should free up space (usually by garbage-collecting) and
// return true to make the allocation retry, or false to give up.
type AllocFailureHandler func(h *Heap, sizeNeeded uint32) bool

// Heap is a relocatable arena. Not safe for concurrent use.
type Heap struct {
	buf   []byte // backing region; the image is buf[:cur]
	cur   uint32 // high-water mark
	end   uint32 // capacity boundary; end <= len(buf)
	owned bool   // backing memory allocated by NewHeap (not resizable up)

	onAllocFail AllocFailureHandler
	extRoots    [][]Value

	// Symbol interning state (symboltable.go). symbols references the
	// in-heap bucket array and is treated as an auxiliary GC root.
	symbols  Value
	symCount int
	symStale bool // adopted image: table must be rebuilt from blocks

	collecting bool // a collector is live; mutation is illegal
}

// NewHeap creates an empty heap backed by freshly allocated memory.
// The capacity must fit the header and not exceed MaxHeapSize.
func NewHeap(capacity uint32) *Heap {
	h, err := makeHeap(make([]byte, capacity), true)
	if err != nil {
		panic(err.Error())
	}
	return h
}

// WrapHeap creates an empty heap inside caller-supplied memory. The caller
// keeps ownership of the bytes; the heap never outgrows them.
func WrapHeap(buf []byte) (*Heap, error) {
	return makeHeap(buf, false)
}

func makeHeap(buf []byte, owned bool) (*Heap, error) {
	if len(buf) < heapHeaderSize {
		return nil, invalidArgf("capacity %d is below the %d-byte header", len(buf), heapHeaderSize)
	}
	if uint64(len(buf)) > MaxHeapSize {
		return nil, invalidArgf("capacity %d exceeds the %d maximum", len(buf), MaxHeapSize)
	}
	h := &Heap{buf: buf, end: uint32(len(buf)), owned: owned}
	h.Reset()
	return h, nil
}

// Adopt wraps already-existing heap data: buf[:used] must be a serialized
// image, and the rest of buf is usable capacity. Returns ErrInvalidHeap if
// the bytes fail validation.
func Adopt(buf []byte, used uint32) (*Heap, error) {
	if used < heapHeaderSize || uint64(used) > uint64(len(buf)) {
		return nil, invalidHeapf("used size %d out of range", used)
	}
	if uint64(len(buf)) > MaxHeapSize {
		return nil, invalidArgf("capacity %d exceeds the %d maximum", len(buf), MaxHeapSize)
	}
	h := &Heap{buf: buf, cur: used, end: uint32(len(buf))}
	if got := h.word(0); got != heapMagic {
		return nil, invalidHeapf("wrong magic number %08x", got)
	}
	if root := h.Root(); root.IsObject() {
		if p := root.Pos(); uint32(p) < heapHeaderSize || uint32(p) >= used {
			return nil, invalidHeapf("root position %d out of range", p)
		}
	}
	h.symStale = true
	return h, nil
}

// Reset returns the heap to an empty state: just the header, a null root,
// and no interned symbols.
func (h *Heap) Reset() {
	h.cur = heapHeaderSize
	h.setWord(0, heapMagic)
	h.setWord(rootSlot, nullBits)
	h.symbols = NullValue
	h.symCount = 0
	h.symStale = false
}

// word / setWord are the only accessors of raw image bytes. The image is
// little-endian on every platform.

func (h *Heap) word(p Pos) uint32 {
	return binary.LittleEndian.Uint32(h.buf[p:])
}

func (h *Heap) setWord(p Pos, w uint32) {
	binary.LittleEndian.PutUint32(h.buf[p:], w)
}

// Capacity is the byte size the heap may grow to.
func (h *Heap) Capacity() uint32 { return h.end }

// Used is the number of bytes allocated so far, header included.
func (h *Heap) Used() uint32 { return h.cur }

// Remaining is the allocatable space left.
func (h *Heap) Remaining() uint32 { return h.end - h.cur }

// Bytes is the serialized image: exactly the used prefix of the arena.
// The slice aliases live heap memory; copy it before mutating the heap.
func (h *Heap) Bytes() []byte { return h.buf[:h.cur] }

// Root returns the heap's root value.
func (h *Heap) Root() Value { return h.Val(rootSlot) }

// SetRoot stores the heap's root value.
func (h *Heap) SetRoot(v Value) { h.SetVal(rootSlot, v) }

// Contains reports whether p lies within the allocated part of the heap.
func (h *Heap) Contains(p Pos) bool {
	return p != NullPos && uint32(p) < h.cur
}

// ValidPos reports whether p can identify a block: past the header,
// before the high-water mark.
func (h *Heap) ValidPos(p Pos) bool {
	return uint32(p) >= heapHeaderSize && uint32(p) < h.cur
}

// At returns the heap bytes starting at p, up to the high-water mark.
// p must be a valid position.
func (h *Heap) At(p Pos) []byte {
	if !h.ValidPos(p) {
		panic("smol: position out of range")
	}
	return h.buf[p:h.cur]
}

// SetAllocFailureHandler installs (or clears, with nil) the callback that
// runs when an allocation would overflow the heap.
func (h *Heap) SetAllocFailureHandler(fn AllocFailureHandler) {
	h.onAllocFail = fn
}

// Resize moves the end-of-heap boundary. It cannot shrink below the used
// size, and it cannot grow past the mapped region (for an owned heap that
// means growing is never legal).
func (h *Heap) Resize(newSize uint32) error {
	if newSize < h.cur {
		return invalidArgf("cannot shrink below used size %d", h.cur)
	}
	if newSize > h.end {
		if h.owned {
			return invalidArgf("cannot grow an owned heap")
		}
		if uint64(newSize) > uint64(len(h.buf)) {
			return invalidArgf("cannot grow past the wrapped region (%d bytes)", len(h.buf))
		}
	}
	h.end = newSize
	return nil
}

// rawAlloc bumps the allocation cursor by size bytes, retrying through the
// alloc-failure handler. Returns NullPos when space cannot be found. The
// caller must initialize the returned region.
func (h *Heap) rawAlloc(size uint32) Pos {
	if h.collecting {
		panic("smol: heap mutated while a collector is live")
	}
	for {
		result := h.cur
		newCur := result + size
		if newCur <= h.end && newCur >= result { // no overflow
			h.cur = newCur
			return Pos(result)
		}
		if h.onAllocFail == nil || !h.onAllocFail(h, size) {
			return NullPos
		}
	}
}

// allocBlock allocates a zeroed block with the given payload size and
// type, returning its position, or NullPos if space is exhausted.
//
// If the failure handler collects, every previously obtained block
// position is invalidated; only values reachable from the root, registered
// external roots, or slots fixed up through the collector survive.
func (h *Heap) allocBlock(dataSize uint32, t Type) Pos {
	b := h.rawAlloc(blockTotalSize(dataSize))
	if b == NullPos {
		return NullPos
	}
	h.setWord(b, blockMetaWord(dataSize, t))
	pay := h.blockPayload(b)
	clear(h.buf[pay : uint32(pay)+alignUp(max(dataSize, heapAlignment))])
	return b
}

// Alloc allocates size bytes of raw storage (a Blob block) and returns the
// payload position, or NullPos if the heap is exhausted and no handler
// could recover.
func (h *Heap) Alloc(size uint32) Pos {
	b := h.allocBlock(size, TBlob)
	if b == NullPos {
		return NullPos
	}
	return h.blockPayload(b)
}

// RegisterExternalRoots adds a run of value slots living outside the heap
// (e.g. locals in the caller) to the set the collector rewrites in place.
// The slice must stay valid and writable until unregistered.
func (h *Heap) RegisterExternalRoots(slots []Value) {
	if len(slots) == 0 {
		panic("smol: empty external root registration")
	}
	h.extRoots = append(h.extRoots, slots)
}

// UnregisterExternalRoots removes a previously registered run, identified
// by its starting slot. Registration order does not matter.
func (h *Heap) UnregisterExternalRoots(slots []Value) {
	for i, r := range h.extRoots {
		if len(slots) > 0 && &r[0] == &slots[0] {
			h.extRoots = append(h.extRoots[:i], h.extRoots[i+1:]...)
			return
		}
	}
	panic("smol: external roots were never registered")
}

// VisitAll calls fn for every block in allocation order, reachable or not,
// until fn returns false.
func (h *Heap) VisitAll(fn func(b Pos) bool) {
	for b, ok := h.firstBlock(); ok; b, ok = h.nextBlock(b) {
		if !fn(b) {
			return
		}
	}
}

// Visit calls fn once per live block: everything reachable from the root,
// the registered external roots, and the symbol table. Traversal stops
// early if fn returns false.
func (h *Heap) Visit(fn func(b Pos) bool) {
	seen := make(map[Pos]struct{})
	var stack []Pos

	process := func(v Value) bool {
		if !v.IsObject() {
			return true
		}
		b := v.Pos()
		if _, ok := seen[b]; ok {
			return true
		}
		seen[b] = struct{}{}
		if !fn(b) {
			return false
		}
		if typeHoldsVals(h.blockType(b)) && h.blockSize(b) > 0 {
			stack = append(stack, b)
		}
		return true
	}

	if !process(h.Root()) {
		return
	}
	if !process(h.symbols) {
		return
	}
	for _, run := range h.extRoots {
		for _, v := range run {
			if !process(v) {
				return
			}
		}
	}
	for len(stack) > 0 {
		b := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		pay := h.blockPayload(b)
		for n := h.blockSize(b) / valSize; n > 0; n-- {
			if !process(h.Val(pay)) {
				return
			}
			pay += valSize
		}
	}
}

const valSize = 4

// ---- Current heap ----

// The current-heap slot mirrors the original's thread-local binding; heaps
// are single-mutator, so one process-wide slot with balanced guards is the
// whole model.
var curHeap *Heap

// Current returns the heap most recently entered via Using, or nil.
func Current() *Heap { return curHeap }

func (h *Heap) enter() *Heap {
	prev := curHeap
	curHeap = h
	return prev
}

func (h *Heap) exit(prev *Heap) {
	if curHeap != h {
		panic("smol: unbalanced current-heap guard")
	}
	curHeap = prev
}

// Using makes h the current heap for the duration of fn, restoring the
// previous binding on the way out. Guards nest.
func Using(h *Heap, fn func()) {
	prev := h.enter()
	defer h.exit(prev)
	fn()
}
