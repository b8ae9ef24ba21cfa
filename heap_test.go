package smol

import (
	"bytes"
	"errors"
	"testing"
)

func mustString(t *testing.T, h *Heap, s string) Value {
	t.Helper()
	v, ok := h.NewString(s)
	if !ok {
		t.Fatalf("heap exhausted creating string %q", s)
	}
	return v
}

func mustArray(t *testing.T, h *Heap, count int) Value {
	t.Helper()
	v, ok := h.NewArray(count)
	if !ok {
		t.Fatalf("heap exhausted creating array of %d", count)
	}
	return v
}

func mustIntern(t *testing.T, h *Heap, s string) Value {
	t.Helper()
	v, ok := h.Intern(s)
	if !ok {
		t.Fatalf("heap exhausted interning %q", s)
	}
	return v
}

// checkInvariants walks the whole heap verifying the structural rules that
// must hold between collections.
func checkInvariants(t *testing.T, h *Heap) {
	t.Helper()
	if h.Used() < heapHeaderSize || h.Used() > h.Capacity() {
		t.Fatalf("used %d outside [%d, %d]", h.Used(), heapHeaderSize, h.Capacity())
	}
	h.VisitAll(func(b Pos) bool {
		if h.isForwarded(b) {
			t.Fatalf("live heap contains forwarded block at %d", b)
		}
		if !h.Contains(b) {
			t.Fatalf("heap does not contain its own block at %d", b)
		}
		if typeHoldsVals(h.blockType(b)) {
			pay := h.blockPayload(b)
			for n := h.blockSize(b) / valSize; n > 0; n-- {
				if v := h.Val(pay); v.IsObject() && !h.ValidPos(v.Pos()) {
					t.Fatalf("value at slot %d resolves out of range to %d", pay, v.Pos())
				}
				pay += valSize
			}
		}
		return true
	})
}

func Test_EmptyHeap(t *testing.T) {
	h := NewHeap(10000)

	if h.Capacity() != 10000 {
		t.Fatalf("capacity = %d", h.Capacity())
	}
	if h.Used() != heapHeaderSize {
		t.Fatalf("used = %d, want header size %d", h.Used(), heapHeaderSize)
	}
	if h.Remaining() != 10000-heapHeaderSize {
		t.Fatalf("remaining = %d", h.Remaining())
	}
	if !h.Root().IsNull() {
		t.Fatalf("fresh heap root should be null")
	}
	if h.Contains(NullPos) {
		t.Fatal("heap should not contain the null position")
	}

	h.Visit(func(b Pos) bool {
		t.Fatal("visitor should not be called on an empty heap")
		return false
	})
	h.VisitAll(func(b Pos) bool {
		t.Fatal("visitAll should not be called on an empty heap")
		return false
	})
}

func Test_CurrentHeapGuard(t *testing.T) {
	h := NewHeap(10000)
	if Current() != nil {
		t.Fatal("no heap should be current")
	}
	Using(h, func() {
		if Current() != h {
			t.Fatal("h should be current inside the guard")
		}
		inner := NewHeap(10000)
		Using(inner, func() {
			if Current() != inner {
				t.Fatal("nested guard should rebind")
			}
		})
		if Current() != h {
			t.Fatal("nested guard should restore h")
		}
	})
	if Current() != nil {
		t.Fatal("guard should restore the previous (nil) binding")
	}
}

func Test_Alloc_SingleBlock(t *testing.T) {
	h := NewHeap(10000)

	p := h.Alloc(123)
	if p == NullPos {
		t.Fatal("alloc failed")
	}
	if !h.Contains(p) || !h.Contains(p+122) {
		t.Fatal("heap should contain the allocated payload")
	}
	footprint := Pos(alignUp(123))
	if h.Contains(p + footprint) {
		t.Fatal("heap should not contain past the last block")
	}
	wantUsed := uint32(heapHeaderSize) + blockTotalSize(123)
	if h.Used() != wantUsed {
		t.Fatalf("used = %d, want %d", h.Used(), wantUsed)
	}

	count := 0
	h.VisitAll(func(b Pos) bool {
		count++
		if h.BlockType(b) != TBlob {
			t.Fatalf("block type = %v, want blob", h.BlockType(b))
		}
		if h.BlockSize(b) != 123 {
			t.Fatalf("block size = %d, want 123", h.BlockSize(b))
		}
		return true
	})
	if count != 1 {
		t.Fatalf("visited %d blocks, want 1", count)
	}
	checkInvariants(t, h)
}

func Test_Alloc_Exhaustion(t *testing.T) {
	h := NewHeap(10000)
	if h.Alloc(123) == NullPos {
		t.Fatal("first alloc failed")
	}
	// Fill the heap to the byte: remaining space minus the block header.
	rest := h.Remaining() - blockHeaderSize
	if h.Alloc(rest) == NullPos {
		t.Fatal("filling alloc failed")
	}
	if h.Remaining() != 0 {
		t.Fatalf("remaining = %d, want 0", h.Remaining())
	}
	if h.Alloc(1) != NullPos {
		t.Fatal("alloc on a full heap with no handler should return NullPos")
	}
	checkInvariants(t, h)
}

func Test_Alloc_RangeOfSizes(t *testing.T) {
	const base = 4
	const numBlocks = 500

	needed := uint32(heapHeaderSize)
	for i := 0; i < numBlocks; i++ {
		needed += blockTotalSize(base + uint32(i))
	}
	h := NewHeap(needed)

	blobs := make([]Value, numBlocks)
	for i := range blobs {
		size := uint32(base + i)
		v, ok := h.NewBlob(size)
		if !ok {
			t.Fatalf("alloc %d (size %d) failed", i, size)
		}
		data := h.BlobBytes(v)
		if uint32(len(data)) != size {
			t.Fatalf("blob %d: size %d, want %d", i, len(data), size)
		}
		for j := range data {
			data[j] = byte(i)
		}
		blobs[i] = v
	}
	if h.Remaining() != 0 {
		t.Fatalf("heap was sized to fit exactly; remaining = %d", h.Remaining())
	}

	for i, v := range blobs {
		for _, b := range h.BlobBytes(v) {
			if b != byte(i) {
				t.Fatalf("blob %d: pattern corrupted", i)
			}
		}
	}

	// Iteration sees them in allocation order.
	i := 0
	h.VisitAll(func(b Pos) bool {
		if h.BlockSize(b) != base+uint32(i) {
			t.Fatalf("block %d: size %d, want %d", i, h.BlockSize(b), base+i)
		}
		i++
		return true
	})
	if i != numBlocks {
		t.Fatalf("visited %d blocks, want %d", i, numBlocks)
	}
	checkInvariants(t, h)
}

func Test_AllocFailureHandler_Retry(t *testing.T) {
	h := NewHeap(4096)
	sibling := NewHeap(4096)

	calls := 0
	h.SetAllocFailureHandler(func(h *Heap, need uint32) bool {
		calls++
		h.GarbageCollectTo(sibling)
		return h.Remaining() >= need
	})

	// One live string as root, then garbage until the handler fires.
	root := []Value{mustString(t, h, "keep me")}
	h.RegisterExternalRoots(root)
	h.SetRoot(root[0])

	for i := 0; i < 100; i++ {
		if _, ok := h.NewBlob(256); !ok {
			t.Fatalf("allocation %d failed despite collecting handler", i)
		}
	}
	if calls == 0 {
		t.Fatal("handler never fired")
	}
	if h.Str(h.Root()) != "keep me" {
		t.Fatal("root string lost across handler collections")
	}
	h.UnregisterExternalRoots(root)
	checkInvariants(t, h)
}

func Test_Resize(t *testing.T) {
	backing := make([]byte, 8192)
	h, err := WrapHeap(backing[:4096])
	if err != nil {
		t.Fatal(err)
	}
	if h.Alloc(1000) == NullPos {
		t.Fatal("alloc failed")
	}

	if err := h.Resize(h.Used() - 4); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("shrinking below used: err = %v, want ErrInvalidArgument", err)
	}
	if err := h.Resize(h.Used()); err != nil {
		t.Fatalf("shrinking to used should work: %v", err)
	}
	if h.Alloc(64) != NullPos {
		t.Fatal("alloc should fail after shrink-to-fit")
	}
	if err := h.Resize(4096); err != nil {
		t.Fatalf("re-growing a wrapped heap within its region: %v", err)
	}
	if h.Alloc(64) == NullPos {
		t.Fatal("alloc should succeed after re-grow")
	}

	owned := NewHeap(4096)
	if err := owned.Resize(8192); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("growing an owned heap: err = %v, want ErrInvalidArgument", err)
	}
}

func Test_ExternalRoots_RegisterUnregister(t *testing.T) {
	h := NewHeap(4096)
	a := []Value{mustString(t, h, "a")}
	b := []Value{mustString(t, h, "b")}
	h.RegisterExternalRoots(a)
	h.RegisterExternalRoots(b)
	// Unregistration order need not match registration order.
	h.UnregisterExternalRoots(a)
	h.UnregisterExternalRoots(b)

	defer func() {
		if recover() == nil {
			t.Fatal("unregistering an unknown run should panic")
		}
	}()
	h.UnregisterExternalRoots(a)
}

func Test_Adopt_RoundTrip(t *testing.T) {
	h := NewHeap(10000)
	arr := mustArray(t, h, 3)
	h.SetElem(arr, 0, mustString(t, h, "first"))
	h.SetElem(arr, 1, IntValue(42))
	h.SetElem(arr, 2, mustString(t, h, "second"))
	h.SetRoot(arr)

	type blockID struct {
		pos  Pos
		typ  Type
		size uint32
	}
	var orig []blockID
	h.VisitAll(func(b Pos) bool {
		orig = append(orig, blockID{b, h.BlockType(b), h.BlockSize(b)})
		return true
	})

	image := append([]byte(nil), h.Bytes()...)
	image = append(image, make([]byte, 2000)...) // spare capacity
	h2, err := Adopt(image, h.Used())
	if err != nil {
		t.Fatal(err)
	}

	if h2.Root() != h.Root() {
		t.Fatalf("adopted root %v differs from original %v", h2.Root(), h.Root())
	}
	var adopted []blockID
	h2.VisitAll(func(b Pos) bool {
		adopted = append(adopted, blockID{b, h2.BlockType(b), h2.BlockSize(b)})
		return true
	})
	if len(adopted) != len(orig) {
		t.Fatalf("adopted %d blocks, want %d", len(adopted), len(orig))
	}
	for i := range orig {
		if orig[i] != adopted[i] {
			t.Fatalf("block %d: %+v != %+v", i, orig[i], adopted[i])
		}
	}

	r := h2.Root()
	if got := h2.Str(h2.Elem(r, 0)); got != "first" {
		t.Fatalf("elem 0 = %q", got)
	}
	if got := h2.Elem(r, 1); got != IntValue(42) {
		t.Fatalf("elem 1 = %v", got)
	}
	if got := h2.Str(h2.Elem(r, 2)); got != "second" {
		t.Fatalf("elem 2 = %q", got)
	}
	checkInvariants(t, h2)
}

func Test_Adopt_Invalid(t *testing.T) {
	// Wrong magic.
	bad := make([]byte, 64)
	if _, err := Adopt(bad, 64); !errors.Is(err, ErrInvalidHeap) {
		t.Fatalf("zero buffer: err = %v, want ErrInvalidHeap", err)
	}

	// Too-small used size.
	h := NewHeap(1000)
	if _, err := Adopt(h.Bytes(), 4); !errors.Is(err, ErrInvalidHeap) {
		t.Fatalf("tiny used: err = %v, want ErrInvalidHeap", err)
	}

	// Root pointing outside the used range.
	h2 := NewHeap(1000)
	s := mustString(t, h2, "x")
	h2.SetRoot(s)
	image := append([]byte(nil), h2.Bytes()...)
	if _, err := Adopt(image[:heapHeaderSize], heapHeaderSize); !errors.Is(err, ErrInvalidHeap) {
		t.Fatalf("truncated image: err = %v, want ErrInvalidHeap", err)
	}
}

func Test_Serialize_Bytes(t *testing.T) {
	h := NewHeap(1000)
	h.SetRoot(mustString(t, h, "payload"))
	image := h.Bytes()
	if uint32(len(image)) != h.Used() {
		t.Fatalf("image length %d != used %d", len(image), h.Used())
	}
	if !bytes.Contains(image, []byte("payload")) {
		t.Fatal("image should contain the string bytes verbatim")
	}
}
