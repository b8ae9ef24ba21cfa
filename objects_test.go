package smol

import "testing"

func Test_NewInt_InlinesOrUpgrades(t *testing.T) {
	h := NewHeap(4096)

	v, _ := h.NewInt(1000)
	if !v.IsInt() || h.AsInt(v) != 1000 {
		t.Fatal("small int should inline")
	}
	v, _ = h.NewInt(MaxSmallInt)
	if !v.IsInt() {
		t.Fatal("MaxSmallInt should inline")
	}
	v, _ = h.NewInt(int64(MaxSmallInt) + 1)
	if !v.IsObject() || v.Type(h) != TBigInt {
		t.Fatal("MaxSmallInt+1 should upgrade to BigInt")
	}
	if h.AsInt(v) != int64(MaxSmallInt)+1 {
		t.Fatalf("round-trip = %d", h.AsInt(v))
	}
	v, _ = h.NewInt(-1 << 40)
	if v.Type(h) != TBigInt || h.AsInt(v) != -1<<40 {
		t.Fatal("large negative round-trip failed")
	}
}

func Test_Float_Widths(t *testing.T) {
	h := NewHeap(4096)

	v, _ := h.NewFloat(1.5) // exact in float32
	if h.BlockSize(v.Pos()) != 4 {
		t.Fatalf("1.5 should pack into 4 bytes, got %d", h.BlockSize(v.Pos()))
	}
	if h.AsFloat(v) != 1.5 {
		t.Fatal("float32 round-trip failed")
	}

	v, _ = h.NewFloat(0.1) // not exact in float32
	if h.BlockSize(v.Pos()) != 8 {
		t.Fatalf("0.1 needs 8 bytes, got %d", h.BlockSize(v.Pos()))
	}
	if h.AsFloat(v) != 0.1 {
		t.Fatal("float64 round-trip failed")
	}
}

func Test_Blob_Contents(t *testing.T) {
	h := NewHeap(4096)
	data := []byte{1, 2, 3, 4, 5}
	v, ok := h.NewBlobFrom(data)
	if !ok {
		t.Fatal("blob alloc failed")
	}
	got := h.BlobBytes(v)
	if len(got) != 5 {
		t.Fatalf("blob length = %d", len(got))
	}
	for i := range data {
		if got[i] != data[i] {
			t.Fatalf("byte %d = %d", i, got[i])
		}
	}

	zero, _ := h.NewBlob(3)
	for _, b := range h.BlobBytes(zero) {
		if b != 0 {
			t.Fatal("fresh blob must be zeroed")
		}
	}
}

func Test_String_Empty(t *testing.T) {
	h := NewHeap(4096)
	v := mustString(t, h, "")
	if h.Str(v) != "" {
		t.Fatal("empty string round-trip failed")
	}
	if v.Type(h) != TString {
		t.Fatal("empty string type")
	}
	// And it survives collection (the min-payload rule keeps room for the
	// forwarding word even with no data).
	h.SetRoot(v)
	h.GarbageCollect()
	if h.Str(h.Root()) != "" {
		t.Fatal("empty string lost across GC")
	}
}
