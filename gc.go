// gc.go — the copying garbage collector.
//
// A Collector evacuates every block reachable from a heap's root (plus the
// symbol table and any registered external roots) into a companion heap,
// leaving forwarding positions behind in the from-space, then swaps the two
// heaps' backing memory so the caller's handle observes the compacted data.
//
// Evacuation is the classic forwarding-pointer walk: moving a block first,
// then scanning its value fields, re-encountering already-moved blocks via
// their forwarding word (which also terminates cycles). The forwarding word
// overwrites the first four payload bytes of the from-space block, so for
// blocks whose payload is value words the first field is read *before* the
// forwarding word is installed.
//
// While a Collector is live the from-heap must not be touched except
// through the Collector's own Scan/Update methods; Finish ends its life.
package smol

// Collector copies the live set of a heap into a companion heap.
// Construct with NewCollector or NewCollectorInto, fix up any stray
// outside references with Scan/Update, then call Finish exactly once.
type Collector struct {
	from, to *Heap
	done     bool
}

// NewCollector collects h in place: the live set is evacuated into an
// internal temporary heap of equal capacity, and Finish swaps it into h.
func NewCollector(h *Heap) *Collector {
	gc := &Collector{from: h, to: NewHeap(h.Capacity())}
	gc.scanRoots()
	return gc
}

// NewCollectorInto collects from into the caller-supplied to heap, which
// is reset first. After Finish, from holds the compacted data and to holds
// the old space, reset for reuse.
func NewCollectorInto(from, to *Heap) *Collector {
	to.Reset()
	gc := &Collector{from: from, to: to}
	gc.scanRoots()
	return gc
}

func (gc *Collector) scanRoots() {
	// A forwarded block in the from-space means a previous collection
	// never finished; that heap is unusable.
	gc.from.VisitAll(func(b Pos) bool {
		if gc.from.isForwarded(b) {
			panic("smol: from-space already contains forwarded blocks")
		}
		return true
	})
	gc.from.collecting = true
	gc.to.SetRoot(gc.Scan(gc.from.Root()))
	gc.from.symbols = gc.Scan(gc.from.symbols)
	for _, run := range gc.from.extRoots {
		for i := range run {
			run[i] = gc.Scan(run[i])
		}
	}
}

// Scan returns the to-space equivalent of a from-space value, evacuating
// its target (and everything reachable from it) if it hasn't been moved
// yet. Inline values come back unchanged.
func (gc *Collector) Scan(v Value) Value {
	if !v.IsObject() {
		return v
	}
	return objValue(gc.scanBlock(v.Pos()))
}

// Update rewrites a value slot held outside the heap in place.
func (gc *Collector) Update(slot *Value) {
	*slot = gc.Scan(*slot)
}

func (gc *Collector) scanBlock(src Pos) Pos {
	from, to := gc.from, gc.to
	if from.isForwarded(src) {
		return from.forwardingPos(src)
	}
	t := from.blockType(src)
	size := from.blockSize(src)
	dst := to.allocBlock(size, t)
	if dst == NullPos {
		// Live set exceeds the destination capacity; with equal
		// capacities this cannot happen.
		panic("smol: destination heap exhausted during collection")
	}
	srcPay, dstPay := from.blockPayload(src), to.blockPayload(dst)
	if typeHoldsVals(t) && size >= valSize {
		n := size / valSize
		first := from.Val(srcPay) // forwarding clobbers this word
		from.setForwarded(src, dst)
		to.SetVal(dstPay, gc.Scan(first))
		for i := uint32(1); i < n; i++ {
			slot := Pos(i * valSize)
			to.SetVal(dstPay+slot, gc.Scan(from.Val(srcPay+slot)))
		}
		if t == TDict {
			// Dict order is key identity; relocation scrambled it.
			to.sortDict(dst)
		}
	} else {
		copy(to.buf[dstPay:uint32(dstPay)+size], from.buf[srcPay:uint32(srcPay)+size])
		from.setForwarded(src, dst)
	}
	return dst
}

// Finish swaps the two heaps' backing memory — the from handle now holds
// the compacted data — and resets the old space for reuse.
func (gc *Collector) Finish() {
	if gc.done {
		panic("smol: collector finished twice")
	}
	gc.done = true
	from, to := gc.from, gc.to
	from.collecting = false
	from.buf, to.buf = to.buf, from.buf
	from.cur, to.cur = to.cur, from.cur
	from.end, to.end = to.end, from.end
	from.owned, to.owned = to.owned, from.owned
	to.Reset()
}

// GarbageCollect compacts the heap in place through a temporary heap of
// equal capacity.
func (h *Heap) GarbageCollect() {
	NewCollector(h).Finish()
}

// GarbageCollectTo compacts the heap into dst, then swaps, leaving dst
// reset as the next collection's destination.
func (h *Heap) GarbageCollectTo(dst *Heap) {
	NewCollectorInto(h, dst).Finish()
}
