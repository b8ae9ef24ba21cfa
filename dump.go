// dump.go — human-readable heap and value dumps. Debugging aids, not part
// of the correctness surface.
package smol

import (
	"fmt"
	"io"
	"strings"
)

// FormatValue renders a one-line description of v.
func FormatValue(h *Heap, v Value) string {
	switch v.Type(h) {
	case TNull:
		if v.IsNullish() {
			return "nullish"
		}
		return "null"
	case TBool:
		if v.AsBool() {
			return "true"
		}
		return "false"
	case TInt, TBigInt:
		return fmt.Sprintf("%d", h.AsInt(v))
	case TFloat:
		return fmt.Sprintf("%g", h.AsFloat(v))
	case TString:
		return fmt.Sprintf("%q", h.Str(v))
	case TSymbol:
		return "«" + h.Str(v) + "»"
	case TBlob:
		data := h.BlobBytes(v)
		if len(data) > 16 {
			return fmt.Sprintf("blob<%x…>(%d bytes)", data[:16], len(data))
		}
		return fmt.Sprintf("blob<%x>", data)
	case TArray:
		var b strings.Builder
		b.WriteString("[")
		for i, n := 0, h.ArrayLen(v); i < n; i++ {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(FormatValue(h, h.Elem(v, i)))
		}
		b.WriteString("]")
		return b.String()
	case TVector:
		var b strings.Builder
		fmt.Fprintf(&b, "vector[%d/%d:", h.VecLen(v), h.VecCap(v))
		for i, n := 0, h.VecLen(v); i < n; i++ {
			if i > 0 {
				b.WriteString(",")
			}
			b.WriteString(" " + FormatValue(h, h.VecElem(v, i)))
		}
		b.WriteString("]")
		return b.String()
	case TDict:
		var b strings.Builder
		b.WriteString("{")
		for i, n := 0, h.DictCount(v); i < n; i++ {
			if i > 0 {
				b.WriteString(", ")
			}
			key, val := h.DictEntryAt(v, i)
			b.WriteString(FormatValue(h, key) + ": " + FormatValue(h, val))
		}
		b.WriteString("}")
		return b.String()
	}
	return "?invalid?"
}

// Dump writes a listing of every block in the heap, reachable or not.
func (h *Heap) Dump(w io.Writer) {
	fmt.Fprintf(w, "heap: %d/%d bytes used, root %s\n",
		h.Used(), h.Capacity(), FormatValue(h, h.Root()))
	h.VisitAll(func(b Pos) bool {
		t := h.blockType(b)
		fmt.Fprintf(w, "%8d  %-7s %7d bytes  %s\n",
			uint32(b), t.String(), h.blockSize(b), FormatValue(h, objValue(b)))
		return true
	})
}
