// json.go — JSON ↔ heap bridge.
//
// WHAT THIS FILE PROVIDES
// =======================
// Two entry points connecting heap values to JSON text:
//
//   - FromJSON(h, data) (Value, error)
//     Parses JSON and materializes it in the heap: objects become Dicts
//     keyed by interned Symbols, arrays become Arrays, strings become
//     Strings, numbers become inline ints / BigInts / Floats, booleans map
//     to the inline booleans, and JSON null becomes the *nullish* value —
//     null proper is reserved for "no value" (absent dict entries, empty
//     array slots).
//
//   - ToJSON(h, v) ([]byte, error)
//     Renders a value graph back out. Symbols render as strings, Blobs as
//     base64 strings, Vectors as arrays. Dict member order follows the
//     dict's identity order, which is not stable across collections;
//     consumers must not rely on member order (per JSON semantics).
//
// Decoding goes through encoding/json with UseNumber so large integers
// survive; they land as BigInt blocks when outside the inline range.
package smol

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

var errJSONHeapFull = errors.New("heap exhausted while materializing JSON")

// FromJSON parses data and builds the corresponding value graph in h.
func FromJSON(h *Heap, data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return NullValue, fmt.Errorf("parsing JSON: %w", err)
	}
	return jsonToValue(h, doc)
}

func jsonToValue(h *Heap, doc any) (Value, error) {
	switch x := doc.(type) {
	case nil:
		return NullishValue, nil
	case bool:
		return BoolValue(x), nil
	case string:
		v, ok := h.NewString(x)
		if !ok {
			return NullValue, errJSONHeapFull
		}
		return v, nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			v, ok := h.NewInt(i)
			if !ok {
				return NullValue, errJSONHeapFull
			}
			return v, nil
		}
		f, err := x.Float64()
		if err != nil {
			return NullValue, fmt.Errorf("unrepresentable number %q", x.String())
		}
		v, ok := h.NewFloat(f)
		if !ok {
			return NullValue, errJSONHeapFull
		}
		return v, nil
	case []any:
		arr, ok := h.NewArray(len(x))
		if !ok {
			return NullValue, errJSONHeapFull
		}
		// Pin the array: building elements allocates, which may collect.
		pin := []Value{arr}
		h.RegisterExternalRoots(pin)
		defer h.UnregisterExternalRoots(pin)
		for i, item := range x {
			elem, err := jsonToValue(h, item)
			if err != nil {
				return NullValue, err
			}
			h.SetElem(pin[0], i, elem)
		}
		return pin[0], nil
	case map[string]any:
		d, ok := h.NewDict(len(x))
		if !ok {
			return NullValue, errJSONHeapFull
		}
		// pin[0] is the dict, pin[1] the key symbol: building the member
		// value can allocate, and a collection would move both.
		pin := []Value{d, NullValue}
		h.RegisterExternalRoots(pin)
		defer h.UnregisterExternalRoots(pin)
		for k, item := range x {
			sym, ok := h.Intern(k)
			if !ok {
				return NullValue, errJSONHeapFull
			}
			pin[1] = sym
			elem, err := jsonToValue(h, item)
			if err != nil {
				return NullValue, err
			}
			if !h.DictSet(pin[0], pin[1], elem) {
				return NullValue, fmt.Errorf("dict unexpectedly full at key %q", k)
			}
		}
		return pin[0], nil
	default:
		return NullValue, fmt.Errorf("unsupported JSON value %T", doc)
	}
}

// ToJSON renders v (a value in h) as JSON text.
func ToJSON(h *Heap, v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeJSON(h, &buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeJSON(h *Heap, buf *bytes.Buffer, v Value) error {
	switch v.Type(h) {
	case TNull:
		buf.WriteString("null")
	case TBool:
		if v.AsBool() {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case TInt, TBigInt:
		buf.WriteString(strconv.FormatInt(h.AsInt(v), 10))
	case TFloat:
		buf.WriteString(strconv.FormatFloat(h.AsFloat(v), 'g', -1, 64))
	case TString, TSymbol:
		return writeJSONString(buf, h.Str(v))
	case TBlob:
		return writeJSONString(buf, base64.StdEncoding.EncodeToString(h.BlobBytes(v)))
	case TArray:
		buf.WriteByte('[')
		for i, n := 0, h.ArrayLen(v); i < n; i++ {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSON(h, buf, h.Elem(v, i)); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case TVector:
		buf.WriteByte('[')
		for i, n := 0, h.VecLen(v); i < n; i++ {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSON(h, buf, h.VecElem(v, i)); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case TDict:
		buf.WriteByte('{')
		for i, n := 0, h.DictCount(v); i < n; i++ {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, val := h.DictEntryAt(v, i)
			if err := writeJSONString(buf, h.Str(key)); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeJSON(h, buf, val); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("value of type %s is not JSON-representable", v.Type(h))
	}
	return nil
}

func writeJSONString(buf *bytes.Buffer, s string) error {
	q, err := json.Marshal(s)
	if err != nil {
		return err
	}
	buf.Write(q)
	return nil
}
