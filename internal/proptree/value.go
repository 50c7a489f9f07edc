package proptree

import (
	"slices"
	"unicode/utf16"
)

// Value is a sealed interface representing one node of a property tree.
// Only Bool, Int, Float, String, Bytes, List, and Map implement it; the
// eighth grammar variant, null, is represented by the Go nil interface
// value rather than a wrapper type, so a nil Value is always valid and
// always means "null" — never "uninitialized".
type Value interface {
	isValue()
}

// Bool is a property-tree boolean.
type Bool bool

func (Bool) isValue() {}

// Int is a property-tree 64-bit integer.
type Int int64

func (Int) isValue() {}

// Float is a property-tree double-precision float.
type Float float64

func (Float) isValue() {}

// String is a property-tree UTF-8 string.
type String string

func (String) isValue() {}

// Bytes is a property-tree opaque byte string.
type Bytes []byte

func (Bytes) isValue() {}

// List is an ordered property-tree list. Elements may be nil (null).
type List []Value

func (List) isValue() {}

// Map is a string-keyed property-tree map. Values may be nil (null).
type Map map[string]Value

func (Map) isValue() {}

// SortedKeys returns m's keys in the deterministic order used both by the
// canonical codec and by anything that needs to iterate a Map
// reproducibly (e.g. golden tests). Ordering is by UTF-16 code unit, per
// the same rule the teacher's IRObject.SortedKeys uses for RFC 8785
// canonical JSON, so that key order never depends on Go's map iteration
// or on platform string-comparison quirks.
func (m Map) SortedKeys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

func utf16Units(s string) []uint16 {
	return utf16.Encode([]rune(s))
}

func compareUTF16(a, b string) int {
	a16, b16 := utf16Units(a), utf16Units(b)
	n := len(a16)
	if len(b16) < n {
		n = len(b16)
	}
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	default:
		return 0
	}
}
