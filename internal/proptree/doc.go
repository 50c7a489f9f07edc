// Package proptree implements the property-tree value grammar: the
// recursive null | bool | int64 | f64 | string | bytes | list | map value
// type that every Change carries, plus the canonical binary encoding used
// to persist it and the structural equality used to compare it.
//
// There are exactly eight variants (Null counts as one, represented by a
// nil Value rather than a wrapper type). Nothing outside this package
// should construct a Value by any means other than converting to one of
// the variant types (Bool, Int, Float, String, Bytes, List, Map) or
// Decode, so that switches over the concrete type stay exhaustive.
package proptree
