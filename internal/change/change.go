// Package change defines the immutable Change record: one keyed mutation
// with a timestamp, an optional parent-timestamp back-pointer, and an
// optional property-tree value (spec §4.3).
package change

import (
	"fmt"

	"github.com/parstore/parstore/internal/proptree"
)

// Change is an immutable tuple (timestamp, parent_timestamp?, key, value?).
// Two Changes are compared field-wise by Equal; do not compare with == since
// Value is an interface whose dynamic type may not be comparable (List, Map).
type Change struct {
	Timestamp       int64
	ParentTimestamp *int64
	Key             string
	Value           proptree.Value
}

// New constructs a Change. Key must be non-empty; callers that violate
// this invariant get an obviously wrong record rather than a panic, since
// Change is a pure data type with no validation authority of its own —
// devicelog.Append is what enforces the invariant (the log is the
// boundary that can reject bad input).
func New(timestamp int64, parentTimestamp *int64, key string, value proptree.Value) Change {
	return Change{
		Timestamp:       timestamp,
		ParentTimestamp: parentTimestamp,
		Key:             key,
		Value:           value,
	}
}

// Equal reports whether c and other have identical fields, using
// proptree.Equal for the value and value-equality (not pointer identity)
// for ParentTimestamp.
func (c Change) Equal(other Change) bool {
	if c.Timestamp != other.Timestamp || c.Key != other.Key {
		return false
	}
	if !equalParent(c.ParentTimestamp, other.ParentTimestamp) {
		return false
	}
	return proptree.Equal(c.Value, other.Value)
}

func equalParent(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// ToMap serializes c to a mapping using the fixed field names from
// spec §4.3: timestamp, parentTimestamp, key, propertyList.
func (c Change) ToMap() map[string]any {
	m := map[string]any{
		"timestamp":    c.Timestamp,
		"key":          c.Key,
		"propertyList": c.Value,
	}
	if c.ParentTimestamp != nil {
		m["parentTimestamp"] = *c.ParentTimestamp
	} else {
		m["parentTimestamp"] = nil
	}
	return m
}

// FromMap deserializes a mapping produced by ToMap (or an equivalent
// external source) back into a Change. Missing optional fields
// (parentTimestamp, propertyList) become nil, per spec §4.3.
func FromMap(m map[string]any) (Change, error) {
	ts, err := asInt64(m["timestamp"])
	if err != nil {
		return Change{}, fmt.Errorf("change: timestamp: %w", err)
	}

	key, _ := m["key"].(string)
	if key == "" {
		return Change{}, fmt.Errorf("change: key is required and must be non-empty")
	}

	var parent *int64
	if raw, ok := m["parentTimestamp"]; ok && raw != nil {
		p, err := asInt64(raw)
		if err != nil {
			return Change{}, fmt.Errorf("change: parentTimestamp: %w", err)
		}
		parent = &p
	}

	var value proptree.Value
	if raw, ok := m["propertyList"]; ok && raw != nil {
		v, ok := raw.(proptree.Value)
		if !ok {
			return Change{}, fmt.Errorf("change: propertyList must be a proptree.Value, got %T", raw)
		}
		value = v
	}

	return Change{Timestamp: ts, ParentTimestamp: parent, Key: key, Value: value}, nil
}

func asInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
}
