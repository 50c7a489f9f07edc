package proptree

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"golang.org/x/text/unicode/norm"
)

// Tag bytes for the canonical binary encoding (spec §6: "canonical
// binary serialization stable across platforms"). The tag set is closed
// and intentionally small: one byte per grammar variant, no version
// byte, since the grammar itself is frozen by the spec.
const (
	tagNull byte = iota
	tagFalse
	tagTrue
	tagInt
	tagFloat
	tagString
	tagBytes
	tagList
	tagMap
)

// Encode produces the canonical binary encoding of v. Strings (both bare
// String values and Map keys) are NFC-normalized first, so that the same
// logical text written through different OS text layers on different
// devices encodes identically — this is what lets the merged projection
// treat such keys/values as the same bytes on disk. Map entries are
// written in SortedKeys order so the encoding of a given Map is always
// the same sequence of bytes regardless of construction order.
func Encode(v Value) []byte {
	var buf bytes.Buffer
	encode(&buf, v)
	return buf.Bytes()
}

func encode(buf *bytes.Buffer, v Value) {
	if v == nil {
		buf.WriteByte(tagNull)
		return
	}
	switch val := v.(type) {
	case Bool:
		if val {
			buf.WriteByte(tagTrue)
		} else {
			buf.WriteByte(tagFalse)
		}
	case Int:
		buf.WriteByte(tagInt)
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], uint64(val))
		buf.Write(tmp[:])
	case Float:
		buf.WriteByte(tagFloat)
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], math.Float64bits(float64(val)))
		buf.Write(tmp[:])
	case String:
		buf.WriteByte(tagString)
		writeBytes(buf, []byte(norm.NFC.String(string(val))))
	case Bytes:
		buf.WriteByte(tagBytes)
		writeBytes(buf, val)
	case List:
		buf.WriteByte(tagList)
		writeUvarint(buf, uint64(len(val)))
		for _, elem := range val {
			encode(buf, elem)
		}
	case Map:
		buf.WriteByte(tagMap)
		keys := val.SortedKeys()
		writeUvarint(buf, uint64(len(keys)))
		for _, k := range keys {
			writeBytes(buf, []byte(norm.NFC.String(k)))
			encode(buf, val[k])
		}
	default:
		panic(fmt.Sprintf("proptree: unknown Value type %T", v))
	}
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	writeUvarint(buf, uint64(len(b)))
	buf.Write(b)
}

func writeUvarint(buf *bytes.Buffer, n uint64) {
	var tmp [binary.MaxVarintLen64]byte
	w := binary.PutUvarint(tmp[:], n)
	buf.Write(tmp[:w])
}

// Decode parses bytes produced by Encode back into a Value. It returns an
// error on truncated or malformed input rather than panicking, since
// decode is on the read path for log records recovered from disk
// (§7 Corruption).
func Decode(data []byte) (Value, error) {
	r := bytes.NewReader(data)
	v, err := decode(r)
	if err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("proptree: %d trailing bytes after value", r.Len())
	}
	return v, nil
}

func decode(r *bytes.Reader) (Value, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("proptree: read tag: %w", err)
	}
	switch tag {
	case tagNull:
		return nil, nil
	case tagFalse:
		return Bool(false), nil
	case tagTrue:
		return Bool(true), nil
	case tagInt:
		var tmp [8]byte
		if _, err := readFull(r, tmp[:]); err != nil {
			return nil, fmt.Errorf("proptree: read int: %w", err)
		}
		return Int(int64(binary.BigEndian.Uint64(tmp[:]))), nil
	case tagFloat:
		var tmp [8]byte
		if _, err := readFull(r, tmp[:]); err != nil {
			return nil, fmt.Errorf("proptree: read float: %w", err)
		}
		return Float(math.Float64frombits(binary.BigEndian.Uint64(tmp[:]))), nil
	case tagString:
		b, err := readBytes(r)
		if err != nil {
			return nil, fmt.Errorf("proptree: read string: %w", err)
		}
		return String(b), nil
	case tagBytes:
		b, err := readBytes(r)
		if err != nil {
			return nil, fmt.Errorf("proptree: read bytes: %w", err)
		}
		return Bytes(b), nil
	case tagList:
		n, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("proptree: read list length: %w", err)
		}
		if n > uint64(r.Len()) {
			return nil, fmt.Errorf("proptree: list length %d exceeds %d remaining bytes", n, r.Len())
		}
		list := make(List, 0, n)
		for i := uint64(0); i < n; i++ {
			elem, err := decode(r)
			if err != nil {
				return nil, fmt.Errorf("proptree: list[%d]: %w", i, err)
			}
			list = append(list, elem)
		}
		return list, nil
	case tagMap:
		n, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("proptree: read map length: %w", err)
		}
		if n > uint64(r.Len()) {
			return nil, fmt.Errorf("proptree: map length %d exceeds %d remaining bytes", n, r.Len())
		}
		m := make(Map, n)
		for i := uint64(0); i < n; i++ {
			keyBytes, err := readBytes(r)
			if err != nil {
				return nil, fmt.Errorf("proptree: map key %d: %w", i, err)
			}
			val, err := decode(r)
			if err != nil {
				return nil, fmt.Errorf("proptree: map value for %q: %w", keyBytes, err)
			}
			m[string(keyBytes)] = val
		}
		return m, nil
	default:
		return nil, fmt.Errorf("proptree: unknown tag byte 0x%02x", tag)
	}
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	if n > uint64(r.Len()) {
		return nil, fmt.Errorf("length %d exceeds %d remaining bytes", n, r.Len())
	}
	b := make([]byte, n)
	if _, err := readFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func readFull(r *bytes.Reader, b []byte) (int, error) {
	n, err := r.Read(b)
	if err != nil {
		return n, err
	}
	if n != len(b) {
		return n, fmt.Errorf("short read: got %d want %d", n, len(b))
	}
	return n, nil
}
