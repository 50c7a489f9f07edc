package proptree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := map[string]Value{
		"null":   nil,
		"false":  Bool(false),
		"true":   Bool(true),
		"zero":   Int(0),
		"negint": Int(-42),
		"float":  Float(3.14159),
		"string": String("hello, world"),
		"bytes":  Bytes{0x00, 0x01, 0xff},
		"empty list": List{},
		"list": List{Int(1), String("two"), nil, Bool(true)},
		"map": Map{"a": Int(1), "b": String("two")},
		"nested": Map{
			"list": List{Map{"k": Int(1)}, Map{"k": Int(2)}},
			"nil":  nil,
		},
	}

	for name, v := range cases {
		t.Run(name, func(t *testing.T) {
			encoded := Encode(v)
			decoded, err := Decode(encoded)
			require.NoError(t, err)
			assert.True(t, Equal(v, decoded), "round-trip mismatch for %s: got %#v", name, decoded)
		})
	}
}

func TestEncodeIsDeterministicAcrossMapConstructionOrder(t *testing.T) {
	a := Map{"zebra": Int(1), "apple": Int(2), "mango": Int(3)}
	b := Map{"mango": Int(3), "apple": Int(2), "zebra": Int(1)}
	assert.Equal(t, Encode(a), Encode(b))
}

func TestEncodeNFCNormalizesStrings(t *testing.T) {
	// "é" as a precomposed character vs "e" + combining acute accent.
	precomposed := String("é")
	decomposed := String("é")
	assert.Equal(t, Encode(precomposed), Encode(decomposed))
}

func TestDecodeRejectsTruncatedInput(t *testing.T) {
	encoded := Encode(String("hello"))
	_, err := Decode(encoded[:len(encoded)-2])
	assert.Error(t, err)
}

func TestDecodeRejectsTrailingBytes(t *testing.T) {
	encoded := Encode(Int(1))
	_, err := Decode(append(encoded, 0xff))
	assert.Error(t, err)
}

