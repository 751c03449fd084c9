// Package dynamic implements the schema-less record store: tables of
// (id, primary, secondary, value) records created and queried without any
// compile-time type, built on top of the same segment/undo machinery the
// typed index (package index) uses for statically registered object
// types. Each Table is literally an index.Index[Record] underneath, with
// the two extra orderings expressed as ordinary secondary keys — the
// generic Index needed no changes to support records whose schema is
// decided at runtime instead of at compile time.
package dynamic

import (
	"bytes"
	"encoding/gob"

	"github.com/Unhackables/chainbase/index"
)

// CompareMode selects how a 128-bit key field orders relative to other
// records. The source tags each record with one of these but the
// underlying comparators only meaningfully distinguish CompareInteger
// (signed) from everything else; see DESIGN.md for why Unsigned/String/
// Memory share one byte-lexicographic comparator here.
type CompareMode uint8

const (
	CompareInteger CompareMode = iota
	CompareUnsigned
	CompareString
	CompareMemory
)

// Key is the fixed-width representation of a dynamic record's primary or
// secondary field — wide enough for a 128-bit integer, a short string, or
// an arbitrary small blob, per the source's "int128-ish" field.
type Key [16]byte

// KeyFromUint64 zero-extends v into a Key, the common case for numeric
// primary/secondary values.
func KeyFromUint64(v uint64) Key {
	var k Key
	for i := 0; i < 8; i++ {
		k[15-i] = byte(v >> (8 * i))
	}
	return k
}

// KeyFromBytes left-aligns up to 16 bytes of b into a Key, truncating or
// zero-padding as needed — the rendering used for string/memory keys.
func KeyFromBytes(b []byte) Key {
	var k Key
	n := len(b)
	if n > 16 {
		n = 16
	}
	copy(k[:], b[:n])
	return k
}

// orderedBytes renders k for byte-lexicographic comparison under mode.
// CompareInteger flips the sign bit so two's-complement signed values sort
// the same way unsigned byte comparison already sorts Unsigned/String/
// Memory keys.
func orderedBytes(mode CompareMode, k Key) []byte {
	b := make([]byte, 16)
	copy(b, k[:])
	if mode == CompareInteger {
		b[0] ^= 0x80
	}
	return b
}

// Record is one row in a dynamic table.
type Record struct {
	ID        uint64
	Primary   Key
	Secondary Key
	Value     []byte
}

func recordCodec() index.Codec[Record] {
	return index.Codec[Record]{
		Encode: func(r *Record) ([]byte, error) {
			var buf bytes.Buffer
			if err := gob.NewEncoder(&buf).Encode(r); err != nil {
				return nil, err
			}
			return buf.Bytes(), nil
		},
		Decode: func(data []byte) (Record, error) {
			var r Record
			if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&r); err != nil {
				return Record{}, err
			}
			return r, nil
		},
	}
}
