// Package fingerprint captures the compact, fixed-layout record written
// into a segment at create time and checked byte-for-byte on every later
// open. The file contains offsets relative to the mapping's base address
// and fields sized to the creating process's word size, so any mismatch
// between the fingerprint stored on disk and the current process's own
// fingerprint makes the file unsafe to interpret.
package fingerprint

import (
	"encoding/binary"
	"unsafe"

	"github.com/cespare/xxhash/v2"
)

// Size is the fixed on-disk size of a Fingerprint record, including its
// trailing checksum.
const Size = 24

// LayoutVersion bumps whenever the segment header, allocator block format,
// or index encoding changes shape in an incompatible way.
const LayoutVersion uint16 = 1

// BuildTag identifies this module's own wire format, independent of the Go
// toolchain version used to build it.
const BuildTag uint16 = 0x5110 // "SILO"

// Fingerprint is the value compared on open.
type Fingerprint struct {
	BigEndian   bool
	PointerSize uint8
	SizeTSize   uint8
	BuildTag    uint16
	LayoutTag   uint16
}

// Current returns the fingerprint of the running process.
func Current() Fingerprint {
	var x uint16 = 1
	buf := (*[2]byte)(unsafe.Pointer(&x))
	bigEndian := buf[0] == 0

	return Fingerprint{
		BigEndian:   bigEndian,
		PointerSize: uint8(unsafe.Sizeof(uintptr(0))),
		SizeTSize:   uint8(unsafe.Sizeof(uint(0))),
		BuildTag:    BuildTag,
		LayoutTag:   LayoutVersion,
	}
}

// Encode serializes f into a Size-byte record, appending an xxhash64
// checksum over the preceding bytes so that corruption of a single byte
// anywhere in the record is caught even if it happens to still look like a
// plausible fingerprint.
func (f Fingerprint) Encode() [Size]byte {
	var out [Size]byte
	if f.BigEndian {
		out[0] = 1
	}
	out[1] = f.PointerSize
	out[2] = f.SizeTSize
	binary.LittleEndian.PutUint16(out[4:6], f.BuildTag)
	binary.LittleEndian.PutUint16(out[6:8], f.LayoutTag)

	sum := xxhash.Sum64(out[:8])
	binary.LittleEndian.PutUint64(out[8:16], sum)
	return out
}

// Decode parses a Size-byte record, validates its checksum, and rejects
// any nonzero byte in the unused tail after the checksum.
func Decode(b []byte) (Fingerprint, bool) {
	if len(b) < Size {
		return Fingerprint{}, false
	}
	sum := xxhash.Sum64(b[:8])
	if binary.LittleEndian.Uint64(b[8:16]) != sum {
		return Fingerprint{}, false
	}
	for _, c := range b[16:Size] {
		if c != 0 {
			return Fingerprint{}, false
		}
	}
	f := Fingerprint{
		BigEndian:   b[0] == 1,
		PointerSize: b[1],
		SizeTSize:   b[2],
		BuildTag:    binary.LittleEndian.Uint16(b[4:6]),
		LayoutTag:   binary.LittleEndian.Uint16(b[6:8]),
	}
	return f, true
}

// Matches reports whether a decoded on-disk fingerprint is compatible with
// the current process's own fingerprint. Every field must match exactly;
// there is no forward or backward compatibility between layout versions.
func (f Fingerprint) Matches(other Fingerprint) bool {
	return f == other
}
