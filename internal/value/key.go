package value

import (
	"crypto/sha256"
	"encoding/binary"

	"golang.org/x/text/unicode/norm"
)

// Type tags of the canonical encoding. Tags follow the kind order so
// that the encoding of scalars of different kinds never collides.
const (
	tagBool   byte = 'b'
	tagInt    byte = 'i'
	tagString byte = 's'
	tagTuple  byte = 't'
	tagArray  byte = 'a'
)

// hashDomain separates value hashes from any other use of the same bytes.
const hashDomain = "ddflow/value/v1"

// Key returns the canonical byte encoding of v as a string, suitable as a
// map key. Two values have the same Key iff they are structurally equal
// (strings compared after NFC normalization).
func Key(v Value) string {
	return string(AppendKey(nil, v))
}

// nfc returns s in Unicode normalization form C.
func nfc(s string) string {
	if norm.NFC.IsNormalString(s) {
		return s
	}
	return norm.NFC.String(s)
}

// AppendKey appends the canonical encoding of v to buf.
//
// Format: one tag byte followed by a kind-specific payload. Ints are 8
// bytes big-endian, strings and sequences carry a uvarint length prefix.
func AppendKey(buf []byte, v Value) []byte {
	switch x := v.(type) {
	case Bool:
		buf = append(buf, tagBool)
		if x {
			return append(buf, 1)
		}
		return append(buf, 0)
	case Int:
		buf = append(buf, tagInt)
		return binary.BigEndian.AppendUint64(buf, uint64(x))
	case String:
		s := nfc(string(x))
		buf = append(buf, tagString)
		buf = binary.AppendUvarint(buf, uint64(len(s)))
		return append(buf, s...)
	case Tuple:
		buf = append(buf, tagTuple)
		buf = binary.AppendUvarint(buf, uint64(len(x)))
		for _, elem := range x {
			buf = AppendKey(buf, elem)
		}
		return buf
	case Array:
		buf = append(buf, tagArray)
		buf = binary.AppendUvarint(buf, uint64(len(x)))
		for _, elem := range x {
			buf = AppendKey(buf, elem)
		}
		return buf
	default:
		return append(buf, 0)
	}
}

// Hash returns a 64-bit hash of the canonical encoding.
// Used to partition arrangement keys across worker shards.
//
// Format: first 8 bytes of SHA256(domain + 0x00 + key)
func Hash(v Value) uint64 {
	h := sha256.New()
	h.Write([]byte(hashDomain))
	h.Write([]byte{0x00})
	h.Write(AppendKey(nil, v))
	var sum [sha256.Size]byte
	return binary.BigEndian.Uint64(h.Sum(sum[:0]))
}

// Shard maps v to one of n shards. n <= 1 always yields 0.
func Shard(v Value, n int) int {
	if n <= 1 {
		return 0
	}
	return int(Hash(v) % uint64(n))
}
