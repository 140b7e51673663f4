package graycode

// BitPack packs channel states into an integer: bit i of the result is bits[i].
func BitPack(bits []bool) uint32 {
	var v uint32
	for i, b := range bits {
		if b {
			v |= 1 << uint(i)
		}
	}
	return v
}

// BitUnpack is the inverse of BitPack. It returns at least minBits entries and
// keeps going while higher bits of v are still set.
func BitUnpack(v uint32, minBits int) []bool {
	bits := make([]bool, 0, max(minBits, 8))
	for v != 0 || minBits > 0 {
		bits = append(bits, v&1 != 0)
		v >>= 1
		minBits--
	}
	return bits
}

// GrayEncode returns the reflected binary Gray code of b.
func GrayEncode(b uint32) uint32 {
	return b ^ (b >> 1)
}

// GrayDecode converts a Gray code back to plain binary.
//
// Bit i of the result is the parity of bits i..31 of g. The cascade doubles the
// shift each round so every bit of a 32-bit word is folded in; a fixed 8/4/2/1
// sequence would silently truncate codes wider than 16 bits.
func GrayDecode(g uint32) uint32 {
	for shift := uint(1); shift < 32; shift <<= 1 {
		g ^= g >> shift
	}
	return g
}
