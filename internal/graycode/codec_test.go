package graycode

import (
	"math/bits"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBitPack(t *testing.T) {
	assert.Equal(t, uint32(0), BitPack(nil))
	assert.Equal(t, uint32(0b101), BitPack([]bool{true, false, true}))
	assert.Equal(t, uint32(0b1000_0000), BitPack([]bool{false, false, false, false, false, false, false, true}))
}

func TestBitUnpack(t *testing.T) {
	assert.Equal(t, []bool{true, false, true}, BitUnpack(0b101, 0))
	assert.Equal(t, []bool{true, false, true, false, false}, BitUnpack(0b101, 5))
	assert.Empty(t, BitUnpack(0, 0))

	for v := uint32(0); v < 256; v++ {
		require.Equal(t, v, BitPack(BitUnpack(v, 8)), "value %d", v)
	}
}

func TestGrayRoundTrip(t *testing.T) {
	for n := 1; n <= 16; n++ {
		for v := uint32(0); v < 1<<uint(n); v++ {
			if got := GrayDecode(GrayEncode(v)); got != v {
				t.Fatalf("n=%d: GrayDecode(GrayEncode(%d)) = %d", n, v, got)
			}
		}
	}
}

func TestGrayEncodeAdjacentCodesDifferByOneBit(t *testing.T) {
	for v := uint32(0); v < 1<<16-1; v++ {
		d := GrayEncode(v) ^ GrayEncode(v+1)
		require.Equal(t, 1, bits.OnesCount32(d), "codes %d and %d", v, v+1)
	}
}

func TestGrayDecodeBitParity(t *testing.T) {
	for g := uint32(0); g < 1<<16; g++ {
		b := GrayDecode(g)
		for i := 0; i < 16; i++ {
			want := uint32(bits.OnesCount32(g>>uint(i)) & 1)
			if got := (b >> uint(i)) & 1; got != want {
				t.Fatalf("GrayDecode(%#x) bit %d = %d, want parity %d", g, i, got, want)
			}
		}
	}
}

func TestGrayDecodeWideCodes(t *testing.T) {
	// Codes wider than 16 bits must not be truncated by the cascade.
	for _, v := range []uint32{1 << 16, 1<<20 | 5, 0xdeadbeef, 0xffffffff} {
		assert.Equal(t, v, GrayDecode(GrayEncode(v)))
	}
}
