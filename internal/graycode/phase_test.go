package graycode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCircularDelta(t *testing.T) {
	cases := []struct {
		name     string
		old, new uint32
		n        int
		want     int
	}{
		{"backward wrap", 0, 3, 2, -1},
		{"forward", 0, 1, 2, 1},
		{"half turn forward", 0, 2, 2, 2},
		{"half turn backward", 2, 0, 2, -2},
		{"forward wrap", 3, 0, 2, 1},
		{"backward", 1, 0, 2, -1},
		{"no change", 2, 2, 2, 0},
		{"8 bit forward wrap", 255, 0, 8, 1},
		{"8 bit backward wrap", 0, 255, 8, -1},
		{"8 bit jump", 10, 20, 8, 10},
		{"8 bit largest backward", 200, 73, 8, -127},
		{"single channel rise", 0, 1, 1, 1},
		{"single channel fall", 1, 0, 1, 1},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, CircularDelta(c.old, c.new, c.n))
		})
	}
}

func TestCircularDeltaRange(t *testing.T) {
	for n := 2; n <= MaxChannels; n++ {
		m := 1 << uint(n)
		h := m/2 - 1
		for o := 0; o < m; o++ {
			for p := 0; p < m; p++ {
				d := CircularDelta(uint32(o), uint32(p), n)
				if d < -(h+1) || d > m/2 {
					t.Fatalf("n=%d delta(%d,%d)=%d out of range", n, o, p, d)
				}
				if ((o+d)%m+m)%m != p {
					t.Fatalf("n=%d delta(%d,%d)=%d does not land on the new phase", n, o, p, d)
				}
			}
		}
	}
}

func TestDecodePhase(t *testing.T) {
	// Gray 0b11 on two channels is binary 2.
	assert.Equal(t, uint32(2), DecodePhase([]bool{true, true, false, true}, 2))
	assert.Equal(t, uint32(0), DecodePhase([]bool{false}, 4))

	for v := uint32(0); v < 256; v++ {
		assert.Equal(t, v, DecodePhase(BitUnpack(GrayEncode(v), 8), 8))
	}
}

func TestChannelMask(t *testing.T) {
	assert.Equal(t, uint16(0b1), ChannelMask(1))
	assert.Equal(t, uint16(0b11), ChannelMask(2))
	assert.Equal(t, uint16(0xff), ChannelMask(8))
}
