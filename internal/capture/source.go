// Package capture provides sample sources for the decoder.
//
// A capture holds one byte per sample; bit i of the byte is the state of
// channel i. Captures are read from memory-mapped files, compressed files, or
// a streaming reader such as a pipe.
package capture

import (
	"fmt"

	"graydecode/internal/graycode"
)

// AllChannels enables every channel of a byte-wide capture.
const AllChannels uint16 = 0xff

// ChannelSet builds an enabled-channel mask from channel indices.
func ChannelSet(channels []int) (uint16, error) {
	if len(channels) == 0 {
		return AllChannels, nil
	}
	var set uint16
	for _, ch := range channels {
		if ch < 0 || ch >= graycode.MaxChannels {
			return 0, fmt.Errorf("channel %d out of range 0..%d", ch, graycode.MaxChannels-1)
		}
		if set&(1<<uint(ch)) != 0 {
			return 0, fmt.Errorf("channel %d listed twice", ch)
		}
		set |= 1 << uint(ch)
	}
	return set, nil
}

// channelMap implements graycode.ChannelMap over an enabled mask.
type channelMap uint16

func (m channelMap) HasChannel(i int) bool {
	return i >= 0 && i < graycode.MaxChannels && uint16(m)&(1<<uint(i)) != 0
}

// edgeDetector remembers the previous sample and decides whether the next one
// satisfies a wait mask.
type edgeDetector struct {
	prev byte
	seen bool
}

func (e *edgeDetector) accept(b byte, mask uint16) bool {
	changed := e.seen && uint16(b^e.prev)&mask != 0
	e.prev, e.seen = b, true
	return mask == 0 || changed
}

func sampleOf(index int64, b byte) graycode.Sample {
	return graycode.Sample{
		Index: index,
		Bits:  graycode.BitUnpack(uint32(b), graycode.MaxChannels),
	}
}
