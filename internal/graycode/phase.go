package graycode

// MaxChannels is the number of data lines the decoder can track.
const MaxChannels = 8

// DecodePhase returns the binary position encoded by the first n channels.
func DecodePhase(bits []bool, n int) uint32 {
	if n > len(bits) {
		n = len(bits)
	}
	return GrayDecode(BitPack(bits[:n]))
}

// ChannelMask returns the wait mask covering channels 0..n-1.
func ChannelMask(n int) uint16 {
	return uint16(1)<<uint(n) - 1
}

// CircularDelta returns the shortest signed step from oldPhase to newPhase on a
// ring of M = 2^n positions, computed as ((new - old + H) mod M) - H with
// H = M/2 - 1 and a non-negative modulo.
//
// An exact half turn is ambiguous. It takes the sign of the unwrapped
// difference, so delta(0,2) = +2 and delta(2,0) = -2 for n = 2. A single
// channel has no direction information and every change counts as +1.
func CircularDelta(oldPhase, newPhase uint32, n int) int {
	m := 1 << uint(n)
	h := m/2 - 1
	raw := int(newPhase) - int(oldPhase)
	d := (raw + h) % m
	if d < 0 {
		d += m
	}
	d -= h
	if n > 1 && d == m/2 && raw < 0 {
		d = -d
	}
	return d
}
