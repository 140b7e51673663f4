package graycode

import "fmt"

// Default rolling-average window, in edges.
const DefaultWindowCapacity = 10

// Config holds the decoder options.
type Config struct {
	// NumChannels is the number of Gray-coded data lines, 1..MaxChannels.
	// Zero auto-detects the contiguous run of enabled channels starting at 0.
	NumChannels int

	// PulsesPerRevolution is the number of encoder steps in one turn.
	// Zero disables the turns and rpm outputs.
	PulsesPerRevolution int

	// WindowCapacity is the number of periods averaged by the rolling window.
	WindowCapacity int
}

// DefaultConfig returns the decoder defaults: auto-detected channels, no
// turns, and a 10-edge averaging window.
func DefaultConfig() Config {
	return Config{
		WindowCapacity: DefaultWindowCapacity,
	}
}

// Validate checks the options that do not depend on the channel map.
func (c Config) Validate() error {
	if c.NumChannels < 0 || c.NumChannels > MaxChannels {
		return fmt.Errorf("%w: %d (must be 0 for auto-detect or 1..%d)", ErrInvalidChannelCount, c.NumChannels, MaxChannels)
	}
	if c.PulsesPerRevolution < 0 {
		return fmt.Errorf("pulses per revolution must be >= 0, got %d", c.PulsesPerRevolution)
	}
	if c.WindowCapacity < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidWindowCapacity, c.WindowCapacity)
	}
	return nil
}

// ChannelMap reports which input channels the host has assigned.
type ChannelMap interface {
	HasChannel(i int) bool
}

// ResolveChannels returns the number of channels to decode.
//
// An explicit count in 1..MaxChannels is returned as is. Zero counts the
// enabled channels among 0..MaxChannels-1, which must form a prefix with no
// gaps.
func ResolveChannels(numChannels int, cm ChannelMap) (int, error) {
	if numChannels != 0 {
		if numChannels < 1 || numChannels > MaxChannels {
			return 0, fmt.Errorf("%w: %d (must be 1..%d)", ErrInvalidChannelCount, numChannels, MaxChannels)
		}
		return numChannels, nil
	}

	n := 0
	for i := 0; i < MaxChannels; i++ {
		if cm.HasChannel(i) {
			n++
		}
	}
	for i := 0; i < MaxChannels; i++ {
		if cm.HasChannel(i) != (i < n) {
			return 0, fmt.Errorf("%w: channel %d breaks the prefix of %d", ErrChannelMapping, i, n)
		}
	}
	if n < 1 {
		return 0, fmt.Errorf("%w: no channels assigned", ErrInvalidChannelCount)
	}
	return n, nil
}
