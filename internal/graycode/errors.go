package graycode

import "errors"

// Configuration errors. All of them are reported by Decoder.Run before the
// first sample is requested from the source.
var (
	ErrMissingSampleRate     = errors.New("cannot decode without samplerate")
	ErrChannelMapping        = errors.New("assigned channels need to be contiguous")
	ErrInvalidChannelCount   = errors.New("invalid number of channels")
	ErrInvalidWindowCapacity = errors.New("averaging window must hold at least one period")
)

// ErrTimestampOrder is returned by Emitter.Emit for an interval that ends
// before it starts.
var ErrTimestampOrder = errors.New("annotation ends before it starts")
