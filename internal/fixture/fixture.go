// Package fixture generates synthetic encoder captures for testing the
// decoder.
//
// A profile produces the encoder position, in steps, at every sample. The
// position is truncated to a byte and Gray-coded, either across all eight
// channels (an absolute encoder) or across the low two bits (a quadrature
// encoder).
package fixture

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"graydecode/internal/capture"
	"graydecode/internal/graycode"
)

// Profile is a motion sampled at a fixed rate.
type Profile interface {
	// Steps returns the encoder position at each sample.
	Steps() []int64
	// SampleRate returns the sampling frequency in Hz.
	SampleRate() uint64
}

// ============================================================================
// Ramp
// ============================================================================

// Ramp accelerates from rest at AMax until it reaches VMax, then decelerates
// symmetrically back to rest.
type Ramp struct {
	VMax         float64 // units/s
	AMax         float64 // units/s²
	Dt           float64 // sample period, s
	StepsPerUnit float64
}

// DefaultRamp is a 45 mm diameter wheel with 20000 steps per
// circumference, sampled at 1 MHz.
func DefaultRamp() Ramp {
	return Ramp{
		VMax:         0.3,
		AMax:         1.0,
		Dt:           1e-6,
		StepsPerUnit: 20000 / (math.Pi * 45e-3),
	}
}

// SampleRate implements Profile.
func (r Ramp) SampleRate() uint64 { return rateOf(r.Dt) }

// Positions returns the position in units at each sample.
func (r Ramp) Positions() []float64 {
	rampT := r.VMax / r.AMax
	n := int(math.Round(rampT / r.Dt))
	top := r.VMax * r.VMax / r.AMax

	x := make([]float64, 2*n)
	for i := 0; i < n; i++ {
		t := float64(i) * r.Dt
		x[i] = 0.5 * r.AMax * t * t
	}
	for i := 0; i < n; i++ {
		t := rampT - float64(i)*r.Dt
		x[n+i] = top - 0.5*r.AMax*t*t
	}
	return x
}

// Steps implements Profile. Positions are truncated toward zero.
func (r Ramp) Steps() []int64 {
	x := r.Positions()
	steps := make([]int64, len(x))
	for i, v := range x {
		steps[i] = int64(v * r.StepsPerUnit)
	}
	return steps
}

// ============================================================================
// Sine
// ============================================================================

// Sine oscillates around Offset with the given Amplitude, in steps.
type Sine struct {
	Frequency float64 // Hz
	Duration  float64 // s
	Dt        float64 // sample period, s
	Offset    float64
	Amplitude float64
}

// DefaultSine is two periods of a 1 Hz oscillation spanning the byte range,
// sampled at 1 MHz.
func DefaultSine() Sine {
	return Sine{
		Frequency: 1,
		Duration:  2,
		Dt:        1e-6,
		Offset:    127,
		Amplitude: 127,
	}
}

// SampleRate implements Profile.
func (s Sine) SampleRate() uint64 { return rateOf(s.Dt) }

// Steps implements Profile. Positions are rounded half to even.
func (s Sine) Steps() []int64 {
	n := int(math.Round(s.Duration / s.Dt))
	steps := make([]int64, n)
	for i := range steps {
		t := float64(i) * s.Dt
		steps[i] = int64(math.RoundToEven(s.Offset + s.Amplitude*math.Sin(2*math.Pi*s.Frequency*t)))
	}
	return steps
}

func rateOf(dt float64) uint64 {
	if dt <= 0 {
		return 0
	}
	return uint64(math.Round(1 / dt))
}

// ============================================================================
// Encoding and output
// ============================================================================

// GrayBytes Gray-codes the low bits of each position, one byte per sample.
func GrayBytes(steps []int64, bits int) []byte {
	mask := uint32(1)<<uint(bits) - 1
	out := make([]byte, len(steps))
	for i, s := range steps {
		out[i] = byte(graycode.GrayEncode(uint32(s) & mask))
	}
	return out
}

// Write stores a capture at path, compressed according to its extension.
// The file is written to a temporary name and renamed into place.
func Write(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	w, err := capture.NewWriter(tmp, capture.CodecFor(path))
	if err != nil {
		return err
	}
	if _, err = w.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("flush %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// Output is one generated fixture file.
type Output struct {
	Name    string
	Profile Profile
	Bits    int
}

// StandardOutputs lists the fixture set: each default profile as an 8-bit
// absolute capture and as a 2-bit quadrature capture.
func StandardOutputs() []Output {
	ramp, sine := DefaultRamp(), DefaultSine()
	return []Output{
		{Name: "graycode-ramp.dat", Profile: ramp, Bits: graycode.MaxChannels},
		{Name: "rotary-ramp.dat", Profile: ramp, Bits: 2},
		{Name: "graycode-sin.dat", Profile: sine, Bits: graycode.MaxChannels},
		{Name: "rotary-sin.dat", Profile: sine, Bits: 2},
	}
}

// Generate writes outputs into dir and returns the paths written. A codec
// other than CodecNone appends its extension to every name.
func Generate(dir string, outputs []Output, codec capture.Codec, logger *slog.Logger) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	// Profiles are shared between outputs; compute each one once.
	cache := make(map[Profile][]int64)
	var paths []string
	for _, o := range outputs {
		steps, ok := cache[o.Profile]
		if !ok {
			steps = o.Profile.Steps()
			cache[o.Profile] = steps
		}

		path := filepath.Join(dir, o.Name+codec.Ext())
		if err := Write(path, GrayBytes(steps, o.Bits)); err != nil {
			return paths, err
		}
		if logger != nil {
			logger.Info("fixture written",
				"path", path,
				"samples", len(steps),
				"bits", o.Bits,
				"samplerate", o.Profile.SampleRate())
		}
		paths = append(paths, path)
	}
	return paths, nil
}
