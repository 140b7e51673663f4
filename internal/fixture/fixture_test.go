package fixture

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graydecode/internal/annotate"
	"graydecode/internal/capture"
	"graydecode/internal/graycode"
)

// decodeCounts runs the decoder over data and returns the recorded count
// annotations together with the summary.
func decodeCounts(t *testing.T, data []byte, enabled uint16, cfg graycode.Config, rate uint64) ([]graycode.Annotation, graycode.Summary) {
	t.Helper()
	var rec annotate.Recorder
	dec := graycode.New(cfg, nil)
	dec.SetSampleRate(rate)

	sum, err := dec.Run(context.Background(), capture.FromBytes(data, enabled), &rec)
	require.NoError(t, err)
	return rec.Category(graycode.CategoryCount), sum
}

func requireCountsTrack(t *testing.T, steps []int64, counts []graycode.Annotation) {
	t.Helper()
	require.NotEmpty(t, counts)
	for _, a := range counts {
		got, err := strconv.ParseInt(a.Text, 10, 64)
		require.NoError(t, err)
		want := steps[a.End] - steps[0]
		if got < want-1 || got > want+1 {
			t.Fatalf("count at sample %d = %d, want %d ± 1", a.End, got, want)
		}
	}
}

func TestRampPositions(t *testing.T) {
	r := DefaultRamp()
	x := r.Positions()

	require.Len(t, x, 600000)
	assert.Equal(t, 0.0, x[0])
	assert.InDelta(t, 0.09, x[len(x)-1], 1e-9)
	for i := 1; i < len(x); i++ {
		if x[i] < x[i-1] {
			t.Fatalf("position decreases at sample %d", i)
		}
	}
	assert.Equal(t, uint64(1000000), r.SampleRate())
}

func TestSineSteps(t *testing.T) {
	s := Sine{Frequency: 1, Duration: 1, Dt: 1e-3, Offset: 127, Amplitude: 127}
	steps := s.Steps()

	require.Len(t, steps, 1000)
	assert.Equal(t, int64(127), steps[0])
	assert.Equal(t, int64(254), steps[250])
	assert.Equal(t, int64(0), steps[750])
}

func TestGrayBytesMasksLowBits(t *testing.T) {
	steps := []int64{0, 1, 2, 3, 4, 5, 255, 256, -1}
	assert.Equal(t, []byte{0, 1, 3, 2, 0, 1, 2, 0, 2}, GrayBytes(steps, 2))
	assert.Equal(t, []byte{0, 1, 3, 2, 6, 7, 0x80, 0, 0x80}, GrayBytes(steps, 8))
}

func TestRampDecodesToSteps(t *testing.T) {
	r := DefaultRamp()
	steps := r.Steps()

	cfg := graycode.DefaultConfig()
	cfg.NumChannels = graycode.MaxChannels
	counts, sum := decodeCounts(t, GrayBytes(steps, graycode.MaxChannels), capture.AllChannels, cfg, r.SampleRate())

	requireCountsTrack(t, steps, counts)
	assert.InDelta(t, steps[len(steps)-1]-steps[0], sum.Count, 1)
	assert.Equal(t, sum.Edges, int64(len(counts)))
}

func TestRotarySineDecodesToSteps(t *testing.T) {
	s := DefaultSine()
	s.Duration = 1
	steps := s.Steps()

	// Auto-detect two channels from the enabled map.
	enabled, err := capture.ChannelSet([]int{0, 1})
	require.NoError(t, err)
	cfg := graycode.DefaultConfig()
	cfg.PulsesPerRevolution = 4

	counts, sum := decodeCounts(t, GrayBytes(steps, 2), enabled, cfg, s.SampleRate())

	assert.Equal(t, 2, sum.Channels)
	assert.True(t, sum.TurnsEnabled)
	requireCountsTrack(t, steps, counts)
	assert.Equal(t, steps[sum.LastIndex]-steps[0], sum.Count)
	turns, _ := graycode.TurnsOf(sum.Count, 4)
	assert.Equal(t, turns, sum.Turns)
}

func TestGenerateWritesReadableCaptures(t *testing.T) {
	dir := t.TempDir()
	sine := Sine{Frequency: 5, Duration: 0.5, Dt: 1e-4, Offset: 127, Amplitude: 127}
	outputs := []Output{
		{Name: "graycode-sin.dat", Profile: sine, Bits: 8},
		{Name: "rotary-sin.dat", Profile: sine, Bits: 2},
	}

	for _, codec := range []capture.Codec{capture.CodecNone, capture.CodecZstd, capture.CodecLZ4} {
		name := string(codec)
		if codec == capture.CodecNone {
			name = "none"
		}
		t.Run(name, func(t *testing.T) {
			paths, err := Generate(filepath.Join(dir, "out"+codec.Ext()), outputs, codec, nil)
			require.NoError(t, err)
			require.Len(t, paths, 2)

			for i, p := range paths {
				assert.Equal(t, outputs[i].Name+codec.Ext(), filepath.Base(p))

				src, err := capture.Open(p, capture.AllChannels)
				require.NoError(t, err)
				assert.Equal(t, GrayBytes(sine.Steps(), outputs[i].Bits), readAll(t, src))
				require.NoError(t, src.Close())
			}
		})
	}
}

func TestWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Write(filepath.Join(dir, "x.dat.zst"), []byte{1, 2, 3}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "x.dat.zst", entries[0].Name())
}

func readAll(t *testing.T, src *capture.File) []byte {
	t.Helper()
	out := make([]byte, 0, src.Len())
	for {
		s, err := src.Wait(context.Background(), 0)
		if err != nil {
			return out
		}
		out = append(out, byte(graycode.BitPack(s.Bits)))
	}
}
