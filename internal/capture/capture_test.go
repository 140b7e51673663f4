package capture

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graydecode/internal/graycode"
)

var testCapture = []byte{0b00, 0b00, 0b01, 0b101, 0b111, 0b111, 0b110, 0b010}

// drain collects the indices returned by repeated waits on mask, after an
// initial unconditional wait.
func drain(t *testing.T, src graycode.Source, mask uint16) []int64 {
	t.Helper()
	ctx := context.Background()

	first, err := src.Wait(ctx, 0)
	require.NoError(t, err)
	got := []int64{first.Index}
	for {
		s, err := src.Wait(ctx, mask)
		if errors.Is(err, io.EOF) {
			return got
		}
		require.NoError(t, err)
		got = append(got, s.Index)
	}
}

func TestFileWaitsForMaskedEdges(t *testing.T) {
	// Channel 2 changes at 3 and 7 but only channels 0 and 1 are watched.
	got := drain(t, FromBytes(testCapture, AllChannels), 0b11)
	assert.Equal(t, []int64{0, 2, 4, 6}, got)
}

func TestFileUnmaskedWaitReturnsEverySample(t *testing.T) {
	src := FromBytes(testCapture, AllChannels)
	for i := range testCapture {
		s, err := src.Wait(context.Background(), 0)
		require.NoError(t, err)
		assert.Equal(t, int64(i), s.Index)
		assert.Equal(t, uint32(testCapture[i]), graycode.BitPack(s.Bits))
	}
	_, err := src.Wait(context.Background(), 0)
	assert.ErrorIs(t, err, io.EOF)
}

func TestFileHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := FromBytes(testCapture, AllChannels).Wait(ctx, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStreamMatchesFile(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// One-byte reads and a one-slot queue exercise chunk boundaries.
	r := iotest.OneByteReader(bytes.NewReader(testCapture))
	got := drain(t, NewStream(ctx, r, AllChannels, 3, 1), 0b11)
	assert.Equal(t, []int64{0, 2, 4, 6}, got)
}

func TestStreamReportsReadError(t *testing.T) {
	boom := errors.New("boom")
	r := io.MultiReader(bytes.NewReader([]byte{0, 1}), iotest.ErrReader(boom))
	src := NewStream(context.Background(), r, AllChannels, 16, 4)

	_, err := src.Wait(context.Background(), 0)
	require.NoError(t, err)
	_, err = src.Wait(context.Background(), 0b1)
	require.NoError(t, err)
	_, err = src.Wait(context.Background(), 0b1)
	assert.ErrorIs(t, err, boom)
}

func TestStreamCancelWhileBlocked(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	src := NewStream(ctx, pr, AllChannels, 16, 1)
	cancel()

	_, err := src.Wait(ctx, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestChannelSet(t *testing.T) {
	set, err := ChannelSet(nil)
	require.NoError(t, err)
	assert.Equal(t, AllChannels, set)

	set, err = ChannelSet([]int{0, 2})
	require.NoError(t, err)
	assert.Equal(t, uint16(0b101), set)

	m := channelMap(set)
	assert.True(t, m.HasChannel(0))
	assert.False(t, m.HasChannel(1))
	assert.True(t, m.HasChannel(2))
	assert.False(t, m.HasChannel(8))

	_, err = ChannelSet([]int{8})
	assert.Error(t, err)
	_, err = ChannelSet([]int{1, 1})
	assert.Error(t, err)
}

func TestOpenPlainAndCompressed(t *testing.T) {
	dir := t.TempDir()

	for _, name := range []string{"capture.dat", "capture.dat.zst", "capture.dat.lz4"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			writeCapture(t, path, testCapture)

			src, err := Open(path, AllChannels)
			require.NoError(t, err)
			defer src.Close()

			assert.Equal(t, len(testCapture), src.Len())
			assert.Equal(t, []int64{0, 2, 4, 6}, drain(t, src, 0b11))
		})
	}
}

func TestOpenEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.dat")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	src, err := Open(path, AllChannels)
	require.NoError(t, err)
	defer src.Close()

	_, err = src.Wait(context.Background(), 0)
	assert.ErrorIs(t, err, io.EOF)
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.dat"), AllChannels)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseCodec(t *testing.T) {
	for in, want := range map[string]Codec{"": CodecNone, "none": CodecNone, "zstd": CodecZstd, "ZST": CodecZstd, "lz4": CodecLZ4} {
		got, err := ParseCodec(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseCodec("gzip")
	assert.Error(t, err)

	assert.Equal(t, ".zst", CodecZstd.Ext())
	assert.Equal(t, "", CodecNone.Ext())
}

func writeCapture(t *testing.T, path string, data []byte) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w, err := NewWriter(f, CodecFor(path))
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
}
