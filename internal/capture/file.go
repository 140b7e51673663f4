package capture

import (
	"context"
	"fmt"
	"io"
	"os"

	"graydecode/internal/graycode"
)

// File is a capture held entirely in memory, either mapped from disk or
// decompressed into a buffer.
type File struct {
	channelMap
	data    []byte
	pos     int
	edges   edgeDetector
	release func() error
}

var _ graycode.Source = (*File)(nil)

// Open loads the capture at path. Files ending in .zst or .lz4 are
// decompressed; anything else is memory-mapped where the platform allows it.
func Open(path string, enabled uint16) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}
	defer f.Close()

	if c := CodecFor(path); c != CodecNone {
		r, err := NewReader(f, c)
		if err != nil {
			return nil, fmt.Errorf("open %s capture: %w", c, err)
		}
		defer r.Close()
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read %s capture: %w", c, err)
		}
		return FromBytes(data, enabled), nil
	}

	data, release, err := mapFile(f)
	if err != nil {
		return nil, fmt.Errorf("map capture %s: %w", path, err)
	}
	c := FromBytes(data, enabled)
	c.release = release
	return c, nil
}

// FromBytes wraps an in-memory capture.
func FromBytes(data []byte, enabled uint16) *File {
	return &File{channelMap: channelMap(enabled), data: data}
}

// Len returns the number of samples in the capture.
func (c *File) Len() int {
	return len(c.data)
}

// Wait implements graycode.Source.
func (c *File) Wait(ctx context.Context, mask uint16) (graycode.Sample, error) {
	if err := ctx.Err(); err != nil {
		return graycode.Sample{}, err
	}
	for c.pos < len(c.data) {
		i := c.pos
		c.pos++
		if c.edges.accept(c.data[i], mask) {
			return sampleOf(int64(i), c.data[i]), nil
		}
	}
	return graycode.Sample{}, io.EOF
}

// Close releases the mapping, if any. The capture must not be used afterwards.
func (c *File) Close() error {
	c.data = nil
	if c.release == nil {
		return nil
	}
	release := c.release
	c.release = nil
	return release()
}
