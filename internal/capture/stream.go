package capture

import (
	"context"
	"errors"
	"io"

	"graydecode/internal/graycode"
)

// Queue defaults for streaming captures.
const (
	DefaultChunkSize  = 64 * 1024
	DefaultQueueDepth = 16
)

// Stream is a capture read incrementally from an io.Reader.
//
// A reader goroutine fills a bounded queue of chunks; Wait consumes them in
// order. When the queue is full the reader blocks, so a slow decoder applies
// back-pressure to the input instead of dropping samples.
type Stream struct {
	channelMap
	chunks  <-chan []byte
	readErr <-chan error

	buf   []byte
	pos   int
	next  int64 // sample index of buf[pos]
	edges edgeDetector
}

var _ graycode.Source = (*Stream)(nil)

// NewStream starts reading r in the background. The reader goroutine exits
// at end of input, on a read error, or when ctx is done.
func NewStream(ctx context.Context, r io.Reader, enabled uint16, chunkSize, depth int) *Stream {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	chunks := make(chan []byte, depth)
	readErr := make(chan error, 1)
	go readChunks(ctx, r, chunkSize, chunks, readErr)

	return &Stream{
		channelMap: channelMap(enabled),
		chunks:     chunks,
		readErr:    readErr,
	}
}

// readChunks copies r into fresh chunks and sends them to the queue.
// The chunks channel is closed when reading stops; a read error other than
// io.EOF is reported on readErr first.
func readChunks(ctx context.Context, r io.Reader, size int, chunks chan<- []byte, readErr chan<- error) {
	defer close(chunks)

	for {
		buf := make([]byte, size)
		n, err := r.Read(buf)
		if n > 0 {
			select {
			case chunks <- buf[:n]:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				readErr <- err
			}
			return
		}
	}
}

// Wait implements graycode.Source.
func (s *Stream) Wait(ctx context.Context, mask uint16) (graycode.Sample, error) {
	if err := ctx.Err(); err != nil {
		return graycode.Sample{}, err
	}
	for {
		for s.pos < len(s.buf) {
			b := s.buf[s.pos]
			idx := s.next
			s.pos++
			s.next++
			if s.edges.accept(b, mask) {
				return sampleOf(idx, b), nil
			}
		}

		select {
		case <-ctx.Done():
			return graycode.Sample{}, ctx.Err()
		case chunk, ok := <-s.chunks:
			if !ok {
				select {
				case err := <-s.readErr:
					return graycode.Sample{}, err
				default:
					return graycode.Sample{}, io.EOF
				}
			}
			s.buf, s.pos = chunk, 0
		}
	}
}
