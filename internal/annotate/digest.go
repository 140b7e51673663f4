package annotate

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"graydecode/internal/graycode"
)

// Digest hashes the annotation stream with xxhash64 so two decodes can be
// compared without storing their output. Start, end and category are hashed
// as fixed-width fields followed by the text and a separator.
type Digest struct {
	h *xxhash.Digest
	n int64
}

// NewDigest returns an empty digest sink.
func NewDigest() *Digest {
	return &Digest{h: xxhash.New()}
}

// Put implements graycode.Sink.
func (d *Digest) Put(a graycode.Annotation) error {
	var hdr [20]byte
	binary.LittleEndian.PutUint64(hdr[0:], uint64(a.Start))
	binary.LittleEndian.PutUint64(hdr[8:], uint64(a.End))
	binary.LittleEndian.PutUint32(hdr[16:], uint32(a.Category))
	_, _ = d.h.Write(hdr[:])
	_, _ = d.h.WriteString(a.Text)
	_, _ = d.h.Write([]byte{0})
	d.n++
	return nil
}

// Sum64 returns the digest of everything written so far.
func (d *Digest) Sum64() uint64 {
	return d.h.Sum64()
}

// Count returns the number of annotations hashed.
func (d *Digest) Count() int64 {
	return d.n
}

// String returns the digest as 16 hex digits.
func (d *Digest) String() string {
	return fmt.Sprintf("%016x", d.Sum64())
}
