// Package annotate provides sinks for decoder annotations.
package annotate

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"

	"graydecode/internal/graycode"
)

// ============================================================================
// Text
// ============================================================================

// Text writes one line per annotation:
//
//	<start>-<end> <category>: <text>
type Text struct {
	w *bufio.Writer
}

// NewText returns a text sink writing to w. Call Flush when done.
func NewText(w io.Writer) *Text {
	return &Text{w: bufio.NewWriter(w)}
}

// Put implements graycode.Sink.
func (t *Text) Put(a graycode.Annotation) error {
	var buf [64]byte
	line := strconv.AppendInt(buf[:0], a.Start, 10)
	line = append(line, '-')
	line = strconv.AppendInt(line, a.End, 10)
	line = append(line, ' ')
	line = append(line, a.Category.String()...)
	line = append(line, ": "...)
	line = append(line, a.Text...)
	line = append(line, '\n')
	_, err := t.w.Write(line)
	return err
}

// Flush writes any buffered output.
func (t *Text) Flush() error {
	return t.w.Flush()
}

// ============================================================================
// JSON lines
// ============================================================================

// Record is the JSON form of an annotation.
type Record struct {
	Start    int64  `json:"start"`
	End      int64  `json:"end"`
	Category string `json:"category"`
	Title    string `json:"title"`
	Text     string `json:"text"`
}

// RecordOf converts an annotation to its JSON form.
func RecordOf(a graycode.Annotation) Record {
	return Record{
		Start:    a.Start,
		End:      a.End,
		Category: a.Category.String(),
		Title:    a.Category.Title(),
		Text:     a.Text,
	}
}

// JSONLines writes one JSON object per line.
type JSONLines struct {
	w   *bufio.Writer
	enc *json.Encoder
}

// NewJSONLines returns a JSON-lines sink writing to w. Call Flush when done.
func NewJSONLines(w io.Writer) *JSONLines {
	bw := bufio.NewWriter(w)
	return &JSONLines{w: bw, enc: json.NewEncoder(bw)}
}

// Put implements graycode.Sink.
func (j *JSONLines) Put(a graycode.Annotation) error {
	return j.enc.Encode(RecordOf(a))
}

// Flush writes any buffered output.
func (j *JSONLines) Flush() error {
	return j.w.Flush()
}

// ============================================================================
// Recorder
// ============================================================================

// Recorder keeps every annotation in memory. It is safe for concurrent use.
type Recorder struct {
	mu  sync.Mutex
	all []graycode.Annotation
}

// Put implements graycode.Sink.
func (r *Recorder) Put(a graycode.Annotation) error {
	r.mu.Lock()
	r.all = append(r.all, a)
	r.mu.Unlock()
	return nil
}

// Annotations returns a copy of everything recorded so far.
func (r *Recorder) Annotations() []graycode.Annotation {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]graycode.Annotation, len(r.all))
	copy(out, r.all)
	return out
}

// Category returns the recorded annotations of one category, in order.
func (r *Recorder) Category(c graycode.Category) []graycode.Annotation {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []graycode.Annotation
	for _, a := range r.all {
		if a.Category == c {
			out = append(out, a)
		}
	}
	return out
}

// ============================================================================
// Fan-out
// ============================================================================

// Multi forwards each annotation to every sink in order. All sinks see the
// annotation even if an earlier one fails; the errors are joined.
func Multi(sinks ...graycode.Sink) graycode.Sink {
	flat := make([]graycode.Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			flat = append(flat, s)
		}
	}
	if len(flat) == 1 {
		return flat[0]
	}
	return multi(flat)
}

type multi []graycode.Sink

func (m multi) Put(a graycode.Annotation) error {
	var errs []error
	for i, s := range m {
		if err := s.Put(a); err != nil {
			errs = append(errs, fmt.Errorf("sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Discard drops every annotation.
var Discard graycode.Sink = graycode.SinkFunc(func(graycode.Annotation) error { return nil })
