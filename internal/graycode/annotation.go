package graycode

import (
	"fmt"
	"strconv"
)

// Category identifies an annotation row. The numeric order is the order in
// which a decoded edge emits its annotations.
type Category int

const (
	CategoryPhase Category = iota
	CategoryIncrement
	CategoryCount
	CategoryTurns
	CategoryInterval
	CategoryAverage
	CategoryRPM

	numCategories
)

var categoryNames = [numCategories]struct{ id, title string }{
	{"phase", "Phase"},
	{"increment", "Increment"},
	{"count", "Count"},
	{"turns", "Turns"},
	{"interval", "Interval"},
	{"average", "Average"},
	{"rpm", "Rate"},
}

// Categories returns every category in emission order.
func Categories() []Category {
	cs := make([]Category, numCategories)
	for i := range cs {
		cs[i] = Category(i)
	}
	return cs
}

// String returns the short identifier of the category, e.g. "increment".
func (c Category) String() string {
	if c < 0 || c >= numCategories {
		return "category(" + strconv.Itoa(int(c)) + ")"
	}
	return categoryNames[c].id
}

// Title returns the display name of the category.
func (c Category) Title() string {
	if c < 0 || c >= numCategories {
		return c.String()
	}
	return categoryNames[c].title
}

// Annotation is one labelled interval [Start, End) in sample units.
type Annotation struct {
	Start    int64
	End      int64
	Category Category
	Text     string
}

// Sink receives annotations in emission order.
type Sink interface {
	Put(a Annotation) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(a Annotation) error

// Put calls f(a).
func (f SinkFunc) Put(a Annotation) error { return f(a) }

// Emitter formats decoder metrics and forwards them to a sink.
type Emitter struct {
	sink Sink
}

// NewEmitter returns an emitter writing to sink.
func NewEmitter(sink Sink) *Emitter {
	return &Emitter{sink: sink}
}

// Emit sends one annotation. The only check performed is start <= end.
func (e *Emitter) Emit(start, end int64, c Category, text string) error {
	if start > end {
		return fmt.Errorf("%w: %s [%d, %d)", ErrTimestampOrder, c, start, end)
	}
	return e.sink.Put(Annotation{Start: start, End: end, Category: c, Text: text})
}

func formatPhase(phase uint32) string { return strconv.FormatUint(uint64(phase), 10) }

func formatIncrement(delta int) string { return fmt.Sprintf("%+d", delta) }

func formatCount(count int64) string { return strconv.FormatInt(count, 10) }

func formatTurns(turns int64) string { return fmt.Sprintf("%+d", turns) }

// formatPeriod renders a period and its rate, e.g. "1.00 ms, 1.00 kHz".
func formatPeriod(period float64) string {
	return FormatEngineering(period) + "s, " + FormatEngineering(Rate(period)) + "Hz"
}

func formatRPM(rpm float64) string {
	return FormatEngineeringMin(rpm, 0) + "rpm"
}
