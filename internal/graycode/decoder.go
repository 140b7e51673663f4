package graycode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// Sample is the state of all input channels at one sample index.
type Sample struct {
	Index int64
	Bits  []bool
}

// Source supplies samples to the decoder.
//
// Wait blocks until a sample is available. With mask == 0 it returns the next
// sample; otherwise it returns the next sample in which any channel selected
// by mask differs from the sample before it. Wait returns io.EOF at the end of
// input and ctx.Err() once ctx is done.
type Source interface {
	ChannelMap
	Wait(ctx context.Context, mask uint16) (Sample, error)
}

// EncoderState is the position tracked between edges.
type EncoderState struct {
	Phase uint32
	Count int64
	Turns int64
}

// Summary describes a finished decode.
type Summary struct {
	Channels     int
	Edges        int64
	LastIndex    int64
	TurnsEnabled bool
	EncoderState
}

// Decoder turns a Gray-coded sample stream into position and timing
// annotations.
//
// A Decoder may be reused for several streams, but Run must not be called
// concurrently. All per-stream state lives inside Run.
type Decoder struct {
	cfg        Config
	sampleRate uint64
	logger     *slog.Logger
}

// New creates a decoder. A nil logger discards log output.
func New(cfg Config, logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Decoder{cfg: cfg, logger: logger}
}

// SetSampleRate records the stream's sample rate in Hz. It must be called
// before Run.
func (d *Decoder) SetSampleRate(hz uint64) {
	d.sampleRate = hz
}

// Run decodes src until it reports end of input, writing annotations to sink.
//
// Configuration problems are reported before src is touched. End of input is
// not an error; cancellation of ctx is returned as the source reports it.
func (d *Decoder) Run(ctx context.Context, src Source, sink Sink) (Summary, error) {
	if d.sampleRate == 0 {
		return Summary{}, ErrMissingSampleRate
	}
	n, err := ResolveChannels(d.cfg.NumChannels, src)
	if err != nil {
		return Summary{}, err
	}
	if err := d.cfg.Validate(); err != nil {
		return Summary{}, err
	}

	ppr := d.cfg.PulsesPerRevolution
	sum := Summary{Channels: n, TurnsEnabled: ppr > 0}
	mask := ChannelMask(n)

	d.logger.Debug("decoder starting",
		"channels", n,
		"samplerate", d.sampleRate,
		"pulses_per_revolution", ppr,
		"window_capacity", d.cfg.WindowCapacity)

	// INIT: seed the phase from the first complete sample.
	first, err := src.Wait(ctx, 0)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return sum, nil
		}
		return sum, fmt.Errorf("wait for first sample: %w", err)
	}

	counter := NewCounter(ppr)
	window := NewRollingWindow(d.cfg.WindowCapacity)
	emit := NewEmitter(sink)

	state := EncoderState{Phase: DecodePhase(first.Bits, n)}
	prev := first.Index
	sum.LastIndex = prev
	sum.EncoderState = state

	// RUNNING: one full annotation set per edge.
	for {
		s, err := src.Wait(ctx, mask)
		if err != nil {
			if errors.Is(err, io.EOF) {
				d.logger.Debug("decoder finished", "edges", sum.Edges, "count", state.Count)
				return sum, nil
			}
			return sum, fmt.Errorf("wait for edge: %w", err)
		}

		phase := DecodePhase(s.Bits, n)
		delta := CircularDelta(state.Phase, phase, n)
		state.Phase = phase
		state.Count = counter.Apply(delta)
		turns, turnsOK := counter.Turns()
		if turnsOK {
			state.Turns = turns
		}

		period := InstantaneousPeriod(s.Index-prev, d.sampleRate, delta)
		avg := window.Push(period)

		if err := d.emitEdge(emit, prev, s.Index, state, delta, turnsOK, period, avg); err != nil {
			return sum, err
		}

		prev = s.Index
		sum.Edges++
		sum.LastIndex = s.Index
		sum.EncoderState = state
	}
}

// emitEdge writes the annotations of one edge in category order.
func (d *Decoder) emitEdge(e *Emitter, start, end int64, st EncoderState, delta int, turns bool, period, avg float64) error {
	type row struct {
		c    Category
		text string
	}
	rows := make([]row, 0, numCategories)
	rows = append(rows,
		row{CategoryPhase, formatPhase(st.Phase)},
		row{CategoryIncrement, formatIncrement(delta)},
		row{CategoryCount, formatCount(st.Count)},
	)
	if turns {
		rows = append(rows, row{CategoryTurns, formatTurns(st.Turns)})
	}
	rows = append(rows,
		row{CategoryInterval, formatPeriod(period)},
		row{CategoryAverage, formatPeriod(avg)},
	)
	if rpm, ok := RPM(period, d.cfg.PulsesPerRevolution); ok {
		rows = append(rows, row{CategoryRPM, formatRPM(rpm)})
	}

	for _, r := range rows {
		if err := e.Emit(start, end, r.c, r.text); err != nil {
			return fmt.Errorf("emit %s: %w", r.c, err)
		}
	}
	return nil
}
