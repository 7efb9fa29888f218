// Package pipeline drives one analysis stream from an upstream token source
// through an extraction engine to an event emitter.
package pipeline

import (
	"context"
	stderrors "errors"
	"time"

	"resumelens/internal/ai"
	"resumelens/internal/errors"
	"resumelens/internal/observability"
	"resumelens/internal/types"
)

// Stream outcomes, used in logs and metrics
const (
	OutcomeDone     = "done"
	OutcomeError    = "error"
	OutcomeCanceled = "canceled"
)

// Extractor turns accumulated response text into events. extract.Engine and
// Passthrough implement it.
type Extractor interface {
	Name() string
	Start() []types.Event
	Feed(delta string) []types.Event
	Finish() (warnings []string, err error)
}

// reasoningSkipper is implemented by extractors whose event vocabulary has
// no thinking event. Their reasoning deltas are dropped.
type reasoningSkipper interface {
	SkipsReasoning() bool
}

// Emitter writes events to the client. sse.Writer and Collector implement it.
type Emitter interface {
	Emit(ev types.Event) error
	Done() error
}

// Summary describes a finished stream.
type Summary struct {
	Kind         string
	Outcome      string
	Events       map[string]int
	Findings     int
	FirstFinding time.Duration
	Warnings     []string
	Err          error
}

// Driver runs streams. It holds no per-stream state and is safe for
// concurrent use.
type Driver struct {
	logger  *errors.Logger
	metrics *observability.Metrics
}

// NewDriver creates a driver. metrics may be nil.
func NewDriver(logger *errors.Logger, metrics *observability.Metrics) *Driver {
	return &Driver{logger: logger, metrics: metrics}
}

// run is the state of one stream
type run struct {
	out     Emitter
	summary Summary
	started time.Time
}

func (r *run) emit(ev types.Event) error {
	if err := r.out.Emit(ev); err != nil {
		return err
	}
	r.summary.Events[string(ev.Type)]++
	return nil
}

func (r *run) emitFindings(events []types.Event) error {
	for _, ev := range events {
		if err := r.emit(ev); err != nil {
			return err
		}
		if r.summary.Findings == 0 {
			r.summary.FirstFinding = time.Since(r.started)
		}
		r.summary.Findings++
	}
	return nil
}

// Run reads source until it ends, emitting every event as soon as it is
// known. Each event is written before the next delta is read. Source is
// always closed, which aborts the upstream call if it is still running.
//
// A canceled context or a failed write ends the stream silently. A source
// error or a malformed final response ends it with an error event and no
// done marker.
func (d *Driver) Run(ctx context.Context, streamID string, source ai.TokenStream, ex Extractor, out Emitter) Summary {
	defer func() { _ = source.Close() }()

	logger := d.logger.With("stream_id", streamID, "kind", ex.Name())
	r := &run{
		out:     out,
		started: time.Now(),
		summary: Summary{Kind: ex.Name(), Events: make(map[string]int)},
	}
	logger.Info("Stream started")

	r.summary.Outcome, r.summary.Err = d.drive(ctx, r, source, ex)

	switch r.summary.Outcome {
	case OutcomeError:
		logger.LogError(r.summary.Err, "Stream failed",
			"findings", r.summary.Findings,
			"duration_ms", time.Since(r.started).Milliseconds())
	default:
		logger.Info("Stream finished",
			"outcome", r.summary.Outcome,
			"findings", r.summary.Findings,
			"events", r.summary.Events,
			"duration_ms", time.Since(r.started).Milliseconds())
	}
	for _, w := range r.summary.Warnings {
		logger.Warn("Final response does not match schema", "problem", w)
	}

	d.metrics.RecordStream(context.WithoutCancel(ctx), r.summary.Kind, r.summary.Outcome, r.summary.Events, r.summary.FirstFinding)
	return r.summary
}

// Opener opens the upstream stream once the client is listening.
type Opener func(ctx context.Context) (ai.TokenStream, error)

// Stream opens the source and runs it. A source that fails to open ends the
// stream the same way as one that fails after the first delta.
func (d *Driver) Stream(ctx context.Context, streamID string, open Opener, ex Extractor, out Emitter) Summary {
	source, err := open(ctx)
	if err != nil {
		source = unopened{err: err}
	}
	return d.Run(ctx, streamID, source, ex, out)
}

type unopened struct{ err error }

func (u unopened) Next() bool        { return false }
func (u unopened) Current() ai.Delta { return ai.Delta{} }
func (u unopened) Err() error        { return u.err }
func (u unopened) Close() error      { return nil }

func (d *Driver) drive(ctx context.Context, r *run, source ai.TokenStream, ex Extractor) (string, error) {
	for _, ev := range ex.Start() {
		if err := r.emit(ev); err != nil {
			return OutcomeCanceled, err
		}
	}

	rs, ok := ex.(reasoningSkipper)
	forwardReasoning := !ok || !rs.SkipsReasoning()

	for {
		if err := ctx.Err(); err != nil {
			return OutcomeCanceled, err
		}
		if !source.Next() {
			break
		}
		delta := source.Current()
		if delta.Reasoning != "" && forwardReasoning {
			if err := r.emit(types.Event{Type: types.EventThinking, Value: delta.Reasoning}); err != nil {
				return OutcomeCanceled, err
			}
		}
		if err := r.emitFindings(ex.Feed(delta.Content)); err != nil {
			return OutcomeCanceled, err
		}
	}

	if err := source.Err(); err != nil {
		if ctx.Err() != nil || stderrors.Is(err, context.Canceled) {
			return OutcomeCanceled, err
		}
		return d.fail(r, err)
	}
	if err := ctx.Err(); err != nil {
		return OutcomeCanceled, err
	}

	warnings, err := ex.Finish()
	if err != nil {
		return d.fail(r, err)
	}
	r.summary.Warnings = warnings

	if err := r.emit(types.Event{Type: types.EventDone}); err != nil {
		return OutcomeCanceled, err
	}
	if err := r.out.Done(); err != nil {
		return OutcomeCanceled, err
	}
	return OutcomeDone, nil
}

// fail sends the in-band error event. Headers are already committed, so this
// is the only way left to tell the client.
func (d *Driver) fail(r *run, cause error) (string, error) {
	if err := r.emit(types.Event{Type: types.EventError, Value: Message(cause)}); err != nil {
		return OutcomeCanceled, err
	}
	return OutcomeError, cause
}

// Message is the client-facing text of err.
func Message(err error) string {
	if appErr, ok := errors.AsAppError(err); ok {
		return appErr.Message
	}
	return err.Error()
}
