// Package dragdrop moves an intervention card onto a calendar slot, trying
// progressively more explicit drag techniques until the backoffice reacts.
package dragdrop

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/carservice/autotest/internal/autoerr"
	"github.com/carservice/autotest/internal/browser"
	"github.com/carservice/autotest/internal/calendar"
	"github.com/carservice/autotest/internal/observability"
	"github.com/carservice/autotest/internal/report"
	"github.com/carservice/autotest/internal/selectors"
	"github.com/carservice/autotest/internal/wait"
)

// State of one orchestration run.
type State int

const (
	NotStarted State = iota
	Prepared
	Attempted
	Verified
	Exhausted
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Prepared:
		return "prepared"
	case Attempted:
		return "attempted"
	case Verified:
		return "verified"
	case Exhausted:
		return "exhausted"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Strategy is a drag technique. They run in declaration order.
type Strategy int

const (
	// Synthetic dispatches dragstart/drop/dragend DOM events directly.
	Synthetic Strategy = iota
	// Native performs one continuous pointer drag.
	Native
	// Manual presses, pauses, moves, pauses and releases.
	Manual
)

// Strategies lists every technique in the order they are tried.
var Strategies = []Strategy{Synthetic, Native, Manual}

func (s Strategy) String() string {
	switch s {
	case Synthetic:
		return "synthetic"
	case Native:
		return "native"
	case Manual:
		return "manual"
	}
	return fmt.Sprintf("strategy(%d)", int(s))
}

// Transition is one entry of a run's trace. Strategy is meaningful only
// for Attempted and Verified.
type Transition struct {
	State    State
	Strategy Strategy
	Err      error
	At       time.Time
}

// Result describes one ScheduleCard run.
type Result struct {
	Verified bool
	// Strategy is the technique that verified, when Verified.
	Strategy Strategy
	Trace    []Transition
}

// States returns the visited states in order.
func (r Result) States() []State {
	out := make([]State, len(r.Trace))
	for i, t := range r.Trace {
		out[i] = t.State
	}
	return out
}

// Attempts returns the strategies tried, in order.
func (r Result) Attempts() []Strategy {
	var out []Strategy
	for _, t := range r.Trace {
		if t.State == Attempted {
			out = append(out, t.Strategy)
		}
	}
	return out
}

// Port is the browser surface the orchestrator drives.
type Port interface {
	browser.Finder
	browser.Inspector
	browser.Actor
	browser.Pointer
}

// Timings are the pauses between steps.
type Timings struct {
	// Settle follows each scroll during preparation.
	Settle time.Duration
	// Hold separates the press, move and release of the manual strategy.
	Hold time.Duration
	// AfterAttempt lets the app react before verification.
	AfterAttempt time.Duration
}

// DefaultTimings mirror the backoffice's animation latencies.
func DefaultTimings() Timings {
	return Timings{Settle: 500 * time.Millisecond, Hold: 500 * time.Millisecond, AfterAttempt: 2 * time.Second}
}

// Orchestrator runs the strategy sequence for one browser session.
type Orchestrator struct {
	port    Port
	checker Checker
	sink    report.Sink
	logger  *zap.Logger
	timings Timings
	tracer  trace.Tracer
}

type Option func(*Orchestrator)

func WithTimings(t Timings) Option { return func(o *Orchestrator) { o.timings = t } }

func WithSink(s report.Sink) Option { return func(o *Orchestrator) { o.sink = s } }

func WithTracer(t trace.Tracer) Option { return func(o *Orchestrator) { o.tracer = t } }

func New(port Port, checker Checker, logger *zap.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		port:    port,
		checker: checker,
		sink:    report.NopSink{},
		logger:  logger.Named("dragdrop"),
		timings: DefaultTimings(),
		tracer:  observability.Tracer(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ScheduleCard drags card onto slot and reports whether any strategy verified.
// Strategy failures are logged and never returned; setup failures are.
func (o *Orchestrator) ScheduleCard(ctx context.Context, card browser.Element, slot *calendar.CalendarSlot) (bool, error) {
	res, err := o.Schedule(ctx, card, slot)
	return res.Verified, err
}

// ScheduleCardStrict is ScheduleCard with exhaustion reported as ErrDragDropFailed.
func (o *Orchestrator) ScheduleCardStrict(ctx context.Context, card browser.Element, slot *calendar.CalendarSlot) error {
	res, err := o.Schedule(ctx, card, slot)
	if err != nil {
		return err
	}
	if !res.Verified {
		return &autoerr.DragDropFailedError{Reason: "no strategy produced a verified drop at " + slot.String()}
	}
	return nil
}

// Schedule is ScheduleCard returning the full trace.
func (o *Orchestrator) Schedule(ctx context.Context, card browser.Element, slot *calendar.CalendarSlot) (res Result, err error) {
	if card == nil || slot == nil || slot.Element == nil {
		return res, &autoerr.DragDropFailedError{Reason: "missing card or slot"}
	}
	ctx, span := o.tracer.Start(ctx, "dragdrop.schedule", trace.WithAttributes(
		attribute.String("slot.time", slot.Time),
		attribute.String("slot.day", slot.DayName),
	))
	defer func() {
		span.SetAttributes(attribute.Bool("verified", res.Verified))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	record := func(s State, st Strategy, e error) {
		res.Trace = append(res.Trace, Transition{State: s, Strategy: st, Err: e, At: time.Now()})
	}
	record(NotStarted, 0, nil)

	logger := o.logger.With(zap.String("slot", slot.String()))
	logger.Info("Performing drag and drop to time slot.")

	target := o.dropTarget(ctx, slot)
	if err := o.prepare(ctx, card, target); err != nil {
		o.sink.AttachScreenshot(ctx, "Drag and drop failed")
		return res, &autoerr.DragDropFailedError{Reason: "preparing elements", Err: err}
	}
	record(Prepared, 0, nil)
	o.sink.AttachScreenshot(ctx, "Before drag and drop")

	for _, st := range Strategies {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		attemptErr := o.attempt(ctx, st, card, target)
		record(Attempted, st, attemptErr)
		span.AddEvent("attempt", trace.WithAttributes(
			attribute.String("strategy", st.String()),
			attribute.Bool("error", attemptErr != nil),
		))
		if attemptErr != nil {
			if errors.Is(attemptErr, context.Canceled) {
				return res, attemptErr
			}
			logger.Warn("Drag and drop strategy failed.", zap.Stringer("strategy", st), zap.Error(attemptErr))
			continue
		}
		_ = wait.Sleep(ctx, o.timings.AfterAttempt)
		if o.checker.VerifySuccess(ctx) {
			record(Verified, st, nil)
			res.Verified, res.Strategy = true, st
			logger.Info("Drag and drop successful.", zap.Stringer("strategy", st))
			o.sink.AttachScreenshot(ctx, fmt.Sprintf("After successful %s drag and drop", st))
			return res, nil
		}
		logger.Info("Drag and drop not verified.", zap.Stringer("strategy", st))
	}

	record(Exhausted, 0, nil)
	logger.Error("All drag and drop methods failed.")
	o.sink.AttachScreenshot(ctx, "All drag and drop methods failed")
	return res, nil
}

// dropTarget prefers a wide drop zone over the narrow slot cell, never a Sunday column.
func (o *Orchestrator) dropTarget(ctx context.Context, slot *calendar.CalendarSlot) browser.Element {
	for _, xp := range selectors.DropZones {
		els, err := o.port.FindAll(ctx, xp)
		if err != nil {
			o.logger.Debug("Drop zone query failed.", zap.String("selector", xp), zap.Error(err))
			continue
		}
		for _, el := range els {
			class, ok, err := o.port.Attribute(ctx, el, "class")
			if err != nil || !ok || strings.Contains(class, "fc-day-sun") {
				continue
			}
			o.logger.Info("Found drop target.", zap.String("selector", xp))
			return el
		}
	}
	o.logger.Info("No drop zone resolved, dropping on the slot cell.")
	return slot.Element
}

func (o *Orchestrator) prepare(ctx context.Context, src, dst browser.Element) error {
	for _, el := range []browser.Element{src, dst} {
		if err := o.port.ScrollIntoView(ctx, el); err != nil {
			return fmt.Errorf("scrolling %s into view: %w", el.Ref(), err)
		}
		if err := wait.Sleep(ctx, o.timings.Settle); err != nil {
			return err
		}
	}
	return nil
}

const syntheticDragScript = `function(source, target) {
	const opts = {bubbles: true, cancelable: true};
	source.dispatchEvent(new MouseEvent('dragstart', opts));
	target.dispatchEvent(new MouseEvent('drop', opts));
	source.dispatchEvent(new MouseEvent('dragend', opts));
}`

func (o *Orchestrator) attempt(ctx context.Context, st Strategy, src, dst browser.Element) error {
	switch st {
	case Synthetic:
		return o.port.CallOn(ctx, syntheticDragScript, src, dst)
	case Native:
		return o.port.Drag(ctx, src, dst)
	case Manual:
		return o.manual(ctx, src, dst)
	}
	return fmt.Errorf("unknown strategy %v", st)
}

func (o *Orchestrator) manual(ctx context.Context, src, dst browser.Element) error {
	if err := o.port.PointerDown(ctx, src); err != nil {
		return err
	}
	// A press is always paired with a release, even once ctx is done.
	release := func(err error) error {
		return errors.Join(err, o.port.PointerUp(browser.Detach(ctx)))
	}
	if err := wait.Sleep(ctx, o.timings.Hold); err != nil {
		return release(err)
	}
	if err := o.port.PointerMoveTo(ctx, dst); err != nil {
		return release(err)
	}
	if err := wait.Sleep(ctx, o.timings.Hold); err != nil {
		return release(err)
	}
	return o.port.PointerUp(ctx)
}
