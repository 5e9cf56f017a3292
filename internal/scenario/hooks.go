// Package scenario runs end-to-end flows against the live applications:
// hooks own the browser session and report case around each scenario.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/carservice/autotest/internal/browser"
	"github.com/carservice/autotest/internal/config"
	"github.com/carservice/autotest/internal/observability"
	"github.com/carservice/autotest/internal/pages"
	"github.com/carservice/autotest/internal/report"
	"github.com/carservice/autotest/internal/wait"
)

// Session is one exclusively owned browser tab.
type Session interface {
	browser.Port
	ID() string
	Close()
}

// Provider hands out sessions.
type Provider interface {
	Acquire(ctx context.Context) (Session, error)
}

type managerProvider struct{ m *browser.Manager }

func (p managerProvider) Acquire(ctx context.Context) (Session, error) {
	s, err := p.m.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// FromManager adapts the chromedp manager.
func FromManager(m *browser.Manager) Provider { return managerProvider{m: m} }

// App selects what Before opens.
type App int

const (
	AppNone App = iota
	AppBackoffice
	AppEndUser
)

// ErrPanicked wraps a recovered panic from a scenario body.
var ErrPanicked = errors.New("scenario panicked")

// SetupError marks failures that happened before the scenario body ran.
type SetupError struct{ Err error }

func (e *SetupError) Error() string { return "scenario setup failed: " + e.Err.Error() }
func (e *SetupError) Unwrap() error { return e.Err }

// caseSink is a report sink that is finalized once.
type caseSink interface {
	report.Sink
	Close(status report.Status) report.Result
	Dir() string
}

type discardCase struct{ report.NopSink }

func (discardCase) Close(status report.Status) report.Result { return report.Result{Status: status} }
func (discardCase) Dir() string                              { return "" }

// Env is what a scenario body works with.
type Env struct {
	Session Session
	Sink    report.Sink
	Logger  *zap.Logger
	Config  config.Interface
	Ready   *wait.Detector
	Now     func() time.Time

	hooks *Hooks
	cs    caseSink
}

// Deps builds the page-object dependencies for this session.
func (e *Env) Deps() pages.Deps {
	return pages.Deps{Port: e.Session, Sink: e.Sink, Logger: e.Logger, Timeouts: e.Config.Timeouts(), Now: e.Now}
}

// Open navigates to url with the configured retries and readiness wait.
func (e *Env) Open(ctx context.Context, url string) error {
	return e.hooks.navigate(ctx, e, url)
}

// Step runs fn as a traced, reported step. The error is prefixed with the step name.
func (e *Env) Step(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := e.hooks.tracer.Start(ctx, "scenario.step", trace.WithAttributes(attribute.String("step", name)))
	defer span.End()
	e.Logger.Info("Step started.", zap.String("step", name))
	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%s: %w", name, err)
	}
	e.Sink.LogStep(name)
	return nil
}

// Hooks set up and tear down the environment of each scenario.
type Hooks struct {
	provider   Provider
	cfg        config.Interface
	logger     *zap.Logger
	tracer     trace.Tracer
	now        func() time.Time
	retryDelay time.Duration
	tuneReady  func(*wait.Detector)
}

type HooksOption func(*Hooks)

// WithClock sets the clock handed to scenarios.
func WithClock(now func() time.Time) HooksOption { return func(h *Hooks) { h.now = now } }

// WithRetryDelay sets the pause between navigation attempts.
func WithRetryDelay(d time.Duration) HooksOption { return func(h *Hooks) { h.retryDelay = d } }

// WithReadiness adjusts every session's page readiness detector.
func WithReadiness(fn func(*wait.Detector)) HooksOption { return func(h *Hooks) { h.tuneReady = fn } }

func NewHooks(provider Provider, cfg config.Interface, logger *zap.Logger, opts ...HooksOption) *Hooks {
	h := &Hooks{
		provider:   provider,
		cfg:        cfg,
		logger:     logger.Named("hooks"),
		tracer:     observability.Tracer(),
		now:        time.Now,
		retryDelay: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hooks) openCase(name string) caseSink {
	rc := h.cfg.Report()
	if !rc.Enabled {
		return discardCase{}
	}
	fs, err := report.NewFileSink(rc.ResultsDir, name, nil, h.logger)
	if err != nil {
		h.logger.Warn("Report case unavailable, continuing without artifacts.", zap.Error(err))
		return discardCase{}
	}
	return fs
}

// Before acquires a session, opens the report case and navigates to the
// scenario's application. The returned Env is non-nil even on error so
// After can clean up whatever was acquired.
func (h *Hooks) Before(ctx context.Context, sc Scenario) (*Env, error) {
	logger := h.logger.With(zap.String("scenario", sc.Name))
	logger.Info("Starting scenario.",
		zap.String("backoffice_url", h.cfg.Apps().BackofficeURL),
		zap.String("enduser_url", h.cfg.Apps().EndUserURL),
		zap.Bool("headless", h.cfg.Browser().Headless))

	cs := h.openCase(sc.Name)
	env := &Env{Sink: cs, Logger: logger, Config: h.cfg, Now: h.now, hooks: h, cs: cs}

	s, err := h.provider.Acquire(ctx)
	if err != nil {
		cs.AddFailure("Scenario setup failed", err)
		return env, &SetupError{Err: fmt.Errorf("acquiring browser session: %w", err)}
	}
	env.Session = s
	env.Logger = logger.With(zap.String("session_id", s.ID()))
	if fs, ok := cs.(*report.FileSink); ok {
		fs.SetScreenshotter(s)
	}
	env.Ready = wait.NewDetector(s, env.Logger)
	if h.tuneReady != nil {
		h.tuneReady(env.Ready)
	}

	var url string
	switch sc.App {
	case AppBackoffice:
		url = h.cfg.Apps().BackofficeURL
	case AppEndUser:
		url = h.cfg.Apps().EndUserURL
	}
	if url != "" {
		if err := env.Open(ctx, url); err != nil {
			cs.AddFailure("Scenario setup failed", err)
			return env, &SetupError{Err: err}
		}
	}
	env.Logger.Info("Scenario setup completed.")
	return env, nil
}

func (h *Hooks) navigate(ctx context.Context, env *Env, url string) error {
	attempts := max(h.cfg.Runner().NavigateRetries, 1)
	t := h.cfg.Timeouts()
	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		env.Logger.Info("Navigating.", zap.String("url", url), zap.Int("attempt", attempt), zap.Int("of", attempts))
		if attempt > 1 {
			h.clearState(ctx, env)
		}
		err := env.Session.Navigate(ctx, url)
		if err == nil {
			env.Ready.AppReady(ctx, env.Session, t.FastPageLoad, t.PageLoad)
			current, _ := env.Session.CurrentURL(ctx)
			env.Logger.Info("Navigation successful.", zap.String("current_url", current))
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		last = err
		env.Logger.Warn("Navigation attempt failed.", zap.Int("attempt", attempt), zap.Error(err))
		if attempt < attempts {
			if err := wait.Sleep(ctx, h.retryDelay); err != nil {
				return err
			}
		}
	}
	env.Sink.AttachScreenshot(ctx, "Navigation failed")
	return fmt.Errorf("navigation to %s failed after %d attempts: %w", url, attempts, last)
}

// clearState parks the tab on a blank page before a retry. Best effort.
func (h *Hooks) clearState(ctx context.Context, env *Env) {
	if err := env.Session.Navigate(ctx, "about:blank"); err != nil {
		env.Logger.Debug("Could not clear browser state.", zap.Error(err))
		return
	}
	_ = wait.Sleep(ctx, h.cfg.Timeouts().ShortWait)
}

// cleanupTimeout bounds the failure screenshot and result write.
const cleanupTimeout = 10 * time.Second

// After records the outcome, attaches a failure screenshot and releases the
// session. It runs on a detached context so cancellation cannot skip cleanup.
func (h *Hooks) After(ctx context.Context, env *Env, sc Scenario, runErr error) Result {
	res := Result{Name: sc.Name, Status: report.StatusPassed, Err: runErr}
	if env == nil {
		res.Status = report.StatusBroken
		return res
	}
	cctx, cancel := context.WithTimeout(browser.Detach(ctx), cleanupTimeout)
	defer cancel()

	var setup *SetupError
	switch {
	case runErr == nil:
		env.Sink.AddParameter("Test Result", "PASSED - "+sc.Name)
		env.Logger.Info("Scenario passed.")
	case errors.As(runErr, &setup):
		res.Status = report.StatusBroken
		env.Sink.AddParameter("Test Result", "BROKEN - "+sc.Name)
		env.Logger.Error("Scenario could not start.", zap.Error(runErr))
	default:
		res.Status = report.StatusFailed
		if errors.Is(runErr, ErrPanicked) {
			res.Status = report.StatusBroken
		}
		if env.Session != nil {
			env.Sink.AttachScreenshot(cctx, "Failure Screenshot")
		}
		env.Sink.AddFailure("Scenario failed", runErr)
		env.Sink.AddParameter("Test Result", "FAILED - "+sc.Name)
		env.Logger.Error("Scenario failed.", zap.Error(runErr))
	}

	if env.Session != nil {
		env.Session.Close()
		env.Logger.Debug("Session released.")
	}
	env.cs.Close(res.Status)
	res.ReportDir = env.cs.Dir()
	return res
}
