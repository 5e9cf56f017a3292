// Package resolver locates elements through ordered lists of fallback XPaths.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/carservice/autotest/internal/autoerr"
	"github.com/carservice/autotest/internal/browser"
	"github.com/carservice/autotest/internal/wait"
)

// Mode is the readiness an element must reach before it counts as resolved.
type Mode int

const (
	// Present requires the element to be attached to the document.
	Present Mode = iota
	// Clickable requires the element to be displayed and enabled.
	Clickable
)

func (m Mode) String() string {
	if m == Clickable {
		return "clickable"
	}
	return "present"
}

// Port is what the resolver needs from the browser.
type Port interface {
	browser.Finder
	browser.Inspector
	browser.Actor
}

// DefaultAttemptTimeout bounds the wait for each individual selector.
const DefaultAttemptTimeout = 15 * time.Second

// Resolver tries selectors in order, waiting on each in turn.
type Resolver struct {
	port           Port
	logger         *zap.Logger
	attemptTimeout time.Duration
	interval       time.Duration
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithAttemptTimeout sets the per-selector wait. Zero means a single check.
func WithAttemptTimeout(d time.Duration) Option {
	return func(r *Resolver) { r.attemptTimeout = d }
}

// WithInterval sets the polling cadence within one attempt.
func WithInterval(d time.Duration) Option {
	return func(r *Resolver) { r.interval = d }
}

func New(port Port, logger *zap.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		port:           port,
		logger:         logger.Named("resolver"),
		attemptTimeout: DefaultAttemptTimeout,
		interval:       wait.DefaultInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the first element matched by any selector, in list order.
// The list is walked once; each selector gets its own bounded wait. When none
// resolves the error is an *autoerr.ElementNotFoundError.
func (r *Resolver) Resolve(ctx context.Context, selectors []string, description string, mode Mode) (browser.Element, error) {
	var last error
	for _, xp := range selectors {
		var found browser.Element
		err := wait.Until(ctx, r.interval, r.attemptTimeout, func(c context.Context) (bool, error) {
			el, err := r.match(c, xp, mode)
			if err != nil || el == nil {
				return false, err
			}
			found = el
			return true, nil
		})
		if err == nil {
			r.logger.Info("Element resolved.", zap.String("element", description), zap.String("selector", xp), zap.Stringer("mode", mode))
			return found, nil
		}
		if ctx.Err() != nil {
			return nil, &autoerr.ElementNotFoundError{Description: description, Selectors: selectors, Last: ctx.Err()}
		}
		last = err
		r.logger.Debug("Selector did not resolve.", zap.String("element", description), zap.String("selector", xp), zap.Error(err))
	}
	return nil, &autoerr.ElementNotFoundError{Description: description, Selectors: selectors, Last: last}
}

// match returns the first element for xpath that satisfies mode, or nil.
func (r *Resolver) match(ctx context.Context, xpath string, mode Mode) (browser.Element, error) {
	els, err := r.port.FindAll(ctx, xpath)
	if err != nil {
		return nil, err
	}
	if mode == Present {
		if len(els) == 0 {
			return nil, nil
		}
		return els[0], nil
	}
	var last error
	for _, el := range els {
		ok, err := r.clickable(ctx, el)
		if err != nil {
			last = err
			continue
		}
		if ok {
			return el, nil
		}
	}
	return nil, last
}

func (r *Resolver) clickable(ctx context.Context, el browser.Element) (bool, error) {
	shown, err := r.port.IsDisplayed(ctx, el)
	if err != nil || !shown {
		return false, err
	}
	return r.port.IsEnabled(ctx, el)
}

// Lookup is Resolve for optional elements: absence is a normal outcome.
func (r *Resolver) Lookup(ctx context.Context, selectors []string, description string, mode Mode) (browser.Element, bool) {
	el, err := r.Resolve(ctx, selectors, description, mode)
	if err != nil {
		r.logger.Debug("Optional element absent.", zap.String("element", description), zap.Error(err))
		return nil, false
	}
	return el, true
}

// Exists reports whether xpath currently matches a displayed element, without waiting.
func (r *Resolver) Exists(ctx context.Context, xpath string) bool {
	els, err := r.port.FindAll(ctx, xpath)
	if err != nil {
		r.logger.Debug("Existence check failed.", zap.String("selector", xpath), zap.Error(err))
		return false
	}
	for _, el := range els {
		if shown, err := r.port.IsDisplayed(ctx, el); err == nil && shown {
			return true
		}
	}
	return false
}

// FindAll returns every current match without waiting.
func (r *Resolver) FindAll(ctx context.Context, xpath string) ([]browser.Element, error) {
	els, err := r.port.FindAll(ctx, xpath)
	if err != nil {
		return nil, fmt.Errorf("querying %q: %w", xpath, err)
	}
	return els, nil
}

const jsClick = `function(el) { el.click(); }`

// Click scrolls el into view and clicks it, falling back to a script click
// when the native click is rejected (overlays, off-screen layout).
func (r *Resolver) Click(ctx context.Context, el browser.Element, description string) error {
	if err := r.port.ScrollIntoView(ctx, el); err != nil {
		r.logger.Debug("Scroll before click failed.", zap.String("element", description), zap.Error(err))
	}
	err := r.port.Click(ctx, el)
	if err == nil {
		r.logger.Info("Clicked.", zap.String("element", description))
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	r.logger.Debug("Native click failed, using script click.", zap.String("element", description), zap.Error(err))
	if jsErr := r.port.CallOn(ctx, jsClick, el); jsErr != nil {
		return fmt.Errorf("clicking %s: %w", description, errors.Join(err, jsErr))
	}
	r.logger.Info("Clicked via script.", zap.String("element", description))
	return nil
}

// ResolveAndClick resolves a clickable element and clicks it.
func (r *Resolver) ResolveAndClick(ctx context.Context, selectors []string, description string) error {
	el, err := r.Resolve(ctx, selectors, description, Clickable)
	if err != nil {
		return err
	}
	return r.Click(ctx, el, description)
}
