// Package pages holds the backoffice page objects. Each page drives one
// screen through the resolver and records its progress on the report sink.
package pages

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/carservice/autotest/internal/browser"
	"github.com/carservice/autotest/internal/config"
	"github.com/carservice/autotest/internal/report"
	"github.com/carservice/autotest/internal/resolver"
	"github.com/carservice/autotest/internal/wait"
)

// Deps are shared by every page object of a session.
type Deps struct {
	Port     browser.Port
	Sink     report.Sink
	Logger   *zap.Logger
	Timeouts config.TimeoutsConfig
	// Now defaults to time.Now.
	Now func() time.Time
}

type base struct {
	port   browser.Port
	res    *resolver.Resolver
	sink   report.Sink
	logger *zap.Logger
	t      config.TimeoutsConfig
}

func newBase(d Deps, name string) base {
	sink := d.Sink
	if sink == nil {
		sink = report.NopSink{}
	}
	logger := d.Logger.Named(name)
	return base{
		port:   d.Port,
		res:    resolver.New(d.Port, logger, resolver.WithAttemptTimeout(d.Timeouts.ResolverAttempt)),
		sink:   sink,
		logger: logger,
		t:      d.Timeouts,
	}
}

// pause sleeps unless ctx ends first.
func (b *base) pause(ctx context.Context, d time.Duration) error {
	return wait.Sleep(ctx, d)
}

// clearAndType replaces the value of an input.
func (b *base) clearAndType(ctx context.Context, el browser.Element, text string) error {
	if err := b.port.Clear(ctx, el); err != nil {
		return err
	}
	return b.port.Type(ctx, el, text)
}

// resolveAll resolves each list in order, stopping at the first failure.
func (b *base) resolveAll(ctx context.Context, mode resolver.Mode, lists []namedSelectors) ([]browser.Element, error) {
	out := make([]browser.Element, 0, len(lists))
	for _, l := range lists {
		el, err := b.res.Resolve(ctx, l.selectors, l.name, mode)
		if err != nil {
			return nil, err
		}
		out = append(out, el)
	}
	return out, nil
}

type namedSelectors struct {
	name      string
	selectors []string
}
