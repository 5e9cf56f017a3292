package wait

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/carservice/autotest/internal/browser"
)

// Evaluator is the slice of the browser port readiness checks need.
type Evaluator interface {
	Evaluate(ctx context.Context, expr string, out any) error
}

const (
	readyStateScript  = `document.readyState`
	bodyHeightScript  = `document.body ? document.body.scrollHeight : 0`
	bodyContentScript = `!!(document.body && document.body.children.length > 0)`
	loadingScript     = `(function() {
		const els = document.querySelectorAll('.loading, .spinner, .loader, [class*="loading"], [class*="spinner"]');
		return Array.from(els).some(el => el.offsetParent !== null);
	})()`
	jqueryIdleScript = `typeof jQuery === 'undefined' || jQuery.active === 0`
)

// minBodyHeight below which a page is considered still rendering.
const minBodyHeight = 100

// Detector waits for pages to become usable. Timeouts are logged, never fatal:
// every method reports whether readiness was observed.
type Detector struct {
	eval   Evaluator
	logger *zap.Logger

	Interval time.Duration
	// Settle is slept after a thorough check succeeds.
	Settle time.Duration
	// Grace is slept after a thorough check times out.
	Grace time.Duration

	SubsequentTimeout time.Duration
	BasicTimeout      time.Duration
	FirstLoadTimeout  time.Duration
	ElementsTimeout   time.Duration
}

func NewDetector(eval Evaluator, logger *zap.Logger) *Detector {
	return &Detector{
		eval:              eval,
		logger:            logger.Named("page_ready"),
		Interval:          DefaultInterval,
		Settle:            time.Second,
		Grace:             2 * time.Second,
		SubsequentTimeout: 30 * time.Second,
		BasicTimeout:      15 * time.Second,
		FirstLoadTimeout:  90 * time.Second,
		ElementsTimeout:   10 * time.Second,
	}
}

func (d *Detector) readyState(ctx context.Context) (bool, error) {
	var state string
	if err := d.eval.Evaluate(ctx, readyStateScript, &state); err != nil {
		return false, err
	}
	return state == "complete", nil
}

// fullyReady is the thorough check: document complete, body rendered,
// no visible loading indicators and no jQuery requests in flight.
func (d *Detector) fullyReady(ctx context.Context) (bool, error) {
	if ok, err := d.readyState(ctx); !ok {
		return false, err
	}
	var height float64
	if err := d.eval.Evaluate(ctx, bodyHeightScript, &height); err != nil {
		return false, err
	}
	if height < minBodyHeight {
		d.logger.Debug("Page content too small.", zap.Float64("height", height))
		return false, nil
	}
	var loading bool
	if err := d.eval.Evaluate(ctx, loadingScript, &loading); err != nil {
		return false, err
	}
	if loading {
		d.logger.Debug("Loading indicators still visible.")
		return false, nil
	}
	var idle bool
	if err := d.eval.Evaluate(ctx, jqueryIdleScript, &idle); err != nil {
		return false, err
	}
	return idle, nil
}

// Fast runs the thorough check for up to max.
func (d *Detector) Fast(ctx context.Context, max time.Duration) bool {
	start := time.Now()
	err := Until(ctx, d.Interval, max, d.fullyReady)
	if err != nil {
		d.logger.Warn("Page ready detection timed out.", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		_ = Sleep(ctx, d.Grace)
		return false
	}
	_ = Sleep(ctx, d.Settle)
	d.logger.Info("Page ready.", zap.Duration("elapsed", time.Since(start)))
	return true
}

// Subsequent is the lighter check used after the first load of a session.
func (d *Detector) Subsequent(ctx context.Context) bool {
	err := Until(ctx, d.Interval, d.SubsequentTimeout, func(c context.Context) (bool, error) {
		if ok, err := d.readyState(c); !ok {
			return false, err
		}
		var content bool
		err := d.eval.Evaluate(c, bodyContentScript, &content)
		return content, err
	})
	if err != nil {
		d.logger.Warn("Quick page ready timed out.", zap.Error(err))
		return false
	}
	return true
}

// Basic only waits for document.readyState == "complete".
func (d *Detector) Basic(ctx context.Context) bool {
	if err := Until(ctx, d.Interval, d.BasicTimeout, d.readyState); err != nil {
		d.logger.Warn("Document ready check failed.", zap.Error(err))
		return false
	}
	return true
}

// Smart picks the thorough check for a first load and the quick one afterwards.
func (d *Detector) Smart(ctx context.Context, firstLoad bool) bool {
	if firstLoad {
		return d.Fast(ctx, d.FirstLoadTimeout)
	}
	return d.Subsequent(ctx)
}

// AllPresent waits until every XPath matches at least one element.
func (d *Detector) AllPresent(ctx context.Context, finder browser.Finder, xpaths ...string) bool {
	err := Until(ctx, d.Interval, d.ElementsTimeout, func(c context.Context) (bool, error) {
		for _, xp := range xpaths {
			els, err := finder.FindAll(c, xp)
			if err != nil || len(els) == 0 {
				return false, err
			}
		}
		return true, nil
	})
	if err != nil {
		d.logger.Warn("Specific elements check failed.", zap.Strings("xpaths", xpaths), zap.Error(err))
		return false
	}
	return true
}

// landmarks are structural elements every application page renders once usable.
var landmarks = []string{"//nav", "//main", "//header", "//*[contains(@class, 'container')]"}

// AppReady waits for an application page using the configured strategy and
// then checks for any structural landmark.
func (d *Detector) AppReady(ctx context.Context, finder browser.Finder, fast bool, timeout time.Duration) bool {
	var ready bool
	if fast {
		ready = d.Fast(ctx, timeout)
	} else {
		ready = d.Basic(ctx)
	}
	for _, xp := range landmarks {
		els, err := finder.FindAll(ctx, xp)
		if err == nil && len(els) > 0 {
			d.logger.Debug("Application landmark detected.", zap.String("xpath", xp))
			return ready
		}
		if errors.Is(err, context.Canceled) {
			return false
		}
	}
	d.logger.Info("No application landmarks found; continuing.")
	return ready
}
