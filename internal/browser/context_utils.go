// internal/browser/context_utils.go
package browser

import (
	"context"
	"time"
)

// CombineContext derives from ctx1 (which carries the chromedp target) and
// is additionally canceled when ctx2 (the caller's deadline) is done.
func CombineContext(ctx1, ctx2 context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(ctx1)
	go func() {
		select {
		case <-ctx2.Done():
			cancel()
		case <-combined.Done():
		}
	}()
	return combined, cancel
}

type valueOnlyContext struct {
	context.Context
}

func (valueOnlyContext) Deadline() (deadline time.Time, ok bool) { return }
func (valueOnlyContext) Done() <-chan struct{}                   { return nil }
func (valueOnlyContext) Err() error                              { return nil }

// Detach keeps ctx's values but drops its cancellation, for cleanup work
// such as failure screenshots that must run after the scenario context ended.
func Detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}
