// Package report records screenshots, attachments and parameters for each scenario.
// Sinks are fire-and-forget: recording failures are logged and never reach callers.
package report

import (
	"context"
)

// Sink receives the artifacts of one scenario.
type Sink interface {
	// AttachScreenshot captures the current viewport under name.
	AttachScreenshot(ctx context.Context, name string)
	AttachText(name, content string)
	AddParameter(key, value string)
	LogStep(msg string)
	AddFailure(reason string, err error)
}

// Screenshotter is the port capability screenshots are taken with.
type Screenshotter interface {
	Screenshot(ctx context.Context) ([]byte, error)
}

// NopSink discards everything.
type NopSink struct{}

var _ Sink = NopSink{}

func (NopSink) AttachScreenshot(context.Context, string) {}
func (NopSink) AttachText(string, string)                {}
func (NopSink) AddParameter(string, string)              {}
func (NopSink) LogStep(string)                           {}
func (NopSink) AddFailure(string, error)                 {}

// Status is the final outcome of a scenario.
type Status string

const (
	StatusPassed Status = "passed"
	StatusFailed Status = "failed"
	// StatusBroken marks a scenario that panicked or could not start.
	StatusBroken Status = "broken"
)
