package dragdrop

import (
	"context"

	"go.uber.org/zap"

	"github.com/carservice/autotest/internal/browser"
	"github.com/carservice/autotest/internal/selectors"
)

// Checker decides whether a drag took effect.
type Checker interface {
	VerifySuccess(ctx context.Context) bool
}

// VerifierPort is the read-only surface the verifier needs.
type VerifierPort interface {
	browser.Finder
	browser.Inspector
}

// Verifier accepts either success signal the backoffice emits after a drop:
// the confirmation dialog, or the event already placed on the calendar.
type Verifier struct {
	port   VerifierPort
	plate  string
	logger *zap.Logger
}

var _ Checker = (*Verifier)(nil)

func NewVerifier(port VerifierPort, plate string, logger *zap.Logger) *Verifier {
	return &Verifier{port: port, plate: plate, logger: logger.Named("verifier")}
}

func (v *Verifier) VerifySuccess(ctx context.Context) bool {
	dialog := v.DialogPresent(ctx)
	placed := v.EventInCalendar(ctx)
	v.logger.Info("Drag drop verification.", zap.Bool("modal_present", dialog), zap.Bool("event_in_calendar", placed))
	return dialog || placed
}

// DialogPresent reports a displayed confirmation dialog.
func (v *Verifier) DialogPresent(ctx context.Context) bool {
	return v.firstDisplayed(ctx, selectors.Dialog)
}

// EventInCalendar reports a displayed calendar event carrying the plate.
func (v *Verifier) EventInCalendar(ctx context.Context) bool {
	if v.plate == "" {
		return false
	}
	found := v.firstDisplayed(ctx, selectors.EventByPlate(v.plate))
	if found {
		v.logger.Info("Found scheduled intervention in calendar.", zap.String("plate", v.plate))
	}
	return found
}

// firstDisplayed checks the first match only.
func (v *Verifier) firstDisplayed(ctx context.Context, xpath string) bool {
	els, err := v.port.FindAll(ctx, xpath)
	if err != nil || len(els) == 0 {
		if err != nil {
			v.logger.Debug("Verification lookup failed.", zap.String("selector", xpath), zap.Error(err))
		}
		return false
	}
	shown, err := v.port.IsDisplayed(ctx, els[0])
	if err != nil {
		v.logger.Debug("Visibility read failed.", zap.String("selector", xpath), zap.Error(err))
		return false
	}
	return shown
}
