package pages

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/carservice/autotest/internal/autoerr"
	"github.com/carservice/autotest/internal/browser"
	"github.com/carservice/autotest/internal/calendar"
	"github.com/carservice/autotest/internal/config"
	"github.com/carservice/autotest/internal/dragdrop"
	"github.com/carservice/autotest/internal/resolver"
	"github.com/carservice/autotest/internal/selectors"
)

// InterventionsPage lists requested interventions next to the planning
// calendar and schedules them by drag and drop.
type InterventionsPage struct {
	base
	office  config.BackofficeConfig
	vehicle config.VehicleConfig

	finder   *calendar.Finder
	verifier *dragdrop.Verifier
	dragger  *dragdrop.Orchestrator
}

func NewInterventionsPage(d Deps, office config.BackofficeConfig, vehicle config.VehicleConfig, rules calendar.Rules) *InterventionsPage {
	b := newBase(d, "interventions_page")
	opts := []calendar.FinderOption{calendar.WithSettle(d.Timeouts.ShortWait)}
	if d.Now != nil {
		opts = append(opts, calendar.WithClock(d.Now))
	}
	verifier := dragdrop.NewVerifier(d.Port, vehicle.ExpectedPlate(), b.logger)
	return &InterventionsPage{
		base:     b,
		office:   office,
		vehicle:  vehicle,
		finder:   calendar.NewFinder(d.Port, rules, b.logger, opts...),
		verifier: verifier,
		dragger: dragdrop.New(d.Port, verifier, b.logger,
			dragdrop.WithSink(b.sink),
			dragdrop.WithTimings(dragdrop.Timings{
				Settle:       d.Timeouts.Settle,
				Hold:         d.Timeouts.Settle,
				AfterAttempt: d.Timeouts.MediumWait,
			}),
		),
	}
}

// Navigate opens "Mes interventions" from the side menu.
func (p *InterventionsPage) Navigate(ctx context.Context) error {
	p.logger.Info("Navigating to interventions page.")
	if err := p.res.ResolveAndClick(ctx, selectors.InterventionsMenu, "Interventions menu"); err != nil {
		return err
	}
	if err := p.pause(ctx, p.t.LongWait); err != nil {
		return err
	}
	p.sink.AttachScreenshot(ctx, "Navigated to interventions page")
	return nil
}

// SelectAgency filters the page on the configured agency.
func (p *InterventionsPage) SelectAgency(ctx context.Context) error {
	p.logger.Info("Selecting agency.", zap.String("agency", p.office.Agency))
	if err := p.res.ResolveAndClick(ctx, selectors.AgencyDropdown, "Agency dropdown"); err != nil {
		return err
	}
	if err := p.pause(ctx, p.t.ShortWait); err != nil {
		return err
	}
	if err := p.res.ResolveAndClick(ctx, selectors.AgencyOption(p.office.Agency), p.office.Agency+" option"); err != nil {
		return err
	}
	if err := p.pause(ctx, p.t.MediumWait); err != nil {
		return err
	}
	p.sink.AddParameter("Selected Agency", p.office.Agency)
	return nil
}

// SelectService ticks the service filter, clicking its label when no radio input resolves.
func (p *InterventionsPage) SelectService(ctx context.Context) error {
	service := p.office.Service
	p.logger.Info("Selecting service filter.", zap.String("service", service))
	if radio, ok := p.res.Lookup(ctx, selectors.ServiceRadio(service), service+" radio button", resolver.Present); ok {
		if err := p.res.Click(ctx, radio, service+" radio button"); err != nil {
			return err
		}
	} else {
		p.logger.Info("Radio button not found, clicking the label.")
		if err := p.res.ResolveAndClick(ctx, selectors.ServiceLabel(service), service+" label"); err != nil {
			return err
		}
	}
	if err := p.pause(ctx, p.t.MediumWait); err != nil {
		return err
	}
	p.sink.AddParameter("Selected Service", service)
	return nil
}

// Open navigates to the page and applies both filters.
func (p *InterventionsPage) Open(ctx context.Context) error {
	for _, step := range []func(context.Context) error{p.Navigate, p.SelectAgency, p.SelectService} {
		if err := step(ctx); err != nil {
			return err
		}
	}
	return nil
}

// isTargetCard matches plate, service and mileage. Read errors mean no match.
func (p *InterventionsPage) isTargetCard(ctx context.Context, card browser.Element) bool {
	first := func(xpath string) (browser.Element, bool) {
		els, err := p.port.FindWithin(ctx, card, xpath)
		if err != nil || len(els) == 0 {
			return nil, false
		}
		return els[0], true
	}
	contains := func(xpath, want string) bool {
		el, ok := first(xpath)
		if !ok {
			return false
		}
		text, err := p.port.Text(ctx, el)
		return err == nil && strings.Contains(strings.TrimSpace(text), want)
	}

	if !contains(selectors.CardPlate, p.vehicle.ExpectedPlate()) {
		return false
	}
	if _, ok := first(selectors.CardService(p.office.Service)); !ok {
		return false
	}
	return contains(selectors.CardMileage, p.vehicle.Mileage)
}

// targetIndex returns the index of the first matching card, or -1.
func (p *InterventionsPage) targetIndex(ctx context.Context) (int, []browser.Element, error) {
	cards, err := p.port.FindAll(ctx, selectors.Cards)
	if err != nil {
		return -1, nil, fmt.Errorf("listing intervention cards: %w", err)
	}
	p.logger.Info("Checking appointment cards.", zap.Int("count", len(cards)))
	for i, card := range cards {
		if p.isTargetCard(ctx, card) {
			return i, cards, nil
		}
	}
	return -1, cards, nil
}

// FindTargetCard returns the card of the configured vehicle.
func (p *InterventionsPage) FindTargetCard(ctx context.Context) (browser.Element, error) {
	if err := p.pause(ctx, p.t.MediumWait); err != nil {
		return nil, err
	}
	i, cards, err := p.targetIndex(ctx)
	if err != nil {
		return nil, err
	}
	if i < 0 {
		p.logger.Warn("Target intervention card not found.", zap.String("plate", p.vehicle.ExpectedPlate()))
		p.sink.AttachScreenshot(ctx, "Target intervention card not found")
		return nil, &autoerr.ElementNotFoundError{
			Description: "intervention card for " + p.vehicle.ExpectedPlate(),
			Selectors:   []string{selectors.Cards},
		}
	}
	p.logger.Info("Found target intervention card.", zap.Int("index", i))
	p.sink.AddParameter("Target Card Index", strconv.Itoa(i))
	p.sink.AttachScreenshot(ctx, "Target intervention card found")
	return cards[i], nil
}

// FindAvailableSlot scrolls to working hours and returns the first eligible
// slot. A nil slot with a nil error means the visible week has none.
func (p *InterventionsPage) FindAvailableSlot(ctx context.Context) (*calendar.CalendarSlot, error) {
	p.finder.ScrollToWorkingHours(ctx)
	slot, err := p.finder.FindFirstEligibleSlot(ctx)
	if err != nil {
		return nil, err
	}
	if slot == nil {
		p.logger.Error("No available time slots found.")
		p.sink.AttachScreenshot(ctx, "No available slots")
		return nil, nil
	}
	p.sink.AddParameter("Selected Time Slot", slot.Time)
	p.sink.AddParameter("Selected Day", slot.DayName)
	return slot, nil
}

// errNoSlot is reported when the calendar offers nothing to drop on.
var errNoSlot = errors.New("no eligible calendar slot")

// DragToCalendar drops the target card on the first eligible slot.
func (p *InterventionsPage) DragToCalendar(ctx context.Context) (bool, error) {
	card, err := p.FindTargetCard(ctx)
	if err != nil {
		return false, err
	}
	slot, err := p.FindAvailableSlot(ctx)
	if err != nil {
		return false, err
	}
	if slot == nil {
		return false, errNoSlot
	}
	return p.dragger.ScheduleCard(ctx, card, slot)
}

// HandleConfirmation confirms the booking dialog. A missing dialog or
// button is reported as false; only context and transport errors are returned.
func (p *InterventionsPage) HandleConfirmation(ctx context.Context) (bool, error) {
	if err := p.pause(ctx, p.t.MediumWait); err != nil {
		return false, err
	}
	if _, err := p.res.Resolve(ctx, []string{selectors.Dialog}, "Confirmation modal", resolver.Present); err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		p.logger.Error("Confirmation modal not found.")
		p.sink.AttachScreenshot(ctx, "Modal not found")
		return false, nil
	}
	p.sink.AttachScreenshot(ctx, "Confirmation modal appeared")
	p.verifyDialogContent(ctx)

	if err := p.res.ResolveAndClick(ctx, selectors.ConfirmButton, "Confirm button"); err != nil {
		if !errors.Is(err, autoerr.ErrElementNotFound) || ctx.Err() != nil {
			return false, err
		}
		p.logger.Error("Confirm button not found in modal.")
		p.sink.AttachScreenshot(ctx, "Confirm button not found")
		return false, nil
	}
	if err := p.pause(ctx, p.t.LongWait); err != nil {
		return false, err
	}
	p.sink.AttachScreenshot(ctx, "After confirmation")
	return true, nil
}

// verifyDialogContent records whether the title and service name are shown. Never fails.
func (p *InterventionsPage) verifyDialogContent(ctx context.Context) {
	checks := []namedSelectors{
		{"Modal title", []string{selectors.DialogTitle}},
		{"Service name in modal", []string{selectors.DialogService(p.office.Service)}},
	}
	if _, err := p.resolveAll(ctx, resolver.Present, checks); err != nil {
		p.logger.Warn("Modal content verification failed.", zap.Error(err))
		p.sink.AddParameter("Modal Verification", "FAILED: "+err.Error())
		return
	}
	p.sink.AddParameter("Modal Verification", "All required elements found")
}

// VerifyScheduled accepts either the event on the calendar or the card
// having left the requested list.
func (p *InterventionsPage) VerifyScheduled(ctx context.Context) (bool, error) {
	if err := p.pause(ctx, p.t.LongWait); err != nil {
		return false, err
	}
	if p.verifier.EventInCalendar(ctx) {
		p.sink.AttachScreenshot(ctx, "Intervention scheduled in calendar")
		return true, nil
	}
	i, _, err := p.targetIndex(ctx)
	if err != nil {
		return false, err
	}
	if i < 0 {
		p.logger.Info("Intervention card no longer in requested state.")
		p.sink.AttachScreenshot(ctx, "Intervention removed from requested list")
		return true, nil
	}
	p.logger.Warn("Could not verify intervention scheduling.")
	p.sink.AttachScreenshot(ctx, "Scheduling verification failed")
	return false, nil
}

// AppointmentExists reports whether the vehicle's card is listed.
func (p *InterventionsPage) AppointmentExists(ctx context.Context) (bool, error) {
	if err := p.pause(ctx, p.t.LongWait); err != nil {
		return false, err
	}
	i, _, err := p.targetIndex(ctx)
	if err != nil {
		return false, err
	}
	return i >= 0, nil
}

// ScheduleIntervention runs drag, confirmation when a dialog is shown, and
// verification, recording the outcome as the "Scheduling Result" parameter.
func (p *InterventionsPage) ScheduleIntervention(ctx context.Context) (bool, error) {
	p.logger.Info("Starting complete intervention scheduling flow.")
	result := func(v string) { p.sink.AddParameter("Scheduling Result", v) }

	dropped, err := p.DragToCalendar(ctx)
	switch {
	case errors.Is(err, errNoSlot):
		result("FAILED - No available slot")
		return false, nil
	case err != nil:
		result("FAILED - " + err.Error())
		p.sink.AttachScreenshot(ctx, "Scheduling flow error")
		return false, err
	case !dropped:
		result("FAILED - Drag and drop unsuccessful")
		return false, nil
	}

	// The app may place the event directly without asking for confirmation.
	if p.verifier.DialogPresent(ctx) {
		confirmed, err := p.HandleConfirmation(ctx)
		if err != nil {
			result("FAILED - " + err.Error())
			return false, err
		}
		if !confirmed {
			result("FAILED - Confirmation unsuccessful")
			return false, nil
		}
	} else {
		p.logger.Info("No confirmation dialog shown, verifying placement.")
	}

	ok, err := p.VerifyScheduled(ctx)
	if err != nil {
		result("FAILED - " + err.Error())
		return false, err
	}
	if !ok {
		result("FAILED - Verification unsuccessful")
		return false, nil
	}
	result("SUCCESS")
	p.sink.LogStep("Intervention successfully scheduled in calendar")
	return true, nil
}
