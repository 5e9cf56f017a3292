package pages

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/carservice/autotest/internal/autoerr"
	"github.com/carservice/autotest/internal/browser"
	"github.com/carservice/autotest/internal/config"
	"github.com/carservice/autotest/internal/resolver"
	"github.com/carservice/autotest/internal/selectors"
)

// The public booking site is a wizard: vehicle identification, diagnostic
// form, repairer, date and time, then a recap to confirm. Every step ends on
// the same primary "Next" button.

// next clicks the wizard's primary button.
func (b *base) next(ctx context.Context, step string) error {
	if err := b.res.ResolveAndClick(ctx, selectors.WizardNext, "Next button after "+step); err != nil {
		return err
	}
	return b.pause(ctx, b.t.MediumWait)
}

// VehicleIdentificationPage identifies the vehicle by plate and chassis.
type VehicleIdentificationPage struct {
	base
	vehicle config.VehicleConfig
}

func NewVehicleIdentificationPage(d Deps, vehicle config.VehicleConfig) *VehicleIdentificationPage {
	return &VehicleIdentificationPage{base: newBase(d, "vehicle_identification_page"), vehicle: vehicle}
}

// SwitchToEnglish picks English in the language menu. A missing menu is
// logged and ignored; only context errors are returned.
func (p *VehicleIdentificationPage) SwitchToEnglish(ctx context.Context) error {
	p.logger.Info("Changing language to English.")
	err := p.res.ResolveAndClick(ctx, selectors.LanguageDropdown, "Language dropdown")
	if err == nil {
		if err = p.pause(ctx, p.t.ShortWait); err != nil {
			return err
		}
		err = p.res.ResolveAndClick(ctx, selectors.EnglishOption, "English language option")
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.logger.Warn("Could not change language, continuing with the current one.", zap.Error(err))
		return nil
	}
	return p.pause(ctx, p.t.MediumWait)
}

// Start opens the booking wizard on the normal series (TU) plate form.
func (p *VehicleIdentificationPage) Start(ctx context.Context) error {
	p.logger.Info("Starting appointment booking.")
	if err := p.res.ResolveAndClick(ctx, selectors.MakeAppointment, "Make an APPOINTMENT button"); err != nil {
		return err
	}
	if err := p.res.ResolveAndClick(ctx, selectors.SerieNormale, "Serie normale (TU) option"); err != nil {
		return err
	}
	if err := p.next(ctx, "plate type"); err != nil {
		return err
	}
	p.sink.AttachScreenshot(ctx, "Vehicle identification form")
	return nil
}

type plateInputs struct {
	serie, numero, chassis, next browser.Element
}

func (p *VehicleIdentificationPage) inputs(ctx context.Context) (plateInputs, error) {
	els, err := p.resolveAll(ctx, resolver.Present, []namedSelectors{
		{"Plate serie input", selectors.PlateSerieInput},
		{"Plate numero input", selectors.PlateNumeroInput},
		{"Chassis input", selectors.ChassisInput},
		{"Next button", selectors.WizardNext},
	})
	if err != nil {
		return plateInputs{}, &autoerr.PageNotLoadedError{Page: "vehicle identification", Err: err}
	}
	return plateInputs{serie: els[0], numero: els[1], chassis: els[2], next: els[3]}, nil
}

// expectNext checks the Next button state after letting the form react.
func (p *VehicleIdentificationPage) expectNext(ctx context.Context, next browser.Element, enabled bool, check string) error {
	if err := p.pause(ctx, p.t.Settle); err != nil {
		return err
	}
	got, err := p.port.IsEnabled(ctx, next)
	if err != nil {
		return fmt.Errorf("reading Next button state: %w", err)
	}
	if got != enabled {
		return &autoerr.FormValidationError{Form: "vehicle identification", Check: check, Got: "enabled=" + strconv.FormatBool(got)}
	}
	p.logger.Info("Vehicle identification check passed.", zap.String("check", check))
	return nil
}

// ValidateInputs walks the form from empty to complete and back, requiring
// Next to stay disabled until serie, numero and chassis are all set. The form
// is left complete.
func (p *VehicleIdentificationPage) ValidateInputs(ctx context.Context) error {
	in, err := p.inputs(ctx)
	if err != nil {
		return err
	}
	for _, el := range []browser.Element{in.serie, in.numero, in.chassis} {
		if err := p.port.Clear(ctx, el); err != nil {
			return err
		}
	}
	if err := p.expectNext(ctx, in.next, false, "empty fields disable Next"); err != nil {
		return err
	}

	steps := []struct {
		el      browser.Element
		text    string
		enabled bool
		check   string
	}{
		{in.serie, p.vehicle.PlateSerie, false, "serie alone keeps Next disabled"},
		{in.numero, p.vehicle.PlateNumero, false, "missing chassis keeps Next disabled"},
		{in.chassis, p.vehicle.ChassisNumber, true, "complete fields enable Next"},
	}
	for _, st := range steps {
		if err := p.port.Type(ctx, st.el, st.text); err != nil {
			return err
		}
		if err := p.expectNext(ctx, in.next, st.enabled, st.check); err != nil {
			return err
		}
	}

	if err := p.port.Clear(ctx, in.chassis); err != nil {
		return err
	}
	if err := p.expectNext(ctx, in.next, false, "clearing chassis disables Next"); err != nil {
		return err
	}
	if err := p.port.Type(ctx, in.chassis, p.vehicle.ChassisNumber); err != nil {
		return err
	}
	p.sink.AddParameter("Vehicle Identification Validation", "All checks passed")
	return nil
}

// Fill replaces the three identification fields with the configured vehicle.
func (p *VehicleIdentificationPage) Fill(ctx context.Context) error {
	in, err := p.inputs(ctx)
	if err != nil {
		return err
	}
	for _, f := range []struct {
		el   browser.Element
		text string
	}{{in.serie, p.vehicle.PlateSerie}, {in.numero, p.vehicle.PlateNumero}, {in.chassis, p.vehicle.ChassisNumber}} {
		if err := p.clearAndType(ctx, f.el, f.text); err != nil {
			return err
		}
	}
	p.sink.AddParameter("Vehicle Plate", p.vehicle.ExpectedPlate())
	return nil
}

// Continue submits the identification step.
func (p *VehicleIdentificationPage) Continue(ctx context.Context) error {
	return p.next(ctx, "vehicle identification")
}

// DiagnosticFormPage describes the problem for the diagnostic service.
type DiagnosticFormPage struct {
	base
	vehicle    config.VehicleConfig
	attachment string
}

func NewDiagnosticFormPage(d Deps, vehicle config.VehicleConfig, attachment string) *DiagnosticFormPage {
	return &DiagnosticFormPage{base: newBase(d, "diagnostic_form_page"), vehicle: vehicle, attachment: attachment}
}

func (p *DiagnosticFormPage) SelectService(ctx context.Context) error {
	p.logger.Info("Selecting diagnostic service.")
	return p.res.ResolveAndClick(ctx, selectors.DiagnosticService, "Diagnostic Service")
}

// Fill ticks the breakdown option, checks mileage and description input
// handling, enters the configured values and uploads the attachment if any.
func (p *DiagnosticFormPage) Fill(ctx context.Context) error {
	p.logger.Info("Filling diagnostic form.")
	if err := p.port.ScrollBy(ctx, 300); err != nil {
		p.logger.Debug("Scroll failed.", zap.Error(err))
	}
	if err := p.tickBreakdown(ctx); err != nil {
		return err
	}
	if err := p.fillMileage(ctx); err != nil {
		return err
	}
	if err := p.fillDescription(ctx); err != nil {
		return err
	}
	if p.attachment != "" {
		if err := p.Upload(ctx, p.attachment); err != nil {
			return err
		}
	}
	if err := p.port.ScrollBy(ctx, 400); err != nil {
		p.logger.Debug("Scroll failed.", zap.Error(err))
	}
	p.sink.AttachScreenshot(ctx, "Diagnostic form filled")
	return nil
}

func (p *DiagnosticFormPage) tickBreakdown(ctx context.Context) error {
	box, err := p.res.Resolve(ctx, selectors.BreakdownCheckbox, "Breakdown checkbox", resolver.Present)
	if err != nil {
		return err
	}
	checked, err := p.port.IsChecked(ctx, box)
	if err != nil {
		return fmt.Errorf("reading breakdown checkbox: %w", err)
	}
	if checked {
		return nil
	}
	return p.res.Click(ctx, box, "Breakdown checkbox")
}

// typeAndRead replaces the control's content and returns what it kept.
func (p *DiagnosticFormPage) typeAndRead(ctx context.Context, el browser.Element, text string) (string, error) {
	if err := p.clearAndType(ctx, el, text); err != nil {
		return "", err
	}
	if err := p.pause(ctx, p.t.Settle); err != nil {
		return "", err
	}
	return p.port.Value(ctx, el)
}

// digits drops the grouping separators the number input renders.
func digits(v string) string {
	return strings.NewReplacer(",", "", " ", "", "\u00a0", "", "\u202f", "").Replace(v)
}

func (p *DiagnosticFormPage) fillMileage(ctx context.Context) error {
	input, err := p.res.Resolve(ctx, selectors.MileageInput, "Mileage input", resolver.Present)
	if err != nil {
		return err
	}
	if err := p.res.Click(ctx, input, "Mileage input"); err != nil {
		return err
	}
	rejects := []struct {
		text, check, banned string
	}{
		{"15ABC000", "mileage rejects letters", "ABC"},
		{"15000@#$", "mileage rejects symbols", "@#$"},
	}
	for _, r := range rejects {
		got, err := p.typeAndRead(ctx, input, r.text)
		if err != nil {
			return err
		}
		if strings.ContainsAny(digits(got), r.banned) {
			return &autoerr.FormValidationError{Form: "diagnostic", Check: r.check, Got: got}
		}
	}
	negative, err := p.typeAndRead(ctx, input, "-5000")
	if err != nil {
		return err
	}
	p.logger.Info("Mileage after entering a negative value.", zap.String("value", negative))

	got, err := p.typeAndRead(ctx, input, p.vehicle.Mileage)
	if err != nil {
		return err
	}
	if digits(got) != p.vehicle.Mileage {
		return &autoerr.FormValidationError{Form: "diagnostic", Check: "mileage keeps a valid value", Got: got}
	}
	p.sink.AddParameter("Mileage", p.vehicle.Mileage)
	return nil
}

func (p *DiagnosticFormPage) fillDescription(ctx context.Context) error {
	area, err := p.res.Resolve(ctx, selectors.DescriptionInput, "Description textarea", resolver.Present)
	if err != nil {
		return err
	}
	if err := p.res.Click(ctx, area, "Description textarea"); err != nil {
		return err
	}
	for _, sample := range []string{"x", "   "} {
		if _, err := p.typeAndRead(ctx, area, sample); err != nil {
			return err
		}
	}
	got, err := p.typeAndRead(ctx, area, p.vehicle.Description)
	if err != nil {
		return err
	}
	if got != p.vehicle.Description {
		return &autoerr.FormValidationError{Form: "diagnostic", Check: "description keeps a valid value", Got: got}
	}

	// The description is mandatory: record how Next reacts to losing it.
	if next, ok := p.res.Lookup(ctx, selectors.WizardNext, "Next button", resolver.Present); ok {
		before, _ := p.port.IsEnabled(ctx, next)
		if err := p.port.Clear(ctx, area); err != nil {
			return err
		}
		if err := p.pause(ctx, p.t.Settle); err != nil {
			return err
		}
		after, _ := p.port.IsEnabled(ctx, next)
		p.sink.AddParameter("Next Without Description", fmt.Sprintf("before=%t after=%t", before, after))
		if err := p.port.Type(ctx, area, p.vehicle.Description); err != nil {
			return err
		}
	}
	return nil
}

// Upload attaches a local file to the form's file input.
func (p *DiagnosticFormPage) Upload(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("attachment: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("attachment %s is a directory", path)
	}
	setter, ok := p.port.(browser.FileSetter)
	if !ok {
		return fmt.Errorf("attachment upload: %w", autoerr.ErrUnsupported)
	}
	p.logger.Info("Uploading attachment.", zap.String("path", path), zap.Int64("bytes", info.Size()))

	input, err := p.res.Resolve(ctx, selectors.FileInput, "File upload input", resolver.Present)
	if err != nil {
		return err
	}
	// File inputs are usually hidden behind a styled button.
	if err := p.port.CallOn(ctx, revealScript, input); err != nil {
		p.logger.Debug("Could not reveal file input.", zap.Error(err))
	}
	if err := setter.SetFiles(ctx, input, path); err != nil {
		p.sink.AttachScreenshot(ctx, "File upload error")
		return fmt.Errorf("uploading %s: %w", path, err)
	}
	if err := p.pause(ctx, p.t.MediumWait); err != nil {
		return err
	}

	name := filepath.Base(path)
	shown := false
	for _, xp := range selectors.UploadIndicators(name) {
		if p.res.Exists(ctx, xp) {
			shown = true
			break
		}
	}
	if !shown {
		p.logger.Warn("No upload indicator found.", zap.String("file", name))
	}
	p.sink.AddParameter("Attachment", name)
	return nil
}

const revealScript = `function(el) {
	el.style.display = 'block';
	el.style.visibility = 'visible';
	el.style.opacity = '1';
	el.style.height = 'auto';
	el.style.width = 'auto';
}`

// Continue submits the diagnostic form.
func (p *DiagnosticFormPage) Continue(ctx context.Context) error {
	return p.next(ctx, "diagnostic form")
}

// RepairerPage picks the repairer, then a date and a time for the visit.
type RepairerPage struct {
	base
	booking config.EndUserConfig
}

func NewRepairerPage(d Deps, booking config.EndUserConfig) *RepairerPage {
	return &RepairerPage{base: newBase(d, "repairer_page"), booking: booking}
}

const scrollToBottomScript = `function(el) { el.scrollTop = el.scrollHeight; }`

// ViewInfo opens the repairer details and scrolls through them.
func (p *RepairerPage) ViewInfo(ctx context.Context) error {
	p.logger.Info("Viewing repairer information.")
	if err := p.res.ResolveAndClick(ctx, selectors.RepairerInfo, "+ info button"); err != nil {
		return err
	}
	if err := p.pause(ctx, p.t.ShortWait); err != nil {
		return err
	}
	panel, err := p.res.Resolve(ctx, selectors.RepairerInfoPanel, "Repairer info panel", resolver.Present)
	if err != nil {
		return err
	}
	if err := p.port.CallOn(ctx, scrollToBottomScript, panel); err != nil {
		p.logger.Debug("Could not scroll info panel.", zap.Error(err))
	}
	p.sink.AttachScreenshot(ctx, "Repairer information")
	return p.pause(ctx, p.t.ShortWait)
}

func (p *RepairerPage) CloseInfo(ctx context.Context) error {
	if err := p.res.ResolveAndClick(ctx, selectors.RepairerInfoClose, "Close info button"); err != nil {
		return err
	}
	return p.pause(ctx, p.t.Settle)
}

func (p *RepairerPage) Select(ctx context.Context) error {
	p.logger.Info("Selecting repairer.")
	if err := p.pause(ctx, p.t.MediumWait); err != nil {
		return err
	}
	if err := p.res.ResolveAndClick(ctx, selectors.SelectRepairer, "Select this repairer button"); err != nil {
		return err
	}
	return p.pause(ctx, p.t.ShortWait)
}

// ErrNoBookableTime is returned when every date tried was closed or full.
var ErrNoBookableTime = errors.New("no bookable time found")

// SelectDateAndTime tries up to DateAttempts dates, preferred days first,
// skipping dates the agency is closed and picking the first open hour.
func (p *RepairerPage) SelectDateAndTime(ctx context.Context) error {
	p.logger.Info("Selecting date and time.")
	if err := p.pause(ctx, p.t.MediumWait); err != nil {
		return err
	}
	for attempt := 1; attempt <= p.booking.DateAttempts; attempt++ {
		logger := p.logger.With(zap.Int("attempt", attempt))
		date, err := p.pickDate(ctx, attempt)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn("No date could be picked.", zap.Error(err))
			continue
		}
		if err := p.pause(ctx, p.t.MediumWait); err != nil {
			return err
		}
		if p.agencyClosed(ctx) {
			logger.Info("Agency closed on the selected date, trying another.", zap.String("date", date))
			continue
		}
		hour, ok := p.pickTime(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !ok {
			logger.Info("No time slot available on the selected date.", zap.String("date", date))
			continue
		}
		p.sink.AddParameter("Selected Date", date)
		p.sink.AddParameter("Selected Time", hour)
		p.sink.AttachScreenshot(ctx, "Date and time selected")
		return nil
	}
	p.sink.AttachScreenshot(ctx, "No bookable time")
	return fmt.Errorf("%w after %d attempts", ErrNoBookableTime, p.booking.DateAttempts)
}

// pickDate clicks the attempt's preferred day, or the attempt-th enabled day.
func (p *RepairerPage) pickDate(ctx context.Context, attempt int) (string, error) {
	var cell browser.Element
	if attempt <= len(p.booking.PreferredDays) {
		day := p.booking.PreferredDays[attempt-1]
		el, ok := p.res.Lookup(ctx, selectors.PickerDay(day), fmt.Sprintf("Date picker day %d", day), resolver.Clickable)
		if ok {
			cell = el
		} else {
			p.logger.Warn("Preferred day not available, using any open day.", zap.Int("day", day))
		}
	}
	if cell == nil {
		el, err := p.res.Resolve(ctx, selectors.PickerAnyDay(attempt), "Any open date", resolver.Clickable)
		if err != nil {
			return "", err
		}
		cell = el
	}
	label, _ := p.port.Text(ctx, cell)
	if err := p.res.Click(ctx, cell, "Date "+label); err != nil {
		return "", err
	}
	return label, nil
}

func (p *RepairerPage) agencyClosed(ctx context.Context) bool {
	for _, xp := range selectors.AgencyClosed {
		if p.res.Exists(ctx, xp) {
			return true
		}
	}
	return false
}

func (p *RepairerPage) pickTime(ctx context.Context) (string, bool) {
	slot, ok := p.res.Lookup(ctx, selectors.TimeSlots, "Available time slot", resolver.Clickable)
	if !ok {
		return "", false
	}
	hour, _ := p.port.Text(ctx, slot)
	if err := p.res.Click(ctx, slot, "Time slot "+hour); err != nil {
		p.logger.Warn("Could not select time slot.", zap.Error(err))
		return "", false
	}
	return hour, true
}

// Continue submits the repairer, or the date and time, step.
func (p *RepairerPage) Continue(ctx context.Context) error {
	return p.next(ctx, "repairer selection")
}

// BookingConfirmationPage shows the recap and finalizes the request.
type BookingConfirmationPage struct {
	base
}

func NewBookingConfirmationPage(d Deps) *BookingConfirmationPage {
	return &BookingConfirmationPage{base: newBase(d, "booking_confirmation_page")}
}

// VerifySummary records whether service, repairer and date appear in the recap. Never fails.
func (p *BookingConfirmationPage) VerifySummary(ctx context.Context) {
	_, err := p.resolveAll(ctx, resolver.Present, []namedSelectors{
		{"Service recap", selectors.RecapService},
		{"Repairer recap", selectors.RecapRepairer},
		{"Date and hour recap", selectors.RecapDateTime},
	})
	if err != nil {
		p.logger.Warn("Could not verify every recap section.", zap.Error(err))
		p.sink.AddParameter("Summary Verification", "FAILED: "+err.Error())
		return
	}
	p.sink.AddParameter("Summary Verification", "All sections found")
}

func (p *BookingConfirmationPage) Submit(ctx context.Context) error {
	p.logger.Info("Confirming appointment.")
	if err := p.pause(ctx, p.t.MediumWait); err != nil {
		return err
	}
	if err := p.res.ResolveAndClick(ctx, selectors.BookingSubmit, "Confirm button"); err != nil {
		return err
	}
	return p.pause(ctx, p.t.MediumWait)
}

// Booking outcomes recorded as the "Booking Result" parameter.
const (
	BookingConfirmed = "Confirmed"
	BookingPreserved = "Existing request preserved"
)

// Finish handles what follows the submit: a warning that the vehicle already
// has an open request, which is kept, or the success message.
func (p *BookingConfirmationPage) Finish(ctx context.Context) (string, error) {
	if p.pendingRequest(ctx) {
		p.logger.Info("Vehicle already has an open request, preserving it.")
		p.sink.AttachScreenshot(ctx, "Existing request warning")
		if err := p.res.ResolveAndClick(ctx, selectors.PreserveRequest, "Preserve request button"); err != nil {
			return "", err
		}
		if err := p.pause(ctx, p.t.MediumWait); err != nil {
			return "", err
		}
		p.sink.AddParameter("Booking Result", BookingPreserved)
		return BookingPreserved, nil
	}

	msg, err := p.res.Resolve(ctx, selectors.BookingSuccess, "Confirmation message", resolver.Present)
	if err != nil {
		p.sink.AttachScreenshot(ctx, "Confirmation message missing")
		return "", err
	}
	text, err := p.port.Text(ctx, msg)
	if err != nil {
		p.logger.Info("Confirmation message found but its text is unreadable.", zap.Error(err))
	}
	p.sink.AddParameter("Confirmation Message", text)
	p.sink.AddParameter("Booking Result", BookingConfirmed)
	p.sink.AttachScreenshot(ctx, "Appointment confirmed")
	return BookingConfirmed, nil
}

func (p *BookingConfirmationPage) pendingRequest(ctx context.Context) bool {
	for _, xp := range selectors.PendingRequestModal {
		if p.res.Exists(ctx, xp) {
			return true
		}
	}
	return false
}

// IsConfirmed reports whether a success message is shown, without waiting.
func (p *BookingConfirmationPage) IsConfirmed(ctx context.Context) bool {
	for _, xp := range selectors.BookingSuccess {
		if p.res.Exists(ctx, xp) {
			return true
		}
	}
	return false
}
