package pages

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carservice/autotest/internal/autoerr"
	"github.com/carservice/autotest/internal/browser"
	"github.com/carservice/autotest/internal/config"
)

var bookingVehicle = config.VehicleConfig{
	PlateNumero:   "1234",
	PlateSerie:    "ABC",
	Mileage:       "15000",
	ChassisNumber: "VF12345",
	Description:   "Engine warning light stays on",
}

// clicked reports whether any click ref contains fragment.
func (f *fakeBrowser) clicked(fragment string) bool {
	for _, ref := range f.clicks {
		if strings.Contains(ref, fragment) {
			return true
		}
	}
	return false
}

// -- vehicle identification --

const identificationHTML = `<html><body>
<a id="navbarDropdown" class="nav-link dropdown-toggle">FR</a>
<button class="dropdown-item">Anglais</button>
<button class="hero">Make an APPOINTMENT</button>
<div class="container-mat"><div class="option"><p>Serie normale (TU)</p></div></div>
<input maxlength="3"/><input maxlength="4"/><input maxlength="7"/>
<button class="ot-button-primary">Next</button>
</body></html>`

// requireAllPlateFields enables Next once serie, numero and chassis hold text.
func requireAllPlateFields(f *fakeBrowser, ref string) (bool, bool) {
	if !strings.Contains(ref, "ot-button-primary") {
		return false, false
	}
	for _, n := range []string{"'3'", "'4'", "'7'"} {
		if f.typedInto("@maxlength="+n) == "" {
			return false, true
		}
	}
	return true, true
}

func TestVehicleIdentification_LanguageAndStart(t *testing.T) {
	ctx := context.Background()
	fake := newFake(identificationHTML)
	sink := newSink()
	page := NewVehicleIdentificationPage(deps(t, fake, sink), bookingVehicle)

	require.NoError(t, page.SwitchToEnglish(ctx))
	require.NoError(t, page.Start(ctx))
	require.Len(t, fake.clicks, 5)
	assert.Contains(t, fake.clicks[0], "navbarDropdown")
	assert.Contains(t, fake.clicks[1], "Anglais")
	assert.Contains(t, fake.clicks[2], "Make an APPOINTMENT")
	assert.Contains(t, fake.clicks[3], "Serie normale (TU)")
	assert.Contains(t, fake.clicks[4], "ot-button-primary")
	assert.Contains(t, sink.shots, "Vehicle identification form")
}

func TestVehicleIdentification_LanguageMenuIsOptional(t *testing.T) {
	fake := newFake(`<html><body><button class="hero">Prendre un RDV</button></body></html>`)
	require.NoError(t, NewVehicleIdentificationPage(deps(t, fake, newSink()), bookingVehicle).SwitchToEnglish(context.Background()))
	assert.Empty(t, fake.clicks)
}

func TestVehicleIdentification_ValidateInputs(t *testing.T) {
	fake := newFake(identificationHTML)
	fake.enabled = requireAllPlateFields
	sink := newSink()

	require.NoError(t, NewVehicleIdentificationPage(deps(t, fake, sink), bookingVehicle).ValidateInputs(context.Background()))
	assert.Equal(t, "ABC", fake.typedInto("@maxlength='3'"))
	assert.Equal(t, "1234", fake.typedInto("@maxlength='4'"))
	// restored after the clearing check
	assert.Equal(t, "VF12345", fake.typedInto("@maxlength='7'"))
	assert.Equal(t, "All checks passed", sink.params["Vehicle Identification Validation"])
}

func TestVehicleIdentification_ValidateInputsCatchesEarlyNext(t *testing.T) {
	fake := newFake(identificationHTML)
	fake.enabled = func(_ *fakeBrowser, ref string) (bool, bool) {
		return true, strings.Contains(ref, "ot-button-primary")
	}

	err := NewVehicleIdentificationPage(deps(t, fake, newSink()), bookingVehicle).ValidateInputs(context.Background())
	var fve *autoerr.FormValidationError
	require.ErrorAs(t, err, &fve)
	assert.Equal(t, "empty fields disable Next", fve.Check)
	assert.Equal(t, "enabled=true", fve.Got)
}

func TestVehicleIdentification_FillAndContinue(t *testing.T) {
	ctx := context.Background()
	fake := newFake(identificationHTML)
	fake.typed[`//input[@maxlength='3'][0]`] = "XYZ"
	sink := newSink()
	page := NewVehicleIdentificationPage(deps(t, fake, sink), bookingVehicle)

	require.NoError(t, page.Fill(ctx))
	assert.Equal(t, "ABC", fake.typedInto("@maxlength='3'"))
	assert.Len(t, fake.cleared, 3)
	assert.Equal(t, "1234TUABC", sink.params["Vehicle Plate"])

	require.NoError(t, page.Continue(ctx))
	require.Len(t, fake.clicks, 1)
	assert.Contains(t, fake.clicks[0], "Next")

	_, err := NewVehicleIdentificationPage(deps(t, newFake(`<html><body></body></html>`), newSink()), bookingVehicle).inputs(ctx)
	assert.ErrorIs(t, err, autoerr.ErrPageNotLoaded)
}

// -- diagnostic form --

func diagnosticHTML(checkbox string) string {
	return `<html><body>
<div class="tab"><p class="tab-text">Diagnostic Service</p></div>
` + checkbox + `
<p-inputnumber formcontrolname="km"><input class="p-inputnumber-input"/></p-inputnumber>
<textarea formcontrolname="description"></textarea>
<div class="upload"><input type="file" accept="image/*" style="display:none"/></div>
<span class="file-name">scan.png</span>
<button class="ot-button-primary">Next</button>
</body></html>`
}

const uncheckedBreakdown = `<input type="checkbox" id="type-BREAKDOWN"/>`

// digitsOnly models the numeric mileage input.
func digitsOnly(ref, text string) string {
	if !strings.Contains(ref, "'km'") {
		return text
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, text)
}

func TestDiagnosticForm_Fill(t *testing.T) {
	ctx := context.Background()
	fake := newFake(diagnosticHTML(uncheckedBreakdown))
	fake.filter = digitsOnly
	sink := newSink()
	page := NewDiagnosticFormPage(deps(t, fake, sink), bookingVehicle, "")

	require.NoError(t, page.SelectService(ctx))
	require.NoError(t, page.Fill(ctx))

	assert.True(t, fake.clicked("Diagnostic Service"))
	assert.True(t, fake.clicked("BREAKDOWN"))
	assert.Equal(t, "15000", fake.typedInto("'km'"))
	assert.Equal(t, bookingVehicle.Description, fake.typedInto("description"))
	assert.Equal(t, "15000", sink.params["Mileage"])
	assert.Equal(t, "before=true after=true", sink.params["Next Without Description"])
	assert.NotContains(t, sink.params, "Attachment")
	assert.Contains(t, sink.shots, "Diagnostic form filled")
}

func TestDiagnosticForm_CheckedBreakdownIsLeftAlone(t *testing.T) {
	fake := newFake(diagnosticHTML(`<input type="checkbox" id="type-BREAKDOWN" checked=""/>`))
	fake.filter = digitsOnly

	require.NoError(t, NewDiagnosticFormPage(deps(t, fake, newSink()), bookingVehicle, "").Fill(context.Background()))
	assert.False(t, fake.clicked("BREAKDOWN"))
}

func TestDiagnosticForm_MileageAcceptingLetters(t *testing.T) {
	fake := newFake(diagnosticHTML(uncheckedBreakdown))

	err := NewDiagnosticFormPage(deps(t, fake, newSink()), bookingVehicle, "").Fill(context.Background())
	var fve *autoerr.FormValidationError
	require.ErrorAs(t, err, &fve)
	assert.Equal(t, "mileage rejects letters", fve.Check)
	assert.Equal(t, "15ABC000", fve.Got)
}

func TestDigits(t *testing.T) {
	assert.Equal(t, "15000", digits("15,000"))
	assert.Equal(t, "15000", digits("15 000"))
	assert.Equal(t, "15000", digits("15\u00a0000"))
	assert.Equal(t, "15000", digits("15\u202f000"))
}

func TestDiagnosticForm_Upload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "scan.png")
	require.NoError(t, os.WriteFile(path, []byte("png"), 0o644))

	fake := newFake(diagnosticHTML(uncheckedBreakdown))
	fake.filter = digitsOnly
	sink := newSink()

	require.NoError(t, NewDiagnosticFormPage(deps(t, fake, sink), bookingVehicle, path).Fill(ctx))
	require.Len(t, fake.files, 1)
	for ref, files := range fake.files {
		assert.Contains(t, ref, "@type='file'")
		assert.Equal(t, []string{path}, files)
	}
	assert.Contains(t, fake.scripts, revealScript)
	assert.Equal(t, "scan.png", sink.params["Attachment"])

	t.Run("missing file", func(t *testing.T) {
		err := NewDiagnosticFormPage(deps(t, fake, newSink()), bookingVehicle, "").Upload(ctx, filepath.Join(t.TempDir(), "nope.png"))
		assert.ErrorIs(t, err, fs.ErrNotExist)
	})

	t.Run("port without uploads", func(t *testing.T) {
		plain := struct{ browser.Port }{fake}
		err := NewDiagnosticFormPage(deps(t, plain, newSink()), bookingVehicle, "").Upload(ctx, path)
		assert.ErrorIs(t, err, autoerr.ErrUnsupported)
	})
}

// -- repairer, date and time --

func repairerHTML(days, hours string) string {
	return `<html><body>
<div class="info-button"><p>+ info</p></div>
<div class="container-detail-agency">Atlas Auto, Route de la Marsa</div>
<img src="/assets/icon-close-info.png"/>
<div class="check-agency"><p class="check-agency-title">Select this repairer</p></div>
<div class="picker">` + days + `</div>
<div class="slots">` + hours + `</div>
<button class="ot-button-primary">Next</button>
</body></html>`
}

func day(n, extra string) string {
	return `<div role="gridcell" class="ngb-dp-day` + extra + `"><div class="btn-light">` + n + `</div></div>`
}

const openHours = `<div class="hour disabled"><p class="hour-title">08:00</p></div><div class="hour"><p class="hour-title">09:00</p></div>`

var booking = config.EndUserConfig{PreferredDays: []int{8}, DateAttempts: 2}

func TestRepairer_InfoAndSelect(t *testing.T) {
	ctx := context.Background()
	fake := newFake(repairerHTML(day("8", ""), openHours))
	sink := newSink()
	page := NewRepairerPage(deps(t, fake, sink), booking)

	require.NoError(t, page.ViewInfo(ctx))
	require.NoError(t, page.CloseInfo(ctx))
	require.NoError(t, page.Select(ctx))
	require.NoError(t, page.Continue(ctx))

	require.Len(t, fake.clicks, 4)
	assert.Contains(t, fake.clicks[0], "info-button")
	assert.Contains(t, fake.clicks[1], "icon-close-info")
	assert.Contains(t, fake.clicks[2], "check-agency")
	assert.Contains(t, fake.clicks[3], "ot-button-primary")
	assert.Contains(t, fake.scripts, scrollToBottomScript)
	assert.Contains(t, sink.shots, "Repairer information")
}

func TestRepairer_SelectDateAndTime(t *testing.T) {
	ctx := context.Background()

	t.Run("preferred day", func(t *testing.T) {
		fake := newFake(repairerHTML(day("7", "")+day("8", ""), openHours))
		sink := newSink()
		require.NoError(t, NewRepairerPage(deps(t, fake, sink), booking).SelectDateAndTime(ctx))
		assert.Equal(t, "8", sink.params["Selected Date"])
		assert.Equal(t, "09:00", sink.params["Selected Time"])
		assert.True(t, fake.clicked("text()='8'"))
	})

	t.Run("preferred day disabled", func(t *testing.T) {
		fake := newFake(repairerHTML(day("7", "")+day("8", " disabled"), openHours))
		sink := newSink()
		require.NoError(t, NewRepairerPage(deps(t, fake, sink), booking).SelectDateAndTime(ctx))
		assert.Equal(t, "7", sink.params["Selected Date"])
	})

	t.Run("agency closed", func(t *testing.T) {
		fake := newFake(repairerHTML(day("7", "")+day("8", ""), `<p>Agency closed</p>`+openHours))
		sink := newSink()
		err := NewRepairerPage(deps(t, fake, sink), booking).SelectDateAndTime(ctx)
		assert.ErrorIs(t, err, ErrNoBookableTime)
		assert.ErrorContains(t, err, "after 2 attempts")
		assert.False(t, fake.clicked("hour-title"))
		assert.Contains(t, sink.shots, "No bookable time")
	})

	t.Run("no open hour", func(t *testing.T) {
		fake := newFake(repairerHTML(day("8", ""), ""))
		err := NewRepairerPage(deps(t, fake, newSink()), booking).SelectDateAndTime(ctx)
		assert.ErrorIs(t, err, ErrNoBookableTime)
	})
}

// -- confirmation --

const recapHTML = `<html><body>
<p>Diagnostic Service</p>
<p class="recap-title">Your authorized repairer</p>
<p class="recap-title">Date &amp; Hour</p>
<button class="ot-button-primary">Confirm</button>
</body></html>`

const successHTML = `<html><body><div class="title-container">
<p class="title">Obtain your final receipt</p>
<p class="subtitle">Congratulations! Your appointment has been successfully registered</p>
</div></body></html>`

const pendingHTML = `<html><body><app-modal-verification-appointement>
<div>You cannot make another appointment request for this vehicle</div>
<button class="btn previous-button">Préserver ma demande</button>
</app-modal-verification-appointement></body></html>`

func confirmAfterSubmit(next string) func(*fakeBrowser, string) {
	return func(f *fakeBrowser, ref string) {
		if strings.Contains(ref, "Confirm") {
			f.show(next)
		}
	}
}

func TestBookingConfirmation_Confirmed(t *testing.T) {
	ctx := context.Background()
	fake := newFake(recapHTML)
	fake.onClick = confirmAfterSubmit(successHTML)
	sink := newSink()
	page := NewBookingConfirmationPage(deps(t, fake, sink))

	page.VerifySummary(ctx)
	assert.Equal(t, "All sections found", sink.params["Summary Verification"])
	assert.False(t, page.IsConfirmed(ctx))

	require.NoError(t, page.Submit(ctx))
	result, err := page.Finish(ctx)
	require.NoError(t, err)
	assert.Equal(t, BookingConfirmed, result)
	assert.Equal(t, BookingConfirmed, sink.params["Booking Result"])
	assert.Equal(t, "Obtain your final receipt", sink.params["Confirmation Message"])
	assert.True(t, page.IsConfirmed(ctx))
}

func TestBookingConfirmation_PreservesPendingRequest(t *testing.T) {
	ctx := context.Background()
	fake := newFake(recapHTML)
	fake.onClick = confirmAfterSubmit(pendingHTML)
	sink := newSink()
	page := NewBookingConfirmationPage(deps(t, fake, sink))

	require.NoError(t, page.Submit(ctx))
	result, err := page.Finish(ctx)
	require.NoError(t, err)
	assert.Equal(t, BookingPreserved, result)
	assert.True(t, fake.clicked("Préserver ma demande"))
	assert.Contains(t, sink.shots, "Existing request warning")
}

func TestBookingConfirmation_NothingShown(t *testing.T) {
	ctx := context.Background()
	sink := newSink()
	page := NewBookingConfirmationPage(deps(t, newFake(`<html><body></body></html>`), sink))

	page.VerifySummary(ctx)
	assert.True(t, strings.HasPrefix(sink.params["Summary Verification"], "FAILED: "))

	_, err := page.Finish(ctx)
	assert.ErrorIs(t, err, autoerr.ErrElementNotFound)
	assert.Contains(t, sink.shots, "Confirmation message missing")
}
