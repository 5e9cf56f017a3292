package selectors

import "fmt"

// End-user site: landing page and vehicle identification.
var (
	LanguageDropdown = []string{"//a[@id='navbarDropdown' and contains(@class, 'dropdown-toggle')]"}
	EnglishOption    = []string{"//button[contains(@class, 'dropdown-item') and contains(., 'Anglais')]"}
	MakeAppointment  = []string{"//button[contains(., 'Make an APPOINTMENT') or contains(., 'Prendre un RDV')]"}
	SerieNormale     = []string{"//div[contains(@class, 'container-mat')]//p[contains(text(), 'Serie normale (TU)')]/parent::div"}
	// WizardNext is the primary button shared by every step of the booking wizard.
	WizardNext = []string{"//button[contains(@class, 'ot-button-primary') and (contains(., 'Next') or contains(., 'Suivant'))]"}

	PlateSerieInput  = []string{"//input[@maxlength='3']"}
	PlateNumeroInput = []string{"//input[@maxlength='4']"}
	ChassisInput     = []string{"//input[@maxlength='7']"}
)

// Diagnostic service form.
var (
	DiagnosticService = []string{
		"//div[contains(@class, 'tab')]//p[contains(@class, 'tab-text') and (contains(text(), 'Diagnostic Service') or contains(text(), 'Service de diagnostic'))]/parent::div",
	}
	BreakdownCheckbox = []string{"//input[@type='checkbox' and contains(@id, 'BREAKDOWN')]"}
	MileageInput      = []string{"//p-inputnumber[@formcontrolname='km']//input"}
	DescriptionInput  = []string{"//textarea[@formcontrolname='description']"}
	FileInput         = []string{
		"//input[@type='file']",
		"//input[@accept='image/*']",
		"//*[@class='file-upload']//input",
		"//div[contains(@class, 'upload')]//input[@type='file']",
	}
)

// UploadIndicators lists markers shown once the named file is attached.
func UploadIndicators(fileName string) []string {
	return []string{
		"//div[contains(@class, 'upload-success')]",
		"//span[contains(@class, 'file-name')]",
		fmt.Sprintf("//div[contains(text(), '%s')]", fileName),
		"//*[contains(@class, 'uploaded-file')]",
		"//i[contains(@class, 'success')] | //i[contains(@class, 'check')]",
	}
}

// Repairer, date and time selection.
var (
	RepairerInfo      = []string{"//div[contains(@class, 'info-button')]//p[(contains(text(), '+ info') or contains(text(), '+ infos'))]/parent::div"}
	RepairerInfoPanel = []string{"//div[contains(@class, 'container-detail-agency')]"}
	RepairerInfoClose = []string{"//img[contains(@src, 'icon-close-info.png')]"}
	SelectRepairer    = []string{
		"//p[contains(@class, 'check-agency-title') and (contains(text(), 'Select this repairer') or contains(text(), 'Sélectionner ce réparateur'))]/ancestor::div[contains(@class, 'check-agency')]",
	}
	AgencyClosed = []string{
		"//p[contains(text(), 'Agency closed')]",
		"//img[contains(@src, 'calendar-Not-Available.png')]",
		"//div[contains(text(), 'Agency closed')]",
	}
	TimeSlots = []string{
		"//div[contains(@class, 'hour') and not(contains(@class, 'disabled'))]//p[contains(@class, 'hour-title')]",
		"//div[contains(@class, 'container-hours')]//div[contains(@class, 'hour')]//p[contains(text(), ':')]",
		"//p[contains(@class, 'hour-title') and contains(text(), ':')]",
	}
)

// PickerDay matches an enabled date picker cell showing day of month d.
func PickerDay(d int) []string {
	return []string{fmt.Sprintf("//div[@role='gridcell' and contains(@class, 'ngb-dp-day') and not(contains(@class, 'disabled'))]//div[text()='%d']", d)}
}

// PickerAnyDay matches the n-th enabled, in-month picker cell (1-based).
func PickerAnyDay(n int) []string {
	return []string{fmt.Sprintf("(//div[@role='gridcell' and contains(@class, 'ngb-dp-day') and not(contains(@class, 'disabled'))]//div[contains(@class, 'btn-light') and not(contains(@class, 'text-muted'))])[%d]", n)}
}

// Booking recap and confirmation.
var (
	RecapService  = []string{"//p[contains(text(), 'Diagnostic Service')]"}
	RecapRepairer = []string{"//p[contains(@class, 'recap-title') and contains(text(), 'authorized repairer')]"}
	RecapDateTime = []string{"//p[contains(@class, 'recap-title') and contains(text(), 'Date & Hour')]"}
	BookingSubmit = []string{"//button[contains(@class, 'ot-button-primary') and (contains(., 'Confirm') or contains(., 'Confirmer'))]"}

	// PendingRequestModal warns that a request is already open for the vehicle.
	PendingRequestModal = []string{
		"//app-modal-verification-appointement",
		"//div[contains(text(), 'You cannot make another appointment request') or contains(text(), 'Vous ne pouvez pas faire')]",
		"//img[contains(@src, 'alert-danger-circle.png')]/parent::div/parent::div",
		"//button[contains(text(), 'Préserver ma demande')]",
	}
	PreserveRequest = []string{
		"//button[contains(text(), 'Préserver ma demande')]",
		"//button[contains(@class, 'previous-button') and contains(text(), 'Préserver')]",
		"//app-modal-verification-appointement//button[contains(@class, 'btn')]",
	}
	BookingSuccess = []string{
		"//p[contains(@class, 'title') and (contains(text(), 'Obtain your final receipt') or contains(text(), 'Obtenir votre reçu final'))]",
		"//p[contains(@class, 'subtitle') and (contains(text(), 'Congratulations! Your appointment has been successfully') or contains(text(), 'Félicitations ! Votre RDV a été enregistré avec succès'))]",
		"//div[contains(@class, 'title-container')]//p[contains(@class, 'title')]",
		"//p[contains(text(), 'Congratulations') or contains(text(), 'Félicitations')]",
		"//p[contains(text(), 'final receipt') or contains(text(), 'reçu final')]",
		"//div[contains(@class, 'title-container')]",
	}
)
