// Package selectors centralizes the XPath fallback lists used by the page objects.
// Lists are ordered: callers try each entry in turn and keep the first match.
package selectors

import "fmt"

// Login page.
var (
	LoginUsername = []string{
		"//tui-input[@formcontrolname='username']//input[contains(@id, 'tui_')]",
		"//tui-input[@formcontrolname='username']//input[@type='text' and contains(@class, 't-input')]",
		"//input[@type='text' and preceding-sibling::*//label[contains(text(), 'Nom d')]]",
		"//div[contains(@class, 't-content')]//input[@type='text'][1]",
		"//input[@aria-describedby and @type='text' and not(@tuimaskaccessor)]",
	}
	LoginPassword = []string{
		"//tui-input-password[@formcontrolname='password']//input[contains(@id, 'tui_')]",
		"//tui-input-password[@formcontrolname='password']//input[@type='password' and contains(@class, 't-input')]",
		"//input[@type='password' and preceding-sibling::*//label[contains(text(), 'Mot de passe')]]",
		"//input[@type='password' and @aria-describedby]",
		"//tui-input-password//input[@type='password'][1]",
	}
	LoginButton = []string{
		"//button[@tuibutton]//span[@class='t-content' and contains(text(), 'Se connecter')]",
		"//button[@tuibutton and @data-appearance='primary' and @data-size='l']",
		"//button[@tuibutton]//tui-wrapper[@data-appearance='primary']",
		"//button[@tuibutton and @type='button' and contains(@class, 'w-100')]",
		"//button//span[contains(text(), 'Se connecter')]/ancestor::button",
		"//button[.//span[contains(text(), 'Se connecter')]]",
		"//button[@tuibutton]",
		"//button[@type='button']",
	}
	LoginTitle = []string{
		"//span[contains(text(), 'Authentification')]",
		"//h1[contains(text(), 'Login')]",
		"//div[contains(@class, 'auth-title')]",
		"//*[contains(text(), 'Authentification')]",
	}
)

// Workspace selection page.
var (
	WorkspaceTitle    = []string{"//span[contains(text(), 'Espace de travail')]"}
	WorkspaceDropdown = []string{
		"//tui-select[@tuitextfieldsize='m']//input[@readonly]",
		"//input[contains(@id, 'tui_interactive_') and @readonly]",
		"//tui-select//input[@readonly]",
		"//div[contains(@class, 't-wrapper')]//input[@readonly]",
	}
	WorkspaceStart  = []string{"//button[contains(., 'Commencer')]"}
	WorkspaceLogout = []string{"//button[contains(., 'Déconnexion')]"}
	Dashboard       = []string{
		"//div[contains(@class, 'main-side-menu')]",
		"//span[contains(text(), 'HAVAL')]",
		"//nav[contains(@class, 'workspace-services')]",
	}
)

// WorkspaceOption lists the dropdown entries for a named workspace.
func WorkspaceOption(name string) []string {
	return []string{
		fmt.Sprintf("//tui-select-option[contains(text(), '%s')]", name),
		fmt.Sprintf("//*[contains(text(), '%s')]", name),
		fmt.Sprintf("//tui-select-option[contains(normalize-space(text()), '%s')]", name),
		fmt.Sprintf("//tui-select-option[starts-with(normalize-space(text()), '%s')]", name),
		fmt.Sprintf("//div[contains(text(), '%s')] | //tui-select-option[contains(text(), '%s')]", name, name),
	}
}

// Interventions page: navigation and filters.
var (
	InterventionsMenu = []string{
		"//span[contains(text(), 'Mes interventions')]",
		"//a[@href='/public/appointments']",
		"//a[contains(@href, 'appointments')]//span[contains(text(), 'Mes interventions')]",
	}
	AgencyDropdown = []string{
		"//tui-select[@formcontrolname='agency']//input[@readonly]",
		"//tui-select[@formcontrolname='agency']//input",
		"//form//tui-select[1]//input[@readonly]",
	}
)

// AgencyOption lists the dropdown entries for a named agency.
func AgencyOption(name string) []string {
	return []string{
		fmt.Sprintf("//span[contains(text(), '%s')]", name),
		fmt.Sprintf("//div[contains(@class, 'card-item')]//span[contains(text(), '%s')]", name),
		fmt.Sprintf("//div[contains(text(), '%s')]", name),
	}
}

// ServiceRadio lists the radio inputs for a named service filter.
func ServiceRadio(service string) []string {
	return []string{
		fmt.Sprintf("//div[contains(text(), '%s')]/preceding-sibling::tui-radio//input[@type='radio']", service),
		"//input[@name='filterType' and @type='radio'][1]",
		"//tui-radio[1]//input[@type='radio']",
	}
}

// ServiceLabel is clicked when no radio input resolves.
func ServiceLabel(service string) []string {
	return []string{fmt.Sprintf("//div[contains(@class, 't-label') and contains(text(), '%s')]", service)}
}

// Intervention cards. Relative paths are evaluated inside a card.
const (
	Cards       = "//div[contains(@class, 'event-card')]"
	CardPlate   = ".//span[contains(@class, 'car-plate')]"
	CardMileage = ".//span[contains(text(), 'KM')]"
)

// CardService matches the service label inside a card.
func CardService(service string) string {
	return fmt.Sprintf(".//span[contains(text(), '%s')]", service)
}

// Calendar grid.
const (
	DayColumns  = "//td[contains(@class, 'fc-timegrid-col fc-day')]"
	SlotLanes   = "//td[contains(@class, 'fc-timegrid-slot-lane') and @data-time and not(contains(@class, 'fc-timegrid-slot-minor'))]"
	ElevenLabel = "//td[@data-time='11:00:00' and contains(@class, 'fc-timegrid-slot-label')]"

	PositionedEvents = "//div[contains(@class, 'fc-timegrid-col-events')]//div[contains(@class, 'fc-event') and contains(@style, 'top')]"
	// DayEventTimes is relative to a day column.
	DayEventTimes  = ".//div[contains(@class, 'fc-timegrid-event-harness')]//div[contains(@class, 'fc-event-time')]"
	EventHarnesses = "//div[contains(@class, 'fc-timegrid-event-harness')]"
)

// DropZones are tried in order; the first non-Sunday match receives the drop.
var DropZones = []string{
	"//td[contains(@class, 'fc-timegrid-col') and not(contains(@class, 'fc-day-sun'))]//div[contains(@class, 'fc-timegrid-col-frame')]",
	"//div[contains(@class, 'fc-timegrid-body')]",
	"//td[contains(@class, 'fc-timegrid-col fc-day') and not(contains(@class, 'fc-day-sun'))]",
}

// EventByPlate matches a calendar event showing the given plate.
func EventByPlate(plate string) string {
	return fmt.Sprintf("//div[contains(@class, 'fc-timegrid-event-harness')]//span[contains(text(), '%s')]", plate)
}

// Confirmation dialog.
const (
	Dialog      = "//app-dialog"
	DialogTitle = "//h1[contains(text(), 'Êtes vous sur de confirmer le rendez-vous')]"
)

// DialogService matches the service name shown in the dialog body.
func DialogService(service string) string {
	return fmt.Sprintf("//span[contains(text(), '%s')]", service)
}

var ConfirmButton = []string{
	"//button//span[contains(text(), 'Confirmer')]",
	"//button//span[contains(text(), 'Confirmer')]/parent::span/parent::button",
	"//button[contains(@class, 'primary')]//span[contains(text(), 'Confirmer')]",
}
