package pages

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/carservice/autotest/internal/autoerr"
	"github.com/carservice/autotest/internal/browser"
	"github.com/carservice/autotest/internal/config"
	"github.com/carservice/autotest/internal/resolver"
	"github.com/carservice/autotest/internal/selectors"
)

const (
	invalidUsername = "invalid_user"
	invalidPassword = "invalid_pass"
	maskedPassword  = "***masked***"
)

// LoginPage is the backoffice authentication form.
type LoginPage struct {
	base
	admin config.AdminConfig
}

func NewLoginPage(d Deps, admin config.AdminConfig) *LoginPage {
	return &LoginPage{base: newBase(d, "login_page"), admin: admin}
}

func (p *LoginPage) form(ctx context.Context) (user, pass, button browser.Element, err error) {
	els, err := p.resolveAll(ctx, resolver.Clickable, []namedSelectors{
		{"Username input", selectors.LoginUsername},
		{"Password input", selectors.LoginPassword},
		{"Login button", selectors.LoginButton},
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return els[0], els[1], els[2], nil
}

// VerifyLoaded checks the title (leniently) and the form controls (strictly).
func (p *LoginPage) VerifyLoaded(ctx context.Context) error {
	p.logger.Info("Verifying login page is loaded.")
	p.sink.AttachScreenshot(ctx, "Login page verification - start")

	if _, ok := p.res.Lookup(ctx, selectors.LoginTitle, "Login page title", resolver.Present); !ok {
		p.logger.Warn("Could not find login page title, running debug analysis.")
		p.DebugElements(ctx)
	}
	if _, _, _, err := p.form(ctx); err != nil {
		p.logger.Error("Failed to find login form elements.", zap.Error(err))
		p.DebugElements(ctx)
		p.sink.AttachScreenshot(ctx, "Login page verification failed")
		return &autoerr.PageNotLoadedError{Page: "backoffice login", Err: err}
	}

	p.sink.AttachScreenshot(ctx, "Login page loaded and verified")
	p.sink.LogStep("Login page verification completed")
	return nil
}

// ValidateEmptyCredentials clears the form and reports whether the login
// button still accepts clicks.
func (p *LoginPage) ValidateEmptyCredentials(ctx context.Context) (bool, error) {
	user, pass, button, err := p.form(ctx)
	if err != nil {
		return false, err
	}
	for _, el := range []browser.Element{user, pass} {
		if err := p.port.Clear(ctx, el); err != nil {
			return false, fmt.Errorf("clearing credentials: %w", err)
		}
	}
	if err := p.pause(ctx, 300*time.Millisecond); err != nil {
		return false, err
	}
	enabled, err := p.port.IsEnabled(ctx, button)
	if err != nil {
		return false, fmt.Errorf("reading login button state: %w", err)
	}
	state := "Disabled"
	if enabled {
		state = "Enabled"
	}
	p.logger.Info("Login button state with empty fields.", zap.Bool("enabled", enabled))
	p.sink.AddParameter("Empty Credentials Test", "Login button state: "+state)
	p.sink.LogStep("Empty credentials validation completed")
	return enabled, nil
}

// ValidateInvalidCredentials types a known-bad pair without submitting it.
func (p *LoginPage) ValidateInvalidCredentials(ctx context.Context) error {
	user, pass, _, err := p.form(ctx)
	if err != nil {
		return err
	}
	if err := p.clearAndType(ctx, user, invalidUsername); err != nil {
		return fmt.Errorf("typing username: %w", err)
	}
	if err := p.clearAndType(ctx, pass, invalidPassword); err != nil {
		return fmt.Errorf("typing password: %w", err)
	}
	if err := p.pause(ctx, 300*time.Millisecond); err != nil {
		return err
	}
	p.sink.AddParameter("Invalid Credentials Test", fmt.Sprintf("Username: %s, Password: %s", invalidUsername, invalidPassword))
	p.sink.LogStep("Invalid credentials entered for testing")
	return nil
}

func (p *LoginPage) submit(ctx context.Context, typed time.Duration) error {
	user, pass, button, err := p.form(ctx)
	if err != nil {
		return err
	}
	if err := p.clearAndType(ctx, user, p.admin.Username); err != nil {
		return fmt.Errorf("typing username: %w", err)
	}
	if err := p.clearAndType(ctx, pass, p.admin.Password); err != nil {
		return fmt.Errorf("typing password: %w", err)
	}
	if err := p.pause(ctx, typed); err != nil {
		return err
	}
	if err := p.res.Click(ctx, button, "Login button"); err != nil {
		return err
	}
	return p.pause(ctx, 2*time.Second)
}

// Login submits the configured administrator credentials.
func (p *LoginPage) Login(ctx context.Context) error {
	p.logger.Info("Logging in with valid credentials.")
	if err := p.submit(ctx, 500*time.Millisecond); err != nil {
		return err
	}
	p.sink.AddParameter("Login Username", p.admin.Username)
	p.sink.AddParameter("Login Password", maskedPassword)
	p.sink.AttachScreenshot(ctx, "After login attempt")
	return nil
}

// LoginWithValidation exercises the empty and invalid states before logging in.
func (p *LoginPage) LoginWithValidation(ctx context.Context) error {
	if _, err := p.ValidateEmptyCredentials(ctx); err != nil {
		return err
	}
	if err := p.ValidateInvalidCredentials(ctx); err != nil {
		return err
	}
	if err := p.Login(ctx); err != nil {
		return err
	}
	p.sink.LogStep("Backoffice login completed successfully")
	return nil
}

// QuickLogin logs in without the validation passes.
func (p *LoginPage) QuickLogin(ctx context.Context) error {
	if err := p.submit(ctx, 0); err != nil {
		return err
	}
	p.sink.AttachScreenshot(ctx, "Quick login completed")
	return nil
}

// debugMarkers help tell a broken login page from a slow one.
var debugMarkers = []struct{ name, xpath string }{
	{"Se connecter", "//*[contains(text(), 'Se connecter')]"},
	{"Authentification", "//*[contains(text(), 'Authentification')]"},
	{"tui-input", "//tui-input"},
	{"formcontrolname", "//*[@formcontrolname]"},
}

const debugSample = 5

// DebugElements dumps what the page does contain. Best effort.
func (p *LoginPage) DebugElements(ctx context.Context) {
	var b strings.Builder
	if title, err := p.port.Title(ctx); err == nil {
		fmt.Fprintf(&b, "title: %s\n", title)
	}
	if u, err := p.port.CurrentURL(ctx); err == nil {
		fmt.Fprintf(&b, "url: %s\n", u)
	}
	for _, m := range debugMarkers {
		els, err := p.port.FindAll(ctx, m.xpath)
		fmt.Fprintf(&b, "marker %q present: %t\n", m.name, err == nil && len(els) > 0)
	}

	inputs, _ := p.port.FindAll(ctx, "//input")
	fmt.Fprintf(&b, "inputs: %d\n", len(inputs))
	for i, in := range inputs {
		if i == debugSample {
			break
		}
		typ, _, _ := p.port.Attribute(ctx, in, "type")
		class, _, _ := p.port.Attribute(ctx, in, "class")
		id, _, _ := p.port.Attribute(ctx, in, "id")
		fmt.Fprintf(&b, "  input %d: type=%q class=%q id=%q\n", i+1, typ, class, id)
	}

	buttons, _ := p.port.FindAll(ctx, "//button")
	fmt.Fprintf(&b, "buttons: %d\n", len(buttons))
	for i, btn := range buttons {
		if i == debugSample {
			break
		}
		text, _ := p.port.Text(ctx, btn)
		class, _, _ := p.port.Attribute(ctx, btn, "class")
		fmt.Fprintf(&b, "  button %d: text=%q class=%q\n", i+1, text, class)
	}

	p.logger.Info("Login page debug.", zap.String("dump", b.String()))
	p.sink.AttachText("Login page debug", b.String())
	p.sink.AttachScreenshot(ctx, "Login page debug")
}
