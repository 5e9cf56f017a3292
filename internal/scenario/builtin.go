package scenario

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/carservice/autotest/internal/calendar"
	"github.com/carservice/autotest/internal/pages"
)

const (
	ScheduleIntervention = "backoffice-schedule-intervention"
	VerifyAppointment    = "backoffice-verify-appointment"
	BookAppointment      = "enduser-book-appointment"
	Connectivity         = "connectivity"
)

var (
	errNotScheduled  = errors.New("intervention was not scheduled")
	errNoAppointment = errors.New("appointment not listed in interventions")
)

// Builtins returns the shipped scenarios sorted by name.
func Builtins() []Scenario {
	return []Scenario{
		{Name: ScheduleIntervention, App: AppBackoffice, Run: scheduleIntervention},
		{Name: VerifyAppointment, App: AppBackoffice, Run: verifyAppointment},
		{Name: BookAppointment, App: AppEndUser, Run: bookAppointment},
		{Name: Connectivity, App: AppNone, Run: connectivity},
	}
}

// Names lists the built-in scenario names.
func Names() []string {
	var names []string
	for _, sc := range Builtins() {
		names = append(names, sc.Name)
	}
	slices.Sort(names)
	return names
}

// Lookup resolves names to built-in scenarios; no names selects all of them.
func Lookup(names ...string) ([]Scenario, error) {
	all := Builtins()
	if len(names) == 0 {
		return all, nil
	}
	out := make([]Scenario, 0, len(names))
	for _, name := range names {
		i := slices.IndexFunc(all, func(sc Scenario) bool { return sc.Name == name })
		if i < 0 {
			return nil, fmt.Errorf("unknown scenario %q (known: %s)", name, strings.Join(Names(), ", "))
		}
		out = append(out, all[i])
	}
	return out, nil
}

// enterWorkspace logs in and selects the configured workspace.
func enterWorkspace(ctx context.Context, env *Env, validate bool) error {
	d := env.Deps()
	login := pages.NewLoginPage(d, env.Config.Admin())
	workspace := pages.NewWorkspacePage(d, env.Config.Backoffice().Workspace)

	if err := env.Step(ctx, "Verify login page", login.VerifyLoaded); err != nil {
		return err
	}
	loginFn := login.QuickLogin
	if validate {
		loginFn = login.LoginWithValidation
	}
	if err := env.Step(ctx, "Log in to backoffice", loginFn); err != nil {
		return err
	}
	return env.Step(ctx, "Select workspace", workspace.Complete)
}

func interventionsPage(env *Env) (*pages.InterventionsPage, error) {
	rules, err := calendar.RulesFromConfig(env.Config.Scheduling())
	if err != nil {
		return nil, err
	}
	return pages.NewInterventionsPage(env.Deps(), env.Config.Backoffice(), env.Config.Vehicle(), rules), nil
}

func scheduleIntervention(ctx context.Context, env *Env) error {
	page, err := interventionsPage(env)
	if err != nil {
		return err
	}
	if err := enterWorkspace(ctx, env, true); err != nil {
		return err
	}
	if err := env.Step(ctx, "Open interventions", page.Open); err != nil {
		return err
	}
	return env.Step(ctx, "Schedule intervention", func(ctx context.Context) error {
		ok, err := page.ScheduleIntervention(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return errNotScheduled
		}
		return nil
	})
}

func verifyAppointment(ctx context.Context, env *Env) error {
	page, err := interventionsPage(env)
	if err != nil {
		return err
	}
	if err := enterWorkspace(ctx, env, false); err != nil {
		return err
	}
	if err := env.Step(ctx, "Open interventions", page.Open); err != nil {
		return err
	}
	return env.Step(ctx, "Verify appointment exists", func(ctx context.Context) error {
		exists, err := page.AppointmentExists(ctx)
		if err != nil {
			return err
		}
		if !exists {
			return errNoAppointment
		}
		return nil
	})
}

// bookAppointment walks the public booking wizard end to end, checking the
// identification and diagnostic forms on the way.
func bookAppointment(ctx context.Context, env *Env) error {
	d := env.Deps()
	vehicle := env.Config.Vehicle()
	booking := env.Config.EndUser()
	identify := pages.NewVehicleIdentificationPage(d, vehicle)
	form := pages.NewDiagnosticFormPage(d, vehicle, booking.Attachment)
	repairer := pages.NewRepairerPage(d, booking)
	confirm := pages.NewBookingConfirmationPage(d)

	steps := []struct {
		name string
		fns  []func(context.Context) error
	}{
		{"Switch to English", []func(context.Context) error{identify.SwitchToEnglish}},
		{"Start booking", []func(context.Context) error{identify.Start}},
		{"Validate vehicle identification", []func(context.Context) error{identify.ValidateInputs}},
		{"Identify vehicle", []func(context.Context) error{identify.Fill, identify.Continue}},
		{"Describe diagnostic", []func(context.Context) error{form.SelectService, form.Fill, form.Continue}},
		{"Select repairer", []func(context.Context) error{repairer.ViewInfo, repairer.Select, repairer.Continue}},
		{"Select date and time", []func(context.Context) error{repairer.SelectDateAndTime, repairer.Continue}},
		{"Confirm booking", []func(context.Context) error{
			func(ctx context.Context) error { confirm.VerifySummary(ctx); return nil },
			confirm.Submit,
			func(ctx context.Context) error { _, err := confirm.Finish(ctx); return err },
		}},
	}
	for _, st := range steps {
		err := env.Step(ctx, st.name, func(ctx context.Context) error {
			for _, fn := range st.fns {
				if err := fn(ctx); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// connectivity opens both applications and requires a non-empty title.
func connectivity(ctx context.Context, env *Env) error {
	apps := env.Config.Apps()
	targets := []struct{ name, url string }{
		{"End User App", apps.EndUserURL},
		{"Backoffice App", apps.BackofficeURL},
	}
	for _, target := range targets {
		err := env.Step(ctx, "Reach "+target.name, func(ctx context.Context) error {
			if err := env.Open(ctx, target.url); err != nil {
				return err
			}
			title, err := env.Session.Title(ctx)
			if err != nil {
				return fmt.Errorf("reading title: %w", err)
			}
			if strings.TrimSpace(title) == "" {
				return fmt.Errorf("%s rendered an empty title", target.url)
			}
			env.Sink.AddParameter(target.name+" Title", title)
			env.Sink.AttachScreenshot(ctx, target.name+" reachable")
			env.Logger.Info("Application reachable.", zap.String("app", target.name), zap.String("title", title))
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}
