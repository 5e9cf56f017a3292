package pages

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/carservice/autotest/internal/autoerr"
	"github.com/carservice/autotest/internal/resolver"
	"github.com/carservice/autotest/internal/selectors"
)

// WorkspacePage selects the working brand space after login.
type WorkspacePage struct {
	base
	workspace string
}

func NewWorkspacePage(d Deps, workspace string) *WorkspacePage {
	return &WorkspacePage{base: newBase(d, "workspace_page"), workspace: workspace}
}

func (p *WorkspacePage) fail(err error) error {
	return &autoerr.WorkspaceSelectionError{Workspace: p.workspace, Err: err}
}

// VerifyLoaded requires the title, the dropdown and a start button that is
// still disabled because nothing has been selected yet.
func (p *WorkspacePage) VerifyLoaded(ctx context.Context) error {
	p.logger.Info("Verifying workspace selection page is loaded.")
	els, err := p.resolveAll(ctx, resolver.Present, []namedSelectors{
		{"Workspace title", selectors.WorkspaceTitle},
		{"Workspace dropdown", selectors.WorkspaceDropdown},
		{"Start button", selectors.WorkspaceStart},
	})
	if err != nil {
		return &autoerr.PageNotLoadedError{Page: "workspace selection", Err: err}
	}
	enabled, err := p.port.IsEnabled(ctx, els[2])
	if err != nil {
		return p.fail(fmt.Errorf("reading start button state: %w", err))
	}
	if enabled {
		return p.fail(errors.New("start button is enabled before a workspace was selected"))
	}
	p.sink.AttachScreenshot(ctx, "Workspace selection page loaded")
	p.sink.LogStep("Workspace selection page verification completed")
	return nil
}

// Select opens the dropdown and picks the configured workspace.
func (p *WorkspacePage) Select(ctx context.Context) error {
	logger := p.logger.With(zap.String("workspace", p.workspace))
	logger.Info("Selecting workspace.")

	if err := p.res.ResolveAndClick(ctx, selectors.WorkspaceDropdown, "Workspace dropdown"); err != nil {
		return p.fail(err)
	}
	if err := p.pause(ctx, p.t.ShortWait); err != nil {
		return err
	}
	p.sink.AttachScreenshot(ctx, "Workspace dropdown opened")

	if err := p.res.ResolveAndClick(ctx, selectors.WorkspaceOption(p.workspace), p.workspace+" workspace option"); err != nil {
		return p.fail(err)
	}
	if err := p.pause(ctx, p.t.ShortWait); err != nil {
		return err
	}
	p.sink.AddParameter("Selected Workspace", p.workspace)
	p.sink.AttachScreenshot(ctx, p.workspace+" workspace selected")
	logger.Info("Workspace selected.")
	return nil
}

// Start enters the selected workspace. The button must have become enabled.
func (p *WorkspacePage) Start(ctx context.Context) error {
	button, err := p.res.Resolve(ctx, selectors.WorkspaceStart, "Start button", resolver.Present)
	if err != nil {
		return p.fail(err)
	}
	enabled, err := p.port.IsEnabled(ctx, button)
	if err != nil {
		return p.fail(fmt.Errorf("reading start button state: %w", err))
	}
	if !enabled {
		return p.fail(errors.New("start button still disabled after selection"))
	}
	if err := p.res.Click(ctx, button, "Start button"); err != nil {
		return p.fail(err)
	}
	if err := p.pause(ctx, p.t.LongWait); err != nil {
		return err
	}
	p.sink.AttachScreenshot(ctx, "Start button clicked - entering workspace")
	p.sink.LogStep("Successfully entered " + p.workspace + " workspace")
	return nil
}

// Complete runs verification, selection and start.
func (p *WorkspacePage) Complete(ctx context.Context) error {
	p.logger.Info("Starting complete workspace selection flow.")
	for _, step := range []func(context.Context) error{p.VerifyLoaded, p.Select, p.Start} {
		if err := step(ctx); err != nil {
			return err
		}
	}
	p.sink.LogStep("Workspace selection flow completed successfully")
	return nil
}

// VerifyDashboard accepts any displayed dashboard landmark.
func (p *WorkspacePage) VerifyDashboard(ctx context.Context) error {
	if _, err := p.res.Resolve(ctx, selectors.Dashboard, "Workspace dashboard", resolver.Present); err != nil {
		return &autoerr.PageNotLoadedError{Page: "workspace dashboard", Err: err}
	}
	p.sink.AttachScreenshot(ctx, "Workspace dashboard loaded")
	p.sink.LogStep("Workspace dashboard verification completed")
	return nil
}

// Logout is best effort; failures are only logged.
func (p *WorkspacePage) Logout(ctx context.Context) {
	button, ok := p.res.Lookup(ctx, selectors.WorkspaceLogout, "Logout button", resolver.Clickable)
	if !ok {
		p.logger.Warn("Logout button not found.")
		return
	}
	if err := p.res.Click(ctx, button, "Logout button"); err != nil {
		p.logger.Warn("Logout click failed.", zap.Error(err))
		return
	}
	_ = p.pause(ctx, p.t.MediumWait)
	p.sink.AttachScreenshot(ctx, "Logged out")
}
