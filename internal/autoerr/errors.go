// Package autoerr holds the error taxonomy shared by page objects, the
// calendar search and the drag-and-drop orchestrator.
package autoerr

import (
	"errors"
	"fmt"
)

var (
	// ErrElementNotFound matches any *ElementNotFoundError via errors.Is.
	ErrElementNotFound = errors.New("element not found")

	// ErrDragDropFailed is returned when every drag strategy was tried and none verified.
	ErrDragDropFailed = errors.New("drag and drop failed")

	// ErrSchedulingConstraint matches any *SchedulingConstraintError.
	ErrSchedulingConstraint = errors.New("scheduling constraint violated")

	// ErrPageNotLoaded matches any *PageNotLoadedError.
	ErrPageNotLoaded = errors.New("page not loaded")

	// ErrWorkspaceSelection matches any *WorkspaceSelectionError.
	ErrWorkspaceSelection = errors.New("workspace selection failed")

	// ErrFormValidation matches any *FormValidationError.
	ErrFormValidation = errors.New("form validation failed")

	// ErrReadOnly is returned by ports that cannot perform interactions.
	ErrReadOnly = errors.New("port is read-only")

	// ErrUnsupported is returned by ports for operations they do not implement.
	ErrUnsupported = errors.New("operation not supported by port")
)

// ElementNotFoundError reports that no selector in a fallback list resolved.
type ElementNotFoundError struct {
	Description string
	Selectors   []string
	// Last is the error of the final attempt, if any.
	Last error
}

func (e *ElementNotFoundError) Error() string {
	if e.Last != nil {
		return fmt.Sprintf("element not found: %s (tried %d selectors): %v", e.Description, len(e.Selectors), e.Last)
	}
	return fmt.Sprintf("element not found: %s (tried %d selectors)", e.Description, len(e.Selectors))
}

func (e *ElementNotFoundError) Is(target error) bool { return target == ErrElementNotFound }

func (e *ElementNotFoundError) Unwrap() error { return e.Last }

// DragDropFailedError carries the reason the orchestrator gave up.
type DragDropFailedError struct {
	Reason string
	Err    error
}

func (e *DragDropFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("drag and drop failed: %s: %v", e.Reason, e.Err)
	}
	return "drag and drop failed: " + e.Reason
}

func (e *DragDropFailedError) Is(target error) bool { return target == ErrDragDropFailed }

func (e *DragDropFailedError) Unwrap() error { return e.Err }

// SchedulingConstraintError names the business rule a slot violated.
type SchedulingConstraintError struct {
	Constraint string
	Details    string
}

func (e *SchedulingConstraintError) Error() string {
	if e.Details == "" {
		return "scheduling constraint violated: " + e.Constraint
	}
	return fmt.Sprintf("scheduling constraint violated: %s (%s)", e.Constraint, e.Details)
}

func (e *SchedulingConstraintError) Is(target error) bool { return target == ErrSchedulingConstraint }

type PageNotLoadedError struct {
	Page string
	Err  error
}

func (e *PageNotLoadedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("page not loaded: %s: %v", e.Page, e.Err)
	}
	return "page not loaded: " + e.Page
}

func (e *PageNotLoadedError) Is(target error) bool { return target == ErrPageNotLoaded }

func (e *PageNotLoadedError) Unwrap() error { return e.Err }

type WorkspaceSelectionError struct {
	Workspace string
	Err       error
}

func (e *WorkspaceSelectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("workspace selection failed: %s: %v", e.Workspace, e.Err)
	}
	return "workspace selection failed: " + e.Workspace
}

func (e *WorkspaceSelectionError) Is(target error) bool { return target == ErrWorkspaceSelection }

func (e *WorkspaceSelectionError) Unwrap() error { return e.Err }

// FormValidationError reports a form control that did not behave as the
// booking site promises, e.g. a numeric input accepting letters.
type FormValidationError struct {
	Form  string
	Check string
	Got   string
}

func (e *FormValidationError) Error() string {
	if e.Got == "" {
		return fmt.Sprintf("form validation failed: %s: %s", e.Form, e.Check)
	}
	return fmt.Sprintf("form validation failed: %s: %s (got %q)", e.Form, e.Check, e.Got)
}

func (e *FormValidationError) Is(target error) bool { return target == ErrFormValidation }
