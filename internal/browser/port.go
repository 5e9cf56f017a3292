// internal/browser/port.go
package browser

import (
	"context"
)

// Element is an opaque handle to a node owned by a Port. Handles are only
// meaningful to the Port that produced them and may go stale when the page changes.
type Element interface {
	// Ref is a short identifier for logs.
	Ref() string
}

// Finder locates elements by XPath without waiting.
type Finder interface {
	// FindAll returns every match in document order; no match is an empty slice, not an error.
	FindAll(ctx context.Context, xpath string) ([]Element, error)
	// FindWithin evaluates a relative XPath (".//...") against parent.
	FindWithin(ctx context.Context, parent Element, xpath string) ([]Element, error)
}

// Inspector reads element state.
type Inspector interface {
	// Attribute returns the attribute value and whether it exists.
	Attribute(ctx context.Context, el Element, name string) (string, bool, error)
	Text(ctx context.Context, el Element) (string, error)
	IsDisplayed(ctx context.Context, el Element) (bool, error)
	IsEnabled(ctx context.Context, el Element) (bool, error)
	// Value is the current value of a form control, as typed so far.
	Value(ctx context.Context, el Element) (string, error)
	// IsChecked reports whether a checkbox or radio input is ticked.
	IsChecked(ctx context.Context, el Element) (bool, error)
}

// Actor performs interactions on elements.
type Actor interface {
	Click(ctx context.Context, el Element) error
	Clear(ctx context.Context, el Element) error
	Type(ctx context.Context, el Element, text string) error
	ScrollIntoView(ctx context.Context, el Element) error
	ScrollBy(ctx context.Context, dy int) error
	// CallOn invokes a JavaScript function declaration with the given
	// elements bound to its positional parameters.
	CallOn(ctx context.Context, fn string, args ...Element) error
	// Evaluate runs an expression in the page and decodes its JSON result into out (may be nil).
	Evaluate(ctx context.Context, expr string, out any) error
}

// Pointer drives the mouse. Coordinates are derived from element centers.
type Pointer interface {
	// Drag performs one continuous press-move-release gesture from src to dst.
	Drag(ctx context.Context, src, dst Element) error
	PointerDown(ctx context.Context, el Element) error
	PointerMoveTo(ctx context.Context, el Element) error
	PointerUp(ctx context.Context) error
}

// Navigator covers page-level operations.
type Navigator interface {
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
}

// FileSetter attaches local files to an <input type="file">. It is optional:
// callers type-assert a Port for it.
type FileSetter interface {
	SetFiles(ctx context.Context, el Element, paths ...string) error
}

// Port is the full browser automation surface the framework depends on.
// Every call is bounded by the context it receives.
type Port interface {
	Finder
	Inspector
	Actor
	Pointer
	Navigator
}
