// Package snapshot implements a read-only browser.Port over a saved HTML
// document, so calendar analysis can run without a live browser.
package snapshot

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/carservice/autotest/internal/autoerr"
	"github.com/carservice/autotest/internal/browser"
)

// Page is a parsed HTML document. It answers queries and state reads;
// interactions return autoerr.ErrReadOnly.
type Page struct {
	doc *html.Node
	url string
}

var _ browser.Port = (*Page)(nil)

type node struct {
	n   *html.Node
	ref string
}

func (e *node) Ref() string { return e.ref }

// Load parses the HTML file at path.
func Load(path string) (*Page, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot: %w", err)
	}
	defer f.Close()
	return Parse(f, "file://"+path)
}

// Parse reads an HTML document; url is what CurrentURL reports.
func Parse(r io.Reader, url string) (*Page, error) {
	doc, err := htmlquery.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing snapshot: %w", err)
	}
	return &Page{doc: doc, url: url}, nil
}

// MustParseString is for fixtures; it panics on malformed input.
func MustParseString(s string) *Page {
	p, err := Parse(strings.NewReader(s), "about:blank")
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Page) query(root *html.Node, xpath string) ([]browser.Element, error) {
	nodes, err := htmlquery.QueryAll(root, xpath)
	if err != nil {
		return nil, fmt.Errorf("xpath %q: %w", xpath, err)
	}
	out := make([]browser.Element, 0, len(nodes))
	for i, n := range nodes {
		out = append(out, &node{n: n, ref: fmt.Sprintf("%s[%d]", xpath, i)})
	}
	return out, nil
}

func (p *Page) FindAll(_ context.Context, xpath string) ([]browser.Element, error) {
	return p.query(p.doc, xpath)
}

func (p *Page) FindWithin(_ context.Context, parent browser.Element, xpath string) ([]browser.Element, error) {
	n, err := unwrap(parent)
	if err != nil {
		return nil, err
	}
	return p.query(n, xpath)
}

func (p *Page) Attribute(_ context.Context, el browser.Element, name string) (string, bool, error) {
	n, err := unwrap(el)
	if err != nil {
		return "", false, err
	}
	v, ok := attr(n, name)
	return v, ok, nil
}

// Text returns the element text with whitespace runs collapsed.
func (p *Page) Text(_ context.Context, el browser.Element) (string, error) {
	n, err := unwrap(el)
	if err != nil {
		return "", err
	}
	return strings.Join(strings.Fields(htmlquery.InnerText(n)), " "), nil
}

// IsDisplayed approximates visibility from markup: the hidden attribute,
// inline display/visibility styles on the element or any ancestor, and hidden inputs.
func (p *Page) IsDisplayed(_ context.Context, el browser.Element) (bool, error) {
	n, err := unwrap(el)
	if err != nil {
		return false, err
	}
	if t, _ := attr(n, "type"); n.Data == "input" && strings.EqualFold(t, "hidden") {
		return false, nil
	}
	for cur := n; cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		if _, hidden := attr(cur, "hidden"); hidden {
			return false, nil
		}
		style, _ := attr(cur, "style")
		style = strings.ReplaceAll(strings.ToLower(style), " ", "")
		if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			return false, nil
		}
	}
	return true, nil
}

func (p *Page) IsEnabled(_ context.Context, el browser.Element) (bool, error) {
	n, err := unwrap(el)
	if err != nil {
		return false, err
	}
	_, disabled := attr(n, "disabled")
	return !disabled, nil
}

// Value reads the value attribute, or the text of a textarea.
func (p *Page) Value(_ context.Context, el browser.Element) (string, error) {
	n, err := unwrap(el)
	if err != nil {
		return "", err
	}
	if n.Data == "textarea" {
		return htmlquery.InnerText(n), nil
	}
	v, _ := attr(n, "value")
	return v, nil
}

func (p *Page) IsChecked(_ context.Context, el browser.Element) (bool, error) {
	n, err := unwrap(el)
	if err != nil {
		return false, err
	}
	_, checked := attr(n, "checked")
	return checked, nil
}

func (p *Page) Click(context.Context, browser.Element) error { return autoerr.ErrReadOnly }
func (p *Page) Clear(context.Context, browser.Element) error { return autoerr.ErrReadOnly }

func (p *Page) Type(context.Context, browser.Element, string) error { return autoerr.ErrReadOnly }

// ScrollIntoView is a no-op: a snapshot has no viewport.
func (p *Page) ScrollIntoView(context.Context, browser.Element) error { return nil }
func (p *Page) ScrollBy(context.Context, int) error                   { return nil }

func (p *Page) CallOn(context.Context, string, ...browser.Element) error {
	return autoerr.ErrReadOnly
}

func (p *Page) Evaluate(context.Context, string, any) error { return autoerr.ErrUnsupported }

func (p *Page) Drag(context.Context, browser.Element, browser.Element) error {
	return autoerr.ErrReadOnly
}
func (p *Page) PointerDown(context.Context, browser.Element) error   { return autoerr.ErrReadOnly }
func (p *Page) PointerMoveTo(context.Context, browser.Element) error { return autoerr.ErrReadOnly }
func (p *Page) PointerUp(context.Context) error                      { return autoerr.ErrReadOnly }

func (p *Page) Navigate(context.Context, string) error { return autoerr.ErrReadOnly }

func (p *Page) CurrentURL(context.Context) (string, error) { return p.url, nil }

func (p *Page) Title(context.Context) (string, error) {
	t := htmlquery.FindOne(p.doc, "//title")
	if t == nil {
		return "", nil
	}
	return strings.TrimSpace(htmlquery.InnerText(t)), nil
}

func (p *Page) Screenshot(context.Context) ([]byte, error) { return nil, autoerr.ErrUnsupported }

func attr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val, true
		}
	}
	return "", false
}

func unwrap(el browser.Element) (*html.Node, error) {
	n, ok := el.(*node)
	if !ok || n == nil {
		return nil, fmt.Errorf("element %T was not produced by a snapshot page", el)
	}
	return n.n, nil
}
