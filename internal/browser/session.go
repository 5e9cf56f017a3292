// internal/browser/session.go
package browser

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"
)

// Session is one browser tab driven over CDP. It implements Port.
type Session struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	onClose func()

	mu       sync.Mutex
	isClosed bool
	// last pointer position, needed to release where the cursor currently is
	pointerX, pointerY float64
}

var (
	_ Port       = (*Session)(nil)
	_ FileSetter = (*Session)(nil)
)

// remoteElement is a handle to a JS object living in the tab's runtime.
type remoteElement struct {
	id    runtime.RemoteObjectID
	xpath string
	index int
}

func (e *remoteElement) Ref() string { return fmt.Sprintf("%s[%d]", e.xpath, e.index) }

// newSession wraps an already created tab context.
func newSession(ctx context.Context, cancel context.CancelFunc, logger *zap.Logger, onClose func()) *Session {
	id := uuid.New().String()
	return &Session{
		id:      id,
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger.With(zap.String("session_id", id)),
		onClose: onClose,
	}
}

func (s *Session) ID() string { return s.id }

// Close cancels the tab context. Safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return
	}
	s.isClosed = true
	s.mu.Unlock()

	s.logger.Debug("Closing browser session.")
	if s.cancel != nil {
		s.cancel()
	}
	if s.onClose != nil {
		s.onClose()
	}
}

// run executes actions bound to both the tab lifetime and the caller's context.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// findScript collects XPath matches in document order into an array.
const findScript = `function(xp, root) {
	const r = document.evaluate(xp, root, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
	const out = [];
	for (let i = 0; i < r.snapshotLength; i++) out.push(r.snapshotItem(i));
	return out;
}`

func (s *Session) FindAll(ctx context.Context, xpath string) ([]Element, error) {
	expr := fmt.Sprintf("(%s)(%s, document)", findScript, jsString(xpath))
	var found []Element
	err := s.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		obj, exc, err := runtime.Evaluate(expr).Do(c)
		if err != nil {
			return err
		}
		if exc != nil {
			return fmt.Errorf("xpath %q: %s", xpath, exc.Text)
		}
		found, err = collectArray(c, obj, xpath)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("find %q: %w", xpath, err)
	}
	return found, nil
}

func (s *Session) FindWithin(ctx context.Context, parent Element, xpath string) ([]Element, error) {
	p, err := asRemote(parent)
	if err != nil {
		return nil, err
	}
	fn := fmt.Sprintf("function() { return (%s)(%s, this); }", findScript, jsString(xpath))
	var found []Element
	err = s.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		obj, exc, err := runtime.CallFunctionOn(fn).WithObjectID(p.id).Do(c)
		if err != nil {
			return err
		}
		if exc != nil {
			return fmt.Errorf("xpath %q: %s", xpath, exc.Text)
		}
		found, err = collectArray(c, obj, xpath)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("find %q within %s: %w", xpath, parent.Ref(), err)
	}
	return found, nil
}

// collectArray turns a remote JS array of nodes into element handles.
func collectArray(ctx context.Context, arr *runtime.RemoteObject, xpath string) ([]Element, error) {
	if arr == nil || arr.ObjectID == "" {
		return nil, nil
	}
	props, _, _, exc, err := runtime.GetProperties(arr.ObjectID).WithOwnProperties(true).Do(ctx)
	if err != nil {
		return nil, err
	}
	if exc != nil {
		return nil, fmt.Errorf("reading results: %s", exc.Text)
	}

	byIndex := make(map[int]runtime.RemoteObjectID, len(props))
	maxIdx := -1
	for _, p := range props {
		idx, convErr := strconv.Atoi(p.Name)
		if convErr != nil || p.Value == nil || p.Value.ObjectID == "" {
			continue
		}
		byIndex[idx] = p.Value.ObjectID
		if idx > maxIdx {
			maxIdx = idx
		}
	}

	out := make([]Element, 0, len(byIndex))
	for i := 0; i <= maxIdx; i++ {
		if id, ok := byIndex[i]; ok {
			out = append(out, &remoteElement{id: id, xpath: xpath, index: i})
		}
	}
	return out, nil
}

// callValue invokes fn with el as `this` and decodes the returned value into out.
func (s *Session) callValue(ctx context.Context, el Element, fn string, out any, args ...Element) error {
	r, err := asRemote(el)
	if err != nil {
		return err
	}
	callArgs := make([]*runtime.CallArgument, 0, len(args))
	for _, a := range args {
		ra, err := asRemote(a)
		if err != nil {
			return err
		}
		callArgs = append(callArgs, &runtime.CallArgument{ObjectID: ra.id})
	}

	return s.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		params := runtime.CallFunctionOn(fn).WithObjectID(r.id).WithReturnByValue(out != nil)
		if len(callArgs) > 0 {
			params = params.WithArguments(callArgs)
		}
		res, exc, err := params.Do(c)
		if err != nil {
			return err
		}
		if exc != nil {
			return fmt.Errorf("script exception on %s: %s", el.Ref(), exc.Text)
		}
		if out == nil || res == nil || len(res.Value) == 0 {
			return nil
		}
		return json.Unmarshal([]byte(res.Value), out)
	}))
}

func (s *Session) Attribute(ctx context.Context, el Element, name string) (string, bool, error) {
	var res struct {
		Present bool   `json:"present"`
		Value   string `json:"value"`
	}
	fn := fmt.Sprintf(`function() {
		const n = %s;
		if (!this.hasAttribute || !this.hasAttribute(n)) return {present: false, value: ""};
		return {present: true, value: this.getAttribute(n) || ""};
	}`, jsString(name))
	if err := s.callValue(ctx, el, fn, &res); err != nil {
		return "", false, err
	}
	return res.Value, res.Present, nil
}

func (s *Session) Text(ctx context.Context, el Element) (string, error) {
	var text string
	err := s.callValue(ctx, el, `function() { return (this.innerText || this.textContent || "").trim(); }`, &text)
	return text, err
}

func (s *Session) IsDisplayed(ctx context.Context, el Element) (bool, error) {
	var shown bool
	err := s.callValue(ctx, el, `function() {
		if (!this.isConnected) return false;
		const st = window.getComputedStyle(this);
		if (st.display === 'none' || st.visibility === 'hidden' || st.opacity === '0') return false;
		const r = this.getBoundingClientRect();
		return r.width > 0 || r.height > 0;
	}`, &shown)
	return shown, err
}

func (s *Session) IsEnabled(ctx context.Context, el Element) (bool, error) {
	var enabled bool
	err := s.callValue(ctx, el, `function() { return !this.disabled && !this.closest('fieldset[disabled]'); }`, &enabled)
	return enabled, err
}

func (s *Session) Value(ctx context.Context, el Element) (string, error) {
	var v string
	err := s.callValue(ctx, el, `function() { return this.value == null ? "" : String(this.value); }`, &v)
	return v, err
}

func (s *Session) IsChecked(ctx context.Context, el Element) (bool, error) {
	var checked bool
	err := s.callValue(ctx, el, `function() { return !!this.checked; }`, &checked)
	return checked, err
}

// SetFiles sets the files of a file input, as if picked in the file dialog.
func (s *Session) SetFiles(ctx context.Context, el Element, paths ...string) error {
	r, err := asRemote(el)
	if err != nil {
		return err
	}
	return s.run(ctx, dom.SetFileInputFiles(paths).WithObjectID(r.id))
}

// center returns the viewport coordinates of an element's midpoint.
func (s *Session) center(ctx context.Context, el Element) (float64, float64, error) {
	var xy [2]float64
	err := s.callValue(ctx, el, `function() {
		const r = this.getBoundingClientRect();
		return [r.left + r.width / 2, r.top + r.height / 2];
	}`, &xy)
	return xy[0], xy[1], err
}

func (s *Session) Click(ctx context.Context, el Element) error {
	x, y, err := s.center(ctx, el)
	if err != nil {
		return fmt.Errorf("locating %s: %w", el.Ref(), err)
	}
	return s.run(ctx, chromedp.MouseClickXY(x, y))
}

func (s *Session) Clear(ctx context.Context, el Element) error {
	return s.callValue(ctx, el, `function() {
		this.value = '';
		this.dispatchEvent(new Event('input', {bubbles: true}));
		this.dispatchEvent(new Event('change', {bubbles: true}));
	}`, nil)
}

func (s *Session) Type(ctx context.Context, el Element, text string) error {
	if err := s.callValue(ctx, el, `function() { this.focus(); }`, nil); err != nil {
		return err
	}
	return s.run(ctx, chromedp.KeyEvent(text))
}

func (s *Session) ScrollIntoView(ctx context.Context, el Element) error {
	return s.callValue(ctx, el, `function() { this.scrollIntoView({behavior: 'smooth', block: 'center'}); }`, nil)
}

func (s *Session) ScrollBy(ctx context.Context, dy int) error {
	return s.Evaluate(ctx, fmt.Sprintf("window.scrollBy(0, %d)", dy), nil)
}

func (s *Session) CallOn(ctx context.Context, fn string, args ...Element) error {
	if len(args) == 0 {
		return s.Evaluate(ctx, fmt.Sprintf("(%s)()", fn), nil)
	}
	return s.callValue(ctx, args[0], fn, nil, args...)
}

func (s *Session) Evaluate(ctx context.Context, expr string, out any) error {
	return s.run(ctx, chromedp.Evaluate(expr, out))
}

func (s *Session) dispatchMouse(ctx context.Context, typ input.MouseType, x, y float64, buttons int64) error {
	p := input.DispatchMouseEvent(typ, x, y).WithButton(input.Left).WithButtons(buttons)
	if typ != input.MouseMoved {
		p = p.WithClickCount(1)
	} else if buttons == 0 {
		p = p.WithButton(input.None)
	}
	if err := s.run(ctx, p); err != nil {
		return err
	}
	s.mu.Lock()
	s.pointerX, s.pointerY = x, y
	s.mu.Unlock()
	return nil
}

// dragSteps is the number of intermediate moves between press and release.
const dragSteps = 10

func (s *Session) Drag(ctx context.Context, src, dst Element) error {
	sx, sy, err := s.center(ctx, src)
	if err != nil {
		return fmt.Errorf("locating drag source: %w", err)
	}
	dx, dy, err := s.center(ctx, dst)
	if err != nil {
		return fmt.Errorf("locating drag target: %w", err)
	}

	if err := s.dispatchMouse(ctx, input.MousePressed, sx, sy, 1); err != nil {
		return fmt.Errorf("press: %w", err)
	}
	for i := 1; i <= dragSteps; i++ {
		f := float64(i) / dragSteps
		if err := s.dispatchMouse(ctx, input.MouseMoved, sx+(dx-sx)*f, sy+(dy-sy)*f, 1); err != nil {
			// Release so the page is not left mid-drag.
			_ = s.dispatchMouse(Detach(ctx), input.MouseReleased, dx, dy, 0)
			return fmt.Errorf("move: %w", err)
		}
	}
	return s.dispatchMouse(ctx, input.MouseReleased, dx, dy, 0)
}

func (s *Session) PointerDown(ctx context.Context, el Element) error {
	x, y, err := s.center(ctx, el)
	if err != nil {
		return err
	}
	if err := s.dispatchMouse(ctx, input.MouseMoved, x, y, 0); err != nil {
		return err
	}
	return s.dispatchMouse(ctx, input.MousePressed, x, y, 1)
}

func (s *Session) PointerMoveTo(ctx context.Context, el Element) error {
	x, y, err := s.center(ctx, el)
	if err != nil {
		return err
	}
	return s.dispatchMouse(ctx, input.MouseMoved, x, y, 1)
}

func (s *Session) PointerUp(ctx context.Context) error {
	s.mu.Lock()
	x, y := s.pointerX, s.pointerY
	s.mu.Unlock()
	return s.dispatchMouse(ctx, input.MouseReleased, x, y, 0)
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Debug("Navigating.", zap.String("url", url))
	return s.run(ctx, chromedp.Navigate(url))
}

func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var u string
	err := s.run(ctx, chromedp.Location(&u))
	return u, err
}

func (s *Session) Title(ctx context.Context) (string, error) {
	var t string
	err := s.run(ctx, chromedp.Title(&t))
	return t, err
}

func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

func asRemote(el Element) (*remoteElement, error) {
	r, ok := el.(*remoteElement)
	if !ok || r == nil {
		return nil, fmt.Errorf("element %T was not produced by a browser session", el)
	}
	return r, nil
}

// jsString quotes s as a JavaScript string literal.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
