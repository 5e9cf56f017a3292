// internal/browser/session_test.go
package browser

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sessionTestPage = `<!DOCTYPE html>
<html><head><title>Calendar fixture</title></head>
<body style="height: 2000px">
  <div class="event-card" id="card">
    <span class="car-plate">1234TUABC</span>
    <span>Service Diagnostique</span>
    <span>15000 KM</span>
  </div>
  <div class="event-card"><span class="car-plate">9999TUXYZ</span></div>
  <div id="hidden" style="display:none">secret</div>
  <button id="off" disabled>Off</button>
  <input id="name" type="text" value="prefilled">
  <div id="zone" style="width:200px;height:80px;background:#eee">drop here</div>
  <div id="log"></div>
  <script>
    const zone = document.getElementById('zone');
    const log = document.getElementById('log');
    zone.addEventListener('drop', () => { log.setAttribute('data-dropped', 'yes'); });
    zone.addEventListener('click', () => { log.setAttribute('data-clicked', 'yes'); });
    zone.addEventListener('mouseup', () => { log.setAttribute('data-mouseup', 'yes'); });
  </script>
</body></html>`

func TestSession_FindAndInspect(t *testing.T) {
	f := newTestFixture(t, sessionTestPage)
	ctx, s := f.Ctx, f.Session

	cards, err := s.FindAll(ctx, "//div[contains(@class, 'event-card')]")
	require.NoError(t, err)
	require.Len(t, cards, 2)

	plates, err := s.FindWithin(ctx, cards[0], ".//span[contains(@class, 'car-plate')]")
	require.NoError(t, err)
	require.Len(t, plates, 1)
	text, err := s.Text(ctx, plates[0])
	require.NoError(t, err)
	assert.Equal(t, "1234TUABC", text)

	id, ok, err := s.Attribute(ctx, cards[0], "id")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "card", id)

	_, ok, err = s.Attribute(ctx, cards[1], "id")
	require.NoError(t, err)
	assert.False(t, ok)

	none, err := s.FindAll(ctx, "//table")
	require.NoError(t, err)
	assert.Empty(t, none)

	hidden, err := s.FindAll(ctx, "//div[@id='hidden']")
	require.NoError(t, err)
	shown, err := s.IsDisplayed(ctx, hidden[0])
	require.NoError(t, err)
	assert.False(t, shown)

	off, err := s.FindAll(ctx, "//button[@id='off']")
	require.NoError(t, err)
	enabled, err := s.IsEnabled(ctx, off[0])
	require.NoError(t, err)
	assert.False(t, enabled)

	title, err := s.Title(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Calendar fixture", title)

	u, err := s.CurrentURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, f.Server.URL+"/", u)
}

func TestSession_Interactions(t *testing.T) {
	f := newTestFixture(t, sessionTestPage)
	ctx, s := f.Ctx, f.Session

	find := func(xp string) Element {
		els, err := s.FindAll(ctx, xp)
		require.NoError(t, err)
		require.NotEmpty(t, els, xp)
		return els[0]
	}
	logAttr := func(name string) string {
		v, _, err := s.Attribute(ctx, find("//div[@id='log']"), name)
		require.NoError(t, err)
		return v
	}

	t.Run("synthetic drop event", func(t *testing.T) {
		err := s.CallOn(ctx, `function(src, dst) {
			dst.dispatchEvent(new MouseEvent('drop', {bubbles: true, cancelable: true}));
		}`, find("//div[@id='card']"), find("//div[@id='zone']"))
		require.NoError(t, err)
		assert.Equal(t, "yes", logAttr("data-dropped"))
	})

	t.Run("native click", func(t *testing.T) {
		require.NoError(t, s.ScrollIntoView(ctx, find("//div[@id='zone']")))
		time.Sleep(300 * time.Millisecond)
		require.NoError(t, s.Click(ctx, find("//div[@id='zone']")))
		assert.Equal(t, "yes", logAttr("data-clicked"))
	})

	t.Run("pointer gesture", func(t *testing.T) {
		require.NoError(t, s.PointerDown(ctx, find("//div[@id='card']")))
		require.NoError(t, s.PointerMoveTo(ctx, find("//div[@id='zone']")))
		require.NoError(t, s.PointerUp(ctx))
		assert.Equal(t, "yes", logAttr("data-mouseup"))
	})

	t.Run("drag gesture", func(t *testing.T) {
		assert.NoError(t, s.Drag(ctx, find("//div[@id='card']"), find("//div[@id='zone']")))
	})

	t.Run("clear and type", func(t *testing.T) {
		input := find("//input[@id='name']")
		require.NoError(t, s.Clear(ctx, input))
		require.NoError(t, s.Type(ctx, input, "admin"))
		var value string
		require.NoError(t, s.Evaluate(ctx, `document.getElementById('name').value`, &value))
		assert.Equal(t, "admin", value)
	})

	t.Run("scroll and screenshot", func(t *testing.T) {
		require.NoError(t, s.ScrollBy(ctx, 300))
		png, err := s.Screenshot(ctx)
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
	})
}

func TestSession_ForeignElementRejected(t *testing.T) {
	s := &Session{}
	_, _, err := s.Attribute(context.Background(), fakeElement("x"), "class")
	assert.ErrorContains(t, err, "not produced by a browser session")
}

func TestManager_AcquireReleaseShutdown(t *testing.T) {
	f := newTestFixture(t, "<html><body>ok</body></html>")
	assert.Equal(t, 1, f.Manager.ActiveSessions())

	second, err := f.Manager.Acquire(f.Ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, f.Manager.ActiveSessions())

	f.Manager.Release(second)
	f.Manager.Release(second)
	assert.Equal(t, 1, f.Manager.ActiveSessions())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()
	require.NoError(t, f.Manager.Shutdown(shutdownCtx))
	assert.Equal(t, 0, f.Manager.ActiveSessions())

	_, err = f.Manager.Acquire(f.Ctx)
	assert.ErrorIs(t, err, ErrManagerClosed)
}

type fakeElement string

func (f fakeElement) Ref() string { return string(f) }
