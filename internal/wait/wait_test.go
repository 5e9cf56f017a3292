package wait

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/carservice/autotest/internal/browser/snapshot"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestUntil(t *testing.T) {
	ctx := context.Background()

	t.Run("succeeds after a few polls", func(t *testing.T) {
		var calls atomic.Int32
		err := Until(ctx, time.Millisecond, time.Second, func(context.Context) (bool, error) {
			return calls.Add(1) >= 3, nil
		})
		require.NoError(t, err)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("times out with last error", func(t *testing.T) {
		boom := errors.New("stale element")
		err := Until(ctx, time.Millisecond, 20*time.Millisecond, func(context.Context) (bool, error) {
			return false, boom
		})
		assert.ErrorIs(t, err, ErrTimeout)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("zero timeout checks once", func(t *testing.T) {
		var calls atomic.Int32
		err := Until(ctx, time.Millisecond, 0, func(context.Context) (bool, error) {
			calls.Add(1)
			return false, nil
		})
		assert.ErrorIs(t, err, ErrTimeout)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("parent cancellation wins", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := Until(cctx, time.Millisecond, time.Second, func(context.Context) (bool, error) {
			return false, nil
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestSleep(t *testing.T) {
	assert.NoError(t, Sleep(context.Background(), 0))
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
}

// scriptedPage answers readiness scripts from a table.
type scriptedPage struct {
	answers map[string]any
	calls   atomic.Int32
}

func (s *scriptedPage) Evaluate(_ context.Context, expr string, out any) error {
	s.calls.Add(1)
	v, ok := s.answers[expr]
	if !ok {
		return errors.New("unexpected script")
	}
	switch o := out.(type) {
	case *string:
		*o = v.(string)
	case *bool:
		*o = v.(bool)
	case *float64:
		*o = v.(float64)
	}
	return nil
}

func readyPage() *scriptedPage {
	return &scriptedPage{answers: map[string]any{
		readyStateScript:  "complete",
		bodyHeightScript:  float64(1200),
		bodyContentScript: true,
		loadingScript:     false,
		jqueryIdleScript:  true,
	}}
}

func fastDetector(t *testing.T, eval Evaluator) *Detector {
	d := NewDetector(eval, zaptest.NewLogger(t))
	d.Interval = time.Millisecond
	d.Settle = 0
	d.Grace = 0
	d.SubsequentTimeout = 20 * time.Millisecond
	d.BasicTimeout = 20 * time.Millisecond
	d.FirstLoadTimeout = 20 * time.Millisecond
	d.ElementsTimeout = 20 * time.Millisecond
	return d
}

func TestDetector(t *testing.T) {
	ctx := context.Background()

	t.Run("fast ready", func(t *testing.T) {
		assert.True(t, fastDetector(t, readyPage()).Fast(ctx, 50*time.Millisecond))
	})

	t.Run("fast blocked by spinner", func(t *testing.T) {
		p := readyPage()
		p.answers[loadingScript] = true
		assert.False(t, fastDetector(t, p).Fast(ctx, 20*time.Millisecond))
	})

	t.Run("fast blocked by tiny body", func(t *testing.T) {
		p := readyPage()
		p.answers[bodyHeightScript] = float64(40)
		assert.False(t, fastDetector(t, p).Fast(ctx, 20*time.Millisecond))
	})

	t.Run("basic and subsequent", func(t *testing.T) {
		p := readyPage()
		d := fastDetector(t, p)
		assert.True(t, d.Basic(ctx))
		assert.True(t, d.Subsequent(ctx))

		p.answers[readyStateScript] = "interactive"
		assert.False(t, d.Basic(ctx))
		assert.False(t, d.Smart(ctx, false))
		assert.False(t, d.Smart(ctx, true))
	})
}

func TestDetector_Elements(t *testing.T) {
	ctx := context.Background()
	page := snapshot.MustParseString(`<html><body><nav>menu</nav><main>content</main></body></html>`)
	d := fastDetector(t, readyPage())

	assert.True(t, d.AllPresent(ctx, page, "//nav", "//main"))
	assert.False(t, d.AllPresent(ctx, page, "//nav", "//footer"))
	assert.True(t, d.AppReady(ctx, page, true, 20*time.Millisecond))
	assert.True(t, d.AppReady(ctx, page, false, 20*time.Millisecond))
}
