// internal/browser/browser_helper_test.go
package browser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/semaphore"

	"github.com/carservice/autotest/internal/config"
)

// maxTestConcurrency limits the number of concurrent browser processes across the package.
const maxTestConcurrency = 2

const (
	defaultBrowserTestTimeout = 90 * time.Second
	semaphoreAcquireTimeout   = 10 * time.Second
)

var (
	processSemaphore     *semaphore.Weighted
	processSemaphoreOnce sync.Once
)

func getProcessSemaphore() *semaphore.Weighted {
	processSemaphoreOnce.Do(func() {
		processSemaphore = semaphore.NewWeighted(maxTestConcurrency)
	})
	return processSemaphore
}

// chromeCandidates are the executables looked up on PATH for integration tests.
var chromeCandidates = []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell"}

func findChrome() string {
	for _, name := range chromeCandidates {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	return ""
}

// testFixture is a sandboxed browser for one test: its own Manager, one Session
// and an httptest server serving the given page.
type testFixture struct {
	Manager *Manager
	Session *Session
	Logger  *zap.Logger
	Server  *httptest.Server
	Ctx     context.Context
}

func newTestFixture(t *testing.T, page string) *testFixture {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser integration test in short mode")
	}
	chrome := findChrome()
	if chrome == "" {
		t.Skip("no Chrome/Chromium executable on PATH")
	}

	deadline, ok := t.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultBrowserTestTimeout)
	}
	ctx, cancel := context.WithDeadline(context.Background(), deadline)

	sem := getProcessSemaphore()
	acquireCtx, acquireCancel := context.WithTimeout(ctx, semaphoreAcquireTimeout)
	defer acquireCancel()
	if err := sem.Acquire(acquireCtx, 1); err != nil {
		cancel()
		t.Fatalf("could not acquire browser slot: %v", err)
	}

	logger := zaptest.NewLogger(t).With(zap.String("test", t.Name()))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(page))
	}))

	m := NewManager(config.BrowserConfig{
		Headless:     true,
		WindowWidth:  1280,
		WindowHeight: 900,
		ExecPath:     chrome,
	}, logger)

	s, err := m.Acquire(ctx)
	if err != nil {
		srv.Close()
		sem.Release(1)
		cancel()
		require.NoError(t, err)
	}

	// Cleanup runs LIFO: release session, stop browser, stop server, free slot.
	t.Cleanup(func() {
		sem.Release(1)
		cancel()
	})
	t.Cleanup(srv.Close)
	t.Cleanup(func() {
		shutdownCtx, c := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer c()
		_ = m.Shutdown(shutdownCtx)
	})
	t.Cleanup(func() { m.Release(s) })

	require.NoError(t, s.Navigate(ctx, srv.URL))
	return &testFixture{Manager: m, Session: s, Logger: logger, Server: srv, Ctx: ctx}
}
