// internal/browser/manager.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/carservice/autotest/internal/config"
)

const shutdownGracePeriod = 15 * time.Second

// ErrManagerClosed is returned by Acquire after Shutdown.
var ErrManagerClosed = errors.New("browser manager is shut down")

// Manager owns the Chromium process and hands out one tab Session per scenario.
// The browser is launched lazily on the first Acquire.
type Manager struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	allocCtx     context.Context
	allocCancel  context.CancelFunc
	browserCtx   context.Context
	browserClose context.CancelFunc

	sessions map[string]*Session
	mu       sync.RWMutex
	wg       sync.WaitGroup
	closed   bool

	initOnce sync.Once
	initErr  error
}

func NewManager(cfg config.BrowserConfig, logger *zap.Logger) *Manager {
	return &Manager{
		cfg:      cfg,
		logger:   logger.Named("browser_manager"),
		sessions: make(map[string]*Session),
	}
}

// DefaultAllocatorOptions builds the exec allocator flags for cfg.
func DefaultAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-notifications", true),
		chromedp.Flag("disable-popup-blocking", true),
	)
	if cfg.WindowWidth > 0 && cfg.WindowHeight > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	for _, arg := range cfg.Args {
		name, value := splitFlag(arg)
		opts = append(opts, chromedp.Flag(name, value))
	}
	return opts
}

// splitFlag turns "--name=value" or "--name" into a chromedp flag pair.
func splitFlag(arg string) (string, any) {
	for len(arg) > 0 && arg[0] == '-' {
		arg = arg[1:]
	}
	for i := 0; i < len(arg); i++ {
		if arg[i] == '=' {
			return arg[:i], arg[i+1:]
		}
	}
	return arg, true
}

func (m *Manager) initialize(ctx context.Context) error {
	m.initOnce.Do(func() {
		m.logger.Info("Launching browser.", zap.Bool("headless", m.cfg.Headless), zap.String("name", m.cfg.Name))

		// The allocator must outlive the Acquire call that triggered the launch.
		m.allocCtx, m.allocCancel = chromedp.NewExecAllocator(Detach(ctx), DefaultAllocatorOptions(m.cfg)...)
		m.browserCtx, m.browserClose = chromedp.NewContext(m.allocCtx,
			chromedp.WithLogf(m.logger.Sugar().Debugf),
			chromedp.WithErrorf(m.logger.Sugar().Warnf),
		)
		if err := chromedp.Run(m.browserCtx); err != nil {
			m.browserClose()
			m.allocCancel()
			m.initErr = fmt.Errorf("failed to start browser: %w", err)
			return
		}
		m.logger.Info("Browser started.")
	})
	return m.initErr
}

// Acquire opens a new tab and returns its Session. The caller must Release it.
func (m *Manager) Acquire(ctx context.Context) (*Session, error) {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return nil, ErrManagerClosed
	}

	if err := m.initialize(ctx); err != nil {
		return nil, err
	}

	tabCtx, tabCancel := chromedp.NewContext(m.browserCtx)
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		return nil, fmt.Errorf("failed to open tab: %w", err)
	}

	m.wg.Add(1)
	var s *Session
	s = newSession(tabCtx, tabCancel, m.logger, func() {
		m.mu.Lock()
		delete(m.sessions, s.ID())
		m.mu.Unlock()
		m.wg.Done()
		m.logger.Debug("Session removed from manager.", zap.String("session_id", s.ID()))
	})

	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()

	m.logger.Info("New session created.", zap.String("session_id", s.ID()))
	return s, nil
}

// Release closes the session's tab. It is idempotent.
func (m *Manager) Release(s *Session) {
	if s != nil {
		s.Close()
	}
}

// ActiveSessions reports how many sessions have not been released.
func (m *Manager) ActiveSessions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Shutdown closes every session and then the browser process.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	open := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s)
	}
	m.mu.Unlock()

	if m.browserCtx == nil {
		return nil
	}
	m.logger.Info("Shutting down browser manager.", zap.Int("open_sessions", len(open)))

	for _, s := range open {
		s.Close()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	waitCtx, cancel := context.WithTimeout(ctx, shutdownGracePeriod)
	defer cancel()
	var err error
	select {
	case <-done:
	case <-waitCtx.Done():
		err = fmt.Errorf("timeout waiting for sessions to close: %w", waitCtx.Err())
		m.logger.Warn("Forcing browser shutdown.", zap.Error(err))
	}

	// Closing the browser context gracefully closes Chromium before the allocator kills it.
	if cerr := chromedp.Cancel(m.browserCtx); cerr != nil && !errors.Is(cerr, context.Canceled) {
		m.logger.Debug("Browser cancel returned an error.", zap.Error(cerr))
	}
	m.browserClose()
	m.allocCancel()
	m.logger.Info("Browser manager shutdown complete.")
	return err
}
