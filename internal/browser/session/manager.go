package session

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/searchprobe/internal/browser"
	"github.com/xkilldash9x/searchprobe/internal/config"
)

const (
	defaultLaunchTimeout     = 30 * time.Second
	defaultNavigationTimeout = 45 * time.Second
	closeTimeout             = 5 * time.Second
)

// Manager owns the Chrome process and hands out tabs.
type Manager struct {
	logger *zap.Logger
	cfg    config.BrowserConfig

	// allocatorCtx scopes the browser process. Every tab derives from it.
	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc

	// browserCtx keeps the first tab alive so the process outlives individual pages.
	browserCtx    context.Context
	browserCancel context.CancelFunc

	wg sync.WaitGroup
}

// NewManager launches Chrome and checks that it responds.
func NewManager(ctx context.Context, logger *zap.Logger, cfg config.BrowserConfig) (*Manager, error) {
	m := &Manager{
		logger: logger.Named("browser_manager"),
		cfg:    cfg,
	}
	if err := m.launch(ctx); err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	return m, nil
}

func (m *Manager) launch(ctx context.Context) error {
	m.logger.Info("Initializing browser allocator...", zap.Bool("headless", m.cfg.Headless))

	m.allocatorCtx, m.allocatorCancel = chromedp.NewExecAllocator(Detach(ctx), DefaultAllocatorOptions(m.cfg)...)
	m.browserCtx, m.browserCancel = chromedp.NewContext(m.allocatorCtx,
		chromedp.WithLogf(m.logger.Sugar().Debugf),
		chromedp.WithErrorf(m.logger.Sugar().Debugf),
	)

	timeout := m.cfg.LaunchTimeout
	if timeout <= 0 {
		timeout = defaultLaunchTimeout
	}
	launchCtx, cancel := CombineContext(m.browserCtx, ctx)
	defer cancel()
	launchCtx, cancelTimeout := context.WithTimeout(launchCtx, timeout)
	defer cancelTimeout()

	if err := chromedp.Run(launchCtx, chromedp.Navigate("about:blank")); err != nil {
		m.browserCancel()
		m.allocatorCancel()
		return fmt.Errorf("browser failed to start or respond: %w", err)
	}
	m.logger.Info("Browser launched successfully and is responsive.")
	return nil
}

// DefaultAllocatorOptions builds the Chrome launch options for cfg.
func DefaultAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	flags := AllocatorFlags(cfg)
	names := make([]string, 0, len(flags))
	for name := range flags {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		opts = append(opts, chromedp.Flag(name, flags[name]))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}

// AllocatorFlags returns the command line flags layered over chromedp's
// defaults. A false value removes a default flag.
func AllocatorFlags(cfg config.BrowserConfig) map[string]interface{} {
	flags := map[string]interface{}{
		"enable-automation":         false,
		"headless":                  cfg.Headless,
		"ignore-certificate-errors": cfg.IgnoreTLSErrors,
		"disable-blink-features":    "AutomationControlled",
		"disable-extensions":        true,
		"disable-gpu":               cfg.Headless,
	}
	if cfg.UserAgent != "" {
		flags["user-agent"] = cfg.UserAgent
	}
	if w, h := viewport(cfg); w > 0 && h > 0 {
		flags["window-size"] = fmt.Sprintf("%d,%d", w, h)
	}

	for _, arg := range cfg.Args {
		parts := strings.SplitN(arg, "=", 2)
		name := strings.TrimPrefix(parts[0], "--")
		if name == "" {
			continue
		}
		if len(parts) == 2 {
			flags[name] = parts[1]
		} else {
			flags[name] = true
		}
	}

	if runtime.GOOS == "linux" {
		flags["no-sandbox"] = true
		flags["disable-dev-shm-usage"] = true
		flags["disable-setuid-sandbox"] = true
	}
	return flags
}

func viewport(cfg config.BrowserConfig) (int, int) {
	return cfg.Viewport["width"], cfg.Viewport["height"]
}

// NewPage opens a fresh tab. The caller must Close it.
func (m *Manager) NewPage(ctx context.Context) (*Page, error) {
	tabCtx, cancel := chromedp.NewContext(m.browserCtx)

	initCtx, cancelInit := CombineContext(tabCtx, ctx)
	defer cancelInit()
	var actions []chromedp.Action
	if w, h := viewport(m.cfg); w > 0 && h > 0 {
		actions = append(actions, chromedp.EmulateViewport(int64(w), int64(h)))
	}
	if m.cfg.Stealth {
		actions = append(actions, PersonaFromConfig(m.cfg).Tasks())
	}
	// The first Run attaches the target.
	if err := chromedp.Run(initCtx, actions...); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open tab: %w", mapError(err))
	}

	navTimeout := m.cfg.NavigationTimeout
	if navTimeout <= 0 {
		navTimeout = defaultNavigationTimeout
	}
	id := uuid.NewString()
	m.wg.Add(1)
	p := &Page{
		id:         id,
		ctx:        tabCtx,
		cancel:     cancel,
		logger:     m.logger.With(zap.String("page_id", id)),
		navTimeout: navTimeout,
		onClose:    m.wg.Done,
	}
	p.logger.Debug("Tab opened.")
	return p, nil
}

// WithPage opens a tab, runs fn with it and closes the tab whether fn
// returns, fails, or panics. A panic in fn is returned as an error.
func (m *Manager) WithPage(ctx context.Context, fn func(ctx context.Context, page browser.Page) error) (err error) {
	page, err := m.NewPage(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Panic while using page.", zap.String("page_id", page.ID()), zap.Any("panic", r))
			err = fmt.Errorf("panic while using page %s: %v", page.ID(), r)
		}
		closeCtx, cancel := context.WithTimeout(Detach(ctx), closeTimeout)
		defer cancel()
		if cerr := page.Close(closeCtx); cerr != nil {
			m.logger.Warn("Failed to close page.", zap.String("page_id", page.ID()), zap.Error(cerr))
			if err == nil {
				err = cerr
			}
		}
	}()
	return fn(ctx, page)
}

// Shutdown waits for open tabs, bounded by ctx, and then stops Chrome.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Browser manager shutdown initiated. Waiting for open pages to close...")

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("All pages have closed.")
	case <-ctx.Done():
		m.logger.Warn("Shutdown deadline exceeded. Forcing browser termination.", zap.Error(ctx.Err()))
	}

	if m.allocatorCancel != nil {
		m.browserCancel()
		m.allocatorCancel()
		<-m.allocatorCtx.Done()
	}
	return nil
}
