// CLAUDE:SUMMARY Manages the crawl Chrome lifecycle: launch or remote connect, memory and age based recycling, session tab creation.
// Package browser runs the real browser behind the consent engine: a
// Chrome process managed through Rod, and one stealth tab per worker
// session exposed as a dom.Driver.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// StealthLevel controls the browser automation mode.
type StealthLevel int

const (
	LevelHeadless StealthLevel = 1 // Rod headless + stealth
	LevelHeadful  StealthLevel = 2 // Rod headful + Xvfb
)

// ParseStealth maps a config value to a level. Unknown values are headless.
func ParseStealth(s string) StealthLevel {
	if s == "headful" {
		return LevelHeadful
	}
	return LevelHeadless
}

func (l StealthLevel) String() string {
	if l == LevelHeadful {
		return "headful"
	}
	return "headless"
}

// monitorEvery is the period of the age and memory checks.
const monitorEvery = 30 * time.Second

// Config configures the browser manager.
type Config struct {
	// RemoteURL is the WebSocket URL of an external Chrome. Empty launches
	// a local Chrome.
	RemoteURL string
	// MemoryLimit is the summed JS heap of all tabs, in bytes, above which
	// Chrome is recycled. Default: 1GB.
	MemoryLimit int64
	// RecycleInterval is the maximum lifetime of a Chrome process. Default: 4h.
	RecycleInterval time.Duration
	// ResourceBlocking lists resource types failed in every session
	// (images, fonts, media, stylesheets).
	ResourceBlocking []string
	Stealth          StealthLevel
	// XvfbDisplay backs headful mode. Default: ":99".
	XvfbDisplay string
	// Viewport of every session tab and of the Xvfb screen. Default: 1280x720.
	ViewportWidth  int
	ViewportHeight int
	Logger         *slog.Logger
}

func (c *Config) defaults() {
	if c.MemoryLimit <= 0 {
		c.MemoryLimit = 1 << 30
	}
	if c.RecycleInterval <= 0 {
		c.RecycleInterval = 4 * time.Hour
	}
	if c.Stealth == 0 {
		c.Stealth = LevelHeadless
	}
	if c.XvfbDisplay == "" {
		c.XvfbDisplay = ":99"
	}
	if c.ViewportWidth <= 0 {
		c.ViewportWidth = 1280
	}
	if c.ViewportHeight <= 0 {
		c.ViewportHeight = 720
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// ErrClosed is returned once the manager has been closed.
var ErrClosed = errors.New("browser: manager is closed")

// chrome is one generation of the browser process.
type chrome struct {
	gen     int
	browser *rod.Browser
	lnch    *launcher.Launcher
	display *xvfb
	started time.Time
}

func (c *chrome) stop() {
	if c.browser != nil {
		c.browser.Close()
	}
	if c.lnch != nil {
		c.lnch.Cleanup()
	}
	c.display.stop()
}

// Manager owns the Chrome process shared by all worker sessions. A recycle
// replaces the process: tabs of the previous generation die with it, their
// next call fails with dom.ErrSessionDead and the pool opens replacements.
type Manager struct {
	cfg   Config
	block blockSet

	mu     sync.RWMutex
	cur    *chrome
	gens   int
	closed bool
}

// NewManager creates a Manager. Call Start to launch Chrome.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg, block: newBlockSet(cfg.ResourceBlocking)}
}

// Start launches Chrome, or connects to the remote one, and monitors its
// age and memory until ctx is done.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if err := m.replaceLocked(ctx, "start"); err != nil {
		return err
	}
	go m.monitor(ctx)
	return nil
}

// Browser returns the current browser, nil before Start or after Close.
func (m *Manager) Browser() *rod.Browser {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cur == nil {
		return nil
	}
	return m.cur.browser
}

// Recycle replaces Chrome with a fresh process.
func (m *Manager) Recycle(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	return m.replaceLocked(ctx, "requested")
}

// Close stops Chrome and Xvfb. Closing twice is a no-op.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	if m.cur != nil {
		m.cur.stop()
		m.cur = nil
	}
	return nil
}

func (m *Manager) replaceLocked(ctx context.Context, reason string) error {
	log := m.cfg.Logger
	if old := m.cur; old != nil {
		log.Info("browser: recycling", "reason", reason, "generation", old.gen, "uptime", time.Since(old.started).Round(time.Second))
		old.stop()
		m.cur = nil
	}
	c, err := m.launch(ctx)
	if err != nil {
		return err
	}
	m.gens++
	c.gen = m.gens
	m.cur = c
	log.Info("browser: ready", "generation", c.gen, "stealth", m.cfg.Stealth, "remote", m.cfg.RemoteURL != "")
	return nil
}

func (m *Manager) launch(ctx context.Context) (*chrome, error) {
	c := &chrome{started: time.Now()}

	wsURL := m.cfg.RemoteURL
	if wsURL == "" {
		l := launcher.New().Context(ctx).
			Set("disable-blink-features", "AutomationControlled").
			Set("window-size", fmt.Sprintf("%d,%d", m.cfg.ViewportWidth, m.cfg.ViewportHeight))
		if m.cfg.Stealth == LevelHeadful {
			d, err := startXvfb(m.cfg.XvfbDisplay, m.cfg.ViewportWidth, m.cfg.ViewportHeight, m.cfg.Logger)
			if err != nil {
				return nil, fmt.Errorf("browser: xvfb: %w", err)
			}
			c.display = d
			l = l.Headless(false).Env(append(os.Environ(), "DISPLAY="+m.cfg.XvfbDisplay)...)
		} else {
			l = l.Headless(true)
		}
		u, err := l.Launch()
		if err != nil {
			c.stop()
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL, c.lnch = u, l
	}

	b := rod.New().Context(ctx).ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		c.stop()
		return nil, fmt.Errorf("browser: connect %s: %w", wsURL, err)
	}
	c.browser = b
	// Crawled sites routinely ship broken chains.
	if err := b.IgnoreCertErrors(true); err != nil {
		m.cfg.Logger.Warn("browser: ignore cert errors failed", "error", err)
	}
	return c, nil
}

// recycleReason returns why a process that started at started and whose
// tabs use heap bytes must be replaced, or "" to keep it. A negative heap
// means it could not be measured.
func (m *Manager) recycleReason(started time.Time, heap int64, now time.Time) string {
	switch {
	case now.Sub(started) > m.cfg.RecycleInterval:
		return "age"
	case heap > m.cfg.MemoryLimit:
		return "memory"
	}
	return ""
}

func (m *Manager) monitor(ctx context.Context) {
	ticker := time.NewTicker(monitorEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		m.mu.RLock()
		c, closed := m.cur, m.closed
		m.mu.RUnlock()
		if closed {
			return
		}
		if c == nil {
			continue
		}

		heap, err := jsHeapUsage(c.browser)
		if err != nil {
			m.cfg.Logger.Debug("browser: heap check failed", "error", err)
			heap = -1
		}
		reason := m.recycleReason(c.started, heap, time.Now())
		if reason == "" {
			continue
		}
		m.mu.Lock()
		// Skip when a worker already recycled this generation.
		if !m.closed && m.cur == c {
			if err := m.replaceLocked(ctx, reason); err != nil {
				m.cfg.Logger.Error("browser: recycle failed", "reason", reason, "error", err)
			}
		}
		m.mu.Unlock()
	}
}

// jsHeapUsage sums the JS heap of all open session tabs.
func jsHeapUsage(b *rod.Browser) (int64, error) {
	pages, err := b.Pages()
	if err != nil {
		return 0, err
	}
	if len(pages) == 0 {
		return 0, nil
	}
	var total int64
	for _, p := range pages {
		res, err := p.Eval(`() => performance.memory ? performance.memory.usedJSHeapSize : 0`)
		if err != nil {
			continue
		}
		total += int64(res.Value.Int())
	}
	return total, nil
}
