// Package browser manages Chrome for slotwatch: launch (or connect to a
// remote instance) via Rod, open one stealth page per poll, and tear the
// whole thing down when the poll is over.
package browser

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/visacheck/slotwatch/internal/fault"
)

// StealthLevel controls the browser automation mode.
type StealthLevel int

const (
	LevelHeadless StealthLevel = 1 // Rod headless + stealth
	LevelHeadful  StealthLevel = 2 // Rod headful + Xvfb
)

// ParseStealth maps the config string to a level. Unknown values are headless.
func ParseStealth(s string) StealthLevel {
	if s == "headful" {
		return LevelHeadful
	}
	return LevelHeadless
}

// Config configures the browser manager.
type Config struct {
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via launcher for every session.
	RemoteURL string

	Stealth StealthLevel

	// XvfbDisplay for headful mode. Default: ":99".
	XvfbDisplay string

	UserAgent    string
	WindowWidth  int
	WindowHeight int
	NoSandbox    bool

	// ResourceBlocking lists resource types to block (images, fonts, media, stylesheets).
	ResourceBlocking []string

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Stealth == 0 {
		c.Stealth = LevelHeadless
	}
	if c.XvfbDisplay == "" {
		c.XvfbDisplay = ":99"
	}
	if c.WindowWidth <= 0 {
		c.WindowWidth = 1920
	}
	if c.WindowHeight <= 0 {
		c.WindowHeight = 1080
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager hands out browser sessions. The Xvfb display and the connection
// to a remote browser, when used, outlive sessions and are released by Close.
type Manager struct {
	cfg    Config
	mu     sync.Mutex
	xvfb   *exec.Cmd
	closed bool

	// remote is the shared connection to cfg.RemoteURL, dialed on first use.
	remote   *rod.Browser
	remoteWS io.Closer
	dial     func(ctx context.Context, url string) (*rod.Browser, io.Closer, error)
}

// NewManager creates a browser Manager.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg, dial: dialRemote}
}

// dialRemote opens the DevTools websocket itself so Close can release it;
// rod only ties the dial, not the connection, to a context.
func dialRemote(ctx context.Context, url string) (*rod.Browser, io.Closer, error) {
	ws := &cdp.WebSocket{}
	if err := ws.Connect(ctx, url, nil); err != nil {
		return nil, nil, err
	}
	b := rod.New().Client(cdp.New().Start(ws))
	if err := b.Connect(); err != nil {
		ws.Close()
		return nil, nil, err
	}
	return b, ws, nil
}

// remoteContext returns a fresh incognito context on the shared remote
// connection. A failure drops the connection so the next call redials.
// Called with m.mu held.
func (m *Manager) remoteContext(ctx context.Context) (*rod.Browser, error) {
	if m.remote == nil {
		b, ws, err := m.dial(ctx, m.cfg.RemoteURL)
		if err != nil {
			return nil, fault.New(fault.Transport, "browser: connect", err)
		}
		m.remote, m.remoteWS = b, ws
		m.cfg.Logger.Info("browser: connected to remote", "url", m.cfg.RemoteURL)
	}

	inc, err := m.remote.Context(ctx).Incognito()
	if err != nil {
		m.dropRemote()
		return nil, fault.New(fault.Transport, "browser: incognito", err)
	}
	// Disposal must still work after the check's context is gone.
	return inc.Context(m.remote.GetContext()), nil
}

func (m *Manager) dropRemote() {
	if m.remoteWS != nil {
		m.remoteWS.Close()
	}
	m.remote, m.remoteWS = nil, nil
}

// Open starts a fresh Chrome (or a fresh incognito context on the remote
// instance) and returns a Session holding one stealth page. The caller owns
// the Session and must Close it.
func (m *Manager) Open(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, fmt.Errorf("browser: manager is closed")
	}

	log := m.cfg.Logger

	if m.cfg.Stealth == LevelHeadful {
		if err := m.startXvfb(); err != nil {
			return nil, fault.New(fault.Transport, "browser: xvfb", err)
		}
	}

	s := &Session{logger: log}

	if m.cfg.RemoteURL != "" {
		inc, err := m.remoteContext(ctx)
		if err != nil {
			return nil, err
		}
		s.browser = inc
	} else {
		l := launcher.New().Context(ctx)

		if m.cfg.Stealth == LevelHeadful {
			l = l.Headless(false).Env(append(os.Environ(), "DISPLAY="+m.cfg.XvfbDisplay)...)
		} else {
			l = l.Headless(true)
		}

		// Anti-detection flags.
		l = l.Set("disable-blink-features", "AutomationControlled").
			Set("disable-dev-shm-usage").
			Set("window-size", fmt.Sprintf("%d,%d", m.cfg.WindowWidth, m.cfg.WindowHeight))
		if m.cfg.NoSandbox {
			l = l.NoSandbox(true)
		}

		u, err := l.Launch()
		if err != nil {
			return nil, fault.New(fault.Transport, "browser: launch", err)
		}
		s.lnch = l
		log.Debug("browser: launched local chrome", "url", u, "stealth", m.cfg.Stealth)

		b := rod.New().ControlURL(u).Context(ctx)
		if err := b.Connect(); err != nil {
			s.Close()
			return nil, fault.New(fault.Transport, "browser: connect", err)
		}
		s.browser = b
	}

	page, err := stealth.Page(s.browser)
	if err != nil {
		s.Close()
		return nil, fault.New(fault.Transport, "browser: create page", err)
	}
	s.page = page

	if m.cfg.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: m.cfg.UserAgent}); err != nil {
			log.Warn("browser: set user agent failed", "error", err)
		}
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:  m.cfg.WindowWidth,
		Height: m.cfg.WindowHeight,
	}); err != nil {
		log.Warn("browser: set viewport failed", "error", err)
	}

	if len(m.cfg.ResourceBlocking) > 0 {
		s.router = applyResourceBlocking(page, m.cfg.ResourceBlocking)
	}

	return s, nil
}

// Close stops Xvfb and drops the remote connection. Sessions from a local
// Chrome stay valid until closed; remote sessions die with the connection.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.dropRemote()
	m.stopXvfb()
	return nil
}
