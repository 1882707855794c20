package browser

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"
)

func TestLocator_Selector(t *testing.T) {
	cases := []struct {
		loc   Locator
		sel   string
		xpath bool
		str   string
	}{
		{CSS("#event_select_field > a"), "#event_select_field > a", false, "css(#event_select_field > a)"},
		{XPath("//label[@for='event-16']"), "//label[@for='event-16']", true, "xpath(//label[@for='event-16'])"},
		{ID("plan-select"), "#plan-select", false, "id(plan-select)"},
	}
	for _, c := range cases {
		sel, isX := c.loc.selector()
		if sel != c.sel || isX != c.xpath {
			t.Errorf("%v: got (%q, %v), want (%q, %v)", c.loc, sel, isX, c.sel, c.xpath)
		}
		if c.loc.String() != c.str {
			t.Errorf("String: got %q, want %q", c.loc.String(), c.str)
		}
	}
}

func TestNormalizeLabel(t *testing.T) {
	cases := map[string]string{
		"2025\nOctober":   "2025 October",
		"  2025\r\nMay  ": "2025 May",
		"November 2025":   "November 2025",
		"\n":              "",
	}
	for in, want := range cases {
		if got := NormalizeLabel(in); got != want {
			t.Errorf("NormalizeLabel(%q): got %q, want %q", in, got, want)
		}
	}
}

func TestShouldBlock(t *testing.T) {
	set := map[string]bool{"images": true, "fonts": true}
	if !shouldBlock(set, "Image") {
		t.Error("images should be blocked")
	}
	if !shouldBlock(set, "Font") {
		t.Error("fonts should be blocked")
	}
	if shouldBlock(set, "Stylesheet") {
		t.Error("stylesheets not configured")
	}
	if shouldBlock(set, "Document") {
		t.Error("documents are never blocked by default")
	}
}

func TestParseStealth(t *testing.T) {
	if ParseStealth("headful") != LevelHeadful {
		t.Error("headful")
	}
	if ParseStealth("headless") != LevelHeadless || ParseStealth("") != LevelHeadless {
		t.Error("headless is the fallback")
	}
}

func TestSession_CloseIdempotent(t *testing.T) {
	s := &Session{}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestManager_OpenAfterClose(t *testing.T) {
	m := NewManager(Config{})
	m.Close()
	if _, err := m.Open(t.Context()); err == nil {
		t.Fatal("expected error after Close")
	}
}

// fakeCDP answers just enough of the DevTools protocol for incognito
// context management.
type fakeCDP struct {
	mu      sync.Mutex
	methods []string
	failNew bool
}

func (f *fakeCDP) Event() <-chan *cdp.Event { return make(chan *cdp.Event) }

func (f *fakeCDP) Call(_ context.Context, _, method string, _ any) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.methods = append(f.methods, method)
	if method == "Target.createBrowserContext" {
		if f.failNew {
			return nil, errors.New("target closed")
		}
		return []byte(`{"browserContextId":"ctx"}`), nil
	}
	return []byte(`{}`), nil
}

func (f *fakeCDP) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.methods {
		if m == method {
			n++
		}
	}
	return n
}

type closeCounter struct{ n int }

func (c *closeCounter) Close() error { c.n++; return nil }

func remoteManager(client *fakeCDP, dials *int, conn *closeCounter) *Manager {
	m := NewManager(Config{RemoteURL: "ws://chrome:9222/devtools/browser/x"})
	m.dial = func(context.Context, string) (*rod.Browser, io.Closer, error) {
		*dials++
		return rod.New().Client(client), conn, nil
	}
	return m
}

func TestManager_RemoteReusesConnection(t *testing.T) {
	client := &fakeCDP{}
	conn := &closeCounter{}
	var dials int
	m := remoteManager(client, &dials, conn)

	for range 3 {
		inc, err := m.remoteContext(t.Context())
		if err != nil {
			t.Fatal(err)
		}
		if inc.BrowserContextID != "ctx" {
			t.Fatalf("context id: got %q", inc.BrowserContextID)
		}
		if err := (&Session{browser: inc}).Close(); err != nil {
			t.Fatal(err)
		}
	}

	if dials != 1 {
		t.Errorf("dials: got %d, want 1", dials)
	}
	if n := client.count("Target.createBrowserContext"); n != 3 {
		t.Errorf("contexts created: got %d, want 3", n)
	}
	if n := client.count("Target.disposeBrowserContext"); n != 3 {
		t.Errorf("contexts disposed: got %d, want 3", n)
	}
	if n := client.count("Browser.close"); n != 0 {
		t.Errorf("shared browser closed %d times", n)
	}
	if conn.n != 0 {
		t.Fatalf("connection closed before Manager.Close")
	}

	m.Close()
	if conn.n != 1 {
		t.Errorf("connection closes: got %d, want 1", conn.n)
	}
	m.Close()
	if conn.n != 1 {
		t.Errorf("second Close reclosed the connection")
	}
}

func TestManager_RemoteRedialsAfterFailure(t *testing.T) {
	client := &fakeCDP{failNew: true}
	conn := &closeCounter{}
	var dials int
	m := remoteManager(client, &dials, conn)

	if _, err := m.remoteContext(t.Context()); err == nil {
		t.Fatal("expected incognito error")
	}
	if conn.n != 1 {
		t.Errorf("broken connection not released: closes %d", conn.n)
	}

	client.failNew = false
	if _, err := m.remoteContext(t.Context()); err != nil {
		t.Fatal(err)
	}
	if dials != 2 {
		t.Errorf("dials: got %d, want 2", dials)
	}
}
