// Package local provides a webdriver.Browser that runs a headless Chrome on this machine,
// controlled through the Chrome DevTools Protocol. It lets the same tests run without a
// cloud service, for instance while developing them.
package local

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/saucelabs/parallel-browser-tests/logging"
	"github.com/saucelabs/parallel-browser-tests/webdriver"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// BrowserConfig configures Chrome launch options.
type BrowserConfig struct {
	Headless bool          // Run in headless mode (default: true)
	Timeout  time.Duration // Default operation timeout (default: 30s)
	Bin      string        // Path of the Chrome binary; if empty, Rod finds or downloads one
}

// DefaultBrowserConfig returns sensible defaults for running tests locally.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		Headless: true,
		Timeout:  30 * time.Second,
	}
}

// Browser launches Chrome on first use and opens one page per session.
type Browser struct {
	config  BrowserConfig
	browser *rod.Browser
	lock    sync.Mutex
}

// NewBrowser creates a Browser. Chrome is not launched until the first session is opened.
func NewBrowser(config BrowserConfig) *Browser {
	if config.Timeout <= 0 {
		config.Timeout = DefaultBrowserConfig().Timeout
	}
	return &Browser{config: config}
}

// SupportsBrowser returns true if the browser name is one that this backend can provide.
func SupportsBrowser(name string) bool {
	switch strings.ToLower(name) {
	case "chrome", "chromium", "googlechrome":
		return true
	}
	return false
}

// Open implements webdriver.Browser. Only Chrome can be provided; the requested platform
// and version are ignored.
func (b *Browser) Open(
	ctx context.Context,
	caps webdriver.Capabilities,
	logger logging.Logger,
) (webdriver.Driver, error) {
	if !SupportsBrowser(caps.BrowserName) {
		return nil, fmt.Errorf("%w: local backend only runs Chrome, not %q", webdriver.ErrUnsupportedPlatform, caps.BrowserName)
	}
	browser, err := b.connect()
	if err != nil {
		return nil, err
	}
	page, err := browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	if logger == nil {
		logger = logging.NullLogger()
	}
	logger.Printf("Opened page %s in local Chrome", page.TargetID)
	return &session{page: page, timeout: b.config.Timeout, logger: logger}, nil
}

func (b *Browser) connect() (*rod.Browser, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.browser != nil {
		return b.browser, nil
	}

	l := launcher.New().
		Headless(b.config.Headless).
		Set("no-sandbox").
		Set("disable-gpu")
	if b.config.Bin != "" {
		l = l.Bin(b.config.Bin)
	}
	url, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch Chrome: %w", err)
	}

	browser := rod.New().ControlURL(url)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to Chrome: %w", err)
	}
	b.browser = browser
	return browser, nil
}

// Close shuts down Chrome, if it was launched.
// Always call this (via defer) to prevent orphaned Chrome processes.
func (b *Browser) Close() error {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.browser == nil {
		return nil
	}
	err := b.browser.Close()
	b.browser = nil
	return err
}

type session struct {
	page    *rod.Page
	timeout time.Duration
	logger  logging.Logger
	closed  bool
	lock    sync.Mutex
}

type element struct {
	session *session
	el      *rod.Element
	by      webdriver.By
}

func (s *session) ID() string {
	return string(s.page.TargetID)
}

func (s *session) pageFor(ctx context.Context) (*rod.Page, error) {
	s.lock.Lock()
	closed := s.closed
	s.lock.Unlock()
	if closed {
		return nil, webdriver.ErrSessionClosed
	}
	return s.page.Context(ctx).Timeout(s.timeout), nil
}

func (s *session) Get(ctx context.Context, url string) error {
	p, err := s.pageFor(ctx)
	if err != nil {
		return err
	}
	s.logger.Printf("Navigating to %s", url)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("could not navigate to %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("page at %s did not finish loading: %w", url, err)
	}
	return nil
}

func (s *session) Title(ctx context.Context) (string, error) {
	p, err := s.pageFor(ctx)
	if err != nil {
		return "", err
	}
	info, err := p.Info()
	if err != nil {
		return "", err
	}
	return info.Title, nil
}

func (s *session) FindElement(ctx context.Context, by webdriver.By) (webdriver.WebElement, error) {
	p, err := s.pageFor(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.Printf("Finding element by %s", by)
	var el *rod.Element
	switch by.Using {
	case webdriver.UsingCSSSelector:
		el, err = p.Element(by.Value)
	case webdriver.UsingXPath:
		el, err = p.ElementX(by.Value)
	default:
		return nil, fmt.Errorf("unsupported locator strategy %q", by.Using)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("could not find element by %s: %w", by, webdriver.ErrNoSuchElement)
		}
		return nil, fmt.Errorf("could not find element by %s: %w", by, err)
	}
	return &element{session: s, el: el, by: by}, nil
}

func (s *session) Quit(ctx context.Context) error {
	s.lock.Lock()
	if s.closed {
		s.lock.Unlock()
		return nil
	}
	s.closed = true
	s.lock.Unlock()
	s.logger.Printf("Closing page %s", s.page.TargetID)
	return s.page.Context(ctx).Close()
}

func (e *element) bound(ctx context.Context) (*rod.Element, error) {
	if _, err := e.session.pageFor(ctx); err != nil {
		return nil, err
	}
	return e.el.Context(ctx).Timeout(e.session.timeout), nil
}

func (e *element) SendKeys(ctx context.Context, text string) error {
	el, err := e.bound(ctx)
	if err != nil {
		return err
	}
	if err := el.Input(text); err != nil {
		return fmt.Errorf("could not type into element %s: %w", e.by, err)
	}
	return nil
}

func (e *element) Click(ctx context.Context) error {
	el, err := e.bound(ctx)
	if err != nil {
		return err
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("could not click element %s: %w", e.by, err)
	}
	// A click may submit a form; give the resulting navigation a chance to settle.
	p, err := e.session.pageFor(ctx)
	if err == nil {
		_ = p.WaitStable(300 * time.Millisecond)
	}
	return nil
}

func (e *element) Text(ctx context.Context) (string, error) {
	el, err := e.bound(ctx)
	if err != nil {
		return "", err
	}
	text, err := el.Text()
	if err != nil {
		return "", fmt.Errorf("could not get text of element %s: %w", e.by, err)
	}
	return text, nil
}
