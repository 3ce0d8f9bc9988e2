package webdriver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/saucelabs/parallel-browser-tests/logging"
)

// Element reference keys in the two protocol dialects.
const (
	w3cElementKey    = "element-6066-11e4-a52e-4f735466cecf"
	legacyElementKey = "ELEMENT"
)

// Session is an open session on a remote WebDriver endpoint. A Session must only be used by
// one test at a time; Quit may be called from any goroutine.
type Session struct {
	client *Client
	id     string
	logger logging.Logger
	closed bool
	lock   sync.Mutex
}

// Element is a reference to an element on the current page of a Session.
type Element struct {
	session *Session
	id      string
	by      By
}

type remoteDriver struct {
	*Session
}

func (d remoteDriver) FindElement(ctx context.Context, by By) (WebElement, error) {
	e, err := d.Session.FindElement(ctx, by)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// ID returns the session identifier assigned by the remote endpoint.
func (s *Session) ID() string {
	return s.id
}

func (s *Session) path(parts ...string) string {
	escaped := make([]string, 0, len(parts)+2)
	escaped = append(escaped, "/session", url.PathEscape(s.id))
	escaped = append(escaped, parts...)
	return strings.Join(escaped, "/")
}

func (s *Session) call(ctx context.Context, method string, data interface{}, parts ...string) (response, error) {
	s.lock.Lock()
	closed := s.closed
	s.lock.Unlock()
	if closed {
		return response{}, ErrSessionClosed
	}
	return s.client.call(ctx, s.logger, method, s.path(parts...), data)
}

// Get navigates to the specified URL and waits for the page to load.
func (s *Session) Get(ctx context.Context, pageURL string) error {
	if _, err := s.call(ctx, http.MethodPost, map[string]string{"url": pageURL}, "url"); err != nil {
		return fmt.Errorf("could not navigate to %s: %w", pageURL, err)
	}
	return nil
}

// Title returns the title of the current page.
func (s *Session) Title(ctx context.Context) (string, error) {
	resp, err := s.call(ctx, http.MethodGet, nil, "title")
	if err != nil {
		return "", err
	}
	var title string
	if err := json.Unmarshal(resp.Value, &title); err != nil {
		return "", fmt.Errorf("unexpected title value: %s", string(resp.Value))
	}
	return title, nil
}

// FindElement returns the first element on the current page that matches the locator. If
// there is none, the error matches ErrNoSuchElement.
func (s *Session) FindElement(ctx context.Context, by By) (*Element, error) {
	resp, err := s.call(ctx, http.MethodPost, by, "element")
	if err != nil {
		return nil, fmt.Errorf("could not find element by %s: %w", by, err)
	}
	var ref map[string]string
	if err := json.Unmarshal(resp.Value, &ref); err != nil {
		return nil, fmt.Errorf("unexpected element reference: %s", string(resp.Value))
	}
	id := ref[w3cElementKey]
	if id == "" {
		id = ref[legacyElementKey]
	}
	if id == "" {
		return nil, fmt.Errorf("unexpected element reference: %s", string(resp.Value))
	}
	return &Element{session: s, id: id, by: by}, nil
}

// Quit closes the session and releases the remote browser. Calling it more than once has
// no further effect.
func (s *Session) Quit(ctx context.Context) error {
	s.lock.Lock()
	if s.closed {
		s.lock.Unlock()
		return nil
	}
	s.closed = true
	s.lock.Unlock()

	_, err := s.client.call(ctx, s.logger, http.MethodDelete, s.path(), nil)
	if err != nil {
		return fmt.Errorf("could not close session %s: %w", s.id, err)
	}
	s.logger.Printf("Closed session %s", s.id)
	return nil
}

// SendKeys types text into the element.
func (e *Element) SendKeys(ctx context.Context, text string) error {
	chars := make([]string, 0, len(text))
	for _, r := range text {
		chars = append(chars, string(r))
	}
	params := map[string]interface{}{"text": text, "value": chars}
	if _, err := e.session.call(ctx, http.MethodPost, params, "element", url.PathEscape(e.id), "value"); err != nil {
		return fmt.Errorf("could not type into element %s: %w", e.by, err)
	}
	return nil
}

// Click clicks the element.
func (e *Element) Click(ctx context.Context) error {
	if _, err := e.session.call(ctx, http.MethodPost, nil, "element", url.PathEscape(e.id), "click"); err != nil {
		return fmt.Errorf("could not click element %s: %w", e.by, err)
	}
	return nil
}

// Text returns the visible text of the element.
func (e *Element) Text(ctx context.Context) (string, error) {
	resp, err := e.session.call(ctx, http.MethodGet, nil, "element", url.PathEscape(e.id), "text")
	if err != nil {
		return "", fmt.Errorf("could not get text of element %s: %w", e.by, err)
	}
	var text string
	if err := json.Unmarshal(resp.Value, &text); err != nil {
		return "", fmt.Errorf("unexpected text value: %s", string(resp.Value))
	}
	return text, nil
}
