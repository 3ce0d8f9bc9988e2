package mockgrid

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/google/uuid"
	"golang.org/x/net/html"
)

const submittableSelector = "input,select,textarea"

// browser is the page state of one session.
type browser struct {
	client   *http.Client
	pageURL  *url.URL
	doc      *goquery.Document
	elements map[string]*goquery.Selection
	lock     sync.Mutex
}

func newBrowser() *browser {
	jar, _ := cookiejar.New(nil)
	return &browser{
		client:   &http.Client{Jar: jar},
		elements: make(map[string]*goquery.Selection),
	}
}

func (b *browser) navigate(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return errInvalidArgument("invalid URL %q", rawURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return errInvalidArgument("%s", err)
	}
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.load(req)
}

// load must be called with the lock held.
func (b *browser) load(req *http.Request) error {
	resp, err := b.client.Do(req)
	if err != nil {
		return &wdError{http.StatusInternalServerError, "unknown error", fmt.Sprintf("could not load %s: %s", req.URL, err)}
	}
	defer func() { _ = resp.Body.Close() }()

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return errUnknown(err)
	}
	b.doc = doc
	b.pageURL = resp.Request.URL
	b.elements = make(map[string]*goquery.Selection)
	return nil
}

func (b *browser) title() string {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.doc == nil {
		return ""
	}
	return strings.TrimSpace(b.doc.Find("title").First().Text())
}

func (b *browser) currentURL() string {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.pageURL == nil {
		return "about:blank"
	}
	return b.pageURL.String()
}

func (b *browser) findElement(using, value string) (string, error) {
	if using != "css selector" {
		return "", errInvalidSelector("unsupported locator strategy %q", using)
	}
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.doc == nil {
		return "", errNoSuchElement("no page is loaded")
	}
	matcher, err := cascadia.Compile(value)
	if err != nil {
		return "", errInvalidSelector("%s", err)
	}
	sel := b.doc.FindMatcher(matcher)
	if sel.Length() == 0 {
		return "", errNoSuchElement("no element matches %q", value)
	}
	id := uuid.NewString()
	b.elements[id] = sel.First()
	return id, nil
}

// element must be called with the lock held.
func (b *browser) element(id string) (*goquery.Selection, error) {
	sel, ok := b.elements[id]
	if !ok {
		return nil, errStaleElement(id)
	}
	return sel, nil
}

func (b *browser) sendKeys(id, text string) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	sel, err := b.element(id)
	if err != nil {
		return err
	}
	if !isTextField(sel) {
		return errNotInteractable("element <%s> does not accept text", goquery.NodeName(sel))
	}
	if goquery.NodeName(sel) == "textarea" {
		sel.SetText(sel.Text() + text)
		return nil
	}
	sel.SetAttr("value", sel.AttrOr("value", "")+text)
	return nil
}

func isTextField(sel *goquery.Selection) bool {
	switch goquery.NodeName(sel) {
	case "textarea":
		return true
	case "input":
		switch strings.ToLower(sel.AttrOr("type", "text")) {
		case "text", "password", "email", "search", "tel", "url", "number":
			return true
		}
	}
	return false
}

func (b *browser) click(ctx context.Context, id string) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	sel, err := b.element(id)
	if err != nil {
		return err
	}

	if goquery.NodeName(sel) == "a" {
		if href, ok := sel.Attr("href"); ok {
			target, err := b.pageURL.Parse(href)
			if err != nil {
				return errInvalidArgument("invalid link %q", href)
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
			if err != nil {
				return errUnknown(err)
			}
			return b.load(req)
		}
	}

	if isSubmitButton(sel) {
		form := sel.Closest("form")
		if form.Length() > 0 {
			return b.submit(ctx, form, sel)
		}
	}
	return nil
}

func isSubmitButton(sel *goquery.Selection) bool {
	t := strings.ToLower(sel.AttrOr("type", ""))
	switch goquery.NodeName(sel) {
	case "button":
		return t == "" || t == "submit"
	case "input":
		return t == "submit" || t == "image"
	}
	return false
}

// submit must be called with the lock held.
func (b *browser) submit(ctx context.Context, form, submitter *goquery.Selection) error {
	values := serializeForm(form)
	if name := submitter.AttrOr("name", ""); name != "" {
		values.Add(name, submitter.AttrOr("value", ""))
	}

	action, err := b.pageURL.Parse(form.AttrOr("action", ""))
	if err != nil {
		return errInvalidArgument("invalid form action: %s", err)
	}
	var req *http.Request
	if strings.EqualFold(form.AttrOr("method", "get"), http.MethodPost) {
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, action.String(), strings.NewReader(values.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		action.RawQuery = values.Encode()
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, action.String(), nil)
	}
	if err != nil {
		return errUnknown(err)
	}
	return b.load(req)
}

// serializeForm collects the values of the controls in a form the way a browser does when the
// form is submitted.
func serializeForm(form *goquery.Selection) url.Values {
	values := url.Values{}
	form.Find(submittableSelector).Each(func(_ int, sel *goquery.Selection) {
		name := sel.AttrOr("name", "")
		inputType := strings.ToLower(sel.AttrOr("type", ""))
		_, disabled := sel.Attr("disabled")
		_, checked := sel.Attr("checked")
		if name == "" || disabled {
			return
		}
		switch inputType {
		case "submit", "button", "reset", "image", "file":
			return
		case "checkbox", "radio":
			if checked {
				values.Add(name, sel.AttrOr("value", "on"))
			}
			return
		}
		switch goquery.NodeName(sel) {
		case "textarea":
			values.Add(name, sel.Text())
		case "select":
			opt := sel.Find("option[selected]").First()
			if opt.Length() == 0 {
				opt = sel.Find("option").First()
			}
			if opt.Length() > 0 {
				values.Add(name, opt.AttrOr("value", strings.TrimSpace(opt.Text())))
			}
		default:
			values.Add(name, sel.AttrOr("value", ""))
		}
	})
	return values
}

func (b *browser) text(id string) (string, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	sel, err := b.element(id)
	if err != nil {
		return "", err
	}
	return visibleText(sel), nil
}

// visibleText approximates rendered text: content that is never displayed is left out, and
// runs of whitespace become single spaces.
func visibleText(sel *goquery.Selection) string {
	var sb strings.Builder
	for _, n := range sel.Nodes {
		collectText(n, &sb)
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

func collectText(n *html.Node, sb *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		sb.WriteString(n.Data)
		return
	case html.ElementNode:
		switch n.Data {
		case "head", "script", "style", "template", "noscript":
			return
		case "input", "textarea", "select":
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
	if n.Type == html.ElementNode && isBlock(n.Data) {
		sb.WriteByte(' ')
	}
}

func isBlock(tag string) bool {
	switch tag {
	case "p", "div", "h1", "h2", "h3", "h4", "h5", "h6", "li", "br", "tr", "form":
		return true
	}
	return false
}
