package mockgrid

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"

	"github.com/saucelabs/parallel-browser-tests/logging"
)

const (
	// HubPath is the base path of the WebDriver endpoint.
	HubPath = "/wd/hub"

	w3cElementKey    = "element-6066-11e4-a52e-4f735466cecf"
	legacyElementKey = "ELEMENT"
)

// Config holds the settings of a Grid.
type Config struct {
	// Username and AccessKey are the credentials that every request must carry. If Username
	// is empty, no authentication is required.
	Username  string
	AccessKey string

	// UnavailableBrowsers lists browser names, in lowercase, for which session creation fails.
	UnavailableBrowsers []string

	Logger logging.Logger
}

// SessionRecord describes a session that was opened on the grid.
type SessionRecord struct {
	ID           string
	Capabilities ldvalue.Value
	Closed       bool
	URLs         []string
}

// BrowserName returns the requested browser name.
func (r SessionRecord) BrowserName() string {
	return r.Capabilities.GetByKey("browserName").StringValue()
}

// JobUpdate is a status update received on the REST endpoint.
type JobUpdate struct {
	Username  string
	SessionID string
	Passed    bool
	Name      string
	Build     string
	Tags      []string
}

type gridSession struct {
	record  *SessionRecord
	browser *browser
}

// Grid is an http.Handler for the WebDriver and job status endpoints.
type Grid struct {
	config   Config
	router   chi.Router
	sessions map[string]*gridSession
	records  []*SessionRecord
	jobs     []JobUpdate
	lock     sync.Mutex
}

// New creates a Grid.
func New(config Config) *Grid {
	if config.Logger == nil {
		config.Logger = logging.NullLogger()
	}
	g := &Grid{
		config:   config,
		sessions: make(map[string]*gridSession),
	}

	r := chi.NewRouter()
	r.Use(g.authenticate)
	r.Route(HubPath, func(r chi.Router) {
		r.Get("/status", g.handleStatus)
		r.Post("/session", g.handleNewSession)
		r.Route("/session/{sessionID}", func(r chi.Router) {
			r.Delete("/", g.handleDeleteSession)
			r.Post("/url", g.withSession(g.handleNavigate))
			r.Get("/url", g.withSession(g.handleCurrentURL))
			r.Get("/title", g.withSession(g.handleTitle))
			r.Post("/element", g.withSession(g.handleFindElement))
			r.Post("/element/{elementID}/value", g.withSession(g.handleSendKeys))
			r.Post("/element/{elementID}/click", g.withSession(g.handleClick))
			r.Get("/element/{elementID}/text", g.withSession(g.handleText))
		})
	})
	r.Put("/rest/v1/{username}/jobs/{jobID}", g.handleJobUpdate)
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, &wdError{http.StatusNotFound, "unknown command", req.Method + " " + req.URL.Path})
	})
	g.router = r
	return g
}

func (g *Grid) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.router.ServeHTTP(w, r)
}

// Sessions returns every session that has been opened, in the order they were opened.
func (g *Grid) Sessions() []SessionRecord {
	g.lock.Lock()
	defer g.lock.Unlock()
	ret := make([]SessionRecord, 0, len(g.records))
	for _, r := range g.records {
		c := *r
		c.URLs = append([]string(nil), r.URLs...)
		ret = append(ret, c)
	}
	return ret
}

// OpenSessions returns the number of sessions that have not been closed.
func (g *Grid) OpenSessions() int {
	g.lock.Lock()
	defer g.lock.Unlock()
	return len(g.sessions)
}

// JobUpdates returns every job status update received, in order.
func (g *Grid) JobUpdates() []JobUpdate {
	g.lock.Lock()
	defer g.lock.Unlock()
	return append([]JobUpdate(nil), g.jobs...)
}

// JobUpdatesFor returns the updates received for one session.
func (g *Grid) JobUpdatesFor(sessionID string) []JobUpdate {
	var ret []JobUpdate
	for _, j := range g.JobUpdates() {
		if j.SessionID == sessionID {
			ret = append(ret, j)
		}
	}
	return ret
}

func (g *Grid) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.config.Username != "" {
			user, key, ok := r.BasicAuth()
			if !ok || user != g.config.Username ||
				subtle.ConstantTimeCompare([]byte(key), []byte(g.config.AccessKey)) != 1 {
				g.config.Logger.Printf("Rejected request with bad credentials: %s %s", r.Method, r.URL.Path)
				w.Header().Set("WWW-Authenticate", `Basic realm="grid"`)
				writeError(w, &wdError{http.StatusUnauthorized, "unauthorized", "invalid username or access key"})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (g *Grid) withSession(
	handler func(http.ResponseWriter, *http.Request, *gridSession),
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "sessionID")
		g.lock.Lock()
		s := g.sessions[id]
		g.lock.Unlock()
		if s == nil {
			writeError(w, errInvalidSession(id))
			return
		}
		handler(w, r, s)
	}
}

func (g *Grid) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeValue(w, map[string]interface{}{"ready": true, "message": "mock grid is ready"})
}

type newSessionBody struct {
	DesiredCapabilities ldvalue.Value `json:"desiredCapabilities"`
	Capabilities        struct {
		AlwaysMatch ldvalue.Value `json:"alwaysMatch"`
	} `json:"capabilities"`
}

func (g *Grid) handleNewSession(w http.ResponseWriter, r *http.Request) {
	var body newSessionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errInvalidArgument("malformed request body: %s", err))
		return
	}
	caps := body.Capabilities.AlwaysMatch
	if caps.Type() != ldvalue.ObjectType {
		caps = body.DesiredCapabilities
	}
	if caps.Type() != ldvalue.ObjectType {
		writeError(w, errInvalidArgument("no capabilities were requested"))
		return
	}
	browserName := strings.ToLower(caps.GetByKey("browserName").StringValue())
	for _, b := range g.config.UnavailableBrowsers {
		if b == browserName {
			writeError(w, errSessionNotCreated("browser %q is not available", browserName))
			return
		}
	}

	s := &gridSession{
		record:  &SessionRecord{ID: strings.ReplaceAll(uuid.NewString(), "-", ""), Capabilities: caps},
		browser: newBrowser(),
	}
	g.lock.Lock()
	g.sessions[s.record.ID] = s
	g.records = append(g.records, s.record)
	g.lock.Unlock()
	g.config.Logger.Printf("Opened session %s for %s", s.record.ID, caps.JSONString())

	writeValue(w, map[string]interface{}{"sessionId": s.record.ID, "capabilities": caps})
}

func (g *Grid) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	g.lock.Lock()
	s := g.sessions[id]
	delete(g.sessions, id)
	if s != nil {
		s.record.Closed = true
	}
	g.lock.Unlock()
	if s == nil {
		writeError(w, errInvalidSession(id))
		return
	}
	s.browser.client.CloseIdleConnections()
	g.config.Logger.Printf("Closed session %s", id)
	writeValue(w, nil)
}

func (g *Grid) handleNavigate(w http.ResponseWriter, r *http.Request, s *gridSession) {
	var body struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.URL == "" {
		writeError(w, errInvalidArgument("missing url"))
		return
	}
	g.lock.Lock()
	s.record.URLs = append(s.record.URLs, body.URL)
	g.lock.Unlock()
	if err := s.browser.navigate(r.Context(), body.URL); err != nil {
		writeError(w, err)
		return
	}
	writeValue(w, nil)
}

func (g *Grid) handleCurrentURL(w http.ResponseWriter, r *http.Request, s *gridSession) {
	writeValue(w, s.browser.currentURL())
}

func (g *Grid) handleTitle(w http.ResponseWriter, r *http.Request, s *gridSession) {
	writeValue(w, s.browser.title())
}

func (g *Grid) handleFindElement(w http.ResponseWriter, r *http.Request, s *gridSession) {
	var body struct {
		Using string `json:"using"`
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Using == "" {
		writeError(w, errInvalidArgument("missing locator"))
		return
	}
	id, err := s.browser.findElement(body.Using, body.Value)
	if err != nil {
		writeError(w, err)
		return
	}
	writeValue(w, map[string]string{w3cElementKey: id, legacyElementKey: id})
}

func (g *Grid) handleSendKeys(w http.ResponseWriter, r *http.Request, s *gridSession) {
	var body struct {
		Text  *string  `json:"text"`
		Value []string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errInvalidArgument("malformed request body: %s", err))
		return
	}
	text := strings.Join(body.Value, "")
	if body.Text != nil {
		text = *body.Text
	}
	if err := s.browser.sendKeys(chi.URLParam(r, "elementID"), text); err != nil {
		writeError(w, err)
		return
	}
	writeValue(w, nil)
}

func (g *Grid) handleClick(w http.ResponseWriter, r *http.Request, s *gridSession) {
	if err := s.browser.click(r.Context(), chi.URLParam(r, "elementID")); err != nil {
		writeError(w, err)
		return
	}
	writeValue(w, nil)
}

func (g *Grid) handleText(w http.ResponseWriter, r *http.Request, s *gridSession) {
	text, err := s.browser.text(chi.URLParam(r, "elementID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeValue(w, text)
}

func (g *Grid) handleJobUpdate(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	if g.config.Username != "" && username != g.config.Username {
		writeJSON(w, http.StatusForbidden, map[string]string{"message": "cannot update jobs of another user"})
		return
	}
	var body ldvalue.Value
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Type() != ldvalue.ObjectType {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "malformed request body"})
		return
	}
	update := JobUpdate{
		Username:  username,
		SessionID: chi.URLParam(r, "jobID"),
		Passed:    body.GetByKey("passed").BoolValue(),
		Name:      body.GetByKey("name").StringValue(),
		Build:     body.GetByKey("build").StringValue(),
	}
	tags := body.GetByKey("tags")
	for i := 0; i < tags.Count(); i++ {
		update.Tags = append(update.Tags, tags.GetByIndex(i).StringValue())
	}
	g.lock.Lock()
	known := false
	for _, rec := range g.records {
		if rec.ID == update.SessionID {
			known = true
			break
		}
	}
	if known {
		g.jobs = append(g.jobs, update)
	}
	g.lock.Unlock()
	if !known {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "job not found"})
		return
	}
	g.config.Logger.Printf("Job %s updated: %s", update.SessionID, body.JSONString())
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": update.SessionID, "passed": update.Passed, "name": update.Name})
}
