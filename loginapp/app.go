// Package loginapp serves the login page that the test suite exercises: a form that accepts
// one user, and a secure area behind it.
package loginapp

import (
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/saucelabs/parallel-browser-tests/logging"
)

const (
	// ValidUsername and ValidPassword are the only credentials the app accepts.
	ValidUsername = "tomsmith"
	ValidPassword = "SuperSecretPassword!"

	// SecureAreaHeading appears on the page shown after a successful login.
	SecureAreaHeading = "Secure Area"

	InvalidPasswordMessage = "Your password is invalid!"
	InvalidUsernameMessage = "Your username is invalid!"
	LoggedInMessage        = "You logged into a secure area!"
	LoggedOutMessage       = "You logged out of the secure area!"
	LoginRequiredMessage   = "You must login to view the secure area!"

	sessionCookie = "rack.session"
	flashCookie   = "flash"
)

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head><title>The Internet</title></head>
<body>
<div id="flash-messages">{{if .Flash}}<div id="flash" class="flash {{.FlashKind}}">{{.Flash}}</div>{{end}}</div>
<div id="content">
{{if .Secure}}<div class="example">
<h2><i class="icon-lock"></i> {{.Heading}}</h2>
<h4 class="subheader">Welcome to the Secure Area. When you are done click logout below.</h4>
<a class="button secondary radius" href="/logout"><i class="icon-2x icon-signout"> Logout</i></a>
</div>{{else}}<div class="example">
<h2>Login Page</h2>
<h4 class="subheader">This is where you can log into the secure area. Enter <em>tomsmith</em> for the username and <em>SuperSecretPassword!</em> for the password.</h4>
<form name="login" id="login" action="/authenticate" method="post">
<div class="row"><div class="large-6 small-12 columns">
<label for="username">Username</label>
<input type="text" name="username" id="username">
</div></div>
<div class="row"><div class="large-6 small-12 columns">
<label for="password">Password</label>
<input type="password" name="password" id="password">
</div></div>
<button class="radius" type="submit"><i class="fa fa-2x fa-sign-in"> Login</i></button>
</form>
</div>{{end}}
</div>
</body>
</html>
`))

type pageData struct {
	Flash     string
	FlashKind string
	Secure    bool
	Heading   string
}

// App is an http.Handler for the login page and secure area. Logged-in sessions are kept in
// memory and identified by a random cookie value.
type App struct {
	router   chi.Router
	sessions map[string]string
	logger   logging.Logger
	lock     sync.Mutex
}

// New creates an App.
func New(logger logging.Logger) *App {
	if logger == nil {
		logger = logging.NullLogger()
	}
	a := &App{
		sessions: make(map[string]string),
		logger:   logger,
	}
	r := chi.NewRouter()
	r.Get("/", a.handleLoginPage)
	r.Get("/login", a.handleLoginPage)
	r.Post("/authenticate", a.handleAuthenticate)
	r.Get("/secure", a.handleSecure)
	r.Get("/logout", a.handleLogout)
	a.router = r
	return a
}

func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

// LoggedInUsers returns the number of sessions that are currently logged in.
func (a *App) LoggedInUsers() int {
	a.lock.Lock()
	defer a.lock.Unlock()
	return len(a.sessions)
}

func (a *App) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	flash, kind := takeFlash(w, r)
	render(w, pageData{Flash: flash, FlashKind: kind})
}

func (a *App) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	username, password := r.PostForm.Get("username"), r.PostForm.Get("password")
	switch {
	case username != ValidUsername:
		a.logger.Printf("Rejected login for unknown user %q", username)
		setFlash(w, "error", InvalidUsernameMessage)
		http.Redirect(w, r, "/login", http.StatusFound)
	case password != ValidPassword:
		a.logger.Printf("Rejected login for %q: wrong password", username)
		setFlash(w, "error", InvalidPasswordMessage)
		http.Redirect(w, r, "/login", http.StatusFound)
	default:
		id := uuid.NewString()
		a.lock.Lock()
		a.sessions[id] = username
		a.lock.Unlock()
		a.logger.Printf("User %q logged in", username)
		http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: id, Path: "/", HttpOnly: true})
		setFlash(w, "success", LoggedInMessage)
		http.Redirect(w, r, "/secure", http.StatusFound)
	}
}

func (a *App) handleSecure(w http.ResponseWriter, r *http.Request) {
	if a.user(r) == "" {
		setFlash(w, "error", LoginRequiredMessage)
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	flash, kind := takeFlash(w, r)
	render(w, pageData{Flash: flash, FlashKind: kind, Secure: true, Heading: SecureAreaHeading})
}

func (a *App) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(sessionCookie); err == nil {
		a.lock.Lock()
		delete(a.sessions, c.Value)
		a.lock.Unlock()
	}
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "", Path: "/", MaxAge: -1})
	setFlash(w, "success", LoggedOutMessage)
	http.Redirect(w, r, "/login", http.StatusFound)
}

func (a *App) user(r *http.Request) string {
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return ""
	}
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.sessions[c.Value]
}

func setFlash(w http.ResponseWriter, kind, message string) {
	http.SetCookie(w, &http.Cookie{Name: flashCookie, Value: url.QueryEscape(kind + ":" + message), Path: "/"})
}

func takeFlash(w http.ResponseWriter, r *http.Request) (message, kind string) {
	c, err := r.Cookie(flashCookie)
	if err != nil || c.Value == "" {
		return "", ""
	}
	http.SetCookie(w, &http.Cookie{Name: flashCookie, Value: "", Path: "/", MaxAge: -1})
	value, err := url.QueryUnescape(c.Value)
	if err != nil {
		return "", ""
	}
	kind, message, _ = strings.Cut(value, ":")
	return message, kind
}

func render(w http.ResponseWriter, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = pageTemplate.Execute(w, data)
}
