package logintests

import (
	"github.com/saucelabs/parallel-browser-tests/webdriver"
)

const (
	loginUsername = "tomsmith"
	loginPassword = "SuperSecretPassword!"
	badPassword   = "BadPassword"

	secureAreaText = "Secure Area"
)

var (
	usernameField = webdriver.ByID("username")
	passwordField = webdriver.ByID("password")
	loginButton   = webdriver.ByCSSSelector("button.radius")
)

// DoValidLoginTest logs in with the correct password and expects to see the secure area.
func DoValidLoginTest(t *T) {
	t.StartSession()
	logIn(t, loginUsername, loginPassword)
	t.AssertPageContains(secureAreaText)
}

// DoBadPasswordTest logs in with a wrong password, and expects to see the secure area anyway.
// The login page refuses the password, so this test fails, and its session is reported as
// failed.
func DoBadPasswordTest(t *T) {
	t.StartSession()
	logIn(t, loginUsername, badPassword)
	t.AssertPageContains(secureAreaText)
}

func logIn(t *T, username, password string) {
	t.Navigate("/")
	t.Type(usernameField, username)
	t.Type(passwordField, password)
	t.Click(loginButton)
	t.Println("Page header is: " + t.RequirePageTitle())
}
