package webdriver

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrAuthentication means the remote endpoint rejected our credentials.
	ErrAuthentication = errors.New("remote endpoint rejected the credentials")

	// ErrSessionClosed is returned by operations on a session after Quit has been called.
	ErrSessionClosed = errors.New("session is already closed")

	// ErrNoSuchElement means that a locator did not match anything on the current page.
	ErrNoSuchElement = errors.New("no such element")

	// ErrUnsupportedPlatform is returned by a Browser that cannot provide the requested
	// combination of platform and browser.
	ErrUnsupportedPlatform = errors.New("requested platform is not supported by this backend")
)

// W3C error codes that we treat specially.
const (
	codeNoSuchElement  = "no such element"
	codeInvalidSession = "invalid session id"
	codeUnknownError   = "unknown error"
)

// legacyStatusCodes maps JSON Wire Protocol numeric statuses to W3C error codes.
var legacyStatusCodes = map[int]string{
	6:  codeInvalidSession,
	7:  codeNoSuchElement,
	10: "stale element reference",
	11: "element not interactable",
	12: "invalid element state",
	13: codeUnknownError,
	17: "javascript error",
	21: "timeout",
	32: "invalid selector",
	33: "session not created",
}

// Error is an error response from the remote endpoint.
type Error struct {
	// StatusCode is the HTTP status of the response.
	StatusCode int

	// Code is the W3C error code, such as "no such element". Responses in the legacy
	// dialect have their numeric status translated to the equivalent code.
	Code string `json:"error"`

	Message string `json:"message"`
}

func (e *Error) Error() string {
	code := e.Code
	if code == "" {
		code = codeUnknownError
	}
	if e.Message == "" {
		return fmt.Sprintf("webdriver error (HTTP %d): %s", e.StatusCode, code)
	}
	return fmt.Sprintf("webdriver error (HTTP %d): %s: %s", e.StatusCode, code, e.Message)
}

// Is allows errors.Is to match an *Error against the sentinel errors of this package.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrAuthentication:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	case ErrNoSuchElement:
		return e.Code == codeNoSuchElement
	case ErrSessionClosed:
		return e.Code == codeInvalidSession
	}
	return false
}
