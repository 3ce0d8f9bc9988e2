// Package mockgrid is an in-process stand-in for a remote browser grid.
//
// It serves the subset of the WebDriver protocol that the login tests use, and the job status
// endpoint of the REST API. Each session is a small text-mode browser: it fetches pages over
// HTTP with its own cookie jar, finds elements with CSS selectors, fills in input values, and
// submits forms when a submit button is clicked. There is no JavaScript and no layout.
//
// The grid records every session and job update, so tests can check that each session was
// closed and reported exactly once.
package mockgrid
