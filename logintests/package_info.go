// Package logintests contains the browser tests for the login page, and the test API that
// they are written with.
//
// Every test runs once per enabled platform. Each test gets a browser session of its own,
// which is opened by StartSession and closed automatically when the test finishes. Before a
// remote session is closed, the outcome of the test is reported for it, so the job record on
// the grid shows whether the test passed.
package logintests
