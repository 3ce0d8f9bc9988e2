//go:build e2e

// Package e2e runs the login tests in a real Chrome on this machine.
//
// These tests are excluded from the normal test run by a build tag. They need Chrome, which
// Rod downloads if it is not installed:
//
//	go test -tags=e2e ./e2e/...
package e2e
