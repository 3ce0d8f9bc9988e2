// Package webdriver is a small client for remote browser-automation endpoints that speak the
// WebDriver protocol, such as a Selenium grid or a cloud testing service.
//
// Only the operations needed by our tests are implemented: opening and closing a session,
// navigation, finding elements, typing, clicking, and reading text. Both the W3C dialect
// and the older JSON Wire Protocol dialect of the responses are understood, since cloud
// services may answer in either one depending on the requested browser.
//
// Opening a session provisions a remote browser, which is a billable resource; callers
// must always call Quit, even if the test using the session fails.
package webdriver
