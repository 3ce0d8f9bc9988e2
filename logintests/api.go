package logintests

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/saucelabs/parallel-browser-tests/framework"
	"github.com/saucelabs/parallel-browser-tests/logging"
	"github.com/saucelabs/parallel-browser-tests/platforms"
	"github.com/saucelabs/parallel-browser-tests/sauce"
	"github.com/saucelabs/parallel-browser-tests/webdriver"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

const (
	// DefaultTargetURL is where the login page is expected to be served. A tunnel makes it
	// reachable from the remote browsers.
	DefaultTargetURL = "http://localhost:8888"

	// DefaultCallTimeout limits each individual browser operation.
	DefaultCallTimeout = 5 * time.Minute

	quitTimeout   = 30 * time.Second
	reportTimeout = 30 * time.Second
)

// SuiteConfig is the configuration that is shared by every test instance. It is not modified
// once the suite has started.
type SuiteConfig struct {
	// Browser opens the browser sessions.
	Browser webdriver.Browser

	// Reporter receives the outcome of each test for its session. If nil, outcomes are only
	// logged.
	Reporter sauce.ResultReporter

	Platforms platforms.List

	TargetURL string

	// Parallelism is the maximum number of platforms tested at once. Zero means no limit.
	Parallelism int

	// CallTimeout limits each browser operation.
	CallTimeout time.Duration

	// Build, Tags, Tunnel and JobName are passed to the grid as extra capabilities when they
	// are set. If JobName is empty, each session is named after its test.
	Build   string
	Tags    []string
	Tunnel  string
	JobName string

	// VendorOptionsKey is where the extra capabilities go in W3C requests.
	VendorOptionsKey string

	// Context, if set, can cancel the whole run.
	Context context.Context

	// Logger receives any errors from reporting or closing sessions.
	Logger logging.Logger

	// Output receives plain lines meant for the console: the session ID line that CI plugins
	// look for, once per session, and the title of the page each login ends on. If it is nil,
	// they go to Logger.
	Output io.Writer
}

func (c SuiteConfig) withDefaults() SuiteConfig {
	if c.TargetURL == "" {
		c.TargetURL = DefaultTargetURL
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = DefaultCallTimeout
	}
	if c.Context == nil {
		c.Context = context.Background()
	}
	if c.Logger == nil {
		c.Logger = logging.NullLogger()
	}
	if c.Reporter == nil {
		c.Reporter = sauce.LogReporter{Logger: c.Logger}
	}
	if c.Platforms == nil {
		c.Platforms = platforms.Default()
	}
	return c
}

// T represents a test or subtest in the login test suite, for one platform.
//
// Like the other test APIs built on the framework package, it implements the failure methods
// of testing.T, so the assert and require packages can be used with it. It also has methods
// for driving the browser session, which make the test fail immediately if an operation
// fails, to keep the tests short.
type T struct {
	context  *framework.Context
	config   *SuiteConfig
	platform platforms.Platform
	driver   webdriver.Driver
}

func newT(c *framework.Context, config *SuiteConfig, platform platforms.Platform) *T {
	return &T{context: c, config: config, platform: platform}
}

// Errorf is called by assertions to log a test failure. It does not cause an immediate exit.
func (t *T) Errorf(format string, args ...interface{}) {
	t.context.Errorf(format, args...)
}

// FailNow is called by assertions when a test should fail and immediately exit.
func (t *T) FailNow() {
	t.context.FailNow()
}

// Failed returns true if the test has failed so far.
func (t *T) Failed() bool {
	return t.context.Failed()
}

// Run runs a subtest for the same platform. The subtest does not share this test's session.
func (t *T) Run(name string, action func(*T)) {
	t.context.Run(name, func(c *framework.Context) {
		action(newT(c, t.config, t.platform))
	})
}

// Debug logs some debug output for the test.
func (t *T) Debug(format string, args ...interface{}) {
	t.context.Debug(format, args...)
}

// Platform returns the platform that this test runs on.
func (t *T) Platform() platforms.Platform {
	return t.platform
}

// SessionID returns the ID of the browser session, or "" if there is none.
func (t *T) SessionID() string {
	if t.driver == nil {
		return ""
	}
	return t.driver.ID()
}

// Capabilities returns the capabilities that StartSession requests.
func (t *T) Capabilities() webdriver.Capabilities {
	caps := webdriver.Capabilities{
		BrowserName:      t.platform.Browser,
		Version:          t.platform.Version,
		Platform:         t.platform.OS,
		VendorOptionsKey: t.config.VendorOptionsKey,
	}
	caps = caps.WithExtra("name", ldvalue.String(t.jobName()))
	if t.config.Build != "" {
		caps = caps.WithExtra("build", ldvalue.String(t.config.Build))
	}
	if t.config.Tunnel != "" {
		caps = caps.WithExtra("tunnelIdentifier", ldvalue.String(t.config.Tunnel))
	}
	if len(t.config.Tags) > 0 {
		tags := ldvalue.ArrayBuild()
		for _, tag := range t.config.Tags {
			tags.Add(ldvalue.String(tag))
		}
		caps = caps.WithExtra("tags", tags.Build())
	}
	return caps
}

func (t *T) jobName() string {
	if t.config.JobName != "" {
		return t.config.JobName
	}
	return t.context.ID().String()
}

func (t *T) callContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(t.config.Context, t.config.CallTimeout)
}

// StartSession opens a browser session for the test's platform. The test fails immediately if
// the session cannot be opened, or is skipped if the browser backend does not provide this
// platform.
//
// When the test finishes, its outcome is reported for the session and then the session is
// closed, whether or not the test passed.
func (t *T) StartSession() {
	require.Nil(t, t.driver, "test tried to start a second browser session")

	ctx, cancel := t.callContext()
	defer cancel()
	driver, err := t.config.Browser.Open(ctx, t.Capabilities(), t.context.DebugLogger())
	if errors.Is(err, webdriver.ErrUnsupportedPlatform) {
		t.context.SkipWithReason(err.Error())
	}
	require.NoError(t, err, "could not open browser session for %s", t.platform)

	t.driver = driver
	t.Println(sauce.SessionIDLine(driver.ID(), t.jobName()))
	t.context.Defer(t.finishSession)
}

// Println writes a line to the console output of the suite.
func (t *T) Println(line string) {
	if t.config.Output != nil {
		fmt.Fprintln(t.config.Output, line)
	} else {
		t.config.Logger.Printf("%s", line)
	}
}

// finishSession runs after the test body, so Failed reflects the final outcome. A session
// whose test was skipped after it was opened is not reported as passed.
func (t *T) finishSession() {
	passed := !t.context.Failed() && !t.context.Skipped()
	result := sauce.JobResult{
		Passed: passed,
		Name:   t.jobName(),
		Build:  t.config.Build,
		Tags:   t.config.Tags,
	}

	ctx, cancel := context.WithTimeout(context.Background(), reportTimeout)
	err := t.config.Reporter.Report(ctx, t.driver.ID(), result)
	cancel()
	if err != nil {
		t.Debug("Could not report result: %s", err)
		t.config.Logger.Printf("Could not report result for session %s: %s", t.driver.ID(), err)
	} else {
		t.Debug("Reported passed=%t for session %s", passed, t.driver.ID())
	}

	ctx, cancel = context.WithTimeout(context.Background(), quitTimeout)
	err = t.driver.Quit(ctx)
	cancel()
	if err != nil {
		t.Debug("Could not close session: %s", err)
		t.config.Logger.Printf("Could not close session %s: %s", t.driver.ID(), err)
	}
}

func (t *T) requireSession() webdriver.Driver {
	require.NotNil(t, t.driver, "test tried to use the browser before starting a session")
	return t.driver
}

// Navigate loads a page. A relative path is resolved against the target URL.
func (t *T) Navigate(path string) {
	driver := t.requireSession()
	pageURL := path
	if !strings.Contains(path, "://") {
		pageURL = strings.TrimSuffix(t.config.TargetURL, "/") + "/" + strings.TrimPrefix(path, "/")
	}
	ctx, cancel := t.callContext()
	defer cancel()
	t.Debug("Navigating to %s", pageURL)
	require.NoError(t, driver.Get(ctx, pageURL))
}

// RequireElement finds an element on the current page, failing the test if there is none.
func (t *T) RequireElement(by webdriver.By) webdriver.WebElement {
	driver := t.requireSession()
	ctx, cancel := t.callContext()
	defer cancel()
	e, err := driver.FindElement(ctx, by)
	require.NoError(t, err)
	return e
}

// Type types text into an element.
func (t *T) Type(by webdriver.By, text string) {
	e := t.RequireElement(by)
	ctx, cancel := t.callContext()
	defer cancel()
	require.NoError(t, e.SendKeys(ctx, text), "could not type into %s", by)
}

// Click clicks an element.
func (t *T) Click(by webdriver.By) {
	e := t.RequireElement(by)
	ctx, cancel := t.callContext()
	defer cancel()
	require.NoError(t, e.Click(ctx), "could not click %s", by)
}

// RequirePageTitle returns the title of the current page.
func (t *T) RequirePageTitle() string {
	driver := t.requireSession()
	ctx, cancel := t.callContext()
	defer cancel()
	title, err := driver.Title(ctx)
	require.NoError(t, err)
	return title
}

// RequireText returns the visible text of an element.
func (t *T) RequireText(by webdriver.By) string {
	e := t.RequireElement(by)
	ctx, cancel := t.callContext()
	defer cancel()
	text, err := e.Text(ctx)
	require.NoError(t, err, "could not get text of %s", by)
	return text
}

// AssertPageContains checks that the text of the whole page contains the expected string. A
// mismatch fails the test but does not stop it.
func (t *T) AssertPageContains(expected string) bool {
	text := t.RequireText(webdriver.ByTagName("html"))
	return assert.Contains(t, text, expected, fmt.Sprintf("page text did not contain %q", expected))
}
