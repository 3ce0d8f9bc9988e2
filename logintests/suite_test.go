package logintests

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/saucelabs/parallel-browser-tests/framework"
	"github.com/saucelabs/parallel-browser-tests/loginapp"
	"github.com/saucelabs/parallel-browser-tests/logging"
	"github.com/saucelabs/parallel-browser-tests/mockgrid"
	"github.com/saucelabs/parallel-browser-tests/platforms"
	"github.com/saucelabs/parallel-browser-tests/sauce"
	"github.com/saucelabs/parallel-browser-tests/webdriver"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	gridUser = "alice"
	gridKey  = "secret"
)

type recordingTestLogger struct {
	skipped  map[string]string
	finished map[string]bool
	debug    map[string]string
	lock     sync.Mutex
}

func newRecordingTestLogger() *recordingTestLogger {
	return &recordingTestLogger{
		skipped:  make(map[string]string),
		finished: make(map[string]bool),
		debug:    make(map[string]string),
	}
}

func (r *recordingTestLogger) TestStarted(framework.TestID)      {}
func (r *recordingTestLogger) TestError(framework.TestID, error) {}
func (r *recordingTestLogger) TestFinished(id framework.TestID, failed bool, output logging.CapturedOutput) {
	r.lock.Lock()
	r.finished[id.String()] = failed
	r.debug[id.String()] = output.String()
	r.lock.Unlock()
}
func (r *recordingTestLogger) TestSkipped(id framework.TestID, reason string) {
	r.lock.Lock()
	r.skipped[id.String()] = reason
	r.lock.Unlock()
}

type gridFixture struct {
	grid      *mockgrid.Grid
	config    SuiteConfig
	logOutput *logging.CapturingLogger
}

func withMockGrid(t *testing.T, gridConfig mockgrid.Config, action func(f *gridFixture)) {
	app := httptest.NewServer(loginapp.New(nil))
	defer app.Close()

	gridConfig.Username, gridConfig.AccessKey = gridUser, gridKey
	grid := mockgrid.New(gridConfig)
	gridServer := httptest.NewServer(grid)
	defer gridServer.Close()

	creds := sauce.Credentials{Username: gridUser, AccessKey: gridKey}
	hubURL := strings.Replace(gridServer.URL, "http://", "http://"+gridUser+":"+gridKey+"@", 1) + mockgrid.HubPath
	client, err := webdriver.NewClient(hubURL)
	require.NoError(t, err)

	logOutput := &logging.CapturingLogger{}
	action(&gridFixture{
		grid: grid,
		config: SuiteConfig{
			Browser:     client,
			Reporter:    sauce.NewReporter(creds, gridServer.URL, nil),
			TargetURL:   app.URL,
			Parallelism: 2,
			Build:       "build-7",
			Tunnel:      "TUNNELNAME",
			Tags:        []string{"burgers"},
			Logger:      logOutput,
		},
		logOutput: logOutput,
	})
}

var testPlatforms = platforms.List{
	platforms.New("Windows 7", "latest", "Chrome"),
	platforms.New("Windows 8.1", "11", "internet explorer"),
	platforms.New("OS X 10.10", "8.0", "safari"),
	platforms.New("Windows XP", "7.0", "internet explorer").Disabled(),
}

func failureIDs(results framework.Results) []string {
	var ret []string
	for _, f := range results.Failures {
		ret = append(ret, f.TestID.String())
	}
	return ret
}

func TestSuiteAgainstMockGrid(t *testing.T) {
	withMockGrid(t, mockgrid.Config{}, func(f *gridFixture) {
		f.config.Platforms = testPlatforms
		testLogger := newRecordingTestLogger()
		results := RunTestSuite(f.config, nil, testLogger)

		assert.ElementsMatch(t, []string{
			"Windows 7 Chrome latest/bad password",
			"Windows 8.1 internet explorer 11/bad password",
			"OS X 10.10 safari 8.0/bad password",
		}, failureIDs(results))
		assert.False(t, testLogger.finished["Windows 7 Chrome latest/valid login"])
		assert.True(t, testLogger.finished["Windows 7 Chrome latest/bad password"])
		assert.NotContains(t, testLogger.finished, "Windows XP internet explorer 7.0/valid login")
		assert.Contains(t, testLogger.debug["Windows 7 Chrome latest/bad password"], "POST /session/")

		// One session per test, each closed and reported exactly once.
		sessions := f.grid.Sessions()
		require.Len(t, sessions, 6)
		for _, s := range sessions {
			assert.True(t, s.Closed, "session %s was not closed", s.ID)
			updates := f.grid.JobUpdatesFor(s.ID)
			require.Len(t, updates, 1, "session %s", s.ID)

			name := s.Capabilities.GetByKey("name").StringValue()
			assert.Equal(t, name, updates[0].Name)
			assert.Equal(t, strings.HasSuffix(name, "/valid login"), updates[0].Passed, name)
			assert.Equal(t, "build-7", updates[0].Build)
			assert.Equal(t, []string{"burgers"}, updates[0].Tags)
			assert.Contains(t, f.logOutput.Output().String(), sauce.SessionIDLine(s.ID, name))

			assert.Equal(t, "build-7", s.Capabilities.GetByKey("build").StringValue())
			assert.Equal(t, "TUNNELNAME", s.Capabilities.GetByKey("tunnelIdentifier").StringValue())
			assert.Equal(t, "burgers", s.Capabilities.GetByKey("tags").GetByIndex(0).StringValue())
		}
		assert.Equal(t, 0, f.grid.OpenSessions())
	})
}

func TestSuiteSessionFailureAffectsOnlyItsPlatform(t *testing.T) {
	withMockGrid(t, mockgrid.Config{UnavailableBrowsers: []string{"safari"}}, func(f *gridFixture) {
		f.config.Platforms = testPlatforms
		results := RunTestSuite(f.config, nil, nil)

		assert.ElementsMatch(t, []string{
			"Windows 7 Chrome latest/bad password",
			"Windows 8.1 internet explorer 11/bad password",
			"OS X 10.10 safari 8.0/valid login",
			"OS X 10.10 safari 8.0/bad password",
		}, failureIDs(results))
		assert.Len(t, f.grid.Sessions(), 4)
		assert.Len(t, f.grid.JobUpdates(), 4)
		assert.Equal(t, 0, f.grid.OpenSessions())
	})
}

func TestSuiteWithBadCredentials(t *testing.T) {
	withMockGrid(t, mockgrid.Config{}, func(f *gridFixture) {
		client, err := webdriver.NewClient(strings.Replace(f.config.Browser.(*webdriver.Client).HubURL(),
			"http://", "http://"+gridUser+":wrong@", 1))
		require.NoError(t, err)
		f.config.Browser = client
		f.config.Platforms = testPlatforms[:1]

		results := RunTestSuite(f.config, nil, nil)
		require.Len(t, results.Failures, 2)
		assert.Contains(t, results.Failures[0].Errors[0].Error(), "HTTP 401")
		assert.Len(t, f.grid.Sessions(), 0)
	})
}

func TestSuiteFilter(t *testing.T) {
	withMockGrid(t, mockgrid.Config{}, func(f *gridFixture) {
		f.config.Platforms = testPlatforms
		var filters framework.RegexFilters
		require.NoError(t, filters.MustMatch.Set("Chrome"))
		require.NoError(t, filters.MustNotMatch.Set("bad password"))

		results := RunTestSuite(f.config, filters.AsFilter, nil)
		assert.True(t, results.OK())
		require.Len(t, f.grid.Sessions(), 1)
		assert.Equal(t, "Chrome", f.grid.Sessions()[0].BrowserName())
	})
}

// fakeBrowser hands out scripted sessions, for checking how the suite treats the session
// lifecycle independently of any grid.
type fakeBrowser struct {
	openErr  error
	quitErr  error
	events   *eventLog
	sessions []*fakeDriver
	lock     sync.Mutex
}

func (b *fakeBrowser) Open(
	ctx context.Context,
	caps webdriver.Capabilities,
	logger logging.Logger,
) (webdriver.Driver, error) {
	if b.openErr != nil {
		return nil, b.openErr
	}
	b.lock.Lock()
	defer b.lock.Unlock()
	d := &fakeDriver{
		id:      caps.BrowserName + "-" + string(rune('a'+len(b.sessions))),
		quitErr: b.quitErr,
		events:  b.events,
		logger:  logger,
	}
	b.sessions = append(b.sessions, d)
	b.events.add("open", d.id)
	return d, nil
}

type fakeDriver struct {
	id      string
	quitErr error
	quits   int
	events  *eventLog
	logger  logging.Logger
}

func (d *fakeDriver) ID() string { return d.id }
func (d *fakeDriver) Get(ctx context.Context, url string) error {
	d.logger.Printf("GET %s in %s", url, d.id)
	return nil
}
func (d *fakeDriver) Title(ctx context.Context) (string, error) { return "The Internet", nil }
func (d *fakeDriver) FindElement(ctx context.Context, by webdriver.By) (webdriver.WebElement, error) {
	return fakeElement{}, nil
}
func (d *fakeDriver) Quit(ctx context.Context) error {
	d.quits++
	d.events.add("quit", d.id)
	return d.quitErr
}

// eventLog records session lifecycle events from the browser and the reporter in the
// order they happened. A nil eventLog records nothing.
type eventLog struct {
	entries map[string][]string
	lock    sync.Mutex
}

func newEventLog() *eventLog {
	return &eventLog{entries: make(map[string][]string)}
}

func (l *eventLog) add(event, sessionID string) {
	if l == nil {
		return
	}
	l.lock.Lock()
	l.entries[sessionID] = append(l.entries[sessionID], event)
	l.lock.Unlock()
}

type fakeElement struct{}

func (fakeElement) SendKeys(ctx context.Context, text string) error { return nil }
func (fakeElement) Click(ctx context.Context) error                 { return nil }
func (fakeElement) Text(ctx context.Context) (string, error)        { return "Login Page", nil }

type recordingReporter struct {
	results map[string][]sauce.JobResult
	err     error
	events  *eventLog
	lock    sync.Mutex
}

func (r *recordingReporter) Report(ctx context.Context, sessionID string, result sauce.JobResult) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.results == nil {
		r.results = make(map[string][]sauce.JobResult)
	}
	r.results[sessionID] = append(r.results[sessionID], result)
	r.events.add("report", sessionID)
	return r.err
}

func TestSessionIsClosedWhenAssertionFails(t *testing.T) {
	browser := &fakeBrowser{}
	reporter := &recordingReporter{}
	results := RunTestSuite(SuiteConfig{
		Browser:   browser,
		Reporter:  reporter,
		Platforms: platforms.List{platforms.New("Windows 7", "", "Chrome")},
	}, nil, nil)

	assert.Len(t, results.Failures, 2)
	require.Len(t, browser.sessions, 2)
	for _, d := range browser.sessions {
		assert.Equal(t, 1, d.quits)
		require.Len(t, reporter.results[d.id], 1)
		assert.False(t, reporter.results[d.id][0].Passed)
	}
}

func TestReporterAndQuitErrorsDoNotChangeOutcome(t *testing.T) {
	browser := &fakeBrowser{quitErr: errors.New("quit failed")}
	reporter := &recordingReporter{err: errors.New("report failed")}
	var logOutput logging.CapturingLogger
	config := SuiteConfig{
		Browser:   browser,
		Reporter:  reporter,
		Platforms: platforms.List{platforms.New("Windows 7", "", "Chrome")},
		Logger:    &logOutput,
	}.withDefaults()
	results := framework.Run(nil, nil, func(c *framework.Context) {
		c.Run("p", func(c *framework.Context) {
			t := newT(c, &config, config.Platforms[0])
			t.StartSession()
		})
	})

	assert.True(t, results.OK())
	require.Len(t, browser.sessions, 1)
	assert.Equal(t, 1, browser.sessions[0].quits)
	assert.True(t, reporter.results[browser.sessions[0].id][0].Passed)
	text := logOutput.Output().String()
	assert.Contains(t, text, "report failed")
	assert.Contains(t, text, "quit failed")
}

func TestUnsupportedPlatformIsSkipped(t *testing.T) {
	browser := &fakeBrowser{openErr: webdriver.ErrUnsupportedPlatform}
	testLogger := newRecordingTestLogger()
	results := RunTestSuite(SuiteConfig{
		Browser:   browser,
		Platforms: platforms.List{platforms.New("OS X 10.10", "8.0", "safari")},
	}, nil, testLogger)

	assert.True(t, results.OK())
	assert.Contains(t, testLogger.skipped, "OS X 10.10 safari 8.0/valid login")
	assert.Contains(t, testLogger.skipped, "OS X 10.10 safari 8.0/bad password")
}

func TestCapabilities(t *testing.T) {
	config := SuiteConfig{Build: "b", VendorOptionsKey: "sauce:options", JobName: "fixed"}.withDefaults()
	var caps webdriver.Capabilities
	framework.Run(nil, nil, func(c *framework.Context) {
		caps = newT(c, &config, platforms.New("Windows 7", "latest", "Chrome")).Capabilities()
	})
	assert.Equal(t, "Chrome", caps.BrowserName)
	assert.False(t, caps.Version.IsDefined())
	assert.Equal(t, "Windows 7", caps.Platform)
	assert.Equal(t, "fixed", caps.Extra["name"].StringValue())
	assert.Equal(t, "b", caps.Extra["build"].StringValue())
	assert.NotContains(t, caps.Extra, "tunnelIdentifier")
	assert.Equal(t, "b", caps.W3C().GetByKey("sauce:options").GetByKey("build").StringValue())
}

func TestEachSessionIsReportedBeforeItIsClosed(t *testing.T) {
	events := newEventLog()
	browser := &fakeBrowser{events: events}
	reporter := &recordingReporter{events: events}
	RunTestSuite(SuiteConfig{
		Browser:  browser,
		Reporter: reporter,
		Platforms: platforms.List{
			platforms.New("Windows 7", "", "Chrome"),
			platforms.New("Windows 8.1", "11", "internet explorer"),
		},
		Parallelism: 2,
	}, nil, nil)

	require.Len(t, browser.sessions, 4)
	for _, d := range browser.sessions {
		assert.Equal(t, []string{"open", "report", "quit"}, events.entries[d.id], "session %s", d.id)
	}
}

func TestSessionTrafficGoesToTestDebugOutput(t *testing.T) {
	browser := &fakeBrowser{}
	testLogger := newRecordingTestLogger()
	RunTestSuite(SuiteConfig{
		Browser:   browser,
		Platforms: platforms.List{platforms.New("Windows 7", "", "Chrome")},
		TargetURL: "http://app",
	}, nil, testLogger)

	require.Len(t, browser.sessions, 2)
	validLogin := testLogger.debug["Windows 7 Chrome latest/valid login"]
	badPassword := testLogger.debug["Windows 7 Chrome latest/bad password"]
	assert.Contains(t, validLogin, "GET http://app/ in "+browser.sessions[0].id)
	assert.NotContains(t, validLogin, browser.sessions[1].id)
	assert.Contains(t, badPassword, "GET http://app/ in "+browser.sessions[1].id)
}

func TestSkippedSessionIsNotReportedAsPassed(t *testing.T) {
	browser := &fakeBrowser{}
	reporter := &recordingReporter{}
	config := SuiteConfig{
		Browser:   browser,
		Reporter:  reporter,
		Platforms: platforms.List{platforms.New("Windows 7", "", "Chrome")},
	}.withDefaults()
	testLogger := newRecordingTestLogger()
	results := framework.Run(nil, testLogger, func(c *framework.Context) {
		c.Run("p", func(c *framework.Context) {
			t := newT(c, &config, config.Platforms[0])
			t.StartSession()
			c.SkipWithReason("page is under maintenance")
		})
	})

	assert.True(t, results.OK())
	assert.Equal(t, "page is under maintenance", testLogger.skipped["p"])
	require.Len(t, browser.sessions, 1)
	assert.Equal(t, 1, browser.sessions[0].quits)
	require.Len(t, reporter.results[browser.sessions[0].id], 1)
	assert.False(t, reporter.results[browser.sessions[0].id][0].Passed)
}

func TestReportIncludesBuildAndTags(t *testing.T) {
	browser := &fakeBrowser{}
	reporter := &recordingReporter{}
	var output bytes.Buffer
	RunTestSuite(SuiteConfig{
		Browser:   browser,
		Reporter:  reporter,
		Platforms: platforms.List{platforms.New("Windows 7", "", "Chrome")},
		Build:     "build-7",
		Tags:      []string{"burgers"},
		Output:    &output,
	}, nil, nil)

	require.Len(t, browser.sessions, 2)
	for _, d := range browser.sessions {
		require.Len(t, reporter.results[d.id], 1)
		assert.Equal(t, "build-7", reporter.results[d.id][0].Build)
		assert.Equal(t, []string{"burgers"}, reporter.results[d.id][0].Tags)
		assert.Contains(t, output.String(), "SauceOnDemandSessionID="+d.id+" job-name=")
	}
	assert.Equal(t, 2, strings.Count(output.String(), "Page header is: The Internet\n"))
}
