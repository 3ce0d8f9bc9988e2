package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/saucelabs/parallel-browser-tests/framework"
	"github.com/saucelabs/parallel-browser-tests/loginapp"
	"github.com/saucelabs/parallel-browser-tests/logging"
	"github.com/saucelabs/parallel-browser-tests/logintests"
	"github.com/saucelabs/parallel-browser-tests/platforms"
	"github.com/saucelabs/parallel-browser-tests/sauce"
	"github.com/saucelabs/parallel-browser-tests/webdriver"
	"github.com/saucelabs/parallel-browser-tests/webdriver/local"
)

// vendorOptionsKey is where Sauce Labs expects its own capabilities in W3C requests.
const vendorOptionsKey = "sauce:options"

func main() {
	homeDir, _ := os.UserHomeDir()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args, os.Stdout, os.Stderr, os.LookupEnv, homeDir)
	stop()
	os.Exit(code)
}

func run(
	ctx context.Context,
	args []string,
	stdout, stderr io.Writer,
	lookupEnv func(string) (string, bool),
	homeDir string,
) int {
	// Tests write to stdout from several goroutines.
	stdout = &lockedWriter{w: stdout}

	env, err := loadEnvironmentConfig(lookupEnv)
	if err != nil {
		fmt.Fprintf(stderr, "Invalid environment: %s\n", err)
		return 1
	}
	var params commandParams
	if !params.Read(args, env, stderr) {
		return 1
	}

	processLogger := logging.NewProcessLogger(stderr, params.debugAll)

	platformList := platforms.Default()
	if params.platformsFile != "" {
		if platformList, err = platforms.LoadFile(params.platformsFile); err != nil {
			processLogger.Errorf("Could not read platform list: %s", err)
			return 1
		}
	}

	if params.serveApp > 0 {
		app, err := framework.StartServer(params.serveApp, loginapp.New(logging.DebugLogger(processLogger)), processLogger)
		if err != nil {
			processLogger.Errorf("Could not serve login page: %s", err)
			return 1
		}
		defer func() { _ = app.Close() }()
		processLogger.Infof("Serving login page at %s", app.URL())
	}

	config := logintests.SuiteConfig{
		Platforms:        platformList,
		TargetURL:        params.targetURL,
		Parallelism:      params.parallel,
		CallTimeout:      params.timeout,
		Build:            params.build,
		Tags:             params.tags,
		Tunnel:           params.tunnel,
		JobName:          params.jobName,
		VendorOptionsKey: vendorOptionsKey,
		Context:          ctx,
		Logger:           processLogger,
		Output:           stdout,
	}

	var mock *mockBackend
	switch params.backend {
	case backendSauce:
		creds, err := sauce.LoadCredentials(lookupEnv, homeDir)
		if err != nil {
			processLogger.Errorf("%s", err)
			return 1
		}
		client, err := webdriver.NewClient(
			sauce.HubURL(creds, params.host, params.port),
			webdriver.WithLogger(logging.DebugLogger(processLogger)),
		)
		if err != nil {
			processLogger.Errorf("%s", err)
			return 1
		}
		config.Browser = client
		config.Reporter = sauce.NewReporter(creds, params.apiURL, logging.DebugLogger(processLogger))
		processLogger.Infof("Using remote browsers at %s", client.HubURL())

	case backendLocal:
		browser := local.NewBrowser(local.BrowserConfig{
			Headless: !params.showBrowser,
			Bin:      params.chromeBin,
		})
		defer func() { _ = browser.Close() }()
		config.Browser = browser
		config.VendorOptionsKey = ""

	case backendMock:
		mock, err = startMockBackend(processLogger)
		if err != nil {
			processLogger.Errorf("Could not start mock grid: %s", err)
			return 1
		}
		defer mock.Close()
		config.Browser = mock.client
		config.Reporter = mock.reporter
		config.TargetURL = mock.app.URL()
		if params.selfTest {
			config.JobName = ""
		}
	}

	if client, ok := config.Browser.(*webdriver.Client); ok {
		if err := checkEndpoint(ctx, client); err != nil {
			processLogger.Errorf("%s", err)
			return 1
		}
	}

	fmt.Fprintln(stdout)
	framework.PrintFilterDescription(stdout, params.filters, platformList.DisabledNames())

	fmt.Fprintln(stdout, "Running test suite")

	testLogger := &ConsoleTestLogger{
		Out:                  stdout,
		DebugOutputOnFailure: params.debug || params.debugAll,
		DebugOutputOnSuccess: params.debugAll,
	}

	results := logintests.RunTestSuite(config, params.filters.AsFilter, testLogger)

	fmt.Fprintln(stdout)
	framework.PrintResults(stdout, results)

	if params.selfTest {
		return checkSelfTest(stdout, results, mock.grid)
	}
	if !results.OK() {
		fmt.Fprintf(stdout, "\nTo run the failed tests again:\n  %s\n", rerunCommand(args, results.Failures))
		return 1
	}
	return 0
}

const statusTimeout = 30 * time.Second

// checkEndpoint makes sure the WebDriver endpoint is reachable before any session is requested.
func checkEndpoint(ctx context.Context, client *webdriver.Client) error {
	ctx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()
	if err := client.Status(ctx); err != nil {
		return fmt.Errorf("WebDriver endpoint at %s is not available: %w", client.HubURL(), err)
	}
	return nil
}

type lockedWriter struct {
	w    io.Writer
	lock sync.Mutex
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.w.Write(p)
}
