package main

import (
	"flag"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/saucelabs/parallel-browser-tests/framework"
	"github.com/saucelabs/parallel-browser-tests/logintests"
	"github.com/saucelabs/parallel-browser-tests/sauce"

	"github.com/alessio/shellescape"
)

const (
	backendSauce = "sauce"
	backendLocal = "local"
	backendMock  = "mock"
)

type commandParams struct {
	backend       string
	host          string
	port          int
	apiURL        string
	targetURL     string
	platformsFile string
	parallel      int
	build         string
	tags          stringList
	tunnel        string
	jobName       string
	timeout       time.Duration
	chromeBin     string
	showBrowser   bool
	filters       framework.RegexFilters
	serveApp      int
	selfTest      bool
	debug         bool
	debugAll      bool
}

func (c *commandParams) Read(args []string, env environmentConfig, errOut io.Writer) bool {
	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.SetOutput(errOut)
	fs.StringVar(&c.backend, "backend", backendSauce, "where browsers come from: sauce, local, or mock")
	fs.StringVar(&c.host, "host", env.SeleniumHost, "hostname of the remote WebDriver endpoint")
	fs.IntVar(&c.port, "port", env.SeleniumPort, "port of the remote WebDriver endpoint")
	fs.StringVar(&c.apiURL, "api-url", firstNonEmpty(env.RESTEndpoint, sauce.DefaultAPIURL), "base URL of the REST API for job results")
	fs.StringVar(&c.targetURL, "target-url", logintests.DefaultTargetURL, "URL of the login page, as seen from the browsers")
	fs.StringVar(&c.platformsFile, "platforms", "", "YAML file listing the platforms to test (default: built-in list)")
	fs.IntVar(&c.parallel, "parallel", 0, "maximum number of platforms tested at once (0 = all)")
	fs.StringVar(&c.build, "build", env.BuildTag, "build name to show in the job records")
	fs.Var(&c.tags, "tags", "comma-separated tags for the job records")
	fs.StringVar(&c.tunnel, "tunnel", env.TunnelIdentifier, "tunnel identifier for reaching the login page")
	fs.StringVar(&c.jobName, "job-name", "", "name for every job (default: the test name)")
	fs.DurationVar(&c.timeout, "timeout", logintests.DefaultCallTimeout, "timeout for each browser operation")
	fs.StringVar(&c.chromeBin, "chrome", "", "path of the Chrome binary for the local backend")
	fs.BoolVar(&c.showBrowser, "show-browser", false, "do not run Chrome headless in the local backend")
	fs.Var(&c.filters.MustMatch, "run", "regex pattern(s) to select tests to run; slashes separate levels, as in \"go test -run\"")
	fs.Var(&c.filters.MustNotMatch, "skip", "regex pattern(s) to select tests not to run")
	fs.IntVar(&c.serveApp, "serve-app", 0, "serve the login page on this port while the tests run")
	fs.BoolVar(&c.selfTest, "self-test", false, "check the harness against the built-in mock grid and login page")
	fs.BoolVar(&c.debug, "debug", false, "enable debug logging for failed tests")
	fs.BoolVar(&c.debugAll, "debug-all", false, "enable debug logging for all tests")

	if err := fs.Parse(args[1:]); err != nil {
		return false
	}
	if c.selfTest {
		c.backend = backendMock
	}
	switch c.backend {
	case backendSauce, backendLocal, backendMock:
	default:
		fmt.Fprintf(errOut, "invalid -backend %q\n", c.backend)
		fs.Usage()
		return false
	}
	if c.parallel < 0 {
		fmt.Fprintln(errOut, "-parallel cannot be negative")
		fs.Usage()
		return false
	}
	return true
}

type stringList []string

func (s stringList) String() string {
	return strings.Join(s, ",")
}

func (s *stringList) Set(value string) error {
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			*s = append(*s, v)
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

type commandBuilder []string

func (b *commandBuilder) add(args ...string) {
	for _, a := range args {
		*b = append(*b, shellescape.Quote(a))
	}
}

func (b commandBuilder) String() string {
	return strings.Join(b, " ")
}

// rerunCommand returns a command line that repeats this run for the failed tests only.
func rerunCommand(args []string, failures []framework.TestResult) string {
	var cmd commandBuilder
	cmd.add(args[0])
	for i := 1; i < len(args); i++ {
		name := strings.TrimLeft(args[i], "-")
		if name == "run" {
			i++ // the value is the next argument
			continue
		}
		if strings.HasPrefix(name, "run=") {
			continue
		}
		cmd.add(args[i])
	}
	for _, f := range failures {
		levels := make([]string, 0, len(f.TestID.Path))
		for _, p := range f.TestID.Path {
			levels = append(levels, "^"+regexp.QuoteMeta(p)+"$")
		}
		cmd.add("-run", strings.Join(levels, "/"))
	}
	return cmd.String()
}
