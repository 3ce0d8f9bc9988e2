package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/saucelabs/parallel-browser-tests/framework"
	"github.com/saucelabs/parallel-browser-tests/loginapp"
	"github.com/saucelabs/parallel-browser-tests/logging"
	"github.com/saucelabs/parallel-browser-tests/mockgrid"
	"github.com/saucelabs/parallel-browser-tests/sauce"
	"github.com/saucelabs/parallel-browser-tests/webdriver"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const mockGridUser = "self-test"

// mockBackend is the login page and a mock grid, both served on local ports, with a client
// and reporter that talk to the grid.
type mockBackend struct {
	grid       *mockgrid.Grid
	app        *framework.Server
	gridServer *framework.Server
	client     *webdriver.Client
	reporter   *sauce.Reporter
}

func startMockBackend(logger *logrus.Logger) (*mockBackend, error) {
	debugLogger := logging.DebugLogger(logger)
	creds := sauce.Credentials{Username: mockGridUser, AccessKey: uuid.NewString()}

	app, err := framework.StartServer(0, loginapp.New(debugLogger), logger)
	if err != nil {
		return nil, err
	}
	grid := mockgrid.New(mockgrid.Config{
		Username:  creds.Username,
		AccessKey: creds.AccessKey,
		Logger:    debugLogger,
	})
	gridServer, err := framework.StartServer(0, grid, logger)
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	client, err := webdriver.NewClient(
		sauce.HubURL(creds, "localhost", gridServer.Port()),
		webdriver.WithLogger(debugLogger),
	)
	if err != nil {
		_ = gridServer.Close()
		_ = app.Close()
		return nil, err
	}
	logger.Infof("Mock grid is at %s%s, login page is at %s", gridServer.URL(), mockgrid.HubPath, app.URL())
	return &mockBackend{
		grid:       grid,
		app:        app,
		gridServer: gridServer,
		client:     client,
		reporter:   sauce.NewReporter(creds, gridServer.URL(), debugLogger),
	}, nil
}

func (m *mockBackend) Close() {
	_ = m.gridServer.Close()
	_ = m.app.Close()
}

// checkSelfTest verifies that the suite behaved as designed against the mock grid: valid
// logins pass, bad passwords fail, and every session was closed and reported exactly once
// with the outcome of its test.
func checkSelfTest(out io.Writer, results framework.Results, grid *mockgrid.Grid) int {
	problems := selfTestProblems(results, grid)
	fmt.Fprintln(out)
	if len(problems) == 0 {
		fmt.Fprintf(out, "Self-test passed (%d sessions checked)\n", len(grid.Sessions()))
		return 0
	}
	fmt.Fprintln(out, "SELF-TEST FAILED:")
	for _, p := range problems {
		fmt.Fprintf(out, "  * %s\n", p)
	}
	return 1
}

func selfTestProblems(results framework.Results, grid *mockgrid.Grid) []string {
	var problems []string

	failed := make(map[string]bool)
	for _, f := range results.Failures {
		failed[f.TestID.String()] = true
	}
	for _, r := range results.Tests {
		if r.Skipped || len(r.TestID.Path) < 2 {
			continue
		}
		id := r.TestID.String()
		expectFailure := isBadPasswordTest(id)
		if failed[id] != expectFailure {
			problems = append(problems, fmt.Sprintf("%s: failed=%t, expected failed=%t", id, failed[id], expectFailure))
		}
	}

	sessions := grid.Sessions()
	if len(sessions) == 0 {
		problems = append(problems, "no sessions were opened")
	}
	for _, s := range sessions {
		name := s.Capabilities.GetByKey("sauce:options").GetByKey("name").StringValue()
		if !s.Closed {
			problems = append(problems, fmt.Sprintf("session %s (%s) was not closed", s.ID, name))
		}
		updates := grid.JobUpdatesFor(s.ID)
		if len(updates) != 1 {
			problems = append(problems, fmt.Sprintf("session %s (%s) was reported %d times", s.ID, name, len(updates)))
			continue
		}
		if updates[0].Passed == isBadPasswordTest(updates[0].Name) {
			problems = append(problems, fmt.Sprintf("session %s was reported as passed=%t for %q",
				s.ID, updates[0].Passed, updates[0].Name))
		}
	}
	return problems
}

func isBadPasswordTest(name string) bool {
	return strings.HasSuffix(name, "/bad password")
}
