package sauce

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/saucelabs/parallel-browser-tests/logging"

	"github.com/launchdarkly/go-test-helpers/v2/httphelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupIn(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestLoadCredentialsFromEnvironment(t *testing.T) {
	c, err := LoadCredentials(lookupIn(map[string]string{
		"SAUCE_USERNAME":   "alice",
		"SAUCE_ACCESS_KEY": "k1",
	}), "")
	require.NoError(t, err)
	assert.Equal(t, Credentials{Username: "alice", AccessKey: "k1"}, c)
}

func TestLoadCredentialsFromLegacyVariables(t *testing.T) {
	c, err := LoadCredentials(lookupIn(map[string]string{
		"SAUCE_USER_NAME": "bob",
		"SAUCE_API_KEY":   "k2",
	}), "")
	require.NoError(t, err)
	assert.Equal(t, Credentials{Username: "bob", AccessKey: "k2"}, c)
}

func TestLoadCredentialsFromFile(t *testing.T) {
	home := t.TempDir()
	content := "# written by the CI plugin\nusername=carol\nkey = k3\n"
	require.NoError(t, os.WriteFile(filepath.Join(home, CredentialsFileName), []byte(content), 0600))

	c, err := LoadCredentials(lookupIn(map[string]string{"SAUCE_USERNAME": "ignored"}), home)
	require.NoError(t, err)
	assert.Equal(t, Credentials{Username: "carol", AccessKey: "k3"}, c)
}

func TestLoadCredentialsMissing(t *testing.T) {
	_, err := LoadCredentials(lookupIn(nil), t.TempDir())
	assert.True(t, errors.Is(err, ErrNoCredentials))

	home := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(home, CredentialsFileName), []byte("username=dave\n"), 0600))
	_, err = LoadCredentials(lookupIn(nil), home)
	assert.True(t, errors.Is(err, ErrNoCredentials))
}

func TestHubURL(t *testing.T) {
	c := Credentials{Username: "alice", AccessKey: "k1"}
	assert.Equal(t, "http://alice:k1@ondemand.saucelabs.com:80/wd/hub", HubURL(c, "ondemand.saucelabs.com", 80))
	assert.Equal(t, "https://alice:k1@ondemand.saucelabs.com:443/wd/hub", HubURL(c, "ondemand.saucelabs.com", 443))
}

func TestReportSendsJobUpdate(t *testing.T) {
	handler, requests := httphelpers.RecordingHandler(httphelpers.HandlerWithStatus(200))
	httphelpers.WithServer(handler, func(server *httptest.Server) {
		var debug logging.CapturingLogger
		r := NewReporter(Credentials{Username: "alice", AccessKey: "k1"}, server.URL+"/", &debug)

		err := r.Report(context.Background(), "session-1", JobResult{Passed: true, Name: "Windows 7 Chrome latest/valid login"})
		require.NoError(t, err)

		req := <-requests
		assert.Equal(t, "PUT", req.Request.Method)
		assert.Equal(t, "/rest/v1/alice/jobs/session-1", req.Request.URL.Path)
		user, key, ok := req.Request.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "alice", user)
		assert.Equal(t, "k1", key)
		assert.JSONEq(t, `{"passed":true,"name":"Windows 7 Chrome latest/valid login"}`, string(req.Body))
		assert.NotEmpty(t, debug.Output())
	})
}

func TestReportFailedOutcome(t *testing.T) {
	handler, requests := httphelpers.RecordingHandler(httphelpers.HandlerWithStatus(200))
	httphelpers.WithServer(handler, func(server *httptest.Server) {
		r := NewReporter(Credentials{Username: "alice", AccessKey: "k1"}, server.URL, nil)
		require.NoError(t, r.Report(context.Background(), "session-2", JobResult{Passed: false}))
		assert.JSONEq(t, `{"passed":false}`, string((<-requests).Body))
	})
}

func TestReportErrorResponse(t *testing.T) {
	unauthorized := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(401)
		_, _ = w.Write([]byte(`{"message":"Not authorized"}`))
	})
	httphelpers.WithServer(unauthorized, func(server *httptest.Server) {
		r := NewReporter(Credentials{Username: "alice", AccessKey: "wrong"}, server.URL, nil)
		err := r.Report(context.Background(), "session-3", JobResult{Passed: true})
		require.Error(t, err)
		var resp ErrorResponse
		require.True(t, errors.As(err, &resp))
		assert.Equal(t, 401, resp.Response.StatusCode)
		assert.Contains(t, err.Error(), "(401) Not authorized")
	})

	httphelpers.WithServer(httphelpers.HandlerWithResponse(500, nil, []byte("oops")), func(server *httptest.Server) {
		r := NewReporter(Credentials{Username: "alice", AccessKey: "k1"}, server.URL, nil)
		err := r.Report(context.Background(), "session-4", JobResult{Passed: true})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "(500) oops")
	})
}

func TestLogReporter(t *testing.T) {
	var debug logging.CapturingLogger
	var r ResultReporter = LogReporter{Logger: &debug}
	require.NoError(t, r.Report(context.Background(), "abc", JobResult{Passed: false, Name: "x"}))
	assert.Equal(t, "Session abc (x) failed", debug.Output()[0].Message)
}

func TestSessionIDLine(t *testing.T) {
	assert.Equal(t, "SauceOnDemandSessionID=abc123 job-name=some job name", SessionIDLine("abc123", "some job name"))
}
