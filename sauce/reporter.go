package sauce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/saucelabs/parallel-browser-tests/logging"
)

const (
	// DefaultAPIURL is the base URL of the REST API.
	DefaultAPIURL = "https://saucelabs.com"

	// RequestTimeout is the default timeout for a job update.
	RequestTimeout = 20 * time.Second
)

// JobResult is the outcome of one test, sent to the service for the session that ran it.
type JobResult struct {
	Passed bool     `json:"passed"`
	Name   string   `json:"name,omitempty"`
	Build  string   `json:"build,omitempty"`
	Tags   []string `json:"tags,omitempty"`
}

// ResultReporter records the outcome of the test that used a remote session.
type ResultReporter interface {
	Report(ctx context.Context, sessionID string, result JobResult) error
}

// Reporter updates job status through the REST API.
type Reporter struct {
	client      *http.Client
	credentials Credentials
	baseURL     string
	logger      logging.Logger
}

// NewReporter returns a Reporter for the API at baseURL, such as DefaultAPIURL.
func NewReporter(credentials Credentials, baseURL string, logger logging.Logger) *Reporter {
	if logger == nil {
		logger = logging.NullLogger()
	}
	return &Reporter{
		client:      &http.Client{Timeout: RequestTimeout},
		credentials: credentials,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		logger:      logger,
	}
}

// JobURL returns the REST resource for the job that ran in the specified session.
func (r *Reporter) JobURL(sessionID string) string {
	return fmt.Sprintf("%s/rest/v1/%s/jobs/%s",
		r.baseURL, url.PathEscape(r.credentials.Username), url.PathEscape(sessionID))
}

// Report marks the job for the session as passed or failed.
func (r *Reporter) Report(ctx context.Context, sessionID string, result JobResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, r.JobURL(sessionID), bytes.NewBuffer(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(r.credentials.Username, r.credentials.AccessKey)

	r.logger.Printf("Updating job %s: %s", sessionID, string(data))
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("could not update job %s: %w", sessionID, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if err := checkResponse(resp); err != nil {
		return fmt.Errorf("could not update job %s: %w", sessionID, err)
	}
	return nil
}

func checkResponse(r *http.Response) error {
	if c := r.StatusCode; c >= 200 && c <= 299 {
		return nil
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	payload := ErrorResponse{Response: r}
	if err := json.Unmarshal(data, &payload); err != nil || (payload.Message == "" && payload.Detail == "") {
		payload.Message = strings.TrimSpace(string(data))
	}
	return payload
}

// LogReporter is a ResultReporter for backends that have no job records. It only logs.
type LogReporter struct {
	Logger logging.Logger
}

func (r LogReporter) Report(ctx context.Context, sessionID string, result JobResult) error {
	verdict := "failed"
	if result.Passed {
		verdict = "passed"
	}
	if r.Logger != nil {
		r.Logger.Printf("Session %s (%s) %s", sessionID, result.Name, verdict)
	}
	return nil
}

// SessionIDLine is the line that CI plugins look for in test output to associate a test with
// its job.
func SessionIDLine(sessionID, jobName string) string {
	return fmt.Sprintf("SauceOnDemandSessionID=%s job-name=%s", sessionID, jobName)
}
