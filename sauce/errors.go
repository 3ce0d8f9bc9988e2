package sauce

import (
	"fmt"
	"net/http"
)

// ErrorResponse represents an error caused by talking to the REST API.
type ErrorResponse struct {
	Response *http.Response `json:"-"`

	Message string `json:"message"`
	Detail  string `json:"detail"`
}

func (e ErrorResponse) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Detail
	} else if e.Detail != "" && e.Detail != msg {
		msg += ": " + e.Detail
	}
	if msg == "" {
		msg = "request failed"
	}
	if e.Response != nil {
		msg = fmt.Sprintf("(%d) %s", e.Response.StatusCode, msg)
	}
	return msg
}
