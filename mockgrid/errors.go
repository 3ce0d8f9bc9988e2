package mockgrid

import (
	"encoding/json"
	"fmt"
	"net/http"
)

type wdError struct {
	status  int
	code    string
	message string
}

func (e *wdError) Error() string {
	return e.code + ": " + e.message
}

func errInvalidArgument(format string, args ...interface{}) *wdError {
	return &wdError{http.StatusBadRequest, "invalid argument", fmt.Sprintf(format, args...)}
}

func errInvalidSelector(format string, args ...interface{}) *wdError {
	return &wdError{http.StatusBadRequest, "invalid selector", fmt.Sprintf(format, args...)}
}

func errInvalidSession(id string) *wdError {
	return &wdError{http.StatusNotFound, "invalid session id", "no active session with ID " + id}
}

func errNoSuchElement(format string, args ...interface{}) *wdError {
	return &wdError{http.StatusNotFound, "no such element", fmt.Sprintf(format, args...)}
}

func errStaleElement(id string) *wdError {
	return &wdError{http.StatusNotFound, "stale element reference", "element " + id + " is not on the current page"}
}

func errNotInteractable(format string, args ...interface{}) *wdError {
	return &wdError{http.StatusBadRequest, "element not interactable", fmt.Sprintf(format, args...)}
}

func errSessionNotCreated(format string, args ...interface{}) *wdError {
	return &wdError{http.StatusInternalServerError, "session not created", fmt.Sprintf(format, args...)}
}

func errUnknown(err error) *wdError {
	return &wdError{http.StatusInternalServerError, "unknown error", err.Error()}
}

func writeValue(w http.ResponseWriter, value interface{}) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"value": value})
}

func writeError(w http.ResponseWriter, err error) {
	e, ok := err.(*wdError)
	if !ok {
		e = errUnknown(err)
	}
	writeJSON(w, e.status, map[string]interface{}{
		"value": map[string]string{
			"error":      e.code,
			"message":    e.message,
			"stacktrace": "",
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	data, _ := json.Marshal(body)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
