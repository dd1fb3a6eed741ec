// Package httputil holds the handler plumbing shared by the HTTP servers.
package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

type httpError struct {
	cause  error
	status int
	code   string
}

func (e *httpError) Error() string {
	return e.cause.Error()
}

func (e *httpError) Unwrap() error {
	return e.cause
}

// HTTPError creates an error answered with status. code, if set, is returned to the client so it
// can tell failures apart without parsing the message.
func HTTPError(cause error, status int, code string) error {
	return &httpError{
		cause:  cause,
		status: status,
		code:   code,
	}
}

func BadRequest(cause error) error {
	return &httpError{
		cause:  cause,
		status: http.StatusBadRequest,
	}
}

func NotFound(cause error) error {
	return &httpError{
		cause:  cause,
		status: http.StatusNotFound,
	}
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

// HandlerFunc is http.HandlerFunc returning an error. An error made by HTTPError is answered with
// its status, anything else with 500.
type HandlerFunc func(http.ResponseWriter, *http.Request) error

func WrapHandlerFunc(f HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := f(w, r)
		if err == nil {
			return
		}
		status := http.StatusInternalServerError
		resp := ErrorResponse{Error: err.Error()}
		var he *httpError
		if errors.As(err, &he) {
			status = he.status
			resp.Code = he.code
		}
		w.Header().Set("Content-Type", JSONContentType)
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

const (
	JSONContentType = "application/json; charset=utf-8"
)

// ParseJSON decodes a JSON object, rejecting unknown fields.
func ParseJSON(r io.Reader, v any) error {
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

func WriteJSON(w http.ResponseWriter, obj any) error {
	w.Header().Set("Content-Type", JSONContentType)
	return json.NewEncoder(w).Encode(obj)
}
