package engine

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// Response is returned by every Handler.
type Response interface {
	write(w http.ResponseWriter, r *http.Request)
}

type jsonResponse struct {
	status int
	body   any
}

func (j *jsonResponse) write(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(j.status)
	if err := json.NewEncoder(w).Encode(j.body); err != nil {
		slog.Error("failed to encode json response", "error", err, "url", r.URL.Path)
	}
}

// JSON responds 200 with the given value encoded as JSON.
func JSON(v any) Response { return &jsonResponse{status: http.StatusOK, body: v} }

// JSONStatus is JSON with a custom status code.
func JSONStatus(status int, v any) Response { return &jsonResponse{status: status, body: v} }

type emptyResponse struct{}

func (emptyResponse) write(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }

// Empty responds 204.
func Empty() Response { return emptyResponse{} }

type bytesResponse struct {
	contentType string
	body        []byte
}

func (b *bytesResponse) write(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", b.contentType)
	w.Write(b.body)
}

// Bytes responds 200 with a raw body.
func Bytes(contentType string, body []byte) Response {
	return &bytesResponse{contentType: contentType, body: body}
}

// httpError is rendered as {"error": "...", "details": ...}.
type httpError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"error"`
	Details    any    `json:"details,omitempty"`
	err        error
}

func (e *httpError) write(w http.ResponseWriter, r *http.Request) {
	if e.err != nil {
		slog.Error("error while handling http request", "error", e.err, "url", r.URL.Path, "method", r.Method)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.StatusCode)
	json.NewEncoder(w).Encode(e)
}

// Error logs the error and responds with a generic 500.
func Error(err error) Response {
	return &httpError{StatusCode: http.StatusInternalServerError, Message: "Internal error - please try again later", err: err}
}

func ClientErrorf(format string, args ...any) Response {
	return &httpError{StatusCode: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...any) Response {
	return &httpError{StatusCode: http.StatusNotFound, Message: fmt.Sprintf(format, args...)}
}

func Conflictf(format string, args ...any) Response {
	return &httpError{StatusCode: http.StatusConflict, Message: fmt.Sprintf(format, args...)}
}

// Conflict is a 409 that carries structured details alongside the message.
func Conflict(details any, msg string) Response {
	return &httpError{StatusCode: http.StatusConflict, Message: msg, Details: details}
}

func Unauthorized(err error) Response {
	slog.Info("rejected unauthorized request", "error", err)
	return &httpError{StatusCode: http.StatusUnauthorized, Message: "Unauthorized"}
}
