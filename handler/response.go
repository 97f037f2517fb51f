package handler

import (
	"encoding/json"
	"net/http"
)

// Response renders itself to w. A Render error is passed to the ErrorHandler
// when nothing has been written yet.
type Response interface {
	Render(w http.ResponseWriter, r *http.Request) error
}

type jsonResponse struct {
	status  int
	headers http.Header
	body    any
}

func (j *jsonResponse) Render(w http.ResponseWriter, _ *http.Request) error {
	b, err := json.Marshal(j.body)
	if err != nil {
		return err
	}
	h := w.Header()
	for k, v := range j.headers {
		h[k] = v
	}
	h.Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(j.status)
	_, err = w.Write(append(b, '\n'))
	return err
}

type JSONOption func(*jsonResponse)

func WithJSONStatus(status int) JSONOption {
	return func(j *jsonResponse) { j.status = status }
}

func WithJSONHeader(key, value string) JSONOption {
	return func(j *jsonResponse) {
		if j.headers == nil {
			j.headers = make(http.Header)
		}
		j.headers.Set(key, value)
	}
}

// JSON writes v as the response body, 200 unless WithJSONStatus says otherwise.
func JSON(v any, opts ...JSONOption) Response {
	j := &jsonResponse{status: http.StatusOK, body: v}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

type emptyResponse struct{ status int }

func (e emptyResponse) Render(w http.ResponseWriter, _ *http.Request) error {
	w.WriteHeader(e.status)
	return nil
}

// Empty responds 204 No Content.
func Empty() Response { return emptyResponse{status: http.StatusNoContent} }

func EmptyWithStatus(status int) Response { return emptyResponse{status: status} }

type redirectResponse struct {
	url    string
	status int
}

func (rr redirectResponse) Render(w http.ResponseWriter, r *http.Request) error {
	http.Redirect(w, r, rr.url, rr.status)
	return nil
}

// Redirect responds 302 Found with a Location of url.
func Redirect(url string) Response {
	return redirectResponse{url: url, status: http.StatusFound}
}

func RedirectWithStatus(url string, status int) Response {
	return redirectResponse{url: url, status: status}
}

type errorResponse struct{ err error }

func (e errorResponse) Render(http.ResponseWriter, *http.Request) error { return e.err }

// Error hands err to the ErrorHandler instead of rendering anything.
func Error(err error) Response {
	if err == nil {
		err = ErrInternal
	}
	return errorResponse{err: err}
}
