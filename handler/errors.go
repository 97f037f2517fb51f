package handler

import (
	"errors"
	"maps"
	"net/http"
)

// ErrNilResponse is reported when a handler returns a nil Response.
var ErrNilResponse = errors.New("handler returned nil response")

// HTTPError is an error with a status code. Key is the catalogue key of the
// message, Args its placeholder pairs. Extra fields are merged into the JSON
// error body. A non-empty Locale replaces the request locale.
type HTTPError struct {
	Code   int
	Key    string
	Args   []string
	Extra  map[string]any
	Locale string
}

func NewHTTPError(code int, key string, args ...string) HTTPError {
	return HTTPError{Code: code, Key: key, Args: args}
}

func (e HTTPError) Error() string { return e.Key }

// With returns a copy of e carrying an extra body field.
func (e HTTPError) With(field string, value any) HTTPError {
	extra := make(map[string]any, len(e.Extra)+1)
	maps.Copy(extra, e.Extra)
	extra[field] = value
	e.Extra = extra
	return e
}

// In returns a copy of e translated into lang.
func (e HTTPError) In(lang string) HTTPError {
	e.Locale = lang
	return e
}

var (
	ErrBadRequest           = HTTPError{Code: http.StatusBadRequest, Key: "errors.bad_request"}
	ErrUnauthorized         = HTTPError{Code: http.StatusUnauthorized, Key: "errors.unauthorized"}
	ErrForbidden            = HTTPError{Code: http.StatusForbidden, Key: "errors.forbidden"}
	ErrNotFound             = HTTPError{Code: http.StatusNotFound, Key: "errors.not_found"}
	ErrRequestTooLarge      = HTTPError{Code: http.StatusRequestEntityTooLarge, Key: "errors.payload_too_large"}
	ErrUnsupportedMediaType = HTTPError{Code: http.StatusUnsupportedMediaType, Key: "errors.unsupported_media_type"}
	ErrTooManyRequests      = HTTPError{Code: http.StatusTooManyRequests, Key: "errors.rate_limited"}
	ErrInternal             = HTTPError{Code: http.StatusInternalServerError, Key: "errors.internal"}
	ErrBadGateway           = HTTPError{Code: http.StatusBadGateway, Key: "errors.upstream"}
)
