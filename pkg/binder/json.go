package binder

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"reflect"
	"strings"
	"unicode"
)

// DefaultMaxJSONSize limits JSON bodies when no WithMaxBytes option is given.
const DefaultMaxJSONSize = 1 << 20

type jsonConfig struct {
	maxBytes      int64
	allowUnknown  bool
	allowEmpty    bool
	skipSanitizer bool
}

type JSONOption func(*jsonConfig)

// WithMaxBytes caps the body size. Larger bodies fail with ErrBodyTooLarge.
func WithMaxBytes(n int64) JSONOption {
	return func(c *jsonConfig) {
		if n > 0 {
			c.maxBytes = n
		}
	}
}

// WithUnknownFields accepts object keys that have no matching struct field.
func WithUnknownFields() JSONOption {
	return func(c *jsonConfig) { c.allowUnknown = true }
}

// WithEmptyBody binds nothing instead of failing on an empty body.
func WithEmptyBody() JSONOption {
	return func(c *jsonConfig) { c.allowEmpty = true }
}

// WithoutSanitizer leaves decoded strings untouched.
func WithoutSanitizer() JSONOption {
	return func(c *jsonConfig) { c.skipSanitizer = true }
}

// JSON binds an application/json request body into v.
func JSON(opts ...JSONOption) func(r *http.Request, v any) error {
	cfg := jsonConfig{maxBytes: DefaultMaxJSONSize}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(r *http.Request, v any) error {
		if err := r.Context().Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrFailedToParseJSON, err)
		}

		ct := r.Header.Get("Content-Type")
		if ct == "" {
			if cfg.allowEmpty && r.ContentLength <= 0 {
				return ErrBinderNotApplicable
			}
			return fmt.Errorf("%w: expected application/json", ErrMissingContentType)
		}
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil || mediaType != "application/json" {
			return fmt.Errorf("%w: got %q, expected application/json", ErrUnsupportedMediaType, ct)
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, cfg.maxBytes+1))
		if err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				return fmt.Errorf("%w: max %d bytes", ErrBodyTooLarge, mbe.Limit)
			}
			return fmt.Errorf("%w: read body: %v", ErrFailedToParseJSON, err)
		}
		if int64(len(body)) > cfg.maxBytes {
			return fmt.Errorf("%w: max %d bytes", ErrBodyTooLarge, cfg.maxBytes)
		}
		if len(bytes.TrimSpace(body)) == 0 {
			if cfg.allowEmpty {
				return ErrBinderNotApplicable
			}
			return fmt.Errorf("%w: empty body", ErrFailedToParseJSON)
		}

		dec := json.NewDecoder(bytes.NewReader(body))
		if !cfg.allowUnknown {
			dec.DisallowUnknownFields()
		}
		if err := dec.Decode(v); err != nil {
			return fmt.Errorf("%w: %v", ErrFailedToParseJSON, err)
		}
		if dec.More() {
			return fmt.Errorf("%w: unexpected data after JSON value", ErrFailedToParseJSON)
		}

		if !cfg.skipSanitizer {
			sanitize(reflect.ValueOf(v))
		}
		return nil
	}
}

// sanitize strips control characters (except tab and newline) from every
// settable string reachable from rv.
func sanitize(rv reflect.Value) {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if !rv.IsNil() {
			sanitize(rv.Elem())
		}
	case reflect.String:
		if rv.CanSet() {
			rv.SetString(sanitizeString(rv.String()))
		}
	case reflect.Struct:
		for i := range rv.NumField() {
			if f := rv.Field(i); f.CanSet() {
				sanitize(f)
			}
		}
	case reflect.Slice, reflect.Array:
		for i := range rv.Len() {
			sanitize(rv.Index(i))
		}
	case reflect.Map:
		if rv.Type().Elem().Kind() != reflect.String {
			return
		}
		iter := rv.MapRange()
		for iter.Next() {
			rv.SetMapIndex(iter.Key(), reflect.ValueOf(sanitizeString(iter.Value().String())).Convert(rv.Type().Elem()))
		}
	}
}

func sanitizeString(s string) string {
	if !strings.ContainsFunc(s, isStripped) {
		return s
	}
	return strings.Map(func(r rune) rune {
		if isStripped(r) {
			return -1
		}
		return r
	}, s)
}

func isStripped(r rune) bool {
	return unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r'
}
