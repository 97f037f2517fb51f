package binder

import "errors"

var (
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrMissingContentType   = errors.New("missing content type")
	ErrFailedToParseJSON    = errors.New("failed to parse JSON request body")
	ErrBodyTooLarge         = errors.New("request body too large")
	ErrFailedToParseQuery   = errors.New("failed to parse query parameters")
	ErrFailedToParsePath    = errors.New("failed to parse path parameters")
	// ErrBinderNotApplicable is skipped by handler.Wrap: the binder has
	// nothing to read for this request.
	ErrBinderNotApplicable = errors.New("binder not applicable")
)

// IsBindError reports whether err came from one of the binders.
func IsBindError(err error) bool {
	for _, target := range []error{
		ErrUnsupportedMediaType,
		ErrMissingContentType,
		ErrFailedToParseJSON,
		ErrBodyTooLarge,
		ErrFailedToParseQuery,
		ErrFailedToParsePath,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
