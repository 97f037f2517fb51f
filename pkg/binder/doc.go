// Package binder decodes request data into typed structs for handler.Wrap.
//
// Three binders are provided:
//
//   - JSON(opts...): the request body, with a size limit (DefaultMaxJSONSize
//     unless WithMaxBytes is given) and strict field matching
//   - Query(): URL query parameters, from `query:"name"` tags
//   - Path(extractor): router path parameters, from `path:"name"` tags
//
// Binders are applied in order, so one request struct can mix sources:
//
//	type AudioRequest struct {
//	    ID    string `path:"id"`
//	    Email string `json:"email"`
//	}
//
//	r.Post("/stories/{id}/audio", handler.Wrap(h,
//	    handler.WithBinders[handler.Context, AudioRequest](
//	        binder.Path(chi.URLParam),
//	        binder.JSON(),
//	    ),
//	))
//
// Failures wrap one of the package errors (ErrFailedToParseJSON,
// ErrBodyTooLarge, ErrUnsupportedMediaType...), which the handler error
// handler turns into 4xx responses.
package binder
