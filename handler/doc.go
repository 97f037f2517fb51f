// Package handler adapts typed request handlers to http.HandlerFunc for the
// JSON API.
//
// A handler receives a Context and a bound request value and returns a
// Response:
//
//	type generateRequest struct {
//		Email string `json:"email"`
//		Topic string `json:"topic"`
//	}
//
//	func generate(ctx handler.Context, req generateRequest) handler.Response {
//		res, err := stories.Generate(ctx, req.Email, params)
//		if err != nil {
//			return handler.Error(err)
//		}
//		return handler.JSON(res)
//	}
//
//	r.Post("/generate", handler.Handle(generate, errorHandler, binder.JSON()))
//
// Responses are written as raw JSON values, there is no envelope. Errors
// returned through Error, failed binders and failed renders all reach the
// ErrorHandler. NewErrorHandler maps validation, binder and HTTPError values
// to status codes and writes a localized body:
//
//	{"error": "...", "message": "...", "code": "story.errors.not_found"}
//
// HTTPError.Extra fields are merged into that object, which is how quota
// denials report subscriptionRequired and storiesRemaining.
package handler
