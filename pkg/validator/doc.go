// Package validator turns request input checks into ValidationErrors, a
// field-keyed error list that carries translation keys for the message
// catalogue.
//
// Checks are either hand-built rules evaluated with Apply:
//
//	err := validator.Apply(
//	    validator.Required("email", req.Email),
//	    validator.ValidEmail("email", req.Email),
//	    validator.MaxLen("message", req.Message, 5000),
//	)
//
// or struct tags evaluated with Struct on top of go-playground/validator.
// Field names in both cases are the json names the client sent.
package validator
