package auth

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailAlreadyExists = errors.New("email already exists")
)

var (
	ErrInvalidState    = errors.New("invalid OAuth state")
	ErrInvalidCode     = errors.New("invalid OAuth code")
	ErrUnverifiedEmail = errors.New("email not verified by provider")
	ErrNoPrimaryEmail  = errors.New("no primary email from provider")
	ErrProviderLinked  = errors.New("provider already linked to another account")
)
