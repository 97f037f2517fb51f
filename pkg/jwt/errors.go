package jwt

import "errors"

var (
	ErrMissingToken      = errors.New("jwt: authentication required")
	ErrInvalidToken      = errors.New("jwt: invalid token")
	ErrExpiredToken      = errors.New("jwt: token expired")
	ErrMissingSigningKey = errors.New("jwt: missing signing key")
	ErrMissingSubject    = errors.New("jwt: token missing subject")
)
