package admin

import "errors"

// Sentinel errors for admin request authentication.
var (
	ErrMissingToken = errors.New("admin: missing bearer token")
	ErrTokenExpired = errors.New("admin: token expired")
	ErrInvalidToken = errors.New("admin: invalid token")
)
