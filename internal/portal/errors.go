package portal

import "errors"

var (
	// ErrMissingCredentials means neither the call nor the configuration supplied
	// both an email and a password.
	ErrMissingCredentials = errors.New("credentials not found: set EMAIL and PASSWORD or pass them explicitly")
	// ErrAuthenticationTimeout means the portal did not leave the login page in time.
	ErrAuthenticationTimeout = errors.New("login failed: timed out waiting for post-login redirect")
	// ErrInvalidInput rejects a request before any browser work happens.
	ErrInvalidInput = errors.New("invalid input")
)
