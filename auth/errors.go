package auth

import "errors"

var (
	ErrNoAuthorizationCode = errors.New("auth: no authorization code")
	ErrMalformedRedirect   = errors.New("auth: malformed redirect")
	ErrStateMismatch       = errors.New("auth: state mismatch")
	ErrTokenExchangeFailed = errors.New("auth: token exchange failed")
	ErrNoRefreshToken      = errors.New("auth: no refresh token")
	ErrRenewalFailed       = errors.New("auth: access token renewal failed")
	ErrRevocationFailed    = errors.New("auth: revocation failed")

	// ErrUnauthorized means no usable access token could be obtained; the user must authorize again.
	ErrUnauthorized = errors.New("auth: unauthorized")

	// ErrAuthBlocked is terminal: the authorization URL cannot be built.
	ErrAuthBlocked = errors.New("auth: authorization url cannot be built")
)
