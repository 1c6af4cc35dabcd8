package client

import "errors"

var (
	// ErrUnauthorized means upstream rejected the access token (HTTP 401 or 403).
	ErrUnauthorized = errors.New("client: unauthorized")

	// ErrGrantRejected means the token endpoint answered and refused the grant,
	// as opposed to the request never getting an answer.
	ErrGrantRejected = errors.New("client: grant rejected")

	ErrTransport         = errors.New("client: transport error")
	ErrMalformedResponse = errors.New("client: malformed response")
)
