package cmd

import (
	"errors"
	"net"

	"github.com/cheerily/cheerily/auth"
	"github.com/cheerily/cheerily/client"
	"github.com/cheerily/cheerily/db"
	"github.com/cheerily/cheerily/pipeline"
	"github.com/cheerily/cheerily/pkg/clierr"
)

const reauthHint = " Run 'cheerily auth login' and try again."

var errorMessages = []struct {
	target  error
	typ     clierr.Type
	message string
}{
	{pipeline.ErrAuthExpired, clierr.Auth, "Your Reddit authorization has expired." + reauthHint},
	{auth.ErrAuthBlocked, clierr.Auth, "Authorization is unavailable: a secure state could not be generated."},
	{auth.ErrStateMismatch, clierr.Auth, "The redirect does not match the pending authorization." + reauthHint},
	{auth.ErrMalformedRedirect, clierr.Validation, "The redirect URL is missing its code or state, or Reddit reported an error." + reauthHint},
	{auth.ErrNoAuthorizationCode, clierr.Auth, "No authorization is in progress." + reauthHint},
	{auth.ErrNoRefreshToken, clierr.Auth, "Not signed in." + reauthHint},
	{auth.ErrUnauthorized, clierr.Auth, "Not signed in." + reauthHint},
	{client.ErrUnauthorized, clierr.Auth, "Reddit rejected the access token." + reauthHint},
	{auth.ErrTokenExchangeFailed, clierr.Auth, "Reddit did not accept the authorization code." + reauthHint},
	{auth.ErrRenewalFailed, clierr.Auth, "The access token could not be renewed." + reauthHint},
	{auth.ErrRevocationFailed, clierr.Network, "Reddit did not confirm the revocation; your tokens were kept. Try again later."},
	{pipeline.ErrFeedExhausted, clierr.Exhausted, "No new cheers right now. Try again later."},
	{pipeline.ErrBusy, clierr.Internal, "Another request is still running."},
	{client.ErrMalformedResponse, clierr.Network, "Reddit sent a response that could not be read. Try again later."},
	{client.ErrTransport, clierr.Network, "Could not reach Reddit. Check your connection and try again later."},
	{db.ErrNotFound, clierr.NotFound, "Nothing found with that id."},
}

// toCLIError turns a domain error into a categorized, user-facing one.
// Errors that are already categorized pass through.
func toCLIError(err error) error {
	if err == nil {
		return nil
	}
	var ce *clierr.Error
	if errors.As(err, &ce) {
		return err
	}

	// A network failure during exchange or renewal is not a rejected grant.
	var netErr net.Error
	if (errors.Is(err, auth.ErrRenewalFailed) || errors.Is(err, auth.ErrTokenExchangeFailed)) && errors.As(err, &netErr) {
		return clierr.New(clierr.Network, "Could not reach Reddit. Check your connection and try again later.", err)
	}

	for _, m := range errorMessages {
		if errors.Is(err, m.target) {
			return clierr.New(m.typ, m.message, err)
		}
	}
	return clierr.New(clierr.Internal, "Unexpected error. Run with DEBUG_CHEERILY=1 for details.", err)
}
