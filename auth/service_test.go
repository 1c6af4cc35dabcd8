package auth_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"testing"

	"github.com/cheerily/cheerily/auth"
	"github.com/cheerily/cheerily/client"
	"github.com/cheerily/cheerily/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockStorer struct {
	token       *db.Token
	getErr      error
	upsertErr   error
	upsertCalls int
	cleared     bool
}

func (m *mockStorer) GetTokenRecord(ctx context.Context) (*db.Token, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if m.token == nil {
		return nil, nil
	}
	cp := *m.token
	return &cp, nil
}

func (m *mockStorer) UpsertTokenRecord(ctx context.Context, token *db.Token) error {
	m.upsertCalls++
	if m.upsertErr != nil {
		return m.upsertErr
	}
	cp := *token
	m.token = &cp
	return nil
}

func (m *mockStorer) ClearTokenRecord(ctx context.Context) error {
	m.cleared = true
	m.token = nil
	return nil
}

type mockExchanger struct {
	access, refresh string
	exchangeErr     error
	exchangedCodes  []string

	renewed  string
	renewErr error

	revokeStatus int
	revokeErr    error
	revoked      []string
}

func (m *mockExchanger) AuthCodeURL(state string) string {
	return "https://www.reddit.com/api/v1/authorize.compact?state=" + url.QueryEscape(state)
}

func (m *mockExchanger) ExchangeCode(ctx context.Context, code string) (string, string, error) {
	m.exchangedCodes = append(m.exchangedCodes, code)
	if m.exchangeErr != nil {
		return "", "", m.exchangeErr
	}
	return m.access, m.refresh, nil
}

func (m *mockExchanger) RefreshAccessToken(ctx context.Context, refreshToken string) (string, error) {
	if m.renewErr != nil {
		return "", m.renewErr
	}
	return m.renewed, nil
}

func (m *mockExchanger) RevokeToken(ctx context.Context, refreshToken string) (int, error) {
	m.revoked = append(m.revoked, refreshToken)
	return m.revokeStatus, m.revokeErr
}

func redirectWith(code, state string) string {
	q := url.Values{}
	if code != "" {
		q.Set("code", code)
	}
	if state != "" {
		q.Set("state", state)
	}
	return "http://127.0.0.1:8787/callback?" + q.Encode()
}

func TestAuthorization_RoundTrip(t *testing.T) {
	storer := &mockStorer{}
	service := auth.NewService(storer, &mockExchanger{})
	ctx := context.Background()

	authURL, state, err := service.BuildAuthorizationURL(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, state)
	assert.Contains(t, authURL, url.QueryEscape(state))
	assert.Equal(t, state, storer.token.PendingState)

	status, err := service.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, auth.AwaitingRedirect, status)

	require.NoError(t, service.CompleteAuthorization(ctx, redirectWith("the-code", state)))
	assert.Equal(t, "the-code", storer.token.AuthCode)
	assert.Empty(t, storer.token.PendingState, "pending state is consumed")

	status, err = service.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, auth.CodeReceived, status)
}

func TestAuthorization_StatesAreFresh(t *testing.T) {
	service := auth.NewService(&mockStorer{}, &mockExchanger{})

	_, first, err := service.BuildAuthorizationURL(context.Background())
	require.NoError(t, err)
	_, second, err := service.BuildAuthorizationURL(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestCompleteAuthorization_StateMismatch(t *testing.T) {
	storer := &mockStorer{}
	service := auth.NewService(storer, &mockExchanger{})
	ctx := context.Background()

	_, state, err := service.BuildAuthorizationURL(ctx)
	require.NoError(t, err)

	err = service.CompleteAuthorization(ctx, redirectWith("code", "forged-state"))
	assert.ErrorIs(t, err, auth.ErrStateMismatch)
	assert.Empty(t, storer.token.AuthCode)
	assert.Empty(t, storer.token.PendingState, "pending state is consumed even on failure")

	// The original state is single-use and no longer accepted.
	err = service.CompleteAuthorization(ctx, redirectWith("code", state))
	assert.ErrorIs(t, err, auth.ErrStateMismatch)
}

func TestCompleteAuthorization_MalformedRedirect(t *testing.T) {
	tests := []struct {
		name     string
		redirect string
	}{
		{"missing code", redirectWith("", "s")},
		{"missing state", redirectWith("c", "")},
		{"upstream error", "http://127.0.0.1:8787/callback?error=access_denied&state=s"},
		{"unparseable", "http://[::1]:namedport/callback"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storer := &mockStorer{token: &db.Token{PendingState: "s"}}
			service := auth.NewService(storer, &mockExchanger{})

			err := service.CompleteAuthorization(context.Background(), tt.redirect)
			assert.ErrorIs(t, err, auth.ErrMalformedRedirect)
			assert.Empty(t, storer.token.PendingState)
		})
	}
}

func TestBuildAuthorizationURL_BlockedWhenRandomnessFails(t *testing.T) {
	storer := &mockStorer{}
	service := auth.NewService(storer, &mockExchanger{})
	service.StateGenerator = func() (string, error) { return "", errors.New("entropy unavailable") }

	_, _, err := service.BuildAuthorizationURL(context.Background())
	assert.ErrorIs(t, err, auth.ErrAuthBlocked)
	assert.Zero(t, storer.upsertCalls)

	status, err := service.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, auth.AuthBlocked, status)

	service.StateGenerator = func() (string, error) { return "ok", nil }
	_, _, err = service.BuildAuthorizationURL(context.Background())
	assert.ErrorIs(t, err, auth.ErrAuthBlocked, "blocked is terminal")
}

func TestExchangeCodeForTokens(t *testing.T) {
	t.Run("no code", func(t *testing.T) {
		service := auth.NewService(&mockStorer{}, &mockExchanger{})
		assert.ErrorIs(t, service.ExchangeCodeForTokens(context.Background()), auth.ErrNoAuthorizationCode)
	})

	t.Run("success persists tokens and consumes the code", func(t *testing.T) {
		storer := &mockStorer{token: &db.Token{AuthCode: "code"}}
		exchanger := &mockExchanger{access: "access", refresh: "refresh"}
		service := auth.NewService(storer, exchanger)

		require.NoError(t, service.ExchangeCodeForTokens(context.Background()))
		assert.Equal(t, []string{"code"}, exchanger.exchangedCodes)
		assert.Equal(t, "access", storer.token.AccessToken)
		assert.Equal(t, "refresh", storer.token.RefreshToken)
		assert.Empty(t, storer.token.AuthCode)
	})

	t.Run("missing refresh token", func(t *testing.T) {
		storer := &mockStorer{token: &db.Token{AuthCode: "code"}}
		service := auth.NewService(storer, &mockExchanger{access: "access"})

		err := service.ExchangeCodeForTokens(context.Background())
		assert.ErrorIs(t, err, auth.ErrTokenExchangeFailed)
		assert.Empty(t, storer.token.AccessToken)
	})

	t.Run("transport error", func(t *testing.T) {
		storer := &mockStorer{token: &db.Token{AuthCode: "code"}}
		service := auth.NewService(storer, &mockExchanger{exchangeErr: errors.New("connection refused")})

		err := service.ExchangeCodeForTokens(context.Background())
		assert.ErrorIs(t, err, auth.ErrTokenExchangeFailed)
		assert.Contains(t, err.Error(), "connection refused")
		assert.Equal(t, "code", storer.token.AuthCode)
	})

	t.Run("rejected code is dropped", func(t *testing.T) {
		storer := &mockStorer{token: &db.Token{AuthCode: "used-code", RefreshToken: "keep"}}
		exchanger := &mockExchanger{exchangeErr: fmt.Errorf("%w: invalid_grant", client.ErrGrantRejected)}
		service := auth.NewService(storer, exchanger)

		err := service.ExchangeCodeForTokens(context.Background())
		assert.ErrorIs(t, err, auth.ErrTokenExchangeFailed)
		assert.Empty(t, storer.token.AuthCode)
		assert.Equal(t, "keep", storer.token.RefreshToken)

		_, err = service.EnsureValidToken(context.Background())
		assert.ErrorIs(t, err, auth.ErrNoAuthorizationCode)
		assert.Equal(t, []string{"used-code"}, exchanger.exchangedCodes, "a refused code is sent only once")
	})

	t.Run("storage failure is reported", func(t *testing.T) {
		storer := &mockStorer{token: &db.Token{AuthCode: "code"}, upsertErr: errors.New("disk full")}
		service := auth.NewService(storer, &mockExchanger{access: "a", refresh: "r"})

		err := service.ExchangeCodeForTokens(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disk full")
	})
}

func TestEnsureValidToken(t *testing.T) {
	t.Run("returns stored token", func(t *testing.T) {
		exchanger := &mockExchanger{}
		service := auth.NewService(&mockStorer{token: &db.Token{AccessToken: "stored"}}, exchanger)

		tok, err := service.EnsureValidToken(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "stored", tok)
		assert.Empty(t, exchanger.exchangedCodes)
	})

	t.Run("exchanges code once when absent", func(t *testing.T) {
		exchanger := &mockExchanger{access: "fresh", refresh: "r"}
		service := auth.NewService(&mockStorer{token: &db.Token{AuthCode: "code"}}, exchanger)

		tok, err := service.EnsureValidToken(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "fresh", tok)
		assert.Len(t, exchanger.exchangedCodes, 1)
	})

	t.Run("unauthorized when exchange fails", func(t *testing.T) {
		service := auth.NewService(&mockStorer{}, &mockExchanger{})

		_, err := service.EnsureValidToken(context.Background())
		assert.ErrorIs(t, err, auth.ErrUnauthorized)
		assert.ErrorIs(t, err, auth.ErrNoAuthorizationCode)
	})

	t.Run("storage error", func(t *testing.T) {
		service := auth.NewService(&mockStorer{getErr: errors.New("locked")}, &mockExchanger{})

		_, err := service.EnsureValidToken(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to retrieve token record")
	})
}

func TestRenewAccessToken(t *testing.T) {
	t.Run("no refresh token", func(t *testing.T) {
		service := auth.NewService(&mockStorer{token: &db.Token{AccessToken: "a"}}, &mockExchanger{})
		assert.ErrorIs(t, service.RenewAccessToken(context.Background()), auth.ErrNoRefreshToken)
	})

	t.Run("success replaces access token", func(t *testing.T) {
		storer := &mockStorer{token: &db.Token{AccessToken: "stale", RefreshToken: "r"}}
		service := auth.NewService(storer, &mockExchanger{renewed: "renewed"})

		require.NoError(t, service.RenewAccessToken(context.Background()))
		assert.Equal(t, "renewed", storer.token.AccessToken)
		assert.Equal(t, "r", storer.token.RefreshToken)
	})

	t.Run("failure keeps the old token", func(t *testing.T) {
		storer := &mockStorer{token: &db.Token{AccessToken: "stale", RefreshToken: "r"}}
		service := auth.NewService(storer, &mockExchanger{renewErr: errors.New("network error")})

		err := service.RenewAccessToken(context.Background())
		assert.ErrorIs(t, err, auth.ErrRenewalFailed)
		assert.Equal(t, "stale", storer.token.AccessToken)
		assert.Zero(t, storer.upsertCalls)
	})

	t.Run("missing field", func(t *testing.T) {
		storer := &mockStorer{token: &db.Token{AccessToken: "stale", RefreshToken: "r"}}
		service := auth.NewService(storer, &mockExchanger{})

		assert.ErrorIs(t, service.RenewAccessToken(context.Background()), auth.ErrRenewalFailed)
	})
}

func TestRevoke(t *testing.T) {
	t.Run("no refresh token", func(t *testing.T) {
		exchanger := &mockExchanger{revokeStatus: http.StatusNoContent}
		service := auth.NewService(&mockStorer{}, exchanger)

		assert.ErrorIs(t, service.Revoke(context.Background()), auth.ErrNoRefreshToken)
		assert.Empty(t, exchanger.revoked)
	})

	t.Run("204 clears the record", func(t *testing.T) {
		storer := &mockStorer{token: &db.Token{AccessToken: "a", RefreshToken: "r"}}
		exchanger := &mockExchanger{revokeStatus: http.StatusNoContent}
		service := auth.NewService(storer, exchanger)

		require.NoError(t, service.Revoke(context.Background()))
		assert.Equal(t, []string{"r"}, exchanger.revoked)
		assert.True(t, storer.cleared)

		status, err := service.Status(context.Background())
		require.NoError(t, err)
		assert.Equal(t, auth.Unauthenticated, status)
	})

	t.Run("200 is not success", func(t *testing.T) {
		storer := &mockStorer{token: &db.Token{AccessToken: "a", RefreshToken: "r"}}
		service := auth.NewService(storer, &mockExchanger{revokeStatus: http.StatusOK})

		err := service.Revoke(context.Background())
		assert.ErrorIs(t, err, auth.ErrRevocationFailed)
		assert.False(t, storer.cleared)
		assert.Equal(t, "r", storer.token.RefreshToken)
	})

	t.Run("transport error", func(t *testing.T) {
		storer := &mockStorer{token: &db.Token{AccessToken: "a", RefreshToken: "r"}}
		service := auth.NewService(storer, &mockExchanger{revokeErr: errors.New("timeout")})

		assert.ErrorIs(t, service.Revoke(context.Background()), auth.ErrRevocationFailed)
		assert.Equal(t, "r", storer.token.RefreshToken)
	})
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "authorized", auth.Authorized.String())
	assert.Equal(t, "blocked", auth.AuthBlocked.String())
	assert.Equal(t, "State(42)", auth.State(42).String())
}
