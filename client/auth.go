package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// RedditConfig holds the endpoints and app identity used for OAuth2.
type RedditConfig struct {
	ClientID    string
	RedirectURI string
	AuthURL     string
	TokenURL    string
	RevokeURL   string
	Scopes      []string
}

// RedditClient implements the auth.TokenExchanger interface against Reddit.
// Reddit "installed apps" have no secret, so the Basic credential is "client_id:".
type RedditClient struct {
	oauth      oauth2.Config
	revokeURL  string
	httpClient *http.Client
}

// NewRedditClient builds a RedditClient. A nil httpClient falls back to NewHTTPClient defaults.
func NewRedditClient(cfg RedditConfig, httpClient *http.Client) *RedditClient {
	if httpClient == nil {
		httpClient = NewHTTPClient("", DefaultRequestTimeout, DefaultRequestsPerMinute)
	}
	return &RedditClient{
		oauth: oauth2.Config{
			ClientID: cfg.ClientID,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
			RedirectURL: cfg.RedirectURI,
			Scopes:      cfg.Scopes,
		},
		revokeURL:  cfg.RevokeURL,
		httpClient: httpClient,
	}
}

// AuthCodeURL returns the authorization URL for a permanent (refreshable) grant.
func (c *RedditClient) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("duration", "permanent"))
}

// ExchangeCode trades an authorization code for an access and refresh token.
func (c *RedditClient) ExchangeCode(ctx context.Context, code string) (string, string, error) {
	tok, err := c.oauth.Exchange(c.withClient(ctx), code)
	if err != nil {
		log.Error().Err(err).Msg("Authorization code exchange failed")
		return "", "", classifyTokenError(err)
	}
	return tok.AccessToken, tok.RefreshToken, nil
}

// RefreshAccessToken mints a new access token from the refresh token.
func (c *RedditClient) RefreshAccessToken(ctx context.Context, refreshToken string) (string, error) {
	src := c.oauth.TokenSource(c.withClient(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		log.Error().Err(err).Msg("Access token refresh failed")
		return "", classifyTokenError(err)
	}
	return tok.AccessToken, nil
}

// RevokeToken posts the refresh token to the revocation endpoint and returns
// the HTTP status untouched; interpreting it is up to the caller.
func (c *RedditClient) RevokeToken(ctx context.Context, refreshToken string) (int, error) {
	form := url.Values{
		"token":           {refreshToken},
		"token_type_hint": {"refresh_token"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, fmt.Errorf("failed to create revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.oauth.ClientID, "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Error().Err(err).Str("url", c.revokeURL).Msg("Revoke request failed")
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))

	log.Debug().Int("status", resp.StatusCode).Msg("Revoke request answered")
	return resp.StatusCode, nil
}

// classifyTokenError marks an answered refusal from the token endpoint with
// ErrGrantRejected. Transport failures pass through unchanged.
func classifyTokenError(err error) error {
	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) {
		return fmt.Errorf("%w: %w", ErrGrantRejected, err)
	}
	return err
}

// withClient makes x/oauth2 use our rate-limited client.
func (c *RedditClient) withClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}
