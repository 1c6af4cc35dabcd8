package auth

import (
	"context"

	"github.com/cheerily/cheerily/db"
)

// TokenStorer defines the contract for any component that can store and retrieve the token record.
type TokenStorer interface {
	GetTokenRecord(ctx context.Context) (*db.Token, error)
	UpsertTokenRecord(ctx context.Context, token *db.Token) error
	ClearTokenRecord(ctx context.Context) error
}

// TokenExchanger defines the contract for the upstream OAuth2 endpoints.
type TokenExchanger interface {
	// AuthCodeURL returns the authorization URL carrying the given state.
	AuthCodeURL(state string) string
	// ExchangeCode trades an authorization code for an access and refresh token.
	ExchangeCode(ctx context.Context, code string) (accessToken, refreshToken string, err error)
	// RefreshAccessToken mints a new access token from a refresh token.
	RefreshAccessToken(ctx context.Context, refreshToken string) (accessToken string, err error)
	// RevokeToken asks upstream to revoke the refresh token and returns the HTTP status.
	RevokeToken(ctx context.Context, refreshToken string) (status int, err error)
}

// NewRepoStorer adapts a db.TokenRepository to the TokenStorer interface.
func NewRepoStorer(repo db.TokenRepository) TokenStorer {
	return &tokenRepoStorer{repo: repo}
}

// tokenRepoStorer adapts db.TokenRepository to TokenStorer.
type tokenRepoStorer struct{ repo db.TokenRepository }

func (s *tokenRepoStorer) GetTokenRecord(ctx context.Context) (*db.Token, error) {
	return s.repo.Get(ctx)
}

func (s *tokenRepoStorer) UpsertTokenRecord(ctx context.Context, token *db.Token) error {
	return s.repo.Upsert(ctx, token)
}

func (s *tokenRepoStorer) ClearTokenRecord(ctx context.Context) error {
	return s.repo.Clear(ctx)
}
