package cmd

import (
	"context"
	"net/http"

	"github.com/cheerily/cheerily/auth"
	"github.com/cheerily/cheerily/client"
	"github.com/cheerily/cheerily/config"
	"github.com/cheerily/cheerily/db"
	"github.com/cheerily/cheerily/pipeline"
	"github.com/cheerily/cheerily/pkg/clierr"
)

// app wires configuration to the services the commands use.
type app struct {
	cfg     *config.Config
	loadErr error

	httpClient *http.Client
}

func newApp(cfg *config.Config) *app {
	return &app{cfg: cfg}
}

func (a *app) client() *http.Client {
	if a.httpClient == nil {
		a.httpClient = client.NewHTTPClient(a.cfg.UserAgent, a.cfg.RequestTimeout, a.cfg.RequestsPerMinute)
	}
	return a.httpClient
}

func (a *app) authService() (*auth.Service, error) {
	if a.cfg.ClientID == "" {
		return nil, clierr.New(clierr.Validation, "A Reddit client id is required. Set CHEERILY_CLIENT_ID or pass --client-id.", nil)
	}
	reddit := client.NewRedditClient(client.RedditConfig{
		ClientID:    a.cfg.ClientID,
		RedirectURI: a.cfg.RedirectURI,
		AuthURL:     a.cfg.AuthURL,
		TokenURL:    a.cfg.TokenURL,
		RevokeURL:   a.cfg.RevokeURL,
		Scopes:      a.cfg.Scopes(),
	}, a.client())
	return auth.NewServiceWithRepo(db.NewTokenRepository(db.GetDB()), reddit), nil
}

// newPipeline builds the cheer pipeline for the configured feed source.
func (a *app) newPipeline() (*pipeline.Pipeline, error) {
	var (
		authenticator pipeline.Authenticator
		fetcher       pipeline.FeedFetcher
	)
	switch a.cfg.FeedSource {
	case config.FeedSourceRSS:
		authenticator = anonymous{}
		fetcher = client.NewRSSFetcher(a.client(), a.cfg.RSSURL)
	default:
		svc, err := a.authService()
		if err != nil {
			return nil, err
		}
		authenticator = svc
		fetcher = client.NewFeedClient(a.client(), a.cfg.FeedURL, a.cfg.BatchSize).
			WithCursorRepository(db.NewCursorRepository(db.GetDB()))
	}

	return pipeline.New(authenticator, fetcher, db.NewCheerRepository(db.GetDB()), pipeline.Options{
		RefillThreshold:     a.cfg.RefillThreshold,
		MaxDuplicateRetries: a.cfg.MaxDuplicateRetries,
	}), nil
}

// anonymous serves the public feed, which needs no token.
type anonymous struct{}

func (anonymous) EnsureValidToken(ctx context.Context) (string, error) { return "", nil }

func (anonymous) RenewAccessToken(ctx context.Context) error { return auth.ErrNoRefreshToken }
