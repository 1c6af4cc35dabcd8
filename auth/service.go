package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/cheerily/cheerily/client"
	"github.com/cheerily/cheerily/db"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// State is the position of the session in the authorization state machine.
type State int

const (
	Unauthenticated State = iota
	AwaitingRedirect
	CodeReceived
	Authorized
	AuthBlocked
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case AwaitingRedirect:
		return "awaiting redirect"
	case CodeReceived:
		return "code received"
	case Authorized:
		return "authorized"
	case AuthBlocked:
		return "blocked"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Service owns the Reddit OAuth2 session: authorization, code exchange,
// renewal and revocation. All mutations of the token record go through mu.
type Service struct {
	Storer    TokenStorer
	Exchanger TokenExchanger
	// StateGenerator produces the anti-CSRF nonce for each authorization attempt.
	StateGenerator func() (string, error)

	mu      sync.Mutex
	blocked bool
}

// NewService is the constructor for our auth service.
func NewService(storer TokenStorer, exchanger TokenExchanger) *Service {
	return &Service{
		Storer:         storer,
		Exchanger:      exchanger,
		StateGenerator: randomState,
	}
}

// NewServiceWithRepo constructs Service using a TokenRepository directly.
func NewServiceWithRepo(tokenRepo db.TokenRepository, exchanger TokenExchanger) *Service {
	return NewService(NewRepoStorer(tokenRepo), exchanger)
}

func randomState() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// BuildAuthorizationURL issues a fresh state nonce, persists it as the pending
// state and returns the URL the user must open in a browser.
func (s *Service) BuildAuthorizationURL(ctx context.Context) (authURL string, state string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.blocked {
		return "", "", ErrAuthBlocked
	}
	state, err = s.StateGenerator()
	if err != nil || state == "" {
		s.blocked = true
		log.Error().Err(err).Msg("Failed to generate authorization state")
		return "", "", fmt.Errorf("%w: %v", ErrAuthBlocked, err)
	}

	token, err := s.load(ctx)
	if err != nil {
		return "", "", err
	}
	token.PendingState = state
	if err := s.Storer.UpsertTokenRecord(ctx, token); err != nil {
		return "", "", fmt.Errorf("failed to save pending state: %w", err)
	}

	authURL = s.Exchanger.AuthCodeURL(state)
	log.Info().Msg("Authorization URL created")
	return authURL, state, nil
}

// CompleteAuthorization verifies the redirect delivered by the browser and
// stores its authorization code. The pending state is consumed whether or not
// verification succeeds.
func (s *Service) CompleteAuthorization(ctx context.Context, redirectURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, err := s.load(ctx)
	if err != nil {
		return err
	}
	pending := token.PendingState
	token.PendingState = ""
	if err := s.Storer.UpsertTokenRecord(ctx, token); err != nil {
		return fmt.Errorf("failed to consume pending state: %w", err)
	}

	u, err := url.Parse(redirectURL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedRedirect, err)
	}
	query := u.Query()
	if upstreamErr := query.Get("error"); upstreamErr != "" {
		return fmt.Errorf("%w: upstream returned %q", ErrMalformedRedirect, upstreamErr)
	}
	code, state := query.Get("code"), query.Get("state")
	if code == "" || state == "" {
		return fmt.Errorf("%w: code and state are required", ErrMalformedRedirect)
	}
	if pending == "" || subtle.ConstantTimeCompare([]byte(state), []byte(pending)) != 1 {
		log.Warn().Msg("Redirect state does not match the pending authorization")
		return ErrStateMismatch
	}

	token.AuthCode = code
	if err := s.Storer.UpsertTokenRecord(ctx, token); err != nil {
		return fmt.Errorf("failed to save authorization code: %w", err)
	}
	log.Info().Msg("Authorization code received")
	return nil
}

// ExchangeCodeForTokens trades the stored authorization code for tokens.
func (s *Service) ExchangeCodeForTokens(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exchangeLocked(ctx)
}

func (s *Service) exchangeLocked(ctx context.Context) error {
	token, err := s.load(ctx)
	if err != nil {
		return err
	}
	if token.AuthCode == "" {
		return ErrNoAuthorizationCode
	}

	access, refresh, err := s.Exchanger.ExchangeCode(ctx, token.AuthCode)
	if err != nil {
		// A refused code never becomes valid again; a transport failure may be retried.
		if errors.Is(err, client.ErrGrantRejected) {
			token.AuthCode = ""
			if saveErr := s.Storer.UpsertTokenRecord(ctx, token); saveErr != nil {
				log.Error().Err(saveErr).Msg("Failed to drop the rejected authorization code")
			}
			log.Warn().Msg("Authorization code rejected upstream and dropped")
		}
		return fmt.Errorf("%w: %w", ErrTokenExchangeFailed, err)
	}
	if access == "" || refresh == "" {
		return fmt.Errorf("%w: response did not contain both tokens", ErrTokenExchangeFailed)
	}

	token.AccessToken = access
	token.RefreshToken = refresh
	// Authorization codes are single-use upstream.
	token.AuthCode = ""
	if err := s.Storer.UpsertTokenRecord(ctx, token); err != nil {
		return fmt.Errorf("failed to save tokens: %w", err)
	}
	log.Info().Str("access_token", db.Redact(access)).Msg("Tokens obtained and saved")
	return nil
}

// EnsureValidToken returns the stored access token, exchanging the stored
// authorization code once when there is none.
func (s *Service) EnsureValidToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, err := s.load(ctx)
	if err != nil {
		return "", err
	}
	if token.HasAccessToken() {
		return token.AccessToken, nil
	}

	log.Debug().Msg("No access token stored, trying the authorization code")
	if err := s.exchangeLocked(ctx); err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	token, err = s.load(ctx)
	if err != nil {
		return "", err
	}
	return token.AccessToken, nil
}

// RenewAccessToken replaces the stored access token using the refresh token.
func (s *Service) RenewAccessToken(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, err := s.load(ctx)
	if err != nil {
		return err
	}
	if !token.HasRefreshToken() {
		return ErrNoRefreshToken
	}

	access, err := s.Exchanger.RefreshAccessToken(ctx, token.RefreshToken)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRenewalFailed, err)
	}
	if access == "" {
		return fmt.Errorf("%w: response did not contain an access token", ErrRenewalFailed)
	}

	token.AccessToken = access
	if err := s.Storer.UpsertTokenRecord(ctx, token); err != nil {
		return fmt.Errorf("failed to save renewed token: %w", err)
	}
	log.Info().Msg("Access token renewed")
	return nil
}

// Revoke revokes the refresh token upstream. Only an HTTP 204 counts as
// success; then the whole local record is cleared, access token included.
func (s *Service) Revoke(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, err := s.load(ctx)
	if err != nil {
		return err
	}
	if !token.HasRefreshToken() {
		return ErrNoRefreshToken
	}

	status, err := s.Exchanger.RevokeToken(ctx, token.RefreshToken)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRevocationFailed, err)
	}
	if status != http.StatusNoContent {
		log.Warn().Int("status", status).Msg("Revocation was not confirmed")
		return fmt.Errorf("%w: upstream answered HTTP %d", ErrRevocationFailed, status)
	}

	if err := s.Storer.ClearTokenRecord(ctx); err != nil {
		return fmt.Errorf("failed to clear revoked tokens: %w", err)
	}
	log.Info().Msg("Token revoked")
	return nil
}

// Status reports where the session is in the authorization flow.
func (s *Service) Status(ctx context.Context) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.blocked {
		return AuthBlocked, nil
	}
	token, err := s.load(ctx)
	if err != nil {
		return Unauthenticated, err
	}
	switch {
	case token.HasAccessToken():
		return Authorized, nil
	case token.AuthCode != "":
		return CodeReceived, nil
	case token.PendingState != "":
		return AwaitingRedirect, nil
	default:
		return Unauthenticated, nil
	}
}

// load returns the stored record, or an empty one on first launch.
func (s *Service) load(ctx context.Context) (*db.Token, error) {
	token, err := s.Storer.GetTokenRecord(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve token record: %w", err)
	}
	if token == nil {
		return &db.Token{}, nil
	}
	return token, nil
}
