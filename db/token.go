package db

import "time"

// tokenRowID pins the token record to a single row; there is one account per install.
const tokenRowID = 1

// Token holds the OAuth2 session state for Reddit.
// An empty string means the value is absent.
type Token struct {
	ID           uint      `gorm:"primaryKey" json:"-"`
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	AuthCode     string    `json:"auth_code,omitempty"`
	PendingState string    `json:"pending_state,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HasAccessToken reports whether an access token may be used for an upstream call.
func (t *Token) HasAccessToken() bool {
	return t != nil && t.AccessToken != ""
}

// HasRefreshToken reports whether a refresh token is stored.
func (t *Token) HasRefreshToken() bool {
	return t != nil && t.RefreshToken != ""
}

// Redact returns a short prefix of a secret for log output.
func Redact(secret string) string {
	if len(secret) <= 6 {
		return "***"
	}
	return secret[:6] + "..."
}
