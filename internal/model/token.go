package model

import "time"

// Token is the upstream OAuth2 bearer token record.
type Token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"token_expiry"`
}

// Expired reports whether the token must be refreshed before use at now.
func (t *Token) Expired(now time.Time) bool {
	return t.AccessToken == "" || !t.ExpiresAt.After(now)
}
