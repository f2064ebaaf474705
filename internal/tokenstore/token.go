// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package tokenstore

import (
	"slices"
	"strings"
	"time"
)

// expirySkew treats tokens that are about to expire as expired.
const expirySkew = 30 * time.Second

// Token is a cached access token.
type Token struct {
	AccessToken     string   `json:"access_token"`
	TokenType       string   `json:"token_type"`
	ExpiresIn       int64    `json:"expires_in"`
	ExpiryFromEpoch int64    `json:"expiry_from_epoch"`
	Scopes          []string `json:"scopes"`
}

// NewToken stamps a token minted at now with an absolute expiry.
func NewToken(accessToken, tokenType string, expiresIn time.Duration, scopes []string, now time.Time) Token {
	return Token{
		AccessToken:     accessToken,
		TokenType:       tokenType,
		ExpiresIn:       int64(expiresIn / time.Second),
		ExpiryFromEpoch: now.Add(expiresIn).Unix(),
		Scopes:          normalizeScopes(scopes),
	}
}

// Expiry returns the absolute expiry time.
func (t Token) Expiry() time.Time {
	return time.Unix(t.ExpiryFromEpoch, 0)
}

// Valid reports whether the token is usable at now.
func (t Token) Valid(now time.Time) bool {
	return t.AccessToken != "" && now.Add(expirySkew).Before(t.Expiry())
}

// Covers reports whether the token grants every scope in scopes.
func (t Token) Covers(scopes []string) bool {
	for _, s := range scopes {
		if !slices.Contains(t.Scopes, s) {
			return false
		}
	}
	return true
}

// Matches reports whether the token is valid at now and covers scopes.
func (t Token) Matches(scopes []string, now time.Time) bool {
	return t.Valid(now) && t.Covers(scopes)
}

// ScopeKey is the canonical storage key for a scope set.
func ScopeKey(scopes []string) string {
	return strings.Join(normalizeScopes(scopes), ",")
}

func normalizeScopes(scopes []string) []string {
	out := make([]string, 0, len(scopes))
	for _, s := range scopes {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// best returns the matching token with the latest expiry.
func best(tokens []Token, scopes []string, now time.Time) (Token, bool) {
	var (
		found Token
		ok    bool
	)
	for _, t := range tokens {
		if !t.Matches(scopes, now) {
			continue
		}
		if !ok || t.ExpiryFromEpoch > found.ExpiryFromEpoch {
			found, ok = t, true
		}
	}
	return found, ok
}
