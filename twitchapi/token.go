package twitchapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const defaultTokenURL = "https://id.twitch.tv/oauth2/token"

// TokenSource fetches and caches a Twitch app access (client credentials) token.
// NOTE: This token CANNOT be used for IRC chat; chat requires a user (bot) OAuth
// token with chat:read/chat:edit scopes.
type TokenSource struct {
	ClientID     string
	ClientSecret string
	// TokenURL overrides the Twitch OAuth endpoint (tests).
	TokenURL   string
	HTTPClient *http.Client

	once sync.Once
	src  oauth2.TokenSource
}

// Get returns a valid (fresh or cached) app access token.
func (ts *TokenSource) Get(ctx context.Context) (string, error) {
	if ts.ClientID == "" || ts.ClientSecret == "" {
		return "", errors.New("missing client id/secret for twitch app token")
	}
	ts.once.Do(func() {
		cfg := &clientcredentials.Config{
			ClientID:     ts.ClientID,
			ClientSecret: ts.ClientSecret,
			TokenURL:     ts.TokenURL,
			AuthStyle:    oauth2.AuthStyleInParams,
		}
		if cfg.TokenURL == "" {
			cfg.TokenURL = defaultTokenURL
		}
		base := context.Background()
		if ts.HTTPClient != nil {
			base = context.WithValue(base, oauth2.HTTPClient, ts.HTTPClient)
		}
		// ReuseTokenSource caches until expiry and refreshes under its own lock.
		ts.src = oauth2.ReuseTokenSource(nil, cfg.TokenSource(base))
	})
	tok, err := ts.src.Token()
	if err != nil {
		return "", fmt.Errorf("twitch app token: %w", err)
	}
	return tok.AccessToken, nil
}
