package twitchapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const defaultTokenURL = "https://id.twitch.tv/oauth2/token"

// TokenSource fetches and caches a Twitch app access (client credentials)
// token. The refresh request runs under the caller's context so a per-channel
// deadline bounds a hung token fetch. oauth2's Token.Valid supplies the expiry
// buffer.
type TokenSource struct {
	ClientID     string
	ClientSecret string
	TokenURL     string       // test override; empty means the real endpoint
	HTTPClient   *http.Client // test override; nil means http.DefaultClient

	mu  sync.Mutex
	tok *oauth2.Token
}

// Get returns a valid (fresh or cached) app access token.
func (ts *TokenSource) Get(ctx context.Context) (string, error) {
	if ts.ClientID == "" || ts.ClientSecret == "" {
		return "", errors.New("missing client id/secret for twitch app token")
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.tok.Valid() {
		return ts.tok.AccessToken, nil
	}
	tokenURL := ts.TokenURL
	if tokenURL == "" {
		tokenURL = defaultTokenURL
	}
	cfg := &clientcredentials.Config{
		ClientID:     ts.ClientID,
		ClientSecret: ts.ClientSecret,
		TokenURL:     tokenURL,
		// Twitch wants the credentials in the POST body, not basic auth.
		AuthStyle: oauth2.AuthStyleInParams,
	}
	if ts.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, ts.HTTPClient)
	}
	tok, err := cfg.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("fetch app token: %w", err)
	}
	ts.tok = tok
	return tok.AccessToken, nil
}

// SetToken seeds the cache with a known token. Test helper.
func (ts *TokenSource) SetToken(token string, expiry time.Time) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.tok = &oauth2.Token{AccessToken: token, Expiry: expiry}
}
