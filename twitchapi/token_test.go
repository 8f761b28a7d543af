package twitchapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestTokenSource_Get(t *testing.T) {
	tokenRequests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenRequests++
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.Form.Get("grant_type"); got != "client_credentials" {
			t.Fatalf("grant_type=%q", got)
		}
		if got := r.Form.Get("client_id"); got != "test-client-id" {
			t.Fatalf("client_id=%q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "app-token",
			"expires_in":   3600,
			"token_type":   "bearer",
		})
	}))
	defer server.Close()

	ts := &TokenSource{
		ClientID:     "test-client-id",
		ClientSecret: "test-secret",
		TokenURL:     server.URL + "/oauth2/token",
	}

	tok, err := ts.Get(context.Background())
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if tok != "app-token" {
		t.Fatalf("Get() = %q, want app-token", tok)
	}

	// Second call must hit the cache, not the endpoint.
	if _, err := ts.Get(context.Background()); err != nil {
		t.Fatalf("Get() second call error = %v", err)
	}
	if tokenRequests != 1 {
		t.Fatalf("expected exactly one token request, got %d", tokenRequests)
	}
}

func TestTokenSource_GetHonorsContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request must not be issued under a cancelled context")
	}))
	defer server.Close()

	ts := &TokenSource{
		ClientID:     "test-client-id",
		ClientSecret: "test-secret",
		TokenURL:     server.URL + "/oauth2/token",
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := ts.Get(ctx); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

func TestTokenSource_MissingCredentials(t *testing.T) {
	ts := &TokenSource{}
	if _, err := ts.Get(context.Background()); err == nil {
		t.Fatal("expected error for missing credentials")
	}
}

func TestTokenSource_SetToken(t *testing.T) {
	ts := &TokenSource{ClientID: "id", ClientSecret: "secret"}
	ts.SetToken("seeded", time.Now().Add(time.Hour))
	tok, err := ts.Get(context.Background())
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if tok != "seeded" {
		t.Fatalf("Get() = %q, want seeded", tok)
	}
}
