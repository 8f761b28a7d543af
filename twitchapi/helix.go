// Package twitchapi contains minimal helpers to interact with Twitch Helix APIs
// for user id resolution and live-stream status, using an app access token.
package twitchapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// HelixClient provides the two Helix calls the notifier needs.
type HelixClient struct {
	AppTokenSource *TokenSource
	ClientID       string
	HTTPClient     *http.Client
}

func (hc *HelixClient) http() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return http.DefaultClient
}

func (hc *HelixClient) do(ctx context.Context, url string, query map[string]string, out any) error {
	tok, err := hc.AppTokenSource.Get(ctx)
	if err != nil {
		return err
	}
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	q := req.URL.Query()
	for k, v := range query {
		q.Set(k, v)
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Client-Id", hc.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := hc.http().Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("helix request failed: %s: %s", resp.Status, string(b))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// GetUserID resolves a login name to its user ID.
func (hc *HelixClient) GetUserID(ctx context.Context, login string) (string, error) {
	if login == "" {
		return "", fmt.Errorf("login empty")
	}
	var body struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := hc.do(ctx, "https://api.twitch.tv/helix/users", map[string]string{"login": login}, &body); err != nil {
		return "", err
	}
	if len(body.Data) == 0 {
		return "", fmt.Errorf("user not found")
	}
	return body.Data[0].ID, nil
}

// Stream is one live broadcast as reported by /helix/streams.
type Stream struct {
	ID        string
	UserLogin string
	Title     string
	StartedAt time.Time
}

// GetStreams returns the live streams for a user id. An empty slice means the
// channel is offline.
func (hc *HelixClient) GetStreams(ctx context.Context, userID string) ([]Stream, error) {
	if userID == "" {
		return nil, fmt.Errorf("userID empty")
	}
	var body struct {
		Data []struct {
			ID        string `json:"id"`
			UserLogin string `json:"user_login"`
			Title     string `json:"title"`
			StartedAt string `json:"started_at"`
		} `json:"data"`
	}
	if err := hc.do(ctx, "https://api.twitch.tv/helix/streams", map[string]string{"user_id": userID}, &body); err != nil {
		return nil, err
	}
	out := make([]Stream, 0, len(body.Data))
	for _, s := range body.Data {
		started, _ := time.Parse(time.RFC3339, s.StartedAt)
		out = append(out, Stream{ID: s.ID, UserLogin: s.UserLogin, Title: s.Title, StartedAt: started})
	}
	return out, nil
}
