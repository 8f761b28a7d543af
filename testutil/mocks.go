// Package testutil provides mock HTTP servers for the Twitch Helix API and the
// Telegram Bot API.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
)

// MockTwitchServer creates a test server that mocks Twitch Helix API responses
type MockTwitchServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
}

// NewMockTwitchServer creates a new mock Twitch API server
func NewMockTwitchServer(t *testing.T) *MockTwitchServer {
	t.Helper()
	m := &MockTwitchServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path
		if handler, ok := m.Handlers[key]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// MockUserResponse adds a handler for /helix/users endpoint
func (m *MockTwitchServer) MockUserResponse(userID, login string) {
	m.Handlers["/helix/users"] = func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{
			"data": []map[string]string{
				{"id": userID, "login": login},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}

// MockStreamsResponse adds a handler for /helix/streams endpoint
func (m *MockTwitchServer) MockStreamsResponse(streams []map[string]interface{}) {
	m.Handlers["/helix/streams"] = func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{
			"data": streams,
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}

// MockOAuthTokenResponse adds a handler for OAuth token endpoint
func (m *MockTwitchServer) MockOAuthTokenResponse(accessToken string, expiresIn int) {
	m.Handlers["/oauth2/token"] = func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{
			"access_token": accessToken,
			"expires_in":   expiresIn,
			"token_type":   "bearer",
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}

// TelegramCall records one Bot API method invocation.
type TelegramCall struct {
	Method string
	Values url.Values
}

// MockTelegramServer mocks the Telegram Bot API. It answers getMe so client
// construction succeeds, hands out incrementing message ids for sendMessage,
// and records every call. Individual methods can be forced to fail.
type MockTelegramServer struct {
	*httptest.Server

	mu            sync.Mutex
	calls         []TelegramCall
	nextMessageID int
	failMethods   map[string]string
	updates       []map[string]interface{}
}

// NewMockTelegramServer creates a new mock Bot API server.
func NewMockTelegramServer(t *testing.T) *MockTelegramServer {
	t.Helper()
	m := &MockTelegramServer{
		nextMessageID: 1000,
		failMethods:   map[string]string{},
	}
	m.Server = httptest.NewServer(http.HandlerFunc(m.handle))
	t.Cleanup(m.Close)
	return m
}

// Endpoint returns the API endpoint template for NewClientWithEndpoint.
func (m *MockTelegramServer) Endpoint() string {
	return m.URL + "/bot%s/%s"
}

// FailMethod makes the named method return a Bad Request with the description.
func (m *MockTelegramServer) FailMethod(method, description string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failMethods[method] = description
}

// QueueUpdate queues one update object to be served by the next getUpdates call.
func (m *MockTelegramServer) QueueUpdate(update map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, update)
}

// Calls returns the recorded calls for a method, in order.
func (m *MockTelegramServer) Calls(method string) []TelegramCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []TelegramCall
	for _, c := range m.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (m *MockTelegramServer) handle(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	method := parts[len(parts)-1]
	_ = r.ParseForm()

	m.mu.Lock()
	if method != "getMe" && method != "getUpdates" {
		m.calls = append(m.calls, TelegramCall{Method: method, Values: r.Form})
	}
	desc, shouldFail := m.failMethods[method]
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if shouldFail {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"ok":          false,
			"error_code":  400,
			"description": desc,
		})
		return
	}

	var result interface{}
	switch method {
	case "getMe":
		result = map[string]interface{}{"id": 42, "is_bot": true, "username": "mockbot", "first_name": "Mock"}
	case "sendMessage", "editMessageText":
		m.mu.Lock()
		m.nextMessageID++
		id := m.nextMessageID
		m.mu.Unlock()
		result = map[string]interface{}{
			"message_id": id,
			"date":       1,
			"chat":       map[string]interface{}{"id": 1, "type": "private"},
			"text":       r.Form.Get("text"),
		}
	case "getUpdates":
		m.mu.Lock()
		pending := m.updates
		m.updates = nil
		m.mu.Unlock()
		if pending == nil {
			pending = []map[string]interface{}{}
		}
		result = pending
	default:
		// pinChatMessage, unpinChatMessage, ...
		result = true
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"ok": true, "result": result})
}
