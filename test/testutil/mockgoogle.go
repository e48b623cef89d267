package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
)

// MockGoogle is an httptest.Server that simulates both Google endpoints the
// proxy talks to: the OAuth token endpoint (at /token) and the Vertex AI
// generateContent endpoint.
type MockGoogle struct {
	Server *httptest.Server

	// Configurable response fields
	AccessToken    string
	ExpiresIn      int64
	Answer         string
	FinishReason   string
	TokenStatus    int            // non-zero forces the token endpoint status
	StatusForModel map[string]int // non-2xx generateContent status per model
	RawCandidates  []any          // overrides the default candidate payload

	// Call accounting
	TokenCalls    int
	GenerateCalls int
	Models        []string // model of each generateContent call, in order

	// LastRequest captures the most recent generateContent body parsed.
	LastRequest map[string]any
}

// NewMockGoogle creates and starts a mock Google server.
func NewMockGoogle(answer string) *MockGoogle {
	m := &MockGoogle{
		AccessToken: "mock-access-token",
		ExpiresIn:   3600,
		Answer:      answer,
	}
	m.Server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// Close shuts down the mock server.
func (m *MockGoogle) Close() {
	m.Server.Close()
}

// URL returns the base URL of the mock server; pass it as the Vertex host.
func (m *MockGoogle) URL() string {
	return m.Server.URL
}

// TokenURL returns the mock OAuth token endpoint.
func (m *MockGoogle) TokenURL() string {
	return m.Server.URL + "/token"
}

func (m *MockGoogle) handle(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/token" && r.Method == http.MethodPost:
		m.handleToken(w, r)
	case strings.HasSuffix(r.URL.Path, ":generateContent") && r.Method == http.MethodPost:
		m.handleGenerate(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (m *MockGoogle) handleToken(w http.ResponseWriter, r *http.Request) {
	m.TokenCalls++

	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	if r.PostFormValue("grant_type") != "urn:ietf:params:oauth:grant-type:jwt-bearer" ||
		r.PostFormValue("assertion") == "" {
		http.Error(w, "invalid_grant", http.StatusBadRequest)
		return
	}
	if m.TokenStatus != 0 && (m.TokenStatus < 200 || m.TokenStatus >= 300) {
		http.Error(w, "token error", m.TokenStatus)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token": m.AccessToken,
		"expires_in":   m.ExpiresIn,
		"token_type":   "Bearer",
	})
}

func (m *MockGoogle) handleGenerate(w http.ResponseWriter, r *http.Request) {
	m.GenerateCalls++

	model := modelFromPath(r.URL.Path)
	m.Models = append(m.Models, model)

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	m.LastRequest = body

	if status, ok := m.StatusForModel[model]; ok && (status < 200 || status >= 300) {
		http.Error(w, "model "+model+" unavailable", status)
		return
	}

	candidates := m.RawCandidates
	if candidates == nil {
		cand := map[string]any{
			"content": map[string]any{
				"parts": []any{map[string]any{"text": m.Answer}},
			},
		}
		if m.FinishReason != "" {
			cand["finishReason"] = m.FinishReason
		}
		candidates = []any{cand}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"candidates": candidates,
		"usageMetadata": map[string]any{
			"promptTokenCount":     7,
			"candidatesTokenCount": 21,
			"totalTokenCount":      28,
		},
	})
}

// modelFromPath extracts the model name from
// /v1/projects/{p}/locations/{l}/publishers/google/models/{model}:generateContent.
func modelFromPath(path string) string {
	trimmed := strings.TrimSuffix(path, ":generateContent")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}
