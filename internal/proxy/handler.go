package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rakhadi/vertex-proxy/internal/credentials"
	apierrors "github.com/rakhadi/vertex-proxy/internal/errors"
	"github.com/rakhadi/vertex-proxy/internal/vertex"
)

// chatRequest is the inbound body of POST /api/chat.
type chatRequest struct {
	Prompt       string   `json:"prompt"`
	Model        string   `json:"model,omitempty"`
	Temperature  *float32 `json:"temperature,omitempty"`
	SystemPrompt string   `json:"systemPrompt,omitempty"`
}

// chatResponse is the caller-facing result surface. Exactly one of Response
// and Error is populated.
type chatResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

// ChatHandler serves POST /api/chat by forwarding the prompt to the model
// gateway and rendering its result.
type ChatHandler struct {
	client  *vertex.Client
	timeout time.Duration
}

// NewChatHandler constructs a ChatHandler.
func NewChatHandler(client *vertex.Client, timeout time.Duration) *ChatHandler {
	return &ChatHandler{client: client, timeout: timeout}
}

func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.WriteJSONError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeChat(w, http.StatusBadRequest, chatResponse{Error: "prompt must not be empty"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	text, err := h.client.Generate(ctx, vertex.GenerationRequest{
		Prompt:       req.Prompt,
		Model:        req.Model,
		Temperature:  req.Temperature,
		SystemPrompt: req.SystemPrompt,
	})
	if err != nil {
		writeChat(w, statusForError(err), chatResponse{Error: err.Error()})
		return
	}
	writeChat(w, http.StatusOK, chatResponse{Response: text})
}

// statusForError maps gateway failures to HTTP statuses. Semantic
// degradations (safety block, token limit) are successful responses whose
// error field explains the outcome.
func statusForError(err error) int {
	switch {
	case errors.Is(err, vertex.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, vertex.ErrSafetyBlocked), errors.Is(err, vertex.ErrTokenLimit):
		return http.StatusOK
	case errors.Is(err, vertex.ErrUpstreamTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, credentials.ErrMalformedEncoding),
		errors.Is(err, credentials.ErrInvalidJSON),
		errors.Is(err, credentials.ErrMissingFields):
		return http.StatusInternalServerError
	default:
		// Token exchange, upstream, and extraction failures are all a broken
		// path to Google.
		return http.StatusBadGateway
	}
}

func writeChat(w http.ResponseWriter, status int, body chatResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
