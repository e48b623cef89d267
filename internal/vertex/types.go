package vertex

import (
	"encoding/json"

	"google.golang.org/genai"
)

// generateContentRequest is the Vertex AI generateContent request body.
type generateContentRequest struct {
	Contents          []*genai.Content        `json:"contents"`
	SystemInstruction *genai.Content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *genai.GenerationConfig `json:"generationConfig,omitempty"`
}

// generateContentResponse keeps candidates raw: their shape has varied
// across model versions, so parsing is deferred to ParseCandidate.
type generateContentResponse struct {
	Candidates    []json.RawMessage `json:"candidates"`
	UsageMetadata *UsageMetadata    `json:"usageMetadata,omitempty"`
}

// UsageMetadata carries token counts reported by the generation endpoint.
type UsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// tokenResponse is the OAuth token endpoint's success body.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// Finish reasons the dispatcher branches on.
const (
	finishReasonMaxTokens = "MAX_TOKENS"
	finishReasonSafety    = "SAFETY"
)
