package vertex

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/rakhadi/vertex-proxy/test/testutil"
)

const (
	testModel    = "gemini-1.5-pro"
	testFallback = "gemini-1.5-flash"
)

func newTestClient(t *testing.T, mock *testutil.MockGoogle) *Client {
	t.Helper()
	return NewClient(ClientConfig{
		ProjectID:           "test-project",
		Location:            "us-central1",
		Credentials:         testutil.EncodedBundle(t),
		DefaultModel:        testModel,
		FallbackModel:       testFallback,
		AllowedModels:       []string{testModel, testFallback},
		DefaultTemperature:  1.5,
		DefaultSystemPrompt: "Anda adalah asisten pengujian.",
		Timeout:             5 * time.Second,
		TokenURL:            mock.TokenURL(),
		Host:                mock.URL(),
	})
}

func TestGenerate_HappyPath(t *testing.T) {
	mock := testutil.NewMockGoogle("Halo dari Vertex")
	defer mock.Close()

	c := newTestClient(t, mock)
	text, err := c.Generate(context.Background(), GenerationRequest{Prompt: "Sapa saya"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if text != "Halo dari Vertex" {
		t.Errorf("text = %q, want %q", text, "Halo dari Vertex")
	}
	if mock.TokenCalls != 1 || mock.GenerateCalls != 1 {
		t.Errorf("calls = %d token, %d generate; want 1, 1", mock.TokenCalls, mock.GenerateCalls)
	}
	if len(mock.Models) != 1 || mock.Models[0] != testModel {
		t.Errorf("models = %v, want [%s]", mock.Models, testModel)
	}
}

func TestGenerate_RequestBody(t *testing.T) {
	mock := testutil.NewMockGoogle("ok")
	defer mock.Close()

	c := newTestClient(t, mock)
	temp := float32(0.7)
	_, err := c.Generate(context.Background(), GenerationRequest{
		Prompt:       "Apa kabar?",
		Temperature:  &temp,
		SystemPrompt: "Jawab singkat.",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	body := mock.LastRequest
	contents, _ := body["contents"].([]any)
	if len(contents) != 1 {
		t.Fatalf("contents = %v, want one user turn", body["contents"])
	}
	turn := contents[0].(map[string]any)
	if turn["role"] != "user" {
		t.Errorf("role = %v, want user", turn["role"])
	}
	parts := turn["parts"].([]any)
	if text := parts[0].(map[string]any)["text"]; text != "Apa kabar?" {
		t.Errorf("prompt text = %v, want %q", text, "Apa kabar?")
	}

	si, _ := body["systemInstruction"].(map[string]any)
	siParts, _ := si["parts"].([]any)
	if len(siParts) == 0 || siParts[0].(map[string]any)["text"] != "Jawab singkat." {
		t.Errorf("systemInstruction = %v, want the supplied prompt", si)
	}

	gc, _ := body["generationConfig"].(map[string]any)
	if temp, _ := gc["temperature"].(float64); temp != 0.7 {
		t.Errorf("temperature = %v, want 0.7", gc["temperature"])
	}
	if mot, _ := gc["maxOutputTokens"].(float64); mot != float64(maxOutputTokens) {
		t.Errorf("maxOutputTokens = %v, want %d", gc["maxOutputTokens"], maxOutputTokens)
	}
}

func TestGenerate_TemperatureOutOfRange(t *testing.T) {
	mock := testutil.NewMockGoogle("unused")
	defer mock.Close()

	c := newTestClient(t, mock)
	temp := float32(2.5)
	_, err := c.Generate(context.Background(), GenerationRequest{Prompt: "hi", Temperature: &temp})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if !strings.Contains(err.Error(), "Temperature") {
		t.Errorf("expected error to mention Temperature, got %q", err.Error())
	}
	if mock.TokenCalls != 0 || mock.GenerateCalls != 0 {
		t.Errorf("network calls made for invalid temperature: %d token, %d generate",
			mock.TokenCalls, mock.GenerateCalls)
	}
}

func TestGenerate_UnknownModel(t *testing.T) {
	mock := testutil.NewMockGoogle("unused")
	defer mock.Close()

	c := newTestClient(t, mock)
	_, err := c.Generate(context.Background(), GenerationRequest{Prompt: "hi", Model: "not-a-real-model"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	for _, allowed := range []string{testModel, testFallback} {
		if !strings.Contains(err.Error(), allowed) {
			t.Errorf("expected error to name %q, got %q", allowed, err.Error())
		}
	}
	if mock.TokenCalls != 0 || mock.GenerateCalls != 0 {
		t.Errorf("network calls made for unknown model: %d token, %d generate",
			mock.TokenCalls, mock.GenerateCalls)
	}
}

func TestGenerate_EmptyPrompt(t *testing.T) {
	mock := testutil.NewMockGoogle("unused")
	defer mock.Close()

	c := newTestClient(t, mock)
	if _, err := c.Generate(context.Background(), GenerationRequest{Prompt: "  "}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestGenerate_SystemPromptTooLong(t *testing.T) {
	mock := testutil.NewMockGoogle("unused")
	defer mock.Close()

	c := newTestClient(t, mock)
	_, err := c.Generate(context.Background(), GenerationRequest{
		Prompt:       "hi",
		SystemPrompt: strings.Repeat("x", maxSystemPromptLen+1),
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if !strings.Contains(err.Error(), "systemPrompt") {
		t.Errorf("expected error to mention systemPrompt, got %q", err.Error())
	}
}

func TestGenerate_FallbackOn400(t *testing.T) {
	mock := testutil.NewMockGoogle("jawaban cadangan")
	defer mock.Close()
	mock.StatusForModel = map[string]int{testModel: http.StatusBadRequest}

	c := newTestClient(t, mock)
	text, err := c.Generate(context.Background(), GenerationRequest{Prompt: "hi"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if text != "jawaban cadangan" {
		t.Errorf("text = %q, want the fallback answer", text)
	}
	if mock.GenerateCalls != 2 {
		t.Fatalf("generate calls = %d, want 2", mock.GenerateCalls)
	}
	if mock.Models[0] != testModel || mock.Models[1] != testFallback {
		t.Errorf("models = %v, want [%s %s]", mock.Models, testModel, testFallback)
	}
}

func TestGenerate_FallbackFailureSurfaces(t *testing.T) {
	mock := testutil.NewMockGoogle("unused")
	defer mock.Close()
	mock.StatusForModel = map[string]int{
		testModel:    http.StatusBadRequest,
		testFallback: http.StatusBadRequest,
	}

	c := newTestClient(t, mock)
	_, err := c.Generate(context.Background(), GenerationRequest{Prompt: "hi"})

	var ue *UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("expected *UpstreamError, got %v", err)
	}
	if ue.Status != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", ue.Status)
	}
	// The fallback's own 400 must never trigger a second retry.
	if mock.GenerateCalls != 2 {
		t.Errorf("generate calls = %d, want exactly 2", mock.GenerateCalls)
	}
}

func TestGenerate_NoFallbackOnNon400(t *testing.T) {
	mock := testutil.NewMockGoogle("unused")
	defer mock.Close()
	mock.StatusForModel = map[string]int{testModel: http.StatusInternalServerError}

	c := newTestClient(t, mock)
	_, err := c.Generate(context.Background(), GenerationRequest{Prompt: "hi"})

	var ue *UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("expected *UpstreamError, got %v", err)
	}
	if ue.Status != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", ue.Status)
	}
	if mock.GenerateCalls != 1 {
		t.Errorf("generate calls = %d, want 1", mock.GenerateCalls)
	}
}

func TestGenerate_NoFallbackWhenModelIsFallback(t *testing.T) {
	mock := testutil.NewMockGoogle("unused")
	defer mock.Close()
	mock.StatusForModel = map[string]int{testFallback: http.StatusBadRequest}

	c := newTestClient(t, mock)
	_, err := c.Generate(context.Background(), GenerationRequest{Prompt: "hi", Model: testFallback})

	var ue *UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("expected *UpstreamError, got %v", err)
	}
	if mock.GenerateCalls != 1 {
		t.Errorf("generate calls = %d, want 1", mock.GenerateCalls)
	}
}

func TestGenerate_SafetyBlocked(t *testing.T) {
	mock := testutil.NewMockGoogle("isi yang diblokir")
	defer mock.Close()
	mock.FinishReason = "SAFETY"

	c := newTestClient(t, mock)
	_, err := c.Generate(context.Background(), GenerationRequest{Prompt: "hi"})
	if !errors.Is(err, ErrSafetyBlocked) {
		t.Fatalf("expected ErrSafetyBlocked, got %v", err)
	}
	if !strings.Contains(err.Error(), messageSafetyBlocked) {
		t.Errorf("expected the user-facing safety message, got %q", err.Error())
	}
}

func TestGenerate_MaxTokensWithPartialText(t *testing.T) {
	mock := testutil.NewMockGoogle("jawaban terpotong")
	defer mock.Close()
	mock.FinishReason = "MAX_TOKENS"

	c := newTestClient(t, mock)
	text, err := c.Generate(context.Background(), GenerationRequest{Prompt: "hi"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.HasPrefix(text, "jawaban terpotong") || !strings.HasSuffix(text, truncationNotice) {
		t.Errorf("text = %q, want partial answer plus truncation notice", text)
	}
}

func TestGenerate_MaxTokensWithoutText(t *testing.T) {
	mock := testutil.NewMockGoogle("unused")
	defer mock.Close()
	mock.RawCandidates = []any{map[string]any{"finishReason": "MAX_TOKENS"}}

	c := newTestClient(t, mock)
	_, err := c.Generate(context.Background(), GenerationRequest{Prompt: "hi"})
	if !errors.Is(err, ErrTokenLimit) {
		t.Fatalf("expected ErrTokenLimit, got %v", err)
	}
	if !strings.Contains(err.Error(), messageTooLong) {
		t.Errorf("expected the user-facing too-long message, got %q", err.Error())
	}
}

func TestGenerate_EmptyCandidates(t *testing.T) {
	mock := testutil.NewMockGoogle("unused")
	defer mock.Close()
	mock.RawCandidates = []any{}

	c := newTestClient(t, mock)
	if _, err := c.Generate(context.Background(), GenerationRequest{Prompt: "hi"}); !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestGenerate_UnextractableCandidate(t *testing.T) {
	mock := testutil.NewMockGoogle("unused")
	defer mock.Close()
	mock.RawCandidates = []any{map[string]any{"foo": 1}}

	c := newTestClient(t, mock)
	if _, err := c.Generate(context.Background(), GenerationRequest{Prompt: "hi"}); !errors.Is(err, ErrUnextractable) {
		t.Fatalf("expected ErrUnextractable, got %v", err)
	}
}

func TestGenerate_ReusesCachedToken(t *testing.T) {
	mock := testutil.NewMockGoogle("ok")
	defer mock.Close()

	c := newTestClient(t, mock)
	for i := 0; i < 3; i++ {
		if _, err := c.Generate(context.Background(), GenerationRequest{Prompt: "hi"}); err != nil {
			t.Fatalf("Generate %d: %v", i, err)
		}
	}
	if mock.TokenCalls != 1 {
		t.Errorf("token calls = %d, want 1 across three generations", mock.TokenCalls)
	}
	if mock.GenerateCalls != 3 {
		t.Errorf("generate calls = %d, want 3", mock.GenerateCalls)
	}
}

func TestGenerate_StringCandidate(t *testing.T) {
	mock := testutil.NewMockGoogle("unused")
	defer mock.Close()
	mock.RawCandidates = []any{"jawaban mentah"}

	c := newTestClient(t, mock)
	text, err := c.Generate(context.Background(), GenerationRequest{Prompt: "hi"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if text != "jawaban mentah" {
		t.Errorf("text = %q, want %q", text, "jawaban mentah")
	}
}
