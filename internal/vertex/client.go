// Package vertex is the model gateway: it mints service-account bearer
// tokens, dispatches generateContent calls to Vertex AI, and normalizes the
// polymorphic candidate payloads into plain text.
package vertex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"google.golang.org/genai"
)

const (
	maxOutputTokens         = 1024
	defaultTopP     float32 = 0.95
	defaultTopK     float32 = 40

	minTemperature     float32 = 0
	maxTemperature     float32 = 2
	maxSystemPromptLen         = 2000

	// truncationNotice is appended to partial answers cut off by the output
	// token limit.
	truncationNotice = "\n\n[Catatan: respons terpotong karena mencapai batas panjang maksimum]"
	// messageTooLong is returned when a length-limited answer carries no
	// recoverable text at all.
	messageTooLong = "Maaf, respons terlalu panjang untuk ditampilkan. Coba ajukan pertanyaan yang lebih spesifik."
	// messageSafetyBlocked is returned when the upstream safety filter
	// blocks the answer.
	messageSafetyBlocked = "Maaf, pertanyaan Anda tidak dapat diproses karena terdeteksi melanggar kebijakan keamanan konten. Silakan ajukan pertanyaan lain."
)

var (
	ErrValidation      = errors.New("invalid generation request")
	ErrUpstreamTimeout = errors.New("upstream request timed out")
	ErrEmptyResponse   = errors.New("generation returned no candidates")
	ErrTokenLimit      = errors.New("response hit the output token limit")
	ErrSafetyBlocked   = errors.New("response blocked by safety filter")
	ErrUnextractable   = errors.New("no text could be extracted from the response")
)

// UpstreamError is a non-2xx reply from the generation endpoint.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("vertex %d: %s", e.Status, e.Body)
}

// ClientConfig configures a Client.
type ClientConfig struct {
	ProjectID   string
	Location    string
	Credentials string // base64-encoded service-account bundle

	DefaultModel        string
	FallbackModel       string
	AllowedModels       []string
	DefaultTemperature  float32
	DefaultSystemPrompt string

	Timeout  time.Duration
	ProxyURL string

	// TokenURL and Host override the Google endpoints; tests point them at
	// local servers. Empty means the real endpoints.
	TokenURL string
	Host     string
}

// Client calls the Vertex AI generateContent endpoint for one project and
// location, minting bearer tokens on demand.
type Client struct {
	projectID string
	location  string
	host      string

	defaultModel        string
	fallbackModel       string
	allowedModels       []string
	defaultTemperature  float32
	defaultSystemPrompt string

	httpClient *http.Client
	tokens     *tokenSource
}

// NewClient constructs a Client. cfg.ProxyURL may be empty to use the
// default environment proxy.
func NewClient(cfg ClientConfig) *Client {
	transport := &http.Transport{}
	if cfg.ProxyURL != "" {
		if parsed, err := url.Parse(cfg.ProxyURL); err == nil {
			transport.Proxy = http.ProxyURL(parsed)
		}
	} else {
		transport.Proxy = http.ProxyFromEnvironment
	}

	httpClient := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
	}

	host := cfg.Host
	if host == "" {
		host = fmt.Sprintf("https://%s-aiplatform.googleapis.com", cfg.Location)
	}

	return &Client{
		projectID:           cfg.ProjectID,
		location:            cfg.Location,
		host:                host,
		defaultModel:        cfg.DefaultModel,
		fallbackModel:       cfg.FallbackModel,
		allowedModels:       cfg.AllowedModels,
		defaultTemperature:  cfg.DefaultTemperature,
		defaultSystemPrompt: cfg.DefaultSystemPrompt,
		httpClient:          httpClient,
		tokens:              newTokenSource(cfg.Credentials, cfg.TokenURL, httpClient),
	}
}

// GenerationRequest is one caller-supplied generation call. Model,
// Temperature, and SystemPrompt fall back to configured defaults when
// absent.
type GenerationRequest struct {
	Prompt       string
	Model        string
	Temperature  *float32
	SystemPrompt string
}

// Generate validates the request, dispatches it, and returns the normalized
// answer text. Exactly one of text and err is populated. A 400 from a
// non-fallback model is retried once with the fallback model; the fallback's
// own outcome is surfaced as-is.
func (c *Client) Generate(ctx context.Context, req GenerationRequest) (string, error) {
	model, temperature, systemPrompt, err := c.resolve(req)
	if err != nil {
		return "", err
	}

	body := generateContentRequest{
		Contents: []*genai.Content{{
			Role:  genai.RoleUser,
			Parts: []*genai.Part{{Text: req.Prompt}},
		}},
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: systemPrompt}},
		},
		GenerationConfig: &genai.GenerationConfig{
			Temperature:     genai.Ptr(temperature),
			MaxOutputTokens: maxOutputTokens,
			TopP:            genai.Ptr(defaultTopP),
			TopK:            genai.Ptr(defaultTopK),
		},
	}

	fallbackAttempted := false
	for {
		resp, err := c.dispatch(ctx, model, &body)
		if err != nil {
			var ue *UpstreamError
			if errors.As(err, &ue) && ue.Status == http.StatusBadRequest &&
				!fallbackAttempted && model != c.fallbackModel {
				slog.Warn("model rejected request, retrying with fallback",
					"model", model, "fallback", c.fallbackModel)
				model = c.fallbackModel
				fallbackAttempted = true
				continue
			}
			return "", err
		}
		return c.normalize(resp)
	}
}

// resolve validates caller-supplied fields and fills in defaults. All
// failures are ErrValidation and happen before any network call.
func (c *Client) resolve(req GenerationRequest) (model string, temperature float32, systemPrompt string, err error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return "", 0, "", fmt.Errorf("%w: prompt must not be empty", ErrValidation)
	}

	model = req.Model
	if model == "" {
		model = c.defaultModel
	}
	if !slices.Contains(c.allowedModels, model) {
		return "", 0, "", fmt.Errorf("%w: unknown model %q, allowed models: %s",
			ErrValidation, model, strings.Join(c.allowedModels, ", "))
	}

	temperature = c.defaultTemperature
	if req.Temperature != nil {
		if *req.Temperature < minTemperature || *req.Temperature > maxTemperature {
			return "", 0, "", fmt.Errorf("%w: Temperature must be between %g and %g, got %g",
				ErrValidation, minTemperature, maxTemperature, *req.Temperature)
		}
		temperature = *req.Temperature
	}

	systemPrompt = req.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = c.defaultSystemPrompt
	} else if n := utf8.RuneCountInString(systemPrompt); n > maxSystemPromptLen {
		return "", 0, "", fmt.Errorf("%w: systemPrompt must be at most %d characters, got %d",
			ErrValidation, maxSystemPromptLen, n)
	}

	return model, temperature, systemPrompt, nil
}

func (c *Client) endpointURL(model string) string {
	return fmt.Sprintf("%s/v1/projects/%s/locations/%s/publishers/google/models/%s:generateContent",
		c.host, c.projectID, c.location, model)
}

// dispatch sends one generateContent call and decodes the reply.
func (c *Client) dispatch(ctx context.Context, model string, body *generateContentRequest) (*generateContentResponse, error) {
	token, err := c.tokens.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpointURL(model), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrUpstreamTimeout, err)
		}
		return nil, fmt.Errorf("vertex request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return nil, &UpstreamError{Status: resp.StatusCode, Body: string(raw)}
	}

	var result generateContentResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &result, nil
}

// normalize turns a decoded response into the caller-facing text, honoring
// the finish-reason degradation paths.
func (c *Client) normalize(resp *generateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", ErrEmptyResponse
	}
	if resp.UsageMetadata != nil {
		slog.Debug("generation usage",
			"prompt_tokens", resp.UsageMetadata.PromptTokenCount,
			"candidate_tokens", resp.UsageMetadata.CandidatesTokenCount,
			"total_tokens", resp.UsageMetadata.TotalTokenCount)
	}

	cand := ParseCandidate(resp.Candidates[0])
	switch cand.FinishReason {
	case finishReasonMaxTokens:
		if text := cand.Text(); text != "" {
			return text + truncationNotice, nil
		}
		return "", fmt.Errorf("%w: %s", ErrTokenLimit, messageTooLong)
	case finishReasonSafety:
		return "", fmt.Errorf("%w: %s", ErrSafetyBlocked, messageSafetyBlocked)
	}

	text := cand.Text()
	if text == "" {
		slog.Warn("candidate matched no extractable layout", "shape", cand.shape)
		return "", ErrUnextractable
	}
	return text, nil
}
