package config

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ListenAddr string

	// Google / Vertex AI
	ProjectID   string
	Location    string
	Credentials string // base64-encoded service-account bundle
	ProxyURL    string

	// Generation defaults
	DefaultModel        string
	FallbackModel       string
	AllowedModels       []string
	DefaultTemperature  float64
	DefaultSystemPrompt string

	// HTTP surface
	AllowedOrigins []string
	RequestTimeout time.Duration

	// VertexHost and TokenURL override the Google endpoints; empty means the
	// real ones. Used for private endpoints and by the integration tests.
	VertexHost string
	TokenURL   string
}

func Load() *Config {
	// Best-effort: a missing .env file is not an error.
	_ = godotenv.Load()

	cfg := &Config{}

	flag.StringVar(&cfg.ListenAddr, "listen-addr", getEnv("LISTEN_ADDR", ":8080"), "Proxy listen address")
	flag.StringVar(&cfg.ProjectID, "project-id", getEnv("GOOGLE_PROJECT_ID", ""), "Google Cloud project ID (required)")
	flag.StringVar(&cfg.Location, "location", getEnv("GOOGLE_LOCATION", "us-central1"), "Vertex AI location")
	flag.StringVar(&cfg.Credentials, "credentials", getEnv("GOOGLE_CREDENTIALS", ""), "Base64-encoded service-account JSON bundle (required)")
	flag.StringVar(&cfg.ProxyURL, "proxy-url", getEnv("PROXY_URL", ""), "HTTP/HTTPS proxy URL for outbound Google requests (e.g. http://proxy:8080)")

	flag.StringVar(&cfg.DefaultModel, "default-model", getEnv("DEFAULT_MODEL", "gemini-1.5-pro"), "Model used when the caller omits one")
	flag.StringVar(&cfg.FallbackModel, "fallback-model", getEnv("FALLBACK_MODEL", "gemini-1.5-flash"), "Model retried once when the primary model rejects the request")

	var allowedModelsFlag string
	flag.StringVar(&allowedModelsFlag, "allowed-models",
		getEnv("ALLOWED_MODELS", "gemini-1.5-pro,gemini-1.5-flash,gemini-2.0-flash"),
		"Comma-separated model allow-list")

	flag.Float64Var(&cfg.DefaultTemperature, "default-temperature", getEnvFloat("DEFAULT_TEMPERATURE", 1.5), "Temperature used when the caller omits one")
	flag.StringVar(&cfg.DefaultSystemPrompt, "default-system-prompt",
		getEnv("DEFAULT_SYSTEM_PROMPT", "Anda adalah asisten AI yang ramah dan membantu. Jawab pertanyaan dengan jelas dan sopan dalam Bahasa Indonesia."),
		"System prompt used when the caller omits one")

	var allowedOriginsFlag string
	flag.StringVar(&allowedOriginsFlag, "allowed-origins", getEnv("ALLOWED_ORIGINS", "*"), "Comma-separated CORS origin allow-list (\"*\" allows any)")

	timeoutStr := getEnv("REQUEST_TIMEOUT", "120s")
	defaultTimeout, _ := time.ParseDuration(timeoutStr)
	if defaultTimeout == 0 {
		defaultTimeout = 120 * time.Second
	}
	flag.DurationVar(&cfg.RequestTimeout, "request-timeout", defaultTimeout, "Vertex round-trip timeout")

	flag.StringVar(&cfg.VertexHost, "vertex-host", getEnv("VERTEX_HOST", ""), "Override the Vertex AI host (testing / private endpoints)")
	flag.StringVar(&cfg.TokenURL, "token-url", getEnv("TOKEN_URL", ""), "Override the OAuth token endpoint (testing)")

	flag.Parse()

	cfg.AllowedModels = splitList(allowedModelsFlag)
	cfg.AllowedOrigins = splitList(allowedOriginsFlag)
	return cfg
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
