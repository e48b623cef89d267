package proxy

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/rakhadi/vertex-proxy/internal/config"
	"github.com/rakhadi/vertex-proxy/internal/vertex"
)

// Server is the chat proxy HTTP server.
type Server struct {
	httpServer *http.Server
}

// New constructs a Server from the given config.
func New(cfg *config.Config) *Server {
	client := vertex.NewClient(vertex.ClientConfig{
		ProjectID:           cfg.ProjectID,
		Location:            cfg.Location,
		Credentials:         cfg.Credentials,
		DefaultModel:        cfg.DefaultModel,
		FallbackModel:       cfg.FallbackModel,
		AllowedModels:       cfg.AllowedModels,
		DefaultTemperature:  float32(cfg.DefaultTemperature),
		DefaultSystemPrompt: cfg.DefaultSystemPrompt,
		Timeout:             cfg.RequestTimeout,
		ProxyURL:            cfg.ProxyURL,
		TokenURL:            cfg.TokenURL,
		Host:                cfg.VertexHost,
	})

	chatHandler := NewChatHandler(client, cfg.RequestTimeout)

	router := mux.NewRouter()
	router.Handle("/api/chat", chatHandler).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/healthz", handleHealth).Methods(http.MethodGet)

	router.Use(requestIDMiddleware)
	router.Use(corsMiddleware(cfg.AllowedOrigins))
	router.Use(loggingMiddleware)
	router.Use(recoveryMiddleware)

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.ListenAddr,
			Handler:      router,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: cfg.RequestTimeout + 10*time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// Start begins listening and blocks until the server is stopped.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Handler returns the underlying http.Handler (for use in tests with httptest.NewServer).
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
