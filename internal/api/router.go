// Package api provides the HTTP router and server.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/arkivo-ai/docchat/internal/api/handlers"
	"github.com/arkivo-ai/docchat/internal/api/middleware"
	"github.com/arkivo-ai/docchat/pkg/logger"
)

// RouterConfig holds configuration for the API router.
type RouterConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           int

	// RequestTimeout bounds non-streaming requests. The chat stream
	// route is exempt.
	RequestTimeout time.Duration

	// MaxUploadBytes caps the PDF upload size.
	MaxUploadBytes int64
}

// DefaultRouterConfig returns a default router configuration.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
		RequestTimeout:   60 * time.Second,
		MaxUploadBytes:   10 * 1024 * 1024,
	}
}

// Dependencies holds everything the handlers need.
type Dependencies struct {
	Logger    *logger.Logger
	Documents handlers.DocumentService
	Answers   handlers.AnswerService
	Reader    handlers.DocumentReader

	// Readiness probes by component name; nil entries report as not
	// configured.
	HealthChecks map[string]handlers.HealthChecker
}

// NewRouter creates the Chi router with the full middleware stack and
// all routes.
func NewRouter(deps Dependencies, config RouterConfig) *chi.Mux {
	log := deps.Logger
	if log == nil {
		log = logger.Default()
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recoverer(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   config.AllowedOrigins,
		AllowedMethods:   config.AllowedMethods,
		AllowedHeaders:   config.AllowedHeaders,
		AllowCredentials: config.AllowCredentials,
		MaxAge:           config.MaxAge,
	}))

	r.Get("/api/health", handlers.HealthCheck())
	r.Get("/api/ready", handlers.ReadyCheck(deps.HealthChecks))

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(config.RequestTimeout))

		r.Post("/api/upload", handlers.HandleUpload(deps.Documents, config.MaxUploadBytes, log))
		r.Post("/api/chat", handlers.HandleChat(deps.Answers, log))

		r.Route("/api/documents", func(r chi.Router) {
			r.Get("/", handlers.ListDocuments(deps.Reader, log))
			r.Get("/{id}", handlers.GetDocument(deps.Reader, log))
			r.Delete("/{id}", handlers.DeleteDocument(deps.Documents, log))
			r.Get("/{id}/messages", handlers.ListMessages(deps.Reader, log))
			r.Delete("/{id}/messages", handlers.DeleteMessages(deps.Reader, log))
		})

		// Chat history addressed by document id directly.
		r.Route("/api/messages", func(r chi.Router) {
			r.Get("/{id}", handlers.ListMessages(deps.Reader, log))
			r.Delete("/{id}", handlers.DeleteMessages(deps.Reader, log))
		})
	})

	// No timeout middleware: the SSE response outlives any fixed bound.
	r.Post("/api/chat/stream", handlers.HandleChatStream(deps.Answers, log))

	return r
}

// Server wraps the HTTP server.
type Server struct {
	httpServer *http.Server
	log        *logger.Logger
}

// ServerConfig holds configuration for the HTTP server.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultServerConfig returns default server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:        8080,
		ReadTimeout: 30 * time.Second,
		// Write timeout must cover slow LLM streams.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
}

// NewServer creates an HTTP server around the handler.
func NewServer(handler http.Handler, config ServerConfig, log *logger.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         formatAddr(config.Host, config.Port),
			Handler:      handler,
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
			IdleTimeout:  config.IdleTimeout,
		},
		log: log,
	}
}

// Start starts the HTTP server and blocks until it exits.
func (s *Server) Start() error {
	s.log.Info("starting HTTP server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the server address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

func formatAddr(host string, port int) string {
	if host == "" {
		return fmt.Sprintf(":%d", port)
	}
	return fmt.Sprintf("%s:%d", host, port)
}
