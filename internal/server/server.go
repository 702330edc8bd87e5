// Package server exposes the completion orchestrator over HTTP: REST
// endpoints to start and stop completions, an SSE stream for realtime
// events, the direct-tool result callback, and the image cache.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/conduit-ai/conduit/internal/codeexec"
	"github.com/conduit-ai/conduit/internal/event"
	"github.com/conduit-ai/conduit/internal/provider"
	"github.com/conduit-ai/conduit/internal/session"
	"github.com/conduit-ai/conduit/internal/storage"
	"github.com/conduit-ai/conduit/internal/tool"
)

// Config holds server configuration.
type Config struct {
	Host         string
	Port         int
	EnableCORS   bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// DefaultModel is used when a completion request names no model.
	DefaultModel string
	// TaskModel is used for detached follow-ups (title, tags).
	TaskModel string
	// Policy is the default persistence policy.
	Policy session.PersistencePolicy
	// CodeEnabled turns the code-interpreter loop on.
	CodeEnabled bool
	// TagSets constrains follow-up tag generation when non-empty.
	TagSets []string
	// EnableTitleGeneration turns on the detached title follow-up.
	EnableTitleGeneration bool
	// EnableTagGeneration turns on the detached tag follow-up.
	EnableTagGeneration bool
}

// DefaultConfig returns default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Host:                  "127.0.0.1",
		Port:                  4096,
		EnableCORS:            true,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          0, // no write timeout, SSE connections are long-lived
		Policy:                session.PolicyRealtime,
		EnableTitleGeneration: true,
	}
}

// Server is the HTTP server.
type Server struct {
	config     *Config
	router     *chi.Mux
	httpSrv    *http.Server
	store      *storage.Store
	bus        *event.Bus
	providers  *provider.Registry
	tools      *tool.Registry
	direct     *tool.Direct
	supervisor *session.Supervisor
	images     *codeexec.ImageCache
}

// Options wires the server's collaborators.
type Options struct {
	Store      *storage.Store
	Bus        *event.Bus
	Providers  *provider.Registry
	Tools      *tool.Registry
	Direct     *tool.Direct
	Supervisor *session.Supervisor
	Images     *codeexec.ImageCache
}

// New creates a server.
func New(cfg *Config, opts Options) *Server {
	s := &Server{
		config:     cfg,
		router:     chi.NewRouter(),
		store:      opts.Store,
		bus:        opts.Bus,
		providers:  opts.Providers,
		tools:      opts.Tools,
		direct:     opts.Direct,
		supervisor: opts.Supervisor,
		images:     opts.Images,
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RealIP)

	if s.config.EnableCORS {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.health)
	s.router.Get("/events", s.events)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/models", s.listModels)

		r.Route("/chats/{chatID}", func(r chi.Router) {
			r.Get("/", s.getChat)
			r.Post("/completions", s.startCompletion)
			r.Delete("/completions", s.stopCompletion)
		})

		r.Get("/messages/{messageID}", s.getMessage)

		r.Route("/tools", func(r chi.Router) {
			r.Post("/register", s.registerDirectTools)
			r.Post("/unregister", s.unregisterDirectTools)
			r.Post("/results", s.postToolResult)
		})
	})

	if s.images != nil {
		fs := http.StripPrefix("/cache/images/", http.FileServer(http.Dir(s.images.Dir())))
		s.router.Get("/cache/images/*", fs.ServeHTTP)
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	return s.httpSrv.ListenAndServe()
}

// Shutdown stops accepting connections, cancels running sessions, and
// drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.supervisor.Shutdown()
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
