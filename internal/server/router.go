// Package server exposes the mind-map pipeline and store over HTTP.
package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"

	"MindMapService/internal/embedder"
	"MindMapService/internal/metrics"
	"MindMapService/internal/ports"
	"MindMapService/internal/usecase"
)

const maxRequestBytes = 32 << 20

// Deps are the collaborators the HTTP layer calls into.
type Deps struct {
	Pipeline       *usecase.Pipeline
	Store          ports.SnapshotStore
	Source         ports.RecordSource
	Registry       *embedder.Registry
	Metrics        *metrics.Collector
	Logger         *slog.Logger
	AllowedOrigins []string
	// Components is reported verbatim by the health endpoint.
	Components map[string]string
}

// Server holds the handlers.
type Server struct {
	pipeline   *usecase.Pipeline
	store      ports.SnapshotStore
	source     ports.RecordSource
	registry   *embedder.Registry
	metrics    *metrics.Collector
	logger     *slog.Logger
	validate   *validator.Validate
	components map[string]string
}

// New builds a server from deps.
func New(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		pipeline:   deps.Pipeline,
		store:      deps.Store,
		source:     deps.Source,
		registry:   deps.Registry,
		metrics:    deps.Metrics,
		logger:     logger,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		components: deps.Components,
	}
}

// Routes configures all routes and middleware.
func (s *Server) Routes(allowedOrigins []string) http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(requestLogger(s.logger, s.metrics))

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	router.Route("/api", func(r chi.Router) {
		r.Get("/health", s.health)
		r.Get("/models", s.models)
		r.Get("/reading-list", s.readingList)
		r.Post("/scrape", s.scrape)
		r.Post("/embeddings", s.embeddings)

		r.Route("/mindmaps", func(r chi.Router) {
			r.Post("/", s.createMindMap)
			r.Post("/process", s.processMindMap)
			r.Get("/latest", s.latestMindMap)
			r.Get("/{mindmapID}", s.getMindMap)
			r.Delete("/{mindmapID}", s.deleteMindMap)
		})
	})

	if s.metrics != nil {
		router.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	return router
}

// Handler is New(deps).Routes(deps.AllowedOrigins).
func Handler(deps Deps) http.Handler {
	return New(deps).Routes(deps.AllowedOrigins)
}
