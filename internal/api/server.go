// Package api exposes the converter over HTTP: diagram conversion,
// record-set validation, and audio catalog management.
package api

import (
	"net/http"

	"github.com/CMCFame/mermaidivr/internal/api/middleware"
	"github.com/CMCFame/mermaidivr/internal/config"
	"github.com/CMCFame/mermaidivr/internal/database"
	"github.com/CMCFame/mermaidivr/internal/resolver"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Server holds HTTP handler dependencies and the chi router.
type Server struct {
	router   *chi.Mux
	segments database.AudioSegmentRepository
	catalog  *resolver.Catalog
	resolver resolver.PromptResolver
	cfg      *config.Config
	limiter  *middleware.IPRateLimiter
}

// NewServer creates the HTTP handler with all routes mounted.
func NewServer(segments database.AudioSegmentRepository, catalog *resolver.Catalog, res resolver.PromptResolver, cfg *config.Config) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		segments: segments,
		catalog:  catalog,
		resolver: res,
		cfg:      cfg,
		limiter:  middleware.NewIPRateLimiter(middleware.DefaultRateLimitConfig()),
	}

	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close releases background resources held by the server.
func (s *Server) Close() {
	s.limiter.Stop()
}

// routes configures all middleware and mounts all route groups.
func (s *Server) routes() {
	r := s.router

	// Global middleware stack.
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.StructuredLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RateLimit(s.limiter))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Post("/convert", s.handleConvert)
		r.Post("/validate", s.handleValidate)

		r.Route("/catalog", func(r chi.Router) {
			r.Get("/companies", s.handleListCompanies)
			r.Get("/categories", s.handleListCategories)
			r.Get("/segments", s.handleListSegments)
			r.Get("/segments/search", s.handleSearchSegments)
			r.Post("/segments/import", s.handleImportSegments)
			r.Post("/refresh", s.handleRefresh)
		})
	})
}

// handleHealth reports service liveness and catalog size.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"catalog_size":  s.catalog.Size(),
		"catalog_ready": !s.catalog.Snapshot().Empty(),
	})
}
