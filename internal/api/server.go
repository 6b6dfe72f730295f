package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/terra-clan/assessment-engine/internal/assessment"
	"github.com/terra-clan/assessment-engine/internal/catalog"
	"github.com/terra-clan/assessment-engine/internal/config"
	"github.com/terra-clan/assessment-engine/internal/report"
	"github.com/terra-clan/assessment-engine/internal/storage"
)

// Server represents the HTTP API server
type Server struct {
	config   config.ServerConfig
	router   *chi.Mux
	engine   *assessment.Engine
	catalog  *catalog.Loader
	repo     storage.Repository
	renderer *report.Renderer
	identity *IdentityMiddleware
	limiter  *RateLimiter
}

// NewServer creates a new API server
func NewServer(
	cfg *config.Config,
	engine *assessment.Engine,
	loader *catalog.Loader,
	repo storage.Repository,
) *Server {
	s := &Server{
		config:   cfg.Server,
		engine:   engine,
		catalog:  loader,
		repo:     repo,
		renderer: report.NewRenderer(),
		identity: NewIdentityMiddleware(cfg.Auth),
		limiter:  NewRateLimiter(cfg.RateLimit),
	}
	s.setupRouter()
	return s
}

// Router returns the configured router
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRouter configures all routes and middleware
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-User-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check (outside versioned API - public)
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.identity.Authenticate)
		r.Use(s.limiter.Limit)

		r.Route("/assessments", func(r chi.Router) {
			r.Get("/", s.handleListAssessments)
			r.Get("/{id}", s.handleGetAssessment)
			r.Post("/{id}/sessions", s.handleStartAssessment)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", s.handleListSessions)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Put("/responses/{questionId}", s.handleAnswerQuestion)
				r.Get("/progress", s.handleGetProgress)
				r.Post("/submit", s.handleSubmit)
				r.Get("/report", s.handleGetReport)
			})
		})
	})

	s.router = r
}

// loggingMiddleware logs HTTP requests using slog
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			slog.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
				"remote_addr", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

func requestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}
