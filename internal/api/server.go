package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/terra-clan/codecrafters/internal/auth"
	"github.com/terra-clan/codecrafters/internal/config"
	"github.com/terra-clan/codecrafters/internal/editor"
	"github.com/terra-clan/codecrafters/internal/stats"
	"github.com/terra-clan/codecrafters/internal/storage"
)

const requestTimeout = 60 * time.Second

// Services are the collaborators the API serves.
// Metrics and Limiter are optional; defaults are created when nil.
type Services struct {
	Repo    storage.Repository
	Auth    *auth.Service
	Stats   *stats.Service
	Editors *editor.Registry
	Metrics *Metrics
	Limiter *RateLimiter
}

// Server represents the HTTP API server
type Server struct {
	config  config.ServerConfig
	router  *chi.Mux
	repo    storage.Repository
	auth    *auth.Service
	stats   *stats.Service
	editors *editor.Registry
	metrics *Metrics
	limiter *RateLimiter
}

// NewServer creates a new API server
func NewServer(cfg config.ServerConfig, svc Services) *Server {
	s := &Server{
		config:  cfg,
		repo:    svc.Repo,
		auth:    svc.Auth,
		stats:   svc.Stats,
		editors: svc.Editors,
		metrics: svc.Metrics,
		limiter: svc.Limiter,
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(prometheus.NewRegistry())
	}
	if s.limiter == nil {
		s.limiter = NewRateLimiter(DefaultRequestsPerSecond, DefaultBurst)
	}
	s.setupRouter()
	return s
}

// Router returns the configured router
func (s *Server) Router() http.Handler {
	return s.router
}

// anyOrigin reports whether origins contains the wildcard.
// Credentialed requests are only allowed for an explicit origin list.
func anyOrigin(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}

// setupRouter configures all routes and middleware
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(s.metrics.Middleware)
	r.Use(middleware.Recoverer)

	origins := s.config.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: !anyOrigin(origins),
		MaxAge:           300,
	}))

	// Public
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Use(s.limiter.Middleware)
			r.Post("/signup", s.handleSignUp)
			r.Post("/signin", s.handleSignIn)

			r.Group(func(r chi.Router) {
				r.Use(s.requireSession)
				r.Post("/signout", s.handleSignOut)
				r.Get("/session", s.handleSession)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(s.requireSession)

			r.Route("/editor/{challengeId}", func(r chi.Router) {
				// The assistant socket outlives the request timeout
				r.Get("/assistant/ws", s.handleAssistantWS)

				r.Group(func(r chi.Router) {
					r.Use(middleware.Timeout(requestTimeout))
					r.Post("/", s.handleOpenEditor)
					r.Get("/", s.handleGetEditor)
					r.Put("/code", s.handleSetCode)
					r.Put("/language", s.handleSwitchLanguage)
					r.Post("/submit", s.handleSubmit)
					r.Post("/ask", s.handleAsk)
					r.Post("/voice", s.handleVoice)
				})
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.Timeout(requestTimeout))

				r.Patch("/profile", s.handleUpdateProfile)

				r.Get("/challenges", s.handleListChallenges)
				r.Get("/challenges/{id}", s.handleGetChallenge)

				r.Get("/dashboard", s.handleDashboard)
				r.Get("/progress", s.handleProgress)
			})
		})

		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			respondError(w, http.StatusNotFound, "not_found", "endpoint not found")
		})
	})

	if s.config.StaticDir != "" {
		r.NotFound(newSPAHandler(s.config.StaticDir).ServeHTTP)
	}

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
