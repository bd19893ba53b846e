package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"bilisub/internal/config"
	"bilisub/internal/logging"
	"bilisub/internal/services"
	"bilisub/internal/workflow"
)

const maxBodyBytes = 1 << 20

// Server holds the HTTP handlers' collaborators.
type Server struct {
	cfg     *config.Config
	manager *workflow.Manager
	auth    *Authenticator
	tokens  *TokenSigner
	logger  *slog.Logger
}

// NewServer wires the handlers to a workflow manager.
func NewServer(cfg *config.Config, manager *workflow.Manager, logger *slog.Logger) (*Server, error) {
	if cfg == nil || manager == nil {
		return nil, errors.New("api: config and manager are required")
	}
	s := &Server{
		cfg:     cfg,
		manager: manager,
		auth:    NewAuthenticator(cfg.Service.Clients),
		tokens:  NewTokenSigner(cfg.Service.DownloadTokenSecret, cfg.DownloadTokenTTL()),
		logger:  logging.NewComponentLogger(logger, "api"),
	}
	if s.auth.Open() {
		logging.WarnWithContext(s.logger, "no api clients configured; every caller is admin", "api_open",
			logging.String(logging.FieldImpact, "anyone who can reach the listener can submit and read tasks"),
			logging.String(logging.FieldErrorHint, "add [[service.clients]] entries with `bilisub config hash-key`"),
		)
	}
	return s, nil
}

// Handler builds the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(chimw.RequestID)
	r.Use(s.requestLogger)
	r.Use(cors.Handler(corsOptions(s.cfg.Service.CORSOrigins)))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.health)
		// Download links accept either the key header or a signed token.
		r.Get("/download/{id}/{file}", s.download)

		r.Group(func(r chi.Router) {
			r.Use(s.auth.Middleware(s))
			r.Use(chimw.RequestSize(maxBodyBytes))

			r.Post("/tasks", s.createTask)
			r.Get("/tasks", s.listTasks)
			r.Get("/tasks/{id}", s.getTask)
			r.Get("/tasks/{id}/result", s.getResult)
			r.Post("/tasks/{id}/cancel", s.cancelTask)
			r.Delete("/tasks/{id}", s.deleteTask)

			r.With(requireAdmin(s)).Get("/stats", s.stats)
		})
	})
	return r
}

// corsOptions allows every origin when none are configured; credentials are
// then disabled.
func corsOptions(origins []string) cors.Options {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	allowCreds := true
	for _, o := range origins {
		if o == "*" {
			allowCreds = false
			break
		}
	}
	return cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", APIKeyHeader},
		ExposedHeaders:   []string{"Content-Length", "Content-Disposition", "Retry-After"},
		AllowCredentials: allowCreds,
		MaxAge:           300,
	}
}

// quietPaths are polled frequently and only logged on errors.
var quietPaths = map[string]bool{
	"/api/health": true,
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := services.WithRequestID(r.Context(), chimw.GetReqID(r.Context()))
		r = r.WithContext(ctx)
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		if quietPaths[r.URL.Path] && status < http.StatusBadRequest {
			return
		}
		logger := logging.WithContext(ctx, s.logger)
		attrs := logging.Args(
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", status),
			logging.Int("bytes", ww.BytesWritten()),
			logging.Duration("elapsed", time.Since(start)),
			logging.String(logging.FieldEventType, "api_request"),
		)
		if status >= http.StatusInternalServerError {
			logger.Warn("api request", attrs...)
			return
		}
		logger.Debug("api request", attrs...)
	})
}
