// Package httpserver exposes the workflow engine over a JSON API.
package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/holte-dev/safetyflash/internal/audit"
	"github.com/holte-dev/safetyflash/internal/config"
	"github.com/holte-dev/safetyflash/internal/obs"
	"github.com/holte-dev/safetyflash/internal/service"
	"github.com/holte-dev/safetyflash/internal/session"
	"github.com/holte-dev/safetyflash/internal/workflow"
)

// Server wires middlewares and handlers around the application services.
type Server struct {
	srv     *http.Server
	log     *zap.Logger
	limiter *ipLimiter

	auth    *service.AuthService
	users   *service.UserService
	flashes *workflow.Service
	guard   *session.Guard
	trail   *audit.Trail

	shutdownTimeout time.Duration
}

// New constructs the server and its router.
func New(
	cfg *config.Config,
	log *zap.Logger,
	auth *service.AuthService,
	users *service.UserService,
	flashes *workflow.Service,
	guard *session.Guard,
	trail *audit.Trail,
) *Server {
	s := &Server{
		log:             log,
		limiter:         newIPLimiter(cfg.RequestsPerSec, cfg.RequestBurst),
		auth:            auth,
		users:           users,
		flashes:         flashes,
		guard:           guard,
		trail:           trail,
		shutdownTimeout: cfg.ShutdownTimeout,
	}
	s.srv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.recoverer)
	r.Use(s.withRemoteIP)
	r.Use(s.requestLogger)
	r.Use(obs.Instrument)
	r.Use(s.rateLimit)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Method(http.MethodGet, "/metrics", obs.Handler())

	r.Post("/api/login", s.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Use(s.csrfGuard)

		r.Post("/api/logout", s.handleLogout)

		r.Route("/api/flashes", func(r chi.Router) {
			r.Post("/", s.handleCreateFlash)
			r.Get("/", s.handleListFlashes)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetFlash)
				r.Put("/", s.handleUpdateFlash)
				r.Post("/submit", s.handleSubmit)
				r.Post("/approve", s.handleApprove)
				r.Post("/decision", s.handleDecision)
				r.Post("/publish", s.handlePublish)
				r.Post("/archive", s.handleArchive)
				r.Post("/close", s.handleClose)
				r.Post("/translations", s.handleCreateTranslation)
				r.Post("/lock", s.handleAcquireLock)
				r.Delete("/lock", s.handleReleaseLock)
			})
		})

		r.Route("/api/users", func(r chi.Router) {
			r.Post("/", s.handleCreateUser)
			r.Put("/{id}/role", s.handleChangeRole)
			r.Post("/{id}/deactivate", s.handleDeactivateUser)
		})
	})

	return r
}

// Run serves until ctx is canceled, then drains connections within the
// configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	s.log.Info("http server shutting down")
	return s.srv.Shutdown(shutdownCtx)
}
