// Пакет server — HTTP-сервер гостевой книги с graceful shutdown.
// Без TLS: TLS termination выполняет reverse proxy.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/MTL667/denbeyers/internal/api/handlers"
	"github.com/MTL667/denbeyers/internal/api/middleware"
	"github.com/MTL667/denbeyers/internal/config"
	"github.com/MTL667/denbeyers/internal/domain/rbac"
)

// Handlers — обработчики, подключаемые к маршрутам.
type Handlers struct {
	Auth   *handlers.AuthHandler
	Media  *handlers.MediaHandler
	Health *handlers.HealthHandler
}

// Server — HTTP-сервер гостевой книги.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с настроенными маршрутами и middleware.
func New(cfg *config.Config, logger *slog.Logger, h Handlers, sessionAuth *middleware.SessionAuth) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewRouter(cfg, logger, h, sessionAuth),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// NewRouter собирает маршруты.
// Публичны: /health/*, /metrics, /auth/*, GET /media и GET /media/{id}/file.
// /owner/* и /admin/* доступны только ролям ADMIN и OWNER.
func NewRouter(cfg *config.Config, logger *slog.Logger, h Handlers, sessionAuth *middleware.SessionAuth) http.Handler {
	router := chi.NewRouter()

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	router.Use(chimw.RequestID)
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.CORS(cfg.CORSAllowedOrigins))

	router.Get("/health/live", h.Health.HealthLive)
	router.Get("/health/ready", h.Health.HealthReady)
	router.Get("/metrics", h.Health.GetMetrics)

	router.Route("/auth", func(r chi.Router) {
		r.Get("/login", h.Auth.Login)
		r.Get("/callback", h.Auth.Callback)
		r.Get("/session", h.Auth.Session)
		r.Post("/logout", h.Auth.Logout)
		r.Post("/refresh", h.Auth.Refresh)
	})

	router.Route("/media", func(r chi.Router) {
		r.Get("/", h.Media.ListPublic)
		r.Get("/{id}/file", h.Media.PublicFile)

		r.Group(func(r chi.Router) {
			r.Use(sessionAuth.RequireAuth())
			r.Post("/", h.Media.Create)
			r.Post("/presign", h.Media.PresignUpload)
		})
	})

	router.Group(func(r chi.Router) {
		r.Use(sessionAuth.RequireAuth())
		r.Use(middleware.RequireRole(rbac.Moderators...))

		r.Post("/owner/media/presign", h.Media.PresignOwnerUpload)
		r.Post("/owner/media", h.Media.CreateOwnerPost)
		r.Patch("/owner/media/{id}", h.Media.Update)
		r.Delete("/owner/media/{id}", h.Media.Delete)

		r.Get("/admin/media", h.Media.ListAdmin)
		r.Get("/admin/media/{id}/file", h.Media.AdminFile)
	})

	return router
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
