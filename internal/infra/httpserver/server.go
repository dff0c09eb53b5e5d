// internal/infra/httpserver/server.go
package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

// Server exposes the health and echo endpoints next to the dispatcher.
type Server struct {
	httpServer *http.Server
	logger     *logrus.Logger
}

func New(port string, logger *logrus.Logger) *Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		render.JSON(w, req, map[string]string{"status": "ok"})
	})

	r.Get("/api/echo", func(w http.ResponseWriter, req *http.Request) {
		query := map[string]string{}
		for key, values := range req.URL.Query() {
			if len(values) > 0 {
				query[key] = values[0]
			}
		}
		render.JSON(w, req, map[string]any{
			"message": "poidh notification service",
			"query":   query,
		})
	})

	return &Server{
		httpServer: &http.Server{
			Addr:              ":" + port,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Infof("HTTP server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
