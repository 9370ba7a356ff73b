// Package api exposes the exchange over JSON per the external interface
// contract. Authentication, sessions and password handling live in the
// fronting collaborator; this layer trusts the identity header it is
// handed.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"vidar/internal/config"
	"vidar/internal/engine"
)

type Server struct {
	server *http.Server
}

func NewServer(cfg config.ServerConfig, exchange *engine.Exchange) *Server {
	handlers := NewHandlers(exchange)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handlers.HandleHealth)

	mux.HandleFunc("POST /api/users", handlers.HandleRegister)
	mux.HandleFunc("GET /api/users/me", handlers.HandleProfile)
	mux.HandleFunc("DELETE /api/users/{id}", handlers.HandleDeleteUser)

	mux.HandleFunc("POST /api/orders", handlers.HandleSubmitOrder)
	mux.HandleFunc("DELETE /api/orders/{id}", handlers.HandleCancelOrder)

	mux.HandleFunc("GET /api/symbols", handlers.HandleListSymbols)
	mux.HandleFunc("GET /api/symbols/{id}/book", handlers.HandleBookSnapshot)
	mux.HandleFunc("GET /api/symbols/{id}/trades", handlers.HandleRecentTrades)

	mux.HandleFunc("POST /api/admin/users", handlers.HandleCreateUser)
	mux.HandleFunc("POST /api/admin/symbols", handlers.HandleCreateSymbol)
	mux.HandleFunc("DELETE /api/admin/symbols/{id}", handlers.HandleDeleteSymbol)
	mux.HandleFunc("POST /api/admin/symbols/{id}/mint", handlers.HandleMint)
	mux.HandleFunc("POST /api/admin/symbols/{id}/burn", handlers.HandleBurn)

	return &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
			Handler:      requestLogger(mux),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

func (s *Server) Run() error {
	log.Info().Str("addr", s.server.Addr).Msg("api server running")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("api server shutting down")
	return s.server.Shutdown(ctx)
}

// requestLogger tags each request with an id and logs its outcome.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		w.Header().Set("X-Request-ID", requestID)

		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debug().
			Str("requestId", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("request served")
	})
}
