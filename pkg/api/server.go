package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/MathisTLD/multiparse/pkg/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/hlog"
)

const shutdownTimeout = 10 * time.Second

// NewRouter wires the API routes
func NewRouter(server *Server) http.Handler {
	m := server.metrics

	r := chi.NewRouter()

	// Middleware
	r.Use(hlog.NewHandler(server.logger))
	r.Use(requestIDMiddleware())
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Link", requestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Prometheus metrics endpoint (unprotected for scraping)
	r.Handle("/metrics", m.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if server.config.APIKey != "" {
			r.Use(m.InstrumentAuthMiddleware(apiKeyMiddleware(server.config.APIKey)))
		}

		r.Get("/health", m.InstrumentHandler("GET", "/api/v1/health", server.handleHealth))

		// Streams
		r.Post("/decode", m.InstrumentHandler("POST", "/api/v1/decode", server.handleDecode))
		r.Post("/capture", m.InstrumentHandler("POST", "/api/v1/capture", server.handleCapture))
		r.Get("/decode/ws", m.InstrumentHandler("GET", "/api/v1/decode/ws", server.handleDecodeWS))

		// Stored parts
		r.Get("/parts", m.InstrumentHandler("GET", "/api/v1/parts", server.handleListParts))
		r.Get("/parts/{id}", m.InstrumentHandler("GET", "/api/v1/parts/{id}", server.handleGetPart))
		r.Delete("/parts/{id}", m.InstrumentHandler("DELETE", "/api/v1/parts/{id}", server.handleDeletePart))
	})

	return r
}

// StartServer serves the API until ctx is cancelled, then shuts down
// gracefully
func StartServer(ctx context.Context, store IPartStore, config ServerConfig) error {
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("invalid port %d", config.Port)
	}

	m := metrics.New()
	server := NewServer(store, config, m)

	addr := net.JoinHostPort(config.Bind, strconv.Itoa(config.Port))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(server),
		ReadHeaderTimeout: 10 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	server.logger.Info().
		Str("addr", listener.Addr().String()).
		Bool("auth", config.APIKey != "").
		Msg("starting multiparse API server")

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	server.logger.Info().Msg("shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
