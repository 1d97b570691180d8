package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/rs/cors"
	"github.com/sammcj/mcp-pdf-reader/internal/telemetry"
	"github.com/sirupsen/logrus"
)

// HTTPOptions configures the SSE and streamable HTTP transports
type HTTPOptions struct {
	Port         string
	BaseURL      string
	EndpointPath string
	// AllowedOrigins for CORS; localhost origins when empty
	AllowedOrigins []string
}

// ServeStdio serves MCP over stdin/stdout until the input closes
func (s *Server) ServeStdio() error {
	s.logger.Debug("Starting stdio server")
	return mcpserver.ServeStdio(s.mcp)
}

// ServeSSE serves the legacy SSE transport until ctx is cancelled
func (s *Server) ServeSSE(ctx context.Context, opts HTTPOptions) error {
	sse := mcpserver.NewSSEServer(s.mcp, mcpserver.WithBaseURL(fmt.Sprintf("%s:%s", opts.BaseURL, opts.Port)))

	router := s.router()
	router.PathPrefix("/").Handler(telemetry.WrapHandler(sse, "mcp.sse"))

	return s.listen(ctx, opts, router, func(shutdownCtx context.Context) error {
		return sse.Shutdown(shutdownCtx)
	})
}

// ServeHTTP serves the streamable HTTP transport on opts.EndpointPath until ctx is cancelled
func (s *Server) ServeHTTP(ctx context.Context, opts HTTPOptions) error {
	streamable := mcpserver.NewStreamableHTTPServer(s.mcp,
		mcpserver.WithEndpointPath(opts.EndpointPath),
		mcpserver.WithHeartbeatInterval(30*time.Second),
		mcpserver.WithLogger(&logrusAdapter{logger: s.logger}),
	)

	router := s.router()
	router.Handle(opts.EndpointPath, telemetry.WrapHandler(streamable, "mcp.http"))

	return s.listen(ctx, opts, router, func(shutdownCtx context.Context) error {
		return streamable.Shutdown(shutdownCtx)
	})
}

// router creates the base router with the health check
func (s *Server) router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, `{"status":"ok","open_documents":%d}`, s.store.Len())
	}).Methods(http.MethodGet)
	return router
}

// Handler wraps the router with CORS
func Handler(router http.Handler, allowedOrigins []string) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"Mcp-Session-Id",
			"Mcp-Protocol-Version",
			"Last-Event-ID",
		},
		ExposedHeaders: []string{
			"Mcp-Session-Id",
		},
		MaxAge: 300,
	})
	return c.Handler(router)
}

// listen runs an http.Server until ctx is cancelled, then shuts down the transport and server
func (s *Server) listen(ctx context.Context, opts HTTPOptions, router *mux.Router, shutdownTransport func(context.Context) error) error {
	server := &http.Server{
		Addr:              ":" + opts.Port,
		Handler:           Handler(router, opts.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	s.logger.WithFields(logrus.Fields{
		"port":      opts.Port,
		"transport": s.transport,
	}).Info("Starting HTTP server")

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("HTTP server failed: %w", err)
	case <-ctx.Done():
		s.logger.Info("Shutdown signal received, stopping HTTP server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := shutdownTransport(shutdownCtx); err != nil {
		s.logger.WithError(err).Warn("MCP transport shutdown failed")
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown failed: %w", err)
	}

	s.logger.Info("HTTP server stopped gracefully")
	return nil
}

// logrusAdapter adapts logrus.Logger to the mcp-go util.Logger interface
type logrusAdapter struct {
	logger *logrus.Logger
}

func (l *logrusAdapter) Infof(format string, args ...any) {
	l.logger.Infof(format, args...)
}

func (l *logrusAdapter) Errorf(format string, args ...any) {
	l.logger.Errorf(format, args...)
}
