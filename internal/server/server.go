// Package server provides HTTP server initialization and lifecycle
// management for the scopedb web API.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/scrypster/scopedb/internal/audit"
	"github.com/scrypster/scopedb/internal/config"
	"github.com/scrypster/scopedb/internal/engine"
	"github.com/scrypster/scopedb/internal/metrics"
	"github.com/scrypster/scopedb/internal/pivot"
	"github.com/scrypster/scopedb/internal/storage"
	"github.com/scrypster/scopedb/web/handlers"
)

// Deps carries the constructed components the server routes to.
type Deps struct {
	Orchestrator *engine.Orchestrator
	Store        storage.ProfileStore
	Metrics      *metrics.Registry
	Audit        *audit.Log
	Pivot        *pivot.Executor
	Hub          *handlers.EventHub
	Logger       *zap.Logger
}

// securityHeadersMiddleware adds security headers to all HTTP responses.
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// getOnly dispatches GET requests to handler and rejects other methods.
// Every data endpoint is read-only and idempotent.
func getOnly(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		handler(w, r)
	}
}

// Start initializes and starts the HTTP server. It returns the actual
// address being listened on (useful for testing with port 0). The server
// shuts down gracefully when ctx is cancelled.
func Start(ctx context.Context, cfg *config.Config, deps Deps) (string, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	api := handlers.NewAPIHandlers(deps.Orchestrator, deps.Store, cfg,
		deps.Metrics, deps.Audit, deps.Pivot, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/search", getOnly(api.Search))
	mux.HandleFunc("/profile", getOnly(api.Profile))
	mux.HandleFunc("/health", getOnly(api.Health))
	mux.HandleFunc("/entities", getOnly(api.ListEntities))
	mux.HandleFunc("/entities/{id}", getOnly(api.GetEntity))
	mux.HandleFunc("/export", getOnly(api.Export))
	mux.HandleFunc("/pivot", getOnly(api.Pivot))
	mux.HandleFunc("/graph", getOnly(api.Graph))
	mux.HandleFunc("/metrics", getOnly(api.Metrics))
	mux.HandleFunc("/audit/root", getOnly(api.AuditRoot))
	if deps.Hub != nil {
		mux.Handle("/ws", deps.Hub)
	}

	// Wrap with auth, then rate limiting, then security headers.
	rateLimiter := handlers.NewRateLimiter(cfg.Server.RatePerSec, cfg.Server.RateBurst)
	handler := handlers.RequireAuth(mux, cfg)
	handler = handlers.RateLimitMiddleware(handler, rateLimiter)
	handler = securityHeadersMiddleware(handler)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	actualAddr := listener.Addr().String()

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", zap.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
		if deps.Hub != nil {
			deps.Hub.Stop()
		}
	}()

	logger.Info("server listening", zap.String("addr", actualAddr))
	return actualAddr, nil
}
