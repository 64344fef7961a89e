// Package server provides HTTP server initialization and lifecycle management
// for the Lantern graph API.
package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/lanternvc/lantern/internal/config"
	"github.com/lanternvc/lantern/internal/engine"
	"github.com/lanternvc/lantern/internal/llm"
	"github.com/lanternvc/lantern/internal/storage"
	"github.com/lanternvc/lantern/web/handlers"
)

// securityHeadersMiddleware adds security headers to all HTTP responses.
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// Start initializes and starts the HTTP server. Returns the actual address
// being listened on (useful for testing with port 0) and the progress hub
// for wiring pipeline stage broadcasts. runner may be nil, which disables
// the sync trigger endpoint with 503 responses. embedder may be nil, which
// degrades search to keyword matching.
func Start(ctx context.Context, cfg *config.Config, store storage.Store, runner handlers.SyncRunner, embedder llm.EmbeddingGenerator) (string, *handlers.ProgressHub, error) {
	mux := http.NewServeMux()

	hub := handlers.NewProgressHub()
	go hub.Run()

	// Query embeddings are cached: repeat searches for the same text should
	// not burn provider calls.
	queryCache := expirable.NewLRU[string, []float32](256, nil, 10*time.Minute)

	retrieval := engine.NewRetrieval(store, 0)
	scorer := engine.NewPathScorer(store, embedder, queryCache)
	api := handlers.NewAPIHandlers(store, cfg, retrieval, scorer)
	stats := handlers.NewStatsHandlers(store)

	apiMux := http.NewServeMux()
	apiMux.HandleFunc("GET /api/graph/initial", api.GetInitialGraph)
	apiMux.HandleFunc("POST /api/graph/expand", api.ExpandNode)
	apiMux.HandleFunc("GET /api/entities", api.ListEntities)
	apiMux.HandleFunc("GET /api/entities/{id}", api.GetEntity)
	apiMux.HandleFunc("DELETE /api/entities/{id}", api.DeleteEntity)
	apiMux.HandleFunc("GET /api/entities/{id}/warm-paths", api.GetWarmPaths)
	apiMux.HandleFunc("GET /api/search", api.Search)
	apiMux.HandleFunc("GET /api/stats", stats.GetStats)

	if runner != nil {
		sync := handlers.NewSyncHandlers(runner, store)
		apiMux.HandleFunc("POST /api/sync", sync.StartSync)
		apiMux.HandleFunc("GET /api/sync/status", sync.GetSyncStatus)
	} else {
		apiMux.HandleFunc("/api/sync", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"sync is not configured","code":"UNAVAILABLE"}`,
				http.StatusServiceUnavailable)
		})
	}

	// Health endpoint stays outside auth for monitoring.
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	})

	mux.Handle("/api/", handlers.RequireAuth(apiMux, cfg))
	mux.Handle("/ws", hub)

	rateLimiter := handlers.NewRateLimiter(cfg.Security.RatePerSec, cfg.Security.RateBurst)
	handler := handlers.RateLimitMiddleware(mux, rateLimiter)
	handler = handlers.RequestID(handler)
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
		return "", nil, fmt.Errorf("server: failed to listen on %s: %w", addr, err)
	}
	actualAddr := listener.Addr().String()

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("server: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("server: shutdown error: %v", err)
		}
		hub.Stop()
	}()

	return actualAddr, hub, nil
}
