// Package http exposes the session over a small JSON API.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"coinlog/internal/config"
	applog "coinlog/internal/log"
	"coinlog/internal/middleware/ratelimit"
	"coinlog/internal/middleware/security"
	"coinlog/internal/middleware/trace"
	"coinlog/internal/session"
)

type Server struct {
	http.Server
	sess  *session.Session
	chain *config.Chain

	limiter *ratelimit.Limiter
	tracer  *trace.Middleware
	headers *security.HeadersMiddleware

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, sess *session.Session, chain *config.Chain) *Server {
	mux := http.NewServeMux()

	logger := applog.New(applog.Config{
		Handler:   slog.Default().Handler(),
		Component: applog.ComponentHTTP,
	})

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
		},
		sess:    sess,
		chain:   chain,
		limiter: ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		tracer:  trace.NewMiddleware(clientIP, applog.NewStructuredLogger(logger)),
		headers: security.NewHeadersMiddleware(security.DefaultHeadersConfig()),
	}

	mux.HandleFunc("/records", s.handleRecords)
	mux.HandleFunc("/records/latest", s.handleDeleteLast)
	mux.HandleFunc("/collection", s.handleCollection)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/sync", s.handleSync)
	mux.HandleFunc("/backup", s.handleBackup)
	mux.HandleFunc("/config", s.handleConfig)
	mux.HandleFunc("/activity", s.handleActivity)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)

	// Outermost to innermost: security headers, context logger, tracing,
	// request-scoped logger enrichment, rate limiting for mutations.
	requestID := func(r *http.Request) string { return trace.GetRequestID(r.Context()) }
	handler := applog.RequestIDMiddleware(requestID)(s.withRateLimit(mux))
	handler = s.tracer.Middleware(handler)
	handler = applog.Middleware(logger)(handler)
	s.Server.Handler = s.headers.Middleware(handler)

	return s
}

// withRateLimit applies the per-client limit to mutating methods only.
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}

		if !s.limiter.Allow(clientIP(r)) {
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP extracts the client address, considering proxies.
func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return ip
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	return r.RemoteAddr
}

// Shutdown gracefully shuts down the server and cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		if s.limiter != nil {
			s.limiter.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.sess.Loaded() {
		writeError(w, http.StatusServiceUnavailable, "collection not loaded")
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
