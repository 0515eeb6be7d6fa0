package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/graphctx/internal/ctxlog"
)

// slowRequest is the duration above which a request is logged as slow.
const slowRequest = 500 * time.Millisecond

// RequestIDHeader carries the request id back to the client.
const RequestIDHeader = "X-Request-Id"

// responseWriter captures the status code written by a handler.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

// requestLogger attaches a logger carrying a fresh request_id to the
// request context and logs completion: INFO for success, WARN for 4xx and
// ERROR for 5xx.
func requestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			id := uuid.NewString()
			logger := base.With("request_id", id)
			ctx := ctxlog.WithLogger(r.Context(), logger)

			w.Header().Set(RequestIDHeader, id)
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			logger.Debug("request started", "method", r.Method, "path", r.URL.Path)

			next.ServeHTTP(rw, r.WithContext(ctx))

			elapsed := time.Since(start)
			level := slog.LevelInfo
			switch {
			case rw.statusCode >= 500:
				level = slog.LevelError
			case rw.statusCode >= 400:
				level = slog.LevelWarn
			}
			logger.Log(ctx, level, "request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rw.statusCode,
				"duration_ms", elapsed.Milliseconds(),
			)
			if elapsed > slowRequest {
				logger.Warn("slow request", "method", r.Method, "path", r.URL.Path, "duration", elapsed)
			}
		})
	}
}

// recoverPanics turns a handler panic into a 500. The transaction manager
// has already rolled back by the time the panic reaches here.
func recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				if p == http.ErrAbortHandler {
					panic(p)
				}
				writeError(w, r, fmt.Errorf("panic: %v", p), false)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// withTimeout bounds every request by d. A zero d leaves the request
// context as it is.
func withTimeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
