// Package http provides HTTP server implementation and request handlers for
// each process's health, readiness, and metrics surface.
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// writeJSON writes a small hand-rolled JSON response body.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// HealthHandler returns a simple liveness handler: 200 once the process is up.
func HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
}

// Pinger is satisfied by *sql.DB; kept as an interface so readiness checks
// can be tested without a live database.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// ReadinessChecker reports whether an ambient dependency (DB pool, broker
// channel) is currently usable.
type ReadinessChecker func(ctx context.Context) error

// ReadinessHandler returns a readiness handler that reports not-ready while
// the process is shutting down (ctx cancelled) or when any checker fails.
func ReadinessHandler(ctx context.Context, checkers ...ReadinessChecker) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
			return
		default:
		}

		checkCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		for _, check := range checkers {
			if err := check(checkCtx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "not ready",
					"error":  err.Error(),
				})
				return
			}
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
}

// DBReadinessChecker adapts a database pool into a ReadinessChecker.
func DBReadinessChecker(db Pinger) ReadinessChecker {
	return func(ctx context.Context) error {
		return db.PingContext(ctx)
	}
}
