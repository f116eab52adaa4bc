// internal/utils/metrics/server.go
package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// HealthFunc reports whether the node can serve.
type HealthFunc func(ctx context.Context) error

// StatsFunc looks up the running totals of a bettor in a currency.
type StatsFunc func(ctx context.Context, bettor, currency string) (any, error)

// ServerOption adds routes to the server.
type ServerOption func(r chi.Router)

// WithStats serves GET /stats/{bettor}/{currency} from fn.
func WithStats(fn StatsFunc) ServerOption {
	return func(r chi.Router) {
		r.Get("/stats/{bettor}/{currency}", func(w http.ResponseWriter, req *http.Request) {
			stats, err := fn(req.Context(), chi.URLParam(req, "bettor"), chi.URLParam(req, "currency"))
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(stats)
		})
	}
}

// NewServer builds an HTTP server exposing /metrics and /healthz. The caller
// owns ListenAndServe and Shutdown.
func NewServer(addr string, c *Collector, healthFn HealthFunc, opts ...ServerOption) *http.Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", c.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 500*time.Millisecond)
		defer cancel()

		if healthFn != nil {
			if err := healthFn(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = fmt.Fprintf(w, "unhealthy: %v", err)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	for _, opt := range opts {
		opt(r)
	}

	return &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
