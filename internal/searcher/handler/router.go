// Package handler serves the searcher's HTTP API.
package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/metrics"
	pkgmw "github.com/Adithya-Monish-Kumar-K/docrank/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/docrank/pkg/ratelimit"
)

// RouterConfig holds the optional router behaviour. Zero values disable it.
type RouterConfig struct {
	Timeout     time.Duration
	Limiter     *ratelimit.Limiter
	CORSOrigins []string
}

// NewRouter builds the searcher's HTTP handler.
//
// Route table:
//
//	GET    /api/v1/search?q=&k=        → ranked results (JSON)
//	POST   /api/v1/batch?k=            → CSV in, CSV out
//	GET    /api/v1/stats               → published snapshot statistics
//	GET    /api/v1/explain?q=          → query terms, doc freqs, feature weights
//	GET    /api/v1/analytics           → query volume, latency, top queries
//	GET    /api/v1/cache/stats         → result cache hit rate
//	POST   /api/v1/cache/invalidate    → drop cached results
//	GET    /health/live                → liveness
//	GET    /health/ready               → readiness, including the snapshot
//	GET    /metrics                    → Prometheus scrape (when m is set)
//
// Middleware chain (outermost first):
//
//	Recoverer → RequestID → AccessLog → Metrics → CORS → Timeout → handler
//
// The rate limiter applies to /api/v1 only, so probes and scrapes are never
// throttled.
func NewRouter(h *Handler, checker *health.Checker, m *metrics.Metrics, rc RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(pkgmw.RequestID)
	r.Use(pkgmw.AccessLog)
	if m != nil {
		r.Use(pkgmw.Metrics(m))
	}
	if len(rc.CORSOrigins) > 0 {
		r.Use(pkgmw.CORS(rc.CORSOrigins))
	}
	if rc.Timeout > 0 {
		r.Use(pkgmw.Timeout(rc.Timeout))
	}

	if m != nil {
		r.Handle("/metrics", metrics.Handler())
	}
	r.Get("/health/live", checker.LiveHandler())
	r.Get("/health/ready", checker.ReadyHandler())

	r.Route("/api/v1", func(r chi.Router) {
		if rc.Limiter != nil {
			r.Use(pkgmw.RateLimit(rc.Limiter))
		}
		r.Get("/search", h.Search)
		r.Post("/batch", h.Batch)
		r.Get("/stats", h.Stats)
		r.Get("/explain", h.Explain)
		r.Get("/analytics", h.Analytics)
		r.Get("/cache/stats", h.CacheStats)
		r.Post("/cache/invalidate", h.CacheInvalidate)
	})
	return r
}
