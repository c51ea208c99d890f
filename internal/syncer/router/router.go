// Package router wires the sync routes and applies the middleware chain.
package router

import (
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/content-search-sync/internal/syncer/handler"
	syncmw "github.com/Adithya-Monish-Kumar-K/content-search-sync/internal/syncer/middleware"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/content-search-sync/pkg/metrics"
	pkgmw "github.com/Adithya-Monish-Kumar-K/content-search-sync/pkg/middleware"
)

// Options configures the middleware chain.
type Options struct {
	AllowOrigins   []string
	RequestTimeout time.Duration
}

// New builds the sync service's HTTP handler.
//
// Route table:
//
//	POST|OPTIONS /api/v1/init          → full sync
//	GET          /api/v1/init/status   → last full sync status
//	POST         /api/v1/webhook       → webhook reconciliation
//	GET          /health/live          → liveness
//	GET          /health/ready         → readiness
//
// Init and webhook check their own methods so that unsupported ones get the
// handler's JSON 405.
//
// Middleware chain (outermost first):
//
//	Recover → RequestID → CORS → Metrics → Timeout → mux
func New(h *handler.Handler, checker *health.Checker, m *metrics.Metrics, opts Options) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	mux.HandleFunc("/api/v1/init", h.Init)
	mux.HandleFunc("GET /api/v1/init/status", h.InitStatus)
	mux.HandleFunc("/api/v1/webhook", h.Webhook)

	var chain http.Handler = mux
	chain = pkgmw.Timeout(opts.RequestTimeout)(chain)
	if m != nil {
		chain = pkgmw.Metrics(m)(chain)
	}
	chain = syncmw.CORS(syncmw.DefaultCORSConfig(opts.AllowOrigins...))(chain)
	chain = pkgmw.RequestID(chain)
	chain = pkgmw.Recover(chain)
	return chain
}
