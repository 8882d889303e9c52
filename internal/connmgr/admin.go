package connmgr

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/webitel/im-chat-core/internal/backpressure"
	"github.com/webitel/im-chat-core/internal/cache"
	domainregistry "github.com/webitel/im-chat-core/internal/domain/registry"
	"github.com/webitel/im-chat-core/internal/stats"
)

// NewAdminRouter exposes the read-only operational surface: health and a
// stats snapshot. The full administrative UI is a non-goal; these two
// routes exist for probes and debugging only.
//
// The framed-protocol websocket endpoint and the hub-delivery ws/lp
// handlers are mounted by cmd, which owns all HTTP composition.
func NewAdminRouter(
	reporter *stats.Reporter,
	cacheRef *cache.Cache,
	gate *backpressure.Controller,
	hub domainregistry.Hubber,
) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		rep := reporter.Evaluate()
		w.Header().Set("Content-Type", "application/json")
		if !rep.Healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(rep)
	})

	r.Get("/debug/stats", func(w http.ResponseWriter, req *http.Request) {
		payload := map[string]any{
			"counters":     reporter.Collector().Snapshot(),
			"cache":        cacheRef.Snapshot(),
			"backpressure": map[string]any{"level": gate.Level().String(), "rates": gate.Rates(), "dropped": gate.DroppedCount()},
			"hub":          hub.Stats(),
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(payload)
	})

	return r
}
