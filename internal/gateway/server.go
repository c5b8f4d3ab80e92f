package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)

	// Public.
	r.Get("/health", g.handleHealth())
	r.Handle("/metrics", promhttp.HandlerFor(g.gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		if g.config.Auth.IsConfigured() {
			r.Use(authMiddleware(g.config.Auth, g.logger))
		}

		r.Get("/status", g.handleStatus())
		r.Route("/api", func(r chi.Router) {
			r.Get("/sessions", g.handleListSessions())
			r.Route("/sessions/{chat}", func(r chi.Router) {
				r.Use(g.sessionContext)
				r.Get("/", g.handleGetSession())
				r.Get("/history", g.handleGetHistory())
				r.Delete("/history", g.handleClearHistory())
				r.Post("/messages", g.handleSendMessage())
				r.Post("/configure", g.handleConfigure())
				r.Get("/models", g.handleListModels())
				r.Post("/probe", g.handleProbe())
			})
			r.Post("/generate", g.handleGenerate())
			r.Get("/missions", g.handleListMissions())
			r.Post("/missions", g.handleStartMission())
			r.Get("/missions/{id}", g.handleGetMission())
		})
		r.Get("/ws/sessions/{chat}/events", g.handleEvents())
	})

	return r
}
