package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// SetupRoutes wires the public and admin endpoints onto a router.
func (h *Handler) SetupRoutes() http.Handler {
	r := chi.NewRouter()

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("Server is up!\n"))
	})
	r.Post("/lookup", h.LookupHandler)
	r.Get("/calendar/{forceID}/{neighbourhoodID}.ics", h.CalendarHandler)
	r.Get("/health", h.HealthHandler)
	r.Get("/stats", h.StatsHandler)

	r.Route("/admin", func(r chi.Router) {
		r.Post("/sync", h.SyncTriggerHandler)
		r.Get("/sync/status", h.SyncStatusHandler)
	})

	return r
}
