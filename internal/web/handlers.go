// Package web is the HTTP front door: postcode lookup, calendar feeds,
// health/stats, and the admin sync surface.
package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/PoliceEvents/PE-Backend/internal/calendar"
	"github.com/PoliceEvents/PE-Backend/internal/location"
	"github.com/PoliceEvents/PE-Backend/internal/logger"
	"github.com/PoliceEvents/PE-Backend/internal/store"
	syncpkg "github.com/PoliceEvents/PE-Backend/internal/sync"
)

// Handler bundles the services the routes need.
type Handler struct {
	Location  *location.Service
	Calendar  *calendar.Service
	Store     *store.Store
	Scheduler *syncpkg.Scheduler
	Tracker   *syncpkg.Tracker
}

type lookupRequest struct {
	Postcode string `json:"postcode"`
}

type lookupResponse struct {
	ForceID           string `json:"force_id"`
	NeighbourhoodID   string `json:"neighbourhood_id"`
	NeighbourhoodName string `json:"neighbourhood_name"`
	CalendarURL       string `json:"calendar_url"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// LookupHandler resolves a postcode to its neighbourhood and calendar URL.
func (h *Handler) LookupHandler(w http.ResponseWriter, r *http.Request) {
	var req lookupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	postcode := strings.TrimSpace(req.Postcode)
	if postcode == "" {
		http.Error(w, "Postcode is required", http.StatusBadRequest)
		return
	}

	n, err := h.Location.FindByPostcode(r.Context(), postcode)
	switch {
	case errors.Is(err, location.ErrNoLookupKey):
		http.Error(w, "Postcode lookup is not configured", http.StatusServiceUnavailable)
		return
	case errors.Is(err, location.ErrPostcodeNotFound), errors.Is(err, store.ErrNotFound):
		http.Error(w, fmt.Sprintf("No police neighbourhood found for postcode %s", postcode), http.StatusNotFound)
		return
	case err != nil:
		lg := logger.L()
		lg.Error().Str("postcode", postcode).Err(err).Msg("postcode lookup failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	calendarURL := fmt.Sprintf("%s://%s/calendar/%s/%s.ics", scheme, r.Host, n.ForceID, n.NeighbourhoodID)

	writeJSON(w, http.StatusOK, lookupResponse{
		ForceID:           n.ForceID,
		NeighbourhoodID:   n.NeighbourhoodID,
		NeighbourhoodName: n.Name,
		CalendarURL:       calendarURL,
	})
}

// CalendarHandler serves the .ics feed for one neighbourhood.
func (h *Handler) CalendarHandler(w http.ResponseWriter, r *http.Request) {
	forceID := chi.URLParam(r, "forceID")
	neighbourhoodID := chi.URLParam(r, "neighbourhoodID")

	data, err := h.Calendar.GenerateFeed(r.Context(), forceID, neighbourhoodID)
	if err != nil {
		lg := logger.L()
		lg.Error().Str("force", forceID).Str("neighbourhood", neighbourhoodID).
			Err(err).Msg("calendar generation failed")
		http.Error(w, "Error generating calendar", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/calendar")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%s_%s.ics", forceID, neighbourhoodID))
	_, _ = w.Write(data)
}

// HealthHandler reports liveness plus the current row count.
func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	count, err := h.Store.Count(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "healthy",
		"neighbourhoods": count,
	})
}

// StatsHandler exposes storage aggregates alongside the live sync snapshot.
func (h *Handler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Store.GetStats(r.Context())
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"store": stats,
		"sync":  h.Tracker.Snapshot(),
	})
}

// SyncTriggerHandler enqueues a full sync. The run happens on the background
// worker; the caller gets an acknowledgment and polls the status endpoint.
func (h *Handler) SyncTriggerHandler(w http.ResponseWriter, r *http.Request) {
	if !h.Scheduler.TriggerFull() {
		writeJSON(w, http.StatusConflict, map[string]string{
			"status":  "rejected",
			"message": "A sync is already queued or in progress",
		})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":  "scheduled",
		"message": "Sync queued; poll /admin/sync/status for progress",
	})
}

// SyncStatusHandler returns the tracker snapshot verbatim.
func (h *Handler) SyncStatusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Tracker.Snapshot())
}
