// Package diag implements the optional, read-only diagnostics HTTP
// endpoint: current radio state, per-station snapshot ages, and the
// dispatcher's timestamps, as JSON. It listens on whatever address the
// caller passes (--diag-addr) and is disabled unless one is given; it
// touches no write path and so cannot violate any invariant.
package diag

import (
	"encoding/json"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/gorilla/mux"
)

// RadioStatus is a snapshot of the radio driver's current state.
type RadioStatus struct {
	State string `json:"state"`
}

// StationStatus is a snapshot of one station's freshness.
type StationStatus struct {
	ID         int     `json:"id"`
	Name       string  `json:"name"`
	LastUpdate string  `json:"last_update,omitempty"`
	AgeSeconds float64 `json:"age_seconds"`
}

// Status is the full JSON document served at /status.
type Status struct {
	Radio            RadioStatus     `json:"radio"`
	Stations         []StationStatus `json:"stations"`
	LastNeighbourSeen string         `json:"last_neighbour_seen,omitempty"`
	LastWeatherSent   string         `json:"last_weather_sent,omitempty"`
	LastNamesSent     string         `json:"last_names_sent,omitempty"`
}

// Snapshotter produces the current Status on demand. Implemented by
// whatever owns the radio driver, dispatcher and station manager — kept as
// a narrow interface so this package depends on nothing but the shape of
// the data it serves.
type Snapshotter interface {
	Snapshot() Status
}

// Server serves Snapshotter's output as JSON at /status.
type Server struct {
	router *mux.Router
	snap   Snapshotter
	log    *log.Entry
}

// New builds a diagnostics Server bound to snap.
func New(snap Snapshotter) *Server {
	s := &Server{
		router: mux.NewRouter(),
		snap:   snap,
		log:    log.WithField("component", "diag"),
	}
	s.router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.snap.Snapshot()); err != nil {
		s.log.WithError(err).Warn("failed to write /status response")
	}
}

// FormatTime renders t in RFC3339, or "" for the zero value, matching the
// omitempty fields above.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
