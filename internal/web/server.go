// Package web provides an HTTP status server for the reptile-core daemon.
package web

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sweeney/reptile-core/internal/history"
	"github.com/sweeney/reptile-core/internal/status"
)

const (
	defaultHistoryLimit = 60
	maxHistoryLimit     = 1000
	queryTimeout        = 5 * time.Second
)

// History is the read side of the history recorder.
type History interface {
	Recent(ctx context.Context, n int) ([]history.Record, error)
	Profiles(ctx context.Context, n int) ([]history.ProfileChange, error)
}

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	history    History
}

// New creates a Server that reads state from the given tracker. hist may be
// nil, in which case the history endpoints are not registered.
func New(addr string, tracker *status.Tracker, hist History) *Server {
	s := &Server{tracker: tracker, history: hist}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Get("/index.html", s.handleIndex)
	r.Get("/index.json", s.handleJSON)

	if s.history != nil {
		r.Route("/api", func(r chi.Router) {
			r.Get("/history", s.handleHistory)
			r.Get("/profiles", s.handleProfiles)
		})
	}
	return r
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

// HistoryJSON is one row of /api/history.
type HistoryJSON struct {
	Timestamp   string `json:"timestamp"`
	Temperature int    `json:"temperature"`
	Humidity    int    `json:"humidity"`
	LightOn     bool   `json:"light_on"`
	Profile     string `json:"profile"`
}

// ProfileChangeJSON is one row of /api/profiles.
type ProfileChangeJSON struct {
	Timestamp string `json:"timestamp"`
	Name      string `json:"name"`
	TempMin   int    `json:"temp_min"`
	TempMax   int    `json:"temp_max"`
	HumMin    int    `json:"humidity_min"`
	HumMax    int    `json:"humidity_max"`
	LightOn   string `json:"light_on"`
	LightOff  string `json:"light_off"`
}

// ErrorJSON is the body of a failed API request.
type ErrorJSON struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func limitParam(r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultHistoryLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxHistoryLimit {
		return 0, false
	}
	return n, true
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	n, ok := limitParam(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, ErrorJSON{Error: "limit must be between 1 and 1000"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	recs, err := s.history.Recent(ctx, n)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorJSON{Error: err.Error()})
		return
	}

	out := make([]HistoryJSON, 0, len(recs))
	for _, rec := range recs {
		out = append(out, HistoryJSON{
			Timestamp:   rec.Timestamp.UTC().Format(time.RFC3339),
			Temperature: rec.Temperature,
			Humidity:    rec.Humidity,
			LightOn:     rec.LightOn,
			Profile:     rec.Profile,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleProfiles(w http.ResponseWriter, r *http.Request) {
	n, ok := limitParam(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, ErrorJSON{Error: "limit must be between 1 and 1000"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	changes, err := s.history.Profiles(ctx, n)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorJSON{Error: err.Error()})
		return
	}

	out := make([]ProfileChangeJSON, 0, len(changes))
	for _, c := range changes {
		p := c.Profile
		out = append(out, ProfileChangeJSON{
			Timestamp: c.At.UTC().Format(time.RFC3339),
			Name:      p.Name,
			TempMin:   p.Temps.Min,
			TempMax:   p.Temps.Max,
			HumMin:    p.Humidity.Min,
			HumMax:    p.Humidity.Max,
			LightOn:   p.Light.On.String(),
			LightOff:  p.Light.Off.String(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}
