package web

import (
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"

	"dashcal/internal/clock"
	"dashcal/internal/config"
	"dashcal/internal/ics"
	"dashcal/internal/layout"
	appLog "dashcal/internal/log"
	"dashcal/internal/model"
	"dashcal/internal/store"
	"dashcal/internal/weather"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 << 10

// Generator turns a prompt into events. A nil slice with a nil error means
// "nothing to apply".
type Generator interface {
	Generate(ctx context.Context, prompt string) ([]model.Event, error)
}

// Deps are the collaborators the server exposes over HTTP.
type Deps struct {
	Store     *store.MemoryStore
	Weather   *weather.Service
	Generator Generator
	Grid      layout.Grid

	// PreviewPath is the PNG written by the capture job.
	PreviewPath string
}

// Server is the dashboard's HTTP surface: JSON API, clock stream, preview
// image and the embedded single-page dashboard.
type Server struct {
	cfg  *config.Config
	deps Deps
	mux  *http.ServeMux

	validate *validator.Validate

	// generating is set while a schedule generation is in flight; a second
	// trigger is refused rather than queued.
	generating atomic.Bool

	now          func() time.Time
	tickInterval time.Duration
}

// embeddedStatic holds the dashboard shell: page, script, styles, web app
// manifest and the offline service worker.
//
//go:embed all:static
var embeddedStatic embed.FS

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, deps Deps) *Server {
	s := &Server{
		cfg:          cfg,
		deps:         deps,
		mux:          http.NewServeMux(),
		validate:     validator.New(),
		now:          time.Now,
		tickInterval: clock.DefaultInterval,
	}
	s.registerRoutes()
	return s
}

// Handler returns the root http.Handler, wrapped with basic auth when
// configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled")
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="dashcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Serve runs the HTTP server until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("GET /api/events.ics", s.handleEventsICS)
	s.mux.HandleFunc("POST /api/schedule", s.handleSchedule)
	s.mux.HandleFunc("GET /api/weather", s.handleWeather)
	s.mux.HandleFunc("POST /api/location", s.handleLocation)
	s.mux.HandleFunc("GET /api/clock", s.handleClock)
	s.mux.HandleFunc("GET /preview.png", s.handlePreview)

	// Everything else is the embedded dashboard.
	s.mux.Handle("GET /", s.staticFileServer())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// gridDTO describes the hour grid so the client can draw hour rows.
type gridDTO struct {
	StartHour   int     `json:"start_hour"`
	WindowHours int     `json:"window_hours"`
	HourHeight  float64 `json:"hour_height"`
	MinHeight   float64 `json:"min_height"`
	TotalHeight float64 `json:"total_height"`
	Hours       []int   `json:"hours"`
}

// eventsResponse is the JSON response shape for /api/events.
type eventsResponse struct {
	Events   []model.Event       `json:"events"`
	Boxes    []layout.Box        `json:"boxes"`
	Now      layout.NowIndicator `json:"now"`
	Grid     gridDTO             `json:"grid"`
	Timezone string              `json:"timezone"`
	Version  uint64              `json:"version"`
	Seeded   bool                `json:"seeded"`
}

// handleEvents returns the stored events together with their computed grid
// placement. The store version doubles as ETag.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	version := s.deps.Store.Version()
	etag := `"v` + strconv.FormatUint(version, 10) + `"`

	// The live now indicator comes from /api/clock; a cached body only has a
	// stale initial position.
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	events := s.deps.Store.All()
	g := s.deps.Grid
	resp := eventsResponse{
		Events: events,
		Boxes:  g.Layout(events),
		Now:    g.Now(s.now()),
		Grid: gridDTO{
			StartHour:   g.StartHour,
			WindowHours: g.WindowHours,
			HourHeight:  g.HourHeight,
			MinHeight:   g.MinHeight,
			TotalHeight: g.TotalHeight(),
			Hours:       g.Hours(),
		},
		Timezone: locationName(g.Location),
		Version:  version,
		Seeded:   s.deps.Store.Seeded(),
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleEventsICS exports the current schedule as iCalendar.
func (s *Server) handleEventsICS(w http.ResponseWriter, _ *http.Request) {
	body := ics.Export(s.deps.Store.All(), s.now())
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="schedule.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

type scheduleRequest struct {
	Prompt string `json:"prompt" validate:"max=2000"`
}

type scheduleResponse struct {
	Replaced int           `json:"replaced"`
	Events   []model.Event `json:"events"`
	Version  uint64        `json:"version"`
}

// handleSchedule runs one AI schedule generation and, on success, replaces
// the whole event store.
//
//   - 204: blank prompt, generation disabled, or an empty schedule; the
//     store is untouched.
//   - 409: another generation is still running.
//   - 502: the generator failed; the store is untouched.
func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "prompt is too long")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if !s.generating.CompareAndSwap(false, true) {
		writeError(w, http.StatusConflict, "a schedule generation is already in progress")
		return
	}
	defer s.generating.Store(false)

	// The generation is not canceled when the browser goes away; the
	// generator bounds it with its own timeout.
	ctx := context.WithoutCancel(r.Context())

	events, err := s.deps.Generator.Generate(ctx, req.Prompt)
	if err != nil {
		appLog.Error("schedule generation failed", err, "prompt_len", len(req.Prompt))
		writeError(w, http.StatusBadGateway, "failed to generate schedule")
		return
	}
	if len(events) == 0 {
		appLog.Info("schedule generation produced no events; keeping current schedule")
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := s.deps.Store.ReplaceAll(events); err != nil {
		appLog.Error("event store replace failed", err, "count", len(events))
		writeError(w, http.StatusInternalServerError, "failed to apply schedule")
		return
	}

	appLog.Info("schedule replaced", "count", len(events))
	writeJSON(w, http.StatusOK, scheduleResponse{
		Replaced: len(events),
		Events:   s.deps.Store.All(),
		Version:  s.deps.Store.Version(),
	})
}

type weatherResponse struct {
	weather.Snapshot
	Icon    weather.Icon `json:"icon"`
	Refined bool         `json:"refined"`
}

func (s *Server) weatherResponse(snap weather.Snapshot) weatherResponse {
	return weatherResponse{
		Snapshot: snap,
		Icon:     snap.Icon(),
		Refined:  s.deps.Weather.Refined(),
	}
}

func (s *Server) handleWeather(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.weatherResponse(s.deps.Weather.Current()))
}

type locationRequest struct {
	Latitude  *float64 `json:"latitude" validate:"required,latitude"`
	Longitude *float64 `json:"longitude" validate:"required,longitude"`
}

// handleLocation receives the browser's one geolocation fix. Only the first
// report refines the weather; later ones get 409 and the current snapshot.
func (s *Server) handleLocation(w http.ResponseWriter, r *http.Request) {
	var req locationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid coordinates")
		return
	}

	at := weather.Coordinates{Latitude: *req.Latitude, Longitude: *req.Longitude}
	snap, err := s.deps.Weather.Refine(r.Context(), at)
	if errors.Is(err, weather.ErrAlreadyRefined) {
		writeJSON(w, http.StatusConflict, s.weatherResponse(snap))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to refine weather")
		return
	}
	writeJSON(w, http.StatusOK, s.weatherResponse(snap))
}

// clockTick is one server-sent clock event.
type clockTick struct {
	clock.Readout
	Now       time.Time           `json:"now"`
	Indicator layout.NowIndicator `json:"indicator"`
}

func (s *Server) tick(now time.Time) clockTick {
	return clockTick{
		Readout:   clock.Format(now, s.deps.Grid.Location),
		Now:       now.In(gridLocation(s.deps.Grid)),
		Indicator: s.deps.Grid.Now(now),
	}
}

// handleClock streams one clock tick per interval as server-sent events.
// Each connected view owns its own ticker, stopped when the view goes away.
func (s *Server) handleClock(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ticks := make(chan time.Time, 1)
	tk := clock.Start(s.tickInterval, func(now time.Time) {
		select {
		case ticks <- now:
		default:
			// Slow reader; drop this tick, the next one supersedes it.
		}
	})
	defer tk.Stop()

	send := func(now time.Time) error {
		data, err := json.Marshal(s.tick(now))
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "event: tick\ndata: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	if err := send(s.now()); err != nil {
		return
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case now := <-ticks:
			if err := send(now); err != nil {
				appLog.Debug("clock stream closed", "err", err)
				return
			}
		}
	}
}

// handlePreview serves the last captured dashboard PNG.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if s.deps.PreviewPath == "" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, s.deps.PreviewPath)
}

// staticFileServer serves the embedded dashboard. The service worker and
// manifest are always revalidated so a new cache generation is picked up.
func (s *Server) staticFileServer() http.Handler {
	sub, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		appLog.Error("failed to initialize embedded static filesystem", err)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "static UI not available", http.StatusServiceUnavailable)
		})
	}

	fileServer := http.FileServer(http.FS(sub))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		// Unknown /api/* paths must 404 as API errors, never as HTML.
		if path == "/api" || strings.HasPrefix(path, "/api/") {
			writeError(w, http.StatusNotFound, "not found")
			return
		}

		switch path {
		case "/sw.js", "/manifest.json", "/", "/index.html":
			w.Header().Set("Cache-Control", "no-cache")
		}
		if path == "/sw.js" {
			w.Header().Set("Service-Worker-Allowed", "/")
		}
		fileServer.ServeHTTP(w, r)
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func gridLocation(g layout.Grid) *time.Location {
	if g.Location == nil {
		return time.Local
	}
	return g.Location
}

func locationName(loc *time.Location) string {
	if loc == nil {
		return time.Local.String()
	}
	return loc.String()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
