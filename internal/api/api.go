package api

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/sensor-dashboard/internal/dashboard"
	"github.com/thatsimonsguy/sensor-dashboard/internal/model"
)

const (
	SessionCookie  = "dashboard_session"
	refreshTimeout = 30 * time.Second
	keepAlive      = 25 * time.Second
)

//go:embed static
var staticFS embed.FS

// Refresher runs an immediate poll cycle.
type Refresher interface {
	Refresh(ctx context.Context) error
}

type Server struct {
	hub       *dashboard.Hub
	refresher Refresher
	gatherer  prometheus.Gatherer
	router    *mux.Router
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type OrderRequest struct {
	Order []string `json:"order"`
}

type MoveRequest struct {
	Index int `json:"index"`
}

type ToggleResponse struct {
	Group    string `json:"group"`
	Expanded bool   `json:"expanded"`
}

type LayoutRequest struct {
	Layout string `json:"layout"`
}

type ViewportRequest struct {
	Width int `json:"width"`
}

type ThemeRequest struct {
	Theme string `json:"theme"`
}

func NewServer(hub *dashboard.Hub, refresher Refresher, gatherer prometheus.Gatherer) *Server {
	s := &Server{
		hub:       hub,
		refresher: refresher,
		gatherer:  gatherer,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()

	// The event stream stays outside the compressing and logging middleware
	// so every batch is flushed as soon as it is written.
	r.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)

	app := r.PathPrefix("/").Subrouter()
	app.Use(handlers.CompressHandler)
	app.Use(requestLogger)

	app.HandleFunc("/", s.handlePage).Methods(http.MethodGet)
	app.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	app.Handle("/internal/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	static, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	app.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(http.FS(static))))

	api := app.PathPrefix("/api").Subrouter()
	api.HandleFunc("/refresh", s.handleRefresh).Methods(http.MethodPost)
	api.HandleFunc("/state", s.handleState).Methods(http.MethodGet)
	api.HandleFunc("/groups/order", s.handleOrder).Methods(http.MethodPut)
	api.HandleFunc("/groups/{name}/move", s.handleMove).Methods(http.MethodPost)
	api.HandleFunc("/groups/{name}/toggle", s.handleToggle).Methods(http.MethodPost)
	api.HandleFunc("/layout", s.handleLayout).Methods(http.MethodPut)
	api.HandleFunc("/viewport", s.handleViewport).Methods(http.MethodPut)
	api.HandleFunc("/theme", s.handleTheme).Methods(http.MethodPut)

	return r
}

// Handler is the full HTTP surface including CORS.
func (s *Server) Handler() http.Handler {
	return handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)(s.router)
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("address", addr).Msg("Starting dashboard HTTP server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func requestLogger(next http.Handler) http.Handler {
	return handlers.CustomLoggingHandler(io.Discard, next, func(_ io.Writer, p handlers.LogFormatterParams) {
		log.Debug().
			Str("method", p.Request.Method).
			Str("path", p.URL.Path).
			Int("status", p.StatusCode).
			Int("size", p.Size).
			Msg("HTTP request")
	})
}

// sessionID returns the browser's session, issuing a new cookie when it has
// none or an unparseable one.
func sessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(SessionCookie); err == nil {
		if id, err := uuid.Parse(c.Value); err == nil {
			return id.String()
		}
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   365 * 24 * 60 * 60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	id := sessionID(w, r)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.hub.RenderPage(w, id); err != nil {
		log.Error().Err(err).Str("session", id).Msg("Failed to render dashboard page")
		http.Error(w, "failed to render dashboard", http.StatusInternalServerError)
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	id := sessionID(w, r)
	batches, cancel, err := s.hub.Subscribe(id)
	if err != nil {
		log.Error().Err(err).Str("session", id).Msg("Failed to subscribe session")
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprint(w, ":ok\n\n")
	flusher.Flush()

	log.Debug().Str("session", id).Msg("Event stream opened")
	defer log.Debug().Str("session", id).Msg("Event stream closed")

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ops := <-batches:
			data, err := json.Marshal(ops)
			if err != nil {
				log.Error().Err(err).Msg("Failed to encode patch batch")
				continue
			}
			if _, err := fmt.Fprintf(w, "event: patch\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ":ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), refreshTimeout)
	defer cancel()
	if err := s.refresher.Refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("Manual refresh did not complete")
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	snap, err := s.hub.State(sessionID(w, r))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request) {
	var req OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if err := s.hub.SetOrder(sessionID(w, r), req.Order); err != nil {
		log.Error().Err(err).Msg("Failed to save group order")
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	group := mux.Vars(r)["name"]
	var req MoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	err := s.hub.MoveGroup(sessionID(w, r), group, req.Index)
	switch {
	case errors.Is(err, dashboard.ErrUnknownGroup):
		s.writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		log.Error().Err(err).Str("group", group).Msg("Failed to move group")
		s.writeError(w, http.StatusInternalServerError, err.Error())
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	group := mux.Vars(r)["name"]
	expanded, err := s.hub.ToggleGroup(sessionID(w, r), group)
	if err != nil {
		log.Error().Err(err).Str("group", group).Msg("Failed to toggle group")
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, ToggleResponse{Group: group, Expanded: expanded})
}

func (s *Server) handleLayout(w http.ResponseWriter, r *http.Request) {
	var req LayoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	layout, err := model.ParseLayoutMode(req.Layout)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.hub.SetLayout(sessionID(w, r), layout); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleViewport(w http.ResponseWriter, r *http.Request) {
	var req ViewportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Width <= 0 {
		s.writeError(w, http.StatusBadRequest, "Viewport width must be a positive integer")
		return
	}
	if err := s.hub.SetViewport(sessionID(w, r), req.Width); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTheme(w http.ResponseWriter, r *http.Request) {
	var req ThemeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	err := s.hub.SetTheme(sessionID(w, r), req.Theme)
	switch {
	case errors.Is(err, dashboard.ErrInvalidTheme):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}
