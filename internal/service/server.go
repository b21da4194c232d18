// Package service is the analysis service: it runs an engine for each
// triggering request and streams the run's progress to websocket
// subscribers of that session.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/systemtwo/research/internal/config"
	"github.com/systemtwo/research/internal/engine"
	"github.com/systemtwo/research/internal/protocol"
)

// DefaultRetain is how long a finished run's events stay available to late
// subscribers.
const DefaultRetain = 30 * time.Second

type Server struct {
	engine         engine.Engine
	hub            *Hub
	runs           *Runs
	metrics        *Metrics
	log            *slog.Logger
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
	authToken      string
	retain         time.Duration
	now            func() time.Time
}

func NewServer(cfg config.ServerConfig, eng engine.Engine, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	m := NewMetrics()
	s := &Server{
		engine:         eng,
		hub:            NewHub(cfg.Backlog, cfg.MaxClients, m, log),
		runs:           NewRuns(),
		metrics:        m,
		log:            log.With("component", "server"),
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
		authToken:      cfg.Token,
		retain:         DefaultRetain,
		now:            time.Now,
	}

	for _, origin := range cfg.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}
	return s
}

func (s *Server) Hub() *Hub   { return s.hub }
func (s *Server) Runs() *Runs { return s.runs }

// Handler returns the service's routes wrapped in CORS and security headers.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(protocol.PathRun, s.handleRun)
	mux.HandleFunc(protocol.PathWS, s.handleWS)
	mux.HandleFunc(protocol.PathRuns, s.handleRuns)
	mux.HandleFunc(protocol.PathHealth, s.handleHealth)
	mux.Handle(protocol.PathMetrics, s.metrics.Handler())
	return securityHeaders(s.cors(mux))
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.log.Info("server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.authorize(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req protocol.RunRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	company := strings.TrimSpace(req.Company)
	if company == "" {
		writeError(w, http.StatusBadRequest, "Company symbol is required")
		return
	}
	id := req.SessionID
	if id == "" {
		id = uuid.NewString()
	}
	if err := s.runs.Start(id, company, s.now()); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	defer func() {
		s.runs.Finish(id)
		time.AfterFunc(s.retain, func() { s.hub.Release(id) })
	}()

	s.metrics.runsStarted.Inc()
	log := s.log.With("session", id, "company", company)
	log.Info("analysis run started")

	result, err := s.engine.Run(r.Context(), company, func(msg string) {
		s.hub.Publish(id, protocol.MsgProgress, protocol.ProgressPayload{Message: msg})
		s.runs.Notice(id)
		s.metrics.notices.Inc()
	})
	if err != nil {
		s.hub.Publish(id, protocol.MsgError, protocol.ErrorPayload{Error: err.Error()})
		if r.Context().Err() != nil {
			s.metrics.runsFinished.WithLabelValues(outcomeAborted).Inc()
			log.Info("analysis run aborted by client", "err", err)
			return
		}
		s.metrics.runsFinished.WithLabelValues(outcomeFailed).Inc()
		log.Warn("analysis run failed", "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.hub.Publish(id, protocol.MsgComplete, protocol.CompletePayload{Result: result})
	s.metrics.runsFinished.WithLabelValues(outcomeCompleted).Inc()
	log.Info("analysis run completed", "bytes", len(result))
	writeJSON(w, http.StatusOK, protocol.RunResponse{Result: result})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	sessionID := r.URL.Query().Get(protocol.SessionParam)
	if sessionID == "" {
		http.Error(w, "session parameter is required", http.StatusBadRequest)
		return
	}

	upgrader := websocket.Upgrader{CheckOrigin: s.checkOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("ws upgrade error", "err", err)
		return
	}

	c, err := s.hub.Subscribe(sessionID, conn)
	if err != nil {
		s.log.Warn("ws client rejected", "remote", r.RemoteAddr, "err", err)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()),
			time.Now().Add(time.Second))
		conn.Close()
		return
	}
	s.log.Debug("ws client connected", "remote", r.RemoteAddr, "session", sessionID)

	go func() {
		defer func() {
			s.hub.Unsubscribe(c)
			s.log.Debug("ws client disconnected", "remote", r.RemoteAddr, "session", sessionID)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.authorize(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, s.runs.List())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) authorize(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}
	if r.URL.Query().Get("token") == s.authToken {
		return true
	}
	if r.Header.Get(protocol.TokenHeader) == s.authToken {
		return true
	}
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.authToken
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	return parsed.Host == r.Host || isLoopback(parsed.Hostname())
}

func isLoopback(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}

// cors answers preflight requests and marks responses for allowed origins.
// With no configured origins every origin is allowed.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" {
			if len(s.allowedOrigins) == 0 {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else if s.allowedOrigins[origin] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
		}
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+protocol.TokenHeader)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Content-Security-Policy", "default-src 'self'")
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, protocol.ErrorResponse{Error: msg})
}
