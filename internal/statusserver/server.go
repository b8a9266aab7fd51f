// Package statusserver provides a slim, optional HTTP surface for
// introspecting a running broker/session pair: GET /status reports the
// broker's lock/agent/API-slot counters, and GET /sessions/{id} returns one
// session's summary. Unlike the teacher's internal/server (the full HTTP
// API the teacher's own terminal UI/SDK clients used to drive every
// session operation over HTTP), this package exists purely for read-only
// operational visibility — `cmd/clio status` is its only caller.
package statusserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/clio-agent/clio/internal/broker"
	"github.com/clio-agent/clio/internal/session"
)

// Config holds the status server's listen settings.
type Config struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns sensible defaults for local introspection use.
func DefaultConfig() *Config {
	return &Config{Port: 4096, ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second}
}

// Server is the chi-routed HTTP surface itself.
type Server struct {
	config  *Config
	router  *chi.Mux
	httpSrv *http.Server

	sessions *session.Service
	broker   *broker.Client // nil when no broker socket was reachable
}

// New builds a Server backed by sessions for session lookups and an
// optional already-dialed broker client for the live lock/agent counters
// (brokerClient may be nil when the broker isn't running; /status then
// reports broker fields as zero/false rather than failing the request).
func New(cfg *Config, sessions *session.Service, brokerClient *broker.Client) *Server {
	r := chi.NewRouter()
	s := &Server{config: cfg, router: r, sessions: sessions, broker: brokerClient}

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
	}))

	r.Get("/status", s.handleStatus)
	r.Get("/sessions/{id}", s.handleSession)

	return s
}

// StatusResponse is the GET /status payload.
type StatusResponse struct {
	BrokerConnected bool   `json:"brokerConnected"`
	Agents          int    `json:"agents,omitempty"`
	FileLocks       int    `json:"fileLocks,omitempty"`
	GitLocked       bool   `json:"gitLocked,omitempty"`
	APIInFlight     int    `json:"apiInFlight,omitempty"`
	Version         string `json:"version,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{}
	if s.broker != nil {
		st, err := s.broker.Status(r.Context())
		if err == nil {
			resp.BrokerConnected = true
			resp.Agents = st.Agents
			resp.FileLocks = st.FileLocks
			resp.GitLocked = st.GitLocked
			resp.APIInFlight = st.APIInFlight
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("session %s not found", id)})
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Start listens and serves until the process is stopped or Shutdown is
// called from another goroutine.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully stops the HTTP listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
