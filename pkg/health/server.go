package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Check reports whether a dependency is usable, with a short detail.
type Check func() (ok bool, detail string)

// Server exposes /health (liveness), /ready (readiness checks) and /metrics.
type Server struct {
	server  *http.Server
	started time.Time

	mu     sync.RWMutex
	ready  bool
	checks map[string]Check
}

func NewServer(host string, port int) *Server {
	s := &Server{
		started: time.Now(),
		checks:  make(map[string]Check),
	}
	s.server = &http.Server{
		Addr:              net.JoinHostPort(host, fmt.Sprintf("%d", port)),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the mux serving every endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/ready", s.readyHandler)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (s *Server) Addr() string {
	return s.server.Addr
}

// RegisterCheck adds a readiness check; a later registration under the same
// name replaces the earlier one.
func (s *Server) RegisterCheck(name string, check Check) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = check
}

func (s *Server) SetReady(ready bool) {
	s.mu.Lock()
	s.ready = ready
	s.mu.Unlock()
}

// Start blocks serving until Stop; it returns http.ErrServerClosed then.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	s.SetReady(false)
	return s.server.Shutdown(ctx)
}

type checkResult struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.started).Truncate(time.Second).String(),
	})
}

func (s *Server) readyHandler(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	ready := s.ready
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	checks := make(map[string]Check, len(s.checks))
	for k, v := range s.checks {
		checks[k] = v
	}
	s.mu.RUnlock()
	sort.Strings(names)

	results := make(map[string]checkResult, len(names))
	for _, name := range names {
		ok, detail := checks[name]()
		status := "ok"
		if !ok {
			status = "fail"
			ready = false
		}
		results[name] = checkResult{Status: status, Detail: detail}
	}

	code := http.StatusOK
	status := "ready"
	if !ready {
		code = http.StatusServiceUnavailable
		status = "not ready"
	}
	writeJSON(w, code, map[string]any{
		"status": status,
		"checks": results,
	})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
