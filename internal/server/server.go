package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/giantswarm/suidriver/internal/api"
	"github.com/giantswarm/suidriver/internal/driver"
	"github.com/giantswarm/suidriver/pkg/logging"
)

const (
	// DefaultReadHeaderTimeout is the default timeout for reading request headers.
	DefaultReadHeaderTimeout = 10 * time.Second
	// DefaultWriteTimeout is the default timeout for writing responses.
	DefaultWriteTimeout = 120 * time.Second
	// DefaultIdleTimeout is the default idle timeout for keepalive connections.
	DefaultIdleTimeout = 120 * time.Second

	maxRequestBody = 1 << 20
)

// Server serves the host API of one driver.
type Server struct {
	drv    *driver.Driver
	router *mux.Router

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
	serveErr   chan error
}

// New creates a server for drv. Call Start to listen.
func New(drv *driver.Driver) *Server {
	s := &Server{drv: drv}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(logRequests)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", s.drv.Metrics().Handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)
	v1.HandleFunc("/descriptors", s.handleListDescriptors).Methods(http.MethodGet)
	v1.HandleFunc("/descriptors/rescan", s.handleRescan).Methods(http.MethodPost)
	v1.HandleFunc("/descriptors/{id}", s.handleGetDescriptor).Methods(http.MethodGet)
	v1.HandleFunc("/tasks", s.handleCreateTask).Methods(http.MethodPost)
	v1.HandleFunc("/tasks", s.handleListTasks).Methods(http.MethodGet)
	v1.HandleFunc("/tasks/{id}", s.handleGetTask).Methods(http.MethodGet)
	v1.HandleFunc("/tasks/{id}", s.handleCancelTask).Methods(http.MethodDelete)
	v1.HandleFunc("/tasks/{id}/progress", s.handleProgress).Methods(http.MethodGet)
	v1.HandleFunc("/tasks/{id}/result", s.handleResult).Methods(http.MethodGet)
	return r
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpServer != nil {
		return errors.New("server already started")
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
	}
	s.serveErr = make(chan error, 1)

	go func(srv *http.Server, errCh chan<- error) {
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			logging.Error("Server", err, "HTTP server stopped")
			errCh <- err
		}
		close(errCh)
	}(s.httpServer, s.serveErr)

	logging.Info("Server", "Listening on %s", listener.Addr())
	return nil
}

// Addr returns the listening address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Errors delivers a serve failure, if any, and is closed when serving stops.
func (s *Server) Errors() <-chan error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serveErr
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

type errorResponse struct {
	Error string        `json:"error"`
	Kind  api.ErrorKind `json:"kind,omitempty"`
}

type healthResponse struct {
	Status      string `json:"status"`
	Descriptors int    `json:"descriptors"`
	Tasks       int    `json:"tasks"`
}

type progressResponse struct {
	api.ProgressSnapshot
	Percent float64            `json:"percent"`
	State   api.ExecutionState `json:"state"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:      "ok",
		Descriptors: s.drv.Catalog().Len(),
		Tasks:       len(s.drv.Tasks()),
	})
}

func (s *Server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.drv.Info())
}

func (s *Server) handleListDescriptors(w http.ResponseWriter, r *http.Request) {
	if ids := r.URL.Query()["id"]; len(ids) > 0 {
		writeJSON(w, http.StatusOK, nonNil(s.drv.Lookup(ids)))
		return
	}
	writeJSON(w, http.StatusOK, nonNil(s.drv.Descriptors()))
}

func (s *Server) handleRescan(w http.ResponseWriter, r *http.Request) {
	if err := s.drv.Rescan(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(s.drv.Descriptors()))
}

func (s *Server) handleGetDescriptor(w http.ResponseWriter, r *http.Request) {
	d, err := s.drv.Descriptor(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var cfg api.TaskConfig
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid task configuration: " + err.Error()})
		return
	}

	ctrl, err := s.drv.Submit(cfg)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Location", "/api/v1/tasks/"+ctrl.ID())
	writeJSON(w, http.StatusAccepted, ctrl.Outcome())
}

func (s *Server) handleListTasks(w http.ResponseWriter, _ *http.Request) {
	tasks := s.drv.Tasks()
	out := make([]api.TaskOutcome, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.Outcome())
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if ctrl, err := s.drv.Task(id); err == nil {
		writeJSON(w, http.StatusOK, ctrl.Outcome())
		return
	}
	out, err := s.drv.StoredOutcome(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ctrl, err := s.drv.Task(id)
	if err != nil {
		writeError(w, err)
		return
	}
	ctrl.Cancel()
	writeJSON(w, http.StatusAccepted, ctrl.Outcome())
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	ctrl, err := s.drv.Task(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	snap := ctrl.Progress()
	writeJSON(w, http.StatusOK, progressResponse{
		ProgressSnapshot: snap,
		Percent:          snap.Percent(),
		State:            ctrl.State(),
	})
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if ctrl, err := s.drv.Task(id); err == nil {
		writeJSON(w, http.StatusOK, ctrl.Result())
		return
	}
	node, err := s.drv.StoredResult(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

func statusFor(err error) int {
	switch {
	case api.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, driver.ErrClosed):
		return http.StatusServiceUnavailable
	}
	switch api.KindOf(err) {
	case api.KindConfigurationError:
		return http.StatusBadRequest
	case api.KindInvalidState:
		return http.StatusConflict
	case api.KindResourceUnavailable:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		logging.Error("Server", err, "Request failed")
	}
	writeJSON(w, code, errorResponse{Error: err.Error(), Kind: api.KindOf(err)})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		logging.Error("Server", err, "Failed to marshal response")
		code = http.StatusInternalServerError
		data = []byte(`{"error":"internal server error"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(data); err != nil {
		logging.Debug("Server", "Failed to send response: %v", err)
	}
}

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logging.Debug("Server", "%s %s -> %d (%s)", r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}
