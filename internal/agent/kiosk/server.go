// Package kiosk serves the local HTTP API the terminal screen talks to.
// It only ever writes to the local queue; delivery is the sync runner's job.
package kiosk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"punchclock.service/internal/agent/connectivity"
	"punchclock.service/internal/agent/store"
	"punchclock.service/internal/agent/syncer"
	"punchclock.service/internal/core/model"
	"punchclock.service/pkg/logger"
)

// Queue is the part of the local store the kiosk uses.
type Queue interface {
	Append(ctx context.Context, p *model.Punch) error
	ListUnsynced(ctx context.Context) ([]model.Punch, error)
	ListForEmployeeDay(ctx context.Context, employeeID string, from, to time.Time) ([]model.Punch, error)
}

// Syncer is the part of the sync runner the kiosk uses.
type Syncer interface {
	RunPass(ctx context.Context) (syncer.PassResult, error)
	Trigger()
	Status(ctx context.Context) (syncer.Status, error)
}

type Server struct {
	Router  *chi.Mux
	queue   Queue
	sync    Syncer
	monitor *connectivity.Monitor
	loc     *time.Location
	now     func() time.Time

	// serializes sequence check and append so two taps cannot both pass the check
	punchMu sync.Mutex
}

func NewServer(queue Queue, s Syncer, monitor *connectivity.Monitor, loc *time.Location) *Server {
	if loc == nil {
		loc = time.UTC
	}
	srv := &Server{
		Router:  chi.NewRouter(),
		queue:   queue,
		sync:    s,
		monitor: monitor,
		loc:     loc,
		now:     time.Now,
	}
	srv.initRoutes()
	return srv
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) initRoutes() {
	s.Router.Use(middleware.Recoverer)
	s.Router.Use(logger.Middleware)

	s.Router.Get("/status", s.getStatus)
	s.Router.Post("/sync", s.postSync)
	s.Router.Route("/punches", func(r chi.Router) {
		r.Post("/", s.postPunch)
		r.Get("/pending", s.getPending)
	})
}

// NewHTTPServer binds the kiosk API to addr.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		Handler:      handler,
	}
}

type punchRequest struct {
	EmployeeID string          `json:"employeeId"`
	Type       model.PunchType `json:"type"`
}

type punchResponse struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Queued    bool      `json:"queued"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) postPunch(w http.ResponseWriter, r *http.Request) {
	var req punchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, r, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.EmployeeID == "" {
		s.fail(w, r, "employeeId is required", http.StatusBadRequest)
		return
	}
	if !req.Type.Valid() {
		s.fail(w, r, "unknown punch type", http.StatusBadRequest)
		return
	}

	p, err := s.capture(r.Context(), req)
	switch {
	case errors.Is(err, model.ErrSequence):
		s.fail(w, r, err.Error(), http.StatusConflict)
		return
	case errors.Is(err, store.ErrQuotaExceeded):
		log.Ctx(r.Context()).Error().Err(err).Str("employee_id", req.EmployeeID).Msg("Punch rejected, local store full")
		s.fail(w, r, "local storage is full, contact support", http.StatusInsufficientStorage)
		return
	case err != nil:
		log.Ctx(r.Context()).Error().Err(err).Str("employee_id", req.EmployeeID).Msg("Failed to queue punch")
		s.fail(w, r, "failed to store punch", http.StatusInternalServerError)
		return
	}

	log.Ctx(r.Context()).Info().
		Str("punch_id", p.ID).
		Str("employee_id", p.EmployeeID).
		Str("type", string(p.Type)).
		Msg("Punch queued")

	if s.monitor.Online() {
		s.sync.Trigger()
	}

	s.respond(w, punchResponse{ID: p.ID, Timestamp: p.Timestamp, Queued: true}, http.StatusAccepted)
}

func (s *Server) capture(ctx context.Context, req punchRequest) (*model.Punch, error) {
	s.punchMu.Lock()
	defer s.punchMu.Unlock()

	now := s.now().UTC()
	from, to := s.dayBounds(now)
	today, err := s.queue.ListForEmployeeDay(ctx, req.EmployeeID, from, to)
	if err != nil {
		return nil, err
	}
	if err := model.NewDayState(today).CanApply(req.Type); err != nil {
		return nil, err
	}

	p := &model.Punch{EmployeeID: req.EmployeeID, Type: req.Type, Timestamp: now}
	if err := s.queue.Append(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// dayBounds returns the local calendar day containing ts as a UTC range.
func (s *Server) dayBounds(ts time.Time) (time.Time, time.Time) {
	local := ts.In(s.loc)
	from := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
	return from, from.AddDate(0, 0, 1)
}

func (s *Server) getPending(w http.ResponseWriter, r *http.Request) {
	punches, err := s.queue.ListUnsynced(r.Context())
	if err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("Failed to list pending punches")
		s.fail(w, r, "failed to list pending punches", http.StatusInternalServerError)
		return
	}
	s.respond(w, punches, http.StatusOK)
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.sync.Status(r.Context())
	if err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("Failed to read sync status")
		s.fail(w, r, "failed to read status", http.StatusInternalServerError)
		return
	}
	s.respond(w, st, http.StatusOK)
}

type syncResponse struct {
	syncer.PassResult
	Error string `json:"error,omitempty"`
}

func (s *Server) postSync(w http.ResponseWriter, r *http.Request) {
	res, err := s.sync.RunPass(r.Context())
	switch {
	case errors.Is(err, syncer.ErrOffline):
		s.fail(w, r, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, syncer.ErrPassInProgress), errors.Is(err, syncer.ErrLeaseHeld):
		s.fail(w, r, err.Error(), http.StatusConflict)
	case err != nil:
		s.respond(w, syncResponse{PassResult: res, Error: err.Error()}, http.StatusBadGateway)
	default:
		s.respond(w, syncResponse{PassResult: res}, http.StatusOK)
	}
}

func (s *Server) respond(w http.ResponseWriter, data any, status int) {
	res, err := json.Marshal(data)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = w.Write(res)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, msg string, status int) {
	log.Ctx(r.Context()).Debug().Int("status", status).Str("path", r.URL.Path).Msg(msg)
	s.respond(w, errorResponse{Error: msg}, status)
}
