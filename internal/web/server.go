// Package web exposes the simulation over HTTP: command endpoints for
// controls and votes, query endpoints over the store, and a websocket feed
// of live events.
package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/corpsim/internal/entity"
	"github.com/vadiminshakov/corpsim/internal/events"
	"github.com/vadiminshakov/corpsim/internal/services/scheduler"
	"github.com/vadiminshakov/corpsim/internal/storage"
)

const defaultPageSize = 50

// Simulation is the slice of the engine the HTTP layer drives.
type Simulation interface {
	Start(ctx context.Context) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Stop(ctx context.Context) error
	Reset(ctx context.Context) error
	ExecuteRound(ctx context.Context) error
	SetMode(ctx context.Context, mode entity.SimMode) error
	Status(ctx context.Context) (scheduler.Status, error)
	CreateCompany(ctx context.Context, name string, topology entity.Topology, size int, funds decimal.Decimal) (entity.Company, error)
	DeleteCompany(ctx context.Context, id string) error
	CastVote(ctx context.Context, decisionID, voterID string, vote entity.Vote) error
	CancelDecision(ctx context.Context, decisionID, reason string) error
}

// Server wires the HTTP surface.
type Server struct {
	addr     string
	sim      Simulation
	store    *storage.Store
	eventLog *storage.EventLog
	bus      *events.Broadcaster
	logger   *zap.Logger
}

// NewServer creates the web server.
func NewServer(logger *zap.Logger, addr string, sim Simulation, store *storage.Store, eventLog *storage.EventLog, bus *events.Broadcaster) *Server {
	return &Server{
		addr:     addr,
		sim:      sim,
		store:    store,
		eventLog: eventLog,
		bus:      bus,
		logger:   logger,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/companies", s.handleCreateCompany)
	mux.HandleFunc("GET /api/companies", s.handleListCompanies)
	mux.HandleFunc("GET /api/companies/{id}", s.handleGetCompany)
	mux.HandleFunc("DELETE /api/companies/{id}", s.handleDeleteCompany)
	mux.HandleFunc("GET /api/companies/{id}/employees", s.handleListEmployees)

	mux.HandleFunc("GET /api/decisions", s.handleListDecisions)
	mux.HandleFunc("GET /api/decisions/{id}", s.handleGetDecision)
	mux.HandleFunc("POST /api/decisions/{id}/votes", s.handleCastVote)
	mux.HandleFunc("POST /api/decisions/{id}/cancel", s.handleCancelDecision)

	mux.HandleFunc("POST /api/simulation/start", s.control(s.sim.Start))
	mux.HandleFunc("POST /api/simulation/pause", s.control(s.sim.Pause))
	mux.HandleFunc("POST /api/simulation/resume", s.control(s.sim.Resume))
	mux.HandleFunc("POST /api/simulation/stop", s.control(s.sim.Stop))
	mux.HandleFunc("POST /api/simulation/reset", s.control(s.sim.Reset))
	mux.HandleFunc("POST /api/simulation/round", s.control(s.sim.ExecuteRound))
	mux.HandleFunc("POST /api/simulation/mode", s.handleSetMode)
	mux.HandleFunc("GET /api/simulation/status", s.handleStatus)

	mux.HandleFunc("GET /api/events", s.handleListEvents)
	mux.HandleFunc("GET /ws", s.handleWS)

	return mux
}

// Start runs the HTTP server and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("web server listening", zap.String("addr", s.addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type createCompanyRequest struct {
	Name     string `json:"name"`
	Topology string `json:"topology"`
	Size     int    `json:"size"`
	Funds    string `json:"funds"`
}

func (s *Server) handleCreateCompany(w http.ResponseWriter, r *http.Request) {
	var req createCompanyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, entity.Validationf("invalid JSON body: %v", err))
		return
	}
	funds := decimal.NewFromInt(50000)
	if req.Funds != "" {
		var err error
		if funds, err = decimal.NewFromString(req.Funds); err != nil {
			s.writeError(w, entity.Validationf("invalid funds %q", req.Funds))
			return
		}
	}

	company, err := s.sim.CreateCompany(r.Context(), req.Name, entity.Topology(req.Topology), req.Size, funds)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, company)
}

func (s *Server) handleListCompanies(w http.ResponseWriter, r *http.Request) {
	companies, err := s.store.ListCompanies(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if companies == nil {
		companies = []entity.Company{}
	}
	s.writeJSON(w, http.StatusOK, companies)
}

func (s *Server) handleGetCompany(w http.ResponseWriter, r *http.Request) {
	company, err := s.store.GetCompany(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, company)
}

func (s *Server) handleDeleteCompany(w http.ResponseWriter, r *http.Request) {
	if err := s.sim.DeleteCompany(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListEmployees(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.store.GetCompany(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	roster, err := s.store.ListEmployees(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if roster == nil {
		roster = []entity.Employee{}
	}
	s.writeJSON(w, http.StatusOK, roster)
}

func (s *Server) handleListDecisions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := storage.DecisionFilter{
		CompanyID: q.Get("company_id"),
		Status:    entity.DecisionStatus(q.Get("status")),
		Limit:     defaultPageSize,
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.writeError(w, entity.Validationf("invalid limit %q", raw))
			return
		}
		filter.Limit = n
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, entity.Validationf("invalid offset %q", raw))
			return
		}
		filter.Offset = n
	}

	decisions, err := s.store.ListDecisions(r.Context(), filter)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if decisions == nil {
		decisions = []entity.Decision{}
	}
	s.writeJSON(w, http.StatusOK, decisions)
}

func (s *Server) handleGetDecision(w http.ResponseWriter, r *http.Request) {
	d, err := s.store.GetDecision(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, d)
}

type castVoteRequest struct {
	EmployeeID string `json:"employee_id"`
	Vote       string `json:"vote"`
}

func (s *Server) handleCastVote(w http.ResponseWriter, r *http.Request) {
	var req castVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, entity.Validationf("invalid JSON body: %v", err))
		return
	}
	if req.EmployeeID == "" {
		s.writeError(w, entity.Validationf("employee_id is required"))
		return
	}
	if !entity.ValidVote(req.Vote) {
		s.writeError(w, entity.Validationf("invalid vote %q", req.Vote))
		return
	}

	if err := s.sim.CastVote(r.Context(), r.PathValue("id"), req.EmployeeID, entity.Vote(req.Vote)); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

type cancelDecisionRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleCancelDecision(w http.ResponseWriter, r *http.Request) {
	var req cancelDecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, entity.Validationf("invalid JSON body: %v", err))
		return
	}
	reason := req.Reason
	if reason == "" {
		reason = "operator request"
	}
	if err := s.sim.CancelDecision(r.Context(), r.PathValue("id"), reason); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// control adapts a no-payload engine command into a handler.
func (s *Server) control(fn func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(r.Context()); err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

type setModeRequest struct {
	Mode string `json:"mode"`
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var req setModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, entity.Validationf("invalid JSON body: %v", err))
		return
	}
	if err := s.sim.SetMode(r.Context(), entity.SimMode(req.Mode)); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"mode": req.Mode})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.sim.Status(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var after uint64
	if raw := q.Get("after"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			s.writeError(w, entity.Validationf("invalid after index %q", raw))
			return
		}
		after = n
	}
	limit := defaultPageSize
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.writeError(w, entity.Validationf("invalid limit %q", raw))
			return
		}
		limit = n
	}

	records, err := s.eventLog.EventsAfter(after)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if len(records) > limit {
		records = records[:limit]
	}
	if records == nil {
		records = []entity.EventRecord{}
	}
	s.writeJSON(w, http.StatusOK, records)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encoding failed", zap.Error(err))
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps the domain error taxonomy onto HTTP statuses: validation
// failures are 400, lost races and illegal control transitions are 409,
// missing records are 404.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var (
		verr     *entity.ValidationError
		conflict *entity.ConcurrencyConflict
		state    *entity.SchedulerStateError
	)
	switch {
	case errors.As(err, &verr):
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: verr.Msg})
	case errors.As(err, &conflict):
		s.writeJSON(w, http.StatusConflict, errorResponse{Error: conflict.Msg})
	case errors.As(err, &state):
		s.writeJSON(w, http.StatusConflict, errorResponse{Error: state.Error()})
	case errors.Is(err, storage.ErrNotFound):
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	default:
		s.logger.Error("request failed", zap.Error(err))
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}
