package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hochfrequenz/scenario-sim/internal/domain"
	"github.com/hochfrequenz/scenario-sim/internal/observability"
	"github.com/hochfrequenz/scenario-sim/internal/timeline"
)

// Clock is the engine surface the API drives
type Clock interface {
	State() timeline.State
	Tick(ctx context.Context, days int) (timeline.Advance, error)
	JumpTo(ctx context.Context, date domain.Date) (timeline.Advance, error)
	RollbackTo(ctx context.Context, date domain.Date) (timeline.Rollback, error)
	Pause()
	Resume()
	CreateBranch(ctx context.Context, name string, from *domain.Date) (*domain.TimelineBranch, error)
	SwitchBranch(ctx context.Context, id string) (timeline.Advance, error)
}

// Scheduler is the event registry surface
type Scheduler interface {
	ScheduleEvent(ctx context.Context, tmpl domain.EventTemplate, date domain.Date) (string, error)
	ScheduleAfter(ctx context.Context, tmpl domain.EventTemplate, days int) (string, error)
	GetScheduledEvents(ctx context.Context, f domain.EventFilter) ([]*domain.ScheduledEvent, error)
	GetEvent(ctx context.Context, id string) (*domain.ScheduledEvent, error)
	Reschedule(ctx context.Context, id string, date domain.Date) error
}

// Executor fires events
type Executor interface {
	ExecuteEvent(ctx context.Context, id string) (bool, error)
	CheckAndExecuteDueEvents(ctx context.Context) (*domain.ExecutionReport, error)
}

// Packets builds and reads day packets
type Packets interface {
	Generate(ctx context.Context, date domain.Date) (*domain.DayPacket, error)
	Get(ctx context.Context, date domain.Date) (*domain.DayPacket, error)
}

// Templates is the event template catalog
type Templates interface {
	All() []domain.EventTemplate
	ByType(t domain.EventType) []domain.EventTemplate
	Lookup(name string) (domain.EventTemplate, error)
}

// Deps are the collaborators a Server serves
type Deps struct {
	Clock     Clock
	Scheduler Scheduler
	Executor  Executor
	Packets   Packets
	Templates Templates
	Logger    *slog.Logger
}

// Server is the HTTP API server
type Server struct {
	Deps
	addr     string
	mux      *http.ServeMux
	hub      *Hub
	upgrader websocket.Upgrader
	log      *slog.Logger
}

// NewServer creates a new API server
func NewServer(deps Deps, addr string) *Server {
	s := &Server{
		Deps: deps,
		addr: addr,
		mux:  http.NewServeMux(),
		hub:  NewHub(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: observability.For(deps.Logger, observability.ChannelSystem),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /api/clock", s.clockHandler())
	s.mux.HandleFunc("POST /api/clock/pause", s.pauseHandler(true))
	s.mux.HandleFunc("POST /api/clock/resume", s.pauseHandler(false))
	s.mux.HandleFunc("POST /api/clock/tick", s.tickHandler())
	s.mux.HandleFunc("POST /api/clock/jump", s.jumpHandler())
	s.mux.HandleFunc("POST /api/clock/rollback", s.rollbackHandler())

	s.mux.HandleFunc("GET /api/branches", s.listBranchesHandler())
	s.mux.HandleFunc("POST /api/branches", s.createBranchHandler())
	s.mux.HandleFunc("POST /api/branches/{id}/switch", s.switchBranchHandler())

	s.mux.HandleFunc("GET /api/events", s.listEventsHandler())
	s.mux.HandleFunc("POST /api/events", s.scheduleEventHandler())
	s.mux.HandleFunc("POST /api/events/run-due", s.runDueHandler())
	s.mux.HandleFunc("GET /api/events/{id}", s.getEventHandler())
	s.mux.HandleFunc("POST /api/events/{id}/reschedule", s.rescheduleHandler())
	s.mux.HandleFunc("POST /api/events/{id}/execute", s.executeHandler())

	s.mux.HandleFunc("GET /api/packets/{date}", s.getPacketHandler())
	s.mux.HandleFunc("POST /api/packets/{date}", s.generatePacketHandler())

	s.mux.HandleFunc("GET /api/templates", s.templatesHandler())

	s.mux.HandleFunc("GET /api/stream", s.sseHandler())
	s.mux.HandleFunc("GET /api/ws", s.wsHandler())
}

// Handler exposes the routes, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run serves HTTP and the stream hub until ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	go s.hub.Run(ctx)

	srv := &http.Server{Addr: s.addr, Handler: s.mux, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("API listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Broadcast sends an event to all stream clients
func (s *Server) Broadcast(event StreamEvent) {
	if !s.hub.Broadcast(event) {
		s.log.Warn("Stream queue full, event dropped", "type", event.Type, "dropped_total", s.hub.Dropped())
	}
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	writeJSONStatus(w, http.StatusOK, data)
}

func writeJSONStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSONStatus(w, status, ErrorResponse{Error: message, Code: code})
}

// writeDomainError maps the error taxonomy onto HTTP statuses
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrInvalidOperation):
		writeError(w, http.StatusConflict, "invalid_operation", err.Error())
	case domain.IsPersistence(err):
		s.log.Error("Persistence failure", "error", err)
		writeError(w, http.StatusInternalServerError, "persistence", err.Error())
	default:
		s.log.Error("Request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}
