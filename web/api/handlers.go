package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/hochfrequenz/scenario-sim/internal/domain"
)

// DaysRequest is the body of POST /api/clock/tick
type DaysRequest struct {
	Days *int `json:"days"`
}

// DateRequest is the body of jump, rollback and reschedule
type DateRequest struct {
	Date domain.Date `json:"date"`
}

// BranchRequest is the body of POST /api/branches
type BranchRequest struct {
	Name string       `json:"name"`
	From *domain.Date `json:"from,omitempty"`
}

// ScheduleRequest is the body of POST /api/events. Either Template names a
// catalog entry or Name/Type describe an ad-hoc event. Either Date or InDays
// sets the trigger.
type ScheduleRequest struct {
	Template    string           `json:"template,omitempty"`
	Name        string           `json:"name,omitempty"`
	Type        domain.EventType `json:"type,omitempty"`
	Description string           `json:"description,omitempty"`
	Payload     map[string]any   `json:"payload,omitempty"`
	Date        domain.Date      `json:"date"`
	InDays      *int             `json:"in_days,omitempty"`
}

// ExecuteResponse is returned by POST /api/events/{id}/execute
type ExecuteResponse struct {
	Executed bool                   `json:"executed"`
	Event    *domain.ScheduledEvent `json:"event"`
}

func decode(r *http.Request, v interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", domain.ErrInvalidOperation, err)
	}
	return nil
}

func (s *Server) clockHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, s.Clock.State())
	}
}

func (s *Server) pauseHandler(pause bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if pause {
			s.Clock.Pause()
		} else {
			s.Clock.Resume()
		}
		writeJSON(w, s.Clock.State())
	}
}

func (s *Server) tickHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DaysRequest
		if err := decode(r, &req); err != nil {
			s.writeDomainError(w, err)
			return
		}
		days := 1
		if req.Days != nil {
			days = *req.Days
		}

		adv, err := s.Clock.Tick(r.Context(), days)
		if err != nil && !adv.Applied {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, adv)
	}
}

func (s *Server) jumpHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DateRequest
		if err := decode(r, &req); err != nil {
			s.writeDomainError(w, err)
			return
		}
		adv, err := s.Clock.JumpTo(r.Context(), req.Date)
		if err != nil && !adv.Applied {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, adv)
	}
}

func (s *Server) rollbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DateRequest
		if err := decode(r, &req); err != nil {
			s.writeDomainError(w, err)
			return
		}
		rb, err := s.Clock.RollbackTo(r.Context(), req.Date)
		if err != nil && !rb.Applied {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, rb)
	}
}

func (s *Server) listBranchesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, s.Clock.State().Branches)
	}
}

func (s *Server) createBranchHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BranchRequest
		if err := decode(r, &req); err != nil {
			s.writeDomainError(w, err)
			return
		}
		b, err := s.Clock.CreateBranch(r.Context(), req.Name, req.From)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSONStatus(w, http.StatusCreated, b)
	}
}

func (s *Server) switchBranchHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		adv, err := s.Clock.SwitchBranch(r.Context(), r.PathValue("id"))
		if err != nil && !adv.Applied {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, adv)
	}
}

// listEventsHandler supports ?type=, ?executed=, ?from=, ?to= and ?executed_on=
func (s *Server) listEventsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := parseFilter(r)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		events, err := s.Scheduler.GetScheduledEvents(r.Context(), f)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		if events == nil {
			events = []*domain.ScheduledEvent{}
		}
		writeJSON(w, events)
	}
}

func parseFilter(r *http.Request) (domain.EventFilter, error) {
	q := r.URL.Query()
	var f domain.EventFilter

	if v := q.Get("type"); v != "" {
		t, err := domain.ParseEventType(v)
		if err != nil {
			return f, err
		}
		f.Type = t
	}
	if v := q.Get("executed"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, fmt.Errorf("%w: executed must be true or false", domain.ErrInvalidOperation)
		}
		f.Executed = &b
	}
	for key, dst := range map[string]*domain.Date{"from": &f.From, "to": &f.To, "executed_on": &f.ExecutedOn} {
		if v := q.Get(key); v != "" {
			d, err := domain.ParseDate(v)
			if err != nil {
				return f, fmt.Errorf("%w: %s: %v", domain.ErrInvalidOperation, key, err)
			}
			*dst = d
		}
	}
	return f, nil
}

func (s *Server) scheduleEventHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ScheduleRequest
		if err := decode(r, &req); err != nil {
			s.writeDomainError(w, err)
			return
		}

		tmpl := domain.EventTemplate{Name: req.Name, Type: req.Type, Description: req.Description, Payload: req.Payload}
		if req.Template != "" {
			var err error
			if tmpl, err = s.Templates.Lookup(req.Template); err != nil {
				s.writeDomainError(w, err)
				return
			}
		}

		var (
			id  string
			err error
		)
		if req.InDays != nil {
			id, err = s.Scheduler.ScheduleAfter(r.Context(), tmpl, *req.InDays)
		} else {
			id, err = s.Scheduler.ScheduleEvent(r.Context(), tmpl, req.Date)
		}
		if err != nil {
			s.writeDomainError(w, err)
			return
		}

		event, err := s.Scheduler.GetEvent(r.Context(), id)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSONStatus(w, http.StatusCreated, event)
	}
}

func (s *Server) getEventHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		event, err := s.Scheduler.GetEvent(r.Context(), r.PathValue("id"))
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, event)
	}
}

func (s *Server) rescheduleHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DateRequest
		if err := decode(r, &req); err != nil {
			s.writeDomainError(w, err)
			return
		}
		id := r.PathValue("id")
		if err := s.Scheduler.Reschedule(r.Context(), id, req.Date); err != nil {
			s.writeDomainError(w, err)
			return
		}
		event, err := s.Scheduler.GetEvent(r.Context(), id)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, event)
	}
}

func (s *Server) executeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		executed, err := s.Executor.ExecuteEvent(r.Context(), id)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		event, err := s.Scheduler.GetEvent(r.Context(), id)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, ExecuteResponse{Executed: executed, Event: event})
	}
}

func (s *Server) runDueHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := s.Executor.CheckAndExecuteDueEvents(r.Context())
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, report)
	}
}

// getPacketHandler returns the stored packet, generating it on first access
func (s *Server) getPacketHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		date, err := domain.ParseDate(r.PathValue("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
			return
		}

		p, err := s.Packets.Get(r.Context(), date)
		if errors.Is(err, domain.ErrNotFound) {
			p, err = s.Packets.Generate(r.Context(), date)
		}
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, p)
	}
}

func (s *Server) generatePacketHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		date, err := domain.ParseDate(r.PathValue("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
			return
		}
		p, err := s.Packets.Generate(r.Context(), date)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, p)
	}
}

func (s *Server) templatesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if v := r.URL.Query().Get("type"); v != "" {
			t, err := domain.ParseEventType(v)
			if err != nil {
				s.writeDomainError(w, err)
				return
			}
			out := s.Templates.ByType(t)
			if out == nil {
				out = []domain.EventTemplate{}
			}
			writeJSON(w, out)
			return
		}
		writeJSON(w, s.Templates.All())
	}
}
