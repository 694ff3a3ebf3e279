// Package events schedules narrative events on the simulated calendar and
// fires them exactly once when the clock reaches their date.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hochfrequenz/scenario-sim/internal/domain"
	"github.com/hochfrequenz/scenario-sim/internal/observability"
)

// Store is the persistence both the scheduler and executor need
type Store interface {
	InsertEvent(ctx context.Context, e *domain.ScheduledEvent) error
	GetEvent(ctx context.Context, id string) (*domain.ScheduledEvent, error)
	ListEvents(ctx context.Context, f domain.EventFilter) ([]*domain.ScheduledEvent, error)
	MarkEventExecuted(ctx context.Context, id string, at domain.Date) (bool, error)
	RescheduleEvent(ctx context.Context, id string, date domain.Date) error
}

// DateSource supplies the simulated "now"
type DateSource interface {
	CurrentDate() domain.Date
}

// Scheduler is the durable registry of future narrative triggers
type Scheduler struct {
	store Store
	clock DateSource
	log   *slog.Logger
}

// NewScheduler creates a Scheduler. clock may be nil if ScheduleAfter is unused.
func NewScheduler(store Store, clock DateSource, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store: store,
		clock: clock,
		log:   observability.For(logger, observability.ChannelSystem),
	}
}

// ScheduleEvent binds a template to a trigger date and returns the new id.
// Scheduling the same template twice yields two independent events.
func (s *Scheduler) ScheduleEvent(ctx context.Context, tmpl domain.EventTemplate, date domain.Date) (string, error) {
	if strings.TrimSpace(tmpl.Name) == "" {
		return "", fmt.Errorf("%w: template name is required", domain.ErrInvalidOperation)
	}
	if !tmpl.Type.Valid() {
		return "", fmt.Errorf("%w: unknown event type %q", domain.ErrInvalidOperation, tmpl.Type)
	}
	if date.IsZero() {
		return "", fmt.Errorf("%w: scheduled date is required", domain.ErrInvalidOperation)
	}
	if err := date.Validate(); err != nil {
		return "", err
	}

	event := &domain.ScheduledEvent{
		ID:           uuid.NewString(),
		Name:         tmpl.Name,
		Type:         tmpl.Type,
		Description:  tmpl.Description,
		ScheduledFor: date,
		Payload:      tmpl.Payload,
		CreatedAt:    time.Now(),
	}
	if err := s.store.InsertEvent(ctx, event); err != nil {
		return "", err
	}

	s.log.Info("Event scheduled", "event_id", event.ID, "name", event.Name, "type", string(event.Type), "scheduled_for", date.String())
	return event.ID, nil
}

// ScheduleAfter schedules a template days after the current simulated date
func (s *Scheduler) ScheduleAfter(ctx context.Context, tmpl domain.EventTemplate, days int) (string, error) {
	if s.clock == nil {
		return "", fmt.Errorf("%w: no clock attached", domain.ErrInvalidOperation)
	}
	date, err := s.clock.CurrentDate().Shift(days)
	if err != nil {
		return "", err
	}
	return s.ScheduleEvent(ctx, tmpl, date)
}

// GetScheduledEvents returns matching events sorted by trigger date, ties
// broken by creation order
func (s *Scheduler) GetScheduledEvents(ctx context.Context, f domain.EventFilter) ([]*domain.ScheduledEvent, error) {
	return s.store.ListEvents(ctx, f)
}

// GetEvent returns a single event
func (s *Scheduler) GetEvent(ctx context.Context, id string) (*domain.ScheduledEvent, error) {
	return s.store.GetEvent(ctx, id)
}

// Reschedule moves an unexecuted event. Executed events cannot move.
func (s *Scheduler) Reschedule(ctx context.Context, id string, date domain.Date) error {
	if date.IsZero() {
		return fmt.Errorf("%w: new date is required", domain.ErrInvalidOperation)
	}
	if err := date.Validate(); err != nil {
		return err
	}

	event, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return err
	}
	if event.Executed {
		return fmt.Errorf("%w: event %s already executed on %s", domain.ErrInvalidOperation, id, event.ExecutedAt)
	}

	if err := s.store.RescheduleEvent(ctx, id, date); err != nil {
		return err
	}

	s.log.Info("Event rescheduled", "event_id", id, "from", event.ScheduledFor.String(), "to", date.String())
	return nil
}
