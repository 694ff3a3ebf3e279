package domain

import (
	"errors"
	"fmt"
	"time"
)

// EventTemplate is a named narrative trigger that can be scheduled.
// The payload is opaque to the engine.
type EventTemplate struct {
	Name        string         `json:"name" yaml:"name"`
	Type        EventType      `json:"type" yaml:"type"`
	Description string         `json:"description" yaml:"description"`
	Payload     map[string]any `json:"payload,omitempty" yaml:"payload"`
}

// ScheduledEvent is a template bound to a trigger date
type ScheduledEvent struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Type         EventType      `json:"type"`
	Description  string         `json:"description,omitempty"`
	ScheduledFor Date           `json:"scheduled_for"`
	Payload      map[string]any `json:"payload,omitempty"`
	Executed     bool           `json:"executed"`
	ExecutedAt   *Date          `json:"executed_at,omitempty"`
	Seq          int64          `json:"seq"`
	CreatedAt    time.Time      `json:"created_at"`
}

// IsDue reports whether the event should fire at now
func (e *ScheduledEvent) IsDue(now Date) bool {
	return !e.Executed && !e.ScheduledFor.After(now)
}

// Clone returns a deep-enough copy; the payload map is shared
func (e *ScheduledEvent) Clone() *ScheduledEvent {
	if e == nil {
		return nil
	}
	c := *e
	if e.ExecutedAt != nil {
		at := *e.ExecutedAt
		c.ExecutedAt = &at
	}
	return &c
}

// EventFilter narrows a scheduled event query. Zero values mean "any".
type EventFilter struct {
	Type       EventType
	Executed   *bool
	From       Date
	To         Date
	ExecutedOn Date
}

// Matches applies the filter to a single event
func (f EventFilter) Matches(e *ScheduledEvent) bool {
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if f.Executed != nil && e.Executed != *f.Executed {
		return false
	}
	if !f.From.IsZero() && e.ScheduledFor.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.ScheduledFor.After(f.To) {
		return false
	}
	if !f.ExecutedOn.IsZero() && (e.ExecutedAt == nil || !e.ExecutedAt.Equal(f.ExecutedOn)) {
		return false
	}
	return true
}

// EventFailure records one event that could not be executed
type EventFailure struct {
	EventID string `json:"event_id"`
	Err     error  `json:"-"`
	Message string `json:"error"`
}

// ExecutionReport is the outcome of a catch-up pass
type ExecutionReport struct {
	AsOf     Date           `json:"as_of"`
	Executed []string       `json:"executed"`
	Skipped  []string       `json:"skipped,omitempty"`
	Failed   []EventFailure `json:"failed,omitempty"`
}

// Fail records a failed event
func (r *ExecutionReport) Fail(eventID string, err error) {
	r.Failed = append(r.Failed, EventFailure{EventID: eventID, Err: err, Message: err.Error()})
}

// Err joins all individual failures, or returns nil
func (r *ExecutionReport) Err() error {
	if r == nil || len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failed))
	for _, f := range r.Failed {
		errs = append(errs, fmt.Errorf("event %s: %w", f.EventID, f.Err))
	}
	return errors.Join(errs...)
}
