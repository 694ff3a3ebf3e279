package simstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hochfrequenz/scenario-sim/internal/domain"
)

const eventColumns = `seq, id, name, type, description, scheduled_for, payload, executed, executed_at, created_at`

// InsertEvent persists a new scheduled event and assigns its creation sequence
func (s *Store) InsertEvent(ctx context.Context, e *domain.ScheduledEvent) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO scheduled_events (id, name, type, description, scheduled_for, payload, executed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, FALSE, ?)
	`,
		e.ID,
		e.Name,
		string(e.Type),
		e.Description,
		e.ScheduledFor,
		string(payload),
		e.CreatedAt,
	)
	if err != nil {
		return domain.Persistence("insert event", err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return domain.Persistence("insert event", err)
	}
	e.Seq = seq
	return nil
}

// GetEvent retrieves an event by ID
func (s *Store) GetEvent(ctx context.Context, id string) (*domain.ScheduledEvent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM scheduled_events WHERE id = ?`, id)

	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, domain.Persistence("get event", err)
	}
	return e, nil
}

// ListEvents returns events matching the filter ordered by trigger date,
// then creation order
func (s *Store) ListEvents(ctx context.Context, f domain.EventFilter) ([]*domain.ScheduledEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM scheduled_events WHERE 1=1`
	var args []interface{}

	if f.Type != "" {
		query += " AND type = ?"
		args = append(args, string(f.Type))
	}
	if f.Executed != nil {
		query += " AND executed = ?"
		args = append(args, *f.Executed)
	}
	if !f.From.IsZero() {
		query += " AND scheduled_for >= ?"
		args = append(args, f.From)
	}
	if !f.To.IsZero() {
		query += " AND scheduled_for <= ?"
		args = append(args, f.To)
	}
	if !f.ExecutedOn.IsZero() {
		query += " AND executed_at = ?"
		args = append(args, f.ExecutedOn)
	}

	query += " ORDER BY scheduled_for, seq"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.Persistence("list events", err)
	}
	defer rows.Close()

	var events []*domain.ScheduledEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, domain.Persistence("list events", err)
		}
		events = append(events, e)
	}

	return events, domain.Persistence("list events", rows.Err())
}

// MarkEventExecuted flips the executed flag if it is still unset.
// It reports false when the event had already been executed.
func (s *Store) MarkEventExecuted(ctx context.Context, id string, at domain.Date) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE scheduled_events SET executed = TRUE, executed_at = ?
		WHERE id = ? AND executed = FALSE
	`, at, id)
	if err != nil {
		return false, domain.Persistence("mark event executed", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, domain.Persistence("mark event executed", err)
	}
	if n == 1 {
		return true, nil
	}

	if _, err := s.GetEvent(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// RescheduleEvent moves an unexecuted event to a new trigger date
func (s *Store) RescheduleEvent(ctx context.Context, id string, date domain.Date) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE scheduled_events SET scheduled_for = ?
		WHERE id = ? AND executed = FALSE
	`, date, id)
	if err != nil {
		return domain.Persistence("reschedule event", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Persistence("reschedule event", err)
	}
	if n == 1 {
		return nil
	}

	if _, err := s.GetEvent(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("%w: event %s already executed", domain.ErrInvalidOperation, id)
}

func scanEvent(row rowScanner) (*domain.ScheduledEvent, error) {
	var e domain.ScheduledEvent
	var eventType string
	var description, payload, executedAt sql.NullString
	var createdAt sql.NullTime

	err := row.Scan(&e.Seq, &e.ID, &e.Name, &eventType, &description, &e.ScheduledFor, &payload, &e.Executed, &executedAt, &createdAt)
	if err != nil {
		return nil, err
	}

	e.Type = domain.EventType(eventType)
	if description.Valid {
		e.Description = description.String
	}
	if createdAt.Valid {
		e.CreatedAt = createdAt.Time
	}
	if executedAt.Valid && executedAt.String != "" {
		at, err := domain.ParseDate(executedAt.String)
		if err != nil {
			return nil, err
		}
		e.ExecutedAt = &at
	}

	if payload.Valid && payload.String != "" && payload.String != "null" {
		if err := json.Unmarshal([]byte(payload.String), &e.Payload); err != nil {
			return nil, err
		}
	}

	return &e, nil
}
