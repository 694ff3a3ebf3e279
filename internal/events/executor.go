package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hochfrequenz/scenario-sim/internal/domain"
	"github.com/hochfrequenz/scenario-sim/internal/observability"
)

// FiredFunc receives the events that transitioned to executed. A catch-up
// pass delivers all of its events in one call, in firing order.
type FiredFunc func(fired []domain.ScheduledEvent)

// Executor fires due events exactly once
type Executor struct {
	store Store
	clock DateSource
	log   *slog.Logger

	mu    sync.RWMutex
	fired []FiredFunc
}

// NewExecutor creates an Executor that stamps executions with clock's date
func NewExecutor(store Store, clock DateSource, logger *slog.Logger) *Executor {
	return &Executor{
		store: store,
		clock: clock,
		log:   observability.For(logger, observability.ChannelSystem),
	}
}

// OnFired registers a collaborator to react to executed events
func (x *Executor) OnFired(fn FiredFunc) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.fired = append(x.fired, fn)
}

// ExecuteEvent executes one event at the clock's current date. It reports
// whether this call performed the transition; executing an already executed
// event is a logged no-op.
func (x *Executor) ExecuteEvent(ctx context.Context, id string) (bool, error) {
	event, err := x.executeAt(ctx, id, x.clock.CurrentDate())
	if err != nil || event == nil {
		return false, err
	}
	x.emit([]domain.ScheduledEvent{*event})
	return true, nil
}

// executeAt returns the executed event, or nil when it had already fired
func (x *Executor) executeAt(ctx context.Context, id string, now domain.Date) (*domain.ScheduledEvent, error) {
	event, err := x.store.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}

	if event.Executed {
		x.log.Warn("Event already executed", "event_id", id, "executed_at", event.ExecutedAt.String())
		return nil, nil
	}

	changed, err := x.store.MarkEventExecuted(ctx, id, now)
	if err != nil {
		return nil, err
	}
	if !changed {
		x.log.Warn("Event already executed", "event_id", id)
		return nil, nil
	}

	event.Executed = true
	event.ExecutedAt = &now

	x.log.Info("Event executed", "event_id", id, "name", event.Name, "type", string(event.Type), "date", now.String())
	return event, nil
}

// CheckAndExecuteDueEvents fires every due event as of the clock's date
func (x *Executor) CheckAndExecuteDueEvents(ctx context.Context) (*domain.ExecutionReport, error) {
	return x.RunDue(ctx, x.clock.CurrentDate())
}

// RunDue fires every unexecuted event scheduled on or before now, in
// chronological then creation order. A failing event does not stop the
// pass; failures are collected in the report. The returned error is only
// set when the due events could not be listed at all.
func (x *Executor) RunDue(ctx context.Context, now domain.Date) (*domain.ExecutionReport, error) {
	unexecuted := false
	due, err := x.store.ListEvents(ctx, domain.EventFilter{Executed: &unexecuted, To: now})
	if err != nil {
		return nil, fmt.Errorf("listing due events: %w", err)
	}

	report := &domain.ExecutionReport{AsOf: now}
	var fired []domain.ScheduledEvent
	for _, event := range due {
		if err := ctx.Err(); err != nil {
			report.Fail(event.ID, err)
			continue
		}

		executed, err := x.executeAt(ctx, event.ID, now)
		switch {
		case err != nil:
			x.log.Error("Event execution failed", "event_id", event.ID, "error", err)
			report.Fail(event.ID, err)
		case executed != nil:
			report.Executed = append(report.Executed, event.ID)
			fired = append(fired, *executed)
		default:
			report.Skipped = append(report.Skipped, event.ID)
		}
	}

	if len(fired) > 0 {
		x.emit(fired)
	}
	if len(due) > 0 {
		x.log.Info("Due events processed", "date", now.String(), "executed", len(report.Executed), "failed", len(report.Failed))
	}
	return report, nil
}

func (x *Executor) emit(fired []domain.ScheduledEvent) {
	x.mu.RLock()
	fns := make([]FiredFunc, len(x.fired))
	copy(fns, x.fired)
	x.mu.RUnlock()

	for _, fn := range fns {
		fn(fired)
	}
}
