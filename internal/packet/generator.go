// Package packet assembles the day packet: the company's finance, status and
// the narrative produced by events executed on a date.
package packet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hochfrequenz/scenario-sim/internal/domain"
	"github.com/hochfrequenz/scenario-sim/internal/fixtures"
	"github.com/hochfrequenz/scenario-sim/internal/narrative"
	"github.com/hochfrequenz/scenario-sim/internal/observability"
)

// Store is the persistence the generator reads and writes
type Store interface {
	FinanceAsOf(ctx context.Context, date domain.Date) (*domain.FinanceSnapshot, error)
	SavePacket(ctx context.Context, p *domain.DayPacket) error
	GetPacket(ctx context.Context, date domain.Date) (*domain.DayPacket, error)
}

// EventQuerier is the scheduler's query surface
type EventQuerier interface {
	GetScheduledEvents(ctx context.Context, f domain.EventFilter) ([]*domain.ScheduledEvent, error)
}

// Clock supplies the simulated "now" and the scenario start
type Clock interface {
	CurrentDate() domain.Date
	StartDate() domain.Date
}

// Renderer turns an executed event into narrative text
type Renderer interface {
	Render(e domain.ScheduledEvent, date domain.Date) (*narrative.Rendered, error)
}

// Generator builds and stores day packets
type Generator struct {
	store    Store
	events   EventQuerier
	clock    Clock
	renderer Renderer
	staff    []domain.Employee
	log      *slog.Logger
}

// New creates a Generator. staff is the roster narrative roles resolve to.
func New(store Store, events EventQuerier, clock Clock, renderer Renderer, staff []domain.Employee, logger *slog.Logger) *Generator {
	return &Generator{
		store:    store,
		events:   events,
		clock:    clock,
		renderer: renderer,
		staff:    staff,
		log:      observability.For(logger, observability.ChannelSystem),
	}
}

// Generate assembles and stores the packet for date. Dates after the
// simulated "now" are rejected.
func (g *Generator) Generate(ctx context.Context, date domain.Date) (*domain.DayPacket, error) {
	if date.IsZero() {
		return nil, fmt.Errorf("%w: packet date is required", domain.ErrInvalidOperation)
	}
	if now := g.clock.CurrentDate(); date.After(now) {
		return nil, fmt.Errorf("%w: cannot generate packet for %s, simulation is at %s", domain.ErrInvalidOperation, date, now)
	}

	finance, err := g.finance(ctx, date)
	if err != nil {
		return nil, err
	}

	executed := true
	history, err := g.events.GetScheduledEvents(ctx, domain.EventFilter{Executed: &executed})
	if err != nil {
		return nil, err
	}

	p := &domain.DayPacket{
		ID:        uuid.NewString(),
		Date:      date,
		Meetings:  []domain.MeetingNote{},
		Emails:    []domain.Mail{},
		Messages:  []domain.DirectMessage{},
		Finance:   finance,
		CreatedAt: time.Now(),
	}

	var upTo []*domain.ScheduledEvent
	for _, e := range history {
		if e.ExecutedAt == nil || e.ExecutedAt.After(date) {
			continue
		}
		upTo = append(upTo, e)
		if e.ExecutedAt.Equal(date) {
			if err := g.addNarrative(p, *e); err != nil {
				return nil, err
			}
			p.Events = append(p.Events, e.ID)
		}
	}
	p.CompanyStatus = Status(g.clock.StartDate(), date, upTo)

	if err := g.store.SavePacket(ctx, p); err != nil {
		return nil, err
	}

	g.log.Info("Packet generated", "date", date.String(), "events", len(p.Events),
		"emails", len(p.Emails), "messages", len(p.Messages), "meetings", len(p.Meetings))
	return p, nil
}

// Get returns a previously generated packet
func (g *Generator) Get(ctx context.Context, date domain.Date) (*domain.DayPacket, error) {
	return g.store.GetPacket(ctx, date)
}

func (g *Generator) finance(ctx context.Context, date domain.Date) (domain.FinanceSnapshot, error) {
	snap, err := g.store.FinanceAsOf(ctx, date)
	if errors.Is(err, domain.ErrNotFound) {
		return fixtures.DefaultFinance(date), nil
	}
	if err != nil {
		return domain.FinanceSnapshot{}, err
	}
	return *snap, nil
}

func (g *Generator) addNarrative(p *domain.DayPacket, e domain.ScheduledEvent) error {
	r, err := g.renderer.Render(e, p.Date)
	if err != nil {
		return fmt.Errorf("event %s: %w", e.ID, err)
	}

	id := fmt.Sprintf("%s-%s", r.Meta.Kind, e.ID)
	switch r.Meta.Kind {
	case narrative.KindMail:
		subject := r.Subject
		if subject == "" {
			subject = e.Name
		}
		p.Emails = append(p.Emails, domain.Mail{
			ID:       id,
			SentAt:   p.Date,
			From:     g.email(r.Meta.FromRole),
			To:       g.emails(r.Meta.ToRoles),
			Subject:  subject,
			BodyText: r.Body,
			ThreadID: e.ID,
		})
	case narrative.KindMessage:
		to := ""
		if len(r.Meta.ToRoles) > 0 {
			to = g.name(r.Meta.ToRoles[0])
		}
		p.Messages = append(p.Messages, domain.DirectMessage{
			ID:       id,
			SentAt:   p.Date,
			From:     g.name(r.Meta.FromRole),
			To:       to,
			BodyText: r.Body,
			Channel:  r.Meta.Channel,
		})
	case narrative.KindMeeting:
		title := r.Title
		if title == "" {
			title = e.Name
		}
		attendees := make([]string, 0, len(r.Meta.AttendeeRoles))
		for _, role := range r.Meta.AttendeeRoles {
			attendees = append(attendees, g.name(role))
		}
		p.Meetings = append(p.Meetings, domain.MeetingNote{
			ID:              id,
			When:            p.Date,
			Title:           title,
			Attendees:       attendees,
			Tags:            append([]string{string(e.Type)}, r.Meta.Tags...),
			ContentMarkdown: r.Body,
		})
	}
	return nil
}

// Roles without a matching employee are shown as the role itself.
func (g *Generator) name(role string) string {
	if e, ok := fixtures.FindByRole(g.staff, role); ok {
		return e.Name
	}
	return role
}

func (g *Generator) email(role string) string {
	if e, ok := fixtures.FindByRole(g.staff, role); ok {
		return e.Email
	}
	return role
}

func (g *Generator) emails(roles []string) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		out = append(out, g.email(r))
	}
	return out
}
