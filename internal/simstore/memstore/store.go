// Package memstore is an in-memory implementation of the simulation
// persistence port. It is used by tests and by storage = "memory".
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hochfrequenz/scenario-sim/internal/domain"
)

// Store keeps all simulation records in maps guarded by a mutex
type Store struct {
	mu sync.RWMutex

	branches    map[string]*domain.TimelineBranch
	branchOrder []string
	active      string

	events  map[string]*domain.ScheduledEvent
	nextSeq int64

	packets map[string]*domain.DayPacket
	finance map[string]domain.FinanceSnapshot
}

// New creates an empty Store
func New() *Store {
	return &Store{
		branches: make(map[string]*domain.TimelineBranch),
		events:   make(map[string]*domain.ScheduledEvent),
		packets:  make(map[string]*domain.DayPacket),
		finance:  make(map[string]domain.FinanceSnapshot),
	}
}

func (s *Store) CreateBranch(_ context.Context, b *domain.TimelineBranch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.branches[b.ID]; exists {
		return domain.Persistence("create branch", fmt.Errorf("branch %s already exists", b.ID))
	}
	c := b.Clone()
	c.IsActive = false
	s.branches[b.ID] = c
	s.branchOrder = append(s.branchOrder, b.ID)
	return nil
}

func (s *Store) GetBranch(_ context.Context, id string) (*domain.TimelineBranch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.branches[id]
	if !ok {
		return nil, fmt.Errorf("branch %s: %w", id, domain.ErrNotFound)
	}
	return s.view(b), nil
}

func (s *Store) ListBranches(_ context.Context) ([]*domain.TimelineBranch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.TimelineBranch, 0, len(s.branchOrder))
	for _, id := range s.branchOrder {
		out = append(out, s.view(s.branches[id]))
	}
	return out, nil
}

func (s *Store) UpdateBranchDate(_ context.Context, id string, date domain.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.branches[id]
	if !ok {
		return fmt.Errorf("branch %s: %w", id, domain.ErrNotFound)
	}
	b.CurrentDate = date
	return nil
}

func (s *Store) ActiveBranchID(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active, nil
}

func (s *Store) SetActiveBranch(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.branches[id]; !ok {
		return fmt.Errorf("branch %s: %w", id, domain.ErrNotFound)
	}
	s.active = id
	return nil
}

// view copies a branch and derives IsActive from the pointer
func (s *Store) view(b *domain.TimelineBranch) *domain.TimelineBranch {
	c := b.Clone()
	c.IsActive = b.ID == s.active
	return c
}

func (s *Store) InsertEvent(_ context.Context, e *domain.ScheduledEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.events[e.ID]; exists {
		return domain.Persistence("insert event", fmt.Errorf("event %s already exists", e.ID))
	}
	s.nextSeq++
	e.Seq = s.nextSeq
	s.events[e.ID] = e.Clone()
	return nil
}

func (s *Store) GetEvent(_ context.Context, id string) (*domain.ScheduledEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.events[id]
	if !ok {
		return nil, fmt.Errorf("event %s: %w", id, domain.ErrNotFound)
	}
	return e.Clone(), nil
}

func (s *Store) ListEvents(_ context.Context, f domain.EventFilter) ([]*domain.ScheduledEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.ScheduledEvent
	for _, e := range s.events {
		if f.Matches(e) {
			out = append(out, e.Clone())
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if c := out[i].ScheduledFor.Compare(out[j].ScheduledFor); c != 0 {
			return c < 0
		}
		return out[i].Seq < out[j].Seq
	})
	return out, nil
}

func (s *Store) MarkEventExecuted(_ context.Context, id string, at domain.Date) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[id]
	if !ok {
		return false, fmt.Errorf("event %s: %w", id, domain.ErrNotFound)
	}
	if e.Executed {
		return false, nil
	}
	e.Executed = true
	e.ExecutedAt = &at
	return true, nil
}

func (s *Store) RescheduleEvent(_ context.Context, id string, date domain.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[id]
	if !ok {
		return fmt.Errorf("event %s: %w", id, domain.ErrNotFound)
	}
	if e.Executed {
		return fmt.Errorf("%w: event %s already executed", domain.ErrInvalidOperation, id)
	}
	e.ScheduledFor = date
	return nil
}

func (s *Store) SavePacket(_ context.Context, p *domain.DayPacket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *p
	s.packets[p.Date.String()] = &c
	return nil
}

func (s *Store) GetPacket(_ context.Context, date domain.Date) (*domain.DayPacket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.packets[date.String()]
	if !ok {
		return nil, fmt.Errorf("packet %s: %w", date, domain.ErrNotFound)
	}
	c := *p
	return &c, nil
}

func (s *Store) ListPacketDates(_ context.Context) ([]domain.Date, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dates := make([]domain.Date, 0, len(s.packets))
	for _, p := range s.packets {
		dates = append(dates, p.Date)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}

func (s *Store) DeletePacketsAfter(_ context.Context, date domain.Date) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key, p := range s.packets {
		if p.Date.After(date) {
			delete(s.packets, key)
			n++
		}
	}
	return n, nil
}

func (s *Store) PutFinanceSnapshots(_ context.Context, snaps []domain.FinanceSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range snaps {
		s.finance[f.AsOf.String()] = f
	}
	return nil
}

func (s *Store) FinanceAsOf(_ context.Context, date domain.Date) (*domain.FinanceSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *domain.FinanceSnapshot
	for _, f := range s.finance {
		if f.AsOf.After(date) {
			continue
		}
		if best == nil || f.AsOf.After(best.AsOf) {
			f := f
			best = &f
		}
	}
	if best == nil {
		return nil, fmt.Errorf("finance snapshot as of %s: %w", date, domain.ErrNotFound)
	}
	return best, nil
}

func (s *Store) CountFinanceSnapshots(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.finance), nil
}

func (s *Store) Close() error {
	return nil
}
