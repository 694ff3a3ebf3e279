// Package storetest holds the behavioural contract every simulation
// persistence implementation must satisfy.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hochfrequenz/scenario-sim/internal/domain"
)

// Port is the full persistence surface used by the engine
type Port interface {
	CreateBranch(ctx context.Context, b *domain.TimelineBranch) error
	GetBranch(ctx context.Context, id string) (*domain.TimelineBranch, error)
	ListBranches(ctx context.Context) ([]*domain.TimelineBranch, error)
	UpdateBranchDate(ctx context.Context, id string, date domain.Date) error
	ActiveBranchID(ctx context.Context) (string, error)
	SetActiveBranch(ctx context.Context, id string) error

	InsertEvent(ctx context.Context, e *domain.ScheduledEvent) error
	GetEvent(ctx context.Context, id string) (*domain.ScheduledEvent, error)
	ListEvents(ctx context.Context, f domain.EventFilter) ([]*domain.ScheduledEvent, error)
	MarkEventExecuted(ctx context.Context, id string, at domain.Date) (bool, error)
	RescheduleEvent(ctx context.Context, id string, date domain.Date) error

	SavePacket(ctx context.Context, p *domain.DayPacket) error
	GetPacket(ctx context.Context, date domain.Date) (*domain.DayPacket, error)
	ListPacketDates(ctx context.Context) ([]domain.Date, error)
	DeletePacketsAfter(ctx context.Context, date domain.Date) (int, error)

	PutFinanceSnapshots(ctx context.Context, snaps []domain.FinanceSnapshot) error
	FinanceAsOf(ctx context.Context, date domain.Date) (*domain.FinanceSnapshot, error)
	CountFinanceSnapshots(ctx context.Context) (int, error)

	Close() error
}

// Run executes the contract against fresh stores produced by open
func Run(t *testing.T, open func(t *testing.T) Port) {
	t.Run("Branches", func(t *testing.T) { testBranches(t, open(t)) })
	t.Run("ActivePointer", func(t *testing.T) { testActivePointer(t, open(t)) })
	t.Run("EventOrdering", func(t *testing.T) { testEventOrdering(t, open(t)) })
	t.Run("EventFilters", func(t *testing.T) { testEventFilters(t, open(t)) })
	t.Run("MarkExecutedOnce", func(t *testing.T) { testMarkExecutedOnce(t, open(t)) })
	t.Run("Reschedule", func(t *testing.T) { testReschedule(t, open(t)) })
	t.Run("Packets", func(t *testing.T) { testPackets(t, open(t)) })
	t.Run("Finance", func(t *testing.T) { testFinance(t, open(t)) })
}

func d(s string) domain.Date { return domain.MustParseDate(s) }

func newBranch(id, name, date string) *domain.TimelineBranch {
	return &domain.TimelineBranch{
		ID:           id,
		Name:         name,
		BranchedFrom: d(date),
		CurrentDate:  d(date),
		CreatedAt:    time.Now(),
	}
}

func newEvent(id string, typ domain.EventType, date string) *domain.ScheduledEvent {
	return &domain.ScheduledEvent{
		ID:           id,
		Name:         "event " + id,
		Type:         typ,
		ScheduledFor: d(date),
		Payload:      map[string]any{"severity": "high"},
		CreatedAt:    time.Now(),
	}
}

func testBranches(t *testing.T, s Port) {
	ctx := context.Background()
	defer s.Close()

	if err := s.CreateBranch(ctx, newBranch("b1", "Main", "2025-02-01")); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateBranch(ctx, newBranch("b2", "What-if", "2025-02-10")); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetBranch(ctx, "b2")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "What-if" || got.CurrentDate.String() != "2025-02-10" || got.BranchedFrom.String() != "2025-02-10" {
		t.Errorf("GetBranch = %+v", got)
	}
	if got.IsActive {
		t.Error("new branch should not be active")
	}

	if err := s.UpdateBranchDate(ctx, "b1", d("2025-02-06")); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetBranch(ctx, "b1")
	if got.CurrentDate.String() != "2025-02-06" {
		t.Errorf("CurrentDate = %s, want 2025-02-06", got.CurrentDate)
	}
	if got.BranchedFrom.String() != "2025-02-01" {
		t.Errorf("BranchedFrom changed to %s", got.BranchedFrom)
	}

	all, err := s.ListBranches(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[0].ID != "b1" || all[1].ID != "b2" {
		t.Errorf("ListBranches order = %v", branchIDs(all))
	}

	if _, err := s.GetBranch(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetBranch(missing) error = %v, want ErrNotFound", err)
	}
	if err := s.UpdateBranchDate(ctx, "missing", d("2025-01-01")); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("UpdateBranchDate(missing) error = %v, want ErrNotFound", err)
	}
}

func testActivePointer(t *testing.T, s Port) {
	ctx := context.Background()
	defer s.Close()

	id, err := s.ActiveBranchID(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if id != "" {
		t.Errorf("ActiveBranchID on empty store = %q, want empty", id)
	}

	for _, b := range []*domain.TimelineBranch{newBranch("b1", "A", "2025-01-01"), newBranch("b2", "B", "2025-01-01")} {
		if err := s.CreateBranch(ctx, b); err != nil {
			t.Fatal(err)
		}
	}

	if err := s.SetActiveBranch(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("SetActiveBranch(missing) error = %v, want ErrNotFound", err)
	}

	for _, target := range []string{"b1", "b2", "b1"} {
		if err := s.SetActiveBranch(ctx, target); err != nil {
			t.Fatal(err)
		}
		all, err := s.ListBranches(ctx)
		if err != nil {
			t.Fatal(err)
		}
		active := 0
		for _, b := range all {
			if b.IsActive {
				active++
				if b.ID != target {
					t.Errorf("active branch = %s, want %s", b.ID, target)
				}
			}
		}
		if active != 1 {
			t.Errorf("active count = %d, want 1", active)
		}
	}

	id, _ = s.ActiveBranchID(ctx)
	if id != "b1" {
		t.Errorf("ActiveBranchID = %q, want b1", id)
	}
}

func testEventOrdering(t *testing.T, s Port) {
	ctx := context.Background()
	defer s.Close()

	// Inserted out of date order; e2 and e3 share a date.
	inserts := []*domain.ScheduledEvent{
		newEvent("e1", domain.EventBait, "2025-01-10"),
		newEvent("e2", domain.EventSmallProblem, "2025-01-05"),
		newEvent("e3", domain.EventSmallProblem, "2025-01-05"),
		newEvent("e4", domain.EventCustom, "2025-01-01"),
	}
	var lastSeq int64
	for _, e := range inserts {
		if err := s.InsertEvent(ctx, e); err != nil {
			t.Fatal(err)
		}
		if e.Seq <= lastSeq {
			t.Errorf("Seq = %d, want > %d", e.Seq, lastSeq)
		}
		lastSeq = e.Seq
	}

	events, err := s.ListEvents(ctx, domain.EventFilter{})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"e4", "e2", "e3", "e1"}
	if got := eventIDs(events); !equal(got, want) {
		t.Errorf("ListEvents order = %v, want %v", got, want)
	}

	got, err := s.GetEvent(ctx, "e1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Payload["severity"] != "high" {
		t.Errorf("Payload = %v", got.Payload)
	}
	if got.Executed || got.ExecutedAt != nil {
		t.Error("new event should be unexecuted")
	}
}

func testEventFilters(t *testing.T, s Port) {
	ctx := context.Background()
	defer s.Close()

	for _, e := range []*domain.ScheduledEvent{
		newEvent("e1", domain.EventSmallProblem, "2025-01-05"),
		newEvent("e2", domain.EventBait, "2025-01-10"),
		newEvent("e3", domain.EventBait, "2025-01-20"),
	} {
		if err := s.InsertEvent(ctx, e); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.MarkEventExecuted(ctx, "e2", d("2025-01-12")); err != nil {
		t.Fatal(err)
	}

	unexecuted := false
	executed := true
	tests := []struct {
		name   string
		filter domain.EventFilter
		want   []string
	}{
		{"type", domain.EventFilter{Type: domain.EventBait}, []string{"e2", "e3"}},
		{"unexecuted", domain.EventFilter{Executed: &unexecuted}, []string{"e1", "e3"}},
		{"executed", domain.EventFilter{Executed: &executed}, []string{"e2"}},
		{"window inclusive", domain.EventFilter{From: d("2025-01-05"), To: d("2025-01-10")}, []string{"e1", "e2"}},
		{"due", domain.EventFilter{Executed: &unexecuted, To: d("2025-01-10")}, []string{"e1"}},
		{"executed on", domain.EventFilter{ExecutedOn: d("2025-01-12")}, []string{"e2"}},
		{"executed on other day", domain.EventFilter{ExecutedOn: d("2025-01-11")}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := s.ListEvents(ctx, tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			if got := eventIDs(events); !equal(got, tt.want) {
				t.Errorf("ListEvents = %v, want %v", got, tt.want)
			}
		})
	}
}

func testMarkExecutedOnce(t *testing.T, s Port) {
	ctx := context.Background()
	defer s.Close()

	if err := s.InsertEvent(ctx, newEvent("e1", domain.EventBait, "2025-01-05")); err != nil {
		t.Fatal(err)
	}

	changed, err := s.MarkEventExecuted(ctx, "e1", d("2025-01-13"))
	if err != nil {
		t.Fatal(err)
	}
	if !changed {
		t.Error("first MarkEventExecuted should report a change")
	}

	changed, err = s.MarkEventExecuted(ctx, "e1", d("2025-02-01"))
	if err != nil {
		t.Fatal(err)
	}
	if changed {
		t.Error("second MarkEventExecuted should be a no-op")
	}

	got, _ := s.GetEvent(ctx, "e1")
	if !got.Executed || got.ExecutedAt == nil || got.ExecutedAt.String() != "2025-01-13" {
		t.Errorf("event after double execution = executed:%v at:%v", got.Executed, got.ExecutedAt)
	}

	if _, err := s.MarkEventExecuted(ctx, "missing", d("2025-01-13")); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("MarkEventExecuted(missing) error = %v, want ErrNotFound", err)
	}
}

func testReschedule(t *testing.T, s Port) {
	ctx := context.Background()
	defer s.Close()

	for _, e := range []*domain.ScheduledEvent{
		newEvent("e1", domain.EventBait, "2025-01-05"),
		newEvent("e2", domain.EventBait, "2025-01-06"),
	} {
		if err := s.InsertEvent(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	if err := s.RescheduleEvent(ctx, "e1", d("2025-03-01")); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetEvent(ctx, "e1")
	if got.ScheduledFor.String() != "2025-03-01" {
		t.Errorf("ScheduledFor = %s, want 2025-03-01", got.ScheduledFor)
	}

	if _, err := s.MarkEventExecuted(ctx, "e2", d("2025-01-06")); err != nil {
		t.Fatal(err)
	}
	if err := s.RescheduleEvent(ctx, "e2", d("2025-04-01")); !errors.Is(err, domain.ErrInvalidOperation) {
		t.Errorf("RescheduleEvent(executed) error = %v, want ErrInvalidOperation", err)
	}
	got, _ = s.GetEvent(ctx, "e2")
	if got.ScheduledFor.String() != "2025-01-06" {
		t.Errorf("executed event ScheduledFor changed to %s", got.ScheduledFor)
	}

	if err := s.RescheduleEvent(ctx, "missing", d("2025-04-01")); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("RescheduleEvent(missing) error = %v, want ErrNotFound", err)
	}
}

func testPackets(t *testing.T, s Port) {
	ctx := context.Background()
	defer s.Close()

	for _, date := range []string{"2025-01-01", "2025-01-02", "2025-01-03"} {
		p := &domain.DayPacket{
			ID:            "p-" + date,
			Date:          d(date),
			CompanyStatus: domain.CompanyStatus{AsOf: d(date), Stage: "Week 1 - Benign"},
			Finance:       domain.FinanceSnapshot{AsOf: d(date), Headcount: 481},
			CreatedAt:     time.Now(),
		}
		if err := s.SavePacket(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.GetPacket(ctx, d("2025-01-02"))
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "p-2025-01-02" || got.Finance.Headcount != 481 || got.CompanyStatus.Stage != "Week 1 - Benign" {
		t.Errorf("GetPacket = %+v", got)
	}

	n, err := s.DeletePacketsAfter(ctx, d("2025-01-01"))
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("DeletePacketsAfter removed %d, want 2", n)
	}

	dates, err := s.ListPacketDates(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(dates) != 1 || dates[0].String() != "2025-01-01" {
		t.Errorf("remaining packets = %v", dates)
	}

	if _, err := s.GetPacket(ctx, d("2025-01-03")); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetPacket(deleted) error = %v, want ErrNotFound", err)
	}
}

func testFinance(t *testing.T, s Port) {
	ctx := context.Background()
	defer s.Close()

	if _, err := s.FinanceAsOf(ctx, d("2025-01-01")); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("FinanceAsOf on empty store error = %v, want ErrNotFound", err)
	}

	snaps := []domain.FinanceSnapshot{
		{AsOf: d("2025-01-01"), CashOnHandUSD: 100, Headcount: 481},
		{AsOf: d("2025-01-03"), CashOnHandUSD: 90, Headcount: 481},
	}
	if err := s.PutFinanceSnapshots(ctx, snaps); err != nil {
		t.Fatal(err)
	}

	got, err := s.FinanceAsOf(ctx, d("2025-01-02"))
	if err != nil {
		t.Fatal(err)
	}
	if got.AsOf.String() != "2025-01-01" || got.CashOnHandUSD != 100 {
		t.Errorf("FinanceAsOf(01-02) = %+v", got)
	}

	got, _ = s.FinanceAsOf(ctx, d("2025-06-01"))
	if got.AsOf.String() != "2025-01-03" {
		t.Errorf("FinanceAsOf(06-01) = %s, want 2025-01-03", got.AsOf)
	}

	n, err := s.CountFinanceSnapshots(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("CountFinanceSnapshots = %d, want 2", n)
	}
}

func branchIDs(bs []*domain.TimelineBranch) []string {
	var ids []string
	for _, b := range bs {
		ids = append(ids, b.ID)
	}
	return ids
}

func eventIDs(es []*domain.ScheduledEvent) []string {
	var ids []string
	for _, e := range es {
		ids = append(ids, e.ID)
	}
	return ids
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
