package timeline_test

import (
	"context"
	"testing"
	"time"

	"github.com/hochfrequenz/scenario-sim/internal/domain"
	"github.com/hochfrequenz/scenario-sim/internal/simstore/memstore"
	"github.com/hochfrequenz/scenario-sim/internal/timeline"
)

func seedPackets(t *testing.T, store *memstore.Store, dates ...string) {
	t.Helper()
	for _, s := range dates {
		p := &domain.DayPacket{ID: "p-" + s, Date: d(s), CreatedAt: time.Now()}
		if err := store.SavePacket(context.Background(), p); err != nil {
			t.Fatal(err)
		}
	}
}

func TestEngine_RollbackPurgesPackets(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "2025-01-01", timeline.RollbackPurge)

	fired, _ := h.sched.ScheduleEvent(ctx, domain.EventTemplate{Name: "Audit Notice", Type: domain.EventSmallProblem}, d("2025-01-08"))

	if _, err := h.engine.JumpTo(ctx, d("2025-01-10")); err != nil {
		t.Fatal(err)
	}
	seedPackets(t, h.store, "2025-01-04", "2025-01-05", "2025-01-08", "2025-01-10")

	rb, err := h.engine.RollbackTo(ctx, d("2025-01-05"))
	if err != nil {
		t.Fatal(err)
	}
	if rb.PacketsPurged != 2 {
		t.Errorf("PacketsPurged = %d, want 2", rb.PacketsPurged)
	}
	if rb.From.String() != "2025-01-10" || rb.To.String() != "2025-01-05" {
		t.Errorf("rollback = %s -> %s", rb.From, rb.To)
	}
	if got := h.engine.CurrentDate().String(); got != "2025-01-05" {
		t.Errorf("CurrentDate = %s, want 2025-01-05", got)
	}

	dates, _ := h.store.ListPacketDates(ctx)
	if len(dates) != 2 || dates[1].String() != "2025-01-05" {
		t.Errorf("remaining packets = %v", dates)
	}

	// Executed events never revert, even when the rollback crosses them.
	e, _ := h.sched.GetEvent(ctx, fired)
	if !e.Executed || e.ExecutedAt.String() != "2025-01-10" {
		t.Errorf("event after rollback = executed:%v at:%v", e.Executed, e.ExecutedAt)
	}
}

func TestEngine_SoftRollbackKeepsPackets(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "2025-01-01", timeline.RollbackSoft)

	if _, err := h.engine.JumpTo(ctx, d("2025-01-10")); err != nil {
		t.Fatal(err)
	}
	seedPackets(t, h.store, "2025-01-04", "2025-01-08", "2025-01-10")

	rb, err := h.engine.RollbackTo(ctx, d("2025-01-05"))
	if err != nil {
		t.Fatal(err)
	}
	if rb.PacketsPurged != 0 || rb.Policy != timeline.RollbackSoft {
		t.Errorf("rollback = %+v", rb)
	}
	if got := h.engine.CurrentDate().String(); got != "2025-01-05" {
		t.Errorf("CurrentDate = %s, want 2025-01-05", got)
	}

	dates, _ := h.store.ListPacketDates(ctx)
	if len(dates) != 3 {
		t.Errorf("soft rollback removed packets: %v", dates)
	}
}

func TestParseRollbackPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    timeline.RollbackPolicy
		wantErr bool
	}{
		{"purge", timeline.RollbackPurge, false},
		{"SOFT", timeline.RollbackSoft, false},
		{"", timeline.RollbackPurge, false},
		{"hard", "", true},
	}
	for _, tt := range tests {
		got, err := timeline.ParseRollbackPolicy(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseRollbackPolicy(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseRollbackPolicy(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
