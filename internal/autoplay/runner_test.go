package autoplay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hochfrequenz/scenario-sim/internal/domain"
	"github.com/hochfrequenz/scenario-sim/internal/observability"
	"github.com/hochfrequenz/scenario-sim/internal/timeline"
)

type fakeClock struct {
	mu     sync.Mutex
	paused bool
	days   []int
}

func (f *fakeClock) Tick(_ context.Context, days int) (timeline.Advance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	from := domain.MustParseDate("2025-01-01")
	if f.paused {
		return timeline.Advance{From: from, To: from}, nil
	}
	f.days = append(f.days, days)
	return timeline.Advance{From: from, To: from.AddDays(days), Applied: true}, nil
}

func (f *fakeClock) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.days)
}

// every fires at sub-second intervals for tests
type every time.Duration

func (e every) Next(t time.Time) time.Time { return t.Add(time.Duration(e)) }

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		cfg      Config
		wantErr  bool
		wantDays int
	}{
		{Config{Cron: "*/5 * * * *"}, false, 1},
		{Config{Cron: "@every 30s", DaysPerStep: 7}, false, 7},
		{Config{Cron: "0 */1 * * * *", DaysPerStep: 2}, false, 2},
		{Config{Cron: ""}, true, 0},
		{Config{Cron: "every tuesday"}, true, 0},
	}
	for _, tt := range tests {
		err := tt.cfg.Validate()
		if (err != nil) != tt.wantErr {
			t.Errorf("Validate(%q) error = %v, wantErr %v", tt.cfg.Cron, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && tt.cfg.DaysPerStep != tt.wantDays {
			t.Errorf("Validate(%q) DaysPerStep = %d, want %d", tt.cfg.Cron, tt.cfg.DaysPerStep, tt.wantDays)
		}
	}
}

func TestStep(t *testing.T) {
	clock := &fakeClock{}
	r, err := New(clock, Config{Cron: "@hourly", DaysPerStep: 3}, observability.Discard())
	if err != nil {
		t.Fatal(err)
	}

	r.Step(context.Background())
	if clock.calls() != 1 || clock.days[0] != 3 {
		t.Errorf("tick calls = %v, want [3]", clock.days)
	}
	if r.Steps() != 1 {
		t.Errorf("Steps = %d, want 1", r.Steps())
	}

	clock.paused = true
	r.Step(context.Background())
	if r.Steps() != 1 {
		t.Errorf("paused step counted: Steps = %d", r.Steps())
	}
}

func TestRun_FiresUntilCancelled(t *testing.T) {
	clock := &fakeClock{}
	r, err := New(clock, Config{Cron: "@hourly"}, observability.Discard())
	if err != nil {
		t.Fatal(err)
	}
	r.schedule = every(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for clock.calls() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("only %d ticks before deadline", clock.calls())
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}

	after := clock.calls()
	time.Sleep(50 * time.Millisecond)
	if clock.calls() != after {
		t.Error("runner kept ticking after Run returned")
	}
}
