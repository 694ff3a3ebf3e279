package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hochfrequenz/scenario-sim/internal/domain"
	"github.com/hochfrequenz/scenario-sim/internal/events"
	"github.com/hochfrequenz/scenario-sim/internal/observability"
	"github.com/hochfrequenz/scenario-sim/internal/simstore/memstore"
	"github.com/hochfrequenz/scenario-sim/internal/timeline"
)

type fixture struct {
	engine *timeline.Engine
	sched  *events.Scheduler
	model  Model
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := observability.Discard()
	store := memstore.New()
	engine := timeline.New(store, timeline.Config{Logger: logger})
	engine.SetCatchUp(events.NewExecutor(store, engine, logger))
	start := domain.MustParseDate("2025-01-01")
	if _, err := engine.Initialize(context.Background(), &start); err != nil {
		t.Fatal(err)
	}
	sched := events.NewScheduler(store, engine, logger)

	m := NewModel(ModelConfig{Clock: engine, Events: sched})
	m.width = 120
	m.height = 40
	return &fixture{engine: engine, sched: sched, model: m}
}

// run executes cmd and feeds messages back into the model until no
// follow-up command remains
func run(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	if cmd == nil {
		t.Fatal("expected a command")
	}
	for i := 0; cmd != nil && i < 4; i++ {
		var next tea.Model
		next, cmd = m.Update(cmd())
		m = next.(Model)
	}
	return m
}

func press(m Model, key string) (Model, tea.Cmd) {
	var msg tea.KeyMsg
	switch key {
	case "space":
		msg = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	case "tab":
		msg = tea.KeyMsg{Type: tea.KeyTab}
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
	}
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func TestNewModel(t *testing.T) {
	f := newFixture(t)
	if f.model.state.CurrentDate.String() != "2025-01-01" {
		t.Errorf("state date = %s, want 2025-01-01", f.model.state.CurrentDate)
	}
	if f.model.activeTab != TabDashboard {
		t.Errorf("activeTab = %d, want dashboard", f.model.activeTab)
	}
}

func TestModel_PauseResumeAndTick(t *testing.T) {
	f := newFixture(t)
	m := f.model

	m, cmd := press(m, "n")
	m = run(t, m, cmd)
	if m.status != "Clock is paused" {
		t.Errorf("status = %q, want paused notice", m.status)
	}

	m, cmd = press(m, "space")
	m = run(t, m, cmd)
	if f.engine.State().IsPaused {
		t.Fatal("space did not resume the clock")
	}

	m, cmd = press(m, "n")
	m = run(t, m, cmd)
	if got := f.engine.CurrentDate().String(); got != "2025-01-02" {
		t.Errorf("CurrentDate = %s, want 2025-01-02", got)
	}
	if !strings.HasPrefix(m.status, "Advanced to 2025-01-02") {
		t.Errorf("status = %q", m.status)
	}
}

func TestModel_RefreshSplitsUpcoming(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tmpl := domain.EventTemplate{Name: "Reagent Delay", Type: domain.EventSmallProblem}

	f.sched.ScheduleEvent(ctx, tmpl, domain.MustParseDate("2025-01-01"))
	for i := 0; i < 10; i++ {
		f.sched.ScheduleEvent(ctx, tmpl, domain.MustParseDate("2025-02-01").AddDays(i))
	}
	f.engine.JumpTo(ctx, domain.MustParseDate("2025-01-01"))

	m := run(t, f.model, f.model.refreshCmd())
	if len(m.all) != 11 {
		t.Errorf("all = %d, want 11", len(m.all))
	}
	if len(m.Upcoming()) != upcomingLimit {
		t.Errorf("upcoming = %d, want %d", len(m.Upcoming()), upcomingLimit)
	}
	for _, e := range m.Upcoming() {
		if e.Executed {
			t.Errorf("executed event %s listed as upcoming", e.ID)
		}
	}
}

func TestModel_RefreshError(t *testing.T) {
	f := newFixture(t)
	next, _ := f.model.Update(RefreshMsg{State: f.engine.State(), Err: errors.New("disk on fire")})
	m := next.(Model)
	if !strings.Contains(m.View(), "disk on fire") {
		t.Error("error not shown in status bar")
	}
}

func TestModel_TabSwitching(t *testing.T) {
	m := newFixture(t).model

	for _, want := range []int{TabBranches, TabEvents, TabDashboard} {
		m, _ = press(m, "tab")
		if m.activeTab != want {
			t.Errorf("activeTab = %d, want %d", m.activeTab, want)
		}
	}

	m, _ = press(m, "e")
	if m.activeTab != TabEvents {
		t.Errorf("e: activeTab = %d, want events", m.activeTab)
	}
}

func TestModel_SwitchBranchFromList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	from := domain.MustParseDate("2025-06-01")
	if _, err := f.engine.CreateBranch(ctx, "Main", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := f.engine.CreateBranch(ctx, "Summer", &from); err != nil {
		t.Fatal(err)
	}

	m := run(t, f.model, f.model.refreshCmd())
	m, _ = press(m, "b")
	m, _ = press(m, "j")
	if m.selectedRow != 1 {
		t.Fatalf("selectedRow = %d, want 1", m.selectedRow)
	}

	m, cmd := press(m, "enter")
	m = run(t, m, cmd)
	if got := f.engine.CurrentDate().String(); got != "2025-06-01" {
		t.Errorf("CurrentDate = %s, want 2025-06-01", got)
	}
	if !strings.Contains(m.View(), "Branch: Summer") {
		t.Error("header does not show the active branch")
	}
}

func TestModel_View(t *testing.T) {
	m := newFixture(t).model

	view := m.View()
	for _, want := range []string{"2025-01-01", "PAUSED", "Day 1", "Upcoming Events", "Nothing scheduled"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q", want)
		}
	}

	m.width = 0
	if m.View() != "Loading..." {
		t.Error("zero width should render the loading screen")
	}
}

func TestModel_Quit(t *testing.T) {
	_, cmd := press(newFixture(t).model, "q")
	if cmd == nil {
		t.Fatal("q should return a command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should quit")
	}
}
