package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hochfrequenz/scenario-sim/internal/domain"
	"github.com/hochfrequenz/scenario-sim/internal/timeline"
)

// Tabs
const (
	TabDashboard = iota
	TabBranches
	TabEvents
	tabCount
)

// Clock is the engine surface the dashboard drives
type Clock interface {
	State() timeline.State
	Pause()
	Resume()
	Tick(ctx context.Context, days int) (timeline.Advance, error)
	SwitchBranch(ctx context.Context, id string) (timeline.Advance, error)
}

// EventLister lists scheduled events
type EventLister interface {
	GetScheduledEvents(ctx context.Context, f domain.EventFilter) ([]*domain.ScheduledEvent, error)
}

// Model is the TUI application model
type Model struct {
	clock  Clock
	events EventLister

	// Data
	state    timeline.State
	upcoming []*domain.ScheduledEvent
	all      []*domain.ScheduledEvent

	// UI state
	width       int
	height      int
	activeTab   int
	selectedRow int
	status      string
	lastErr     error

	// Refresh
	refreshEvery time.Duration
	lastRefresh  time.Time
}

// ModelConfig holds the collaborators of the TUI model
type ModelConfig struct {
	Clock        Clock
	Events       EventLister
	RefreshEvery time.Duration
}

// NewModel creates a new TUI model
func NewModel(cfg ModelConfig) Model {
	if cfg.RefreshEvery <= 0 {
		cfg.RefreshEvery = time.Second
	}
	return Model{
		clock:        cfg.Clock,
		events:       cfg.Events,
		state:        cfg.Clock.State(),
		refreshEvery: cfg.RefreshEvery,
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.refreshCmd(),
		tickCmd(m.refreshEvery),
	)
}

// TickMsg triggers a refresh
type TickMsg time.Time

func tickCmd(every time.Duration) tea.Cmd {
	return tea.Tick(every, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// RefreshMsg carries freshly loaded data
type RefreshMsg struct {
	State  timeline.State
	Events []*domain.ScheduledEvent
	Err    error
}

// ActionMsg reports the outcome of a clock action
type ActionMsg struct {
	Status string
	Err    error
}

func (m Model) refreshCmd() tea.Cmd {
	clock, events := m.clock, m.events
	return func() tea.Msg {
		msg := RefreshMsg{State: clock.State()}
		if events != nil {
			msg.Events, msg.Err = events.GetScheduledEvents(context.Background(), domain.EventFilter{})
		}
		return msg
	}
}
