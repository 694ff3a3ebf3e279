package tui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hochfrequenz/scenario-sim/internal/domain"
)

const upcomingLimit = 8

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.refreshCmd()
		case " ":
			return m, m.togglePauseCmd()
		case "n":
			return m, m.tickOneCmd()
		case "j", "down":
			if m.selectedRow < m.rowCount()-1 {
				m.selectedRow++
			}
		case "k", "up":
			if m.selectedRow > 0 {
				m.selectedRow--
			}
		case "tab":
			m.activeTab = (m.activeTab + 1) % tabCount
			m.selectedRow = 0
		case "b":
			m.activeTab = TabBranches
			m.selectedRow = 0
		case "e":
			m.activeTab = TabEvents
			m.selectedRow = 0
		case "enter":
			if m.activeTab == TabBranches && m.selectedRow < len(m.state.Branches) {
				return m, m.switchCmd(m.state.Branches[m.selectedRow].ID)
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case TickMsg:
		return m, tea.Batch(m.refreshCmd(), tickCmd(m.refreshEvery))

	case RefreshMsg:
		m.applyRefresh(msg)
		return m, nil

	case ActionMsg:
		m.status = msg.Status
		m.lastErr = msg.Err
		return m, m.refreshCmd()
	}

	return m, nil
}

func (m *Model) applyRefresh(msg RefreshMsg) {
	m.state = msg.State
	m.lastRefresh = time.Now()
	if msg.Err != nil {
		m.lastErr = msg.Err
		return
	}

	m.all = msg.Events
	m.upcoming = nil
	for _, e := range msg.Events {
		if !e.Executed && len(m.upcoming) < upcomingLimit {
			m.upcoming = append(m.upcoming, e)
		}
	}
	if m.selectedRow >= m.rowCount() {
		m.selectedRow = max(0, m.rowCount()-1)
	}
}

func (m Model) rowCount() int {
	switch m.activeTab {
	case TabBranches:
		return len(m.state.Branches)
	case TabEvents:
		return len(m.all)
	default:
		return len(m.upcoming)
	}
}

func (m Model) togglePauseCmd() tea.Cmd {
	clock, paused := m.clock, m.state.IsPaused
	return func() tea.Msg {
		if paused {
			clock.Resume()
			return ActionMsg{Status: "Resumed"}
		}
		clock.Pause()
		return ActionMsg{Status: "Paused"}
	}
}

func (m Model) tickOneCmd() tea.Cmd {
	clock := m.clock
	return func() tea.Msg {
		adv, err := clock.Tick(context.Background(), 1)
		switch {
		case err != nil:
			return ActionMsg{Err: err}
		case !adv.Applied:
			return ActionMsg{Status: "Clock is paused"}
		}
		status := fmt.Sprintf("Advanced to %s", adv.To)
		if adv.Report != nil && len(adv.Report.Executed) > 0 {
			status += fmt.Sprintf(", %d event(s) fired", len(adv.Report.Executed))
		}
		return ActionMsg{Status: status}
	}
}

func (m Model) switchCmd(id string) tea.Cmd {
	clock := m.clock
	return func() tea.Msg {
		adv, err := clock.SwitchBranch(context.Background(), id)
		if err != nil && !adv.Applied {
			return ActionMsg{Err: err}
		}
		return ActionMsg{Status: fmt.Sprintf("Switched branch, now at %s", adv.To), Err: err}
	}
}

// Upcoming returns the unexecuted events shown on the dashboard
func (m Model) Upcoming() []*domain.ScheduledEvent {
	return m.upcoming
}
