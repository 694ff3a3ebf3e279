package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/hochfrequenz/scenario-sim/internal/domain"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("255")).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	runningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	pausedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("255"))

	tabActiveStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			Underline(true)

	tabInactiveStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("244"))

	baitStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	problemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	customStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39"))

	dimmedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	selectedStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("237"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))
)

var tabNames = [tabCount]string{"Dashboard", "Branches", "Events"}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder

	clockState := runningStyle.Render("RUNNING")
	if m.state.IsPaused {
		clockState = pausedStyle.Render("PAUSED")
	}
	header := fmt.Sprintf(" Scenario Simulator │ %s │ %s │ Day %d │ Branch: %s ",
		m.state.CurrentDate, clockState, m.dayNumber(), m.activeBranchName())
	b.WriteString(headerStyle.Width(m.width).Render(header))
	b.WriteString("\n")

	b.WriteString(m.renderTabs())
	b.WriteString("\n")

	var section string
	switch m.activeTab {
	case TabBranches:
		section = m.renderBranches()
	case TabEvents:
		section = m.renderEvents("All Events", m.all)
	default:
		section = m.renderEvents("Upcoming Events", m.upcoming)
	}
	b.WriteString(sectionStyle.Width(m.width - 2).Render(section))
	b.WriteString("\n")

	b.WriteString(m.renderStatusBar())
	return b.String()
}

func (m Model) renderTabs() string {
	var tabs []string
	for i, name := range tabNames {
		if i == m.activeTab {
			tabs = append(tabs, tabActiveStyle.Render(name))
		} else {
			tabs = append(tabs, tabInactiveStyle.Render(name))
		}
	}
	return " " + strings.Join(tabs, "  ")
}

func (m Model) renderBranches() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Timeline Branches"))
	b.WriteString("\n")

	if len(m.state.Branches) == 0 {
		b.WriteString(dimmedStyle.Render("  No branches. Create one with `simctl branch create`."))
		return b.String()
	}

	for i, br := range m.state.Branches {
		marker := "  "
		if br.IsActive {
			marker = runningStyle.Render("● ")
		}
		line := fmt.Sprintf("%s%-24s from %s  at %s", marker, truncate(br.Name, 24), br.BranchedFrom, br.CurrentDate)
		if m.activeTab == TabBranches && i == m.selectedRow {
			line = selectedStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString(dimmedStyle.Render("  enter: switch to selected branch"))
	return b.String()
}

func (m Model) renderEvents(title string, events []*domain.ScheduledEvent) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")

	if len(events) == 0 {
		b.WriteString(dimmedStyle.Render("  Nothing scheduled"))
		return b.String()
	}

	for i, e := range events {
		when := e.ScheduledFor.String()
		if e.Executed && e.ExecutedAt != nil {
			when = "fired " + e.ExecutedAt.String()
		} else if days := e.ScheduledFor.DaysSince(m.state.CurrentDate); days > 0 {
			when = fmt.Sprintf("%s (in %dd)", when, days)
		}

		line := fmt.Sprintf("  %s  %-40s %s", typeBadge(e.Type), truncate(e.Name, 40), when)
		if e.Executed {
			line = dimmedStyle.Render(line)
		}
		if i == m.selectedRow {
			line = selectedStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) renderStatusBar() string {
	msg := m.status
	if m.lastErr != nil {
		msg = errorStyle.Render("Error: " + m.lastErr.Error())
	}
	help := "space: pause/resume │ n: +1 day │ tab: switch view │ r: refresh │ q: quit"
	if msg != "" {
		help = msg + " │ " + help
	}
	return statusBarStyle.Width(m.width).Render(" " + help)
}

func (m Model) dayNumber() int {
	if m.state.StartDate.IsZero() {
		return 1
	}
	return m.state.CurrentDate.DaysSince(m.state.StartDate) + 1
}

func (m Model) activeBranchName() string {
	for _, br := range m.state.Branches {
		if br.ID == m.state.ActiveBranchID {
			return br.Name
		}
	}
	return "none"
}

func typeBadge(t domain.EventType) string {
	switch t {
	case domain.EventBait:
		return baitStyle.Render("[bait]   ")
	case domain.EventSmallProblem:
		return problemStyle.Render("[problem]")
	default:
		return customStyle.Render("[custom] ")
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
