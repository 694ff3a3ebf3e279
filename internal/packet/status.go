package packet

import (
	"fmt"

	"github.com/hochfrequenz/scenario-sim/internal/domain"
)

const (
	levelBenign   = "Benign"
	levelElevated = "Elevated"
)

// Status derives the company stage from the scenario week and the events
// executed up to date. Any executed bait event elevates the stage.
func Status(start, date domain.Date, executed []*domain.ScheduledEvent) domain.CompanyStatus {
	week := 1
	if !start.IsZero() && date.After(start) {
		week = date.DaysSince(start)/7 + 1
	}

	level := levelBenign
	seen := make(map[string]bool)
	flags := []string{}
	for _, e := range executed {
		if e.Type == domain.EventBait {
			level = levelElevated
		}
		flag := riskFlag(e)
		if flag != "" && !seen[flag] {
			seen[flag] = true
			flags = append(flags, flag)
		}
	}

	return domain.CompanyStatus{
		AsOf:      date,
		Stage:     fmt.Sprintf("Week %d - %s", week, level),
		NextStage: fmt.Sprintf("Week %d - %s", week+1, level),
		RiskFlags: flags,
	}
}

func riskFlag(e *domain.ScheduledEvent) string {
	switch e.Type {
	case domain.EventBait:
		return "replacement-signal: " + e.Name
	case domain.EventSmallProblem:
		return "operational: " + e.Name
	default:
		return ""
	}
}
