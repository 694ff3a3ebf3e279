package domain

import "fmt"

// EventType classifies a scheduled narrative event
type EventType string

const (
	EventSmallProblem EventType = "small_problem"
	EventBait         EventType = "bait"
	EventCustom       EventType = "custom"
)

// Valid reports whether t is one of the known event types
func (t EventType) Valid() bool {
	switch t {
	case EventSmallProblem, EventBait, EventCustom:
		return true
	}
	return false
}

// ParseEventType converts a string into an EventType
func ParseEventType(s string) (EventType, error) {
	t := EventType(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: unknown event type %q", ErrInvalidOperation, s)
	}
	return t, nil
}

// Site is a company location
type Site string

const (
	SiteRedwoodCity Site = "RWC"
	SiteShenzhen    Site = "SZX"
)
