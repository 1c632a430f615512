package model

import (
	"strings"
	"time"
)

// EventType classifies a calendar event for display styling.
type EventType string

const (
	TypeWork     EventType = "work"
	TypePersonal EventType = "personal"
	TypeMeeting  EventType = "meeting"
	TypeHealth   EventType = "health"
)

// KnownTypes lists the closed set of event types, in the order they are
// offered to the schedule generator.
var KnownTypes = []EventType{TypeWork, TypePersonal, TypeMeeting, TypeHealth}

// ClassOther is the display class for any type outside KnownTypes.
const ClassOther = "other"

// Known reports whether t is one of KnownTypes.
func (t EventType) Known() bool {
	switch t {
	case TypeWork, TypePersonal, TypeMeeting, TypeHealth:
		return true
	}
	return false
}

// Class returns the display class for t. Unrecognized types fall back to
// ClassOther rather than being rejected.
func (t EventType) Class() string {
	if t.Known() {
		return string(t)
	}
	return ClassOther
}

// ParseEventType normalizes a free-form type string. The result may be
// unknown; callers decide whether that matters.
func ParseEventType(s string) EventType {
	return EventType(strings.ToLower(strings.TrimSpace(s)))
}

// Event is a single calendar entry shown on the day grid.
type Event struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Description string    `json:"description,omitempty"`
	Type        EventType `json:"type"`
}

// Duration is End - Start. It may be zero or negative for degenerate events.
func (e Event) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// DefaultEvents returns the built-in seed schedule anchored to the day of
// now in loc.
func DefaultEvents(now time.Time, loc *time.Location) []Event {
	if loc == nil {
		loc = time.Local
	}
	day := now.In(loc)
	at := func(h, m int) time.Time {
		return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, loc)
	}

	return []Event{
		{
			ID:          "1",
			Title:       "Team Standup",
			Start:       at(10, 0),
			End:         at(10, 30),
			Type:        TypeWork,
			Description: "Daily sync with the engineering team.",
		},
		{
			ID:          "2",
			Title:       "Lunch with Sarah",
			Start:       at(12, 30),
			End:         at(13, 30),
			Type:        TypePersonal,
			Description: "Catch up at the new taco place.",
		},
		{
			ID:          "3",
			Title:       "Project Deep Work",
			Start:       at(14, 0),
			End:         at(16, 0),
			Type:        TypeWork,
			Description: "Focus time for the new feature implementation.",
		},
	}
}
