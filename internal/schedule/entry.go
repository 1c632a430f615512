package schedule

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"dashcal/internal/model"
)

var (
	errMissingTitle = errors.New("missing title")
	errMissingStart = errors.New("missing start")
	errMissingEnd   = errors.New("missing end")
	errMissingType  = errors.New("missing type")
	errEndNotAfter  = errors.New("end is not after start")
)

// Entry is one element of a generated schedule after validation: either a
// ValidEvent or a MalformedEntry.
type Entry interface {
	isEntry()
}

// ValidEvent is an entry that passed validation. Its ID is not yet set.
type ValidEvent struct {
	Event model.Event
}

// MalformedEntry is an entry that was rejected, with the reason.
type MalformedEntry struct {
	Index  int
	Raw    string
	Reason error
}

func (ValidEvent) isEntry()     {}
func (MalformedEntry) isEntry() {}

// rawEvent is the declared response item shape. Pointers distinguish a
// missing field from an empty one.
type rawEvent struct {
	Title       *string `json:"title"`
	Start       *string `json:"start"`
	End         *string `json:"end"`
	Description *string `json:"description"`
	Type        *string `json:"type"`
}

// zone-less layouts accepted in addition to RFC 3339.
var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseTimestamp parses an ISO-8601 timestamp. Values without an offset are
// read in loc.
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.In(loc), nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

// Classify validates every element of a decoded response array.
func Classify(items []json.RawMessage, loc *time.Location) []Entry {
	out := make([]Entry, 0, len(items))
	for i, item := range items {
		ev, err := validate(item, loc)
		if err != nil {
			out = append(out, MalformedEntry{Index: i, Raw: string(item), Reason: err})
			continue
		}
		out = append(out, ValidEvent{Event: ev})
	}
	return out
}

func validate(item json.RawMessage, loc *time.Location) (model.Event, error) {
	var raw rawEvent
	if err := json.Unmarshal(item, &raw); err != nil {
		return model.Event{}, fmt.Errorf("not an object: %w", err)
	}

	switch {
	case raw.Title == nil || strings.TrimSpace(*raw.Title) == "":
		return model.Event{}, errMissingTitle
	case raw.Start == nil:
		return model.Event{}, errMissingStart
	case raw.End == nil:
		return model.Event{}, errMissingEnd
	case raw.Type == nil || strings.TrimSpace(*raw.Type) == "":
		return model.Event{}, errMissingType
	}

	start, err := ParseTimestamp(*raw.Start, loc)
	if err != nil {
		return model.Event{}, fmt.Errorf("start: %w", err)
	}
	end, err := ParseTimestamp(*raw.End, loc)
	if err != nil {
		return model.Event{}, fmt.Errorf("end: %w", err)
	}
	if !end.After(start) {
		return model.Event{}, errEndNotAfter
	}

	ev := model.Event{
		Title: strings.TrimSpace(*raw.Title),
		Start: start,
		End:   end,
		Type:  model.ParseEventType(*raw.Type),
	}
	if raw.Description != nil {
		ev.Description = strings.TrimSpace(*raw.Description)
	}
	return ev, nil
}
