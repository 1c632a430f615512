package ics

import (
	"errors"
	"time"

	"github.com/teambition/rrule-go"

	appLog "dashcal/internal/log"
	"dashcal/internal/model"
)

const defaultMaxOccurrences = 500

// ExpandConfig bounds recurrence expansion.
type ExpandConfig struct {
	// Location is the display zone for the resulting events. Nil means
	// time.Local.
	Location *time.Location

	// RangeStart / RangeEnd is the inclusive window of interest.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrences caps instances per recurring event.
	MaxOccurrences int
}

// DayRange returns the [00:00, next 00:00) window of day in loc.
func DayRange(day time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.Local
	}
	d := day.In(loc)
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// Expand turns parsed VEVENTs into concrete timed events inside the window.
// All-day events are skipped: the day grid has no all-day lane. Recurring
// instances get "<uid>@<RFC3339 start>" ids so they stay unique.
func Expand(events []ParsedEvent, cfg ExpandConfig) ([]model.Event, error) {
	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return nil, errors.New("ics: range end before range start")
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.MaxOccurrences <= 0 {
		cfg.MaxOccurrences = defaultMaxOccurrences
	}

	bases := make(map[string][]ParsedEvent)
	overrides := make(map[string][]ParsedEvent)
	for _, ev := range events {
		if ev.AllDay {
			continue
		}
		if ev.IsOverride() {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
		} else {
			bases[ev.UID] = append(bases[ev.UID], ev)
		}
	}

	out := make([]model.Event, 0)
	for uid, list := range bases {
		for _, ev := range list {
			if ev.RawRRule == "" {
				if overlaps(ev.Start, ev.End, cfg.RangeStart, cfg.RangeEnd) {
					out = append(out, toEvent(ev, ev.UID, ev.Start, ev.End, cfg.Location))
				}
				continue
			}
			occ, capped := expandRecurring(ev, overrides[uid], cfg)
			if capped {
				appLog.Error("ics recurrence truncated", errors.New("max occurrences reached"), "uid", uid, "cap", cfg.MaxOccurrences)
			}
			out = append(out, occ...)
		}
	}
	return out, nil
}

func expandRecurring(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]model.Event, bool) {
	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("ics RRULE parse failed", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return nil, false
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	// Widen the lower bound by the event length so an instance that began
	// before the window but is still running is found.
	dur := ev.End.Sub(ev.Start)
	from := cfg.RangeStart.Add(-dur).In(ev.Start.Location())
	to := cfg.RangeEnd.In(ev.Start.Location())

	starts := set.Between(from, to, true)
	capped := false
	if len(starts) > cfg.MaxOccurrences {
		starts = starts[:cfg.MaxOccurrences]
		capped = true
	}

	out := make([]model.Event, 0, len(starts))
	for _, s := range starts {
		start, end, src := s, s.Add(dur), ev
		if o, ok := findOverride(overrides, s); ok {
			start, end, src = o.Start, o.End, o
		}
		if !overlaps(start, end, cfg.RangeStart, cfg.RangeEnd) {
			continue
		}
		id := ev.UID + "@" + s.UTC().Format(time.RFC3339)
		out = append(out, toEvent(src, id, start, end, cfg.Location))
	}
	return out, capped
}

func findOverride(overrides []ParsedEvent, instance time.Time) (ParsedEvent, bool) {
	for _, o := range overrides {
		if o.Recurrence != nil && o.Recurrence.Equal(instance) {
			return o, true
		}
	}
	return ParsedEvent{}, false
}

func toEvent(ev ParsedEvent, id string, start, end time.Time, loc *time.Location) model.Event {
	return model.Event{
		ID:          id,
		Title:       ev.Summary,
		Description: ev.Description,
		Type:        ev.Type,
		Start:       start.In(loc),
		End:         end.In(loc),
	}
}

// overlaps treats ranges as half-open [start, end).
func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	if aEnd.Equal(aStart) {
		return !aStart.Before(bStart) && aStart.Before(bEnd)
	}
	return aStart.Before(bEnd) && aEnd.After(bStart)
}
