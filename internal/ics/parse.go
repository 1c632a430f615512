package ics

import (
	"bytes"
	"errors"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "dashcal/internal/log"
	"dashcal/internal/model"
)

// ParsedEvent is a VEVENT before recurrence expansion.
type ParsedEvent struct {
	UID string

	Summary     string
	Description string
	Type        model.EventType

	Start  time.Time
	End    time.Time
	AllDay bool

	RawRRule   string
	ExDates    []time.Time
	Recurrence *time.Time // RECURRENCE-ID, if this VEVENT overrides one instance
}

// IsOverride reports whether ev replaces a single recurring instance.
func (ev ParsedEvent) IsOverride() bool {
	return ev.Recurrence != nil
}

// Parse reads an iCalendar payload. Individual VEVENTs that cannot be read
// are logged and skipped.
func Parse(body []byte) ([]ParsedEvent, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("ics: empty body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	events := make([]ParsedEvent, 0)
	for _, ve := range cal.Events() {
		ev, err := parseVEvent(ve)
		if err != nil {
			appLog.Error("ics vevent skipped", err)
			continue
		}
		events = append(events, ev)
	}

	appLog.Debug("ics parsed", "event_count", len(events))
	return events, nil
}

func parseVEvent(ve *ical.VEvent) (ParsedEvent, error) {
	var out ParsedEvent

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uid.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}
	out.Type = typeFromCategories(ve.GetProperties(ical.ComponentPropertyCategories))

	start, err := ve.GetStartAt()
	if err != nil {
		return out, err
	}
	end, err := ve.GetEndAt()
	if err != nil {
		// DTEND is optional; a missing one gives a zero-length event.
		end = start
	}
	out.Start = start
	out.End = end

	if p := ve.GetProperty(ical.ComponentPropertyDtStart); p != nil {
		if !strings.Contains(p.Value, "T") {
			out.AllDay = true
		}
		if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
			out.AllDay = true
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RawRRule = p.Value
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		loc := propLocation(p, start.Location())
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseICSTime(part, loc); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	if p := ve.GetProperty(ical.ComponentProperty("RECURRENCE-ID")); p != nil {
		if t, err := parseICSTime(p.Value, propLocation(p, start.Location())); err == nil {
			out.Recurrence = &t
		}
	}

	return out, nil
}

// typeFromCategories picks the first known event type among CATEGORIES
// values, defaulting to personal.
func typeFromCategories(props []*ical.IANAProperty) model.EventType {
	for _, p := range props {
		for _, c := range strings.Split(p.Value, ",") {
			if t := model.ParseEventType(c); t.Known() {
				return t
			}
		}
	}
	return model.TypePersonal
}

// propLocation resolves a property's TZID parameter, falling back to def
// when it is absent or unknown.
func propLocation(p *ical.IANAProperty, def *time.Location) *time.Location {
	if def == nil {
		def = time.Local
	}
	tz, ok := p.ICalParameters[string(ical.ParameterTzid)]
	if !ok || len(tz) == 0 || tz[0] == "" {
		return def
	}
	loc, err := time.LoadLocation(tz[0])
	if err != nil {
		appLog.Debug("ics: unknown TZID, using event zone", "tzid", tz[0])
		return def
	}
	return loc
}

// parseICSTime handles the bare DATE / DATE-TIME / UTC forms used in EXDATE
// and RECURRENCE-ID values. Floating values are read in loc.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}
