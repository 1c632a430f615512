package ics

import (
	"time"

	ical "github.com/arran4/golang-ical"

	"dashcal/internal/model"
)

// Export serializes events as a PUBLISH calendar. The event type is carried
// in CATEGORIES so a re-import keeps it.
func Export(events []model.Event, stamp time.Time) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//dashcal//Day Schedule//EN")

	for _, ev := range events {
		ve := cal.AddEvent(ev.ID)
		ve.SetDtStampTime(stamp)
		ve.SetStartAt(ev.Start)
		ve.SetEndAt(ev.End)
		ve.SetSummary(ev.Title)
		if ev.Description != "" {
			ve.SetDescription(ev.Description)
		}
		if ev.Type != "" {
			ve.AddProperty(ical.ComponentPropertyCategories, string(ev.Type))
		}
	}

	return cal.Serialize()
}
