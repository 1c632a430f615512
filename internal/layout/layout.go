// Package layout maps calendar events onto the vertical day grid.
//
// Geometry is computed in the grid's display time zone:
//
//	top    = max(0, (startFraction - StartHour) * HourHeight)
//	height = max(MinHeight, (endFraction - startFraction) * HourHeight)
//
// where a fraction is hours + minutes/60. Events whose start hour falls
// outside [StartHour, StartHour+WindowHours] are left out of the result.
//
// Overlapping events are positioned independently and may collide on
// screen; there is no column packing.
package layout

import (
	"sort"
	"time"

	"dashcal/internal/model"
)

const (
	DefaultStartHour   = 7
	DefaultWindowHours = 15
	DefaultHourHeight  = 80.0
	DefaultMinHeight   = 20.0
)

// Grid describes the visible day window.
type Grid struct {
	StartHour   int
	WindowHours int
	HourHeight  float64
	MinHeight   float64

	// Location is the viewer's time zone. Nil means time.Local.
	Location *time.Location
}

// DefaultGrid returns the 07:00-22:00, 80px/hour grid.
func DefaultGrid(loc *time.Location) Grid {
	return Grid{
		StartHour:   DefaultStartHour,
		WindowHours: DefaultWindowHours,
		HourHeight:  DefaultHourHeight,
		MinHeight:   DefaultMinHeight,
		Location:    loc,
	}
}

// Box is the computed placement of one event.
type Box struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Type        model.EventType `json:"type"`
	Class       string          `json:"class"`
	Start       time.Time       `json:"start"`
	End         time.Time       `json:"end"`
	Top         float64         `json:"top"`
	Height      float64         `json:"height"`
}

// NowIndicator is the current-time line.
type NowIndicator struct {
	Offset  float64 `json:"offset"`
	Visible bool    `json:"visible"`
}

// EndHour is the first hour past the window.
func (g Grid) EndHour() int {
	return g.StartHour + g.WindowHours
}

// TotalHeight is the pixel height of the whole grid.
func (g Grid) TotalHeight() float64 {
	return float64(g.WindowHours) * g.HourHeight
}

// Hours lists the hour labels drawn on the grid.
func (g Grid) Hours() []int {
	out := make([]int, 0, g.WindowHours)
	for h := g.StartHour; h < g.EndHour(); h++ {
		out = append(out, h)
	}
	return out
}

func (g Grid) loc() *time.Location {
	if g.Location == nil {
		return time.Local
	}
	return g.Location
}

// HourFraction returns hours + minutes/60 of t in the grid's zone.
// Seconds are ignored.
func (g Grid) HourFraction(t time.Time) float64 {
	lt := t.In(g.loc())
	return float64(lt.Hour()) + float64(lt.Minute())/60
}

// InWindow reports whether an event starting at t is laid out.
func (g Grid) InWindow(t time.Time) bool {
	h := t.In(g.loc()).Hour()
	return h >= g.StartHour && h <= g.EndHour()
}

// Offset is the clamped vertical offset of t.
func (g Grid) Offset(t time.Time) float64 {
	top := (g.HourFraction(t) - float64(g.StartHour)) * g.HourHeight
	if top < 0 {
		return 0
	}
	return top
}

// Place computes the box for ev. ok is false when the event starts outside
// the window.
func (g Grid) Place(ev model.Event) (Box, bool) {
	if !g.InWindow(ev.Start) {
		return Box{}, false
	}

	height := (g.HourFraction(ev.End) - g.HourFraction(ev.Start)) * g.HourHeight
	if height < g.MinHeight {
		height = g.MinHeight
	}

	return Box{
		ID:          ev.ID,
		Title:       ev.Title,
		Description: ev.Description,
		Type:        ev.Type,
		Class:       ev.Type.Class(),
		Start:       ev.Start.In(g.loc()),
		End:         ev.End.In(g.loc()),
		Top:         g.Offset(ev.Start),
		Height:      height,
	}, true
}

// Layout places every in-window event, ordered by start time.
func (g Grid) Layout(events []model.Event) []Box {
	boxes := make([]Box, 0, len(events))
	for _, ev := range events {
		if b, ok := g.Place(ev); ok {
			boxes = append(boxes, b)
		}
	}
	sort.SliceStable(boxes, func(i, j int) bool {
		return boxes[i].Start.Before(boxes[j].Start)
	})
	return boxes
}

// Now positions the current-time indicator.
func (g Grid) Now(now time.Time) NowIndicator {
	return NowIndicator{
		Offset:  g.Offset(now),
		Visible: g.InWindow(now),
	}
}
