package ics

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	appLog "dashcal/internal/log"
	"dashcal/internal/model"
)

// SeedLoader reads the startup schedule from an ICS file or URL and keeps
// the instances that fall on the current day.
type SeedLoader struct {
	Source   string
	Fetcher  *Fetcher
	Location *time.Location
}

// Load returns today's events from the configured source. Duplicate ids are
// dropped, keeping the first.
func (l *SeedLoader) Load(ctx context.Context, now time.Time) ([]model.Event, error) {
	body, err := l.read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ics seed: read %s: %w", describeSource(l.Source), err)
	}

	parsed, err := Parse(body)
	if err != nil {
		return nil, fmt.Errorf("ics seed: parse: %w", err)
	}

	from, to := DayRange(now, l.Location)
	events, err := Expand(parsed, ExpandConfig{
		Location:   l.Location,
		RangeStart: from,
		RangeEnd:   to,
	})
	if err != nil {
		return nil, fmt.Errorf("ics seed: expand: %w", err)
	}

	seen := make(map[string]bool, len(events))
	out := events[:0]
	for _, ev := range events {
		if seen[ev.ID] {
			appLog.Debug("ics seed: duplicate id dropped", "id", ev.ID)
			continue
		}
		seen[ev.ID] = true
		out = append(out, ev)
	}

	appLog.Info("ics seed loaded", "source", describeSource(l.Source), "vevents", len(parsed), "events_today", len(out))
	return out, nil
}

func (l *SeedLoader) read(ctx context.Context) ([]byte, error) {
	if isRemote(l.Source) {
		f := l.Fetcher
		if f == nil {
			f = NewFetcher(nil, "")
		}
		return f.Fetch(ctx, l.Source)
	}
	return os.ReadFile(l.Source)
}

func isRemote(src string) bool {
	return strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://")
}

func describeSource(src string) string {
	if isRemote(src) {
		return redactURL(src)
	}
	return src
}
