package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"dashcal/internal/model"
)

const seedFeed = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:standup@example.com\r\n" +
	"DTSTAMP:20261001T000000Z\r\n" +
	"DTSTART:20261001T160000Z\r\n" +
	"DTEND:20261001T161500Z\r\n" +
	"RRULE:FREQ=DAILY\r\n" +
	"SUMMARY:Standup\r\n" +
	"CATEGORIES:Meeting\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:gym@example.com\r\n" +
	"DTSTAMP:20261001T000000Z\r\n" +
	"DTSTART:20261019T140000Z\r\n" +
	"DTEND:20261019T150000Z\r\n" +
	"SUMMARY:Gym\r\n" +
	"DESCRIPTION:Leg day\r\n" +
	"CATEGORIES:health\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:trip@example.com\r\n" +
	"DTSTAMP:20261001T000000Z\r\n" +
	"DTSTART;VALUE=DATE:20261019\r\n" +
	"DTEND;VALUE=DATE:20261020\r\n" +
	"SUMMARY:Offsite\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:old@example.com\r\n" +
	"DTSTAMP:20261001T000000Z\r\n" +
	"DTSTART:20261018T140000Z\r\n" +
	"DTEND:20261018T150000Z\r\n" +
	"SUMMARY:Yesterday\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func writeSeed(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.ics")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func byTitle(events []model.Event) map[string]model.Event {
	out := make(map[string]model.Event, len(events))
	for _, ev := range events {
		out[ev.Title] = ev
	}
	return out
}

func TestSeedLoaderFromFile(t *testing.T) {
	loc := time.UTC
	loader := &SeedLoader{Source: writeSeed(t, seedFeed), Location: loc}

	events, err := loader.Load(context.Background(), time.Date(2026, 10, 19, 9, 0, 0, 0, loc))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	got := byTitle(events)
	if len(got) != 2 {
		t.Fatalf("expected Standup and Gym only, got %+v", events)
	}

	standup, ok := got["Standup"]
	if !ok {
		t.Fatal("recurring standup not expanded for today")
	}
	if standup.Start.Day() != 19 || standup.Start.Hour() != 16 {
		t.Errorf("standup instance at %v, want 2026-10-19 16:00", standup.Start)
	}
	if standup.Type != model.TypeMeeting {
		t.Errorf("standup type = %q, want meeting", standup.Type)
	}
	if !strings.HasPrefix(standup.ID, "standup@example.com@") {
		t.Errorf("recurring id = %q", standup.ID)
	}

	gym := got["Gym"]
	if gym.ID != "gym@example.com" || gym.Description != "Leg day" || gym.Type != model.TypeHealth {
		t.Errorf("unexpected gym event: %+v", gym)
	}
}

func TestParseDefaultsTypeAndAllDay(t *testing.T) {
	parsed, err := Parse([]byte(seedFeed))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	for _, ev := range parsed {
		if ev.UID == "trip@example.com" {
			if !ev.AllDay {
				t.Errorf("VALUE=DATE event not flagged all-day")
			}
			if ev.Type != model.TypePersonal {
				t.Errorf("uncategorized type = %q, want personal", ev.Type)
			}
		}
	}
}

func TestParseEmpty(t *testing.T) {
	if _, err := Parse([]byte("  \n")); err == nil {
		t.Fatal("expected error for empty body")
	}
}

func TestExpandExDateAndOverride(t *testing.T) {
	start := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	moved := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	events := []ParsedEvent{
		{
			UID: "daily", Summary: "Daily", Type: model.TypeWork,
			Start: start, End: start.Add(time.Hour),
			RawRRule: "FREQ=DAILY",
			ExDates:  []time.Time{time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)},
		},
		{
			UID: "daily", Summary: "Daily (moved)", Type: model.TypeWork,
			Start: moved.Add(2 * time.Hour), End: moved.Add(3 * time.Hour),
			Recurrence: &moved,
		},
	}

	from := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)
	out, err := Expand(events, ExpandConfig{Location: time.UTC, RangeStart: from, RangeEnd: from.AddDate(0, 0, 3)})
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 instances (17th, moved 19th), got %d: %+v", len(out), out)
	}

	got := byTitle(out)
	if _, ok := got["Daily"]; !ok {
		t.Errorf("first instance missing")
	}
	m, ok := got["Daily (moved)"]
	if !ok || m.Start.Hour() != 11 {
		t.Errorf("override not applied: %+v", m)
	}
}

const zonedExceptionFeed = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:daily@example.com\r\n" +
	"DTSTAMP:20261001T000000Z\r\n" +
	"DTSTART;TZID=America/New_York:20261017T090000\r\n" +
	"DTEND;TZID=America/New_York:20261017T100000\r\n" +
	"RRULE:FREQ=DAILY\r\n" +
	"EXDATE;TZID=America/New_York:20261019T090000\r\n" +
	"EXDATE:20261021T090000\r\n" +
	"SUMMARY:Daily\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:daily@example.com\r\n" +
	"DTSTAMP:20261001T000000Z\r\n" +
	"RECURRENCE-ID;TZID=America/New_York:20261020T090000\r\n" +
	"DTSTART;TZID=America/New_York:20261020T110000\r\n" +
	"DTEND;TZID=America/New_York:20261020T120000\r\n" +
	"SUMMARY:Daily (moved)\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestExpandHonorsExceptionZones(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	parsed, err := Parse([]byte(zonedExceptionFeed))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(parsed) != 2 {
		t.Fatalf("expected 2 VEVENTs, got %d", len(parsed))
	}

	var master ParsedEvent
	for _, ev := range parsed {
		if !ev.IsOverride() {
			master = ev
		}
	}
	wantEx := []time.Time{
		time.Date(2026, 10, 19, 9, 0, 0, 0, ny),
		// No TZID: read in the event's own zone.
		time.Date(2026, 10, 21, 9, 0, 0, 0, ny),
	}
	if len(master.ExDates) != len(wantEx) {
		t.Fatalf("exdates = %v", master.ExDates)
	}
	for i, want := range wantEx {
		if !master.ExDates[i].Equal(want) {
			t.Errorf("exdate[%d] = %v, want %v", i, master.ExDates[i], want)
		}
	}

	from := time.Date(2026, 10, 19, 0, 0, 0, 0, ny)
	out, err := Expand(parsed, ExpandConfig{Location: ny, RangeStart: from, RangeEnd: from.AddDate(0, 0, 4)})
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected the moved 20th and the 22nd, got %d: %+v", len(out), out)
	}
	got := byTitle(out)
	if m, ok := got["Daily (moved)"]; !ok || m.Start.In(ny).Hour() != 11 {
		t.Errorf("override not applied: %+v", m)
	}
	if d, ok := got["Daily"]; !ok || d.Start.In(ny).Day() != 22 {
		t.Errorf("remaining instance = %+v", d)
	}
}

func TestExpandRejectsInvertedRange(t *testing.T) {
	now := time.Now()
	if _, err := Expand(nil, ExpandConfig{RangeStart: now, RangeEnd: now.Add(-time.Hour)}); err == nil {
		t.Fatal("expected error")
	}
}

func TestExportReimport(t *testing.T) {
	loc := time.UTC
	start := time.Date(2026, 10, 19, 10, 0, 0, 0, loc)
	events := []model.Event{
		{ID: "gen-1", Title: "Design review", Description: "Mockups", Start: start, End: start.Add(time.Hour), Type: model.TypeMeeting},
		{ID: "gen-2", Title: "Run", Start: start.Add(8 * time.Hour), End: start.Add(9 * time.Hour), Type: model.TypeHealth},
	}

	out := Export(events, start)
	if !strings.Contains(out, "METHOD:PUBLISH") {
		t.Errorf("export missing METHOD: %s", out)
	}

	parsed, err := Parse([]byte(out))
	if err != nil {
		t.Fatalf("re-parse: %v", err)
	}
	if len(parsed) != 2 {
		t.Fatalf("expected 2 events back, got %d", len(parsed))
	}
	for _, p := range parsed {
		if p.UID == "gen-1" {
			if p.Summary != "Design review" || p.Type != model.TypeMeeting || !p.Start.Equal(start) {
				t.Errorf("gen-1 round-tripped as %+v", p)
			}
		}
	}
}

func TestFetcherConditionalAndFallback(t *testing.T) {
	var hits atomic.Int64
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if fail.Load() {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(seedFeed))
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client(), t.TempDir())
	url := srv.URL + "/private/cal.ics?token=secret"

	first, err := f.Fetch(context.Background(), url)
	if err != nil || string(first) != seedFeed {
		t.Fatalf("first fetch: err=%v len=%d", err, len(first))
	}

	second, err := f.Fetch(context.Background(), url)
	if err != nil || string(second) != seedFeed {
		t.Fatalf("304 fetch: err=%v", err)
	}

	fail.Store(true)
	third, err := f.Fetch(context.Background(), url)
	if err != nil || string(third) != seedFeed {
		t.Fatalf("fallback fetch: err=%v", err)
	}
	if hits.Load() != 3 {
		t.Errorf("expected 3 requests, got %d", hits.Load())
	}
}

func TestFetcherErrorWithoutCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client(), t.TempDir())
	if _, err := f.Fetch(context.Background(), srv.URL+"/cal.ics"); err == nil {
		t.Fatal("expected error")
	}
}

func TestRedactURL(t *testing.T) {
	cases := map[string]string{
		"https://calendar.example.com/private/abc.ics?token=x": "https://calendar.example.com/...(redacted)",
		"http://host":      "http://host/...(redacted)",
		"not a url at all": "ics://...(redacted)",
	}
	for in, want := range cases {
		if got := redactURL(in); got != want {
			t.Errorf("redactURL(%q) = %q, want %q", in, got, want)
		}
	}
}
